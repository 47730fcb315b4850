package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveVerification(t *testing.T) {
	before := testutil.ToFloat64(verificationTotal.WithLabelValues("risk", "degraded"))
	ObserveVerification("risk", true, 20*time.Millisecond)
	after := testutil.ToFloat64(verificationTotal.WithLabelValues("risk", "degraded"))

	if after-before != 1 {
		t.Errorf("degraded counter delta = %v, want 1", after-before)
	}
}

func TestSetAnchorWorkerRunning(t *testing.T) {
	SetAnchorWorkerRunning(true)
	if v := testutil.ToFloat64(anchorWorkerRunning); v != 1 {
		t.Errorf("gauge = %v, want 1", v)
	}
	SetAnchorWorkerRunning(false)
	if v := testutil.ToFloat64(anchorWorkerRunning); v != 0 {
		t.Errorf("gauge = %v, want 0", v)
	}
}
