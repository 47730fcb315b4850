package preview

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillm/verigate/internal/domain"
)

type fakePolicy struct {
	result     domain.PolicyResult
	delay      time.Duration
	block      bool
	calls      atomic.Int32
	currentQty atomic.Value
}

func (f *fakePolicy) Evaluate(ctx context.Context, action domain.OrderAction, currentQty float64) domain.PolicyResult {
	f.calls.Add(1)
	f.currentQty.Store(currentQty)
	if f.block {
		select {} // не уважает контекст
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.result
}

type fakeRisk struct {
	result domain.RiskResult
	delay  time.Duration
	calls  atomic.Int32
}

func (f *fakeRisk) Prove(ctx context.Context, action domain.OrderAction) domain.RiskResult {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.RiskDegraded()
		}
	}
	return f.result
}

var aapl = domain.OrderAction{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 10}

func allowVerdict(id string) domain.PolicyResult {
	return domain.PolicyResult{Verdict: &domain.PolicyVerdict{VerdictID: id, Allow: true, Reasons: []string{}}}
}

func okProof(id string) domain.RiskResult {
	return domain.RiskResult{Proof: &domain.RiskProof{ProofID: id, Hash: "0xfeed", OK: true, VaRValue: 1.5}}
}

func testConfig() Config {
	return Config{PolicyTimeout: 200 * time.Millisecond, RiskTimeout: 200 * time.Millisecond, Deadline: time.Second}
}

func TestPreview_BothHealthyAndPassing(t *testing.T) {
	p := NewPipeline(&fakePolicy{result: allowVerdict("v1")}, &fakeRisk{result: okProof("p1")}, testConfig(), nil)

	got, err := p.Preview(context.Background(), aapl, 0)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if got.Action != aapl {
		t.Errorf("Action = %+v, want %+v", got.Action, aapl)
	}
	if got.Policy.VerdictID != "v1" {
		t.Errorf("VerdictID = %q, want v1", got.Policy.VerdictID)
	}
	if got.Proof.ProofID != "p1" {
		t.Errorf("ProofID = %q, want p1", got.Proof.ProofID)
	}
}

func TestPreview_CombinedGateRejects(t *testing.T) {
	tests := []struct {
		name   string
		policy domain.PolicyResult
		risk   domain.RiskResult
	}{
		{
			"policy denies",
			domain.PolicyResult{Verdict: &domain.PolicyVerdict{VerdictID: "v1", Allow: false, Reasons: []string{"restricted"}}},
			okProof("p1"),
		},
		{
			"risk not ok",
			allowVerdict("v1"),
			domain.RiskResult{Proof: &domain.RiskProof{ProofID: "p1", OK: false, VaRValue: 1e6}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(&fakePolicy{result: tt.policy}, &fakeRisk{result: tt.risk}, testConfig(), nil)

			got, err := p.Preview(context.Background(), aapl, 0)
			if got != nil {
				t.Fatal("no preview expected on rejection")
			}
			var rejected *domain.PolicyRejectedError
			if !errors.As(err, &rejected) {
				t.Fatalf("error = %v, want PolicyRejectedError", err)
			}
			if !errors.Is(err, domain.ErrPolicyRejected) {
				t.Error("error should wrap ErrPolicyRejected")
			}
			if rejected.StatusCode() != 422 {
				t.Errorf("StatusCode() = %d, want 422", rejected.StatusCode())
			}
			if rejected.VerdictID != "v1" || rejected.ProofID != "p1" {
				t.Errorf("unexpected ids %+v", rejected)
			}
		})
	}
}

func TestPreview_DegradedIsSafeMode(t *testing.T) {
	tests := []struct {
		name       string
		policy     domain.PolicyResult
		risk       domain.RiskResult
		wantPolicy bool
		wantRisk   bool
	}{
		{"both degraded", domain.PolicyDegraded(), domain.RiskDegraded(), true, true},
		{"policy degraded", domain.PolicyDegraded(), okProof("p1"), true, false},
		{"risk degraded", allowVerdict("v1"), domain.RiskDegraded(), false, true},
		{"healthy flag without value", domain.PolicyResult{}, okProof("p1"), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(&fakePolicy{result: tt.policy}, &fakeRisk{result: tt.risk}, testConfig(), nil)

			got, err := p.Preview(context.Background(), aapl, 5)
			if got != nil {
				t.Fatal("degraded legs must never produce a preview")
			}
			var safe *domain.SafeModeError
			if !errors.As(err, &safe) {
				t.Fatalf("error = %v, want SafeModeError", err)
			}
			if safe.StatusCode() != 409 {
				t.Errorf("StatusCode() = %d, want 409", safe.StatusCode())
			}
			if safe.PolicyDegraded != tt.wantPolicy || safe.RiskDegraded != tt.wantRisk {
				t.Errorf("degraded flags = (%t,%t), want (%t,%t)",
					safe.PolicyDegraded, safe.RiskDegraded, tt.wantPolicy, tt.wantRisk)
			}
			if safe.CurrentQty != 5 || safe.Action != aapl {
				t.Errorf("safe mode context lost: %+v", safe)
			}
		})
	}
}

func TestPreview_SafeModePayloadHasNoVerification(t *testing.T) {
	p := NewPipeline(&fakePolicy{result: allowVerdict("v1")}, &fakeRisk{result: domain.RiskDegraded()}, testConfig(), nil)

	_, err := p.Preview(context.Background(), aapl, 0)
	var safe *domain.SafeModeError
	if !errors.As(err, &safe) {
		t.Fatalf("error = %v, want SafeModeError", err)
	}

	payload, marshalErr := json.Marshal(safe)
	if marshalErr != nil {
		t.Fatal(marshalErr)
	}
	for _, field := range []string{"verdict", "proof", "v1"} {
		if strings.Contains(string(payload), field) {
			t.Errorf("payload %s must not contain %q", payload, field)
		}
	}
	if safe.PartialPolicy == nil || safe.PartialPolicy.VerdictID != "v1" {
		t.Error("partial policy verdict should stay available to the caller")
	}
}

func TestPreview_UnresponsiveLegResolvesDegraded(t *testing.T) {
	policy := &fakePolicy{block: true}
	risk := &fakeRisk{result: okProof("p1")}
	cfg := Config{PolicyTimeout: 50 * time.Millisecond, RiskTimeout: 50 * time.Millisecond, Deadline: time.Second}
	p := NewPipeline(policy, risk, cfg, nil)

	start := time.Now()
	_, err := p.Preview(context.Background(), aapl, 0)
	elapsed := time.Since(start)

	var safe *domain.SafeModeError
	if !errors.As(err, &safe) || !safe.PolicyDegraded || safe.RiskDegraded {
		t.Fatalf("error = %v, want policy-only SafeModeError", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Preview took %v, leg timeout not enforced", elapsed)
	}
}

func TestPreview_DeadlineBoundsWholeCall(t *testing.T) {
	policy := &fakePolicy{block: true}
	risk := &fakeRisk{result: okProof("p1"), delay: time.Hour}
	cfg := Config{Deadline: 80 * time.Millisecond}
	p := NewPipeline(policy, risk, cfg, nil)

	start := time.Now()
	_, err := p.Preview(context.Background(), aapl, 0)
	elapsed := time.Since(start)

	var safe *domain.SafeModeError
	if !errors.As(err, &safe) || !safe.PolicyDegraded || !safe.RiskDegraded {
		t.Fatalf("error = %v, want fully degraded SafeModeError", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Preview took %v, deadline not enforced", elapsed)
	}
}

func TestPreview_LegsRunConcurrently(t *testing.T) {
	policy := &fakePolicy{result: allowVerdict("v1"), delay: 100 * time.Millisecond}
	risk := &fakeRisk{result: okProof("p1"), delay: 100 * time.Millisecond}
	p := NewPipeline(policy, risk, testConfig(), nil)

	start := time.Now()
	if _, err := p.Preview(context.Background(), aapl, 0); err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 190*time.Millisecond {
		t.Errorf("Preview took %v, legs look sequential", elapsed)
	}
}

func TestPreview_CallerCancellation(t *testing.T) {
	policy := &fakePolicy{block: true}
	risk := &fakeRisk{result: okProof("p1"), delay: time.Hour}
	p := NewPipeline(policy, risk, Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := p.Preview(ctx, aapl, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	var safe *domain.SafeModeError
	if errors.As(err, &safe) {
		t.Error("caller cancellation must not be reported as safe mode")
	}
}

func TestPreview_InvalidActionSkipsServices(t *testing.T) {
	policy := &fakePolicy{result: allowVerdict("v1")}
	risk := &fakeRisk{result: okProof("p1")}
	p := NewPipeline(policy, risk, testConfig(), nil)

	_, err := p.Preview(context.Background(), domain.OrderAction{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 0}, 0)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
	if policy.calls.Load() != 0 || risk.calls.Load() != 0 {
		t.Error("services must not be called for invalid input")
	}
}

func TestPreview_PolicyLegSeesCallerPosition(t *testing.T) {
	policy := &fakePolicy{result: allowVerdict("v1")}
	p := NewPipeline(policy, &fakeRisk{result: okProof("p1")}, testConfig(), nil)

	if _, err := p.Preview(context.Background(), aapl, -42); err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if got, _ := policy.currentQty.Load().(float64); got != -42 {
		t.Errorf("policy leg saw currentQty %v, want -42", got)
	}
}
