package config

import (
	"errors"
	"testing"
	"time"

	"github.com/kirillm/verigate/internal/domain"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("POLICY_SERVICE_URL", "http://policy.local")
	t.Setenv("RISK_SERVICE_URL", "http://risk.local")
	t.Setenv("ANCHOR_RPC_URL", "http://rpc.local:8545")
	t.Setenv("ANCHOR_CONTRACT_ADDRESS", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	t.Setenv("ANCHOR_PRIVATE_KEY", "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	t.Setenv("ANCHOR_TIMEOUT_MS", "")
	t.Setenv("ANCHOR_ENABLED", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Anchor.Timeout != 10*time.Second {
		t.Errorf("Anchor.Timeout = %v, want 10s", cfg.Anchor.Timeout)
	}
	if !cfg.Anchor.Enabled {
		t.Error("Anchor.Enabled should default to true")
	}
	if cfg.Database.Enabled() {
		t.Error("Database should be disabled without DB_HOST")
	}
	if cfg.Verification.PolicyTimeout != 2*time.Second {
		t.Errorf("PolicyTimeout = %v, want 2s", cfg.Verification.PolicyTimeout)
	}
}

func TestLoad_AnchorTimeoutOverride(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ANCHOR_TIMEOUT_MS", "250")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Anchor.Timeout != 250*time.Millisecond {
		t.Errorf("Anchor.Timeout = %v, want 250ms", cfg.Anchor.Timeout)
	}
}

func TestLoad_MissingAnchorSettingsFailFast(t *testing.T) {
	keys := []string{"ANCHOR_RPC_URL", "ANCHOR_CONTRACT_ADDRESS", "ANCHOR_PRIVATE_KEY"}

	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(key, "")

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() should fail without %s", key)
			}
			var cfgErr *domain.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error = %T, want *domain.ConfigurationError", err)
			}
			if cfgErr.Key != key {
				t.Errorf("ConfigurationError.Key = %q, want %q", cfgErr.Key, key)
			}
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Error("error should wrap ErrConfiguration")
			}
		})
	}
}

func TestLoad_AnchorDisabledSkipsAnchorSettings(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ANCHOR_ENABLED", "false")
	t.Setenv("ANCHOR_RPC_URL", "")

	if _, err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"ANCHOR_TIMEOUT_MS", "ten"},
		{"POLICY_TIMEOUT", "fast"},
		{"VERIFICATION_RETRIES", "-1"},
		{"ANCHOR_TIMEOUT_MS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("Load() should fail for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestValidate_PolicySource(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("POLICY_SERVICE_URL", "")
	t.Setenv("POLICY_PATH", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail without a policy source")
	}

	t.Setenv("POLICY_PATH", "configs/policy.yaml")
	if _, err := Load(); err != nil {
		t.Fatalf("Load() with POLICY_PATH error = %v", err)
	}
}
