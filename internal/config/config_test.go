package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ASSESSOR_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %q, want %q", cfg.Port, DefaultPort)
	}
	if cfg.FusionStrategy != "weighted" {
		t.Errorf("FusionStrategy = %q, want weighted", cfg.FusionStrategy)
	}
	if cfg.ReviewHold != 72*time.Hour {
		t.Errorf("ReviewHold = %v, want 72h", cfg.ReviewHold)
	}
	if cfg.BlockHold != 168*time.Hour {
		t.Errorf("BlockHold = %v, want 168h", cfg.BlockHold)
	}
	if cfg.AssessorEnabled() {
		t.Error("AssessorEnabled() should be false without ASSESSOR_URL")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FUSION_STRATEGY", "consensus")
	t.Setenv("REVIEW_HOLD", "24h")
	t.Setenv("ASSESSOR_URL", "https://assessor.internal/v1/assess")
	t.Setenv("ASSESSOR_API_KEY", "test-key")
	t.Setenv("ASSESSOR_PER_MINUTE", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.FusionStrategy != "consensus" {
		t.Errorf("FusionStrategy = %q, want consensus", cfg.FusionStrategy)
	}
	if cfg.ReviewHold != 24*time.Hour {
		t.Errorf("ReviewHold = %v, want 24h", cfg.ReviewHold)
	}
	if cfg.AssessorPerMinute != 10 {
		t.Errorf("AssessorPerMinute = %d, want 10", cfg.AssessorPerMinute)
	}
	if !cfg.AssessorEnabled() {
		t.Error("AssessorEnabled() should be true")
	}
}

func TestValidateRejectsBadStrategy(t *testing.T) {
	cfg := &Config{
		FusionStrategy:    "vibes",
		AssessorPerMinute: 1,
		AssessorPerDay:    1,
		ReviewHold:        time.Hour,
		BlockHold:         time.Hour,
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject unknown fusion strategy")
	}
}

func TestValidateRequiresAssessorKey(t *testing.T) {
	cfg := &Config{
		FusionStrategy:    "weighted",
		AssessorURL:       "https://assessor.internal",
		AssessorPerMinute: 1,
		AssessorPerDay:    1,
		ReviewHold:        time.Hour,
		BlockHold:         time.Hour,
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should require ASSESSOR_API_KEY when ASSESSOR_URL is set")
	}
}

func TestValidateRequiresAdminSecretInProduction(t *testing.T) {
	cfg := &Config{
		Env:               "production",
		FusionStrategy:    "weighted",
		AssessorPerMinute: 1,
		AssessorPerDay:    1,
		ReviewHold:        time.Hour,
		BlockHold:         time.Hour,
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should require ADMIN_SECRET in production")
	}
}
