package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Clearenv()

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.GracePeriodDays != 30 {
		t.Errorf("expected default grace period 30, got %d", cfg.GracePeriodDays)
	}
	if cfg.AccessKeyLength != 12 {
		t.Errorf("expected default access key length 12, got %d", cfg.AccessKeyLength)
	}
	if cfg.InvitationTokenLength != 16 {
		t.Errorf("expected default invitation token length 16, got %d", cfg.InvitationTokenLength)
	}
	if !cfg.AssistantAutoApproveFree {
		t.Error("expected assistant auto-approve to default to true")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	os.Clearenv()
	os.Setenv("PORT", "9999")
	os.Setenv("GRACE_PERIOD_DAYS", "45")
	os.Setenv("ASSISTANT_AUTO_APPROVE_FREE", "false")
	os.Setenv("UNIT_PRICE_DEFAULT", "120.5")
	defer os.Clearenv()

	cfg := Load()

	if cfg.Port != "9999" {
		t.Errorf("expected port 9999, got %s", cfg.Port)
	}
	if cfg.GracePeriodDays != 45 {
		t.Errorf("expected grace period 45, got %d", cfg.GracePeriodDays)
	}
	if cfg.AssistantAutoApproveFree {
		t.Error("expected assistant auto-approve false")
	}
	if cfg.UnitPriceDefault != 120.5 {
		t.Errorf("expected unit price 120.5, got %f", cfg.UnitPriceDefault)
	}
}

func TestAccessKeyLengthFloor(t *testing.T) {
	os.Clearenv()
	os.Setenv("ACCESS_KEY_LENGTH", "6")
	defer os.Clearenv()

	cfg := Load()
	if cfg.AccessKeyLength != 12 {
		t.Errorf("access key length below the minimum must clamp to 12, got %d", cfg.AccessKeyLength)
	}
}
