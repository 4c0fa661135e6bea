package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != "0.0.0.0:8080" {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != "backlog.db" {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath)
	}
	if cfg.GuestStorePath != "backlog-guest.json" {
		t.Fatalf("unexpected guest store path %q", cfg.GuestStorePath)
	}
	if cfg.TokenTTL != 60*time.Minute {
		t.Fatalf("unexpected token ttl %v", cfg.TokenTTL)
	}
	if cfg.CatalogAPIKey != "" || cfg.ArtworkAPIKey != "" {
		t.Fatalf("metadata credentials must default to absent")
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	configViper := NewViper()

	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected missing signing secret to be rejected")
	}
}

func TestLoadRejectsBlankGuestStorePath(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")
	configViper.Set("guest.store_path", "   ")

	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected blank guest store path to be rejected")
	}
}

func TestLoadRejectsNonPositiveTokenTTL(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")
	configViper.Set("token.ttl_minutes", 0)

	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected zero token ttl to be rejected")
	}
}
