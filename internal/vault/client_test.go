package vault

import (
	"context"
	"testing"

	"trading-decision-engine/config"
)

func TestDisabledClientUsesLocalCache(t *testing.T) {
	client, err := NewClient(config.VaultConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	ctx := context.Background()

	if _, err := client.GetSecrets(ctx); err == nil {
		t.Error("Expected error reading secrets before any were stored")
	}

	stored := SecretData{
		JWTSecret:            "test-secret",
		OperatorPasswordHash: "$2a$10$hash",
	}
	if err := client.StoreSecrets(ctx, stored); err != nil {
		t.Fatalf("StoreSecrets failed: %v", err)
	}

	got, err := client.GetSecrets(ctx)
	if err != nil {
		t.Fatalf("GetSecrets failed: %v", err)
	}
	if got.JWTSecret != "test-secret" {
		t.Errorf("Expected cached JWT secret, got %q", got.JWTSecret)
	}
	if got.OperatorPasswordHash != "$2a$10$hash" {
		t.Errorf("Expected cached operator hash, got %q", got.OperatorPasswordHash)
	}
}

func TestDisabledClientHealthAlwaysPasses(t *testing.T) {
	client, err := NewClient(config.VaultConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Disabled vault should report healthy, got %v", err)
	}
}

func TestDeleteSecretsClearsCache(t *testing.T) {
	client, _ := NewClient(config.VaultConfig{Enabled: false})
	ctx := context.Background()

	client.StoreSecrets(ctx, SecretData{JWTSecret: "s"})
	if err := client.DeleteSecrets(ctx); err != nil {
		t.Fatalf("DeleteSecrets failed: %v", err)
	}

	if _, err := client.GetSecrets(ctx); err == nil {
		t.Error("Expected error after secrets were deleted")
	}
}

func TestSecretPaths(t *testing.T) {
	client, _ := NewClient(config.VaultConfig{
		Enabled:    false,
		MountPath:  "secret",
		SecretPath: "decision-engine",
	})

	if got := client.secretPath(); got != "secret/data/decision-engine" {
		t.Errorf("Unexpected secret path: %s", got)
	}
	if got := client.metadataPath(); got != "secret/metadata/decision-engine" {
		t.Errorf("Unexpected metadata path: %s", got)
	}
}
