// Package vault sources runtime secrets from HashiCorp Vault: the JWT
// signing secret, the operator credential hash and datasource passwords.
// With Vault disabled the client degrades to an in-memory store so the
// rest of the service keeps a single code path.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"trading-decision-engine/config"
)

// SecretData represents the engine secrets stored in Vault.
type SecretData struct {
	JWTSecret            string `json:"jwt_secret"`
	OperatorPasswordHash string `json:"operator_password_hash"`
	DatabaseURL          string `json:"database_url"`
	RedisPassword        string `json:"redis_password"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client       *api.Client
	config       config.VaultConfig
	mu           sync.RWMutex
	cached       *SecretData
	cacheEnabled bool
}

// NewClient creates a new Vault client. A disabled configuration returns a
// cache-only client.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config:       cfg,
			cacheEnabled: true,
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client:       client,
		config:       cfg,
		cacheEnabled: true,
	}, nil
}

// IsEnabled returns whether Vault is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// StoreSecrets writes the engine secrets to Vault.
func (c *Client) StoreSecrets(ctx context.Context, data SecretData) error {
	if !c.config.Enabled {
		// Store in local cache only (for development/testing)
		c.mu.Lock()
		c.cached = &data
		c.mu.Unlock()
		return nil
	}

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"jwt_secret":             data.JWTSecret,
			"operator_password_hash": data.OperatorPasswordHash,
			"database_url":           data.DatabaseURL,
			"redis_password":         data.RedisPassword,
		},
	}

	_, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(), secretData)
	if err != nil {
		return fmt.Errorf("failed to store secrets in vault: %w", err)
	}

	if c.cacheEnabled {
		c.mu.Lock()
		c.cached = &data
		c.mu.Unlock()
	}

	return nil
}

// GetSecrets retrieves the engine secrets from Vault.
func (c *Client) GetSecrets(ctx context.Context) (*SecretData, error) {
	// Check cache first
	if c.cacheEnabled {
		c.mu.RLock()
		if c.cached != nil {
			defer c.mu.RUnlock()
			return c.cached, nil
		}
		c.mu.RUnlock()
	}

	if !c.config.Enabled {
		return nil, fmt.Errorf("secrets not found and vault is disabled")
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets from vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secrets not found")
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	secrets := &SecretData{
		JWTSecret:            getString(data, "jwt_secret"),
		OperatorPasswordHash: getString(data, "operator_password_hash"),
		DatabaseURL:          getString(data, "database_url"),
		RedisPassword:        getString(data, "redis_password"),
	}

	if c.cacheEnabled {
		c.mu.Lock()
		c.cached = secrets
		c.mu.Unlock()
	}

	return secrets, nil
}

// DeleteSecrets removes the engine secrets from Vault.
func (c *Client) DeleteSecrets(ctx context.Context) error {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	_, err := c.client.Logical().DeleteWithContext(ctx, c.metadataPath())
	if err != nil {
		return fmt.Errorf("failed to delete secrets from vault: %w", err)
	}

	return nil
}

// ClearCache clears the in-memory cache.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// SetCacheEnabled enables or disables caching.
func (c *Client) SetCacheEnabled(enabled bool) {
	c.mu.Lock()
	c.cacheEnabled = enabled
	c.mu.Unlock()
}

// Health checks Vault connectivity and seal status.
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil // Disabled vault is always "healthy"
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

// secretPath returns the KV v2 data path for the engine secrets.
func (c *Client) secretPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

// metadataPath returns the KV v2 metadata path for the engine secrets.
func (c *Client) metadataPath() string {
	return fmt.Sprintf("%s/metadata/%s", c.config.MountPath, c.config.SecretPath)
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
