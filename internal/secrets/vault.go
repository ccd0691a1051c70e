// Package secrets provides access to webhook signing keys, provider API
// tokens, and SMTP credentials via HashiCorp Vault's KV v2 engine.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/rsionnach/nthlayer/internal/logging"
)

var (
	ErrNotInitialized = errors.New("secrets: vault client not initialized")
	ErrSecretNotFound = errors.New("secrets: secret not found")
)

// Config configures the Vault-backed provider.
type Config struct {
	Address    string
	Token      string
	Namespace  string
	MountPath  string
	CacheTTL   time.Duration
	MaxRetries int
	Timeout    time.Duration
}

type cachedSecret struct {
	data      map[string]interface{}
	expiresAt time.Time
}

// Provider fetches and caches secrets from Vault.
type Provider struct {
	client    *api.Client
	mountPath string
	cacheTTL  time.Duration

	mu    sync.RWMutex
	cache map[string]cachedSecret
}

// NewProvider builds a Vault-backed secret provider and verifies
// connectivity before returning.
func NewProvider(cfg Config) (*Provider, error) {
	vaultCfg := api.DefaultConfig()
	vaultCfg.Address = cfg.Address
	if cfg.Timeout > 0 {
		vaultCfg.Timeout = cfg.Timeout
	}
	if cfg.MaxRetries > 0 {
		vaultCfg.MaxRetries = cfg.MaxRetries
	}

	client, err := api.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("secrets: create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	mountPath := cfg.MountPath
	if mountPath == "" {
		mountPath = "secret"
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	p := &Provider{
		client:    client,
		mountPath: mountPath,
		cacheTTL:  ttl,
		cache:     make(map[string]cachedSecret),
	}

	if _, err := client.Sys().Health(); err != nil {
		return nil, fmt.Errorf("secrets: vault health check: %w", err)
	}

	logging.GetLogger().Info("vault secret provider initialized",
		logging.String("address", cfg.Address), logging.String("mount_path", mountPath))

	return p, nil
}

// Get returns the secret at path, using the in-memory cache when fresh.
func (p *Provider) Get(ctx context.Context, path string) (map[string]interface{}, error) {
	if p == nil || p.client == nil {
		return nil, ErrNotInitialized
	}

	if data, ok := p.getCached(path); ok {
		return data, nil
	}

	fullPath := fmt.Sprintf("%s/data/%s", p.mountPath, path)
	secret, err := p.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("secrets: read %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, ErrSecretNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		data = secret.Data
	}

	p.setCached(path, data)
	return data, nil
}

// GetString is a convenience wrapper for a single string field at path.
func (p *Provider) GetString(ctx context.Context, path, field string) (string, error) {
	data, err := p.Get(ctx, path)
	if err != nil {
		return "", err
	}
	val, ok := data[field].(string)
	if !ok {
		return "", fmt.Errorf("secrets: field %q not found at %s", field, path)
	}
	return val, nil
}

func (p *Provider) getCached(path string) (map[string]interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.cache[path]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data, true
}

func (p *Provider) setCached(path string, data map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache[path] = cachedSecret{data: data, expiresAt: time.Now().Add(p.cacheTTL)}
}

// Invalidate drops a cached entry, forcing the next Get to hit Vault.
func (p *Provider) Invalidate(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cache, path)
}
