// Package config loads and hot-reloads the YAML configuration that
// drives discovery, ownership, drift, and dashboard generation.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/rsionnach/nthlayer/internal/logging"
)

// ServerConfig configures the webhook/API HTTP listener.
type ServerConfig struct {
	Host                 string        `yaml:"host"`
	Port                 int           `yaml:"port"`
	ReadTimeout          time.Duration `yaml:"read_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	CORSOrigins          []string      `yaml:"cors_origins"`
	WebhookMaxConcurrent int           `yaml:"webhook_max_concurrent"`
}

// ProviderConfig is the generic settings block for a single discovery,
// ownership, or metrics provider entry.
type ProviderConfig struct {
	Name    string                 `yaml:"name"`
	Enabled bool                   `yaml:"enabled"`
	Weight  float64                `yaml:"weight,omitempty"`
	Timeout time.Duration          `yaml:"timeout"`
	Options map[string]interface{} `yaml:"options,omitempty"`
}

// IdentityConfig configures the identity resolver's resolution ladder,
// per §6's `identity.*` configuration keys.
type IdentityConfig struct {
	FuzzyThreshold   float64           `yaml:"fuzzy_threshold"`
	ExplicitMappings map[string]string `yaml:"explicit_mappings,omitempty"` // "raw@provider" -> canonical
	StrongAttrs      []string          `yaml:"strong_attrs,omitempty"`
	WeakAttrs        []string          `yaml:"weak_attrs,omitempty"`
	WeakMatchCount   int               `yaml:"weak_match_count"`
}

// DiscoveryConfig configures the dependency discovery orchestrator.
type DiscoveryConfig struct {
	Providers     []ProviderConfig `yaml:"providers"`
	MaxWorkers    int              `yaml:"max_workers"`
	MaxConcurrent int              `yaml:"max_concurrent"`
	Timeout       time.Duration    `yaml:"timeout"`
	RetryAttempts int              `yaml:"retry_attempts"`
}

// OwnershipConfig configures the ownership resolver.
type OwnershipConfig struct {
	Providers        []ProviderConfig `yaml:"providers"`
	ConfidenceFloor  float64          `yaml:"confidence_floor"`
	FallbackOwner    string           `yaml:"fallback_owner"`
	AttributeNoOwner bool             `yaml:"attribute_no_owner"`
}

// DriftConfig configures the drift analyzer.
type DriftConfig struct {
	MetricsBackendURL  string        `yaml:"metrics_backend_url"`
	DefaultWindow      time.Duration `yaml:"default_window"`
	MinDataPoints      int           `yaml:"min_data_points"`
	WarnBudgetDays     float64       `yaml:"warn_budget_days"`
	CriticalBudgetDays float64       `yaml:"critical_budget_days"`
}

// OrchestratorConfig configures artifact generation and the output sink.
type OrchestratorConfig struct {
	OutputDir    string `yaml:"output_dir"`
	GCSBucket    string `yaml:"gcs_bucket,omitempty"`
	DryRun       bool   `yaml:"dry_run"`
	RequireApply bool   `yaml:"require_apply"`
}

// DeployEventsConfig configures webhook ingestion and correlation.
type DeployEventsConfig struct {
	SQLitePath        string        `yaml:"sqlite_path"`
	WebhookSecret     string        `yaml:"webhook_secret"`
	CorrelationWindow time.Duration `yaml:"correlation_window"`
	EtcdEndpoints     []string      `yaml:"etcd_endpoints,omitempty"`
}

// SecretsConfig configures the Vault-backed secret provider.
type SecretsConfig struct {
	VaultAddr  string `yaml:"vault_addr"`
	VaultRole  string `yaml:"vault_role"`
	MountPath  string `yaml:"mount_path"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// NotificationConfig configures outbound owner/on-call notifications.
type NotificationConfig struct {
	SMTPHost  string `yaml:"smtp_host"`
	SMTPPort  int    `yaml:"smtp_port"`
	FromEmail string `yaml:"from_email"`
}

// Config is the top-level NthLayer configuration document.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	LogLevel      string              `yaml:"log_level"`
	SpecsDir      string              `yaml:"specs_dir"`
	// CacheTTL governs the resolver (identity) and discovery caches.
	// Zero falls back to cache.DefaultTTL (300s).
	CacheTTL      time.Duration       `yaml:"cache_ttl"`
	Identity      IdentityConfig      `yaml:"identity"`
	Discovery     DiscoveryConfig     `yaml:"discovery"`
	Ownership     OwnershipConfig     `yaml:"ownership"`
	Drift         DriftConfig         `yaml:"drift"`
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator"`
	DeployEvents  DeployEventsConfig  `yaml:"deploy_events"`
	Secrets       SecretsConfig       `yaml:"secrets"`
	Notifications NotificationConfig  `yaml:"notifications"`
}

// ChangeCallback is invoked with the newly loaded config after a
// successful hot-reload.
type ChangeCallback func(*Config)

// Manager loads Config from YAML and watches the source file for
// changes, re-validating and notifying subscribers on every reload.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	path      string
	watcher   *fsnotify.Watcher
	callbacks []ChangeCallback
}

// NewManager loads path and starts watching it for changes.
func NewManager(path string) (*Manager, error) {
	m := &Manager{path: path}

	if err := m.Load(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	m.watcher = watcher

	go m.watchChanges()
	return m, nil
}

// Load reads and validates the config file from disk.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", m.path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", m.path, err)
	}

	if err := validate(cfg); err != nil {
		return fmt.Errorf("config: invalid %s: %w", m.path, err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns the current configuration snapshot.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// OnChange registers a callback fired after every successful reload.
func (m *Manager) OnChange(cb ChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Close stops the file watcher.
func (m *Manager) Close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

func (m *Manager) watchChanges() {
	logger := logging.GetLogger()
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := m.Load(); err != nil {
				logger.Error("config reload failed", logging.String("path", m.path), logging.Err(err))
				continue
			}
			logger.Info("config reloaded", logging.String("path", m.path))

			m.mu.RLock()
			cfg := m.config
			callbacks := append([]ChangeCallback(nil), m.callbacks...)
			m.mu.RUnlock()

			for _, cb := range callbacks {
				cb(cfg)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("config watcher error", logging.Err(err))
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Discovery.MaxWorkers <= 0 {
		return fmt.Errorf("discovery.max_workers must be positive")
	}
	if cfg.Ownership.ConfidenceFloor < 0 || cfg.Ownership.ConfidenceFloor > 1 {
		return fmt.Errorf("ownership.confidence_floor must be in [0,1]")
	}
	return nil
}

// Default returns the configuration used when no file value is given
// for a field, matching the spec's documented defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			CORSOrigins:  []string{"*"},
		},
		LogLevel: "info",
		SpecsDir: "./specs",
		CacheTTL: 300 * time.Second,
		Identity: IdentityConfig{
			FuzzyThreshold: 0.85,
			WeakMatchCount: 2,
		},
		Discovery: DiscoveryConfig{
			MaxWorkers:    8,
			MaxConcurrent: 16,
			Timeout:       5 * time.Second,
			RetryAttempts: 3,
		},
		Ownership: OwnershipConfig{
			ConfidenceFloor: 0.5,
			FallbackOwner:   "unassigned",
		},
		Drift: DriftConfig{
			DefaultWindow:      30 * 24 * time.Hour,
			MinDataPoints:      7,
			WarnBudgetDays:     14,
			CriticalBudgetDays: 3,
		},
		Orchestrator: OrchestratorConfig{
			OutputDir: "./generated",
		},
		DeployEvents: DeployEventsConfig{
			SQLitePath:        "./nthlayer.db",
			CorrelationWindow: 10 * time.Minute,
		},
		Secrets: SecretsConfig{
			MountPath: "secret",
			CacheTTL:  5 * time.Minute,
		},
	}
}
