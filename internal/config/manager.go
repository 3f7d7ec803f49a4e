package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	logx "modwatch/pkg/logx"
)

// Manager loads the config once at startup: .env files, then the optional
// config file, then environment overrides. There is no hot reload.
type Manager struct {
	path   string
	lookup func(string) (string, bool)
	log    logx.Logger

	mu  sync.RWMutex
	cfg *Config
}

// NewManager reads from path; an empty path means environment-only.
func NewManager(path string) *Manager {
	return &Manager{path: strings.TrimSpace(path), lookup: os.LookupEnv}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// SetLookup replaces the environment lookup (tests).
func (m *Manager) SetLookup(fn func(string) (string, bool)) {
	if fn != nil {
		m.lookup = fn
	}
}

func (m *Manager) Path() string { return m.path }

// Parse decodes the config file strictly. A blank path yields an empty Config.
func (m *Manager) Parse() (*Config, error) {
	if m.path == "" {
		return &Config{}, nil
	}
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return Decode(m.path, b)
}

// Decode parses data as JSON, JSONC or YAML (picked by the extension of
// name), rejecting unknown keys and trailing data.
func Decode(name string, data []byte) (*Config, error) {
	jb, format, err := coerceToJSONBytes(name, data)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(jb)) == 0 {
		return &Config{}, nil
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%s config %s: %w", format, name, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("%s config %s: trailing data", format, name)
		}
		return nil, err
	}
	return &cfg, nil
}

// Load runs the full startup sequence and validates the result.
func (m *Manager) Load() (*Config, error) {
	if err := loadEnvFiles(m.lookup); err != nil {
		return nil, err
	}
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg, m.lookup)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	if !m.log.IsZero() {
		m.log.Debug("config loaded", Summary(cfg, m.path)...)
	}
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// loadEnvFiles loads ENV_FILE when set, otherwise .env.local and .env.
// Already-set variables win; missing files are ignored.
func loadEnvFiles(lookup func(string) (string, bool)) error {
	if envFile, ok := lookup("ENV_FILE"); ok && strings.TrimSpace(envFile) != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}
