package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "linkkibot/pkg/logx"
)

// Environment variables understood on top of the config file. The names are
// the ones the bot has always been deployed with.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvChatID      = "TELEGRAM_CHAT_ID"
	EnvEventsURL   = "EVENTS_URL"
	EnvSampleURL   = "SAMPLE_URL"
	EnvBotToken    = "TELEGRAM_BOT_TOKEN"
)

const defaultSecretsDir = "/var/run/secrets"

// LookupEnv matches os.LookupEnv.
type LookupEnv func(key string) (string, bool)

type ConfigManager struct {
	path string
	env  LookupEnv
	log  logx.Logger

	mu  sync.RWMutex
	cfg *Config
}

// NewConfigManager reads path (JSON or YAML). An empty path means the process
// is configured from the environment alone.
func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: strings.TrimSpace(path), env: os.LookupEnv}
}

func (m *ConfigManager) SetLogger(log logx.Logger) { m.log = log }

// SetEnv replaces the environment lookup (tests).
func (m *ConfigManager) SetEnv(fn LookupEnv) {
	if fn == nil {
		fn = func(string) (string, bool) { return "", false }
	}
	m.env = fn
}

// Parse decodes the config file strictly. It does not apply defaults, the
// environment or secrets.
func (m *ConfigManager) Parse() (*Config, error) {
	if m.path == "" {
		return &Config{}, nil
	}
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	jb, _, err := coerceToJSONBytes(m.path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

// Load parses the file, overlays environment and secrets, fills defaults and
// validates the result.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.applyEnv(cfg)
	if err := m.applySecrets(cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	if !m.log.IsZero() {
		m.log.Debug("config loaded", Summary(cfg)...)
	}
	return cfg, nil
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *ConfigManager) lookup(key string) (string, bool) {
	if m.env == nil {
		return "", false
	}
	v, ok := m.env(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (m *ConfigManager) applyEnv(cfg *Config) {
	if v, ok := m.lookup(EnvDatabaseURL); ok {
		cfg.Storage.DSN = v
		if strings.TrimSpace(cfg.Storage.Driver) == "" {
			cfg.Storage.Driver = "postgres"
		}
	}
	if v, ok := m.lookup(EnvChatID); ok {
		cfg.Telegram.ChatIDs = splitList(v)
	}
	if v, ok := m.lookup(EnvEventsURL); ok {
		cfg.Feed.URL = v
	}
	if v, ok := m.lookup(EnvSampleURL); ok {
		cfg.Feed.SampleURL = v
	}
}

// applySecrets resolves the bot token: secret file first, then the
// environment, then whatever the config file carried.
func (m *ConfigManager) applySecrets(cfg *Config) error {
	dir := strings.TrimSpace(cfg.Secrets.Dir)
	if dir == "" {
		dir = defaultSecretsDir
	}
	tok, err := readSecret(dir, EnvBotToken)
	if err != nil {
		return err
	}
	if tok != "" {
		cfg.Telegram.Token = tok
		return nil
	}
	if v, ok := m.lookup(EnvBotToken); ok {
		cfg.Telegram.Token = v
	}
	return nil
}

// readSecret reads <dir>/<lowercased name>. A missing file is not an error.
func readSecret(dir, name string) (string, error) {
	path := filepath.Join(dir, strings.ToLower(name))
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", path, err)
	}
	return strings.TrimSpace(string(b)), nil
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
