// Package settings provides the DB-backed runtime knobs the REST dashboard
// exposes under /settings: polling cadence, auto-close/escalation
// thresholds, the HIL backend to use, and investigation retention. Values
// live in user_settings as typed JSON rows, seeded with compiled-in
// defaults and overridable at runtime unless SETTINGS_READONLY pins them.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrReadOnly is returned by Set/Reset when the provider was constructed
// with readonly=true (SETTINGS_READONLY set).
var ErrReadOnly = errors.New("settings: read-only")

// ErrUnknownKey is returned by Set for a key Defaults does not define.
var ErrUnknownKey = errors.New("settings: unknown key")

const (
	KeyPollingInterval     = "polling_interval_seconds"
	KeyBatchSize           = "batch_size"
	KeyCorrelationWindow   = "correlation_window_seconds"
	KeyAutoCloseThreshold  = "auto_close_threshold"
	KeyEscalationThreshold = "escalation_threshold"
	KeyHILBackend          = "hil_backend"
	KeyRetentionDays       = "retention_days"
)

// Settings is the full set of runtime knobs, resolved from the database
// with any missing key filled in from Defaults().
type Settings struct {
	PollingInterval     time.Duration
	BatchSize           int
	CorrelationWindow   time.Duration
	AutoCloseThreshold  float64
	EscalationThreshold float64
	HILBackend          string
	RetentionDays       int
}

// Defaults returns the compiled-in defaults, matching spec.md's documented
// env-var fallbacks (SOCTALK_POLLING_INTERVAL, SOCTALK_BATCH_SIZE, etc.),
// themselves overridable at process start via LoadFromEnv.
func Defaults() Settings {
	return Settings{
		PollingInterval:     time.Second,
		BatchSize:           100,
		CorrelationWindow:   10 * time.Minute,
		AutoCloseThreshold:  0.2,
		EscalationThreshold: 0.7,
		HILBackend:          "dashboard",
		RetentionDays:       365,
	}
}

// yamlSettings is the YAML-friendly mirror of Settings: durations as
// seconds rather than time.Duration's nanosecond int64, so an exported
// file is legible and hand-editable.
type yamlSettings struct {
	PollingIntervalSeconds   float64 `yaml:"polling_interval_seconds"`
	BatchSize                int     `yaml:"batch_size"`
	CorrelationWindowSeconds float64 `yaml:"correlation_window_seconds"`
	AutoCloseThreshold       float64 `yaml:"auto_close_threshold"`
	EscalationThreshold      float64 `yaml:"escalation_threshold"`
	HILBackend               string  `yaml:"hil_backend"`
	RetentionDays            int     `yaml:"retention_days"`
}

// ExportYAML renders s as YAML, for operators to snapshot the running
// configuration outside the database.
func (s Settings) ExportYAML() ([]byte, error) {
	data, err := yaml.Marshal(yamlSettings{
		PollingIntervalSeconds:   s.PollingInterval.Seconds(),
		BatchSize:                s.BatchSize,
		CorrelationWindowSeconds: s.CorrelationWindow.Seconds(),
		AutoCloseThreshold:       s.AutoCloseThreshold,
		EscalationThreshold:      s.EscalationThreshold,
		HILBackend:               s.HILBackend,
		RetentionDays:            s.RetentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("settings: export yaml: %w", err)
	}
	return data, nil
}

// LoadSettingsFromYAML parses a file produced by ExportYAML, overlaying it
// onto Defaults() for any key absent from data.
func LoadSettingsFromYAML(data []byte) (Settings, error) {
	base := Defaults()
	ys := yamlSettings{
		PollingIntervalSeconds:   base.PollingInterval.Seconds(),
		BatchSize:                base.BatchSize,
		CorrelationWindowSeconds: base.CorrelationWindow.Seconds(),
		AutoCloseThreshold:       base.AutoCloseThreshold,
		EscalationThreshold:      base.EscalationThreshold,
		HILBackend:               base.HILBackend,
		RetentionDays:            base.RetentionDays,
	}
	if err := yaml.Unmarshal(data, &ys); err != nil {
		return Settings{}, fmt.Errorf("settings: parse yaml: %w", err)
	}
	return Settings{
		PollingInterval:     time.Duration(ys.PollingIntervalSeconds * float64(time.Second)),
		BatchSize:           ys.BatchSize,
		CorrelationWindow:   time.Duration(ys.CorrelationWindowSeconds * float64(time.Second)),
		AutoCloseThreshold:  ys.AutoCloseThreshold,
		EscalationThreshold: ys.EscalationThreshold,
		HILBackend:          ys.HILBackend,
		RetentionDays:       ys.RetentionDays,
	}, nil
}

// LoadFromEnv overlays process environment variables onto defaults, for use
// as the seed row the first time a deployment starts with an empty
// user_settings table.
func LoadFromEnv() Settings {
	s := Defaults()
	if v := os.Getenv("SOCTALK_POLLING_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			s.PollingInterval = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("SOCTALK_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.BatchSize = n
		}
	}
	if v := os.Getenv("SOCTALK_CORRELATION_WINDOW"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			s.CorrelationWindow = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("SOCTALK_AUTO_CLOSE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.AutoCloseThreshold = f
		}
	}
	if v := os.Getenv("SOCTALK_ESCALATION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.EscalationThreshold = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("SOCTALK_HIL_BACKEND")); v != "" {
		s.HILBackend = v
	}
	return s
}

// IsReadOnly reports whether SETTINGS_READONLY disables mutating calls,
// matching the original implementation's truthy-string parsing.
func IsReadOnly() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SETTINGS_READONLY")))
	switch v {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Provider reads and writes Settings against user_settings.
type Provider struct {
	db       *sql.DB
	readonly bool
}

// NewProvider returns a Provider bound to db. readonly should be
// settings.IsReadOnly() in production; tests can pass false to exercise
// mutation regardless of the process environment.
func NewProvider(db *sql.DB, readonly bool) *Provider {
	return &Provider{db: db, readonly: readonly}
}

// Get resolves the current Settings, falling back to Defaults() for any
// key absent from user_settings (e.g. a fresh deployment before Seed runs).
func (p *Provider) Get(ctx context.Context) (Settings, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT key, value FROM user_settings`)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: query: %w", err)
	}
	defer rows.Close()

	s := Defaults()
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return Settings{}, fmt.Errorf("settings: scan: %w", err)
		}
		if err := applyValue(&s, key, raw); err != nil {
			return Settings{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return Settings{}, fmt.Errorf("settings: rows: %w", err)
	}
	return s, nil
}

func applyValue(s *Settings, key string, raw []byte) error {
	switch key {
	case KeyPollingInterval:
		var secs float64
		if err := json.Unmarshal(raw, &secs); err != nil {
			return err
		}
		s.PollingInterval = time.Duration(secs * float64(time.Second))
	case KeyBatchSize:
		return json.Unmarshal(raw, &s.BatchSize)
	case KeyCorrelationWindow:
		var secs float64
		if err := json.Unmarshal(raw, &secs); err != nil {
			return err
		}
		s.CorrelationWindow = time.Duration(secs * float64(time.Second))
	case KeyAutoCloseThreshold:
		return json.Unmarshal(raw, &s.AutoCloseThreshold)
	case KeyEscalationThreshold:
		return json.Unmarshal(raw, &s.EscalationThreshold)
	case KeyHILBackend:
		return json.Unmarshal(raw, &s.HILBackend)
	case KeyRetentionDays:
		return json.Unmarshal(raw, &s.RetentionDays)
	default:
		// Unknown keys in the table are ignored rather than failing Get, so an
		// old row left over from a removed setting never blocks a read.
		return nil
	}
	return nil
}

// Set upserts a single key/value pair. Returns ErrReadOnly if the provider
// is read-only, ErrUnknownKey if key is not one Defaults defines.
func (p *Provider) Set(ctx context.Context, key string, value any) error {
	if p.readonly {
		return ErrReadOnly
	}
	if !isKnownKey(key) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("settings: marshal %s: %w", key, err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO user_settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, raw)
	if err != nil {
		return fmt.Errorf("settings: upsert %s: %w", key, err)
	}
	return nil
}

// Reset restores every key to its compiled-in default, row by row, matching
// the original's seed-with-overwrite semantics rather than truncating the
// table (so a concurrent reader never observes a momentarily-empty table).
func (p *Provider) Reset(ctx context.Context) error {
	if p.readonly {
		return ErrReadOnly
	}
	defaults := Defaults()
	for key, value := range defaultsAsMap(defaults) {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("settings: marshal default %s: %w", key, err)
		}
		if _, err := p.db.ExecContext(ctx, `
			INSERT INTO user_settings (key, value, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
			key, raw); err != nil {
			return fmt.Errorf("settings: reset %s: %w", key, err)
		}
	}
	return nil
}

func isKnownKey(key string) bool {
	_, ok := defaultsAsMap(Defaults())[key]
	return ok
}

func defaultsAsMap(s Settings) map[string]any {
	return map[string]any{
		KeyPollingInterval:     s.PollingInterval.Seconds(),
		KeyBatchSize:           s.BatchSize,
		KeyCorrelationWindow:   s.CorrelationWindow.Seconds(),
		KeyAutoCloseThreshold:  s.AutoCloseThreshold,
		KeyEscalationThreshold: s.EscalationThreshold,
		KeyHILBackend:          s.HILBackend,
		KeyRetentionDays:       s.RetentionDays,
	}
}
