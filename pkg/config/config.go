// Package config loads agentflow settings from YAML or JSON files and the
// environment.
//
// Files are decoded with mapstructure on top of Default(), so a file only
// needs the keys it changes:
//
//	max_retries: 2
//	store:
//	  backend: sqlite
//	  sqlite_path: /var/lib/agentflow/sessions.db
//	tool_timeout: 3s
package config

import (
	"errors"
	"fmt"
	"time"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Classifiers.
const (
	ClassifierRules = "rules"
	ClassifierLLM   = "llm"
)

// Settings is the complete agentflow configuration.
type Settings struct {
	MaxRetries          int           `mapstructure:"max_retries" json:"max_retries"`
	ApprovalThreshold   float64       `mapstructure:"approval_threshold" json:"approval_threshold"`
	MinConfidence       float64       `mapstructure:"min_confidence" json:"min_confidence"`
	SensitiveActions    []string      `mapstructure:"sensitive_actions" json:"sensitive_actions"`
	StepBudget          int           `mapstructure:"step_budget" json:"step_budget"`
	ToolTimeout         time.Duration `mapstructure:"tool_timeout" json:"tool_timeout"`
	ClassifierTimeout   time.Duration `mapstructure:"classifier_timeout" json:"classifier_timeout"`
	InteractiveApproval bool          `mapstructure:"interactive_approval" json:"interactive_approval"`
	Classifier          string        `mapstructure:"classifier" json:"classifier"`

	Store     StoreSettings     `mapstructure:"store" json:"store"`
	LLM       LLMSettings       `mapstructure:"llm" json:"llm"`
	Server    ServerSettings    `mapstructure:"server" json:"server"`
	Log       LogSettings       `mapstructure:"log" json:"log"`
	Telemetry TelemetrySettings `mapstructure:"telemetry" json:"telemetry"`
}

// StoreSettings selects and configures the checkpoint backend.
type StoreSettings struct {
	Backend    string        `mapstructure:"backend" json:"backend"`
	SQLitePath string        `mapstructure:"sqlite_path" json:"sqlite_path"`
	Redis      RedisSettings `mapstructure:"redis" json:"redis"`
}

// RedisSettings configures the Redis store and session locks.
type RedisSettings struct {
	Addr     string        `mapstructure:"addr" json:"addr"`
	Password string        `mapstructure:"password" json:"-"`
	DB       int           `mapstructure:"db" json:"db"`
	Prefix   string        `mapstructure:"prefix" json:"prefix"`
	TTL      time.Duration `mapstructure:"ttl" json:"ttl"`
	// LockTTL bounds how long a crashed process keeps a session locked.
	// Held locks are renewed, so runs may take longer.
	LockTTL  time.Duration `mapstructure:"lock_ttl" json:"lock_ttl"`
}

// LLMSettings configures the OpenAI-compatible client.
type LLMSettings struct {
	APIKey      string  `mapstructure:"api_key" json:"-"`
	BaseURL     string  `mapstructure:"base_url" json:"base_url"`
	Model       string  `mapstructure:"model" json:"model"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" json:"temperature"`
	MaxAttempts int     `mapstructure:"max_attempts" json:"max_attempts"`
}

// Enabled reports whether enough is configured to call a model.
func (l LLMSettings) Enabled() bool {
	return l.APIKey != "" || l.BaseURL != ""
}

// ServerSettings configures the HTTP front end.
type ServerSettings struct {
	Addr        string   `mapstructure:"addr" json:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
}

// LogSettings configures the process logger.
type LogSettings struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// TelemetrySettings toggles OpenTelemetry instrumentation.
type TelemetrySettings struct {
	Metrics bool `mapstructure:"metrics" json:"metrics"`
	Tracing bool `mapstructure:"tracing" json:"tracing"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		MaxRetries:          3,
		ApprovalThreshold:   0.8,
		MinConfidence:       0.5,
		SensitiveActions:    []string{"get_user_profile", "search_products"},
		StepBudget:          50,
		ToolTimeout:         5 * time.Second,
		ClassifierTimeout:   10 * time.Second,
		InteractiveApproval: true,
		Classifier:          ClassifierRules,
		Store: StoreSettings{
			Backend:    BackendMemory,
			SQLitePath: "agentflow.db",
			Redis: RedisSettings{
				Addr:    "localhost:6379",
				Prefix:  "agentflow:session:",
				LockTTL: 30 * time.Second,
			},
		},
		LLM: LLMSettings{
			Model:       "gpt-4o-mini",
			MaxTokens:   150,
			Temperature: 0.7,
			MaxAttempts: 3,
		},
		Server: ServerSettings{
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
		},
		Log: LogSettings{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate reports every invalid setting.
func (s Settings) Validate() error {
	var errs []error

	if s.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must be >= 0, got %d", s.MaxRetries))
	}
	if s.ApprovalThreshold < 0 || s.ApprovalThreshold > 1 {
		errs = append(errs, fmt.Errorf("approval_threshold must be in [0,1], got %g", s.ApprovalThreshold))
	}
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("min_confidence must be in [0,1], got %g", s.MinConfidence))
	}
	if s.StepBudget <= 0 {
		errs = append(errs, fmt.Errorf("step_budget must be > 0, got %d", s.StepBudget))
	}
	if s.ToolTimeout <= 0 {
		errs = append(errs, fmt.Errorf("tool_timeout must be > 0, got %s", s.ToolTimeout))
	}
	if s.ClassifierTimeout <= 0 {
		errs = append(errs, fmt.Errorf("classifier_timeout must be > 0, got %s", s.ClassifierTimeout))
	}

	switch s.Classifier {
	case ClassifierRules:
	case ClassifierLLM:
		if !s.LLM.Enabled() {
			errs = append(errs, errors.New("classifier llm requires llm.api_key or llm.base_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown classifier %q", s.Classifier))
	}

	switch s.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if s.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite backend"))
		}
	case BackendRedis:
		if s.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis backend"))
		}
		if s.Store.Redis.LockTTL <= 0 {
			errs = append(errs, errors.New("store.redis.lock_ttl must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", s.Store.Backend))
	}

	switch s.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", s.Log.Format))
	}

	return errors.Join(errs...)
}
