package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Load returns Default() overlaid with the file at path (if path is not
// empty) and then the environment, and validates the result.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		var err error
		if s, err = FromFile(path); err != nil {
			return Settings{}, err
		}
	}
	ApplyEnv(&s, os.LookupEnv)
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid config: %w", err)
	}
	return s, nil
}

// FromFile loads settings from a file, auto-detecting format by extension.
// Supported extensions: .yaml, .yml, .json
func FromFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Settings{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML data over the defaults.
func FromYAML(data []byte) (Settings, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Settings{}, fmt.Errorf("parse yaml: %w", err)
	}
	return Decode(m)
}

// FromJSON parses JSON data over the defaults.
func FromJSON(data []byte) (Settings, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Settings{}, fmt.Errorf("parse json: %w", err)
	}
	return Decode(m)
}

// Decode overlays raw onto Default(). Durations accept Go duration strings
// ("5s"), lists accept comma-separated strings, and unknown keys are errors.
func Decode(raw map[string]any) (Settings, error) {
	s := Default()
	if len(raw) == 0 {
		return s, nil
	}

	// Lists replace the defaults rather than merging into them.
	if _, ok := raw["sensitive_actions"]; ok {
		s.SensitiveActions = nil
	}
	if server, ok := raw["server"].(map[string]any); ok {
		if _, ok := server["cors_origins"]; ok {
			s.Server.CORSOrigins = nil
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &s,
	})
	if err != nil {
		return Settings{}, fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return Settings{}, fmt.Errorf("decode config: %w", err)
	}
	return s, nil
}

// ApplyEnv overrides settings from environment variables read via lookup.
func ApplyEnv(s *Settings, lookup func(string) (string, bool)) {
	if v, ok := lookup("AGENTFLOW_OPENAI_API_KEY"); ok && v != "" {
		s.LLM.APIKey = v
	} else if v, ok := lookup("OPENAI_API_KEY"); ok && v != "" && s.LLM.APIKey == "" {
		s.LLM.APIKey = v
	}
	if v, ok := lookup("AGENTFLOW_OPENAI_BASE_URL"); ok && v != "" {
		s.LLM.BaseURL = v
	}
	if v, ok := lookup("AGENTFLOW_CLASSIFIER"); ok && v != "" {
		s.Classifier = v
	}
	if v, ok := lookup("AGENTFLOW_STORE"); ok && v != "" {
		s.Store.Backend = v
	}
	if v, ok := lookup("AGENTFLOW_SQLITE_PATH"); ok && v != "" {
		s.Store.SQLitePath = v
	}
	if v, ok := lookup("AGENTFLOW_REDIS_ADDR"); ok && v != "" {
		s.Store.Redis.Addr = v
	}
	if v, ok := lookup("AGENTFLOW_LOG_LEVEL"); ok && v != "" {
		s.Log.Level = v
	}
	if v, ok := lookup("AGENTFLOW_SERVER_ADDR"); ok && v != "" {
		s.Server.Addr = v
	}
}
