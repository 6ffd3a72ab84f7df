// Package config loads the application settings: a YAML file under the
// user config directory merged with environment overrides. A local .env
// is honored at startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings is everything both entrypoints need.
type Settings struct {
	// DefaultProvider overrides the registry default when set.
	DefaultProvider string `yaml:"default_api"`
	// Plan selects the security-gate policy (free, basic, pro).
	Plan string `yaml:"plan"`
	// Mobile switches the timeout/size/truncation profile.
	Mobile bool `yaml:"mobile"`
	// Fallback enables the one-shot retry against the default provider.
	// The CLI turns this on; the server leaves it off.
	Fallback bool `yaml:"fallback"`
	// HistoryBackend is "jsonl" (default) or "sqlite".
	HistoryBackend string `yaml:"history_backend"`
	// HistoryPath overrides the conversation log location.
	HistoryPath string `yaml:"history_path"`
	// KeyStorePath overrides the credential file location.
	KeyStorePath string `yaml:"keystore_path"`
	// Port is the HTTP server listen port.
	Port string `yaml:"port"`
}

// Dir returns the chispart config directory, creating it if needed.
func Dir() (string, error) {
	if dir := os.Getenv("CHISPART_CONFIG_DIR"); dir != "" {
		return dir, os.MkdirAll(dir, 0o700)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".config", "chispart")
	return dir, os.MkdirAll(dir, 0o700)
}

// Load reads the settings file and applies env overrides. A missing file
// yields defaults.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	s := &Settings{
		Plan:           "free",
		HistoryBackend: "jsonl",
		Port:           "8080",
	}

	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err == nil {
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parse config.yaml: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config.yaml: %w", err)
	}

	applyEnv(s)

	if s.HistoryPath == "" {
		if s.HistoryBackend == "sqlite" {
			s.HistoryPath = filepath.Join(dir, "chat_history.db")
		} else {
			s.HistoryPath = filepath.Join(dir, "chat_history.jsonl")
		}
	}
	if s.KeyStorePath == "" {
		s.KeyStorePath = filepath.Join(dir, "api_keys.json.b64")
	}
	return s, nil
}

// Save writes the settings file with private permissions.
func Save(s *Settings) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0o600)
}

func applyEnv(s *Settings) {
	if v := os.Getenv("CHISPART_DEFAULT_API"); v != "" {
		s.DefaultProvider = v
	}
	if v := os.Getenv("CHISPART_PLAN"); v != "" {
		s.Plan = v
	}
	if v := os.Getenv("CHISPART_MOBILE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.Mobile = b
		}
	}
	if v := os.Getenv("CHISPART_FALLBACK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.Fallback = b
		}
	}
	if v := os.Getenv("CHISPART_HISTORY"); v != "" {
		s.HistoryPath = v
	}
	if v := os.Getenv("PORT"); v != "" {
		s.Port = v
	}
}
