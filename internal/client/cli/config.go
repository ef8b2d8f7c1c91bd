package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultBaseURL = "http://localhost:8080"

// Config is the on-disk CLI configuration.
type Config struct {
	BaseURL     string `yaml:"base_url"`
	SessionFile string `yaml:"session_file"`
}

// DefaultConfig points at a local server and keeps the session under the
// user's config directory.
func DefaultConfig() Config {
	return Config{
		BaseURL:     defaultBaseURL,
		SessionFile: filepath.Join(configDir(), "session.json"),
	}
}

// LoadConfig reads path over the defaults. An empty path falls back to the
// default config file, which may be absent; an explicit path must exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(configDir(), "config.yaml")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var file Config
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if file.BaseURL != "" {
		cfg.BaseURL = file.BaseURL
	}
	if file.SessionFile != "" {
		cfg.SessionFile = expandHome(file.SessionFile)
	}

	return cfg, nil
}

func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".authgate"
	}
	return filepath.Join(dir, "authgate")
}

func expandHome(p string) string {
	if len(p) < 2 || p[:2] != "~/" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
