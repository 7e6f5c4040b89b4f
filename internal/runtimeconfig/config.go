package runtimeconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DockerBinary  string   `yaml:"docker_binary"`
	DefaultImage  string   `yaml:"default_image"`
	DetachKeys    string   `yaml:"detach_keys"`
	Wrapper       string   `yaml:"wrapper"`
	CredentialsDB string   `yaml:"credentials_db"`
	Env           []string `yaml:"env"`
}

func Path() (string, error) {
	configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if configHome != "" {
		return filepath.Join(configHome, "abstruse", "config.yaml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "abstruse", "config.yaml"), nil
}

func Load() (Config, string, error) {
	path, err := Path()
	if err != nil {
		return Config{}, "", err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, path, nil
		}
		return Config{}, path, fmt.Errorf("read %s: %w", path, err)
	}

	cfg := Config{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, path, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, path, nil
}

// CredentialsDBPath resolves the credential database location, defaulting to
// the user data directory when unset in the config file.
func (c Config) CredentialsDBPath() (string, error) {
	if strings.TrimSpace(c.CredentialsDB) != "" {
		return c.CredentialsDB, nil
	}

	dataHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME"))
	if dataHome != "" {
		return filepath.Join(dataHome, "abstruse", "credentials.db"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "abstruse", "credentials.db"), nil
}
