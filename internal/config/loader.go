package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// envPrefix namespaces the environment variables read by the loader.
	envPrefix = "BLACKSMITH_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Load loads configuration from a YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (BLACKSMITH_SERVER_PORT, BLACKSMITH_GENERATOR_MODEL, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// configPath may be empty, in which case only defaults and environment
// variables apply. A named file that does not exist is an error; the default
// path is probed silently.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	explicit := configPath != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(home, ".config", "blacksmith", "config.yaml")
		}
	}

	if configPath != "" {
		if err := loadFile(k, configPath, explicit); err != nil {
			return nil, err
		}
	}

	// Environment variables map prefix-stripped names onto config keys:
	// BLACKSMITH_SERVER_PORT -> server.port,
	// BLACKSMITH_GENERATOR_BASE_URL -> generator.base_url.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// loadFile reads one YAML config file into k. Opening once and validating
// through the file descriptor avoids a TOCTOU race between stat and read.
func loadFile(k *koanf.Koanf, path string, explicit bool) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stating config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// applyDefaults fills in missing configuration values.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8788
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Workspaces.Root == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Workspaces.Root = filepath.Join(home, ".blacksmith", "workspaces")
		}
	}
	if len(cfg.Workspaces.Targets) == 0 {
		cfg.Workspaces.Targets = append([]string(nil), defaultTargets...)
	}

	if cfg.Generator.BaseURL == "" {
		cfg.Generator.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "gpt-4o"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Watcher.Debounce == 0 {
		cfg.Watcher.Debounce = 500 * time.Millisecond
	}
}
