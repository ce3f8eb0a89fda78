// Package config provides configuration loading for blacksmith.
package config

import (
	"fmt"
	"time"

	"github.com/stack-auth/blacksmith/internal/generator"
	"github.com/stack-auth/blacksmith/internal/logging"
	"github.com/stack-auth/blacksmith/internal/workspace"
)

// defaultTargets is the fixed set of generation targets used when the config
// file names none. The order is significant: it is the processing order of
// every update run.
var defaultTargets = []string{
	"typescript",
	"python",
	"java",
	"csharp",
	"go",
	"ruby",
	"php",
	"rust",
	"kotlin",
	"swift",
}

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Workspaces WorkspacesConfig `koanf:"workspaces"`
	Generator  generator.Config `koanf:"generator"`
	Logging    logging.Config   `koanf:"logging"`
	Watcher    WatcherConfig    `koanf:"watcher"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// WorkspacesConfig locates the version-controlled workspaces. Targets is the
// fixed, ordered list of generation destinations; the specification
// workspace ("english") is always present and is not listed here.
type WorkspacesConfig struct {
	Root    string   `koanf:"root"`
	Targets []string `koanf:"targets"`
}

// WatcherConfig controls the specification file watcher.
type WatcherConfig struct {
	Enabled bool `koanf:"enabled"`

	// Debounce is how long to wait after the last file event before
	// staging.
	Debounce time.Duration `koanf:"debounce"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Workspaces.Root == "" {
		return fmt.Errorf("workspaces root is required")
	}
	if len(c.Workspaces.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}
	seen := make(map[string]bool, len(c.Workspaces.Targets))
	for _, t := range c.Workspaces.Targets {
		if t == "" {
			return fmt.Errorf("target ids must be non-empty")
		}
		if t == workspace.EnglishID {
			return fmt.Errorf("target id %q is reserved for the specification workspace", t)
		}
		if seen[t] {
			return fmt.Errorf("duplicate target id: %s", t)
		}
		seen[t] = true
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	// Generator config is validated when the LLM generator is constructed;
	// a daemon running with a stub generator never needs it.
	return nil
}
