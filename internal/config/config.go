package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	goconfig "github.com/tpodg/go-config"
)

const (
	DefaultConfigFileName = ".serverkit.yaml"
	DefaultEnvFileName    = ".env"
	EnvPrefix             = "SERVERKIT"

	// SettingConfirm skips confirmation gates when true.
	SettingConfirm = "confirm"
	// SettingStrictEdits turns file edits that find nothing to change into errors.
	SettingStrictEdits = "strict_edits"
)

type Config struct {
	Servers []ServerConfig `yaml:"servers"`
	// Settings are the ambient operation parameters shared by all servers.
	Settings Settings `yaml:"settings"`
}

type UserConfig struct {
	Name         string `yaml:"name"`
	SSHKey       string `yaml:"ssh_key"`
	SudoPassword string `yaml:"sudo_password"`
}

type ServerConfig struct {
	Name             string        `yaml:"name"`
	Address          string        `yaml:"address"`
	User             UserConfig    `yaml:"user"`
	KnownHostsPath   string        `yaml:"known_hosts"`
	UseAgent         *bool         `yaml:"use_agent"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	// Settings override the top-level settings for this server.
	Settings Settings `yaml:"settings"`
}

// Server returns the server configured under name.
func (c *Config) Server(name string) (ServerConfig, bool) {
	for _, s := range c.Servers {
		if s.Name == name {
			return s, true
		}
	}
	return ServerConfig{}, false
}

// SettingsFor returns the ambient settings of a server: its own settings
// merged over the top-level ones.
func (c *Config) SettingsFor(s ServerConfig) Settings {
	return c.Settings.Merge(s.Settings)
}

// Load reads envFile into the process environment when it exists, then the
// configuration from cfgFile or the default locations, with SERVERKIT_*
// environment variables taking precedence over the file.
func Load(cfgFile, envFile string) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	path, err := findConfigFile(cfgFile)
	if err != nil {
		return nil, err
	}

	c := goconfig.New()
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for %s: %w", path, err)
		}
		c.WithProviders(&goconfig.Yaml{Path: absPath})
	}

	c.WithProviders(&goconfig.Env{Prefix: EnvPrefix})

	cfg := &Config{}
	if err := c.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// loadEnvFile loads the default env file only if present; an explicitly named
// file must exist. Variables already set in the environment are kept.
func loadEnvFile(envFile string) error {
	explicit := envFile != ""
	if !explicit {
		envFile = DefaultEnvFileName
	}
	if _, err := os.Stat(envFile); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read env file %s: %w", envFile, err)
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}
	return nil
}

func findConfigFile(cfgFile string) (string, error) {
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return "", fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
		return cfgFile, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, DefaultConfigFileName)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	if _, err := os.Stat(DefaultConfigFileName); err == nil {
		return DefaultConfigFileName, nil
	}

	return "", nil
}
