package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all bot configuration
type Config struct {
	Server     string `yaml:"server"`
	Port       int    `yaml:"port"`
	Bind       string `yaml:"bind"`
	ServerPass string `yaml:"server_pass"`
	Nick       string `yaml:"nick"`
	Username   string `yaml:"username"`
	Realname   string `yaml:"realname"`
	// Trigger is the prefix for channel commands. Empty disables them;
	// direct messages always work.
	Trigger string `yaml:"trigger"`
	// ReconnectDelay is in seconds.
	ReconnectDelay int      `yaml:"reconnect_delay"`
	Debug          bool     `yaml:"debug"`
	LogLevel       string   `yaml:"log_level"`
	DataDir        string   `yaml:"data_dir"`
	Modules        []string `yaml:"modules"`
	Scripts        []string `yaml:"scripts"`
}

// Default returns the configuration used when a field is absent.
func Default() *Config {
	return &Config{
		Server:         "127.0.0.1",
		Port:           6667,
		Nick:           "modnex",
		Username:       "modnex",
		Realname:       "modnex",
		ReconnectDelay: 2,
		LogLevel:       "info",
		DataDir:        "./data",
	}
}

// Load reads a YAML configuration file over the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.Nick == "" {
		return nil, fmt.Errorf("nick must not be empty")
	}

	return cfg, nil
}
