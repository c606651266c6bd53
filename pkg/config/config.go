/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Config represents the colstream configuration
type Config struct {
	Encode  Encode  `yaml:"encode"`
	Output  Output  `yaml:"output"`
	Archive Archive `yaml:"archive"`
	Server  Server  `yaml:"server"`
	Metrics Metrics `yaml:"metrics"`
	Logging Logging `yaml:"logging"`
}

// Encode controls how input is split and typed
type Encode struct {
	BatchSize                    int               `yaml:"batch_size"`
	Delimiter                    string            `yaml:"delimiter"`
	Types                        map[string]string `yaml:"types,omitempty"`
	Dictionary                   []string          `yaml:"dictionary,omitempty"`
	ErrorOnDictionaryReplacement bool              `yaml:"error_on_dictionary_replacement"`
}

// Output controls the stream file sink
type Output struct {
	BufferSize       int           `yaml:"buffer_size"`
	FsyncInterval    time.Duration `yaml:"fsync_interval"`
	FlushEachMessage bool          `yaml:"flush_each_message"`
}

// Archive locates the stream archive
type Archive struct {
	Dir string `yaml:"dir"`
}

// Server contains HTTP API settings
type Server struct {
	Bind           string `yaml:"bind"`
	Port           int    `yaml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	APIKey         string `yaml:"api_key,omitempty"`
	MaxConcurrent  int    `yaml:"max_concurrent_encodes"`
}

// Metrics contains metrics export settings
type Metrics struct {
	Textfile string        `yaml:"textfile,omitempty"`
	Interval time.Duration `yaml:"interval"` // textfile refresh while serving
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Encode: Encode{
			BatchSize: 1024,
			Delimiter: ",",
		},
		Output: Output{
			BufferSize: 64 * 1024,
		},
		Archive: Archive{
			Dir: "./archive",
		},
		Server: Server{
			Bind:           "127.0.0.1",
			Port:           8080,
			MaxUploadBytes: 64 << 20,
			MaxConcurrent:  8,
		},
		Metrics: Metrics{
			Interval: 30 * time.Second,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from the specified path. Keys missing from
// the file keep their default values.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values that cannot be caught by parsing
func (c *Config) Validate() error {
	if c.Encode.BatchSize <= 0 {
		return fmt.Errorf("encode.batch_size must be positive, got %d", c.Encode.BatchSize)
	}
	if utf8.RuneCountInString(c.Encode.Delimiter) != 1 {
		return fmt.Errorf("encode.delimiter must be a single character, got %q", c.Encode.Delimiter)
	}
	if c.Output.BufferSize < 0 {
		return fmt.Errorf("output.buffer_size must not be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxConcurrent < 0 {
		return fmt.Errorf("server.max_concurrent_encodes must not be negative")
	}
	if c.Metrics.Textfile != "" && c.Metrics.Interval <= 0 {
		return fmt.Errorf("metrics.interval must be positive when a textfile is set")
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	if f := c.Logging.Format; f != "" && f != "text" && f != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", f)
	}
	return nil
}

// Comma returns the delimiter as a rune
func (e Encode) Comma() rune {
	r, _ := utf8.DecodeRuneInString(e.Delimiter)
	if r == utf8.RuneError {
		return ','
	}
	return r
}

// SlogLevel parses the configured level
func (l Logging) SlogLevel() (slog.Level, error) {
	var level slog.Level
	name := l.Level
	if name == "" {
		name = "info"
	}
	if err := level.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// NewLogger returns a logger writing to w in the configured format
func (l Logging) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./colstream.yaml"
	}

	// For Linux/macOS, use ~/.config/colstream/config.yaml
	configDir := filepath.Join(homeDir, ".config", "colstream")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
