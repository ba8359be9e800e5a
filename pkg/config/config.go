package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Env holds the values that only come from the environment.
type Env struct {
	APIKey     string `env:"API_KEY, required"`
	ConfigPath string `env:"DETECTIVE_CONFIG, default=config/detective.yaml"`
	Addr       string `env:"DETECTIVE_ADDR"`
}

// Config represents the complete service configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Chat     ChatConfig     `yaml:"chat"`
	Live     LiveConfig     `yaml:"live"`
	Suspects []Suspect      `yaml:"suspects"`
	Logging  LoggingConfig  `yaml:"logging"`

	// APIKey is filled from the environment, never from the file.
	APIKey string `yaml:"-"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	BaseURL         string        `yaml:"base_url"` // Gemini API root, overridable for tests
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// AnalysisConfig configures the forensic narrative audit
type AnalysisConfig struct {
	Model         string        `yaml:"model"`
	Timeout       time.Duration `yaml:"timeout"`
	Search        bool          `yaml:"search"`
	EnforceSewage bool          `yaml:"enforce_sewage"`
	Prompt        string        `yaml:"prompt"` // empty uses the built-in prompt
}

// ChatConfig configures suspect interrogation
type ChatConfig struct {
	Model string `yaml:"model"`
}

// LiveConfig configures the realtime voice bridge
type LiveConfig struct {
	Model          string        `yaml:"model"`
	Voice          string        `yaml:"voice"`
	Prompt         string        `yaml:"prompt"`
	TranscriptSize int           `yaml:"transcript_size"`
	TrackTimeout   time.Duration `yaml:"track_timeout"`
	ICEServers     []string      `yaml:"ice_servers"`
}

// Suspect is an interrogation persona offered to the UI.
type Suspect struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	Role         string `yaml:"role" json:"role"`
	Description  string `yaml:"description" json:"description"`
	Image        string `yaml:"image" json:"image,omitempty"`
	SystemPrompt string `yaml:"system_prompt" json:"-"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			BaseURL:         "https://generativelanguage.googleapis.com",
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Analysis: AnalysisConfig{
			Model:         "gemini-3-pro-preview",
			Timeout:       120 * time.Second,
			Search:        true,
			EnforceSewage: true,
		},
		Chat: ChatConfig{
			Model: "gemini-3-flash-preview",
		},
		Live: LiveConfig{
			Model:          "gemini-2.5-flash-native-audio-preview-09-2025",
			Voice:          "Charon",
			TranscriptSize: 5,
			TrackTimeout:   10 * time.Second,
			ICEServers:     []string{"stun:stun.l.google.com:19302"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads .env, the environment and the YAML file named by
// DETECTIVE_CONFIG. A missing file leaves the defaults in place.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var env Env
	if err := envconfig.Process(ctx, &env); err != nil {
		return nil, err
	}

	cfg, err := LoadFile(env.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.APIKey = env.APIKey
	if env.Addr != "" {
		cfg.Server.Addr = env.Addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFile reads and parses the configuration file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("API_KEY is required")
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis config: %w", err)
	}

	if c.Chat.Model == "" {
		return fmt.Errorf("chat config: model cannot be empty")
	}

	if err := c.Live.Validate(); err != nil {
		return fmt.Errorf("live config: %w", err)
	}

	seen := make(map[string]bool, len(c.Suspects))
	for i, s := range c.Suspects {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("suspects[%d]: %w", i, err)
		}
		if seen[s.ID] {
			return fmt.Errorf("suspects[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Suspect looks up a persona by id.
func (c *Config) Suspect(id string) (Suspect, bool) {
	for _, s := range c.Suspects {
		if s.ID == id {
			return s, true
		}
	}
	return Suspect{}, false
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}

	if s.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if s.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout cannot be negative, got %s", s.ShutdownTimeout)
	}

	if s.MaxBodyBytes < 1024 {
		return fmt.Errorf("max_body_bytes must be at least 1024, got %d", s.MaxBodyBytes)
	}

	return nil
}

// Validate validates analysis configuration
func (a *AnalysisConfig) Validate() error {
	if a.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if a.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", a.Timeout)
	}

	return nil
}

// Validate validates live configuration
func (l *LiveConfig) Validate() error {
	if l.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if l.Voice == "" {
		return fmt.Errorf("voice cannot be empty")
	}

	if l.TranscriptSize < 1 {
		return fmt.Errorf("transcript_size must be at least 1, got %d", l.TranscriptSize)
	}

	if l.TrackTimeout <= 0 {
		return fmt.Errorf("track_timeout must be positive, got %s", l.TrackTimeout)
	}

	return nil
}

// Validate validates a suspect entry
func (s *Suspect) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id cannot be empty")
	}

	if s.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if s.SystemPrompt == "" {
		return fmt.Errorf("system_prompt cannot be empty")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of: debug, info, warn, error, got %s", l.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got %s", l.Format)
	}

	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}
