package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	API     APIConfig         `yaml:"api"`
	Auth    AuthConfig        `yaml:"auth"`
	History HistoryConfig     `yaml:"history"`
	Search  SearchConfig      `yaml:"search"`
	Import  ImportConfig      `yaml:"import"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.API.Validate(); err != nil {
		return err
	}
	if err := c.History.Validate(); err != nil {
		return err
	}
	return c.Search.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// APIConfig points the client at a NutriTrack deployment.
type APIConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the request timeout as a duration.
func (c *APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate validates the API configuration.
func (c *APIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.TimeoutSeconds, validation.Required, validation.Min(1)),
	)
}

// AuthConfig carries the stored credential, typically expanded from the
// environment (token from `nutriboard login`). Both fields empty means
// the session starts logged out.
type AuthConfig struct {
	UserID string `yaml:"user_id"`
	Token  string `yaml:"token"`
}

// Configured reports whether a credential is present.
func (c *AuthConfig) Configured() bool {
	return c.UserID != "" && c.Token != ""
}

// HistoryConfig holds the local history database path.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the history configuration.
func (c *HistoryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SearchConfig tunes the debounced catalog search.
type SearchConfig struct {
	DebounceMS int `yaml:"debounce_ms"`
	PageSize   int `yaml:"page_size"`
}

// Debounce returns the quiet period as a duration.
func (c *SearchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.DebounceMS, validation.Min(0)),
		validation.Field(&c.PageSize, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.PageSize > 100 {
		return fmt.Errorf("search: page_size %d exceeds the backend maximum of 100", c.PageSize)
	}
	return nil
}

// ImportConfig holds the meal-file drop directory. Empty disables the
// import command.
type ImportConfig struct {
	Dir string `yaml:"dir"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		API: APIConfig{
			BaseURL:        "http://localhost:8080",
			TimeoutSeconds: 15,
		},
		History: HistoryConfig{
			Path: "./nutriboard.db",
		},
		Search: SearchConfig{
			DebounceMS: 300,
			PageSize:   20,
		},
	}
}
