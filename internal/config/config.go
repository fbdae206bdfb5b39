// Package config holds the settings shared by the legaldoc commands.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	jinja "github.com/AlexanderGrooff/legaldoc-jinja"
)

// Output formats understood by the render commands.
const (
	FormatText = "text"
	FormatHTML = "html"
)

// Config contains all configuration options for rendering documents.
type Config struct {
	// LogLevel controls the verbosity of logging (debug, info, warn, error)
	LogLevel string
	// Strict makes missing variables an error instead of empty output
	Strict bool
	// Format selects the output format: text or html (Markdown converted and sanitised)
	Format string
	// MaxDepth limits how deeply template blocks may nest
	MaxDepth int
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Strict:   false,
		Format:   FormatText,
		MaxDepth: jinja.DefaultMaxDepth,
	}
}

// FromEnvironment creates a configuration from environment variables,
// starting from Default. Unparsable numbers are ignored.
func FromEnvironment() *Config {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) *Config {
	config := Default()

	// LEGALDOC_LOG_LEVEL
	if val, ok := lookup("LEGALDOC_LOG_LEVEL"); ok && val != "" {
		config.LogLevel = strings.ToLower(strings.TrimSpace(val))
	}

	// LEGALDOC_STRICT
	if val, ok := lookup("LEGALDOC_STRICT"); ok && val != "" {
		config.Strict = parseBool(val)
	}

	// LEGALDOC_FORMAT
	if val, ok := lookup("LEGALDOC_FORMAT"); ok && val != "" {
		config.Format = strings.ToLower(strings.TrimSpace(val))
	}

	// LEGALDOC_MAX_DEPTH
	if val, ok := lookup("LEGALDOC_MAX_DEPTH"); ok && val != "" {
		if depth, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			config.MaxDepth = depth
		}
	}

	return config
}

var validLogLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, ok := validLogLevels[c.LogLevel]; !ok {
		return fmt.Errorf("config: invalid log level %q", c.LogLevel)
	}
	if c.Format != FormatText && c.Format != FormatHTML {
		return fmt.Errorf("config: invalid format %q (want %s or %s)", c.Format, FormatText, FormatHTML)
	}
	if c.MaxDepth <= 0 {
		return errors.New("config: max depth must be positive")
	}
	return nil
}

// SlogLevel returns the slog level for LogLevel, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	if lvl, ok := validLogLevels[c.LogLevel]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// EngineOptions translates the configuration into engine options.
func (c *Config) EngineOptions(logger *slog.Logger) []jinja.Option {
	undefined := jinja.UndefinedLenient
	if c.Strict {
		undefined = jinja.UndefinedStrict
	}
	return []jinja.Option{
		jinja.WithUndefined(undefined),
		jinja.WithMaxDepth(c.MaxDepth),
		jinja.WithLogger(logger),
	}
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
