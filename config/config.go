// Package config provides YAML configuration parsing for recwatch.
//
// This package enables running recwatch as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 3001
//	url: https://anc.ca.apm.activecommunities.com/burnaby/activity/search/detail/12345
//	interval: 30s
//	auto_start: true
//
//	fetch:
//	  timeout: 60s
//	  enroll_phrases: ["Enroll Now"]
//
//	notify:
//	  desktop: true
//	  auto_open: false
//
//	telegram:
//	  token: ${TELEGRAM_BOT_TOKEN:-}
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort     = 3001
	defaultInterval = 30 * time.Second

	// minInterval keeps an aggressive config from hammering the booking site.
	minInterval = 1 * time.Second
	maxInterval = 24 * time.Hour
)

// Config is the root configuration structure for recwatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "Rec Center Checker" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 3001.
	Port int `yaml:"port"`

	// URL is the activity page to poll. Defaults to the SDK's DefaultURL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Interval is the time between checks, e.g. "30s", "5m".
	// Must be between 1s and 24h. Defaults to 30s.
	Interval Duration `yaml:"interval"`

	// AutoStart starts polling as soon as the server is up.
	AutoStart bool `yaml:"auto_start"`

	// AllowedOrigins lists browser origins accepted on the live channel.
	// Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`

	Fetch    FetchConfig    `yaml:"fetch"`
	Notify   NotifyConfig   `yaml:"notify"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// FetchConfig controls how the activity page is loaded.
type FetchConfig struct {
	// Engine is "browser" (headless Chrome, the default) or "http".
	// The http engine reads static HTML only and cannot see enrollment on
	// script-rendered pages such as the default activity page.
	Engine string `yaml:"engine"`

	// BrowserPath is the Chrome executable for the browser engine.
	// Supports environment variable substitution. Empty searches the usual
	// install locations.
	BrowserPath string `yaml:"browser_path"`

	// Timeout bounds page navigation. Defaults to 60s.
	Timeout Duration `yaml:"timeout"`

	// Settle is the wait after navigation before the page is read by the
	// browser engine. Defaults to 3s; a negative value disables it.
	Settle Duration `yaml:"settle"`

	UserAgent string `yaml:"user_agent"`

	// EnrollPhrases default to ["Enroll Now"].
	EnrollPhrases []string `yaml:"enroll_phrases"`

	// FullPhrases default to ["Full", "currently full"].
	FullPhrases []string `yaml:"full_phrases"`
}

// NotifyConfig selects local alerts. Both alerts default to on.
type NotifyConfig struct {
	Desktop  *bool  `yaml:"desktop"`
	AutoOpen *bool  `yaml:"auto_open"`
	Title    string `yaml:"title"`
}

// TelegramConfig configures the chat bot.
type TelegramConfig struct {
	// Token starts the bot at boot when set.
	// Supports environment variable substitution.
	Token string `yaml:"token"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		varName := submatches[1]
		hasDefault := submatches[2] != ""

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return submatches[3]
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// LoadEnvFile loads KEY=value pairs from a dotenv file into the process
// environment. Variables already set are not overridden. A missing file is
// not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg, err := Parse(nil)
	if err != nil {
		// defaults are always valid
		panic(err)
	}
	return cfg
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in URL, Fetch.BrowserPath and
// Telegram.Token.
// Defaults are applied for Port (3001) and Interval (30s).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Interval == 0 {
		cfg.Interval = Duration(defaultInterval)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.Interval.Duration() < minInterval {
		return fmt.Errorf("interval must be at least %s, got %s", minInterval, c.Interval.Duration())
	}
	if c.Interval.Duration() > maxInterval {
		return fmt.Errorf("interval must not exceed %s, got %s", maxInterval, c.Interval.Duration())
	}

	if c.URL != "" {
		expanded, err := expandEnvVars(c.URL)
		if err != nil {
			return fmt.Errorf("url: %w", err)
		}
		c.URL = expanded

		parsedURL, err := url.Parse(c.URL)
		if err != nil {
			return fmt.Errorf("invalid url: %w", err)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("url scheme must be http or https, got %q", parsedURL.Scheme)
		}
		if parsedURL.Host == "" {
			return errors.New("url must include a host")
		}
	}

	token, err := expandEnvVars(c.Telegram.Token)
	if err != nil {
		return fmt.Errorf("telegram.token: %w", err)
	}
	c.Telegram.Token = token

	switch c.Fetch.Engine {
	case "", "browser", "http":
	default:
		return fmt.Errorf("fetch.engine must be browser or http, got %q", c.Fetch.Engine)
	}
	if c.Fetch.BrowserPath != "" {
		expanded, err := expandEnvVars(c.Fetch.BrowserPath)
		if err != nil {
			return fmt.Errorf("fetch.browser_path: %w", err)
		}
		c.Fetch.BrowserPath = expanded
	}

	if t := c.Fetch.Timeout.Duration(); t != 0 && t < time.Second {
		return fmt.Errorf("fetch.timeout must be at least 1s if specified, got %s", t)
	}

	for i, p := range c.Fetch.EnrollPhrases {
		if p == "" {
			return fmt.Errorf("fetch.enroll_phrases[%d]: phrase cannot be empty", i)
		}
	}
	for i, p := range c.Fetch.FullPhrases {
		if p == "" {
			return fmt.Errorf("fetch.full_phrases[%d]: phrase cannot be empty", i)
		}
	}

	for i, origin := range c.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("allowed_origins[%d]: %q is not an origin like https://host:port", i, origin)
		}
	}

	return nil
}
