// Package config provides configuration management for the shibbolizer
// server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/vyrodovalexey/shibbolizer/internal/auth"
)

// Default configuration values.
const (
	DefaultServerPort      = 8080
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsEnabled  = true
	DefaultChallenge       = true
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "APP_"

// Environment variable names.
const (
	EnvConfigFile        = "APP_CONFIG_FILE"
	EnvServerPort        = "APP_SERVER_PORT"
	EnvLogLevel          = "APP_LOG_LEVEL"
	EnvShutdownTimeout   = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled    = "APP_METRICS_ENABLED"
	EnvTrustProxyHeaders = "APP_TRUST_PROXY_HEADERS"
	EnvWatchConfig       = "APP_WATCH_CONFIG"
	EnvUsernameHeader    = "APP_USERNAME_HEADER"
	EnvClaimHeaders      = "APP_CLAIM_HEADERS"
	EnvMultiClaimHeaders = "APP_MULTI_CLAIM_HEADERS"
	EnvIssuer            = "APP_ISSUER"
	EnvScheme            = "APP_SCHEME"
	EnvChallenge         = "APP_CHALLENGE"
)

// DefaultConfigPaths lists the files tried, in order, when no config file
// is given explicitly.
var DefaultConfigPaths = []string{
	"shibbolizer.yaml",
	"shibbolizer.yml",
	"/etc/shibbolizer/shibbolizer.yaml",
}

// MultiClaimHeader configures a header that carries several values.
type MultiClaimHeader struct {
	Header    string `koanf:"header"`
	Parser    string `koanf:"parser"`
	Separator string `koanf:"separator"`
	TrimSpace bool   `koanf:"trim_space"`
	OmitEmpty bool   `koanf:"omit_empty"`
}

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort        int           `koanf:"server_port"`
	LogLevel          string        `koanf:"log_level"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	MetricsEnabled    bool          `koanf:"metrics_enabled"`
	TrustProxyHeaders bool          `koanf:"trust_proxy_headers"`
	WatchConfig       bool          `koanf:"watch_config"`

	// Header authentication settings.
	UsernameHeader    string             `koanf:"username_header"`
	ClaimHeaders      []string           `koanf:"claim_headers"`
	MultiClaimHeaders []MultiClaimHeader `koanf:"multi_claim_headers"`
	Issuer            string             `koanf:"issuer"`
	Scheme            string             `koanf:"scheme"`
	// Challenge rejects unauthenticated requests with 401. When false they
	// continue anonymously.
	Challenge bool `koanf:"challenge"`

	// File is the config file that was loaded, if any.
	File string `koanf:"-"`
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrMissingUsernameHeader  = errors.New("username header must be set")
	ErrInvalidMultiClaim      = errors.New("invalid multi claim header")
	ErrWatchWithoutFile       = errors.New("watch config requires a config file")
)

func defaultConfig() *Config {
	return &Config{
		ServerPort:      DefaultServerPort,
		LogLevel:        DefaultLogLevel,
		ShutdownTimeout: DefaultShutdownTimeout,
		MetricsEnabled:  DefaultMetricsEnabled,
		Issuer:          auth.DefaultIssuer,
		Scheme:          auth.DefaultScheme,
		Challenge:       DefaultChallenge,
	}
}

// Load reads configuration from defaults, an optional YAML file and
// APP_-prefixed environment variables, in increasing priority. path may be
// empty, in which case APP_CONFIG_FILE and DefaultConfigPaths are tried.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	configPath, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := processEnvLists(k); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.File = configPath

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// findConfigFile resolves the config file to load. An explicitly requested
// file must exist; the fallbacks are optional.
func findConfigFile(path string) (string, error) {
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return path, nil
	}

	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", nil
}

// envKey maps APP_USERNAME_HEADER to username_header.
func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

// processEnvLists converts list settings that arrived as plain strings from
// the environment into the shapes the YAML file produces.
func processEnvLists(k *koanf.Koanf) error {
	if s, ok := k.Get("claim_headers").(string); ok {
		if err := k.Set("claim_headers", splitList(s)); err != nil {
			return fmt.Errorf("setting claim_headers: %w", err)
		}
	}

	if s, ok := k.Get("multi_claim_headers").(string); ok {
		entries, err := parseMultiClaimEnv(s)
		if err != nil {
			return err
		}
		if err := k.Set("multi_claim_headers", entries); err != nil {
			return fmt.Errorf("setting multi_claim_headers: %w", err)
		}
	}

	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseMultiClaimEnv parses the compact environment form of
// multi_claim_headers: whitespace-separated "header[=separator]" entries.
// An entry without a separator uses the shibboleth parser.
func parseMultiClaimEnv(s string) ([]map[string]any, error) {
	fields := strings.Fields(s)
	out := make([]map[string]any, 0, len(fields))

	for _, f := range fields {
		header, sep, hasSep := strings.Cut(f, "=")
		if header == "" {
			return nil, fmt.Errorf("%w: %q has no header name", ErrInvalidMultiClaim, f)
		}

		entry := map[string]any{
			"header": header,
			"parser": string(auth.ParserShibboleth),
		}
		if hasSep {
			if sep == "" {
				return nil, fmt.Errorf("%w: %q has an empty separator", ErrInvalidMultiClaim, f)
			}
			entry["parser"] = string(auth.ParserSplit)
			entry["separator"] = sep
		}
		out = append(out, entry)
	}

	return out, nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateAuth(); err != nil {
		return err
	}

	return nil
}

// validateServer validates server-related configuration.
func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	if c.WatchConfig && c.File == "" {
		return ErrWatchWithoutFile
	}

	return nil
}

// validateAuth validates header authentication settings.
func (c *Config) validateAuth() error {
	if strings.TrimSpace(c.UsernameHeader) == "" {
		return ErrMissingUsernameHeader
	}

	for i, m := range c.MultiClaimHeaders {
		if strings.TrimSpace(m.Header) == "" {
			return fmt.Errorf("%w: entry %d has no header name", ErrInvalidMultiClaim, i)
		}
		if _, err := m.parser(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidMultiClaim, m.Header, err)
		}
	}

	return nil
}

func (m MultiClaimHeader) parser() (auth.Parser, error) {
	kind := auth.ParserKind(m.Parser)
	if kind == "" {
		kind = auth.ParserShibboleth
		if m.Separator != "" {
			kind = auth.ParserSplit
		}
	}

	return auth.NewParser(auth.ParserOptions{
		Kind:      kind,
		Separator: m.Separator,
		TrimSpace: m.TrimSpace,
		OmitEmpty: m.OmitEmpty,
	})
}

// HeaderOptions converts the header settings into authenticator options.
func (c *Config) HeaderOptions() (auth.Options, error) {
	opts := auth.Options{
		UsernameHeader: c.UsernameHeader,
		ClaimHeaders:   append([]string(nil), c.ClaimHeaders...),
		Issuer:         c.Issuer,
		Scheme:         c.Scheme,
	}

	for _, m := range c.MultiClaimHeaders {
		p, err := m.parser()
		if err != nil {
			return auth.Options{}, fmt.Errorf("multi claim header %s: %w", m.Header, err)
		}
		opts.MultiClaimHeaders = append(opts.MultiClaimHeaders, auth.MultiClaimHeader{
			Header: m.Header,
			Parser: p,
		})
	}

	return opts, nil
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}
