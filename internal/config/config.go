// Package config resolves the generator configuration from defaults, an
// optional YAML or TOML file and environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/senshinya/singbox-ruleset/internal/fetcher"
)

// Environment variables read by Load.
const (
	EnvMaxMindKey = "MAXMIND_KEY"
	EnvOutputDir  = "RULESET_OUTPUT_DIR"
)

// ConfigError reports a missing or invalid setting.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// Config captures the generator configuration.
type Config struct {
	OutputDir   string            `yaml:"output_dir" toml:"output_dir"`
	WorkDir     string            `yaml:"work_dir" toml:"work_dir"`
	KeepWork    bool              `yaml:"keep_work" toml:"keep_work"`
	LogLevel    string            `yaml:"log_level" toml:"log_level"`
	UserAgent   string            `yaml:"user_agent" toml:"user_agent"`
	HTTPTimeout Duration          `yaml:"http_timeout" toml:"http_timeout"`
	MetricsFile string            `yaml:"metrics_file" toml:"metrics_file"`
	MaxMindKey  string            `yaml:"maxmind_key" toml:"maxmind_key"`
	ASN         ASNConfig         `yaml:"asn" toml:"asn"`
	Source      SourceConfig      `yaml:"source" toml:"source"`
	Extra       map[string]string `yaml:"extra" toml:"extra"`
	Publish     PublishConfig     `yaml:"publish" toml:"publish"`
}

// ASNConfig selects where the ASN tables come from. Local files take
// precedence over the MaxMind download.
type ASNConfig struct {
	URL     string `yaml:"url" toml:"url"`
	IPv4CSV string `yaml:"ipv4_csv" toml:"ipv4_csv"`
	IPv6CSV string `yaml:"ipv6_csv" toml:"ipv6_csv"`
	MMDB    string `yaml:"mmdb" toml:"mmdb"`
}

// SourceConfig describes the upstream rule repository.
type SourceConfig struct {
	URL    string   `yaml:"url" toml:"url"`
	Dir    string   `yaml:"dir" toml:"dir"`   // already extracted archive, skips the download
	Root   string   `yaml:"root" toml:"root"` // rule directory relative to the archive root
	Skip   []string `yaml:"skip" toml:"skip"`
	Unwrap []string `yaml:"unwrap" toml:"unwrap"`
}

// PublishConfig names the repository the generated rule sets are served from.
type PublishConfig struct {
	Repo   string `yaml:"repo" toml:"repo"`
	Branch string `yaml:"branch" toml:"branch"`
}

// Duration accepts Go duration strings ("90s", "5m") in config files.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		OutputDir:   "rule",
		LogLevel:    "info",
		UserAgent:   fetcher.DefaultUserAgent,
		HTTPTimeout: Duration(fetcher.DefaultTimeout),
		ASN: ASNConfig{
			URL: fetcher.DefaultASNURL,
		},
		Source: SourceConfig{
			URL:    fetcher.DefaultRuleSourceURL,
			Root:   "ios_rule_script-master/rule/Clash",
			Skip:   []string{"CGB"},
			Unwrap: []string{"Assassin'sCreed", "Cloud"},
		},
		Extra: map[string]string{},
		Publish: PublishConfig{
			Repo:   "senshinya/singbox_ruleset",
			Branch: "main",
		},
	}
}

// Load resolves the configuration: defaults, then the file at path (if any),
// then environment overrides. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Field: "config", Message: "read " + path, Cause: err}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return &ConfigError{Field: "config", Message: "parse " + path, Cause: err}
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return &ConfigError{Field: "config", Message: "parse " + path, Cause: err}
		}
	default:
		return &ConfigError{Field: "config", Message: fmt.Sprintf("unsupported config format %q", filepath.Ext(path))}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvMaxMindKey)); v != "" {
		cfg.MaxMindKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOutputDir)); v != "" {
		cfg.OutputDir = v
	}
}

// NeedsASNDownload reports whether the ASN tables have to be fetched from MaxMind.
func (c Config) NeedsASNDownload() bool {
	return c.ASN.MMDB == "" && (c.ASN.IPv4CSV == "" || c.ASN.IPv6CSV == "")
}

// Validate checks the configuration for settings the run cannot do without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.OutputDir) == "" {
		return &ConfigError{Field: "output_dir", Message: "must not be empty"}
	}
	if (c.ASN.IPv4CSV == "") != (c.ASN.IPv6CSV == "") {
		return &ConfigError{Field: "asn", Message: "ipv4_csv and ipv6_csv must be set together"}
	}
	if c.NeedsASNDownload() {
		if strings.TrimSpace(c.MaxMindKey) == "" {
			return &ConfigError{Field: EnvMaxMindKey, Message: "not set"}
		}
		if !strings.Contains(c.ASN.URL, fetcher.LicenseKeyPlaceholder) {
			return &ConfigError{Field: "asn.url", Message: "must contain " + fetcher.LicenseKeyPlaceholder}
		}
	}
	if c.Source.Dir == "" && c.Source.URL == "" {
		return &ConfigError{Field: "source", Message: "url or dir is required"}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return &ConfigError{Field: "log_level", Message: "invalid", Cause: err}
	}
	if time.Duration(c.HTTPTimeout) < 0 {
		return &ConfigError{Field: "http_timeout", Message: "must not be negative"}
	}
	for name, u := range c.Extra {
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			return &ConfigError{Field: "extra", Message: fmt.Sprintf("invalid entry name %q", name)}
		}
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return &ConfigError{Field: "extra." + name, Message: "only http/https URLs are allowed"}
		}
	}
	if c.Publish.Repo == "" || c.Publish.Branch == "" {
		return &ConfigError{Field: "publish", Message: "repo and branch are required"}
	}
	return nil
}

// ParseLevel maps a log level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	err := level.UnmarshalText([]byte(strings.TrimSpace(s)))
	return level, err
}
