package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultEnvFileName is the dotenv file holding the API credentials,
	// looked up in the home directory.
	DefaultEnvFileName = ".mpt-clone-agreement"
	// DefaultConfigFile is the optional TOML file read from the working directory.
	DefaultConfigFile = "agreementclone.toml"
	// EnvPrefix prefixes the environment overrides of the ambient settings.
	EnvPrefix = "CLONE"
)

// Credential keys. They keep the names used by existing env files.
const (
	KeyAPIURL      = "API_URL"
	KeyOpsToken    = "OPS_TOKEN"
	KeyVendorToken = "VENDOR_TOKEN"
	KeyTunnelURL   = "CSP_URL_TUNNEL"
	KeyTunnelToken = "CSP_TOKEN"
)

// Config holds all application configuration
type Config struct {
	// EnvFile is the dotenv file the credentials were read from.
	EnvFile     string
	OutputDir   string `validate:"required"`
	Credentials Credentials
	Log         LogConfig
	HTTP        HTTPConfig
	Ledger      LedgerConfig
	Storage     StorageConfig
	Metrics     MetricsConfig
}

// Credentials are the raw API credentials. Use Stage or SyncStage to obtain
// a validated shape.
type Credentials struct {
	APIURL      string
	OpsToken    string
	VendorToken string
	TunnelURL   string
	TunnelToken string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=console json"`
}

// HTTPConfig holds API client settings
type HTTPConfig struct {
	Timeout     time.Duration `validate:"gt=0"`
	MaxAttempts int           `validate:"gte=1"`
	BackoffBase time.Duration `validate:"gte=0"`
	// RateLimit is the maximum number of requests per second; 0 disables pacing.
	RateLimit float64 `validate:"gte=0"`
}

// LedgerConfig holds run ledger database settings
type LedgerConfig struct {
	Driver string `validate:"oneof=sqlite postgres none"`
	DSN    string
}

// Enabled reports whether runs are recorded.
func (l LedgerConfig) Enabled() bool {
	return l.Driver != "none"
}

// StorageConfig holds the optional S3-compatible artifact mirror settings.
type StorageConfig struct {
	Bucket       string
	Prefix       string
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
}

// Enabled reports whether a mirror bucket is configured.
func (s StorageConfig) Enabled() bool {
	return s.Bucket != ""
}

// MetricsConfig holds request metrics settings
type MetricsConfig struct {
	Enabled bool
}

type loader struct {
	envFile    string
	configFile string
	outputDir  string
}

// Option customises Load.
type Option func(*loader)

// WithEnvFile reads credentials from path instead of ~/.mpt-clone-agreement.
func WithEnvFile(path string) Option {
	return func(l *loader) {
		if path != "" {
			l.envFile = path
		}
	}
}

// WithConfigFile reads ambient settings from path instead of ./agreementclone.toml.
func WithConfigFile(path string) Option {
	return func(l *loader) {
		if path != "" {
			l.configFile = path
		}
	}
}

// WithOutputDir overrides the output directory. Settings derived from it,
// such as the default ledger path, follow.
func WithOutputDir(dir string) Option {
	return func(l *loader) {
		l.outputDir = dir
	}
}

// DefaultEnvFile returns ~/.mpt-clone-agreement.
func DefaultEnvFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultEnvFileName
	}
	return filepath.Join(home, DefaultEnvFileName)
}

// Load loads configuration from the env file, the TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables (credential keys by name, other keys with the CLONE_ prefix)
// 2. agreementclone.toml
// 3. The env file
// 4. Built-in defaults
// Missing files are not an error.
func Load(opts ...Option) (*Config, error) {
	l := &loader{envFile: DefaultEnvFile(), configFile: DefaultConfigFile}
	for _, opt := range opts {
		opt(l)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(l.envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("error reading env file %s: %w", l.envFile, err)
	}

	data, err := os.ReadFile(l.configFile)
	switch {
	case err == nil:
		v.SetConfigType("toml")
		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", l.configFile, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("error reading config file %s: %w", l.configFile, err)
	}

	for _, key := range []string{KeyAPIURL, KeyOpsToken, KeyVendorToken, KeyTunnelURL, KeyTunnelToken} {
		if err := v.BindEnv(strings.ToLower(key), key); err != nil {
			return nil, err
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if l.outputDir != "" {
		v.Set("output_dir", l.outputDir)
	}

	cfg := &Config{
		EnvFile:   l.envFile,
		OutputDir: v.GetString("output_dir"),
		Credentials: Credentials{
			APIURL:      strings.TrimSpace(v.GetString("api_url")),
			OpsToken:    strings.TrimSpace(v.GetString("ops_token")),
			VendorToken: strings.TrimSpace(v.GetString("vendor_token")),
			TunnelURL:   strings.TrimSpace(v.GetString("csp_url_tunnel")),
			TunnelToken: strings.TrimSpace(v.GetString("csp_token")),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		HTTP: HTTPConfig{
			Timeout:     v.GetDuration("http.timeout"),
			MaxAttempts: v.GetInt("http.max_attempts"),
			BackoffBase: v.GetDuration("http.backoff_base"),
			RateLimit:   v.GetFloat64("http.rate_limit"),
		},
		Ledger: LedgerConfig{
			Driver: strings.ToLower(v.GetString("ledger.driver")),
			DSN:    v.GetString("ledger.dsn"),
		},
		Storage: StorageConfig{
			Bucket:       v.GetString("storage.bucket"),
			Prefix:       strings.Trim(v.GetString("storage.prefix"), "/"),
			Endpoint:     v.GetString("storage.endpoint"),
			Region:       v.GetString("storage.region"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UseSSL:       v.GetBool("storage.use_ssl"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output_dir", "output")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("http.timeout", 60*time.Second)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.backoff_base", 2*time.Second)
	v.SetDefault("http.rate_limit", 0)
	v.SetDefault("ledger.driver", "sqlite")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.use_path_style", true)
	v.SetDefault("metrics.enabled", true)
}

// applyDefaults fills values derived from other settings
func applyDefaults(cfg *Config) {
	if cfg.Ledger.DSN == "" && cfg.Ledger.Driver == "sqlite" {
		cfg.Ledger.DSN = filepath.Join(cfg.OutputDir, "ledger.db")
	}
}

func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSetting, describe(err))
	}
	if c.Ledger.Driver == "postgres" && c.Ledger.DSN == "" {
		return fmt.Errorf("%w: ledger.dsn is required for the postgres driver", ErrInvalidSetting)
	}
	return nil
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}
