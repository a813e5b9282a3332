package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultPath is the config file looked up when no --config flag is given.
const DefaultPath = "rangefetch.yaml"

type Config struct {
	Endpoint  string          `mapstructure:"endpoint" yaml:"endpoint" toml:"endpoint" validate:"required,hostname_port"`
	Download  DownloadConfig  `mapstructure:"download" yaml:"download" toml:"download"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport" toml:"transport"`
	Retry     RetryConfig     `mapstructure:"retry" yaml:"retry" toml:"retry"`
	Digest    DigestConfig    `mapstructure:"digest" yaml:"digest" toml:"digest"`
	Log       LogConfig       `mapstructure:"log" yaml:"log" toml:"log"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store" toml:"store"`
	Serve     ServeConfig     `mapstructure:"serve" yaml:"serve" toml:"serve"`
}

type DownloadConfig struct {
	PacketSize        int     `mapstructure:"packet_size" yaml:"packet_size" toml:"packet_size" validate:"gt=0"`
	Workers           int     `mapstructure:"workers" yaml:"workers" toml:"workers" validate:"gte=1,lte=256"`
	RangeMode         string  `mapstructure:"range_mode" yaml:"range_mode" toml:"range_mode" validate:"oneof=inclusive legacy"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" toml:"requests_per_second" validate:"gte=0"`
	OutputURL         string  `mapstructure:"output_url" yaml:"output_url" toml:"output_url"`
}

type TransportConfig struct {
	DialTimeout      time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" toml:"dial_timeout" validate:"gt=0"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" toml:"read_timeout" validate:"gt=0"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" toml:"write_timeout" validate:"gt=0"`
	MaxResponseBytes int64         `mapstructure:"max_response_bytes" yaml:"max_response_bytes" toml:"max_response_bytes" validate:"gt=0"`
}

type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts" toml:"max_attempts" validate:"gte=1"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff" toml:"initial_backoff" validate:"gte=0"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff" toml:"max_backoff" validate:"gtefield=InitialBackoff"`
}

type DigestConfig struct {
	Algorithm string `mapstructure:"algorithm" yaml:"algorithm" toml:"algorithm" validate:"oneof=sha256 sha512"`
	Mode      string `mapstructure:"mode" yaml:"mode" toml:"mode" validate:"oneof=final streaming"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path" toml:"path" validate:"required"`
	Level         string `mapstructure:"level" yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout" toml:"include_stdout"`
}

type StoreConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" toml:"enabled"`
	Driver      string `mapstructure:"driver" yaml:"driver" toml:"driver" validate:"oneof=sqlite postgres"`
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path" toml:"sqlite_path" validate:"required_if=Driver sqlite"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn" toml:"postgres_dsn" validate:"required_if=Driver postgres"`
}

type ServeConfig struct {
	Listen     string `mapstructure:"listen" yaml:"listen" toml:"listen" validate:"required,hostname_port"`
	OriginFile string `mapstructure:"origin_file" yaml:"origin_file" toml:"origin_file"`
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"endpoint":        "endpoint",
	"packet-size":     "download.packet_size",
	"workers":         "download.workers",
	"range-mode":      "download.range_mode",
	"rps":             "download.requests_per_second",
	"output":          "download.output_url",
	"timeout":         "transport.read_timeout",
	"write-timeout":   "transport.write_timeout",
	"retries":         "retry.max_attempts",
	"digest":          "digest.algorithm",
	"digest-mode":     "digest.mode",
	"log-level":       "log.level",
	"log-path":        "log.path",
	"no-store":        "store.enabled",
	"listen":          "serve.listen",
	"origin":          "serve.origin_file",
	"store-driver":    "store.driver",
	"store-path":      "store.sqlite_path",
	"store-dsn":       "store.postgres_dsn",
	"include-stdout":  "log.include_stdout",
	"max-response-mb": "transport.max_response_bytes",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("endpoint", "127.0.0.1:8080")
	v.SetDefault("download.packet_size", 64000)
	v.SetDefault("download.workers", 1)
	v.SetDefault("download.range_mode", "inclusive")
	v.SetDefault("download.requests_per_second", 0)
	v.SetDefault("download.output_url", "")
	v.SetDefault("transport.dial_timeout", 5*time.Second)
	v.SetDefault("transport.read_timeout", 5*time.Second)
	v.SetDefault("transport.write_timeout", 5*time.Second)
	v.SetDefault("transport.max_response_bytes", int64(80<<20))
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff", 500*time.Millisecond)
	v.SetDefault("retry.max_backoff", 8*time.Second)
	v.SetDefault("digest.algorithm", "sha256")
	v.SetDefault("digest.mode", "final")
	v.SetDefault("log.path", "rangefetch.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
	v.SetDefault("store.enabled", true)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "rangefetch.db")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("serve.listen", "127.0.0.1:8080")
	v.SetDefault("serve.origin_file", "")
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load builds the configuration from defaults, an optional YAML file,
// RANGEFETCH_* environment variables and any flags the user changed, in
// increasing order of precedence. A missing file is only an error when the
// path was given explicitly.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set Defaults
	setDefaults(v)

	explicit := path != ""
	if path == "" {
		path = DefaultPath
	}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Support Environment Variables
	v.SetEnvPrefix("RANGEFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// bindFlags only binds flags the user actually set so that unset flags do
// not shadow file or env values with their zero defaults.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}

		switch f.Name {
		case "no-store":
			v.Set(key, f.Value.String() != "true")
		case "max-response-mb":
			mb, err := flags.GetInt64(f.Name)
			if err != nil {
				bindErr = err
				return
			}
			v.Set(key, mb<<20)
		default:
			bindErr = v.BindPFlag(key, f)
		}
	})
	return bindErr
}

func (c *Config) validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}

	if int64(c.Download.PacketSize) > c.Transport.MaxResponseBytes {
		return fmt.Errorf("download.packet_size %d exceeds transport.max_response_bytes %d",
			c.Download.PacketSize, c.Transport.MaxResponseBytes)
	}

	return nil
}
