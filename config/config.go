// Package config resolves the settings of a test run from command-line flags, environment
// variables and an optional config file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name: --poll-interval can be set with
// BULKCHECK_POLL_INTERVAL.
const EnvPrefix = "BULKCHECK"

// Keys, which are also the flag names.
const (
	KeyURL             = "url"
	KeyFixtures        = "fixtures"
	KeyRules           = "rules"
	KeyPollInterval    = "poll-interval"
	KeyPollTimeout     = "poll-timeout"
	KeyPollMaxAttempts = "poll-max-attempts"
	KeyRangeBytes      = "range-bytes"
	KeyStatusTimeout   = "status-timeout"
	KeyDebug           = "debug"
	KeyDebugAll        = "debug-all"
	KeyNoColor         = "no-color"
	KeyLogLevel        = "log-level"
)

const (
	DefaultURL           = "http://localhost:3002/api/v1/"
	DefaultPollInterval  = time.Second
	DefaultPollTimeout   = 5 * time.Minute
	DefaultRangeBytes    = 10240
	DefaultStatusTimeout = 10 * time.Second
	DefaultLogLevel      = "info"
)

type Config struct {
	URL      string `mapstructure:"url"`
	Fixtures string `mapstructure:"fixtures"`
	Rules    string `mapstructure:"rules"`

	PollInterval    time.Duration `mapstructure:"poll-interval"`
	PollTimeout     time.Duration `mapstructure:"poll-timeout"`
	PollMaxAttempts int           `mapstructure:"poll-max-attempts"`
	RangeBytes      int           `mapstructure:"range-bytes"`
	StatusTimeout   time.Duration `mapstructure:"status-timeout"`

	Debug    bool   `mapstructure:"debug"`
	DebugAll bool   `mapstructure:"debug-all"`
	NoColor  bool   `mapstructure:"no-color"`
	LogLevel string `mapstructure:"log-level"`
}

// AddFlags registers a flag for every setting.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(KeyURL, DefaultURL, "base URL of the API under test")
	fs.String(KeyFixtures, "", "directory of resource bundles that replace the built-in ones")
	fs.String(KeyRules, "", "YAML file of export expectations that replace the built-in ones")
	fs.Duration(KeyPollInterval, DefaultPollInterval, "delay between export job status requests")
	fs.Duration(KeyPollTimeout, DefaultPollTimeout, "how long to wait for an export job to complete")
	fs.Int(KeyPollMaxAttempts, 0, "maximum number of job status requests (0 for no limit)")
	fs.Int(KeyRangeBytes, DefaultRangeBytes, "number of bytes to request in the partial range test")
	fs.Duration(KeyStatusTimeout, DefaultStatusTimeout, "how long to wait for the API to respond at startup")
	fs.Bool(KeyDebug, false, "show request logs of failed tests")
	fs.Bool(KeyDebugAll, false, "show request logs of all tests")
	fs.Bool(KeyNoColor, false, "disable colored output")
	fs.String(KeyLogLevel, DefaultLogLevel, "log level (debug, info, warn, error)")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyURL, DefaultURL)
	v.SetDefault(KeyFixtures, "")
	v.SetDefault(KeyRules, "")
	v.SetDefault(KeyPollInterval, DefaultPollInterval)
	v.SetDefault(KeyPollTimeout, DefaultPollTimeout)
	v.SetDefault(KeyPollMaxAttempts, 0)
	v.SetDefault(KeyRangeBytes, DefaultRangeBytes)
	v.SetDefault(KeyStatusTimeout, DefaultStatusTimeout)
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyDebugAll, false)
	v.SetDefault(KeyNoColor, false)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
}

// Load resolves the configuration. Flags in fs that were set explicitly take precedence over
// environment variables, which take precedence over configFile. Either fs or configFile may be
// omitted.
func Load(fs *pflag.FlagSet, configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.URL != "" && !strings.HasSuffix(cfg.URL, "/") {
		cfg.URL += "/"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the settings can be used for a test run.
func (c *Config) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	if c.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("poll-interval must not be negative, got %s", c.PollInterval))
	}
	if c.PollTimeout <= 0 && c.PollMaxAttempts <= 0 {
		errs = append(errs, errors.New("at least one of poll-timeout and poll-max-attempts must be positive"))
	}
	if c.PollMaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("poll-max-attempts must not be negative, got %d", c.PollMaxAttempts))
	}
	if c.RangeBytes <= 0 {
		errs = append(errs, fmt.Errorf("range-bytes must be positive, got %d", c.RangeBytes))
	}
	return errors.Join(errs...)
}

// StatusURL is the resource polled at startup to find out whether the API is up.
func (c *Config) StatusURL() string {
	return c.URL + "metadata"
}
