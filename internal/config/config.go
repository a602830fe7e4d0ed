package config

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	EnvLocal      = "local"
	EnvProduction = "production"

	LocalBaseURL      = "http://localhost:1979"
	ProductionBaseURL = "https://playvested.herokuapp.com"
)

type ctxKey string

const configContextKey ctxKey = "playvested.config"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	Environment    string        `yaml:"environment"    envconfig:"LEDGER_ENV"`
	BaseURL        string        `yaml:"baseURL"        envconfig:"BASE_URL"`
	PollInterval   time.Duration `yaml:"pollInterval"   split_words:"true"`
	LinkCloseDelay time.Duration `yaml:"linkCloseDelay" split_words:"true"`
	RequestTimeout time.Duration `yaml:"requestTimeout" split_words:"true"`

	// local ledger
	RunAddress  string  `yaml:"runAddress"  split_words:"true"`
	DatabaseURI string  `yaml:"databaseURI" envconfig:"DATABASE_URI"`
	RateLimit   float64 `yaml:"rateLimit"   split_words:"true"`
	RateBurst   int     `yaml:"rateBurst"   split_words:"true"`
}

func Default() *Config {
	return &Config{
		Environment:    EnvLocal,
		PollInterval:   100 * time.Millisecond,
		LinkCloseDelay: 2 * time.Second,
		RunAddress:     ":1979",
		RateLimit:      20,
		RateBurst:      40,
	}
}

// Load applies an optional YAML file and then PLAYVESTED_* environment
// variables on top of the defaults.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := envconfig.Process("playvested", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Environment {
	case EnvLocal, EnvProduction:
	case "":
		c.Environment = EnvLocal
	default:
		return fmt.Errorf("invalid environment: %q (must be %q or %q)", c.Environment, EnvLocal, EnvProduction)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.LinkCloseDelay < 0 || c.RequestTimeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

// LedgerURL picks the ledger host for the configured environment unless
// BaseURL overrides it.
func (c *Config) LedgerURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Environment == EnvProduction {
		return ProductionBaseURL
	}
	return LocalBaseURL
}

// ParseLedgerFlags loads the configuration, including PLAYVESTED_* variables,
// and applies the local ledger's command line. RUN_ADDRESS and DATABASE_URI
// override the flags.
func (c *Config) ParseLedgerFlags(programName string, args []string) error {
	fs := flag.NewFlagSet(programName, flag.ContinueOnError)
	configFile := fs.String("config", "", "Path to YAML config file")
	runAddress := fs.String("a", "", "Server run address")
	databaseURI := fs.String("d", "", "Database URI, empty for in-memory storage")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loaded, err := Load(*configFile)
	if err != nil {
		return err
	}
	*c = *loaded

	if *runAddress != "" {
		c.RunAddress = *runAddress
	}
	if *databaseURI != "" {
		c.DatabaseURI = *databaseURI
	}

	if envAddr := os.Getenv("RUN_ADDRESS"); envAddr != "" {
		c.RunAddress = envAddr
	}
	if envDBURI := os.Getenv("DATABASE_URI"); envDBURI != "" {
		c.DatabaseURI = envDBURI
	}

	if c.RunAddress == "" {
		c.RunAddress = ":1979"
	}
	return nil
}
