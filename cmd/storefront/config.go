package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/storefront/internal/logger"
)

const (
	defaultListenAddr     = "localhost:8000"
	defaultCommerceAPIURL = "http://localhost:8080/api"
	defaultLoggingLevel   = logger.LevelInfo
	defaultEnvironment    = logger.EnvProduction
	defaultRequestTimeout = 10 * time.Second
	defaultSessionIdleTTL = 30 * time.Minute
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the storefront service will be run
	ListenAddr string

	// Base url of the commerce API
	CommerceAPIURL string

	// Service key for calls made without a customer session (background order sync)
	// Order sync is disabled if empty
	CommerceAPIKey string

	// Database to connect to
	DatabaseDSN string

	// Redis address for session credentials
	// Credentials are kept in memory if empty
	RedisAddr string

	// Bound for every commerce API call
	RequestTimeout time.Duration

	// In-memory session state not touched that long is dropped
	SessionIdleTTL time.Duration

	// Checkout requires verified email address
	RequireEmailVerification bool

	// Key to verify access token signature
	// Tokens are decoded without signature check if empty
	TokenVerifyKey string

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:                 defaultLoggingLevel,
		ListenAddr:               defaultListenAddr,
		CommerceAPIURL:           defaultCommerceAPIURL,
		RequestTimeout:           defaultRequestTimeout,
		SessionIdleTTL:           defaultSessionIdleTTL,
		RequireEmailVerification: true,
		Environment:              defaultEnvironment,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			b, err := strconv.ParseBool(value)
			if err != nil {
				return err
			}
			*o = b
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":                setString(&c.ListenAddr),
		"COMMERCE_API_URL":           setString(&c.CommerceAPIURL),
		"COMMERCE_API_KEY":           setString(&c.CommerceAPIKey),
		"DATABASE_URI":               setString(&c.DatabaseDSN),
		"REDIS_ADDR":                 setString(&c.RedisAddr),
		"LOG_LEVEL":                  setString(&c.LogLevel),
		"ENVIRONMENT":                setString(&c.Environment),
		"REQUEST_TIMEOUT":            setDuration(&c.RequestTimeout),
		"SESSION_IDLE_TTL":           setDuration(&c.SessionIdleTTL),
		"REQUIRE_EMAIL_VERIFICATION": setBool(&c.RequireEmailVerification),
		"TOKEN_VERIFY_KEY":           setString(&c.TokenVerifyKey),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("storefront", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.CommerceAPIURL, "commerce-api", "c", c.CommerceAPIURL, "Commerce API base url")
	fs.StringVarP(&c.CommerceAPIKey, "api-key", "k", c.CommerceAPIKey, "Commerce API service key")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.RedisAddr, "redis", "r", c.RedisAddr, "Redis address for session credentials")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.DurationVarP(&c.RequestTimeout, "request-timeout", "t", c.RequestTimeout, "Commerce API call timeout")
	fs.DurationVar(&c.SessionIdleTTL, "session-idle-ttl", c.SessionIdleTTL, "Drop in-memory session state idle that long")
	fs.BoolVarP(&c.RequireEmailVerification, "require-verified", "v", c.RequireEmailVerification, "Require verified email to checkout")
	fs.StringVar(&c.TokenVerifyKey, "token-key", c.TokenVerifyKey, "Access token verification key")

	return fs.Parse(args)
}

func (c *Config) Validate() error {
	switch {
	case c.DatabaseDSN == "":
		return errors.New("database connection string is required")
	case c.CommerceAPIURL == "":
		return errors.New("commerce API url is required")
	case c.RequestTimeout <= 0:
		return errors.New("request timeout must be positive")
	case c.SessionIdleTTL <= 0:
		return errors.New("session idle ttl must be positive")
	}
	return nil
}
