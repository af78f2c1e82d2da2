package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName          = "ArthgyanOnboarding"
	defaultAppEnv           = "development"
	defaultPort             = "5001"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultStoreDriver      = StorePostgres
	defaultMongoDatabase    = "arthgyan"
	defaultProviderBaseURL  = "https://s.finprim.com"
	defaultProviderTokenURL = "https://s.finprim.com/v2/auth/arthgyan/token"
	defaultProviderTimeout  = 10 * time.Second
	defaultProviderRPS      = 20.0
	defaultTokenMargin      = 30 * time.Second
	defaultOTPTTL           = 5 * time.Minute
	defaultOTPDigits        = 6
	defaultOTPSendPerMinute = 5
	defaultPincodeCacheTTL  = 24 * time.Hour
	defaultDeepLinkScheme   = "com.bhageshghuge.arthgyandashboard"
	defaultSMTPPort         = 587
)

// Store drivers accepted by STORE_DRIVER.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	StoreDriver    string
	DatabaseURL    string
	MongoURI       string
	MongoDatabase  string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	Provider Provider
	OTP      OTP
	Callback Callback
	SMTP     SMTP

	PincodeCacheTTL time.Duration
}

// Provider holds the onboarding provider client settings.
type Provider struct {
	BaseURL       string
	TokenURL      string
	ClientID      string
	ClientSecret  string
	Timeout       time.Duration
	RequestsPerS  float64
	RefreshMargin time.Duration
}

// OTP holds one-time code settings.
type OTP struct {
	TTL           time.Duration
	Digits        int
	SendPerMinute int
	// ExposeCode echoes the issued code in API responses; development only.
	ExposeCode bool
}

// Callback holds the provider postback and app deep-link settings.
type Callback struct {
	PublicBaseURL  string
	DeepLinkScheme string
	Strict         bool
}

// SMTP configures email delivery of one-time codes. Host empty disables it.
type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Load reads configuration values from the environment and populates a Config instance.
// A .env file in the working directory is applied first when present.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", defaultStoreDriver)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		MongoURI:       os.Getenv("MONGO_URI"),
		MongoDatabase:  getEnv("MONGO_DB", defaultMongoDatabase),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		Provider: Provider{
			BaseURL:       strings.TrimRight(getEnv("PROVIDER_BASE_URL", defaultProviderBaseURL), "/"),
			TokenURL:      getEnv("PROVIDER_TOKEN_URL", defaultProviderTokenURL),
			ClientID:      os.Getenv("FINPRIM_CLIENT_ID"),
			ClientSecret:  os.Getenv("FINPRIM_CLIENT_SECRET"),
			Timeout:       defaultProviderTimeout,
			RequestsPerS:  defaultProviderRPS,
			RefreshMargin: defaultTokenMargin,
		},
		OTP: OTP{
			TTL:           defaultOTPTTL,
			Digits:        defaultOTPDigits,
			SendPerMinute: defaultOTPSendPerMinute,
		},
		Callback: Callback{
			PublicBaseURL:  strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
			DeepLinkScheme: getEnv("DEEP_LINK_SCHEME", defaultDeepLinkScheme),
		},
		SMTP: SMTP{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     defaultSMTPPort,
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},
		PincodeCacheTTL: defaultPincodeCacheTTL,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.Provider.Timeout, err = durationEnv("PROVIDER_TIMEOUT", cfg.Provider.Timeout); err != nil {
		return Config{}, err
	}
	if cfg.Provider.RefreshMargin, err = durationEnv("TOKEN_REFRESH_MARGIN", cfg.Provider.RefreshMargin); err != nil {
		return Config{}, err
	}
	if cfg.OTP.TTL, err = durationEnv("OTP_TTL", cfg.OTP.TTL); err != nil {
		return Config{}, err
	}
	if cfg.PincodeCacheTTL, err = durationEnv("PINCODE_CACHE_TTL", cfg.PincodeCacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.OTP.Digits, err = intEnv("OTP_DIGITS", cfg.OTP.Digits); err != nil {
		return Config{}, err
	}
	if cfg.OTP.SendPerMinute, err = intEnv("OTP_SEND_PER_MINUTE", cfg.OTP.SendPerMinute); err != nil {
		return Config{}, err
	}
	if cfg.SMTP.Port, err = intEnv("SMTP_PORT", cfg.SMTP.Port); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("PROVIDER_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PROVIDER_RPS: %w", err)
		}
		cfg.Provider.RequestsPerS = rps
	}
	cfg.Callback.Strict = os.Getenv("CALLBACK_STRICT") == "true"
	cfg.OTP.ExposeCode = cfg.IsDev() && os.Getenv("OTP_EXPOSE_CODE") == "true"

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI must be set")
		}
	case StoreMemory:
		if !c.IsDev() {
			return fmt.Errorf("STORE_DRIVER=memory is only allowed when APP_ENV is development")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.RedisURL == "" && !c.IsDev() {
		return fmt.Errorf("REDIS_URL must be set")
	}

	if c.Provider.ClientID == "" || c.Provider.ClientSecret == "" {
		return fmt.Errorf("FINPRIM_CLIENT_ID and FINPRIM_CLIENT_SECRET must be set")
	}

	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return fmt.Errorf("OTP_DIGITS must be between 4 and 10")
	}

	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// CallbackURL returns the public postback URL for the named callback route,
// or "" when PUBLIC_BASE_URL is unset.
func (c Config) CallbackURL(path string) string {
	if c.Callback.PublicBaseURL == "" {
		return ""
	}
	return c.Callback.PublicBaseURL + "/api/auth/" + strings.TrimLeft(path, "/")
}

// durationEnv accepts either KEY_SECONDS (integer seconds) or KEY (Go duration).
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	secondsKey := key + "_SECONDS"
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
