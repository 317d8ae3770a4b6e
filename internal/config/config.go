package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string   `mapstructure:"PORT"`
	Env              string   `mapstructure:"ENV"`
	DatabaseURL      string   `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32    `mapstructure:"DB_MIN_CONNS"`
	JWTSecret        string   `mapstructure:"JWT_SECRET"`
	JWTIssuer        string   `mapstructure:"JWT_ISSUER"`
	TokenTTLHours    int      `mapstructure:"TOKEN_TTL_HOURS"`
	CORSOrigins      []string `mapstructure:"CORS_ORIGINS"`
	LedgerEnabled    bool     `mapstructure:"LEDGER_ENABLED"`
	OTPTTLMinutes    int      `mapstructure:"OTP_TTL_MINUTES"`
	RecordCategories []string `mapstructure:"RECORD_CATEGORIES"`
}

// DefaultRecordCategories is the shared category list consumed by both the
// consent-grant surface and the permission evaluator, so the two cannot
// drift apart.
var DefaultRecordCategories = []string{
	"general", "cardiology", "neurology", "orthopedics",
	"dermatology", "psychiatry", "lab-results",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("JWT_ISSUER", "carevault")
	v.SetDefault("TOKEN_TTL_HOURS", 12)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("LEDGER_ENABLED", true)
	v.SetDefault("OTP_TTL_MINUTES", 10)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("JWT_ISSUER")
	v.BindEnv("TOKEN_TTL_HOURS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("LEDGER_ENABLED")
	v.BindEnv("OTP_TTL_MINUTES")
	v.BindEnv("RECORD_CATEGORIES")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	if cfg.RecordCategories == nil {
		cats := v.GetString("RECORD_CATEGORIES")
		if cats != "" {
			cfg.RecordCategories = strings.Split(cats, ",")
		} else {
			cfg.RecordCategories = DefaultRecordCategories
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// TokenTTL returns the configured access-token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// OTPTTL returns the lifetime of a password-reset OTP.
func (c *Config) OTPTTL() time.Duration {
	return time.Duration(c.OTPTTLMinutes) * time.Minute
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret must be set so that sessions cannot be forged.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q; refusing to start without a signing key", c.Env)
	}
	if c.TokenTTLHours <= 0 {
		return fmt.Errorf("TOKEN_TTL_HOURS must be positive, got %d", c.TokenTTLHours)
	}
	return nil
}
