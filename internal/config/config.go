// Package config loads application configuration from the environment. A
// .env file in the working directory is read first when present; real
// environment variables win over it.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration values.
type Config struct {
	Env       string
	Port      string
	LogLevel  string
	LogFormat string

	// Store selects the persistence backend: "mysql" or "memory".
	Store          string
	DBUser         string
	DBPass         string
	DBHost         string
	DBPort         string
	DBName         string
	DBMaxOpen      int
	DBMaxIdle      int
	DBConnLifetime time.Duration
	DBMigrate      bool

	JWTSecret         string
	AccessTTL         time.Duration
	AdminEmail        string
	AdminPassword     string
	AdminPasswordHash string
	BcryptCost        int

	OpenHour       int
	CloseHour      int
	ConflictPolicy string
	Timezone       string
	FullCourtRate  int64 // cents per hour
	HalfCourtRate  int64 // cents per hour
	PriceRoundTo   int64 // quotes round up to a multiple of this
	BlockEmail     string
	FacilityName   string

	PaymentProvider    string
	MidtransServerKey  string
	MidtransProduction bool

	RabbitURL string

	Redis     RedisConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
}

func defaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("STORE", "mysql")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 25)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("DB_MIGRATE", true)
	v.SetDefault("ACCESS_TOKEN_TTL", "12h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OPEN_HOUR", 8)
	v.SetDefault("CLOSE_HOUR", 22)
	v.SetDefault("CONFLICT_POLICY", "full_blocks_half")
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("FULL_COURT_RATE_CENTS", 15000)
	v.SetDefault("HALF_COURT_RATE_CENTS", 7500)
	v.SetDefault("BLOCK_EMAIL", "admin@facility.local")
	v.SetDefault("FACILITY_NAME", "the court")
	v.SetDefault("PAYMENT_PROVIDER", "midtrans")
	v.SetDefault("MIDTRANS_PRODUCTION", false)
}

// Load reads the environment (and .env) into a Config. Missing required
// values are reported together.
func Load() (Config, error) {
	_ = godotenv.Load()
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	defaults(v)
	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Env:       v.GetString("APP_ENV"),
		Port:      v.GetString("APP_PORT"),
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),

		Store:          strings.ToLower(v.GetString("STORE")),
		DBUser:         v.GetString("DB_USER"),
		DBPass:         v.GetString("DB_PASS"),
		DBHost:         v.GetString("DB_HOST"),
		DBPort:         v.GetString("DB_PORT"),
		DBName:         v.GetString("DB_NAME"),
		DBMaxOpen:      v.GetInt("DB_MAX_OPEN_CONNS"),
		DBMaxIdle:      v.GetInt("DB_MAX_IDLE_CONNS"),
		DBConnLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		DBMigrate:      v.GetBool("DB_MIGRATE"),

		JWTSecret:         v.GetString("JWT_SECRET"),
		AccessTTL:         v.GetDuration("ACCESS_TOKEN_TTL"),
		AdminEmail:        v.GetString("ADMIN_EMAIL"),
		AdminPassword:     v.GetString("ADMIN_PASSWORD"),
		AdminPasswordHash: v.GetString("ADMIN_PASSWORD_HASH"),
		BcryptCost:        v.GetInt("BCRYPT_COST"),

		OpenHour:       v.GetInt("OPEN_HOUR"),
		CloseHour:      v.GetInt("CLOSE_HOUR"),
		ConflictPolicy: v.GetString("CONFLICT_POLICY"),
		Timezone:       v.GetString("TIMEZONE"),
		FullCourtRate:  v.GetInt64("FULL_COURT_RATE_CENTS"),
		HalfCourtRate:  v.GetInt64("HALF_COURT_RATE_CENTS"),
		PriceRoundTo:   v.GetInt64("PRICE_ROUND_CENTS"),
		BlockEmail:     v.GetString("BLOCK_EMAIL"),
		FacilityName:   v.GetString("FACILITY_NAME"),

		PaymentProvider:    strings.ToLower(v.GetString("PAYMENT_PROVIDER")),
		MidtransServerKey:  v.GetString("MIDTRANS_SERVER_KEY"),
		MidtransProduction: v.GetBool("MIDTRANS_PRODUCTION"),

		RabbitURL: v.GetString("RABBITMQ_URL"),

		Redis:     LoadRedisConfig(v),
		Cache:     LoadCacheConfig(v),
		RateLimit: LoadRateLimitConfig(v),
	}

	var missing []string
	require := func(key, val string) {
		if val == "" {
			missing = append(missing, key)
		}
	}
	require("JWT_SECRET", cfg.JWTSecret)
	require("ADMIN_EMAIL", cfg.AdminEmail)
	if cfg.AdminPassword == "" && cfg.AdminPasswordHash == "" {
		missing = append(missing, "ADMIN_PASSWORD or ADMIN_PASSWORD_HASH")
	}
	switch cfg.Store {
	case "mysql":
		require("DB_USER", cfg.DBUser)
		require("DB_HOST", cfg.DBHost)
		require("DB_NAME", cfg.DBName)
	case "memory":
	default:
		return cfg, fmt.Errorf("unknown STORE %q", cfg.Store)
	}
	// the webhook verifies signatures with this key in every mode
	require("MIDTRANS_SERVER_KEY", cfg.MidtransServerKey)
	switch cfg.PaymentProvider {
	case "midtrans":
		// Snap only charges whole currency units
		if cfg.PriceRoundTo <= 1 {
			cfg.PriceRoundTo = 100
		}
		if cfg.PriceRoundTo%100 != 0 {
			return cfg, fmt.Errorf("PRICE_ROUND_CENTS must be a multiple of 100 with midtrans, got %d", cfg.PriceRoundTo)
		}
	case "fake":
	default:
		return cfg, fmt.Errorf("unknown PAYMENT_PROVIDER %q", cfg.PaymentProvider)
	}
	if len(missing) > 0 {
		return cfg, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
