package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port            string        `mapstructure:"port"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	} `mapstructure:"server"`
	Database struct {
		Driver          string        `mapstructure:"driver"`
		URL             string        `mapstructure:"url"`
		MaxOpenConns    int           `mapstructure:"max_open_conns"`
		MaxIdleConns    int           `mapstructure:"max_idle_conns"`
		ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
		AutoMigrate     bool          `mapstructure:"auto_migrate"`
	} `mapstructure:"database"`
	JWT struct {
		AccessSecret     string        `mapstructure:"access_secret"`
		RefreshSecret    string        `mapstructure:"refresh_secret"`
		Issuer           string        `mapstructure:"issuer"`
		SigninAccessTTL  time.Duration `mapstructure:"signin_access_ttl"`
		RefreshAccessTTL time.Duration `mapstructure:"refresh_access_ttl"`
		RefreshTTL       time.Duration `mapstructure:"refresh_ttl"`
	} `mapstructure:"jwt"`
	Auth struct {
		MinPasswordLength           int  `mapstructure:"min_password_length"`
		RequirePasswordConfirmation bool `mapstructure:"require_password_confirmation"`
		BcryptCost                  int  `mapstructure:"bcrypt_cost"`
		RotateRefreshTokens         bool `mapstructure:"rotate_refresh_tokens"`
		SecureCookie                bool `mapstructure:"secure_cookie"`
	} `mapstructure:"auth"`
	Redis struct {
		Enabled  bool          `mapstructure:"enabled"`
		Host     string        `mapstructure:"host"`
		Port     string        `mapstructure:"port"`
		Password string        `mapstructure:"password"`
		DB       int           `mapstructure:"db"`
		CacheTTL time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"redis"`
	RateLimit struct {
		Enabled   bool    `mapstructure:"enabled"`
		PerSecond float64 `mapstructure:"per_second"`
		Burst     int     `mapstructure:"burst"`
		// TrustedProxies lists peers whose X-Forwarded-For is believed.
		TrustedProxies []string `mapstructure:"trusted_proxies"`
	} `mapstructure:"rate_limit"`
	CORS struct {
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"cors"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Ledger struct {
		PruneInterval time.Duration `mapstructure:"prune_interval"`
	} `mapstructure:"ledger"`
}

var AppConfig Config

// SetDefaults registers the baseline values every deployment starts from.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("jwt.issuer", "go-auth-api")
	v.SetDefault("jwt.signin_access_ttl", 30*time.Second)
	v.SetDefault("jwt.refresh_access_ttl", 15*time.Minute)
	v.SetDefault("jwt.refresh_ttl", 30*24*time.Hour)

	v.SetDefault("auth.min_password_length", 8)
	v.SetDefault("auth.require_password_confirmation", false)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.rotate_refresh_tokens", false)
	v.SetDefault("auth.secure_cookie", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.cache_ttl", 10*time.Minute)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.per_second", 5)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("ledger.prune_interval", time.Hour)
}

// Load reads config.yml from path (if present), then overlays environment variables.
// Nested keys map to env names with "." replaced by "_", e.g. JWT_ACCESS_SECRET.
// DATABASE_URL, ACCESS_TOKEN_SECRET, REFRESH_TOKEN_SECRET and PORT are also honoured.
func Load(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	SetDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string]string{
		"database.url":       "DATABASE_URL",
		"jwt.access_secret":  "ACCESS_TOKEN_SECRET",
		"jwt.refresh_secret": "REFRESH_TOKEN_SECRET",
		"server.port":        "PORT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return cfg, nil
}

// LoadConfig loads the configuration into AppConfig and validates it.
func LoadConfig(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

// Validate checks the settings the service cannot start without.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Database.URL) == "" {
		errs = append(errs, errors.New("database url is required (DATABASE_URL)"))
	}
	switch c.Database.Driver {
	case "postgres", "pgx":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}

	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("access token secret is required (ACCESS_TOKEN_SECRET)"))
	}
	if c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("refresh token secret is required (REFRESH_TOKEN_SECRET)"))
	}
	if c.JWT.AccessSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, errors.New("access and refresh token secrets must differ"))
	}
	if c.JWT.SigninAccessTTL <= 0 || c.JWT.RefreshAccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}

	if c.Auth.MinPasswordLength < 1 {
		errs = append(errs, errors.New("auth.min_password_length must be at least 1"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost %d out of range [4, 31]", c.Auth.BcryptCost))
	}

	if c.RateLimit.Enabled && (c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate_limit.per_second and rate_limit.burst must be positive"))
	}
	for _, p := range c.RateLimit.TrustedProxies {
		p = strings.TrimSpace(p)
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			errs = append(errs, fmt.Errorf("rate_limit.trusted_proxies: invalid entry %q", p))
		}
	}

	return errors.Join(errs...)
}
