package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/Tutor/internal/domain"
)

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type CallConfig struct {
	Capacity        int           `mapstructure:"capacity"`
	StrictSignaling bool          `mapstructure:"strict_signaling"`
	JoinLimit       int           `mapstructure:"join_limit"`
	JoinInterval    time.Duration `mapstructure:"join_interval"`
}

type BookingConfig struct {
	ActiveStatuses []string `mapstructure:"active_statuses"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	LogLevel   string        `mapstructure:"log_level"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`
	JWTSecret  string        `mapstructure:"jwt_secret"`

	Store   StoreConfig   `mapstructure:"store"`
	Call    CallConfig    `mapstructure:"call"`
	Booking BookingConfig `mapstructure:"booking"`
}

// ActiveStatuses returns the booking statuses that still admit joins.
func (c *Config) ActiveStatuses() []domain.BookingStatus {
	out := make([]domain.BookingStatus, 0, len(c.Booking.ActiveStatuses))
	for _, s := range c.Booking.ActiveStatuses {
		out = append(out, domain.BookingStatus(strings.ToLower(strings.TrimSpace(s))))
	}
	return out
}

// defaultSecret is only acceptable in debug mode.
const defaultSecret = "change-me"

const minSecretLen = 16

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", defaultSecret)
	v.SetDefault("jwt_secret", defaultSecret)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("call.capacity", 2)
	v.SetDefault("call.strict_signaling", false)
	v.SetDefault("call.join_limit", 10)
	v.SetDefault("call.join_interval", "1m")
	v.SetDefault("booking.active_statuses", []string{"pending", "confirmed"})
}

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults, then TUTOR_*
// environment variables over both. A .env file is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		fileName = path
	}

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("TUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("store", cfg.Store.Driver).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Call.Capacity < 2 {
		return fmt.Errorf("call.capacity must be at least 2, got %d", c.Call.Capacity)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive")
	}
	if c.PongWait <= c.PingPeriod {
		return fmt.Errorf("pong_wait (%s) must exceed ping_period (%s)", c.PongWait, c.PingPeriod)
	}
	if c.Mode != "debug" {
		for key, val := range map[string]string{"secret": c.Secret, "jwt_secret": c.JWTSecret} {
			if val == defaultSecret || len(val) < minSecretLen {
				return fmt.Errorf("%s must be set to at least %d characters outside debug mode", key, minSecretLen)
			}
		}
	}
	for _, s := range c.ActiveStatuses() {
		switch s {
		case domain.BookingPending, domain.BookingConfirmed, domain.BookingCompleted, domain.BookingCancelled:
		default:
			return fmt.Errorf("unknown booking status %q", s)
		}
	}
	return nil
}
