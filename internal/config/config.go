package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	ServerPort     string        `mapstructure:"server_port"`
	DBDriver       string        `mapstructure:"db_driver"`
	DBHost         string        `mapstructure:"db_host"`
	DBPort         string        `mapstructure:"db_port"`
	DBUser         string        `mapstructure:"db_user"`
	DBPassword     string        `mapstructure:"db_password"`
	DBName         string        `mapstructure:"db_name"`
	SQLitePath     string        `mapstructure:"sqlite_path"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	LogLevel       string        `mapstructure:"log_level"`
	LogDevelopment bool          `mapstructure:"log_development"`
	MessageWindow  int           `mapstructure:"message_window"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
}

var defaults = map[string]any{
	"server_port":     "8080",
	"db_driver":       DriverPostgres,
	"db_host":         "localhost",
	"db_port":         "5432",
	"db_user":         "agroconnect",
	"db_password":     "agroconnect_dev_password",
	"db_name":         "agroconnect",
	"sqlite_path":     "agroconnect.db",
	"jwt_secret":      "dev-secret-change-me",
	"log_level":       "info",
	"log_development": false,
	"message_window":  50,
	"query_timeout":   "10s",
}

// Load reads config.yaml from . or ./config when present and lets
// environment variables (SERVER_PORT, DB_DRIVER, ...) override any key.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper applies defaults and environment overrides on top of v.
func FromViper(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	switch cfg.DBDriver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return nil, fmt.Errorf("unsupported db_driver %q", cfg.DBDriver)
	}
	if cfg.MessageWindow <= 0 {
		return nil, fmt.Errorf("message_window must be positive, got %d", cfg.MessageWindow)
	}

	return &cfg, nil
}
