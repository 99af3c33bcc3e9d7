package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
	Retention RetentionConfig `mapstructure:"retention"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type DeliveryConfig struct {
	Workers     int             `mapstructure:"workers"`
	Timeout     time.Duration   `mapstructure:"timeout"`
	TestTimeout time.Duration   `mapstructure:"test_timeout"`
	MaxAttempts int             `mapstructure:"max_attempts"`
	RetryDelays []time.Duration `mapstructure:"retry_delays"`
	QueueSize   int             `mapstructure:"queue_size"`
}

type SweeperConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	Batch        int           `mapstructure:"batch"`
	PendingGrace time.Duration `mapstructure:"pending_grace"`
	ClaimTTL     time.Duration `mapstructure:"claim_ttl"`
}

type RetentionConfig struct {
	MaxAge   time.Duration `mapstructure:"max_age"`
	Interval time.Duration `mapstructure:"interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("hookline")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/hookline")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("HOOKLINE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.sqlite.path", "./data/hookline.db")

	viper.SetDefault("delivery.workers", 8)
	viper.SetDefault("delivery.timeout", 30*time.Second)
	viper.SetDefault("delivery.test_timeout", 10*time.Second)
	viper.SetDefault("delivery.max_attempts", 3)
	viper.SetDefault("delivery.retry_delays", []time.Duration{
		1 * time.Minute,
		5 * time.Minute,
		15 * time.Minute,
	})
	viper.SetDefault("delivery.queue_size", 1024)

	viper.SetDefault("sweeper.interval", 1*time.Minute)
	viper.SetDefault("sweeper.batch", 100)
	viper.SetDefault("sweeper.pending_grace", 1*time.Minute)
	viper.SetDefault("sweeper.claim_ttl", 10*time.Minute)

	viper.SetDefault("retention.max_age", 30*24*time.Hour)
	viper.SetDefault("retention.interval", 1*time.Hour)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
