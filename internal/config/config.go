// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port            int           `mapstructure:"port"`
		WebDir          string        `mapstructure:"web_dir"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	Simulation struct {
		TickInterval          time.Duration `mapstructure:"tick_interval"`
		InterpolationInterval time.Duration `mapstructure:"interpolation_interval"`
		Seed                  int64         `mapstructure:"seed"` // 0 seeds from the clock
	} `mapstructure:"simulation"`
	Settings struct {
		Backend string `mapstructure:"backend"` // file or redis
		Path    string `mapstructure:"path"`
		Redis   struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
			Key      string `mapstructure:"key"`
			Channel  string `mapstructure:"channel"`
		} `mapstructure:"redis"`
	} `mapstructure:"settings"`
	Anomaly struct {
		BaselineWatts float64 `mapstructure:"baseline_watts"`
	} `mapstructure:"anomaly"`
	Alerting struct {
		QueueSize    int           `mapstructure:"queue_size"`
		CostInterval time.Duration `mapstructure:"cost_interval"`
		HistorySize  int           `mapstructure:"history_size"`
	} `mapstructure:"alerting"`
	Kafka struct {
		Enabled bool     `mapstructure:"enabled"`
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	MQTT struct {
		Enabled        bool          `mapstructure:"enabled"`
		Broker         string        `mapstructure:"broker"`
		ClientID       string        `mapstructure:"client_id"`
		TopicPrefix    string        `mapstructure:"topic_prefix"`
		ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	} `mapstructure:"mqtt"`
	NATS struct {
		Enabled        bool          `mapstructure:"enabled"`
		URL            string        `mapstructure:"url"`
		Name           string        `mapstructure:"name"`
		SubjectPrefix  string        `mapstructure:"subject_prefix"`
		ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
		MaxReconnects  int           `mapstructure:"max_reconnects"`
		ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	} `mapstructure:"nats"`
	Breaker struct {
		MaxFailures  int           `mapstructure:"max_failures"`
		ResetTimeout time.Duration `mapstructure:"reset_timeout"`
	} `mapstructure:"breaker"`
	Log struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"log"`
}

// LoadConfig reads config.yaml from dir, overlays AETHERIO_* environment
// variables and fills every unset key with its default. A missing file is not
// an error.
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("AETHERIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Settings.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("settings.backend must be file or redis, got %q", c.Settings.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.enabled requires kafka.brokers")
	}
	return nil
}

// Every key needs a default so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.web_dir", "./web")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("simulation.tick_interval", 2*time.Second)
	v.SetDefault("simulation.interpolation_interval", 100*time.Millisecond)
	v.SetDefault("simulation.seed", 0)

	v.SetDefault("settings.backend", "file")
	v.SetDefault("settings.path", "./data/aetherio_settings.json")
	v.SetDefault("settings.redis.addr", "localhost:6379")
	v.SetDefault("settings.redis.password", "")
	v.SetDefault("settings.redis.db", 0)
	v.SetDefault("settings.redis.key", "aetherio_settings")
	v.SetDefault("settings.redis.channel", "aetherio_settings")

	v.SetDefault("anomaly.baseline_watts", 1800.0)

	v.SetDefault("alerting.queue_size", 64)
	v.SetDefault("alerting.cost_interval", time.Second)
	v.SetDefault("alerting.history_size", 100)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "aetherio.events")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "aetherio")
	v.SetDefault("mqtt.topic_prefix", "aetherio")
	v.SetDefault("mqtt.connect_timeout", 5*time.Second)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.name", "aetherio")
	v.SetDefault("nats.subject_prefix", "aetherio.events")
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.max_reconnects", 60)
	v.SetDefault("nats.connect_timeout", 5*time.Second)

	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.reset_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}
