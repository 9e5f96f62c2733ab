package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	defaultAddress       = ":4001"
	defaultDriver        = "mysql"
	defaultPresenceTTL   = 5 * time.Minute
	defaultFanout        = "ws"
	defaultMessageRate   = 2.0
	defaultMessageBurst  = 10
	defaultLogLevel      = "info"
	defaultPushQueueSize = 256
)

type Config struct {
	Server struct {
		Address     string   `yaml:"address"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		URL    string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Presence struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"presence"`
	Fanout struct {
		// Driver is ws (local hub only), redis (hub plus cross-instance relay) or noop.
		Driver        string `yaml:"driver"`
		Channel       string `yaml:"channel"`
		FCMCredFile   string `yaml:"fcm_credentials_file"`
		PushQueueSize int    `yaml:"push_queue_size"`
	} `yaml:"fanout"`
	Chat struct {
		MessagesPerSecond float64 `yaml:"messages_per_second"`
		MessageBurst      int     `yaml:"message_burst"`
	} `yaml:"chat"`
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	var cfg Config
	cfg.Server.Address = defaultAddress
	cfg.Database.Driver = defaultDriver
	cfg.Presence.TTL = defaultPresenceTTL
	cfg.Fanout.Driver = defaultFanout
	cfg.Fanout.PushQueueSize = defaultPushQueueSize
	cfg.Chat.MessagesPerSecond = defaultMessageRate
	cfg.Chat.MessageBurst = defaultMessageBurst
	cfg.LogLevel = defaultLogLevel
	return cfg
}

// Load reads the optional YAML file at path, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Address = ":" + v
	}
	setString(&cfg.Server.Address, "SERVER_ADDRESS")
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	setString(&cfg.Database.Driver, "DB_DRIVER")
	setString(&cfg.Database.URL, "DB_URL")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Fanout.Driver, "FANOUT_DRIVER")
	setString(&cfg.Fanout.Channel, "FANOUT_CHANNEL")
	setString(&cfg.Fanout.FCMCredFile, "FCM_CREDENTIALS_FILE")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	if v, err := readIntEnv("REDIS_DB"); err != nil {
		return fmt.Errorf("parse REDIS_DB: %w", err)
	} else if v != nil {
		cfg.Redis.DB = *v
	}
	if v, err := readIntEnv("PRESENCE_TTL_SECONDS"); err != nil {
		return fmt.Errorf("parse PRESENCE_TTL_SECONDS: %w", err)
	} else if v != nil {
		cfg.Presence.TTL = time.Duration(*v) * time.Second
	}
	if v, err := readIntEnv("MESSAGE_BURST"); err != nil {
		return fmt.Errorf("parse MESSAGE_BURST: %w", err)
	} else if v != nil {
		cfg.Chat.MessageBurst = *v
	}
	if v := os.Getenv("MESSAGES_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse MESSAGES_PER_SECOND: %w", err)
		}
		cfg.Chat.MessagesPerSecond = f
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database url is required")
	}
	switch c.Database.Driver {
	case "mysql", "pgx", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("jwt secret is required")
	}
	switch c.Fanout.Driver {
	case "ws", "noop":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("fanout driver redis needs redis addr")
		}
	default:
		return fmt.Errorf("unsupported fanout driver %q", c.Fanout.Driver)
	}
	if c.Presence.TTL <= 0 {
		return errors.New("presence ttl must be positive")
	}
	if c.Chat.MessagesPerSecond < 0 || c.Chat.MessageBurst < 0 {
		return errors.New("message rate limit must not be negative")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func readIntEnv(key string) (*int, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
