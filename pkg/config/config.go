package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MQConfig struct {
	URL string `yaml:"url"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// IMAPConfig controls the mailbox connector. Window is how far back each
// polling cycle searches; DialTimeoutSeconds bounds connect+auth so one
// unreachable account cannot stall the cycle.
type IMAPConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	WindowMinutes      int    `yaml:"window_minutes"`
	DialTimeoutSeconds int    `yaml:"dial_timeout_seconds"`
}

func (c IMAPConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

func (c IMAPConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutSeconds) * time.Second
}

type ClassifierConfig struct {
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (c ClassifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollerConfig drives the optional interval trigger. IntervalMinutes = 0
// disables it; cycles then run only via the HTTP trigger.
type PollerConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
}

func (c PollerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// SecretsConfig holds the hex-encoded key used to decrypt mail account
// app codes at rest.
type SecretsConfig struct {
	AppCodeKey string `yaml:"app_code_key"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	DB         DBConfig         `yaml:"db"`
	Redis      RedisConfig      `yaml:"redis"`
	MQ         MQConfig         `yaml:"mq"`
	JWT        JWTConfig        `yaml:"jwt"`
	IMAP       IMAPConfig       `yaml:"imap"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Poller     PollerConfig     `yaml:"poller"`
	Secrets    SecretsConfig    `yaml:"secrets"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.yaml"
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	overrideFromEnv(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.IMAP.Port == 0 {
		cfg.IMAP.Port = 993
	}
	if cfg.IMAP.WindowMinutes == 0 {
		cfg.IMAP.WindowMinutes = 60
	}
	if cfg.IMAP.DialTimeoutSeconds == 0 {
		cfg.IMAP.DialTimeoutSeconds = 10
	}
	if cfg.Classifier.TimeoutSeconds == 0 {
		cfg.Classifier.TimeoutSeconds = 30
	}
	if cfg.Classifier.Model == "" {
		cfg.Classifier.Model = "deepseek-chat"
	}
}

func overrideFromEnv(cfg *Config) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DB.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.DB.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DB.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DB.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.DB.Name = name
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.MQ.URL = url
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}

	if endpoint := os.Getenv("CLASSIFIER_ENDPOINT"); endpoint != "" {
		cfg.Classifier.Endpoint = endpoint
	}
	if key := os.Getenv("CLASSIFIER_API_KEY"); key != "" {
		cfg.Classifier.APIKey = key
	}

	if key := os.Getenv("APP_CODE_KEY"); key != "" {
		cfg.Secrets.AppCodeKey = key
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
	}
}
