package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	DefaultPort         = ":8080"
	DefaultPollInterval = 5 * time.Second
	DefaultIngest       = time.Minute
	DefaultTopic        = "inbox.messages"
	DefaultGroupID      = "inbox-consumer"

	envPrefix = "INBOX_"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Storage StorageConfig `koanf:"storage"`
	Redis   RedisConfig   `koanf:"redis"`
	Queue   QueueConfig   `koanf:"queue"`
	Auth    AuthConfig    `koanf:"auth"`
	Ingest  IngestConfig  `koanf:"ingest"`
	Client  ClientConfig  `koanf:"client"`
}

type ServerConfig struct {
	Port   string `koanf:"port"`
	Prefix string `koanf:"prefix"`
}

// StorageConfig selects the kv backend: memory, redis, postgres or sqlite.
type StorageConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

type RedisConfig struct {
	Addr string `koanf:"addr"`
}

type QueueConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
	GroupID string   `koanf:"group_id"`
}

// AuthConfig holds statically provisioned bearer tokens, keyed by token.
type AuthConfig struct {
	Tokens map[string]UserConfig `koanf:"tokens"`
}

type UserConfig struct {
	UserID string `koanf:"user_id"`
	Name   string `koanf:"name"`
	Avatar string `koanf:"avatar"`
}

type IngestConfig struct {
	Interval time.Duration `koanf:"interval"`
}

type ClientConfig struct {
	BaseURL      string        `koanf:"base_url"`
	Token        string        `koanf:"token"`
	PollInterval time.Duration `koanf:"poll_interval"`
}

// Load reads config.yaml from the working directory.
func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

// LoadFile reads path, overlays INBOX_ environment variables and applies
// defaults. A missing file is not an error. Nested keys use a double
// underscore: INBOX_SERVER__PORT sets server.port.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
		key = strings.ReplaceAll(key, "__", ".")
		if key == "queue.brokers" {
			return key, strings.Split(value, ",")
		}
		return key, value
	}), nil); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Queue.Topic == "" {
		c.Queue.Topic = DefaultTopic
	}
	if c.Queue.GroupID == "" {
		c.Queue.GroupID = DefaultGroupID
	}
	if c.Ingest.Interval <= 0 {
		c.Ingest.Interval = DefaultIngest
	}
	if c.Client.PollInterval <= 0 {
		c.Client.PollInterval = DefaultPollInterval
	}
}
