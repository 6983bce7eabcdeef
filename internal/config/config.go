package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "TASKS"

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Port            string
	Storage         string
	ShutdownTimeout time.Duration

	DB    DBConfig
	Redis RedisConfig
	Cache CacheConfig
	Kafka KafkaConfig
	API   APIConfig
	Log   LogConfig
}

type DBConfig struct {
	Driver string
	DSN    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type CacheConfig struct {
	ListTTL time.Duration
}

type KafkaConfig struct {
	Broker  string
	Topic   string
	GroupID string
	LogFile string
}

type APIConfig struct {
	Port        string
	UpstreamURL string
	Timeout     time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8081")
	v.SetDefault("storage", StorageMemory)
	v.SetDefault("shutdown_timeout", 5*time.Second)
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.list_ttl", 15*time.Second)
	v.SetDefault("kafka.broker", "")
	v.SetDefault("kafka.topic", "tasks.events")
	v.SetDefault("kafka.group_id", "kafka-logger-group")
	v.SetDefault("kafka.log_file", "")
	v.SetDefault("api.port", "8080")
	v.SetDefault("api.upstream_url", "http://localhost:8081")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from (in increasing priority) defaults, an
// optional file named by TASKS_CONFIG_FILE, a .env file and the environment.
// Keys map to variables as db.dsn -> TASKS_DB_DSN.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := os.Getenv(envPrefix + "_CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := Config{
		Port:            v.GetString("port"),
		Storage:         strings.ToLower(v.GetString("storage")),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		DB: DBConfig{
			Driver: v.GetString("db.driver"),
			DSN:    v.GetString("db.dsn"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Cache: CacheConfig{
			ListTTL: v.GetDuration("cache.list_ttl"),
		},
		Kafka: KafkaConfig{
			Broker:  v.GetString("kafka.broker"),
			Topic:   v.GetString("kafka.topic"),
			GroupID: v.GetString("kafka.group_id"),
			LogFile: v.GetString("kafka.log_file"),
		},
		API: APIConfig{
			Port:        v.GetString("api.port"),
			UpstreamURL: strings.TrimRight(v.GetString("api.upstream_url"), "/"),
			Timeout:     v.GetDuration("api.timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	return cfg, nil
}

// ValidateServer checks the settings cmd/tasks needs.
func (c Config) ValidateServer() error {
	if c.Port == "" {
		return errors.New("port is not configured")
	}
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.DB.DSN == "" {
			return errors.New("db.dsn is required for postgres storage")
		}
		if c.DB.Driver != "postgres" && c.DB.Driver != "pgx" {
			return fmt.Errorf("db.driver must be postgres or pgx, got %q", c.DB.Driver)
		}
	default:
		return fmt.Errorf("unknown storage %q", c.Storage)
	}
	if c.Kafka.Broker != "" && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when kafka.broker is set")
	}
	return nil
}

func (c Config) ValidateGateway() error {
	if c.API.Port == "" || c.API.UpstreamURL == "" {
		return errors.New("api.port or api.upstream_url is not configured")
	}
	return nil
}

func (c Config) ValidateKafkaLogger() error {
	if c.Kafka.Broker == "" || c.Kafka.Topic == "" || c.Kafka.LogFile == "" {
		return errors.New("kafka.broker, kafka.topic or kafka.log_file is not configured")
	}
	return nil
}
