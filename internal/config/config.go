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

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	GRPC          GRPCConfig          `mapstructure:"grpc"`
	MongoDB       MongoDBConfig       `mapstructure:"mongodb"`
	Redis         RedisConfig         `mapstructure:"redis"`
	RabbitMQ      RabbitMQConfig      `mapstructure:"rabbitmq"`
	Consul        ConsulConfig        `mapstructure:"consul"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	SMTP          SMTPConfig          `mapstructure:"smtp"`
	Realtime      RealtimeConfig      `mapstructure:"realtime"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Jobs          JobsConfig          `mapstructure:"jobs"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Log           LogConfig           `mapstructure:"log"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Host           string        `mapstructure:"host"`
	ServiceName    string        `mapstructure:"service_name"`
	ServiceID      string        `mapstructure:"service_id"`
	ServiceAddress string        `mapstructure:"service_address"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

type GRPCConfig struct {
	Port string `mapstructure:"port"`
}

type MongoDBConfig struct {
	URI                   string        `mapstructure:"uri"`
	Database              string        `mapstructure:"database"`
	PoolSize              uint64        `mapstructure:"pool_size"`
	Timeout               time.Duration `mapstructure:"timeout"`
	UsersCollection       string        `mapstructure:"users_collection"`
	PreferencesCollection string        `mapstructure:"preferences_collection"`
	AlertsCollection      string        `mapstructure:"alerts_collection"`
	LogsCollection        string        `mapstructure:"logs_collection"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RabbitMQConfig struct {
	// URI empty disables event consumption and publication.
	URI      string `mapstructure:"uri"`
	Exchange string `mapstructure:"exchange"`
	Queue    string `mapstructure:"queue"`
}

type ConsulConfig struct {
	Address string `mapstructure:"address"`
	Enabled bool   `mapstructure:"enabled"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
}

type RealtimeConfig struct {
	Port               string        `mapstructure:"port"`
	Path               string        `mapstructure:"path"`
	RevalidateInterval time.Duration `mapstructure:"revalidate_interval"`
	PendingLimit       int           `mapstructure:"pending_limit"`
	AllowedOrigins     []string      `mapstructure:"allowed_origins"`
}

type NotificationsConfig struct {
	DuplicateWindow    time.Duration `mapstructure:"duplicate_window"`
	BrowserConcurrency int           `mapstructure:"browser_concurrency"`
	LogRetention       time.Duration `mapstructure:"log_retention"`
}

// JobsConfig holds one schedule per job: "HH:MM" runs daily at that UTC
// time, a duration such as "30m" runs at that interval, "off" disables it.
type JobsConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
	Calendar   string        `mapstructure:"calendar"`
	Tasks      string        `mapstructure:"tasks"`
	Movements  string        `mapstructure:"movements"`
	Judicial   string        `mapstructure:"judicial"`
	Inactivity string        `mapstructure:"inactivity"`
	LogCleanup string        `mapstructure:"log_cleanup"`
}

type StorageConfig struct {
	// Driver is "mongo" or "memory".
	Driver string `mapstructure:"driver"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

// envBindings maps config keys to the environment names shared with the
// other platform services.
var envBindings = map[string]string{
	"server.port":            "PORT",
	"server.host":            "HOST",
	"server.service_name":    "SERVICE_NAME",
	"server.service_address": "SERVICE_ADDRESS",
	"grpc.port":              "GRPC_PORT",
	"mongodb.uri":            "MONGODB_URI",
	"mongodb.database":       "NOTIFICATION_MONGO_DB",
	"redis.addr":             "REDIS_ADDR",
	"redis.password":         "REDIS_PWD",
	"redis.db":               "REDIS_DB",
	"rabbitmq.uri":           "RABBITMQ_URI",
	"consul.address":         "CONSUL_ADDRESS",
	"jwt.secret":             "JWT_SECRET",
	"smtp.host":              "SMTP_HOST",
	"smtp.port":              "SMTP_PORT",
	"smtp.username":          "SMTP_USERNAME",
	"smtp.password":          "SMTP_PASSWORD",
	"smtp.from":              "SMTP_FROM",
	"realtime.port":          "WS_PORT",
	"storage.driver":         "STORAGE_DRIVER",
	"log.level":              "LOG_LEVEL",
	"log.dir":                "LOG_DIR",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.service_name", "notification-service")
	v.SetDefault("server.service_address", "notification-service")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)

	v.SetDefault("grpc.port", "9090")

	v.SetDefault("mongodb.uri", "mongodb://mongodb:27017")
	v.SetDefault("mongodb.database", "law_platform")
	v.SetDefault("mongodb.pool_size", 100)
	v.SetDefault("mongodb.timeout", 10*time.Second)
	v.SetDefault("mongodb.users_collection", "users")
	v.SetDefault("mongodb.preferences_collection", "userpreferences")
	v.SetDefault("mongodb.alerts_collection", "alerts")
	v.SetDefault("mongodb.logs_collection", "notificationlogs")

	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("rabbitmq.uri", "")
	v.SetDefault("rabbitmq.exchange", "notification.events")
	v.SetDefault("rabbitmq.queue", "notification.events")

	v.SetDefault("consul.address", "consul-server:8500")
	v.SetDefault("consul.enabled", false)

	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", "587")
	v.SetDefault("smtp.from", "notificaciones@example.com")
	v.SetDefault("smtp.from_name", "Notificaciones")

	v.SetDefault("realtime.port", "8081")
	v.SetDefault("realtime.path", "/ws")
	v.SetDefault("realtime.revalidate_interval", 5*time.Minute)
	v.SetDefault("realtime.pending_limit", 50)
	v.SetDefault("realtime.allowed_origins", []string{})

	v.SetDefault("notifications.duplicate_window", 5*time.Second)
	v.SetDefault("notifications.browser_concurrency", 8)
	v.SetDefault("notifications.log_retention", 90*24*time.Hour)

	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.lock_ttl", 30*time.Minute)
	v.SetDefault("jobs.calendar", "08:00")
	v.SetDefault("jobs.tasks", "08:15")
	v.SetDefault("jobs.movements", "08:30")
	v.SetDefault("jobs.judicial", "15m")
	v.SetDefault("jobs.inactivity", "09:00")
	v.SetDefault("jobs.log_cleanup", "03:00")

	v.SetDefault("storage.driver", "mongo")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "")
}

// Load reads .env, then config/config.yaml when present, then the
// environment. Later sources win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return parse(v)
}

func parse(v *viper.Viper) (*Config, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if c.Server.ServiceID == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "1"
		}
		c.Server.ServiceID = c.Server.ServiceName + "-" + host
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required (set JWT_SECRET)")
	}
	switch c.Storage.Driver {
	case "mongo", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Notifications.DuplicateWindow <= 0 {
		return fmt.Errorf("notifications.duplicate_window must be positive")
	}
	if c.Realtime.PendingLimit <= 0 {
		return fmt.Errorf("realtime.pending_limit must be positive")
	}
	return nil
}
