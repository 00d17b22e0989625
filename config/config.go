package config

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"
)

const DefaultPath = "config/config.json"

type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Kafka     KafkaConfig     `json:"kafka"`
	Auth      AuthConfig      `json:"auth"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Log       LogConfig       `json:"log"`
	Client    ClientConfig    `json:"client"`
}

type ServerConfig struct {
	Addr           string   `json:"addr"`
	BasePath       string   `json:"base_path"`
	AllowedOrigins []string `json:"allowed_origins"`
	ReadTimeout    int      `json:"read_timeout"`  // in seconds
	WriteTimeout   int      `json:"write_timeout"` // in seconds
}

type DatabaseConfig struct {
	Driver string `json:"driver"` // postgres, sqlite
	DSN    string `json:"dsn"`
}

type RedisConfig struct {
	Addr     string `json:"addr"` // empty disables rate limiting and presence
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type KafkaConfig struct {
	Brokers   []string `json:"brokers"` // empty disables the event log
	Topic     string   `json:"topic"`
	GroupID   string   `json:"group_id"`
	Username  string   `json:"username"`
	Password  string   `json:"password"`
	Mechanism string   `json:"mechanism"` // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	UseTLS    bool     `json:"use_tls"`
	CertFile  string   `json:"cert_file"`
	KeyFile   string   `json:"key_file"`
	CAFile    string   `json:"ca_file"`
}

type AuthConfig struct {
	Enabled     bool   `json:"enabled"`
	JWTSecret   string `json:"jwt_secret"`
	TokenExpiry int    `json:"token_expiry"` // in hours
}

type RateLimitConfig struct {
	Enabled       bool   `json:"enabled"`
	Limit         int    `json:"limit"`
	WindowSeconds int    `json:"window_seconds"`
	Strategy      string `json:"strategy"` // fixed_window, token_bucket
}

type LogConfig struct {
	Level string `json:"level"`
}

type ClientConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// LoadConfig reads the JSON file at path, then applies .env and process
// environment overrides. A missing file is not an error when path is the
// default, so a deployment can be configured from the environment alone.
func LoadConfig(path string) (Config, error) {
	config, err := load(path)
	if err != nil {
		return config, err
	}
	return config, config.Validate()
}

// LoadClientConfig loads the same sources as LoadConfig but skips the
// server-side checks, so the terminal clients run without a database
// section.
func LoadClientConfig(path string) (Config, error) {
	return load(path)
}

func load(path string) (config Config, err error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv("CHAT_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = DefaultPath
	}

	if err := readFile(path, &config); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return config, err
		}
	}

	_ = godotenv.Load()
	config.applyEnv()
	config.applyDefaults()
	return config, nil
}

func readFile(path string, config *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func(file *os.File) {
		closeErr := file.Close()
		if closeErr != nil {
			log.Warnf("Error closing config file: %v", closeErr)
		}
	}(file)
	return json.NewDecoder(file).Decode(config)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CHAT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("CHAT_AUTH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Auth.Enabled = b
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CHAT_BASE_URL"); v != "" {
		c.Client.BaseURL = v
	}
	if v := os.Getenv("CHAT_BASE_PATH"); v != "" {
		c.Server.BasePath = v
	}
	if v := os.Getenv("CHAT_CLIENT_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Client.TimeoutSeconds = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/api/chat"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "chat-events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "chat-notify"
	}
	if c.Auth.TokenExpiry == 0 {
		c.Auth.TokenExpiry = 12
	}
	if c.RateLimit.Limit == 0 {
		c.RateLimit.Limit = 30
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 60
	}
	if c.RateLimit.Strategy == "" {
		c.RateLimit.Strategy = "fixed_window"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Client.BaseURL == "" {
		c.Client.BaseURL = "http://localhost:8080"
	}
	if c.Client.TimeoutSeconds == 0 {
		c.Client.TimeoutSeconds = 10
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return errors.New("database.driver must be postgres or sqlite")
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required when auth is enabled")
	}
	return nil
}

func (s ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

func (a AuthConfig) Expiry() time.Duration {
	return time.Duration(a.TokenExpiry) * time.Hour
}

func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LogLevel maps the configured level name onto gommon levels.
func (l LogConfig) LogLevel() log.Lvl {
	switch strings.ToLower(l.Level) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
