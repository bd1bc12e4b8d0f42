package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Storage   StorageConfig   `yaml:"storage"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Chat      ChatConfig      `yaml:"chat"`
}

// ServerConfig HTTP server settings
type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// DatabaseConfig database settings; Driver is mysql or sqlite
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"` // for sqlite this is the file path
	Charset  string `yaml:"charset"`
	MaxIdle  int    `yaml:"maxIdle"`
	MaxOpen  int    `yaml:"maxOpen"`
	LogSQL   bool   `yaml:"logSQL"`
}

// JWTConfig token settings
type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	ExpireTime time.Duration `yaml:"expireTime"`
	Issuer     string        `yaml:"issuer"`
}

// LogConfig log file and rotation settings
type LogConfig struct {
	Level      string `yaml:"level"`
	Filename   string `yaml:"filename"`
	MaxSize    int    `yaml:"maxSize"` // MB
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"` // days
	Compress   bool   `yaml:"compress"`
}

// RedisConfig presence mirror settings
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// WebSocketConfig heartbeat and inbound limits
type WebSocketConfig struct {
	PingInterval   time.Duration `yaml:"pingInterval"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	MaxMessageSize int64         `yaml:"maxMessageSize"`
	SendBuffer     int           `yaml:"sendBuffer"`
	RatePerSecond  float64       `yaml:"ratePerSecond"` // inbound frames per connection
	RateBurst      int           `yaml:"rateBurst"`
}

// StorageConfig attachment storage; Driver is local or s3
type StorageConfig struct {
	Driver    string `yaml:"driver"`
	LocalDir  string `yaml:"localDir"`
	PublicURL string `yaml:"publicURL"` // prefix under which local uploads are served
	S3Bucket  string `yaml:"s3Bucket"`
	S3Region  string `yaml:"s3Region"`
}

// KafkaConfig admin event mirror
type KafkaConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Brokers         []string      `yaml:"brokers"`
	Topic           string        `yaml:"topic"`
	BreakerFailures uint32        `yaml:"breakerFailures"`
	BreakerTimeout  time.Duration `yaml:"breakerTimeout"`
}

// OutboxConfig deferred side effect workers
type OutboxConfig struct {
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queueSize"`
	TaskTTL   time.Duration `yaml:"taskTTL"`
}

// ChatConfig messaging rules
type ChatConfig struct {
	RecallPlaceholder string `yaml:"recallPlaceholder"`
	MaxReactionTypes  int    `yaml:"maxReactionTypes"`
	MaxContentLength  int    `yaml:"maxContentLength"`
}

// LoadConfig loads config/config.yaml and applies environment overrides.
// A .env file in the working directory is loaded first when present.
func LoadConfig() *Config {
	return Load("config/config.yaml")
}

// Load is LoadConfig with an explicit YAML path
func Load(filePath string) *Config {
	// 1. .env only fills variables that are not already set
	_ = godotenv.Load()

	// 2. YAML file, falling back to defaults
	config := loadFromYAML(filePath)

	// 3. environment variables take precedence
	overrideWithEnvVars(config)

	return config
}

func loadFromYAML(filePath string) *Config {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return getDefaultConfig()
	}

	// unmarshal on top of defaults so missing sections keep sane values
	config := getDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return getDefaultConfig()
	}

	return config
}

func overrideWithEnvVars(config *Config) {
	// server
	if port := getEnv("SERVER_PORT", ""); port != "" {
		config.Server.Port = port
	}
	if timeout := getEnvDuration("SERVER_READ_TIMEOUT", 0); timeout > 0 {
		config.Server.ReadTimeout = timeout
	}
	if timeout := getEnvDuration("SERVER_WRITE_TIMEOUT", 0); timeout > 0 {
		config.Server.WriteTimeout = timeout
	}
	if timeout := getEnvDuration("SERVER_IDLE_TIMEOUT", 0); timeout > 0 {
		config.Server.IdleTimeout = timeout
	}

	// database
	if driver := getEnv("DB_DRIVER", ""); driver != "" {
		config.Database.Driver = driver
	}
	if host := getEnv("DB_HOST", ""); host != "" {
		config.Database.Host = host
	}
	if port := getEnvInt("DB_PORT", 0); port > 0 {
		config.Database.Port = port
	}
	if username := getEnv("DB_USERNAME", ""); username != "" {
		config.Database.Username = username
	}
	if password := getEnv("DB_PASSWORD", ""); password != "" {
		config.Database.Password = password
	}
	if database := getEnv("DB_DATABASE", ""); database != "" {
		config.Database.Database = database
	}
	if maxIdle := getEnvInt("DB_MAX_IDLE", 0); maxIdle > 0 {
		config.Database.MaxIdle = maxIdle
	}
	if maxOpen := getEnvInt("DB_MAX_OPEN", 0); maxOpen > 0 {
		config.Database.MaxOpen = maxOpen
	}
	config.Database.LogSQL = getEnvBool("DB_LOG_SQL", config.Database.LogSQL)

	// jwt
	if secret := getEnv("JWT_SECRET", ""); secret != "" {
		config.JWT.Secret = secret
	}
	if expireTime := getEnvDuration("JWT_EXPIRE_TIME", 0); expireTime > 0 {
		config.JWT.ExpireTime = expireTime
	}
	if issuer := getEnv("JWT_ISSUER", ""); issuer != "" {
		config.JWT.Issuer = issuer
	}

	// log
	if level := getEnv("LOG_LEVEL", ""); level != "" {
		config.Log.Level = level
	}
	if filename := getEnv("LOG_FILENAME", ""); filename != "" {
		config.Log.Filename = filename
	}

	// redis
	config.Redis.Enabled = getEnvBool("REDIS_ENABLED", config.Redis.Enabled)
	if host := getEnv("REDIS_HOST", ""); host != "" {
		config.Redis.Host = host
	}
	if port := getEnvInt("REDIS_PORT", 0); port > 0 {
		config.Redis.Port = port
	}
	if password := getEnv("REDIS_PASSWORD", ""); password != "" {
		config.Redis.Password = password
	}
	if db := getEnvInt("REDIS_DB", -1); db >= 0 {
		config.Redis.DB = db
	}

	// websocket
	if d := getEnvDuration("WS_PING_INTERVAL", 0); d > 0 {
		config.WebSocket.PingInterval = d
	}
	if d := getEnvDuration("WS_READ_TIMEOUT", 0); d > 0 {
		config.WebSocket.ReadTimeout = d
	}
	if rps := getEnvInt("WS_RATE_PER_SECOND", 0); rps > 0 {
		config.WebSocket.RatePerSecond = float64(rps)
	}

	// storage
	if driver := getEnv("STORAGE_DRIVER", ""); driver != "" {
		config.Storage.Driver = driver
	}
	if dir := getEnv("STORAGE_LOCAL_DIR", ""); dir != "" {
		config.Storage.LocalDir = dir
	}
	if bucket := getEnv("S3_BUCKET", ""); bucket != "" {
		config.Storage.S3Bucket = bucket
	}
	if region := getEnv("AWS_REGION", ""); region != "" {
		config.Storage.S3Region = region
	}

	// kafka
	config.Kafka.Enabled = getEnvBool("KAFKA_ENABLED", config.Kafka.Enabled)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		config.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if topic := getEnv("KAFKA_ADMIN_TOPIC", ""); topic != "" {
		config.Kafka.Topic = topic
	}

	// outbox
	if workers := getEnvInt("OUTBOX_WORKERS", 0); workers > 0 {
		config.Outbox.Workers = workers
	}

	// chat
	if placeholder := getEnv("CHAT_RECALL_PLACEHOLDER", ""); placeholder != "" {
		config.Chat.RecallPlaceholder = placeholder
	}
}

func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			Username: "im_user",
			Password: "",
			Database: "im_social",
			Charset:  "utf8mb4",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		JWT: JWTConfig{
			Secret:     "change-me",
			ExpireTime: 24 * time.Hour,
			Issuer:     "im-social",
		},
		Log: LogConfig{
			Level:      "info",
			Filename:   "logs/app.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
		Redis: RedisConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    6379,
		},
		WebSocket: WebSocketConfig{
			PingInterval:   30 * time.Second,
			ReadTimeout:    90 * time.Second,
			WriteTimeout:   10 * time.Second,
			MaxMessageSize: 64 * 1024,
			SendBuffer:     256,
			RatePerSecond:  20,
			RateBurst:      40,
		},
		Storage: StorageConfig{
			Driver:    "local",
			LocalDir:  "uploads",
			PublicURL: "/uploads/",
		},
		Kafka: KafkaConfig{
			Enabled:         false,
			Brokers:         []string{"localhost:9092"},
			Topic:           "im.admin.events",
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Outbox: OutboxConfig{
			Workers:   4,
			QueueSize: 1024,
			TaskTTL:   10 * time.Second,
		},
		Chat: ChatConfig{
			RecallPlaceholder: "This message was recalled by an administrator",
			MaxReactionTypes:  3,
			MaxContentLength:  4000,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
