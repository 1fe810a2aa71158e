package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Database DatabaseConfig
	Dalux    DaluxConfig
	Storage  StorageConfig
	JWT      JWTConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// QueueConfig controls the job broker. When Fallback is true no broker I/O
// is performed and every enqueue takes the degraded-mode path.
type QueueConfig struct {
	Fallback bool
}

type DatabaseConfig struct {
	URL      string
	QueryLog bool
}

type DaluxConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
	Scope        string
}

type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type JWTConfig struct {
	Secret string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("DATABASE_URL")
	readSecret("DALUX_CLIENT_ID")
	readSecret("DALUX_CLIENT_SECRET")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")
	readSecret("SERVICE_JWT_SECRET")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.log_format", "LOG_FORMAT")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("queue.fallback", "QUEUE_FALLBACK")
	_ = viper.BindEnv("database.url", "DATABASE_URL")
	_ = viper.BindEnv("database.query_log", "DB_QUERY_LOG")
	_ = viper.BindEnv("dalux.client_id", "DALUX_CLIENT_ID")
	_ = viper.BindEnv("dalux.client_secret", "DALUX_CLIENT_SECRET")
	_ = viper.BindEnv("dalux.base_url", "DALUX_BASE_URL")
	_ = viper.BindEnv("dalux.token_url", "DALUX_TOKEN_URL")
	_ = viper.BindEnv("dalux.scope", "DALUX_SCOPE")
	_ = viper.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = viper.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.bucket_name", "STORAGE_BUCKET_NAME")
	_ = viper.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = viper.BindEnv("jwt.secret", "SERVICE_JWT_SECRET")

	// Defaults
	viper.SetDefault("server.port", "8090")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.log_format", "console")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("queue.fallback", false)
	viper.SetDefault("database.query_log", false)

	// Dalux defaults
	viper.SetDefault("dalux.base_url", "https://field.dalux.com/service/api")
	viper.SetDefault("dalux.token_url", "https://identity.dalux.com/oauth/token")
	viper.SetDefault("dalux.scope", "field-api")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			LogFormat: viper.GetString("server.log_format"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Queue: QueueConfig{
			Fallback: viper.GetBool("queue.fallback"),
		},
		Database: DatabaseConfig{
			URL:      viper.GetString("database.url"),
			QueryLog: viper.GetBool("database.query_log"),
		},
		Dalux: DaluxConfig{
			ClientID:     viper.GetString("dalux.client_id"),
			ClientSecret: viper.GetString("dalux.client_secret"),
			BaseURL:      viper.GetString("dalux.base_url"),
			TokenURL:     viper.GetString("dalux.token_url"),
			Scope:        viper.GetString("dalux.scope"),
		},
		Storage: StorageConfig{
			Endpoint:        viper.GetString("storage.endpoint"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			BucketName:      viper.GetString("storage.bucket_name"),
			PublicURL:       viper.GetString("storage.public_url"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
	}

	return cfg, nil
}
