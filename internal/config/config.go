package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	S3        S3Config        `yaml:"s3"`
	Auth      AuthConfig      `yaml:"auth"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Upload    UploadConfig    `yaml:"upload"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `yaml:"port" env:"SERVER_PORT"`
	Interface    string        `yaml:"interface" env:"SERVER_INTERFACE"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
	CORSOrigin   string        `yaml:"cors_origin" env:"SERVER_CORS_ORIGIN"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
}

// PostgresConfig holds PostgreSQL configuration
type PostgresConfig struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST"`
	Port     string `yaml:"port" env:"POSTGRES_PORT"`
	User     string `yaml:"user" env:"POSTGRES_USER"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD"`
	Database string `yaml:"database" env:"POSTGRES_DATABASE"`
	SSLMode  string `yaml:"sslmode" env:"POSTGRES_SSL_MODE"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST"`
	Port     string `yaml:"port" env:"REDIS_PORT"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// S3Config holds object storage configuration
type S3Config struct {
	Region          string `yaml:"region" env:"AWS_REGION"`
	Bucket          string `yaml:"bucket" env:"S3_BUCKET_NAME"`
	AccessKeyID     string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	// Endpoint overrides the S3 endpoint for S3-compatible stores (minio etc.)
	Endpoint string `yaml:"endpoint" env:"S3_ENDPOINT"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret            string `yaml:"secret" env:"JWT_SECRET"`
	ExpirationSeconds int    `yaml:"expiration_seconds" env:"JWT_EXPIRATION_SECONDS"`
}

// WebSocketConfig holds WebSocket timeout configuration
type WebSocketConfig struct {
	InactivityTimeoutSeconds int `yaml:"inactivity_timeout_seconds" env:"WEBSOCKET_INACTIVITY_TIMEOUT_SECONDS"`
	SendBufferSize           int `yaml:"send_buffer_size" env:"WEBSOCKET_SEND_BUFFER_SIZE"`
	MaxMessageBytes          int `yaml:"max_message_bytes" env:"WEBSOCKET_MAX_MESSAGE_BYTES"`
}

// UploadConfig holds file upload configuration
type UploadConfig struct {
	MaxFileSizeMB int `yaml:"max_file_size_mb" env:"UPLOAD_MAX_FILE_SIZE_MB"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level" env:"LOGGING_LEVEL"`
	IsDev            bool   `yaml:"is_dev" env:"LOGGING_IS_DEV"`
	LogDir           string `yaml:"log_dir" env:"LOGGING_LOG_DIR"`
	MaxAgeDays       int    `yaml:"max_age_days" env:"LOGGING_MAX_AGE_DAYS"`
	MaxSizeMB        int    `yaml:"max_size_mb" env:"LOGGING_MAX_SIZE_MB"`
	MaxBackups       int    `yaml:"max_backups" env:"LOGGING_MAX_BACKUPS"`
	AlsoLogToConsole bool   `yaml:"also_log_to_console" env:"LOGGING_ALSO_LOG_TO_CONSOLE"`
}

// Load loads configuration from a YAML file with environment variable overrides
func Load(configFile string) (*Config, error) {
	config := getDefaultConfig()

	if configFile != "" {
		if err := loadFromYAML(config, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config from YAML: %w", err)
		}
	}

	applyEnvOverrides(reflect.ValueOf(config).Elem())

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			Interface:    "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			CORSOrigin:   "http://localhost:3000",
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     "5432",
				User:     "postgres",
				Database: "filecollab",
				SSLMode:  "disable",
			},
			Redis: RedisConfig{
				Host: "localhost",
				Port: "6379",
			},
		},
		S3: S3Config{
			Region: "eu-north-1",
			Bucket: "filecollab",
		},
		Auth: AuthConfig{
			JWT: JWTConfig{
				ExpirationSeconds: 60 * 60 * 24 * 8,
			},
		},
		WebSocket: WebSocketConfig{
			InactivityTimeoutSeconds: 60,
			SendBufferSize:           256,
			MaxMessageBytes:          64 * 1024,
		},
		Upload: UploadConfig{
			MaxFileSizeMB: 10,
		},
		Logging: LoggingConfig{
			Level:            "info",
			LogDir:           "logs",
			MaxAgeDays:       7,
			MaxSizeMB:        100,
			MaxBackups:       10,
			AlsoLogToConsole: true,
		},
	}
}

func loadFromYAML(config *Config, configFile string) error {
	data, err := os.ReadFile(configFile) // #nosec G304 - config path comes from the operator
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", configFile, err)
	}
	return nil
}

// applyEnvOverrides walks the config struct and overrides any field whose
// `env` tag names a set environment variable.
func applyEnvOverrides(v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.Struct {
			applyEnvOverrides(field)
			continue
		}

		envName := t.Field(i).Tag.Get("env")
		if envName == "" {
			continue
		}
		envValue, ok := os.LookupEnv(envName)
		if !ok || envValue == "" {
			continue
		}
		setFieldFromString(field, envValue)
	}
}

func setFieldFromString(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			if d, err := time.ParseDuration(value); err == nil {
				field.SetInt(int64(d))
			}
			return
		}
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(n)
		}
	}
}

// Validate checks that required configuration values are present
func (c *Config) Validate() error {
	if c.Auth.JWT.Secret == "" {
		return fmt.Errorf("auth.jwt.secret is required (set JWT_SECRET)")
	}
	if c.Auth.JWT.ExpirationSeconds <= 0 {
		return fmt.Errorf("auth.jwt.expiration_seconds must be positive")
	}
	if c.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	return nil
}

// PostgresDSN returns the connection string for the configured database
func (c *Config) PostgresDSN() string {
	pg := c.Database.Postgres
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.Database, pg.SSLMode)
}

// RedisAddr returns the host:port address for the configured Redis instance
func (c *Config) RedisAddr() string {
	return c.Database.Redis.Host + ":" + c.Database.Redis.Port
}

// ServerAddr returns the listen address for the HTTP server
func (c *Config) ServerAddr() string {
	return c.Server.Interface + ":" + c.Server.Port
}

// WebSocketInactivityTimeout returns the idle timeout as a duration
func (c *Config) WebSocketInactivityTimeout() time.Duration {
	return time.Duration(c.WebSocket.InactivityTimeoutSeconds) * time.Second
}

// MaxUploadBytes returns the maximum accepted upload size in bytes
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Upload.MaxFileSizeMB) * 1024 * 1024
}
