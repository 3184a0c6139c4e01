package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Database struct {
		Path string
	}
	Log struct {
		Level string
	}
	Auth struct {
		Secret            string
		SessionTTLMinutes int
		SecureCookie      bool
		PasswordHashCost  int
	}
	Upload struct {
		Dir      string
		MaxBytes int64
	}
	Storage struct {
		Backend   string
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
}

// Load reads configuration from environment variables and optional config files.
// Values in a .env file in the working directory never override the real environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("STOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("database.path", "data/stock.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.sessionttlminutes", 24*60)
	v.SetDefault("auth.securecookie", false)
	v.SetDefault("auth.passwordhashcost", 0)
	v.SetDefault("upload.dir", "static/uploads")
	v.SetDefault("upload.maxbytes", 2*1024*1024)
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "product-images")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return errors.New("auth secret is required (STOCK_AUTH_SECRET)")
	}
	if c.Upload.MaxBytes <= 0 {
		return errors.New("upload max bytes must be positive")
	}
	switch c.Storage.Backend {
	case StorageLocal:
		if c.Upload.Dir == "" {
			return errors.New("upload dir is required for local storage")
		}
	case StorageS3:
		if c.Storage.Bucket == "" {
			return errors.New("storage bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}
