package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/scrogson/walle/pkg/keystore"
	"github.com/scrogson/walle/pkg/log"
	"github.com/scrogson/walle/pkg/store"
)

const (
	configDirPathEnv     = "WALLE_CONFIG_DIR_PATH"
	defaultConfigDirPath = "."
)

// Config is read from the environment, after loading <config dir>/.env if present.
type Config struct {
	Log      log.Config
	Database store.DatabaseConfig

	// NodePrivateKey signs every RPC response. An ephemeral key is generated when empty.
	NodePrivateKey string `env:"WALLE_NODE_PRIVATE_KEY"`

	ListenAddr  string `env:"WALLE_LISTEN_ADDR" env-default:":8000" validate:"required"`
	MetricsAddr string `env:"WALLE_METRICS_ADDR" env-default:":4242" validate:"required"`

	// AllowKeyExport enables export_private_key.
	AllowKeyExport bool `env:"WALLE_ALLOW_KEY_EXPORT" env-default:"false"`

	// KDFConcurrency bounds how many scrypt/pbkdf2 derivations run at once.
	KDFConcurrency int64 `env:"WALLE_KDF_CONCURRENCY" env-default:"2" validate:"min=1,max=64"`
	// KDFQueueTimeout is how long a request may wait for a KDF slot.
	KDFQueueTimeout time.Duration `env:"WALLE_KDF_QUEUE_TIMEOUT" env-default:"10s" validate:"gt=0"`

	ScryptN int `env:"WALLE_SCRYPT_N" env-default:"8192" validate:"min=2,max=1048576"`
	ScryptR int `env:"WALLE_SCRYPT_R" env-default:"8" validate:"min=1"`
	ScryptP int `env:"WALLE_SCRYPT_P" env-default:"1" validate:"min=1"`
}

// LoadConfig builds the configuration from the environment.
func LoadConfig(logger log.Logger) (*Config, error) {
	logger = logger.WithName("config")

	configDirPath := os.Getenv(configDirPathEnv)
	if configDirPath == "" {
		configDirPath = defaultConfigDirPath
	}

	dotEnvPath := filepath.Join(configDirPath, ".env")
	if err := godotenv.Load(dotEnvPath); err != nil {
		logger.Debug(".env file not loaded", "path", dotEnvPath, "error", err)
	} else {
		logger.Info("loaded .env file", "path", dotEnvPath)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and the scrypt cost.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.ScryptN&(c.ScryptN-1) != 0 {
		return fmt.Errorf("invalid configuration: WALLE_SCRYPT_N must be a power of two, got %d", c.ScryptN)
	}
	return nil
}

// KeystoreParams is the scrypt cost used for new keystores.
func (c *Config) KeystoreParams() keystore.Params {
	return keystore.Params{N: c.ScryptN, R: c.ScryptR, P: c.ScryptP}
}
