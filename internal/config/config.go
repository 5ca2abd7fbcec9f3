// Package config loads and watches the tripkeeper configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// EnvAccessKey overrides the provider access key from the environment
	// (also satisfied by a .env file loaded at startup).
	EnvAccessKey = "TRIPKEEPER_ACCESS_KEY"
	// EnvPassphrase unlocks an encrypted access-key blob.
	EnvPassphrase = "TRIPKEEPER_PASSPHRASE"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ProviderConfig struct {
	BaseURL string `yaml:"base-url"`
	// AccessKey is the plaintext key; prefer the env var or the encrypted
	// blob below for anything that leaves a laptop.
	AccessKey string `yaml:"access-key"`
	// EncryptedKeyFile points at a blob written by `tripkeeper encrypt-key`;
	// it is unlocked with EnvPassphrase.
	EncryptedKeyFile string `yaml:"encrypted-key-file"`
	TimeoutSeconds   int    `yaml:"timeout-seconds"`
}

type QuotaConfig struct {
	MonthlyLimit int `yaml:"monthly-limit"`
}

type SchedulerConfig struct {
	DailyCron          string `yaml:"daily-cron"`
	MiddayCron         string `yaml:"midday-cron"`
	EveningCron        string `yaml:"evening-cron"`
	HourlyCron         string `yaml:"hourly-cron"`
	PacingMilliseconds int    `yaml:"pacing-milliseconds"`
}

type StorageConfig struct {
	// Type selects the document store: file, postgres, s3 or memory.
	Type        string   `yaml:"type"`
	DataDir     string   `yaml:"data-dir"`
	PostgresDSN string   `yaml:"postgres-dsn"`
	S3          S3Config `yaml:"s3"`
}

// S3Config points the s3 store at an S3-compatible service such as MinIO.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access-key"`
	SecretKey string `yaml:"secret-key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use-ssl"`
}

type GitSyncConfig struct {
	Enabled   bool   `yaml:"enabled"`
	RemoteURL string `yaml:"remote-url"`
	Token     string `yaml:"token"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	JSON       bool   `yaml:"json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Provider  ProviderConfig  `yaml:"provider"`
	Quota     QuotaConfig     `yaml:"quota"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Storage   StorageConfig   `yaml:"storage"`
	GitSync   GitSyncConfig   `yaml:"git-sync"`
	Logging   LoggingConfig   `yaml:"logging"`

	// VacationsFile is the itinerary source document owned by the vacation
	// application; tripkeeper only reads it.
	VacationsFile string `yaml:"vacations-file"`
}

// Load reads a YAML config file and applies defaults and env overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s failed: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s failed: %w", path, err)
		}
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8317
	}
	if c.Quota.MonthlyLimit <= 0 {
		c.Quota.MonthlyLimit = 100
	}
	if c.Provider.TimeoutSeconds <= 0 {
		c.Provider.TimeoutSeconds = 20
	}
	if c.Scheduler.DailyCron == "" {
		c.Scheduler.DailyCron = "0 6 * * *"
	}
	if c.Scheduler.MiddayCron == "" {
		c.Scheduler.MiddayCron = "30 12 * * *"
	}
	if c.Scheduler.EveningCron == "" {
		c.Scheduler.EveningCron = "30 18 * * *"
	}
	if c.Scheduler.HourlyCron == "" {
		c.Scheduler.HourlyCron = "15 * * * *"
	}
	if c.Scheduler.PacingMilliseconds <= 0 {
		c.Scheduler.PacingMilliseconds = 1000
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "file"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 10
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = 3
	}
	if c.VacationsFile == "" {
		c.VacationsFile = "vacations.json"
	}
}

func (c *Config) applyEnv() {
	if key := strings.TrimSpace(os.Getenv(EnvAccessKey)); key != "" {
		c.Provider.AccessKey = key
	}
}

// ResolveAccessKey returns the provider key, decrypting the configured blob
// when no plaintext key is present.
func (c *Config) ResolveAccessKey() (string, error) {
	if c.Provider.AccessKey != "" {
		return c.Provider.AccessKey, nil
	}
	if c.Provider.EncryptedKeyFile == "" {
		return "", nil
	}
	blob, err := os.ReadFile(c.Provider.EncryptedKeyFile)
	if err != nil {
		return "", fmt.Errorf("config: read encrypted key file failed: %w", err)
	}
	passphrase := os.Getenv(EnvPassphrase)
	if passphrase == "" {
		return "", fmt.Errorf("config: %s not set, cannot unlock encrypted key", EnvPassphrase)
	}
	key, err := DecryptSecret(passphrase, strings.TrimSpace(string(blob)))
	if err != nil {
		return "", err
	}
	return string(key), nil
}

// PacingDuration converts the configured pacing to a duration.
func (c *Config) PacingDuration() time.Duration {
	return time.Duration(c.Scheduler.PacingMilliseconds) * time.Millisecond
}

// ProviderTimeout converts the configured provider timeout to a duration.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}
