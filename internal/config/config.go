package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Document store backends.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

// Blob store backends.
const (
	BlobS3     = "s3"
	BlobMemory = "memory"
)

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	DocumentStore        string        `mapstructure:"DOCUMENT_STORE"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	DBSchema             string        `mapstructure:"DB_SCHEMA"`
	MongoURI             string        `mapstructure:"MONGO_URI"`
	MongoDatabase        string        `mapstructure:"MONGO_DATABASE"`
	MongoLicenseDatabase string        `mapstructure:"MONGO_LICENSE_DATABASE"`
	RedisURL             string        `mapstructure:"REDIS_URL"`
	LockTTL              time.Duration `mapstructure:"LOCK_TTL"`
	BlobStore            string        `mapstructure:"BLOB_STORE"`
	S3Bucket             string        `mapstructure:"S3_BUCKET"`
	S3Region             string        `mapstructure:"S3_REGION"`
	S3Endpoint           string        `mapstructure:"S3_ENDPOINT"`
	S3PathStyle          bool          `mapstructure:"S3_PATH_STYLE"`
	S3PublicBaseURL      string        `mapstructure:"S3_PUBLIC_BASE_URL"`
	AWSAccessKeyID       string        `mapstructure:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey   string        `mapstructure:"AWS_SECRET_ACCESS_KEY"`
	ProfileImagePrefix   string        `mapstructure:"PROFILE_IMAGE_PREFIX"`
	PublicBaseURL        string        `mapstructure:"PUBLIC_BASE_URL"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	Timezone             string        `mapstructure:"TIMEZONE"`
	DefaultPassword      string        `mapstructure:"DEFAULT_PASSWORD"`
}

var keys = []string{
	"PORT", "ENV", "DOCUMENT_STORE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_SCHEMA",
	"MONGO_URI", "MONGO_DATABASE", "MONGO_LICENSE_DATABASE", "REDIS_URL", "LOCK_TTL",
	"BLOB_STORE", "S3_BUCKET", "S3_REGION", "S3_ENDPOINT", "S3_PATH_STYLE", "S3_PUBLIC_BASE_URL",
	"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "PROFILE_IMAGE_PREFIX", "PUBLIC_BASE_URL",
	"CORS_ORIGINS", "TIMEZONE", "DEFAULT_PASSWORD",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DOCUMENT_STORE", StorePostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("MONGO_DATABASE", "Main")
	v.SetDefault("MONGO_LICENSE_DATABASE", "production")
	v.SetDefault("LOCK_TTL", "30s")
	v.SetDefault("BLOB_STORE", BlobMemory)
	v.SetDefault("S3_REGION", "us-west-2")
	v.SetDefault("PROFILE_IMAGE_PREFIX", "Dynamo_Profile_Images")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("TIMEZONE", "Asia/Kolkata")
	v.SetDefault("DEFAULT_PASSWORD", "12345678")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.DocumentStore = strings.ToLower(strings.TrimSpace(cfg.DocumentStore))
	cfg.BlobStore = strings.ToLower(strings.TrimSpace(cfg.BlobStore))
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "http://localhost:" + cfg.Port
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that every selected backend has the settings it needs.
func (c *Config) Validate() error {
	switch c.DocumentStore {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DOCUMENT_STORE is %q", StorePostgres)
		}
		if c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when DOCUMENT_STORE is %q", StoreMongo)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("DOCUMENT_STORE must be %q, %q, or %q, got %q", StorePostgres, StoreMongo, StoreMemory, c.DocumentStore)
	}

	switch c.BlobStore {
	case BlobS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when BLOB_STORE is %q", BlobS3)
		}
	case BlobMemory:
	default:
		return fmt.Errorf("BLOB_STORE must be %q or %q, got %q", BlobS3, BlobMemory, c.BlobStore)
	}

	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive, got %s", c.LockTTL)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil && c.Timezone != "Asia/Kolkata" {
		return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}
