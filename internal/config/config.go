// Package config resolves the environment variables recognized by the
// control plane into a typed Config, read once at startup by cmd/landctl.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Postgres holds the connection parameters for the relational store.
type Postgres struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	PoolSize int
}

// S3 holds the bootstrap S3 credentials read at process start. Once
// ConfigStore's storage-s3 setting is populated these are superseded; they
// exist so a fresh deployment can come up before anyone has called the
// admin API.
type S3 struct {
	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	RootPath        string
	BucketBasepath  string
}

// Clerk holds the external auth provider's public configuration.
type Clerk struct {
	PublishableKey string
	SecretKey      string
	JavaScriptSrc  string
}

// Config is every environment variable spec.md §6 recognizes.
type Config struct {
	Postgres Postgres
	S3       S3
	Clerk    Clerk

	// ServerToken authenticates this process's own worker-facing calls and
	// doubles as the key material for pkg/secretbox (see DESIGN.md).
	ServerToken string
	ServerURL   string
	DataDir     string
}

// Load reads Config from the process environment.
func Load() (Config, error) {
	poolSize := 10
	if v := os.Getenv("DB_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: DB_POOL_SIZE: %w", err)
		}
		poolSize = n
	}

	return Config{
		Postgres: Postgres{
			Host:     os.Getenv("POSTGRES_HOST"),
			Port:     os.Getenv("POSTGRES_PORT"),
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			Database: os.Getenv("POSTGRES_DATABASE"),
			PoolSize: poolSize,
		},
		S3: S3{
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          os.Getenv("S3_REGION"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			RootPath:        os.Getenv("S3_ROOT_PATH"),
			BucketBasepath:  os.Getenv("S3_BUCKET_BASEPATH"),
		},
		Clerk: Clerk{
			PublishableKey: os.Getenv("CLERK_PUBLISHABLE_KEY"),
			SecretKey:      os.Getenv("CLERK_SECRET_KEY"),
			JavaScriptSrc:  os.Getenv("CLERK_JAVASCRIPT_SRC"),
		},
		ServerToken: os.Getenv("LAND_SERVER_TOKEN"),
		ServerURL:   os.Getenv("LAND_SERVER_URL"),
		DataDir:     envOr("LAND_DATA_DIR", "./land-data"),
	}, nil
}

// DSN renders the Postgres connection string for jackc/pgx.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Password, p.Database)
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
