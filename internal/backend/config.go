package backend

import (
	"fmt"
	"time"

	"receipts/internal/config"
)

// Type selects where receipts and aggregates are kept.
type Type string

const (
	MemoryBackend Type = "memory"
	LocalBackend  Type = "local"
	AWSBackend    Type = "aws"
)

func (t Type) String() string {
	return string(t)
}

func (t Type) IsValid() bool {
	switch t {
	case MemoryBackend, LocalBackend, AWSBackend:
		return true
	}
	return false
}

// Config holds configuration for backend creation.
type Config struct {
	Type Type

	// local
	DataDir      string
	SQLiteDBPath string

	// aws
	AWSRegion     string
	S3Bucket      string
	S3Endpoint    string
	DynamoDBTable string
	PresignTTL    time.Duration
}

// FromAppConfig converts the application config to backend config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	t := Type(appConfig.DataBackend)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:          t,
		DataDir:       appConfig.DataDir,
		SQLiteDBPath:  appConfig.SQLiteDBPath,
		AWSRegion:     appConfig.AWSRegion,
		S3Bucket:      appConfig.S3Bucket,
		S3Endpoint:    appConfig.S3Endpoint,
		DynamoDBTable: appConfig.DynamoDBTable,
		PresignTTL:    appConfig.PresignTTL,
	}, nil
}

// Validate validates the backend configuration.
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case LocalBackend:
		if c.DataDir == "" {
			return fmt.Errorf("data directory is required for local backend")
		}
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for local backend")
		}
	case AWSBackend:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for aws backend")
		}
		if c.AWSRegion == "" {
			return fmt.Errorf("AWS region is required for aws backend")
		}
	}
	return nil
}

// Types returns all valid backend types.
func Types() []Type {
	return []Type{MemoryBackend, LocalBackend, AWSBackend}
}
