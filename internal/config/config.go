package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is read from defaults, then an optional TOML file named by
// CONFIG_FILE, then the environment.
type Config struct {
	// HTTP Server
	Port     string `toml:"port"`
	LogLevel string `toml:"log_level"`

	// Storage
	DataBackend   string        `toml:"data_backend"`
	DataDir       string        `toml:"data_dir"`
	SQLiteDBPath  string        `toml:"sqlite_db_path"`
	AWSRegion     string        `toml:"aws_region"`
	S3Bucket      string        `toml:"s3_bucket"`
	S3Endpoint    string        `toml:"s3_endpoint"`
	DynamoDBTable string        `toml:"dynamodb_table"`
	PresignTTL    time.Duration `toml:"presign_ttl"`

	// OCR
	OCRAPIKey  string        `toml:"ocr_api_key"`
	OCRBaseURL string        `toml:"ocr_base_url"`
	OCRModel   string        `toml:"ocr_model"`
	OCRTimeout time.Duration `toml:"ocr_timeout"`

	MaxUploadMB    int `toml:"max_upload_mb"`
	ImageCacheSize int `toml:"image_cache_size"`

	// AMQP
	AMQPURL      string `toml:"amqp_url"`
	AMQPExchange string `toml:"amqp_exchange"`
	AMQPQueue    string `toml:"amqp_queue"`

	// Google Sheets mirror
	GoogleSpreadsheetID      string `toml:"google_spreadsheet_id"`
	GoogleSheetName          string `toml:"google_sheet_name"`
	GoogleServiceAccountJSON string `toml:"google_service_account_json"`
	GoogleServiceAccountFile string `toml:"google_service_account_file"`
}

// Backends accepted in DATA_BACKEND.
var validBackends = []string{"memory", "local", "aws"}

func Default() Config {
	return Config{
		Port:            "8081",
		LogLevel:        "info",
		DataBackend:     "memory",
		DataDir:         "./data/blobs",
		SQLiteDBPath:    "./data/receipts.db",
		AWSRegion:       "ap-northeast-2",
		S3Bucket:        "",
		DynamoDBTable:   "receipt_total",
		PresignTTL:      5 * time.Minute,
		OCRBaseURL:      "https://router.huggingface.co/v1",
		OCRModel:        "google/gemma-3-27b-it:nebius",
		OCRTimeout:      60 * time.Second,
		MaxUploadMB:     20,
		ImageCacheSize:  64,
		AMQPExchange:    "receipts",
		AMQPQueue:       "period_reconciled",
		GoogleSheetName: "Receipts",
	}
}

// Load builds the configuration. Only a broken CONFIG_FILE is an error;
// use Validate to check the values.
func Load() (*Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.DataBackend = getEnv("DATA_BACKEND", cfg.DataBackend)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.SQLiteDBPath = getEnv("SQLITE_DB_PATH", cfg.SQLiteDBPath)
	cfg.AWSRegion = getEnv("AWS_REGION", cfg.AWSRegion)
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3Endpoint = getEnv("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.DynamoDBTable = getEnv("DYNAMODB_TABLE", cfg.DynamoDBTable)
	cfg.PresignTTL = getEnvDuration("PRESIGN_TTL", cfg.PresignTTL)

	cfg.OCRAPIKey = getEnv("OCR_API_KEY", getEnv("HF_TOKEN", cfg.OCRAPIKey))
	cfg.OCRBaseURL = getEnv("OCR_BASE_URL", cfg.OCRBaseURL)
	cfg.OCRModel = getEnv("OCR_MODEL", cfg.OCRModel)
	cfg.OCRTimeout = getEnvDuration("OCR_TIMEOUT", cfg.OCRTimeout)
	cfg.MaxUploadMB = getEnvInt("MAX_UPLOAD_MB", cfg.MaxUploadMB)
	cfg.ImageCacheSize = getEnvInt("IMAGE_CACHE_SIZE", cfg.ImageCacheSize)

	cfg.AMQPURL = getEnv("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", cfg.AMQPExchange)
	cfg.AMQPQueue = getEnv("AMQP_QUEUE", cfg.AMQPQueue)

	cfg.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", cfg.GoogleSpreadsheetID)
	cfg.GoogleSheetName = getEnv("GOOGLE_SHEET_NAME", cfg.GoogleSheetName)
	cfg.GoogleServiceAccountJSON = getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", cfg.GoogleServiceAccountJSON)
	cfg.GoogleServiceAccountFile = getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", cfg.GoogleServiceAccountFile)

	return &cfg, nil
}

// MaxUploadBytes is the request body limit for upload forms.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Validate checks the settings shared by every binary.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DataBackend {
	case "memory":
	case "local":
		if c.DataDir == "" {
			errs = append(errs, "DATA_DIR cannot be empty when using local backend")
		}
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using local backend")
		}
	case "aws":
		if c.S3Bucket == "" {
			errs = append(errs, "S3_BUCKET is required when using aws backend")
		}
		if c.AWSRegion == "" {
			errs = append(errs, "AWS_REGION is required when using aws backend")
		}
		if c.DynamoDBTable == "" {
			errs = append(errs, "DYNAMODB_TABLE is required when using aws backend")
		}
		if c.S3Endpoint != "" {
			if u, err := url.Parse(c.S3Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, fmt.Sprintf("invalid S3 endpoint '%s'", c.S3Endpoint))
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.PresignTTL < 0 || c.PresignTTL > 7*24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid presign TTL %v: must be between 0 and 168h", c.PresignTTL))
	}
	if c.OCRTimeout < time.Second {
		errs = append(errs, fmt.Sprintf("invalid OCR timeout %v: must be at least 1 second", c.OCRTimeout))
	}
	if c.MaxUploadMB < 1 || c.MaxUploadMB > 200 {
		errs = append(errs, fmt.Sprintf("invalid max upload size %d MB: must be between 1 and 200", c.MaxUploadMB))
	}
	if c.ImageCacheSize < 0 {
		errs = append(errs, fmt.Sprintf("invalid image cache size %d: must not be negative", c.ImageCacheSize))
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	return joinErrors(errs)
}

// ValidateWorker adds the requirements of the sheet mirror worker.
func (c *Config) ValidateWorker() error {
	var errs []string
	if err := c.Validate(); err != nil {
		errs = append(errs, strings.TrimPrefix(err.Error(), "configuration validation failed:\n- "))
	}
	if c.DataBackend == "memory" {
		errs = append(errs, "the worker needs a persistent backend (local or aws)")
	}
	if c.AMQPURL == "" {
		errs = append(errs, "AMQP_URL is required for the worker")
	}
	if c.GoogleSpreadsheetID != "" && c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
		errs = append(errs, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided with GOOGLE_SPREADSHEET_ID")
	}
	return joinErrors(errs)
}

// ErrMissingOCRKey is reported when no OCR credential is configured.
var ErrMissingOCRKey = errors.New("OCR_API_KEY (or HF_TOKEN) is not set")

func (c *Config) CheckOCR() error {
	if strings.TrimSpace(c.OCRAPIKey) == "" {
		return ErrMissingOCRKey
	}
	return nil
}

func joinErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
