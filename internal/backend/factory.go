package backend

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"receipts/internal/blobstore/local"
	blobmemory "receipts/internal/blobstore/memory"
	blobs3 "receipts/internal/blobstore/s3"
	applog "receipts/internal/log"
	"receipts/internal/recordstore/dynamo"
	recordmemory "receipts/internal/recordstore/memory"
	"receipts/internal/storage"
)

// DefaultFactory implements the Factory interface.
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(applog.FieldComponent, applog.ComponentBackend),
	}
}

// Create implements Factory.Create.
func (f *DefaultFactory) Create(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case MemoryBackend:
		return f.createMemoryBackend()
	case LocalBackend:
		return f.createLocalBackend(cfg)
	case AWSBackend:
		return f.createAWSBackend(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend() (*Result, error) {
	f.logger.Warn("Initialized memory backend, data is lost on restart")
	return &Result{
		Type:    MemoryBackend,
		Blobs:   blobmemory.New(),
		Records: recordmemory.New(),
	}, nil
}

func (f *DefaultFactory) createLocalBackend(cfg Config) (*Result, error) {
	blobs, err := local.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local blob store: %w", err)
	}

	records, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	f.logger.Info("Initialized local backend",
		"data_dir", cfg.DataDir,
		"db_path", cfg.SQLiteDBPath)

	return &Result{
		Type:    LocalBackend,
		Blobs:   blobs,
		Records: records,
		Cleanup: records.Close,
	}, nil
}

func (f *DefaultFactory) createAWSBackend(ctx context.Context, cfg Config) (*Result, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	blobs, err := blobs3.New(awsCfg, cfg.S3Bucket, cfg.S3Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 store: %w", err)
	}
	records := dynamo.New(awsCfg, cfg.DynamoDBTable)

	f.logger.Info("Initialized AWS backend",
		"region", cfg.AWSRegion,
		"bucket", cfg.S3Bucket,
		"table", cfg.DynamoDBTable,
		"custom_endpoint", cfg.S3Endpoint != "")

	return &Result{
		Type:    AWSBackend,
		Blobs:   blobs,
		Records: records,
	}, nil
}
