// Package objectstore provides the typed get/put/head client (C3) over an
// S3-compatible object store, translating provider error codes directly
// into the engine's closed error-kind taxonomy.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hitoshura25/etl-narrative-engine/internal/config"
	"github.com/hitoshura25/etl-narrative-engine/internal/errkind"
	"github.com/hitoshura25/etl-narrative-engine/internal/logger"
	"github.com/hitoshura25/etl-narrative-engine/internal/resilience"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Info describes an object's metadata, as returned by Head.
type Info struct {
	SizeBytes   int64
	ContentType string
	ETag        string
}

// Client is what the consumer, training emitter, and quarantine path talk
// to. A single implementation backs both read and write paths.
type Client interface {
	Get(ctx context.Context, key string, maxSizeBytes int64) ([]byte, error)
	Put(ctx context.Context, key string, content []byte, contentType string) error
	Head(ctx context.Context, key string) (*Info, error)
	// AppendViaReadModifyWrite reads the current object (absent treated as
	// empty), passes it to appender, and writes the result back. Callers
	// serialize concurrent appends to the same key themselves (C7).
	AppendViaReadModifyWrite(ctx context.Context, key string, appender func(existing []byte) ([]byte, error)) error
}

// minioClient is the production Client, backed by an S3-compatible SDK.
type minioClient struct {
	sdk          *minio.Client
	bucket       string
	log          logger.Logger
	retry        resilience.RetryConfig
	circuit      *resilience.CircuitBreaker
}

// New constructs a Client from the engine's object-store configuration.
func New(cfg *config.ObjectStoreConfig, log logger.Logger) (Client, error) {
	if log == nil {
		log = logger.NoOp{}
	}

	sdk, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: construct client: %w", err)
	}

	return &minioClient{
		sdk:     sdk,
		bucket:  cfg.Bucket,
		log:     log.WithComponent("objectstore"),
		retry:   resilience.DefaultRetryConfig(),
		circuit: resilience.NewCircuitBreaker(5, 30*time.Second),
	}, nil
}

// Get downloads key, refusing blobs whose declared size exceeds
// maxSizeBytes before reading the body.
func (c *minioClient) Get(ctx context.Context, key string, maxSizeBytes int64) ([]byte, error) {
	c.log.Info("downloading_object", "key", key)

	var data []byte
	err := c.circuit.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, c.retry, func(ctx context.Context) error {
			obj, err := c.sdk.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
			if err != nil {
				return classifyMinioError("get", key, err)
			}
			defer obj.Close()

			info, err := obj.Stat()
			if err != nil {
				return classifyMinioError("stat", key, err)
			}
			if maxSizeBytes > 0 && info.Size > maxSizeBytes {
				return errkind.New("get", errkind.Validation, fmt.Errorf(
					"object %q size %d exceeds max_size_bytes %d", key, info.Size, maxSizeBytes))
			}

			buf, err := io.ReadAll(obj)
			if err != nil {
				return errkind.New("get", errkind.Network, fmt.Errorf("read body: %w", err))
			}
			data = buf
			return nil
		})
	})
	if err != nil {
		c.log.Error("download_failed", "key", key, "error", err.Error())
		return nil, err
	}

	c.log.Info("object_downloaded", "key", key, "size_bytes", len(data))
	return data, nil
}

// Put uploads content to key.
func (c *minioClient) Put(ctx context.Context, key string, content []byte, contentType string) error {
	c.log.Info("uploading_object", "key", key, "size_bytes", len(content))

	err := c.circuit.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, c.retry, func(ctx context.Context) error {
			_, err := c.sdk.PutObject(ctx, c.bucket, key, bytes.NewReader(content), int64(len(content)),
				minio.PutObjectOptions{ContentType: contentType})
			if err != nil {
				return classifyMinioError("put", key, err)
			}
			return nil
		})
	})
	if err != nil {
		c.log.Error("upload_failed", "key", key, "error", err.Error())
		return err
	}
	return nil
}

// Head returns object metadata without downloading the body, or
// errkind.ErrNotFound if absent.
func (c *minioClient) Head(ctx context.Context, key string) (*Info, error) {
	var info *Info
	err := c.circuit.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, c.retry, func(ctx context.Context) error {
			stat, err := c.sdk.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
			if err != nil {
				return classifyMinioError("head", key, err)
			}
			info = &Info{SizeBytes: stat.Size, ContentType: stat.ContentType, ETag: stat.ETag}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// AppendViaReadModifyWrite is the primitive the training emitter (C7) uses
// to grow an append-only JSONL object. A missing key is treated as empty
// content rather than a not_found error.
func (c *minioClient) AppendViaReadModifyWrite(ctx context.Context, key string, appender func(existing []byte) ([]byte, error)) error {
	existing, err := c.Get(ctx, key, 0)
	if err != nil {
		var classified *errkind.Classified
		if !errors.As(err, &classified) || classified.Kind != errkind.NotFound {
			return err
		}
		existing = nil
	}

	updated, err := appender(existing)
	if err != nil {
		return err
	}

	return c.Put(ctx, key, updated, "application/x-ndjson")
}
