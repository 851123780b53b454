package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig параметры подключения к Cloud Storage
type GCSConfig struct {
	Bucket          string
	CredentialsFile string
	CredentialsJSON string
}

// GCSStore хранилище объектов в бакете Cloud Storage
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore создает клиент Cloud Storage для бакета
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("GCS bucket name is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	} else if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStore{client: client, bucket: cfg.Bucket}, nil
}

// Ping проверяет доступность бакета
func (g *GCSStore) Ping(ctx context.Context) error {
	if _, err := g.client.Bucket(g.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", g.bucket, err)
	}
	return nil
}

func (g *GCSStore) Read(ctx context.Context, name string) ([]byte, error) {
	reader, err := g.client.Bucket(g.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", g.bucket, name, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", g.bucket, name, err)
	}
	return data, nil
}

func (g *GCSStore) Write(ctx context.Context, name string, data []byte, contentType string) error {
	writer := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", g.bucket, name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs://%s/%s: %w", g.bucket, name, err)
	}
	return nil
}

func (g *GCSStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := g.client.Bucket(g.bucket).Object(name).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat gs://%s/%s: %w", g.bucket, name, err)
	}
	return true, nil
}

// Close закрывает клиент Cloud Storage
func (g *GCSStore) Close() error {
	return g.client.Close()
}
