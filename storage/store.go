package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"labshare/config"
)

// ErrBlobNotFound wird zurückgegeben, wenn kein Objekt unter dem Schlüssel existiert.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore speichert die Bytes der Content-Blobs. Objekte werden nie überschrieben.
type BlobStore interface {
	// Put legt Daten unter key ab und gibt einen Link auf das Objekt zurück.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Get öffnet das Objekt zum Lesen.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete entfernt das Objekt; ein fehlendes Objekt ist kein Fehler.
	Delete(ctx context.Context, key string) error
}

// NewBlobStore wählt die Implementierung anhand von BLOB_DRIVER.
func NewBlobStore(cfg *config.Config) (BlobStore, error) {
	switch cfg.BlobDriver {
	case "memory":
		return NewMemoryStore(), nil
	case "s3":
		client, err := NewS3Client(cfg)
		if err != nil {
			return nil, err
		}
		return &S3Store{Client: client, Bucket: cfg.S3Bucket, BaseURL: cfg.S3URL}, nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.BlobDriver)
	}
}
