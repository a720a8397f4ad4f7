package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"labshare/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// NewS3Client erstellt einen S3-Client für den konfigurierten Endpunkt.
func NewS3Client(cfg *config.Config) (*s3.Client, error) {
	return NewS3ClientFor(context.TODO(), cfg.S3URL, cfg.S3Region, cfg.S3Key, cfg.S3Secret)
}

// NewS3ClientFor erstellt einen S3-Client für einen beliebigen S3-kompatiblen Endpunkt
// (MinIO, Strato, AWS). Pfad-Adressierung, da nicht alle Anbieter virtuelle Hosts unterstützen.
func NewS3ClientFor(ctx context.Context, endpoint, region, key, secret string) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")),
	)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
		// S3-kompatible Anbieter lehnen die neuen Default-Checksummen teilweise ab
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	}), nil
}

// S3Store legt Content-Blobs in einem Bucket ab.
type S3Store struct {
	Client  *s3.Client
	Bucket  string
	BaseURL string
}

// Put lädt die Daten hoch und gibt den Link zurück.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.Client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.BaseURL, "/"), s.Bucket, key), nil
}

// Get öffnet ein Objekt aus dem Bucket.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return out.Body, nil
}

// Delete entfernt ein Objekt aus dem Bucket.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
