// Package s3storage stores uploaded media in an S3 compatible bucket.
package s3storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config describes the target bucket. Endpoint is set for S3 compatible
// stores such as MinIO; PublicBaseURL overrides the URL returned for objects.
type Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Store uploads objects with the multipart-aware transfer manager.
type Store struct {
	uploader uploader
	bucket   string
	baseURL  string
	logger   zerolog.Logger
}

// New loads the default AWS credential chain and builds a Store.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket must be provided")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	awsConfig, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newStore(manager.NewUploader(client), cfg, logger), nil
}

func newStore(up uploader, cfg Config, logger zerolog.Logger) *Store {
	return &Store{
		uploader: up,
		bucket:   cfg.Bucket,
		baseURL:  publicBaseURL(cfg),
		logger:   logger.With().Str("component", "s3storage").Logger(),
	}
}

// Upload streams reader to the bucket under name, prefixed with a random id so
// repeated file names never collide, and returns the object's public URL.
func (s *Store) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	key := objectKey(name)

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   reader,
	}
	if contentType := mime.TypeByExtension(path.Ext(key)); contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	s.logger.Info().Str("key", key).Msg("file uploaded to s3")
	return s.baseURL + "/" + escapeKey(key), nil
}

func objectKey(name string) string {
	name = strings.TrimLeft(path.Clean("/"+name), "/")
	dir, file := path.Split(name)
	if file == "" || file == "." {
		file = "upload"
	}
	return dir + uuid.NewString() + "-" + file
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func publicBaseURL(cfg Config) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	if cfg.Endpoint != "" {
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
}
