package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/oklog/ulid/v2"

	"github.com/offcast/offcast/internal/config"
)

// S3DriverName selects the S3-compatible artifact store.
const S3DriverName = "s3"

// S3Store exchanges artifacts through an S3-compatible bucket. Uploaded
// inputs get a presigned GET URL and derived outputs a presigned PUT URL,
// so the remote runner needs no bucket credentials of its own.
type S3Store struct {
	client     *minio.Client
	bucket     string
	prefix     string
	presignTTL time.Duration
	maxSize    int64
	logger     *slog.Logger
}

// NewS3Store creates the S3 driver from configuration.
func NewS3Store(cfg config.S3Config, maxSize int64, logger *slog.Logger) (*S3Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 store: endpoint and bucket are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 store: %w", err)
	}

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}

	return &S3Store{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		presignTTL: ttl,
		maxSize:    maxSize,
		logger:     logger,
	}, nil
}

func (s *S3Store) Name() string { return S3DriverName }

// Upload stores the file under a fresh job-scoped key and presigns a GET
// URL for the remote side.
func (s *S3Store) Upload(ctx context.Context, localPath string) (Ref, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return Ref{}, fmt.Errorf("uploading %s: %w", localPath, err)
	}
	if err := checkSize(info.Size(), s.maxSize); err != nil {
		return Ref{}, err
	}

	name := filepath.Base(localPath)
	key := path.Join(s.prefix, "jobs", ulid.Make().String(), name)

	s.logger.Debug("uploading artifact",
		slog.String("bucket", s.bucket),
		slog.String("key", key),
		slog.Int64("size", info.Size()),
	)

	_, err = s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return Ref{}, fmt.Errorf("uploading %s: %w", localPath, err)
	}

	get, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignTTL, nil)
	if err != nil {
		return Ref{}, fmt.Errorf("presigning %s: %w", key, err)
	}

	return Ref{Driver: S3DriverName, Key: key, Name: name, URL: get.String()}, nil
}

// OutputRef derives the sibling output key and presigns a PUT URL the
// remote job can publish to.
func (s *S3Store) OutputRef(ctx context.Context, in Ref) (Ref, error) {
	key := path.Join(path.Dir(in.Key), "output.gpg")

	put, err := s.client.PresignedPutObject(ctx, s.bucket, key, s.presignTTL)
	if err != nil {
		return Ref{}, fmt.Errorf("presigning output %s: %w", key, err)
	}

	return Ref{Driver: S3DriverName, Key: key, Name: "output.gpg", URL: put.String()}, nil
}

// Download fetches the object into destDir.
func (s *S3Store) Download(ctx context.Context, ref Ref, destDir string) (string, error) {
	dest := filepath.Join(destDir, ref.Name)
	if err := s.client.FGetObject(ctx, s.bucket, ref.Key, dest, minio.GetObjectOptions{}); err != nil {
		return "", fmt.Errorf("downloading %s: %w", ref.Key, err)
	}
	return dest, nil
}

// Remove deletes the object.
func (s *S3Store) Remove(ctx context.Context, ref Ref) error {
	if err := s.client.RemoveObject(ctx, s.bucket, ref.Key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("removing %s: %w", ref.Key, err)
	}
	return nil
}
