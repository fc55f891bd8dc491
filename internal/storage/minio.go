// Package storage is the object-storage collaborator: raw videos go into
// one bucket, explanatory artifacts and staged frame thumbnails into
// another. The core only ever sees object paths and URLs.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// Options configures the MinIO connection and bucket layout.
type Options struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	Region         string
	VideoBucket    string
	ArtifactBucket string
}

// Store is a thin wrapper over the MinIO client.
type Store struct {
	client         *minio.Client
	videoBucket    string
	artifactBucket string
	log            zerolog.Logger
}

// New connects to MinIO and makes sure both buckets exist.
func New(ctx context.Context, opts Options, logger zerolog.Logger) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connection: %w", err)
	}

	s := &Store{
		client:         client,
		videoBucket:    opts.VideoBucket,
		artifactBucket: opts.ArtifactBucket,
		log:            logger,
	}
	for _, bucket := range []string{opts.VideoBucket, opts.ArtifactBucket} {
		if err := s.ensureBucket(ctx, bucket, opts.Region); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) ensureBucket(ctx context.Context, bucket, region string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket %q: %w", bucket, err)
	}
	return nil
}

// UploadVideo stores the resolved video bytes and returns the object URL.
func (s *Store) UploadVideo(ctx context.Context, data []byte, name string) (string, error) {
	_, err := s.client.PutObject(ctx, s.videoBucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: mimeTypeForName(name)})
	if err != nil {
		return "", fmt.Errorf("upload video: %w", err)
	}
	return fmt.Sprintf("%s/%s/%s", s.client.EndpointURL(), s.videoBucket, name), nil
}

// UploadArtifact stores a rendered artifact or staged thumbnail and returns
// its object path inside the artifact bucket.
func (s *Store) UploadArtifact(ctx context.Context, object string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.artifactBucket, object, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload artifact %q: %w", object, err)
	}
	return object, nil
}

// FetchArtifact reads an object from the artifact bucket.
func (s *Store) FetchArtifact(ctx context.Context, object string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.artifactBucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch artifact %q: %w", object, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read artifact %q: %w", object, err)
	}
	return data, nil
}

func mimeTypeForName(name string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(name), ".mp4"):
		return "video/mp4"
	case strings.HasSuffix(strings.ToLower(name), ".mov"):
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}
