package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"

	"github.com/example/rider-core/internal/models"
)

// S3Persister keeps the recent list as one JSON object in an S3-compatible bucket.
type S3Persister struct {
	client *minio.Client
	bucket string
	object string
}

// NewS3Persister creates the bucket if it does not exist yet.
func NewS3Persister(ctx context.Context, client *minio.Client, bucket, object string) (*S3Persister, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("error checking bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket %s: %w", bucket, err)
		}
	}
	return &S3Persister{client: client, bucket: bucket, object: object}, nil
}

func (s *S3Persister) LoadRecent(ctx context.Context) ([]models.Location, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer obj.Close()

	b, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s/%s: %w", s.bucket, s.object, err)
	}
	return decodeRecent(b)
}

func (s *S3Persister) SaveRecent(ctx context.Context, recent []models.Location) error {
	b, err := encodeRecent(recent)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.object, bytes.NewReader(b), int64(len(b)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to store object in S3: %w", err)
	}
	return nil
}
