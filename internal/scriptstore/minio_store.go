package scriptstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
)

// MinioStore implements Store over an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(client *minio.Client, bucket string) (*MinioStore, error) {
	if client == nil {
		return nil, fmt.Errorf("minio client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

func (s *MinioStore) Put(ctx context.Context, id string, record Record) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("minio store not initialized")
	}
	blob, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = s.client.PutObject(
		ctx,
		s.bucket,
		objectKey(id),
		bytes.NewReader(blob),
		int64(len(blob)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

func (s *MinioStore) Get(ctx context.Context, id string) (Record, error) {
	if s == nil || s.client == nil {
		return Record{}, fmt.Errorf("minio store not initialized")
	}

	key, err := s.findDataObject(ctx, id)
	if err != nil {
		return Record{}, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return Record{}, fmt.Errorf("get record: %w", err)
	}
	defer func() { _ = obj.Close() }()

	blob, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("read record: %w", err)
	}

	var record Record
	if err := json.Unmarshal(blob, &record); err != nil {
		return Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return record, nil
}

// findDataObject lists the script's prefix and locates its data object.
func (s *MinioStore) findDataObject(ctx context.Context, id string) (string, error) {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := s.client.ListObjects(listCtx, s.bucket, minio.ListObjectsOptions{
		Prefix:    objectPrefix(id),
		Recursive: true,
	})
	for obj := range objects {
		if obj.Err != nil {
			return "", fmt.Errorf("list %s: %w", objectPrefix(id), obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/"+dataObjectName) {
			return obj.Key, nil
		}
	}
	return "", ErrNotFound
}
