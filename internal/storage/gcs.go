package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

var _ Store = (*GCS)(nil)

// GCS stores objects in a Cloud Storage bucket under an optional prefix.
// Credentials come from the environment (Application Default Credentials).
type GCS struct {
	client *gcs.Client
	bucket string
	prefix string
}

func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage: missing bucket name")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: creating gcs client: %w", err)
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &GCS{client: client, bucket: bucket, prefix: prefix}, nil
}

func (g *GCS) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(g.prefix + key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage: writing gs://%s/%s%s: %w", g.bucket, g.prefix, key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: closing gs://%s/%s%s: %w", g.bucket, g.prefix, key, err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s%s", g.bucket, g.prefix, key), nil
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return fmt.Errorf("storage: invalid key %q", key)
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := g.client.Bucket(g.bucket).Object(g.prefix + key).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: deleting gs://%s/%s%s: %w", g.bucket, g.prefix, key, err)
	}
	return nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
