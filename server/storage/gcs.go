package storage

import (
	"context"
	"errors"
	"io"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/cyclopcam/logs"
)

const gcsTimeout = 30 * time.Second

// StorageGCS is a Google Cloud Storage-based blob store
type StorageGCS struct {
	bucketName string
	bucket     *gcs.BucketHandle
	log        logs.Log
}

func NewStorageGCS(log logs.Log, bucketName string) (*StorageGCS, error) {
	client, err := gcs.NewClient(context.Background())
	if err != nil {
		return nil, err
	}
	return &StorageGCS{
		bucketName: bucketName,
		bucket:     client.Bucket(bucketName),
		log:        log,
	}, nil
}

func (s *StorageGCS) WriteFile(name string) (io.WriteCloser, error) {
	// The context governs the whole upload, so the cancel fires via the
	// writer's Close.
	ctx, cancel := context.WithTimeout(context.Background(), gcsTimeout)
	w := s.bucket.Object(name).NewWriter(ctx)
	return &cancelOnCloseWriter{w: w, cancel: cancel}, nil
}

func (s *StorageGCS) ReadFile(name string) (*File, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gcsTimeout)
	r, err := s.bucket.Object(name).NewReader(ctx)
	if err != nil {
		cancel()
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &File{
		Reader: &cancelOnCloseReader{r: r, cancel: cancel},
		Size:   r.Attrs.Size,
	}, nil
}

func (s *StorageGCS) DeleteFile(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), gcsTimeout)
	defer cancel()
	err := s.bucket.Object(name).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}

type cancelOnCloseWriter struct {
	w      io.WriteCloser
	cancel context.CancelFunc
}

func (c *cancelOnCloseWriter) Write(p []byte) (int, error) {
	return c.w.Write(p)
}

func (c *cancelOnCloseWriter) Close() error {
	defer c.cancel()
	return c.w.Close()
}

type cancelOnCloseReader struct {
	r      io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnCloseReader) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *cancelOnCloseReader) Close() error {
	defer c.cancel()
	return c.r.Close()
}
