package adapter

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// Storage archives uploaded creative so a generation can be traced back to its source
type Storage interface {
	// Put returns a writer that stores an object under key
	Put(ctx context.Context, key, contentType string) (io.WriteCloser, error)
	// Get opens the object stored under key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// storageClient implements Storage interface using Cloud Storage
type storageClient struct {
	bucketName string
	prefix     string
	client     *storage.Client
}

// NewStorage creates a new Cloud Storage client. Objects are stored under prefix.
func NewStorage(ctx context.Context, bucketName, prefix string) (Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &storageClient{
		bucketName: bucketName,
		prefix:     prefix,
		client:     client,
	}, nil
}

func (s *storageClient) Put(ctx context.Context, key, contentType string) (io.WriteCloser, error) {
	writer := s.client.Bucket(s.bucketName).Object(s.prefix + key).NewWriter(ctx)
	writer.ContentType = contentType
	return writer, nil
}

func (s *storageClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := s.client.Bucket(s.bucketName).Object(s.prefix + key).NewReader(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read from storage",
			goerr.V("bucket", s.bucketName), goerr.V("key", s.prefix+key))
	}
	return reader, nil
}
