package storage

import (
	"context"
	"errors"
	"io"

	gcs "cloud.google.com/go/storage"
	auth "github.com/goliatone/go-fhir-auth"
	goerrors "github.com/goliatone/go-errors"
	"google.golang.org/api/option"
)

// GCSStore keeps binary content as objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client *gcs.Client
	bucket string
}

var (
	_ auth.ContentStore = (*GCSStore)(nil)
	_ io.Closer         = (*GCSStore)(nil)
)

// Close releases the client behind store when it holds one. Stores without
// resources are left alone.
func Close(store auth.ContentStore) error {
	if closer, ok := store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// NewGCSStore creates a client for bucket. An empty credentialsFile falls
// back to application default credentials.
func NewGCSStore(ctx context.Context, bucket, credentialsFile string) (*GCSStore, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to create GCS storage client")
	}
	return NewGCSStoreWithClient(client, bucket), nil
}

// NewGCSStoreWithClient wraps an existing client.
func NewGCSStoreWithClient(client *gcs.Client, bucket string) *GCSStore {
	return &GCSStore{client: client, bucket: bucket}
}

func (s *GCSStore) ReadBinary(ctx context.Context, binary *auth.Binary, w io.Writer) (int64, error) {
	key := auth.BinaryContentKey(binary)
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return 0, auth.NewNotFoundError("Binary", binary.ID).
				WithMetadata(map[string]any{"key": key})
		}
		return 0, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to open GCS object")
	}
	defer reader.Close()

	return io.Copy(w, reader)
}

func (s *GCSStore) WriteBinary(ctx context.Context, binary *auth.Binary, r io.Reader) (int64, error) {
	key := auth.BinaryContentKey(binary)

	// cancelling before Close discards the upload instead of committing it
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = auth.ContentTypeOf(binary)
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	n, err := io.Copy(writer, r)
	if err != nil {
		cancel()
		_ = writer.Close()
		return n, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to copy binary content to GCS object").
			WithMetadata(map[string]any{"key": key})
	}

	if err := writer.Close(); err != nil {
		return n, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to close GCS writer").
			WithMetadata(map[string]any{"key": key})
	}
	return n, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
