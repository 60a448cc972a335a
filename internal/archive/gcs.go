package archive

import (
	"context"
	"io"

	gcs "cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
)

// GCSStore stores blobs in a Google Cloud Storage bucket. Credentials come
// from Application Default Credentials.
type GCSStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCS creates a GCSStore.
func NewGCS(ctx context.Context, bucket, prefix string) (*GCSStore, error) {
	if bucket == "" {
		return nil, eris.New("archive: gcs driver requires a bucket")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "archive: create gcs client")
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

// Put writes data as application/json.
func (s *GCSStore) Put(ctx context.Context, key string, data []byte) error {
	key = prefixed(s.prefix, key)
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return eris.Wrapf(err, "archive: gcs write %s", key)
	}
	return eris.Wrapf(w.Close(), "archive: gcs close %s", key)
}

// Get reads key.
func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	key = prefixed(s.prefix, key)
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "archive: gcs read %s", key)
	}
	defer r.Close() //nolint:errcheck
	b, err := io.ReadAll(r)
	return b, eris.Wrapf(err, "archive: gcs read %s", key)
}

// Close releases the client.
func (s *GCSStore) Close() error { return s.client.Close() }
