package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"cloud.google.com/go/storage"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/fileid"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

// GCSStore keeps blobs as objects in a Cloud Storage bucket.
type GCSStore struct {
	bucket *storage.BucketHandle
	prefix string
	logger *zap.Logger
}

// NewGCSStore wraps a bucket handle. Objects are named prefix/<digest>.
func NewGCSStore(client *storage.Client, bucket, prefix string, logger *zap.Logger) *GCSStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GCSStore{bucket: client.Bucket(bucket), prefix: prefix, logger: logger}
}

func (s *GCSStore) object(ref string) (*storage.ObjectHandle, error) {
	digest, ok := fileid.ParseContentRef(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return s.bucket.Object(path.Join(s.prefix, digest)), nil
}

// Put writes the object only if it does not already exist; an existing object with the
// same digest already holds the same bytes.
func (s *GCSStore) Put(ctx context.Context, data []byte) (string, error) {
	ref := fileid.ContentRef(data)
	obj, _ := s.object(ref)
	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		if alreadyExists(err) {
			return ref, nil
		}
		return "", fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		if alreadyExists(err) {
			s.logger.Debug("blob already stored", zap.String("ref", ref))
			return ref, nil
		}
		return "", fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return ref, nil
}

func (s *GCSStore) Get(ctx context.Context, ref string) ([]byte, error) {
	obj, err := s.object(ref)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS object: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object: %w", err)
	}
	return data, nil
}

func (s *GCSStore) Exists(ctx context.Context, ref string) (bool, error) {
	obj, err := s.object(ref)
	if err != nil {
		return false, err
	}
	_, err = obj.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat GCS object: %w", err)
	}
	return true, nil
}

func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
