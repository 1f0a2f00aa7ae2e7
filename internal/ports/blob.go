package ports

import (
	"context"
	"errors"
	"time"
)

// ErrBlobNotFound is returned when the object at a storage key is gone.
var ErrBlobNotFound = errors.New("blob not found")

// UploadCredential is a time-boxed write grant for the blob store.
type UploadCredential struct {
	StorageKey string    `json:"storage_key"`
	UploadURL  string    `json:"upload_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// BlobStore is the transient audio object store. Objects live only for the
// processing window; Delete is the privacy-cleanup primitive.
type BlobStore interface {
	PresignPut(key string) UploadCredential
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Head returns the object size without fetching the body.
	Head(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
}
