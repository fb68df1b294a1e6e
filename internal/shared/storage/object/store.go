package object

import (
	"context"
	"io"
)

// ObjectStore defines the contract for saving and retrieving binary assets.
type ObjectStore interface {
	Save(ctx context.Context, scope string, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	URLFor(storageKey string) string
}
