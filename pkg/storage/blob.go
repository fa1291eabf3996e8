// Package storage keeps file bytes and the metadata derived from them.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/dd0wney/cluso-filestore/pkg/validation"
)

// BlobInfo describes one stored blob.
type BlobInfo struct {
	Name string
	Size int64
}

// BlobStore holds file bytes by name. Implementations return ErrNotFound for
// missing names and wrap other failures with ErrLocalIO.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]BlobInfo, error)
}

// Streamer is implemented by stores that can copy a blob to w without
// loading it whole.
type Streamer interface {
	Stream(ctx context.Context, name string, w io.Writer) (int64, error)
}

// CheckName validates a file name for storage.
func CheckName(name string) error {
	if err := validation.ValidateFileName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	return nil
}
