package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/exp/mmap"
)

// tmpDir holds writes in progress. It is the one name inside the storage
// directory that is not a blob.
const tmpDir = ".tmp"

// DiskStore keeps one file per blob in a directory.
type DiskStore struct {
	dir string
	tmp string
}

// NewDiskStore creates the directory if needed and discards writes left
// behind by a previous process.
func NewDiskStore(dir string) (*DiskStore, error) {
	tmp := filepath.Join(dir, tmpDir)
	if err := os.RemoveAll(tmp); err != nil {
		return nil, fmt.Errorf("%w: clear %s: %v", ErrLocalIO, tmp, err)
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrLocalIO, tmp, err)
	}
	return &DiskStore{dir: dir, tmp: tmp}, nil
}

// Dir returns the storage directory.
func (s *DiskStore) Dir() string {
	return s.dir
}

func (s *DiskStore) path(name string) (string, error) {
	if err := CheckName(name); err != nil {
		return "", err
	}
	if name == tmpDir {
		return "", fmt.Errorf("%w: %q is reserved by the disk store", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

// Put writes data to a temporary file under tmpDir and renames it into place.
func (s *DiskStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(name)
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(s.tmp, "put-*")
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrLocalIO, name, err)
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, 0o644)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: write %s: %v", ErrLocalIO, name, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: rename %s: %v", ErrLocalIO, name, err)
	}
	return nil
}

func (s *DiskStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrLocalIO, name, err)
	}
	return data, nil
}

// Stream copies the blob to w through a read-only memory mapping.
func (s *DiskStore) Stream(ctx context.Context, name string, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p, err := s.path(name)
	if err != nil {
		return 0, err
	}
	r, err := mmap.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: map %s: %v", ErrLocalIO, name, err)
	}
	defer r.Close()

	n, err := io.Copy(w, io.NewSectionReader(r, 0, int64(r.Len())))
	if err != nil {
		return n, fmt.Errorf("%w: stream %s: %v", ErrLocalIO, name, err)
	}
	return n, nil
}

func (s *DiskStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(name)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrLocalIO, name, err)
	}
	return nil
}

// List returns the regular files in the directory. Writes in progress live
// under tmpDir and are never listed.
func (s *DiskStore) List(ctx context.Context) ([]BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrLocalIO, s.dir, err)
	}
	out := make([]BlobInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("%w: stat %s: %v", ErrLocalIO, e.Name(), err)
		}
		out = append(out, BlobInfo{Name: e.Name(), Size: info.Size()})
	}
	return out, nil
}

var (
	_ BlobStore = (*DiskStore)(nil)
	_ Streamer  = (*DiskStore)(nil)
)
