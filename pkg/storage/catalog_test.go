package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newCatalog(t *testing.T) (*Catalog, *MemoryStore) {
	t.Helper()
	blobs := NewMemoryStore()
	return NewCatalog(blobs, logging.NewNopLogger(), nil), blobs
}

func TestCatalogWriteReturnsPreImage(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()

	undo, err := c.Write(ctx, "a.txt", []byte{1, 2, 3})
	require.NoError(t, err)
	assert.False(t, undo.Existed)

	undo, err = c.Write(ctx, "a.txt", []byte{9})
	require.NoError(t, err)
	assert.True(t, undo.Existed)
	assert.Equal(t, []byte{1, 2, 3}, undo.Prev)

	size, ok := c.Metadata().Get("a.txt")
	assert.True(t, ok)
	assert.EqualValues(t, 1, size)

	require.NoError(t, c.Restore(ctx, undo))
	got, err := c.Read(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestCatalogRestoreOfNewFileRemovesIt(t *testing.T) {
	c, blobs := newCatalog(t)
	ctx := context.Background()

	undo, err := c.Write(ctx, "new.bin", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, c.Restore(ctx, undo))

	_, err = c.Read(ctx, "new.bin")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = blobs.Get(ctx, "new.bin")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Empty(t, c.List())
}

func TestCatalogRestoreIfSkipsLaterWrites(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()

	undo, err := c.Write(ctx, "a.txt", []byte("first"))
	require.NoError(t, err)
	_, err = c.Write(ctx, "a.txt", []byte("second"))
	require.NoError(t, err)

	restored, err := c.RestoreIf(ctx, undo, []byte("first"))
	require.NoError(t, err)
	assert.False(t, restored)
	got, _ := c.Read(ctx, "a.txt")
	assert.Equal(t, "second", string(got))

	restored, err = c.RestoreIf(ctx, Undo{Name: "a.txt"}, []byte("second"))
	require.NoError(t, err)
	assert.True(t, restored)
	assert.Empty(t, c.List())
}

func TestCatalogWriteFailureLeavesStateAlone(t *testing.T) {
	c, blobs := newCatalog(t)
	ctx := context.Background()
	_, err := c.Write(ctx, "a.txt", []byte("keep"))
	require.NoError(t, err)

	blobs.SetFailPuts(true)
	_, err = c.Write(ctx, "a.txt", []byte("lost"))
	assert.True(t, errors.Is(err, ErrLocalIO))

	size, _ := c.Metadata().Get("a.txt")
	assert.EqualValues(t, 4, size)
}

func TestCatalogRejectsBadNames(t *testing.T) {
	c, _ := newCatalog(t)
	_, err := c.Write(context.Background(), "../escape", []byte("x"))
	assert.True(t, errors.Is(err, ErrInvalidName))
}

func TestCatalogRemove(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()
	_, err := c.Write(ctx, "a.txt", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, c.Remove(ctx, "a.txt"))
	assert.True(t, errors.Is(c.Remove(ctx, "a.txt"), ErrNotFound))
}

func TestSystemHashIgnoresInsertionOrder(t *testing.T) {
	ctx := context.Background()
	a, _ := newCatalog(t)
	b, _ := newCatalog(t)

	files := map[string]string{"z.txt": "zz", "a.txt": "aa", "m.txt": ""}
	for _, name := range []string{"z.txt", "a.txt", "m.txt"} {
		_, err := a.Write(ctx, name, []byte(files[name]))
		require.NoError(t, err)
	}
	for _, name := range []string{"m.txt", "a.txt", "z.txt"} {
		_, err := b.Write(ctx, name, []byte(files[name]))
		require.NoError(t, err)
	}

	ha, err := a.SystemHash(ctx)
	require.NoError(t, err)
	hb, err := b.SystemHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)

	_, err = b.Write(ctx, "a.txt", []byte("ab"))
	require.NoError(t, err)
	hb2, _ := b.SystemHash(ctx)
	assert.NotEqual(t, ha, hb2)
}

func TestSystemHashOfEmptyCatalog(t *testing.T) {
	c, _ := newCatalog(t)
	h, err := c.SystemHash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", h)
}

func TestCatalogRecordsStorageMetrics(t *testing.T) {
	reg := metrics.NewRegistry()
	c := NewCatalog(NewMemoryStore(), logging.NewNopLogger(), reg)
	ctx := context.Background()
	_, err := c.Write(ctx, "a", []byte("abc"))
	require.NoError(t, err)
	_, err = c.Write(ctx, "b", []byte("de"))
	require.NoError(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(reg.StoredFiles))
	assert.Equal(t, float64(5), testutil.ToFloat64(reg.StoredBytes))
}
