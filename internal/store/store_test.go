package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loganrenz/narduk-grib/internal/domain"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := OpenCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func fileInfo(id string, uploadedAt time.Time) domain.FileInfo {
	return domain.FileInfo{
		ID:         id,
		Filename:   id + ".grib2",
		Size:       1024,
		Source:     domain.SourceUpload,
		UploadedAt: uploadedAt,
	}
}

func TestCatalog_InsertAndGet(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()

	now := time.Date(2024, time.April, 26, 12, 30, 0, 0, time.UTC)
	want := domain.FileInfo{
		ID:         "abc-123",
		Filename:   "gfs.t00z.pgrb2.0p25.f000",
		Size:       52428800,
		Source:     domain.SourceURL,
		OriginURL:  "https://nomads.ncep.noaa.gov/pub/gfs.t00z.pgrb2.0p25.f000",
		UploadedAt: now,
	}
	require.NoError(t, c.Insert(ctx, want))

	got, err := c.Get(ctx, "abc-123")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCatalog_GetMissing(t *testing.T) {
	c := testCatalog(t)

	_, err := c.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_ListNewestFirst(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()

	base := time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.Insert(ctx, fileInfo("old", base)))
	require.NoError(t, c.Insert(ctx, fileInfo("new", base.Add(time.Hour))))
	require.NoError(t, c.Insert(ctx, fileInfo("mid", base.Add(time.Minute))))

	files, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "new", files[0].ID)
	assert.Equal(t, "mid", files[1].ID)
	assert.Equal(t, "old", files[2].ID)
}

func TestCatalog_ListEmpty(t *testing.T) {
	c := testCatalog(t)

	files, err := c.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)
}

func TestCatalog_Delete(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, fileInfo("doomed", time.Now())))
	require.NoError(t, c.Delete(ctx, "doomed"))

	_, err := c.Get(ctx, "doomed")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, c.Delete(ctx, "doomed"), ErrNotFound)
}

func TestCatalog_Count(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, c.Insert(ctx, fileInfo("a", time.Now())))
	require.NoError(t, c.Insert(ctx, fileInfo("b", time.Now())))

	n, err = c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBlobs_SaveOpenDelete(t *testing.T) {
	b, err := NewBlobs(filepath.Join(t.TempDir(), "grib"))
	require.NoError(t, err)

	content := "GRIB fake contents"
	n, err := b.Save("file-1", strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)

	f, err := b.Open("file-1")
	require.NoError(t, err)
	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, content, string(data))

	require.NoError(t, b.Delete("file-1"))
	_, err = b.Open("file-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlobs_DeleteMissingIsIdempotent(t *testing.T) {
	b, err := NewBlobs(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, b.Delete("never-existed"))
}

func TestBlobs_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := NewBlobs(dir)
	require.NoError(t, err)

	_, err = b.Save("file-1", strings.NewReader("data"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "file-1.grib2", entries[0].Name())
}
