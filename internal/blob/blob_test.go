package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"fs":     fsStore,
		"memory": NewMemory(),
		"s3":     newMockS3(t),
	}
}

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			info, err := s.Put(ctx, "builds/b1/a.csv", strings.NewReader("x,y\n1,2\n"), PutOptions{ContentType: "text/csv"})
			require.NoError(t, err)
			assert.Equal(t, int64(8), info.Size)

			_, err = s.Put(ctx, "builds/b1/a.csv", strings.NewReader("again"), PutOptions{})
			assert.ErrorIs(t, err, ErrExists)

			_, err = s.Put(ctx, "builds/b1/a.csv", strings.NewReader("again"), PutOptions{Overwrite: true})
			require.NoError(t, err)

			_, rc, err := s.Get(ctx, "builds/b1/a.csv")
			require.NoError(t, err)
			body, err := io.ReadAll(rc)
			require.NoError(t, rc.Close())
			require.NoError(t, err)
			assert.Equal(t, "again", string(body))

			_, err = s.Put(ctx, "builds/b2/c.csv", strings.NewReader("c"), PutOptions{})
			require.NoError(t, err)
			list, err := s.List(ctx, "builds/b1/")
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "builds/b1/a.csv", list[0].Key)

			_, err = s.Head(ctx, "missing")
			assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

			ok, err := s.Delete(ctx, "builds/b1/a.csv")
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = s.Delete(ctx, "builds/b1/a.csv")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestFilesystem_RejectsTraversal(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"", "/abs", "../up", "a/../../up", "x.meta"} {
		_, err := s.Put(context.Background(), key, strings.NewReader("x"), PutOptions{})
		assert.Error(t, err, key)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{Root: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, s.Driver())

	s, err = Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, s.Driver())

	_, err = Open(ctx, Config{Driver: DriverS3})
	assert.Error(t, err)

	_, err = Open(ctx, Config{Driver: "ftp"})
	assert.Error(t, err)
}

func TestUploadTreeAndFetch(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "proj"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "proj", "x_LEVEL3_LMFI.csv"), []byte("a\n1\n"), 0o644))

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write([]byte("rid,value\nr1,2\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(src, "build_LEVEL4_LFC.csv.gz"), gz.Bytes(), 0o644))

	s := NewMemory()
	infos, err := UploadTree(ctx, s, src, "/builds/b1/", false)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "builds/b1/build_LEVEL4_LFC.csv.gz", infos[0].Key)
	assert.Equal(t, "builds/b1/proj/x_LEVEL3_LMFI.csv", infos[1].Key)

	_, err = UploadTree(ctx, s, src, "builds/b1", false)
	assert.ErrorIs(t, err, ErrExists)

	info, err := FindByPartial(ctx, s, "builds/b1/", "LEVEL4")
	require.NoError(t, err)

	dst := t.TempDir()
	path, err := Fetch(ctx, s, info.Key, dst)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dst, "build_LEVEL4_LFC.csv"), path)
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "rid,value\nr1,2\n", string(body))

	_, err = FindByPartial(ctx, s, "builds/b1/", "LEVEL9")
	assert.ErrorIs(t, err, ErrNotFound)
}
