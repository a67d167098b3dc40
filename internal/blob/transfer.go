package blob

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// UploadTree puts every regular file under dir at prefix/<relative path>.
func UploadTree(ctx context.Context, s Store, dir, prefix string, overwrite bool) ([]Info, error) {
	var out []Info
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := path.Join(strings.Trim(prefix, "/"), filepath.ToSlash(rel))

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		info, err := s.Put(ctx, key, f, PutOptions{
			ContentType: mime.TypeByExtension(filepath.Ext(p)),
			Overwrite:   overwrite,
		})
		if err != nil {
			return fmt.Errorf("upload %s: %w", rel, err)
		}
		out = append(out, info)
		return nil
	})
	return out, err
}

// FindByPartial returns the first key under prefix that contains partial.
func FindByPartial(ctx context.Context, s Store, prefix, partial string) (Info, error) {
	infos, err := s.List(ctx, prefix)
	if err != nil {
		return Info{}, err
	}
	for _, info := range infos {
		if strings.Contains(info.Key, partial) {
			return info, nil
		}
	}
	return Info{}, fmt.Errorf("no blob under %q contains %q: %w", prefix, partial, ErrNotFound)
}

// Fetch copies the blob at key to dst. A ".gz" blob is decompressed and the
// suffix dropped from the local name. When dst is an existing directory the
// blob's base name is used. It returns the written path.
func Fetch(ctx context.Context, s Store, key, dst string) (written string, err error) {
	_, rc, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var src io.Reader = rc
	name := path.Base(key)
	if strings.HasSuffix(name, ".gz") {
		gz, err := gzip.NewReader(rc)
		if err != nil {
			return "", fmt.Errorf("gunzip %s: %w", key, err)
		}
		defer gz.Close()
		src = gz
		name = strings.TrimSuffix(name, ".gz")
	}

	written = dst
	if st, serr := os.Stat(dst); serr == nil && st.IsDir() {
		written = filepath.Join(dst, name)
	}
	if err := os.MkdirAll(filepath.Dir(written), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(written)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(f, src); err != nil {
		return "", fmt.Errorf("write %s: %w", written, err)
	}
	return written, nil
}
