// Package diskfs provides a root-confined filesystem handle shared by the
// cache server's service root and the cache proxy's cache_root. Both need
// the same thing: "open/read/write/stat/delete a path, and never let that
// path climb above my root directory." go-billy's osfs already enforces
// that confinement structurally (it joins every relative path against its
// base directory), so the path-escape check in spec §7 is a property of
// the filesystem handle rather than a separate string check we could
// forget to call.
package diskfs

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// RootFS confines all access to files below a single root directory.
type RootFS struct {
	fs   billy.Filesystem
	Root string
}

// Open creates root if necessary and returns a RootFS rooted there.
func Open(root string) (*RootFS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("diskfs: create root %s: %w", root, err)
	}
	return &RootFS{fs: osfs.New(root), Root: root}, nil
}

// ReadFile opens rel for reading.
func (r *RootFS) ReadFile(rel string) (billy.File, error) {
	return r.fs.Open(rel)
}

// CreateTruncate creates rel (and its parent directories) truncated to zero
// length, open for read-write, mirroring RandomAccessFile's "rw" mode used
// for both the original's reader copy-on-write target and the download
// save path.
func (r *RootFS) CreateTruncate(rel string) (billy.File, error) {
	dir := path.Dir(rel)
	if dir != "." && dir != "/" {
		if err := r.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("diskfs: mkdir %s: %w", dir, err)
		}
	}
	return r.fs.OpenFile(rel, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
}

// OpenReadWrite opens rel for read-write without truncating, creating it
// (and parent directories) if it does not yet exist.
func (r *RootFS) OpenReadWrite(rel string) (billy.File, error) {
	dir := path.Dir(rel)
	if dir != "." && dir != "/" {
		if err := r.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("diskfs: mkdir %s: %w", dir, err)
		}
	}
	return r.fs.OpenFile(rel, os.O_RDWR|os.O_CREATE, 0o644)
}

// Stat returns file metadata for rel.
func (r *RootFS) Stat(rel string) (os.FileInfo, error) {
	return r.fs.Stat(rel)
}

// Size returns the on-disk size of rel, or 0 if it does not exist.
func (r *RootFS) Size(rel string) int64 {
	info, err := r.fs.Stat(rel)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Exists reports whether rel exists on disk.
func (r *RootFS) Exists(rel string) bool {
	_, err := r.fs.Stat(rel)
	return err == nil
}

// Remove deletes rel and returns the size it occupied before deletion (0 if
// it did not exist), matching the original's DeleteFile helper which folds
// "return freed bytes" and "delete" into one call for LRU bookkeeping.
func (r *RootFS) Remove(rel string) int64 {
	freed := r.Size(rel)
	_ = r.fs.Remove(rel)
	return freed
}

// CopyFile copies src's bytes into dst (creating/truncating dst), the
// on-disk half of Engine.acquireWriter's copy-on-open step.
func (r *RootFS) CopyFile(dst, src string) error {
	in, err := r.fs.Open(src)
	if err != nil {
		return fmt.Errorf("diskfs: open src %s: %w", src, err)
	}
	defer in.Close()

	out, err := r.CreateTruncate(dst)
	if err != nil {
		return fmt.Errorf("diskfs: create dst %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("diskfs: copy %s -> %s: %w", src, dst, err)
	}
	return nil
}

// Entry describes one file discovered by Walk.
type Entry struct {
	Path string
	Size int64
}

// Walk recursively visits every regular file under root, used by the
// server's startup scan (spec §2 "initial scan of root") and by the
// proxy's stale cache-file sweep.
func (r *RootFS) Walk(fn func(Entry) error) error {
	return r.walk("", fn)
}

func (r *RootFS) walk(dir string, fn func(Entry) error) error {
	entries, err := r.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		rel := e.Name()
		if dir != "" {
			rel = dir + "/" + rel
		}
		if e.IsDir() {
			if err := r.walk(rel, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(Entry{Path: rel, Size: e.Size()}); err != nil {
			return err
		}
	}
	return nil
}

// RemoveAllExcept deletes every regular file under root whose path is not
// in keep. Used by the proxy at startup to sweep stale version files left
// behind by a crashed or killed previous process (spec §9's last bullet).
func (r *RootFS) RemoveAllExcept(keep map[string]bool) (removed int, freed int64) {
	_ = r.Walk(func(e Entry) error {
		if keep[e.Path] {
			return nil
		}
		freed += r.Remove(e.Path)
		removed++
		return nil
	})
	return removed, freed
}
