package fs

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/SAMithila/doc-intelligence/internal/port"
)

// DefaultMaxFileSize skips files larger than 8 MiB.
const DefaultMaxFileSize = 8 << 20

// Walker lists corpus files matching an include glob and no exclude glob.
// Patterns use doublestar syntax against slash-separated paths relative to
// the root; a directory matching an exclude is not descended into.
type Walker struct {
	includes []string
	excludes []string
	maxSize  int64
}

type WalkerOption func(*Walker)

// WithMaxFileSize changes the size cap; n <= 0 removes it.
func WithMaxFileSize(n int64) WalkerOption {
	return func(w *Walker) { w.maxSize = n }
}

func NewWalker(includes, excludes []string, opts ...WalkerOption) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	w := &Walker{includes: includes, excludes: excludes, maxSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Walk returns matching files sorted by path.
func (w *Walker) Walk(root string) ([]port.FileInfo, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var files []port.FileInfo
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && matchAny(w.excludes, rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !matchAny(w.includes, rel) || matchAny(w.excludes, rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if w.maxSize > 0 && info.Size() > w.maxSize {
			return nil
		}
		files = append(files, port.FileInfo{Path: path, ModTime: info.ModTime().UnixNano(), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// matchAny treats malformed patterns as non-matching; config validation
// rejects them before a walker is built.
func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// Reader reads corpus files from the local filesystem.
type Reader struct{}

// ReadFile returns the file as text. Files that are not valid UTF-8 are
// rejected so binary blobs never reach the chunker.
func (Reader) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", &fs.PathError{Op: "read", Path: path, Err: fs.ErrInvalid}
	}
	return string(data), nil
}
