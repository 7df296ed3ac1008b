package fs

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestWalker_IncludeExclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.md", "top")
	writeFile(t, root, "docs/pricing.md", "pricing")
	writeFile(t, root, "docs/notes.txt", "notes")
	writeFile(t, root, "docs/image.png", "png")
	writeFile(t, root, "vendor/lib/README.md", "vendored")
	writeFile(t, root, ".docint/config.yaml", "retrieve: {}")

	w := NewWalker([]string{"**/*.md", "**/*.txt"}, []string{"**/vendor/**", "**/.docint/**"})
	files, err := w.Walk(root)
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		r, err := filepath.Rel(root, f.Path)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
		assert.NotZero(t, f.ModTime)
	}
	sort.Strings(rel)

	assert.Equal(t, []string{"README.md", "docs/notes.txt", "docs/pricing.md"}, rel)
}

func TestWalker_DefaultIncludesEverything(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.bin", "x")
	writeFile(t, root, "b/c.md", "y")

	files, err := NewWalker(nil, nil).Walk(root)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestWalker_SortedAndSizeCapped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "z.md", "small")
	writeFile(t, root, "a.md", "small")
	writeFile(t, root, "big.md", "this file is larger than the cap")

	files, err := NewWalker([]string{"**/*.md"}, nil, WithMaxFileSize(10)).Walk(root)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.md", filepath.Base(files[0].Path))
	assert.Equal(t, "z.md", filepath.Base(files[1].Path))

	files, err = NewWalker([]string{"**/*.md"}, nil, WithMaxFileSize(0)).Walk(root)
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestReader_ReadFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ok.md", "Q3 2024 revenue reached $1.15 billion")
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.md"), []byte{0xff, 0xfe, 0x00}, 0644))

	text, err := Reader{}.ReadFile(filepath.Join(root, "ok.md"))
	require.NoError(t, err)
	assert.Equal(t, "Q3 2024 revenue reached $1.15 billion", text)

	_, err = Reader{}.ReadFile(filepath.Join(root, "bad.md"))
	assert.Error(t, err)
}
