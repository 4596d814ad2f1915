package corpus

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoader_Load(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, root, "lib/util.py", "def helper():\n    pass\n")
	writeFile(t, root, "README.md", "# Project\n")
	writeFile(t, root, "image.png", "not indexable")

	l := NewLoader(root, "myrepo", nil)
	docs, err := l.Load(context.Background())

	require.NoError(t, err)
	require.Len(t, docs, 3)

	byPath := map[string]string{}
	for _, d := range docs {
		byPath[d.FilePath] = d.Language
		assert.Equal(t, "myrepo", d.Repository)
		assert.True(t, strings.HasPrefix(d.ID, "myrepo/"))
	}
	assert.Equal(t, "go", byPath["main.go"])
	assert.Equal(t, "python", byPath["lib/util.py"])
	assert.Equal(t, "markdown", byPath["README.md"])
}

func TestLoader_LineCount(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n\nvar x = 1\n")

	docs, err := NewLoader(root, "r", nil).Load(context.Background())

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 1, docs[0].StartLine)
	assert.Equal(t, 4, docs[0].EndLine)
}

func TestLoader_DefaultRepositoryName(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	docs, err := NewLoader(root, "", nil).Load(context.Background())

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, filepath.Base(root), docs[0].Repository)
}

func TestLoader_SkipsExcludedDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "node_modules/pkg/index.js", "module.exports = {}\n")
	writeFile(t, root, "vendor/lib/lib.go", "package lib\n")
	writeFile(t, root, ".git/config", "[core]\n")

	docs, err := NewLoader(root, "r", nil).Load(context.Background())

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "main.go", docs[0].FilePath)
}

func TestLoader_RespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "generated/\n*.tmp.go\n!keep.tmp.go\n")
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "generated/gen.go", "package generated\n")
	writeFile(t, root, "scratch.tmp.go", "package scratch\n")
	writeFile(t, root, "keep.tmp.go", "package keep\n")

	docs, err := NewLoader(root, "r", nil).Load(context.Background())

	require.NoError(t, err)
	paths := make([]string, 0, len(docs))
	for _, d := range docs {
		paths = append(paths, d.FilePath)
	}
	assert.ElementsMatch(t, []string{"main.go", "keep.tmp.go"}, paths)
}

func TestLoader_SkipsBinaryAndOversized(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "blob.go", "package blob\x00\x01\x02")
	writeFile(t, root, "huge.go", "package huge\n"+strings.Repeat("// padding line\n", 100000))

	docs, err := NewLoader(root, "r", nil).Load(context.Background())

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "main.go", docs[0].FilePath)
}

func TestLoader_CancelledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader(root, "r", nil).Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIgnoreMatcher(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		path     string
		isDir    bool
		want     bool
	}{
		{"simple name", []string{"build"}, "build", true, true},
		{"name matches nested", []string{"build"}, "src/build", true, true},
		{"descendant of match", []string{"build"}, "build/out.o", false, true},
		{"dir-only against file", []string{"temp/"}, "temp", false, false},
		{"dir-only against dir", []string{"temp/"}, "temp", true, true},
		{"dir-only descendant", []string{"temp/"}, "temp/file.go", false, true},
		{"star extension", []string{"*.log"}, "logs/app.log", false, true},
		{"star no slash", []string{"*.log"}, "app.log2", false, false},
		{"anchored", []string{"/top.go"}, "top.go", false, true},
		{"anchored not nested", []string{"/top.go"}, "sub/top.go", false, false},
		{"internal slash anchors", []string{"doc/frotz"}, "doc/frotz", true, true},
		{"internal slash not nested", []string{"doc/frotz"}, "a/doc/frotz", true, false},
		{"double star", []string{"**/gen"}, "a/b/gen", true, true},
		{"negation", []string{"*.go", "!keep.go"}, "keep.go", false, false},
		{"comment ignored", []string{"# *.go"}, "a.go", false, false},
		{"question mark", []string{"a?.go"}, "ab.go", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newIgnoreMatcher(tt.patterns...)
			assert.Equal(t, tt.want, m.match(tt.path, tt.isDir))
		})
	}
}
