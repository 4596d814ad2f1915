// Package corpus loads source files from a project directory into
// documents for the embedded backend. Binary files, oversized files,
// and gitignored paths are skipped.
package corpus

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/searchrelay/searchrelay/internal/backend"
)

// MaxFileSize is the per-file size cap. Larger files are skipped.
const MaxFileSize = 1 << 20 // 1 MiB

// Directories never worth indexing, regardless of gitignore.
var defaultExcludes = []string{
	".git/",
	".hg/",
	".svn/",
	"node_modules/",
	"vendor/",
	"dist/",
	"target/",
	"__pycache__/",
	".idea/",
	".vscode/",
}

// languageByExt maps file extensions to canonical language names.
var languageByExt = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".kt":    "kotlin",
	".rb":    "ruby",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".sql":   "sql",
	".proto": "protobuf",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".md":    "markdown",
}

// Loader walks a project tree and produces backend documents.
type Loader struct {
	root       string
	repository string
	logger     *slog.Logger
}

// NewLoader creates a loader for the project rooted at root. The
// repository name defaults to the root directory's base name.
func NewLoader(root, repository string, logger *slog.Logger) *Loader {
	if repository == "" {
		repository = filepath.Base(root)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{root: root, repository: repository, logger: logger}
}

// Load walks the tree and returns one document per indexable file.
func (l *Loader) Load(ctx context.Context) ([]*backend.Document, error) {
	ignore := newIgnoreMatcher(defaultExcludes...)
	if err := ignore.addFromFile(filepath.Join(l.root, ".gitignore")); err != nil {
		l.logger.Warn("failed to read .gitignore", slog.String("error", err.Error()))
	}

	var docs []*backend.Document
	skipped := 0

	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, relErr := filepath.Rel(l.root, path)
		if relErr != nil || rel == "." {
			return nil
		}

		if d.IsDir() {
			if ignore.match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ignore.match(rel, false) {
			return nil
		}

		doc, ok, loadErr := l.loadFile(path, rel)
		if loadErr != nil {
			l.logger.Warn("failed to read file, skipping",
				slog.String("path", rel), slog.String("error", loadErr.Error()))
			return nil
		}
		if !ok {
			skipped++
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", l.root, err)
	}

	l.logger.Info("corpus loaded",
		slog.String("repository", l.repository),
		slog.Int("documents", len(docs)),
		slog.Int("skipped", skipped))
	return docs, nil
}

// loadFile reads one file into a document. ok is false when the file
// is not indexable (too large, binary, unknown type).
func (l *Loader) loadFile(path, rel string) (*backend.Document, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, err
	}
	if info.Size() > MaxFileSize {
		return nil, false, nil
	}

	ext := strings.ToLower(filepath.Ext(rel))
	lang, known := languageByExt[ext]
	if !known {
		return nil, false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	if isBinary(data) {
		return nil, false, nil
	}

	content := string(data)
	return &backend.Document{
		ID:         l.repository + "/" + filepath.ToSlash(rel),
		Repository: l.repository,
		FilePath:   filepath.ToSlash(rel),
		Language:   lang,
		Content:    content,
		StartLine:  1,
		EndLine:    1 + strings.Count(content, "\n"),
	}, true, nil
}

// isBinary sniffs the first KiB for NUL bytes.
func isBinary(data []byte) bool {
	const sniffLen = 1024
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	return bytes.IndexByte(data, 0) >= 0
}
