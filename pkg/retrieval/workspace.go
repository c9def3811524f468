package retrieval

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tamma-ai/tamma/pkg/models"
)

// maxIndexedFileBytes skips generated bundles and binary blobs that would
// drown the BM25 index.
const maxIndexedFileBytes = 256 * 1024

var skippedDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	"node_modules": {},
	"vendor":       {},
	"dist":         {},
	"target":       {},
	".venv":        {},
}

var indexedExtensions = map[string]string{
	".go":    "go",
	".ts":    "typescript",
	".tsx":   "typescript",
	".js":    "javascript",
	".jsx":   "javascript",
	".py":    "python",
	".rs":    "rust",
	".java":  "java",
	".rb":    "ruby",
	".sh":    "shell",
	".sql":   "sql",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".toml":  "toml",
	".md":    "markdown",
	".proto": "protobuf",
}

// IndexWorkspace walks root and indexes every recognised source file into
// the keyword source, one document per file. Returns the number of files
// indexed.
func IndexWorkspace(src *KeywordSource, root string) (int, error) {
	indexed := 0
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if _, skip := skippedDirs[entry.Name()]; skip {
				return filepath.SkipDir
			}
			if strings.HasPrefix(entry.Name(), "_") && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		lang, ok := indexedExtensions[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}
		info, err := entry.Info()
		if err != nil || info.Size() > maxIndexedFileBytes {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}

		src.Index(Document{
			ID:      rel,
			Content: string(content),
			Metadata: models.ChunkMetadata{
				FilePath: rel,
				Language: lang,
				Date:     info.ModTime().UTC().Format(time.RFC3339),
			},
		})
		indexed++
		return nil
	})
	if err != nil {
		return indexed, fmt.Errorf("index workspace %s: %w", root, err)
	}
	return indexed, nil
}
