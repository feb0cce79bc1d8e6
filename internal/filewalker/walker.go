package filewalker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Walker discovers script files under a root directory.
type Walker struct {
	// exts restricts discovery to these lowercase extensions; empty means
	// every regular file.
	exts map[string]bool
}

// NewWalker creates a Walker. exts may be empty to accept all files.
func NewWalker(exts []string) *Walker {
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		m[e] = true
	}
	return &Walker{exts: m}
}

// FileEntry represents a discovered file ready for processing.
type FileEntry struct {
	// Path is the absolute path on disk.
	Path string
	// Rel is the path relative to the scanned root; it keys the file to its
	// dump across the extract/inject round trip.
	Rel string
}

// Walk discovers all matching files under the given root directory.
func (w *Walker) Walk(root string) ([]FileEntry, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root path: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", root)
	}

	var entries []FileEntry

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Error walking path")
			return nil
		}

		if info.IsDir() {
			return nil
		}

		if len(w.exts) > 0 {
			ext := strings.ToLower(filepath.Ext(path))
			if !w.exts[ext] {
				return nil
			}
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		entries = append(entries, FileEntry{Path: path, Rel: rel})
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	log.Info().Int("count", len(entries)).Str("root", root).Msg("Discovered files")
	return entries, nil
}
