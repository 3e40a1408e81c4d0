// Package loader walks a folder and turns matching files into documents.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/shiori/internal/models"
	"go.uber.org/zap"
)

// ErrFolderNotFound is returned when the ingest folder does not exist or is not a directory.
var ErrFolderNotFound = errors.New("folder not found")

// DefaultExtensions are the plain-text formats accepted when none are configured.
var DefaultExtensions = []string{".txt", ".md", ".text", ".doc"}

// Extractor converts a file into text.
type Extractor interface {
	Extract(path string) (string, error)
}

// Loader reads documents from disk. A file that cannot be read or extracted is
// logged and skipped; it never aborts the walk.
type Loader struct {
	extractor  Extractor
	extensions map[string]bool
	logger     *zap.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger used for skipped-file warnings.
func WithLogger(l *zap.Logger) LoaderOption {
	return func(ld *Loader) { ld.logger = l }
}

// New returns a loader accepting files with the given extensions
// (case-insensitive, leading dot optional). Empty means DefaultExtensions.
func New(extractor Extractor, extensions []string, opts ...LoaderOption) *Loader {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	ld := &Loader{
		extractor:  extractor,
		extensions: make(map[string]bool, len(extensions)),
		logger:     zap.NewNop(),
	}
	for _, ext := range extensions {
		ld.extensions[normalizeExt(ext)] = true
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

func normalizeExt(ext string) string {
	return "." + strings.TrimPrefix(strings.ToLower(ext), ".")
}

// Accepts reports whether path has an accepted extension.
func (ld *Loader) Accepts(path string) bool {
	return ld.extensions[normalizeExt(filepath.Ext(path))]
}

// Load walks folder recursively in lexical order and returns one document per
// readable, accepted file. Source is the absolute path.
func (ld *Loader) Load(ctx context.Context, folder string) ([]models.Document, error) {
	root, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, folder)
	}

	var docs []models.Document
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			ld.logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !ld.Accepts(path) {
			return nil
		}
		doc, err := ld.LoadFile(path)
		if err != nil {
			ld.logger.Warn("skipping file", zap.String("path", path), zap.Error(err))
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	ld.logger.Info("documents loaded", zap.String("folder", root), zap.Int("documents", len(docs)))
	return docs, nil
}

// LoadFile reads a single file into a document without checking its extension.
func (ld *Loader) LoadFile(path string) (models.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return models.Document{}, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return models.Document{}, fmt.Errorf("not a regular file: %s", abs)
	}
	text, err := ld.extractor.Extract(abs)
	if err != nil {
		return models.Document{}, fmt.Errorf("extract content: %w", err)
	}
	return models.Document{
		Content:  text,
		Source:   abs,
		Filename: filepath.Base(abs),
	}, nil
}
