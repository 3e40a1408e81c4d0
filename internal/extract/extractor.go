// Package extract converts document files into plain text for chunking.
// Paragraph, slide, page, and sheet boundaries are emitted as blank lines so the
// splitter can prefer them.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// ErrNotText is returned for a strict plain-text format whose bytes are not UTF-8.
var ErrNotText = errors.New("content is not valid UTF-8 text")

type bytesDecoder func(content []byte) (string, error)

type pathDecoder func(path string) (string, error)

// Extractor extracts plain text from document files. It is stateless.
type Extractor struct {
	bytes map[string]bytesDecoder
	paths map[string]pathDecoder
}

// NewExtractor returns an Extractor with all supported formats registered.
func NewExtractor() *Extractor {
	return &Extractor{
		bytes: map[string]bytesDecoder{
			".txt":  decodeText,
			".md":   decodeText,
			".text": decodeText,
			".rst":  decodeText,
			".doc":  decodeStrictText,
			".pdf":  extractPDF,
			".xlsx": extractExcel,
			".docx": extractDOCX,
			".pptx": extractPPTX,
			".odt":  extractODF,
			".odp":  extractODF,
			".ods":  extractODF,
		},
		paths: map[string]pathDecoder{
			".rtf": extractRTF,
		},
	}
}

// Extensions returns every extension with a dedicated decoder, sorted.
func (e *Extractor) Extensions() []string {
	exts := make([]string, 0, len(e.bytes)+len(e.paths))
	for ext := range e.bytes {
		exts = append(exts, ext)
	}
	for ext := range e.paths {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if decode, ok := e.paths[ext]; ok {
		return decode(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content by extension (with leading dot).
// Unknown extensions are treated as lenient plain text.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	ext = strings.ToLower(ext)
	if decode, ok := e.bytes[ext]; ok {
		return decode(content)
	}
	if _, ok := e.paths[ext]; ok {
		return "", fmt.Errorf("%s can only be extracted from a file path", ext)
	}
	return decodeText(content)
}

// decodeText returns content as a string, replacing invalid UTF-8 sequences.
func decodeText(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "\uFFFD"), nil
	}
	return string(content), nil
}

// decodeStrictText rejects non-UTF-8 content. Legacy binary .doc files fail here
// and are skipped by the loader instead of being indexed as garbage.
func decodeStrictText(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", ErrNotText
	}
	return string(content), nil
}
