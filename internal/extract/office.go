package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	contentTypesPath    = "[Content_Types].xml"
	docxDefaultMainPath = "word/document.xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	odfContentPath      = "content.xml"
)

var errEntryNotFound = errors.New("entry not found")

var (
	// Word paragraphs and their text runs. Neither <w:pPr> nor a self-closing
	// <w:p/> opens a paragraph.
	wParagraph = regexp.MustCompile(`(?s)<w:p(?:\s[^>]*[^/])?>(.*?)</w:p>`)
	wText      = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)

	// DrawingML paragraphs and runs used by PowerPoint slides.
	aParagraph = regexp.MustCompile(`(?s)<a:p(?:\s[^>]*[^/])?>(.*?)</a:p>`)
	aText      = regexp.MustCompile(`<a:t(?:\s[^>]*)?>([^<]*)</a:t>`)
	slideName  = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

	// OpenDocument headings and paragraphs, in document order.
	odfBlock = regexp.MustCompile(`(?s)<text:(?:p|h)(?:\s[^>]*[^/])?>(.*?)</text:(?:p|h)>`)
	anyTag   = regexp.MustCompile(`<[^>]+>`)

	partNameFirst = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)
	typeFirst     = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)
)

func openZip(content []byte, kind string) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract %s: not a zip: %w", kind, err)
	}
	return zr, nil
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s: %w", name, errEntryNotFound)
}

// paragraphs returns the text of each block matched by block, with runs matched
// by run concatenated. Blank paragraphs are dropped.
func paragraphs(xml string, block, run *regexp.Regexp) []string {
	var out []string
	for _, m := range block.FindAllStringSubmatch(xml, -1) {
		var b strings.Builder
		for _, r := range run.FindAllStringSubmatch(m[1], -1) {
			b.WriteString(r[1])
		}
		if text := strings.TrimSpace(html.UnescapeString(b.String())); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// docxMainPath resolves the main document part from [Content_Types].xml,
// falling back to word/document.xml.
func docxMainPath(zr *zip.Reader) string {
	data, err := readEntry(zr, contentTypesPath)
	if err != nil {
		return docxDefaultMainPath
	}
	for _, re := range []*regexp.Regexp{partNameFirst, typeFirst} {
		if m := re.FindSubmatch(data); len(m) > 1 {
			return strings.TrimPrefix(string(m[1]), "/")
		}
	}
	return docxDefaultMainPath
}

// extractDOCX returns one paragraph per Word paragraph. Text nodes are matched
// directly so paragraphs with attributes (w:rsidR and friends) are not missed.
func extractDOCX(content []byte) (string, error) {
	zr, err := openZip(content, "DOCX")
	if err != nil {
		return "", err
	}
	doc, err := readEntry(zr, docxMainPath(zr))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	return strings.Join(paragraphs(string(doc), wParagraph, wText), "\n\n"), nil
}

// extractPPTX returns slide text in slide-number order, one line per text
// paragraph and a blank line between slides.
func extractPPTX(content []byte) (string, error) {
	zr, err := openZip(content, "PPTX")
	if err != nil {
		return "", err
	}
	type slide struct {
		n    int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		if m := slideName.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{n, f.Name})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	var out []string
	for _, s := range slides {
		data, err := readEntry(zr, s.name)
		if err != nil {
			return "", fmt.Errorf("extract PPTX: %w", err)
		}
		if lines := paragraphs(string(data), aParagraph, aText); len(lines) > 0 {
			out = append(out, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(out, "\n\n"), nil
}

// extractODF handles OpenDocument text, presentations, and spreadsheets: every
// text:h and text:p in content.xml becomes one line.
func extractODF(content []byte) (string, error) {
	zr, err := openZip(content, "OpenDocument")
	if err != nil {
		return "", err
	}
	data, err := readEntry(zr, odfContentPath)
	if err != nil {
		return "", fmt.Errorf("extract OpenDocument: %w", err)
	}
	var lines []string
	for _, m := range odfBlock.FindAllStringSubmatch(string(data), -1) {
		text := html.UnescapeString(anyTag.ReplaceAllString(m[1], ""))
		if text = strings.TrimSpace(text); text != "" {
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n"), nil
}
