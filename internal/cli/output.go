// Package cli renders query results and stats and runs the interactive query loop.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/pkg/utils"
)

// OutputFormat is the format for result output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// DefaultPreviewChars is how much of each match's content the text format shows.
const DefaultPreviewChars = 300

// ParseOutputFormat accepts "text", "json" or empty (text).
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

var rule = strings.Repeat("=", 60)

// WriteQueryResult writes result to w in the given format. previewChars <= 0 uses
// DefaultPreviewChars.
func WriteQueryResult(w io.Writer, result *models.QueryResult, format OutputFormat, previewChars int) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	if previewChars <= 0 {
		previewChars = DefaultPreviewChars
	}
	fmt.Fprintf(w, "\n%s\nSEARCH RESULTS\n%s\n", rule, rule)
	if len(result.Matches) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}
	for i, m := range result.Matches {
		fmt.Fprintf(w, "\n--- Result %d ---\n", i+1)
		fmt.Fprintf(w, "Source: %s\n", m.Metadata[models.MetaFilename])
		fmt.Fprintf(w, "Chunk ID: %s\n", m.Metadata[models.MetaChunkID])
		fmt.Fprintf(w, "Distance: %.4f\n", m.Distance)
		fmt.Fprintf(w, "\nContent:\n%s\n", utils.Truncate(m.Content, previewChars))
	}
	return nil
}

// WriteStats writes collection statistics. diskBytes < 0 omits the size line.
func WriteStats(w io.Writer, stats models.Stats, diskBytes int64, format OutputFormat) error {
	if format == OutputJSON {
		type statsWithDisk struct {
			models.Stats
			DiskBytes *int64 `json:"disk_bytes,omitempty"`
		}
		out := statsWithDisk{Stats: stats}
		if diskBytes >= 0 {
			out.DiskBytes = &diskBytes
		}
		return writeJSON(w, out)
	}
	fmt.Fprintf(w, "Collection: %s\n", stats.CollectionName)
	fmt.Fprintf(w, "Total chunks: %d\n", stats.TotalChunks)
	fmt.Fprintf(w, "Persist directory: %s\n", stats.PersistDirectory)
	if diskBytes >= 0 {
		fmt.Fprintf(w, "Disk usage: %s\n", FormatBytes(diskBytes))
	}
	return nil
}

// WriteIngestSummary prints the outcome of an ingest run.
func WriteIngestSummary(w io.Writer, added int, stats models.Stats) {
	fmt.Fprintf(w, "\n%s\nINGESTION COMPLETE\n%s\n", rule, rule)
	fmt.Fprintf(w, "Chunks added: %d\n", added)
	_ = WriteStats(w, stats, -1, OutputText)
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
