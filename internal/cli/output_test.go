package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/shiori/internal/models"
)

func sampleResult() *models.QueryResult {
	return &models.QueryResult{
		Query: "test query",
		Matches: []models.Match{
			{
				ID:       "id-1",
				Content:  strings.Repeat("x", 350),
				Metadata: models.Metadata{"source": "/d/a.txt", "filename": "a.txt", "chunk_id": "3"},
				Distance: 0.123456,
			},
			{
				ID:       "id-2",
				Content:  "short",
				Metadata: models.Metadata{"source": "/d/b.txt", "filename": "b.txt", "chunk_id": "0"},
				Distance: 0.5,
			},
		},
	}
}

func TestWriteQueryResult_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteQueryResult(&buf, sampleResult(), OutputText, 0); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"--- Result 1 ---",
		"Source: a.txt",
		"Chunk ID: 3",
		"Distance: 0.1235",
		strings.Repeat("x", 300) + "...",
		"--- Result 2 ---",
		"Distance: 0.5000",
		"short\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, strings.Repeat("x", 301)) {
		t.Error("content preview should be cut at 300 characters")
	}
}

func TestWriteQueryResult_TextEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteQueryResult(&buf, &models.QueryResult{Query: "q"}, OutputText, 0); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No results found.") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestWriteQueryResult_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteQueryResult(&buf, sampleResult(), OutputJSON, 0); err != nil {
		t.Fatal(err)
	}
	var decoded models.QueryResult
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Query != "test query" || len(decoded.Matches) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Matches[0].Metadata.ChunkID() != 3 {
		t.Errorf("chunk id = %d", decoded.Matches[0].Metadata.ChunkID())
	}
	if len(decoded.Matches[0].Content) != 350 {
		t.Error("JSON output should carry full content")
	}
}

func TestWriteStats(t *testing.T) {
	stats := models.Stats{CollectionName: "docs", TotalChunks: 42, PersistDirectory: "/data"}
	var buf bytes.Buffer
	if err := WriteStats(&buf, stats, 2048, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Collection: docs", "Total chunks: 42", "Persist directory: /data", "Disk usage: 2.0 KiB"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := WriteStats(&buf, stats, -1, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["collection_name"] != "docs" || decoded["total_chunks"] != float64(42) {
		t.Errorf("decoded = %v", decoded)
	}
	if _, ok := decoded["disk_bytes"]; ok {
		t.Error("disk_bytes should be omitted when unknown")
	}
}

func TestWriteIngestSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteIngestSummary(&buf, 7, models.Stats{CollectionName: "docs", TotalChunks: 14, PersistDirectory: "/p"})
	out := buf.String()
	if !strings.Contains(out, "Chunks added: 7") || !strings.Contains(out, "Total chunks: 14") {
		t.Errorf("summary = %s", out)
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
