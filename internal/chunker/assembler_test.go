package chunker

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/splitter"
)

func newSplitter(t *testing.T, size, overlap int) *splitter.Splitter {
	t.Helper()
	s, err := splitter.New(size, overlap)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAssemble_contiguousChunkIDs(t *testing.T) {
	a := NewAssembler(newSplitter(t, 40, 10))
	docs := []models.Document{
		{Content: strings.Repeat("alpha beta gamma ", 20), Source: "/d/a.txt", Filename: "a.txt"},
		{Content: "short", Source: "/d/b.md", Filename: "b.md"},
		{Content: strings.Repeat("delta epsilon ", 15), Source: "/d/c.txt", Filename: "c.txt"},
	}
	chunks := a.Assemble(docs)
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	next := map[string]int{}
	order := []string{}
	for _, c := range chunks {
		if _, seen := next[c.Source]; !seen {
			order = append(order, c.Source)
		}
		if c.ChunkID != next[c.Source] {
			t.Errorf("%s: chunk_id %d, want %d", c.Source, c.ChunkID, next[c.Source])
		}
		next[c.Source]++
		if c.Content == "" {
			t.Error("empty chunk content")
		}
	}
	want := []string{"/d/a.txt", "/d/b.md", "/d/c.txt"}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("document order = %v", order)
			break
		}
	}
}

func TestAssemble_copiesSourceAndFilename(t *testing.T) {
	a := NewAssembler(newSplitter(t, 100, 10))
	chunks := a.Assemble([]models.Document{{Content: "hello world", Source: "/x/y.txt", Filename: "y.txt"}})
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	c := chunks[0]
	if c.Source != "/x/y.txt" || c.Filename != "y.txt" || c.Content != "hello world" || c.ChunkID != 0 {
		t.Errorf("chunk = %+v", c)
	}
}

func TestAssemble_randomIDs(t *testing.T) {
	a := NewAssembler(newSplitter(t, 10, 2))
	doc := models.Document{Content: strings.Repeat("abc ", 30), Source: "/s", Filename: "s"}
	first := a.Assemble([]models.Document{doc})
	second := a.Assemble([]models.Document{doc})
	seen := map[string]bool{}
	for _, c := range append(first, second...) {
		u, err := uuid.Parse(c.AssignedID)
		if err != nil {
			t.Fatalf("AssignedID %q is not a UUID", c.AssignedID)
		}
		if u.Version() != 4 {
			t.Errorf("version = %d, want 4", u.Version())
		}
		if seen[c.AssignedID] {
			t.Errorf("duplicate id %s", c.AssignedID)
		}
		seen[c.AssignedID] = true
	}
}

func TestAssemble_deterministicIDs(t *testing.T) {
	a := NewAssembler(newSplitter(t, 10, 2), WithIDStrategy(IDDeterministic))
	if a.IDStrategy() != IDDeterministic {
		t.Fatalf("strategy = %s", a.IDStrategy())
	}
	doc := models.Document{Content: strings.Repeat("abc ", 30), Source: "/s", Filename: "s"}
	first := a.Assemble([]models.Document{doc})
	second := a.Assemble([]models.Document{doc})
	if len(first) != len(second) {
		t.Fatal("chunk count changed between runs")
	}
	for i := range first {
		if first[i].AssignedID != second[i].AssignedID {
			t.Errorf("chunk %d: %s != %s", i, first[i].AssignedID, second[i].AssignedID)
		}
	}
}

func TestWithIDStrategy_unknownFallsBack(t *testing.T) {
	a := NewAssembler(newSplitter(t, 10, 2), WithIDStrategy("sequential"))
	if a.IDStrategy() != IDRandom {
		t.Errorf("strategy = %s", a.IDStrategy())
	}
}

func TestAssemble_emptyDocuments(t *testing.T) {
	a := NewAssembler(newSplitter(t, 10, 2))
	if got := a.Assemble(nil); len(got) != 0 {
		t.Errorf("nil docs: %v", got)
	}
	if got := a.Assemble([]models.Document{{Content: " \n\t ", Source: "/e"}}); len(got) != 0 {
		t.Errorf("blank doc: %v", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"a\r\nb", "a\nb"},
		{"a\rb", "a\nb"},
		{"\uFEFFhello", "hello"},
		{"plain\n\ntext", "plain\n\ntext"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAssemble_crlfParagraphs(t *testing.T) {
	a := NewAssembler(newSplitter(t, 15, 0))
	chunks := a.Assemble([]models.Document{{Content: "first para\r\n\r\nsecond one", Source: "/w"}})
	if len(chunks) != 2 || chunks[0].Content != "first para" || chunks[1].Content != "second one" {
		t.Errorf("chunks = %+v", chunks)
	}
}
