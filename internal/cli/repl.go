package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/shiori/internal/models"
)

// SearchFunc runs one query.
type SearchFunc func(ctx context.Context, text string, n int) (*models.QueryResult, error)

// Interactive reads queries from in until an exit keyword or EOF, printing results to out.
type Interactive struct {
	Search       SearchFunc
	NResults     int
	Format       OutputFormat
	PreviewChars int
}

var exitWords = map[string]bool{"quit": true, "exit": true, "q": true}

// IsExit reports whether line is one of the exit keywords (case-insensitive).
func IsExit(line string) bool {
	return exitWords[strings.ToLower(strings.TrimSpace(line))]
}

// Run loops until the user exits. A failing query is reported and the loop continues;
// only context cancellation or a read error ends it with an error.
func (r *Interactive) Run(ctx context.Context, in io.Reader, out io.Writer, stats models.Stats) error {
	fmt.Fprintf(out, "\n%s\nINTERACTIVE QUERY MODE\n%s\n", rule, rule)
	fmt.Fprintln(out, "Enter your queries (type 'quit' or 'exit' to stop)")
	fmt.Fprintf(out, "\nCollection: %s\nTotal chunks: %d\n", stats.CollectionName, stats.TotalChunks)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s\n\nEnter query: ", strings.Repeat("-", 60))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if IsExit(line) {
			fmt.Fprintln(out, "Exiting interactive mode.")
			return nil
		}
		if line == "" {
			fmt.Fprintln(out, "Please enter a valid query.")
			continue
		}
		result, err := r.Search(ctx, line, r.NResults)
		if err != nil {
			fmt.Fprintf(out, "Query failed: %v\n", err)
			continue
		}
		if err := WriteQueryResult(out, result, r.Format, r.PreviewChars); err != nil {
			return err
		}
	}
}
