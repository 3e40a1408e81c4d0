package models

import (
	"fmt"
	"strings"
)

// DefaultNResults is used when a query does not specify how many matches to return.
const DefaultNResults = 5

// MaxNResults caps n_results for a single query.
const MaxNResults = 100

// Query is a similarity query request.
type Query struct {
	Query    string `json:"query"`
	NResults int    `json:"n_results,omitempty"`
}

// Validate rejects an empty or blank query and normalizes NResults into [1, MaxNResults].
func (q *Query) Validate() error {
	if strings.TrimSpace(q.Query) == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.NResults <= 0 {
		q.NResults = DefaultNResults
	}
	if q.NResults > MaxNResults {
		q.NResults = MaxNResults
	}
	return nil
}
