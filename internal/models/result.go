package models

// Match is a single ranked hit. Lower Distance means more similar.
type Match struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
	Distance float64  `json:"distance"`
}

// QueryResult holds matches ordered by ascending distance.
type QueryResult struct {
	Query   string  `json:"query"`
	Matches []Match `json:"matches"`
}

// Stats describes a collection.
type Stats struct {
	CollectionName   string `json:"collection_name"`
	TotalChunks      int    `json:"total_chunks"`
	PersistDirectory string `json:"persist_directory"`
}
