package vector

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/shiori/internal/embedding"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/pkg/utils"
	"go.uber.org/zap"
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteClient stores every collection in one SQLite database. Records live in the
// embeddings table; each collection gets its own vec0 table for KNN search.
type SQLiteClient struct {
	db       *sql.DB
	embedder embedding.Embedder
	logger   *zap.Logger
}

// NewSQLiteClient opens or creates the database at dbPath (":memory:" for a throwaway one).
// Parent directories are created if they do not exist.
func NewSQLiteClient(dbPath string, embedder embedding.Embedder, logger *zap.Logger) (*SQLiteClient, error) {
	if embedder == nil {
		return nil, fmt.Errorf("sqlite backend requires an embedder")
	}
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: writes are serial anyway and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteClient{db: db, embedder: embedder, logger: utils.OrNop(logger)}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		metric TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		vec_table TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS embeddings (
		pk INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		document TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		source TEXT NOT NULL DEFAULT '',
		UNIQUE (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_source ON embeddings(collection, source);
	`
	_, err := db.Exec(schema)
	return err
}

// vecTableName derives a safe table identifier from a collection name.
func vecTableName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return "vec_" + hex.EncodeToString(sum[:8])
}

// GetOrCreateCollection opens the named collection, creating it with metric if absent.
// An existing collection keeps the metric it was created with.
func (c *SQLiteClient) GetOrCreateCollection(ctx context.Context, name string, metric Metric) (Collection, error) {
	dims := c.embedder.Dimensions()
	var storedMetric, table string
	var storedDims int
	err := c.db.QueryRowContext(ctx,
		`SELECT metric, dimensions, vec_table FROM collections WHERE name = ?`, name,
	).Scan(&storedMetric, &storedDims, &table)
	switch {
	case err == nil:
		if storedDims != dims {
			return nil, fmt.Errorf("collection %q has %d dimensions, embedder produces %d", name, storedDims, dims)
		}
		return &SQLiteCollection{client: c, name: name, metric: Metric(storedMetric), table: table}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to look up collection: %w", err)
	}

	if metric == "" {
		metric = MetricCosine
	}
	table = vecTableName(name)
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	ddl := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(chunk_rowid INTEGER PRIMARY KEY, embedding float[%d] distance_metric=%s)`,
		table, dims, metric,
	)
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create vector table: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO collections (name, metric, dimensions, vec_table) VALUES (?, ?, ?, ?)`,
		name, string(metric), dims, table,
	); err != nil {
		return nil, fmt.Errorf("failed to register collection: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	c.logger.Debug("sqlite collection created", zap.String("name", name), zap.String("metric", string(metric)), zap.Int("dimensions", dims))
	return &SQLiteCollection{client: c, name: name, metric: metric, table: table}, nil
}

// DeleteCollection drops the collection's records and vector table.
func (c *SQLiteClient) DeleteCollection(ctx context.Context, name string) error {
	var table string
	err := c.db.QueryRowContext(ctx, `SELECT vec_table FROM collections WHERE name = ?`, name).Scan(&table)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("failed to look up collection: %w", err)
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("failed to drop vector table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE collection = ?`, name); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to unregister collection: %w", err)
	}
	return tx.Commit()
}

// Close closes the database.
func (c *SQLiteClient) Close() error {
	return c.db.Close()
}

// SQLiteCollection is one collection inside a SQLiteClient.
type SQLiteCollection struct {
	client *SQLiteClient
	name   string
	metric Metric
	table  string
}

// Name returns the collection name.
func (s *SQLiteCollection) Name() string { return s.name }

// Metric returns the distance function fixed at creation.
func (s *SQLiteCollection) Metric() Metric { return s.metric }

// Upsert embeds documents and writes them in one transaction. An existing id keeps its
// row but gets new content and a new vector.
func (s *SQLiteCollection) Upsert(ctx context.Context, ids, documents []string, metadatas []models.Metadata) error {
	if err := checkUpsertArgs(ids, documents, metadatas); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	vectors, err := s.client.embedder.EmbedBatch(ctx, documents)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}

	tx, err := s.client.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, id := range ids {
		meta, err := json.Marshal(metadatas[i])
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		blob, err := sqlite_vec.SerializeFloat32(vectors[i])
		if err != nil {
			return fmt.Errorf("serialize embedding for %s: %w", id, err)
		}
		var rowid int64
		err = tx.QueryRowContext(ctx,
			`SELECT pk FROM embeddings WHERE collection = ? AND id = ?`, s.name, id,
		).Scan(&rowid)
		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx,
				`UPDATE embeddings SET document = ?, metadata = ?, source = ? WHERE pk = ?`,
				documents[i], string(meta), metadatas[i][models.MetaSource], rowid,
			); err != nil {
				return fmt.Errorf("update record %s: %w", id, err)
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+s.table+" WHERE chunk_rowid = ?", rowid); err != nil {
				return fmt.Errorf("delete old embedding for %s: %w", id, err)
			}
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx,
				`INSERT INTO embeddings (collection, id, document, metadata, source) VALUES (?, ?, ?, ?, ?)`,
				s.name, id, documents[i], string(meta), metadatas[i][models.MetaSource],
			)
			if err != nil {
				return fmt.Errorf("insert record %s: %w", id, err)
			}
			if rowid, err = res.LastInsertId(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("look up record %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+s.table+" (chunk_rowid, embedding) VALUES (?, ?)", rowid, blob,
		); err != nil {
			return fmt.Errorf("insert embedding for %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// maxKNN is the largest k sqlite-vec accepts in a KNN query.
const maxKNN = 4096

// Query embeds text and runs a sqlite-vec KNN search for the k nearest records.
// k is clamped to the collection size and to maxKNN.
func (s *SQLiteCollection) Query(ctx context.Context, text string, k int) (*QueryResponse, error) {
	resp := &QueryResponse{}
	if k <= 0 {
		return resp, nil
	}
	n, err := s.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count before query: %w", err)
	}
	k = min(k, n, maxKNN)
	if k == 0 {
		return resp, nil
	}
	vec, err := s.client.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return nil, fmt.Errorf("serialize query embedding: %w", err)
	}
	rows, err := s.client.db.QueryContext(ctx, `
		SELECT e.id, e.document, e.metadata, v.distance
		FROM (
			SELECT chunk_rowid, distance FROM `+s.table+`
			WHERE embedding MATCH ? AND k = ?
		) v
		JOIN embeddings e ON e.pk = v.chunk_rowid
		ORDER BY v.distance
	`, blob, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, doc, metaJSON string
		var distance float64
		if err := rows.Scan(&id, &doc, &metaJSON, &distance); err != nil {
			return nil, err
		}
		var meta models.Metadata
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		resp.IDs = append(resp.IDs, id)
		resp.Documents = append(resp.Documents, doc)
		resp.Metadatas = append(resp.Metadatas, meta)
		resp.Distances = append(resp.Distances, distance)
	}
	return resp, rows.Err()
}

// Count returns the number of records in the collection.
func (s *SQLiteCollection) Count(ctx context.Context) (int, error) {
	var n int
	err := s.client.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM embeddings WHERE collection = ?`, s.name,
	).Scan(&n)
	return n, err
}

// DeleteBySource removes every record whose source metadata equals source.
func (s *SQLiteCollection) DeleteBySource(ctx context.Context, source string) (int, error) {
	tx, err := s.client.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT pk FROM embeddings WHERE collection = ? AND source = ?`, s.name, source,
	)
	if err != nil {
		return 0, err
	}
	var rowids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		rowids = append(rowids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(rowids) == 0 {
		return 0, nil
	}
	for _, id := range rowids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+s.table+" WHERE chunk_rowid = ?", id); err != nil {
			return 0, fmt.Errorf("delete embedding: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM embeddings WHERE collection = ? AND source = ?`, s.name, source,
	); err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rowids), nil
}
