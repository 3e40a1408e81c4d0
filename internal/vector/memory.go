package vector

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/shiori/internal/embedding"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/pkg/utils"
	"go.uber.org/zap"
)

// MemoryClient keeps collections in memory with brute-force search. When dir is set,
// each collection is snapshotted to <dir>/<name>.vec after every write and reloaded
// on open.
type MemoryClient struct {
	dir         string
	embedder    embedding.Embedder
	logger      *zap.Logger
	mu          sync.Mutex
	collections map[string]*MemoryCollection
}

// NewMemoryClient creates a memory client. An empty dir disables persistence.
func NewMemoryClient(dir string, embedder embedding.Embedder, logger *zap.Logger) (*MemoryClient, error) {
	if embedder == nil {
		return nil, fmt.Errorf("memory backend requires an embedder")
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create memory index dir: %w", err)
		}
	}
	return &MemoryClient{
		dir:         dir,
		embedder:    embedder,
		logger:      utils.OrNop(logger),
		collections: make(map[string]*MemoryCollection),
	}, nil
}

func (c *MemoryClient) path(name string) string {
	if c.dir == "" {
		return ""
	}
	return filepath.Join(c.dir, collectionFileName(name)+".vec")
}

// collectionFileName keeps readable names as they are and hashes anything else.
func collectionFileName(name string) string {
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			sum := sha256.Sum256([]byte(name))
			return "c_" + hex.EncodeToString(sum[:8])
		}
	}
	return name
}

// GetOrCreateCollection returns the named collection, loading its snapshot if present.
func (c *MemoryClient) GetOrCreateCollection(_ context.Context, name string, metric Metric) (Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.collections[name]; ok {
		return col, nil
	}
	col := &MemoryCollection{
		name:       name,
		metric:     metric,
		dimensions: c.embedder.Dimensions(),
		embedder:   c.embedder,
		path:       c.path(name),
		index:      make(map[string]int),
	}
	if err := col.load(); err != nil {
		return nil, err
	}
	c.logger.Debug("memory collection opened", zap.String("name", name), zap.Int("count", len(col.ids)))
	c.collections[name] = col
	return col, nil
}

// DeleteCollection drops the collection and its snapshot file.
func (c *MemoryClient) DeleteCollection(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, open := c.collections[name]
	delete(c.collections, name)
	p := c.path(name)
	if p == "" {
		if !open {
			return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
		}
		return nil
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if open {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
		}
		return fmt.Errorf("remove collection file: %w", err)
	}
	return nil
}

// Close is a no-op; snapshots are written on every change.
func (c *MemoryClient) Close() error {
	return nil
}

// MemoryCollection is one in-memory collection.
type MemoryCollection struct {
	name       string
	metric     Metric
	dimensions int
	embedder   embedding.Embedder
	path       string

	mu        sync.RWMutex
	ids       []string
	documents []string
	metadatas []models.Metadata
	vectors   [][]float32
	index     map[string]int // id -> position
}

// Name returns the collection name.
func (m *MemoryCollection) Name() string { return m.name }

// Metric returns the distance function fixed at creation.
func (m *MemoryCollection) Metric() Metric { return m.metric }

// Upsert embeds documents and stores them, replacing existing ids in place.
func (m *MemoryCollection) Upsert(ctx context.Context, ids, documents []string, metadatas []models.Metadata) error {
	if err := checkUpsertArgs(ids, documents, metadatas); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	vectors, err := m.embedder.EmbedBatch(ctx, documents)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		if len(vectors[i]) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), m.dimensions)
		}
		vec := make([]float32, m.dimensions)
		copy(vec, vectors[i])
		if pos, ok := m.index[id]; ok {
			m.documents[pos] = documents[i]
			m.metadatas[pos] = metadatas[i]
			m.vectors[pos] = vec
			continue
		}
		m.index[id] = len(m.ids)
		m.ids = append(m.ids, id)
		m.documents = append(m.documents, documents[i])
		m.metadatas = append(m.metadatas, metadatas[i])
		m.vectors = append(m.vectors, vec)
	}
	return m.saveLocked()
}

// Query returns the k nearest records by the collection metric.
func (m *MemoryCollection) Query(ctx context.Context, text string, k int) (*QueryResponse, error) {
	query, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp := &QueryResponse{}
	if k <= 0 || len(m.ids) == 0 {
		return resp, nil
	}
	type scored struct {
		pos      int
		distance float64
	}
	scores := make([]scored, len(m.ids))
	for i, vec := range m.vectors {
		scores[i] = scored{pos: i, distance: m.distance(query, vec)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].distance < scores[j].distance })
	if k > len(scores) {
		k = len(scores)
	}
	for _, s := range scores[:k] {
		resp.IDs = append(resp.IDs, m.ids[s.pos])
		resp.Documents = append(resp.Documents, m.documents[s.pos])
		resp.Metadatas = append(resp.Metadatas, m.metadatas[s.pos])
		resp.Distances = append(resp.Distances, s.distance)
	}
	return resp, nil
}

func (m *MemoryCollection) distance(a, b []float32) float64 {
	if m.metric == MetricL2 {
		return utils.L2Distance(a, b)
	}
	return utils.CosineDistance(a, b)
}

// Count returns the number of records.
func (m *MemoryCollection) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids), nil
}

// DeleteBySource removes every record whose source metadata equals source.
func (m *MemoryCollection) DeleteBySource(_ context.Context, source string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	keep := 0
	for i := range m.ids {
		if m.metadatas[i][models.MetaSource] == source {
			delete(m.index, m.ids[i])
			removed++
			continue
		}
		m.ids[keep] = m.ids[i]
		m.documents[keep] = m.documents[i]
		m.metadatas[keep] = m.metadatas[i]
		m.vectors[keep] = m.vectors[i]
		m.index[m.ids[keep]] = keep
		keep++
	}
	if removed == 0 {
		return 0, nil
	}
	m.ids = m.ids[:keep]
	m.documents = m.documents[:keep]
	m.metadatas = m.metadatas[:keep]
	m.vectors = m.vectors[:keep]
	return removed, m.saveLocked()
}

const (
	snapshotMagic   = "SHVC"
	snapshotVersion = 1
)

// saveLocked writes the snapshot: magic (4), version (4), metric, dimension (4), n (4),
// then per record: id, document, metadata JSON (each length-prefixed), vector (dimension*4 bytes).
// The file is written to a temp name and renamed into place.
func (m *MemoryCollection) saveLocked() error {
	if m.path == "" {
		return nil
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	err = m.writeSnapshot(w)
	if err == nil {
		err = w.Flush()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace index file: %w", err)
	}
	return nil
}

func (m *MemoryCollection) writeSnapshot(w io.Writer) error {
	if _, err := io.WriteString(w, snapshotMagic); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(snapshotVersion)); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	if err := writeBytes(w, []byte(m.metric)); err != nil {
		return fmt.Errorf("write metric: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.ids))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, id := range m.ids {
		meta, err := json.Marshal(m.metadatas[i])
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		for _, b := range [][]byte{[]byte(id), []byte(m.documents[i]), meta} {
			if err := writeBytes(w, b); err != nil {
				return fmt.Errorf("write record %d: %w", i, err)
			}
		}
		if _, err := w.Write(float32SliceToBytes(m.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// load reads the snapshot if it exists. The stored metric wins over the requested one.
func (m *MemoryCollection) load() error {
	if m.path == "" {
		return nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != snapshotMagic {
		return fmt.Errorf("%s is not a collection snapshot", m.path)
	}
	var version, dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", version)
	}
	metric, err := readBytes(r)
	if err != nil {
		return fmt.Errorf("read metric: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, embedder produces %d", dim, m.dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	m.metric = Metric(metric)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		id, err := readBytes(r)
		if err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		doc, err := readBytes(r)
		if err != nil {
			return fmt.Errorf("read document: %w", err)
		}
		metaJSON, err := readBytes(r)
		if err != nil {
			return fmt.Errorf("read metadata: %w", err)
		}
		var meta models.Metadata
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return fmt.Errorf("decode metadata: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		m.index[string(id)] = len(m.ids)
		m.ids = append(m.ids, string(id))
		m.documents = append(m.documents, string(doc))
		m.metadatas = append(m.metadatas, meta)
		m.vectors = append(m.vectors, bytesToFloat32Slice(buf))
	}
	return nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
