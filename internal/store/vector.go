package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	lberrors "github.com/tessellate-ai/lorebase/internal/errors"
)

// HNSW tuning defaults.
const (
	defaultHNSWM        = 16
	defaultHNSWEfSearch = 64
)

// VectorIndex is an in-memory HNSW index over string-keyed vectors,
// persisted with an atomic snapshot. Replaced and deleted nodes are
// removed from the graph eagerly, so orphans never pile up and starve
// the fixed-size candidate fetch. The one exception is the graph's
// final node, which coder/hnsw cannot delete safely; it is orphaned
// instead and swept on the next insert.
type VectorIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	metric Metric
	dims   int

	idMap   map[string]uint64
	keyMap  map[uint64]string
	orphans map[uint64]struct{}
	nextKey uint64

	closed bool
}

// vectorIndexMeta stores ID mappings and config for persistence.
type vectorIndexMeta struct {
	IDMap   map[string]uint64
	NextKey uint64
	Metric  Metric
	Dims    int
}

// NewVectorIndex creates an empty index for the given metric and
// dimension.
func NewVectorIndex(metric Metric, dims int) (*VectorIndex, error) {
	if dims <= 0 {
		return nil, lberrors.ValidationError(
			fmt.Sprintf("vector dimension must be positive, got %d", dims), nil)
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = metric.distanceFunc()
	graph.M = defaultHNSWM
	graph.EfSearch = defaultHNSWEfSearch
	graph.Ml = 0.25

	return &VectorIndex{
		graph:   graph,
		metric:  metric,
		dims:    dims,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		orphans: make(map[uint64]struct{}),
	}, nil
}

// removeKey detaches one graph node. The final node of a graph cannot
// be deleted without destabilizing coder/hnsw, so it is orphaned and
// left for sweepOrphans.
func (v *VectorIndex) removeKey(key uint64) {
	delete(v.keyMap, key)
	if v.graph.Len() > 1 {
		v.graph.Delete(key)
		return
	}
	v.orphans[key] = struct{}{}
}

// sweepOrphans deletes deferred nodes once the graph has grown past
// them. Called with the write lock held.
func (v *VectorIndex) sweepOrphans() {
	for key := range v.orphans {
		if v.graph.Len() <= 1 {
			return
		}
		v.graph.Delete(key)
		delete(v.orphans, key)
	}
}

// Add inserts vectors. Existing IDs are replaced.
func (v *VectorIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return lberrors.ValidationError(
			fmt.Sprintf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors)), nil)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return lberrors.StorageError("vector index is closed", nil)
	}

	// Validate all dimensions before touching the graph
	for _, vec := range vectors {
		if len(vec) != v.dims {
			return lberrors.DimensionError(v.dims, len(vec))
		}
	}

	for i, id := range ids {
		if existingKey, exists := v.idMap[id]; exists {
			v.removeKey(existingKey)
			delete(v.idMap, id)
		}

		key := v.nextKey
		v.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if v.metric.normalizesVectors() {
			normalizeVectorInPlace(vec)
		}

		v.graph.Add(hnsw.MakeNode(key, vec))
		v.idMap[id] = key
		v.keyMap[key] = id
	}
	v.sweepOrphans()

	return nil
}

// Search returns up to k nearest neighbors, closest first. A deferred
// orphan awaiting its sweep is filtered out of the result set.
func (v *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return nil, lberrors.StorageError("vector index is closed", nil)
	}
	if len(query) != v.dims {
		return nil, lberrors.DimensionError(v.dims, len(query))
	}
	if v.graph.Len() == 0 || k <= 0 {
		return []VectorResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if v.metric.normalizesVectors() {
		normalizeVectorInPlace(q)
	}

	nodes := v.graph.Search(q, k)

	results := make([]VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, exists := v.keyMap[node.Key]
		if !exists {
			continue
		}
		results = append(results, VectorResult{
			ID:       id,
			Distance: v.graph.Distance(q, node.Value),
		})
	}
	return results, nil
}

// Delete removes vectors by ID. Unknown IDs are ignored.
func (v *VectorIndex) Delete(ctx context.Context, ids []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return lberrors.StorageError("vector index is closed", nil)
	}

	for _, id := range ids {
		if key, exists := v.idMap[id]; exists {
			v.removeKey(key)
			delete(v.idMap, id)
		}
	}
	return nil
}

// Contains checks if an ID exists.
func (v *VectorIndex) Contains(id string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, exists := v.idMap[id]
	return exists
}

// Count returns the number of live vectors.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.idMap)
}

// Dimensions returns the index dimension.
func (v *VectorIndex) Dimensions() int {
	return v.dims
}

// Reset drops all vectors and orphans, keeping metric and dimension.
func (v *VectorIndex) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = v.metric.distanceFunc()
	graph.M = defaultHNSWM
	graph.EfSearch = defaultHNSWEfSearch
	graph.Ml = 0.25

	v.graph = graph
	v.idMap = make(map[string]uint64)
	v.keyMap = make(map[uint64]string)
	v.orphans = make(map[uint64]struct{})
	v.nextKey = 0
}

// Save persists the graph and ID mappings atomically (temp file plus
// rename, graph at path, mappings at path.meta).
func (v *VectorIndex) Save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return lberrors.StorageError("vector index is closed", nil)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return lberrors.StorageError("create index directory", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return lberrors.StorageError("create index file", err)
	}
	if err := v.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return lberrors.StorageError("export graph", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return lberrors.StorageError("close index file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return lberrors.StorageError("rename index file", err)
	}

	return v.saveMeta(path + ".meta")
}

func (v *VectorIndex) saveMeta(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return lberrors.StorageError("create index metadata file", err)
	}

	meta := vectorIndexMeta{
		IDMap:   v.idMap,
		NextKey: v.nextKey,
		Metric:  v.metric,
		Dims:    v.dims,
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return lberrors.StorageError("encode index metadata", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return lberrors.StorageError("close index metadata file", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores a saved index. The snapshot's dimension must match the
// configured one; metric mismatches are also rejected since distances
// would silently change meaning.
func (v *VectorIndex) Load(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return lberrors.StorageError("vector index is closed", nil)
	}

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return lberrors.StorageError("open index metadata", err)
	}
	var meta vectorIndexMeta
	decodeErr := gob.NewDecoder(metaFile).Decode(&meta)
	_ = metaFile.Close()
	if decodeErr != nil {
		return lberrors.New(lberrors.ErrCodeCollectionCorrupt, "decode index metadata", decodeErr)
	}

	if meta.Dims != v.dims {
		return lberrors.DimensionError(v.dims, meta.Dims)
	}
	if meta.Metric != v.metric {
		return lberrors.StorageError(
			fmt.Sprintf("index metric %q does not match configured %q", meta.Metric, v.metric), nil)
	}

	file, err := os.Open(path)
	if err != nil {
		return lberrors.StorageError("open index file", err)
	}
	defer func() { _ = file.Close() }()

	// coder/hnsw Import requires an io.ByteReader
	if err := v.graph.Import(bufio.NewReader(file)); err != nil {
		return lberrors.New(lberrors.ErrCodeCollectionCorrupt, "import graph", err)
	}

	v.idMap = meta.IDMap
	v.nextKey = meta.NextKey
	v.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range v.idMap {
		v.keyMap[key] = id
	}
	v.orphans = make(map[uint64]struct{})
	return nil
}

// Close releases the graph. Further calls fail.
func (v *VectorIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true
	v.graph = nil
	return nil
}

// normalizeVectorInPlace scales v to unit length. Zero vectors are
// left untouched.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
