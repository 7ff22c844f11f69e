package recognize

import (
	"errors"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// hnswMaxNeighbors is the M parameter of the graph. Whitelists are small,
// so a modest value keeps builds fast without hurting recall.
const hnswMaxNeighbors = 16

// ReferenceHit is one nearest-neighbor result from the reference index.
type ReferenceHit struct {
	Person   string  `json:"person"`
	Distance float64 `json:"distance"`
}

// ReferenceIndex is an in-memory HNSW index over the whitelist reference
// embeddings. It answers which enrolled images a query face is closest to,
// which is useful when a prototype match is borderline.
type ReferenceIndex struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[int]
	idToPerson map[int]string
}

// NewReferenceIndex creates an empty index.
func NewReferenceIndex() *ReferenceIndex {
	return &ReferenceIndex{idToPerson: make(map[int]string)}
}

// Build replaces the index contents with the given per-person references.
func (ix *ReferenceIndex) Build(references map[string][][]float32) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	persons := make([]string, 0, len(references))
	for name := range references {
		persons = append(persons, name)
	}
	sort.Strings(persons)

	g := hnsw.NewGraph[int]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance

	ix.idToPerson = make(map[int]string)
	id := 0
	for _, name := range persons {
		for _, emb := range references[name] {
			if len(emb) == 0 {
				continue
			}
			g.Add(hnsw.MakeNode(id, emb))
			ix.idToPerson[id] = name
			id++
		}
	}

	if id == 0 {
		ix.graph = nil
		return
	}
	ix.graph = g
}

// Search returns up to k nearest reference embeddings for the query.
func (ix *ReferenceIndex) Search(query []float32, k int) ([]ReferenceHit, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.graph == nil {
		return nil, errors.New("reference index is empty")
	}

	neighbors := ix.graph.Search(query, k)
	hits := make([]ReferenceHit, 0, len(neighbors))
	for _, n := range neighbors {
		hits = append(hits, ReferenceHit{
			Person:   ix.idToPerson[n.Key],
			Distance: CosineDistance(query, n.Value),
		})
	}
	return hits, nil
}

// Count returns the number of indexed reference embeddings.
func (ix *ReferenceIndex) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.idToPerson)
}
