package index

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/vector"
)

// MaxDim is the largest vector dimension Add accepts and Read decodes.
const MaxDim = 1 << 20

// Match is one search result: inner-product score and vector position.
type Match struct {
	Score    float32
	Position int
}

// Index is an append-only flat inner-product index.
// Vectors are stored contiguously; position N is the Nth added vector.
// Not safe for concurrent Add; concurrent Search on a frozen index is fine.
type Index struct {
	dim  int
	data []float32
}

// New creates an empty index. dim 0 fixes the dimension at the first Add.
func New(dim int) *Index {
	return &Index{dim: dim}
}

// Dim returns the vector dimension (0 while unset).
func (x *Index) Dim() int { return x.dim }

// Len returns the number of stored vectors.
func (x *Index) Len() int {
	if x.dim == 0 {
		return 0
	}
	return len(x.data) / x.dim
}

// Add appends vectors in order. All vectors must share the index dimension.
// Nothing is appended when any vector is rejected.
func (x *Index) Add(vectors ...[]float32) error {
	dim := x.dim
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: vector %d is empty", domain.ErrVectorDimMismatch, i)
		}
		if dim == 0 {
			dim = len(v)
		}
		if dim > MaxDim {
			return fmt.Errorf("%w: dim %d exceeds %d", domain.ErrVectorDimMismatch, dim, MaxDim)
		}
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has dim %d, index has %d", domain.ErrVectorDimMismatch, i, len(v), dim)
		}
	}

	x.dim = dim
	x.data = slices.Grow(x.data, len(vectors)*dim)
	for _, v := range vectors {
		x.data = append(x.data, v...)
	}
	return nil
}

// Vector returns the stored vector at pos. The slice aliases index memory.
func (x *Index) Vector(pos int) ([]float32, error) {
	if pos < 0 || pos >= x.Len() {
		return nil, fmt.Errorf("%w: vector %d of %d", domain.ErrOutOfRange, pos, x.Len())
	}
	start := pos * x.dim
	return x.data[start : start+x.dim : start+x.dim], nil
}

// Search scores every vector against query and returns the best min(k, Len()) matches,
// by descending score and ascending position on ties.
func (x *Index) Search(query []float32, k int) ([]Match, error) {
	n := x.Len()
	if k <= 0 || n == 0 {
		return nil, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has dim %d, index has %d", domain.ErrVectorDimMismatch, len(query), x.dim)
	}

	matches := make([]Match, n)
	for pos := range n {
		start := pos * x.dim
		matches[pos] = Match{
			Score:    vector.Dot(query, x.data[start:start+x.dim]),
			Position: pos,
		}
	}

	slices.SortFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})

	return matches[:min(k, n)], nil
}
