package geoloc

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// documentPrior is the pseudocount every cell receives in the origin grid
// before training documents are added.
const documentPrior = 1.0

// Model is the trained state shared by all classification runs: the document
// origin prior, per-cell centroids, the feature vocabulary and the summed
// feature mass. A Model is read-only during classification; only Tune changes
// feature weights.
type Model struct {
	Granularity Granularity
	Origin      *Grid   // p(c), sums to 1
	Centroids   []Coord // mean training origin per cell, midpoint when empty
	WordMass    *Grid   // unnormalized sum of every persisted feature grid
	Vocabulary  *Vocabulary

	// WordTypes counts every feature of the persisted model, including those a
	// vocabulary filter skipped on load; Tokens counts their occurrences.
	WordTypes int
	Tokens    int

	smoothing Smoothing
	cache     *lru.Cache
}

// newModel returns an empty model for granularity g.
func newModel(g Granularity, s Smoothing) *Model {
	return &Model{
		Granularity: g,
		Centroids:   make([]Coord, g.Size()),
		Vocabulary:  NewVocabulary(),
		smoothing:   s,
	}
}

// SetSmoothing sets how grids of features without a persisted matrix are
// rebuilt. It must match the setting the model was trained with.
func (m *Model) SetSmoothing(s Smoothing) { m.smoothing = s }

// UseCache keeps up to n decoded feature grids. n = 0 disables caching.
func (m *Model) UseCache(n int) error {
	if n == 0 {
		m.cache = nil
		return nil
	}
	c, err := lru.New(n)
	if err != nil {
		return errors.Wrap(err, "create grid cache")
	}
	m.cache = c
	return nil
}

// FeatureGrid returns the mass grid of f, decoding its sparse grid or, when
// none was persisted, rebuilding it from the feature's occurrences. Returned
// grids may be shared through the cache and must not be modified.
func (m *Model) FeatureGrid(f *Feature) *Grid {
	if m.cache != nil {
		if v, ok := m.cache.Get(f.ID); ok {
			return v.(*Grid)
		}
	}
	var g *Grid
	if f.Sparse != nil {
		g = f.Sparse.Decode(m.Granularity)
	} else {
		g = Build(m.smoothing, m.Granularity, f.Points)
	}
	if m.cache != nil {
		m.cache.Add(f.ID, g)
	}
	return g
}

// Estimate returns the reported coordinate for a cell.
func (m *Model) Estimate(cell int, centroid bool) Coord {
	if centroid {
		return m.Centroids[cell]
	}
	return m.Granularity.Midpoint(cell)
}

// computeCentroids returns the mean of the coordinates falling in each cell,
// or the cell midpoint for cells without any.
func computeCentroids(g Granularity, origins []Coord) []Coord {
	sums := make([]Coord, g.Size())
	counts := make([]int, g.Size())
	for _, c := range origins {
		cell := g.Cell(c)
		sums[cell].Lat += c.Lat
		sums[cell].Lon += c.Lon
		counts[cell]++
	}
	out := make([]Coord, g.Size())
	for cell := range out {
		if counts[cell] == 0 {
			out[cell] = g.Midpoint(cell)
			continue
		}
		n := float64(counts[cell])
		out[cell] = Coord{Lat: sums[cell].Lat / n, Lon: sums[cell].Lon / n}
	}
	return out
}
