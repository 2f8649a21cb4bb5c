package geoloc

import (
	"math"
)

// Classifier scores documents against a Model. It only reads the model, so
// one Classifier may serve any number of goroutines.
type Classifier struct {
	m   *Model
	cfg *Config

	cMin float64 // smallest origin prior
	live []int   // cells scored when pruning, in index order

	logOrigin []float64
	norm      []float64 // log(mass(c) + prior(V+1+unk))
	compNorm  []float64 // log(tokens - mass(c) + prior(V+1+unk))
	klNorm    []float64 // mass(c) + prior(V+1+unk)
}

// NewClassifier precomputes the per-cell terms shared by every document.
func NewClassifier(m *Model, cfg *Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := m.UseCache(cfg.CacheSize); err != nil {
		return nil, err
	}
	clf := &Classifier{m: m, cfg: cfg, cMin: m.Origin.Min()}
	pruned := false

	n := m.Granularity.Size()
	smooth := cfg.Prior * (float64(m.WordTypes) + 1 + clf.unk())
	clf.logOrigin = make([]float64, n)
	clf.norm = make([]float64, n)
	clf.compNorm = make([]float64, n)
	clf.klNorm = make([]float64, n)
	for c := 0; c < n; c++ {
		mass := m.WordMass.Cells[c]
		clf.logOrigin[c] = math.Log(m.Origin.Cells[c])
		clf.norm[c] = math.Log(mass + smooth)
		clf.compNorm[c] = math.Log(float64(m.Tokens) - mass + smooth)
		clf.klNorm[c] = mass + smooth
		// Cells at the minimum prior without any feature mass all score
		// alike under every method, so only the first of them is scored.
		if m.Origin.Cells[c] == clf.cMin && mass == 0 {
			if pruned {
				continue
			}
			pruned = true
		}
		clf.live = append(clf.live, c)
	}
	return clf, nil
}

func (clf *Classifier) unk() float64 {
	if clf.cfg.Unknown {
		return 1
	}
	return 0
}

// Model returns the model being classified against.
func (clf *Classifier) Model() *Model { return clf.m }

// Classify returns the most likely cell for a document's features.
func (clf *Classifier) Classify(features []string) int {
	cell, _ := clf.score(features, false)
	return cell
}

// Distribution returns the winning cell together with the score of every
// cell: the log posterior for naive Bayes, the negated divergence for KL.
// No cell is pruned.
func (clf *Classifier) Distribution(features []string) (int, *Grid) {
	return clf.score(features, true)
}

// NaiveBayes classifies with naive Bayes whatever the configured method.
func (clf *Classifier) NaiveBayes(features []string) int {
	cell, _ := clf.naiveBayes(features, false)
	return cell
}

// Estimate returns the reported coordinate of a cell.
func (clf *Classifier) Estimate(cell int) Coord {
	return clf.m.Estimate(cell, clf.cfg.Centroid)
}

func (clf *Classifier) score(features []string, full bool) (int, *Grid) {
	if clf.cfg.KullbackLeibler {
		return clf.kullbackLeibler(features, full)
	}
	return clf.naiveBayes(features, full)
}

// cells returns the cells to score.
func (clf *Classifier) cells(full bool) []int {
	if full {
		return nil
	}
	return clf.live
}

// eachCell calls fn for every cell, or only for the live ones when cells is
// not nil.
func eachCell(n int, cells []int, fn func(c int)) {
	if cells == nil {
		for c := 0; c < n; c++ {
			fn(c)
		}
		return
	}
	for _, c := range cells {
		fn(c)
	}
}

// naiveBayes adds, for every feature of the document, the log ratio of its
// smoothed mass to the smoothed total mass to the log origin prior.
func (clf *Classifier) naiveBayes(features []string, full bool) (int, *Grid) {
	m := clf.m
	n := m.Granularity.Size()
	cells := clf.cells(full)
	prior := clf.cfg.Prior

	total := NewGrid(m.Granularity, 0)
	copy(total.Cells, clf.logOrigin)

	for _, word := range features {
		var mass []float64
		var count float64
		f, ok := m.Vocabulary.Lookup(word)
		switch {
		case ok:
			if f.Weight == 0 {
				continue
			}
			mass = m.FeatureGrid(f).Cells
			count = float64(f.Count)
		case clf.cfg.Unknown:
			// unknown: zero mass everywhere, only the prior remains
		default:
			continue
		}

		if !clf.cfg.Complement {
			eachCell(n, cells, func(c int) {
				v := prior
				if mass != nil {
					v += mass[c]
				}
				total.Cells[c] += math.Log(v) - clf.norm[c]
			})
			continue
		}
		eachCell(n, cells, func(c int) {
			v := count + prior
			if mass != nil {
				v -= mass[c]
			}
			total.Cells[c] -= math.Log(v) - clf.compNorm[c]
		})
	}

	best, top := 0, -math.MaxFloat64
	eachCell(n, cells, func(c int) {
		if total.Cells[c] > top {
			top = total.Cells[c]
			best = c
		}
	})
	if !full {
		return best, nil
	}
	return best, total
}

// kullbackLeibler scores each cell by the divergence between the document's
// feature distribution and the cell's, treating every known feature
// occurrence as equally likely. Unknown features are ignored; a document
// without known features gets the most likely cell of the origin prior.
func (clf *Classifier) kullbackLeibler(features []string, full bool) (int, *Grid) {
	m := clf.m
	n := m.Granularity.Size()
	cells := clf.cells(full)
	prior := clf.cfg.Prior

	seen := NewIndex(2 * len(features))
	var uniq []*Feature
	known := 0
	for _, word := range features {
		f, ok := m.Vocabulary.Lookup(word)
		if !ok {
			continue
		}
		if seen.IncValue(word) == 1 {
			uniq = append(uniq, f)
		}
		known++
	}

	total := NewGrid(m.Granularity, 0)
	if known == 0 {
		// no evidence: the prior decides
		if !full {
			return m.Origin.Argmax(), nil
		}
		return m.Origin.Argmax(), total
	}
	k := float64(known)
	for _, f := range uniq {
		times, _ := seen.Find(f.Word)
		ni := float64(times)
		mass := m.FeatureGrid(f).Cells
		eachCell(n, cells, func(c int) {
			total.Cells[c] += ni / k * math.Log(clf.klNorm[c]*ni/(k*(mass[c]+prior)))
		})
	}

	best, low := 0, math.MaxFloat64
	eachCell(n, cells, func(c int) {
		if total.Cells[c] < low {
			low = total.Cells[c]
			best = c
		}
	})
	if !full {
		return best, nil
	}
	for i := range total.Cells {
		total.Cells[i] = -total.Cells[i]
	}
	return best, total
}
