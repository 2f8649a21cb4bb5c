package geoloc

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	. "gopkg.in/check.v1"
)

type ClassifySuite struct {
	m   *Model
	cfg *Config
}

var _ = Suite(&ClassifySuite{})

func (s *ClassifySuite) SetUpTest(c *C) {
	var err error
	s.m, s.cfg, err = trainTwo()
	c.Assert(err, IsNil)
}

func (s *ClassifySuite) classifier(c *C, opts ...Option) *Classifier {
	cfg := NewConfig(append([]Option{WithNoKDE(), WithLogger(quietLogger)}, opts...)...)
	clf, err := NewClassifier(s.m, cfg)
	c.Assert(err, IsNil)
	return clf
}

func (s *ClassifySuite) TestModelShape(c *C) {
	c.Assert(s.m.WordTypes, Equals, 3)
	c.Assert(s.m.Tokens, Equals, 4)
	c.Assert(math.Abs(s.m.Origin.Sum()-1) < 1e-6, Equals, true)
	c.Assert(s.m.WordMass.Sum(), Equals, 4.0)

	a, ok := s.m.Vocabulary.Lookup("a")
	c.Assert(ok, Equals, true)
	c.Assert(a.ID, Equals, 0)
	c.Assert(a.Count, Equals, 2)
	c.Assert(a.Weight, Equals, 1.0)
	c.Assert(a.Sparse, HasLen, 2)
}

func (s *ClassifySuite) TestEndToEnd(c *C) {
	clf := s.classifier(c, WithCentroid())
	g := s.m.Granularity

	cell := clf.Classify([]string{"b"})
	c.Assert(cell, Equals, g.Cell(detroit))
	c.Assert(g.CellX(cell), Equals, 96)
	c.Assert(g.CellY(cell), Equals, 132)
	c.Assert(clf.Estimate(cell), Equals, detroit)

	c.Assert(clf.Classify([]string{"c"}), Equals, g.Cell(phoenix))
	c.Assert(clf.Classify([]string{"b", "b", "a"}), Equals, g.Cell(detroit))
}

func (s *ClassifySuite) TestMidpointEstimate(c *C) {
	clf := s.classifier(c)
	cell := clf.Classify([]string{"b"})
	c.Assert(clf.Estimate(cell), Equals, Coord{Lat: 42.5, Lon: -83.5})
}

func (s *ClassifySuite) TestPruningKeepsWinner(c *C) {
	docs := [][]string{
		{"a"}, {"b"}, {"c"}, {"a", "b"}, {"c", "c", "b"}, {"x"}, {}, {"a", "x", "c"},
	}
	for _, opts := range [][]Option{nil, {WithComplement()}, {WithUnknown()}, {WithKullbackLeibler()}} {
		clf := s.classifier(c, opts...)
		for _, doc := range docs {
			pruned := clf.Classify(doc)
			full, grid := clf.Distribution(doc)
			c.Assert(pruned, Equals, full, Commentf("doc %v", doc))
			c.Assert(grid.Cells, HasLen, s.m.Granularity.Size())
		}
	}
}

// A cell with a large total mass can lose to an empty cell when the
// document's features carry little of that mass.
func (s *ClassifySuite) TestPruningKeepsEmptyCellWinner(c *C) {
	var docs []Document
	for i := 0; i < 100; i++ {
		docs = append(docs, Document{Coord: detroit, HasCoord: true, Features: strings.Fields(strings.Repeat("x ", 10))})
	}
	docs = append(docs, Document{Coord: detroit, HasCoord: true, Features: []string{"b"}})
	m, cfg, err := trainDocuments(docs, WithNoKDE())
	c.Assert(err, IsNil)
	clf, err := NewClassifier(m, cfg)
	c.Assert(err, IsNil)

	full, _ := clf.Distribution([]string{"b"})
	c.Assert(full, Equals, 0)
	c.Assert(clf.Classify([]string{"b"}), Equals, full)
	c.Assert(clf.live, HasLen, 2)
}

func (s *ClassifySuite) TestUnknownFallsBackToPrior(c *C) {
	clf := s.classifier(c)
	prior := s.m.Origin.Argmax()
	c.Assert(clf.Classify([]string{"never", "seen"}), Equals, prior)
	c.Assert(clf.Classify(nil), Equals, prior)

	// The tie between the two training cells goes to the lower index.
	c.Assert(prior, Equals, s.m.Granularity.Cell(phoenix))
}

func (s *ClassifySuite) TestUnknownFeatureModelling(c *C) {
	clf := s.classifier(c, WithUnknown())
	c.Assert(clf.Classify([]string{"zzz"}), Equals, s.m.Granularity.Cell(phoenix))
	c.Assert(clf.Classify([]string{"b", "zzz"}), Equals, s.m.Granularity.Cell(detroit))

	// The synthetic feature lowers every cell by the prior term.
	_, with := clf.Distribution([]string{"zzz"})
	_, without := clf.Distribution(nil)
	cell := s.m.Granularity.Cell(detroit)
	want := math.Log(0.01) - math.Log(2+0.01*5)
	c.Assert(math.Abs(with.Cells[cell]-without.Cells[cell]-want) < 1e-9, Equals, true)
}

func (s *ClassifySuite) TestNaiveBayesScores(c *C) {
	clf := s.classifier(c)
	_, grid := clf.Distribution([]string{"b"})
	g := s.m.Granularity
	z := float64(g.Size()) + 2 // origin prior mass

	// Both training cells hold two occurrences.
	det := math.Log(2/z) + math.Log(1+0.01) - math.Log(2+0.01*4)
	phx := math.Log(2/z) + math.Log(0.01) - math.Log(2+0.01*4)
	empty := math.Log(1/z) + math.Log(0.01) - math.Log(0.01*4)
	c.Assert(math.Abs(grid.Cells[g.Cell(detroit)]-det) < 1e-6, Equals, true)
	c.Assert(math.Abs(grid.Cells[g.Cell(phoenix)]-phx) < 1e-6, Equals, true)
	c.Assert(math.Abs(grid.Cells[0]-empty) < 1e-6, Equals, true)
}

func (s *ClassifySuite) TestComplement(c *C) {
	clf := s.classifier(c, WithComplement())
	c.Assert(clf.Classify([]string{"b"}), Equals, s.m.Granularity.Cell(detroit))
	c.Assert(clf.Classify([]string{"c"}), Equals, s.m.Granularity.Cell(phoenix))
}

func (s *ClassifySuite) TestZeroWeightDisablesFeature(c *C) {
	c.Assert(s.m.Vocabulary.SetWeight("b", 0), IsNil)
	clf := s.classifier(c)
	c.Assert(clf.Classify([]string{"b"}), Equals, s.m.Origin.Argmax())

	// Any other weight counts the feature in full.
	c.Assert(s.m.Vocabulary.SetWeight("b", 0.25), IsNil)
	c.Assert(clf.Classify([]string{"b"}), Equals, s.m.Granularity.Cell(detroit))
}

func (s *ClassifySuite) TestKullbackLeibler(c *C) {
	clf := s.classifier(c, WithKullbackLeibler())
	g := s.m.Granularity
	c.Assert(clf.Classify([]string{"b"}), Equals, g.Cell(detroit))
	c.Assert(clf.Classify([]string{"c", "unknown"}), Equals, g.Cell(phoenix))

	_, grid := clf.Distribution([]string{"b"})
	// Negated divergence: 1 * log(2.04 * 1 / (1 * 1.01)).
	want := -math.Log((2 + 0.01*4) / (1 + 0.01))
	c.Assert(math.Abs(grid.Cells[g.Cell(detroit)]-want) < 1e-9, Equals, true)
	c.Assert(grid.Argmax(), Equals, g.Cell(detroit))
}

func (s *ClassifySuite) TestKullbackLeiblerWithoutKnownFeatures(c *C) {
	clf := s.classifier(c, WithKullbackLeibler())
	c.Assert(clf.Classify([]string{"nothing", "known"}), Equals, s.m.Origin.Argmax())
	cell, grid := clf.Distribution(nil)
	c.Assert(cell, Equals, s.m.Origin.Argmax())
	c.Assert(grid.Sum(), Equals, 0.0)
}

func (s *ClassifySuite) TestKullbackLeiblerRepeats(c *C) {
	clf := s.classifier(c, WithKullbackLeibler())
	g := s.m.Granularity
	// "c" twice and "b" once: K = 3, n_c = 2, n_b = 1.
	_, grid := clf.Distribution([]string{"c", "b", "c"})
	cell := g.Cell(phoenix)
	norm := 2 + 0.01*4
	want := 2.0/3*math.Log(norm*2/(3*(1+0.01))) + 1.0/3*math.Log(norm*1/(3*0.01))
	c.Assert(math.Abs(grid.Cells[cell]+want) < 1e-9, Equals, true)
}

func (s *ClassifySuite) TestUnknownWithKLRejected(c *C) {
	cfg := NewConfig(WithKullbackLeibler(), WithUnknown())
	_, err := NewClassifier(s.m, cfg)
	c.Assert(errors.Is(err, ErrUnknownWithKL), Equals, true)
}

func (s *ClassifySuite) TestCacheGivesSameResults(c *C) {
	plain := s.classifier(c)
	cached := s.classifier(c, WithCache(2))
	for _, doc := range [][]string{{"a"}, {"b"}, {"c"}, {"a", "b", "c"}, {"b"}} {
		c.Assert(cached.Classify(doc), Equals, plain.Classify(doc))
	}
}

func (s *ClassifySuite) TestKDEModel(c *C) {
	m, cfg, err := trainDocuments(twoDocuments(), WithSigma(3))
	c.Assert(err, IsNil)
	clf, err := NewClassifier(m, cfg)
	c.Assert(err, IsNil)
	c.Assert(clf.Classify([]string{"b"}), Equals, m.Granularity.Cell(detroit))
	c.Assert(clf.Classify([]string{"c"}), Equals, m.Granularity.Cell(phoenix))
}
