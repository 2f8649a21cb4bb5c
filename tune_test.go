package geoloc

import (
	"math"

	. "gopkg.in/check.v1"
)

type TuneSuite struct{}

var _ = Suite(&TuneSuite{})

func (s *TuneSuite) TestAdjustsWeightsOnMistakes(c *C) {
	m, cfg, err := trainTwo()
	c.Assert(err, IsNil)
	clf, err := NewClassifier(m, cfg)
	c.Assert(err, IsNil)

	dev := []Document{
		{Coord: phoenix, HasCoord: true, Features: []string{"b"}},             // wrong: b has no mass at the truth
		{Coord: detroit, HasCoord: true, Features: []string{"b"}},             // right: untouched
		{Coord: phoenix, HasCoord: true, Features: []string{"a", "b", "zzz"}}, // wrong: a ties, unknown skipped
		{Coord: detroit, HasCoord: true, Features: []string{"c", "b"}},        // wrong: b points at the truth
	}
	st, err := Tune(clf, dev)
	c.Assert(err, IsNil)
	c.Assert(st, Equals, TuneStats{Documents: 4, Misclassified: 3, Adjusted: 5})

	for word, want := range map[string]float64{"a": 0.99, "b": 0.99, "c": 0.99} {
		got, err := m.Vocabulary.Weight(word)
		c.Assert(err, IsNil)
		c.Assert(math.Abs(got-want) < 1e-12, Equals, true, Commentf("%s = %g", word, got))
	}
}

func (s *TuneSuite) TestUsesNaiveBayesUnderKL(c *C) {
	m, cfg, err := trainTwo(WithKullbackLeibler())
	c.Assert(err, IsNil)
	clf, err := NewClassifier(m, cfg)
	c.Assert(err, IsNil)

	st, err := Tune(clf, []Document{{Coord: phoenix, HasCoord: true, Features: []string{"b"}}})
	c.Assert(err, IsNil)
	c.Assert(st.Misclassified, Equals, 1)
	w, err := m.Vocabulary.Weight("b")
	c.Assert(err, IsNil)
	c.Assert(w < 1, Equals, true)
}
