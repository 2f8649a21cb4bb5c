package geoloc

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	. "gopkg.in/check.v1"
)

type StoreSuite struct {
	m   *Model
	cfg *Config
}

var _ = Suite(&StoreSuite{})

func (s *StoreSuite) SetUpTest(c *C) {
	var err error
	s.m, s.cfg, err = trainTwo()
	c.Assert(err, IsNil)
}

func (s *StoreSuite) encode(c *C, m *Model) string {
	var buf bytes.Buffer
	c.Assert(WriteModel(&buf, m), IsNil)
	return buf.String()
}

func (s *StoreSuite) decode(c *C, text string, opts ReadOptions) *Model {
	if opts.Logger == nil {
		opts.Logger = quietLogger
	}
	m, err := ReadModel(strings.NewReader(text), opts)
	c.Assert(err, IsNil)
	return m
}

func (s *StoreSuite) TestLayout(c *C) {
	text := s.encode(c, s.m)
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	c.Assert(lines[0], Equals, "#LONGRANULARITY# 360")
	c.Assert(lines[1], Equals, "#TWEETMATRIX#")
	c.Assert(lines[len(lines)-1], Equals, "#END#")
	c.Assert(strings.Count(text, "#WORD# "), Equals, 3)
	c.Assert(strings.Count(text, "#MATRIX#\n"), Equals, 3)
	c.Assert(strings.Contains(text, "#WORD# 1 b 1\n42.35 -83.25\n#MATRIX#\n96 132 1\n#END#\n"), Equals, true)
	c.Assert(strings.Contains(text, "#END#\n#END#\n#WORDMATRIX#\n"), Equals, true)

	start := indexOf(lines, "#CENTROIDS#")
	end := start + 1
	for lines[end] != "#END#" {
		end++
	}
	c.Assert(end-start-1, Equals, 360*180)
}

func indexOf(lines []string, s string) int {
	for i, l := range lines {
		if l == s {
			return i
		}
	}
	return -1
}

func (s *StoreSuite) TestRoundTrip(c *C) {
	back := s.decode(c, s.encode(c, s.m), ReadOptions{Smoothing: s.cfg.Smoothing()})

	c.Assert(back.Granularity, Equals, s.m.Granularity)
	c.Assert(back.WordTypes, Equals, s.m.WordTypes)
	c.Assert(back.Tokens, Equals, s.m.Tokens)
	c.Assert(back.Origin.Cells, DeepEquals, s.m.Origin.Cells)
	c.Assert(back.WordMass.Cells, DeepEquals, s.m.WordMass.Cells)
	c.Assert(back.Centroids, DeepEquals, s.m.Centroids)
	c.Assert(back.Vocabulary.Len(), Equals, 3)
	for _, f := range s.m.Vocabulary.Features() {
		g, ok := back.Vocabulary.Lookup(f.Word)
		c.Assert(ok, Equals, true)
		c.Assert(g.ID, Equals, f.ID)
		c.Assert(g.Count, Equals, f.Count)
		c.Assert(g.Weight, Equals, f.Weight)
		c.Assert(g.Points, DeepEquals, f.Points)
		c.Assert(g.Sparse, DeepEquals, f.Sparse)
	}

	// A second write of the loaded model is byte for byte the first.
	c.Assert(s.encode(c, back), Equals, s.encode(c, s.m))
}

func (s *StoreSuite) TestKDEModelClassifiesAlikeAfterReload(c *C) {
	m, cfg, err := trainDocuments(twoDocuments(), WithSigma(2))
	c.Assert(err, IsNil)
	back := s.decode(c, s.encode(c, m), ReadOptions{Smoothing: cfg.Smoothing()})

	before, err := NewClassifier(m, cfg)
	c.Assert(err, IsNil)
	after, err := NewClassifier(back, cfg)
	c.Assert(err, IsNil)
	for _, doc := range [][]string{{"a"}, {"b"}, {"c"}, {"a", "c"}, {"z"}} {
		cb, gb := before.Distribution(doc)
		ca, ga := after.Distribution(doc)
		c.Assert(ca, Equals, cb)
		c.Assert(ga.Cells, DeepEquals, gb.Cells)
	}
}

func (s *StoreSuite) TestNoMatrix(c *C) {
	m, cfg, err := trainTwo(WithNoMatrix())
	c.Assert(err, IsNil)
	text := s.encode(c, m)
	c.Assert(strings.Contains(text, "#MATRIX#"), Equals, false)

	back := s.decode(c, text, ReadOptions{Smoothing: cfg.Smoothing()})
	b, ok := back.Vocabulary.Lookup("b")
	c.Assert(ok, Equals, true)
	c.Assert(b.Sparse, IsNil)

	clf, err := NewClassifier(back, cfg)
	c.Assert(err, IsNil)
	c.Assert(clf.Classify([]string{"b"}), Equals, back.Granularity.Cell(detroit))
	c.Assert(back.FeatureGrid(b).Sum(), Equals, 1.0)
}

func (s *StoreSuite) TestFilter(c *C) {
	keep := NewIndex(0)
	keep.Insert("b")
	keep.Insert("unrelated")
	back := s.decode(c, s.encode(c, s.m), ReadOptions{Filter: keep})

	c.Assert(back.Vocabulary.Len(), Equals, 1)
	c.Assert(back.Vocabulary.Contains("b"), Equals, true)
	c.Assert(back.Vocabulary.Contains("a"), Equals, false)
	// Skipped blocks still count towards the model totals.
	c.Assert(back.WordTypes, Equals, 3)
	c.Assert(back.Tokens, Equals, 4)

	full, err := NewClassifier(s.m, s.cfg)
	c.Assert(err, IsNil)
	filtered, err := NewClassifier(back, s.cfg)
	c.Assert(err, IsNil)
	_, gf := full.Distribution([]string{"b"})
	_, gb := filtered.Distribution([]string{"b"})
	c.Assert(gb.Cells, DeepEquals, gf.Cells)

	// The complement normalizer uses the whole-model token total.
	comp := NewConfig(WithNoKDE(), WithLogger(quietLogger), WithComplement())
	full, err = NewClassifier(s.m, comp)
	c.Assert(err, IsNil)
	filtered, err = NewClassifier(back, comp)
	c.Assert(err, IsNil)
	_, gf = full.Distribution([]string{"b"})
	_, gb = filtered.Distribution([]string{"b"})
	c.Assert(gb.Cells, DeepEquals, gf.Cells)
}

func (s *StoreSuite) TestBloomFilter(c *C) {
	bf := NewBloomFilter(10, 0.001)
	bf.Add("c")
	back := s.decode(c, s.encode(c, s.m), ReadOptions{Filter: bf})
	c.Assert(back.Vocabulary.Contains("c"), Equals, true)
	c.Assert(back.WordTypes, Equals, 3)
}

func (s *StoreSuite) TestThreshold(c *C) {
	docs := append(twoDocuments(), Document{Coord: phoenix, HasCoord: true, Features: []string{"c", "d"}})
	m, _, err := trainDocuments(docs, WithNoKDE(), WithThreshold(2))
	c.Assert(err, IsNil)

	text := s.encode(c, m)
	c.Assert(strings.Contains(text, " a 1\n"), Equals, true)
	c.Assert(strings.Contains(text, " c 1\n"), Equals, true)
	c.Assert(strings.Contains(text, " b 1\n"), Equals, false)
	c.Assert(strings.Contains(text, " d 1\n"), Equals, false)
	c.Assert(m.WordTypes, Equals, 2)
	c.Assert(m.Tokens, Equals, 4)
	// The mass grid only sums retained features.
	c.Assert(m.WordMass.Sum(), Equals, 4.0)
}

func (s *StoreSuite) TestWeightsPersist(c *C) {
	c.Assert(s.m.Vocabulary.SetWeight("a", 1.07), IsNil)
	text := s.encode(c, s.m)
	c.Assert(strings.Contains(text, "#WORD# 0 a 1.07\n"), Equals, true)
	back := s.decode(c, text, ReadOptions{})
	w, err := back.Vocabulary.Weight("a")
	c.Assert(err, IsNil)
	c.Assert(w, Equals, 1.07)
}

func (s *StoreSuite) TestWordLineWithoutWeight(c *C) {
	text := strings.Join([]string{
		"#LONGRANULARITY# 4",
		"#TWEETMATRIX#", "0 0 0.5", "1 1 0.5", "#END#",
		"#CENTROIDS#", "1 1", "2 2", "3 3", "4 4", "5 5", "6 6", "7 7", "8 8", "#END#",
		"#WORD# 17 hello", "10.5 20.25", "#MATRIX#", "#END#",
		"#END#",
		"#WORDMATRIX#", "2 1 1", "#END#",
	}, "\n") + "\n"
	m := s.decode(c, text, ReadOptions{})
	f, ok := m.Vocabulary.Lookup("hello")
	c.Assert(ok, Equals, true)
	c.Assert(f.ID, Equals, 0)
	c.Assert(f.Weight, Equals, 1.0)
	c.Assert(f.Points, DeepEquals, []Point{{Lat: 10.5, Lon: 20.25}})
	c.Assert(f.Sparse, NotNil)
	c.Assert(f.Sparse, HasLen, 0)
	c.Assert(m.Centroids[7], Equals, Coord{Lat: 8, Lon: 8})
	c.Assert(m.Origin.At(1, 1), Equals, 0.5)
	c.Assert(m.WordMass.At(2, 1), Equals, 1.0)
}

func (s *StoreSuite) TestFormatErrors(c *C) {
	good := s.encode(c, s.m)
	cases := map[string]string{
		"empty":            "",
		"bad header":       "#GRANULARITY# 360\n",
		"odd granularity":  "#LONGRANULARITY# 361\n",
		"truncated":        good[:len(good)/2],
		"missing origin":   strings.Replace(good, "#TWEETMATRIX#", "#ORIGIN#", 1),
		"bad triple":       strings.Replace(good, "#TWEETMATRIX#\n", "#TWEETMATRIX#\n1 2\n", 1),
		"cell outside":     strings.Replace(good, "#TWEETMATRIX#\n", "#TWEETMATRIX#\n400 2 1\n", 1),
		"short centroids":  strings.Replace(good, "#CENTROIDS#\n", "#CENTROIDS#\n#END#\n", 1),
		"bad word line":    strings.Replace(good, "#WORD# 1 b 1", "#WORD# b", 1),
		"bad coordinate":   strings.Replace(good, "42.35 -83.25\n#MATRIX#", "north -83.25\n#MATRIX#", 1),
		"duplicate word":   strings.Replace(good, "#WORD# 2 c 1", "#WORD# 2 b 1", 1),
		"no word mass":     strings.Replace(good, "#WORDMATRIX#", "#WORDS#", 1),
	}
	for name, text := range cases {
		_, err := ReadModel(strings.NewReader(text), ReadOptions{Logger: quietLogger})
		c.Assert(err, NotNil, Commentf(name))
		c.Assert(errors.Is(err, ErrModelFormat), Equals, true, Commentf("%s: %v", name, err))
	}
}

func (s *StoreSuite) TestSaveLoadCompressed(c *C) {
	dir := c.MkDir()
	path := filepath.Join(dir, "model360.gz")
	c.Assert(SaveModel(path, s.m), IsNil)

	raw, err := os.ReadFile(path)
	c.Assert(err, IsNil)
	c.Assert(raw[:2], DeepEquals, []byte{0x1f, 0x8b})

	back, err := LoadModel(path, ReadOptions{Smoothing: s.cfg.Smoothing(), Logger: quietLogger})
	c.Assert(err, IsNil)
	c.Assert(back.Vocabulary.Len(), Equals, 3)

	plain := filepath.Join(dir, "model.txt")
	c.Assert(SaveModel(plain, s.m), IsNil)
	raw, err = os.ReadFile(plain)
	c.Assert(err, IsNil)
	c.Assert(strings.HasPrefix(string(raw), "#LONGRANULARITY# 360\n"), Equals, true)
}

func (s *StoreSuite) TestLoadMissingFile(c *C) {
	_, err := LoadModel(filepath.Join(c.MkDir(), "absent.gz"), ReadOptions{Logger: quietLogger})
	c.Assert(err, ErrorMatches, ".*absent.gz.*")
	c.Assert(os.IsNotExist(errors.Cause(err)), Equals, true)
}
