package geoloc

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrModelFormat is returned when a model file does not follow the block
// grammar. A partially read model is never returned.
var ErrModelFormat = errors.New("geoloc: model file error")

// Block markers of the model file.
const (
	markGranularity = "#LONGRANULARITY#"
	markOrigin      = "#TWEETMATRIX#"
	markCentroids   = "#CENTROIDS#"
	markWord        = "#WORD#"
	markMatrix      = "#MATRIX#"
	markWordMass    = "#WORDMATRIX#"
	markEnd         = "#END#"
)

// ReadOptions controls how a model is loaded.
type ReadOptions struct {
	// Filter, when set, keeps only the features it contains. The blocks of
	// the other features are consumed and discarded.
	Filter FeatureFilter
	// Smoothing rebuilds the grids of features stored without a matrix.
	Smoothing Smoothing
	Logger    *slog.Logger
}

// WriteModel writes m in the block format:
//
//	#LONGRANULARITY# W
//	#TWEETMATRIX#, origin triples, #END#
//	#CENTROIDS#, W*H "lat lon" lines, #END#
//	per feature: #WORD# id token weight, "lat lon" lines, [#MATRIX#, triples], #END#
//	#END#
//	#WORDMATRIX#, word mass triples, #END#
func WriteModel(w io.Writer, m *Model) error {
	bw := bufio.NewWriter(w)
	mw := &modelWriter{w: bw}

	mw.printf("%s %d\n", markGranularity, int(m.Granularity))
	mw.line(markOrigin)
	mw.sparse(EncodeSparse(m.Origin))
	mw.line(markEnd)

	mw.line(markCentroids)
	for _, c := range m.Centroids {
		mw.printf("%s %s\n", strconv.FormatFloat(c.Lat, 'g', -1, 64), strconv.FormatFloat(c.Lon, 'g', -1, 64))
	}
	mw.line(markEnd)

	for _, f := range m.Vocabulary.Features() {
		mw.printf("%s %d %s %s\n", markWord, f.ID, f.Word, strconv.FormatFloat(f.Weight, 'g', -1, 64))
		for _, p := range f.Points {
			mw.printf("%s %s\n", formatFloat32(p.Lat), formatFloat32(p.Lon))
		}
		if f.Sparse != nil {
			mw.line(markMatrix)
			mw.sparse(f.Sparse)
		}
		mw.line(markEnd)
	}
	mw.line(markEnd)

	mw.line(markWordMass)
	mw.sparse(EncodeSparse(m.WordMass))
	mw.line(markEnd)

	if mw.err != nil {
		return errors.Wrap(mw.err, "write model")
	}
	return errors.Wrap(bw.Flush(), "write model")
}

// modelWriter remembers the first write error so the block layout above
// reads top to bottom.
type modelWriter struct {
	w   *bufio.Writer
	err error
}

func (mw *modelWriter) printf(format string, args ...interface{}) {
	if mw.err != nil {
		return
	}
	_, mw.err = fmt.Fprintf(mw.w, format, args...)
}

func (mw *modelWriter) line(s string) {
	if mw.err != nil {
		return
	}
	if _, mw.err = mw.w.WriteString(s); mw.err == nil {
		mw.err = mw.w.WriteByte('\n')
	}
}

func (mw *modelWriter) sparse(s SparseGrid) {
	for _, e := range s {
		mw.printf("%d %d %s\n", e.X, e.Y, formatFloat32(e.Value))
	}
}

func formatFloat32(v float32) string { return strconv.FormatFloat(float64(v), 'g', -1, 32) }

// SaveModel writes m to path, gzip-compressed when path ends in ".gz".
func SaveModel(path string, m *Model) error {
	w, finish, err := createOutput(path)
	if err != nil {
		return err
	}
	if err := WriteModel(w, m); err != nil {
		finish(true)
		return errors.Wrap(err, path)
	}
	return finish(false)
}

// LoadModel reads a possibly compressed model file.
func LoadModel(path string, opts ReadOptions) (*Model, error) {
	r, closeFn, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("reading model", "path", path)
	m, err := ReadModel(r, opts)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return m, nil
}

// modelReader walks the model line by line.
type modelReader struct {
	sc   *bufio.Scanner
	line int
}

func (mr *modelReader) next() (string, error) {
	if !mr.sc.Scan() {
		if err := mr.sc.Err(); err != nil {
			return "", errors.Wrapf(err, "line %d", mr.line+1)
		}
		return "", mr.errorf("unexpected end of file")
	}
	mr.line++
	return strings.TrimSpace(mr.sc.Text()), nil
}

func (mr *modelReader) errorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrModelFormat, "line %d: %s", mr.line, fmt.Sprintf(format, args...))
}

// expect consumes one line that must equal mark.
func (mr *modelReader) expect(mark string) error {
	s, err := mr.next()
	if err != nil {
		return err
	}
	if s != mark {
		return mr.errorf("want %s, got %q", mark, s)
	}
	return nil
}

// triples reads sparse entries up to the closing #END#.
func (mr *modelReader) triples(g Granularity) (SparseGrid, error) {
	sm := SparseGrid{}
	for {
		s, err := mr.next()
		if err != nil {
			return nil, err
		}
		if s == markEnd {
			return sm, nil
		}
		f := strings.Fields(s)
		if len(f) != 3 {
			return nil, mr.errorf("want x y value, got %q", s)
		}
		x, err1 := strconv.Atoi(f[0])
		y, err2 := strconv.Atoi(f[1])
		v, err3 := strconv.ParseFloat(f[2], 32)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, mr.errorf("malformed entry %q", s)
		}
		if x < 0 || x >= g.Width() || y < 0 || y >= g.Height() {
			return nil, mr.errorf("cell (%d, %d) outside %dx%d grid", x, y, g.Width(), g.Height())
		}
		sm = append(sm, SparseEntry{X: int16(x), Y: int16(y), Value: float32(v)})
	}
}

// coord parses a "lat lon" line.
func (mr *modelReader) coord(s string, bits int) (float64, float64, error) {
	f := strings.Fields(s)
	if len(f) != 2 {
		return 0, 0, mr.errorf("want lat lon, got %q", s)
	}
	lat, err1 := strconv.ParseFloat(f[0], bits)
	lon, err2 := strconv.ParseFloat(f[1], bits)
	if err1 != nil || err2 != nil {
		return 0, 0, mr.errorf("malformed coordinate %q", s)
	}
	return lat, lon, nil
}

// ReadModel reads a model written by WriteModel.
func ReadModel(r io.Reader, opts ReadOptions) (*Model, error) {
	mr := &modelReader{sc: newLineScanner(r)}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	s, err := mr.next()
	if err != nil {
		return nil, err
	}
	f := strings.Fields(s)
	if len(f) != 2 || f[0] != markGranularity {
		return nil, mr.errorf("want %s, got %q", markGranularity, s)
	}
	w, err := strconv.Atoi(f[1])
	if err != nil {
		return nil, mr.errorf("granularity %q", f[1])
	}
	g := Granularity(w)
	if err := g.Validate(); err != nil {
		return nil, errors.Wrapf(ErrModelFormat, "line %d: %v", mr.line, err)
	}
	log.Info("stored model", "granularity", w, "lat_ticks", g.Height(), "tick_degrees", g.Step())

	m := newModel(g, opts.Smoothing)

	if err := mr.expect(markOrigin); err != nil {
		return nil, err
	}
	origin, err := mr.triples(g)
	if err != nil {
		return nil, err
	}
	m.Origin = origin.Decode(g)

	if err := mr.expect(markCentroids); err != nil {
		return nil, err
	}
	for i := 0; ; i++ {
		s, err := mr.next()
		if err != nil {
			return nil, err
		}
		if s == markEnd {
			if i != g.Size() {
				return nil, mr.errorf("%d centroids, want %d", i, g.Size())
			}
			break
		}
		if i >= g.Size() {
			return nil, mr.errorf("more than %d centroids", g.Size())
		}
		lat, lon, err := mr.coord(s, 64)
		if err != nil {
			return nil, err
		}
		m.Centroids[i] = Coord{Lat: lat, Lon: lon}
	}

	skipped := 0
	for {
		s, err := mr.next()
		if err != nil {
			return nil, err
		}
		if s == markEnd {
			break
		}
		f := strings.Fields(s)
		if (len(f) != 3 && len(f) != 4) || f[0] != markWord {
			return nil, mr.errorf("want %s, got %q", markWord, s)
		}
		if _, err := strconv.Atoi(f[1]); err != nil {
			return nil, mr.errorf("feature id %q", f[1])
		}
		word := f[2]
		weight := 1.0
		if len(f) == 4 {
			if weight, err = strconv.ParseFloat(f[3], 64); err != nil {
				return nil, mr.errorf("feature weight %q", f[3])
			}
		}
		m.WordTypes++

		if opts.Filter != nil && !opts.Filter.Contains(word) {
			n, err := mr.skipFeature()
			if err != nil {
				return nil, err
			}
			m.Tokens += n
			skipped++
			continue
		}
		if m.Vocabulary.Contains(word) {
			return nil, mr.errorf("duplicate feature %q", word)
		}
		feat := m.Vocabulary.Register(word)
		feat.Weight = weight
		if err := mr.feature(g, feat); err != nil {
			return nil, err
		}
		m.Tokens += len(feat.Points)
	}

	if err := mr.expect(markWordMass); err != nil {
		return nil, err
	}
	mass, err := mr.triples(g)
	if err != nil {
		return nil, err
	}
	m.WordMass = mass.Decode(g)

	log.Info("model loaded", "word_types", m.WordTypes, "word_tokens", m.Tokens,
		"loaded", m.Vocabulary.Len(), "skipped", skipped)
	return m, nil
}

// feature reads the occurrences and optional matrix of one feature block.
func (mr *modelReader) feature(g Granularity, feat *Feature) error {
	for {
		s, err := mr.next()
		if err != nil {
			return err
		}
		switch s {
		case markEnd:
			return nil
		case markMatrix:
			sm, err := mr.triples(g)
			if err != nil {
				return err
			}
			feat.Sparse = sm
			return nil
		}
		lat, lon, err := mr.coord(s, 32)
		if err != nil {
			return err
		}
		feat.Points = append(feat.Points, Point{Lat: float32(lat), Lon: float32(lon)})
		feat.Count++
	}
}

// skipFeature consumes a feature block and returns its occurrence count.
func (mr *modelReader) skipFeature() (int, error) {
	n := 0
	inMatrix := false
	for {
		s, err := mr.next()
		if err != nil {
			return 0, err
		}
		switch {
		case s == markEnd:
			return n, nil
		case s == markMatrix:
			inMatrix = true
		case !inMatrix:
			n++
		}
	}
}
