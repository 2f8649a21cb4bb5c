package geoloc

import (
	"bufio"
	"context"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// TrainFile trains on a file of "lat,lon,features..." lines and writes the
// model to cfg.ModelPath().
func TrainFile(cfg *Config, path string) (*Model, error) {
	t, err := NewTrainer(cfg)
	if err != nil {
		return nil, err
	}
	log := cfg.logger()
	if cfg.Stopwords != "" {
		log.Info("reading stopwords", "path", cfg.Stopwords)
		sw, err := LoadStopwords(cfg.Stopwords)
		if err != nil {
			return nil, err
		}
		t.SetStopwords(sw)
	}

	log.Info("reading training set", "path", path)
	r, closeFn, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	dr := NewDocumentReader(r, true)
	for dr.Next() {
		if err := t.AddDocument(dr.Document()); err != nil {
			return nil, errors.Wrapf(err, "%s: line %d", path, dr.Line())
		}
	}
	if err := dr.Err(); err != nil {
		return nil, errors.Wrap(err, path)
	}

	m, err := t.Model()
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	if err := SaveModel(cfg.ModelPath(), m); err != nil {
		return nil, err
	}
	log.Info("wrote model", "path", cfg.ModelPath())
	return m, nil
}

// loadFor loads the model with only the features used by the documents in
// path.
func loadFor(cfg *Config, path string, withCoord bool) (*Classifier, error) {
	filter, err := IndexFeatures(path, withCoord, cfg.FilterFalsePositiveRate)
	if err != nil {
		return nil, err
	}
	m, err := LoadModel(cfg.ModelPath(), ReadOptions{Filter: filter, Smoothing: cfg.Smoothing(), Logger: cfg.logger()})
	if err != nil {
		return nil, err
	}
	return NewClassifier(m, cfg)
}

// ClassifyFile classifies each line of path and writes one estimate per line,
// or the normalized distribution of every document with PrintMatrix.
func ClassifyFile(ctx context.Context, cfg *Config, path string, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	clf, err := loadFor(cfg, path, false)
	if err != nil {
		return err
	}
	docs, err := ReadDocuments(path, false)
	if err != nil {
		return err
	}
	results, err := clf.ClassifyBatch(ctx, docs, cfg.Workers, cfg.PrintMatrix)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(out)
	for _, r := range results {
		if cfg.PrintMatrix {
			err = WriteMatrix(bw, r.Grid)
		} else {
			err = WriteEstimate(bw, r.Estimate, cfg.GeohashPrecision)
		}
		if err != nil {
			return errors.Wrap(err, "write output")
		}
	}
	return errors.Wrap(bw.Flush(), "write output")
}

// EvalFile classifies a file of "lat,lon,features..." lines and reports the
// distance between each estimate and the true origin.
func EvalFile(ctx context.Context, cfg *Config, path string, out io.Writer) (Summary, error) {
	if err := cfg.Validate(); err != nil {
		return Summary{}, err
	}
	clf, err := loadFor(cfg, path, true)
	if err != nil {
		return Summary{}, err
	}
	docs, err := ReadDocuments(path, true)
	if err != nil {
		return Summary{}, err
	}
	bw := bufio.NewWriter(out)
	sum, err := Evaluate(ctx, clf, docs, bw)
	if err != nil {
		return Summary{}, err
	}
	if _, err := sum.WriteTo(bw); err != nil {
		return Summary{}, errors.Wrap(err, "write output")
	}
	return sum, errors.Wrap(bw.Flush(), "write output")
}

// TuneFile adjusts feature weights on a held-out file and writes the whole
// model, weights included, to cfg.TunedModelPath().
func TuneFile(cfg *Config, path string) (TuneStats, error) {
	if err := cfg.Validate(); err != nil {
		return TuneStats{}, err
	}
	m, err := LoadModel(cfg.ModelPath(), ReadOptions{Smoothing: cfg.Smoothing(), Logger: cfg.logger()})
	if err != nil {
		return TuneStats{}, err
	}
	clf, err := NewClassifier(m, cfg)
	if err != nil {
		return TuneStats{}, err
	}
	docs, err := ReadDocuments(path, true)
	if err != nil {
		return TuneStats{}, err
	}
	st, err := Tune(clf, docs)
	if err != nil {
		return st, err
	}
	if err := SaveModel(cfg.TunedModelPath(), m); err != nil {
		return st, err
	}
	cfg.logger().Info("wrote tuned model", "path", cfg.TunedModelPath())
	return st, nil
}

// WriteEstimate prints "lat,lon", followed by ",geohash" when precision > 0.
func WriteEstimate(w *bufio.Writer, c Coord, precision int) error {
	w.WriteString(strconv.FormatFloat(c.Lat, 'g', 6, 64))
	w.WriteByte(',')
	w.WriteString(strconv.FormatFloat(c.Lon, 'g', 6, 64))
	if precision > 0 {
		w.WriteByte(',')
		w.WriteString(Geohash(c, precision))
	}
	return w.WriteByte('\n')
}

// WriteMatrix converts a score grid to probabilities and prints it as H rows
// of W tab-separated values, southernmost row first.
func WriteMatrix(w *bufio.Writer, scores *Grid) error {
	g := scores.Copy()
	g.NormalizeLog()
	width := g.Width()
	for y := 0; y < g.Height(); y++ {
		for x := 0; x < width; x++ {
			if x > 0 {
				w.WriteByte('\t')
			}
			w.WriteString(strconv.FormatFloat(g.Cells[y*width+x], 'g', 6, 64))
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return nil
}
