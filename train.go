package geoloc

import (
	"github.com/pkg/errors"
)

// ErrNoDocuments is returned when a model is requested before any training
// document was added.
var ErrNoDocuments = errors.New("geoloc: no training documents")

// progressEvery is how often per-feature progress is logged.
const progressEvery = 5000

// Document is one line of input: the features of a text and, for training and
// evaluation data, where it was written.
type Document struct {
	Coord    Coord
	HasCoord bool
	Features []string
}

// Trainer accumulates training documents and turns them into a Model.
type Trainer struct {
	cfg       *Config
	vocab     *Vocabulary
	origins   []Coord
	stopwords FeatureFilter
}

// NewTrainer returns a Trainer for cfg.
func NewTrainer(cfg *Config) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Trainer{cfg: cfg, vocab: NewVocabulary()}, nil
}

// SetStopwords excludes every token in s from training.
func (t *Trainer) SetStopwords(s FeatureFilter) { t.stopwords = s }

// Documents returns how many documents were added.
func (t *Trainer) Documents() int { return len(t.origins) }

// AddDocument records the origin of doc and one occurrence per feature.
func (t *Trainer) AddDocument(doc Document) error {
	if !doc.HasCoord || !doc.Coord.Valid() {
		return errors.Errorf("geoloc: training document has no valid coordinate (%g, %g)", doc.Coord.Lat, doc.Coord.Lon)
	}
	for _, word := range doc.Features {
		if t.stopwords != nil && t.stopwords.Contains(word) {
			continue
		}
		t.vocab.Observe(word, doc.Coord)
	}
	t.origins = append(t.origins, doc.Coord)
	return nil
}

// Model computes the origin prior, the centroids and every retained feature
// grid. Features seen fewer than Threshold times are left out. The grids go
// through the same float32 rounding as the model file, so the returned Model
// classifies exactly like one read back from disk.
func (t *Trainer) Model() (*Model, error) {
	if len(t.origins) == 0 {
		return nil, ErrNoDocuments
	}
	log := t.cfg.logger()
	g := t.cfg.Granularity
	s := t.cfg.Smoothing()
	log.Info("training", "granularity", int(g), "lat_ticks", g.Height(), "tick_degrees", g.Step(),
		"kde", !s.NoKDE, "documents", len(t.origins), "features", t.vocab.Len())

	m := newModel(g, s)

	log.Info("calculating origin prior")
	m.Origin = NewGrid(g, documentPrior)
	Accumulate(s, m.Origin, t.origins)
	m.Origin.Normalize()
	Quantize(m.Origin)

	m.Centroids = computeCentroids(g, t.origins)

	log.Info("calculating feature mass")
	m.WordMass = NewGrid(g, 0)
	w := NewGrid(g, 0)
	dropped := 0
	for i, f := range t.vocab.Features() {
		if len(f.Points) < t.cfg.Threshold {
			dropped++
			continue
		}
		if i%progressEvery == 0 {
			log.Debug("feature mass", "feature", i)
		}
		w.Fill(0)
		Accumulate(s, w, f.Points)
		m.WordMass.Add(w)

		kept := m.Vocabulary.Register(f.Word)
		kept.Count = f.Count
		kept.Weight = f.Weight
		kept.Points = f.Points
		if !t.cfg.NoMatrix {
			kept.Sparse = EncodeSparse(w)
		}
		m.Tokens += len(f.Points)
	}
	Quantize(m.WordMass)
	m.WordTypes = m.Vocabulary.Len()
	log.Info("trained model", "features", m.WordTypes, "below_threshold", dropped, "tokens", m.Tokens)
	return m, nil
}
