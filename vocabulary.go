package geoloc

import "github.com/pkg/errors"

// ErrUnknownFeature is returned when a feature that must exist is missing from
// the vocabulary. It signals an internal inconsistency, not bad user input.
var ErrUnknownFeature = errors.New("geoloc: feature not in vocabulary")

// Feature is everything the model knows about one token.
type Feature struct {
	ID     int        // dense id in insertion order
	Word   string     // the token itself
	Count  int        // occurrences seen
	Weight float64    // 0 disables the feature; tuned by Tune
	Points []Point    // where the feature occurred
	Sparse SparseGrid // persisted mass grid, nil when recomputed from Points
}

// Vocabulary is the feature index plus one record per feature.
type Vocabulary struct {
	index    *Index
	features []*Feature
}

// NewVocabulary returns an empty vocabulary.
func NewVocabulary() *Vocabulary {
	return &Vocabulary{index: NewIndex(defaultIndexSize)}
}

// Len returns the number of features.
func (v *Vocabulary) Len() int { return len(v.features) }

// Contains reports whether word is a known feature.
func (v *Vocabulary) Contains(word string) bool { return v.index.Contains(word) }

// Lookup returns the record for word.
func (v *Vocabulary) Lookup(word string) (*Feature, bool) {
	id, ok := v.index.Find(word)
	if !ok {
		return nil, false
	}
	return v.features[id], true
}

// Feature returns the record with the given id.
func (v *Vocabulary) Feature(id int) *Feature { return v.features[id] }

// Features returns all records in id order. The slice is shared.
func (v *Vocabulary) Features() []*Feature { return v.features }

// Register adds word without an occurrence and returns its record.
func (v *Vocabulary) Register(word string) *Feature {
	id := v.index.Insert(word)
	if id < len(v.features) {
		return v.features[id]
	}
	f := &Feature{ID: id, Word: word, Weight: 1.0}
	v.features = append(v.features, f)
	return f
}

// Observe records one occurrence of word at c.
func (v *Vocabulary) Observe(word string, c Coord) *Feature {
	f := v.Register(word)
	f.Count++
	f.Points = append(f.Points, c.Point())
	return f
}

// Weight returns the weight of word.
func (v *Vocabulary) Weight(word string) (float64, error) {
	f, ok := v.Lookup(word)
	if !ok {
		return 0, errors.Wrapf(ErrUnknownFeature, "weight of %q", word)
	}
	return f.Weight, nil
}

// SetWeight changes the weight of word.
func (v *Vocabulary) SetWeight(word string, w float64) error {
	f, ok := v.Lookup(word)
	if !ok {
		return errors.Wrapf(ErrUnknownFeature, "set weight of %q", word)
	}
	f.Weight = w
	return nil
}
