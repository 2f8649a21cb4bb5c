package geoloc

// tuneStep is the weight change applied per misclassified occurrence.
const tuneStep = 0.01

// TuneStats reports what a tuning pass did.
type TuneStats struct {
	Documents     int
	Misclassified int
	Adjusted      int // weight updates, one per known feature occurrence
}

// Tune classifies each held-out document with naive Bayes. When the guessed
// cell is wrong, every known feature of the document is nudged up if it has
// more mass at the true cell than at the guess, and down otherwise.
func Tune(clf *Classifier, docs []Document) (TuneStats, error) {
	m := clf.m
	log := clf.cfg.logger()
	var st TuneStats
	for _, doc := range docs {
		st.Documents++
		guess := clf.NaiveBayes(doc.Features)
		correct := m.Granularity.Cell(doc.Coord)
		log.Debug("tune", "guessed_cell", guess, "correct_cell", correct,
			"error_km", HaversineKm(doc.Coord, m.Granularity.Midpoint(guess)))
		if guess == correct {
			continue
		}
		st.Misclassified++
		for _, word := range doc.Features {
			f, ok := m.Vocabulary.Lookup(word)
			if !ok {
				continue
			}
			mass := m.FeatureGrid(f)
			adjust := -tuneStep
			if mass.Cells[correct] > mass.Cells[guess] {
				adjust = tuneStep
			}
			if err := m.Vocabulary.SetWeight(word, f.Weight+adjust); err != nil {
				return st, err
			}
			st.Adjusted++
		}
	}
	log.Info("tuned model", "documents", st.Documents, "misclassified", st.Misclassified, "adjusted", st.Adjusted)
	return st, nil
}
