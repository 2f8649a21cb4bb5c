package geoloc

import (
	"context"
	"fmt"
	"io"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// evalProgressEvery is how often Evaluate reports a running line.
const evalProgressEvery = 100

// Summary is the outcome of an evaluation run. Distances are in km.
type Summary struct {
	Count  int
	Mean   float64
	Median float64
}

// Evaluate classifies every held-out document, writes a progress line every
// 100 documents and returns the distance summary. With no documents the
// summary is all zeros.
func Evaluate(ctx context.Context, clf *Classifier, docs []Document, out io.Writer) (Summary, error) {
	results, err := clf.ClassifyBatch(ctx, docs, clf.cfg.Workers, false)
	if err != nil {
		return Summary{}, err
	}
	dists := make([]float64, len(results))
	total := 0.0
	for i, r := range results {
		d := HaversineKm(docs[i].Coord, r.Estimate)
		dists[i] = d
		total += d
		if n := i + 1; n%evalProgressEvery == 0 && out != nil {
			fmt.Fprintf(out, "%d: %.6g,%.6g\t%.6g\t%d\trunning mean: %.6g\n",
				n, r.Estimate.Lat, r.Estimate.Lon, d, r.Cell, total/float64(n))
		}
	}
	return Summarize(dists), nil
}

// Summarize returns count, mean and median of distances. An even count takes
// the mean of the two middle values.
func Summarize(dists []float64) Summary {
	n := len(dists)
	if n == 0 {
		return Summary{}
	}
	sorted := make([]float64, n)
	copy(sorted, dists)
	sort.Float64s(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return Summary{Count: n, Mean: stat.Mean(sorted, nil), Median: median}
}

// WriteTo prints the summary block.
func (s Summary) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w, "--------------------------\nDATA POINTS: %d\nMEAN DISTANCE: %.6g\nMEDIAN DISTANCE: %.6g\n--------------------------\n",
		s.Count, s.Mean, s.Median)
	return int64(n), err
}
