package geoloc

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Classification is the outcome for one document.
type Classification struct {
	Cell     int
	Estimate Coord
	Grid     *Grid // score grid, only when requested
}

// ClassifyBatch classifies docs with up to workers goroutines. Results are in
// document order. Each call gets its own scratch grids and the model is only
// read, so the outcome is the same for any worker count.
func (clf *Classifier) ClassifyBatch(ctx context.Context, docs []Document, workers int, withGrid bool) ([]Classification, error) {
	results := make([]Classification, len(docs))
	eg, ctx := errgroup.WithContext(ctx)
	if workers < 1 {
		workers = 1
	}
	eg.SetLimit(workers)

	for i := range docs {
		i := i
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r Classification
			if withGrid {
				r.Cell, r.Grid = clf.Distribution(docs[i].Features)
			} else {
				r.Cell = clf.Classify(docs[i].Features)
			}
			r.Estimate = clf.Estimate(r.Cell)
			results[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
