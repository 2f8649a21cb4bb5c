package geoloc

// SparseEntry is one non-zero cell of a sparse grid. Values are kept in single
// precision to shrink persisted models; decoding is exact for the stored
// float32, so a dense→sparse→dense round trip loses at most float32 rounding.
type SparseEntry struct {
	X     int16
	Y     int16
	Value float32
}

// SparseGrid lists the non-zero cells of a grid in column-major order
// (x outer, y inner). In the model file the list is closed by an #END# line.
type SparseGrid []SparseEntry

// EncodeSparse returns the non-zero cells of g.
func EncodeSparse(g *Grid) SparseGrid {
	n := 0
	for _, v := range g.Cells {
		if float32(v) != 0 {
			n++
		}
	}
	sm := make(SparseGrid, 0, n)
	w, h := g.Width(), g.Height()
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			v := float32(g.Cells[y*w+x])
			if v != 0 {
				sm = append(sm, SparseEntry{X: int16(x), Y: int16(y), Value: v})
			}
		}
	}
	return sm
}

// Decode expands s into a dense grid.
func (s SparseGrid) Decode(g Granularity) *Grid {
	grid := NewGrid(g, 0)
	s.DecodeInto(grid)
	return grid
}

// DecodeInto overwrites grid with the cells of s; all other cells become zero.
func (s SparseGrid) DecodeInto(grid *Grid) {
	grid.Fill(0)
	w := grid.Width()
	for _, e := range s {
		grid.Cells[int(e.Y)*w+int(e.X)] = float64(e.Value)
	}
}

// Quantize rounds every cell of g to the precision a sparse round trip keeps.
func Quantize(g *Grid) {
	for i, v := range g.Cells {
		g.Cells[i] = float64(float32(v))
	}
}
