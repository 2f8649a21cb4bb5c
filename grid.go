package geoloc

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// ErrGranularity is returned for grid sizes the model format cannot express.
var ErrGranularity = errors.New("geoloc: invalid granularity")

// maxGranularity keeps tick coordinates inside the int16 range of sparse entries.
const maxGranularity = math.MaxInt16 - 1

// Granularity is the number of longitude ticks spanning 360 degrees. Latitude
// ticks are always half of it, so one value fixes the whole grid layout.
//
// Cell 0 is the south-west corner (lon -180, lat -90). Cell (x, y) has index
// y*W + x:
//
//	|W  |W+1|...|
//	| 0 | 1 |W-1|
type Granularity int

// Validate checks that g describes a usable grid.
func (g Granularity) Validate() error {
	if g < 2 || g > maxGranularity || g%2 != 0 {
		return errors.Wrapf(ErrGranularity, "%d (want an even number in [2, %d])", int(g), maxGranularity)
	}
	return nil
}

// Width returns the number of longitude ticks.
func (g Granularity) Width() int { return int(g) }

// Height returns the number of latitude ticks.
func (g Granularity) Height() int { return int(g) / 2 }

// Size returns the number of cells in the grid.
func (g Granularity) Size() int { return g.Width() * g.Height() }

// Step returns the size of one tick in degrees.
func (g Granularity) Step() float64 { return 360.0 / float64(g) }

// LonToX returns the column containing lon. Out-of-range values are clamped
// to the border columns, which also places lon = 180 in the last column.
func (g Granularity) LonToX(lon float64) int {
	return clampTick(int(float64(g)/360.0*(lon+180.0)), g.Width())
}

// LatToY returns the row containing lat, clamped like LonToX.
func (g Granularity) LatToY(lat float64) int {
	return clampTick(int(float64(g)/360.0*(lat+90.0)), g.Height())
}

func clampTick(t, n int) int {
	if t < 0 {
		return 0
	}
	if t >= n {
		return n - 1
	}
	return t
}

// Index returns the linear index of cell (x, y).
func (g Granularity) Index(x, y int) int { return y*g.Width() + x }

// Cell returns the index of the cell containing c.
func (g Granularity) Cell(c Coord) int { return g.Index(g.LonToX(c.Lon), g.LatToY(c.Lat)) }

// CellX returns the column of a cell index.
func (g Granularity) CellX(cell int) int { return cell % g.Width() }

// CellY returns the row of a cell index.
func (g Granularity) CellY(cell int) int { return cell / g.Width() }

// MidLon returns the longitude at the middle of column x.
func (g Granularity) MidLon(x int) float64 {
	step := g.Step()
	return float64(x)*step - 180.0 + step/2.0
}

// MidLat returns the latitude at the middle of row y.
func (g Granularity) MidLat(y int) float64 {
	step := g.Step()
	return float64(y)*step - 90.0 + step/2.0
}

// Midpoint returns the coordinate at the middle of a cell.
func (g Granularity) Midpoint(cell int) Coord {
	return Coord{Lat: g.MidLat(g.CellY(cell)), Lon: g.MidLon(g.CellX(cell))}
}

// Grid is a row-major array of one value per cell.
type Grid struct {
	Granularity
	Cells []float64
}

// NewGrid allocates a grid with every cell set to prior.
func NewGrid(g Granularity, prior float64) *Grid {
	grid := &Grid{Granularity: g, Cells: make([]float64, g.Size())}
	if prior != 0 {
		grid.Fill(prior)
	}
	return grid
}

// Fill sets every cell to v.
func (g *Grid) Fill(v float64) {
	for i := range g.Cells {
		g.Cells[i] = v
	}
}

// Copy returns an independent copy of g.
func (g *Grid) Copy() *Grid {
	c := &Grid{Granularity: g.Granularity, Cells: make([]float64, len(g.Cells))}
	copy(c.Cells, g.Cells)
	return c
}

// At returns the value of cell (x, y).
func (g *Grid) At(x, y int) float64 { return g.Cells[g.Index(x, y)] }

// Add adds o to g cell by cell.
func (g *Grid) Add(o *Grid) { floats.Add(g.Cells, o.Cells) }

// Sum returns the total over all cells.
func (g *Grid) Sum() float64 { return floats.Sum(g.Cells) }

// Min returns the smallest cell value.
func (g *Grid) Min() float64 { return floats.Min(g.Cells) }

// Argmax returns the first cell holding the largest value.
func (g *Grid) Argmax() int { return floats.MaxIdx(g.Cells) }

// Normalize scales g so that its cells sum to 1. A grid without mass is left as is.
func (g *Grid) Normalize() {
	sum := g.Sum()
	if sum == 0 {
		return
	}
	floats.Scale(1/sum, g.Cells)
}

// NormalizeLog turns log-space scores into a probability distribution. The
// maximum is subtracted before exponentiation to keep the largest term at 1.
func (g *Grid) NormalizeLog() {
	top := floats.Max(g.Cells)
	if math.IsInf(top, -1) {
		g.Fill(1 / float64(len(g.Cells)))
		return
	}
	for i, v := range g.Cells {
		g.Cells[i] = math.Exp(v - top)
	}
	g.Normalize()
}
