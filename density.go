package geoloc

import "math"

// kdeCutoff bounds the kernel support: cells farther from an observation than
// the first tick where exp(-d²/2σ²) drops below it receive no mass.
const kdeCutoff = 0.001

// locator is anything that can be placed on the grid.
type locator interface {
	Coord() Coord
}

// Coord returns c itself so that coordinate slices satisfy locator.
func (c Coord) Coord() Coord { return c }

// Smoothing selects how a list of observations becomes a grid. The same
// setting must be used to train a model and to classify with it.
type Smoothing struct {
	NoKDE bool    // exact binning instead of kernel density
	Sigma float64 // kernel standard deviation in degrees
}

// Build returns a fresh grid holding the density of pts.
func Build[T locator](s Smoothing, g Granularity, pts []T) *Grid {
	grid := NewGrid(g, 0)
	Accumulate(s, grid, pts)
	return grid
}

// Accumulate adds the density of pts to grid.
func Accumulate[T locator](s Smoothing, grid *Grid, pts []T) {
	if s.NoKDE {
		BinGrid(grid, pts)
		return
	}
	KDEGrid(grid, pts, s.Sigma)
}

// BinGrid adds 1 to the cell containing each observation.
func BinGrid[T locator](grid *Grid, pts []T) {
	for _, p := range pts {
		grid.Cells[grid.Cell(p.Coord())] += 1.0
	}
}

// GaussianPDF is the density of a bivariate normal with equal standard
// deviation on both axes and no correlation, at offset (dlon, dlat) from its mean.
func GaussianPDF(dlon, dlat, sigma float64) float64 {
	s2 := sigma * sigma
	return 1 / (2 * math.Pi * s2) * math.Exp(-(dlon*dlon+dlat*dlat)/(2*s2))
}

// KDERadius returns the half-width, in ticks, of the box evaluated around each
// observation: the smallest radius where the unscaled kernel falls below
// kdeCutoff. It never exceeds the grid width.
func KDERadius(g Granularity, sigma float64) int {
	step := g.Step()
	for r := 0; r < g.Width(); r++ {
		d := float64(r) * step
		if math.Exp(-d*d/(2*sigma*sigma)) < kdeCutoff {
			return r
		}
	}
	return g.Width()
}

// KDEGrid adds, for each observation, the Gaussian density measured at the
// midpoint of every cell inside its bounding box.
func KDEGrid[T locator](grid *Grid, pts []T, sigma float64) {
	if len(pts) == 0 {
		return
	}
	r := KDERadius(grid.Granularity, sigma)
	w, h := grid.Width(), grid.Height()

	// Midpoints are shared by every observation.
	midLon := make([]float64, w)
	for x := range midLon {
		midLon[x] = grid.MidLon(x)
	}
	midLat := make([]float64, h)
	for y := range midLat {
		midLat[y] = grid.MidLat(y)
	}

	norm := 1 / (2 * math.Pi * sigma * sigma)
	inv := 1 / (2 * sigma * sigma)
	for _, p := range pts {
		c := p.Coord()
		cx, cy := grid.LonToX(c.Lon), grid.LatToY(c.Lat)
		minX, maxX := max(cx-r, 0), min(cx+r, w-1)
		minY, maxY := max(cy-r, 0), min(cy+r, h-1)
		for y := minY; y <= maxY; y++ {
			dlat := midLat[y] - c.Lat
			row := grid.Cells[y*w : (y+1)*w]
			for x := minX; x <= maxX; x++ {
				dlon := midLon[x] - c.Lon
				row[x] += norm * math.Exp(-(dlon*dlon+dlat*dlat)*inv)
			}
		}
	}
}
