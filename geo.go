package geoloc

import (
	"math"

	geohash "github.com/TomiHiltunen/geohash-golang"
	"github.com/golang/geo/s2"
)

// earthRadiusKm is the mean radius used for all reported distances.
const earthRadiusKm = 6372.795

// Coord is a position in decimal degrees.
type Coord struct {
	Lat float64
	Lon float64
}

// Point is a feature occurrence. Stored as float32 to halve the footprint of
// large vocabularies; the precision is well below one grid tick.
type Point struct {
	Lat float32
	Lon float32
}

// Coord widens p to float64 degrees.
func (p Point) Coord() Coord {
	return Coord{Lat: float64(p.Lat), Lon: float64(p.Lon)}
}

// Point narrows c for storage in a feature record.
func (c Coord) Point() Point {
	return Point{Lat: float32(c.Lat), Lon: float32(c.Lon)}
}

// Valid reports whether c is a finite coordinate inside the world bounds.
func (c Coord) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// HaversineKm returns the great-circle distance between two coordinates in km.
func HaversineKm(a, b Coord) float64 {
	la := s2.LatLngFromDegrees(a.Lat, a.Lon)
	lb := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return la.Distance(lb).Radians() * earthRadiusKm
}

// Geohash encodes c with the given number of characters.
func Geohash(c Coord, precision int) string {
	return geohash.EncodeWithPrecision(c.Lat, c.Lon, precision)
}
