package geo

import (
	"encoding/json"
	"fmt"
	"math"
)

const earthRadius = 6_371_000.0 // meters

// Point is a planar position in meters relative to antenna 0
type Point struct {
	X float64
	Y float64
}

func (p Point) Add(q Point) Point {
	return Point{p.X + q.X, p.Y + q.Y}
}

func (p Point) Sub(q Point) Point {
	return Point{p.X - q.X, p.Y - q.Y}
}

func (p Point) Scale(k float64) Point {
	return Point{p.X * k, p.Y * k}
}

// Norm returns the euclidean length of p
func (p Point) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// Dist returns the euclidean distance between p and q
func (p Point) Dist(q Point) float64 {
	return p.Sub(q).Norm()
}

func (p Point) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", p.X, p.Y)
}

// MarshalJSON encodes the point as an [x, y] pair
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

func (p *Point) UnmarshalJSON(b []byte) error {
	var v [2]float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("geo.Point: %w", err)
	}
	p.X, p.Y = v[0], v[1]
	return nil
}

// Geodetic is a latitude/longitude pair in degrees
type Geodetic struct {
	Latitude  float64
	Longitude float64
}

// LocalFromGeodetic projects p onto a local plane centred on ref, in meters
// (x grows east, y grows north). The equirectangular approximation is only
// accurate over the short baselines of an antenna set.
func LocalFromGeodetic(ref, p Geodetic) Point {
	refLat := ref.Latitude * math.Pi / 180
	dLat := (p.Latitude - ref.Latitude) * math.Pi / 180
	dLon := (p.Longitude - ref.Longitude) * math.Pi / 180

	return Point{
		X: earthRadius * dLon * math.Cos(refLat),
		Y: earthRadius * dLat,
	}
}
