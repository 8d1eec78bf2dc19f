package geo

import (
	"errors"
	"fmt"
	"math"
)

const (
	MethodIntersection  Method = "intersection"
	MethodEstimation    Method = "estimation"
	MethodTrilateration Method = "trilateration"
)

var (
	// ErrTooFewAntennas is returned when fewer than two antennas or distances are available
	ErrTooFewAntennas = errors.New("at least two antennas and two distances are required")

	// ErrCollinear is returned when three antennas lie on one line and trilateration is undefined
	ErrCollinear = errors.New("antennas are collinear")

	// ErrNoEstimate is returned when two coincident antennas leave no baseline to estimate along
	ErrNoEstimate = errors.New("no estimate for coincident antennas")
)

// Method tags how a localization result was computed
type Method string

func (m Method) String() string {
	return string(m)
}

// Result is the outcome of one localization. Intersection results carry two
// candidates; the ambiguity between them is left to the caller.
type Result struct {
	Method Method  `json:"method"`
	Points []Point `json:"locations"`
}

func (r *Result) String() string {
	return fmt.Sprintf("%s %v", r.Method, r.Points)
}

// CircleIntersections returns the two intersection points of the circles (p0, r0) and (p1, r1).
// ok is false when the circles are too far apart, one contains the other, the centres
// coincide or rounding leaves no real solution.
func CircleIntersections(p0 Point, r0 float64, p1 Point, r1 float64) (points []Point, ok bool) {
	d := p1.Dist(p0)
	if d > r0+r1 || d < math.Abs(r0-r1) || d == 0 {
		return nil, false
	}

	a := (r0*r0 - r1*r1 + d*d) / (2 * d)
	if r0*r0 < a*a {
		return nil, false
	}

	h := math.Sqrt(r0*r0 - a*a)
	p2 := p0.Add(p1.Sub(p0).Scale(a / d))

	dx := (p1.X - p0.X) / d
	dy := (p1.Y - p0.Y) / d

	return []Point{
		{X: p2.X + h*dy, Y: p2.Y - h*dx},
		{X: p2.X - h*dy, Y: p2.Y + h*dx},
	}, true
}

// EstimateNoIntersection returns the midpoint between the point at r0 from p0 and the
// point at r1 back from p1, both along the p0→p1 baseline.
func EstimateNoIntersection(p0 Point, r0 float64, p1 Point, r1 float64) (Point, bool) {
	d := p1.Dist(p0)
	if d == 0 {
		return Point{}, false
	}

	u := p1.Sub(p0).Scale(1 / d)
	on0 := p0.Add(u.Scale(r0))
	on1 := p1.Sub(u.Scale(r1))

	return on0.Add(on1).Scale(0.5), true
}

// linearSystem subtracts the circle equations pairwise for (0, 1) and (1, 2):
//
//	a·x + b·y = c
//	d·x + e·y = f
func linearSystem(p0 Point, r0 float64, p1 Point, r1 float64, p2 Point, r2 float64) (a, b, c, d, e, f float64) {
	a = 2 * (p1.X - p0.X)
	b = 2 * (p1.Y - p0.Y)
	c = r0*r0 - r1*r1 - p0.X*p0.X + p1.X*p1.X - p0.Y*p0.Y + p1.Y*p1.Y
	d = 2 * (p2.X - p1.X)
	e = 2 * (p2.Y - p1.Y)
	f = r1*r1 - r2*r2 - p1.X*p1.X + p2.X*p2.X - p1.Y*p1.Y + p2.Y*p2.Y
	return
}

// Trilaterate solves the position from three antennas and their distances
func Trilaterate(p0 Point, r0 float64, p1 Point, r1 float64, p2 Point, r2 float64) (Point, error) {
	a, b, c, d, e, f := linearSystem(p0, r0, p1, r1, p2, r2)

	det := a*e - b*d
	if math.Abs(det) < collinearEpsilon {
		return Point{}, fmt.Errorf("%w: determinant %g", ErrCollinear, det)
	}

	return Point{
		X: (c*e - f*b) / det,
		Y: (a*f - d*c) / det,
	}, nil
}

// Localize computes the emitter position from antennas and their estimated distances.
// Three or more of both use trilateration; otherwise the first two antennas are used
// with circle intersection, falling back to estimation when the circles do not meet.
func Localize(antennas []Antenna, distances []float64) (*Result, error) {
	if len(antennas) < MinAntennas || len(distances) < MinAntennas {
		return nil, fmt.Errorf("%w: got %d antennas and %d distances", ErrTooFewAntennas, len(antennas), len(distances))
	}

	p0, r0 := antennas[0].Position, distances[0]
	p1, r1 := antennas[1].Position, distances[1]

	if len(antennas) >= 3 && len(distances) >= 3 {
		location, err := Trilaterate(p0, r0, p1, r1, antennas[2].Position, distances[2])
		if err != nil {
			return nil, fmt.Errorf("trilateration failed: %w", err)
		}
		return &Result{Method: MethodTrilateration, Points: []Point{location}}, nil
	}

	if points, ok := CircleIntersections(p0, r0, p1, r1); ok {
		return &Result{Method: MethodIntersection, Points: points}, nil
	}

	estimate, ok := EstimateNoIntersection(p0, r0, p1, r1)
	if !ok {
		return nil, ErrNoEstimate
	}
	return &Result{Method: MethodEstimation, Points: []Point{estimate}}, nil
}
