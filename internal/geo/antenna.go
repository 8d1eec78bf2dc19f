package geo

import (
	"errors"
	"fmt"
	"math"
)

const (
	MinAntennas = 2
	MaxAntennas = 3

	// collinearEpsilon bounds the trilateration determinant below which antennas count as collinear
	collinearEpsilon = 1e-9
)

// Antenna is a fixed receiver position. Antenna 0 of a set is always the origin.
type Antenna struct {
	Name     string `json:"name"`
	Position Point  `json:"position"`
}

// AntennasFromGeodetic converts geodetic antenna coordinates into local antennas,
// using the first coordinate as the origin.
func AntennasFromGeodetic(names []string, coords []Geodetic) ([]Antenna, error) {
	if len(names) != len(coords) {
		return nil, fmt.Errorf("got %d names for %d coordinates", len(names), len(coords))
	}
	if len(coords) == 0 {
		return nil, nil
	}

	antennas := make([]Antenna, len(coords))
	for i, c := range coords {
		antennas[i] = Antenna{Name: names[i], Position: LocalFromGeodetic(coords[0], c)}
	}
	return antennas, nil
}

// ValidateAntennas checks the cardinality and geometry of an antenna set
func ValidateAntennas(antennas []Antenna) error {
	if len(antennas) < MinAntennas {
		return fmt.Errorf("%w: got %d antennas", ErrTooFewAntennas, len(antennas))
	}
	if len(antennas) > MaxAntennas {
		return fmt.Errorf("at most %d antennas are supported, got %d", MaxAntennas, len(antennas))
	}
	if antennas[0].Position != (Point{}) {
		return fmt.Errorf("antenna 0 must be the origin, got %s", antennas[0].Position)
	}

	var errs []error
	for i := 1; i < len(antennas); i++ {
		for j := 0; j < i; j++ {
			if antennas[i].Position == antennas[j].Position {
				errs = append(errs, fmt.Errorf("antennas %d and %d are coincident", j, i))
			}
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if len(antennas) == 3 {
		a, b, _, d, e, _ := linearSystem(
			antennas[0].Position, 0,
			antennas[1].Position, 0,
			antennas[2].Position, 0)
		if math.Abs(a*e-b*d) < collinearEpsilon {
			return fmt.Errorf("%w: %s, %s, %s", ErrCollinear,
				antennas[0].Position, antennas[1].Position, antennas[2].Position)
		}
	}

	return nil
}
