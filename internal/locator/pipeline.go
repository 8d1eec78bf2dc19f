package locator

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roman-kulish/jamming-locator/internal/geo"
	"github.com/roman-kulish/jamming-locator/internal/ranging"
)

var (
	// ErrTooFewCaptures is returned when fewer than two capture files are available for localization
	ErrTooFewCaptures = errors.New("at least two capture files are required for two antennas")

	// ErrNoDistance is returned when a distance could not be estimated from one of the captures
	ErrNoDistance = errors.New("could not estimate a distance")
)

// Localize estimates the distance to the emitter from each capture and locates it relative
// to the antennas. Captures and antennas are paired by index. Three of both select
// trilateration; otherwise the first two are used.
func Localize(est *ranging.Estimator, captures []string, antennas []geo.Antenna, logger *slog.Logger) (*geo.Result, error) {
	if len(captures) < geo.MinAntennas {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewCaptures, len(captures))
	}
	if len(antennas) < geo.MinAntennas {
		return nil, fmt.Errorf("%w: got %d antenna positions", geo.ErrTooFewAntennas, len(antennas))
	}

	n := geo.MinAntennas
	if len(captures) >= geo.MaxAntennas && len(antennas) >= geo.MaxAntennas {
		n = geo.MaxAntennas
	}

	logger.Info("locating emitter", slog.Int("antennas", n), slog.Any("captures", captures[:n]))

	distances := make([]float64, n)
	var errs []error
	for i := 0; i < n; i++ {
		d, ok, err := est.Estimate(captures[i])
		switch {
		case err != nil:
			errs = append(errs, err)
		case !ok:
			errs = append(errs, fmt.Errorf("no signal onset in '%s'", captures[i]))
		default:
			distances[i] = d
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoDistance, errors.Join(errs...))
	}

	result, err := geo.Localize(antennas[:n], distances)
	if err != nil {
		return nil, err
	}

	logger.Info("emitter located", slog.String("method", result.Method.String()), slog.Any("locations", result.Points))
	return result, nil
}
