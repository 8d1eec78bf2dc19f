package ranging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/roman-kulish/jamming-locator/internal/iq"
)

// WithLogger sets the logger for the estimator
func WithLogger(logger *slog.Logger) func(e *Estimator) {
	return func(e *Estimator) {
		e.logger = logger.With(slog.String("component", "distance-estimator"))
	}
}

// Estimator converts the post-onset amplitude of a capture into a distance from the emitter
type Estimator struct {
	cal    Calibration
	logger *slog.Logger
}

// NewEstimator creates a new Estimator for the given calibration
func NewEstimator(cal Calibration, options ...func(e *Estimator)) (*Estimator, error) {
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("invalid calibration: %w", err)
	}

	e := Estimator{
		cal:    cal,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&e)
	}

	return &e, nil
}

// Calibration returns the calibration used by the estimator
func (e *Estimator) Calibration() Calibration {
	return e.cal
}

// Estimate reads the whole capture at path and estimates the emitter distance in meters.
// ok is false when no signal onset was found or the mean amplitude is zero.
func (e *Estimator) Estimate(path string) (distance float64, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false, fmt.Errorf("reading capture '%s': %w", path, err)
	}

	e.logger.Debug("estimating distance",
		slog.String("path", path),
		slog.String("size", humanize.IBytes(uint64(len(data)))))

	distance, ok = e.EstimateSamples(data)
	if ok {
		e.logger.Info("distance estimated", slog.String("path", path), slog.Float64("meters", distance))
	} else {
		e.logger.Info("no signal onset", slog.String("path", path), slog.Float64("threshold", e.cal.ActivityThreshold))
	}
	return distance, ok, nil
}

// EstimateSamples estimates the emitter distance from an in-memory interleaved capture
func (e *Estimator) EstimateSamples(p []byte) (float64, bool) {
	amplitude := iq.Amplitudes(p, e.cal.Convention)

	onset, ok := TurnOnIndex(amplitude, e.cal.ActivityThreshold)
	if !ok {
		return 0, false
	}

	mean := MeanAmplitude(amplitude[onset:])
	if mean == 0 {
		return 0, false
	}

	rx := ReceivedPowerDB(mean)
	e.logger.Debug("signal detected",
		slog.Int("onset", onset),
		slog.Float64("meanAmplitude", mean),
		slog.Float64("receivedPowerDB", rx))

	return e.cal.Distance(rx), true
}

// TurnOnIndex returns the first index where amplitude exceeds threshold
func TurnOnIndex(amplitude []float64, threshold float64) (int, bool) {
	for i, a := range amplitude {
		if a > threshold {
			return i, true
		}
	}
	return 0, false
}

// MeanAmplitude returns the arithmetic mean of amplitude, or zero when empty
func MeanAmplitude(amplitude []float64) float64 {
	if len(amplitude) == 0 {
		return 0
	}

	var sum float64
	for _, a := range amplitude {
		sum += a
	}
	return sum / float64(len(amplitude))
}
