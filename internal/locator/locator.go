package locator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roman-kulish/jamming-locator/internal/decoder"
	"github.com/roman-kulish/jamming-locator/internal/geo"
	"github.com/roman-kulish/jamming-locator/internal/ingest"
	"github.com/roman-kulish/jamming-locator/internal/ranging"
	"github.com/roman-kulish/jamming-locator/internal/telemetry"
)

var (
	// ErrNoCaptures is returned when a run is started without capture files
	ErrNoCaptures = errors.New("no capture files given")

	// ErrMissingCapture is returned when a capture file does not exist
	ErrMissingCapture = errors.New("capture file does not exist")

	// ErrMissingDecoder is returned when the decoder executable does not exist
	ErrMissingDecoder = errors.New("decoder executable not found")

	// ErrBind is returned when the telemetry listener cannot bind its address
	ErrBind = errors.New("cannot start telemetry listener")

	// ErrAlreadyRan is returned when Execute is called more than once
	ErrAlreadyRan = errors.New("locator already ran")
)

// OutcomeType tells whether a run located a jammer
type OutcomeType string

const (
	JammingLocation OutcomeType = "jamming_location"
	NoJamming       OutcomeType = "no_jamming"
)

// Status is the localization status of a run
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Outcome is the single consolidated result of a run
type Outcome struct {
	RunID  uuid.UUID   `json:"run_id"`
	Type   OutcomeType `json:"type"`
	Status Status      `json:"status"`

	*geo.Result

	Reason      string              `json:"message,omitempty"`
	Position    *telemetry.Position `json:"position,omitempty"`
	DecoderExit *int                `json:"decoder_exit,omitempty"`

	// Decoder is the decoder failure, if any. It does not decide the outcome.
	Decoder error `json:"-"`
}

// Located reports whether the run produced a localization result
func (o *Outcome) Located() bool {
	return o.Type == JammingLocation
}

func (o *Outcome) String() string {
	if o.Result == nil {
		return fmt.Sprintf("%s: %s", o.Type, o.Reason)
	}
	return fmt.Sprintf("%s: %s", o.Type, o.Result)
}

// Config describes a single localization run
type Config struct {
	// ListenAddr is the telemetry listener address, ingest.DefaultAddress when empty
	ListenAddr string

	// DecoderPath is the GNSS decoder executable, run against the first capture
	DecoderPath string
	DecoderArgs []string

	Captures    []string
	Antennas    []geo.Antenna
	Calibration ranging.Calibration
}

// ConfigError is returned by New when the run configuration is invalid
type ConfigError struct {
	err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid locator config: %s", e.err)
}

func (e *ConfigError) Unwrap() error {
	return e.err
}

// WithLogger sets the logger for the locator
func WithLogger(logger *slog.Logger) func(l *Locator) {
	return func(l *Locator) {
		l.logger = logger
	}
}

// WithStateObserver sets a callback invoked synchronously on every state transition
func WithStateObserver(fn func(State)) func(l *Locator) {
	return func(l *Locator) {
		l.observer = fn
	}
}

// WithStatusHandler sets the callback receiving the status line of every telemetry report
func WithStatusHandler(fn func(status string)) func(l *Locator) {
	return func(l *Locator) {
		l.onStatus = fn
	}
}

// WithPositionHandler sets the callback receiving every telemetry report carrying a fix
func WithPositionHandler(fn func(lat, lon, hgt float64)) func(l *Locator) {
	return func(l *Locator) {
		l.onPosition = fn
	}
}

// WithRegistry registers run and ingestion metrics on reg and serves it on /metrics
func WithRegistry(reg *prometheus.Registry) func(l *Locator) {
	return func(l *Locator) {
		l.registry = reg
	}
}

// WithRunID overrides the generated run identifier
func WithRunID(id uuid.UUID) func(l *Locator) {
	return func(l *Locator) {
		l.runID = id
	}
}

// Locator runs the decoder against the primary capture while locating the jammer from all
// captures in the background and collecting decoder telemetry. A Locator is single-use.
type Locator struct {
	cfg       Config
	runID     uuid.UUID
	estimator *ranging.Estimator
	slot      *telemetry.Slot
	positions telemetry.Provider

	observer   func(State)
	onStatus   func(string)
	onPosition func(lat, lon, hgt float64)

	registry *prometheus.Registry
	metrics  *Metrics
	logger   *slog.Logger

	state atomic.Int32
	ran   atomic.Bool

	mu   sync.Mutex
	addr net.Addr
}

// New creates a new Locator. It validates the calibration and the antenna geometry.
func New(cfg Config, options ...func(l *Locator)) (*Locator, error) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ingest.DefaultAddress
	}

	l := Locator{
		cfg:    cfg,
		runID:  uuid.New(),
		slot:   telemetry.NewSlot(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	l.positions = l.slot

	for _, option := range options {
		option(&l)
	}

	l.logger = l.logger.With(slog.String("runID", l.runID.String()))

	if err := geo.ValidateAntennas(cfg.Antennas); err != nil {
		return nil, &ConfigError{err}
	}

	est, err := ranging.NewEstimator(cfg.Calibration, ranging.WithLogger(l.logger))
	if err != nil {
		return nil, &ConfigError{err}
	}
	l.estimator = est

	// a nil *Registry must not reach promauto.With as a non-nil Registerer
	if l.registry != nil {
		l.metrics = NewMetrics(l.registry)
	} else {
		l.metrics = NewMetrics(nil)
	}

	return &l, nil
}

// RunID returns the run identifier
func (l *Locator) RunID() uuid.UUID {
	return l.runID
}

// State returns the current run state
func (l *Locator) State() State {
	return State(l.state.Load())
}

// Addr returns the address the telemetry listener is bound to, or nil before binding
func (l *Locator) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.addr
}

// Position returns the latest telemetry position, or nil when none was received
func (l *Locator) Position() *telemetry.Position {
	return l.positions.Get()
}

type localization struct {
	result *geo.Result
	err    error
}

// Execute performs the run and blocks until the decoder exited, the listener stopped
// and the background localization finished. Precondition and bind failures end the
// run immediately; they are returned as errors along with a failed Outcome. Cancelling
// ctx kills the decoder; the localization is always awaited.
func (l *Locator) Execute(ctx context.Context) (*Outcome, error) {
	if !l.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRan
	}

	out := Outcome{
		RunID:  l.runID,
		Type:   NoJamming,
		Status: StatusError,
	}
	defer func() {
		l.metrics.runsTotal.WithLabelValues(string(out.Type), string(out.Status)).Inc()
	}()

	decoderPath, err := l.checkPreconditions()
	if err != nil {
		return l.fail(&out, err)
	}

	l.transition(ServerStarting)

	srvOptions := []func(s *ingest.Server){
		ingest.WithLogger(l.logger),
		ingest.WithStatusHandler(l.onStatus),
		ingest.WithPositionHandler(l.onPosition),
	}
	if l.registry != nil {
		srvOptions = append(srvOptions, ingest.WithMetrics(ingest.NewMetrics(l.registry), l.registry))
	}

	srv := ingest.NewServer(l.cfg.ListenAddr, l.slot, srvOptions...)
	addr, err := srv.Listen()
	if err != nil {
		return l.fail(&out, fmt.Errorf("%w: %w", ErrBind, err))
	}

	l.mu.Lock()
	l.addr = addr
	l.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		if err := srv.Serve(); err != nil {
			l.logger.Error(err.Error())
		}
	}()

	l.transition(Running)

	results := make(chan localization, 1)
	go l.localize(results)

	runner := decoder.NewRunner(decoderPath, decoder.WithLogger(l.logger), decoder.WithArgs(l.cfg.DecoderArgs...))
	res, decErr := runner.Run(ctx, l.cfg.Captures[0])
	if res != nil {
		code := res.ExitCode
		out.DecoderExit = &code
		l.metrics.decoderDuration.Observe(res.Duration.Seconds())
	}
	if decErr != nil {
		out.Decoder = decErr
		l.logger.Warn("decoder failed", slog.String("error", decErr.Error()))
	}

	l.transition(ShuttingDown)

	if err = srv.Shutdown(context.Background()); err != nil {
		l.logger.Warn("stopping telemetry listener", slog.String("error", err.Error()))
	}
	wg.Wait()

	l.logger.Debug("waiting for localization")
	loc := <-results

	out.Position = l.positions.Get()
	if loc.err != nil {
		out.Reason = loc.err.Error()
	} else {
		out.Type = JammingLocation
		out.Status = StatusSuccess
		out.Result = loc.result
	}

	l.transition(Done)
	l.logger.Info("run finished",
		slog.String("type", string(out.Type)),
		slog.String("status", string(out.Status)),
		slog.String("message", out.Reason))

	return &out, nil
}

func (l *Locator) fail(out *Outcome, err error) (*Outcome, error) {
	out.Reason = err.Error()
	l.logger.Error("run aborted", slog.String("error", err.Error()))
	l.transition(Done)
	return out, err
}

func (l *Locator) checkPreconditions() (string, error) {
	if len(l.cfg.Captures) == 0 {
		return "", ErrNoCaptures
	}

	for _, path := range l.cfg.Captures {
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrMissingCapture, path)
		}
		if info.IsDir() {
			return "", fmt.Errorf("%w: %s is a directory", ErrMissingCapture, path)
		}
	}

	decoderPath, err := decoder.Locate(l.cfg.DecoderPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMissingDecoder, err)
	}

	return decoderPath, nil
}

func (l *Locator) localize(results chan<- localization) {
	started := time.Now()

	defer func() {
		l.metrics.localizationLatency.Observe(time.Since(started).Seconds())

		if r := recover(); r != nil {
			results <- localization{err: fmt.Errorf("localization panicked: %v", r)}
		}
	}()

	result, err := Localize(l.estimator, l.cfg.Captures, l.cfg.Antennas, l.logger)
	if err != nil {
		l.logger.Info("no jammer located", slog.String("reason", err.Error()))
	}
	results <- localization{result: result, err: err}
}

func (l *Locator) transition(s State) {
	l.state.Store(int32(s))
	l.logger.Debug("state changed", slog.String("state", s.String()))

	if l.observer != nil {
		l.observer(s)
	}
}
