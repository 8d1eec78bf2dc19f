package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/roman-kulish/jamming-locator/internal/iq"
	"github.com/roman-kulish/jamming-locator/internal/locator"
	"github.com/roman-kulish/jamming-locator/internal/storage"
)

const (
	storageDir  = "data"
	storageFile = "jamloc_runs.sqlite"
)

// Report is written to the output once the run is done
type Report struct {
	*locator.Outcome

	Jamming map[string]iq.JammingInterval `json:"jamming,omitempty"`
}

// Run performs one localization run described by config and writes the JSON report to out
func Run(ctx context.Context, config *Config, logger *slog.Logger, out io.Writer) error {
	antennas, err := config.AntennaSet()
	if err != nil {
		return fmt.Errorf("invalid antennas: %w", err)
	}

	var store storage.Store
	if config.Storage.Enabled {
		if store, err = createStorage(&config.Storage); err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error(fmt.Sprintf("closing storage: %s", err.Error()))
			}
		}()
	}

	options := []func(l *locator.Locator){
		locator.WithLogger(logger),
		locator.WithStatusHandler(func(status string) {
			logger.Info("decoder status", slog.String("status", status))
		}),
		locator.WithPositionHandler(func(lat, lon, hgt float64) {
			logger.Debug("decoder fix", slog.Float64("lat", lat), slog.Float64("lon", lon), slog.Float64("hgt", hgt))
		}),
		locator.WithStateObserver(func(s locator.State) {
			logger.Info("run state", slog.String("state", s.String()))
		}),
	}
	if config.Metrics.Enabled {
		options = append(options, locator.WithRegistry(createRegistry()))
	}

	l, err := locator.New(locator.Config{
		ListenAddr:  config.Listen,
		DecoderPath: config.Decoder.Path,
		DecoderArgs: config.Decoder.Args,
		Captures:    config.Captures,
		Antennas:    antennas,
		Calibration: config.Calibration,
	}, options...)
	if err != nil {
		return err
	}

	if store != nil {
		if err = store.CreateRun(ctx, l.RunID(), config.Decoder.Path, config.Captures, config); err != nil {
			return fmt.Errorf("recording run: %w", err)
		}
	}

	report := Report{}
	if config.Detection.Enabled {
		report.Jamming = detect(config, logger)
	}

	outcome, runErr := l.Execute(ctx)
	if outcome == nil {
		return runErr
	}
	report.Outcome = outcome

	if store != nil {
		// the run context may already be cancelled
		if err = store.FinishRun(context.Background(), outcome.RunID, time.Now(), toRunOutcome(outcome)); err != nil {
			logger.Error(fmt.Sprintf("recording run outcome: %s", err.Error()))
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err = enc.Encode(&report); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	return runErr
}

// detect runs the chunked power analysis over every capture. Failures yield an empty interval.
func detect(config *Config, logger *slog.Logger) map[string]iq.JammingInterval {
	intervals := make(map[string]iq.JammingInterval, len(config.Captures))

	for _, path := range config.Captures {
		interval := iq.AnalyzeJamming(path, config.Detection.Threshold,
			iq.WithChunkSize(int(config.Detection.ChunkSize)),
			iq.WithLogger(logger))

		logger.Info("jamming analysis",
			slog.String("path", path),
			slog.Bool("detected", interval.Detected()),
			slog.String("interval", interval.String()))

		intervals[path] = interval
	}

	return intervals
}

func toRunOutcome(o *locator.Outcome) *storage.RunOutcome {
	ro := storage.RunOutcome{
		Type:        string(o.Type),
		Status:      string(o.Status),
		Message:     o.Reason,
		DecoderExit: o.DecoderExit,
		Position:    o.Position,
	}
	if o.Result != nil {
		ro.Method = o.Method.String()
		ro.Locations = o.Points
	}
	return &ro
}

func createRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func createStorage(config *StorageConfig) (storage.Store, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dbPath := config.DataDirectory
	if dbPath == "" {
		dbPath = storageDir
	}
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(wd, dbPath)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	return storage.NewSqliteStore(filepath.Join(dbPath, storageFile)), nil
}
