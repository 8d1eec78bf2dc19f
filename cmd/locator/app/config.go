package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/jamming-locator/internal/geo"
	"github.com/roman-kulish/jamming-locator/internal/ingest"
	"github.com/roman-kulish/jamming-locator/internal/iq"
	"github.com/roman-kulish/jamming-locator/internal/ranging"
)

const (
	// DefaultPowerThreshold is the chunk power above which a capture counts as jammed,
	// in centered squared-amplitude units
	DefaultPowerThreshold = 5000.0
)

// Config represents the main application configuration
type Config struct {
	Settings    Settings            `yaml:"settings"`
	Listen      string              `yaml:"listen"`
	Decoder     DecoderConfig       `yaml:"decoder"`
	Captures    []string            `yaml:"captures"`
	Antennas    []AntennaConfig     `yaml:"antennas"`
	Calibration ranging.Calibration `yaml:"calibration"`
	Detection   DetectionConfig     `yaml:"detection"`
	Metrics     MetricsConfig       `yaml:"metrics"`
	Storage     StorageConfig       `yaml:"storage"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// Level returns the configured log level, info when unset
func (s Settings) Level() (slog.Level, error) {
	var level slog.Level
	if s.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level '%s'", s.LogLevel)
	}
	return level, nil
}

// DecoderConfig represents the external GNSS decoder
type DecoderConfig struct {
	Path string   `yaml:"path"`
	Args []string `yaml:"args"`
}

// AntennaConfig is one antenna given either in local meters (x, y) or geodetic degrees (lat, lon)
type AntennaConfig struct {
	Name string   `yaml:"name"`
	X    *float64 `yaml:"x"`
	Y    *float64 `yaml:"y"`
	Lat  *float64 `yaml:"lat"`
	Lon  *float64 `yaml:"lon"`
}

func (a *AntennaConfig) isLocal() bool {
	return a.X != nil || a.Y != nil
}

func (a *AntennaConfig) isGeodetic() bool {
	return a.Lat != nil || a.Lon != nil
}

// DetectionConfig represents the chunked power analysis run over every capture
type DetectionConfig struct {
	Enabled   bool      `yaml:"enabled"`
	Threshold float64   `yaml:"threshold"`
	ChunkSize ChunkSize `yaml:"chunkSize"`
}

// MetricsConfig enables Prometheus metrics on the telemetry listener
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// StorageConfig represents the run ledger settings
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DataDirectory string `yaml:"dataDirectory"`
}

// ChunkSize is a byte size written in human units, e.g. "128KiB"
type ChunkSize int

func (c *ChunkSize) UnmarshalYAML(value *yaml.Node) error {
	size, err := iq.ParseChunkSize(value.Value)
	if err != nil {
		return fmt.Errorf("app.ChunkSize: %w", err)
	}

	*c = ChunkSize(size)
	return nil
}

func (c ChunkSize) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

func (c ChunkSize) String() string {
	return humanize.IBytes(uint64(c))
}

// NewConfig returns a configuration with defaults applied
func NewConfig() *Config {
	return &Config{
		Listen:      ingest.DefaultAddress,
		Calibration: ranging.DefaultCalibration(),
		Detection: DetectionConfig{
			Enabled:   true,
			Threshold: DefaultPowerThreshold,
			ChunkSize: iq.DefaultChunkSize,
		},
	}
}

// LoadConfig reads the YAML configuration file at path over the defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	c := NewConfig()
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err = c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration and reports every problem found
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Settings.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.Decoder.Path == "" {
		errs = append(errs, errors.New("decoder path is required"))
	}
	if len(c.Captures) == 0 {
		errs = append(errs, errors.New("at least one capture file is required"))
	}
	for i, path := range c.Captures {
		if strings.TrimSpace(path) == "" {
			errs = append(errs, fmt.Errorf("capture %d: empty path", i))
		}
	}

	if _, err := c.AntennaSet(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Calibration.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("calibration: %w", err))
	}

	if c.Detection.Enabled {
		if c.Detection.Threshold <= iq.SilencePower {
			errs = append(errs, fmt.Errorf("detection threshold must be above %g, the power of a silent capture, got %g",
				iq.SilencePower, c.Detection.Threshold))
		}
		if c.Detection.ChunkSize < 2 || c.Detection.ChunkSize%2 != 0 {
			errs = append(errs, fmt.Errorf("detection chunk size must be an even number of bytes, got %d", c.Detection.ChunkSize))
		}
	}

	return errors.Join(errs...)
}

// AntennaSet converts the configured antennas into local positions. Antennas must all be
// local or all geodetic; geodetic antennas are projected around the first one.
func (c *Config) AntennaSet() ([]geo.Antenna, error) {
	if len(c.Antennas) == 0 {
		return nil, fmt.Errorf("%w: no antennas configured", geo.ErrTooFewAntennas)
	}

	var local, geodetic int
	for i := range c.Antennas {
		a := &c.Antennas[i]

		switch {
		case a.isLocal() && a.isGeodetic():
			return nil, fmt.Errorf("antenna %d: both x/y and lat/lon given", i)
		case a.isLocal():
			if a.X == nil || a.Y == nil {
				return nil, fmt.Errorf("antenna %d: both x and y are required", i)
			}
			local++
		case a.isGeodetic():
			if a.Lat == nil || a.Lon == nil {
				return nil, fmt.Errorf("antenna %d: both lat and lon are required", i)
			}
			geodetic++
		default:
			return nil, fmt.Errorf("antenna %d: no position given", i)
		}
	}

	if local > 0 && geodetic > 0 {
		return nil, errors.New("antennas must all use x/y or all use lat/lon")
	}

	names := make([]string, len(c.Antennas))
	for i, a := range c.Antennas {
		names[i] = a.Name
		if names[i] == "" {
			names[i] = fmt.Sprintf("ANT%d", i)
		}
	}

	var antennas []geo.Antenna
	if geodetic > 0 {
		coords := make([]geo.Geodetic, len(c.Antennas))
		for i, a := range c.Antennas {
			coords[i] = geo.Geodetic{Latitude: *a.Lat, Longitude: *a.Lon}
		}

		var err error
		if antennas, err = geo.AntennasFromGeodetic(names, coords); err != nil {
			return nil, err
		}
	} else {
		for i, a := range c.Antennas {
			antennas = append(antennas, geo.Antenna{Name: names[i], Position: geo.Point{X: *a.X, Y: *a.Y}})
		}
	}

	if err := geo.ValidateAntennas(antennas); err != nil {
		return nil, err
	}
	return antennas, nil
}
