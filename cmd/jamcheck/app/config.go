package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/roman-kulish/jamming-locator/internal/iq"
)

type Config struct {
	Path      string
	Threshold float64
	ChunkSize int
	Verbose   bool
}

func NewConfig() *Config {
	return &Config{
		ChunkSize: iq.DefaultChunkSize,
	}
}

// NewConfigFromCLI parses "jamcheck [-chunk size] [-verbose] <file> <threshold>"
func NewConfigFromCLI(args []string, output io.Writer) (*Config, error) {
	c := NewConfig()

	fs := flag.NewFlagSet("jamcheck", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		_, _ = fmt.Fprintln(fs.Output(), "Usage: jamcheck [-chunk size] [-verbose] <file> <threshold>")
		fs.PrintDefaults()
	}

	chunk := fs.String("chunk", "128KiB", "Chunk size in bytes, e.g. 131072 or 128KiB")
	fs.BoolVar(&c.Verbose, "verbose", false, "Print per-chunk power and a power summary")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if fs.NArg() != 2 {
		err = errors.New("a capture file and a threshold are required")
	} else if c.Threshold, err = strconv.ParseFloat(fs.Arg(1), 64); err != nil {
		err = fmt.Errorf("invalid threshold: %s", fs.Arg(1))
	} else if c.Threshold < 0 {
		err = fmt.Errorf("threshold must not be negative: %s", fs.Arg(1))
	} else if c.ChunkSize, err = iq.ParseChunkSize(*chunk); err != nil {
		err = fmt.Errorf("invalid chunk size: %w", err)
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Path = fs.Arg(0)
	return c, nil
}
