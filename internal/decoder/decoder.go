package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the decoder executable cannot be located
	ErrNotFound = errors.New("decoder executable not found")

	// ErrSpawn is returned when the decoder process could not be started
	ErrSpawn = errors.New("decoder could not be started")

	// ErrExit is returned when the decoder exited with a non-zero code or was killed
	ErrExit = errors.New("decoder exited with error")
)

// Locate resolves the decoder executable. Bare names are looked up in PATH,
// anything containing a path separator must exist as a regular file.
func Locate(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrNotFound)
	}

	if !strings.ContainsRune(path, os.PathSeparator) && !strings.ContainsRune(path, '/') {
		binPath, err := exec.LookPath(path)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return binPath, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}

	return path, nil
}

// Result describes a finished decoder process
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// WithLogger sets the logger for the runner
func WithLogger(logger *slog.Logger) func(r *Runner) {
	return func(r *Runner) {
		r.logger = logger.With(slog.String("component", "decoder"))
	}
}

// WithArgs sets extra arguments placed before the capture file
func WithArgs(args ...string) func(r *Runner) {
	return func(r *Runner) {
		r.args = args
	}
}

// Runner starts the external GNSS decoder against a capture file and waits for it to exit
type Runner struct {
	path   string
	args   []string
	logger *slog.Logger
}

// NewRunner creates a new Runner for the executable at path
func NewRunner(path string, options ...func(r *Runner)) *Runner {
	r := Runner{
		path:   path,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Path returns the decoder executable path
func (r *Runner) Path() string {
	return r.path
}

// Run invokes "<decoder> <capture>" and blocks until the process exits. There is no
// timeout; cancelling ctx kills the process. Output is captured and only logged when
// the process fails.
func (r *Runner) Run(ctx context.Context, capture string) (*Result, error) {
	args := append(append([]string{}, r.args...), capture)
	cmd := exec.CommandContext(ctx, r.path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Info("starting decoder", slog.String("path", r.path), slog.String("capture", capture))

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	waitErr := cmd.Wait()
	res := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(started),
	}

	if waitErr != nil {
		r.logger.Error("decoder failed",
			slog.Int("exitCode", res.ExitCode),
			slog.Duration("duration", res.Duration),
			slog.String("stdout", strings.TrimSpace(stdout.String())),
			slog.String("stderr", strings.TrimSpace(stderr.String())),
		)

		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return &res, fmt.Errorf("%w: %w: %s", ErrExit, waitErr, msg)
		}
		return &res, fmt.Errorf("%w: %w", ErrExit, waitErr)
	}

	r.logger.Info("decoder finished", slog.Duration("duration", res.Duration))
	return &res, nil
}
