package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/jamming-locator/internal/geo"
	"github.com/roman-kulish/jamming-locator/internal/telemetry"
)

// Run is a single localization run recorded in the ledger
type Run struct {
	ID          uuid.UUID
	StartTime   time.Time
	DecoderPath string
	Captures    []string
	Config      *string

	// FinishTime and Outcome are nil until the run is finished
	FinishTime *time.Time
	Outcome    *RunOutcome
}

// RunOutcome is what a finished run reported
type RunOutcome struct {
	Type        string
	Status      string
	Method      string
	Message     string
	DecoderExit *int
	Locations   []geo.Point
	Position    *telemetry.Position
}

// Store is the ledger of localization runs. Every run is created when it starts and
// finished once it reaches its final state; writes of a single call are atomic.
type Store interface {
	// CreateRun records the start of a run.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - id: Run identifier
	//   - decoderPath: Path of the decoder executable
	//   - captures: Capture files, the primary one first
	//   - config: Optional run configuration. Can be string, []byte, or JSON-serializable object
	CreateRun(ctx context.Context, id uuid.UUID, decoderPath string, captures []string, config any) error

	// FinishRun records the outcome of a run together with the located points and the
	// last telemetry position, in a single transaction.
	FinishRun(ctx context.Context, id uuid.UUID, finished time.Time, outcome *RunOutcome) error

	// Run retrieves a run by its identifier.
	Run(ctx context.Context, id uuid.UUID) (*Run, error)

	// Runs returns all runs ordered by start time.
	Runs(ctx context.Context) ([]*Run, error)

	// Close releases all database connections. It is safe to call Close multiple times.
	Close() error
}
