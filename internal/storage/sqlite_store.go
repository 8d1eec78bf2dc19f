package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/jamming-locator/internal/geo"
	"github.com/roman-kulish/jamming-locator/internal/telemetry"
)

var _ Store = (*SqliteStore)(nil)

// ErrRunNotFound is returned when the ledger has no run with the requested identifier
var ErrRunNotFound = errors.New("run not found")

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a run ledger backed by the Sqlite database at dbPath.
// The database and its schema are created on first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=1"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, schemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateRun(ctx context.Context, id uuid.UUID, decoderPath string, captures []string, config any) (err error) {
	configData, err := toConfigData(config)
	if err != nil {
		return
	}

	capturesData, err := json.Marshal(captures)
	if err != nil {
		return fmt.Errorf("marshaling captures: %w", err)
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertRunSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx, id.String(), time.Now().UTC(), decoderPath, string(capturesData), configData); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

func (s *SqliteStore) FinishRun(ctx context.Context, id uuid.UUID, finished time.Time, outcome *RunOutcome) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	result, err := tx.ExecContext(ctx, finishRunSQL,
		finished.UTC(),
		toNullString(outcome.Type),
		toNullString(outcome.Status),
		toNullString(outcome.Method),
		toNullString(outcome.Message),
		toNullInt(outcome.DecoderExit),
		id.String(),
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	for i, p := range outcome.Locations {
		if _, err = tx.ExecContext(ctx, insertLocationSQL, id.String(), i, p.X, p.Y); err != nil {
			return fmt.Errorf("inserting location: %w", err)
		}
	}

	if outcome.Position != nil {
		data := toTelemetryData(id, outcome.Position)

		if _, err = tx.ExecContext(
			ctx,
			insertTelemetrySQL,
			data.RunID,
			data.Timestamp,
			data.BuffCnt,
			data.Latitude,
			data.Longitude,
			data.Height,
			data.NumSats,
			data.GDOP,
			data.ClockBias,
			data.ElapsedTime,
		); err != nil {
			return fmt.Errorf("inserting telemetry: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) Run(ctx context.Context, id uuid.UUID) (run *Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectRunSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var data runData
	if err = scanRun(stmt.QueryRowContext(ctx, id.String()), &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("%w: %s", ErrRunNotFound, id)
			return
		}
		err = fmt.Errorf("scanning run: %w", err)
		return
	}

	return s.toRun(ctx, db, &data)
}

func (s *SqliteStore) Runs(ctx context.Context) (runs []*Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectRunsSQL)
	if err != nil {
		err = fmt.Errorf("querying runs: %w", err)
		return
	}

	var batch []runData
	for rows.Next() {
		var data runData
		if err = scanRun(rows, &data); err != nil {
			_ = rows.Close()
			err = fmt.Errorf("scanning run: %w", err)
			return
		}
		batch = append(batch, data)
	}
	if err = rows.Err(); err != nil {
		_ = rows.Close()
		err = fmt.Errorf("iterating runs: %w", err)
		return
	}
	if err = rows.Close(); err != nil {
		err = fmt.Errorf("closing rows: %w", err)
		return
	}

	for i := range batch {
		var run *Run
		if run, err = s.toRun(ctx, db, &batch[i]); err != nil {
			return
		}
		runs = append(runs, run)
	}
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var errs []error

		if s.writeDB != nil {
			errs = append(errs, s.writeDB.Close())
			s.writeDB = nil
		}

		if s.readDB != nil {
			errs = append(errs, s.readDB.Close())
			s.readDB = nil
		}

		s.closeErr = errors.Join(errs...)
	})

	return s.closeErr
}

func scanRun(row interface{ Scan(dest ...any) error }, data *runData) error {
	return row.Scan(
		&data.ID,
		&data.StartTime,
		&data.FinishTime,
		&data.DecoderPath,
		&data.Captures,
		&data.Config,
		&data.Outcome,
		&data.Status,
		&data.Method,
		&data.Message,
		&data.DecoderExit,
	)
}

func (s *SqliteStore) toRun(ctx context.Context, db *sql.DB, data *runData) (*Run, error) {
	id, err := uuid.Parse(data.ID)
	if err != nil {
		return nil, fmt.Errorf("parsing run ID %q: %w", data.ID, err)
	}

	run := Run{
		ID:          id,
		StartTime:   data.StartTime.UTC(),
		DecoderPath: data.DecoderPath,
	}

	if err = json.Unmarshal([]byte(data.Captures), &run.Captures); err != nil {
		return nil, fmt.Errorf("unmarshaling captures: %w", err)
	}
	if data.Config.Valid {
		run.Config = &data.Config.String
	}
	if !data.FinishTime.Valid {
		return &run, nil
	}

	finished := data.FinishTime.Time.UTC()
	run.FinishTime = &finished
	run.Outcome = &RunOutcome{
		Type:    data.Outcome.String,
		Status:  data.Status.String,
		Method:  data.Method.String,
		Message: data.Message.String,
	}
	if data.DecoderExit.Valid {
		code := int(data.DecoderExit.Int64)
		run.Outcome.DecoderExit = &code
	}

	if run.Outcome.Locations, err = s.locations(ctx, db, data.ID); err != nil {
		return nil, err
	}
	if run.Outcome.Position, err = s.position(ctx, db, data.ID); err != nil {
		return nil, err
	}

	return &run, nil
}

func (s *SqliteStore) locations(ctx context.Context, db *sql.DB, runID string) (points []geo.Point, err error) {
	rows, err := db.QueryContext(ctx, selectLocationsSQL, runID)
	if err != nil {
		err = fmt.Errorf("querying locations: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var p geo.Point
		if err = rows.Scan(&p.X, &p.Y); err != nil {
			err = fmt.Errorf("scanning location: %w", err)
			return
		}
		points = append(points, p)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating locations: %w", err)
	}
	return
}

func (s *SqliteStore) position(ctx context.Context, db *sql.DB, runID string) (*telemetry.Position, error) {
	data := telemetryData{RunID: runID}

	err := db.QueryRowContext(ctx, selectTelemetrySQL, runID).Scan(
		&data.Timestamp,
		&data.BuffCnt,
		&data.Latitude,
		&data.Longitude,
		&data.Height,
		&data.NumSats,
		&data.GDOP,
		&data.ClockBias,
		&data.ElapsedTime,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning telemetry: %w", err)
	}

	return fromTelemetryData(&data), nil
}
