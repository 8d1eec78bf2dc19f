package storage

import (
	"database/sql"
	"time"
)

type runData struct {
	ID          string
	StartTime   time.Time
	FinishTime  sql.NullTime
	DecoderPath string
	Captures    string
	Config      sql.NullString
	Outcome     sql.NullString
	Status      sql.NullString
	Method      sql.NullString
	Message     sql.NullString
	DecoderExit sql.NullInt64
}

type telemetryData struct {
	RunID       string
	Timestamp   time.Time
	BuffCnt     int64
	Latitude    sql.NullFloat64
	Longitude   sql.NullFloat64
	Height      sql.NullFloat64
	NumSats     sql.NullInt64
	GDOP        sql.NullFloat64
	ClockBias   sql.NullFloat64
	ElapsedTime sql.NullString
}
