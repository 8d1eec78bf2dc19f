package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roman-kulish/jamming-locator/internal/telemetry"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if rErr := rb.Rollback(); rErr != nil && !errors.Is(rErr, sql.ErrTxDone) && *err == nil {
		*err = rErr
	}
}

func toConfigData(config any) (data sql.NullString, err error) {
	if config == nil {
		return
	}

	switch v := config.(type) {
	case string:
		data.String = v

	case []byte:
		data.String = string(v)

	default:
		var p []byte
		if p, err = json.Marshal(config); err != nil {
			err = fmt.Errorf("marshaling config: %w", err)
			return
		}
		data.String = string(p)
	}

	data.Valid = true
	return
}

func toTelemetryData(runID uuid.UUID, p *telemetry.Position) *telemetryData {
	fix := p.HasFix()

	return &telemetryData{
		RunID:     runID.String(),
		Timestamp: p.Timestamp.UTC(),
		BuffCnt:   p.BuffCnt,

		Latitude:  toNullFloat(p.Latitude, fix),
		Longitude: toNullFloat(p.Longitude, fix),
		Height:    toNullFloat(p.Height, true),
		NumSats: sql.NullInt64{
			Int64: int64(p.NumSats),
			Valid: true,
		},
		GDOP:      toNullFloat(p.GDOP, true),
		ClockBias: toNullFloat(p.ClockBias, true),
		ElapsedTime: sql.NullString{
			String: string(p.ElapsedTime),
			Valid:  p.ElapsedTime != "",
		},
	}
}

func fromTelemetryData(data *telemetryData) *telemetry.Position {
	return &telemetry.Position{
		Timestamp:   data.Timestamp.UTC(),
		BuffCnt:     data.BuffCnt,
		Latitude:    data.Latitude.Float64,
		Longitude:   data.Longitude.Float64,
		Height:      data.Height.Float64,
		NumSats:     int(data.NumSats.Int64),
		GDOP:        data.GDOP.Float64,
		ClockBias:   data.ClockBias.Float64,
		ElapsedTime: telemetry.Elapsed(data.ElapsedTime.String),
	}
}

func toNullFloat(f float64, valid bool) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: valid}
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toNullInt[T int | int64](v *T) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
