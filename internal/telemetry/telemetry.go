package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// elapsedUnknown is reported when a record carries no elapsed time
const elapsedUnknown = "N/A"

// Position is the receiver fix streamed by the GNSS decoder
type Position struct {
	Timestamp   time.Time `json:"timestamp"`    // When the record was received
	BuffCnt     int64     `json:"buffcnt"`      // Decoder buffer counter (sample position in the capture)
	Latitude    float64   `json:"lat"`          // Latitude in degrees
	Longitude   float64   `json:"lon"`          // Longitude in degrees
	Height      float64   `json:"hgt"`          // Ellipsoidal height in meters
	NumSats     int       `json:"nsat"`         // Number of satellites used in the fix
	GDOP        float64   `json:"gdop"`         // Geometric dilution of precision
	ClockBias   float64   `json:"clk_bias"`     // Receiver clock bias
	ElapsedTime Elapsed   `json:"elapsed_time"` // Decoder elapsed time, as reported
}

// HasFix reports whether the position carries non-zero coordinates
func (p *Position) HasFix() bool {
	return p.Latitude != 0 || p.Longitude != 0
}

// StatusText renders the one-line progress status: [elapsed, lat, lon, buffcnt]
func (p *Position) StatusText() string {
	elapsed := p.ElapsedTime.String()
	if elapsed == "" {
		elapsed = elapsedUnknown
	}
	return fmt.Sprintf("[%s, %.6f, %.6f, %d]", elapsed, p.Latitude, p.Longitude, p.BuffCnt)
}

// Elapsed holds the decoder's elapsed time, which arrives either as a string or a number
type Elapsed string

func (e Elapsed) String() string {
	return string(e)
}

func (e *Elapsed) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("telemetry.Elapsed: %w", err)
		}
		*e = Elapsed(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("telemetry.Elapsed: must be a string or a number: %w", err)
	}
	*e = Elapsed(n.String())
	return nil
}

// Report is the JSON document posted by the decoder
type Report struct {
	Position    *ReportPosition `json:"position"`
	ElapsedTime Elapsed         `json:"elapsed_time"`
}

// ReportPosition is the "position" object of a Report
type ReportPosition struct {
	BuffCnt   int64   `json:"buffcnt"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Height    float64 `json:"hgt"`
	NumSats   int     `json:"nsat"`
	GDOP      float64 `json:"gdop"`
	ClockBias float64 `json:"clk_bias"`
}

// ParseReport decodes a decoder report. Unknown fields are ignored and an empty
// position object is treated as absent.
func ParseReport(b []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decoding telemetry report: %w", err)
	}

	if r.Position != nil {
		var fields struct {
			Position map[string]json.RawMessage `json:"position"`
		}
		if err := json.Unmarshal(b, &fields); err != nil {
			return nil, fmt.Errorf("decoding telemetry report: %w", err)
		}
		if len(fields.Position) == 0 {
			r.Position = nil
		}
	}

	return &r, nil
}

// Apply merges the report into prev and returns the new position. A report without a
// position object only refreshes the elapsed time of the previous fix.
func (r *Report) Apply(prev *Position, now time.Time) Position {
	var next Position
	if prev != nil {
		next = *prev
	}

	if r.Position != nil {
		next.BuffCnt = r.Position.BuffCnt
		next.Latitude = r.Position.Latitude
		next.Longitude = r.Position.Longitude
		next.Height = r.Position.Height
		next.NumSats = r.Position.NumSats
		next.GDOP = r.Position.GDOP
		next.ClockBias = r.Position.ClockBias
	}

	next.ElapsedTime = r.ElapsedTime
	if next.ElapsedTime == "" {
		next.ElapsedTime = elapsedUnknown
	}
	next.Timestamp = now.UTC()

	return next
}
