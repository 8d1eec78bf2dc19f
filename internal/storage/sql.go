package storage

import (
	_ "embed"
)

const (
	insertRunSQL = `
INSERT INTO runs (id,
                  start_time,
                  decoder_path,
                  captures,
                  config)
VALUES (?, ?, ?, ?, ?)`

	finishRunSQL = `
UPDATE runs
SET finish_time  = ?,
    outcome      = ?,
    status       = ?,
    method       = ?,
    message      = ?,
    decoder_exit = ?
WHERE id = ?`

	insertLocationSQL = `
INSERT INTO locations (run_id,
                       idx,
                       x,
                       y)
VALUES (?, ?, ?, ?)`

	insertTelemetrySQL = `
INSERT INTO telemetry (run_id,
                       timestamp,
                       buffcnt,
                       latitude,
                       longitude,
                       height,
                       num_sats,
                       gdop,
                       clock_bias,
                       elapsed_time)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectRunSQL = `
SELECT id,
       start_time,
       finish_time,
       decoder_path,
       captures,
       config,
       outcome,
       status,
       method,
       message,
       decoder_exit
FROM runs
WHERE id = ?`

	selectRunsSQL = `
SELECT id,
       start_time,
       finish_time,
       decoder_path,
       captures,
       config,
       outcome,
       status,
       method,
       message,
       decoder_exit
FROM runs
ORDER BY start_time, id`

	selectLocationsSQL = `
SELECT x,
       y
FROM locations
WHERE run_id = ?
ORDER BY idx`

	selectTelemetrySQL = `
SELECT timestamp,
       buffcnt,
       latitude,
       longitude,
       height,
       num_sats,
       gdop,
       clock_bias,
       elapsed_time
FROM telemetry
WHERE run_id = ?
ORDER BY id DESC
LIMIT 1`
)

//go:embed schema.sql
var schemaSQL string
