package journal

// Schema creates the ledger tables. Quantities are stored as TEXT so
// decimal values round-trip exactly.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id   TEXT PRIMARY KEY,
	mode     TEXT NOT NULL,
	state    TEXT NOT NULL,
	started  TIMESTAMP,
	ended    TIMESTAMP,
	steps    INTEGER NOT NULL,
	failure  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS steps (
	run_id   TEXT NOT NULL,
	time     TIMESTAMP NOT NULL,
	actions  INTEGER NOT NULL,
	results  INTEGER NOT NULL,
	partial  BOOLEAN NOT NULL,
	critical BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_steps_run_time ON steps(run_id, time);

CREATE TABLE IF NOT EXISTS positions (
	run_id   TEXT NOT NULL,
	time     TIMESTAMP NOT NULL,
	venue    TEXT NOT NULL,
	asset    TEXT NOT NULL,
	kind     TEXT NOT NULL,
	quantity TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_run_time ON positions(run_id, time);

CREATE TABLE IF NOT EXISTS results (
	run_id         TEXT NOT NULL,
	time           TIMESTAMP NOT NULL,
	instruction_id TEXT NOT NULL,
	venue          TEXT NOT NULL,
	asset          TEXT NOT NULL,
	kind           TEXT NOT NULL,
	status         TEXT NOT NULL,
	requested      TEXT NOT NULL,
	filled         TEXT NOT NULL,
	price          TEXT NOT NULL,
	fee            TEXT NOT NULL,
	reason         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_results_run_time ON results(run_id, time);
`
