package results

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/volcast/internal/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	created_at      TEXT NOT NULL,
	horizon         INTEGER NOT NULL,
	sequence_length INTEGER NOT NULL,
	seed            INTEGER NOT NULL,
	assets          TEXT NOT NULL,
	steps           INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS step_results (
	run_id             TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	step               INTEGER NOT NULL,
	date               TEXT NOT NULL,
	pred_portfolio_vol REAL NOT NULL,
	true_portfolio_vol REAL NOT NULL,
	payload            BLOB NOT NULL,
	PRIMARY KEY (run_id, step)
);

CREATE INDEX IF NOT EXISTS idx_step_results_run ON step_results(run_id);
`

// Store persists runs and their step results in SQLite. Step rows carry
// the portfolio volatilities as queryable columns plus the full record as
// a msgpack payload.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates a result store on the given database.
func NewStore(db *database.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "result_store").Logger(),
	}
}

// Migrate creates the runs and step_results tables.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply results schema: %w", err)
	}
	return nil
}

// CreateRun registers a new run and returns its generated ID.
func (s *Store) CreateRun(horizon, sequenceLength int, seed int64, assets []string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, created_at, horizon, sequence_length, seed, assets) VALUES (?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339), horizon, sequenceLength, seed, strings.Join(assets, ","),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	s.log.Info().Str("run_id", id).Msg("Created run")
	return id, nil
}

// AppendStep stores one step result and bumps the run's step counter, both
// inside a single transaction.
func (s *Store) AppendStep(runID string, r StepResult) error {
	payload, err := msgpack.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode step result: %w", err)
	}

	return database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO step_results (run_id, step, date, pred_portfolio_vol, true_portfolio_vol, payload) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, r.Step, r.Date, r.PredictedPortfolioVol, r.TruePortfolioVol, payload,
		); err != nil {
			return err
		}
		_, err := tx.Exec(`UPDATE runs SET steps = steps + 1 WHERE id = ?`, runID)
		return err
	})
}

// ListRuns returns all stored runs, newest first.
func (s *Store) ListRuns() ([]RunMeta, error) {
	rows, err := s.db.Query(`SELECT id, created_at, horizon, sequence_length, seed, assets, steps FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunMeta
	for rows.Next() {
		meta, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, meta)
	}
	return runs, rows.Err()
}

// GetRun returns one run's metadata.
func (s *Store) GetRun(id string) (RunMeta, error) {
	row := s.db.QueryRow(`SELECT id, created_at, horizon, sequence_length, seed, assets, steps FROM runs WHERE id = ?`, id)

	meta, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunMeta{}, fmt.Errorf("run %s not found", id)
		}
		return RunMeta{}, err
	}
	return meta, nil
}

// StepsForRun returns the full ordered step-result list of a run.
func (s *Store) StepsForRun(runID string) ([]StepResult, error) {
	rows, err := s.db.Query(`SELECT payload FROM step_results WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load step results: %w", err)
	}
	defer rows.Close()

	var steps []StepResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan step result: %w", err)
		}
		var r StepResult
		if err := msgpack.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("failed to decode step result: %w", err)
		}
		steps = append(steps, r)
	}
	return steps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (RunMeta, error) {
	var meta RunMeta
	var createdAt, assets string
	if err := row.Scan(&meta.ID, &createdAt, &meta.Horizon, &meta.SequenceLength, &meta.Seed, &assets, &meta.Steps); err != nil {
		return RunMeta{}, fmt.Errorf("failed to scan run: %w", err)
	}
	meta.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	meta.Assets = strings.Split(assets, ",")
	return meta, nil
}
