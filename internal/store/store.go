// Package store keeps the QC ledger: lag estimates and the outcome of every
// repair run, in a SQLite file.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	qcio "github.com/KyungWonPark/MementoQC/internal/io"
)

// ErrUnknownRun is returned for run ids the ledger has never seen.
var ErrUnknownRun = errors.New("store: unknown repair run")

// Repair outcomes.
const (
	StatusRepaired = "repaired"
	StatusSkipped  = "skipped"
)

// Store is an open ledger.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger at path and migrates it to the latest
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// RecordLags stores lag estimates, replacing earlier ones for the same scan.
func (s *Store) RecordLags(rows []qcio.LagRow, oversampling int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO lag_reports (path, subject, session, centre, machine, lag, oversampling, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			subject = excluded.subject,
			session = excluded.session,
			centre = excluded.centre,
			machine = excluded.machine,
			lag = excluded.lag,
			oversampling = excluded.oversampling,
			computed_at = excluded.computed_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	at := s.timestamp()
	for _, row := range rows {
		if _, err := stmt.Exec(row.Path, row.Subject, row.Session, row.Centre, row.Machine, row.Lag, oversampling, at); err != nil {
			return fmt.Errorf("record lag for %s: %w", row.Path, err)
		}
	}

	return tx.Commit()
}

// Lags returns every stored lag estimate ordered by subject and session.
func (s *Store) Lags() ([]qcio.LagRow, error) {
	rows, err := s.db.Query(`
		SELECT subject, session, centre, machine, path, lag
		FROM lag_reports
		ORDER BY subject, session, path
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []qcio.LagRow
	for rows.Next() {
		var r qcio.LagRow
		if err := rows.Scan(&r.Subject, &r.Session, &r.Centre, &r.Machine, &r.Path, &r.Lag); err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

// Run is one execution of the repair driver.
type Run struct {
	ID        string
	Manifest  string
	Overwrite bool
	Started   string
	Finished  string
	Repaired  int
	Skipped   int
}

// BeginRun registers a new repair run and returns its id.
func (s *Store) BeginRun(manifest string, overwrite bool) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO repair_runs (run_id, manifest, overwrite, started_at) VALUES (?, ?, ?, ?)`,
		id, manifest, overwrite, s.timestamp(),
	)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}

	return id, nil
}

// FinishRun stores the final counts of a run.
func (s *Store) FinishRun(id string, repaired, skipped int) error {
	res, err := s.db.Exec(
		`UPDATE repair_runs SET finished_at = ?, repaired = ?, skipped = ? WHERE run_id = ?`,
		s.timestamp(), repaired, skipped, id,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRun, id)
	}

	return nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(id string) (Run, error) {
	var (
		r        Run
		finished sql.NullString
	)
	err := s.db.QueryRow(`
		SELECT run_id, manifest, overwrite, started_at, finished_at, repaired, skipped
		FROM repair_runs WHERE run_id = ?
	`, id).Scan(&r.ID, &r.Manifest, &r.Overwrite, &r.Started, &finished, &r.Repaired, &r.Skipped)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrUnknownRun, id)
	}
	if err != nil {
		return Run{}, err
	}
	r.Finished = finished.String

	return r, nil
}

// RepairRecord is the outcome of one manifest row.
type RepairRecord struct {
	Subject     string
	Session     string
	Source      string
	Destination string
	Status      string
	Reason      string
	Error       string
}

// RecordRepair appends one outcome to run id.
func (s *Store) RecordRepair(id string, rec RepairRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO repair_records (run_id, subject, session, source, destination, status, reason, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, rec.Subject, rec.Session, rec.Source, rec.Destination, rec.Status, rec.Reason, rec.Error, s.timestamp())
	if err != nil {
		return fmt.Errorf("record repair of sub-%s ses-%s: %w", rec.Subject, rec.Session, err)
	}

	return nil
}

// Repairs returns the outcomes of run id in insertion order.
func (s *Store) Repairs(id string) ([]RepairRecord, error) {
	rows, err := s.db.Query(`
		SELECT subject, session, source, destination, status, reason, error
		FROM repair_records WHERE run_id = ? ORDER BY record_id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RepairRecord
	for rows.Next() {
		var r RepairRecord
		if err := rows.Scan(&r.Subject, &r.Session, &r.Source, &r.Destination, &r.Status, &r.Reason, &r.Error); err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, rows.Err()
}
