// Package featurelist stores resolved peaks in an SQLite database
package featurelist

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/524D/mzpeaks/internal/resolver"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	raw_file TEXT NOT NULL,
	resolver TEXT NOT NULL,
	created TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS features (
	id INTEGER PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES runs(id),
	chromatogram INTEGER NOT NULL,
	start_scan INTEGER NOT NULL,
	end_scan INTEGER NOT NULL,
	mz DOUBLE NOT NULL,
	rt DOUBLE NOT NULL,
	height DOUBLE NOT NULL,
	area DOUBLE NOT NULL,
	duration DOUBLE NOT NULL,
	sn DOUBLE NOT NULL,
	fragment_scan INTEGER
);

CREATE INDEX IF NOT EXISTS features_run ON features(run_id);
`

// Run is one resolve of one raw data file
type Run struct {
	ID       uuid.UUID
	RawFile  string
	Resolver string
	Created  time.Time
}

// Feature is a stored peak
type Feature struct {
	RunID        uuid.UUID
	Chromatogram int // Index of the chromatogram in the run
	StartScan    int
	EndScan      int
	Mz           float64
	RT           float64
	Height       float64
	Area         float64
	Duration     float64
	SN           float64
	FragmentScan int // 0 for none
}

// FeatureFromPeak converts a resolved peak of chromatogram chromIndex
func FeatureFromPeak(chromIndex int, p *resolver.ResolvedPeak) Feature {
	nums := p.ScanNumbers()
	return Feature{
		Chromatogram: chromIndex,
		StartScan:    nums[0],
		EndScan:      nums[len(nums)-1],
		Mz:           p.Mz,
		RT:           p.RT,
		Height:       p.Height,
		Area:         p.Area,
		Duration:     p.Duration(),
		SN:           p.SN,
		FragmentScan: p.FragmentScan,
	}
}

// Store is a feature list database. Writes go through one RunWriter at
// a time.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open feature list: %w", err)
	}
	// One connection: there is a single writer and WAL needs no more
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close feature list: %w", err)
	}
	return nil
}

// RunWriter adds the features of one run inside a single transaction
type RunWriter struct {
	run  Run
	tx   *sql.Tx
	stmt *sql.Stmt
	n    int
}

// BeginRun starts a new run. The run only becomes visible after Commit.
func (s *Store) BeginRun(rawFile, resolverName string) (*RunWriter, error) {
	run := Run{
		ID:       uuid.New(),
		RawFile:  rawFile,
		Resolver: resolverName,
		Created:  time.Now().UTC(),
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin run: %w", err)
	}
	_, err = tx.Exec(`INSERT INTO runs (id, raw_file, resolver, created) VALUES (?, ?, ?, ?)`,
		run.ID.String(), run.RawFile, run.Resolver, run.Created.Format(time.RFC3339Nano))
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO features (
			run_id, chromatogram, start_scan, end_scan, mz, rt,
			height, area, duration, sn, fragment_scan
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to prepare feature statement: %w", err)
	}
	return &RunWriter{run: run, tx: tx, stmt: stmt}, nil
}

// Run returns the run being written
func (w *RunWriter) Run() Run {
	return w.run
}

// Count returns the number of features added
func (w *RunWriter) Count() int {
	return w.n
}

// Add stores the peaks of one chromatogram
func (w *RunWriter) Add(chromIndex int, peaks []resolver.ResolvedPeak) error {
	for i := range peaks {
		f := FeatureFromPeak(chromIndex, &peaks[i])
		var frag interface{}
		if f.FragmentScan != 0 {
			frag = f.FragmentScan
		}
		_, err := w.stmt.Exec(
			w.run.ID.String(),
			f.Chromatogram,
			f.StartScan,
			f.EndScan,
			f.Mz,
			f.RT,
			f.Height,
			f.Area,
			f.Duration,
			f.SN,
			frag,
		)
		if err != nil {
			return fmt.Errorf("failed to insert feature: %w", err)
		}
		w.n++
	}
	return nil
}

// Commit makes the run and its features permanent
func (w *RunWriter) Commit() error {
	w.stmt.Close()
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// Rollback discards the run
func (w *RunWriter) Rollback() error {
	w.stmt.Close()
	return w.tx.Rollback()
}

// Runs returns all committed runs, oldest first
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`SELECT id, raw_file, resolver, created FROM runs ORDER BY created, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var id, created string
		if err := rows.Scan(&id, &r.RawFile, &r.Resolver, &created); err != nil {
			return nil, err
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		if r.Created, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("run %s created %q: %w", id, created, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Features returns the features of a run in insertion order
func (s *Store) Features(runID uuid.UUID) ([]Feature, error) {
	rows, err := s.db.Query(`
		SELECT chromatogram, start_scan, end_scan, mz, rt, height, area,
			duration, sn, fragment_scan
		FROM features WHERE run_id = ? ORDER BY id`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query features: %w", err)
	}
	defer rows.Close()

	var features []Feature
	for rows.Next() {
		f := Feature{RunID: runID}
		var frag sql.NullInt64
		err := rows.Scan(&f.Chromatogram, &f.StartScan, &f.EndScan, &f.Mz, &f.RT,
			&f.Height, &f.Area, &f.Duration, &f.SN, &frag)
		if err != nil {
			return nil, err
		}
		f.FragmentScan = int(frag.Int64)
		features = append(features, f)
	}
	return features, rows.Err()
}
