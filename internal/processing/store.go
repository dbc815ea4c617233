// Package processing keeps the pipeline's run history: which pipeline
// invocations ran, which packets they decoded (by content digest, for
// duplicate detection across overlapping telemetry deliveries), and which
// product files were published. The history lives in one SQLite file whose
// schema is managed by embedded migrations.
package processing

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/i4Ds/STIXCore-sub001/internal/scet"
	"github.com/i4Ds/STIXCore-sub001/internal/timeutil"
)

// Store is an open history database.
type Store struct {
	*sql.DB
	clock timeutil.Clock
}

// Open opens the history database at path, creating it if needed, and
// brings its schema up to date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db %s: %w", path, err)
	}
	s := &Store{DB: db, clock: timeutil.RealClock{}}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// SetClock replaces the store's clock; tests pin timestamps with it.
func (s *Store) SetClock(c timeutil.Clock) { s.clock = c }

// Run is one pipeline invocation. CompletedAt stays zero and Error empty
// until the run finishes.
type Run struct {
	ID          string
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string
}

// StartRun records the start of a pipeline invocation and returns it.
func (s *Store) StartRun() (Run, error) {
	run := Run{ID: uuid.New().String(), StartedAt: s.clock.Now().UTC()}
	_, err := s.Exec(`INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		run.ID, run.StartedAt.UnixNano())
	if err != nil {
		return Run{}, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run finished, recording runErr's message when the run
// failed.
func (s *Store) CompleteRun(runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := s.Exec(`UPDATE runs SET completed_at = ?, error = ? WHERE id = ?`,
		s.clock.Now().UTC().UnixNano(), msg, runID)
	if err != nil {
		return fmt.Errorf("complete run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete run %s: %w", runID, err)
	}
	if n == 0 {
		return fmt.Errorf("complete run %s: no such run", runID)
	}
	return nil
}

// Run fetches one run by id.
func (s *Store) Run(runID string) (Run, error) {
	var (
		run       Run
		startedAt int64
		completed sql.NullInt64
		errMsg    sql.NullString
	)
	err := s.QueryRow(`SELECT id, started_at, completed_at, error FROM runs WHERE id = ?`, runID).
		Scan(&run.ID, &startedAt, &completed, &errMsg)
	if err != nil {
		return Run{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	run.StartedAt = time.Unix(0, startedAt).UTC()
	if completed.Valid {
		run.CompletedAt = time.Unix(0, completed.Int64).UTC()
	}
	run.Error = errMsg.String
	return run, nil
}

// SeenPacket records one decoded packet under a run. It reports true when
// the digest was not in the history yet; a packet already seen by an
// earlier delivery keeps its original row and reports false.
func (s *Store) SeenPacket(runID string, digest uint64, at scet.SCET, serviceType, serviceSubtype, pi1 int) (bool, error) {
	res, err := s.Exec(`
		INSERT OR IGNORE INTO seen_packets
			(digest, run_id, coarse, fine, service_type, service_subtype, pi1, seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(digest), runID, int64(at.Coarse), int(at.Fine),
		serviceType, serviceSubtype, pi1, s.clock.Now().UTC().UnixNano())
	if err != nil {
		return false, fmt.Errorf("record packet %016x: %w", digest, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record packet %016x: %w", digest, err)
	}
	return n > 0, nil
}

// WasSeen reports whether a packet digest is already in the history.
func (s *Store) WasSeen(digest uint64) (bool, error) {
	var exists bool
	err := s.QueryRow(`SELECT EXISTS(SELECT 1 FROM seen_packets WHERE digest = ?)`, int64(digest)).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check packet %016x: %w", digest, err)
	}
	return exists, nil
}

// Published is one product file the pipeline emitted.
type Published struct {
	File        string
	RunID       string
	PublishedAt time.Time
}

// RecordPublished records a product file against a run. Publishing the same
// file again, typically after reprocessing, replaces the earlier record.
func (s *Store) RecordPublished(file, runID string) error {
	_, err := s.Exec(`INSERT OR REPLACE INTO published (file, run_id, published_at) VALUES (?, ?, ?)`,
		file, runID, s.clock.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("record published %s: %w", file, err)
	}
	return nil
}

// ListPublished returns all published files, oldest first.
func (s *Store) ListPublished() ([]Published, error) {
	rows, err := s.Query(`SELECT file, run_id, published_at FROM published ORDER BY published_at ASC, file ASC`)
	if err != nil {
		return nil, fmt.Errorf("list published: %w", err)
	}
	defer rows.Close()

	var out []Published
	for rows.Next() {
		var (
			p  Published
			at int64
		)
		if err := rows.Scan(&p.File, &p.RunID, &at); err != nil {
			return nil, fmt.Errorf("list published: %w", err)
		}
		p.PublishedAt = time.Unix(0, at).UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list published: %w", err)
	}
	return out, nil
}
