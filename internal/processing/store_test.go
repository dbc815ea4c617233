package processing

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/i4Ds/STIXCore-sub001/internal/monitoring"
	"github.com/i4Ds/STIXCore-sub001/internal/scet"
	"github.com/i4Ds/STIXCore-sub001/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

// newStore opens a history store in a temp dir with a pinned clock.
func newStore(t *testing.T) (*Store, *timeutil.MockClock) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open history store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	clock := timeutil.NewMockClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	s.SetClock(clock)
	return s, clock
}

func TestOpenRunsMigrations(t *testing.T) {
	s, _ := newStore(t)

	version, dirty, err := s.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 {
		t.Errorf("expected schema version 2, got %d", version)
	}
	if dirty {
		t.Error("database should not be dirty after Open")
	}
}

func TestRunLifecycle(t *testing.T) {
	s, clock := newStore(t)
	started := clock.Now()

	run, err := s.StartRun()
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if run.ID == "" {
		t.Fatal("StartRun returned empty run id")
	}
	if !run.StartedAt.Equal(started) {
		t.Errorf("expected StartedAt %v, got %v", started, run.StartedAt)
	}

	clock.Advance(90 * time.Second)
	if err := s.CompleteRun(run.ID, nil); err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}

	loaded, err := s.Run(run.ID)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !loaded.StartedAt.Equal(started) {
		t.Errorf("expected StartedAt %v, got %v", started, loaded.StartedAt)
	}
	if !loaded.CompletedAt.Equal(started.Add(90 * time.Second)) {
		t.Errorf("expected CompletedAt %v, got %v", started.Add(90*time.Second), loaded.CompletedAt)
	}
	if loaded.Error != "" {
		t.Errorf("expected empty error for clean run, got %q", loaded.Error)
	}
}

func TestCompleteRunRecordsError(t *testing.T) {
	s, _ := newStore(t)

	run, err := s.StartRun()
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	runErr := errors.New("3 of 120 packets failed to decode")
	if err := s.CompleteRun(run.ID, runErr); err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}

	loaded, err := s.Run(run.ID)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if loaded.Error != runErr.Error() {
		t.Errorf("expected error %q, got %q", runErr.Error(), loaded.Error)
	}
}

func TestCompleteRunUnknownID(t *testing.T) {
	s, _ := newStore(t)

	err := s.CompleteRun("does-not-exist", nil)
	if err == nil {
		t.Fatal("expected error completing unknown run")
	}
	if !strings.Contains(err.Error(), "no such run") {
		t.Errorf("expected 'no such run' in error, got %q", err.Error())
	}
}

func TestSeenPacketDedup(t *testing.T) {
	s, _ := newStore(t)

	run, err := s.StartRun()
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	at := scet.SCET{Coarse: 700000000, Fine: 1234}
	fresh, err := s.SeenPacket(run.ID, 0xDEADBEEF, at, 21, 6, 30)
	if err != nil {
		t.Fatalf("SeenPacket failed: %v", err)
	}
	if !fresh {
		t.Error("first sighting of a digest should report fresh")
	}

	again, err := s.SeenPacket(run.ID, 0xDEADBEEF, at, 21, 6, 30)
	if err != nil {
		t.Fatalf("second SeenPacket failed: %v", err)
	}
	if again {
		t.Error("repeated digest should not report fresh")
	}

	seen, err := s.WasSeen(0xDEADBEEF)
	if err != nil {
		t.Fatalf("WasSeen failed: %v", err)
	}
	if !seen {
		t.Error("WasSeen should report true for recorded digest")
	}

	seen, err = s.WasSeen(0xCAFE)
	if err != nil {
		t.Fatalf("WasSeen failed: %v", err)
	}
	if seen {
		t.Error("WasSeen should report false for unrecorded digest")
	}
}

func TestSeenPacketHighBitDigest(t *testing.T) {
	s, _ := newStore(t)

	run, err := s.StartRun()
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	// Digests above 1<<63 must survive the signed column roundtrip.
	const digest = uint64(0xFFFFFFFF00000001)
	fresh, err := s.SeenPacket(run.ID, digest, scet.SCET{}, 3, 25, -1)
	if err != nil {
		t.Fatalf("SeenPacket failed: %v", err)
	}
	if !fresh {
		t.Error("first sighting should report fresh")
	}

	seen, err := s.WasSeen(digest)
	if err != nil {
		t.Fatalf("WasSeen failed: %v", err)
	}
	if !seen {
		t.Error("high-bit digest should be found after recording")
	}

	again, err := s.SeenPacket(run.ID, digest, scet.SCET{}, 3, 25, -1)
	if err != nil {
		t.Fatalf("second SeenPacket failed: %v", err)
	}
	if again {
		t.Error("repeated high-bit digest should not report fresh")
	}
}

func TestRecordPublishedReplaces(t *testing.T) {
	s, clock := newStore(t)

	run1, err := s.StartRun()
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if err := s.RecordPublished("solo_L1_stix-ql-lightcurve_20240301.fits", run1.ID); err != nil {
		t.Fatalf("RecordPublished failed: %v", err)
	}

	clock.Advance(time.Hour)
	if err := s.RecordPublished("solo_L1_stix-ql-background_20240301.fits", run1.ID); err != nil {
		t.Fatalf("RecordPublished failed: %v", err)
	}

	files, err := s.ListPublished()
	if err != nil {
		t.Fatalf("ListPublished failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 published files, got %d", len(files))
	}
	if files[0].File != "solo_L1_stix-ql-lightcurve_20240301.fits" {
		t.Errorf("expected oldest file first, got %q", files[0].File)
	}

	// Republishing the same file moves it to the new run.
	run2, err := s.StartRun()
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	clock.Advance(time.Hour)
	if err := s.RecordPublished("solo_L1_stix-ql-lightcurve_20240301.fits", run2.ID); err != nil {
		t.Fatalf("republish failed: %v", err)
	}

	files, err = s.ListPublished()
	if err != nil {
		t.Fatalf("ListPublished failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 published files after republish, got %d", len(files))
	}
	last := files[len(files)-1]
	if last.File != "solo_L1_stix-ql-lightcurve_20240301.fits" {
		t.Errorf("republished file should sort newest, got %q", last.File)
	}
	if last.RunID != run2.ID {
		t.Errorf("republished file should carry run %s, got %s", run2.ID, last.RunID)
	}
}

func TestMigrateDownRemovesHistoryTables(t *testing.T) {
	s, _ := newStore(t)

	if err := s.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}

	version, _, err := s.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("expected version 1 after down, got %d", version)
	}

	var tableExists bool
	err = s.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='seen_packets'
	`).Scan(&tableExists)
	if err != nil {
		t.Fatalf("failed to check seen_packets: %v", err)
	}
	if tableExists {
		t.Error("seen_packets should not exist at version 1")
	}

	if err := s.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	version, _, err = s.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 {
		t.Errorf("expected version 2 after re-applying, got %d", version)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open history store: %v", err)
	}
	run, err := s.StartRun()
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if _, err := s.SeenPacket(run.ID, 42, scet.SCET{Coarse: 1}, 21, 6, 30); err != nil {
		t.Fatalf("SeenPacket failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("failed to reopen history store: %v", err)
	}
	defer reopened.Close()

	seen, err := reopened.WasSeen(42)
	if err != nil {
		t.Fatalf("WasSeen failed: %v", err)
	}
	if !seen {
		t.Error("history should survive a reopen")
	}
	if _, err := reopened.Run(run.ID); err != nil {
		t.Errorf("run should survive a reopen: %v", err)
	}
}
