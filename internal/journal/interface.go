package journal

import "time"

// Journal defines the operations the run driver needs. Consumers depend
// on this interface rather than the concrete *DB type to allow running
// without a journal (and to ease testing).
type Journal interface {
	BeginRun(startedAt time.Time) (int64, error)
	FinishRun(runID int64, synced, failed, skipped int) error
	RecordFile(runID int64, rec FileRecord) error
	LastSyncedChecksum(path string) (string, error)
	Close() error
}

// Verify *DB satisfies Journal at compile time.
var _ Journal = (*DB)(nil)
