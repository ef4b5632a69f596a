package archive

import (
	"log"
	"time"
)

// Sweep deletes occurrences older than the configured retention period.
// It is a no-op when retention is disabled.
func (s *Store) Sweep(now time.Time) error {
	if s.retentionDays <= 0 {
		return nil
	}

	cutoff := now.Add(-time.Duration(s.retentionDays) * 24 * time.Hour)

	ctx, cancel := s.queryCtx()
	defer cancel()

	res, err := s.db.ExecContext(ctx, "DELETE FROM occurrences WHERE ts < ?", cutoff)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows > 0 {
		log.Printf("archive: retention sweep deleted %d occurrences (older than %d days)", rows, s.retentionDays)
	}
	return nil
}
