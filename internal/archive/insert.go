package archive

import (
	"context"
	"fmt"

	"github.com/vigilops/vigil/internal/poll"
)

// InsertOccurrences appends one cycle's occurrences in a single
// transaction. Poll cycles run at most every few minutes, so inserts
// happen inline rather than through an async flush queue.
func (s *Store) InsertOccurrences(occurrences []poll.Occurrence) error {
	if len(occurrences) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.QueryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO occurrences (signature, service, error_type, severity, ts, is_new) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, occ := range occurrences {
		if _, err := stmt.ExecContext(ctx, occ.Signature, occ.Service, occ.ErrorType, occ.Severity, occ.Timestamp, occ.IsNew); err != nil {
			return fmt.Errorf("occurrence insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
