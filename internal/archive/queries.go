package archive

import (
	"context"
	"time"
)

// SignatureCount is one row of the top-signatures report.
type SignatureCount struct {
	Signature string    `json:"signature"`
	Service   string    `json:"service"`
	ErrorType string    `json:"error_type"`
	Count     int       `json:"count"`
	LastSeen  time.Time `json:"last_seen"`
}

// ServiceCount is the total occurrence count for one service.
type ServiceCount struct {
	Service string `json:"service"`
	Count   int    `json:"count"`
}

func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}

// TopSignatures returns the signatures with the most occurrences since
// the given time, busiest first.
func (s *Store) TopSignatures(since time.Time, limit int) ([]SignatureCount, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT signature, service, error_type, COUNT(*) AS count, MAX(ts) AS last_seen
		FROM occurrences
		WHERE ts >= ?
		GROUP BY signature, service, error_type
		ORDER BY count DESC, signature
		LIMIT ?`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SignatureCount
	for rows.Next() {
		var sc SignatureCount
		if err := rows.Scan(&sc.Signature, &sc.Service, &sc.ErrorType, &sc.Count, &sc.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ServiceCounts returns per-service occurrence totals since the given
// time, busiest first.
func (s *Store) ServiceCounts(since time.Time) ([]ServiceCount, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT service, COUNT(*) AS count
		FROM occurrences
		WHERE ts >= ?
		GROUP BY service
		ORDER BY count DESC, service`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ServiceCount
	for rows.Next() {
		var sc ServiceCount
		if err := rows.Scan(&sc.Service, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
