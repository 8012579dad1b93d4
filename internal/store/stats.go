package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath         string  `json:"db_path"`
	DBSizeBytes    int64   `json:"db_size_bytes"`
	TotalSessions  int     `json:"total_sessions"`
	TotalPhotos    int     `json:"total_photos"`
	DistanceMeters float64 `json:"total_distance_meters"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&st.TotalSessions)
	s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(json_array_length(media)), 0) FROM sessions`).Scan(&st.TotalPhotos)
	s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(json_extract(metrics, '$.distance_meters')), 0) FROM sessions`).Scan(&st.DistanceMeters)

	return st, nil
}
