package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"runpost/internal/model"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id           TEXT PRIMARY KEY,
		track_source TEXT NOT NULL,
		observed_at  TEXT NOT NULL,
		created_at   TEXT NOT NULL,
		metrics      TEXT NOT NULL,
		media        TEXT NOT NULL,
		captions     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_sessions_track ON sessions(track_source);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Put(ctx context.Context, sess *model.Session) error {
	metricsJSON, err := json.Marshal(sess.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	mediaJSON, err := json.Marshal(sess.Media)
	if err != nil {
		return fmt.Errorf("marshal media: %w", err)
	}

	var captionsJSON *string
	if len(sess.Captions) > 0 {
		b, err := json.Marshal(sess.Captions)
		if err != nil {
			return fmt.Errorf("marshal captions: %w", err)
		}
		j := string(b)
		captionsJSON = &j
	}

	// Replaying the exact same session must not duplicate or mutate the
	// persisted set; any other record under the same id is fatal. The
	// serialized columns are the identity test, not just the source.
	var (
		existingSource, existingMetrics, existingMedia string
		existingCaptions                               sql.NullString
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT track_source, metrics, media, captions FROM sessions WHERE id = ?`, sess.ID).
		Scan(&existingSource, &existingMetrics, &existingMedia, &existingCaptions)
	if err == nil {
		same := existingSource == sess.Track.Source &&
			existingMetrics == string(metricsJSON) &&
			existingMedia == string(mediaJSON) &&
			existingCaptions.Valid == (captionsJSON != nil) &&
			(captionsJSON == nil || existingCaptions.String == *captionsJSON)
		if same {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDuplicateSessionID, sess.ID)
	}
	if err != sql.ErrNoRows {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, track_source, observed_at, created_at, metrics, media, captions)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Track.Source,
		sess.Track.ObservedAt.UTC().Format(time.RFC3339),
		sess.CreatedAt.UTC().Format(time.RFC3339),
		string(metricsJSON), string(mediaJSON), captionsJSON)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, track_source, observed_at, created_at, metrics, media, captions
		 FROM sessions WHERE id = ?`, id)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SQLiteStore) List(ctx context.Context, p ListParams) ([]model.Session, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, track_source, observed_at, created_at, metrics, media, captions
		 FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) Rm(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*model.Session, error) {
	var sess model.Session
	var observedAt, createdAt, metricsJSON, mediaJSON string
	var captionsJSON sql.NullString

	err := row.Scan(&sess.ID, &sess.Track.Source, &observedAt, &createdAt,
		&metricsJSON, &mediaJSON, &captionsJSON)
	if err != nil {
		return nil, err
	}

	sess.Track.ObservedAt, _ = time.Parse(time.RFC3339, observedAt)
	sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if err := json.Unmarshal([]byte(metricsJSON), &sess.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}
	if err := json.Unmarshal([]byte(mediaJSON), &sess.Media); err != nil {
		return nil, fmt.Errorf("unmarshal media: %w", err)
	}
	if captionsJSON.Valid {
		if err := json.Unmarshal([]byte(captionsJSON.String), &sess.Captions); err != nil {
			return nil, fmt.Errorf("unmarshal captions: %w", err)
		}
	}
	return &sess, nil
}
