package artifacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLStore keeps artifacts in a local SQLite database.
type SQLStore struct {
	db   *sqlx.DB
	path string
}

// OpenSQLStore opens (or creates) the database at dbPath and runs any
// pending migrations.
func OpenSQLStore(dbPath string) (*SQLStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLStore{db: db, path: dbPath}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Save inserts or replaces the artifact for the run and stage.
func (s *SQLStore) Save(ctx context.Context, rc RunContext, stage Stage, payload []byte) (string, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO artifacts (run_id, stage, created_at, content_type, payload)
		VALUES (?, ?, ?, ?, ?)`,
		rc.ID.String(), string(stage), rc.Timestamp.UTC(), stage.ContentType(), payload,
	)
	if err != nil {
		return "", fmt.Errorf("saving %s artifact: %w", stage, err)
	}

	return fmt.Sprintf("sqlite://%s?run=%s&stage=%s", s.path, rc.ID, stage), nil
}

func (s *SQLStore) Load(ctx context.Context, runID uuid.UUID, stage Stage) ([]byte, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload,
		"SELECT payload FROM artifacts WHERE run_id = ? AND stage = ?",
		runID.String(), string(stage),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s artifact of run %s: %w", stage, runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s artifact of run %s: %w", stage, runID, err)
	}
	return payload, nil
}
