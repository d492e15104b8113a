package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/naka-gawa/geoeditors/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS editor_records (
	seq            INTEGER NOT NULL,
	country_code   TEXT NOT NULL,
	country_name   TEXT NOT NULL,
	project        TEXT NOT NULL,
	wiki_db        TEXT NOT NULL,
	activity_level TEXT NOT NULL,
	month          TEXT NOT NULL,
	editors        INTEGER NOT NULL,
	edits          INTEGER NOT NULL,
	unpublished    BOOLEAN NOT NULL,
	PRIMARY KEY (country_code, project, activity_level, month)
)`

// SQLStore keeps the dataset in a single SQL table. Replace runs as one
// transaction, which gives it the same all-or-nothing behavior as FileStore.
type SQLStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewSQLiteStore creates a store backed by a sqlite file at path.
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}
	enableWAL(db, path, logger)
	return newSQLStore(db, logger)
}

// enableWAL switches sqlite to write-ahead logging. The store still works in
// the default journal mode, so a failure is only logged.
func enableWAL(db *sqlx.DB, path string, logger *logrus.Logger) {
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.WithError(err).WithField("path", path).Warn("Failed to enable WAL journal mode")
	}
}

// NewPostgresStore creates a store backed by PostgreSQL.
func NewPostgresStore(dsn string, logger *logrus.Logger) (*SQLStore, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return newSQLStore(db, logger)
}

func newSQLStore(db *sqlx.DB, logger *logrus.Logger) (*SQLStore, error) {
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLStore{db: db, logger: logger}, nil
}

func (s *SQLStore) Load(ctx context.Context) (*domain.Dataset, error) {
	var records []domain.EditorRecord
	query := `
		SELECT country_code, country_name, project, wiki_db, activity_level,
		       month, editors, edits, unpublished
		FROM editor_records ORDER BY seq`
	if err := s.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	return domain.NewDataset(records)
}

func (s *SQLStore) Replace(ctx context.Context, ds *domain.Dataset) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM editor_records`); err != nil {
		return fmt.Errorf("clear dataset: %w", err)
	}
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO editor_records
		(seq, country_code, country_name, project, wiki_db, activity_level,
		 month, editors, edits, unpublished)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range ds.Records {
		_, err := stmt.ExecContext(ctx,
			i, r.CountryCode, r.CountryName, r.Project, r.WikiDB, string(r.ActivityLevel),
			r.Month, r.Editors, r.Edits, r.Unpublished)
		if err != nil {
			return fmt.Errorf("insert %s: %w", r.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	s.logger.WithField("records", ds.Len()).Info("Dataset replaced")
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
