package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	logx "modwatch/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS seen_items (
	id      TEXT PRIMARY KEY,
	record  TEXT NOT NULL,
	seen_at TEXT NOT NULL
);`

type sqliteStore struct {
	db  *sqlx.DB
	log logx.Logger
}

type seenRow struct {
	ID     string `db:"id"`
	Record string `db:"record"`
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// Single writer (the poll loop).
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if cfg.ResetOnStart {
		if _, err := db.Exec(`DELETE FROM seen_items`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("reset seen items: %w", err)
		}
		log.Info("cleared seen items at startup", logx.String("path", path))
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Load(ctx context.Context) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	var rows []seenRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, record FROM seen_items ORDER BY seen_at, id`); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, Record{ID: r.ID, Data: []byte(r.Record)})
	}
	return out, nil
}

func (s *sqliteStore) Append(ctx context.Context, recs []Record) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range recs {
		if strings.TrimSpace(r.ID) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO seen_items(id, record, seen_at) VALUES(?,?,?)
			 ON CONFLICT(id) DO NOTHING`,
			r.ID, string(r.Data), now,
		); err != nil {
			return fmt.Errorf("insert %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
