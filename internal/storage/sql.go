package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"pushgate/internal/quiethours"
	"pushgate/pkg/logx"
)

type migration struct {
	version int
	stmt    string
}

// Statements must run unchanged on sqlite and postgres.
var migrations = []migration{
	{
		version: 1,
		stmt: `CREATE TABLE IF NOT EXISTS schedules (
			key        TEXT PRIMARY KEY,
			record     TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	},
}

// sqlStore serves both sqlite (modernc) and postgres (lib/pq). Queries are
// written with '?' placeholders and rebound per driver.
type sqlStore struct {
	db     *sqlx.DB
	log    logx.Logger
	driver string
	key    string
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
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	return newSQLStore(db, "sqlite", cfg, log)
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting postgres: %w", err)
	}
	return newSQLStore(db, "postgres", cfg, log)
}

func newSQLStore(db *sqlx.DB, driver string, cfg Config, log logx.Logger) (*sqlStore, error) {
	st := &sqlStore{db: db, log: log, driver: driver, key: cfg.key()}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return st, nil
}

func (s *sqlStore) Driver() string { return s.driver }

func (s *sqlStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("creating schema_version: %w", err)
	}
	current := 0
	if err := s.db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`INSERT INTO schema_version (version) VALUES (?)`), m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		s.log.Debug("migration applied", logx.Int("version", m.version))
	}
	return nil
}

func (s *sqlStore) Load(ctx context.Context) (quiethours.Schedule, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, s.db.Rebind(`SELECT record FROM schedules WHERE key = ?`), s.key)
	if errors.Is(err, sql.ErrNoRows) {
		return quiethours.Schedule{}, ErrNotFound
	}
	if err != nil {
		return quiethours.Schedule{}, err
	}
	return decodeRecord([]byte(raw))
}

func (s *sqlStore) Save(ctx context.Context, sched quiethours.Schedule) error {
	rec, err := encodeRecord(sched)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO schedules (key, record, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`),
		s.key, string(rec), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
