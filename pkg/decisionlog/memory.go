package decisionlog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrEntryTooLarge is returned when an encoded entry exceeds MaxItemSize.
	ErrEntryTooLarge = errors.New("decision log entry too large")

	// ErrNotFound is returned when no entry has the requested id.
	ErrNotFound = errors.New("decision log entry not found")
)

// MemoryConfig configures a MemorySink.
type MemoryConfig struct {
	// Path is the database file. Empty keeps entries in memory.
	Path string

	// TTL expires entries older than this. Zero keeps them.
	TTL time.Duration

	// MaxItems keeps only the newest entries. Nil is unbounded.
	MaxItems *int64

	// MaxItemSize rejects entries whose JSON encoding is larger. Nil is unbounded.
	MaxItemSize *int64

	// Now overrides the clock.
	Now func() time.Time
}

// MemorySink keeps entries in SQLite for retrieval.
type MemorySink struct {
	db  *sql.DB
	cfg MemoryConfig
}

// NewMemorySink opens the database and runs migrations.
func NewMemorySink(ctx context.Context, cfg MemoryConfig) (*MemorySink, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	dsn := ":memory:"
	if cfg.Path != "" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.Path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &MemorySink{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MemorySink) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Name implements Sink.
func (s *MemorySink) Name() string { return "memory" }

// Write implements Sink. It stores e and prunes expired and surplus entries.
func (s *MemorySink) Write(ctx context.Context, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}
	if limit := s.cfg.MaxItemSize; limit != nil && int64(len(data)) > *limit {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrEntryTooLarge, len(data), *limit)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decision_log (id, request_id, level, kind, decision, entry, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.RequestID,
		string(e.Level),
		e.Kind,
		string(e.Decision),
		string(data),
		len(data),
		s.cfg.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to store entry: %w", err)
	}

	_, err = s.Prune(ctx)
	return err
}

// Prune deletes expired entries and the oldest entries beyond MaxItems.
func (s *MemorySink) Prune(ctx context.Context) (int64, error) {
	var removed int64
	if s.cfg.TTL > 0 {
		cutoff := s.cfg.Now().Add(-s.cfg.TTL).UnixNano()
		res, err := s.db.ExecContext(ctx, "DELETE FROM decision_log WHERE created_at < ?", cutoff)
		if err != nil {
			return removed, fmt.Errorf("failed to delete expired entries: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	if limit := s.cfg.MaxItems; limit != nil {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM decision_log
			WHERE seq NOT IN (SELECT seq FROM decision_log ORDER BY seq DESC LIMIT ?)
		`, *limit)
		if err != nil {
			return removed, fmt.Errorf("failed to delete surplus entries: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, nil
}

// Get returns the entry with id.
func (s *MemorySink) Get(ctx context.Context, id string) (*Entry, error) {
	if _, err := s.Prune(ctx); err != nil {
		return nil, err
	}
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT entry FROM decision_log WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return decodeEntry(data)
}

// IDs returns the ids of the stored entries, oldest first.
func (s *MemorySink) IDs(ctx context.Context) ([]string, error) {
	if _, err := s.Prune(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM decision_log ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entry id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ByRequestID returns the entries written for one request, oldest first.
func (s *MemorySink) ByRequestID(ctx context.Context, requestID string) ([]*Entry, error) {
	if _, err := s.Prune(ctx); err != nil {
		return nil, err
	}
	return s.query(ctx, "SELECT entry FROM decision_log WHERE request_id = ? ORDER BY seq", requestID)
}

// Pop returns every stored entry, oldest first, and removes them.
func (s *MemorySink) Pop(ctx context.Context) ([]*Entry, error) {
	if _, err := s.Prune(ctx); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, "SELECT entry FROM decision_log ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM decision_log"); err != nil {
		return nil, fmt.Errorf("failed to delete entries: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return entries, nil
}

// Len returns the number of stored entries.
func (s *MemorySink) Len(ctx context.Context) (int, error) {
	if _, err := s.Prune(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM decision_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

// Close implements Sink.
func (s *MemorySink) Close(context.Context) error {
	return s.db.Close()
}

func (s *MemorySink) query(ctx context.Context, query string, args ...any) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	defer rows.Close()
	var entries []*Entry
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e, err := decodeEntry(data)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func decodeEntry(data string) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("failed to decode entry: %w", err)
	}
	return &e, nil
}
