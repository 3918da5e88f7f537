package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/nnvisu/nnvisu-go/internal/shared"
)

// Dialect names a supported SQL database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// dialectQueries holds the statements that differ between databases.
type dialectQueries struct {
	schema string
	get    string
	put    string
	delete string
}

var queries = map[Dialect]dialectQueries{
	DialectSQLite: {
		schema: `CREATE TABLE IF NOT EXISTS nnvisu_state (
			slot TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		get:    `SELECT payload FROM nnvisu_state WHERE slot = ?`,
		put:    `INSERT OR REPLACE INTO nnvisu_state (slot, payload, updated_at) VALUES (?, ?, ?)`,
		delete: `DELETE FROM nnvisu_state WHERE slot = ?`,
	},
	DialectPostgres: {
		schema: `CREATE TABLE IF NOT EXISTS nnvisu_state (
			slot TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		get: `SELECT payload FROM nnvisu_state WHERE slot = $1`,
		put: `INSERT INTO nnvisu_state (slot, payload, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (slot) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		delete: `DELETE FROM nnvisu_state WHERE slot = $1`,
	},
	DialectMySQL: {
		schema: `CREATE TABLE IF NOT EXISTS nnvisu_state (
			slot VARCHAR(64) PRIMARY KEY,
			payload LONGTEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		get:    `SELECT payload FROM nnvisu_state WHERE slot = ?`,
		put:    `REPLACE INTO nnvisu_state (slot, payload, updated_at) VALUES (?, ?, ?)`,
		delete: `DELETE FROM nnvisu_state WHERE slot = ?`,
	},
}

func nowMillis() int64 {
	return shared.Now()
}

// SQLBackend stores keys as rows of the nnvisu_state table.
type SQLBackend struct {
	mu      sync.RWMutex
	db      *sql.DB
	dialect Dialect
	q       dialectQueries
	now     func() int64
}

// OpenSQL connects to a database, verifies the connection and creates the
// state table if needed.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQLBackend, error) {
	q, ok := queries[dialect]
	if !ok {
		return nil, fmt.Errorf("%w: dialect %q", ErrUnknownScheme, dialect)
	}

	db, err := openDB(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	switch dialect {
	case DialectSQLite:
		// One writer keeps INSERT OR REPLACE free of SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	default:
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, q.schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create state table: %w", err)
	}

	return &SQLBackend{db: db, dialect: dialect, q: q, now: nowMillis}, nil
}

func openDB(dialect Dialect, dsn string) (*sql.DB, error) {
	switch dialect {
	case DialectPostgres:
		connector, err := pq.NewConnector(dsn)
		if err != nil {
			return nil, err
		}
		return sql.OpenDB(connector), nil

	case DialectMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, err
		}
		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, err
		}
		return sql.OpenDB(connector), nil
	}

	return sql.Open("sqlite", dsn)
}

// Dialect returns the database dialect.
func (s *SQLBackend) Dialect() Dialect {
	return s.dialect
}

func (s *SQLBackend) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrBackendClosed
	}
	return s.db, nil
}

// Get implements Backend.
func (s *SQLBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	db, err := s.conn()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, s.q.get, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Put implements Backend.
func (s *SQLBackend) Put(ctx context.Context, key string, value []byte) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, s.q.put, key, string(value), s.now())
	return err
}

// Delete implements Backend.
func (s *SQLBackend) Delete(ctx context.Context, key string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, s.q.delete, key)
	return err
}

// Close implements Backend.
func (s *SQLBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}
