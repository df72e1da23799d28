// Package postgres provides the PostgreSQL-backed tree store: the flat
// record set of file and folder nodes, plus the user table the access
// layer reads roles from.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/archivist/archivist/internal/domain"
	"github.com/archivist/archivist/internal/logging"
	"github.com/archivist/archivist/internal/metrics"
)

// Store is a PostgreSQL tree store.
type Store struct {
	db *sql.DB
}

// New opens a connection pool against databaseURL and verifies it.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for use by other packages.
func (s *Store) DB() *sql.DB {
	return s.db
}

// UpdateConnectionMetrics updates the database connection metrics.
func (s *Store) UpdateConnectionMetrics() {
	stats := s.db.Stats()
	metrics.SetDBConnectionsOpen(stats.OpenConnections)
}

// EnsureSchema creates the users and files tables if they do not exist.
// UNIQUE(file_path) is the invariant concurrent same-path creation
// relies on: the second inserter observes a duplicate, not a second row.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id BIGINT PRIMARY KEY,
			username TEXT,
			role TEXT NOT NULL DEFAULT 'user',
			join_date TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS files (
			id BIGSERIAL PRIMARY KEY,
			file_name TEXT NOT NULL,
			file_path TEXT NOT NULL UNIQUE,
			is_folder BOOLEAN NOT NULL DEFAULT FALSE,
			size_bytes BIGINT,
			uploaded_by BIGINT REFERENCES users(user_id) ON DELETE SET NULL,
			upload_date TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	logging.Info("database schema ready")
	return nil
}

// Stats returns the aggregate counts shown to admins.
func (s *Store) Stats(ctx context.Context) (*domain.Stats, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("stats", time.Since(start)) }()

	var st domain.Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM files WHERE is_folder = FALSE),
			(SELECT COUNT(*) FROM files WHERE is_folder = TRUE),
			(SELECT COALESCE(SUM(size_bytes), 0) FROM files WHERE is_folder = FALSE)`).
		Scan(&st.Users, &st.Files, &st.Folders, &st.TotalBytes)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	metrics.SetTreeSize(st.Files + st.Folders)
	return &st, nil
}
