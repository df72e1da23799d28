package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/archivist/archivist/internal/domain"
	"github.com/archivist/archivist/internal/logging"
	"github.com/archivist/archivist/internal/metrics"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

const nodeColumns = `id, file_name, file_path, is_folder, COALESCE(size_bytes, 0), COALESCE(uploaded_by, 0), upload_date`

// likeEscaper neutralizes LIKE wildcards in a stored path before it is
// spliced into a prefix pattern. ValidateFolderName admits both % and
// _, so a folder named my_docs must not match rows under myxdocs.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// InsertNode stores a new node. A path collision surfaces as
// ErrDuplicatePath; UNIQUE(file_path) makes this safe under concurrent
// creation of the same path.
func (s *Store) InsertNode(ctx context.Context, n *domain.Node) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("insert_node", time.Since(start)) }()

	var owner interface{}
	if n.OwnerID != 0 {
		owner = n.OwnerID
	}
	var size interface{}
	if !n.IsFolder {
		size = n.SizeBytes
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO files (file_name, file_path, is_folder, size_bytes, uploaded_by)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, upload_date`,
		n.Name, n.Path, n.IsFolder, size, owner).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("insert %s: %w", n.Path, domain.ErrDuplicatePath)
		}
		return fmt.Errorf("insert %s: %w", n.Path, err)
	}

	logging.Debug("inserted node",
		zap.String("path", n.Path),
		zap.Bool("is_folder", n.IsFolder),
		zap.Int64("size", n.SizeBytes))
	return nil
}

// GetNode returns the node at an exact path.
func (s *Store) GetNode(ctx context.Context, path string) (*domain.Node, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_node", time.Since(start)) }()

	var n domain.Node
	err := s.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM files WHERE file_path = $1`, path).
		Scan(&n.ID, &n.Name, &n.Path, &n.IsFolder, &n.SizeBytes, &n.OwnerID, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("node %s: %w", path, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", path, err)
	}
	return &n, nil
}

// PathExists checks if a path is present in the store.
func (s *Store) PathExists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM files WHERE file_path = $1)`, path).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("path exists %s: %w", path, err)
	}
	return exists, nil
}

// ListChildren returns the immediate children of parentPath, folders
// first, then by name, so menus render deterministically. Parent-child
// is derived from the path column: a child matches parent/x but not
// parent/x/y.
func (s *Store) ListChildren(ctx context.Context, parentPath string, filter domain.ChildFilter) ([]*domain.Node, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("list_children", time.Since(start)) }()

	query := `SELECT ` + nodeColumns + ` FROM files
		 WHERE file_path LIKE $1 || '/%' ESCAPE '\' AND file_path NOT LIKE $1 || '/%/%' ESCAPE '\'`
	if filter == domain.FoldersOnly {
		query += ` AND is_folder = TRUE`
	}
	query += ` ORDER BY is_folder DESC, file_name ASC`

	rows, err := s.db.QueryContext(ctx, query, escapeLike(parentPath))
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", parentPath, err)
	}
	defer rows.Close()

	var nodes []*domain.Node
	for rows.Next() {
		var n domain.Node
		if err := rows.Scan(&n.ID, &n.Name, &n.Path, &n.IsFolder, &n.SizeBytes, &n.OwnerID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		nodes = append(nodes, &n)
	}
	return nodes, rows.Err()
}

// DeleteExact removes the single node at path. Missing rows surface as
// ErrNotFound.
func (s *Store) DeleteExact(ctx context.Context, path string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("delete_exact", time.Since(start)) }()

	result, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE file_path = $1`, path)
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("delete %s: %w", path, domain.ErrNotFound)
	}
	logging.Debug("deleted node", zap.String("path", path))
	return nil
}

// DeleteSubtree removes the node at path and every descendant. The
// prefix match is separator-bounded: deleting /files/report must not
// take /files/report2 with it.
func (s *Store) DeleteSubtree(ctx context.Context, path string) (int64, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("delete_subtree", time.Since(start)) }()

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM files WHERE file_path = $1 OR file_path LIKE $2 || '/%' ESCAPE '\'`,
		path, escapeLike(path))
	if err != nil {
		return 0, fmt.Errorf("delete subtree %s: %w", path, err)
	}
	rows, _ := result.RowsAffected()
	logging.Debug("deleted subtree", zap.String("path", path), zap.Int64("rows", rows))
	return rows, nil
}
