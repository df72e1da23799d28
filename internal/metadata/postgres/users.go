package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/archivist/archivist/internal/domain"
	"github.com/archivist/archivist/internal/logging"
	"github.com/archivist/archivist/internal/metrics"
)

// EnsureUser registers a user on first contact, or refreshes the stored
// username on a repeat contact. Returns true when the row was created.
func (s *Store) EnsureUser(ctx context.Context, id int64, username string) (bool, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("ensure_user", time.Since(start)) }()

	// xmax = 0 distinguishes a fresh insert from a conflict update.
	var created bool
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (user_id, username, role) VALUES ($1, $2, 'user')
		 ON CONFLICT (user_id) DO UPDATE SET username = EXCLUDED.username
		 RETURNING (xmax = 0)`,
		id, username).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("ensure user %d: %w", id, err)
	}

	logging.Debug("ensured user", zap.Int64("user_id", id), zap.Bool("created", created))
	return created, nil
}

// RoleOf returns the stored role for a user id. Unknown users get the
// unregistered sentinel, never an error.
func (s *Store) RoleOf(ctx context.Context, id int64) (domain.Role, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("role_of", time.Since(start)) }()

	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM users WHERE user_id = $1`, id).Scan(&role)
	if err == sql.ErrNoRows {
		return domain.RoleUnregistered, nil
	}
	if err != nil {
		return domain.RoleUnregistered, fmt.Errorf("role of %d: %w", id, err)
	}
	return domain.ParseRole(role), nil
}

// SetRole sets a user's role by id.
func (s *Store) SetRole(ctx context.Context, id int64, role domain.Role) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("set_role", time.Since(start)) }()

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET role = $1 WHERE user_id = $2`, role.String(), id)
	if err != nil {
		return fmt.Errorf("set role of %d: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("set role of %d: %w", id, domain.ErrNotFound)
	}
	logging.Info("role changed", zap.Int64("user_id", id), zap.String("role", role.String()))
	return nil
}

// UserByUsername looks up a user by their chat handle.
func (s *Store) UserByUsername(ctx context.Context, username string) (*domain.User, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("user_by_username", time.Since(start)) }()

	var u domain.User
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, COALESCE(username, ''), role, join_date FROM users WHERE username = $1`,
		username).Scan(&u.ID, &u.Username, &role, &u.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user @%s: %w", username, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("user @%s: %w", username, err)
	}
	u.Role = domain.ParseRole(role)
	return &u, nil
}

// ListStaff returns every user holding a role above plain user, ordered
// by role then handle.
func (s *Store) ListStaff(ctx context.Context) ([]*domain.User, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("list_staff", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, COALESCE(username, ''), role, join_date FROM users
		 WHERE role NOT IN ('user', 'unregistered') ORDER BY role, username`)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		var u domain.User
		var role string
		if err := rows.Scan(&u.ID, &u.Username, &role, &u.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan staff: %w", err)
		}
		u.Role = domain.ParseRole(role)
		users = append(users, &u)
	}
	return users, rows.Err()
}

// AllUserIDs returns every registered user id, for broadcasts.
func (s *Store) AllUserIDs(ctx context.Context) ([]int64, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("all_user_ids", time.Since(start)) }()

	return s.queryIDs(ctx, `SELECT user_id FROM users`)
}

// AdminIDs returns the ids of every admin and super admin, for relaying
// contact messages.
func (s *Store) AdminIDs(ctx context.Context) ([]int64, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("admin_ids", time.Since(start)) }()

	return s.queryIDs(ctx, `SELECT user_id FROM users WHERE role IN ('admin', 'super_admin')`)
}

func (s *Store) queryIDs(ctx context.Context, query string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
