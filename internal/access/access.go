// Package access maps chat user ids to roles and derives the capability
// checks every privileged operation runs through.
package access

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/archivist/archivist/internal/domain"
	"github.com/archivist/archivist/internal/logging"
)

// RoleSource is the slice of the tree store the controller needs.
type RoleSource interface {
	RoleOf(ctx context.Context, id int64) (domain.Role, error)
	SetRole(ctx context.Context, id int64, role domain.Role) error
	UserByUsername(ctx context.Context, username string) (*domain.User, error)
}

// Capability predicates. Monotonic over the role order: promoting a
// user never revokes anything these grant.

// CanUpload reports whether r may send files into the tree.
func CanUpload(r domain.Role) bool { return r.AtLeast(domain.RoleUploader) }

// CanAdminister reports whether r may create, delete and see stats.
func CanAdminister(r domain.Role) bool { return r.AtLeast(domain.RoleAdmin) }

// CanSuperAdminister reports whether r may manage roles and broadcast.
func CanSuperAdminister(r domain.Role) bool { return r == domain.RoleSuperAdmin }

// Controller answers role lookups and guards role mutation.
type Controller struct {
	src         RoleSource
	bootstrapID int64
}

// NewController returns a controller. bootstrapID is the one user id
// that is auto-escalated to super_admin and can never be demoted.
func NewController(src RoleSource, bootstrapID int64) *Controller {
	return &Controller{src: src, bootstrapID: bootstrapID}
}

// RoleOf returns the role for a user id. Unknown users get
// RoleUnregistered, never an error.
func (c *Controller) RoleOf(ctx context.Context, id int64) (domain.Role, error) {
	return c.src.RoleOf(ctx, id)
}

// EnsureBootstrap escalates the configured bootstrap id to super_admin.
// Called after the user registers; a no-op for everyone else.
func (c *Controller) EnsureBootstrap(ctx context.Context, id int64) (bool, error) {
	if c.bootstrapID == 0 || id != c.bootstrapID {
		return false, nil
	}
	role, err := c.src.RoleOf(ctx, id)
	if err != nil {
		return false, err
	}
	if role == domain.RoleSuperAdmin {
		return false, nil
	}
	if err := c.src.SetRole(ctx, id, domain.RoleSuperAdmin); err != nil {
		return false, err
	}
	logging.Info("bootstrap super admin escalated", zap.Int64("user_id", id))
	return true, nil
}

// AssignRole sets target's role on behalf of actor. Only a super admin
// may change roles, only user/uploader/admin may be assigned, and the
// bootstrap super admin is immutable — even to itself.
func (c *Controller) AssignRole(ctx context.Context, actorID int64, targetUsername string, role domain.Role) (*domain.User, error) {
	actorRole, err := c.src.RoleOf(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !CanSuperAdminister(actorRole) {
		return nil, fmt.Errorf("assign role: %w", domain.ErrForbidden)
	}
	switch role {
	case domain.RoleUser, domain.RoleUploader, domain.RoleAdmin:
	default:
		return nil, fmt.Errorf("role %s is not assignable: %w", role, domain.ErrInvalidName)
	}

	target, err := c.src.UserByUsername(ctx, targetUsername)
	if err != nil {
		return nil, err
	}
	if target.ID == c.bootstrapID {
		return nil, fmt.Errorf("bootstrap super admin is immutable: %w", domain.ErrForbidden)
	}
	if target.Role == domain.RoleSuperAdmin {
		return nil, fmt.Errorf("super admins cannot be reassigned: %w", domain.ErrForbidden)
	}

	if err := c.src.SetRole(ctx, target.ID, role); err != nil {
		return nil, err
	}
	target.Role = role
	return target, nil
}
