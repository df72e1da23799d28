// Package domain holds the model types and error taxonomy shared by the
// tree store, mutators and the interaction layer.
package domain

import "errors"

// Sentinel errors. Mutators and the store wrap these with context; the
// interaction layer unwraps with errors.Is and renders a localized reply.
var (
	// ErrSecurityViolation means a path resolved outside the files root.
	// Always rejected and logged at error level, never recovered silently.
	ErrSecurityViolation = errors.New("path escapes files root")

	// ErrNotFound is a lookup miss in the tree store.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is a name collision on create.
	ErrAlreadyExists = errors.New("already exists")

	// ErrDuplicatePath is the store's UNIQUE(path) violation. Treated as
	// ErrAlreadyExists at the interaction boundary.
	ErrDuplicatePath = errors.New("duplicate path")

	// ErrExpiredSession means workflow state went missing (e.g. restart
	// between file send and destination pick). The user restarts the flow.
	ErrExpiredSession = errors.New("session expired")

	// ErrStoreUnavailable is a database I/O failure. Not retried.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrDiskUnavailable is a filesystem I/O failure. Not retried.
	ErrDiskUnavailable = errors.New("disk unavailable")

	// ErrInvalidName rejects folder names carrying separators or ".."
	// segments before they reach the filesystem.
	ErrInvalidName = errors.New("invalid name")

	// ErrForbidden is a capability check failure.
	ErrForbidden = errors.New("forbidden")
)
