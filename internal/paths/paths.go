// Package paths maps between absolute filesystem paths and the
// root-relative identifiers embedded in inline-keyboard tokens, and
// enforces the containment invariant: every resolved path stays inside
// the configured files root.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/archivist/archivist/internal/domain"
)

// MaxNameLength bounds folder names so tokens stay within the
// transport's callback-data limit.
const MaxNameLength = 100

// Resolver resolves relative ids against a fixed files root.
type Resolver struct {
	root string
}

// NewResolver returns a resolver anchored at root. The root is made
// absolute and cleaned once; all later comparisons use this form.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	return &Resolver{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute files root.
func (r *Resolver) Root() string { return r.root }

// Abs joins a relative id onto the root, normalizes it and verifies
// containment. The empty id and "." both denote the root itself.
// Crafted ids ("../x", "a/../../b") fail with ErrSecurityViolation.
func (r *Resolver) Abs(rel string) (string, error) {
	abs := filepath.Clean(filepath.Join(r.root, filepath.FromSlash(rel)))
	if !r.Contains(abs) {
		return "", fmt.Errorf("relative id %q: %w", rel, domain.ErrSecurityViolation)
	}
	return abs, nil
}

// Rel converts an absolute path back to the relative id used in tokens.
// The root maps to ".". Paths outside the root fail with
// ErrSecurityViolation.
func (r *Resolver) Rel(abs string) (string, error) {
	abs = filepath.Clean(abs)
	if !r.Contains(abs) {
		return "", fmt.Errorf("path %q: %w", abs, domain.ErrSecurityViolation)
	}
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", fmt.Errorf("relativize %s: %w", abs, err)
	}
	return filepath.ToSlash(rel), nil
}

// Contains reports whether abs (after cleaning) is the root itself or a
// descendant of it. A plain prefix match is not enough: /files-old must
// not pass for root /files, so the check is separator-bounded.
func (r *Resolver) Contains(abs string) bool {
	abs = filepath.Clean(abs)
	if abs == r.root {
		return true
	}
	return strings.HasPrefix(abs, r.root+string(os.PathSeparator))
}

// IsRoot reports whether abs is the files root itself.
func (r *Resolver) IsRoot(abs string) bool {
	return filepath.Clean(abs) == r.root
}

// Parent returns the parent directory of abs, clamped at the root so
// repeated "go up" actions can never leave the tree.
func (r *Resolver) Parent(abs string) string {
	if r.IsRoot(abs) {
		return r.root
	}
	parent := filepath.Dir(filepath.Clean(abs))
	if !r.Contains(parent) {
		return r.root
	}
	return parent
}

// DisplayName returns the label for a directory in menus: the base name,
// or "/" for the root.
func (r *Resolver) DisplayName(abs string) string {
	if r.IsRoot(abs) {
		return "/"
	}
	return filepath.Base(abs)
}

// ValidateFolderName rejects names that could escape the tree when
// joined onto a parent path: separators, ".." segments, control
// characters, or anything the transport could not round-trip.
func ValidateFolderName(name string) error {
	err := validation.Validate(name,
		validation.Required,
		validation.Length(1, MaxNameLength),
		validation.By(checkNameSegments),
	)
	if err != nil {
		return fmt.Errorf("folder name %q: %w", name, domain.ErrInvalidName)
	}
	return nil
}

func checkNameSegments(value interface{}) error {
	name, _ := value.(string)
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("contains a path separator")
	}
	if name == "." || name == ".." || strings.Contains(name, "..") {
		return fmt.Errorf("contains a dot-dot segment")
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("contains a control character")
		}
	}
	return nil
}
