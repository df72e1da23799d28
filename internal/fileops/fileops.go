// Package fileops implements the mutators: folder creation, upload
// commit and deletion. Each pairs the filesystem side effect with the
// store update as one logical unit, and re-validates containment at the
// point of use — never trusting paths captured earlier in the turn.
package fileops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/archivist/archivist/internal/domain"
	"github.com/archivist/archivist/internal/events"
	"github.com/archivist/archivist/internal/logging"
	"github.com/archivist/archivist/internal/metrics"
	"github.com/archivist/archivist/internal/paths"
	"github.com/archivist/archivist/internal/storage/disk"
)

// Store is the slice of the tree store the mutators need.
type Store interface {
	InsertNode(ctx context.Context, n *domain.Node) error
	GetNode(ctx context.Context, path string) (*domain.Node, error)
	DeleteExact(ctx context.Context, path string) error
	DeleteSubtree(ctx context.Context, path string) (int64, error)
}

// Mutator performs tree mutations against the disk and the store.
type Mutator struct {
	res   *paths.Resolver
	store Store
	disk  *disk.Disk
	bus   *events.Broadcaster
}

// New returns a mutator. bus may be nil when no event feed is wanted.
func New(res *paths.Resolver, store Store, d *disk.Disk, bus *events.Broadcaster) *Mutator {
	return &Mutator{res: res, store: store, disk: d, bus: bus}
}

// CreateFolder creates name under parentAbs on disk and in the store.
// The name is validated against separator and dot-dot escapes, and the
// resulting path is containment-checked before anything touches disk.
func (m *Mutator) CreateFolder(ctx context.Context, parentAbs, name string, ownerID int64) (*domain.Node, error) {
	if err := paths.ValidateFolderName(name); err != nil {
		return nil, err
	}
	if !m.res.Contains(parentAbs) {
		metrics.RecordSecurityViolation()
		return nil, fmt.Errorf("create folder under %s: %w", parentAbs, domain.ErrSecurityViolation)
	}
	abs := filepath.Join(parentAbs, name)
	if !m.res.Contains(abs) {
		metrics.RecordSecurityViolation()
		return nil, fmt.Errorf("create folder %s: %w", abs, domain.ErrSecurityViolation)
	}

	if err := m.disk.MakeDir(abs); err != nil {
		return nil, err
	}

	node := &domain.Node{Name: name, Path: abs, IsFolder: true, OwnerID: ownerID}
	if err := m.store.InsertNode(ctx, node); err != nil {
		if errors.Is(err, domain.ErrDuplicatePath) {
			// Disk was free but a record exists: the tree diverged at
			// some point. Keep the record authoritative.
			logging.Error("store/disk divergence on folder create",
				zap.String("path", abs), zap.Error(err))
			return nil, fmt.Errorf("create folder %s: %w", abs, domain.ErrAlreadyExists)
		}
		return nil, err
	}

	m.publish(events.Event{Type: events.EventFolderCreate, Path: m.rel(abs), Actor: ownerID})
	logging.Info("folder created", zap.String("path", abs), zap.Int64("owner", ownerID))
	return node, nil
}

// CommitUpload writes body into destAbs under a collision-free name and
// inserts the record with that final name. Uploads may never land in
// the root directly; the destination must be an existing folder.
func (m *Mutator) CommitUpload(ctx context.Context, destAbs, name string, body io.Reader, ownerID int64) (*domain.Node, error) {
	if !m.res.Contains(destAbs) {
		metrics.RecordSecurityViolation()
		return nil, fmt.Errorf("upload to %s: %w", destAbs, domain.ErrSecurityViolation)
	}
	if m.res.IsRoot(destAbs) {
		return nil, fmt.Errorf("uploads may not land in the root: %w", domain.ErrForbidden)
	}
	// Re-validate existence now, not when the picker was rendered.
	dest, err := m.store.GetNode(ctx, destAbs)
	if err != nil {
		return nil, err
	}
	if !dest.IsFolder {
		return nil, fmt.Errorf("upload destination %s is a file: %w", destAbs, domain.ErrNotFound)
	}

	finalName, err := m.disk.UniqueName(destAbs, filepath.Base(name))
	if err != nil {
		return nil, err
	}
	abs := filepath.Join(destAbs, finalName)
	if !m.res.Contains(abs) {
		metrics.RecordSecurityViolation()
		return nil, fmt.Errorf("upload %s: %w", abs, domain.ErrSecurityViolation)
	}

	size, err := m.disk.WriteFile(abs, body)
	if err != nil {
		metrics.RecordUpload(0, false)
		return nil, err
	}

	node := &domain.Node{Name: finalName, Path: abs, IsFolder: false, SizeBytes: size, OwnerID: ownerID}
	if err := m.store.InsertNode(ctx, node); err != nil {
		// Written bytes without a record are invisible to every menu;
		// drop them so the tree stays consistent.
		if rmErr := m.disk.Remove(abs, false); rmErr != nil {
			logging.Error("orphan cleanup failed after insert failure",
				zap.String("path", abs), zap.Error(rmErr))
		}
		metrics.RecordUpload(0, false)
		return nil, err
	}

	metrics.RecordUpload(size, true)
	m.publish(events.Event{Type: events.EventUpload, Path: m.rel(abs), Size: size, Actor: ownerID})
	logging.Info("upload committed",
		zap.String("path", abs), zap.Int64("size", size), zap.Int64("owner", ownerID))
	return node, nil
}

// DeleteNode removes the entity at abs. The store decides presence: a
// missing record fails with ErrNotFound even if something sits on disk,
// and a missing disk entity is tolerated when the record exists.
// Folders cascade to every descendant record and the on-disk subtree.
func (m *Mutator) DeleteNode(ctx context.Context, abs string) (*domain.Node, error) {
	if !m.res.Contains(abs) {
		metrics.RecordSecurityViolation()
		logging.Error("deletion outside files root rejected", zap.String("path", abs))
		return nil, fmt.Errorf("delete %s: %w", abs, domain.ErrSecurityViolation)
	}

	node, err := m.store.GetNode(ctx, abs)
	if err != nil {
		return nil, err
	}

	if err := m.disk.Remove(abs, node.IsFolder); err != nil {
		return nil, err
	}

	if node.IsFolder {
		if _, err := m.store.DeleteSubtree(ctx, abs); err != nil {
			logging.Error("store/disk divergence: subtree removed on disk but records remain",
				zap.String("path", abs), zap.Error(err))
			return nil, err
		}
	} else {
		if err := m.store.DeleteExact(ctx, abs); err != nil && !errors.Is(err, domain.ErrNotFound) {
			logging.Error("store/disk divergence: file removed on disk but record remains",
				zap.String("path", abs), zap.Error(err))
			return nil, err
		}
	}

	m.publish(events.Event{Type: events.EventDelete, Path: m.rel(abs)})
	logging.Info("deleted", zap.String("path", abs), zap.Bool("is_folder", node.IsFolder))
	return node, nil
}

func (m *Mutator) publish(e events.Event) {
	if m.bus != nil {
		m.bus.Publish(e)
	}
}

func (m *Mutator) rel(abs string) string {
	rel, err := m.res.Rel(abs)
	if err != nil {
		return abs
	}
	return rel
}
