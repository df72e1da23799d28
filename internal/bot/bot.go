// Package bot wires the chat transport to the file-manager core: it
// classifies inbound interactions, runs them through access control,
// builds navigable folder listings and drives the three multi-step
// workflows (folder creation, upload destination pick, interactive
// deletion) over per-user session state.
package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/archivist/archivist/internal/access"
	"github.com/archivist/archivist/internal/chat"
	"github.com/archivist/archivist/internal/domain"
	"github.com/archivist/archivist/internal/fileops"
	"github.com/archivist/archivist/internal/i18n"
	"github.com/archivist/archivist/internal/logging"
	"github.com/archivist/archivist/internal/metrics"
	"github.com/archivist/archivist/internal/paths"
	"github.com/archivist/archivist/internal/session"
	"github.com/archivist/archivist/internal/share"
	"github.com/archivist/archivist/internal/storage/disk"
)

// Store is the slice of the metadata store the bot reads directly.
// Mutations go through the fileops mutator instead.
type Store interface {
	ListChildren(ctx context.Context, parentPath string, filter domain.ChildFilter) ([]*domain.Node, error)
	GetNode(ctx context.Context, path string) (*domain.Node, error)
	EnsureUser(ctx context.Context, id int64, username string) (bool, error)
	ListStaff(ctx context.Context) ([]*domain.User, error)
	AllUserIDs(ctx context.Context) ([]int64, error)
	AdminIDs(ctx context.Context) ([]int64, error)
	Stats(ctx context.Context) (*domain.Stats, error)
}

// Bot is the interaction layer. One Bot serves all users; interactions
// from the same user are serialized, different users run concurrently.
type Bot struct {
	tr       chat.Transport
	store    Store
	acl      *access.Controller
	sessions *session.Store
	res      *paths.Resolver
	disk     *disk.Disk
	mut      *fileops.Mutator
	signer   *share.Signer

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New assembles the interaction layer. signer may be disabled (empty
// secret) in which case /link reports the feature as unavailable.
func New(tr chat.Transport, store Store, acl *access.Controller, sessions *session.Store,
	res *paths.Resolver, d *disk.Disk, mut *fileops.Mutator, signer *share.Signer) *Bot {
	return &Bot{
		tr:       tr,
		store:    store,
		acl:      acl,
		sessions: sessions,
		res:      res,
		disk:     d,
		mut:      mut,
		signer:   signer,
		locks:    make(map[int64]*sync.Mutex),
	}
}

// HandleUpdate processes one classified interaction. Nothing that goes
// wrong here may take the process down: a top-level recover logs the
// fault and replies with a generic failure notice.
func (b *Bot) HandleUpdate(ctx context.Context, u chat.Update) {
	lock := b.userLock(u.UserID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logging.Error("panic in interaction handler",
				zap.Any("panic", r), zap.Int64("user_id", u.UserID), zap.String("kind", u.Kind.String()))
			metrics.RecordInteractionFailure("panic")
			b.send(ctx, u.UserID, i18n.T("generic_error"), nil)
		}
		metrics.RecordInteraction(u.Kind.String(), time.Since(start))
	}()

	if u.Kind == chat.KindControl && u.ControlID != "" {
		// Acknowledge immediately so the client stops its spinner.
		if err := b.tr.AnswerControl(ctx, u.ControlID, "", false); err != nil {
			logging.Debug("control ack failed", zap.Error(err))
		}
	}

	var err error
	switch u.Kind {
	case chat.KindCommand:
		err = b.handleCommand(ctx, u)
	case chat.KindText:
		err = b.handleText(ctx, u)
	case chat.KindFile:
		err = b.handleAttachment(ctx, u)
	case chat.KindControl:
		err = b.handleControl(ctx, u)
	}
	if err != nil {
		b.reportError(ctx, u, err)
	}
}

// reportError maps a failure to its user-facing message and logs the
// ones that matter operationally.
func (b *Bot) reportError(ctx context.Context, u chat.Update, err error) {
	var key string
	switch {
	case errors.Is(err, domain.ErrSecurityViolation):
		key = "path_not_allowed"
		logging.Error("security violation",
			zap.Int64("user_id", u.UserID), zap.String("token", u.Token), zap.Error(err))
	case errors.Is(err, domain.ErrForbidden):
		key = "not_authorized"
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrDuplicatePath):
		key = "folder_exists_generic"
	case errors.Is(err, domain.ErrInvalidName):
		key = "invalid_folder_name"
	case errors.Is(err, domain.ErrExpiredSession):
		key = "upload_expired"
	case errors.Is(err, domain.ErrNotFound):
		key = "file_missing"
	default:
		key = "generic_error"
		logging.Error("interaction failed",
			zap.Int64("user_id", u.UserID), zap.String("kind", u.Kind.String()), zap.Error(err))
	}
	metrics.RecordInteractionFailure(key)
	b.reply(ctx, u, i18n.T(key), nil)
}

// reply edits the originating message for control activations and sends
// a fresh message otherwise.
func (b *Bot) reply(ctx context.Context, u chat.Update, text string, kb chat.Keyboard) {
	if u.Kind == chat.KindControl && u.MessageID != 0 {
		if err := b.tr.EditMessage(ctx, u.UserID, u.MessageID, text, kb); err == nil {
			return
		}
		// Editing fails when the content is unchanged or the message is
		// gone; fall through to a fresh send.
	}
	b.send(ctx, u.UserID, text, kb)
}

func (b *Bot) send(ctx context.Context, userID int64, text string, kb chat.Keyboard) {
	if _, err := b.tr.SendMessage(ctx, userID, text, kb); err != nil {
		logging.Error("send failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (b *Bot) userLock(id int64) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[id]
	if !ok {
		l = &sync.Mutex{}
		b.locks[id] = l
	}
	return l
}

// register upserts the user row and applies the bootstrap escalation.
func (b *Bot) register(ctx context.Context, u chat.Update) (created bool, err error) {
	created, err = b.store.EnsureUser(ctx, u.UserID, u.Username)
	if err != nil {
		return false, err
	}
	if _, err := b.acl.EnsureBootstrap(ctx, u.UserID); err != nil {
		return created, err
	}
	return created, nil
}

func (b *Bot) roleOf(ctx context.Context, userID int64) (domain.Role, error) {
	return b.acl.RoleOf(ctx, userID)
}
