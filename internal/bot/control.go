package bot

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/archivist/archivist/internal/access"
	"github.com/archivist/archivist/internal/chat"
	"github.com/archivist/archivist/internal/domain"
	"github.com/archivist/archivist/internal/i18n"
	"github.com/archivist/archivist/internal/logging"
	"github.com/archivist/archivist/internal/metrics"
	"github.com/archivist/archivist/internal/session"
)

// handleControl decodes the activation token once and dispatches on the
// typed action.
func (b *Bot) handleControl(ctx context.Context, u chat.Update) error {
	action, err := Decode(u.Token)
	if err != nil {
		// Tokens we did not mint. Log and stay silent.
		logging.Warn("ignoring malformed control token",
			zap.Int64("user_id", u.UserID), zap.String("token", u.Token))
		return nil
	}

	switch action.Op {
	case OpNoop:
		return nil

	case OpMain:
		b.sessions.Clear(u.UserID)
		role, err := b.roleOf(ctx, u.UserID)
		if err != nil {
			return err
		}
		b.reply(ctx, u, i18n.T("choose_option"), b.mainMenu(role))
		return nil

	case OpMyRole:
		return b.cmdMyRole(ctx, u)

	case OpContact:
		b.reply(ctx, u, i18n.T("contact_usage"), nil)
		return nil

	case OpBrowse:
		rel, err := b.resolveBrowseArg(u.UserID, action.Arg)
		if err != nil {
			return err
		}
		return b.renderListing(ctx, u, rel, modeBrowse)

	case OpDownload:
		return b.sendDownload(ctx, u, action.Arg)

	case OpAdmin:
		return b.handleAdminMenu(ctx, u, action.Arg)

	case OpCreateNav:
		if err := b.requireRole(ctx, u.UserID, access.CanAdminister); err != nil {
			return err
		}
		return b.renderListing(ctx, u, action.Arg, modeCreate)

	case OpCreateHere:
		return b.startFolderCreation(ctx, u, action.Arg)

	case OpUploadNav:
		if err := b.requireRole(ctx, u.UserID, access.CanUpload); err != nil {
			return err
		}
		return b.renderListing(ctx, u, action.Arg, modeUpload)

	case OpUploadTo:
		return b.commitUpload(ctx, u, action.Arg)

	case OpCancelUpload:
		b.sessions.Clear(u.UserID)
		b.reply(ctx, u, i18n.T("upload_cancelled"), nil)
		return nil

	case OpDeleteNav:
		if err := b.requireRole(ctx, u.UserID, access.CanAdminister); err != nil {
			return err
		}
		return b.renderListing(ctx, u, action.Arg, modeDelete)

	case OpDeleteConfirm:
		return b.confirmDeletion(ctx, u, action.Arg)

	case OpDeleteExecute:
		return b.executeDeletion(ctx, u, action.Arg)

	default:
		logging.Warn("unhandled control action", zap.Int("op", int(action.Op)))
		return nil
	}
}

// sendDownload streams a stored file back to the user.
func (b *Bot) sendDownload(ctx context.Context, u chat.Update, rel string) error {
	abs, err := b.res.Abs(rel)
	if err != nil {
		metrics.RecordDownload(false)
		return err
	}
	node, err := b.store.GetNode(ctx, abs)
	if err != nil {
		metrics.RecordDownload(false)
		return err
	}
	if node.IsFolder {
		metrics.RecordDownload(false)
		return fmt.Errorf("download target %s is a folder: %w", rel, domain.ErrNotFound)
	}

	body, _, err := b.disk.Open(abs)
	if err != nil {
		metrics.RecordDownload(false)
		return err
	}
	defer body.Close()

	if err := b.tr.SendFile(ctx, u.UserID, node.Name, body); err != nil {
		metrics.RecordDownload(false)
		return fmt.Errorf("send %s: %w", node.Name, err)
	}
	metrics.RecordDownload(true)
	return nil
}

func (b *Bot) handleAdminMenu(ctx context.Context, u chat.Update, submenu string) error {
	if err := b.requireRole(ctx, u.UserID, access.CanAdminister); err != nil {
		return err
	}
	role, err := b.roleOf(ctx, u.UserID)
	if err != nil {
		return err
	}

	switch submenu {
	case "main", "":
		b.sessions.Clear(u.UserID)
		b.reply(ctx, u, i18n.T("admin_menu_title"), b.adminMenu(role))
	case "stats":
		return b.sendStats(ctx, u)
	case "staff":
		return b.sendStaffList(ctx, u)
	case "upload":
		b.reply(ctx, u, i18n.T("upload_hint"), nil)
	case "roles":
		if !access.CanSuperAdminister(role) {
			return fmt.Errorf("roles menu: %w", domain.ErrForbidden)
		}
		b.reply(ctx, u, i18n.T("roles_menu_title"), b.rolesMenu())
	case "setinfo":
		if !access.CanSuperAdminister(role) {
			return fmt.Errorf("setinfo menu: %w", domain.ErrForbidden)
		}
		b.reply(ctx, u, i18n.T("addadmin_usage"), nil)
	case "removeinfo":
		if !access.CanSuperAdminister(role) {
			return fmt.Errorf("removeinfo menu: %w", domain.ErrForbidden)
		}
		b.reply(ctx, u, i18n.T("removeadmin_usage"), nil)
	case "broadcast":
		if !access.CanSuperAdminister(role) {
			return fmt.Errorf("broadcast menu: %w", domain.ErrForbidden)
		}
		b.reply(ctx, u, i18n.T("broadcast_usage"), nil)
	default:
		logging.Warn("unknown admin submenu", zap.String("submenu", submenu))
	}
	return nil
}

// startFolderCreation enters AwaitingFolderName for the folder at rel.
func (b *Bot) startFolderCreation(ctx context.Context, u chat.Update, rel string) error {
	if err := b.requireRole(ctx, u.UserID, access.CanAdminister); err != nil {
		return err
	}
	abs, err := b.res.Abs(rel)
	if err != nil {
		return err
	}
	b.sessions.StartFolderCreation(u.UserID, abs)
	b.reply(ctx, u, i18n.T("create_prompt_name", b.pathLabel(abs)), nil)
	return nil
}

// finishFolderCreation consumes the awaited name and re-renders the
// parent listing.
func (b *Bot) finishFolderCreation(ctx context.Context, u chat.Update, parentAbs, name string) error {
	b.sessions.Clear(u.UserID)
	if err := b.requireRole(ctx, u.UserID, access.CanAdminister); err != nil {
		return err
	}

	if _, err := b.mut.CreateFolder(ctx, parentAbs, name, u.UserID); err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyExists):
			b.reply(ctx, u, i18n.T("folder_exists", name), nil)
			return nil
		case errors.Is(err, domain.ErrInvalidName):
			b.reply(ctx, u, i18n.T("invalid_folder_name"), nil)
			return nil
		default:
			return err
		}
	}

	b.send(ctx, u.UserID, i18n.T("folder_created", name), nil)
	text, kb, err := b.listing(ctx, parentAbs, modeBrowse)
	if err != nil {
		return err
	}
	b.sessions.SetBrowsePath(u.UserID, parentAbs)
	b.send(ctx, u.UserID, text, kb)
	return nil
}

// commitUpload finalizes the pending upload into the folder at rel. A
// missing pending file means the session expired, typically after a
// restart; the user is told to resend.
func (b *Bot) commitUpload(ctx context.Context, u chat.Update, rel string) error {
	if err := b.requireRole(ctx, u.UserID, access.CanUpload); err != nil {
		return err
	}

	up, ok := b.sessions.TakeUpload(u.UserID)
	if !ok {
		return fmt.Errorf("no pending upload for user %d: %w", u.UserID, domain.ErrExpiredSession)
	}

	destAbs, err := b.res.Abs(rel)
	if err != nil {
		return err
	}

	body, err := b.tr.FetchFile(ctx, up.FileRef)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", up.FileName, err)
	}
	defer body.Close()

	node, err := b.mut.CommitUpload(ctx, destAbs, up.FileName, body, u.UserID)
	if err != nil {
		return err
	}
	b.reply(ctx, u, i18n.T("upload_saved", node.Name, b.pathLabel(destAbs)), nil)
	return nil
}

// confirmDeletion parks the target in the session and asks for a yes/no.
func (b *Bot) confirmDeletion(ctx context.Context, u chat.Update, rel string) error {
	if err := b.requireRole(ctx, u.UserID, access.CanAdminister); err != nil {
		return err
	}
	abs, err := b.res.Abs(rel)
	if err != nil {
		return err
	}
	node, err := b.store.GetNode(ctx, abs)
	if err != nil {
		return err
	}

	parentRel, err := b.res.Rel(b.res.Parent(abs))
	if err != nil {
		return err
	}
	b.sessions.StartDeletion(u.UserID, rel)
	b.reply(ctx, u, i18n.T("delete_confirm", node.Name), b.confirmDeleteKeyboard(rel, parentRel))
	return nil
}

// executeDeletion runs the confirmed delete and returns to the parent
// listing. The session target must still match the token: a stale
// execute button from an abandoned confirmation is refused.
func (b *Bot) executeDeletion(ctx context.Context, u chat.Update, rel string) error {
	if err := b.requireRole(ctx, u.UserID, access.CanAdminister); err != nil {
		return err
	}

	st := b.sessions.Get(u.UserID)
	b.sessions.Clear(u.UserID)
	if st.Stage != session.ConfirmingDeletion || st.DeleteRel != rel {
		return fmt.Errorf("no deletion pending for %q: %w", rel, domain.ErrExpiredSession)
	}

	abs, err := b.res.Abs(rel)
	if err != nil {
		return err
	}
	node, err := b.mut.DeleteNode(ctx, abs)
	if err != nil {
		return err
	}

	b.send(ctx, u.UserID, i18n.T("deleted_ok", node.Name), nil)
	parentRel, err := b.res.Rel(b.res.Parent(abs))
	if err != nil {
		return err
	}
	return b.renderListing(ctx, chat.Update{Kind: chat.KindControl, UserID: u.UserID}, parentRel, modeDelete)
}

func isNotFound(err error) bool    { return errors.Is(err, domain.ErrNotFound) }
func isInvalidName(err error) bool { return errors.Is(err, domain.ErrInvalidName) }
