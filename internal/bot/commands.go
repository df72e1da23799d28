package bot

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/archivist/archivist/internal/access"
	"github.com/archivist/archivist/internal/chat"
	"github.com/archivist/archivist/internal/domain"
	"github.com/archivist/archivist/internal/i18n"
	"github.com/archivist/archivist/internal/logging"
	"github.com/archivist/archivist/internal/metrics"
	"github.com/archivist/archivist/internal/session"
)

// handleCommand dispatches slash commands. The session is left alone:
// a command answered mid-workflow must not abandon an awaited folder
// name or a parked upload.
func (b *Bot) handleCommand(ctx context.Context, u chat.Update) error {
	switch u.Command {
	case "start":
		return b.cmdStart(ctx, u)
	case "myrole":
		return b.cmdMyRole(ctx, u)
	case "contact_admin":
		return b.cmdContactAdmin(ctx, u)
	case "stats":
		return b.cmdStats(ctx, u)
	case "listadmins":
		return b.cmdListStaff(ctx, u)
	case "addadmin":
		return b.cmdAddRole(ctx, u)
	case "removeadmin":
		return b.cmdRemoveRole(ctx, u)
	case "broadcast":
		return b.cmdBroadcast(ctx, u)
	case "link":
		return b.cmdLink(ctx, u)
	case "newfolder":
		return b.cmdNewFolder(ctx, u)
	case "delete":
		return b.cmdDelete(ctx, u)
	default:
		role, err := b.roleOf(ctx, u.UserID)
		if err != nil {
			return err
		}
		b.reply(ctx, u, i18n.T("choose_option"), b.mainMenu(role))
		return nil
	}
}

func (b *Bot) cmdStart(ctx context.Context, u chat.Update) error {
	created, err := b.register(ctx, u)
	if err != nil {
		return err
	}
	role, err := b.roleOf(ctx, u.UserID)
	if err != nil {
		return err
	}

	name := u.Username
	if name == "" {
		name = fmt.Sprintf("user %d", u.UserID)
	}
	key := "welcome_back"
	if created {
		key = "welcome_new"
	}
	b.reply(ctx, u, i18n.T(key, name), b.mainMenu(role))
	return nil
}

func (b *Bot) cmdMyRole(ctx context.Context, u chat.Update) error {
	role, err := b.roleOf(ctx, u.UserID)
	if err != nil {
		return err
	}
	if role == domain.RoleUnregistered {
		b.reply(ctx, u, i18n.T("my_role_unregistered"), nil)
		return nil
	}
	b.reply(ctx, u, i18n.T("my_role", role.String()), b.mainMenu(role))
	return nil
}

// cmdContactAdmin relays the message body to every administrator.
func (b *Bot) cmdContactAdmin(ctx context.Context, u chat.Update) error {
	body := strings.TrimSpace(strings.Join(u.Args, " "))
	if body == "" {
		b.reply(ctx, u, i18n.T("contact_usage"), nil)
		return nil
	}
	admins, err := b.store.AdminIDs(ctx)
	if err != nil {
		return err
	}
	if len(admins) == 0 {
		b.reply(ctx, u, i18n.T("contact_none"), nil)
		return nil
	}
	msg := i18n.T("contact_from", u.Username, u.UserID, body)
	for _, id := range admins {
		if _, err := b.tr.SendMessage(ctx, id, msg, nil); err != nil {
			logging.Error("contact relay failed", zap.Int64("admin_id", id), zap.Error(err))
		}
	}
	b.reply(ctx, u, i18n.T("contact_sent"), nil)
	return nil
}

func (b *Bot) cmdStats(ctx context.Context, u chat.Update) error {
	if err := b.requireRole(ctx, u.UserID, access.CanAdminister); err != nil {
		return err
	}
	return b.sendStats(ctx, u)
}

func (b *Bot) sendStats(ctx context.Context, u chat.Update) error {
	st, err := b.store.Stats(ctx)
	if err != nil {
		return err
	}
	mb := float64(st.TotalBytes) / (1024 * 1024)
	b.reply(ctx, u, i18n.T("stats", st.Users, st.Files, st.Folders, mb), nil)
	return nil
}

func (b *Bot) cmdListStaff(ctx context.Context, u chat.Update) error {
	if err := b.requireRole(ctx, u.UserID, access.CanAdminister); err != nil {
		return err
	}
	return b.sendStaffList(ctx, u)
}

func (b *Bot) sendStaffList(ctx context.Context, u chat.Update) error {
	staff, err := b.store.ListStaff(ctx)
	if err != nil {
		return err
	}
	if len(staff) == 0 {
		b.reply(ctx, u, i18n.T("staff_none"), nil)
		return nil
	}
	lines := []string{i18n.T("staff_header")}
	for _, s := range staff {
		lines = append(lines, i18n.T("staff_entry", s.Username, s.Role.String()))
	}
	b.reply(ctx, u, strings.Join(lines, "\n"), nil)
	return nil
}

// cmdAddRole grants user/uploader/admin by handle. Defaults to admin to
// match the command name.
func (b *Bot) cmdAddRole(ctx context.Context, u chat.Update) error {
	if len(u.Args) < 1 {
		b.reply(ctx, u, i18n.T("addadmin_usage"), nil)
		return nil
	}
	handle := strings.TrimPrefix(u.Args[0], "@")
	role := domain.RoleAdmin
	if len(u.Args) > 1 {
		role = domain.ParseRole(u.Args[1])
		if role == domain.RoleUnregistered {
			b.reply(ctx, u, i18n.T("invalid_role"), nil)
			return nil
		}
	}

	target, err := b.acl.AssignRole(ctx, u.UserID, handle, role)
	if err != nil {
		return b.roleAssignError(ctx, u, handle, err)
	}
	b.reply(ctx, u, i18n.T("role_set", target.Username, target.Role.String()), nil)
	return nil
}

func (b *Bot) cmdRemoveRole(ctx context.Context, u chat.Update) error {
	if len(u.Args) < 1 {
		b.reply(ctx, u, i18n.T("removeadmin_usage"), nil)
		return nil
	}
	handle := strings.TrimPrefix(u.Args[0], "@")
	target, err := b.acl.AssignRole(ctx, u.UserID, handle, domain.RoleUser)
	if err != nil {
		return b.roleAssignError(ctx, u, handle, err)
	}
	b.reply(ctx, u, i18n.T("role_removed", target.Username), nil)
	return nil
}

// roleAssignError gives role-management failures friendlier wording
// than the generic taxonomy mapping.
func (b *Bot) roleAssignError(ctx context.Context, u chat.Update, handle string, err error) error {
	switch {
	case isNotFound(err):
		b.reply(ctx, u, i18n.T("user_not_found", handle), nil)
		return nil
	case isInvalidName(err):
		b.reply(ctx, u, i18n.T("invalid_role"), nil)
		return nil
	default:
		return err
	}
}

// cmdBroadcast pushes the message body to every registered user.
func (b *Bot) cmdBroadcast(ctx context.Context, u chat.Update) error {
	if err := b.requireRole(ctx, u.UserID, access.CanSuperAdminister); err != nil {
		return err
	}
	body := strings.TrimSpace(strings.Join(u.Args, " "))
	if body == "" {
		b.reply(ctx, u, i18n.T("broadcast_usage"), nil)
		return nil
	}

	ids, err := b.store.AllUserIDs(ctx)
	if err != nil {
		return err
	}
	msg := i18n.T("broadcast_prefix", body)
	var delivered, failed int
	for _, id := range ids {
		if id == u.UserID {
			continue
		}
		if _, err := b.tr.SendMessage(ctx, id, msg, nil); err != nil {
			failed++
			metrics.RecordBroadcastDelivery(false)
			logging.Debug("broadcast delivery failed", zap.Int64("user_id", id), zap.Error(err))
			continue
		}
		delivered++
		metrics.RecordBroadcastDelivery(true)
	}
	b.reply(ctx, u, i18n.T("broadcast_done", delivered, failed), nil)
	return nil
}

// cmdLink issues a signed download URL for a file path.
func (b *Bot) cmdLink(ctx context.Context, u chat.Update) error {
	if err := b.requireRole(ctx, u.UserID, access.CanAdminister); err != nil {
		return err
	}
	if b.signer == nil || !b.signer.Enabled() {
		b.reply(ctx, u, i18n.T("link_unavailable"), nil)
		return nil
	}
	if len(u.Args) < 1 {
		b.reply(ctx, u, i18n.T("link_usage"), nil)
		return nil
	}

	rel := strings.Join(u.Args, " ")
	abs, err := b.res.Abs(rel)
	if err != nil {
		return err
	}
	node, err := b.store.GetNode(ctx, abs)
	if err != nil {
		return err
	}
	if node.IsFolder {
		return fmt.Errorf("share target %s is a folder: %w", rel, domain.ErrNotFound)
	}

	url, err := b.signer.Issue(rel)
	if err != nil {
		return err
	}
	metrics.RecordShareLinkIssued()
	b.reply(ctx, u, i18n.T("link_issued", b.signer.TTL(), url), nil)
	return nil
}

// cmdNewFolder opens the folder-creation picker at the root, same as
// the admin menu entry.
func (b *Bot) cmdNewFolder(ctx context.Context, u chat.Update) error {
	if err := b.requireRole(ctx, u.UserID, access.CanAdminister); err != nil {
		return err
	}
	return b.renderListing(ctx, u, ".", modeCreate)
}

// cmdDelete opens the deletion picker at the root.
func (b *Bot) cmdDelete(ctx context.Context, u chat.Update) error {
	if err := b.requireRole(ctx, u.UserID, access.CanAdminister); err != nil {
		return err
	}
	return b.renderListing(ctx, u, ".", modeDelete)
}

// handleText consumes free text only when a folder name is awaited;
// everything else gets the main menu.
func (b *Bot) handleText(ctx context.Context, u chat.Update) error {
	st := b.sessions.Get(u.UserID)
	if st.Stage == session.AwaitingFolderName {
		return b.finishFolderCreation(ctx, u, st.CreateParent, strings.TrimSpace(u.Text))
	}

	role, err := b.roleOf(ctx, u.UserID)
	if err != nil {
		return err
	}
	b.reply(ctx, u, i18n.T("choose_option"), b.mainMenu(role))
	return nil
}

// handleAttachment opens the upload workflow: capability check, park
// the file meta in the session, show the destination picker.
func (b *Bot) handleAttachment(ctx context.Context, u chat.Update) error {
	if u.File == nil {
		return nil
	}
	if err := b.requireRole(ctx, u.UserID, access.CanUpload); err != nil {
		return err
	}

	b.sessions.StartUpload(u.UserID, session.PendingUpload{
		FileRef:   u.File.Ref,
		FileName:  u.File.Name,
		SizeBytes: u.File.SizeBytes,
	})

	_, kb, err := b.listing(ctx, b.res.Root(), modeUpload)
	if err != nil {
		return err
	}
	b.reply(ctx, u, i18n.T("upload_pick_root", u.File.Name), kb)
	return nil
}

// requireRole runs a capability predicate against the caller's role.
func (b *Bot) requireRole(ctx context.Context, userID int64, allowed func(domain.Role) bool) error {
	role, err := b.roleOf(ctx, userID)
	if err != nil {
		return err
	}
	if !allowed(role) {
		return fmt.Errorf("user %d with role %s: %w", userID, role, domain.ErrForbidden)
	}
	return nil
}
