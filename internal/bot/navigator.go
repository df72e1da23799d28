package bot

import (
	"context"
	"fmt"

	"github.com/archivist/archivist/internal/chat"
	"github.com/archivist/archivist/internal/domain"
	"github.com/archivist/archivist/internal/i18n"
)

// navMode selects which actions a folder listing exposes.
type navMode int

const (
	modeBrowse navMode = iota
	modeCreate
	modeUpload
	modeDelete
)

var navOps = map[navMode]Op{
	modeBrowse: OpBrowse,
	modeCreate: OpCreateNav,
	modeUpload: OpUploadNav,
	modeDelete: OpDeleteNav,
}

// button builds a control, downgrading to noop when the encoded token
// would exceed the transport limit. Deeply nested paths stay visible in
// the listing even when they cannot carry an action.
func button(label string, a Action) chat.Button {
	tok := Encode(a)
	if len(tok) > chat.MaxTokenLength {
		tok = Encode(Action{Op: OpNoop})
	}
	return chat.Button{Label: label, Token: tok}
}

// pathLabel renders a directory for message text: "/" for the root,
// "/docs/reports" below it.
func (b *Bot) pathLabel(abs string) string {
	rel, err := b.res.Rel(abs)
	if err != nil || rel == "." {
		return "/"
	}
	return "/" + rel
}

// listing builds the message text and keyboard for a directory in the
// given mode. The caller has already containment-checked abs.
func (b *Bot) listing(ctx context.Context, abs string, mode navMode) (string, chat.Keyboard, error) {
	filter := domain.AllChildren
	if mode == modeCreate || mode == modeUpload {
		filter = domain.FoldersOnly
	}
	children, err := b.store.ListChildren(ctx, abs, filter)
	if err != nil {
		return "", nil, err
	}

	rel, err := b.res.Rel(abs)
	if err != nil {
		return "", nil, err
	}

	var kb chat.Keyboard
	for _, child := range children {
		childRel, err := b.res.Rel(child.Path)
		if err != nil {
			return "", nil, err
		}
		kb = append(kb, b.childRow(child, childRel, mode))
	}

	kb = append(kb, b.navRows(rel, abs, mode)...)

	label := b.pathLabel(abs)
	text := i18n.T("folder_contents", label)
	if len(children) == 0 {
		text = i18n.T("folder_empty", label)
	}
	switch mode {
	case modeCreate:
		text = i18n.T("create_pick", label)
	case modeUpload:
		text = i18n.T("upload_pick", label)
	case modeDelete:
		text = i18n.T("delete_pick", label)
	}
	return text, kb, nil
}

// childRow renders one entry with the actions its mode allows.
func (b *Bot) childRow(n *domain.Node, rel string, mode navMode) []chat.Button {
	if n.IsFolder {
		descend := button("📁 "+n.Name, Action{Op: navOps[mode], Arg: rel})
		if mode == modeDelete {
			return []chat.Button{descend, button("🗑️", Action{Op: OpDeleteConfirm, Arg: rel})}
		}
		return []chat.Button{descend}
	}
	switch mode {
	case modeBrowse:
		return []chat.Button{button("📄 "+n.Name, Action{Op: OpDownload, Arg: rel})}
	case modeDelete:
		return []chat.Button{
			button("📄 "+n.Name, Action{Op: OpNoop}),
			button("🗑️", Action{Op: OpDeleteConfirm, Arg: rel}),
		}
	default:
		return []chat.Button{button("📄 "+n.Name, Action{Op: OpNoop})}
	}
}

// navRows appends the mode extras, the up action and the exits.
func (b *Bot) navRows(rel, abs string, mode navMode) chat.Keyboard {
	var kb chat.Keyboard

	switch mode {
	case modeCreate:
		kb = append(kb, []chat.Button{button(i18n.T("btn_create_here"), Action{Op: OpCreateHere, Arg: rel})})
	case modeUpload:
		if !b.res.IsRoot(abs) {
			kb = append(kb, []chat.Button{button(i18n.T("btn_select_folder"), Action{Op: OpUploadTo, Arg: rel})})
		}
		kb = append(kb, []chat.Button{button(i18n.T("btn_cancel_upload"), Action{Op: OpCancelUpload})})
	}

	if !b.res.IsRoot(abs) {
		parentRel, err := b.res.Rel(b.res.Parent(abs))
		if err == nil {
			up := Action{Op: navOps[mode], Arg: parentRel}
			if mode == modeBrowse {
				up.Arg = ".."
			}
			label := i18n.T("btn_go_up", b.pathLabel(b.res.Parent(abs)))
			kb = append(kb, []chat.Button{button(label, up)})
		}
	}

	switch mode {
	case modeDelete:
		kb = append(kb, []chat.Button{button(i18n.T("btn_back_admin"), Action{Op: OpAdmin, Arg: "main"})})
	case modeBrowse, modeCreate:
		kb = append(kb, []chat.Button{button(i18n.T("btn_main_menu"), Action{Op: OpMain})})
	}
	return kb
}

// mainMenu is the top-level keyboard; the admin entry appears only for
// administrators.
func (b *Bot) mainMenu(role domain.Role) chat.Keyboard {
	kb := chat.Keyboard{
		{button(i18n.T("btn_browse"), Action{Op: OpBrowse, Arg: "root"})},
		{button(i18n.T("btn_my_role"), Action{Op: OpMyRole})},
		{button(i18n.T("btn_contact"), Action{Op: OpContact})},
	}
	if role.AtLeast(domain.RoleAdmin) {
		kb = append(kb, []chat.Button{button(i18n.T("btn_admin_menu"), Action{Op: OpAdmin, Arg: "main"})})
	}
	return kb
}

func (b *Bot) adminMenu(role domain.Role) chat.Keyboard {
	kb := chat.Keyboard{
		{button(i18n.T("btn_upload_info"), Action{Op: OpAdmin, Arg: "upload"})},
		{button(i18n.T("btn_new_folder"), Action{Op: OpCreateNav, Arg: "."})},
		{button(i18n.T("btn_delete"), Action{Op: OpDeleteNav, Arg: "."})},
		{button(i18n.T("btn_stats"), Action{Op: OpAdmin, Arg: "stats"})},
		{button(i18n.T("btn_staff"), Action{Op: OpAdmin, Arg: "staff"})},
	}
	if role == domain.RoleSuperAdmin {
		kb = append(kb,
			[]chat.Button{button(i18n.T("btn_roles"), Action{Op: OpAdmin, Arg: "roles"})},
			[]chat.Button{button(i18n.T("btn_broadcast"), Action{Op: OpAdmin, Arg: "broadcast"})},
		)
	}
	kb = append(kb, []chat.Button{button(i18n.T("btn_main_menu"), Action{Op: OpMain})})
	return kb
}

func (b *Bot) rolesMenu() chat.Keyboard {
	return chat.Keyboard{
		{button(i18n.T("btn_set_role"), Action{Op: OpAdmin, Arg: "setinfo"})},
		{button(i18n.T("btn_remove_role"), Action{Op: OpAdmin, Arg: "removeinfo"})},
		{button(i18n.T("btn_back_admin"), Action{Op: OpAdmin, Arg: "main"})},
	}
}

// confirmDeleteKeyboard asks for a yes/no on the item at rel; cancel
// returns to the delete listing of the parent.
func (b *Bot) confirmDeleteKeyboard(rel, parentRel string) chat.Keyboard {
	return chat.Keyboard{
		{
			button(i18n.T("btn_delete_yes"), Action{Op: OpDeleteExecute, Arg: rel}),
			button(i18n.T("btn_delete_no"), Action{Op: OpDeleteNav, Arg: parentRel}),
		},
	}
}

// renderListing resolves a relative id, lists it and replies, tracking
// the browse path for later ".." resolution.
func (b *Bot) renderListing(ctx context.Context, u chat.Update, rel string, mode navMode) error {
	abs, err := b.res.Abs(rel)
	if err != nil {
		return err
	}
	text, kb, err := b.listing(ctx, abs, mode)
	if err != nil {
		return err
	}
	b.sessions.SetBrowsePath(u.UserID, abs)
	b.reply(ctx, u, text, kb)
	return nil
}

// resolveBrowseArg maps the browse-token argument space onto a relative
// id: "root" is the root, ".." is relative to the tracked browse path.
func (b *Bot) resolveBrowseArg(userID int64, arg string) (string, error) {
	switch arg {
	case "root", "", ".":
		return ".", nil
	case "..":
		cur := b.sessions.Get(userID).BrowsePath
		if cur == "" {
			return ".", nil
		}
		rel, err := b.res.Rel(b.res.Parent(cur))
		if err != nil {
			return "", fmt.Errorf("resolve up from %s: %w", cur, err)
		}
		return rel, nil
	default:
		return arg, nil
	}
}
