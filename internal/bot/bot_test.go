package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/archivist/archivist/internal/access"
	"github.com/archivist/archivist/internal/chat"
	"github.com/archivist/archivist/internal/domain"
	"github.com/archivist/archivist/internal/fileops"
	"github.com/archivist/archivist/internal/paths"
	"github.com/archivist/archivist/internal/session"
	"github.com/archivist/archivist/internal/storage/disk"
)

// fakeStore is an in-memory stand-in for the postgres store, keyed the
// same way: absolute unique paths for nodes, ids for users.
type fakeStore struct {
	mu     sync.Mutex
	nodes  map[string]*domain.Node
	users  map[int64]*domain.User
	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nodes: make(map[string]*domain.Node),
		users: make(map[int64]*domain.User),
	}
}

func (f *fakeStore) InsertNode(_ context.Context, n *domain.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nodes[n.Path]; ok {
		return fmt.Errorf("insert %s: %w", n.Path, domain.ErrDuplicatePath)
	}
	f.nextID++
	n.ID = f.nextID
	cp := *n
	f.nodes[n.Path] = &cp
	return nil
}

func (f *fakeStore) GetNode(_ context.Context, path string) (*domain.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[path]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", path, domain.ErrNotFound)
	}
	cp := *n
	return &cp, nil
}

func (f *fakeStore) DeleteExact(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nodes[path]; !ok {
		return fmt.Errorf("delete %s: %w", path, domain.ErrNotFound)
	}
	delete(f.nodes, path)
	return nil
}

func (f *fakeStore) DeleteSubtree(_ context.Context, path string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	prefix := path + string(os.PathSeparator)
	for p := range f.nodes {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(f.nodes, p)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListChildren(_ context.Context, parent string, filter domain.ChildFilter) ([]*domain.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Node
	for p, n := range f.nodes {
		if filepath.Dir(p) != parent {
			continue
		}
		if filter == domain.FoldersOnly && !n.IsFolder {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsFolder != out[j].IsFolder {
			return out[i].IsFolder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (f *fakeStore) EnsureUser(_ context.Context, id int64, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.Username = username
		return false, nil
	}
	f.users[id] = &domain.User{ID: id, Username: username, Role: domain.RoleUser}
	return true, nil
}

func (f *fakeStore) RoleOf(_ context.Context, id int64) (domain.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u.Role, nil
	}
	return domain.RoleUnregistered, nil
}

func (f *fakeStore) SetRole(_ context.Context, id int64, role domain.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	u.Role = role
	return nil
}

func (f *fakeStore) UserByUsername(_ context.Context, username string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user @%s: %w", username, domain.ErrNotFound)
}

func (f *fakeStore) ListStaff(_ context.Context) ([]*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.User
	for _, u := range f.users {
		if u.Role.AtLeast(domain.RoleUploader) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) AllUserIDs(_ context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id := range f.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeStore) AdminIDs(_ context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id, u := range f.users {
		if u.Role.AtLeast(domain.RoleAdmin) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeStore) Stats(_ context.Context) (*domain.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := &domain.Stats{Users: int64(len(f.users))}
	for _, n := range f.nodes {
		if n.IsFolder {
			st.Folders++
		} else {
			st.Files++
			st.TotalBytes += n.SizeBytes
		}
	}
	return st, nil
}

type sentMessage struct {
	UserID int64
	Text   string
	KB     chat.Keyboard
	Edited bool
}

// fakeTransport records everything the bot sends and serves attachment
// bytes from an in-memory map.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []sentMessage
	files    map[string]sentMessage // documents sent, keyed by name
	refs     map[string][]byte      // attachment bytes by ref
	nextID   int
	failSend map[int64]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		files:    make(map[string]sentMessage),
		refs:     make(map[string][]byte),
		failSend: make(map[int64]bool),
	}
}

func (f *fakeTransport) SendMessage(_ context.Context, userID int64, text string, kb chat.Keyboard) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend[userID] {
		return 0, errors.New("user blocked the bot")
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{UserID: userID, Text: text, KB: kb})
	return f.nextID, nil
}

func (f *fakeTransport) EditMessage(_ context.Context, userID int64, _ int, text string, kb chat.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{UserID: userID, Text: text, KB: kb, Edited: true})
	return nil
}

func (f *fakeTransport) SendFile(_ context.Context, userID int64, name string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = sentMessage{UserID: userID, Text: string(data)}
	return nil
}

func (f *fakeTransport) FetchFile(_ context.Context, ref string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.refs[ref]
	if !ok {
		return nil, fmt.Errorf("unknown file ref %q", ref)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeTransport) AnswerControl(_ context.Context, _, _ string, _ bool) error { return nil }

func (f *fakeTransport) last(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no messages sent")
	}
	return f.sent[len(f.sent)-1]
}

type fixture struct {
	bot   *Bot
	store *fakeStore
	tr    *fakeTransport
	res   *paths.Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	res, err := paths.NewResolver(root)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	d, err := disk.New(root)
	if err != nil {
		t.Fatalf("disk.New: %v", err)
	}
	store := newFakeStore()
	mut := fileops.New(res, store, d, nil)
	acl := access.NewController(store, 0)
	b := New(newFakeTransport(), store, acl, session.NewStore(), res, d, mut, nil)
	tr := b.tr.(*fakeTransport)
	return &fixture{bot: b, store: store, tr: tr, res: res}
}

// user registers a user with the given role and returns its id.
func (fx *fixture) user(t *testing.T, id int64, name string, role domain.Role) {
	t.Helper()
	if _, err := fx.store.EnsureUser(context.Background(), id, name); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if err := fx.store.SetRole(context.Background(), id, role); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
}

// mkFolder seeds a folder on disk and in the store.
func (fx *fixture) mkFolder(t *testing.T, rel string) string {
	t.Helper()
	abs, err := fx.res.Abs(rel)
	if err != nil {
		t.Fatalf("Abs(%q): %v", rel, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	node := &domain.Node{Name: filepath.Base(abs), Path: abs, IsFolder: true}
	if err := fx.store.InsertNode(context.Background(), node); err != nil {
		t.Fatalf("insert folder: %v", err)
	}
	return abs
}

func control(userID int64, token string) chat.Update {
	return chat.Update{Kind: chat.KindControl, UserID: userID, MessageID: 1, Token: token}
}

func TestStartRegistersAndShowsMenu(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.bot.HandleUpdate(ctx, chat.Update{Kind: chat.KindCommand, UserID: 7, Username: "ada", Command: "start"})

	msg := fx.tr.last(t)
	if !strings.Contains(msg.Text, "ada") {
		t.Errorf("welcome text %q does not mention the user", msg.Text)
	}
	var tokens []string
	for _, row := range msg.KB {
		for _, b := range row {
			tokens = append(tokens, b.Token)
		}
	}
	joined := strings.Join(tokens, " ")
	if !strings.Contains(joined, "browse:root") {
		t.Errorf("main menu tokens %v lack browse:root", tokens)
	}
	if strings.Contains(joined, "admin:") {
		t.Errorf("plain user sees admin entry: %v", tokens)
	}

	role, _ := fx.store.RoleOf(ctx, 7)
	if role != domain.RoleUser {
		t.Errorf("role after start = %v, want user", role)
	}
}

func TestBootstrapEscalation(t *testing.T) {
	root := t.TempDir()
	res, _ := paths.NewResolver(root)
	d, _ := disk.New(root)
	store := newFakeStore()
	mut := fileops.New(res, store, d, nil)
	acl := access.NewController(store, 99)
	b := New(newFakeTransport(), store, acl, session.NewStore(), res, d, mut, nil)

	b.HandleUpdate(context.Background(), chat.Update{Kind: chat.KindCommand, UserID: 99, Username: "root", Command: "start"})

	role, _ := store.RoleOf(context.Background(), 99)
	if role != domain.RoleSuperAdmin {
		t.Errorf("bootstrap role = %v, want super_admin", role)
	}
}

func TestBrowseListsFoldersFirst(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.user(t, 1, "ada", domain.RoleUser)
	fx.mkFolder(t, "docs")
	abs, _ := fx.res.Abs("a.txt")
	fx.store.InsertNode(ctx, &domain.Node{Name: "a.txt", Path: abs, IsFolder: false, SizeBytes: 3})

	fx.bot.HandleUpdate(ctx, control(1, "browse:root"))

	msg := fx.tr.last(t)
	if !msg.Edited {
		t.Error("control reply should edit the originating message")
	}
	if len(msg.KB) < 2 {
		t.Fatalf("keyboard too small: %+v", msg.KB)
	}
	if msg.KB[0][0].Token != "browse:docs" {
		t.Errorf("first entry token = %q, want browse:docs (folders first)", msg.KB[0][0].Token)
	}
	if msg.KB[1][0].Token != "download:a.txt" {
		t.Errorf("second entry token = %q, want download:a.txt", msg.KB[1][0].Token)
	}
}

func TestBrowseEmptyFolder(t *testing.T) {
	fx := newFixture(t)
	fx.user(t, 1, "ada", domain.RoleUser)
	fx.mkFolder(t, "empty")

	fx.bot.HandleUpdate(context.Background(), control(1, "browse:empty"))

	msg := fx.tr.last(t)
	if !strings.Contains(msg.Text, "empty") {
		t.Errorf("empty-folder text = %q", msg.Text)
	}
	for _, row := range msg.KB {
		for _, btn := range row {
			if strings.HasPrefix(btn.Token, "download:") || btn.Token == "browse:empty" {
				t.Errorf("empty folder rendered child control %q", btn.Token)
			}
		}
	}
}

func TestBrowseEscapeRejected(t *testing.T) {
	fx := newFixture(t)
	fx.user(t, 1, "ada", domain.RoleUser)

	fx.bot.HandleUpdate(context.Background(), control(1, "browse:../../etc"))

	msg := fx.tr.last(t)
	if !strings.Contains(msg.Text, "not allowed") {
		t.Errorf("escape attempt reply = %q, want path-not-allowed", msg.Text)
	}
}

func TestBrowseUpFromSubfolder(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.user(t, 1, "ada", domain.RoleUser)
	fx.mkFolder(t, "docs")
	fx.mkFolder(t, "docs/reports")

	fx.bot.HandleUpdate(ctx, control(1, "browse:docs/reports"))
	fx.bot.HandleUpdate(ctx, control(1, "browse:.."))

	msg := fx.tr.last(t)
	if !strings.Contains(msg.Text, "/docs") {
		t.Errorf("after up, listing text = %q, want /docs", msg.Text)
	}
}

func TestDownloadSendsFile(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.user(t, 1, "ada", domain.RoleUser)
	fx.mkFolder(t, "docs")
	abs, _ := fx.res.Abs("docs/note.txt")
	if err := os.WriteFile(abs, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	fx.store.InsertNode(ctx, &domain.Node{Name: "note.txt", Path: abs, SizeBytes: 5})

	fx.bot.HandleUpdate(ctx, control(1, "download:docs/note.txt"))

	got, ok := fx.tr.files["note.txt"]
	if !ok {
		t.Fatal("no document sent")
	}
	if got.Text != "hello" {
		t.Errorf("document body = %q, want hello", got.Text)
	}
}

func TestFolderCreationWorkflow(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.user(t, 5, "boss", domain.RoleAdmin)

	fx.bot.HandleUpdate(ctx, control(5, "createHere:."))
	fx.bot.HandleUpdate(ctx, chat.Update{Kind: chat.KindText, UserID: 5, Text: "projects"})

	abs, _ := fx.res.Abs("projects")
	if _, err := fx.store.GetNode(ctx, abs); err != nil {
		t.Fatalf("folder record missing: %v", err)
	}
	if fi, err := os.Stat(abs); err != nil || !fi.IsDir() {
		t.Fatalf("folder missing on disk: %v", err)
	}

	// Same name again fails with a user-visible collision notice.
	fx.bot.HandleUpdate(ctx, control(5, "createHere:."))
	fx.bot.HandleUpdate(ctx, chat.Update{Kind: chat.KindText, UserID: 5, Text: "projects"})
	if !strings.Contains(fx.tr.last(t).Text, "already exists") {
		t.Errorf("duplicate create reply = %q", fx.tr.last(t).Text)
	}
}

func TestFolderCreationRejectsEscapingName(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.user(t, 5, "boss", domain.RoleAdmin)

	fx.bot.HandleUpdate(ctx, control(5, "createHere:."))
	fx.bot.HandleUpdate(ctx, chat.Update{Kind: chat.KindText, UserID: 5, Text: "../evil"})

	if !strings.Contains(fx.tr.last(t).Text, "not allowed") {
		t.Errorf("escaping name reply = %q", fx.tr.last(t).Text)
	}
	if entries, _ := os.ReadDir(fx.res.Root()); len(entries) != 0 {
		t.Errorf("root gained entries: %v", entries)
	}
}

func TestFolderCreationSurvivesCommand(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.user(t, 5, "boss", domain.RoleAdmin)
	fx.mkFolder(t, "docs")

	// A command answered between the prompt and the name must not
	// abandon the workflow.
	fx.bot.HandleUpdate(ctx, control(5, "createHere:docs"))
	fx.bot.HandleUpdate(ctx, chat.Update{Kind: chat.KindCommand, UserID: 5, Command: "myrole"})
	fx.bot.HandleUpdate(ctx, chat.Update{Kind: chat.KindText, UserID: 5, Text: "reports"})

	abs, _ := fx.res.Abs("docs/reports")
	if _, err := fx.store.GetNode(ctx, abs); err != nil {
		t.Fatalf("folder record missing after intervening command: %v", err)
	}
	if fi, err := os.Stat(abs); err != nil || !fi.IsDir() {
		t.Fatalf("folder missing on disk: %v", err)
	}
}

func TestFolderCreationRequiresAdmin(t *testing.T) {
	fx := newFixture(t)
	fx.user(t, 2, "pleb", domain.RoleUploader)

	fx.bot.HandleUpdate(context.Background(), control(2, "createHere:."))

	if !strings.Contains(fx.tr.last(t).Text, "permission") {
		t.Errorf("reply = %q, want permission denial", fx.tr.last(t).Text)
	}
}

func TestUploadEndToEnd(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.user(t, 3, "sender", domain.RoleUploader)
	fx.mkFolder(t, "reports")
	fx.tr.refs["ref-1"] = []byte("quarterly numbers")

	// File arrives: destination picker opens at the root.
	fx.bot.HandleUpdate(ctx, chat.Update{
		Kind:   chat.KindFile,
		UserID: 3,
		File:   &chat.FileMeta{Ref: "ref-1", Name: "q3.txt", SizeBytes: 17},
	})
	msg := fx.tr.last(t)
	found := false
	for _, row := range msg.KB {
		for _, btn := range row {
			if btn.Token == "uploadNav:reports" {
				found = true
			}
			if btn.Token == "uploadTo:." {
				t.Error("root offered as upload destination")
			}
		}
	}
	if !found {
		t.Fatalf("picker lacks reports folder: %+v", msg.KB)
	}

	// Navigate in and select the folder.
	fx.bot.HandleUpdate(ctx, control(3, "uploadNav:reports"))
	fx.bot.HandleUpdate(ctx, control(3, "uploadTo:reports"))

	abs, _ := fx.res.Abs("reports/q3.txt")
	node, err := fx.store.GetNode(ctx, abs)
	if err != nil {
		t.Fatalf("uploaded record missing: %v", err)
	}
	if node.IsFolder || node.SizeBytes != int64(len("quarterly numbers")) {
		t.Errorf("node = %+v", node)
	}
	data, err := os.ReadFile(abs)
	if err != nil || string(data) != "quarterly numbers" {
		t.Errorf("on-disk bytes = %q, %v", data, err)
	}

	// Session slot is free again.
	if _, ok := fx.bot.sessions.TakeUpload(3); ok {
		t.Error("pending upload survived the commit")
	}
}

func TestUploadCollisionSuffix(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.user(t, 3, "sender", domain.RoleUploader)
	fx.mkFolder(t, "reports")
	existing, _ := fx.res.Abs("reports/report.pdf")
	if err := os.WriteFile(existing, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	fx.store.InsertNode(ctx, &domain.Node{Name: "report.pdf", Path: existing, SizeBytes: 3})
	fx.tr.refs["ref-2"] = []byte("new")

	fx.bot.HandleUpdate(ctx, chat.Update{
		Kind: chat.KindFile, UserID: 3,
		File: &chat.FileMeta{Ref: "ref-2", Name: "report.pdf", SizeBytes: 3},
	})
	fx.bot.HandleUpdate(ctx, control(3, "uploadTo:reports"))

	suffixed, _ := fx.res.Abs("reports/report_1.pdf")
	if _, err := fx.store.GetNode(ctx, suffixed); err != nil {
		t.Fatalf("suffixed record missing: %v", err)
	}
	if data, _ := os.ReadFile(existing); string(data) != "old" {
		t.Errorf("original overwritten: %q", data)
	}
}

func TestUploadRequiresUploader(t *testing.T) {
	fx := newFixture(t)
	fx.user(t, 4, "viewer", domain.RoleUser)

	fx.bot.HandleUpdate(context.Background(), chat.Update{
		Kind: chat.KindFile, UserID: 4,
		File: &chat.FileMeta{Ref: "r", Name: "x.txt"},
	})

	if !strings.Contains(fx.tr.last(t).Text, "permission") {
		t.Errorf("reply = %q, want permission denial", fx.tr.last(t).Text)
	}
}

func TestUploadExpiredSession(t *testing.T) {
	fx := newFixture(t)
	fx.user(t, 3, "sender", domain.RoleUploader)
	fx.mkFolder(t, "reports")

	// Selecting a destination without a pending file, e.g. a stale
	// keyboard after a restart.
	fx.bot.HandleUpdate(context.Background(), control(3, "uploadTo:reports"))

	if !strings.Contains(fx.tr.last(t).Text, "expired") {
		t.Errorf("reply = %q, want expired-session notice", fx.tr.last(t).Text)
	}
}

func TestUploadCancel(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.user(t, 3, "sender", domain.RoleUploader)
	fx.mkFolder(t, "reports")
	fx.tr.refs["ref-3"] = []byte("data")

	fx.bot.HandleUpdate(ctx, chat.Update{
		Kind: chat.KindFile, UserID: 3,
		File: &chat.FileMeta{Ref: "ref-3", Name: "x.txt", SizeBytes: 4},
	})
	fx.bot.HandleUpdate(ctx, control(3, "cancelUpload"))

	if _, ok := fx.bot.sessions.TakeUpload(3); ok {
		t.Error("cancel left the pending upload in place")
	}
	abs, _ := fx.res.Abs("reports/x.txt")
	if _, err := os.Stat(abs); !os.IsNotExist(err) {
		t.Error("cancelled upload reached disk")
	}
}

func TestDeleteWorkflow(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.user(t, 5, "boss", domain.RoleAdmin)
	fx.mkFolder(t, "docs")
	fx.mkFolder(t, "docs/old")
	inner, _ := fx.res.Abs("docs/old/note.txt")
	os.WriteFile(inner, []byte("x"), 0o644)
	fx.store.InsertNode(ctx, &domain.Node{Name: "note.txt", Path: inner, SizeBytes: 1})

	fx.bot.HandleUpdate(ctx, control(5, "deleteConfirm:docs/old"))
	if !strings.Contains(fx.tr.last(t).Text, "old") {
		t.Fatalf("confirmation text = %q", fx.tr.last(t).Text)
	}

	fx.bot.HandleUpdate(ctx, control(5, "deleteExecute:docs/old"))

	oldAbs, _ := fx.res.Abs("docs/old")
	if _, err := fx.store.GetNode(ctx, oldAbs); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("folder record survived: %v", err)
	}
	if _, err := fx.store.GetNode(ctx, inner); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("descendant record survived: %v", err)
	}
	if _, err := os.Stat(oldAbs); !os.IsNotExist(err) {
		t.Error("on-disk subtree survived")
	}
	docsAbs, _ := fx.res.Abs("docs")
	if _, err := fx.store.GetNode(ctx, docsAbs); err != nil {
		t.Errorf("parent deleted too: %v", err)
	}
}

func TestDeleteExecuteWithoutConfirmation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.user(t, 5, "boss", domain.RoleAdmin)
	fx.mkFolder(t, "docs")

	fx.bot.HandleUpdate(ctx, control(5, "deleteExecute:docs"))

	abs, _ := fx.res.Abs("docs")
	if _, err := fx.store.GetNode(ctx, abs); err != nil {
		t.Fatalf("unconfirmed delete executed: %v", err)
	}
}

func TestDeleteConfirmSupersededByOtherWorkflow(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.user(t, 5, "boss", domain.RoleAdmin)
	fx.mkFolder(t, "docs")

	fx.bot.HandleUpdate(ctx, control(5, "deleteConfirm:docs"))
	// Starting folder creation abandons the pending deletion.
	fx.bot.HandleUpdate(ctx, control(5, "createHere:."))
	fx.bot.HandleUpdate(ctx, control(5, "deleteExecute:docs"))

	abs, _ := fx.res.Abs("docs")
	if _, err := fx.store.GetNode(ctx, abs); err != nil {
		t.Fatalf("superseded delete executed: %v", err)
	}
}

func TestMalformedTokenIgnored(t *testing.T) {
	fx := newFixture(t)
	fx.user(t, 1, "ada", domain.RoleUser)

	before := len(fx.tr.sent)
	fx.bot.HandleUpdate(context.Background(), control(1, "drop table files"))
	if len(fx.tr.sent) != before {
		t.Errorf("malformed token produced a reply: %+v", fx.tr.last(t))
	}
}

func TestRoleCommands(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.user(t, 10, "chief", domain.RoleSuperAdmin)
	fx.user(t, 11, "worker", domain.RoleUser)

	fx.bot.HandleUpdate(ctx, chat.Update{
		Kind: chat.KindCommand, UserID: 10, Username: "chief",
		Command: "addadmin", Args: []string{"@worker", "uploader"},
	})
	if role, _ := fx.store.RoleOf(ctx, 11); role != domain.RoleUploader {
		t.Errorf("role after addadmin = %v, want uploader", role)
	}

	fx.bot.HandleUpdate(ctx, chat.Update{
		Kind: chat.KindCommand, UserID: 10, Username: "chief",
		Command: "removeadmin", Args: []string{"@worker"},
	})
	if role, _ := fx.store.RoleOf(ctx, 11); role != domain.RoleUser {
		t.Errorf("role after removeadmin = %v, want user", role)
	}

	// Non-super-admins are refused.
	fx.bot.HandleUpdate(ctx, chat.Update{
		Kind: chat.KindCommand, UserID: 11, Username: "worker",
		Command: "addadmin", Args: []string{"@chief", "user"},
	})
	if role, _ := fx.store.RoleOf(ctx, 10); role != domain.RoleSuperAdmin {
		t.Errorf("chief demoted by non-super-admin: %v", role)
	}
}

func TestRoleMonotonicity(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.user(t, 20, "casual", domain.RoleUser)

	fx.bot.HandleUpdate(ctx, chat.Update{
		Kind: chat.KindFile, UserID: 20,
		File: &chat.FileMeta{Ref: "r", Name: "x.txt"},
	})
	if !strings.Contains(fx.tr.last(t).Text, "permission") {
		t.Fatalf("user-role upload reply = %q", fx.tr.last(t).Text)
	}

	// Promote and retry: the same interaction now passes the gate.
	fx.user(t, 20, "casual", domain.RoleAdmin)
	fx.tr.refs["r"] = []byte("x")
	fx.bot.HandleUpdate(ctx, chat.Update{
		Kind: chat.KindFile, UserID: 20,
		File: &chat.FileMeta{Ref: "r", Name: "x.txt", SizeBytes: 1},
	})
	if strings.Contains(fx.tr.last(t).Text, "permission") {
		t.Errorf("admin upload still refused: %q", fx.tr.last(t).Text)
	}
}

func TestBroadcastCountsFailures(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.user(t, 10, "chief", domain.RoleSuperAdmin)
	fx.user(t, 11, "a", domain.RoleUser)
	fx.user(t, 12, "b", domain.RoleUser)
	fx.tr.failSend[12] = true

	fx.bot.HandleUpdate(ctx, chat.Update{
		Kind: chat.KindCommand, UserID: 10, Username: "chief",
		Command: "broadcast", Args: []string{"maintenance", "tonight"},
	})

	msg := fx.tr.last(t)
	if !strings.Contains(msg.Text, "1 users (1 failed)") {
		t.Errorf("broadcast summary = %q", msg.Text)
	}
}

func TestContactAdminRelays(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.user(t, 10, "chief", domain.RoleAdmin)
	fx.user(t, 11, "ada", domain.RoleUser)

	fx.bot.HandleUpdate(ctx, chat.Update{
		Kind: chat.KindCommand, UserID: 11, Username: "ada",
		Command: "contact_admin", Args: []string{"the", "scanner", "broke"},
	})

	var relayed bool
	for _, m := range fx.tr.sent {
		if m.UserID == 10 && strings.Contains(m.Text, "the scanner broke") {
			relayed = true
		}
	}
	if !relayed {
		t.Error("admin did not receive the relayed message")
	}
}

func TestStatsCommand(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.user(t, 5, "boss", domain.RoleAdmin)
	fx.mkFolder(t, "docs")
	abs, _ := fx.res.Abs("docs/a.txt")
	fx.store.InsertNode(ctx, &domain.Node{Name: "a.txt", Path: abs, SizeBytes: 2048})

	fx.bot.HandleUpdate(ctx, chat.Update{Kind: chat.KindCommand, UserID: 5, Username: "boss", Command: "stats"})

	msg := fx.tr.last(t)
	for _, want := range []string{"Users: 1", "Files: 1", "Folders: 1"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("stats text %q missing %q", msg.Text, want)
		}
	}
}

func TestNewFolderAndDeleteCommands(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.user(t, 5, "boss", domain.RoleAdmin)
	fx.user(t, 2, "pleb", domain.RoleUser)
	fx.mkFolder(t, "docs")

	fx.bot.HandleUpdate(ctx, chat.Update{Kind: chat.KindCommand, UserID: 5, Command: "newfolder"})
	msg := fx.tr.last(t)
	if !strings.Contains(msg.Text, "new folder") {
		t.Errorf("/newfolder reply = %q, want creation picker", msg.Text)
	}
	if !keyboardHasToken(msg.KB, "createNav:docs") {
		t.Errorf("/newfolder keyboard %v lacks createNav:docs", msg.KB)
	}

	fx.bot.HandleUpdate(ctx, chat.Update{Kind: chat.KindCommand, UserID: 5, Command: "delete"})
	msg = fx.tr.last(t)
	if !strings.Contains(msg.Text, "delete") {
		t.Errorf("/delete reply = %q, want deletion picker", msg.Text)
	}
	if !keyboardHasToken(msg.KB, "deleteConfirm:docs") {
		t.Errorf("/delete keyboard %v lacks deleteConfirm:docs", msg.KB)
	}

	fx.bot.HandleUpdate(ctx, chat.Update{Kind: chat.KindCommand, UserID: 2, Command: "newfolder"})
	if !strings.Contains(fx.tr.last(t).Text, "permission") {
		t.Errorf("non-admin /newfolder reply = %q, want permission denial", fx.tr.last(t).Text)
	}
}

func TestRoleInfoMenusRequireSuperAdmin(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.user(t, 5, "boss", domain.RoleAdmin)
	fx.user(t, 9, "root", domain.RoleSuperAdmin)

	for _, token := range []string{"admin:setinfo", "admin:removeinfo"} {
		fx.bot.HandleUpdate(ctx, control(5, token))
		if !strings.Contains(fx.tr.last(t).Text, "permission") {
			t.Errorf("%s for admin replied %q, want permission denial", token, fx.tr.last(t).Text)
		}

		fx.bot.HandleUpdate(ctx, control(9, token))
		if !strings.Contains(fx.tr.last(t).Text, "Usage") {
			t.Errorf("%s for super admin replied %q, want usage text", token, fx.tr.last(t).Text)
		}
	}
}

func keyboardHasToken(kb chat.Keyboard, token string) bool {
	for _, row := range kb {
		for _, btn := range row {
			if btn.Token == token {
				return true
			}
		}
	}
	return false
}
