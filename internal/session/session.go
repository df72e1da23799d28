// Package session tracks per-user transient workflow state across
// independent chat interactions. State lives in process memory only:
// workflows do not survive a restart, and the designed recovery is the
// expired-session reply that asks the user to start over.
package session

import "sync"

// Stage is the tagged variant for the one in-flight workflow a user may
// have. Starting a workflow overwrites whatever was in flight before
// (last-write-wins, no queuing).
type Stage int

const (
	// Idle means no workflow is in flight.
	Idle Stage = iota
	// AwaitingFolderName consumes the next free-text message as a new
	// folder's name.
	AwaitingFolderName
	// PendingUploadDestination holds a received file while the user
	// navigates the destination picker.
	PendingUploadDestination
	// ConfirmingDeletion awaits a yes/no on a pending delete.
	ConfirmingDeletion
)

// PendingUpload is the file waiting for a destination.
type PendingUpload struct {
	FileRef   string
	FileName  string
	SizeBytes int64
}

// State is one user's workflow state.
type State struct {
	Stage Stage

	// BrowsePath is the absolute path of the directory last listed for
	// this user, used to resolve "descend by name" and "go up".
	BrowsePath string

	// CreateParent is the absolute folder the awaited name lands in.
	// Set only in AwaitingFolderName.
	CreateParent string

	// Upload is the pending file. Set only in PendingUploadDestination.
	Upload *PendingUpload

	// DeleteRel is the relative id of the item awaiting confirmation.
	// Set only in ConfirmingDeletion.
	DeleteRel string
}

// Store holds sessions keyed by chat user id. Safe for concurrent use;
// interactions from different users never contend beyond the map lock.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*State
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]*State)}
}

// Get returns the user's session, creating an idle one on first touch.
func (s *Store) Get(userID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.sessions[userID]; ok {
		return *st
	}
	return State{}
}

// SetBrowsePath records the directory last listed for the user without
// touching the workflow stage.
func (s *Store) SetBrowsePath(userID int64, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.upsert(userID)
	st.BrowsePath = path
}

// StartFolderCreation enters AwaitingFolderName for parent, abandoning
// any other in-flight workflow.
func (s *Store) StartFolderCreation(userID int64, parent string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.upsert(userID)
	s.reset(st)
	st.Stage = AwaitingFolderName
	st.CreateParent = parent
}

// StartUpload enters PendingUploadDestination with the received file,
// abandoning any other in-flight workflow.
func (s *Store) StartUpload(userID int64, up PendingUpload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.upsert(userID)
	s.reset(st)
	st.Stage = PendingUploadDestination
	st.Upload = &up
}

// StartDeletion enters ConfirmingDeletion for the item at rel,
// abandoning any other in-flight workflow.
func (s *Store) StartDeletion(userID int64, rel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.upsert(userID)
	s.reset(st)
	st.Stage = ConfirmingDeletion
	st.DeleteRel = rel
}

// TakeUpload removes and returns the pending upload, if any. The second
// return is false when the session holds no upload (e.g. after a
// restart), which callers surface as an expired session.
func (s *Store) TakeUpload(userID int64) (PendingUpload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[userID]
	if !ok || st.Stage != PendingUploadDestination || st.Upload == nil {
		return PendingUpload{}, false
	}
	up := *st.Upload
	s.reset(st)
	return up, true
}

// Clear returns the user's workflow to Idle, keeping the browse path.
func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.sessions[userID]; ok {
		s.reset(st)
	}
}

func (s *Store) upsert(userID int64) *State {
	st, ok := s.sessions[userID]
	if !ok {
		st = &State{}
		s.sessions[userID] = st
	}
	return st
}

func (s *Store) reset(st *State) {
	st.Stage = Idle
	st.CreateParent = ""
	st.Upload = nil
	st.DeleteRel = ""
}
