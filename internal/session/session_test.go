package session

import "testing"

func TestGetCreatesIdleSession(t *testing.T) {
	s := NewStore()

	st := s.Get(1)
	if st.Stage != Idle {
		t.Errorf("stage = %d, want Idle", st.Stage)
	}
}

func TestStartFolderCreation(t *testing.T) {
	s := NewStore()
	s.StartFolderCreation(1, "/files/docs")

	st := s.Get(1)
	if st.Stage != AwaitingFolderName {
		t.Fatalf("stage = %d, want AwaitingFolderName", st.Stage)
	}
	if st.CreateParent != "/files/docs" {
		t.Errorf("parent = %s, want /files/docs", st.CreateParent)
	}
}

func TestWorkflowsShareOneSlot(t *testing.T) {
	s := NewStore()

	s.StartFolderCreation(1, "/files")
	s.StartUpload(1, PendingUpload{FileRef: "ref", FileName: "a.txt", SizeBytes: 3})

	st := s.Get(1)
	if st.Stage != PendingUploadDestination {
		t.Fatalf("stage = %d, want PendingUploadDestination", st.Stage)
	}
	if st.CreateParent != "" {
		t.Error("starting an upload must abandon folder creation state")
	}

	s.StartDeletion(1, "docs/a.txt")
	st = s.Get(1)
	if st.Stage != ConfirmingDeletion {
		t.Fatalf("stage = %d, want ConfirmingDeletion", st.Stage)
	}
	if st.Upload != nil {
		t.Error("starting a deletion must discard the pending upload")
	}
}

func TestTakeUpload(t *testing.T) {
	s := NewStore()
	s.StartUpload(1, PendingUpload{FileRef: "ref", FileName: "a.txt", SizeBytes: 3})

	up, ok := s.TakeUpload(1)
	if !ok {
		t.Fatal("expected pending upload")
	}
	if up.FileName != "a.txt" {
		t.Errorf("file name = %s, want a.txt", up.FileName)
	}

	// Second take observes the missing session.
	if _, ok := s.TakeUpload(1); ok {
		t.Error("second take must report no upload")
	}
	if st := s.Get(1); st.Stage != Idle {
		t.Errorf("stage = %d, want Idle after take", st.Stage)
	}
}

func TestTakeUploadWithoutSession(t *testing.T) {
	s := NewStore()
	if _, ok := s.TakeUpload(99); ok {
		t.Error("unknown user must have no pending upload")
	}
}

func TestClearKeepsBrowsePath(t *testing.T) {
	s := NewStore()
	s.SetBrowsePath(1, "/files/docs")
	s.StartFolderCreation(1, "/files/docs")

	s.Clear(1)
	st := s.Get(1)
	if st.Stage != Idle {
		t.Errorf("stage = %d, want Idle", st.Stage)
	}
	if st.BrowsePath != "/files/docs" {
		t.Errorf("browse path = %s, want preserved", st.BrowsePath)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	s := NewStore()
	s.StartFolderCreation(1, "/files/a")
	s.StartUpload(2, PendingUpload{FileRef: "r", FileName: "b.txt"})

	if s.Get(1).Stage != AwaitingFolderName {
		t.Error("user 1 state clobbered")
	}
	if s.Get(2).Stage != PendingUploadDestination {
		t.Error("user 2 state clobbered")
	}
}
