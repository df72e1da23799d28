package i18n

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedCatalog(t *testing.T) {
	if got := T("upload_cancelled"); got != "Upload cancelled." {
		t.Errorf("T(upload_cancelled) = %q", got)
	}
	if got := T("my_role", "admin"); !strings.Contains(got, "admin") {
		t.Errorf("T(my_role, admin) = %q", got)
	}
}

func TestUnknownKeyRendersKey(t *testing.T) {
	if got := T("no_such_key"); got != "no_such_key" {
		t.Errorf("T(no_such_key) = %q", got)
	}
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.yaml")
	if err := os.WriteFile(path, []byte(`upload_cancelled: "Abgebrochen."`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer func() {
		// Restore the embedded text for other tests.
		mu.Lock()
		catalog["upload_cancelled"] = "Upload cancelled."
		mu.Unlock()
	}()

	if got := T("upload_cancelled"); got != "Abgebrochen." {
		t.Errorf("override not applied: %q", got)
	}
	// Keys absent from the override keep their embedded text.
	if got := T("generic_error"); !strings.Contains(got, "try again") {
		t.Errorf("unrelated key changed: %q", got)
	}
}
