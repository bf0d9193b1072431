package lockfile

import (
	"os"
	"path/filepath"
	"testing"
)

func newLock() *LockFile {
	return &LockFile{
		Version:   Version,
		Checksums: make(map[string]map[string]string),
	}
}

func TestHashDeterministic(t *testing.T) {
	h1 := Hash(`{"home":{"title":"Welcome"}}`)
	h2 := Hash(`{"home":{"title":"Welcome"}}`)
	if h1 != h2 {
		t.Errorf("Hash not deterministic: %s != %s", h1, h2)
	}
	h3 := Hash(`{"home":{"title":"Hello"}}`)
	if h1 == h3 {
		t.Errorf("Hash collision: %s == %s", h1, h3)
	}
}

func TestLoadNonExistent(t *testing.T) {
	lf, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load returned error for non-existent file: %v", err)
	}
	if lf.Version != Version {
		t.Errorf("Version = %d, want %d", lf.Version, Version)
	}
	if len(lf.Checksums) != 0 {
		t.Errorf("Checksums not empty: %v", lf.Checksums)
	}
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, LockFileName), []byte("checksums: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("Load succeeded on invalid YAML")
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()

	lf, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	lf.Update("nl", DocumentScope, `{"a":"x"}`)
	lf.Update("nl", RecordScope("service", "cloud"), `{"title":"Cloud"}`)
	lf.Update("de", DocumentScope, `{"a":"x"}`)

	if err := lf.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := filepath.Join(dir, LockFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("Lock file not created at %s", path)
	}
	if lf.Path() != path {
		t.Errorf("Path() = %q, want %q", lf.Path(), path)
	}

	lf2, err := Load(dir)
	if err != nil {
		t.Fatalf("Load after save: %v", err)
	}

	targets, keys := lf2.Stats()
	if targets != 2 {
		t.Errorf("targets = %d, want 2", targets)
	}
	if keys != 3 {
		t.Errorf("keys = %d, want 3", keys)
	}
	if lf2.IsChanged("nl", DocumentScope, `{"a":"x"}`) {
		t.Error("reloaded checksum should match")
	}
}

func TestSaveWithoutPath(t *testing.T) {
	if err := newLock().Save(); err == nil {
		t.Fatal("Save without path should fail")
	}
}

func TestIsChanged(t *testing.T) {
	lf := newLock()

	if !lf.IsChanged("nl", DocumentScope, "v1") {
		t.Error("new scope should be changed")
	}

	lf.Update("nl", DocumentScope, "v1")
	if lf.IsChanged("nl", DocumentScope, "v1") {
		t.Error("unchanged baseline should not be changed")
	}

	if !lf.IsChanged("nl", DocumentScope, "v2") {
		t.Error("modified baseline should be changed")
	}

	if !lf.IsChanged("de", DocumentScope, "v1") {
		t.Error("different language should be changed")
	}
}

func TestClean(t *testing.T) {
	lf := newLock()

	lf.Update("nl", "faq/a", "a")
	lf.Update("nl", "faq/b", "b")
	lf.Update("nl", "faq/deleted", "c")

	lf.Clean("nl", []string{"faq/a", "faq/b"})

	if lf.IsChanged("nl", "faq/a", "a") {
		t.Error("faq/a should still be tracked")
	}
	if !lf.IsChanged("nl", "faq/deleted", "c") {
		t.Error("faq/deleted should be removed by Clean")
	}
}

func TestRemoveTarget(t *testing.T) {
	lf := newLock()

	lf.Update("nl", DocumentScope, "x")
	lf.RemoveTarget("nl")

	targets, _ := lf.Stats()
	if targets != 0 {
		t.Errorf("targets after RemoveTarget = %d, want 0", targets)
	}
}

func TestTargets(t *testing.T) {
	lf := newLock()

	lf.Update("nl", DocumentScope, "x")
	lf.Update("fr", DocumentScope, "x")
	lf.Update("de", DocumentScope, "x")

	targets := lf.Targets()
	expected := []string{"de", "fr", "nl"}
	if len(targets) != len(expected) {
		t.Fatalf("targets len = %d, want %d", len(targets), len(expected))
	}
	for i, want := range expected {
		if targets[i] != want {
			t.Errorf("targets[%d] = %q, want %q", i, targets[i], want)
		}
	}
}

func TestScopesOfKind(t *testing.T) {
	lf := newLock()
	lf.Update("nl", RecordScope("service", "b"), "x")
	lf.Update("nl", RecordScope("service", "a"), "x")
	lf.Update("nl", RecordScope("faq", "c"), "x")
	lf.Update("nl", DocumentScope, "x")

	got := lf.ScopesOfKind("nl", "service")
	if len(got) != 2 || got[0] != "service/a" || got[1] != "service/b" {
		t.Fatalf("ScopesOfKind = %v, want [service/a service/b]", got)
	}
}

func TestSummary(t *testing.T) {
	lf := newLock()

	if lf.Summary() != "empty" {
		t.Errorf("empty summary = %q, want %q", lf.Summary(), "empty")
	}

	lf.Update("nl", DocumentScope, "x")
	lf.Update("de", DocumentScope, "x")
	want := "2 languages, 2 scopes (de: 1 scopes, nl: 1 scopes)"
	if s := lf.Summary(); s != want {
		t.Errorf("Summary() = %q, want %q", s, want)
	}
}

func TestConcurrentAccess(t *testing.T) {
	lf := newLock()

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(n int) {
			key := RecordScope("faq", string(rune('a'+n)))
			lf.Update("nl", key, "value")
			lf.IsChanged("nl", key, "value")
			lf.Stats()
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	_, keys := lf.Stats()
	if keys != 10 {
		t.Errorf("keys after concurrent writes = %d, want 10", keys)
	}
}
