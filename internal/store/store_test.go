package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"spsdaily/internal/domain"
)

func TestUpdateRoundTrip(t *testing.T) {
	st, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	article := domain.Article{
		URL:    "https://nautil.us/some-article",
		Title:  "Some Article",
		Status: domain.StatusLive,
	}

	err = st.Update(func(state *State) error {
		state.Live.Categories[domain.CategoryScience] = []domain.Article{article}
		state.Live.LastUpdated = "2026-08-28"
		state.Pending.SentAt = time.Date(2026, time.August, 28, 6, 0, 0, 0, time.UTC)
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	state, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := state.Live.Categories[domain.CategoryScience]
	if len(got) != 1 || got[0].URL != article.URL {
		t.Fatalf("unexpected live state: %+v", got)
	}
	if state.Live.LastUpdated != "2026-08-28" {
		t.Fatalf("lastUpdated not persisted: %q", state.Live.LastUpdated)
	}
	if state.Pending.SentAt.IsZero() {
		t.Fatal("pending sentAt not persisted")
	}
}

func TestUpdateAbortsOnError(t *testing.T) {
	st, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := st.Update(func(state *State) error {
		state.Live.LastUpdated = "2026-08-28"
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	wantErr := errors.New("decided not to")
	err = st.Update(func(state *State) error {
		state.Live.LastUpdated = "2099-01-01"
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fn error, got %v", err)
	}

	state, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.Live.LastUpdated != "2026-08-28" {
		t.Fatalf("failed update must not write: got %q", state.Live.LastUpdated)
	}
}

func TestCorruptDocumentIsFatalBeforeWrite(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "articles.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("corrupt file: %v", err)
	}

	err = st.Update(func(state *State) error {
		t.Fatal("mutation fn must not run on a corrupt store")
		return nil
	})
	if err == nil {
		t.Fatal("expected corruption error")
	}

	// The broken document must survive untouched.
	raw, readErr := os.ReadFile(filepath.Join(dir, "articles.json"))
	if readErr != nil {
		t.Fatalf("read back: %v", readErr)
	}
	if string(raw) != "{broken" {
		t.Fatalf("corrupt document was overwritten: %q", raw)
	}
}

func TestRunLockExcludesSecondRun(t *testing.T) {
	dir := t.TempDir()

	first, err := Open(dir)
	if err != nil {
		t.Fatalf("Open first: %v", err)
	}
	second, err := Open(dir)
	if err != nil {
		t.Fatalf("Open second: %v", err)
	}

	if err := first.AcquireRun(); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer func() { _ = first.ReleaseRun() }()

	if err := second.AcquireRun(); !errors.Is(err, ErrRunActive) {
		t.Fatalf("expected ErrRunActive, got %v", err)
	}

	if err := first.ReleaseRun(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := second.AcquireRun(); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = second.ReleaseRun()
}

func TestUpdateKeepsHeldRunLock(t *testing.T) {
	dir := t.TempDir()

	st, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.AcquireRun(); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if err := st.Update(func(state *State) error { return nil }); err != nil {
		t.Fatalf("Update under run lock: %v", err)
	}

	// The run lock must still be held after the update.
	other, err := Open(dir)
	if err != nil {
		t.Fatalf("Open other: %v", err)
	}
	if err := other.AcquireRun(); !errors.Is(err, ErrRunActive) {
		t.Fatalf("run lock was dropped by Update: %v", err)
	}
	_ = st.ReleaseRun()
}
