// Package store persists the live and pending collections as JSON documents
// with atomic replacement, guarded by an advisory file lock so the collector
// run and the decision listener can share them across processes.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"spsdaily/internal/domain"
)

const (
	liveFile    = "articles.json"
	pendingFile = "pending_articles.json"
	archiveFile = "archive.json"
	lockFile    = ".spsdaily.lock"
)

// ErrRunActive signals that another process already holds the run lock.
// Callers exit immediately without attempting partial work.
var ErrRunActive = errors.New("store: another run holds the lock")

// Board is the live collection the site renderer reads.
type Board struct {
	LastUpdated string                               `json:"lastUpdated,omitempty"`
	Categories  map[domain.Category][]domain.Article `json:"categories"`
}

// NewBoard returns an empty board with initialized category map.
func NewBoard() Board {
	return Board{Categories: map[domain.Category][]domain.Article{}}
}

// Pending is the curation queue: candidates awaiting a decision, stamped with
// the moment they were sent for review.
type Pending struct {
	SentAt     time.Time                            `json:"sentAt,omitzero"`
	Categories map[domain.Category][]domain.Article `json:"categories"`
}

// NewPending returns an empty queue.
func NewPending() Pending {
	return Pending{Categories: map[domain.Category][]domain.Article{}}
}

// State bundles both mutable documents for a read-modify-write section.
type State struct {
	Live    Board
	Pending Pending
}

// Store owns the document files and the cross-process lock.
type Store struct {
	dir  string
	lock *flock.Flock
	mu   sync.Mutex
}

// Open prepares the storage directory and the advisory lock handle.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir %s: %w", dir, err)
	}
	return &Store{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, lockFile)),
	}, nil
}

// AcquireRun takes the exclusive lock without blocking. A held lock means a
// collection run or another exclusive operation is active.
func (s *Store) AcquireRun() error {
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("store: acquire run lock: %w", err)
	}
	if !ok {
		return ErrRunActive
	}
	return nil
}

// ReleaseRun drops the exclusive lock taken by AcquireRun.
func (s *Store) ReleaseRun() error {
	return s.lock.Unlock()
}

// Update runs fn inside an exclusive section: current state is loaded, fn
// mutates it, and both documents are rewritten atomically. A load failure
// aborts before fn runs, so a corrupt document is never overwritten with a
// partial computation. If fn returns an error nothing is written.
func (s *Store) Update(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	held := s.lock.Locked()
	if !held {
		if err := s.lock.Lock(); err != nil {
			return fmt.Errorf("store: lock: %w", err)
		}
		defer func() { _ = s.lock.Unlock() }()
	}

	state, err := s.loadState()
	if err != nil {
		return err
	}

	if err := fn(&state); err != nil {
		return err
	}

	if err := s.writeJSON(liveFile, state.Live); err != nil {
		return err
	}
	return s.writeJSON(pendingFile, state.Pending)
}

// Load returns the current state without holding the lock beyond the reads.
func (s *Store) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadState()
}

// WriteArchiveExport replaces the date-grouped archive document consumed by
// the site's archive page.
func (s *Store) WriteArchiveExport(doc map[string]map[domain.Category][]domain.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(archiveFile, doc)
}

// SeenPath locates the seen-set document inside the storage directory.
func (s *Store) SeenPath() string {
	return filepath.Join(s.dir, "seen.json")
}

func (s *Store) loadState() (State, error) {
	state := State{Live: NewBoard(), Pending: NewPending()}
	if err := s.readJSON(liveFile, &state.Live); err != nil {
		return State{}, err
	}
	if err := s.readJSON(pendingFile, &state.Pending); err != nil {
		return State{}, err
	}
	if state.Live.Categories == nil {
		state.Live.Categories = map[domain.Category][]domain.Article{}
	}
	if state.Pending.Categories == nil {
		state.Pending.Categories = map[domain.Category][]domain.Article{}
	}
	return state, nil
}

func (s *Store) readJSON(name string, v any) error {
	raw, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: read %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("store: decode %s: %w", name, err)
	}
	return nil
}

// writeJSON replaces a document via temp file + rename so readers never
// observe a partial write.
func (s *Store) writeJSON(name string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: temp for %s: %w", name, err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("store: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("store: close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("store: replace %s: %w", name, err)
	}
	return nil
}
