package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SeenSet remembers every URL already evaluated inside a rolling window, so a
// candidate is never re-presented even if it was rejected. Entries outside the
// window are pruned on load; Reset clears everything to force re-evaluation.
type SeenSet struct {
	path    string
	window  time.Duration
	now     func() time.Time
	entries map[string]time.Time
}

// LoadSeen reads the seen document, dropping entries older than window.
// A missing file yields an empty set; an unreadable one is a hard error.
func LoadSeen(path string, window time.Duration, now func() time.Time) (*SeenSet, error) {
	if now == nil {
		now = time.Now
	}

	set := &SeenSet{
		path:    path,
		window:  window,
		now:     now,
		entries: map[string]time.Time{},
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return set, nil
	}
	if err != nil {
		return nil, fmt.Errorf("seen: read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &set.entries); err != nil {
		return nil, fmt.Errorf("seen: decode %s: %w", path, err)
	}

	cutoff := now().Add(-window)
	for url, first := range set.entries {
		if first.Before(cutoff) {
			delete(set.entries, url)
		}
	}
	return set, nil
}

// Seen reports whether the URL was already evaluated in the current window.
func (s *SeenSet) Seen(url string) bool {
	_, ok := s.entries[url]
	return ok
}

// Add records the URL with the current timestamp.
func (s *SeenSet) Add(url string) {
	if _, ok := s.entries[url]; !ok {
		s.entries[url] = s.now()
	}
}

// Reset drops every entry. Administrative use only.
func (s *SeenSet) Reset() {
	s.entries = map[string]time.Time{}
}

// Len returns the number of tracked URLs.
func (s *SeenSet) Len() int {
	return len(s.entries)
}

// Save writes the set back atomically.
func (s *SeenSet) Save() error {
	raw, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("seen: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "seen.tmp-*")
	if err != nil {
		return fmt.Errorf("seen: temp: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("seen: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("seen: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("seen: replace: %w", err)
	}
	return nil
}
