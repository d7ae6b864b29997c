package curation

import (
	"spsdaily/internal/domain"
	"spsdaily/internal/store"
)

// Rotate demotes live articles whose approval date fell outside the retention
// window. They disappear from the live listing but remain permanently in the
// archive, which already holds them since approval. The sweep is a pure state
// change with no external fetch and is idempotent: a second run with nothing
// expired changes nothing.
func (e *Engine) Rotate() (int, error) {
	cutoff := e.now().UTC().Add(-e.cfg.Curation.Retention.Std()).Format(dateLayout)
	removed := 0

	err := e.store.Update(func(st *store.State) error {
		for cat, articles := range st.Live.Categories {
			kept := articles[:0:0]
			for _, a := range articles {
				if a.ApprovedDate != "" && a.ApprovedDate < cutoff {
					removed++
					continue
				}
				kept = append(kept, a)
			}
			if len(kept) == 0 {
				delete(st.Live.Categories, cat)
				continue
			}
			st.Live.Categories[cat] = kept
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		e.logger.Info("rotation archived expired articles", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// Counts summarizes the store for the status command.
type Counts struct {
	Live    map[domain.Category]int
	Pending map[domain.Category]int
	Picks   map[domain.Category]string
}

// Status reports per-category live/pending counts and the current picks.
func (e *Engine) Status() (Counts, error) {
	state, err := e.store.Load()
	if err != nil {
		return Counts{}, err
	}

	counts := Counts{
		Live:    map[domain.Category]int{},
		Pending: map[domain.Category]int{},
		Picks:   map[domain.Category]string{},
	}
	for cat, articles := range state.Live.Categories {
		counts.Live[cat] = len(articles)
		for _, a := range articles {
			if a.EditorsPick {
				counts.Picks[cat] = a.Title
			}
		}
	}
	for cat, articles := range state.Pending.Categories {
		counts.Pending[cat] = len(articles)
	}
	return counts, nil
}
