package domain

import "sort"

// SortRanked orders articles by final score descending with deterministic
// tie-breaks: higher base score, then earlier publish date, then URL. Both the
// quality gate output and the auto-approve truncation rely on this order being
// stable regardless of input order.
func SortRanked(articles []Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		a, b := articles[i], articles[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.BaseScore != b.BaseScore {
			return a.BaseScore > b.BaseScore
		}
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.Before(b.PublishedAt)
		}
		return a.URL < b.URL
	})
}
