package catalog

import "strings"

// MatchThreshold is the minimum fuzzy score for a token to resolve.
const MatchThreshold = 0.35

// Match resolves a free-form material token to the best catalog entry.
// Scoring: exact label/alias 1.0, substring 0.85, tag 0.7, prefix/suffix
// 0.4. Ties break on resource id for determinism.
func (c *Catalog) Match(token string) (Entry, float64, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" || len(c.byID) == 0 {
		return Entry{}, 0, false
	}

	var (
		best      Entry
		bestScore float64
		found     bool
	)
	for _, id := range c.ids {
		e := c.byID[id]
		score := scoreEntry(e, token)
		if score < MatchThreshold {
			continue
		}
		if !found || score > bestScore || (score == bestScore && e.ResourceID < best.ResourceID) {
			best, bestScore, found = e, score, true
		}
	}
	return best, bestScore, found
}

func scoreEntry(e Entry, token string) float64 {
	names := make([]string, 0, 3+len(e.Aliases))
	names = append(names, strings.ToLower(e.Label), strings.ToLower(e.ResourceID))
	if _, path, ok := strings.Cut(e.ResourceID, ":"); ok {
		names = append(names, strings.ToLower(path))
	}
	for _, a := range e.Aliases {
		names = append(names, strings.ToLower(a))
	}

	var best float64
	bump := func(s float64) {
		if s > best {
			best = s
		}
	}
	for _, n := range names {
		if n == "" {
			continue
		}
		switch {
		case n == token:
			bump(1.0)
		case strings.Contains(n, token) || strings.Contains(token, n):
			bump(0.85)
		case strings.HasPrefix(n, prefixOf(token)) || strings.HasSuffix(n, suffixOf(token)):
			bump(0.4)
		}
	}
	for _, tag := range e.Tags {
		if strings.EqualFold(tag, token) {
			bump(0.7)
		}
	}
	return best
}

// prefixOf/suffixOf take a short stem so that near-miss tokens still land
// in the weak 0.4 band instead of disappearing entirely.
func prefixOf(token string) string {
	if len(token) > 4 {
		return token[:4]
	}
	return token
}

func suffixOf(token string) string {
	if len(token) > 4 {
		return token[len(token)-4:]
	}
	return token
}
