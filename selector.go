package main

import "sort"

// SelectActive picks the keywords to research this run: records scoring at
// least minScore, ordered by score, then most recent use, then text, and
// truncated to maxSize. An empty result is valid.
func SelectActive(store KeywordMap, maxSize int, minScore float64) []KeywordRecord {
	if maxSize <= 0 {
		return []KeywordRecord{}
	}

	candidates := make([]KeywordRecord, 0, len(store))
	for _, rec := range store {
		if rec.Score >= minScore {
			candidates = append(candidates, *rec)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		// dates are YYYY-MM-DD so string order is chronological; never used sorts last
		if a.LastUsed != b.LastUsed {
			return a.LastUsed > b.LastUsed
		}
		return a.Keyword < b.Keyword
	})

	if len(candidates) > maxSize {
		candidates = candidates[:maxSize]
	}
	return candidates
}

func keywordTexts(records []KeywordRecord) []string {
	texts := make([]string, 0, len(records))
	for _, rec := range records {
		texts = append(texts, rec.Keyword)
	}
	return texts
}
