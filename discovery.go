package main

import (
	"encoding/json"
	"strings"
)

const discoveredFromDailyResearch = "daily_research"

// MergeDiscovered feeds synthesized keyword candidates back into the master
// store and returns how many genuinely new keywords were added.
//
// Candidates are normalized and coalesced (highest provisional score wins).
// A keyword already blended on date is left alone, which makes merging the
// same batch twice on one day equivalent to merging it once.
func MergeDiscovered(store KeywordMap, discovered []DiscoveredKeyword, rule BlendRule, date string) int {
	batch := make(map[string]float64, len(discovered))
	order := make([]string, 0, len(discovered))
	for _, d := range discovered {
		key := NormalizeKeyword(d.Keyword)
		if key == "" {
			continue
		}
		score, seen := batch[key]
		if !seen {
			order = append(order, key)
		}
		if !seen || d.Score > score {
			batch[key] = d.Score
		}
	}

	added := 0
	for _, key := range order {
		if existing, ok := store[key]; ok && existing.LastDiscovered == date {
			continue
		}
		inserted := store.Upsert(KeywordRecord{
			Keyword:        key,
			Score:          batch[key],
			FirstSeen:      date,
			Source:         SourceDiscovered,
			DiscoveredFrom: discoveredFromDailyResearch,
			LastDiscovered: date,
		}, rule)
		if inserted {
			added++
		}
	}
	return added
}

// ProvisionalScore scores a keyword the model returned without a score:
// 0.5 plus 0.05 per collected platform result mentioning it, capped at 1.
func ProvisionalScore(keyword string, collected []PlatformResult) float64 {
	needle := NormalizeKeyword(keyword)
	if needle == "" {
		return 0
	}

	mentions := 0
	for _, pr := range collected {
		data, err := json.Marshal(pr)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(string(data)), needle) {
			mentions++
		}
	}
	return clampScore(0.5 + 0.05*float64(mentions))
}
