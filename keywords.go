package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeywordMap is the in-memory master store keyed by normalized keyword
type KeywordMap map[string]*KeywordRecord

// BlendRule combines an existing score with a newly observed provisional score
type BlendRule struct {
	InitialScore float64
	Weight       float64 // share given to the provisional score
}

// Blend returns (1-w)*existing + w*provisional, clamped to [0,1]
func (r BlendRule) Blend(existing, provisional float64) float64 {
	return clampScore((1-r.Weight)*existing + r.Weight*provisional)
}

// KeywordStore persists the master, active and history files of a keywords directory
type KeywordStore struct {
	dir string
}

// NewKeywordStore creates a store rooted at dir
func NewKeywordStore(dir string) *KeywordStore {
	return &KeywordStore{dir: dir}
}

func (s *KeywordStore) masterPath() string  { return filepath.Join(s.dir, "master.json") }
func (s *KeywordStore) activePath() string  { return filepath.Join(s.dir, "active.json") }
func (s *KeywordStore) historyPath() string { return filepath.Join(s.dir, "history.json") }

// Load reads the master store. A missing file is an empty store; an
// unparseable one is a CorruptStoreError.
func (s *KeywordStore) Load() (KeywordMap, error) {
	data, err := os.ReadFile(s.masterPath())
	if errors.Is(err, os.ErrNotExist) {
		return KeywordMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.masterPath(), err)
	}

	var raw map[string]*KeywordRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &CorruptStoreError{Path: s.masterPath(), Err: err}
	}
	if err := checkLegacyMaster(data, raw); err != nil {
		return nil, &CorruptStoreError{Path: s.masterPath(), Err: err}
	}

	store := make(KeywordMap, len(raw))
	for text, rec := range raw {
		if rec == nil {
			return nil, &CorruptStoreError{Path: s.masterPath(), Err: fmt.Errorf("keyword %q has no record", text)}
		}
		key := NormalizeKeyword(text)
		if key == "" {
			continue
		}
		rec.Keyword = key
		rec.Score = clampScore(rec.Score)
		if existing, ok := store[key]; ok {
			// legacy files may hold case variants of one keyword
			mergeRecords(existing, rec)
			continue
		}
		store[key] = rec
	}
	return store, nil
}

// ErrLegacyStore marks a master file still in the 0-100 score format
var ErrLegacyStore = errors.New("legacy keyword format, run `migrate import-legacy` first")

// checkLegacyMaster rejects records from the first version of the store.
// Clamping their 0-100 scores would destroy the ranking on the next save.
func checkLegacyMaster(data []byte, raw map[string]*KeywordRecord) error {
	var dates map[string]*struct {
		CreatedDate string `json:"created_date"`
	}
	if err := json.Unmarshal(data, &dates); err != nil {
		return err
	}
	for text, rec := range raw {
		if rec == nil {
			continue
		}
		if rec.Score > 1 {
			return fmt.Errorf("keyword %q has score %v: %w", text, rec.Score, ErrLegacyStore)
		}
		if d := dates[text]; d != nil && d.CreatedDate != "" && rec.FirstSeen == "" {
			return fmt.Errorf("keyword %q has created_date but no first_seen: %w", text, ErrLegacyStore)
		}
	}
	return nil
}

// Save writes the master store
func (s *KeywordStore) Save(store KeywordMap) error {
	return writeJSONFile(s.masterPath(), store)
}

// SaveActive writes the ordered active keyword list for the current run
func (s *KeywordStore) SaveActive(active []KeywordRecord) error {
	keywords := make([]string, 0, len(active))
	for _, rec := range active {
		keywords = append(keywords, rec.Keyword)
	}
	return writeJSONFile(s.activePath(), keywords)
}

// LoadActive reads the active keyword list written by the last run
func (s *KeywordStore) LoadActive() ([]string, error) {
	data, err := os.ReadFile(s.activePath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.activePath(), err)
	}
	var keywords []string
	if err := json.Unmarshal(data, &keywords); err != nil {
		return nil, &CorruptStoreError{Path: s.activePath(), Err: err}
	}
	return keywords, nil
}

// Upsert inserts rec or merges it into the existing record with the same key.
// It reports whether a new keyword was inserted.
func (m KeywordMap) Upsert(rec KeywordRecord, rule BlendRule) bool {
	key := NormalizeKeyword(rec.Keyword)
	if key == "" {
		return false
	}

	existing, ok := m[key]
	if !ok {
		if rec.Source == "" {
			rec.Source = SourceDiscovered
		}
		if rec.Score == 0 {
			rec.Score = rule.InitialScore
		}
		rec.Keyword = key
		rec.Score = clampScore(rec.Score)
		m[key] = &rec
		return true
	}

	existing.Score = rule.Blend(existing.Score, rec.Score)
	existing.UsageCount++
	if rec.LastDiscovered != "" {
		existing.LastDiscovered = rec.LastDiscovered
	}
	return false
}

// MarkUsed stamps the active keywords with the run date
func (m KeywordMap) MarkUsed(keywords []string, date string) {
	for _, kw := range keywords {
		if rec, ok := m[NormalizeKeyword(kw)]; ok {
			rec.LastUsed = date
			rec.UsageCount++
		}
	}
}

// Sorted returns the records ordered by keyword text
func (m KeywordMap) Sorted() []KeywordRecord {
	records := make([]KeywordRecord, 0, len(m))
	for _, rec := range m {
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Keyword < records[j].Keyword })
	return records
}

// NormalizeKeyword trims, lowercases and collapses inner whitespace
func NormalizeKeyword(keyword string) string {
	return strings.Join(strings.Fields(strings.ToLower(keyword)), " ")
}

func mergeRecords(dst, src *KeywordRecord) {
	if src.Score > dst.Score {
		dst.Score = src.Score
	}
	dst.UsageCount += src.UsageCount
	if src.LastUsed > dst.LastUsed {
		dst.LastUsed = src.LastUsed
	}
	if src.FirstSeen != "" && (dst.FirstSeen == "" || src.FirstSeen < dst.FirstSeen) {
		dst.FirstSeen = src.FirstSeen
	}
	if src.Source == SourceManual {
		dst.Source = SourceManual
	}
}

func clampScore(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}

// writeJSONFile writes v as indented JSON through a temp file and rename
func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("setting mode on %s: %w", path, err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}
