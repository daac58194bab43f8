package main

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeKeyword(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"LLM Agents", "llm agents"},
		{"  edge\tAI  ", "edge ai"},
		{"model   context protocol", "model context protocol"},
		{"   ", ""},
		{"生成AI", "生成ai"},
	}
	for _, tt := range tests {
		if got := NormalizeKeyword(tt.in); got != tt.want {
			t.Errorf("NormalizeKeyword(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBlendRule(t *testing.T) {
	rule := BlendRule{InitialScore: 0.5, Weight: 0.3}
	tests := []struct {
		name                  string
		existing, provisional float64
		want                  float64
	}{
		{"blend", 0.9, 0.5, 0.78},
		{"equal", 0.6, 0.6, 0.6},
		{"clamped", 1, 5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rule.Blend(tt.existing, tt.provisional); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Blend(%v, %v) = %v, want %v", tt.existing, tt.provisional, got, tt.want)
			}
		})
	}
}

func TestKeywordMapUpsert(t *testing.T) {
	rule := BlendRule{InitialScore: 0.5, Weight: 0.3}
	store := KeywordMap{}

	if !store.Upsert(KeywordRecord{Keyword: "  AI Chips "}, rule) {
		t.Fatal("first Upsert should insert")
	}
	rec := store["ai chips"]
	if rec == nil {
		t.Fatal("record not stored under the normalized key")
	}
	if rec.Score != 0.5 || rec.Source != SourceDiscovered || rec.Keyword != "ai chips" {
		t.Errorf("inserted record = %+v", rec)
	}

	if store.Upsert(KeywordRecord{Keyword: "ai chips", Score: 1}, rule) {
		t.Error("second Upsert should merge, not insert")
	}
	if math.Abs(rec.Score-0.65) > 1e-9 {
		t.Errorf("blended score = %v, want 0.65", rec.Score)
	}
	if rec.UsageCount != 1 {
		t.Errorf("UsageCount = %d, want 1", rec.UsageCount)
	}
	if len(store) != 1 {
		t.Errorf("store has %d records, want 1", len(store))
	}

	if store.Upsert(KeywordRecord{Keyword: "   "}, rule) {
		t.Error("blank keyword must be ignored")
	}
}

func TestKeywordMapMarkUsed(t *testing.T) {
	store := KeywordMap{
		"llm agents": {Keyword: "llm agents", Score: 0.9, UsageCount: 2},
		"edge ai":    {Keyword: "edge ai", Score: 0.4},
	}
	store.MarkUsed([]string{"LLM Agents", "unknown"}, "2026-10-15")

	if rec := store["llm agents"]; rec.LastUsed != "2026-10-15" || rec.UsageCount != 3 {
		t.Errorf("llm agents = %+v", rec)
	}
	if rec := store["edge ai"]; rec.LastUsed != "" || rec.UsageCount != 0 {
		t.Errorf("edge ai = %+v", rec)
	}
	if len(store) != 2 {
		t.Error("MarkUsed must not add keywords")
	}
}

func TestKeywordStoreRoundTrip(t *testing.T) {
	ks := NewKeywordStore(filepath.Join(t.TempDir(), "keywords"))

	empty, err := ks.Load()
	if err != nil {
		t.Fatalf("Load() on missing file error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("missing file should load as an empty store, got %d", len(empty))
	}

	store := KeywordMap{
		"llm agents": {Keyword: "llm agents", Score: 0.9, FirstSeen: "2026-10-01", Source: SourceManual},
		"ai chips":   {Keyword: "ai chips", Score: 0.6, FirstSeen: "2026-10-02", Source: SourceDiscovered, DiscoveredFrom: "daily_research"},
	}
	if err := ks.Save(store); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := ks.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(store.Sorted(), loaded.Sorted()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestKeywordStoreLoadMergesCaseVariants(t *testing.T) {
	dir := t.TempDir()
	content := `{
  "AI Chips": {"score": 0.4, "first_seen": "2026-09-01", "usage_count": 2, "source": "discovered"},
  "ai chips": {"score": 0.8, "first_seen": "2026-10-01", "usage_count": 1, "source": "manual", "last_used": "2026-10-10"},
  "underflow": {"score": -0.2, "first_seen": "2026-10-01", "source": "manual"}
}`
	if err := os.WriteFile(filepath.Join(dir, "master.json"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := NewKeywordStore(dir).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(store) != 2 {
		t.Fatalf("store has %d records, want 2", len(store))
	}

	rec := store["ai chips"]
	if rec.Score != 0.8 || rec.UsageCount != 3 || rec.FirstSeen != "2026-09-01" || rec.LastUsed != "2026-10-10" || rec.Source != SourceManual {
		t.Errorf("merged record = %+v", rec)
	}
	if store["underflow"].Score != 0 {
		t.Errorf("score should be clamped to 0, got %v", store["underflow"].Score)
	}
}

func TestKeywordStoreLoadRejectsLegacyFormat(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"percent scores", `{"llm agents": {"score": 80, "first_seen": "2025-01-10", "source": "manual"}, "edge ai": {"score": 0.2, "first_seen": "2025-01-10", "source": "manual"}}`},
		{"created date only", `{"llm agents": {"score": 0.8, "source": "manual", "created_date": "2025-01-10"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "master.json")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}

			_, err := NewKeywordStore(dir).Load()
			var corrupt *CorruptStoreError
			if !errors.As(err, &corrupt) || !errors.Is(err, ErrLegacyStore) {
				t.Fatalf("Load() error = %v, want legacy CorruptStoreError", err)
			}
			if !strings.Contains(err.Error(), "migrate import-legacy") {
				t.Errorf("error should point at the import command: %v", err)
			}
			if data, _ := os.ReadFile(path); string(data) != tt.content {
				t.Error("legacy file must be left untouched")
			}
		})
	}
}

func TestKeywordStoreLoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{broken"},
		{"wrong shape", `["llm agents"]`},
		{"null record", `{"llm agents": null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "master.json"), []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := NewKeywordStore(dir).Load()
			var corrupt *CorruptStoreError
			if !errors.As(err, &corrupt) {
				t.Fatalf("Load() error = %v, want CorruptStoreError", err)
			}
			if !IsFatal(err) {
				t.Error("corrupt store must be fatal")
			}
		})
	}
}

func TestKeywordStoreActive(t *testing.T) {
	ks := NewKeywordStore(t.TempDir())

	active, err := ks.LoadActive()
	if err != nil || active != nil {
		t.Fatalf("LoadActive() on missing file = %v, %v", active, err)
	}

	records := []KeywordRecord{{Keyword: "ai chips"}, {Keyword: "llm agents"}}
	if err := ks.SaveActive(records); err != nil {
		t.Fatal(err)
	}
	active, err = ks.LoadActive()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"ai chips", "llm agents"}, active); diff != "" {
		t.Errorf("active mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteJSONFileLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "master.json")
	if err := writeJSONFile(path, map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	if err := writeJSONFile(path, map[string]int{"a": 2}); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d files, want only master.json", len(entries))
	}
	data, _ := os.ReadFile(path)
	if string(data) != "{\n  \"a\": 2\n}\n" {
		t.Errorf("file content = %q", data)
	}
}
