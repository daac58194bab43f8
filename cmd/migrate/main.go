package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

func main() {
	if len(os.Args) < 3 {
		log.Fatal().Msg("Usage: migrate <import-legacy|normalize> <keywords-directory>")
	}

	command := os.Args[1]
	keywordsDir := os.Args[2]

	switch command {
	case "import-legacy":
		if err := importLegacy(keywordsDir); err != nil {
			log.Fatal().Err(err).Msg("✗ Import failed")
		}
	case "normalize":
		if err := normalize(keywordsDir, bufio.NewReader(os.Stdin)); err != nil {
			log.Fatal().Err(err).Msg("✗ Normalize failed")
		}
	default:
		log.Fatal().Msgf("Unknown command %q", command)
	}
}

// legacyRecord is a master.json entry written by the first version of the
// researcher: integer scores from 0 to 100 and a creation date.
type legacyRecord struct {
	Score          json.Number `json:"score"`
	LastUsed       *string     `json:"last_used"`
	Source         string      `json:"source"`
	CreatedDate    string      `json:"created_date"`
	DiscoveredFrom string      `json:"discovered_from,omitempty"`

	// present when the file is already in the current format
	FirstSeen  string `json:"first_seen"`
	UsageCount int    `json:"usage_count"`
}

type keywordRecord struct {
	Score          float64 `json:"score"`
	FirstSeen      string  `json:"first_seen"`
	LastUsed       string  `json:"last_used,omitempty"`
	UsageCount     int     `json:"usage_count"`
	Source         string  `json:"source"`
	DiscoveredFrom string  `json:"discovered_from,omitempty"`
	LastDiscovered string  `json:"last_discovered,omitempty"`
}

// legacyRun is one value of the date-keyed legacy history.json
type legacyRun struct {
	Keywords         []string `json:"keywords"`
	ExecutionTime    string   `json:"execution_time"`
	Status           string   `json:"status"`
	NewKeywordsFound int      `json:"new_keywords_found"`
}

type historyEntry struct {
	RunID            string    `json:"run_id"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Status           string    `json:"status"`
	ActiveKeywords   []string  `json:"active_keywords"`
	ActiveCount      int       `json:"active_count"`
	NewKeywordsCount int       `json:"new_keywords_count"`
}

func importLegacy(keywordsDir string) error {
	masterPath := filepath.Join(keywordsDir, "master.json")
	var legacy map[string]legacyRecord
	if err := readJSON(masterPath, &legacy); err != nil {
		return err
	}

	master, err := convertMaster(legacy)
	if err != nil {
		return fmt.Errorf("converting %s: %w", masterPath, err)
	}
	if err := backupAndWrite(masterPath, master); err != nil {
		return err
	}
	log.Info().Int("keywords", len(master)).Msg("✓ Converted master.json")

	historyPath := filepath.Join(keywordsDir, "history.json")
	data, err := os.ReadFile(historyPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", historyPath, err)
	}
	if strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		log.Info().Msg("history.json already in append-only format, skipping")
		return nil
	}

	var runs map[string]legacyRun
	if err := json.Unmarshal(data, &runs); err != nil {
		return fmt.Errorf("parsing %s: %w", historyPath, err)
	}
	entries := convertHistory(runs)
	if err := backupAndWrite(historyPath, entries); err != nil {
		return err
	}
	log.Info().Int("runs", len(entries)).Msg("✓ Converted history.json")
	return nil
}

// convertMaster rescales scores to [0,1] and maps the legacy date fields
func convertMaster(legacy map[string]legacyRecord) (map[string]keywordRecord, error) {
	master := make(map[string]keywordRecord, len(legacy))
	for text, rec := range legacy {
		key := normalizeKeyword(text)
		if key == "" {
			continue
		}

		score, err := rec.Score.Float64()
		if err != nil {
			return nil, fmt.Errorf("keyword %q: invalid score %q", text, rec.Score)
		}
		if score > 1 {
			score /= 100
		}

		out := keywordRecord{
			Score:          clamp(score),
			FirstSeen:      rec.FirstSeen,
			UsageCount:     rec.UsageCount,
			Source:         "manual",
			DiscoveredFrom: rec.DiscoveredFrom,
		}
		if out.FirstSeen == "" {
			out.FirstSeen = rec.CreatedDate
		}
		if rec.Source == "discovered" {
			out.Source = "discovered"
		}
		if rec.LastUsed != nil {
			out.LastUsed = *rec.LastUsed
			if out.UsageCount == 0 {
				out.UsageCount = 1
			}
		}

		if existing, ok := master[key]; ok {
			out = mergeRecords(existing, out)
		}
		master[key] = out
	}
	return master, nil
}

// convertHistory turns the date-keyed legacy log into an ordered array
func convertHistory(runs map[string]legacyRun) []historyEntry {
	dates := make([]string, 0, len(runs))
	for date := range runs {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	entries := make([]historyEntry, 0, len(runs))
	for _, date := range dates {
		run := runs[date]
		at, err := time.ParseInLocation("2006-01-02 15:04:05", date+" "+run.ExecutionTime, time.Local)
		if err != nil {
			at, _ = time.ParseInLocation("2006-01-02", date, time.Local)
		}
		status := run.Status
		if status == "" {
			status = "completed"
		}
		entries = append(entries, historyEntry{
			RunID:            "legacy-" + date,
			StartedAt:        at.UTC(),
			FinishedAt:       at.UTC(),
			Status:           status,
			ActiveKeywords:   run.Keywords,
			ActiveCount:      len(run.Keywords),
			NewKeywordsCount: run.NewKeywordsFound,
		})
	}
	return entries
}

// normalize coalesces keys that differ only in case or spacing, asking before each merge
func normalize(keywordsDir string, reader *bufio.Reader) error {
	masterPath := filepath.Join(keywordsDir, "master.json")
	var master map[string]keywordRecord
	if err := readJSON(masterPath, &master); err != nil {
		return err
	}

	groups := make(map[string][]string)
	for text := range master {
		key := normalizeKeyword(text)
		groups[key] = append(groups[key], text)
	}

	out := make(map[string]keywordRecord, len(groups))
	merged := 0
	for key, variants := range groups {
		if key == "" {
			continue
		}
		sort.Strings(variants)
		rec := master[variants[0]]
		for _, v := range variants[1:] {
			if !confirm(reader, fmt.Sprintf("MERGE %q into %q?", v, key)) {
				fmt.Printf("  SKIP: %s\n", v)
				continue
			}
			rec = mergeRecords(rec, master[v])
			merged++
		}
		out[key] = rec
	}

	if err := backupAndWrite(masterPath, out); err != nil {
		return err
	}
	fmt.Printf("\nMerged %d duplicate keywords, %d remain\n", merged, len(out))
	return nil
}

func mergeRecords(a, b keywordRecord) keywordRecord {
	if b.Score > a.Score {
		a.Score = b.Score
	}
	a.UsageCount += b.UsageCount
	if b.LastUsed > a.LastUsed {
		a.LastUsed = b.LastUsed
	}
	if b.FirstSeen != "" && (a.FirstSeen == "" || b.FirstSeen < a.FirstSeen) {
		a.FirstSeen = b.FirstSeen
	}
	if b.Source == "manual" {
		a.Source = "manual"
	}
	return a
}

func normalizeKeyword(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// backupAndWrite keeps the previous file as <name>.bak before replacing it
func backupAndWrite(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	if err := os.Rename(path, path+".bak"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("backing up %s: %w", path, err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func confirm(reader *bufio.Reader, question string) bool {
	for {
		fmt.Printf("  %s [y/N]: ", question)
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(input)) {
		case "y", "yes":
			return true
		case "", "n", "no":
			return false
		default:
			fmt.Println("  Please enter y or n.")
		}
	}
}
