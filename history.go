package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ExecutionHistory is the append-only run log stored next to the keyword files
type ExecutionHistory struct {
	path string
}

// NewExecutionHistory opens the history file of a keyword store
func NewExecutionHistory(store *KeywordStore) *ExecutionHistory {
	return &ExecutionHistory{path: store.historyPath()}
}

// Entries returns all recorded runs, oldest first
func (h *ExecutionHistory) Entries() ([]HistoryEntry, error) {
	data, err := os.ReadFile(h.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", h.path, err)
	}

	var entries []HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &CorruptStoreError{Path: h.path, Err: err}
	}
	return entries, nil
}

// Record appends one entry. Existing entries are never rewritten.
func (h *ExecutionHistory) Record(entry HistoryEntry) error {
	entries, err := h.Entries()
	if err != nil {
		return err
	}
	return writeJSONFile(h.path, append(entries, entry))
}
