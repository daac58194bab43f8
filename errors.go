package main

import (
	"errors"
	"fmt"
)

// ErrNoKeywords is returned when no keyword clears the selection threshold
var ErrNoKeywords = errors.New("no keywords to research")

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// ConfigurationError reports a missing or invalid setting; fatal before any stage runs
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Reason)
}

// CorruptStoreError reports a keyword or history file that cannot be parsed
type CorruptStoreError struct {
	Path string
	Err  error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("corrupt store %s: %v", e.Path, e.Err)
}

func (e *CorruptStoreError) Unwrap() error { return e.Err }

// CollectionError reports a platform query that failed
type CollectionError struct {
	Platform string
	Keyword  string
	Err      error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collecting %q on %s: %v", e.Keyword, e.Platform, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }

// SynthesisError reports a failed or unparseable language model call
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// PublishError reports a failed publish sink
type PublishError struct {
	Sink string
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publishing to %s: %v", e.Sink, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// IsFatal reports whether err means the environment is broken and the
// scheduler should see a nonzero exit.
func IsFatal(err error) bool {
	var cfgErr *ConfigurationError
	var storeErr *CorruptStoreError
	return errors.As(err, &cfgErr) || errors.As(err, &storeErr)
}
