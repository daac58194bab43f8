package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// ContentResult represents the result of fetching content
type ContentResult struct {
	Text string // Markdown text or transcript
}

// ContentFetcher fetches the pages behind top search results so the
// synthesizer sees more than a title and a snippet
type ContentFetcher struct {
	handlers []ContentHandler
	client   *http.Client
}

// NewContentFetcher creates a new content fetcher with default handlers
func NewContentFetcher(creds Credentials) *ContentFetcher {
	f := &ContentFetcher{
		client: &http.Client{Timeout: 30 * time.Second},
	}

	// Register handlers (most specific first)
	if creds.TranscriptAPIKey != "" && creds.TranscriptAPIURL != "" {
		f.AddHandler(&YouTubeHandler{
			transcripts: NewTranscriptClient(creds.TranscriptAPIURL, creds.TranscriptAPIKey),
		})
	}
	f.AddHandler(&HTMLHandler{converter: md.NewConverter("", true, nil)}) // fallback

	return f
}

// AddHandler adds a content handler to the chain
func (f *ContentFetcher) AddHandler(handler ContentHandler) {
	f.handlers = append(f.handlers, handler)
}

// FetchContent fetches and processes content using handler chain
func (f *ContentFetcher) FetchContent(ctx context.Context, url string) (*ContentResult, error) {
	for _, handler := range f.handlers {
		if h, ok := handler.(URLHandler); ok && h.HandlesURL(url) {
			return h.HandleURL(ctx, url)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	// Find handler based on URL + response headers
	for _, handler := range f.handlers {
		if handler.CanHandle(url, resp) {
			return handler.Handle(url, resp)
		}
	}

	return nil, fmt.Errorf("no handler found for %s", url)
}
