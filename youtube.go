package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// TranscriptClient fetches YouTube transcripts from a transcript API and caches them on disk
type TranscriptClient struct {
	apiURL   string
	apiKey   string
	cacheDir string
	retries  int
	client   *http.Client
	limiter  *rate.Limiter
	backoff  time.Duration
}

// NewTranscriptClient creates a client with the default cache and rate limit
func NewTranscriptClient(apiURL, apiKey string) *TranscriptClient {
	return &TranscriptClient{
		apiURL:   apiURL,
		apiKey:   apiKey,
		cacheDir: filepath.Join(".cache", "youtube"),
		retries:  5,
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(2*time.Second), 1),
		backoff:  time.Second,
	}
}

// Get returns the transcript of a video, using the local cache if available
func (c *TranscriptClient) Get(ctx context.Context, videoURL string) (string, error) {
	videoID, err := extractVideoID(videoURL)
	if err != nil {
		return "", fmt.Errorf("extracting video ID: %w", err)
	}

	cachePath := filepath.Join(c.cacheDir, videoID)
	if content, err := os.ReadFile(cachePath); err == nil {
		return string(content), nil
	}

	transcript, err := c.fetchWithRetries(ctx, videoID)
	if err != nil {
		return "", err
	}

	// Cache result; a failed cache write only costs a refetch
	if err := os.MkdirAll(c.cacheDir, 0755); err == nil {
		if err := os.WriteFile(cachePath, []byte(transcript), 0644); err != nil {
			logger.Debug().Err(err).Str("video_id", videoID).Msg("caching transcript failed")
		}
	}

	return transcript, nil
}

func extractVideoID(videoURL string) (string, error) {
	parsedURL, err := url.Parse(videoURL)
	if err != nil {
		return "", err
	}

	// Validate YouTube domain
	if !strings.Contains(parsedURL.Host, "youtube.com") && !strings.Contains(parsedURL.Host, "youtu.be") {
		return "", fmt.Errorf("not a YouTube URL")
	}

	// Handle youtu.be URLs
	if strings.Contains(parsedURL.Host, "youtu.be") {
		return strings.TrimPrefix(parsedURL.Path, "/"), nil
	}

	// Handle youtube.com URLs
	videoID := parsedURL.Query().Get("v")
	if videoID == "" {
		return "", fmt.Errorf("no video ID found in URL")
	}
	return videoID, nil
}

func (c *TranscriptClient) fetchWithRetries(ctx context.Context, videoID string) (string, error) {
	var lastErr error
	for i := 0; i < c.retries; i++ {
		transcript, err := c.fetch(ctx, videoID)
		if err == nil {
			return transcript, nil
		}
		lastErr = err

		if !isRateLimit(err) {
			return "", err
		}
		if i == c.retries-1 {
			break
		}

		// Exponential backoff on rate limits
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.backoff << uint(i)):
		}
	}
	return "", fmt.Errorf("exceeded max retries after %d attempts: %w", c.retries, lastErr)
}

func isRateLimit(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	// the transcript service sometimes reports upstream 429s in a 5xx body
	return strings.Contains(err.Error(), "too many 429 error responses")
}

func (c *TranscriptClient) fetch(ctx context.Context, videoID string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	videoURL := fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return "", err
	}

	q := req.URL.Query()
	q.Add("url", videoURL)
	q.Add("api_key", c.apiKey)
	q.Add("text", "true")
	req.URL.RawQuery = q.Encode()

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	logger.Debug().Int("status", resp.StatusCode).Str("video_id", videoID).Msg("transcript API response")

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		if strings.Contains(string(body), "too many 429 error responses") {
			return "", fmt.Errorf("transcript service: too many 429 error responses")
		}
		return "", &HTTPError{StatusCode: resp.StatusCode, URL: videoURL}
	}

	return string(body), nil
}
