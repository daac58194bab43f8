package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

// NewSources builds the enabled research sources. Platforms whose
// credential is missing are skipped and returned in disabled.
func NewSources(platforms []string, creds Credentials) (sources []Source, disabled []string) {
	client := &http.Client{Timeout: 30 * time.Second}
	for _, platform := range platforms {
		switch platform {
		case "youtube":
			if creds.YouTubeAPIKey == "" {
				disabled = append(disabled, platform)
				continue
			}
			sources = append(sources, NewYouTubeSource(client, creds.YouTubeAPIKey))
		case "github":
			if creds.GitHubToken == "" {
				disabled = append(disabled, platform)
				continue
			}
			sources = append(sources, NewGitHubSource(client, creds.GitHubToken))
		case "hackernews":
			sources = append(sources, NewHackerNewsSource(client))
		case "arxiv":
			sources = append(sources, NewArxivSource(client))
		case "web":
			sources = append(sources, NewWebSource(client))
		default:
			disabled = append(disabled, platform)
		}
	}
	return sources, disabled
}

// getJSON performs a GET request and decodes a JSON response into out
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		// the query may carry an API key
		return &HTTPError{StatusCode: resp.StatusCode, URL: req.URL.Scheme + "://" + req.URL.Host + req.URL.Path}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// topCounts returns the n most frequent values with their counts
func topCounts(values []string, n int) map[string]int {
	counts := map[string]int{}
	for _, v := range values {
		if v != "" {
			counts[v]++
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	top := make(map[string]int, n)
	for i, k := range keys {
		if i >= n {
			break
		}
		top[k] = counts[k]
	}
	return top
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

// daysSince returns whole days between an RFC 3339 timestamp and now, or -1 if unparseable
func daysSince(timestamp string, now time.Time) int {
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return -1
	}
	return int(now.Sub(t).Hours() / 24)
}
