package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const webSearchURL = "https://html.duckduckgo.com/html/"

// WebSource scrapes general web search results from the DuckDuckGo HTML endpoint
type WebSource struct {
	client  *http.Client
	baseURL string
}

func NewWebSource(client *http.Client) *WebSource {
	return &WebSource{client: client, baseURL: webSearchURL}
}

func (s *WebSource) Name() string { return "web" }

func (s *WebSource) Search(ctx context.Context, keyword string, limit int) (*PlatformResult, error) {
	q := url.Values{}
	q.Set("q", keyword)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: req.URL.String()}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parsing search page: %w", err)
	}

	results := parseWebResults(doc, limit)
	domains := make([]string, 0, len(results))
	for _, r := range results {
		domains = append(domains, r.Extra["domain"].(string))
	}

	return &PlatformResult{
		Results: results,
		EngagementMetrics: map[string]interface{}{
			"result_count": len(results),
			"top_domains":  topCounts(domains, 3),
		},
	}, nil
}

func parseWebResults(doc *goquery.Document, limit int) []ResultItem {
	results := []ResultItem{}
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(results) >= limit {
			return false
		}
		if sel.HasClass("result--ad") {
			return true
		}
		link := sel.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		href, ok := link.Attr("href")
		if !ok || title == "" {
			return true
		}
		target := resolveResultURL(href)
		if target == "" {
			return true
		}
		results = append(results, ResultItem{
			Title:       title,
			URL:         target,
			Description: strings.TrimSpace(sel.Find(".result__snippet").Text()),
			Extra:       map[string]interface{}{"domain": hostOf(target)},
		})
		return true
	})
	return results
}

// resolveResultURL unwraps the redirect links DuckDuckGo puts on results
func resolveResultURL(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
