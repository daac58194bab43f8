package main

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const arxivQueryURL = "http://export.arxiv.org/api/query"

// aiCategories are the arXiv categories that count as core AI research
var aiCategories = map[string]bool{
	"cs.AI":   true,
	"cs.LG":   true,
	"cs.CL":   true,
	"cs.CV":   true,
	"cs.NE":   true,
	"stat.ML": true,
}

// ArxivSource searches recent papers through the arXiv Atom API
type ArxivSource struct {
	client  *http.Client
	baseURL string
	now     func() time.Time
}

func NewArxivSource(client *http.Client) *ArxivSource {
	return &ArxivSource{client: client, baseURL: arxivQueryURL, now: time.Now}
}

func (s *ArxivSource) Name() string { return "arxiv" }

type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Title string `xml:"title,attr"`
	} `xml:"link"`
}

func (s *ArxivSource) Search(ctx context.Context, keyword string, limit int) (*PlatformResult, error) {
	q := url.Values{}
	q.Set("search_query", fmt.Sprintf("all:%q", keyword))
	q.Set("start", "0")
	q.Set("max_results", fmt.Sprint(limit))
	q.Set("sortBy", "submittedDate")
	q.Set("sortOrder", "descending")

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

	var feed arxivFeed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}

	now := s.now()
	results := make([]ResultItem, 0, len(feed.Entries))
	var (
		recent              int
		categories, authors []string
	)
	for _, entry := range feed.Entries {
		names := make([]string, 0, len(entry.Authors))
		for _, a := range entry.Authors {
			names = append(names, a.Name)
		}
		terms := make([]string, 0, len(entry.Categories))
		for _, c := range entry.Categories {
			terms = append(terms, c.Term)
		}
		pdfURL := ""
		for _, l := range entry.Links {
			if l.Title == "pdf" {
				pdfURL = l.Href
			}
		}

		days := daysSince(entry.Published, now)
		if days >= 0 && days <= 30 {
			recent++
		}

		author := strings.Join(names, ", ")
		if len(names) > 3 {
			author = strings.Join(names[:3], ", ") + " et al."
		}

		results = append(results, ResultItem{
			Title:       collapseSpace(entry.Title),
			URL:         entry.ID,
			Description: truncateText(collapseSpace(entry.Summary), 500),
			PublishedAt: entry.Published,
			Author:      author,
			TrendScore:  paperTrendScore(days, terms),
			Extra: map[string]interface{}{
				"arxiv_id":   entry.ID[strings.LastIndex(entry.ID, "/")+1:],
				"categories": terms,
				"pdf_url":    pdfURL,
				"days_old":   days,
			},
		})
		categories = append(categories, terms...)
		authors = append(authors, names...)
	}

	metrics := map[string]interface{}{"paper_count": len(results)}
	if len(results) > 0 {
		metrics["recent_papers"] = recent
		metrics["top_categories"] = topCounts(categories, 3)
		metrics["top_authors"] = topCounts(authors, 3)
	}

	return &PlatformResult{Results: results, EngagementMetrics: metrics}, nil
}

// paperTrendScore rewards recent submissions and core AI categories
func paperTrendScore(daysOld int, categories []string) float64 {
	score := 0.0
	switch {
	case daysOld < 0:
	case daysOld <= 30:
		score += 30
	case daysOld <= 90:
		score += 20
	case daysOld <= 365:
		score += 10
	}
	for _, c := range categories {
		if aiCategories[c] {
			score += 15
			break
		}
	}
	return score
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
