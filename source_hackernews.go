package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"
)

const hackerNewsSearchURL = "https://hn.algolia.com/api/v1/search"

// HackerNewsSource searches stories through the Algolia Hacker News API
type HackerNewsSource struct {
	client  *http.Client
	baseURL string
	now     func() time.Time
}

func NewHackerNewsSource(client *http.Client) *HackerNewsSource {
	return &HackerNewsSource{client: client, baseURL: hackerNewsSearchURL, now: time.Now}
}

func (s *HackerNewsSource) Name() string { return "hackernews" }

type hackerNewsHit struct {
	ObjectID    string `json:"objectID"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Author      string `json:"author"`
	Points      int    `json:"points"`
	NumComments int    `json:"num_comments"`
	CreatedAt   string `json:"created_at"`
	StoryText   string `json:"story_text"`
}

func (s *HackerNewsSource) Search(ctx context.Context, keyword string, limit int) (*PlatformResult, error) {
	q := url.Values{}
	q.Set("query", keyword)
	q.Set("tags", "story")
	q.Set("hitsPerPage", fmt.Sprint(limit))

	var body struct {
		Hits []hackerNewsHit `json:"hits"`
	}
	if err := getJSON(ctx, s.client, s.baseURL+"?"+q.Encode(), nil, &body); err != nil {
		return nil, err
	}

	now := s.now()
	results := make([]ResultItem, 0, len(body.Hits))
	var (
		totalPoints, totalComments, recent int
		authors                            []string
	)
	for _, hit := range body.Hits {
		if hit.Title == "" {
			continue
		}
		discussion := "https://news.ycombinator.com/item?id=" + hit.ObjectID
		link := hit.URL
		if link == "" {
			link = discussion
		}
		days := daysSince(hit.CreatedAt, now)
		if days < 0 {
			// unknown age; treat like a recent front page story
			days = 3
		}
		isRecent := days <= 7
		if isRecent {
			recent++
		}
		results = append(results, ResultItem{
			Title:       hit.Title,
			URL:         link,
			Description: truncateText(htmlToText(hit.StoryText), 500),
			PublishedAt: hit.CreatedAt,
			Author:      hit.Author,
			TrendScore:  storyTrendScore(hit.Points, days, hit.NumComments),
			Extra: map[string]interface{}{
				"points":         hit.Points,
				"comments_count": hit.NumComments,
				"discussion_url": discussion,
				"days_old":       days,
				"is_recent":      isRecent,
			},
		})
		totalPoints += hit.Points
		totalComments += hit.NumComments
		authors = append(authors, hit.Author)
	}

	metrics := map[string]interface{}{"post_count": len(results)}
	if n := len(results); n > 0 {
		metrics["recent_posts"] = recent
		metrics["total_score"] = totalPoints
		metrics["total_comments"] = totalComments
		metrics["avg_score"] = round2(float64(totalPoints) / float64(n))
		metrics["avg_comments"] = round2(float64(totalComments) / float64(n))
		metrics["top_authors"] = topCounts(authors, 3)
	}

	return &PlatformResult{Results: results, EngagementMetrics: metrics}, nil
}

// storyTrendScore weighs points, recency and discussion volume into 0..100
func storyTrendScore(points, daysOld, comments int) float64 {
	score := 0.0
	switch {
	case points > 100:
		score += 30
	case points > 50:
		score += 20
	case points > 20:
		score += 10
	}
	switch {
	case daysOld <= 1:
		score += 25
	case daysOld <= 3:
		score += 15
	case daysOld <= 7:
		score += 5
	}
	switch {
	case comments > 50:
		score += 20
	case comments > 20:
		score += 10
	case comments > 5:
		score += 5
	}
	return math.Min(score, 100)
}
