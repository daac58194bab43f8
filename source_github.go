package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"
)

const githubSearchURL = "https://api.github.com/search/repositories"

// GitHubSource searches repositories and scores how fast they are gaining stars
type GitHubSource struct {
	client  *http.Client
	token   string
	baseURL string
	now     func() time.Time
}

func NewGitHubSource(client *http.Client, token string) *GitHubSource {
	return &GitHubSource{client: client, token: token, baseURL: githubSearchURL, now: time.Now}
}

func (s *GitHubSource) Name() string { return "github" }

type githubRepo struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	HTMLURL     string `json:"html_url"`
	Owner       struct {
		Login string `json:"login"`
	} `json:"owner"`
	Stars      int      `json:"stargazers_count"`
	Forks      int      `json:"forks_count"`
	OpenIssues int      `json:"open_issues_count"`
	Language   string   `json:"language"`
	Topics     []string `json:"topics"`
	CreatedAt  string   `json:"created_at"`
	UpdatedAt  string   `json:"updated_at"`
	License    *struct {
		Name string `json:"name"`
	} `json:"license"`
}

func (s *GitHubSource) Search(ctx context.Context, keyword string, limit int) (*PlatformResult, error) {
	q := url.Values{}
	q.Set("q", keyword+" stars:>50")
	q.Set("sort", "stars")
	q.Set("order", "desc")
	q.Set("per_page", fmt.Sprint(limit))

	var body struct {
		Items []githubRepo `json:"items"`
	}
	headers := map[string]string{
		"Authorization":        "Bearer " + s.token,
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}
	if err := getJSON(ctx, s.client, s.baseURL+"?"+q.Encode(), headers, &body); err != nil {
		return nil, err
	}

	now := s.now()
	results := make([]ResultItem, 0, len(body.Items))
	var (
		totalStars, totalForks, trending int
		languages                        []string
	)
	for _, repo := range body.Items {
		m := repoTrend(repo.Stars, repo.CreatedAt, now)
		license := ""
		if repo.License != nil {
			license = repo.License.Name
		}
		results = append(results, ResultItem{
			Title:       repo.FullName,
			URL:         repo.HTMLURL,
			Description: repo.Description,
			PublishedAt: repo.CreatedAt,
			Author:      repo.Owner.Login,
			TrendScore:  m.Score,
			Extra: map[string]interface{}{
				"stars":           repo.Stars,
				"forks":           repo.Forks,
				"open_issues":     repo.OpenIssues,
				"language":        repo.Language,
				"topics":          repo.Topics,
				"license":         license,
				"updated_at":      repo.UpdatedAt,
				"star_rate":       round2(m.StarRate),
				"days_old":        m.DaysOld,
				"is_trending":     m.Trending,
				"is_accelerating": m.Accelerating,
			},
		})
		totalStars += repo.Stars
		totalForks += repo.Forks
		if m.Trending {
			trending++
		}
		languages = append(languages, repo.Language)
	}

	metrics := map[string]interface{}{"repo_count": len(results)}
	if n := len(results); n > 0 {
		metrics["total_stars"] = totalStars
		metrics["total_forks"] = totalForks
		metrics["avg_stars"] = round2(float64(totalStars) / float64(n))
		metrics["avg_forks"] = round2(float64(totalForks) / float64(n))
		metrics["top_languages"] = topCounts(languages, 3)
		metrics["trending_repos_count"] = trending
	}

	return &PlatformResult{Results: results, EngagementMetrics: metrics}, nil
}

// repoTrendMetrics describes how quickly a repository is gaining stars
type repoTrendMetrics struct {
	StarRate     float64
	DaysOld      int
	Trending     bool
	Accelerating bool
	Score        float64
}

// repoTrend scores a repository from 0 to 100: star rate (max 50), total
// stars (max 20), first-year recency (max 30) and an acceleration bonus.
func repoTrend(stars int, createdAt string, now time.Time) repoTrendMetrics {
	days := daysSince(createdAt, now)
	if days <= 0 {
		return repoTrendMetrics{}
	}

	rate := float64(stars) / float64(days)
	m := repoTrendMetrics{
		StarRate:     rate,
		DaysOld:      days,
		Trending:     stars >= 100 && days <= 365,
		Accelerating: rate >= 1.0 && stars >= 50,
	}

	score := math.Min(rate*10, 50) +
		math.Min(float64(stars)/100, 20) +
		math.Max(0, float64(365-days)/365*30)
	switch {
	case rate >= 2.0:
		score += 20
	case rate >= 1.0:
		score += 10
	}
	m.Score = round2(math.Min(score, 100))
	return m
}
