package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"
)

const youtubeSearchURL = "https://www.googleapis.com/youtube/v3/search"

// YouTubeSource searches videos with the YouTube Data API
type YouTubeSource struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

func NewYouTubeSource(client *http.Client, apiKey string) *YouTubeSource {
	return &YouTubeSource{client: client, apiKey: apiKey, baseURL: youtubeSearchURL}
}

func (s *YouTubeSource) Name() string { return "youtube" }

type youtubeSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			PublishedAt  string `json:"publishedAt"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
	} `json:"items"`
}

func (s *YouTubeSource) Search(ctx context.Context, keyword string, limit int) (*PlatformResult, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("q", keyword)
	q.Set("type", "video")
	q.Set("order", "relevance")
	q.Set("maxResults", fmt.Sprint(limit))
	q.Set("key", s.apiKey)

	var body youtubeSearchResponse
	if err := getJSON(ctx, s.client, s.baseURL+"?"+q.Encode(), nil, &body); err != nil {
		return nil, err
	}

	results := make([]ResultItem, 0, len(body.Items))
	tutorials := 0
	for _, item := range body.Items {
		if item.ID.VideoID == "" {
			continue
		}
		contentType := classifyVideo(item.Snippet.Title, item.Snippet.Description)
		if contentType == "tutorial" {
			tutorials++
		}
		results = append(results, ResultItem{
			Title:       item.Snippet.Title,
			URL:         "https://www.youtube.com/watch?v=" + item.ID.VideoID,
			Description: item.Snippet.Description,
			PublishedAt: item.Snippet.PublishedAt,
			Author:      item.Snippet.ChannelTitle,
			Extra: map[string]interface{}{
				"video_id":     item.ID.VideoID,
				"content_type": contentType,
				"language":     detectLanguage(item.Snippet.Title + " " + item.Snippet.Description),
			},
		})
	}

	return &PlatformResult{
		Results: results,
		EngagementMetrics: map[string]interface{}{
			"total_videos":   len(results),
			"tutorial_count": tutorials,
		},
	}, nil
}

var videoCategories = []struct {
	label string
	cues  []string
}{
	{"tutorial", []string{"tutorial", "explained", "introduction", "beginner", "how to", "解説", "説明", "入門", "基礎", "学習", "チュートリアル"}},
	{"demo", []string{"demo", "walkthrough", "showcase", "デモ", "実演", "動作確認", "サンプル"}},
	{"conference", []string{"conference", "talk", "keynote", "summit", "カンファレンス", "セミナー", "講演", "発表"}},
	{"news", []string{"news", "announced", "release", "update", "ニュース", "最新", "アップデート", "リリース"}},
	{"review", []string{"review", " vs ", "comparison", "benchmark", "レビュー", "比較", "検証", "評価"}},
}

// classifyVideo labels a video by cue words in its title and description
func classifyVideo(title, description string) string {
	text := strings.ToLower(title + " " + description)
	for _, cat := range videoCategories {
		for _, cue := range cat.cues {
			if strings.Contains(text, cue) {
				return cat.label
			}
		}
	}
	return "other"
}

// detectLanguage distinguishes Japanese from English text
func detectLanguage(text string) string {
	hasLatin := false
	for _, r := range text {
		if unicode.In(r, unicode.Hiragana, unicode.Katakana) {
			return "ja"
		}
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			hasLatin = true
		}
	}
	if hasLatin {
		return "en"
	}
	return "unknown"
}
