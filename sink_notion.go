package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	notionAPIURL        = "https://api.notion.com/v1"
	notionVersion       = "2022-06-28"
	notionMaxTextChars  = 2000
	notionTopPerSection = 5
)

// NotionSink creates one Notion page per report under a parent page
type NotionSink struct {
	client       *http.Client
	baseURL      string
	apiKey       string
	parentPageID string
	maxBlocks    int
}

func NewNotionSink(apiKey, parentPageID string, maxBlocks int) *NotionSink {
	if maxBlocks <= 0 {
		maxBlocks = defaultNotionMaxBlocks
	}
	return &NotionSink{
		client:       &http.Client{Timeout: 30 * time.Second},
		baseURL:      notionAPIURL,
		apiKey:       apiKey,
		parentPageID: parentPageID,
		maxBlocks:    maxBlocks,
	}
}

func (s *NotionSink) Name() string { return "notion" }

type notionText struct {
	Type string `json:"type"`
	Text struct {
		Content string `json:"content"`
		Link    *struct {
			URL string `json:"url"`
		} `json:"link,omitempty"`
	} `json:"text"`
}

type notionRichText struct {
	RichText []notionText `json:"rich_text"`
}

type notionBlock struct {
	Object           string          `json:"object"`
	Type             string          `json:"type"`
	Heading2         *notionRichText `json:"heading_2,omitempty"`
	Heading3         *notionRichText `json:"heading_3,omitempty"`
	Paragraph        *notionRichText `json:"paragraph,omitempty"`
	BulletedListItem *notionRichText `json:"bulleted_list_item,omitempty"`
}

func (s *NotionSink) Publish(ctx context.Context, report *Report) error {
	payload := map[string]interface{}{
		"parent": map[string]string{"page_id": s.parentPageID},
		"properties": map[string]interface{}{
			"title": map[string]interface{}{
				"title": []notionText{plainText("AI Trend Research Report - " + report.Date)},
			},
		},
		"children": notionBlocks(report, s.maxBlocks),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling notion page: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/pages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Notion-Version", notionVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%w: %s: %s", &HTTPError{StatusCode: resp.StatusCode, URL: req.URL.String()}, apiErr.Code, apiErr.Message)
		}
		return &HTTPError{StatusCode: resp.StatusCode, URL: req.URL.String()}
	}
	return nil
}

// notionBlocks lays the report out as Summary, New Keywords Discovered,
// Recommendations and Detailed Research Results, capped at maxBlocks.
func notionBlocks(report *Report, maxBlocks int) []notionBlock {
	var blocks []notionBlock

	blocks = append(blocks, heading2("📊 Summary"))
	if report.Summary.Headline != "" {
		blocks = append(blocks, paragraph(report.Summary.Headline))
	}
	blocks = append(blocks, paragraph(fmt.Sprintf(
		"• Platforms Searched: %d\n• Keywords Used: %s\n• New Keywords Found: %d\n• Total Results: %d",
		report.Summary.PlatformsSearched,
		strings.Join(report.Summary.KeywordsUsed, ", "),
		report.Summary.NewKeywordsFound,
		report.Summary.TotalResults,
	)))
	for _, trend := range report.Summary.KeyTrends {
		blocks = append(blocks, bullet(trend))
	}

	blocks = append(blocks, heading2("🔍 New Keywords Discovered"))
	if len(report.NewKeywords) == 0 {
		blocks = append(blocks, paragraph("No new keywords found"))
	}
	for _, kw := range report.NewKeywords {
		blocks = append(blocks, bullet(fmt.Sprintf("%s (%.2f)", kw.Keyword, kw.Score)))
	}

	blocks = append(blocks, heading2("💡 Recommendations"))
	if len(report.Recommendations) == 0 {
		blocks = append(blocks, paragraph("No recommendations available"))
	}
	for _, rec := range report.Recommendations {
		blocks = append(blocks, bullet(rec))
	}

	blocks = append(blocks, heading2("📋 Detailed Research Results"))
	for _, pr := range report.DetailedResults {
		blocks = append(blocks, heading3(fmt.Sprintf("%s: %s", strings.ToUpper(pr.Platform), pr.Keyword)))
		if pr.Error != "" {
			blocks = append(blocks, paragraph("Error: "+pr.Error))
			continue
		}
		if len(pr.Results) == 0 {
			blocks = append(blocks, paragraph("No results found"))
			continue
		}
		for i, item := range pr.Results {
			if i >= notionTopPerSection {
				break
			}
			blocks = append(blocks, linkBullet(item))
		}
	}

	if len(blocks) > maxBlocks {
		blocks = blocks[:maxBlocks]
	}
	return blocks
}

func plainText(content string) notionText {
	var t notionText
	t.Type = "text"
	t.Text.Content = truncateRunes(content, notionMaxTextChars)
	return t
}

// truncateRunes cuts s to at most n runes, leaving room for the ellipsis
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func heading2(text string) notionBlock {
	return notionBlock{Object: "block", Type: "heading_2", Heading2: &notionRichText{RichText: []notionText{plainText(text)}}}
}

func heading3(text string) notionBlock {
	return notionBlock{Object: "block", Type: "heading_3", Heading3: &notionRichText{RichText: []notionText{plainText(text)}}}
}

func paragraph(text string) notionBlock {
	return notionBlock{Object: "block", Type: "paragraph", Paragraph: &notionRichText{RichText: []notionText{plainText(text)}}}
}

func bullet(text string) notionBlock {
	return notionBlock{Object: "block", Type: "bulleted_list_item", BulletedListItem: &notionRichText{RichText: []notionText{plainText(text)}}}
}

func linkBullet(item ResultItem) notionBlock {
	label := item.Title
	if label == "" {
		label = item.URL
	}
	title := plainText(label)
	if strings.HasPrefix(item.URL, "http") {
		title.Text.Link = &struct {
			URL string `json:"url"`
		}{URL: item.URL}
	}
	text := []notionText{title}
	if item.Description != "" {
		text = append(text, plainText(": "+truncateText(item.Description, 200)))
	}
	return notionBlock{Object: "block", Type: "bulleted_list_item", BulletedListItem: &notionRichText{RichText: text}}
}
