package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

const (
	userAgent       = "trend-researcher/1.0 (+https://github.com/aktagon/trend-researcher)"
	maxExcerptChars = 1500
	maxBodyBytes    = 2 << 20
)

// ContentHandler processes URLs based on response inspection
type ContentHandler interface {
	CanHandle(url string, resp *http.Response) bool
	Handle(url string, resp *http.Response) (*ContentResult, error)
}

// URLHandler is implemented by handlers that do not need the page itself
type URLHandler interface {
	HandlesURL(url string) bool
	HandleURL(ctx context.Context, url string) (*ContentResult, error)
}

// YouTubeHandler handles YouTube videos through the transcript API
type YouTubeHandler struct {
	transcripts *TranscriptClient
}

func (h *YouTubeHandler) HandlesURL(url string) bool {
	return strings.Contains(url, "youtube.com/watch") ||
		strings.Contains(url, "youtu.be/")
}

func (h *YouTubeHandler) HandleURL(ctx context.Context, url string) (*ContentResult, error) {
	transcript, err := h.transcripts.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetching YouTube transcript: %w", err)
	}
	return &ContentResult{Text: transcript}, nil
}

func (h *YouTubeHandler) CanHandle(url string, resp *http.Response) bool {
	return h.HandlesURL(url)
}

func (h *YouTubeHandler) Handle(url string, resp *http.Response) (*ContentResult, error) {
	return h.HandleURL(resp.Request.Context(), url)
}

// HTMLHandler handles regular HTML content (fallback)
type HTMLHandler struct {
	converter *md.Converter
}

func (h *HTMLHandler) CanHandle(url string, resp *http.Response) bool {
	return true // Always handles as fallback
}

func (h *HTMLHandler) Handle(url string, resp *http.Response) (*ContentResult, error) {
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") && !strings.Contains(contentType, "text/plain") {
		return nil, fmt.Errorf("unsupported content type %q for %s", contentType, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	markdown, err := h.converter.ConvertString(string(body))
	if err != nil {
		return nil, fmt.Errorf("converting HTML to markdown: %w", err)
	}

	return &ContentResult{Text: markdown}, nil
}

var snippetConverter = md.NewConverter("", true, nil)

// htmlToText converts an HTML fragment (HN story text, arXiv abstracts) to markdown
func htmlToText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.TrimSpace(fragment)
	}
	text, err := snippetConverter.ConvertString(fragment)
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.TrimSpace(text)
}

// truncateText cuts s to at most n runes and marks the cut
func truncateText(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
