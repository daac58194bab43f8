package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// FileSink writes ai_trends_<date>.json and a rendered markdown copy to the reports directory
type FileSink struct {
	dir      string
	template *template.Template
}

// NewFileSink parses the markdown report template
func NewFileSink(dir, reportTemplate string) (*FileSink, error) {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"join":     strings.Join,
		"upper":    strings.ToUpper,
		"truncate": truncateText,
	}).Parse(reportTemplate)
	if err != nil {
		return nil, &ConfigurationError{Setting: "report template", Reason: err.Error()}
	}
	return &FileSink{dir: dir, template: tmpl}, nil
}

func (s *FileSink) Name() string { return "file" }

// JSONPath returns the report file for a date
func (s *FileSink) JSONPath(date string) string {
	return filepath.Join(s.dir, "ai_trends_"+date+".json")
}

// MarkdownPath returns the rendered report for a date
func (s *FileSink) MarkdownPath(date string) string {
	return filepath.Join(s.dir, "ai_trends_"+date+".md")
}

// Publish overwrites any report of the same date
func (s *FileSink) Publish(ctx context.Context, report *Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := s.template.Execute(&buf, report); err != nil {
		return fmt.Errorf("rendering markdown report: %w", err)
	}

	if err := writeJSONFile(s.JSONPath(report.Date), report); err != nil {
		return err
	}
	if err := os.WriteFile(s.MarkdownPath(report.Date), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", s.MarkdownPath(report.Date), err)
	}
	return nil
}
