// Package convert provides the default host converter: a goldmark-backed
// Markdown renderer producing HTML fragments for single blocks.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
)

// Markdown converts one Markdown block into an HTML fragment.
//
// A single Markdown instance is safe for concurrent use, so one
// converter serves all render workers.
type Markdown struct {
	md     goldmark.Markdown
	strict bool
}

// Option configures a Markdown converter.
type Option func(*Markdown)

// WithStrictFences makes unterminated fenced code regions a conversion
// error instead of letting them swallow the rest of the block.
func WithStrictFences() Option {
	return func(m *Markdown) {
		m.strict = true
	}
}

// NewMarkdown creates the converter.
func NewMarkdown(opts ...Option) *Markdown {
	m := &Markdown{
		md: goldmark.New(
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Convert renders src to an HTML fragment.
func (m *Markdown) Convert(ctx context.Context, src string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.strict {
		if err := checkFences(src); err != nil {
			return "", err
		}
	}

	var buf bytes.Buffer
	if err := m.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return buf.String(), nil
}

// checkFences reports an unterminated ``` or ~~~ fence in src.
func checkFences(src string) error {
	open := false
	var marker string
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimLeft(line, " ")
		switch {
		case !open && (strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")):
			open = true
			marker = trimmed[:3]
		case open && strings.HasPrefix(trimmed, marker):
			open = false
		}
	}
	if open {
		return fmt.Errorf("unterminated %s fence", marker)
	}
	return nil
}
