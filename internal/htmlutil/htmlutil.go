// Package htmlutil renders markdown fragments from record free-text fields
// and normalises generated HTML documents.
package htmlutil

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Linkify),
)

// Markdown renders a markdown fragment as HTML. Record abstracts, lineage
// statements and summaries allow markdown.
func Markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// Prettify reparses and reserialises an HTML document so templated output is
// well formed and stable across builds.
func Prettify(doc []byte) ([]byte, error) {
	node, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n")
	if err := html.Render(&buf, node); err != nil {
		return nil, fmt.Errorf("render HTML: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Escape escapes text for inclusion in HTML or XML attribute values.
func Escape(text string) string {
	return html.EscapeString(text)
}

// FirstLine returns the first line of a markdown fragment as plain text, for
// meta descriptions and search summaries.
func FirstLine(src string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(src), "\n")
	return strings.TrimSpace(line)
}
