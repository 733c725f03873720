// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert renders raw article HTML into clean Markdown documents.
package convert

import (
	"fmt"
	"strings"

	"github.com/pdiddy/kb-sync/pkg/types"
)

// fallbackTitle stands in for articles that arrive without a title.
const fallbackTitle = "No Title"

// failureMarker replaces the body when rendering fails. The header is still
// emitted so the article keeps a readable local file.
const failureMarker = "*Content conversion failed.*"

// Renderer transforms raw HTML into Markdown text. HTMLRenderer is the
// production backend; tests substitute failing implementations.
type Renderer interface {
	Render(html string) (string, error)
}

// Normalize converts an article body to Markdown, prepending a level-1 title
// heading and a provenance link back to the source. Rendering failures never
// propagate: the result degrades to the header plus a failure marker.
func Normalize(r Renderer, a types.Article) string {
	title := a.Title
	if title == "" {
		title = fallbackTitle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "[View Original Article](%s)\n\n", a.SourceURL)

	body, err := r.Render(a.Body)
	if err != nil {
		b.WriteString(failureMarker)
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n")
	return b.String()
}
