// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// noiseSelector matches structural elements that carry no article content.
const noiseSelector = "nav, aside, footer, .nav, .ads, .advertisement, .breadcrumb, script, style, noscript"

// voidTags may legitimately have no children or text.
var voidTags = map[string]bool{"br": true, "hr": true, "img": true}

// HTMLRenderer cleans article HTML and renders it to Markdown. Cleaning
// removes navigation chrome, ads, scripts, comments, and any elements left
// empty afterwards. Rendering keeps headings, emphasis, lists, code blocks,
// quotes, and links; everything else flattens to plain text.
type HTMLRenderer struct {
	conv *md.Converter
}

// NewHTMLRenderer builds the production renderer.
func NewHTMLRenderer() *HTMLRenderer {
	conv := md.NewConverter("", true, &md.Options{
		CodeBlockStyle: "fenced",
	})
	conv.Remove("img")
	return &HTMLRenderer{conv: conv}
}

// Render cleans the HTML fragment and converts it to Markdown.
func (r *HTMLRenderer) Render(rawHTML string) (string, error) {
	cleaned, err := cleanHTML(rawHTML)
	if err != nil {
		return "", fmt.Errorf("cleaning HTML: %w", err)
	}
	out, err := r.conv.ConvertString(cleaned)
	if err != nil {
		return "", fmt.Errorf("rendering Markdown: %w", err)
	}
	return out, nil
}

// cleanHTML strips noise elements, comment nodes, and empty leftovers from
// an HTML fragment, returning the surviving inner markup.
func cleanHTML(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	doc.Find(noiseSelector).Remove()
	for _, root := range doc.Nodes {
		stripComments(root)
	}
	removeEmpty(doc)

	return doc.Find("body").Html()
}

// stripComments detaches comment nodes from the parse tree.
func stripComments(n *html.Node) {
	child := n.FirstChild
	for child != nil {
		next := child.NextSibling
		if child.Type == html.CommentNode {
			n.RemoveChild(child)
		} else {
			stripComments(child)
		}
		child = next
	}
}

// removeEmpty drops elements with neither text nor children, repeating the
// sweep until the tree is stable so emptied ancestors go too.
func removeEmpty(doc *goquery.Document) {
	for {
		removed := false
		doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
			if voidTags[s.Nodes[0].Data] {
				return
			}
			if s.Children().Length() == 0 && strings.TrimSpace(s.Text()) == "" {
				s.Remove()
				removed = true
			}
		})
		if !removed {
			return
		}
	}
}
