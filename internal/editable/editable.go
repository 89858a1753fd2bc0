// Package editable guarantees that article HTML carries the editable-region
// markers the authoring UI relies on.
package editable

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// MarkerAttr identifies an editable region
	MarkerAttr = "data-ccms-ceid"

	candidateSelector = "[contenteditable], [data-ccms-editable]"
)

var fullDocument = regexp.MustCompile(`(?i)<html[\s>]`)

// Processor inserts missing editable markers
type Processor struct {
	newID func() string
}

// NewProcessor creates a Processor that labels regions with random UUIDs
func NewProcessor() *Processor {
	return &Processor{newID: uuid.NewString}
}

// EnsureEditableMarkers gives every editable candidate element a marker id and
// wraps the content in a single editable region when it has none at all.
// Content that is already marked is returned unchanged.
func (p *Processor) EnsureEditableMarkers(content string) string {
	if fullDocument.MatchString(content) {
		return p.ensureInDocument(content)
	}
	return p.ensureInFragment(content)
}

func (p *Processor) ensureInDocument(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}

	changed := p.labelCandidates(doc.Selection)

	body := doc.Find("body")
	if doc.Find("["+MarkerAttr+"]").Length() == 0 && body.Length() > 0 {
		wrapChildren(body.Get(0), p.newID())
		changed = true
	}

	if !changed {
		return content
	}
	out, err := doc.Html()
	if err != nil {
		return content
	}
	return out
}

// ensureInFragment parses content in a <body> context, so leading <style>,
// <script>, <link>, <meta> or <title> elements stay where the author put them.
func (p *Processor) ensureInFragment(content string) string {
	root := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(content), root)
	if err != nil {
		return content
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}

	sel := goquery.NewDocumentFromNode(root).Selection
	changed := p.labelCandidates(sel)

	if sel.Find("["+MarkerAttr+"]").Length() == 0 {
		wrapChildren(root, p.newID())
		changed = true
	}

	if !changed {
		return content
	}
	out, err := sel.Html()
	if err != nil {
		return content
	}
	return out
}

func (p *Processor) labelCandidates(sel *goquery.Selection) bool {
	changed := false
	sel.Find(candidateSelector).Each(func(_ int, s *goquery.Selection) {
		if id, ok := s.Attr(MarkerAttr); !ok || strings.TrimSpace(id) == "" {
			s.SetAttr(MarkerAttr, p.newID())
			changed = true
		}
	})
	return changed
}

// wrapChildren moves every child of parent into one marked <div>
func wrapChildren(parent *html.Node, id string) {
	wrapper := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr:     []html.Attribute{{Key: MarkerAttr, Val: id}},
	}
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		wrapper.AppendChild(c)
		c = next
	}
	parent.AppendChild(wrapper)
}

// HasMarkers reports whether html contains at least one editable region
func HasMarkers(content string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return false
	}
	return doc.Find("["+MarkerAttr+"]").Length() > 0
}
