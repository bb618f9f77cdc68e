// Package htmltext turns the HTML bodies stored inside a ZIM archive
// into plain text suitable for display and snippet generation.
//
// Adapted from a density-scoring + landmark extractor:
// the same boilerplate-filtering density walk over golang.org/x/net/html,
// reshaped to Zimi's Extract(html, maxLen) contract instead of the
// teacher's extract.Result type. Archive HTML is untrusted (it ships
// inside third-party ZIM files), so it is run through a bluemonday
// sanitizing policy before any text is pulled out of it.
package htmltext

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// minCandidateLen is the minimum text length (in bytes) a DOM subtree
// must have to be considered a content candidate, filtering out short
// boilerplate fragments (menu items, breadcrumbs).
const minCandidateLen = 40

// sanitizePolicy strips scripts, styles, and event-handler attributes
// from archive HTML before extraction, the same bluemonday-ahead-of-
// untrusted-content-rendering pattern used elsewhere in this stack. Built from
// UGCPolicy rather than used directly: UGCPolicy drops <meta> and
// <title> outright (it targets comment fragments, not full documents),
// which would blind Snippet's meta-description lookup, so both are
// allowed back in with just the attributes extraction needs.
var sanitizePolicy = newSanitizePolicy()

func newSanitizePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("title")
	p.AllowAttrs("name", "property", "content").OnElements("meta")
	return p
}

// Extract parses rawHTML and returns its title and a plain-text
// rendering of its main content, truncated to at most maxLen runes.
// maxLen <= 0 means unbounded.
func Extract(rawHTML string, maxLen int) (title, text string, err error) {
	doc, err := html.Parse(strings.NewReader(sanitizePolicy.Sanitize(rawHTML)))
	if err != nil {
		return "", "", err
	}

	title = findTitle(doc)
	text = extractContent(doc)
	return title, truncate(text, maxLen), nil
}

// extractContent prefers semantic landmarks (<main>, <article>), then
// falls back to density scoring over <body>, then to a plain clean-text
// walk as a last resort. Ported from extract/density.go's extractDensity.
func extractContent(doc *html.Node) string {
	if landmarks := findContentByLandmarks(doc); len(landmarks) > 0 {
		var parts []string
		for _, n := range landmarks {
			if isBoilerplate(n) {
				continue
			}
			if t := collectText(n); len(t) >= minCandidateLen {
				parts = append(parts, t)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n\n")
		}
	}

	body := findBody(doc)
	if body == nil {
		body = doc
	}

	if best := findDensestNode(body, minCandidateLen); best != nil {
		return collectText(best)
	}
	return collectCleanText(body)
}

func findTitle(doc *html.Node) string {
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Title && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

// truncate cuts s to at most maxLen runes, backing off to the last
// preceding word boundary so reader output never splits mid-word,
// matching spec.md's "truncate at max_length on a word boundary".
func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && r[cut] != ' ' {
		cut--
	}
	if cut == 0 {
		cut = maxLen // no boundary found (single long token); hard-cut
	}
	return strings.TrimRight(string(r[:cut]), " ")
}

// truncateChars is a hard rune-count cut with no word-boundary
// backoff, matching spec.md's snippet() contract ("first 240
// characters of body text") rather than read()'s word-boundary rule.
func truncateChars(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}
