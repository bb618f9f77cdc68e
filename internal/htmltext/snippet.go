package htmltext

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Snippet returns a short summary of rawHTML for search results,
// preferring <meta name="description"> or <meta property="og:description">
// over extracted body text, matching zimi/server.py's snippet
// preference order (a supplemental feature carried from the original,
// not present in the distilled spec).
func Snippet(rawHTML string, maxLen int) (string, error) {
	doc, err := html.Parse(strings.NewReader(sanitizePolicy.Sanitize(rawHTML)))
	if err != nil {
		return "", err
	}

	if m := metaDescription(doc); m != "" {
		return truncateChars(m, maxLen), nil
	}

	return truncateChars(extractContent(doc), maxLen), nil
}

func metaDescription(doc *html.Node) string {
	var desc, ogDesc string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
			name := strings.ToLower(getAttr(n, "name"))
			prop := strings.ToLower(getAttr(n, "property"))
			content := strings.TrimSpace(getAttr(n, "content"))
			if content != "" {
				switch {
				case name == "description" && desc == "":
					desc = content
				case prop == "og:description" && ogDesc == "":
					ogDesc = content
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if desc != "" {
		return desc
	}
	return ogDesc
}
