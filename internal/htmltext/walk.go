package htmltext

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// boilerplateTags are elements excluded wholesale from extracted
// content: navigation, chrome, and non-visible markup.
var boilerplateTags = map[atom.Atom]bool{
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
	atom.Aside:    true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Form:     true,
	atom.Button:   true,
}

// boilerplateClasses matches common chrome class/id tokens that ZIM
// exports carry over from the source site's theme (sidebars, menus,
// ad slots) and that density scoring alone tends to miss.
var boilerplateClasses = regexp.MustCompile(`(?i)^(nav|menu|sidebar|footer|header|advert|ads?|banner|breadcrumbs?|toc|infobox|navbox|metadata|printfooter|catlinks)`)

func isBoilerplate(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if boilerplateTags[n.DataAtom] {
		return true
	}
	id := getAttr(n, "id")
	for _, class := range strings.Fields(getAttr(n, "class")) {
		if boilerplateClasses.MatchString(class) {
			return true
		}
	}
	return boilerplateClasses.MatchString(id)
}

// contentTags are the elements findDensestNode considers as candidate
// content containers; everything else is walked through transparently.
var contentTags = map[atom.Atom]bool{
	atom.Div:     true,
	atom.Section: true,
	atom.Article: true,
	atom.Main:    true,
	atom.Td:      true,
	atom.Li:      true,
}

func isContentTag(a atom.Atom) bool { return contentTags[a] }

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

var multiSpaceRe = regexp.MustCompile(`\s+`)

// collectText gathers a node's visible text, collapsing whitespace the
// way a readability-style CleanText helper does.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		if n.Type == html.TextNode {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(sb.String(), " "))
}

// collectCleanText is collectText plus a boilerplate-subtree skip,
// used as the last-resort fallback when no density candidate clears
// minCandidateLen.
func collectCleanText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && isBoilerplate(n) {
			return
		}
		if n.Type == html.TextNode {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(sb.String(), " "))
}

// collectLinkText extracts text found only inside <a> elements, used
// to compute a subtree's link density.
func collectLinkText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node, bool)
	f = func(n *html.Node, inLink bool) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			inLink = true
		}
		if n.Type == html.TextNode && inLink {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c, inLink)
		}
	}
	f(n, false)
	return sb.String()
}

func findBody(doc *html.Node) *html.Node {
	var body *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if body != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			body = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return body
}

func findContentByLandmarks(doc *html.Node) []*html.Node {
	for _, tag := range []atom.Atom{atom.Main, atom.Article} {
		if nodes := findAllByTag(doc, tag); len(nodes) > 0 {
			return nodes
		}
	}
	return nil
}

func findAllByTag(root *html.Node, tag atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == tag {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// nodeScore holds density analysis for a DOM subtree.
type nodeScore struct {
	node     *html.Node
	textLen  int
	density  float64
	linkDens float64
}

// findDensestNode walks the DOM and returns the element with the
// highest text-to-markup density, excluding link-heavy (navigation)
// subtrees. Ported from extract/density.go's findDensestNode, using a
// text/approximate-markup ratio in place of a render-to-string
// markupLen (htmltext never needs the rendered HTML).
func findDensestNode(root *html.Node, minLen int) *html.Node {
	var candidates []nodeScore

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if isBoilerplate(n) {
			return
		}
		if !isContentTag(n.DataAtom) && n.DataAtom != atom.Body {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			return
		}

		text := collectText(n)
		if len(text) < minLen {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			return
		}

		markupLen := approxMarkupLen(n)
		if markupLen == 0 {
			markupLen = 1
		}
		linkText := collectLinkText(n)
		linkDens := float64(len(linkText)) / float64(len(text))

		candidates = append(candidates, nodeScore{
			node:     n,
			textLen:  len(text),
			density:  float64(len(text)) / float64(markupLen),
			linkDens: linkDens,
		})

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	var best *nodeScore
	var bestScore float64
	for i := range candidates {
		c := &candidates[i]
		if c.linkDens > 0.5 {
			continue // mostly links, likely navigation
		}
		score := c.density * logScale(c.textLen) * (1 - c.linkDens)
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	if best == nil {
		return nil
	}
	return best.node
}

// approxMarkupLen counts descendant nodes as a cheap stand-in for
// rendered-HTML length.
func approxMarkupLen(n *html.Node) int {
	count := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		count++
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return count
}

func logScale(n int) float64 {
	if n <= 0 {
		return 0
	}
	scale := 1.0
	for v := n; v > 100; v /= 2 {
		scale += 1
	}
	return scale
}
