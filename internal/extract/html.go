package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// FromHTML pulls readable text and the document title out of an HTML page.
// It prefers the main/article region when one exists and otherwise walks the
// whole body, skipping chrome elements.
func FromHTML(raw string) (title, text string) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", ""
	}
	title = findTitle(doc)
	root := findContentRoot(doc)
	if root == nil {
		root = doc
	}
	var b strings.Builder
	collectText(root, &b)
	return title, collapseSpace(b.String())
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// findContentRoot returns the first main or article element, else the body.
func findContentRoot(n *html.Node) *html.Node {
	var body *html.Node
	var walk func(*html.Node) *html.Node
	walk = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "main", "article":
				return n
			case "body":
				if body == nil {
					body = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := walk(c); found != nil {
				return found
			}
		}
		return nil
	}
	if found := walk(n); found != nil {
		return found
	}
	return body
}

var skipElements = map[string]struct{}{
	"script": {}, "style": {}, "noscript": {},
	"nav": {}, "header": {}, "footer": {}, "aside": {}, "form": {},
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode {
		if _, skip := skipElements[n.Data]; skip {
			return
		}
	}
	if n.Type == html.TextNode {
		if s := strings.TrimSpace(n.Data); s != "" {
			b.WriteString(s)
			b.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
