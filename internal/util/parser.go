package util

import (
	"strings"

	"golang.org/x/net/html"
)

// Anchor is one <a> element found in an HTML document.
type Anchor struct {
	Href string
	Text string
}

// ParseAnchors returns every <a> element in document order.
// It performs a depth-first search, so "document order" is the order the
// tags open in the page source.
func ParseAnchors(n *html.Node) []Anchor {
	var out []Anchor
	var walk func(*html.Node)

	walk = func(nd *html.Node) {
		if nd.Type == html.ElementNode && nd.Data == "a" {
			a := Anchor{Text: nodeText(nd)}
			for _, attr := range nd.Attr {
				if attr.Key == "href" {
					a.Href = attr.Val
					break
				}
			}
			out = append(out, a)
		}
		for c := nd.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return out
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(nd *html.Node) {
		if nd.Type == html.TextNode {
			sb.WriteString(nd.Data)
		}
		for c := nd.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
