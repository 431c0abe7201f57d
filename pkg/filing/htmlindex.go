package filing

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// PrimaryDocumentURL locates the primary document for the requested form type
// in an HTML document index. The document-list table is scanned row by row;
// the first row whose declared type matches formType (case-insensitive) wins.
// When no row matches, the index URL itself is returned as the fallback.
func PrimaryDocumentURL(indexHTML []byte, indexURL, formType string) (string, error) {
	doc, err := html.Parse(bytes.NewReader(indexHTML))
	if err != nil {
		return "", fmt.Errorf("html index: %w", err)
	}

	want := strings.ToUpper(strings.TrimSpace(formType))
	var href string

	var walkRows func(n *html.Node)
	walkRows = func(n *html.Node) {
		if href != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "tr" {
			if h, ok := matchRow(n, want); ok {
				href = h
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walkRows(c)
		}
	}
	walkRows(doc)

	if href == "" {
		return indexURL, nil
	}
	return resolveHref(indexURL, href)
}

// matchRow reports whether a table row declares the wanted form type and, if
// so, returns the first anchor href in the row.
func matchRow(tr *html.Node, want string) (string, bool) {
	var typeMatched bool
	var firstHref string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" && firstHref == "" {
			for _, a := range n.Attr {
				if a.Key == "href" {
					firstHref = a.Val
				}
			}
		}
		if n.Type == html.ElementNode && n.Data == "td" {
			if strings.EqualFold(strings.TrimSpace(nodeText(n)), want) {
				typeMatched = true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(tr)

	if typeMatched && firstHref != "" {
		return firstHref, true
	}
	return "", false
}

// nodeText concatenates the text content beneath a node.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func resolveHref(base, href string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("html index: bad base url: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("html index: bad document href: %w", err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// HTMLTableFacts extracts label/value pairs from financial statement tables
// in an HTML document. Each two-or-more-cell row yields one fact with the
// first cell as label and the last non-empty cell as value.
func HTMLTableFacts(filingID string, docHTML []byte) (*ParseResult, error) {
	doc, err := html.Parse(bytes.NewReader(docHTML))
	if err != nil {
		return nil, fmt.Errorf("html table: %w", err)
	}

	result := &ParseResult{}
	var walkRows func(n *html.Node)
	walkRows = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			if fact, ok := rowFact(filingID, n); ok {
				result.Facts = append(result.Facts, fact)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walkRows(c)
		}
	}
	walkRows(doc)
	return result, nil
}

func rowFact(filingID string, tr *html.Node) (RawFact, bool) {
	var cells []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "td" || n.Data == "th") {
			cells = append(cells, strings.TrimSpace(nodeText(n)))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(tr)

	if len(cells) < 2 {
		return RawFact{}, false
	}
	label := cells[0]
	var value string
	for i := len(cells) - 1; i >= 1; i-- {
		if cells[i] != "" {
			value = cells[i]
			break
		}
	}
	if label == "" || value == "" {
		return RawFact{}, false
	}

	fact := RawFact{
		FilingID: filingID,
		Concept:  "html:" + label,
		RawValue: value,
		Numeric:  parseNumeric(value),
	}
	return fact, true
}
