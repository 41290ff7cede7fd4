package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	if node.Type == html.ElementNode && (node.Data == "script" || node.Data == "style") {
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		// block-ish elements should not glue their words onto the next element
		if child.Type == html.ElementNode {
			buffer.WriteByte(' ')
		}
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// NormalizeText removes non-printable characters, collapses whitespace runs
// (including full-width spaces) into a single space and trims the result.
func NormalizeText(s string) string {
	s = removeNonPrintable(s)
	s = strings.ReplaceAll(s, "　", " ")
	s = innerWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Text returns the normalized visible text of every node in the selection.
func Text(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, n := range sel.Nodes {
		getTextRecursive(n, &buffer)
		buffer.WriteByte(' ')
	}
	return NormalizeText(buffer.String())
}

// LeadingText returns at most limit runes of the normalized visible text of sel.
func LeadingText(sel *goquery.Selection, limit int) string {
	text := Text(sel)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
