package htmlutil

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

// ErrNoMatch is returned by ScriptText when the selector matches nothing.
var ErrNoMatch = fmt.Errorf("htmlutil: no element matched selector")

// ScriptText parses page and returns the trimmed raw text of the first element
// matching selector. Script contents are not entity-decoded by the html
// parser, so JSON embedded in a script tag survives intact.
func ScriptText(page []byte, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", err
	}
	sel := doc.Find(selector).First()
	if len(sel.Nodes) == 0 {
		return "", ErrNoMatch
	}
	return strings.TrimSpace(GetText(sel.Nodes[0])), nil
}
