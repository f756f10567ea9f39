// Package extractor turns a parsed HTML page into the three things the
// harvester persists or follows: the training-input text tree, the labelled
// fields a page's matching label-map rules describe, and its outlinks
// (SPEC_FULL.md §4.4).
package extractor

import (
	"strings"

	"golang.org/x/net/html"
)

var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
}

// ExtractTrainingInput walks root post-order, the same shape as the
// original's kuchiki-based get_training_input: each element's children are
// processed first and their output concatenated, script/style/noscript
// subtrees are skipped entirely, and an element that had any direct non-empty
// text-node child has its accumulated output wrapped in <tag>...</tag>.
// Returns "" if the tree produced no text.
func ExtractTrainingInput(root *html.Node) string {
	out, _ := extractTrainingInput(root)
	return out
}

func extractTrainingInput(node *html.Node) (string, bool) {
	var out strings.Builder
	hasDirectTextChildren := false

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case html.ElementNode:
			if skippedTags[child.Data] {
				continue
			}
			if text, ok := extractTrainingInput(child); ok {
				out.WriteString(text)
			}
		case html.TextNode:
			trimmed := strings.TrimSpace(child.Data)
			if trimmed != "" {
				trimmed = strings.ReplaceAll(trimmed, " ", " ")
				out.WriteString(trimmed)
				hasDirectTextChildren = true
			}
		}
	}

	if out.Len() == 0 {
		return "", false
	}

	if hasDirectTextChildren && node.Type == html.ElementNode {
		return "<" + node.Data + ">" + out.String() + "</" + node.Data + ">", true
	}
	return out.String(), true
}
