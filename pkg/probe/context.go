package probe

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/zerofox/zerofox/pkg/finding"
)

// ContextOf classifies where the first reflection of payload sits in body:
// inside a comment, a script or style block, within a tag's markup, or as
// document content. A payload that itself opens a tag counts as html.
func ContextOf(body, payload string) finding.Context {
	idx := reflectionIndex(body, payload)
	if idx < 0 {
		return finding.ContextUnknown
	}

	z := html.NewTokenizer(strings.NewReader(body))
	var (
		offset  int
		rawText string
	)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return finding.ContextUnknown
		}
		start := offset
		offset += len(z.Raw())

		var name string
		if tt == html.StartTagToken || tt == html.EndTagToken {
			n, _ := z.TagName()
			name = string(n)
		}

		if idx < offset {
			switch tt {
			case html.CommentToken:
				return finding.ContextComment
			case html.TextToken:
				switch rawText {
				case "script":
					return finding.ContextScript
				case "style":
					return finding.ContextStyle
				}
				return finding.ContextHTML
			case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
				if idx > start {
					return finding.ContextAttribute
				}
				return finding.ContextHTML
			default:
				return finding.ContextHTML
			}
		}

		switch tt {
		case html.StartTagToken:
			if name == "script" || name == "style" {
				rawText = name
			}
		case html.EndTagToken:
			if name == rawText {
				rawText = ""
			}
		}
	}
}

func reflectionIndex(body, payload string) int {
	if payload == "" {
		return -1
	}
	if i := strings.Index(body, payload); i >= 0 {
		return i
	}
	if dec := unescapeLenient(payload); dec != payload && dec != "" {
		return strings.Index(body, dec)
	}
	return -1
}
