// Package markup strips document scaffolding from a user-supplied markup
// fragment so it can be embedded in the body of a generated document.
//
// The transformation is regex based and best effort. It does not parse HTML;
// malformed input is tolerated rather than repaired.
package markup

import (
	"regexp"
	"strings"
)

var (
	doctypePattern   = regexp.MustCompile(`(?i)<!DOCTYPE[^>]*>`)
	htmlOpenPattern  = regexp.MustCompile(`(?i)<html\b[^>]*>`)
	htmlClosePattern = regexp.MustCompile(`(?i)</html\s*>`)
	headPattern      = regexp.MustCompile(`(?i)<head\b[^>]*>[\s\S]*?</head\s*>`)
	bodyOpenPattern  = regexp.MustCompile(`(?i)<body\b[^>]*>`)
	bodyClosePattern = regexp.MustCompile(`(?i)</body\s*>`)
)

// Normalize removes doctype declarations, html wrappers, the whole head block
// and body wrappers from s.
//
// Removing a tag can splice a new one together out of its surroundings (for
// example "<bo<body>dy>"). A body element still present after stripping is
// replaced by its innermost content, and stripping repeats until nothing
// changes. Each effective step shortens the text, which bounds the loop and
// makes Normalize idempotent.
func Normalize(s string) string {
	s = strip(s)
	for {
		next := s
		if inner, ok := innermostBody(next); ok {
			next = inner
		}
		next = strip(next)
		if next == s {
			return s
		}
		s = next
	}
}

// strip removes the wrappers once. If a literal <title> tag survives and a
// body element is left, the content between the first opening and the last
// closing body tag replaces the result.
func strip(s string) string {
	s = doctypePattern.ReplaceAllString(s, "")
	s = htmlOpenPattern.ReplaceAllString(s, "")
	s = htmlClosePattern.ReplaceAllString(s, "")
	s = headPattern.ReplaceAllString(s, "")
	s = bodyOpenPattern.ReplaceAllString(s, "")
	s = bodyClosePattern.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if strings.Contains(s, "<title>") {
		if inner, ok := bodyContent(s); ok {
			s = strings.TrimSpace(inner)
		}
	}
	return s
}

// bodyContent returns the text between the first opening body tag and the
// last closing body tag after it.
func bodyContent(s string) (string, bool) {
	open := bodyOpenPattern.FindStringIndex(s)
	if open == nil {
		return "", false
	}
	rest := s[open[1]:]
	closes := bodyClosePattern.FindAllStringIndex(rest, -1)
	if len(closes) == 0 {
		return "", false
	}
	return rest[:closes[len(closes)-1][0]], true
}

// innermostBody returns the content between the last opening body tag that
// is followed by a closing tag and the first closing tag after it.
func innermostBody(s string) (string, bool) {
	opens := bodyOpenPattern.FindAllStringIndex(s, -1)
	for i := len(opens) - 1; i >= 0; i-- {
		start := opens[i][1]
		loc := bodyClosePattern.FindStringIndex(s[start:])
		if loc == nil {
			continue
		}
		return s[start : start+loc[0]], true
	}
	return "", false
}
