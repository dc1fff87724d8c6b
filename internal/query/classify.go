// Package query classifies free-text questions by intent.
package query

import (
	"regexp"
	"strings"
)

// Intent is the classified kind of a text query.
type Intent int

const (
	// IntentTopicSearch means the query asks about a topic; the corpus is
	// searched by embedding similarity.
	IntentTopicSearch Intent = iota
	// IntentPatentLookup means the query names a specific patent number;
	// chunks are fetched from that document directly.
	IntentPatentLookup
)

// String returns the intent name for logs.
func (i Intent) String() string {
	switch i {
	case IntentTopicSearch:
		return "topic_search"
	case IntentPatentLookup:
		return "patent_lookup"
	default:
		return "unknown"
	}
}

// Classified is a query with its detected intent.
type Classified struct {
	Intent Intent
	// Text is the original query text.
	Text string
	// PatentNumber is the normalized number for IntentPatentLookup,
	// empty otherwise.
	PatentNumber string
}

// patentNumberRe matches publication numbers of the jurisdictions the
// corpora cover, e.g. "US 20230012345A1" or "KR1020220000001".
var patentNumberRe = regexp.MustCompile(`(?i)\b((?:US|KR|CN|JP|EP)\s*\d+[A-Z\d]*)\b`)

// Classify detects whether text names a patent number or asks a topic
// question. The first patent number wins when several appear.
func Classify(text string) Classified {
	if m := patentNumberRe.FindStringSubmatch(text); m != nil {
		return Classified{
			Intent:       IntentPatentLookup,
			Text:         text,
			PatentNumber: NormalizeNumber(m[1]),
		}
	}
	return Classified{Intent: IntentTopicSearch, Text: text}
}

// NormalizeNumber lowercases a patent number and strips interior spaces so
// it can be matched against source file names.
func NormalizeNumber(number string) string {
	return strings.ToLower(strings.ReplaceAll(number, " ", ""))
}
