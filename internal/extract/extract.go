// Package extract pulls the first SQL statement out of free-form model
// output. It never repairs what it finds.
package extract

import (
	"regexp"
	"strings"

	"github.com/querypilot/querypilot/internal/sqltext"
)

type Confidence string

const (
	ConfidenceNone    Confidence = "none"
	ConfidencePartial Confidence = "partial"
	ConfidenceFull    Confidence = "full"
)

// Candidate is one extraction result. SQL is empty when nothing that looks
// like a query was found.
type Candidate struct {
	Raw        string     `json:"-"`
	SQL        string     `json:"sql"`
	Confidence Confidence `json:"confidence"`
}

func (c Candidate) Found() bool {
	return c.SQL != ""
}

var (
	fencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \\t]*\\r?\\n?(.*?)(```|\\z)")
	queryPattern = regexp.MustCompile(`(?is)\b(?:SELECT\b|WITH\s+(?:RECURSIVE\s+)?["\x60\w]+(?:\s*\([^)]*\))?\s+AS\s*\()`)
	// writePattern only matches at the start of a line so prose such as
	// "you could delete them" is not taken for a statement.
	writePattern = regexp.MustCompile(`(?im)^[ \t]*(?:INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE|REPLACE|MERGE|UPSERT|ATTACH|DETACH|PRAGMA|GRANT|REVOKE|VACUUM)\s+\S`)
)

type starter struct {
	pattern *regexp.Regexp
	shaped  func(sql string) bool
}

// Queries are preferred. A write statement is still returned when nothing
// else is found so the validator can name the operation.
var starters = []starter{
	{pattern: queryPattern, shaped: queryShaped},
	{pattern: writePattern, shaped: func(string) bool { return true }},
}

// Extract finds the first SELECT (or WITH ... SELECT) statement in raw.
// Code fences are searched before the surrounding prose. Without a query,
// the first statement opening a line with a write verb is returned.
func Extract(raw string) Candidate {
	fences := fencePattern.FindAllStringSubmatch(raw, -1)
	for _, start := range starters {
		for _, match := range fences {
			body, closed := match[1], match[2] == "```"
			if candidate, ok := scan(start, raw, body, closed); ok {
				return candidate
			}
		}
		if candidate, ok := scan(start, raw, raw, false); ok {
			return candidate
		}
	}
	return Candidate{Raw: raw, Confidence: ConfidenceNone}
}

// scan tries every start position in text and keeps the first statement
// that is shaped like one, falling back to the first statement found.
// fenced reports that text is the whole body of a closed code fence.
func scan(start starter, raw, text string, fenced bool) (Candidate, bool) {
	var (
		first Candidate
		found bool
	)
	for _, loc := range start.pattern.FindAllStringIndex(text, -1) {
		candidate := statementAt(raw, text, loc[0], fenced)
		if start.shaped(candidate.SQL) {
			return candidate, true
		}
		if !found {
			first, found = candidate, true
		}
	}
	return first, found
}

func statementAt(raw, text string, offset int, fenced bool) Candidate {
	rest := strings.TrimLeft(text[offset:], " \t")
	if end := sqltext.Terminator(rest); end >= 0 {
		return Candidate{Raw: raw, SQL: strings.TrimSpace(rest[:end+1]), Confidence: ConfidenceFull}
	}

	confidence := ConfidencePartial
	if fenced && strings.TrimSpace(text[:offset]) == "" {
		confidence = ConfidenceFull
	}
	return Candidate{Raw: raw, SQL: strings.TrimSpace(rest), Confidence: confidence}
}

// queryShaped rejects a SELECT that runs into another top-level SELECT
// before reaching FROM, unless a set operator joins the two. That happens
// when the first match was a word in prose, as in "the SELECT statement
// you need: SELECT ...".
func queryShaped(sql string) bool {
	words := sqltext.Words(sql)
	if len(words) == 0 || !strings.EqualFold(words[0], "SELECT") {
		return true
	}
	depth, previous := 0, ""
	for _, word := range words[1:] {
		switch {
		case word == "(":
			depth++
		case word == ")":
			depth--
		case depth != 0:
		case strings.EqualFold(word, "FROM"):
			return true
		case strings.EqualFold(word, "SELECT") && !setOperators[strings.ToUpper(previous)]:
			return false
		}
		previous = word
	}
	return true
}

var setOperators = map[string]bool{"UNION": true, "INTERSECT": true, "EXCEPT": true, "ALL": true, "DISTINCT": true}
