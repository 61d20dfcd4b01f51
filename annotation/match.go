// Package annotation holds the proofreading result types and the Overlay,
// the set of position-anchored annotations kept in sync with a changing
// document. Match mirrors the check service's JSON; Annotation anchors a
// match in absolute document positions.
package annotation

import "github.com/google/uuid"

// Replacement is one suggested correction.
type Replacement struct {
	Value string `json:"value"`
}

// Category groups related rules.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Rule identifies the check that produced a match.
type Rule struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	IssueType   string   `json:"issueType"`
	Category    Category `json:"category"`
}

// Context is the snippet of checked text around a match.
type Context struct {
	Text   string `json:"text"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// Match is one finding from the check service. Offset and Length are rune
// offsets local to the checked text, not document positions.
type Match struct {
	Message      string        `json:"message"`
	ShortMessage string        `json:"shortMessage"`
	Offset       int           `json:"offset"`
	Length       int           `json:"length"`
	Replacements []Replacement `json:"replacements"`
	Context      Context       `json:"context"`
	Sentence     string        `json:"sentence"`
	Rule         Rule          `json:"rule"`
}

// Annotation anchors a match at absolute document positions [From, To).
type Annotation struct {
	ID       uuid.UUID `json:"id"`
	From     int       `json:"from"`
	To       int       `json:"to"`
	CSSClass string    `json:"cssClass"`
	Match    Match     `json:"match"`
}

// CSSClassFor maps a rule's issue type onto the highlight class rendered in
// the host editor.
func CSSClassFor(r Rule) string {
	switch r.IssueType {
	case "misspelling", "typographical":
		return "proofwatch-misspelling"
	case "grammar", "duplication", "inconsistency":
		return "proofwatch-grammar"
	case "style", "locale-violation", "register":
		return "proofwatch-style"
	default:
		return "proofwatch-hint"
	}
}
