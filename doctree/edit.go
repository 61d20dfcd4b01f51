package doctree

import (
	"fmt"
	"unicode/utf8"
)

// Span is one replaced region of a PosMap: OldLen tokens starting at Start
// were replaced by NewLen tokens.
type Span struct {
	Start  int
	OldLen int
	NewLen int
}

// PosMap rebases positions from the tree before an edit into the tree after
// it. Spans are sorted by Start and never overlap.
type PosMap struct {
	spans []Span
}

// NewPosMap builds a map from explicit spans, which must be sorted and
// disjoint.
func NewPosMap(spans ...Span) *PosMap {
	return &PosMap{spans: spans}
}

// IdentityMap is the mapping of an edit that moved nothing.
var IdentityMap = &PosMap{}

// Map rebases pos. assoc breaks ties when pos sits exactly at a replacement
// boundary: negative keeps the position before inserted content, positive
// moves it after.
func (m *PosMap) Map(pos, assoc int) int {
	p, _ := m.MapResult(pos, assoc)
	return p
}

// MapResult rebases pos and additionally reports whether pos pointed strictly
// inside a replaced region, i.e. the token around it no longer exists.
func (m *PosMap) MapResult(pos, assoc int) (int, bool) {
	diff := 0
	for _, s := range m.spans {
		start := s.Start
		if start > pos {
			break
		}
		end := start + s.OldLen
		if pos <= end {
			var side int
			switch {
			case s.OldLen == 0:
				side = assoc
			case pos == start:
				side = -1
			case pos == end:
				side = 1
			default:
				side = assoc
			}
			result := start + diff
			if side >= 0 {
				result += s.NewLen
			}
			deleted := pos > start && pos < end
			return result, deleted
		}
		diff += s.NewLen - s.OldLen
	}
	return pos + diff, false
}

// Spans exposes the replaced regions, mostly for tests and logging.
func (m *PosMap) Spans() []Span { return m.spans }

// Transaction is the result of applying one edit: the new tree plus the
// position mapping from the old one.
type Transaction struct {
	Doc *Node
	Map *PosMap
}

// ReplaceText replaces the token range [from, to) with plain text. The range
// must fall within the content of a single textblock; crossing block
// boundaries is an error. to == from inserts. Marks are inherited from the
// text the edit touches, and the rebuilt path keeps its node identities.
func ReplaceText(doc *Node, from, to int, text string) (*Transaction, error) {
	if from < 0 || to < from {
		return nil, fmt.Errorf("doctree: replace [%d,%d): invalid range", from, to)
	}
	if to > doc.ContentSize() {
		return nil, fmt.Errorf("doctree: replace [%d,%d): beyond document end %d", from, to, doc.ContentSize())
	}
	children, ok, err := replaceTextIn(doc.Content, 0, from, to, text)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("doctree: replace [%d,%d): no textblock spans the range", from, to)
	}
	return &Transaction{
		Doc: doc.derive(children),
		Map: NewPosMap(Span{Start: from, OldLen: to - from, NewLen: utf8.RuneCountInString(text)}),
	}, nil
}

// replaceTextIn descends to the textblock whose content spans [from, to) and
// rebuilds the path to it. Returns ok=false when no textblock contains the
// range.
func replaceTextIn(children []*Node, offset, from, to int, text string) ([]*Node, bool, error) {
	for i, c := range children {
		if c.IsText() {
			offset += c.Size()
			continue
		}
		contentStart := offset + 1
		contentEnd := contentStart + c.ContentSize()
		if from >= contentStart && to <= contentEnd {
			var (
				repl *Node
				err  error
			)
			if c.IsTextblock() || len(c.Content) == 0 {
				repl, err = rebuildInline(c, contentStart, from, to, text)
			} else {
				var inner []*Node
				var ok bool
				inner, ok, err = replaceTextIn(c.Content, contentStart, from, to, text)
				if err == nil && !ok {
					// Range sits between this container's blocks.
					return nil, false, fmt.Errorf("doctree: replace [%d,%d): crosses block boundaries", from, to)
				}
				if err == nil {
					repl = c.derive(inner)
				}
			}
			if err != nil {
				return nil, false, err
			}
			out := make([]*Node, len(children))
			copy(out, children)
			out[i] = repl
			return out, true, nil
		}
		offset += c.Size()
	}
	return nil, false, nil
}

// rebuildInline rewrites the inline content of a textblock for a text
// replacement at [from, to) in absolute coordinates, contentStart being the
// absolute position of the block's first inline token.
func rebuildInline(block *Node, contentStart, from, to int, text string) (*Node, error) {
	var out []*Node
	inserted := false

	appendText := func(s string, like *Node, keepID bool) {
		if s == "" {
			return
		}
		var n *Node
		switch {
		case like != nil && keepID:
			n = like.deriveText(s)
		case like != nil:
			n = NewText(s, like.Marks...)
		default:
			n = NewText(s)
		}
		out = append(out, n)
	}

	offset := contentStart
	var insertLike *Node
	for _, c := range block.Content {
		size := c.Size()
		start, end := offset, offset+size
		offset = end
		switch {
		case end <= from:
			out = append(out, c)
			if c.IsText() && end == from {
				insertLike = c
			}
		case start >= to:
			if !inserted {
				appendText(text, insertLike, false)
				inserted = true
			}
			out = append(out, c)
		case c.IsText():
			runes := []rune(c.Text)
			left := runes[:clamp(from-start, 0, len(runes))]
			right := runes[clamp(to-start, 0, len(runes)):]
			if len(left) > 0 {
				appendText(string(left)+text, c, true)
				inserted = true
			} else if !inserted {
				appendText(text, c, false)
				inserted = true
			}
			appendText(string(right), c, len(left) == 0)
		default:
			// Non-text leaf overlapped by the range is removed.
			if !inserted {
				appendText(text, insertLike, false)
				inserted = true
			}
		}
	}
	if !inserted {
		appendText(text, insertLike, false)
	}
	return block.derive(mergeInline(out)), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// mergeInline joins adjacent text nodes with identical marks, keeping the
// first node's identity.
func mergeInline(children []*Node) []*Node {
	var out []*Node
	for _, c := range children {
		if len(out) > 0 {
			last := out[len(out)-1]
			if last.IsText() && c.IsText() && marksEqual(last.Marks, c.Marks) {
				out[len(out)-1] = last.deriveText(last.Text + c.Text)
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// ReplaceBlocks replaces the root children in index range [i, j) with the
// given blocks. i == j inserts before child i.
func ReplaceBlocks(doc *Node, i, j int, blocks ...*Node) (*Transaction, error) {
	if i < 0 || j < i || j > len(doc.Content) {
		return nil, fmt.Errorf("doctree: replace blocks [%d,%d) of %d", i, j, len(doc.Content))
	}
	start := 0
	for _, c := range doc.Content[:i] {
		start += c.Size()
	}
	oldLen := 0
	for _, c := range doc.Content[i:j] {
		oldLen += c.Size()
	}
	newLen := 0
	for _, b := range blocks {
		newLen += b.Size()
	}

	children := make([]*Node, 0, len(doc.Content)-(j-i)+len(blocks))
	children = append(children, doc.Content[:i]...)
	children = append(children, blocks...)
	children = append(children, doc.Content[j:]...)

	return &Transaction{
		Doc: doc.derive(children),
		Map: NewPosMap(Span{Start: start, OldLen: oldLen, NewLen: newLen}),
	}, nil
}
