// Package flatten projects a document tree onto position-addressed plain
// text: contiguous text runs first, then word-bounded chunks sized for a
// single check request. A chunk's local rune offsets plus its From equal
// absolute document positions, so service results translate back without
// consulting the tree.
package flatten

import (
	"strings"
	"unicode"

	"github.com/hazyhaar/proofwatch/doctree"
)

// DefaultWordLimit is the chunk size used when the caller does not set one.
const DefaultWordLimit = 500

// Run is a maximal stretch of document text whose positions are contiguous:
// To - From always equals the rune length of Text. Adjacent text leaves
// split only by mark boundaries land in one run; block boundaries and inline
// leaves (hard breaks) end a run.
type Run struct {
	From int
	To   int
	Text string
}

// Chunk is one request-sized piece of flattened text anchored at an absolute
// position. Gaps between the runs inside it are filled with literal spaces,
// so From plus a rune offset into Text is a document position.
type Chunk struct {
	From int
	Text string
}

// Doc extracts the text runs of a whole document in position order.
func Doc(doc *doctree.Node) []Run {
	var runs []Run
	doc.Walk(func(n *doctree.Node, pos int) bool {
		appendRun(&runs, n, pos)
		return true
	})
	return runs
}

// Subtree extracts the runs of a single subtree whose root starts at base in
// the enclosing document. Positions are absolute.
func Subtree(n *doctree.Node, base int) []Run {
	var runs []Run
	n.WalkFrom(base, func(n *doctree.Node, pos int) bool {
		appendRun(&runs, n, pos)
		return true
	})
	return runs
}

func appendRun(runs *[]Run, n *doctree.Node, pos int) {
	if !n.IsText() || n.Text == "" {
		return
	}
	end := pos + n.Size()
	if len(*runs) > 0 {
		last := &(*runs)[len(*runs)-1]
		if last.To == pos {
			last.To = end
			last.Text += n.Text
			return
		}
	}
	*runs = append(*runs, Run{From: pos, To: end, Text: n.Text})
}

// Split packs runs into chunks of at most limit words, never cutting a word.
// Positional gaps between runs inside a chunk become literal spaces. A chunk
// seals when its word count reaches the limit; the next chunk anchors at the
// next word's absolute position. Empty input yields one empty chunk at
// position 1 so that an empty document still gets exactly one check.
func Split(runs []Run, limit int) []Chunk {
	if limit <= 0 {
		limit = DefaultWordLimit
	}

	var (
		chunks []Chunk
		b      strings.Builder
		from   int
		words  int
		pos    int // absolute position one past the last appended rune
	)

	seal := func() {
		chunks = append(chunks, Chunk{From: from, Text: b.String()})
		b.Reset()
		words = 0
	}

	for _, r := range runs {
		if b.Len() > 0 && r.From > pos {
			b.WriteString(strings.Repeat(" ", r.From-pos))
		}
		text := []rune(r.Text)
		i := 0
		for i < len(text) {
			start := i
			space := unicode.IsSpace(text[i])
			for i < len(text) && unicode.IsSpace(text[i]) == space {
				i++
			}
			seg := string(text[start:i])
			if space {
				if b.Len() > 0 {
					b.WriteString(seg)
				}
				continue
			}
			if b.Len() == 0 {
				from = r.From + start
			}
			b.WriteString(seg)
			words++
			if words >= limit {
				seal()
			}
		}
		pos = r.To
	}
	if b.Len() > 0 {
		seal()
	}
	if len(chunks) == 0 {
		return []Chunk{{From: 1}}
	}
	return chunks
}
