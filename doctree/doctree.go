// Package doctree models rich-text documents as trees of typed nodes with a
// token-based position scheme, so that every character and element boundary
// has a stable integer address. Positions are what the rest of the engine
// trades in: text extraction, change detection and annotation ranges all
// resolve against the same coordinate space.
//
// The position scheme follows the usual editor convention: entering or
// leaving an element costs one token, each rune of text costs one token, and
// the document root itself contributes no tokens. Position 0 is therefore the
// start of the first block, and position 1 the first character of a leading
// paragraph.
//
// Nodes are immutable by convention. Editing operations in edit.go return a
// new tree sharing untouched subtrees with the old one, plus a PosMap that
// rebases positions from the old tree into the new.
package doctree

import (
	"fmt"
	"hash/fnv"
	"reflect"
	"sort"
	"sync/atomic"
	"unicode/utf8"
)

// Common node type names. The tree is schema-less: any type string is
// accepted, these are just the names the built-in loaders produce.
const (
	TypeDoc         = "doc"
	TypeParagraph   = "paragraph"
	TypeHeading     = "heading"
	TypeText        = "text"
	TypeHardBreak   = "hard_break"
	TypeBulletList  = "bullet_list"
	TypeOrderedList = "ordered_list"
	TypeListItem    = "list_item"
	TypeBlockquote  = "blockquote"
	TypeCodeBlock   = "code_block"
)

// Common mark type names produced by the HTML loader.
const (
	MarkStrong = "strong"
	MarkEm     = "em"
	MarkCode   = "code"
	MarkLink   = "link"
)

// NodeID identifies a node across edits. Rebuilt nodes along an edit path
// keep their ID; freshly inserted nodes get a new one. IDs are process-local
// and never serialized.
type NodeID uint64

var lastNodeID atomic.Uint64

func nextNodeID() NodeID { return NodeID(lastNodeID.Add(1)) }

// Mark is inline formatting attached to a text node.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Node is one element or text leaf of a document tree. Text nodes carry Text
// and Marks and never have Content; element nodes carry Content.
//
// Nodes produced by the package constructors and loaders carry a cached size,
// content hash and identity. Hand-assembled Node literals still work with
// every operation but recompute size and hash on each call.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []*Node        `json:"content,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
	Text    string         `json:"text,omitempty"`

	id     NodeID
	size   int
	hash   uint64
	hashed bool
}

// NewDoc builds a document root from block children.
func NewDoc(children ...*Node) *Node {
	return NewElement(TypeDoc, nil, children...)
}

// NewElement builds an element node and finalizes its cached metadata.
func NewElement(typ string, attrs map[string]any, children ...*Node) *Node {
	n := &Node{Type: typ, Attrs: attrs, Content: children}
	n.finish()
	return n
}

// NewText builds a text leaf.
func NewText(text string, marks ...Mark) *Node {
	n := &Node{Type: TypeText, Text: text, Marks: marks}
	n.finish()
	return n
}

// finish assigns an identity and caches size and hash. Children must already
// be finished (or at least fully populated).
func (n *Node) finish() {
	n.id = nextNodeID()
	n.size = n.computeSize()
	n.hash = n.computeHash()
	n.hashed = true
}

// derive clones n with replacement children, keeping its identity. Used by
// edits so that a rebuilt path still answers to the old node's ID.
func (n *Node) derive(children []*Node) *Node {
	d := &Node{Type: n.Type, Attrs: n.Attrs, Marks: n.Marks, Content: children, id: n.id}
	d.size = d.computeSize()
	d.hash = d.computeHash()
	d.hashed = true
	return d
}

// deriveText clones a text node with new text, keeping identity and marks.
func (n *Node) deriveText(text string) *Node {
	d := &Node{Type: TypeText, Marks: n.Marks, Text: text, id: n.id}
	d.size = d.computeSize()
	d.hash = d.computeHash()
	d.hashed = true
	return d
}

// IsText reports whether n is a text leaf.
func (n *Node) IsText() bool { return n.Type == TypeText }

// IsTextblock reports whether n directly contains inline text, i.e. is the
// kind of node whose content forms a contiguous run of prose (a paragraph, a
// heading, a code block).
func (n *Node) IsTextblock() bool {
	for _, c := range n.Content {
		if c.IsText() {
			return true
		}
	}
	return false
}

// ID returns the node's stable identity. Zero means the node was assembled
// by hand rather than through a constructor or loader.
func (n *Node) ID() NodeID { return n.id }

// Size returns the node's token size: rune count for text, 2 plus the sum of
// child sizes for elements. The document root, when used as the walk root,
// contributes no tokens of its own; use ContentSize for its span.
func (n *Node) Size() int {
	if n.size > 0 || n.hashed {
		return n.size
	}
	return n.computeSize()
}

func (n *Node) computeSize() int {
	if n.IsText() {
		return utf8.RuneCountInString(n.Text)
	}
	sum := 2
	for _, c := range n.Content {
		sum += c.Size()
	}
	return sum
}

// ContentSize returns the token span of n's content, excluding n's own
// boundary tokens. For a document root this is the size of the whole
// position space.
func (n *Node) ContentSize() int {
	if n.IsText() {
		return n.Size()
	}
	return n.Size() - 2
}

// ContentHash returns a hash over the subtree's full content: types, attrs,
// marks, text and child order. Equal hashes identify subtrees that need no
// re-checking after an edit.
func (n *Node) ContentHash() uint64 {
	if n.hashed {
		return n.hash
	}
	return n.computeHash()
}

func (n *Node) computeHash() uint64 {
	h := fnv.New64a()
	n.hashInto(h)
	return h.Sum64()
}

type hasher interface {
	Write(p []byte) (int, error)
	Sum64() uint64
}

func (n *Node) hashInto(h hasher) {
	if n.IsText() {
		h.Write([]byte{'t', 0})
		hashMarks(h, n.Marks)
		h.Write([]byte(n.Text))
		h.Write([]byte{0})
		return
	}
	h.Write([]byte{'e', 0})
	h.Write([]byte(n.Type))
	h.Write([]byte{0})
	hashAttrs(h, n.Attrs)
	hashMarks(h, n.Marks)
	for _, c := range n.Content {
		var buf [8]byte
		child := c.ContentHash()
		for i := 0; i < 8; i++ {
			buf[i] = byte(child >> (8 * i))
		}
		h.Write(buf[:])
	}
}

func hashAttrs(h hasher, attrs map[string]any) {
	if len(attrs) == 0 {
		h.Write([]byte{0})
		return
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v;", k, attrs[k])
	}
	h.Write([]byte{0})
}

func hashMarks(h hasher, marks []Mark) {
	for _, m := range marks {
		h.Write([]byte(m.Type))
		h.Write([]byte{1})
		hashAttrs(h, m.Attrs)
	}
	h.Write([]byte{0})
}

// SameMarkup reports whether two nodes agree on type, attrs and marks,
// ignoring content. Matching markup is what licenses the differ to descend
// into a pair of subtrees instead of replacing one wholesale.
func SameMarkup(a, b *Node) bool {
	if a.Type != b.Type {
		return false
	}
	if !attrsEqual(a.Attrs, b.Attrs) {
		return false
	}
	return marksEqual(a.Marks, b.Marks)
}

func attrsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func marksEqual(a, b []Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type || !attrsEqual(a[i].Attrs, b[i].Attrs) {
			return false
		}
	}
	return true
}

// Walk visits every node of the document in order, passing each node's start
// position. The receiver is treated as the document root: its children start
// at position 0 and the root itself is not visited. Returning false from fn
// aborts the walk.
func (doc *Node) Walk(fn func(n *Node, pos int) bool) {
	walk(doc.Content, 0, fn)
}

func walk(children []*Node, offset int, fn func(n *Node, pos int) bool) bool {
	for _, c := range children {
		if !fn(c, offset) {
			return false
		}
		if !c.IsText() && len(c.Content) > 0 {
			if !walk(c.Content, offset+1, fn) {
				return false
			}
		}
		offset += c.Size()
	}
	return true
}

// WalkFrom visits the nodes of an arbitrary subtree whose root starts at
// base in the enclosing document. The subtree root itself is visited first.
func (n *Node) WalkFrom(base int, fn func(n *Node, pos int) bool) {
	if !fn(n, base) {
		return
	}
	if !n.IsText() {
		walk(n.Content, base+1, fn)
	}
}

// FindByID locates a node by identity, returning the node and its start
// position in the document.
func (doc *Node) FindByID(id NodeID) (*Node, int, bool) {
	var (
		found *Node
		at    int
	)
	doc.Walk(func(n *Node, pos int) bool {
		if n.id == id {
			found, at = n, pos
			return false
		}
		return true
	})
	if found == nil {
		return nil, 0, false
	}
	return found, at, true
}
