package doctree

import (
	"fmt"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// htmlPolicy strips scripts, event handlers and unknown attributes before
// the tree is built. Boilerplate containers are explicitly allowed through
// so the converter can drop them wholesale; the sanitizer alone would strip
// the tags but leak their text. Policies are safe for concurrent use.
var htmlPolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("nav", "header", "footer", "main", "section", "article")
	return p
}()

// ParseHTML builds a document from HTML. Input is sanitized first, then
// headings, paragraphs, lists, blockquotes and code blocks become element
// nodes; bold, italic, code and links become marks. Boilerplate containers
// (nav, header, footer) are skipped.
func ParseHTML(r io.Reader) (*Node, error) {
	clean := htmlPolicy.SanitizeReader(r)
	root, err := html.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("doctree: parse html: %w", err)
	}

	body := findBody(root)
	if body == nil {
		body = root
	}

	c := &htmlConverter{}
	c.blockChildren(body, nil)
	c.flushInline()
	if len(c.blocks) == 0 {
		c.blocks = append(c.blocks, NewElement(TypeParagraph, nil))
	}
	return NewDoc(c.blocks...), nil
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

type htmlConverter struct {
	blocks []*Node
	inline []*Node
}

// blockChildren walks element children, emitting blocks. Stray inline
// content between blocks accumulates into an implicit paragraph.
func (c *htmlConverter) blockChildren(n *html.Node, marks []Mark) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.block(child, marks)
	}
}

func (c *htmlConverter) block(n *html.Node, marks []Mark) {
	switch n.Type {
	case html.TextNode:
		c.inlineText(n.Data, marks)
		return
	case html.ElementNode:
	default:
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Nav, atom.Footer, atom.Header:
		return

	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		c.flushInline()
		// Stored as float64 so attrs compare equal to JSON-decoded ones.
		level := float64(n.Data[1] - '0')
		c.emit(TypeHeading, map[string]any{"level": level}, c.collectInline(n, nil))

	case atom.P:
		c.flushInline()
		c.emit(TypeParagraph, nil, c.collectInline(n, nil))

	case atom.Ul, atom.Ol:
		c.flushInline()
		typ := TypeBulletList
		if n.DataAtom == atom.Ol {
			typ = TypeOrderedList
		}
		var items []*Node
		for li := n.FirstChild; li != nil; li = li.NextSibling {
			if li.Type != html.ElementNode || li.DataAtom != atom.Li {
				continue
			}
			item := &htmlConverter{}
			item.blockChildren(li, nil)
			item.flushInline()
			if len(item.blocks) > 0 {
				items = append(items, NewElement(TypeListItem, nil, item.blocks...))
			}
		}
		if len(items) > 0 {
			c.blocks = append(c.blocks, NewElement(typ, nil, items...))
		}

	case atom.Blockquote:
		c.flushInline()
		inner := &htmlConverter{}
		inner.blockChildren(n, nil)
		inner.flushInline()
		if len(inner.blocks) > 0 {
			c.blocks = append(c.blocks, NewElement(TypeBlockquote, nil, inner.blocks...))
		}

	case atom.Pre:
		c.flushInline()
		if text := rawText(n); text != "" {
			c.emit(TypeCodeBlock, nil, []*Node{NewText(text)})
		}

	case atom.Br:
		c.inline = append(c.inline, NewElement(TypeHardBreak, nil))

	case atom.B, atom.Strong:
		c.inlineChildren(n, append(marks, Mark{Type: MarkStrong}))
	case atom.I, atom.Em:
		c.inlineChildren(n, append(marks, Mark{Type: MarkEm}))
	case atom.Code:
		c.inlineChildren(n, append(marks, Mark{Type: MarkCode}))
	case atom.A:
		c.inlineChildren(n, append(marks, linkMark(n)))

	case atom.Div, atom.Section, atom.Article, atom.Main, atom.Span, atom.Body:
		c.blockChildren(n, marks)

	default:
		// Unknown element: treat as a transparent container.
		c.blockChildren(n, marks)
	}
}

func (c *htmlConverter) inlineChildren(n *html.Node, marks []Mark) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.block(child, marks)
	}
}

func (c *htmlConverter) inlineText(data string, marks []Mark) {
	text := collapseSpace(data)
	if text == "" {
		return
	}
	if strings.TrimSpace(text) == "" {
		// Bare separator between inline elements.
		if len(c.inline) == 0 {
			return
		}
		text, marks = " ", nil
	}
	c.inline = append(c.inline, NewText(text, marks...))
}

// collectInline gathers the inline content of a block element into text
// nodes, using a scratch converter so sibling state is untouched.
func (c *htmlConverter) collectInline(n *html.Node, marks []Mark) []*Node {
	sub := &htmlConverter{}
	sub.inlineChildren(n, marks)
	return sub.inline
}

// emit appends a block built from raw inline nodes, trimming edge whitespace
// and merging adjacent text with identical marks.
func (c *htmlConverter) emit(typ string, attrs map[string]any, inline []*Node) {
	inline = trimInline(mergeInline(inline))
	if len(inline) == 0 {
		return
	}
	c.blocks = append(c.blocks, NewElement(typ, attrs, inline...))
}

// flushInline turns stray inline content into an implicit paragraph.
func (c *htmlConverter) flushInline() {
	if len(c.inline) == 0 {
		return
	}
	inline := c.inline
	c.inline = nil
	c.emit(TypeParagraph, nil, inline)
}

func trimInline(inline []*Node) []*Node {
	for len(inline) > 0 {
		first := inline[0]
		if !first.IsText() {
			break
		}
		t := strings.TrimLeft(first.Text, " ")
		if t == "" {
			inline = inline[1:]
			continue
		}
		if t != first.Text {
			inline[0] = NewText(t, first.Marks...)
		}
		break
	}
	for len(inline) > 0 {
		last := inline[len(inline)-1]
		if !last.IsText() {
			break
		}
		t := strings.TrimRight(last.Text, " ")
		if t == "" {
			inline = inline[:len(inline)-1]
			continue
		}
		if t != last.Text {
			inline[len(inline)-1] = NewText(t, last.Marks...)
		}
		break
	}
	return inline
}

// collapseSpace folds whitespace runs to single spaces, keeping edge spaces
// so word boundaries between adjacent inline nodes survive. Block edges are
// trimmed later by trimInline.
func collapseSpace(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			space = true
		default:
			if space {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	if space {
		b.WriteByte(' ')
	}
	return b.String()
}

func rawText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimRight(b.String(), "\n")
}

func linkMark(n *html.Node) Mark {
	href := ""
	for _, a := range n.Attr {
		if a.Key == "href" {
			href = a.Val
			break
		}
	}
	return Mark{Type: MarkLink, Attrs: map[string]any{"href": href}}
}
