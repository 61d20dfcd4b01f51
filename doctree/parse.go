package doctree

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON loads a document from its editor JSON form: nested objects with
// "type", optional "attrs", "content", "marks" and "text". The returned tree
// has fresh node identities and cached metadata.
func ParseJSON(data []byte) (*Node, error) {
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("doctree: parse: %w", err)
	}
	if err := validate(&root); err != nil {
		return nil, fmt.Errorf("doctree: parse: %w", err)
	}
	initTree(&root)
	return &root, nil
}

func validate(n *Node) error {
	if n.Type == "" {
		return fmt.Errorf("node without type")
	}
	if n.IsText() {
		if len(n.Content) > 0 {
			return fmt.Errorf("text node with content")
		}
		return nil
	}
	if n.Text != "" {
		return fmt.Errorf("%s node with text", n.Type)
	}
	for _, c := range n.Content {
		if c == nil {
			return fmt.Errorf("null child under %s", n.Type)
		}
		if err := validate(c); err != nil {
			return err
		}
	}
	return nil
}

func initTree(n *Node) {
	for _, c := range n.Content {
		initTree(c)
	}
	n.finish()
}

// Dump is a debugging aid: it renders the tree one node per line with
// indentation and start positions.
func (doc *Node) Dump() string {
	var b strings.Builder
	b.WriteString(doc.Type + "\n")
	var dump func(children []*Node, offset, depth int)
	dump = func(children []*Node, offset, depth int) {
		for _, c := range children {
			b.WriteString(strings.Repeat("  ", depth))
			if c.IsText() {
				fmt.Fprintf(&b, "%d text %q\n", offset, c.Text)
			} else {
				fmt.Fprintf(&b, "%d %s\n", offset, c.Type)
				dump(c.Content, offset+1, depth+1)
			}
			offset += c.Size()
		}
	}
	dump(doc.Content, 0, 1)
	return b.String()
}

// FromPlainText builds a document from plain text. Blank lines separate
// paragraphs; single newlines become hard breaks within a paragraph.
func FromPlainText(text string) *Node {
	var blocks []*Node
	for _, para := range splitParagraphs(text) {
		var inline []*Node
		for i, line := range strings.Split(para, "\n") {
			if i > 0 {
				inline = append(inline, NewElement(TypeHardBreak, nil))
			}
			if line != "" {
				inline = append(inline, NewText(line))
			}
		}
		if len(inline) == 0 {
			continue
		}
		blocks = append(blocks, NewElement(TypeParagraph, nil, inline...))
	}
	return NewDoc(blocks...)
}

func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var (
		out []string
		cur []string
	)
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(cur) > 0 {
				out = append(out, strings.Join(cur, "\n"))
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, "\n"))
	}
	return out
}
