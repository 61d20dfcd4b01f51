package doctree

import (
	"strings"
	"testing"
)

func parseHTML(t *testing.T, src string) *Node {
	t.Helper()
	doc, err := ParseHTML(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseHTML: %v", err)
	}
	return doc
}

// docText flattens all text nodes for containment checks.
func docText(doc *Node) string {
	var b strings.Builder
	doc.Walk(func(n *Node, pos int) bool {
		if n.IsText() {
			b.WriteString(n.Text)
			b.WriteByte(' ')
		}
		return true
	})
	return b.String()
}

func TestParseHTMLDocument(t *testing.T) {
	doc := parseHTML(t, `<h1>Title</h1><p>Hello <strong>world</strong>!</p>`)

	if len(doc.Content) != 2 {
		t.Fatalf("got %d blocks, want 2", len(doc.Content))
	}

	h := doc.Content[0]
	if h.Type != TypeHeading {
		t.Fatalf("first block = %s, want heading", h.Type)
	}
	if lvl := h.Attrs["level"].(float64); lvl != 1 {
		t.Errorf("heading level = %v, want 1", lvl)
	}
	if len(h.Content) != 1 || h.Content[0].Text != "Title" {
		t.Errorf("heading content = %+v", h.Content)
	}

	p := doc.Content[1]
	if p.Type != TypeParagraph {
		t.Fatalf("second block = %s, want paragraph", p.Type)
	}
	if len(p.Content) != 3 {
		t.Fatalf("paragraph has %d inline nodes, want 3", len(p.Content))
	}
	if p.Content[0].Text != "Hello " {
		t.Errorf("inline[0] = %q", p.Content[0].Text)
	}
	if p.Content[1].Text != "world" || len(p.Content[1].Marks) != 1 || p.Content[1].Marks[0].Type != MarkStrong {
		t.Errorf("inline[1] = %q marks %+v", p.Content[1].Text, p.Content[1].Marks)
	}
	if p.Content[2].Text != "!" {
		t.Errorf("inline[2] = %q", p.Content[2].Text)
	}

	// "Title" is 5 runes, so the heading spans [0,7) and the paragraph
	// opens at 7 with its text starting at 8.
	if h.Size() != 7 {
		t.Errorf("heading size = %d, want 7", h.Size())
	}
	_, pos, ok := doc.FindByID(p.ID())
	if !ok || pos != 7 {
		t.Errorf("paragraph at %d (ok=%v), want 7", pos, ok)
	}
}

func TestParseHTMLStripsScript(t *testing.T) {
	doc := parseHTML(t, `<p>safe</p><script>alert("x")</script><style>p{color:red}</style>`)

	if got := docText(doc); strings.Contains(got, "alert") || strings.Contains(got, "color") {
		t.Errorf("script or style content leaked: %q", got)
	}
	if len(doc.Content) != 1 || doc.Content[0].Content[0].Text != "safe" {
		t.Errorf("doc = %s", doc.Dump())
	}
}

func TestParseHTMLSkipsBoilerplate(t *testing.T) {
	doc := parseHTML(t, `
		<nav>Home About Contact</nav>
		<header>Site header</header>
		<p>The article body.</p>
		<footer>Copyright notice</footer>`)

	got := docText(doc)
	for _, leak := range []string{"Home", "header", "Copyright"} {
		if strings.Contains(got, leak) {
			t.Errorf("boilerplate %q leaked into %q", leak, got)
		}
	}
	if !strings.Contains(got, "The article body.") {
		t.Errorf("body text missing from %q", got)
	}
}

func TestParseHTMLLists(t *testing.T) {
	doc := parseHTML(t, `<ul><li>one</li><li>two</li></ul><ol><li>first</li></ol>`)

	if len(doc.Content) != 2 {
		t.Fatalf("got %d blocks, want 2", len(doc.Content))
	}

	ul := doc.Content[0]
	if ul.Type != TypeBulletList || len(ul.Content) != 2 {
		t.Fatalf("bullet list = %s with %d items", ul.Type, len(ul.Content))
	}
	item := ul.Content[0]
	if item.Type != TypeListItem {
		t.Fatalf("item type = %s", item.Type)
	}
	// Bare <li> text is wrapped in an implicit paragraph.
	if len(item.Content) != 1 || item.Content[0].Type != TypeParagraph {
		t.Fatalf("item content = %+v", item.Content)
	}
	if item.Content[0].Content[0].Text != "one" {
		t.Errorf("item text = %q", item.Content[0].Content[0].Text)
	}

	if doc.Content[1].Type != TypeOrderedList {
		t.Errorf("second list = %s, want ordered_list", doc.Content[1].Type)
	}
}

func TestParseHTMLMarks(t *testing.T) {
	doc := parseHTML(t, `<p><em>it</em> and <code>x</code> and <a href="https://example.com/doc">ref</a></p>`)

	p := doc.Content[0]
	var em, code, link *Node
	for _, n := range p.Content {
		for _, m := range n.Marks {
			switch m.Type {
			case MarkEm:
				em = n
			case MarkCode:
				code = n
			case MarkLink:
				link = n
			}
		}
	}
	if em == nil || em.Text != "it" {
		t.Errorf("em node = %+v", em)
	}
	if code == nil || code.Text != "x" {
		t.Errorf("code node = %+v", code)
	}
	if link == nil || link.Text != "ref" {
		t.Fatalf("link node = %+v", link)
	}
	if href := link.Marks[0].Attrs["href"]; href != "https://example.com/doc" {
		t.Errorf("href = %v", href)
	}
}

func TestParseHTMLHardBreak(t *testing.T) {
	doc := parseHTML(t, `<p>line one<br>line two</p>`)

	p := doc.Content[0]
	if len(p.Content) != 3 {
		t.Fatalf("got %d inline nodes, want 3: %s", len(p.Content), doc.Dump())
	}
	if p.Content[1].Type != TypeHardBreak {
		t.Errorf("middle node = %s, want hard_break", p.Content[1].Type)
	}
	if p.Content[0].Text != "line one" || p.Content[2].Text != "line two" {
		t.Errorf("texts = %q, %q", p.Content[0].Text, p.Content[2].Text)
	}
}

func TestParseHTMLWhitespaceCollapse(t *testing.T) {
	doc := parseHTML(t, "<p>Hello\n\t   world</p>")

	p := doc.Content[0]
	if len(p.Content) != 1 || p.Content[0].Text != "Hello world" {
		t.Errorf("paragraph = %+v", p.Content)
	}
}

func TestParseHTMLWordBoundaryAcrossInline(t *testing.T) {
	doc := parseHTML(t, `<p><b>bold</b> plain</p>`)

	var text strings.Builder
	for _, n := range doc.Content[0].Content {
		text.WriteString(n.Text)
	}
	if text.String() != "bold plain" {
		t.Errorf("paragraph text = %q, want words kept apart", text.String())
	}
}

func TestParseHTMLImplicitParagraph(t *testing.T) {
	doc := parseHTML(t, `stray text <b>with bold</b>`)

	if len(doc.Content) != 1 || doc.Content[0].Type != TypeParagraph {
		t.Fatalf("doc = %s", doc.Dump())
	}
	p := doc.Content[0]
	if len(p.Content) != 2 {
		t.Fatalf("got %d inline nodes, want 2", len(p.Content))
	}
	if p.Content[0].Text != "stray text " {
		t.Errorf("inline[0] = %q", p.Content[0].Text)
	}
	if p.Content[1].Text != "with bold" || len(p.Content[1].Marks) != 1 {
		t.Errorf("inline[1] = %q marks %+v", p.Content[1].Text, p.Content[1].Marks)
	}
}

func TestParseHTMLBlockquote(t *testing.T) {
	doc := parseHTML(t, `<blockquote><p>quoted</p></blockquote>`)

	bq := doc.Content[0]
	if bq.Type != TypeBlockquote {
		t.Fatalf("block = %s, want blockquote", bq.Type)
	}
	if len(bq.Content) != 1 || bq.Content[0].Type != TypeParagraph {
		t.Fatalf("blockquote content = %+v", bq.Content)
	}
}

func TestParseHTMLCodeBlock(t *testing.T) {
	doc := parseHTML(t, "<pre><code>x := 1\ny := 2</code></pre>")

	cb := doc.Content[0]
	if cb.Type != TypeCodeBlock {
		t.Fatalf("block = %s, want code_block", cb.Type)
	}
	if len(cb.Content) != 1 || cb.Content[0].Text != "x := 1\ny := 2" {
		t.Errorf("code text = %q", cb.Content[0].Text)
	}
}

func TestParseHTMLEmpty(t *testing.T) {
	doc := parseHTML(t, "")

	if len(doc.Content) != 1 {
		t.Fatalf("got %d blocks, want 1", len(doc.Content))
	}
	p := doc.Content[0]
	if p.Type != TypeParagraph || len(p.Content) != 0 {
		t.Errorf("fallback block = %s with %d children", p.Type, len(p.Content))
	}
}

func TestParseHTMLPositions(t *testing.T) {
	doc := parseHTML(t, `<p>ab</p><p>cd</p>`)

	var texts []struct {
		text string
		pos  int
	}
	doc.Walk(func(n *Node, pos int) bool {
		if n.IsText() {
			texts = append(texts, struct {
				text string
				pos  int
			}{n.Text, pos})
		}
		return true
	})

	if len(texts) != 2 {
		t.Fatalf("got %d text nodes", len(texts))
	}
	if texts[0].pos != 1 || texts[0].text != "ab" {
		t.Errorf("first text %q at %d, want ab at 1", texts[0].text, texts[0].pos)
	}
	if texts[1].pos != 6 || texts[1].text != "cd" {
		t.Errorf("second text %q at %d, want cd at 6", texts[1].text, texts[1].pos)
	}
}
