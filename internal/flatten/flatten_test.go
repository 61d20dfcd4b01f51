package flatten

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hazyhaar/proofwatch/doctree"
)

func para(text string) *doctree.Node {
	return doctree.NewElement(doctree.TypeParagraph, nil, doctree.NewText(text))
}

func TestDocRuns(t *testing.T) {
	doc := doctree.NewDoc(para("abc"), para("def"))
	runs := Doc(doc)

	want := []Run{
		{From: 1, To: 4, Text: "abc"},
		{From: 6, To: 9, Text: "def"},
	}
	if len(runs) != len(want) {
		t.Fatalf("runs: got %d, want %d (%+v)", len(runs), len(want), runs)
	}
	for i := range want {
		if runs[i] != want[i] {
			t.Errorf("run %d: got %+v, want %+v", i, runs[i], want[i])
		}
	}
}

func TestRunsMergeAcrossMarks(t *testing.T) {
	p := doctree.NewElement(doctree.TypeParagraph, nil,
		doctree.NewText("wo"),
		doctree.NewText("rd", doctree.Mark{Type: doctree.MarkStrong}),
	)
	runs := Doc(doctree.NewDoc(p))
	if len(runs) != 1 {
		t.Fatalf("runs: got %d, want 1 merged run", len(runs))
	}
	if runs[0] != (Run{From: 1, To: 5, Text: "word"}) {
		t.Fatalf("merged run: got %+v", runs[0])
	}
}

func TestRunsHardBreakEndsRun(t *testing.T) {
	p := doctree.NewElement(doctree.TypeParagraph, nil,
		doctree.NewText("ab"),
		doctree.NewElement(doctree.TypeHardBreak, nil),
		doctree.NewText("cd"),
	)
	runs := Doc(doctree.NewDoc(p))
	want := []Run{
		{From: 1, To: 3, Text: "ab"},
		{From: 4, To: 6, Text: "cd"},
	}
	if len(runs) != 2 || runs[0] != want[0] || runs[1] != want[1] {
		t.Fatalf("runs: got %+v, want %+v", runs, want)
	}
}

func TestRunInvariant(t *testing.T) {
	doc := doctree.NewDoc(
		para("héllo wörld"),
		doctree.NewElement(doctree.TypeBlockquote, nil, para("nested")),
	)
	for _, r := range Doc(doc) {
		if r.To-r.From != utf8.RuneCountInString(r.Text) {
			t.Errorf("run %+v: span %d != rune length %d", r, r.To-r.From, utf8.RuneCountInString(r.Text))
		}
	}
}

func TestSubtreeRuns(t *testing.T) {
	p2 := para("def")
	doc := doctree.NewDoc(para("abc"), p2)
	_, pos, ok := doc.FindByID(p2.ID())
	if !ok {
		t.Fatal("node not found")
	}
	runs := Subtree(p2, pos)
	if len(runs) != 1 || runs[0] != (Run{From: 6, To: 9, Text: "def"}) {
		t.Fatalf("subtree runs: got %+v", runs)
	}
}

func TestSplitGapFilling(t *testing.T) {
	doc := doctree.NewDoc(para("abc"), para("def"))
	chunks := Split(Doc(doc), 500)

	if len(chunks) != 1 {
		t.Fatalf("chunks: got %d, want 1", len(chunks))
	}
	c := chunks[0]
	if c.From != 1 {
		t.Errorf("chunk from: got %d, want 1", c.From)
	}
	if c.Text != "abc  def" {
		t.Errorf("chunk text: got %q, want %q", c.Text, "abc  def")
	}

	// Chunk-local offsets translate to document positions.
	off := strings.Index(c.Text, "def")
	if c.From+off != 6 {
		t.Errorf("offset translation: got %d, want 6", c.From+off)
	}
}

func TestSplitEmpty(t *testing.T) {
	chunks := Split(nil, 500)
	if len(chunks) != 1 {
		t.Fatalf("chunks: got %d, want 1", len(chunks))
	}
	if chunks[0].From != 1 || chunks[0].Text != "" {
		t.Fatalf("empty chunk: got %+v", chunks[0])
	}
}

func TestSplitWordLimit(t *testing.T) {
	words := make([]string, 1200)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	doc := doctree.NewDoc(para(strings.Join(words, " ")))

	chunks := Split(Doc(doc), 500)
	if len(chunks) != 3 {
		t.Fatalf("chunks: got %d, want 3", len(chunks))
	}

	counts := []int{500, 500, 200}
	for i, c := range chunks {
		if got := len(strings.Fields(c.Text)); got != counts[i] {
			t.Errorf("chunk %d word count: got %d, want %d", i, got, counts[i])
		}
	}

	// The second chunk anchors at word 500's absolute position.
	wantFrom := 1 + len(strings.Join(words[:500], " ")) + 1
	if chunks[1].From != wantFrom {
		t.Errorf("chunk 1 from: got %d, want %d", chunks[1].From, wantFrom)
	}

	// No chunk starts or ends mid-word.
	for i, c := range chunks {
		if strings.HasPrefix(c.Text, " ") || strings.HasSuffix(c.Text, " ") {
			t.Errorf("chunk %d has edge whitespace: %q...", i, c.Text[:20])
		}
	}
}

func TestSplitOffsetInvariantAcrossChunks(t *testing.T) {
	doc := doctree.NewDoc(para("one two three"), para("four five"))
	chunks := Split(Doc(doc), 2)

	// Rebuild a position → rune lookup from the runs.
	at := map[int]rune{}
	for _, r := range Doc(doc) {
		for i, ch := range []rune(r.Text) {
			at[r.From+i] = ch
		}
	}

	for _, c := range chunks {
		for i, ch := range []rune(c.Text) {
			want, ok := at[c.From+i]
			if !ok {
				if ch != ' ' {
					t.Errorf("position %d: chunk has %q, document has a gap", c.From+i, ch)
				}
				continue
			}
			if ch != want {
				t.Errorf("position %d: chunk has %q, document has %q", c.From+i, ch, want)
			}
		}
	}
}

func TestSplitDefaultLimit(t *testing.T) {
	chunks := Split([]Run{{From: 1, To: 3, Text: "ab"}}, 0)
	if len(chunks) != 1 || chunks[0].Text != "ab" {
		t.Fatalf("chunks: got %+v", chunks)
	}
}
