package doctree

import "testing"

func TestDiffIdentical(t *testing.T) {
	doc := NewDoc(para("aaa"), para("bbb"))
	if changes := Diff(doc, doc); changes != nil {
		t.Fatalf("identical trees: got %d changes", len(changes))
	}
}

func TestDiffSingleLeafEdit(t *testing.T) {
	doc := NewDoc(para("aaaa"), para("bbbb"), para("cccc"))
	// p2 spans [6,12), its text starts at 7. Insert into p2.
	tr, err := ReplaceText(doc, 8, 8, "x")
	if err != nil {
		t.Fatal(err)
	}

	changes := Diff(doc, tr.Doc)
	if len(changes) != 1 {
		t.Fatalf("changes: got %d, want 1", len(changes))
	}
	c := changes[0]
	if !c.Node.IsText() {
		t.Fatalf("changed node: got %s, want text leaf", c.Node.Type)
	}
	if c.Node.Text != "bxbbb" {
		t.Fatalf("changed text: got %q", c.Node.Text)
	}
	if c.Pos != 7 {
		t.Errorf("position: got %d, want 7", c.Pos)
	}
	if c.Block != tr.Doc.Content[1] || c.BlockPos != 6 {
		t.Errorf("block attribution: got %v at %d", c.Block.Type, c.BlockPos)
	}
}

func TestDiffPureInsertion(t *testing.T) {
	doc := NewDoc(para("aaa"), para("bbb"))
	inserted := para("NEW")
	tr, err := ReplaceBlocks(doc, 1, 1, inserted)
	if err != nil {
		t.Fatal(err)
	}

	changes := Diff(doc, tr.Doc)
	if len(changes) != 1 {
		t.Fatalf("changes: got %d, want 1", len(changes))
	}
	if changes[0].Node != inserted {
		t.Fatal("reported node is not the inserted one")
	}
	if changes[0].Pos != 5 {
		t.Errorf("position: got %d, want 5", changes[0].Pos)
	}
}

func TestDiffPureDeletion(t *testing.T) {
	doc := NewDoc(para("aaa"), para("bbb"), para("ccc"))
	tr, err := ReplaceBlocks(doc, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if changes := Diff(doc, tr.Doc); len(changes) != 0 {
		t.Fatalf("pure deletion: got %d changes, want 0", len(changes))
	}
}

func TestDiffDuplicateInsertion(t *testing.T) {
	a, b := para("aaa"), para("bbb")
	doc := NewDoc(a, b)
	dup := para("aaa") // same content as a, different node
	newDoc := NewDoc(a, dup, b)

	changes := Diff(doc, newDoc)
	if len(changes) != 1 {
		t.Fatalf("changes: got %d, want 1", len(changes))
	}
	if changes[0].Node != dup {
		t.Fatal("reported node should be the inserted duplicate")
	}
	if changes[0].Pos != 5 {
		t.Errorf("position: got %d, want 5", changes[0].Pos)
	}
}

func TestDiffMarkupMismatch(t *testing.T) {
	doc := NewDoc(para("aaa"))
	h := NewElement(TypeHeading, map[string]any{"level": 1}, NewText("aaa"))
	newDoc := NewDoc(h)

	changes := Diff(doc, newDoc)
	if len(changes) != 1 {
		t.Fatalf("changes: got %d, want 1", len(changes))
	}
	if changes[0].Node != h {
		t.Fatal("markup mismatch should report the whole node, not descend")
	}
}

func TestDiffAttrChange(t *testing.T) {
	h1 := NewElement(TypeHeading, map[string]any{"level": 1}, NewText("title"))
	h2 := NewElement(TypeHeading, map[string]any{"level": 2}, NewText("title"))
	changes := Diff(NewDoc(h1), NewDoc(h2))
	if len(changes) != 1 || changes[0].Node != h2 {
		t.Fatalf("attr change: got %+v", changes)
	}
}

func TestDiffCoarseFallback(t *testing.T) {
	doc := NewDoc(para("aaa"), para("bbb"))
	newDoc := NewDoc(
		NewElement(TypeHeading, map[string]any{"level": 1}, NewText("x")),
		NewElement(TypeBlockquote, nil, para("y")),
	)

	changes := Diff(doc, newDoc)
	if len(changes) != 1 {
		t.Fatalf("changes: got %d, want 1 coarse change", len(changes))
	}
	if changes[0].Node != newDoc {
		t.Fatal("coarse fallback should report the parent")
	}
}

func TestDiffInsertionWithinLookahead(t *testing.T) {
	old := para("zzz")
	doc := NewDoc(old)
	a, b := para("a1"), para("b2")
	newDoc := NewDoc(a, b, old)

	changes := Diff(doc, newDoc)
	if len(changes) != 2 {
		t.Fatalf("changes: got %d, want 2", len(changes))
	}
	for _, c := range changes {
		if c.Node == old {
			t.Fatal("unchanged trailing block reported as changed")
		}
	}
}

func TestDiffInsertionBeyondLookahead(t *testing.T) {
	// Enough inserted blocks push the surviving one past the lookahead
	// window, so it counts as changed too. Over-reporting is safe, it only
	// costs an extra check.
	old := para("zzz")
	doc := NewDoc(old)
	newDoc := NewDoc(para("a1"), para("b2"), para("c3"), para("d4"), old)

	changes := Diff(doc, newDoc)
	if len(changes) < 4 {
		t.Fatalf("changes: got %d, want at least 4", len(changes))
	}
}

func TestDiffNestedEdit(t *testing.T) {
	doc := NewDoc(
		para("intro"),
		NewElement(TypeBlockquote, nil, para("quoted text")),
	)
	// "quoted text" starts at 9 (para intro is 7, blockquote opens at 7,
	// inner paragraph at 8).
	tr, err := ReplaceText(doc, 9, 9, "!")
	if err != nil {
		t.Fatal(err)
	}

	changes := Diff(doc, tr.Doc)
	if len(changes) != 1 {
		t.Fatalf("changes: got %d, want 1", len(changes))
	}
	c := changes[0]
	if !c.Node.IsText() {
		t.Fatalf("changed node type: %s", c.Node.Type)
	}
	inner := tr.Doc.Content[1].Content[0]
	if c.Block != inner {
		t.Fatalf("block should be the inner paragraph, got %s", c.Block.Type)
	}
	if c.BlockPos != 8 {
		t.Errorf("block position: got %d, want 8", c.BlockPos)
	}
}

func TestRebaseIdentity(t *testing.T) {
	doc := NewDoc(para("aaa"))
	same := NewDoc(para("aaa"))
	tr := Rebase(doc, same)
	if tr.Doc != same {
		t.Fatal("rebase should adopt the new tree")
	}
	if got := tr.Map.Map(3, 1); got != 3 {
		t.Fatalf("identity map moved a position: %d", got)
	}
}

func TestRebaseMiddleReplaced(t *testing.T) {
	doc := NewDoc(para("aaa"), para("bbb"), para("ccc"))
	newDoc := NewDoc(para("aaa"), para("bbbbbb"), para("ccc"))

	tr := Rebase(doc, newDoc)
	spans := tr.Map.Spans()
	if len(spans) != 1 || spans[0] != (Span{Start: 5, OldLen: 5, NewLen: 8}) {
		t.Fatalf("spans: got %+v", spans)
	}

	// Position in the trailing common block shifts by the size delta.
	if got := tr.Map.Map(11, 1); got != 14 {
		t.Fatalf("trailing position: got %d, want 14", got)
	}
	// Position in the leading common block is untouched.
	if got := tr.Map.Map(2, 1); got != 2 {
		t.Fatalf("leading position: got %d, want 2", got)
	}
}

func TestRebaseAppend(t *testing.T) {
	doc := NewDoc(para("aaa"))
	newDoc := NewDoc(para("aaa"), para("bbb"))
	tr := Rebase(doc, newDoc)
	spans := tr.Map.Spans()
	if len(spans) != 1 || spans[0] != (Span{Start: 5, OldLen: 0, NewLen: 5}) {
		t.Fatalf("spans: got %+v", spans)
	}
}
