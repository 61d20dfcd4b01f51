package doctree

// Change is one structurally changed node found by Diff, located in the new
// tree. Block is the nearest enclosing textblock (or the node itself when the
// change is at block level): the unit whose text a re-check should cover.
type Change struct {
	Node     *Node
	Pos      int
	Parent   *Node
	Block    *Node
	BlockPos int
}

// diffLookahead bounds how far ahead in the old child list the differ
// searches for an unchanged twin before declaring a child changed. Small on
// purpose: typical edits touch one node, insert a block or delete a block.
const diffLookahead = 3

// Diff compares two trees and reports the minimal changed subtrees of the
// new one. Unchanged subtrees are recognized by content hash within a short
// lookahead window, so pure insertions report exactly the inserted nodes and
// pure deletions report nothing. When a changed pair agrees on markup the
// differ descends instead of reporting the whole subtree; when the child
// lists disagree beyond recognition the whole parent is reported as one
// coarse change.
func Diff(oldDoc, newDoc *Node) []Change {
	if oldDoc.ContentHash() == newDoc.ContentHash() {
		return nil
	}
	return diffChildren(oldDoc, newDoc, 0, nil, 0, nil)
}

func diffChildren(oldParent, newParent *Node, offset int, block *Node, blockPos int, acc []Change) []Change {
	oldKids := oldParent.Content
	newKids := newParent.Content
	contentStart := offset

	direct := 0
	cursor := 0
	for _, nc := range newKids {
		// Unchanged twin within the window?
		if k, ok := findTwin(oldKids, cursor, nc); ok {
			cursor = k + 1
			offset += nc.Size()
			continue
		}

		// When the old child at the cursor is itself the twin of an upcoming
		// new child, nc was inserted: the old child must stay available for
		// its twin, so nc has no counterpart to pair with.
		paired := cursor < len(oldKids) && !reusedAhead(oldKids[cursor], newKids, nc)

		if paired && !nc.IsText() && SameMarkup(oldKids[cursor], nc) {
			nb, nbPos := block, blockPos
			if nb == nil && nc.IsTextblock() {
				nb, nbPos = nc, offset
			}
			acc = diffChildren(oldKids[cursor], nc, offset+1, nb, nbPos, acc)
			cursor++
			offset += nc.Size()
			continue
		}

		b, bPos := block, blockPos
		if b == nil {
			b, bPos = nc, offset
		}
		acc = append(acc, Change{
			Node:     nc,
			Pos:      offset,
			Parent:   newParent,
			Block:    b,
			BlockPos: bPos,
		})
		direct++
		if paired {
			cursor++
		}
		offset += nc.Size()
	}

	// Child lists too different to pair up: collapse to one coarse change
	// covering the whole parent. Collapsing only happens when every child was
	// reported directly, so the entries to drop are exactly the last ones.
	if direct == len(newKids) && direct >= 2 && len(oldKids) > 0 {
		acc = acc[:len(acc)-direct]
		pos := contentStart - 1
		if pos < 0 {
			pos = 0
		}
		b, bPos := block, blockPos
		if b == nil {
			b, bPos = newParent, pos
		}
		acc = append(acc, Change{
			Node:     newParent,
			Pos:      pos,
			Block:    b,
			BlockPos: bPos,
		})
	}
	return acc
}

// findTwin looks for a child with the same content hash in
// old[cursor:cursor+diffLookahead].
func findTwin(old []*Node, cursor int, want *Node) (int, bool) {
	limit := cursor + diffLookahead
	if limit > len(old) {
		limit = len(old)
	}
	h := want.ContentHash()
	for k := cursor; k < limit; k++ {
		if old[k].ContentHash() == h {
			return k, true
		}
	}
	return 0, false
}

// reusedAhead reports whether oc is the unchanged twin of one of the new
// children coming after nc, in which case oc must not be consumed as nc's
// counterpart.
func reusedAhead(oc *Node, newKids []*Node, nc *Node) bool {
	seen := false
	count := 0
	h := oc.ContentHash()
	for _, k := range newKids {
		if !seen {
			if k == nc {
				seen = true
			}
			continue
		}
		if k.ContentHash() == h {
			return true
		}
		count++
		if count >= diffLookahead {
			break
		}
	}
	return false
}

// Rebase derives a Transaction from two already-built trees, as when a
// document file is reloaded from disk. The position map is coarse: the
// common leading and trailing top-level blocks are matched by hash and
// everything between counts as one replaced region.
func Rebase(oldDoc, newDoc *Node) *Transaction {
	if oldDoc.ContentHash() == newDoc.ContentHash() {
		return &Transaction{Doc: newDoc, Map: IdentityMap}
	}
	oldKids, newKids := oldDoc.Content, newDoc.Content

	prefix := 0
	for prefix < len(oldKids) && prefix < len(newKids) &&
		oldKids[prefix].ContentHash() == newKids[prefix].ContentHash() {
		prefix++
	}
	suffix := 0
	for suffix < len(oldKids)-prefix && suffix < len(newKids)-prefix &&
		oldKids[len(oldKids)-1-suffix].ContentHash() == newKids[len(newKids)-1-suffix].ContentHash() {
		suffix++
	}

	start := 0
	for _, c := range oldKids[:prefix] {
		start += c.Size()
	}
	oldLen := 0
	for _, c := range oldKids[prefix : len(oldKids)-suffix] {
		oldLen += c.Size()
	}
	newLen := 0
	for _, c := range newKids[prefix : len(newKids)-suffix] {
		newLen += c.Size()
	}

	return &Transaction{
		Doc: newDoc,
		Map: NewPosMap(Span{Start: start, OldLen: oldLen, NewLen: newLen}),
	}
}
