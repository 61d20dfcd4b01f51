package annotation

import (
	"sort"

	"github.com/google/uuid"

	"github.com/hazyhaar/proofwatch/doctree"
)

// Overlay is the live annotation set for one document. Annotations stay
// sorted by start position. The overlay itself is not goroutine-safe; the
// engine serializes access to it.
//
// Patch and Remap are the two write paths: Patch applies a check response
// for one source range, Remap drags every annotation through an edit. Their
// interplay is what makes out-of-order responses safe: a response only ever
// replaces the range it was computed for.
type Overlay struct {
	anns []Annotation
}

// NewOverlay returns an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{}
}

// Len returns the number of annotations.
func (o *Overlay) Len() int { return len(o.anns) }

// All returns the annotations in position order. The slice is a copy.
func (o *Overlay) All() []Annotation {
	out := make([]Annotation, len(o.anns))
	copy(out, o.anns)
	return out
}

// InRange returns the annotations overlapping [from, to).
func (o *Overlay) InRange(from, to int) []Annotation {
	var out []Annotation
	for _, a := range o.anns {
		if a.From >= to {
			break
		}
		if a.To > from {
			out = append(out, a)
		}
	}
	return out
}

// At returns the first annotation covering pos.
func (o *Overlay) At(pos int) (Annotation, bool) {
	for _, a := range o.anns {
		if a.From > pos {
			break
		}
		if pos < a.To {
			return a, true
		}
	}
	return Annotation{}, false
}

// ByID looks an annotation up by identity.
func (o *Overlay) ByID(id uuid.UUID) (Annotation, bool) {
	for _, a := range o.anns {
		if a.ID == id {
			return a, true
		}
	}
	return Annotation{}, false
}

// Patch applies a check result for the source range [from, to): every
// annotation intersecting the range is removed, then the matches are added
// at base plus their local offset. Annotations outside the range are
// untouched, which is what keeps concurrent responses for different ranges
// from clobbering each other.
func (o *Overlay) Patch(from, to int, matches []Match, base int) []Annotation {
	kept := o.anns[:0]
	for _, a := range o.anns {
		if a.From < to && a.To > from {
			continue
		}
		kept = append(kept, a)
	}
	o.anns = kept

	added := make([]Annotation, 0, len(matches))
	for _, m := range matches {
		if m.Length <= 0 {
			continue
		}
		a := Annotation{
			ID:       uuid.New(),
			From:     base + m.Offset,
			To:       base + m.Offset + m.Length,
			CSSClass: CSSClassFor(m.Rule),
			Match:    m,
		}
		added = append(added, a)
	}
	o.anns = append(o.anns, added...)
	sort.SliceStable(o.anns, func(i, j int) bool {
		if o.anns[i].From != o.anns[j].From {
			return o.anns[i].From < o.anns[j].From
		}
		return o.anns[i].To < o.anns[j].To
	})
	return added
}

// Remap drags every annotation through an edit. Start positions associate
// forward and end positions backward, so text typed at either edge of an
// annotation is not absorbed into it. Annotations whose whole span was
// deleted are dropped; partially deleted ones survive with clamped ends.
// Surviving payloads are never altered. Returns how many were dropped.
func (o *Overlay) Remap(m *doctree.PosMap) int {
	kept := o.anns[:0]
	dropped := 0
	for _, a := range o.anns {
		from := m.Map(a.From, 1)
		to := m.Map(a.To, -1)
		if from >= to {
			dropped++
			continue
		}
		a.From, a.To = from, to
		kept = append(kept, a)
	}
	o.anns = kept
	return dropped
}

// Clear drops every annotation, as when a new document replaces the old.
func (o *Overlay) Clear() {
	o.anns = nil
}
