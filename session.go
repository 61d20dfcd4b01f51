package proofwatch

import (
	"github.com/google/uuid"

	"github.com/hazyhaar/proofwatch/annotation"
)

// The active annotation is the engine's bridge to a suggestion UI: hovering
// or clicking a rendered annotation activates it, leaving clears it. At most
// one annotation is active; activating another simply replaces it.

// SetActive marks the annotation with the given identity as active. Returns
// false if no such annotation exists, leaving the current state untouched.
func (e *Engine) SetActive(id uuid.UUID) bool {
	e.mu.Lock()
	ann, ok := e.overlay.ByID(id)
	if !ok {
		e.mu.Unlock()
		return false
	}
	changed := e.active != id
	e.active = id
	e.mu.Unlock()

	if changed {
		e.notify.ActiveChanged(&ann)
	}
	return true
}

// ActivateAt activates whichever annotation covers pos. Returns false if
// none does.
func (e *Engine) ActivateAt(pos int) bool {
	e.mu.Lock()
	ann, ok := e.overlay.At(pos)
	if !ok {
		e.mu.Unlock()
		return false
	}
	changed := e.active != ann.ID
	e.active = ann.ID
	e.mu.Unlock()

	if changed {
		e.notify.ActiveChanged(&ann)
	}
	return true
}

// ClearActive returns the selection to idle, as on mouse-leave.
func (e *Engine) ClearActive() {
	e.mu.Lock()
	had := e.active != uuid.Nil
	e.active = uuid.Nil
	e.mu.Unlock()

	if had {
		e.notify.ActiveChanged(nil)
	}
}

// Active returns the active annotation, if any.
func (e *Engine) Active() (annotation.Annotation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == uuid.Nil {
		return annotation.Annotation{}, false
	}
	return e.overlay.ByID(e.active)
}
