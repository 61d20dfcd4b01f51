package proofwatch

import "github.com/hazyhaar/proofwatch/annotation"

// Notifier receives engine state changes for the host UI. Callbacks run
// outside the engine lock, so implementations may call back into the engine,
// but they should return promptly.
type Notifier interface {
	// LoadingChanged fires when the engine goes busy (true) or idle (false).
	LoadingChanged(loading bool)
	// AnnotationsUpdated fires after a check response patched [from,to).
	AnnotationsUpdated(from, to int)
	// ActiveChanged fires when the active annotation changes; nil means idle.
	ActiveChanged(a *annotation.Annotation)
}

// CallbackNotifier adapts plain functions to Notifier. Nil callbacks are
// skipped, so partial wiring is fine.
type CallbackNotifier struct {
	OnLoading     func(loading bool)
	OnAnnotations func(from, to int)
	OnActive      func(a *annotation.Annotation)
}

func (c *CallbackNotifier) LoadingChanged(loading bool) {
	if c.OnLoading != nil {
		c.OnLoading(loading)
	}
}

func (c *CallbackNotifier) AnnotationsUpdated(from, to int) {
	if c.OnAnnotations != nil {
		c.OnAnnotations(from, to)
	}
}

func (c *CallbackNotifier) ActiveChanged(a *annotation.Annotation) {
	if c.OnActive != nil {
		c.OnActive(a)
	}
}

// defaultNotify is the engine placeholder before any WithNotifier option.
// A stateless CallbackNotifier with no callbacks drops everything.
var defaultNotify Notifier = &CallbackNotifier{}

// NotifierRouter fans every notification out to several notifiers in order.
type NotifierRouter struct {
	targets []Notifier
}

// NewNotifierRouter builds a router over the given notifiers.
func NewNotifierRouter(targets ...Notifier) *NotifierRouter {
	return &NotifierRouter{targets: targets}
}

func (r *NotifierRouter) LoadingChanged(loading bool) {
	for _, t := range r.targets {
		t.LoadingChanged(loading)
	}
}

func (r *NotifierRouter) AnnotationsUpdated(from, to int) {
	for _, t := range r.targets {
		t.AnnotationsUpdated(from, to)
	}
}

func (r *NotifierRouter) ActiveChanged(a *annotation.Annotation) {
	for _, t := range r.targets {
		t.ActiveChanged(a)
	}
}
