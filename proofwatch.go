// Package proofwatch keeps a proofreading overlay aligned with a live,
// user-edited rich-text document. It flattens the document tree into
// position-addressed chunks, ships them to a LanguageTool-compatible
// service, and pins the returned matches to document positions that follow
// the text through subsequent edits.
//
// proofwatch positions, it does not proofread: linguistic analysis is
// delegated entirely to the external service. The engine's contract is that
// an annotation is always where its text is, even while edits and check
// responses race each other.
package proofwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	// Registers the sqlite driver for the response cache.
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/proofwatch/annotation"
	"github.com/hazyhaar/proofwatch/doctree"
	"github.com/hazyhaar/proofwatch/internal/checkcache"
	"github.com/hazyhaar/proofwatch/internal/config"
	"github.com/hazyhaar/proofwatch/internal/debounce"
	"github.com/hazyhaar/proofwatch/internal/flatten"
	"github.com/hazyhaar/proofwatch/internal/ltclient"
)

// Checker submits one text for proofreading and returns its matches with
// offsets local to that text. ltclient.Client.Check satisfies this.
type Checker func(ctx context.Context, text, language string) ([]annotation.Match, error)

// Engine is the synchronization core. Create one per document session.
type Engine struct {
	cfg     *config.Config
	checker Checker
	cache   *checkcache.Store
	notify  Notifier
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	docTimer  *debounce.Timer
	nodeTimer *debounce.Group

	mu            sync.Mutex
	doc           *doctree.Node
	overlay       *annotation.Overlay
	active        uuid.UUID
	generation    uint64 // bumped by SetDocument; in-flight requests from older generations are discarded
	editSeq       uint64 // bumped by every applied transaction
	passWanted    bool   // a whole-document pass has been requested for this document
	firstPassDone bool
	inflight      int
	pendingDoc    bool
	pendingNodes  map[doctree.NodeID]struct{}
	stateCh       chan struct{} // closed and replaced on every state change, wakes Wait
	closed        bool
}

// request is one in-flight check. Whole-document requests carry pass and an
// absolute from; incremental requests re-anchor through nodeID at apply time.
type request struct {
	gen     uint64
	editSeq uint64
	from    int
	text    string
	nodeID  doctree.NodeID
	relFrom int
	pass    *passState // nil for incremental requests
}

type passState struct {
	total    int
	resolved int
}

// Option configures an Engine.
type Option func(*Engine)

// WithChecker substitutes the proofreading backend.
func WithChecker(c Checker) Option {
	return func(e *Engine) { e.checker = c }
}

// WithNotifier registers a host notification surface. Repeating the option
// fans notifications out to every registered notifier in order.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		switch {
		case n == nil:
		case e.notify == defaultNotify:
			e.notify = n
		default:
			if r, ok := e.notify.(*NotifierRouter); ok {
				r.targets = append(r.targets, n)
			} else {
				e.notify = NewNotifierRouter(e.notify, n)
			}
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine from configuration. A nil cfg means defaults. The
// default checker talks to cfg.ServiceURL; if cfg.Cache.Path is set, check
// responses are cached on disk across sessions.
func New(cfg *Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:          cfg,
		notify:       defaultNotify,
		logger:       slog.Default(),
		ctx:          ctx,
		cancel:       cancel,
		docTimer:     debounce.NewTimer(cfg.Debounce.Document),
		nodeTimer:    debounce.NewGroup(cfg.Debounce.Node),
		overlay:      annotation.NewOverlay(),
		pendingNodes: make(map[doctree.NodeID]struct{}),
		stateCh:      make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	if e.checker == nil {
		lt := ltclient.New(cfg.ServiceURL,
			ltclient.WithTimeout(cfg.Request.Timeout),
			ltclient.WithRateLimit(cfg.Request.RatePerSec, cfg.Request.Burst),
			ltclient.WithLogger(e.logger))
		e.checker = lt.Check
	}
	if cfg.Cache.Path != "" {
		store, err := checkcache.Open(cfg.Cache.Path, cfg.Cache.TTL, e.logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("proofwatch: open cache: %w", err)
		}
		e.cache = store
	}
	return e, nil
}

// SetDocument replaces the tracked document. The overlay and active
// annotation are cleared; in automatic mode the initial whole-document pass
// is scheduled.
func (e *Engine) SetDocument(doc *doctree.Node) {
	if doc == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.doc = doc
	e.generation++
	e.editSeq++
	e.firstPassDone = false
	e.passWanted = e.cfg.Automatic
	hadAnns := e.overlay.Len() > 0
	e.overlay.Clear()
	hadActive := e.active != uuid.Nil
	e.active = uuid.Nil
	e.docTimer.Stop()
	e.pendingDoc = false
	e.nodeTimer.Stop()
	clear(e.pendingNodes)
	if e.cfg.Automatic {
		e.pendingDoc = true
		e.docTimer.Trigger(e.runFullPass)
	}
	size := doc.ContentSize()
	e.bumpLocked()
	e.mu.Unlock()

	if hadAnns {
		e.notify.AnnotationsUpdated(0, size)
	}
	if hadActive {
		e.notify.ActiveChanged(nil)
	}
}

// Apply advances the engine to the transaction's document. The overlay is
// remapped through the edit before this returns, so positions never drift
// visibly; the changed blocks are then queued for re-checking.
func (e *Engine) Apply(tr *doctree.Transaction) error {
	if tr == nil || tr.Doc == nil {
		return errors.New("proofwatch: nil transaction")
	}
	e.mu.Lock()
	activeCleared, err := e.applyLocked(tr)
	e.mu.Unlock()

	if activeCleared {
		e.notify.ActiveChanged(nil)
	}
	return err
}

// Edit replaces [from,to) with text on the current document and applies the
// resulting transaction. Edits must be serialized by the caller.
func (e *Engine) Edit(from, to int, text string) error {
	e.mu.Lock()
	if e.doc == nil {
		e.mu.Unlock()
		return errors.New("proofwatch: no document set")
	}
	tr, err := doctree.ReplaceText(e.doc, from, to, text)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	activeCleared, err := e.applyLocked(tr)
	e.mu.Unlock()

	if activeCleared {
		e.notify.ActiveChanged(nil)
	}
	return err
}

func (e *Engine) applyLocked(tr *doctree.Transaction) (bool, error) {
	if e.closed {
		return false, errors.New("proofwatch: engine stopped")
	}
	if e.doc == nil {
		return false, errors.New("proofwatch: no document set")
	}
	old := e.doc
	e.doc = tr.Doc
	e.editSeq++
	if tr.Map != nil {
		e.overlay.Remap(tr.Map)
	}
	activeCleared := e.reconcileActiveLocked()

	if e.firstPassDone {
		for _, ch := range doctree.Diff(old, tr.Doc) {
			block := ch.Block
			if block == nil {
				block = ch.Node
			}
			if block == tr.Doc {
				// Change too broad to attribute to a block; redo a full pass.
				e.pendingDoc = true
				e.docTimer.Trigger(e.runFullPass)
				continue
			}
			id := block.ID()
			e.pendingNodes[id] = struct{}{}
			e.nodeTimer.Trigger(uint64(id), func() { e.checkNode(id) })
		}
	} else if e.passWanted {
		// Edits landing before the first pass restart its debounce so the
		// full check fires on settled text.
		e.pendingDoc = true
		e.docTimer.Trigger(e.runFullPass)
	}
	e.bumpLocked()
	return activeCleared, nil
}

// CheckNow dispatches a whole-document pass immediately, bypassing the
// debounce. Use Wait to block until the results are in.
func (e *Engine) CheckNow() {
	e.mu.Lock()
	if e.closed || e.doc == nil {
		e.mu.Unlock()
		return
	}
	e.passWanted = true
	e.docTimer.Stop()
	e.pendingDoc = false
	wasIdle := e.startFullPassLocked()
	e.bumpLocked()
	e.mu.Unlock()

	if wasIdle {
		e.notify.LoadingChanged(true)
	}
}

// runFullPass is the whole-document debounce callback.
func (e *Engine) runFullPass() {
	e.mu.Lock()
	e.pendingDoc = false
	if e.closed || e.doc == nil {
		e.bumpLocked()
		e.mu.Unlock()
		return
	}
	wasIdle := e.startFullPassLocked()
	e.bumpLocked()
	e.mu.Unlock()

	if wasIdle {
		e.notify.LoadingChanged(true)
	}
}

// startFullPassLocked flattens the current document and dispatches one
// request per chunk. Reports whether the engine went from idle to busy.
func (e *Engine) startFullPassLocked() bool {
	chunks := flatten.Split(flatten.Doc(e.doc), e.cfg.ChunkWordLimit)
	reqs := make([]request, 0, len(chunks))
	for _, ch := range chunks {
		if strings.TrimSpace(ch.Text) == "" {
			continue
		}
		reqs = append(reqs, request{
			gen:     e.generation,
			editSeq: e.editSeq,
			from:    ch.From,
			text:    ch.Text,
		})
	}
	if len(reqs) == 0 {
		// Nothing to check; the pass completes trivially.
		e.firstPassDone = true
		return false
	}
	pass := &passState{total: len(reqs)}
	wasIdle := e.inflight == 0
	for i := range reqs {
		reqs[i].pass = pass
		e.inflight++
		go e.dispatch(reqs[i])
	}
	return wasIdle
}

// checkNode is the per-block debounce callback. The block's text is read
// here, at fire time, so a burst of edits collapses into one request
// carrying the final text.
func (e *Engine) checkNode(id doctree.NodeID) {
	e.mu.Lock()
	delete(e.pendingNodes, id)
	if e.closed || e.doc == nil {
		e.bumpLocked()
		e.mu.Unlock()
		return
	}
	node, pos, ok := e.doc.FindByID(id)
	if !ok {
		// The block was deleted while the timer was pending.
		e.bumpLocked()
		e.mu.Unlock()
		return
	}
	wasIdle := false
	for _, ch := range flatten.Split(flatten.Subtree(node, pos), e.cfg.ChunkWordLimit) {
		if strings.TrimSpace(ch.Text) == "" {
			continue
		}
		if e.inflight == 0 {
			wasIdle = true
		}
		e.inflight++
		go e.dispatch(request{
			gen:     e.generation,
			editSeq: e.editSeq,
			nodeID:  id,
			relFrom: ch.From - pos,
			text:    ch.Text,
		})
	}
	e.bumpLocked()
	e.mu.Unlock()

	if wasIdle {
		e.notify.LoadingChanged(true)
	}
}

// dispatch runs one check round-trip off the engine goroutine.
func (e *Engine) dispatch(req request) {
	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.Request.Timeout)
	defer cancel()

	lang := e.cfg.Language
	var matches []annotation.Match
	var err error
	hit := false
	if e.cache != nil {
		matches, hit = e.cache.Lookup(ctx, lang, req.text)
	}
	if !hit {
		matches, err = e.checker(ctx, req.text, lang)
		if err == nil && e.cache != nil {
			e.cache.Put(ctx, lang, req.text, matches)
		}
	}
	e.settle(req, matches, err)
}

// settle applies one response. A failed request leaves the region's prior
// annotations untouched; a response superseded by a document swap or, for
// whole-document chunks, by any interim edit is discarded. Incremental
// responses re-anchor at the checked block's current position, so edits
// elsewhere in the document never invalidate them.
func (e *Engine) settle(req request, matches []annotation.Match, err error) {
	var from, to int
	applied := false

	e.mu.Lock()
	e.inflight--
	idle := e.inflight == 0
	stale := e.closed || req.gen != e.generation

	if !stale {
		switch {
		case err != nil:
			e.logger.Warn("proofwatch: check failed", "error", err)
		case req.pass != nil:
			if req.editSeq == e.editSeq {
				from = req.from
				to = from + utf8.RuneCountInString(req.text)
				e.overlay.Patch(from, to, matches, from)
				applied = true
			} else {
				e.logger.Debug("proofwatch: full-pass chunk superseded by edit", "from", req.from)
			}
		default:
			if _, pos, ok := e.doc.FindByID(req.nodeID); ok {
				from = pos + req.relFrom
				to = from + utf8.RuneCountInString(req.text)
				e.overlay.Patch(from, to, matches, from)
				applied = true
			} else {
				e.logger.Debug("proofwatch: checked block no longer in document")
			}
		}
		if req.pass != nil {
			req.pass.resolved++
			if req.pass.resolved == req.pass.total && req.editSeq == e.editSeq {
				e.firstPassDone = true
			}
		}
	}

	activeCleared := applied && e.reconcileActiveLocked()
	e.bumpLocked()
	e.mu.Unlock()

	if applied {
		e.notify.AnnotationsUpdated(from, to)
	}
	if activeCleared {
		e.notify.ActiveChanged(nil)
	}
	if idle {
		e.notify.LoadingChanged(false)
	}
}

// CheckText proofreads a standalone text through the engine's checker and
// cache without touching the overlay.
func (e *Engine) CheckText(ctx context.Context, text string) ([]annotation.Match, error) {
	lang := e.cfg.Language
	if e.cache != nil {
		if matches, ok := e.cache.Lookup(ctx, lang, text); ok {
			return matches, nil
		}
	}
	matches, err := e.checker(ctx, text, lang)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Put(ctx, lang, text, matches)
	}
	return matches, nil
}

// Document returns the current document tree.
func (e *Engine) Document() *doctree.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc
}

// Annotations returns every annotation, ordered by position.
func (e *Engine) Annotations() []annotation.Annotation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.overlay.All()
}

// AnnotationsInRange returns the annotations intersecting [from,to).
func (e *Engine) AnnotationsInRange(from, to int) []annotation.Annotation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.overlay.InRange(from, to)
}

// AnnotationAt returns the annotation covering pos, if any.
func (e *Engine) AnnotationAt(pos int) (annotation.Annotation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.overlay.At(pos)
}

// Loading reports whether any check request is in flight.
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight > 0
}

// Status is a snapshot of engine progress.
type Status struct {
	Loading       bool `json:"loading"`
	FirstPassDone bool `json:"first_pass_done"`
	Annotations   int  `json:"annotations"`
	DocumentSize  int  `json:"document_size"`
	PendingChecks int  `json:"pending_checks"`
}

// Status reports the engine's progress for monitoring surfaces.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Status{
		Loading:       e.inflight > 0,
		FirstPassDone: e.firstPassDone,
		Annotations:   e.overlay.Len(),
		PendingChecks: len(e.pendingNodes),
	}
	if e.pendingDoc {
		s.PendingChecks++
	}
	if e.doc != nil {
		s.DocumentSize = e.doc.ContentSize()
	}
	return s
}

// Wait blocks until the engine is idle: no pending debounce timers and no
// in-flight requests.
func (e *Engine) Wait(ctx context.Context) error {
	for {
		e.mu.Lock()
		idle := e.inflight == 0 && !e.pendingDoc && len(e.pendingNodes) == 0
		ch := e.stateCh
		e.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Stop cancels pending timers and in-flight requests and closes the cache.
// The engine cannot be restarted.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.docTimer.Stop()
	e.pendingDoc = false
	e.nodeTimer.Stop()
	clear(e.pendingNodes)
	e.bumpLocked()
	e.mu.Unlock()

	e.cancel()
	if e.cache != nil {
		e.cache.Close()
	}
}

// reconcileActiveLocked clears the active annotation if it no longer exists.
func (e *Engine) reconcileActiveLocked() bool {
	if e.active == uuid.Nil {
		return false
	}
	if _, ok := e.overlay.ByID(e.active); ok {
		return false
	}
	e.active = uuid.Nil
	return true
}

// bumpLocked wakes Wait callers after a state change.
func (e *Engine) bumpLocked() {
	close(e.stateCh)
	e.stateCh = make(chan struct{})
}
