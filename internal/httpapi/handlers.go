package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hazyhaar/proofwatch/annotation"
	"github.com/hazyhaar/proofwatch/doctree"
)

// handleCheck proofreads a standalone text without creating a session.
func (s *Service) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, fmt.Errorf("invalid request body"))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, 400, fmt.Errorf("text required"))
		return
	}

	matches, err := s.checker.CheckText(r.Context(), req.Text)
	if err != nil {
		GetLogger(r.Context()).Warn("check failed", "error", err)
		writeError(w, 502, err)
		return
	}
	if matches == nil {
		matches = []annotation.Match{}
	}
	writeJSON(w, 200, map[string]any{
		"language": s.cfg.Language,
		"matches":  matches,
	})
}

// handleCreateDocument opens a session from an editor document.
func (s *Service) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Document json.RawMessage `json:"document"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, fmt.Errorf("invalid request body"))
		return
	}
	if len(req.Document) == 0 {
		writeError(w, 400, fmt.Errorf("document required"))
		return
	}
	doc, err := doctree.ParseJSON(req.Document)
	if err != nil {
		writeError(w, 400, err)
		return
	}

	id, eng, err := s.createSession(doc)
	if err != nil {
		if errors.Is(err, errTooManySessions) {
			writeError(w, 429, err)
			return
		}
		GetLogger(r.Context()).Error("create session", "error", err)
		writeError(w, 500, err)
		return
	}

	GetLogger(r.Context()).Info("session created", "session_id", id, "size", doc.ContentSize())
	writeJSON(w, 201, map[string]any{
		"id":     id,
		"size":   doc.ContentSize(),
		"status": eng.Status(),
	})
}

func (s *Service) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.session(r)
	if !ok {
		writeError(w, 404, fmt.Errorf("session not found"))
		return
	}
	doc := eng.Document()
	writeJSON(w, 200, map[string]any{
		"document": doc,
		"size":     doc.ContentSize(),
	})
}

func (s *Service) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.dropSession(r)
	if !ok {
		writeError(w, 404, fmt.Errorf("session not found"))
		return
	}
	eng.Stop()
	writeJSON(w, 200, map[string]string{"status": "deleted"})
}

// handleCheckNow triggers a whole-document pass, bypassing the debounce.
func (s *Service) handleCheckNow(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.session(r)
	if !ok {
		writeError(w, 404, fmt.Errorf("session not found"))
		return
	}
	eng.CheckNow()
	writeJSON(w, 202, map[string]string{"status": "checking"})
}

// handleTransaction applies a text replacement. The response carries the
// overlay as remapped by the edit, before any re-check lands.
func (s *Service) handleTransaction(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.session(r)
	if !ok {
		writeError(w, 404, fmt.Errorf("session not found"))
		return
	}
	var req struct {
		From   int    `json:"from"`
		To     int    `json:"to"`
		Insert string `json:"insert"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, fmt.Errorf("invalid request body"))
		return
	}
	if err := eng.Edit(req.From, req.To, req.Insert); err != nil {
		writeError(w, 400, err)
		return
	}
	anns := eng.Annotations()
	if anns == nil {
		anns = []annotation.Annotation{}
	}
	writeJSON(w, 200, map[string]any{
		"size":        eng.Document().ContentSize(),
		"annotations": anns,
	})
}

func (s *Service) handleAnnotations(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.session(r)
	if !ok {
		writeError(w, 404, fmt.Errorf("session not found"))
		return
	}
	st := eng.Status()
	from := queryInt(r, "from", 0)
	to := queryInt(r, "to", st.DocumentSize)
	anns := eng.AnnotationsInRange(from, to)
	if anns == nil {
		anns = []annotation.Annotation{}
	}
	writeJSON(w, 200, map[string]any{"annotations": anns})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.session(r)
	if !ok {
		writeError(w, 404, fmt.Errorf("session not found"))
		return
	}
	writeJSON(w, 200, eng.Status())
}

// handlePutSelection activates an annotation by id or by covered position.
func (s *Service) handlePutSelection(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.session(r)
	if !ok {
		writeError(w, 404, fmt.Errorf("session not found"))
		return
	}
	var req struct {
		ID  string `json:"id"`
		Pos *int   `json:"pos"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, fmt.Errorf("invalid request body"))
		return
	}

	switch {
	case req.ID != "":
		id, err := uuid.Parse(req.ID)
		if err != nil {
			writeError(w, 400, fmt.Errorf("invalid annotation id"))
			return
		}
		if !eng.SetActive(id) {
			writeError(w, 404, fmt.Errorf("annotation not found"))
			return
		}
	case req.Pos != nil:
		if !eng.ActivateAt(*req.Pos) {
			writeError(w, 404, fmt.Errorf("no annotation at position"))
			return
		}
	default:
		writeError(w, 400, fmt.Errorf("id or pos required"))
		return
	}

	ann, _ := eng.Active()
	writeJSON(w, 200, ann)
}

func (s *Service) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.session(r)
	if !ok {
		writeError(w, 404, fmt.Errorf("session not found"))
		return
	}
	ann, ok := eng.Active()
	if !ok {
		writeError(w, 404, fmt.Errorf("no active annotation"))
		return
	}
	writeJSON(w, 200, ann)
}

func (s *Service) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.session(r)
	if !ok {
		writeError(w, 404, fmt.Errorf("session not found"))
		return
	}
	eng.ClearActive()
	writeJSON(w, 200, map[string]string{"status": "cleared"})
}
