package ltclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const checkBody = `{
	"software": {"name": "LanguageTool", "version": "6.4"},
	"warnings": {"incompleteResults": false},
	"language": {"name": "English (US)", "code": "en-US",
		"detectedLanguage": {"name": "English (US)", "code": "en-US"}},
	"matches": [
		{
			"message": "Possible spelling mistake found.",
			"shortMessage": "Spelling mistake",
			"offset": 0,
			"length": 4,
			"replacements": [{"value": "Hello"}, {"value": "Help"}],
			"context": {"text": "Helo world.", "offset": 0, "length": 4},
			"sentence": "Helo world.",
			"rule": {
				"id": "MORFOLOGIK_RULE_EN_US",
				"description": "Possible spelling mistake",
				"issueType": "misspelling",
				"category": {"id": "TYPOS", "name": "Possible Typo"}
			}
		}
	]
}`

func TestCheckSubmitsForm(t *testing.T) {
	var gotPath string
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = map[string]string{
			"text":        r.PostFormValue("text"),
			"language":    r.PostFormValue("language"),
			"enabledOnly": r.PostFormValue("enabledOnly"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(checkBody))
	}))
	defer srv.Close()

	c := New(srv.URL)
	matches, err := c.Check(context.Background(), "Helo world.", "en-US")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	if gotPath != "/check" {
		t.Errorf("path = %q, want /check", gotPath)
	}
	if gotForm["text"] != "Helo world." {
		t.Errorf("text = %q", gotForm["text"])
	}
	if gotForm["language"] != "en-US" {
		t.Errorf("language = %q", gotForm["language"])
	}
	if gotForm["enabledOnly"] != "false" {
		t.Errorf("enabledOnly = %q", gotForm["enabledOnly"])
	}

	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	m := matches[0]
	if m.Offset != 0 || m.Length != 4 {
		t.Errorf("match span = (%d,%d), want (0,4)", m.Offset, m.Length)
	}
	if m.Rule.ID != "MORFOLOGIK_RULE_EN_US" {
		t.Errorf("rule id = %q", m.Rule.ID)
	}
	if m.Rule.IssueType != "misspelling" {
		t.Errorf("issue type = %q", m.Rule.IssueType)
	}
	if len(m.Replacements) != 2 || m.Replacements[0].Value != "Hello" {
		t.Errorf("replacements = %+v", m.Replacements)
	}
	if m.Context.Text != "Helo world." {
		t.Errorf("context = %+v", m.Context)
	}
}

func TestCheckDefaultsLanguageToAuto(t *testing.T) {
	var gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLang = r.PostFormValue("language")
		w.Write([]byte(`{"matches": []}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Check(context.Background(), "fine text", ""); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if gotLang != "auto" {
		t.Errorf("language = %q, want auto", gotLang)
	}
}

func TestCheckDropsOutOfBoundsMatches(t *testing.T) {
	// The checked text is 5 runes long; only the first match fits.
	body := `{"matches": [
		{"message": "ok", "offset": 1, "length": 3, "rule": {"id": "A"}},
		{"message": "past end", "offset": 3, "length": 9, "rule": {"id": "B"}},
		{"message": "negative", "offset": -1, "length": 2, "rule": {"id": "C"}},
		{"message": "empty", "offset": 2, "length": 0, "rule": {"id": "D"}}
	]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c := New(srv.URL)
	matches, err := c.Check(context.Background(), "héllo", "en-US")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1: %+v", len(matches), matches)
	}
	if matches[0].Rule.ID != "A" {
		t.Errorf("kept rule %q, want A", matches[0].Rule.ID)
	}
}

func TestCheckMultibyteBounds(t *testing.T) {
	// "héllo wörld" is 11 runes but more bytes; a match covering the whole
	// rune range must survive validation.
	body := `{"matches": [{"message": "m", "offset": 6, "length": 5, "rule": {"id": "A"}}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c := New(srv.URL)
	matches, err := c.Check(context.Background(), "héllo wörld", "en-US")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
}

func TestCheckErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "text too long", http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Check(context.Background(), "some text", "en-US")
	if err == nil {
		t.Fatal("expected error for 413 response")
	}
	if !strings.Contains(err.Error(), "413") {
		t.Errorf("error = %v, want status code in message", err)
	}
	if !strings.Contains(err.Error(), "text too long") {
		t.Errorf("error = %v, want body snippet in message", err)
	}
}

func TestCheckMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"matches": [`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Check(context.Background(), "some text", "en-US"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestCheckContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background read and can
		// notice the client disconnect; otherwise r.Context() is never
		// canceled and srv.Close deadlocks waiting on this handler.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	c := New(srv.URL)
	if _, err := c.Check(ctx, "some text", "en-US"); err == nil {
		t.Fatal("expected context error")
	}
}

func TestRateLimitDelaysSecondRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"matches": []}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRateLimit(20, 1))
	ctx := context.Background()
	if _, err := c.Check(ctx, "a", "en-US"); err != nil {
		t.Fatalf("first Check: %v", err)
	}
	start := time.Now()
	if _, err := c.Check(ctx, "b", "en-US"); err != nil {
		t.Fatalf("second Check: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("second request after %v, want >= 30ms of throttling", elapsed)
	}
}

func TestLanguages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/languages" {
			t.Errorf("path = %q, want /languages", r.URL.Path)
		}
		w.Write([]byte(`[
			{"name": "English (US)", "code": "en", "longCode": "en-US"},
			{"name": "German", "code": "de", "longCode": "de-DE"}
		]`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	langs, err := c.Languages(context.Background())
	if err != nil {
		t.Fatalf("Languages: %v", err)
	}
	if len(langs) != 2 {
		t.Fatalf("got %d languages, want 2", len(langs))
	}
	if langs[0].LongCode != "en-US" {
		t.Errorf("long code = %q, want en-US", langs[0].LongCode)
	}
}

func TestReadLimitedRejectsOversize(t *testing.T) {
	if _, err := readLimited(strings.NewReader("abcdef"), 4); err == nil {
		t.Fatal("expected oversize error")
	}
	data, err := readLimited(strings.NewReader("abcd"), 4)
	if err != nil {
		t.Fatalf("readLimited: %v", err)
	}
	if string(data) != "abcd" {
		t.Errorf("data = %q", data)
	}
}

func TestNewTrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:8081/v2/")
	if c.base != "http://localhost:8081/v2" {
		t.Errorf("base = %q", c.base)
	}
}

type countingTransport struct {
	calls int
	next  http.RoundTripper
}

func (ct *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	ct.calls++
	return ct.next.RoundTrip(r)
}

func TestWithHTTPClientIsUsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(checkBody))
	}))
	defer srv.Close()

	ct := &countingTransport{next: http.DefaultTransport}
	c := New(srv.URL, WithHTTPClient(&http.Client{Transport: ct}))
	if _, err := c.Check(context.Background(), "Helo world.", "en-US"); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if ct.calls != 1 {
		t.Errorf("injected client saw %d requests, want 1", ct.calls)
	}
}
