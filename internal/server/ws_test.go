package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/laudoscribe/laudoscribe/internal/catalog"
	"github.com/laudoscribe/laudoscribe/internal/observe"
	"github.com/laudoscribe/laudoscribe/internal/report"
)

type fakeTemplates struct {
	tpl report.Template
	err error
}

func (f *fakeTemplates) Template(_ context.Context, id string) (report.Template, error) {
	if f.err != nil {
		return report.Template{}, f.err
	}
	if id != f.tpl.ID {
		return report.Template{}, catalog.ErrNotFound
	}
	return f.tpl, nil
}

type fakeSearcher struct {
	matches []catalog.TemplateMatch
	gotK    int
}

func (f *fakeSearcher) SearchTemplates(_ context.Context, _ string, topK int) ([]catalog.TemplateMatch, error) {
	f.gotK = topK
	return f.matches, nil
}

func newHandleTestSession() *DictationSession {
	return newDictationSession("test", SessionConfig{
		Pipeline: report.NewPipeline(),
		Metrics:  observe.DefaultMetrics(),
	})
}

func TestHandle_LoadTemplate(t *testing.T) {
	t.Parallel()

	h := &wsHandler{templates: &fakeTemplates{tpl: report.Template{
		ID:       "rm-joelho",
		Name:     "RM Joelho",
		BaseText: "TÉCNICA: RM do joelho.",
	}}}
	sess := newHandleTestSession()

	resp := h.handle(context.Background(), sess, clientMessage{Type: "load_template", TemplateID: "rm-joelho"})
	if resp == nil || resp.Type != "state" {
		t.Fatalf("response = %+v, want state", resp)
	}
	if resp.State.Buffer != "TÉCNICA: RM do joelho." {
		t.Errorf("buffer = %q, want template base text", resp.State.Buffer)
	}
	if len(resp.State.ActiveTemplates) != 1 || resp.State.ActiveTemplates[0].ID != "rm-joelho" {
		t.Errorf("active templates = %+v, want [rm-joelho]", resp.State.ActiveTemplates)
	}
}

func TestHandle_LoadTemplateUnknownID(t *testing.T) {
	t.Parallel()

	h := &wsHandler{templates: &fakeTemplates{tpl: report.Template{ID: "known"}}}
	sess := newHandleTestSession()

	resp := h.handle(context.Background(), sess, clientMessage{Type: "load_template", TemplateID: "missing"})
	if resp == nil || resp.Type != "error" {
		t.Fatalf("response = %+v, want error", resp)
	}
}

func TestHandle_LoadTemplateWithoutCatalog(t *testing.T) {
	t.Parallel()

	h := &wsHandler{}
	sess := newHandleTestSession()

	resp := h.handle(context.Background(), sess, clientMessage{Type: "load_template", TemplateID: "x"})
	if resp == nil || resp.Type != "error" {
		t.Fatalf("response = %+v, want error when no catalog configured", resp)
	}
}

func TestHandle_AppendTextAndFindReplace(t *testing.T) {
	t.Parallel()

	h := &wsHandler{}
	sess := newHandleTestSession()

	resp := h.handle(context.Background(), sess, clientMessage{Type: "append_text", Text: "Sem derrame."})
	if resp.State.Buffer != "Sem derrame." {
		t.Fatalf("buffer = %q after append_text", resp.State.Buffer)
	}

	resp = h.handle(context.Background(), sess, clientMessage{
		Type: "find_replace", Find: "derrame", Replace: "edema",
	})
	if resp.State.Buffer != "Sem edema." {
		t.Errorf("buffer = %q, want %q", resp.State.Buffer, "Sem edema.")
	}
}

func TestHandle_SearchTemplates(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{matches: []catalog.TemplateMatch{
		{Template: report.Template{ID: "rm-joelho", Name: "RM Joelho"}, Distance: 0.12},
	}}
	h := &wsHandler{search: searcher}
	sess := newHandleTestSession()

	resp := h.handle(context.Background(), sess, clientMessage{Type: "search_templates", Query: "joelho"})
	if resp == nil || resp.Type != "search_results" {
		t.Fatalf("response = %+v, want search_results", resp)
	}
	if searcher.gotK != 5 {
		t.Errorf("topK = %d, want default 5", searcher.gotK)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].ID != "rm-joelho" {
		t.Errorf("matches = %+v, want [rm-joelho]", resp.Matches)
	}
}

func TestHandle_SearchTemplatesDisabled(t *testing.T) {
	t.Parallel()

	h := &wsHandler{}
	sess := newHandleTestSession()

	resp := h.handle(context.Background(), sess, clientMessage{Type: "search_templates", Query: "joelho"})
	if resp == nil || resp.Type != "error" {
		t.Fatalf("response = %+v, want error when search disabled", resp)
	}
}

func TestHandle_UnknownType(t *testing.T) {
	t.Parallel()

	h := &wsHandler{}
	sess := newHandleTestSession()

	resp := h.handle(context.Background(), sess, clientMessage{Type: "bogus"})
	if resp == nil || resp.Type != "error" {
		t.Fatalf("response = %+v, want error for unknown type", resp)
	}
	if !strings.Contains(resp.Error, "bogus") {
		t.Errorf("error = %q, want the unknown type named", resp.Error)
	}
}

// Full round trip over a real WebSocket connection.
func TestWSHandler_SessionRoundTrip(t *testing.T) {
	t.Parallel()

	m := NewManager(SessionConfig{
		Pipeline: report.NewPipeline(),
		Metrics:  observe.DefaultMetrics(),
	})
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	srv := httptest.NewServer(&wsHandler{manager: m})
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	readMsg := func() serverMessage {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Unmarshal %q: %v", data, err)
		}
		return msg
	}
	sendMsg := func(msg clientMessage) {
		t.Helper()
		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	// The server greets with the initial empty state.
	greeting := readMsg()
	if greeting.Type != "state" || greeting.State == nil || greeting.State.Buffer != "" {
		t.Fatalf("greeting = %+v, want empty state", greeting)
	}

	sendMsg(clientMessage{Type: "append_text", Text: "Laudo final."})
	resp := readMsg()
	if resp.Type != "state" || resp.State.Buffer != "Laudo final." {
		t.Errorf("append_text response = %+v, want buffer %q", resp, "Laudo final.")
	}

	sendMsg(clientMessage{Type: "get_state"})
	resp = readMsg()
	if resp.Type != "state" || resp.State.Buffer != "Laudo final." {
		t.Errorf("get_state response = %+v, want buffer %q", resp, "Laudo final.")
	}

	// Closing the connection tears the session down.
	conn.Close(websocket.StatusNormalClosure, "done")
	waitFor(t, func() bool { return m.Len() == 0 })
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

var _ TemplateSource = (*fakeTemplates)(nil)
var _ TemplateSearcher = (*fakeSearcher)(nil)

// The catalog store satisfies both server-side template interfaces.
var _ TemplateSource = (*catalog.Store)(nil)
var _ TemplateSearcher = (*catalog.Store)(nil)

// handle never panics on zero-value messages.
func TestHandle_EmptyMessage(t *testing.T) {
	t.Parallel()

	h := &wsHandler{}
	sess := newHandleTestSession()

	resp := h.handle(context.Background(), sess, clientMessage{})
	if resp == nil || resp.Type != "error" {
		t.Fatalf("response = %+v, want error for empty type", resp)
	}
}

var errBoom = errors.New("boom")

func TestHandle_TemplateSourceError(t *testing.T) {
	t.Parallel()

	h := &wsHandler{templates: &fakeTemplates{err: errBoom}}
	sess := newHandleTestSession()

	resp := h.handle(context.Background(), sess, clientMessage{Type: "load_template", TemplateID: "x"})
	if resp == nil || resp.Type != "error" || !strings.Contains(resp.Error, "boom") {
		t.Fatalf("response = %+v, want propagated error", resp)
	}
}
