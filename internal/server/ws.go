package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/laudoscribe/laudoscribe/internal/catalog"
	"github.com/laudoscribe/laudoscribe/internal/report"
)

// TemplateSource resolves template IDs for the load_template operation.
// Implemented by [catalog.Store].
type TemplateSource interface {
	Template(ctx context.Context, id string) (report.Template, error)
}

// TemplateSearcher finds templates by free-text description. Implemented by
// [catalog.Store] when an embeddings provider is configured.
type TemplateSearcher interface {
	SearchTemplates(ctx context.Context, query string, topK int) ([]catalog.TemplateMatch, error)
}

// TemplateMatchView is one semantic search hit sent to the client.
type TemplateMatchView struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}

// clientMessage is a JSON control message from the browser. Type selects the
// operation; the remaining fields are read per operation. Binary WebSocket
// frames carry raw PCM audio instead and never use this envelope.
type clientMessage struct {
	Type       string `json:"type"`
	TemplateID string `json:"template_id,omitempty"`
	Keyword    string `json:"keyword,omitempty"`
	Find       string `json:"find,omitempty"`
	Replace    string `json:"replace,omitempty"`
	All        bool   `json:"all,omitempty"`
	Text       string `json:"text,omitempty"`
	Query      string `json:"query,omitempty"`
	TopK       int    `json:"top_k,omitempty"`
}

// serverMessage is a JSON message to the browser: session events, state
// snapshots, and operation errors.
type serverMessage struct {
	Type     string              `json:"type"`
	Text     string              `json:"text,omitempty"`
	Keyword  string              `json:"keyword,omitempty"`
	Score    float64             `json:"score,omitempty"`
	Inserted *bool               `json:"inserted,omitempty"`
	Applied  *bool               `json:"applied,omitempty"`
	Matches  []TemplateMatchView `json:"matches,omitempty"`
	State    *StateView          `json:"state,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// wsHandler upgrades /v1/session requests to WebSocket and runs one dictation
// session per connection.
type wsHandler struct {
	manager   *Manager
	templates TemplateSource   // nil when no catalog is configured
	search    TemplateSearcher // nil when semantic search is disabled
}

func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The browser client is served from arbitrary origins during
		// development; session access is controlled upstream.
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session terminated")

	ctx := r.Context()
	sess, err := h.manager.Open(ctx)
	if err != nil {
		slog.Error("session open failed", "error", err)
		conn.Close(websocket.StatusInternalError, "session open failed")
		return
	}

	// Greet with the initial (empty) state so the client can render.
	if err := writeMessage(ctx, conn, serverMessage{Type: "state", State: stateOf(sess)}); err != nil {
		_ = h.manager.CloseSession(context.WithoutCancel(ctx), sess.ID())
		return
	}

	g, gctx := errgroup.WithContext(ctx)

	// Writer: forward session events until the event channel closes. After a
	// write failure the channel is still drained so commit goroutines never
	// block on a full buffer during teardown.
	g.Go(func() error {
		var writeErr error
		for ev := range sess.Events() {
			if writeErr != nil {
				continue
			}
			writeErr = writeMessage(gctx, conn, eventMessage(ev))
		}
		return writeErr
	})

	// Reader: binary frames feed the STT stream, text frames are control
	// messages. Closing the session closes the event channel, which in turn
	// releases the writer.
	g.Go(func() error {
		defer func() {
			if err := h.manager.CloseSession(context.WithoutCancel(gctx), sess.ID()); err != nil {
				slog.Warn("session close failed", "session_id", sess.ID(), "error", err)
			}
		}()
		return h.readLoop(gctx, conn, sess)
	})

	err = g.Wait()
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
		conn.Close(websocket.StatusNormalClosure, "session closed")
	default:
		slog.Warn("session connection error", "session_id", sess.ID(), "error", err)
	}
}

// readLoop consumes frames until the client disconnects or ctx is done.
func (h *wsHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *DictationSession) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if typ == websocket.MessageBinary {
			if err := sess.SendAudio(data); err != nil {
				// Audio before start_recording is dropped, not fatal.
				slog.Debug("audio frame dropped", "session_id", sess.ID(), "error", err)
			}
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if werr := writeMessage(ctx, conn, errorMessage(fmt.Errorf("invalid message: %w", err))); werr != nil {
				return werr
			}
			continue
		}

		resp := h.handle(ctx, sess, msg)
		if resp != nil {
			if err := writeMessage(ctx, conn, *resp); err != nil {
				return err
			}
		}
	}
}

// handle executes one control message and returns the direct response, if
// any. Session events (partials, commits, suggestions) flow through the event
// channel instead.
func (h *wsHandler) handle(ctx context.Context, sess *DictationSession, msg clientMessage) *serverMessage {
	switch msg.Type {
	case "start_recording":
		if err := sess.StartRecording(ctx); err != nil {
			return errorMessagePtr(err)
		}
		return &serverMessage{Type: "recording_started"}

	case "stop_recording":
		if err := sess.StopRecording(); err != nil {
			return errorMessagePtr(err)
		}
		return &serverMessage{Type: "recording_stopped"}

	case "load_template":
		if h.templates == nil {
			return errorMessagePtr(errors.New("no template catalog configured"))
		}
		tpl, err := h.templates.Template(ctx, msg.TemplateID)
		if err != nil {
			return errorMessagePtr(err)
		}
		sess.LoadTemplate(tpl)
		return &serverMessage{Type: "state", State: stateOf(sess)}

	case "insert_autotext":
		inserted := sess.InsertAutoText(ctx, msg.Keyword)
		return &serverMessage{Type: "autotext_result", Keyword: msg.Keyword, Inserted: &inserted}

	case "apply_keywords":
		applied := sess.ApplyKeywordReplacements(msg.TemplateID)
		return &serverMessage{Type: "keywords_result", Applied: &applied, State: stateOf(sess)}

	case "find_replace":
		sess.FindAndReplace(msg.Find, msg.Replace, msg.All)
		return &serverMessage{Type: "state", State: stateOf(sess)}

	case "restructure":
		if err := sess.Restructure(ctx); err != nil {
			return errorMessagePtr(err)
		}
		return &serverMessage{Type: "state", State: stateOf(sess)}

	case "append_text":
		sess.AppendText(msg.Text)
		return &serverMessage{Type: "state", State: stateOf(sess)}

	case "search_templates":
		if h.search == nil {
			return errorMessagePtr(errors.New("semantic template search is not enabled"))
		}
		topK := msg.TopK
		if topK <= 0 {
			topK = 5
		}
		matches, err := h.search.SearchTemplates(ctx, msg.Query, topK)
		if err != nil {
			return errorMessagePtr(err)
		}
		views := make([]TemplateMatchView, 0, len(matches))
		for _, m := range matches {
			views = append(views, TemplateMatchView{ID: m.Template.ID, Name: m.Template.Name, Distance: m.Distance})
		}
		return &serverMessage{Type: "search_results", Matches: views}

	case "get_state":
		return &serverMessage{Type: "state", State: stateOf(sess)}

	default:
		return errorMessagePtr(fmt.Errorf("unknown message type %q", msg.Type))
	}
}

func stateOf(sess *DictationSession) *StateView {
	st := sess.State()
	return &st
}

func eventMessage(ev Event) serverMessage {
	return serverMessage{
		Type:    string(ev.Type),
		Text:    ev.Text,
		Keyword: ev.Keyword,
		Score:   ev.Score,
	}
}

func errorMessage(err error) serverMessage {
	return serverMessage{Type: "error", Error: err.Error()}
}

func errorMessagePtr(err error) *serverMessage {
	msg := errorMessage(err)
	return &msg
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg serverMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("server: marshal message: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
