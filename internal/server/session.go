// Package server hosts the Laudoscribe HTTP surface: the dictation session
// WebSocket, health endpoints, and the Prometheus metrics endpoint.
//
// A dictation session pairs one browser connection with one report buffer.
// Audio frames stream in, committed transcripts come back transformed by the
// text pipeline, and JSON control messages drive template loading, auto-texts,
// keyword replacements, find/replace, and LLM restructuring.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/laudoscribe/laudoscribe/internal/observe"
	"github.com/laudoscribe/laudoscribe/internal/report"
	"github.com/laudoscribe/laudoscribe/internal/report/restructure"
	"github.com/laudoscribe/laudoscribe/pkg/provider/stt"
)

// eventBuffer is the per-session event channel capacity. Sized to absorb
// bursts of interim transcripts without blocking the STT reader.
const eventBuffer = 64

// EventType discriminates session events delivered to the client.
type EventType string

const (
	// EventPartial carries an interim transcript for live display. Partials
	// are never committed to the report buffer.
	EventPartial EventType = "partial"

	// EventCommitted carries a final transcript chunk after pipeline
	// transformation, already appended to the report buffer.
	EventCommitted EventType = "committed"

	// EventSuggestion carries the closest known auto-text keyword after a
	// spoken keyword missed every exact match.
	EventSuggestion EventType = "suggestion"
)

// Event is a server-initiated session notification.
type Event struct {
	Type    EventType
	Text    string
	Keyword string
	Score   float64
}

// TemplateRef identifies an active template in a state snapshot.
type TemplateRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StateView is a point-in-time snapshot of the session state sent to the client.
type StateView struct {
	Buffer           string                 `json:"buffer"`
	Original         string                 `json:"original"`
	SidebarMinimized bool                   `json:"sidebar_minimized"`
	ActiveTemplates  []TemplateRef          `json:"active_templates"`
	AutoTexts        []report.AutoTextGroup `json:"auto_texts"`
	Recording        bool                   `json:"recording"`
}

// DictationSession is one live dictation session: a report buffer plus an
// optional STT stream feeding it. All mutations of the report state go through
// the session mutex, so committed chunks and user actions interleave in a
// single serialized order.
type DictationSession struct {
	id           string
	pipeline     *report.Pipeline
	suggester    *report.KeywordSuggester
	sttProvider  stt.Provider
	sttName      string
	streamCfg    stt.StreamConfig
	restructurer *restructure.Restructurer
	stylePrefs   string
	metrics      *observe.Metrics

	mu     sync.Mutex
	report *report.Session
	stream stt.SessionHandle // non-nil while recording
	g      *errgroup.Group
	closed bool

	events chan Event
}

// SessionConfig holds the dependencies for a [DictationSession].
type SessionConfig struct {
	// Pipeline transforms every committed transcript chunk. Required.
	Pipeline *report.Pipeline

	// STT streams dictated audio. Optional; without it the session only
	// accepts typed text.
	STT stt.Provider

	// STTName is the configured provider name, used in metrics attributes.
	STTName string

	// StreamConfig is passed to the STT provider when recording starts.
	StreamConfig stt.StreamConfig

	// Restructurer adapts finished reports to templates. Optional.
	Restructurer *restructure.Restructurer

	// StylePreferences is free text forwarded with every restructure request.
	StylePreferences string

	// RawFindPatterns treats replace-all find strings as raw regular
	// expressions.
	RawFindPatterns bool

	// Metrics receives session instrumentation. Required.
	Metrics *observe.Metrics
}

// newDictationSession builds a session around a fresh report buffer.
func newDictationSession(id string, cfg SessionConfig) *DictationSession {
	var sessOpts []report.SessionOption
	if cfg.RawFindPatterns {
		sessOpts = append(sessOpts, report.WithRawFindPatterns())
	}
	return &DictationSession{
		id:           id,
		pipeline:     cfg.Pipeline,
		suggester:    report.NewKeywordSuggester(),
		sttProvider:  cfg.STT,
		sttName:      cfg.STTName,
		streamCfg:    cfg.StreamConfig,
		restructurer: cfg.Restructurer,
		stylePrefs:   cfg.StylePreferences,
		metrics:      cfg.Metrics,
		report:       report.NewSession(sessOpts...),
		events:       make(chan Event, eventBuffer),
	}
}

// ID returns the session identifier.
func (s *DictationSession) ID() string { return s.id }

// Events returns the channel of server-initiated notifications (partials,
// committed chunks, suggestions). The channel is closed by [DictationSession.Close].
func (s *DictationSession) Events() <-chan Event { return s.events }

// StartRecording opens an STT stream and begins committing final transcripts
// to the report buffer in arrival order. Interim transcripts are forwarded as
// [EventPartial] events without touching the buffer.
//
// Returns an error if recording is already in progress or no STT provider is
// configured.
func (s *DictationSession) StartRecording(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return errors.New("server: recording already in progress")
	}
	if s.sttProvider == nil {
		return errors.New("server: no stt provider configured")
	}

	stream, err := s.sttProvider.StartStream(ctx, s.streamCfg)
	if err != nil {
		s.metrics.RecordProviderError(ctx, s.sttName, "stt")
		return fmt.Errorf("server: start stt stream: %w", err)
	}

	s.stream = stream
	s.g = &errgroup.Group{}

	// Interim transcripts: display only, never committed.
	s.g.Go(func() error {
		for tr := range stream.Partials() {
			s.emit(Event{Type: EventPartial, Text: tr.Text})
		}
		return nil
	})

	// Final transcripts: transform and commit in arrival order.
	s.g.Go(func() error {
		for tr := range stream.Finals() {
			s.commit(ctx, tr)
		}
		return nil
	})

	return nil
}

// commit runs one final transcript chunk through the pipeline and appends it
// to the report buffer.
func (s *DictationSession) commit(ctx context.Context, tr stt.Transcript) {
	start := time.Now()
	transformed := s.pipeline.Apply(tr.Text)
	s.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())

	s.mu.Lock()
	s.report.AppendTranscript(transformed)
	s.report.AppendOriginal(tr.Text)
	s.mu.Unlock()

	if tr.Duration > 0 {
		s.metrics.TranscriptionDuration.Record(ctx, tr.Duration.Seconds())
	}
	s.metrics.RecordChunkCommitted(ctx, s.sttName)

	s.emit(Event{Type: EventCommitted, Text: transformed})
}

// emit delivers ev to the event channel unless the session is already closed.
// The send happens under the session mutex so it cannot race with
// [DictationSession.Close] closing the channel: control messages can still
// arrive on a hijacked WebSocket connection after a server shutdown has torn
// the session down, and their events must be dropped, not sent.
func (s *DictationSession) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

// SendAudio forwards a binary PCM frame to the active STT stream.
// Returns an error when recording is not in progress.
func (s *DictationSession) SendAudio(chunk []byte) error {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()

	if stream == nil {
		return errors.New("server: not recording")
	}
	return stream.SendAudio(chunk)
}

// StopRecording closes the STT stream and waits for in-flight transcripts to
// commit. Chunks already committed stay in the buffer; nothing is rolled back.
// Stopping when not recording is a no-op.
func (s *DictationSession) StopRecording() error {
	s.mu.Lock()
	stream := s.stream
	g := s.g
	s.stream = nil
	s.g = nil
	s.mu.Unlock()

	if stream == nil {
		return nil
	}

	err := stream.Close()
	if g != nil {
		// Channels close after the provider drains; both loops then exit.
		_ = g.Wait()
	}
	if err != nil {
		return fmt.Errorf("server: close stt stream: %w", err)
	}
	return nil
}

// Recording reports whether an STT stream is currently open.
func (s *DictationSession) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// LoadTemplate loads tpl into the report buffer (replace when empty, append
// otherwise) and registers it in the active template set.
func (s *DictationSession) LoadTemplate(tpl report.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.LoadTemplate(tpl)
}

// AppendText appends typed text to the report buffer without pipeline
// transformation. The text is taken as already formatted by the clinician.
func (s *DictationSession) AppendText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.AppendTranscript(text)
}

// InsertAutoText inserts the auto-text registered under keyword across the
// active templates. On an exact miss the buffer is untouched and, when a
// close-sounding keyword exists, an [EventSuggestion] is emitted so the client
// can offer it.
func (s *DictationSession) InsertAutoText(ctx context.Context, keyword string) bool {
	s.mu.Lock()
	inserted := s.report.InsertAutoText(keyword)
	var known []string
	if !inserted {
		for _, tpl := range s.report.ActiveTemplates() {
			for _, at := range tpl.AutoTexts {
				known = append(known, at.Keyword)
			}
		}
	}
	s.mu.Unlock()

	s.metrics.RecordAutoTextInsertion(ctx, inserted)

	if !inserted && len(known) > 0 {
		if match, score, ok := s.suggester.Suggest(keyword, known); ok {
			s.emit(Event{Type: EventSuggestion, Keyword: match, Score: score})
		}
	}
	return inserted
}

// ApplyKeywordReplacements canonicalizes the buffer with the keyword
// replacement pairs of the identified active template. Returns false when the
// template is not active.
func (s *DictationSession) ApplyKeywordReplacements(templateID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report.ApplyKeywordReplacements(templateID)
}

// FindAndReplace performs a manual find/replace on the report buffer.
func (s *DictationSession) FindAndReplace(find, replace string, all bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.FindAndReplace(find, replace, all)
}

// Restructure sends the current buffer to the LLM restructurer using the
// first active template as the target format, sanitizes the result, and
// replaces the buffer with it wholesale.
//
// Returns an error when no restructurer is configured, no template is active,
// or the provider call fails (the buffer is left untouched on failure).
func (s *DictationSession) Restructure(ctx context.Context) error {
	if s.restructurer == nil {
		return errors.New("server: no llm provider configured")
	}

	s.mu.Lock()
	buffer := s.report.Buffer()
	active := s.report.ActiveTemplates()
	s.mu.Unlock()

	if len(active) == 0 {
		return errors.New("server: no active template to restructure against")
	}
	tpl := active[0]

	start := time.Now()
	result, err := s.restructurer.Restructure(ctx, restructure.Request{
		Transcription:    buffer,
		TemplateName:     tpl.Name,
		TemplateBaseText: tpl.BaseText,
		StylePreferences: s.stylePrefs,
	})
	s.metrics.RestructureDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, "llm", "restructure")
		return fmt.Errorf("server: restructure: %w", err)
	}
	s.metrics.SanitizerRuns.Add(ctx, 1)

	s.mu.Lock()
	s.report.ReplaceWithRestructured(result)
	s.mu.Unlock()
	return nil
}

// State returns a snapshot of the session for the client.
func (s *DictationSession) State() StateView {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.report.ActiveTemplates()
	refs := make([]TemplateRef, 0, len(active))
	for _, tpl := range active {
		refs = append(refs, TemplateRef{ID: tpl.ID, Name: tpl.Name})
	}

	return StateView{
		Buffer:           s.report.Buffer(),
		Original:         s.report.Original(),
		SidebarMinimized: s.report.SidebarMinimized(),
		ActiveTemplates:  refs,
		AutoTexts:        s.report.AutoTextView(),
		Recording:        s.stream != nil,
	}
}

// Close stops any active recording and closes the event channel. Operations
// invoked afterwards leave the buffer alone or act on dead state; their events
// are silently dropped. Closing twice is a no-op.
func (s *DictationSession) Close() error {
	err := s.StopRecording()

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()
	return err
}
