package report

import (
	"regexp"
	"strings"
)

// templateSeparator is inserted between the existing report text and a
// newly appended template's base text.
const templateSeparator = "\n\n---\n\n"

// Session holds the mutable state of one report editing session: the report
// buffer, the original-transcription side buffer, and the ordered set of
// active templates. It is designed for cooperative single-flow mutation;
// only one logical writer runs at a time (live dictation or an LLM
// replacement, never both), so the session carries no locking.
type Session struct {
	buffer           string
	original         string
	active           []Template
	sidebarMinimized bool
	rawFindPatterns  bool
}

// SessionOption configures a [Session].
type SessionOption func(*Session)

// WithRawFindPatterns makes FindAndReplace in replace-all mode compile the
// find string as a regular expression instead of escaping it as literal
// text.
func WithRawFindPatterns() SessionOption {
	return func(s *Session) {
		s.rawFindPatterns = true
	}
}

// NewSession creates an empty editing session.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Buffer returns the current report text.
func (s *Session) Buffer() string {
	return s.buffer
}

// SetBuffer replaces the report text wholesale. Used for manual edits
// synced from the editor.
func (s *Session) SetBuffer(text string) {
	s.buffer = text
}

// Original returns the accumulated raw transcription, before any pipeline
// transformation. Kept so the clinician can audit what was actually said.
func (s *Session) Original() string {
	return s.original
}

// SidebarMinimized reports whether loading a template minimized the
// template sidebar. UI-observable session state, no textual effect.
func (s *Session) SidebarMinimized() bool {
	return s.sidebarMinimized
}

// ActiveTemplates returns the templates currently contributing to the
// report buffer, in selection order.
func (s *Session) ActiveTemplates() []Template {
	return s.active
}

// LoadTemplate merges a template's base text into the report buffer.
//
// Two policies apply. When the buffer is empty (whitespace-only counts) or
// no template is active, the base text replaces the buffer, the
// original-transcription side buffer is cleared, the active set becomes
// this single template, and the sidebar is minimized. Otherwise the
// separator plus base text is appended to the buffer.
//
// The active set and the buffer follow independent contracts: set
// membership is idempotent by template ID, but the buffer append happens on
// every load action, including re-selecting an already-active template.
// Loading the same template twice against a non-empty buffer appends its
// base text twice; that is the literal meaning of the user action, not a
// toggle.
func (s *Session) LoadTemplate(tpl Template) {
	if strings.TrimSpace(s.buffer) == "" || len(s.active) == 0 {
		s.buffer = tpl.BaseText
		s.original = ""
		s.active = []Template{tpl}
		s.sidebarMinimized = true
		return
	}
	s.buffer += templateSeparator + tpl.BaseText
	s.addActive(tpl)
}

// addActive adds tpl to the active set unless a template with the same ID
// is already present.
func (s *Session) addActive(tpl Template) {
	for _, active := range s.active {
		if active.ID == tpl.ID {
			return
		}
	}
	s.active = append(s.active, tpl)
}

// AppendTranscript appends one pipeline-transformed transcript chunk to the
// report buffer, separated from existing content by a single space.
func (s *Session) AppendTranscript(text string) {
	if text == "" {
		return
	}
	if s.buffer == "" {
		s.buffer = text
		return
	}
	s.buffer += " " + text
}

// AppendOriginal accumulates the raw, untransformed transcript chunk in the
// original-transcription side buffer.
func (s *Session) AppendOriginal(text string) {
	if text == "" {
		return
	}
	if s.original == "" {
		s.original = text
		return
	}
	s.original += " " + text
}

// InsertAutoText looks up keyword case-insensitively across the active
// templates' auto-texts, in template selection order, and appends the
// matching phrase to the buffer prefixed with a single space. A miss is a
// soft no-op and returns false; keywords are suggestions surfaced to the
// user, not a required mapping.
func (s *Session) InsertAutoText(keyword string) bool {
	for _, tpl := range s.active {
		for _, at := range tpl.AutoTexts {
			if strings.EqualFold(at.Keyword, keyword) {
				s.buffer += " " + at.Text
				return true
			}
		}
	}
	return false
}

// AutoTextGroup is one active template's auto-texts, for the grouped union
// view shown when several templates are active.
type AutoTextGroup struct {
	TemplateID   string
	TemplateName string
	AutoTexts    []AutoText
}

// AutoTextView returns the auto-texts of every active template, grouped by
// source template in selection order. Keywords stay scoped to their
// template; two templates may define the same keyword without conflict.
func (s *Session) AutoTextView() []AutoTextGroup {
	groups := make([]AutoTextGroup, 0, len(s.active))
	for _, tpl := range s.active {
		groups = append(groups, AutoTextGroup{
			TemplateID:   tpl.ID,
			TemplateName: tpl.Name,
			AutoTexts:    tpl.AutoTexts,
		})
	}
	return groups
}

// ApplyKeywordReplacements rewrites the report buffer with the keyword
// replacements of the active template identified by templateID, whole-word
// and case-insensitive, in the order the template lists them. Returns false
// when no active template has that ID.
func (s *Session) ApplyKeywordReplacements(templateID string) bool {
	for _, tpl := range s.active {
		if tpl.ID != templateID {
			continue
		}
		for _, kr := range tpl.KeywordReplacements {
			s.buffer = wholeWordReplace(s.buffer, kr.From, kr.To, true)
		}
		return true
	}
	return false
}

// FindAndReplace edits the report buffer directly. With all false it
// replaces the first literal occurrence of find, case-sensitively. With all
// true it replaces every case-insensitive occurrence; find is escaped as
// literal text unless the session was created with [WithRawFindPatterns].
// No word boundary applies in either mode; this is a manual substring tool,
// unlike the rule engines.
func (s *Session) FindAndReplace(find, replace string, all bool) {
	if find == "" {
		return
	}
	if !all {
		idx := strings.Index(s.buffer, find)
		if idx < 0 {
			return
		}
		s.buffer = s.buffer[:idx] + replace + s.buffer[idx+len(find):]
		return
	}
	pattern := find
	if !s.rawFindPatterns {
		pattern = regexp.QuoteMeta(find)
	}
	re, err := regexp.Compile(`(?i)` + pattern)
	if err != nil {
		return
	}
	s.buffer = re.ReplaceAllString(s.buffer, escapeReplacement(replace, !s.rawFindPatterns))
}

// ReplaceWithRestructured sanitizes LLM-restructured text and installs it
// as the new report buffer, replacing previous content wholesale.
func (s *Session) ReplaceWithRestructured(text string) {
	s.buffer = SanitizeRestructured(text)
}
