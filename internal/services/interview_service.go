// Package services – InterviewService
//
// This file implements InterviewService, the composition root of the message
// pipeline. It owns the full processMessage flow — session resolution,
// message persistence, conversation-history assembly, the completion call,
// response persistence, and theme accumulation — and exposes read paths for
// session aggregates and per-session theme summaries.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// session/message identifiers.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/probelab/go-interview-backend/internal/cache"
	"github.com/probelab/go-interview-backend/internal/domain"
	"github.com/probelab/go-interview-backend/internal/llm"
	"github.com/probelab/go-interview-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// cache blob kinds
const (
	cacheKindView   = "view"
	cacheKindThemes = "themes"
)

// ProcessResult is the aggregate returned by ProcessMessage: the persisted
// message, the raw completion result, the owning session, and the full
// updated theme list for that session.
type ProcessResult struct {
	Message  *domain.Message `json:"message"`
	Response *llm.Result     `json:"response"`
	Session  *domain.Session `json:"session"`
	Themes   []domain.Theme  `json:"themes"`
}

// SessionView is the aggregate returned by GetSession.
type SessionView struct {
	Session   *domain.Session   `json:"session"`
	Messages  []domain.Message  `json:"messages"`
	Responses []domain.Response `json:"responses"`
	Themes    []domain.Theme    `json:"themes"`
}

// ThemeSummary is one entry of the per-session theme report: a tag with its
// occurrence count, mean confidence, and first/last sighting.
type ThemeSummary struct {
	Tag               string    `json:"tag"`
	Count             int       `json:"count"`
	AverageConfidence float64   `json:"averageConfidence"`
	FirstOccurrence   time.Time `json:"firstOccurrence"`
	LastOccurrence    time.Time `json:"lastOccurrence"`
}

// InterviewService coordinates message persistence, completion analysis, and
// theme accumulation. The Analyzer is injected so tests can substitute a
// deterministic stub; Cache may be nil (all cache calls are nil-safe).
type InterviewService struct {
	DB       *gorm.DB
	Analyzer llm.Analyzer
	Cache    *cache.Store

	// MaxContentRunes caps submitted message length; <= 0 disables the cap.
	MaxContentRunes int
}

// ProcessMessage runs the full pipeline for one submitted message.
//
// Steps:
//  1. Resolve the session: look it up (ErrSessionNotFound when absent) and
//     bump its updated-at, or create a fresh one when sessionID is empty.
//  2. Persist the message under the session.
//  3. Re-read the session's messages as conversation history. The fetch
//     happens after the insert, so the current message is included as the
//     final turn — deliberate, matching the reference pipeline.
//  4. Analyze content + history with the injected completion client.
//  5. Persist the response row.
//  6. Accumulate the theme (monotonic-max merge).
//
// Steps 5–6 share one transaction; the message insert stays outside it so
// the external completion call never spans an open write transaction.
// Failures propagate unwrapped for the HTTP layer to classify; writes
// committed before the failing step are not rolled back.
func (s *InterviewService) ProcessMessage(ctx context.Context, content, sessionID string) (*ProcessResult, error) {
	tr := otel.Tracer("services/InterviewService")
	ctx, span := tr.Start(ctx, "ProcessMessage",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, ErrTooLong
	}

	// 1) Resolve or create the session.
	var session *domain.Session
	var err error
	if sessionID != "" {
		session, err = repo.GetSession(ctx, s.DB, sessionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrSessionNotFound
			}
			return nil, err
		}
		if err := repo.TouchSession(ctx, s.DB, session.ID); err != nil {
			return nil, err
		}
	} else {
		session, err = repo.CreateSession(ctx, s.DB, nil)
		if err != nil {
			return nil, err
		}
	}

	// 2) Persist the incoming message.
	msg, err := repo.CreateMessage(s.DB.WithContext(ctx), session.ID, content)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("message.id", msg.ID))

	// 3) Conversation history, current message included as the final turn.
	history, err := s.conversationHistory(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	// 4) Analyze.
	result, err := s.Analyzer.Analyze(ctx, content, history)
	if err != nil {
		return nil, err
	}

	// 5+6) Response row and theme merge commit or fail together.
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		meta := marshalMetadata(result.Metadata)
		if _, err := repo.CreateResponse(tx, msg.ID, result.FollowUp, result.ThemeTag, result.Confidence, meta); err != nil {
			return err
		}
		return s.accumulateTheme(tx, session.ID, result.ThemeTag, result.Confidence)
	})
	if err != nil {
		return nil, err
	}

	// Full re-read: callers rely on the complete, current theme set.
	themes, err := repo.ListThemes(s.DB.WithContext(ctx), session.ID)
	if err != nil {
		return nil, err
	}

	s.Cache.Invalidate(ctx, session.ID)

	return &ProcessResult{
		Message:  msg,
		Response: result,
		Session:  session,
		Themes:   themes,
	}, nil
}

// GetSession returns the session with all of its messages, responses, and
// themes, or ErrSessionNotFound. Aggregates are served from the cache when
// one is configured.
func (s *InterviewService) GetSession(ctx context.Context, sessionID string) (*SessionView, error) {
	tr := otel.Tracer("services/InterviewService")
	ctx, span := tr.Start(ctx, "GetSession",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	var cached SessionView
	if s.Cache.GetJSON(ctx, sessionID, cacheKindView, &cached) {
		return &cached, nil
	}

	session, err := repo.GetSession(ctx, s.DB, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	db := s.DB.WithContext(ctx)
	messages, err := repo.ListMessages(db, sessionID, 0)
	if err != nil {
		return nil, err
	}
	responses, err := repo.ListResponsesBySession(db, sessionID)
	if err != nil {
		return nil, err
	}
	themes, err := repo.ListThemes(db, sessionID)
	if err != nil {
		return nil, err
	}

	view := &SessionView{
		Session:   session,
		Messages:  messages,
		Responses: responses,
		Themes:    themes,
	}
	s.Cache.SetJSON(ctx, sessionID, cacheKindView, view)
	return view, nil
}

// GetThemes returns the session's theme summaries in first-seen tag order.
//
// Accumulation already collapses to at most one row per (session, tag), so
// the grouping fold is defensive and idempotent: with a single surviving row
// per tag, count is 1 and the mean degenerates to that row's confidence.
func (s *InterviewService) GetThemes(ctx context.Context, sessionID string) ([]ThemeSummary, error) {
	tr := otel.Tracer("services/InterviewService")
	ctx, span := tr.Start(ctx, "GetThemes",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	var cached []ThemeSummary
	if s.Cache.GetJSON(ctx, sessionID, cacheKindThemes, &cached) {
		return cached, nil
	}

	themes, err := repo.ListThemes(s.DB.WithContext(ctx), sessionID)
	if err != nil {
		return nil, err
	}

	summaries := summarizeThemes(themes)
	s.Cache.SetJSON(ctx, sessionID, cacheKindThemes, summaries)
	return summaries, nil
}

// ListSessionsPage returns a page of sessions ordered most-recent-first and
// the total count. It applies defaults for invalid page/pageSize.
func (s *InterviewService) ListSessionsPage(ctx context.Context, page, pageSize int) ([]domain.Session, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountSessions(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Session{}, 0, nil
	}

	items, err := repo.ListSessionsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// DeleteSession removes a session and everything it owns via FK cascades.
func (s *InterviewService) DeleteSession(ctx context.Context, sessionID string) error {
	if err := repo.DeleteSession(ctx, s.DB, sessionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	s.Cache.Invalidate(ctx, sessionID)
	return nil
}

// conversationHistory returns the session's message contents in
// chronological order.
func (s *InterviewService) conversationHistory(ctx context.Context, sessionID string) ([]string, error) {
	messages, err := repo.ListMessages(s.DB.WithContext(ctx), sessionID, 0)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Content)
	}
	return out, nil
}

// accumulateTheme applies the monotonic-max merge policy for one
// (tag, confidence) observation: update the existing row only when the new
// confidence is strictly greater (ties keep the stored row and timestamps),
// insert a fresh row on first sighting. Confidence never decreases.
func (s *InterviewService) accumulateTheme(tx *gorm.DB, sessionID, tag string, confidence float64) error {
	existing, err := repo.ListThemes(tx, sessionID)
	if err != nil {
		return err
	}
	for i := range existing {
		if existing[i].Tag == tag {
			if confidence > existing[i].Confidence {
				return repo.UpdateThemeConfidence(tx, existing[i].ID, confidence)
			}
			return nil
		}
	}
	_, err = repo.CreateTheme(tx, sessionID, tag, confidence)
	return err
}

// summarizeThemes folds theme rows into ordered per-tag aggregates. The
// output preserves first-seen tag order (input is already sorted by first
// occurrence), and the mean is computed over every row carrying the tag.
func summarizeThemes(themes []domain.Theme) []ThemeSummary {
	type agg struct {
		count int
		total float64
		first domain.Theme
		last  domain.Theme
	}

	order := make([]string, 0, len(themes))
	byTag := make(map[string]*agg, len(themes))

	for _, t := range themes {
		a, ok := byTag[t.Tag]
		if !ok {
			a = &agg{first: t}
			byTag[t.Tag] = a
			order = append(order, t.Tag)
		}
		a.count++
		a.total += t.Confidence
		a.last = t
	}

	out := make([]ThemeSummary, 0, len(order))
	for _, tag := range order {
		a := byTag[tag]
		out = append(out, ThemeSummary{
			Tag:               tag,
			Count:             a.count,
			AverageConfidence: a.total / float64(a.count),
			FirstOccurrence:   a.first.FirstOccurrence,
			LastOccurrence:    a.last.FirstOccurrence,
		})
	}
	return out
}

// marshalMetadata serializes completion metadata to an opaque JSON blob for
// the response row. Returns nil when marshalling fails; the metadata is
// audit-only and must never fail the pipeline.
func marshalMetadata(m llm.Metadata) *string {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	s := string(raw)
	return &s
}
