// Interview HTTP handlers.
//
// This file exposes the REST endpoints of the interview API:
//   - POST   /api/messages            (submit a message, run analysis)
//   - GET    /api/sessions            (list recent sessions, paginated)
//   - GET    /api/sessions/{id}       (full session aggregate)
//   - DELETE /api/sessions/{id}       (cascade-delete a session)
//   - GET    /api/themes/{sessionId}  (per-session theme summaries)
//
// Handlers are transport-thin: they validate and normalize inputs, delegate
// to the InterviewService, and translate domain outcomes into the envelope
// and error taxonomy of this API.
//
// Idempotency:
// If the client supplies an Idempotency-Key header together with a session
// id and a previous successful submission exists for (session, key), the
// handler replays the recorded aggregate and sets `Idempotency-Replayed:
// true` instead of running the analysis pipeline again.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/probelab/go-interview-backend/internal/domain"
	"github.com/probelab/go-interview-backend/internal/http/middleware"
	"github.com/probelab/go-interview-backend/internal/llm"
	"github.com/probelab/go-interview-backend/internal/repo"
	"github.com/probelab/go-interview-backend/internal/services"
	"github.com/probelab/go-interview-backend/internal/utils"
)

//
// Service contract (context-aware)
//

// InterviewService defines the orchestration operations consumed by HTTP
// handlers. Implementations must be safe for concurrent use and honor the
// provided context for cancellation and timeouts.
type InterviewService interface {
	// ProcessMessage runs the submit→analyze→persist→accumulate pipeline and
	// returns the full aggregate. An empty sessionID creates a new session.
	ProcessMessage(ctx context.Context, content, sessionID string) (*services.ProcessResult, error)
	// GetSession returns the session with all messages, responses, and themes.
	GetSession(ctx context.Context, sessionID string) (*services.SessionView, error)
	// GetThemes returns per-tag summaries for a session.
	GetThemes(ctx context.Context, sessionID string) ([]services.ThemeSummary, error)
	// ListSessionsPage returns a page of sessions plus the total count.
	ListSessionsPage(ctx context.Context, page, pageSize int) ([]domain.Session, int64, error)
	// DeleteSession removes a session and everything it owns.
	DeleteSession(ctx context.Context, sessionID string) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the interview API. The *gorm.DB is
// used only for transport-level concerns (idempotency ledger, ETag stats,
// health pings); all business access goes through the service.
type Handlers struct {
	svc            InterviewService
	db             *gorm.DB
	idempotencyTTL time.Duration
	version        string
	startedAt      time.Time
}

// New constructs a Handlers instance bound to the given service and DB handle.
func New(svc InterviewService, db *gorm.DB, idempotencyTTL time.Duration, version string) *Handlers {
	return &Handlers{
		svc:            svc,
		db:             db,
		idempotencyTTL: idempotencyTTL,
		version:        version,
		startedAt:      time.Now().UTC(),
	}
}

//
// DTOs
//

// CreateMessageRequest is the JSON payload for submitting a user message.
type CreateMessageRequest struct {
	// Content is the user's message. Required, non-empty.
	Content string `json:"content" binding:"required" example:"I love espresso"`
	// SessionID continues an existing conversation; omit to start a new one.
	SessionID string `json:"sessionId,omitempty" example:"0b8f8f4c-1b2a-4c3d-8e9f-0123456789ab"`
}

// ThemesResponse is the data payload of GET /api/themes/{sessionId}.
type ThemesResponse struct {
	SessionID string                  `json:"sessionId"`
	Themes    []services.ThemeSummary `json:"themes"`
}

// Pagination carries standard paging metadata for list endpoints.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
}

// ListSessionsResponse is the data payload of GET /api/sessions.
type ListSessionsResponse struct {
	Sessions   []domain.Session `json:"sessions"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// clampPagination parses page/page_size from query parameters, applies sane
// defaults and caps, and returns the validated (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// idempotencyKey returns the validated key stashed by the idempotency
// middleware, falling back to the raw header when the middleware is not
// installed (direct handler tests).
func idempotencyKey(c *gin.Context) string {
	if k := middleware.GetIdempotencyKey(c); k != "" {
		return k
	}
	return strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
}

//
// Handlers
//

// CreateMessage godoc
// @ID          createMessage
// @Summary     Submit a message for analysis
// @Description Records a user message, sends it to the completion provider,
// @Description and returns the message, analysis, session, and theme list.
// @Description Omitting sessionId starts a new session. Supports idempotency
// @Description via the Idempotency-Key header (same session+key → same result).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       body             body    handlers.CreateMessageRequest  true  "User message payload"
//
// @Success     201  {object}  handlers.Envelope       "Aggregate result"
// @Failure     400  {object}  handlers.ErrorResponse  "Missing or invalid content"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown session"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /messages [post]
func (h *Handlers) CreateMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "Content is required and must be a string")
		return
	}

	content := sanitizeContent(req.Content)
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "Content is required and must be a string")
		return
	}

	// Idempotency (replay path). Only meaningful when the request targets an
	// existing session: new-session submissions have no stable key scope.
	idemKey := idempotencyKey(c)
	if idemKey != "" && req.SessionID != "" && h.db != nil {
		if rec, err := repo.GetIdempotency(ctx, h.db, req.SessionID, idemKey, time.Now().UTC()); err == nil && rec != nil {
			if agg, err2 := h.replayAggregate(ctx, rec.MessageID); err2 == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, http.StatusOK, agg)
				return
			}
		}
	}

	result, err := h.svc.ProcessMessage(ctx, content, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeSessionNotFound, "Session not found")
		case errors.Is(err, services.ErrEmptyContent):
			fail(c, http.StatusBadRequest, ErrCodeValidation, "Content is required and must be a string")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeValidation, "Content exceeds the maximum allowed length")
		case errors.Is(err, llm.ErrUnavailable):
			middleware.ObserveLLM("unavailable")
			// Provider internals stay in the logs, not in the response.
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "Failed to analyze message")
		case errors.Is(err, llm.ErrParse):
			middleware.ObserveLLM("parse_error")
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "Failed to analyze message")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "An internal server error occurred")
		}
		return
	}
	middleware.ObserveLLM("ok")

	// Idempotency (store path) – best effort.
	if idemKey != "" && h.db != nil {
		_, _ = repo.CreateIdempotency(ctx, h.db, result.Session.ID, idemKey, result.Message.ID, http.StatusCreated, h.idempotencyTTL)
	}

	ok(c, http.StatusCreated, result)
}

// replayAggregate rebuilds the ProcessMessage aggregate from persisted rows
// for an idempotent retry. The completion result is reconstructed from the
// stored response row, including its audit metadata when present.
func (h *Handlers) replayAggregate(ctx context.Context, messageID string) (*services.ProcessResult, error) {
	db := h.db.WithContext(ctx)

	msg, err := repo.GetMessage(db, messageID)
	if err != nil {
		return nil, err
	}
	resp, err := repo.GetResponseByMessage(db, messageID)
	if err != nil {
		return nil, err
	}
	session, err := repo.GetSession(ctx, h.db, msg.SessionID)
	if err != nil {
		return nil, err
	}
	themes, err := repo.ListThemes(db, msg.SessionID)
	if err != nil {
		return nil, err
	}

	result := &llm.Result{
		FollowUp:   resp.FollowUp,
		ThemeTag:   resp.ThemeTag,
		Confidence: resp.Confidence,
	}
	if resp.LLMMetadata != nil {
		_ = json.Unmarshal([]byte(*resp.LLMMetadata), &result.Metadata)
	}

	return &services.ProcessResult{
		Message:  msg,
		Response: result,
		Session:  session,
		Themes:   themes,
	}, nil
}

// GetSession godoc
// @ID          getSession
// @Summary     Fetch a session aggregate
// @Description Returns the session with all of its messages, responses, and themes.
// @Tags        Sessions
// @Produce     json
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.Envelope
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown session"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	// ETag pre-check (best effort): the aggregate only changes when the
	// session's messages do.
	if h.db != nil {
		count, maxTS, err := repo.MessagesStats(h.db.WithContext(ctx), sessionID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"session:%s:%d:%d"`, sessionID, count, ts)
			c.Header("ETag", etag)
			// Revalidation beats the blanket no-store for this endpoint.
			c.Header("Cache-Control", "private, max-age=0, must-revalidate")
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag && count > 0 {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	view, err := h.svc.GetSession(ctx, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeSessionNotFound, "Session not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "An internal server error occurred")
		}
		return
	}
	ok(c, http.StatusOK, view)
}

// GetThemes godoc
// @ID          getThemes
// @Summary     List a session's theme summaries
// @Description Returns per-tag aggregates (count, mean confidence, first/last occurrence).
// @Tags        Themes
// @Produce     json
//
// @Param       sessionId  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.Envelope
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /themes/{sessionId} [get]
func (h *Handlers) GetThemes(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("sessionId")

	themes, err := h.svc.GetThemes(ctx, sessionID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "An internal server error occurred")
		return
	}
	ok(c, http.StatusOK, ThemesResponse{SessionID: sessionID, Themes: themes})
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List recent sessions
// @Description Returns a paginated list of sessions, most recent first.
// @Tags        Sessions
// @Produce     json
//
// @Param       page       query  int  false "Page number"    minimum(1) default(1)
// @Param       page_size  query  int  false "Items per page" minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.Envelope
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	items, total, err := h.svc.ListSessionsPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "An internal server error occurred")
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListSessionsResponse{
		Sessions: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// DeleteSession godoc
// @ID          deleteSession
// @Summary     Delete a session
// @Description Removes the session and cascades to its messages, responses, and themes.
// @Tags        Sessions
// @Produce     json
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     204  "Deleted"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown session"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id} [delete]
func (h *Handlers) DeleteSession(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	if err := h.svc.DeleteSession(ctx, sessionID); err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeSessionNotFound, "Session not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "An internal server error occurred")
		}
		return
	}
	noContent(c)
}
