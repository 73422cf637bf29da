// Package handler exposes accreditation over HTTP. Handlers decode and
// validate the wire forms, delegate to the engine, and translate domain errors
// to statuses exactly once at this edge.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"accredo/internal/accreditation/models"
	"accredo/internal/notify"
	"accredo/internal/platform/middleware"
	id "accredo/pkg/domain"
	dErrors "accredo/pkg/domain-errors"
	"accredo/pkg/platform/httputil"
	"accredo/pkg/validation"
)

// Engine defines the accreditation operations the handler needs.
type Engine interface {
	Begin(ctx context.Context) (*models.Session, error)
	Apply(ctx context.Context, sessionID id.AccreditationID, event models.StepEvent) (*models.Session, error)
	Get(ctx context.Context, sessionID id.AccreditationID) (*models.Session, error)
	List(ctx context.Context, filter *models.ListFilter) ([]*models.Session, error)
}

type Handler struct {
	engine    Engine
	notifier  notify.Sender
	recipient string
	logger    *slog.Logger
}

// Option configures the Handler.
type Option func(*Handler)

// WithNotifier enables a completion notification to the given recipient.
// Delivery is fire-and-forget.
func WithNotifier(sender notify.Sender, recipient string) Option {
	return func(h *Handler) {
		h.notifier = sender
		h.recipient = recipient
	}
}

func New(engine Engine, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		engine:   engine,
		notifier: notify.Noop{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/accreditation/sessions", h.HandleBeginSession)
	r.Post("/accreditation/sessions/{sessionID}/steps", h.HandleSubmitStep)
	r.Get("/accreditation/sessions/{sessionID}", h.HandleGetSession)
	r.Get("/accreditation/sessions", h.HandleListSessions)
}

// HandleBeginSession starts a new accreditation session.
func (h *Handler) HandleBeginSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	session, err := h.engine.Begin(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "begin session failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, &models.BeginResponse{
		SessionID: session.ID.String(),
		Message:   "accreditation session started",
	})
}

// HandleSubmitStep applies one step event to the session.
func (h *Handler) HandleSubmitStep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	sessionID, err := id.ParseAccreditationID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid session id"))
		return
	}

	var req models.SubmitStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.Sanitize()
	if err := validation.Validate(&req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	event, err := req.ToEvent()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	session, err := h.engine.Apply(ctx, sessionID, event)
	if err != nil {
		h.logger.ErrorContext(ctx, "step application failed",
			"error", err, "request_id", requestID, "session_id", sessionID, "step", req.Step)
		httputil.WriteError(w, err)
		return
	}

	if session.Status == models.StatusCompleted {
		h.notifyCompletion(session)
	}

	httputil.WriteJSON(w, http.StatusOK, models.Snapshot(session))
}

// HandleGetSession returns the current session snapshot.
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, err := id.ParseAccreditationID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid session id"))
		return
	}

	session, err := h.engine.Get(ctx, sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.Snapshot(session))
}

// HandleListSessions lists sessions for dashboards, with optional status,
// path, and polling_unit filters.
func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := parseListFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	sessions, err := h.engine.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "list sessions failed", "error", err)
		httputil.WriteError(w, err)
		return
	}

	resp := models.ListResponse{
		Sessions: make([]models.SessionSnapshot, 0, len(sessions)),
		Count:    len(sessions),
	}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, models.Snapshot(s))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func parseListFilter(r *http.Request) (*models.ListFilter, error) {
	q := r.URL.Query()
	filter := &models.ListFilter{}

	if v := q.Get("status"); v != "" {
		status := models.Status(v)
		switch status {
		case models.StatusInProgress, models.StatusCompleted, models.StatusFailed:
			filter.Status = &status
		default:
			return nil, dErrors.New(dErrors.CodeBadRequest, "unknown status filter")
		}
	}
	if v := q.Get("path"); v != "" {
		path := models.Path(v)
		if !path.IsValid() {
			return nil, dErrors.New(dErrors.CodeBadRequest, "unknown path filter")
		}
		filter.Path = &path
	}
	if v := q.Get("polling_unit"); v != "" {
		filter.PollingUnit = &v
	}
	return filter, nil
}

// notifyCompletion sends a best-effort completion message. Runs detached from
// the request so a slow gateway never delays the response.
func (h *Handler) notifyCompletion(session *models.Session) {
	if h.recipient == "" {
		return
	}
	name := ""
	if session.VoterDetails != nil {
		name = session.VoterDetails.FullName
	}
	text := fmt.Sprintf("Voter %s accredited at %s (session %s)", name, session.PollingUnit(), session.ID)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.notifier.Notify(ctx, h.recipient, text); err != nil {
			h.logger.Warn("completion notification failed", "error", err, "session_id", session.ID)
		}
	}()
}
