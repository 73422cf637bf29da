// Package engine drives the accreditation protocol. It is the only writer of
// session state: every step event is validated against the session's path and
// current step, collaborators are consulted, and the result is committed with
// an optimistic compare-and-swap so each step is applied exactly once even
// under concurrent submissions.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"accredo/internal/accreditation/metrics"
	"accredo/internal/accreditation/models"
	"accredo/internal/accreditation/store"
	"accredo/internal/accreditation/tracer"
	"accredo/internal/audit"
	"accredo/internal/extraction"
	"accredo/internal/facematch"
	"accredo/internal/voterindex"
	id "accredo/pkg/domain"
	dErrors "accredo/pkg/domain-errors"
	"accredo/pkg/platform/sentinel"
)

// maxCASAttempts bounds the re-read-and-recompute loop on version conflicts.
const maxCASAttempts = 3

// Failure reasons recorded on sessions the engine moves to failed.
const (
	FailureNoCardDetected = "no_card_detected"
	FailureFaceMismatch   = "face_mismatch"
)

// VoterResolver maps a presented VIN plus claimed polling unit to at most one
// registrant. Satisfied by voterindex.Index.
type VoterResolver interface {
	Resolve(ctx context.Context, vin, pollingUnit string) (voterindex.VoterRecord, error)
}

// Engine applies step events to accreditation sessions.
type Engine struct {
	store     store.Store
	extractor extraction.Extractor
	verifier  facematch.Verifier
	resolver  VoterResolver

	auditor *audit.Publisher
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithAudit attaches an audit publisher. Transitions are recorded best-effort.
func WithAudit(p *audit.Publisher) Option {
	return func(e *Engine) { e.auditor = p }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer sets the tracer. Defaults to a no-op tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New constructs the engine over its required collaborators.
func New(st store.Store, extractor extraction.Extractor, verifier facematch.Verifier, resolver VoterResolver, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		extractor: extractor,
		verifier:  verifier,
		resolver:  resolver,
		tracer:    tracer.NewNoop(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Begin creates a new session at step 1 with the path not yet chosen.
func (e *Engine) Begin(ctx context.Context) (*models.Session, error) {
	ctx, span := e.tracer.Start(ctx, tracer.SpanSessionBegin)
	var err error
	defer func() { span.End(err) }()

	sessionID := id.NewAccreditationID()
	session, err := models.NewSession(sessionID, e.now().UTC())
	if err != nil {
		return nil, err
	}
	if err = e.store.Create(ctx, session); err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
		return nil, err
	}
	span.SetAttributes(tracer.String(tracer.AttrSessionID, sessionID.String()))

	if e.metrics != nil {
		e.metrics.IncrementSessionsStarted()
	}
	e.emitAudit(ctx, audit.Event{
		SessionID: sessionID.String(),
		Action:    audit.ActionSessionStarted,
	})
	e.logger.InfoContext(ctx, "accreditation session started", "session_id", sessionID)
	return session, nil
}

// Get returns the current session snapshot.
func (e *Engine) Get(ctx context.Context, sessionID id.AccreditationID) (*models.Session, error) {
	session, err := e.store.Get(ctx, sessionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	return session, nil
}

// List returns sessions matching the filter, oldest first.
func (e *Engine) List(ctx context.Context, filter *models.ListFilter) ([]*models.Session, error) {
	sessions, err := e.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sessions")
	}
	return sessions, nil
}

// Apply validates and applies one step event to the session. On a version
// conflict the session is re-read and the event re-evaluated against the fresh
// state, up to maxCASAttempts, after which the caller gets a conflict error.
// Collaborator failures leave the session untouched unless the collaborator
// returned a definitive negative verdict, which fails the session.
func (e *Engine) Apply(ctx context.Context, sessionID id.AccreditationID, event models.StepEvent) (*models.Session, error) {
	ctx, span := e.tracer.Start(ctx, tracer.SpanStepApply,
		tracer.String(tracer.AttrSessionID, sessionID.String()),
		tracer.String(tracer.AttrStep, string(event.Step())),
	)
	var err error
	defer func() { span.End(err) }()

	start := e.now()
	defer func() {
		if e.metrics != nil {
			e.metrics.ObserveStepLatency(string(event.Step()), e.now().Sub(start).Seconds())
		}
	}()

	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		span.SetAttributes(tracer.Int64(tracer.AttrCASAttempt, int64(attempt)))

		var current *models.Session
		current, err = e.store.Get(ctx, sessionID)
		if errors.Is(err, sentinel.ErrNotFound) {
			err = dErrors.New(dErrors.CodeNotFound, "session not found")
			return nil, err
		}
		if err != nil {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
			return nil, err
		}

		if err = e.checkTransition(current, event); err != nil {
			e.rejectStep(ctx, current, event, err)
			return nil, err
		}

		var next *models.Session
		next, err = e.applyEvent(ctx, current, event)
		if err != nil {
			e.rejectStep(ctx, current, event, err)
			return nil, err
		}

		// A cancelled caller must not commit a half-finished transition.
		if err = ctx.Err(); err != nil {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "request aborted before commit")
			return nil, err
		}
		if err = next.Validate(); err != nil {
			return nil, err
		}

		err = e.store.CompareAndSwap(ctx, sessionID, current.Version, next)
		if errors.Is(err, sentinel.ErrVersionConflict) {
			if e.metrics != nil {
				e.metrics.IncrementCASConflicts()
			}
			span.AddEvent(tracer.EventCASConflict)
			e.logger.WarnContext(ctx, "concurrent session update, retrying",
				"session_id", sessionID, "attempt", attempt)
			continue
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			err = dErrors.New(dErrors.CodeNotFound, "session not found")
			return nil, err
		}
		if err != nil {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit session")
			return nil, err
		}

		e.recordOutcome(ctx, next, event)
		return next, nil
	}

	err = dErrors.New(dErrors.CodeConflict, "session was modified concurrently, retry the step")
	return nil, err
}

// checkTransition enforces terminal immutability, path exclusivity, and strict
// step ordering before any collaborator is consulted.
func (e *Engine) checkTransition(session *models.Session, event models.StepEvent) error {
	if session.Terminal() {
		return dErrors.New(dErrors.CodeIllegalTransition, "session already "+string(session.Status))
	}

	path := session.Path
	if path == models.PathUnset {
		path = event.EventPath()
	} else if path != event.EventPath() {
		return dErrors.New(dErrors.CodePathMismatch,
			"session follows the "+string(session.Path)+" path")
	}

	steps := models.StepsFor(path)
	expected := steps[session.Step-1]
	if event.Step() != expected {
		return dErrors.New(dErrors.CodeIllegalTransition,
			"expected step "+string(expected)+", got "+string(event.Step()))
	}
	return nil
}

// applyEvent computes the successor state for a validated event. The returned
// session is a private copy; nothing is persisted here. Errors with code
// upstream_unavailable signal a retriable collaborator failure with no state
// change.
func (e *Engine) applyEvent(ctx context.Context, current *models.Session, event models.StepEvent) (*models.Session, error) {
	next := current.Clone()
	if next.Path == models.PathUnset {
		next.Path = event.EventPath()
	}

	switch ev := event.(type) {
	case models.CardImageEvent:
		return e.applyCardImage(ctx, next, ev)
	case models.FaceCaptureEvent:
		return e.applyFaceCapture(ctx, next, ev)
	case models.PollingUnitEvent:
		return e.applyPollingUnit(ctx, next, ev)
	case models.VINLookupEvent:
		return e.applyVINLookup(ctx, next, ev)
	case models.ArchivalEvidenceEvent:
		return e.applyArchivalEvidence(next, ev)
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown step event")
	}
}

func (e *Engine) applyCardImage(ctx context.Context, next *models.Session, ev models.CardImageEvent) (*models.Session, error) {
	ctx, span := e.tracer.Start(ctx, tracer.SpanExtract)
	fields, err := e.extractor.Extract(ctx, ev.ImageRef)
	span.End(err)
	if err != nil {
		if extraction.IsNoCard(err) {
			e.fail(next, FailureNoCardDetected)
			return next, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "identity extraction unavailable")
	}

	next.Evidence[models.StepCardImage] = ev.ImageRef
	next.Extraction = &models.CardExtraction{
		VIN:         fields.VIN,
		FullName:    fields.FullName,
		DateOfBirth: fields.DateOfBirth,
	}
	next.Step++
	return next, nil
}

func (e *Engine) applyFaceCapture(ctx context.Context, next *models.Session, ev models.FaceCaptureEvent) (*models.Session, error) {
	ctx, span := e.tracer.Start(ctx, tracer.SpanFaceVerify)
	result, err := e.verifier.Verify(ctx, next.Evidence[models.StepCardImage], ev.ImageRef)
	span.End(err)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "face verification unavailable")
	}

	switch result {
	case facematch.ResultMatch:
		next.Evidence[models.StepFaceCapture] = ev.ImageRef
		next.Step++
		return next, nil
	case facematch.ResultNoMatch:
		e.fail(next, FailureFaceMismatch)
		return next, nil
	case facematch.ResultInconclusive:
		return nil, dErrors.New(dErrors.CodeUnavailable, "face verification inconclusive, retry the capture")
	default:
		return nil, dErrors.New(dErrors.CodeInternal, "unknown face verification result")
	}
}

func (e *Engine) applyPollingUnit(ctx context.Context, next *models.Session, ev models.PollingUnitEvent) (*models.Session, error) {
	details := &models.VoterDetails{
		VIN:         next.Extraction.VIN,
		FullName:    next.Extraction.FullName,
		DateOfBirth: next.Extraction.DateOfBirth,
		PollingUnit: ev.PollingUnit,
	}

	// Enrich from the register when the extracted VIN resolves at the claimed
	// unit. The register record is authoritative over scanned text.
	ctx, span := e.tracer.Start(ctx, tracer.SpanVINResolve,
		tracer.String(tracer.AttrPollingUnit, ev.PollingUnit))
	record, err := e.resolver.Resolve(ctx, next.Extraction.VIN, ev.PollingUnit)
	span.End(err)
	if err == nil {
		details.VIN = record.VIN
		details.FullName = record.FullName
		details.DateOfBirth = record.DateOfBirth
		details.Ward = record.Ward
		details.LGA = record.LGA
	}

	next.Evidence[models.StepPollingUnit] = ev.PollingUnit
	next.VoterDetails = details
	e.complete(next)
	return next, nil
}

func (e *Engine) applyVINLookup(ctx context.Context, next *models.Session, ev models.VINLookupEvent) (*models.Session, error) {
	ctx, span := e.tracer.Start(ctx, tracer.SpanVINResolve,
		tracer.String(tracer.AttrPollingUnit, ev.PollingUnit))
	record, err := e.resolver.Resolve(ctx, ev.VIN, ev.PollingUnit)
	span.End(err)
	if err != nil {
		// The session stays at step 1; the clerk may correct the VIN and
		// resubmit.
		switch {
		case dErrors.HasCode(err, dErrors.CodeNotFound):
			e.countVINLookup("not_found")
		case dErrors.HasCode(err, dErrors.CodeAmbiguousMatch):
			e.countVINLookup("ambiguous")
		default:
			e.countVINLookup("invalid")
		}
		e.emitAudit(ctx, audit.Event{
			SessionID:   next.ID.String(),
			Action:      audit.ActionVINLookupDenied,
			Path:        string(next.Path),
			Step:        next.Step,
			PollingUnit: ev.PollingUnit,
			Decision:    audit.DecisionDenied,
			Reason:      dErrors.MessageOf(err),
		})
		return nil, err
	}
	e.countVINLookup("resolved")

	next.Evidence[models.StepVINLookup] = ev.VIN
	next.VoterDetails = &models.VoterDetails{
		VIN:         record.VIN,
		FullName:    record.FullName,
		DateOfBirth: record.DateOfBirth,
		PollingUnit: record.PollingUnit,
		Ward:        record.Ward,
		LGA:         record.LGA,
	}
	next.Step++
	return next, nil
}

func (e *Engine) applyArchivalEvidence(next *models.Session, ev models.ArchivalEvidenceEvent) (*models.Session, error) {
	next.Evidence[models.StepArchivalEvidence] = ev.Ref()
	e.complete(next)
	return next, nil
}

func (e *Engine) complete(session *models.Session) {
	session.Status = models.StatusCompleted
	now := e.now().UTC()
	session.CompletedAt = &now
}

func (e *Engine) fail(session *models.Session, reason string) {
	session.Status = models.StatusFailed
	session.FailureReason = reason
}

func (e *Engine) countVINLookup(outcome string) {
	if e.metrics != nil {
		e.metrics.IncrementVINLookups(outcome)
	}
}

// recordOutcome emits metrics, audit, and logs for a committed transition.
func (e *Engine) recordOutcome(ctx context.Context, session *models.Session, event models.StepEvent) {
	switch session.Status {
	case models.StatusCompleted:
		if e.metrics != nil {
			e.metrics.IncrementStepsApplied(string(session.Path), string(event.Step()))
			e.metrics.IncrementSessionsCompleted(string(session.Path))
		}
		e.emitAudit(ctx, audit.Event{
			SessionID:   session.ID.String(),
			Action:      audit.ActionSessionCompleted,
			Path:        string(session.Path),
			Step:        session.Step,
			PollingUnit: session.PollingUnit(),
			Decision:    audit.DecisionCompleted,
		})
		e.logger.InfoContext(ctx, "accreditation completed",
			"session_id", session.ID, "path", session.Path, "polling_unit", session.PollingUnit())
	case models.StatusFailed:
		if e.metrics != nil {
			e.metrics.IncrementSessionsFailed(session.FailureReason)
		}
		e.emitAudit(ctx, audit.Event{
			SessionID: session.ID.String(),
			Action:    audit.ActionSessionFailed,
			Path:      string(session.Path),
			Step:      session.Step,
			Decision:  audit.DecisionFailed,
			Reason:    session.FailureReason,
		})
		e.logger.InfoContext(ctx, "accreditation failed",
			"session_id", session.ID, "path", session.Path, "reason", session.FailureReason)
	default:
		if e.metrics != nil {
			e.metrics.IncrementStepsApplied(string(session.Path), string(event.Step()))
		}
		e.emitAudit(ctx, audit.Event{
			SessionID: session.ID.String(),
			Action:    audit.ActionStepApplied,
			Path:      string(session.Path),
			Step:      session.Step,
			Decision:  audit.DecisionAdvanced,
		})
	}
}

// rejectStep emits metrics and audit for an event that did not change state.
func (e *Engine) rejectStep(ctx context.Context, session *models.Session, event models.StepEvent, cause error) {
	code := string(dErrors.CodeOf(cause))
	if e.metrics != nil {
		e.metrics.IncrementStepsRejected(code)
	}
	// VIN lookup denials carry their own audit action.
	if _, ok := event.(models.VINLookupEvent); ok {
		switch dErrors.CodeOf(cause) {
		case dErrors.CodeNotFound, dErrors.CodeAmbiguousMatch, dErrors.CodeInvalidInput:
			return
		}
	}
	e.emitAudit(ctx, audit.Event{
		SessionID: session.ID.String(),
		Action:    audit.ActionStepRejected,
		Path:      string(session.Path),
		Step:      session.Step,
		Decision:  audit.DecisionDenied,
		Reason:    code,
	})
}

func (e *Engine) emitAudit(ctx context.Context, event audit.Event) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.Emit(ctx, event); err != nil {
		e.logger.WarnContext(ctx, "failed to emit audit event",
			"error", err, "action", event.Action, "session_id", event.SessionID)
	}
}
