// Package admin exposes operator endpoints for inspecting and overriding
// verification state. Every route requires an operator JWT.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/platform/middleware"
	"gatekeeper/internal/verification/models"
	"gatekeeper/internal/verification/service"
	"gatekeeper/internal/verification/store/record"
	"gatekeeper/pkg/platform/httputil"
)

// Verifier is the subset of the engine the operator API drives.
type Verifier interface {
	Lookup(ctx context.Context, key models.Key) (*models.VerificationRecord, bool, error)
	MassVerify(ctx context.Context, key models.Key) models.Outcome
	Forget(ctx context.Context, key models.Key) (models.Outcome, error)
	PendingCount() int
}

// RecordCounter reports aggregate record counts.
type RecordCounter interface {
	Counts(ctx context.Context) (record.Counts, error)
}

// StatsSource reports mass verification progress. It is nil outside
// mass verification mode.
type StatsSource interface {
	Stats() service.MassVerifyStats
}

// AuditReader lists the audit trail of one member. It is only available
// when audit events are kept in process.
type AuditReader interface {
	ListByUser(ctx context.Context, chatID, userID int64) ([]audit.Event, error)
}

type Handler struct {
	verifier  Verifier
	counter   RecordCounter
	massStats StatsSource
	auditLog  AuditReader
	logger    *slog.Logger
}

type Option func(*Handler)

func WithMassStats(s StatsSource) Option {
	return func(h *Handler) {
		h.massStats = s
	}
}

func WithAuditReader(r AuditReader) Option {
	return func(h *Handler) {
		h.auditLog = r
	}
}

func New(verifier Verifier, counter RecordCounter, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		verifier: verifier,
		counter:  counter,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/stats", h.HandleStats)
	r.Route("/admin/chats/{chatID}/users/{userID}", func(r chi.Router) {
		r.Get("/", h.HandleGetRecord)
		r.Delete("/", h.HandleForget)
		r.Post("/verify", h.HandleVerify)
		if h.auditLog != nil {
			r.Get("/events", h.HandleListEvents)
		}
	})
}

func (h *Handler) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, err := keyFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, pending, err := h.verifier.Lookup(ctx, key)
	if err != nil {
		h.logger.WarnContext(ctx, "record lookup failed", "chat_id", key.ChatID, "user_id", key.UserID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(rec, pending))
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	operator := middleware.GetOperator(r.Context())
	ctx := service.WithActor(r.Context(), operator)

	outcome := h.verifier.MassVerify(ctx, key)
	if outcome == models.OutcomeFailed {
		httputil.WriteError(w, fmt.Errorf("verify %s: store write failed", key))
		return
	}
	h.logger.InfoContext(ctx, "member verified by operator",
		"operator", operator, "chat_id", key.ChatID, "user_id", key.UserID, "outcome", outcome)
	httputil.WriteJSON(w, http.StatusOK, OutcomeResponse{ChatID: key.ChatID, UserID: key.UserID, Outcome: string(outcome)})
}

func (h *Handler) HandleForget(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	operator := middleware.GetOperator(r.Context())
	ctx := service.WithActor(r.Context(), operator)

	outcome, err := h.verifier.Forget(ctx, key)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "member record forgotten by operator",
		"operator", operator, "chat_id", key.ChatID, "user_id", key.UserID)
	httputil.WriteJSON(w, http.StatusOK, OutcomeResponse{ChatID: key.ChatID, UserID: key.UserID, Outcome: string(outcome)})
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.counter.Counts(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := StatsResponse{
		Records:           counts.Total,
		VerifiedRecords:   counts.Verified,
		PendingChallenges: h.verifier.PendingCount(),
	}
	if h.massStats != nil {
		stats := h.massStats.Stats()
		resp.MassVerification = &MassVerifyStatsView{
			MessagesProcessed: stats.MessagesProcessed,
			UsersVerified:     stats.UsersVerified,
			ChatsTracked:      stats.ChatsTracked,
			Uptime:            stats.Uptime.String(),
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.auditLog.ListByUser(r.Context(), key.ChatID, key.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, EventsResponse{Events: events, Total: len(events)})
}

func keyFromPath(r *http.Request) (models.Key, error) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		return models.Key{}, fmt.Errorf("%w: invalid chat id", httputil.ErrBadRequest)
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		return models.Key{}, fmt.Errorf("%w: invalid user id", httputil.ErrBadRequest)
	}
	return models.NewKey(chatID, userID), nil
}
