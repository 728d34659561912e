// Package console is the operator-facing HTTP surface: lease views,
// purchase dispatch, quota and route updates, and manual acquisition.
package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"holdfast/internal/acquire"
	"holdfast/internal/purchase"
	"holdfast/internal/purchase/validator"
	"holdfast/internal/quota"
	"holdfast/internal/rescue"
	"holdfast/internal/settings"
	"holdfast/internal/store"
	apperrors "holdfast/pkg/errors"
	httputil "holdfast/pkg/http"
	"holdfast/pkg/logger"
	"holdfast/pkg/model"
)

type Handler struct {
	store     *store.LeaseStore
	rescue    *rescue.Scheduler
	finalizer *purchase.Finalizer
	journal   *purchase.Journal
	monitor   *acquire.Monitor
	settings  *settings.Settings
	validator *validator.PurchaseValidator
	log       *logger.Logger
}

func NewHandler(st *store.LeaseStore, sched *rescue.Scheduler, fin *purchase.Finalizer, journal *purchase.Journal, mon *acquire.Monitor, sts *settings.Settings, v *validator.PurchaseValidator, log *logger.Logger) *Handler {
	return &Handler{
		store:     st,
		rescue:    sched,
		finalizer: fin,
		journal:   journal,
		monitor:   mon,
		settings:  sts,
		validator: v,
		log:       log,
	}
}

func (h *Handler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/v1/leases", h.ListLeases)
	router.GET("/v1/leases/recent", h.ListRecent)
	router.POST("/v1/leases/:id/purchase", h.Purchase)
	router.DELETE("/v1/leases/:id", h.CancelLease)
	router.GET("/v1/purchases", h.ListPurchases)
	router.DELETE("/v1/purchases", h.ClearPurchases)
	router.PUT("/v1/settings/quota", h.UpdateQuota)
	router.PUT("/v1/settings/route", h.UpdateRoute)
	router.POST("/v1/acquire", h.Acquire)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"leases": h.store.Len(),
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Health", "error", err)
	}
}

// leaseView is a lease as the console shows it, with derived hold and
// period information.
type leaseView struct {
	model.Lease
	RemainingSeconds float64 `json:"remaining_seconds"`
	Period           *int    `json:"period,omitempty"`
}

func (h *Handler) view(l model.Lease, now time.Time) leaseView {
	v := leaseView{Lease: l, RemainingSeconds: l.RemainingSeconds(now)}
	if l.Recent {
		if period, ok := quota.PeriodForDate(l.Date, now); ok {
			v.Period = &period
		}
	}
	return v
}

func (h *Handler) ListLeases(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	now := time.Now()
	recent, future := h.store.ByWindow()

	recentViews := make([]leaseView, 0, len(recent))
	for _, l := range recent {
		recentViews = append(recentViews, h.view(l, now))
	}
	futureViews := make([]leaseView, 0, len(future))
	for _, l := range future {
		futureViews = append(futureViews, h.view(l, now))
	}

	if err := httputil.WriteSuccess(w, map[string]any{
		"recent": recentViews,
		"future": futureViews,
	}); err != nil {
		h.log.Error("failed to write success response", "handler", "ListLeases", "error", err)
	}
}

func (h *Handler) ListRecent(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()

	var tripID int64
	if s := query.Get("trip_id"); s != "" {
		var err error
		tripID, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			h.writeError(w, "ListRecent", apperrors.InvalidInput(fmt.Sprintf("invalid trip_id parameter: %s", s)))
			return
		}
	}
	tier := 0
	if s := query.Get("tier"); s != "" {
		var err error
		tier, err = strconv.Atoi(s)
		if err != nil || tier < 1 || tier > 3 {
			h.writeError(w, "ListRecent", apperrors.InvalidInput(fmt.Sprintf("invalid tier parameter: %s", s)))
			return
		}
	}
	date := query.Get("date")

	now := time.Now()
	recent, _ := h.store.ByWindow()
	views := make([]leaseView, 0, len(recent))
	for _, l := range recent {
		if date != "" && l.Date != date {
			continue
		}
		if tripID != 0 && l.TripID != tripID {
			continue
		}
		if tier != 0 && model.TierForLabel(l.SeatLabel) != tier {
			continue
		}
		views = append(views, h.view(l, now))
	}

	if err := httputil.WriteSuccess(w, map[string]any{"recent": views}); err != nil {
		h.log.Error("failed to write success response", "handler", "ListRecent", "error", err)
	}
}

func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	var req model.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Purchase", apperrors.InvalidInput("Invalid request body"))
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		h.writeError(w, "Purchase", apperrors.Validation(err.Error(), nil))
		return
	}

	rec, err := h.finalizer.Finalize(id, req)
	if err != nil {
		switch {
		case errors.Is(err, purchase.ErrAlreadyClaimed):
			h.writeError(w, "Purchase", apperrors.Conflict(err.Error()))
		case errors.Is(err, store.ErrNotFound):
			h.writeError(w, "Purchase", apperrors.NotFoundWithID("lease", id))
		default:
			h.writeError(w, "Purchase", apperrors.Internal("Failed to dispatch purchase", err))
		}
		return
	}

	if err := httputil.WriteAccepted(w, rec); err != nil {
		h.log.Error("failed to write accepted response", "handler", "Purchase", "error", err)
	}
}

func (h *Handler) CancelLease(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	h.rescue.Cancel(id)
	lease, err := h.store.Remove(id)
	if err != nil {
		h.writeError(w, "CancelLease", apperrors.NotFoundWithID("lease", id))
		return
	}

	h.log.Info("lease cancelled",
		"lease_id", id,
		"date", lease.Date,
		"seat_label", lease.SeatLabel,
	)
	httputil.WriteNoContent(w)
}

func (h *Handler) ListPurchases(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	if err := httputil.WriteSuccess(w, map[string]any{
		"purchases": h.journal.List(),
	}); err != nil {
		h.log.Error("failed to write success response", "handler", "ListPurchases", "error", err)
	}
}

func (h *Handler) ClearPurchases(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	cleared := h.journal.Clear()
	h.log.Info("purchase journal cleared", "records", cleared)
	if err := httputil.WriteSuccess(w, map[string]any{"cleared": cleared}); err != nil {
		h.log.Error("failed to write success response", "handler", "ClearPurchases", "error", err)
	}
}

type quotaUpdate struct {
	MaxRecentHeld int `json:"max_recent_held"`
}

func (h *Handler) UpdateQuota(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req quotaUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "UpdateQuota", apperrors.InvalidInput("Invalid request body"))
		return
	}

	if err := h.settings.SetMaxRecentHeld(req.MaxRecentHeld); err != nil {
		h.writeError(w, "UpdateQuota", apperrors.Validation(err.Error(), nil))
		return
	}
	first, second, _ := quota.SplitRecent(req.MaxRecentHeld)

	h.log.Info("recent quota updated",
		"max_recent_held", req.MaxRecentHeld,
		"period_0", first,
		"period_1", second,
	)
	if err := httputil.WriteSuccess(w, map[string]any{
		"max_recent_held": req.MaxRecentHeld,
		"period_limits":   []int{first, second},
	}); err != nil {
		h.log.Error("failed to write success response", "handler", "UpdateQuota", "error", err)
	}
}

type routeUpdate struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

func (h *Handler) UpdateRoute(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req routeUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "UpdateRoute", apperrors.InvalidInput("Invalid request body"))
		return
	}

	if err := h.settings.SetRoute(req.Source, req.Destination); err != nil {
		h.writeError(w, "UpdateRoute", apperrors.Validation(err.Error(), nil))
		return
	}

	h.log.Info("route updated", "source", req.Source, "destination", req.Destination)
	if err := httputil.WriteSuccess(w, map[string]any{
		"source":      req.Source,
		"destination": req.Destination,
	}); err != nil {
		h.log.Error("failed to write success response", "handler", "UpdateRoute", "error", err)
	}
}

type acquireRequest struct {
	Date string `json:"date"`
}

func (h *Handler) Acquire(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req acquireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Acquire", apperrors.InvalidInput("Invalid request body"))
		return
	}
	if _, err := time.Parse(quota.DateLayout, req.Date); err != nil {
		h.writeError(w, "Acquire", apperrors.InvalidInput(fmt.Sprintf("date must be in YYYY-MM-DD format, got: %s", req.Date)))
		return
	}

	h.monitor.DispatchFutureDate(req.Date)

	if err := httputil.WriteAccepted(w, map[string]any{"date": req.Date}); err != nil {
		h.log.Error("failed to write accepted response", "handler", "Acquire", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "error", writeErr)
	}
}
