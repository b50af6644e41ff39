// Package handler wires the check-in endpoints to the check-in service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shepherd/internal/checkin/models"
	"shepherd/internal/checkin/service"
	"shepherd/internal/checkin/validation"
	"shepherd/internal/platform/middleware"
	id "shepherd/pkg/domain"
	dErrors "shepherd/pkg/domain-errors"
	"shepherd/pkg/platform/httputil"
)

// RoleStaff is the role claim that unlocks staff-only behavior (checking in
// children other than your own).
const RoleStaff = "staff"

// Service defines the check-in operations the transport layer needs.
type Service interface {
	CheckIn(ctx context.Context, childID id.ChildID, serviceID id.ServiceID, auth validation.AuthContext, notes string) (service.Outcome, error)
	CheckOut(ctx context.Context, childID id.ChildID, auth validation.AuthContext, notes string) (service.Outcome, error)
	EligibleServices(ctx context.Context, childID id.ChildID) ([]models.EligibleService, error)
}

// Handler exposes check-in, check-out, and the eligibility query.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a check-in handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts check-in endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/check-ins", h.HandleCheckIn)
	r.Post("/check-outs", h.HandleCheckOut)
	r.Get("/children/{childID}/eligible-services", h.HandleEligibleServices)
}

// CheckInRequest is the POST /check-ins payload.
type CheckInRequest struct {
	ChildID   string `json:"childId"`
	ServiceID string `json:"serviceId"`
	Notes     string `json:"notes,omitempty"`
}

// CheckOutRequest is the POST /check-outs payload.
type CheckOutRequest struct {
	ChildID string `json:"childId"`
	Notes   string `json:"notes,omitempty"`
}

// TransitionResponse returns the post-transition snapshots.
type TransitionResponse struct {
	Child   models.Child         `json:"child"`
	Service models.KidsService   `json:"service"`
	Record  models.CheckInRecord `json:"record"`
}

// EligibleServicesResponse is the GET eligible-services payload.
type EligibleServicesResponse struct {
	Services []models.EligibleService `json:"services"`
}

// HandleCheckIn handles POST /check-ins requests.
func (h *Handler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	auth, ok := h.authContext(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[CheckInRequest](w, r, h.logger)
	if !ok {
		return
	}

	childID, err := id.ParseChildID(req.ChildID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	serviceID, err := id.ParseServiceID(req.ServiceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	outcome, err := h.service.CheckIn(ctx, childID, serviceID, auth, req.Notes)
	if err != nil {
		h.logger.WarnContext(ctx, "check-in rejected",
			"child_id", childID,
			"service_id", serviceID,
			"actor_id", auth.Caller,
			"code", dErrors.CodeOf(err),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "child checked in",
		"child_id", childID,
		"service_id", serviceID,
		"actor_id", auth.Caller,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, TransitionResponse{
		Child:   outcome.Child,
		Service: outcome.Service,
		Record:  outcome.Record,
	})
}

// HandleCheckOut handles POST /check-outs requests.
func (h *Handler) HandleCheckOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	auth, ok := h.authContext(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[CheckOutRequest](w, r, h.logger)
	if !ok {
		return
	}

	childID, err := id.ParseChildID(req.ChildID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	outcome, err := h.service.CheckOut(ctx, childID, auth, req.Notes)
	if err != nil {
		h.logger.WarnContext(ctx, "check-out rejected",
			"child_id", childID,
			"actor_id", auth.Caller,
			"code", dErrors.CodeOf(err),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "child checked out",
		"child_id", childID,
		"actor_id", auth.Caller,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, TransitionResponse{
		Child:   outcome.Child,
		Service: outcome.Service,
		Record:  outcome.Record,
	})
}

// HandleEligibleServices handles GET /children/{childID}/eligible-services.
func (h *Handler) HandleEligibleServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := h.authContext(w, ctx); !ok {
		return
	}

	childID, err := id.ParseChildID(chi.URLParam(r, "childID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	eligible, err := h.service.EligibleServices(ctx, childID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if eligible == nil {
		eligible = []models.EligibleService{}
	}
	httputil.WriteJSON(w, http.StatusOK, EligibleServicesResponse{Services: eligible})
}

func (h *Handler) authContext(w http.ResponseWriter, ctx context.Context) (validation.AuthContext, bool) {
	actorID := middleware.GetActorID(ctx)
	if actorID.IsEmpty() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return validation.AuthContext{}, false
	}
	return validation.AuthContext{
		Caller:  actorID,
		IsStaff: middleware.GetRole(ctx) == RoleStaff,
	}, true
}
