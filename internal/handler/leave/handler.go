package leave

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/middleware"
	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/auth"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/httputil"
	"github.com/jwalitptl/hospital-api/pkg/validator"
)

type Service interface {
	RequestLeave(ctx context.Context, leave *model.LeaveRequest) error
	GetLeave(ctx context.Context, id uuid.UUID) (*model.LeaveRequest, error)
	ListLeaves(ctx context.Context, doctorID uuid.UUID, status model.LeaveStatus) ([]*model.LeaveRequest, error)
	Approve(ctx context.Context, id, decidedBy uuid.UUID) (*model.LeaveApplication, error)
	Reject(ctx context.Context, id, decidedBy uuid.UUID) (*model.LeaveRequest, error)
	RetryEffects(ctx context.Context, id uuid.UUID) (*model.LeaveApplication, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type leaveRequest struct {
	DoctorID  *uuid.UUID          `json:"doctor_id"`
	StartDate string              `json:"start_date" binding:"required,date"`
	EndDate   string              `json:"end_date" binding:"required,date"`
	Type      model.LeaveType     `json:"type" binding:"required,oneof=sick casual"`
	Duration  model.LeaveDuration `json:"duration" binding:"omitempty,oneof=full_day half_day"`
	Reason    string              `json:"reason" binding:"max=500"`
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, authn gin.HandlerFunc) {
	leaves := r.Group("/leaves", authn)
	{
		leaves.POST("", middleware.RequireRole(auth.RoleDoctor, auth.RoleAdmin), h.RequestLeave)
		leaves.GET("", middleware.RequireRole(auth.RoleDoctor, auth.RoleAdmin), h.ListLeaves)
		leaves.GET("/:id", middleware.RequireRole(auth.RoleDoctor, auth.RoleAdmin), h.GetLeave)
		leaves.POST("/:id/approve", middleware.RequireRole(auth.RoleAdmin), h.Approve)
		leaves.POST("/:id/reject", middleware.RequireRole(auth.RoleAdmin), h.Reject)
		leaves.POST("/:id/retry", middleware.RequireRole(auth.RoleAdmin), h.RetryEffects)
	}
}

// RequestLeave files a leave for the calling doctor. Admins file on a
// doctor's behalf with doctor_id.
func (h *Handler) RequestLeave(c *gin.Context) {
	var req leaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBadRequest(c, validator.Translate(err).Error())
		return
	}

	actorID, role, _ := middleware.Actor(c)
	doctorID := actorID
	if role != auth.RoleDoctor {
		if req.DoctorID == nil {
			httputil.RespondWithBadRequest(c, "doctor_id is required")
			return
		}
		doctorID = *req.DoctorID
	}

	leave := &model.LeaveRequest{
		DoctorID:  doctorID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Type:      req.Type,
		Duration:  req.Duration,
		Reason:    req.Reason,
	}
	if err := h.service.RequestLeave(c.Request.Context(), leave); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, leave)
}

func (h *Handler) ListLeaves(c *gin.Context) {
	var doctorID uuid.UUID
	if raw := c.Query("doctor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httputil.RespondWithBadRequest(c, "invalid doctor_id")
			return
		}
		doctorID = id
	}
	actorID, role, _ := middleware.Actor(c)
	if role == auth.RoleDoctor {
		doctorID = actorID
	}

	leaves, err := h.service.ListLeaves(c.Request.Context(), doctorID, model.LeaveStatus(c.Query("status")))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, leaves)
}

func (h *Handler) GetLeave(c *gin.Context) {
	id, ok := leaveParam(c)
	if !ok {
		return
	}

	leave, err := h.service.GetLeave(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	actorID, role, _ := middleware.Actor(c)
	if role == auth.RoleDoctor && leave.DoctorID != actorID {
		httputil.RespondWithError(c, apperrors.ErrLeaveNotFound)
		return
	}
	httputil.RespondWithSuccess(c, leave)
}

// Approve decides the leave and applies it. A partially applied approval is
// still a success; the report lists what failed.
func (h *Handler) Approve(c *gin.Context) {
	id, ok := leaveParam(c)
	if !ok {
		return
	}

	actorID, _, _ := middleware.Actor(c)
	res, err := h.service.Approve(c.Request.Context(), id, actorID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, res)
}

func (h *Handler) Reject(c *gin.Context) {
	id, ok := leaveParam(c)
	if !ok {
		return
	}

	actorID, _, _ := middleware.Actor(c)
	leave, err := h.service.Reject(c.Request.Context(), id, actorID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, leave)
}

func (h *Handler) RetryEffects(c *gin.Context) {
	id, ok := leaveParam(c)
	if !ok {
		return
	}

	res, err := h.service.RetryEffects(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, res)
}

func leaveParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithBadRequest(c, "invalid leave ID")
		return uuid.Nil, false
	}
	return id, true
}
