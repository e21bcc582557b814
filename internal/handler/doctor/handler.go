package doctor

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
	GetProfile(ctx context.Context, id uuid.UUID) (*model.DoctorProfile, error)
	ListAvailable(ctx context.Context) ([]*model.DoctorProfile, error)
	Create(ctx context.Context, profile *model.DoctorProfile) error
	UpdateProfile(ctx context.Context, profile *model.DoctorProfile) error
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// profileRequest is the schedule template a doctor's days are generated from
type profileRequest struct {
	Name          string                   `json:"name" binding:"required"`
	Email         string                   `json:"email" binding:"omitempty,email"`
	Phone         string                   `json:"phone"`
	DepartmentID  *uuid.UUID               `json:"department_id"`
	AvailableDays []string                 `json:"available_days" binding:"required,min=1"`
	WorkStart     string                   `json:"work_start" binding:"required,clock"`
	WorkEnd       string                   `json:"work_end" binding:"required,clock"`
	Breaks        []model.TimeRange        `json:"breaks" binding:"omitempty,dive"`
	SlotDuration  int                      `json:"slot_duration" binding:"omitempty,min=5,max=240"`
	OnlineFee     float64                  `json:"online_fee" binding:"omitempty,min=0"`
	OfflineFee    float64                  `json:"offline_fee" binding:"omitempty,min=0"`
	Status        model.AvailabilityStatus `json:"status" binding:"omitempty,oneof=available unavailable"`
}

func (r *profileRequest) apply(p *model.DoctorProfile) {
	p.Name = r.Name
	p.Email = r.Email
	p.Phone = r.Phone
	p.DepartmentID = r.DepartmentID
	p.AvailableDays = r.AvailableDays
	p.WorkStart = r.WorkStart
	p.WorkEnd = r.WorkEnd
	p.Breaks = model.Breaks(r.Breaks)
	p.SlotDuration = r.SlotDuration
	p.OnlineFee = r.OnlineFee
	p.OfflineFee = r.OfflineFee
	if r.Status != "" {
		p.Status = r.Status
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, authn gin.HandlerFunc) {
	doctors := r.Group("/doctors")
	{
		doctors.GET("", h.ListDoctors)
		doctors.GET("/:id", h.GetDoctor)
		doctors.POST("", authn, middleware.RequireRole(auth.RoleAdmin), h.CreateDoctor)
		doctors.PUT("/:id", authn, middleware.RequireRole(auth.RoleDoctor, auth.RoleAdmin), h.UpdateDoctor)
	}
}

func (h *Handler) ListDoctors(c *gin.Context) {
	doctors, err := h.service.ListAvailable(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, doctors)
}

func (h *Handler) GetDoctor(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithBadRequest(c, "invalid doctor ID")
		return
	}

	doctor, err := h.service.GetProfile(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, doctor)
}

func (h *Handler) CreateDoctor(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBadRequest(c, validator.Translate(err).Error())
		return
	}

	doctor := &model.DoctorProfile{Status: model.AvailabilityAvailable}
	req.apply(doctor)
	if err := h.service.Create(c.Request.Context(), doctor); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, doctor)
}

func (h *Handler) UpdateDoctor(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithBadRequest(c, "invalid doctor ID")
		return
	}
	actorID, role, _ := middleware.Actor(c)
	if role == auth.RoleDoctor && actorID != id {
		httputil.RespondWithError(c, apperrors.Unauthorized("doctors can only update their own profile"))
		return
	}

	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBadRequest(c, validator.Translate(err).Error())
		return
	}

	doctor, err := h.service.GetProfile(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	req.apply(doctor)
	if err := h.service.UpdateProfile(c.Request.Context(), doctor); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, doctor)
}
