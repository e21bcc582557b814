package schedule

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
	ListAvailableDates(ctx context.Context, doctorID uuid.UUID) ([]model.AvailableDate, error)
	ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]model.Slot, error)
	GetSchedule(ctx context.Context, doctorID uuid.UUID, date string) (*model.DaySchedule, error)
	CreateSchedule(ctx context.Context, doctorID uuid.UUID, date string, override *model.ScheduleTemplate) (*model.DaySchedule, error)
	RegenerateSchedule(ctx context.Context, doctorID uuid.UUID, date string, override *model.ScheduleTemplate) (*model.DaySchedule, error)
	DeleteSchedule(ctx context.Context, doctorID uuid.UUID, date string) error
	BulkBlock(ctx context.Context, doctorID uuid.UUID, from, to string) (int, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// templateRequest carries the optional overrides of a doctor's template
type templateRequest struct {
	WorkingHours *model.TimeRange `json:"working_hours"`
	Breaks       []model.TimeRange `json:"breaks" binding:"omitempty,dive"`
	SlotDuration int               `json:"slot_duration" binding:"omitempty,min=5,max=240"`
	OnlineFee    float64           `json:"online_fee" binding:"omitempty,min=0"`
	OfflineFee   float64           `json:"offline_fee" binding:"omitempty,min=0"`
}

type createScheduleRequest struct {
	Date string `json:"date" binding:"required,date"`
	templateRequest
}

type blockRequest struct {
	From string `json:"from" binding:"required,date"`
	To   string `json:"to" binding:"required,date"`
}

func (r *templateRequest) override() *model.ScheduleTemplate {
	if r.WorkingHours == nil && r.Breaks == nil && r.SlotDuration == 0 && r.OnlineFee == 0 && r.OfflineFee == 0 {
		return nil
	}
	tpl := &model.ScheduleTemplate{
		SlotDuration: r.SlotDuration,
		OnlineFee:    r.OnlineFee,
		OfflineFee:   r.OfflineFee,
	}
	if r.WorkingHours != nil {
		tpl.WorkingHours = *r.WorkingHours
	}
	if r.Breaks != nil {
		tpl.Breaks = model.Breaks(r.Breaks)
	}
	return tpl
}

// RegisterRoutes mounts the public availability reads and the managed
// schedule writes. authn must populate the caller for the latter.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, authn gin.HandlerFunc) {
	doctors := r.Group("/doctors/:id")
	{
		doctors.GET("/available-dates", h.ListAvailableDates)
		doctors.GET("/schedules/:date/slots", h.ListAvailableSlots)
	}

	managed := r.Group("/doctors/:id/schedules", authn,
		middleware.RequireRole(auth.RoleDoctor, auth.RoleAdmin, auth.RoleReceptionist))
	{
		managed.GET("/:date", h.GetSchedule)
		managed.POST("", h.CreateSchedule)
		managed.PUT("/:date", h.RegenerateSchedule)
		managed.DELETE("/:date", h.DeleteSchedule)
		managed.POST("/block", middleware.RequireRole(auth.RoleAdmin), h.BlockDates)
	}
}

func (h *Handler) ListAvailableDates(c *gin.Context) {
	doctorID, ok := doctorParam(c)
	if !ok {
		return
	}

	dates, err := h.service.ListAvailableDates(c.Request.Context(), doctorID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, dates)
}

func (h *Handler) ListAvailableSlots(c *gin.Context) {
	doctorID, ok := doctorParam(c)
	if !ok {
		return
	}

	slots, err := h.service.ListAvailableSlots(c.Request.Context(), doctorID, c.Param("date"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, slots)
}

func (h *Handler) GetSchedule(c *gin.Context) {
	doctorID, ok := h.managedDoctor(c)
	if !ok {
		return
	}

	sched, err := h.service.GetSchedule(c.Request.Context(), doctorID, c.Param("date"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, sched)
}

func (h *Handler) CreateSchedule(c *gin.Context) {
	doctorID, ok := h.managedDoctor(c)
	if !ok {
		return
	}

	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBadRequest(c, validator.Translate(err).Error())
		return
	}

	sched, err := h.service.CreateSchedule(c.Request.Context(), doctorID, req.Date, req.override())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, sched)
}

func (h *Handler) RegenerateSchedule(c *gin.Context) {
	doctorID, ok := h.managedDoctor(c)
	if !ok {
		return
	}

	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBadRequest(c, validator.Translate(err).Error())
		return
	}

	sched, err := h.service.RegenerateSchedule(c.Request.Context(), doctorID, c.Param("date"), req.override())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, sched)
}

func (h *Handler) DeleteSchedule(c *gin.Context) {
	doctorID, ok := h.managedDoctor(c)
	if !ok {
		return
	}

	if err := h.service.DeleteSchedule(c.Request.Context(), doctorID, c.Param("date")); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"deleted": true})
}

func (h *Handler) BlockDates(c *gin.Context) {
	doctorID, ok := doctorParam(c)
	if !ok {
		return
	}

	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBadRequest(c, validator.Translate(err).Error())
		return
	}

	blocked, err := h.service.BulkBlock(c.Request.Context(), doctorID, req.From, req.To)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"blocked_schedules": blocked})
}

func doctorParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithBadRequest(c, "invalid doctor ID")
		return uuid.Nil, false
	}
	return id, true
}

// managedDoctor resolves the doctor in the path; doctors may only manage
// their own calendar
func (h *Handler) managedDoctor(c *gin.Context) (uuid.UUID, bool) {
	doctorID, ok := doctorParam(c)
	if !ok {
		return uuid.Nil, false
	}
	actorID, role, _ := middleware.Actor(c)
	if role == auth.RoleDoctor && actorID != doctorID {
		httputil.RespondWithError(c, apperrors.Unauthorized("doctors can only manage their own schedule"))
		return uuid.Nil, false
	}
	return doctorID, true
}
