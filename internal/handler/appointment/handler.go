package appointment

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/middleware"
	"github.com/jwalitptl/hospital-api/internal/model"
	appointmentService "github.com/jwalitptl/hospital-api/internal/service/appointment"
	"github.com/jwalitptl/hospital-api/internal/service/booking"
	"github.com/jwalitptl/hospital-api/pkg/auth"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/httputil"
	"github.com/jwalitptl/hospital-api/pkg/validator"
)

type Booker interface {
	BookAppointment(ctx context.Context, req *booking.Request) (*booking.Result, error)
}

type Service interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	ListAppointments(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
	UpdateStatus(ctx context.Context, actor appointmentService.Actor, id uuid.UUID, target model.AppointmentStatus, clinical *model.ClinicalData) (*model.Appointment, error)
	CancelByPatient(ctx context.Context, patientID, id uuid.UUID, reason string) (*model.Appointment, error)
	MarkMissed(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
}

type Handler struct {
	booking Booker
	service Service
}

func NewHandler(booking Booker, service Service) *Handler {
	return &Handler{booking: booking, service: service}
}

type bookRequest struct {
	PatientID             *uuid.UUID             `json:"patient_id"`
	DoctorID              uuid.UUID              `json:"doctor_id" binding:"required"`
	Date                  string                 `json:"date" binding:"required,date"`
	TimeSlot              *model.TimeRange       `json:"time_slot"`
	SlotID                *uuid.UUID             `json:"slot_id"`
	ConsultationType      model.ConsultationType `json:"consultation_type" binding:"required,oneof=online offline"`
	PaymentMethod         model.PaymentMethod    `json:"payment_method" binding:"required"`
	Channel               model.PaymentChannel   `json:"channel" binding:"omitempty,oneof=online offline walk_in"`
	PreviousAppointmentID *uuid.UUID             `json:"previous_appointment_id"`
}

type publicBookRequest struct {
	bookRequest
	Patient model.PatientMatch `json:"patient"`
}

type statusRequest struct {
	Status   model.AppointmentStatus `json:"status" binding:"required"`
	Clinical *model.ClinicalData     `json:"clinical"`
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

func (r *bookRequest) toBooking() *booking.Request {
	req := &booking.Request{
		DoctorID:              r.DoctorID,
		Date:                  r.Date,
		ConsultationType:      r.ConsultationType,
		PaymentMethod:         r.PaymentMethod,
		Channel:               r.Channel,
		PreviousAppointmentID: r.PreviousAppointmentID,
	}
	if r.TimeSlot != nil {
		req.TimeSlot = *r.TimeSlot
	}
	if r.SlotID != nil {
		req.SlotID = *r.SlotID
	}
	return req
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, authn gin.HandlerFunc) {
	r.POST("/public/appointments", h.BookPublic)

	appointments := r.Group("/appointments", authn)
	{
		appointments.POST("", middleware.RequireRole(auth.RolePatient, auth.RoleReceptionist, auth.RoleAdmin), h.Book)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.PATCH("/:id/status", h.UpdateStatus)
		appointments.POST("/:id/cancel", middleware.RequireRole(auth.RolePatient), h.Cancel)
		appointments.POST("/:id/missed", middleware.RequireRole(auth.RoleReceptionist, auth.RoleAdmin), h.MarkMissed)
		appointments.DELETE("/:id", middleware.RequireRole(auth.RoleAdmin), h.DeleteAppointment)
	}
}

// Book serves authenticated bookings. Patients book for themselves; staff
// name the patient and may use the walk-in channel.
func (h *Handler) Book(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBadRequest(c, validator.Translate(err).Error())
		return
	}

	actorID, role, _ := middleware.Actor(c)
	booking := req.toBooking()
	if role == auth.RolePatient {
		if req.Channel == model.PaymentChannelWalkIn {
			httputil.RespondWithError(c, apperrors.Unauthorized("walk-in bookings are made at reception"))
			return
		}
		booking.PatientID = actorID
	} else {
		if req.PatientID == nil {
			httputil.RespondWithBadRequest(c, "patient_id is required")
			return
		}
		booking.PatientID = *req.PatientID
		booking.CreatedBy = &actorID
	}

	h.book(c, booking)
}

// BookPublic serves self-service bookings from people without an account
func (h *Handler) BookPublic(c *gin.Context) {
	var req publicBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBadRequest(c, validator.Translate(err).Error())
		return
	}
	if req.Channel == model.PaymentChannelWalkIn {
		httputil.RespondWithBadRequest(c, "walk-in bookings are made at reception")
		return
	}

	booking := req.toBooking()
	patient := req.Patient
	booking.NewPatient = &patient
	h.book(c, booking)
}

func (h *Handler) book(c *gin.Context, req *booking.Request) {
	res, err := h.booking.BookAppointment(c.Request.Context(), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, res)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	apt, ok := h.visibleAppointment(c)
	if !ok {
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) ListAppointments(c *gin.Context) {
	filters := &model.AppointmentFilters{
		Status:    model.AppointmentStatus(c.Query("status")),
		StartDate: c.Query("start_date"),
		EndDate:   c.Query("end_date"),
	}
	for param, dst := range map[string]*uuid.UUID{"doctor_id": &filters.DoctorID, "patient_id": &filters.PatientID} {
		if raw := c.Query(param); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				httputil.RespondWithBadRequest(c, "invalid "+param)
				return
			}
			*dst = id
		}
	}
	if filters.Status != "" && !filters.Status.Valid() {
		httputil.RespondWithError(c, apperrors.Validation(apperrors.CodeInvalidStatus, "unknown status filter"))
		return
	}

	actorID, role, _ := middleware.Actor(c)
	switch role {
	case auth.RolePatient:
		filters.PatientID = actorID
	case auth.RoleDoctor:
		filters.DoctorID = actorID
	}

	appointments, err := h.service.ListAppointments(c.Request.Context(), filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if c.Query("page") == "" {
		httputil.RespondWithSuccess(c, appointments)
		return
	}

	page, errPage := strconv.Atoi(c.Query("page"))
	size, errSize := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if errPage != nil || errSize != nil || page < 1 || size < 1 || size > 100 {
		httputil.RespondWithBadRequest(c, "page must be >= 1 and page_size between 1 and 100")
		return
	}
	start := (page - 1) * size
	if start > len(appointments) {
		start = len(appointments)
	}
	end := start + size
	if end > len(appointments) {
		end = len(appointments)
	}
	httputil.RespondWithPagination(c, appointments[start:end], page, size, len(appointments))
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := appointmentParam(c)
	if !ok {
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBadRequest(c, validator.Translate(err).Error())
		return
	}

	actorID, role, _ := middleware.Actor(c)
	apt, err := h.service.UpdateStatus(c.Request.Context(),
		appointmentService.Actor{ID: actorID, Role: role}, id, req.Status, req.Clinical)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := appointmentParam(c)
	if !ok {
		return
	}

	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBadRequest(c, validator.Translate(err).Error())
		return
	}

	actorID, _, _ := middleware.Actor(c)
	apt, err := h.service.CancelByPatient(c.Request.Context(), actorID, id, req.Reason)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) MarkMissed(c *gin.Context) {
	id, ok := appointmentParam(c)
	if !ok {
		return
	}

	apt, err := h.service.MarkMissed(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) DeleteAppointment(c *gin.Context) {
	id, ok := appointmentParam(c)
	if !ok {
		return
	}

	if err := h.service.DeleteAppointment(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"deleted": true})
}

// visibleAppointment loads the appointment in the path if the caller may see
// it. Patients and doctors only see their own.
func (h *Handler) visibleAppointment(c *gin.Context) (*model.Appointment, bool) {
	id, ok := appointmentParam(c)
	if !ok {
		return nil, false
	}

	apt, err := h.service.GetAppointment(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return nil, false
	}

	actorID, role, _ := middleware.Actor(c)
	if (role == auth.RolePatient && apt.PatientID != actorID) || (role == auth.RoleDoctor && apt.DoctorID != actorID) {
		// Not found rather than forbidden so ids cannot be enumerated
		httputil.RespondWithError(c, apperrors.ErrAppointmentNotFound)
		return nil, false
	}
	return apt, true
}

func appointmentParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithBadRequest(c, "invalid appointment ID")
		return uuid.Nil, false
	}
	return id, true
}
