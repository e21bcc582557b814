package patient

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
	GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	FindOrCreate(ctx context.Context, match model.PatientMatch) (*model.Patient, error)
}

type RecordService interface {
	GetMedicalRecord(ctx context.Context, id uuid.UUID) (*model.MedicalRecord, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.MedicalRecord, error)
}

type Handler struct {
	service Service
	records RecordService
}

func NewHandler(service Service, records RecordService) *Handler {
	return &Handler{service: service, records: records}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, authn gin.HandlerFunc) {
	patients := r.Group("/patients", authn)
	{
		patients.POST("", middleware.RequireRole(auth.RoleReceptionist, auth.RoleAdmin), h.RegisterPatient)
		patients.GET("/:id", h.GetPatient)

		patients.GET("/:id/records", middleware.RequireRole(auth.RolePatient, auth.RoleDoctor, auth.RoleAdmin), h.ListMedicalRecords)
		patients.GET("/:id/records/:recordId", middleware.RequireRole(auth.RolePatient, auth.RoleDoctor, auth.RoleAdmin), h.GetMedicalRecord)
	}
}

// RegisterPatient returns the existing patient matching the email or phone,
// creating one otherwise
func (h *Handler) RegisterPatient(c *gin.Context) {
	var req model.PatientMatch
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBadRequest(c, validator.Translate(err).Error())
		return
	}

	patient, err := h.service.FindOrCreate(c.Request.Context(), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, patient)
}

func (h *Handler) GetPatient(c *gin.Context) {
	patientID, ok := visiblePatient(c)
	if !ok {
		return
	}

	patient, err := h.service.GetPatient(c.Request.Context(), patientID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, patient)
}

func (h *Handler) ListMedicalRecords(c *gin.Context) {
	patientID, ok := visiblePatient(c)
	if !ok {
		return
	}

	records, err := h.records.ListByPatient(c.Request.Context(), patientID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, records)
}

func (h *Handler) GetMedicalRecord(c *gin.Context) {
	patientID, ok := visiblePatient(c)
	if !ok {
		return
	}
	recordID, err := uuid.Parse(c.Param("recordId"))
	if err != nil {
		httputil.RespondWithBadRequest(c, "invalid record ID")
		return
	}

	record, err := h.records.GetMedicalRecord(c.Request.Context(), recordID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if record.PatientID != patientID {
		httputil.RespondWithError(c, apperrors.ErrRecordNotFound)
		return
	}
	httputil.RespondWithSuccess(c, record)
}

// visiblePatient resolves the patient in the path. Patients only see
// themselves; anyone else is reported as not found.
func visiblePatient(c *gin.Context) (uuid.UUID, bool) {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithBadRequest(c, "invalid patient ID")
		return uuid.Nil, false
	}
	actorID, role, _ := middleware.Actor(c)
	if role == auth.RolePatient && actorID != patientID {
		httputil.RespondWithError(c, apperrors.ErrPatientNotFound)
		return uuid.Nil, false
	}
	return patientID, true
}
