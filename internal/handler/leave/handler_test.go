package leave

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/hospital-api/internal/app"
	"github.com/jwalitptl/hospital-api/internal/middleware"
	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository/memory"
	"github.com/jwalitptl/hospital-api/internal/service/booking"
	"github.com/jwalitptl/hospital-api/pkg/auth"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

type env struct {
	engine   *gin.Engine
	store    *memory.Store
	services *app.Services
	jwt      auth.JWTService
	doctor   *model.DoctorProfile
}

type envelope struct {
	Status string          `json:"status"`
	Code   string          `json:"code"`
	Data   json.RawMessage `json:"data"`
}

func setup(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	middleware.RegisterBindingValidators()

	store := memory.NewStore()
	doc := &model.DoctorProfile{
		Name:          "Dr. Bose",
		AvailableDays: []string{"Monday", "Tuesday"},
		WorkStart:     "09:00 AM",
		WorkEnd:       "10:00 AM",
		SlotDuration:  30,
	}
	require.NoError(t, store.Doctors().Create(context.Background(), doc))

	services := app.NewServices(store.Repositories(), app.Options{
		Location:   time.UTC,
		BcryptCost: bcrypt.MinCost,
	}, logger.Nop(), metrics.NewNoop())

	jwt := auth.NewJWTService("test-secret", "hospital-api", time.Hour)
	engine := gin.New()
	NewHandler(services.Leaves).RegisterRoutes(engine.Group("/api/v1"), middleware.NewAuthMiddleware(jwt).Authenticate())
	return &env{engine: engine, store: store, services: services, jwt: jwt, doctor: doc}
}

func (e *env) do(t *testing.T, method, path string, id uuid.UUID, role auth.Role, body interface{}) (int, envelope) {
	t.Helper()
	tok, err := e.jwt.GenerateAccessToken(id, role, "")
	require.NoError(t, err)

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestDoctorRequestsAdminApproves(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.services.Schedules.EnsureSchedule(ctx, e.doctor.ID, "2025-03-04")
	require.NoError(t, err)
	pat, err := e.services.Patients.FindOrCreate(ctx, model.PatientMatch{Name: "Nila", Email: "nila@example.com"})
	require.NoError(t, err)
	booked, err := e.services.Booking.BookAppointment(ctx, &booking.Request{
		PatientID:        pat.ID,
		DoctorID:         e.doctor.ID,
		Date:             "2025-03-04",
		TimeSlot:         model.TimeRange{Start: "09:00 AM", End: "09:30 AM"},
		ConsultationType: model.ConsultationOffline,
		PaymentMethod:    model.PaymentMethodCash,
	})
	require.NoError(t, err)

	status, resp := e.do(t, http.MethodPost, "/api/v1/leaves", e.doctor.ID, auth.RoleDoctor, map[string]string{
		"start_date": "2025-03-04",
		"end_date":   "2025-03-05",
		"type":       "sick",
	})
	require.Equal(t, http.StatusCreated, status)
	var leave model.LeaveRequest
	require.NoError(t, json.Unmarshal(resp.Data, &leave))
	assert.Equal(t, e.doctor.ID, leave.DoctorID)
	assert.Equal(t, model.LeaveStatusPending, leave.Status)
	assert.Equal(t, model.LeaveDurationFullDay, leave.Duration)

	approvePath := "/api/v1/leaves/" + leave.ID.String() + "/approve"
	status, _ = e.do(t, http.MethodPost, approvePath, e.doctor.ID, auth.RoleDoctor, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, resp = e.do(t, http.MethodPost, approvePath, uuid.New(), auth.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, status)
	var report model.LeaveApplication
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	assert.Equal(t, 1, report.BlockedSchedules)
	assert.Equal(t, []uuid.UUID{booked.Appointment.ID}, report.CancelledAppointments)
	assert.Empty(t, report.Failures)
	assert.True(t, report.Leave.EffectsCompleted)

	apt, err := e.store.Appointments().Get(ctx, booked.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusHospitalCancelled, apt.Status)

	status, resp = e.do(t, http.MethodPost, approvePath, uuid.New(), auth.RoleAdmin, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "InvalidState", resp.Code)
}

func TestAdminFilesLeaveForDoctor(t *testing.T) {
	e := setup(t)
	admin := uuid.New()
	body := map[string]string{"start_date": "2025-03-10", "end_date": "2025-03-10", "type": "casual", "duration": "half_day"}

	status, resp := e.do(t, http.MethodPost, "/api/v1/leaves", admin, auth.RoleAdmin, body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "InvalidInput", resp.Code)

	body["doctor_id"] = e.doctor.ID.String()
	status, _ = e.do(t, http.MethodPost, "/api/v1/leaves", admin, auth.RoleAdmin, body)
	require.Equal(t, http.StatusCreated, status)

	status, resp = e.do(t, http.MethodGet, "/api/v1/leaves?status=pending", e.doctor.ID, auth.RoleDoctor, nil)
	require.Equal(t, http.StatusOK, status)
	var leaves []model.LeaveRequest
	require.NoError(t, json.Unmarshal(resp.Data, &leaves))
	require.Len(t, leaves, 1)
	assert.Equal(t, model.LeaveDurationHalfDay, leaves[0].Duration)

	status, resp = e.do(t, http.MethodGet, "/api/v1/leaves/"+leaves[0].ID.String(), uuid.New(), auth.RoleDoctor, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "LeaveNotFound", resp.Code)
}

func TestRejectAndRetry(t *testing.T) {
	e := setup(t)
	status, resp := e.do(t, http.MethodPost, "/api/v1/leaves", e.doctor.ID, auth.RoleDoctor, map[string]string{
		"start_date": "2025-03-10", "end_date": "2025-03-10", "type": "casual",
	})
	require.Equal(t, http.StatusCreated, status)
	var leave model.LeaveRequest
	require.NoError(t, json.Unmarshal(resp.Data, &leave))

	status, resp = e.do(t, http.MethodPost, "/api/v1/leaves/"+leave.ID.String()+"/reject", uuid.New(), auth.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(resp.Data, &leave))
	assert.Equal(t, model.LeaveStatusRejected, leave.Status)

	status, resp = e.do(t, http.MethodPost, "/api/v1/leaves/"+leave.ID.String()+"/retry", uuid.New(), auth.RoleAdmin, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "InvalidState", resp.Code)
}

func TestRequestLeaveValidation(t *testing.T) {
	e := setup(t)
	tests := []struct {
		name string
		body map[string]string
	}{
		{"bad date", map[string]string{"start_date": "2025/03/10", "end_date": "2025-03-10", "type": "sick"}},
		{"bad type", map[string]string{"start_date": "2025-03-10", "end_date": "2025-03-10", "type": "vacation"}},
		{"bad duration", map[string]string{"start_date": "2025-03-10", "end_date": "2025-03-10", "type": "sick", "duration": "hourly"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := e.do(t, http.MethodPost, "/api/v1/leaves", e.doctor.ID, auth.RoleDoctor, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "error", resp.Status)
		})
	}

	status, resp := e.do(t, http.MethodPost, "/api/v1/leaves", e.doctor.ID, auth.RoleDoctor,
		map[string]string{"start_date": "2025-03-12", "end_date": "2025-03-10", "type": "sick"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "InvalidDate", resp.Code)
}
