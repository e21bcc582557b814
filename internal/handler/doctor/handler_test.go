package doctor

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/middleware"
	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository/memory"
	doctorService "github.com/jwalitptl/hospital-api/internal/service/doctor"
	"github.com/jwalitptl/hospital-api/pkg/auth"
	"github.com/jwalitptl/hospital-api/pkg/logger"
)

type env struct {
	engine *gin.Engine
	jwt    auth.JWTService
}

func setup(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	middleware.RegisterBindingValidators()

	svc := doctorService.NewService(memory.NewStore().Doctors(), time.Minute, logger.Nop())
	jwt := auth.NewJWTService("test-secret", "hospital-api", time.Hour)
	engine := gin.New()
	NewHandler(svc).RegisterRoutes(engine.Group("/api/v1"), middleware.NewAuthMiddleware(jwt).Authenticate())
	return &env{engine: engine, jwt: jwt}
}

func (e *env) do(t *testing.T, method, path string, role auth.Role, actor uuid.UUID, body interface{}) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		tok, err := e.jwt.GenerateAccessToken(actor, role, "")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func profile() map[string]interface{} {
	return map[string]interface{}{
		"name":           "Dr. Kapoor",
		"email":          "kapoor@hospital.local",
		"available_days": []string{"Monday", "Thursday"},
		"work_start":     "09:00 AM",
		"work_end":       "01:00 PM",
		"breaks":         []map[string]string{{"start": "11:00 AM", "end": "11:30 AM"}},
		"offline_fee":    80,
		"online_fee":     100,
	}
}

func TestAdminCreatesDoctor(t *testing.T) {
	e := setup(t)

	w, resp := e.do(t, http.MethodPost, "/api/v1/doctors", auth.RoleAdmin, uuid.New(), profile())
	require.Equal(t, http.StatusCreated, w.Code)
	var created model.DoctorProfile
	require.NoError(t, json.Unmarshal(resp["data"], &created))
	assert.Equal(t, 30, created.SlotDuration)
	assert.Equal(t, model.AvailabilityAvailable, created.Status)

	w, resp = e.do(t, http.MethodGet, "/api/v1/doctors/"+created.ID.String(), "", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fetched model.DoctorProfile
	require.NoError(t, json.Unmarshal(resp["data"], &fetched))
	assert.Equal(t, "Dr. Kapoor", fetched.Name)
	assert.Len(t, fetched.Breaks, 1)
}

func TestCreateRequiresAdmin(t *testing.T) {
	e := setup(t)

	w, _ := e.do(t, http.MethodPost, "/api/v1/doctors", auth.RoleReceptionist, uuid.New(), profile())
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = e.do(t, http.MethodPost, "/api/v1/doctors", "", uuid.Nil, profile())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateValidation(t *testing.T) {
	e := setup(t)

	tests := []struct {
		name  string
		field string
		value interface{}
	}{
		{"bad clock", "work_start", "9 o'clock"},
		{"no days", "available_days", []string{}},
		{"bad status", "status", "on-call"},
		{"bad weekday", "available_days", []string{"Funday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := profile()
			body[tt.field] = tt.value
			w, _ := e.do(t, http.MethodPost, "/api/v1/doctors", auth.RoleAdmin, uuid.New(), body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestDoctorUpdatesOwnProfile(t *testing.T) {
	e := setup(t)
	_, resp := e.do(t, http.MethodPost, "/api/v1/doctors", auth.RoleAdmin, uuid.New(), profile())
	var created model.DoctorProfile
	require.NoError(t, json.Unmarshal(resp["data"], &created))
	path := "/api/v1/doctors/" + created.ID.String()

	// warm the profile cache before the edit
	w, _ := e.do(t, http.MethodGet, path, "", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := profile()
	body["slot_duration"] = 15
	body["status"] = "unavailable"
	w, _ = e.do(t, http.MethodPut, path, auth.RoleDoctor, uuid.New(), body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = e.do(t, http.MethodPut, path, auth.RoleDoctor, created.ID, body)
	require.Equal(t, http.StatusOK, w.Code)

	_, resp = e.do(t, http.MethodGet, path, "", uuid.Nil, nil)
	var fetched model.DoctorProfile
	require.NoError(t, json.Unmarshal(resp["data"], &fetched))
	assert.Equal(t, 15, fetched.SlotDuration)

	_, resp = e.do(t, http.MethodGet, "/api/v1/doctors", "", uuid.Nil, nil)
	var listed []model.DoctorProfile
	require.NoError(t, json.Unmarshal(resp["data"], &listed))
	assert.Empty(t, listed)
}

func TestUnknownDoctor(t *testing.T) {
	e := setup(t)
	w, resp := e.do(t, http.MethodGet, "/api/v1/doctors/"+uuid.NewString(), "", uuid.Nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `"DoctorNotFound"`, string(resp["code"]))
}
