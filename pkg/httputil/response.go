package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/hospital-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status  string      `json:"status"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Pagination represents pagination metadata
type Pagination struct {
	Page      int `json:"page"`
	PageSize  int `json:"page_size"`
	Total     int `json:"total"`
	TotalPage int `json:"total_pages"`
}

// PaginatedResponse wraps paginated data
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Status: "success",
		Data:   data,
	})
}

// RespondWithCreated sends a 201 success response
func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Status: "success",
		Data:   data,
	})
}

// StatusFor maps an error kind onto an HTTP status code
func StatusFor(kind errors.Kind) int {
	switch kind {
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindConflict:
		return http.StatusConflict
	case errors.KindAuthorization:
		return http.StatusForbidden
	case errors.KindDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithError sends an error response. Errors that are not AppErrors
// never leak their text to the client.
func RespondWithError(c *gin.Context, err error) {
	appErr, ok := errors.As(err)
	if !ok || appErr.Kind == errors.KindInternal {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Internal error")
		c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
			Status:  "error",
			Code:    string(errors.CodeInternal),
			Message: "Internal server error",
		})
		return
	}

	c.AbortWithStatusJSON(StatusFor(appErr.Kind), Response{
		Status:  "error",
		Code:    string(appErr.Code),
		Message: appErr.Message,
	})
}

// RespondWithBadRequest reports a request binding failure
func RespondWithBadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Response{
		Status:  "error",
		Code:    string(errors.CodeInvalidInput),
		Message: message,
	})
}

// RespondWithPagination sends a paginated response
func RespondWithPagination(c *gin.Context, data interface{}, page, pageSize, total int) {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	c.JSON(http.StatusOK, Response{
		Status: "success",
		Data: PaginatedResponse{
			Data: data,
			Pagination: Pagination{
				Page:      page,
				PageSize:  pageSize,
				Total:     total,
				TotalPage: totalPages,
			},
		},
	})
}

// RespondWithUnauthenticated reports a missing or invalid credential
func RespondWithUnauthenticated(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
		Status:  "error",
		Code:    string(errors.CodeUnauthorized),
		Message: message,
	})
}
