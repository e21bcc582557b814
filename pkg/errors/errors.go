package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and transport layers
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAuthorization
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAuthorization:
		return "authorization"
	case KindDependency:
		return "dependency"
	default:
		return "internal"
	}
}

// Code is a stable, machine readable error identifier
type Code string

const (
	CodeInvalidDate             Code = "InvalidDate"
	CodeInvalidTimeSlot         Code = "InvalidTimeSlot"
	CodeInvalidStatus           Code = "InvalidStatus"
	CodeInvalidPaymentMethod    Code = "InvalidPaymentMethod"
	CodeInvalidConsultationType Code = "InvalidConsultationType"
	CodeInvalidInput            Code = "InvalidInput"
	CodeDoctorNotFound          Code = "DoctorNotFound"
	CodePatientNotFound         Code = "PatientNotFound"
	CodeNoScheduleForDate       Code = "NoScheduleForDate"
	CodeSlotNotFound            Code = "SlotNotFound"
	CodeAppointmentNotFound     Code = "AppointmentNotFound"
	CodeLeaveNotFound           Code = "LeaveNotFound"
	CodeRecordNotFound          Code = "MedicalRecordNotFound"
	CodeSlotAlreadyBooked       Code = "SlotAlreadyBooked"
	CodeSlotUnavailable         Code = "SlotUnavailable"
	CodePatientDoubleBooked     Code = "PatientDoubleBooked"
	CodeScheduleExists          Code = "ScheduleExists"
	CodeInvalidState            Code = "InvalidState"
	CodeInvalidTransition       Code = "InvalidTransition"
	CodeUnauthorized            Code = "Unauthorized"
	CodeNotificationFailed      Code = "NotificationFailed"
	CodeInternal                Code = "Internal"
)

// AppError represents an application error
type AppError struct {
	Kind    Kind   `json:"-"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another AppError by code so sentinel comparisons work through wrapping.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New builds an AppError of the given kind
func New(kind Kind, code Code, message string, err error) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func Validation(code Code, message string) *AppError {
	return New(KindValidation, code, message, nil)
}

func NotFound(code Code, resource string) *AppError {
	return New(KindNotFound, code, fmt.Sprintf("%s not found", resource), nil)
}

func Conflict(code Code, message string) *AppError {
	return New(KindConflict, code, message, nil)
}

func Unauthorized(message string) *AppError {
	return New(KindAuthorization, CodeUnauthorized, message, nil)
}

func Dependency(code Code, message string, err error) *AppError {
	return New(KindDependency, code, message, err)
}

func Internal(err error) *AppError {
	return New(KindInternal, CodeInternal, "internal server error", err)
}

// As returns the first AppError in err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf reports the kind of err, KindInternal for foreign errors
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// CodeOf reports the code of err, CodeInternal for foreign errors
func CodeOf(err error) Code {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Common errors
var (
	ErrSlotNotFound        = NotFound(CodeSlotNotFound, "slot")
	ErrSlotAlreadyBooked   = Conflict(CodeSlotAlreadyBooked, "slot is already booked")
	ErrSlotUnavailable     = Conflict(CodeSlotUnavailable, "slot is no longer available")
	ErrNoScheduleForDate   = NotFound(CodeNoScheduleForDate, "schedule for date")
	ErrPatientDoubleBooked = Conflict(CodePatientDoubleBooked, "patient already has an appointment in this slot")
	ErrScheduleExists      = Conflict(CodeScheduleExists, "schedule already exists for date")
	ErrDoctorNotFound      = NotFound(CodeDoctorNotFound, "doctor")
	ErrPatientNotFound     = NotFound(CodePatientNotFound, "patient")
	ErrAppointmentNotFound = NotFound(CodeAppointmentNotFound, "appointment")
	ErrLeaveNotFound       = NotFound(CodeLeaveNotFound, "leave request")
	ErrRecordNotFound      = NotFound(CodeRecordNotFound, "medical record")
	ErrInvalidState        = Conflict(CodeInvalidState, "leave request has already been decided")
	ErrInvalidTransition   = Conflict(CodeInvalidTransition, "appointment status changed concurrently")
)
