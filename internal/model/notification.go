package model

import (
	"github.com/google/uuid"
)

type NotificationKind string

const (
	NotificationConfirmed      NotificationKind = "confirmed"
	NotificationCancelled      NotificationKind = "cancelled"
	NotificationLeaveCancelled NotificationKind = "leave_cancelled"
)

type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "email"
	ChannelSMS   NotificationChannel = "sms"
)

// AppointmentDetails is what a patient is told about an appointment
type AppointmentDetails struct {
	AppointmentID    uuid.UUID        `json:"appointment_id"`
	DoctorName       string           `json:"doctor_name,omitempty"`
	Date             string           `json:"date"`
	TimeSlot         TimeRange        `json:"time_slot"`
	ConsultationType ConsultationType `json:"consultation_type"`
	TokenNumber      *int             `json:"token_number,omitempty"`
	VideoLink        *string          `json:"video_link,omitempty"`
	Reason           string           `json:"reason,omitempty"`
}

// NotificationRequest is the outbox payload for a patient notification
type NotificationRequest struct {
	Kind    NotificationKind   `json:"kind"`
	Contact Contact            `json:"contact"`
	Details AppointmentDetails `json:"details"`
}
