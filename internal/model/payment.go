package model

import (
	"github.com/google/uuid"
)

type PaymentMethod string

const (
	PaymentMethodUPI        PaymentMethod = "UPI"
	PaymentMethodCard       PaymentMethod = "Card"
	PaymentMethodNetBanking PaymentMethod = "NetBanking"
	PaymentMethodCash       PaymentMethod = "Cash"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type PaymentChannel string

const (
	PaymentChannelOnline  PaymentChannel = "online"
	PaymentChannelOffline PaymentChannel = "offline"
	PaymentChannelWalkIn  PaymentChannel = "walk_in"
)

type Payment struct {
	Base
	AppointmentID uuid.UUID      `db:"appointment_id" json:"appointment_id"`
	PatientID     uuid.UUID      `db:"patient_id" json:"patient_id"`
	Amount        float64        `db:"amount" json:"amount"`
	Method        PaymentMethod  `db:"method" json:"method"`
	Status        PaymentStatus  `db:"status" json:"status"`
	Channel       PaymentChannel `db:"channel" json:"channel"`
}
