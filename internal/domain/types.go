package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationCompleted ReservationStatus = "COMPLETED"
	ReservationNoShow    ReservationStatus = "NO_SHOW"
)

// Reservation is a confirmed (or formerly confirmed) table booking.
// Date carries no time component and is stored as YYYY-MM-DD; Time is one
// of the fixed slot labels from the calendar.
type Reservation struct {
	ID                  uuid.UUID         `json:"id"`
	ConfirmationCode    string            `json:"confirmation_code"`
	CustomerName        string            `json:"customer_name"`
	Phone               string            `json:"phone,omitempty"`
	Date                string            `json:"date"`
	Time                string            `json:"time"`
	PartySize           int               `json:"party_size"`
	SpecialRequirements string            `json:"special_requirements,omitempty"`
	Status              ReservationStatus `json:"status"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// AvailabilitySlot is derived per query and never persisted.
type AvailabilitySlot struct {
	Date              string `json:"date"`
	Time              string `json:"time"`
	RemainingCapacity int    `json:"remaining_capacity"`
}

type CallStatus string

const (
	CallConnecting CallStatus = "connecting"
	CallActive     CallStatus = "active"
	CallEnding     CallStatus = "ending"
	CallEnded      CallStatus = "ended"
)

// CallRecord is the persisted trace of a phone call, written from call
// lifecycle notifications. The in-memory active-call table stays
// authoritative for admission; these rows are telemetry.
type CallRecord struct {
	ID             uuid.UUID  `json:"id"`
	CallID         string     `json:"call_id"`
	ProviderCallID string     `json:"provider_call_id"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	EndReason      string     `json:"end_reason,omitempty"`
}
