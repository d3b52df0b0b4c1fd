package httpgin

import "github.com/seatline/seatline/internal/domain"

type CheckAvailabilityRequest struct {
	Date      string `json:"date" binding:"required"`
	PartySize int    `json:"party_size" binding:"required,gte=1"`
}

type AvailabilityResponse struct {
	Date  string                    `json:"date"`
	Slots []domain.AvailabilitySlot `json:"slots"`
}

type CreateBookingRequest struct {
	CustomerName        string `json:"customer_name" binding:"required"`
	Date                string `json:"date" binding:"required"`
	Time                string `json:"time" binding:"required"`
	PartySize           int    `json:"party_size" binding:"required,gte=1"`
	SpecialRequirements string `json:"special_requirements"`
	Phone               string `json:"phone"`
}

// BookingResponse carries the reservation plus the phonetic phrase the
// agent reads back to the caller.
type BookingResponse struct {
	Reservation        domain.Reservation `json:"reservation"`
	ConfirmationPhrase string             `json:"confirmation_phrase"`
}

type BookingLookupRequest struct {
	Code string `json:"code" binding:"required"`
}

type FindBookingResponse struct {
	Found              bool                `json:"found"`
	Reservation        *domain.Reservation `json:"reservation,omitempty"`
	ConfirmationPhrase string              `json:"confirmation_phrase,omitempty"`
}

// TelephonyEventRequest is the decoded webhook from the phone provider.
type TelephonyEventRequest struct {
	Type           string `json:"type" binding:"required"`
	CallID         string `json:"call_id"`
	ProviderCallID string `json:"provider_call_id"`
	Status         string `json:"status"`
	Reason         string `json:"reason"`
}

// AgentEventRequest is the decoded webhook from the conversational-voice
// provider.
type AgentEventRequest struct {
	Type           string `json:"type" binding:"required"`
	CallID         string `json:"call_id" binding:"required"`
	ProviderCallID string `json:"provider_call_id"`
	Status         string `json:"status"`
	Reason         string `json:"reason"`
}

// CallActionResponse tells the telephony provider what to do with an
// incoming call.
type CallActionResponse struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

type CallCountsResponse struct {
	Active        int  `json:"active"`
	Pending       int  `json:"pending"`
	MaxConcurrent int  `json:"max_concurrent"`
	CanAccept     bool `json:"can_accept"`
}

type CallStatusResponse struct {
	CallID         string `json:"call_id"`
	ProviderCallID string `json:"provider_call_id"`
	Status         string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
