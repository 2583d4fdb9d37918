package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/slot-booking/internal/reservation"
	"github.com/hackgods/slot-booking/internal/slot"
	"github.com/hackgods/slot-booking/internal/slotgen"
)

type ReservationRequest struct {
	ClaimantID string `json:"claimant_id"`
}

type BookingRequest struct {
	ClaimantID  string `json:"claimant_id"`
	Method      string `json:"payment_method"`
	AmountCents int64  `json:"amount_cents"`
	CardDetails string `json:"card_details,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type StatusRequest struct {
	Status    string `json:"status"`
	ActorType string `json:"actor_type,omitempty"` // PATIENT, PROVIDER or SYSTEM
	ActorID   string `json:"actor_id,omitempty"`
	Note      string `json:"note,omitempty"`
}

type ProvisionRequest struct {
	Date string `json:"date"`
	To   string `json:"to,omitempty"`
}

type SlotResponse struct {
	ID                   uuid.UUID  `json:"id"`
	ProviderID           uuid.UUID  `json:"provider_id"`
	ClaimantID           *uuid.UUID `json:"claimant_id,omitempty"`
	StartTime            time.Time  `json:"start_time"`
	EndTime              time.Time  `json:"end_time"`
	DurationMinutes      int        `json:"duration_minutes"`
	Status               string     `json:"status"`
	Version              int64      `json:"version"`
	ReservedBy           *uuid.UUID `json:"reserved_by,omitempty"`
	ReservationExpiresAt *time.Time `json:"reservation_expires_at,omitempty"`
}

type CandidateResponse struct {
	Start           time.Time  `json:"start"`
	End             time.Time  `json:"end"`
	DurationMinutes int        `json:"duration_minutes"`
	Available       bool       `json:"available"`
	Reason          string     `json:"reason,omitempty"`
	SlotID          *uuid.UUID `json:"slot_id,omitempty"`
}

type ReservationResponse struct {
	SlotID     uuid.UUID `json:"slot_id"`
	ClaimantID uuid.UUID `json:"claimant_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	Version    int64     `json:"version"`
}

type AvailabilityResponse struct {
	SlotID    uuid.UUID `json:"slot_id"`
	Available bool      `json:"available"`
}

type PaymentResponse struct {
	ID            uuid.UUID  `json:"id"`
	SlotID        uuid.UUID  `json:"slot_id"`
	Method        string     `json:"method"`
	Status        string     `json:"status"`
	AmountCents   int64      `json:"amount_cents"`
	TransactionID string     `json:"transaction_id"`
	CardDetails   *string    `json:"card_details,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

type BookingResponse struct {
	Slot    SlotResponse    `json:"slot"`
	Payment PaymentResponse `json:"payment"`
}

type HistoryEntryResponse struct {
	ID         int64     `json:"id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ChangedAt  time.Time `json:"changed_at"`
	ChangedBy  string    `json:"changed_by"`
	Note       *string   `json:"note,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func toSlotResponse(s slot.Slot) SlotResponse {
	return SlotResponse{
		ID:                   s.ID,
		ProviderID:           s.ProviderID,
		ClaimantID:           s.ClaimantID,
		StartTime:            s.StartTime,
		EndTime:              s.EndTime(),
		DurationMinutes:      s.DurationMinutes,
		Status:               string(s.Status),
		Version:              s.Version,
		ReservedBy:           s.ReservedBy,
		ReservationExpiresAt: s.ReservationExpiresAt,
	}
}

func toSlotResponses(slots []slot.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	return out
}

func toCandidateResponses(cands []slotgen.Candidate) []CandidateResponse {
	out := make([]CandidateResponse, 0, len(cands))
	for _, c := range cands {
		out = append(out, CandidateResponse{
			Start:           c.Start,
			End:             c.End,
			DurationMinutes: c.DurationMinutes,
			Available:       c.Available,
			Reason:          c.Reason,
			SlotID:          c.SlotID,
		})
	}
	return out
}

func toReservationResponse(r *reservation.Reservation) ReservationResponse {
	return ReservationResponse{
		SlotID:     r.SlotID,
		ClaimantID: r.ClaimantID,
		ExpiresAt:  r.ExpiresAt,
		Version:    r.Version,
	}
}

func toPaymentResponse(p slot.PaymentRecord) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		SlotID:        p.SlotID,
		Method:        string(p.Method),
		Status:        string(p.Status),
		AmountCents:   p.AmountCents,
		TransactionID: p.TransactionID,
		CardDetails:   p.CardDetails,
		Notes:         p.Notes,
		CreatedAt:     p.CreatedAt,
		PaidAt:        p.PaidAt,
	}
}

func toHistoryResponses(entries []slot.StatusHistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntryResponse{
			ID:         e.ID,
			FromStatus: string(e.FromStatus),
			ToStatus:   string(e.ToStatus),
			ChangedAt:  e.ChangedAt,
			ChangedBy:  e.ChangedBy,
			Note:       e.Note,
		})
	}
	return out
}
