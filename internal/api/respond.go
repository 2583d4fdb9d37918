package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hackgods/slot-booking/internal/booking"
	"github.com/hackgods/slot-booking/internal/slot"
	"github.com/hackgods/slot-booking/internal/status"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, details string) {
	writeJSON(w, code, ErrorResponse{Error: errCode, Details: details})
}

// writeDomainError maps an error kind to its HTTP status. Order matters:
// specific errors are matched before the kind they wrap.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, slot.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, slot.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, slot.ErrClaimantNotFound):
		writeError(w, http.StatusNotFound, "claimant_not_found", err.Error())
	case errors.Is(err, slot.ErrPaymentNotFound):
		writeError(w, http.StatusNotFound, "payment_not_found", err.Error())
	case errors.Is(err, slot.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, booking.ErrInvalidRequest):
		writeError(w, http.StatusUnprocessableEntity, "invalid_booking", err.Error())
	case errors.Is(err, status.ErrBookingRequired):
		writeError(w, http.StatusUnprocessableEntity, "booking_required", err.Error())
	case errors.Is(err, slot.ErrReservedByOther):
		writeError(w, http.StatusConflict, "reserved_by_other", err.Error())
	case errors.Is(err, slot.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, slot.ErrReservationExpired):
		writeError(w, http.StatusGone, "reservation_expired", err.Error())
	case errors.Is(err, slot.ErrAlreadyPaid):
		writeError(w, http.StatusConflict, "already_paid", err.Error())
	case errors.Is(err, slot.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, slot.ErrProviderUnavailable):
		writeError(w, http.StatusConflict, "provider_unavailable", err.Error())
	case errors.Is(err, slot.ErrConcurrentConflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "concurrent_conflict",
			Details:   err.Error(),
			Retryable: true,
		})
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
