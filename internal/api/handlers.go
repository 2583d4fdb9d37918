package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/slot-booking/internal/booking"
	"github.com/hackgods/slot-booking/internal/reservation"
	"github.com/hackgods/slot-booking/internal/slot"
	"github.com/hackgods/slot-booking/internal/slotgen"
	"github.com/hackgods/slot-booking/internal/status"
)

// maxRangeDays bounds generation and listing windows.
const maxRangeDays = 62

func parseIDParam(w http.ResponseWriter, r *http.Request, name, errCode string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, errCode, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, raw, time.UTC)
}

// parseDateRange reads from/to dates; to defaults to from and is inclusive.
func parseDateRange(w http.ResponseWriter, fromRaw, toRaw string) (time.Time, time.Time, bool) {
	from, err := parseDate(fromRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	to := from
	if toRaw != "" {
		if to, err = parseDate(toRaw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "to must be YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "invalid_range", "to must not be before date")
		return time.Time{}, time.Time{}, false
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		writeError(w, http.StatusBadRequest, "invalid_range", "range is too long")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func candidatesHandler(gen *slotgen.Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseIDParam(w, r, "id", "invalid_provider_id")
		if !ok {
			return
		}
		q := r.URL.Query()
		from, to, ok := parseDateRange(w, q.Get("date"), q.Get("to"))
		if !ok {
			return
		}

		cands, err := gen.GenerateRange(r.Context(), providerID, from, to)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toCandidateResponses(cands))
	}
}

func provisionHandler(gen *slotgen.Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseIDParam(w, r, "id", "invalid_provider_id")
		if !ok {
			return
		}
		var req ProvisionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		from, to, ok := parseDateRange(w, req.Date, req.To)
		if !ok {
			return
		}

		var created []slot.Slot
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			slots, err := gen.Provision(r.Context(), providerID, day)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			created = append(created, slots...)
		}

		writeJSON(w, http.StatusCreated, toSlotResponses(created))
	}
}

func listSlotsHandler(store slot.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseIDParam(w, r, "id", "invalid_provider_id")
		if !ok {
			return
		}
		q := r.URL.Query()
		fromRaw := q.Get("from")
		if fromRaw == "" {
			fromRaw = time.Now().UTC().Format(time.DateOnly)
		}
		from, to, ok := parseDateRange(w, fromRaw, q.Get("to"))
		if !ok {
			return
		}

		slots, err := store.ListSlotsByProvider(r.Context(), providerID, from, to.AddDate(0, 0, 1))
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func getSlotHandler(store slot.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := parseIDParam(w, r, "id", "invalid_slot_id")
		if !ok {
			return
		}

		s, err := store.GetSlot(r.Context(), slotID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(*s))
	}
}

func deleteSlotHandler(store slot.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := parseIDParam(w, r, "id", "invalid_slot_id")
		if !ok {
			return
		}

		if err := store.DeleteAvailableSlot(r.Context(), slotID); err != nil {
			writeDomainError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func reserveHandler(mgr *reservation.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := parseIDParam(w, r, "id", "invalid_slot_id")
		if !ok {
			return
		}
		var req ReservationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		claimantID, err := uuid.Parse(req.ClaimantID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_claimant_id", "claimant_id must be a valid UUID")
			return
		}

		res, err := mgr.Reserve(r.Context(), slotID, claimantID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toReservationResponse(res))
	}
}

func releaseHandler(mgr *reservation.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := parseIDParam(w, r, "id", "invalid_slot_id")
		if !ok {
			return
		}
		claimantID, err := uuid.Parse(r.URL.Query().Get("claimant_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_claimant_id", "claimant_id must be a valid UUID")
			return
		}

		mgr.Release(r.Context(), slotID, claimantID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func availabilityHandler(mgr *reservation.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := parseIDParam(w, r, "id", "invalid_slot_id")
		if !ok {
			return
		}
		claimantID, err := uuid.Parse(r.URL.Query().Get("claimant_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_claimant_id", "claimant_id must be a valid UUID")
			return
		}

		available, err := mgr.IsAvailable(r.Context(), slotID, claimantID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{SlotID: slotID, Available: available})
	}
}

func bookHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := parseIDParam(w, r, "id", "invalid_slot_id")
		if !ok {
			return
		}
		var req BookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		claimantID, err := uuid.Parse(req.ClaimantID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_claimant_id", "claimant_id must be a valid UUID")
			return
		}

		res, err := engine.Book(r.Context(), booking.Request{
			SlotID:      slotID,
			ClaimantID:  claimantID,
			Method:      slot.PaymentMethod(strings.ToUpper(req.Method)),
			AmountCents: req.AmountCents,
			CardDetails: req.CardDetails,
			Notes:       req.Notes,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, BookingResponse{
			Slot:    toSlotResponse(res.Slot),
			Payment: toPaymentResponse(res.Payment),
		})
	}
}

func statusHandler(auth *status.Authority) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := parseIDParam(w, r, "id", "invalid_slot_id")
		if !ok {
			return
		}
		var req StatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		actor, err := actorTag(req.ActorType, req.ActorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_actor", err.Error())
			return
		}

		s, err := auth.Transition(r.Context(), status.Request{
			SlotID: slotID,
			To:     slot.Status(strings.ToUpper(req.Status)),
			Actor:  actor,
			Note:   req.Note,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(*s))
	}
}

func actorTag(actorType, actorID string) (string, error) {
	switch strings.ToUpper(actorType) {
	case "", "SYSTEM":
		return status.SystemActor, nil
	case "PATIENT", "PROVIDER":
		id, err := uuid.Parse(actorID)
		if err != nil {
			return "", errors.New("actor_id must be a valid UUID")
		}
		if strings.EqualFold(actorType, "PATIENT") {
			return status.PatientActor(id), nil
		}
		return status.ProviderActor(id), nil
	default:
		return "", errors.New("actor_type must be PATIENT, PROVIDER or SYSTEM")
	}
}

func historyHandler(store slot.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := parseIDParam(w, r, "id", "invalid_slot_id")
		if !ok {
			return
		}
		if _, err := store.GetSlot(r.Context(), slotID); err != nil {
			writeDomainError(w, err)
			return
		}

		entries, err := store.ListHistory(r.Context(), slotID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toHistoryResponses(entries))
	}
}

func paymentHandler(store slot.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := parseIDParam(w, r, "id", "invalid_slot_id")
		if !ok {
			return
		}

		p, err := store.GetPayment(r.Context(), slotID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPaymentResponse(*p))
	}
}
