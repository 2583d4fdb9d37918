package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/slot-booking/internal/booking"
	"github.com/hackgods/slot-booking/internal/reservation"
	"github.com/hackgods/slot-booking/internal/slot"
	"github.com/hackgods/slot-booking/internal/slotgen"
	"github.com/hackgods/slot-booking/internal/status"
)

// 2026-03-02 is a Monday.
const testDate = "2026-03-02"

type testServer struct {
	handler    http.Handler
	store      *slot.MemStore
	providerID uuid.UUID
	claimants  []uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := slot.NewMemStore()
	log := zerolog.Nop()

	providerID := uuid.New()
	store.AddProvider(slot.Provider{ID: providerID, Name: "Dr Test", SlotDurationMinutes: 30})
	store.AddRule(slot.AvailabilityRule{ProviderID: providerID, Weekday: time.Monday, Start: slot.Clock(9, 0), End: slot.Clock(10, 0)})

	var claimants []uuid.UUID
	for i := 0; i < 2; i++ {
		id := uuid.New()
		store.AddClaimant(slot.Claimant{ID: id, Name: fmt.Sprintf("Patient %d", i)})
		claimants = append(claimants, id)
	}

	handler := NewRouter(RouterConfig{
		Store:        store,
		Generator:    slotgen.NewGenerator(store, store, slotgen.DefaultSlotMinutes, log),
		Reservations: reservation.NewManager(store, log),
		Booking:      booking.NewEngine(store, store, log),
		Status:       status.NewAuthority(store, log),
		Logger:       log,
		Env:          "test",
	})

	return &testServer{handler: handler, store: store, providerID: providerID, claimants: claimants}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func (s *testServer) provision(t *testing.T) []SlotResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/providers/"+s.providerID.String()+"/slots/provision", ProvisionRequest{Date: testDate})
	if rec.Code != http.StatusCreated {
		t.Fatalf("provision: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[[]SlotResponse](t, rec)
}

func TestCandidatesAndProvision(t *testing.T) {
	s := newTestServer(t)
	path := "/providers/" + s.providerID.String() + "/candidates?date=" + testDate

	rec := s.do(t, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	cands := decode[[]CandidateResponse](t, rec)
	if len(cands) != 2 || !cands[0].Available {
		t.Fatalf("expected 2 available candidates, got %+v", cands)
	}

	slots := s.provision(t)
	if len(slots) != 2 {
		t.Fatalf("expected 2 provisioned slots, got %d", len(slots))
	}

	cands = decode[[]CandidateResponse](t, s.do(t, http.MethodGet, path, nil))
	for _, c := range cands {
		if c.Available || c.Reason != slotgen.ReasonAlreadyBooked {
			t.Errorf("expected candidate marked already booked, got %+v", c)
		}
	}

	listed := decode[[]SlotResponse](t, s.do(t, http.MethodGet, "/providers/"+s.providerID.String()+"/slots?from="+testDate, nil))
	if len(listed) != 2 {
		t.Errorf("expected 2 listed slots, got %d", len(listed))
	}
}

func TestReserveBookConfirmFlow(t *testing.T) {
	s := newTestServer(t)
	slotID := s.provision(t)[0].ID.String()
	a, b := s.claimants[0], s.claimants[1]

	rec := s.do(t, http.MethodPost, "/slots/"+slotID+"/reservation", ReservationRequest{ClaimantID: a.String()})
	if rec.Code != http.StatusCreated {
		t.Fatalf("reserve: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/slots/"+slotID+"/reservation", ReservationRequest{ClaimantID: b.String()})
	if rec.Code != http.StatusConflict {
		t.Fatalf("competing reserve: expected 409, got %d", rec.Code)
	}

	avail := decode[AvailabilityResponse](t, s.do(t, http.MethodGet, "/slots/"+slotID+"/availability?claimant_id="+b.String(), nil))
	if avail.Available {
		t.Errorf("expected slot unavailable to B while A holds it")
	}

	rec = s.do(t, http.MethodPost, "/slots/"+slotID+"/booking", BookingRequest{ClaimantID: a.String(), Method: "card", AmountCents: 4500, CardDetails: "4242424242424242"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("book: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	booked := decode[BookingResponse](t, rec)
	if booked.Slot.Status != string(slot.StatusBooked) || booked.Payment.Status != string(slot.PaymentCompleted) {
		t.Errorf("unexpected booking response: %+v", booked)
	}
	if booked.Payment.CardDetails == nil || *booked.Payment.CardDetails != "**** **** **** 4242" {
		t.Errorf("expected masked card, got %v", booked.Payment.CardDetails)
	}

	rec = s.do(t, http.MethodPost, "/slots/"+slotID+"/booking", BookingRequest{ClaimantID: b.String(), Method: "cash"})
	if rec.Code != http.StatusConflict {
		t.Errorf("second booking: expected 409, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/slots/"+slotID+"/status", StatusRequest{Status: "confirmed", ActorType: "provider", ActorID: s.providerID.String()})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/slots/"+slotID+"/status", StatusRequest{Status: "available"})
	if rec.Code != http.StatusConflict {
		t.Errorf("illegal transition: expected 409, got %d", rec.Code)
	}

	history := decode[[]HistoryEntryResponse](t, s.do(t, http.MethodGet, "/slots/"+slotID+"/history", nil))
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[1].ChangedBy != status.ProviderActor(s.providerID) {
		t.Errorf("unexpected actor %q", history[1].ChangedBy)
	}

	payment := decode[PaymentResponse](t, s.do(t, http.MethodGet, "/slots/"+slotID+"/payment", nil))
	if payment.TransactionID != booked.Payment.TransactionID || payment.ID == uuid.Nil {
		t.Errorf("unexpected payment: %+v", payment)
	}

	rec = s.do(t, http.MethodDelete, "/slots/"+slotID, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("delete booked slot: expected 409, got %d", rec.Code)
	}
}

func TestReleaseAlwaysSucceeds(t *testing.T) {
	s := newTestServer(t)
	slotID := s.provision(t)[0].ID.String()
	a := s.claimants[0].String()

	s.do(t, http.MethodPost, "/slots/"+slotID+"/reservation", ReservationRequest{ClaimantID: a})

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodDelete, "/slots/"+slotID+"/reservation?claimant_id="+a, nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("release %d: expected 204, got %d", i, rec.Code)
		}
	}
	rec := s.do(t, http.MethodDelete, "/slots/"+uuid.NewString()+"/reservation?claimant_id="+a, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("release of missing slot: expected 204, got %d", rec.Code)
	}

	got := decode[SlotResponse](t, s.do(t, http.MethodGet, "/slots/"+slotID, nil))
	if got.ReservedBy != nil {
		t.Errorf("expected reservation cleared")
	}
}

func TestBadInput(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"bad slot id", http.MethodGet, "/slots/not-a-uuid", nil, http.StatusBadRequest},
		{"unknown slot", http.MethodGet, "/slots/" + uuid.NewString(), nil, http.StatusNotFound},
		{"bad date", http.MethodGet, "/providers/" + s.providerID.String() + "/candidates?date=03-02-2026", nil, http.StatusBadRequest},
		{"unknown provider", http.MethodGet, "/providers/" + uuid.NewString() + "/candidates?date=" + testDate, nil, http.StatusNotFound},
		{"bad claimant", http.MethodPost, "/slots/" + uuid.NewString() + "/reservation", ReservationRequest{ClaimantID: "x"}, http.StatusBadRequest},
		{"missing payment", http.MethodGet, "/slots/" + uuid.NewString() + "/payment", nil, http.StatusNotFound},
		{"bad actor", http.MethodPost, "/slots/" + uuid.NewString() + "/status", StatusRequest{Status: "CONFIRMED", ActorType: "ROBOT"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		err       error
		code      int
		errCode   string
		retryable bool
	}{
		{slot.ErrSlotNotFound, http.StatusNotFound, "slot_not_found", false},
		{slot.ErrReservedByOther, http.StatusConflict, "reserved_by_other", false},
		{slot.ErrSlotClaimed, http.StatusConflict, "slot_unavailable", false},
		{slot.ErrSlotClosed, http.StatusConflict, "slot_unavailable", false},
		{slot.ErrProviderNotFound, http.StatusNotFound, "provider_not_found", false},
		{slot.ErrReservationExpired, http.StatusGone, "reservation_expired", false},
		{slot.ErrAlreadyPaid, http.StatusConflict, "already_paid", false},
		{fmt.Errorf("%w: BOOKED -> AVAILABLE", slot.ErrInvalidTransition), http.StatusConflict, "invalid_transition", false},
		{slot.ErrProviderUnavailable, http.StatusConflict, "provider_unavailable", false},
		{slot.ErrConcurrentConflict, http.StatusConflict, "concurrent_conflict", true},
		{status.ErrBookingRequired, http.StatusUnprocessableEntity, "booking_required", false},
		{booking.ErrInvalidRequest, http.StatusUnprocessableEntity, "invalid_booking", false},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error", false},
	}

	for _, tt := range tests {
		t.Run(tt.errCode, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeDomainError(rec, tt.err)
			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rec.Code)
			}
			resp := decode[ErrorResponse](t, rec)
			if resp.Error != tt.errCode || resp.Retryable != tt.retryable {
				t.Errorf("unexpected body: %+v", resp)
			}
		})
	}
}

func TestHealthWithoutDependencies(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health/ready", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode[ReadinessResponse](t, rec)
	if resp.Status != "ok" || resp.Dependencies["postgres"] != "disabled" {
		t.Errorf("unexpected readiness: %+v", resp)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Errorf("expected request id header")
	}
}
