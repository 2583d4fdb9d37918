package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/hackgods/slot-booking/internal/slot"
)

const (
	txAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	txLength   = 8
	txPrefix   = "TXN-"
)

// NewTransactionID returns a ledger reference such as TXN-4F7Q2K9B.
func NewTransactionID() (string, error) {
	id, err := gonanoid.Generate(txAlphabet, txLength)
	if err != nil {
		return "", fmt.Errorf("generate transaction id: %w", err)
	}
	return txPrefix + id, nil
}

// MaskCard keeps only the last four digits of a card number.
func MaskCard(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) <= 4 {
		return strings.Repeat("*", len(d))
	}
	return "**** **** **** " + d[len(d)-4:]
}

// newPayment builds the ledger row for a booking. Cash is settled later at
// the appointment, every other method is paid on the spot.
func newPayment(slotID uuid.UUID, req Request, txID string, now time.Time) slot.PaymentRecord {
	p := slot.PaymentRecord{
		ID:            uuid.New(),
		SlotID:        slotID,
		Method:        req.Method,
		Status:        slot.PaymentPending,
		AmountCents:   req.AmountCents,
		TransactionID: txID,
		CreatedAt:     now,
	}
	if req.Method.Instant() {
		paidAt := now
		p.Status = slot.PaymentCompleted
		p.PaidAt = &paidAt
	}
	if req.CardDetails != "" {
		masked := MaskCard(req.CardDetails)
		p.CardDetails = &masked
	}
	if req.Notes != "" {
		notes := req.Notes
		p.Notes = &notes
	}
	return p
}
