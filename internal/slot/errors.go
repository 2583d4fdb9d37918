package slot

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match with errors.Is; the more specific errors below wrap one of these.
var (
	ErrNotFound            = errors.New("not found")
	ErrSlotUnavailable     = errors.New("slot unavailable")
	ErrReservationExpired  = errors.New("reservation expired")
	ErrAlreadyPaid         = errors.New("slot already paid")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrConcurrentConflict  = errors.New("slot just taken by someone else")
	ErrProviderUnavailable = errors.New("provider unavailable")
)

var (
	ErrSlotNotFound     = fmt.Errorf("slot %w", ErrNotFound)
	ErrProviderNotFound = fmt.Errorf("provider %w", ErrNotFound)
	ErrClaimantNotFound = fmt.Errorf("claimant %w", ErrNotFound)
	ErrPaymentNotFound  = fmt.Errorf("payment %w", ErrNotFound)

	ErrReservedByOther = fmt.Errorf("reserved by another party: %w", ErrSlotUnavailable)
	ErrSlotClaimed     = fmt.Errorf("slot has been claimed: %w", ErrSlotUnavailable)
	ErrSlotClosed      = fmt.Errorf("slot is no longer open: %w", ErrSlotUnavailable)
)
