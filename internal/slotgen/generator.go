package slotgen

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/slot-booking/internal/slot"
)

const (
	DefaultSlotMinutes = 30
	MinSlotMinutes     = 5

	ReasonAlreadyBooked = "already booked"
)

type Candidate struct {
	Start           time.Time
	End             time.Time
	DurationMinutes int
	Available       bool
	Reason          string
	// SlotID is the materialized slot a conflicting candidate overlaps.
	SlotID *uuid.UUID
}

// Generator derives candidate slots from availability rules, leave and the
// slots already on a provider's calendar.
type Generator struct {
	store          slot.Store
	dir            slot.Directory
	defaultMinutes int
	log            zerolog.Logger
}

func NewGenerator(store slot.Store, dir slot.Directory, defaultMinutes int, log zerolog.Logger) *Generator {
	if defaultMinutes <= 0 {
		defaultMinutes = DefaultSlotMinutes
	}
	return &Generator{
		store:          store,
		dir:            dir,
		defaultMinutes: defaultMinutes,
		log:            log.With().Str("component", "slotgen").Logger(),
	}
}

// Duration is the slot length used for provider.
func (g *Generator) Duration(p *slot.Provider) int {
	minutes := p.SlotDurationMinutes
	if minutes <= 0 {
		minutes = g.defaultMinutes
	}
	return max(minutes, MinSlotMinutes)
}

// Generate returns the candidates for one calendar date, ordered by start.
// Approved leave on the date yields an empty result.
func (g *Generator) Generate(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Candidate, error) {
	provider, err := g.dir.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	return g.generate(ctx, provider, slot.DateOf(date))
}

// GenerateRange runs Generate for each date in [from, to], inclusive.
func (g *Generator) GenerateRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Candidate, error) {
	provider, err := g.dir.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}

	var result []Candidate
	last := slot.DateOf(to)
	for day := slot.DateOf(from); !day.After(last); day = day.AddDate(0, 0, 1) {
		cands, err := g.generate(ctx, provider, day)
		if err != nil {
			return nil, err
		}
		result = append(result, cands...)
	}
	return result, nil
}

func (g *Generator) generate(ctx context.Context, provider *slot.Provider, date time.Time) ([]Candidate, error) {
	onLeave, err := g.dir.IsOnLeave(ctx, provider.ID, date)
	if err != nil {
		return nil, fmt.Errorf("check leave: %w", err)
	}
	if onLeave {
		return []Candidate{}, nil
	}

	rules, err := g.dir.ListRules(ctx, provider.ID, date.Weekday())
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	// A slot that started the previous day can still run into this one.
	existing, err := g.store.ListSlotsByProvider(ctx, provider.ID, date.Add(-24*time.Hour), date.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	existing = slices.DeleteFunc(existing, func(s slot.Slot) bool { return s.Status == slot.StatusCancelled })

	minutes := g.Duration(provider)
	step := time.Duration(minutes) * time.Minute

	result := []Candidate{}
	var emitted []Interval
	for _, rule := range rules {
		if !rule.EffectiveOn(date) {
			continue
		}
		for iv := range Walk(rule, date, step) {
			// Overlapping rules: the higher priority rule already claimed this time.
			if overlapsAny(iv, emitted) {
				continue
			}
			emitted = append(emitted, iv)

			c := Candidate{Start: iv.Start, End: iv.End, DurationMinutes: minutes, Available: true}
			for _, s := range existing {
				if slot.Overlaps(iv.Start, iv.End, s.StartTime, s.EndTime()) {
					id := s.ID
					c.Available = false
					c.Reason = ReasonAlreadyBooked
					c.SlotID = &id
					break
				}
			}
			result = append(result, c)
		}
	}

	slices.SortStableFunc(result, func(a, b Candidate) int { return a.Start.Compare(b.Start) })
	return result, nil
}

func overlapsAny(iv Interval, others []Interval) bool {
	for _, o := range others {
		if slot.Overlaps(iv.Start, iv.End, o.Start, o.End) {
			return true
		}
	}
	return false
}

// Provision materializes every available candidate on date as an AVAILABLE
// slot and returns the created slots.
func (g *Generator) Provision(ctx context.Context, providerID uuid.UUID, date time.Time) ([]slot.Slot, error) {
	cands, err := g.Generate(ctx, providerID, date)
	if err != nil {
		return nil, err
	}

	var created []slot.Slot
	for _, c := range cands {
		if !c.Available {
			continue
		}
		s := &slot.Slot{
			ProviderID:      providerID,
			StartTime:       c.Start,
			DurationMinutes: c.DurationMinutes,
			Status:          slot.StatusAvailable,
			Version:         1,
		}
		if err := g.store.CreateSlot(ctx, s); err != nil {
			return created, fmt.Errorf("create slot at %s: %w", c.Start.Format(time.RFC3339), err)
		}
		created = append(created, *s)
	}

	g.log.Info().
		Str("provider_id", providerID.String()).
		Str("date", slot.DateOf(date).Format(time.DateOnly)).
		Int("created", len(created)).
		Msg("provisioned slots")
	return created, nil
}

// IsBookable reports whether a slot of the provider's duration could start at
// start: inside an effective rule window, not on leave, and clear of every
// materialized slot.
func (g *Generator) IsBookable(ctx context.Context, providerID uuid.UUID, start time.Time) (bool, error) {
	provider, err := g.dir.GetProvider(ctx, providerID)
	if err != nil {
		if errors.Is(err, slot.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	date := slot.DateOf(start)
	onLeave, err := g.dir.IsOnLeave(ctx, providerID, date)
	if err != nil {
		return false, fmt.Errorf("check leave: %w", err)
	}
	if onLeave {
		return false, nil
	}

	end := start.Add(time.Duration(g.Duration(provider)) * time.Minute)

	rules, err := g.dir.ListRules(ctx, providerID, date.Weekday())
	if err != nil {
		return false, fmt.Errorf("list rules: %w", err)
	}
	inside := false
	for _, rule := range rules {
		if rule.EffectiveOn(date) && !start.Before(rule.Start.On(date)) && !end.After(rule.End.On(date)) {
			inside = true
			break
		}
	}
	if !inside {
		return false, nil
	}

	existing, err := g.store.ListSlotsByProvider(ctx, providerID, start.Add(-24*time.Hour), end)
	if err != nil {
		return false, fmt.Errorf("list slots: %w", err)
	}
	for _, s := range existing {
		if s.Status != slot.StatusCancelled && slot.Overlaps(start, end, s.StartTime, s.EndTime()) {
			return false, nil
		}
	}
	return true, nil
}
