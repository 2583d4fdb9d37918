package demo

import (
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/slot-booking/internal/slot"
)

// Dataset is a synthetic directory: providers with weekly rules and some
// leave, plus a pool of claimants.
type Dataset struct {
	Providers []slot.Provider
	Claimants []slot.Claimant
	Rules     []slot.AvailabilityRule
	Leaves    []slot.LeaveRecord
}

type Options struct {
	Providers int
	Claimants int
	// From anchors leave dates; leave falls within two weeks after it.
	From time.Time
	// Seed makes the dataset reproducible. Zero picks a random seed.
	Seed uint64
}

var slotLengths = []int{0, 15, 20, 30, 45}

var leaveReasons = []string{
	"Conference",
	"Annual leave",
	"Training",
	"Family matters",
	"Sick leave",
}

func Generate(opts Options) Dataset {
	f := gofakeit.New(opts.Seed)
	from := slot.DateOf(opts.From)

	var d Dataset
	for i := 0; i < opts.Providers; i++ {
		p := slot.Provider{
			ID:                  uuid.New(),
			Name:                "Dr. " + f.Name(),
			SlotDurationMinutes: slotLengths[f.Number(0, len(slotLengths)-1)],
		}
		d.Providers = append(d.Providers, p)

		for wd := time.Monday; wd <= time.Friday; wd++ {
			d.Rules = append(d.Rules,
				slot.AvailabilityRule{ID: uuid.New(), ProviderID: p.ID, Weekday: wd, Start: slot.Clock(9, 0), End: slot.Clock(12, 0), Priority: 1},
				slot.AvailabilityRule{ID: uuid.New(), ProviderID: p.ID, Weekday: wd, Start: slot.Clock(13, 0), End: slot.Clock(17, 0), Priority: 2},
			)
		}
		if f.Bool() {
			d.Rules = append(d.Rules, slot.AvailabilityRule{
				ID: uuid.New(), ProviderID: p.ID, Weekday: time.Saturday,
				Start: slot.Clock(10, 0), End: slot.Clock(13, 0), Priority: 1,
			})
		}

		// Roughly one provider in five has leave coming up.
		if f.Number(1, 5) == 1 {
			start := from.AddDate(0, 0, f.Number(1, 14))
			reason := leaveReasons[f.Number(0, len(leaveReasons)-1)]
			status := slot.LeaveApproved
			if f.Bool() {
				status = slot.LeavePending
			}
			d.Leaves = append(d.Leaves, slot.LeaveRecord{
				ID:         uuid.New(),
				ProviderID: p.ID,
				StartDate:  start,
				EndDate:    start.AddDate(0, 0, f.Number(0, 3)),
				Status:     status,
				Reason:     &reason,
			})
		}
	}

	for i := 0; i < opts.Claimants; i++ {
		email := f.Email()
		d.Claimants = append(d.Claimants, slot.Claimant{
			ID:    uuid.New(),
			Name:  f.Name(),
			Email: &email,
		})
	}

	return d
}

// LoadInto copies the dataset into an in-memory directory.
func (d Dataset) LoadInto(m *slot.MemStore) {
	for _, p := range d.Providers {
		m.AddProvider(p)
	}
	for _, c := range d.Claimants {
		m.AddClaimant(c)
	}
	for _, r := range d.Rules {
		m.AddRule(r)
	}
	for _, l := range d.Leaves {
		m.AddLeave(l)
	}
}
