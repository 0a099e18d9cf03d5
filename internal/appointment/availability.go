package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/salonflow/scheduling/internal/catalog"
	"github.com/salonflow/scheduling/internal/schedule"
	"github.com/salonflow/scheduling/internal/workinghours"
)

// Availability returns the candidate grid for the professional on the given
// date with a bookable flag per slot. A day without active working hours is
// an empty list, not an error. A slot is unavailable when it starts in the
// past, straddles any part of the break window, or overlaps a pending or
// confirmed appointment; all overlap checks are half-open.
func (s *Service) Availability(ctx context.Context, businessID, professionalID uuid.UUID, date time.Time, serviceID uuid.UUID) ([]Slot, error) {
	svc, err := s.catalog.GetServiceByID(ctx, serviceID)
	if err != nil {
		if errors.Is(err, catalog.ErrServiceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load service: %w", err)
	}

	hours, err := s.hours.GetActive(ctx, businessID, professionalID, date.Weekday())
	if err != nil {
		if errors.Is(err, workinghours.ErrNotConfigured) {
			return []Slot{}, nil
		}
		return nil, fmt.Errorf("load working hours: %w", err)
	}

	dayStart, err := schedule.At(date, hours.StartTime)
	if err != nil {
		return nil, fmt.Errorf("working hours start: %w", err)
	}
	dayEnd, err := schedule.At(date, hours.EndTime)
	if err != nil {
		return nil, fmt.Errorf("working hours end: %w", err)
	}

	duration := svc.Duration()
	grid := schedule.Grid(dayStart, dayEnd, duration)
	if len(grid) == 0 {
		return []Slot{}, nil
	}

	var breakWindow *schedule.Interval
	if hours.HasBreak() {
		bStart, err := schedule.At(date, *hours.BreakStart)
		if err != nil {
			return nil, fmt.Errorf("break start: %w", err)
		}
		bEnd, err := schedule.At(date, *hours.BreakEnd)
		if err != nil {
			return nil, fmt.Errorf("break end: %w", err)
		}
		breakWindow = &schedule.Interval{Start: bStart, End: bEnd}
	}

	existing, err := s.repo.ListActiveBetween(ctx, professionalID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	busy := make([]schedule.Interval, 0, len(existing))
	for _, a := range existing {
		busy = append(busy, schedule.Interval{Start: a.StartTime, End: a.EndTime})
	}

	now := s.clk.Now()

	slots := make([]Slot, 0, len(grid))
	for _, start := range grid {
		end := start.Add(duration)

		available := !start.Before(now) &&
			!schedule.OverlapsAny(start, end, busy)

		if available && breakWindow != nil &&
			schedule.Overlaps(start, end, breakWindow.Start, breakWindow.End) {
			available = false
		}

		slots = append(slots, Slot{
			Time:      start.Format("15:04"),
			StartsAt:  start,
			Available: available,
		})
	}

	return slots, nil
}
