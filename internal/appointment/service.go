package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/salonflow/scheduling/internal/catalog"
	"github.com/salonflow/scheduling/internal/clients"
	"github.com/salonflow/scheduling/internal/clock"
	"github.com/salonflow/scheduling/internal/eventlog"
	"github.com/salonflow/scheduling/internal/notify"
	redisclient "github.com/salonflow/scheduling/internal/redis"
	"github.com/salonflow/scheduling/internal/reminder"
	"github.com/salonflow/scheduling/internal/workinghours"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
)

var (
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrBookingInProgress       = errors.New("professional calendar is being booked, please retry")
)

// Promoter reacts to a freed slot; implemented by the waitlist service.
type Promoter interface {
	PromoteForSlot(ctx context.Context, businessID, professionalID uuid.UUID, freedAt time.Time) error
}

// NoopPromoter ignores freed slots.
type NoopPromoter struct{}

func (NoopPromoter) PromoteForSlot(_ context.Context, _, _ uuid.UUID, _ time.Time) error {
	return nil
}

type Deps struct {
	Repo         Repository
	Locker       redisclient.Locker
	Catalog      catalog.Catalog
	Hours        workinghours.Store
	Clients      clients.Directory
	Stats        clients.StatsRecorder
	Dispatcher   notify.Dispatcher
	Reminders    reminder.Scheduler
	Events       eventlog.Recorder
	Promoter     Promoter
	Clock        clock.Clock
	ReminderLead time.Duration
}

type Service struct {
	repo         Repository
	locker       redisclient.Locker
	catalog      catalog.Catalog
	hours        workinghours.Store
	clients      clients.Directory
	stats        clients.StatsRecorder
	dispatcher   notify.Dispatcher
	reminders    reminder.Scheduler
	events       eventlog.Recorder
	promoter     Promoter
	clk          clock.Clock
	reminderLead time.Duration
}

func NewService(deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Promoter == nil {
		deps.Promoter = NoopPromoter{}
	}
	if deps.ReminderLead <= 0 {
		deps.ReminderLead = 24 * time.Hour
	}
	return &Service{
		repo:         deps.Repo,
		locker:       deps.Locker,
		catalog:      deps.Catalog,
		hours:        deps.Hours,
		clients:      deps.Clients,
		stats:        deps.Stats,
		dispatcher:   deps.Dispatcher,
		reminders:    deps.Reminders,
		events:       deps.Events,
		promoter:     deps.Promoter,
		clk:          deps.Clock,
		reminderLead: deps.ReminderLead,
	}
}

type CreateParams struct {
	BusinessID     uuid.UUID
	ClientID       uuid.UUID
	ProfessionalID uuid.UUID
	ServiceID      uuid.UUID
	StartTime      time.Time
	Notes          *string
}

// Create books a pending appointment. The conflict check and the insert run
// inside a per-professional lock so concurrent requests for the same calendar
// cannot both pass the check; the store's exclusion constraint backstops
// anything that slips through.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Appointment, error) {
	svc, err := s.catalog.GetServiceByID(ctx, p.ServiceID)
	if err != nil {
		if errors.Is(err, catalog.ErrServiceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load service: %w", err)
	}

	client, err := s.clients.GetClientByID(ctx, p.ClientID)
	if err != nil {
		if errors.Is(err, clients.ErrClientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load client: %w", err)
	}

	endTime := p.StartTime.Add(svc.Duration())

	var created *Appointment

	err = s.locker.WithProfessionalLock(ctx, p.ProfessionalID, func(lockCtx context.Context) error {
		conflict, err := s.repo.HasOverlap(lockCtx, p.ProfessionalID, p.StartTime, endTime, nil)
		if err != nil {
			return fmt.Errorf("check overlap: %w", err)
		}
		if conflict {
			return ErrTimeConflict
		}

		appt, err := s.repo.Create(lockCtx, &Appointment{
			BusinessID:     p.BusinessID,
			ClientID:       p.ClientID,
			ProfessionalID: p.ProfessionalID,
			ServiceID:      p.ServiceID,
			StartTime:      p.StartTime,
			EndTime:        endTime,
			Notes:          p.Notes,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingInProgress
		}
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"professional_id": p.ProfessionalID.String(),
		"start_time":      created.StartTime,
		"end_time":        created.EndTime,
	})

	s.armReminder(ctx, created, client.Phone, svc.Name)

	s.send(ctx, client.Phone, fmt.Sprintf("Your %s appointment on %s is booked.",
		svc.Name, created.StartTime.Format("Mon Jan 2 at 15:04")))

	return created, nil
}

type UpdateParams struct {
	ProfessionalID *uuid.UUID
	ServiceID      *uuid.UUID
	StartTime      *time.Time
	Notes          *string
}

// Update reschedules a non-terminal appointment. When time, professional or
// service changes, the conflict check re-runs excluding the appointment's own
// row, and the reminder is re-armed for the new start.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*Appointment, error) {
	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status.Terminal() {
		return nil, ErrInvalidStatusTransition
	}

	next := *cur
	if p.ProfessionalID != nil {
		next.ProfessionalID = *p.ProfessionalID
	}
	if p.ServiceID != nil {
		next.ServiceID = *p.ServiceID
	}
	if p.StartTime != nil {
		next.StartTime = *p.StartTime
	}
	if p.Notes != nil {
		next.Notes = p.Notes
	}

	svc, err := s.catalog.GetServiceByID(ctx, next.ServiceID)
	if err != nil {
		if errors.Is(err, catalog.ErrServiceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load service: %w", err)
	}
	next.EndTime = next.StartTime.Add(svc.Duration())

	revalidate := !next.StartTime.Equal(cur.StartTime) ||
		next.ProfessionalID != cur.ProfessionalID ||
		next.ServiceID != cur.ServiceID

	var updated *Appointment

	if revalidate {
		err = s.locker.WithProfessionalLock(ctx, next.ProfessionalID, func(lockCtx context.Context) error {
			conflict, err := s.repo.HasOverlap(lockCtx, next.ProfessionalID, next.StartTime, next.EndTime, &next.ID)
			if err != nil {
				return fmt.Errorf("check overlap: %w", err)
			}
			if conflict {
				return ErrTimeConflict
			}

			updated, err = s.repo.UpdateSchedule(lockCtx, &next)
			if err != nil {
				return fmt.Errorf("update appointment: %w", err)
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, redisclient.ErrLockNotAcquired) {
				return nil, ErrBookingInProgress
			}
			return nil, err
		}
	} else {
		updated, err = s.repo.UpdateSchedule(ctx, &next)
		if err != nil {
			return nil, fmt.Errorf("update appointment: %w", err)
		}
	}

	if !updated.StartTime.Equal(cur.StartTime) {
		s.logEvent(ctx, updated.ID, EventAppointmentRescheduled, map[string]any{
			"previous_start": cur.StartTime,
			"start_time":     updated.StartTime,
		})

		if err := s.reminders.Cancel(ctx, reminder.Key(updated.ID)); err != nil {
			log.Printf("failed to retract reminder for appointment %s: %v", updated.ID, err)
		}
		if client, err := s.clients.GetClientByID(ctx, updated.ClientID); err == nil {
			s.armReminder(ctx, updated, client.Phone, svc.Name)
		}
	}

	return updated, nil
}

// Confirm moves a pending appointment to confirmed. Confirming an already
// confirmed appointment is a no-op rather than an error.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(cur.Status, StatusConfirmed) {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.MarkConfirmed(ctx, id, s.clk.Now())
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a race against a terminal transition.
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentConfirmed, map[string]any{})

	return updated, nil
}

// Cancel transitions any non-terminal appointment to cancelled, retracts the
// pending reminder, and only then arms the waitlist promotion for the freed
// window. The promotion search itself must never fail the cancellation.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(cur.Status, StatusCancelled) {
		return nil, ErrInvalidStatusTransition
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}

	updated, err := s.repo.MarkCancelled(ctx, id, reasonPtr)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	if err := s.reminders.Cancel(ctx, reminder.Key(updated.ID)); err != nil {
		log.Printf("failed to retract reminder for appointment %s: %v", updated.ID, err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"reason": reason,
	})

	if client, err := s.clients.GetClientByID(ctx, updated.ClientID); err == nil {
		s.send(ctx, client.Phone, fmt.Sprintf("Your appointment on %s was cancelled.",
			updated.StartTime.Format("Mon Jan 2 at 15:04")))
	}

	if err := s.promoter.PromoteForSlot(ctx, updated.BusinessID, updated.ProfessionalID, updated.StartTime); err != nil {
		log.Printf("waitlist promotion failed for freed slot %s: %v", updated.StartTime, err)
	}

	return updated, nil
}

// Complete marks the appointment done and triggers the client-statistics
// refresh in the clients collaborator.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	updated, err := s.transition(ctx, id, StatusCompleted, EventAppointmentCompleted)
	if err != nil {
		return nil, err
	}

	spent := 0.0
	if svc, err := s.catalog.GetServiceByID(ctx, updated.ServiceID); err == nil {
		spent = svc.Price
	}
	if err := s.stats.RecordCompletion(ctx, updated.ClientID, spent, updated.EndTime); err != nil {
		log.Printf("failed to refresh client stats for %s: %v", updated.ClientID, err)
	}

	return updated, nil
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusNoShow, EventAppointmentNoShow)
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByClient(ctx context.Context, businessID, clientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByClient(ctx, businessID, clientID, limit, offset)
}

func (s *Service) ListByBusinessDate(ctx context.Context, businessID uuid.UUID, date time.Time) ([]Appointment, error) {
	from := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return s.repo.ListByBusinessDate(ctx, businessID, from, from.AddDate(0, 0, 1))
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, eventType string) (*Appointment, error) {
	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(cur.Status, to) {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, id, activeStatuses, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("transition appointment to %s: %w", to, err)
	}

	s.logEvent(ctx, updated.ID, eventType, map[string]any{})

	return updated, nil
}

// armReminder schedules the T-minus-lead reminder when that instant is still
// in the future. Scheduling failures are logged, never returned.
func (s *Service) armReminder(ctx context.Context, a *Appointment, phone, serviceName string) {
	remindAt := a.StartTime.Add(-s.reminderLead)
	if !remindAt.After(s.clk.Now()) {
		return
	}

	text := fmt.Sprintf("Reminder: your %s appointment is on %s.",
		serviceName, a.StartTime.Format("Mon Jan 2 at 15:04"))
	if err := s.reminders.ScheduleAt(ctx, remindAt, a.ID, phone, text, reminder.Key(a.ID)); err != nil {
		log.Printf("failed to schedule reminder for appointment %s: %v", a.ID, err)
	}
}

func (s *Service) send(ctx context.Context, phone, text string) {
	if err := s.dispatcher.Send(ctx, phone, text); err != nil {
		log.Printf("notification dispatch failed: %v", err)
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	apptID := appointmentID

	ev := eventlog.Event{
		EventType: eventType,
		EntityID:  &apptID,
		Payload:   data,
		CreatedAt: s.clk.Now(),
	}

	if err := s.events.Record(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}
