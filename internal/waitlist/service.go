package waitlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/salonflow/scheduling/internal/clients"
	"github.com/salonflow/scheduling/internal/clock"
	"github.com/salonflow/scheduling/internal/eventlog"
	"github.com/salonflow/scheduling/internal/notify"
	"github.com/salonflow/scheduling/internal/schedule"
)

const (
	EventWaitlistJoined    = "WAITLIST_JOINED"
	EventWaitlistNotified  = "WAITLIST_NOTIFIED"
	EventWaitlistExpired   = "WAITLIST_EXPIRED"
	EventWaitlistCancelled = "WAITLIST_CANCELLED"
	EventWaitlistConverted = "WAITLIST_CONVERTED"
)

var (
	// ErrWaitlistFull means the client already holds the maximum number of
	// WAITING entries for the business.
	ErrWaitlistFull = errors.New("waitlist limit reached for this client")

	// ErrDuplicateEntry means an identical (client, service, date) WAITING
	// entry already exists.
	ErrDuplicateEntry = errors.New("client is already waiting for this service and date")

	ErrEntryResolved = errors.New("waitlist entry is already resolved")

	ErrInvalidPeriod = errors.New("invalid desired period")
)

type Deps struct {
	Repo       Repository
	Clients    clients.Directory
	Dispatcher notify.Dispatcher
	Events     eventlog.Recorder
	Clock      clock.Clock
	HoldTTL    time.Duration
}

type Service struct {
	repo       Repository
	clients    clients.Directory
	dispatcher notify.Dispatcher
	events     eventlog.Recorder
	clk        clock.Clock
	holdTTL    time.Duration
}

func NewService(deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.HoldTTL <= 0 {
		deps.HoldTTL = 30 * time.Minute
	}
	return &Service{
		repo:       deps.Repo,
		clients:    deps.Clients,
		dispatcher: deps.Dispatcher,
		events:     deps.Events,
		clk:        deps.Clock,
		holdTTL:    deps.HoldTTL,
	}
}

type AddParams struct {
	BusinessID     uuid.UUID
	ClientID       uuid.UUID
	ServiceID      uuid.UUID
	ProfessionalID *uuid.UUID // nil = any professional
	DesiredDate    time.Time
	DesiredPeriod  schedule.Period // empty = any
	Priority       int
}

// Add enqueues a waiting client, enforcing the per-client cap and rejecting
// an identical pending request.
func (s *Service) Add(ctx context.Context, p AddParams) (*Entry, error) {
	period := p.DesiredPeriod
	if period == "" {
		period = schedule.PeriodAny
	}
	if !period.Valid() {
		return nil, ErrInvalidPeriod
	}

	if _, err := s.clients.GetClientByID(ctx, p.ClientID); err != nil {
		if errors.Is(err, clients.ErrClientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load client: %w", err)
	}

	count, err := s.repo.CountWaitingForClient(ctx, p.BusinessID, p.ClientID)
	if err != nil {
		return nil, fmt.Errorf("count waiting entries: %w", err)
	}
	if count >= MaxWaitingPerClient {
		return nil, ErrWaitlistFull
	}

	date := schedule.DateOnly(p.DesiredDate)

	dup, err := s.repo.HasWaitingDuplicate(ctx, p.BusinessID, p.ClientID, p.ServiceID, date)
	if err != nil {
		return nil, fmt.Errorf("check duplicate entry: %w", err)
	}
	if dup {
		return nil, ErrDuplicateEntry
	}

	entry, err := s.repo.Create(ctx, &Entry{
		BusinessID:     p.BusinessID,
		ClientID:       p.ClientID,
		ServiceID:      p.ServiceID,
		ProfessionalID: p.ProfessionalID,
		DesiredDate:    date,
		DesiredPeriod:  period,
		Priority:       p.Priority,
	})
	if err != nil {
		return nil, fmt.Errorf("create waitlist entry: %w", err)
	}

	s.logEvent(ctx, entry.ID, EventWaitlistJoined, map[string]any{
		"desired_date":   date.Format("2006-01-02"),
		"desired_period": string(period),
	})

	return entry, nil
}

// Remove withdraws a waiting or notified entry.
func (s *Service) Remove(ctx context.Context, id uuid.UUID) (*Entry, error) {
	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status.Terminal() {
		return nil, ErrEntryResolved
	}

	entry, err := s.repo.MarkCancelled(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, ErrEntryResolved
		}
		return nil, fmt.Errorf("cancel waitlist entry: %w", err)
	}

	s.logEvent(ctx, entry.ID, EventWaitlistCancelled, map[string]any{})

	return entry, nil
}

// Convert records that the client's offered slot turned into a real booking.
// Terminal and one-way.
func (s *Service) Convert(ctx context.Context, id, appointmentID uuid.UUID) (*Entry, error) {
	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status.Terminal() {
		return nil, ErrEntryResolved
	}

	entry, err := s.repo.MarkConverted(ctx, id, appointmentID)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, ErrEntryResolved
		}
		return nil, fmt.Errorf("convert waitlist entry: %w", err)
	}

	s.logEvent(ctx, entry.ID, EventWaitlistConverted, map[string]any{
		"appointment_id": appointmentID.String(),
	})

	return entry, nil
}

// PromoteForSlot offers a freed slot to the best-matching waiting client.
// The WAITING to NOTIFIED transition is a compare-and-swap, so when two
// cancellations race for the same candidate the loser just moves on to the
// next one. No match is a no-op: the slot stays open for direct booking.
func (s *Service) PromoteForSlot(ctx context.Context, businessID, professionalID uuid.UUID, freedAt time.Time) error {
	return s.promoteNext(ctx, businessID, schedule.DateOnly(freedAt), schedule.PeriodOf(freedAt), &professionalID)
}

func (s *Service) promoteNext(ctx context.Context, businessID uuid.UUID, date time.Time, period schedule.Period, professionalID *uuid.UUID) error {
	for {
		cand, err := s.repo.FindCandidate(ctx, businessID, date, period, professionalID)
		if err != nil {
			if errors.Is(err, ErrEntryNotFound) {
				return nil
			}
			return fmt.Errorf("find waitlist candidate: %w", err)
		}

		now := s.clk.Now()
		entry, err := s.repo.MarkNotified(ctx, cand.ID, now, now.Add(s.holdTTL))
		if err != nil {
			if errors.Is(err, ErrEntryNotFound) {
				// Another promotion claimed it first.
				continue
			}
			return fmt.Errorf("notify waitlist entry: %w", err)
		}

		s.logEvent(ctx, entry.ID, EventWaitlistNotified, map[string]any{
			"expires_at": entry.ExpiresAt,
		})

		if client, err := s.clients.GetClientByID(ctx, entry.ClientID); err == nil {
			s.send(ctx, client.Phone, fmt.Sprintf(
				"A slot opened up on %s. You have %d minutes to confirm your booking.",
				date.Format("Mon Jan 2"), int(s.holdTTL.Minutes())))
		} else {
			log.Printf("failed to load client %s for waitlist notification: %v", entry.ClientID, err)
		}

		return nil
	}
}

// ExpireNotified is the periodic sweep: every NOTIFIED entry past its hold
// becomes EXPIRED and the next candidate for the same date and period is
// notified. One hop per entry per tick, never a recursive drain. A failure
// on one entry never aborts the sweep for the rest.
func (s *Service) ExpireNotified(ctx context.Context) error {
	now := s.clk.Now()
	lapsed, err := s.repo.FindExpiredNotified(ctx, now)
	if err != nil {
		return fmt.Errorf("find expired notified entries: %w", err)
	}

	for _, entry := range lapsed {
		expired, err := s.repo.MarkExpired(ctx, entry.ID)
		if err != nil {
			if errors.Is(err, ErrEntryNotFound) {
				// Converted or cancelled since we read it.
				continue
			}
			log.Printf("failed to expire waitlist entry %s: %v", entry.ID, err)
			continue
		}

		s.logEvent(ctx, expired.ID, EventWaitlistExpired, map[string]any{})

		if err := s.promoteNext(ctx, expired.BusinessID, expired.DesiredDate, expired.DesiredPeriod, expired.ProfessionalID); err != nil {
			log.Printf("cascade failed after expiring entry %s: %v", expired.ID, err)
		}
	}

	return nil
}

func (s *Service) send(ctx context.Context, phone, text string) {
	if err := s.dispatcher.Send(ctx, phone, text); err != nil {
		log.Printf("waitlist notification dispatch failed: %v", err)
	}
}

func (s *Service) logEvent(ctx context.Context, entryID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	id := entryID

	ev := eventlog.Event{
		EventType: eventType,
		EntityID:  &id,
		Payload:   data,
		CreatedAt: s.clk.Now(),
	}

	if err := s.events.Record(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for waitlist entry %s: %v", eventType, entryID, err)
	}
}
