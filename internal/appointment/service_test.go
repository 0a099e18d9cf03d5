package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/salonflow/scheduling/internal/catalog"
	"github.com/salonflow/scheduling/internal/clients"
	"github.com/salonflow/scheduling/internal/clock"
	"github.com/salonflow/scheduling/internal/eventlog"
	"github.com/salonflow/scheduling/internal/reminder"
	"github.com/salonflow/scheduling/internal/schedule"
	"github.com/salonflow/scheduling/internal/workinghours"
)

// In-memory fakes. The repo mirrors the store's conflict semantics: overlap
// checks consider only pending/confirmed rows and use half-open windows.

type fakeRepo struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*Appointment
	clock clock.Clock
}

func newFakeRepo(clk clock.Clock) *fakeRepo {
	return &fakeRepo{rows: make(map[uuid.UUID]*Appointment), clock: clk}
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) HasOverlap(_ context.Context, professionalID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if a.ProfessionalID != professionalID || a.Status.Terminal() {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if schedule.Overlaps(start, end, a.StartTime, a.EndTime) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) ListActiveBetween(_ context.Context, professionalID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.rows {
		if a.ProfessionalID != professionalID || a.Status.Terminal() {
			continue
		}
		if schedule.Overlaps(from, to, a.StartTime, a.EndTime) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeRepo) Create(_ context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	cp.ID = uuid.New()
	cp.Status = StatusPending
	cp.CreatedAt = r.clock.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.rows[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeRepo) UpdateSchedule(_ context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[a.ID]
	if !ok || cur.Status.Terminal() {
		return nil, ErrAppointmentNotFound
	}
	cur.ProfessionalID = a.ProfessionalID
	cur.ServiceID = a.ServiceID
	cur.StartTime = a.StartTime
	cur.EndTime = a.EndTime
	cur.Notes = a.Notes
	cur.UpdatedAt = r.clock.Now()
	cp := *cur
	return &cp, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, id uuid.UUID, from []Status, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	matched := false
	for _, f := range from {
		if cur.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrAppointmentNotFound
	}
	cur.Status = to
	cp := *cur
	return &cp, nil
}

func (r *fakeRepo) MarkConfirmed(_ context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[id]
	if !ok || cur.Status.Terminal() {
		return nil, ErrAppointmentNotFound
	}
	cur.Status = StatusConfirmed
	if cur.ConfirmedAt == nil {
		cur.ConfirmedAt = &at
	}
	cp := *cur
	return &cp, nil
}

func (r *fakeRepo) MarkCancelled(_ context.Context, id uuid.UUID, reason *string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[id]
	if !ok || cur.Status.Terminal() {
		return nil, ErrAppointmentNotFound
	}
	cur.Status = StatusCancelled
	cur.CancellationReason = reason
	cp := *cur
	return &cp, nil
}

func (r *fakeRepo) MarkReminderSent(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.rows[id]; ok {
		cur.ReminderSentAt = &at
	}
	return nil
}

func (r *fakeRepo) ListByClient(_ context.Context, businessID, clientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.rows {
		if a.BusinessID == businessID && a.ClientID == clientID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListByBusinessDate(_ context.Context, businessID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.rows {
		if a.BusinessID == businessID && !a.StartTime.Before(from) && a.StartTime.Before(to) {
			out = append(out, *a)
		}
	}
	return out, nil
}

type fakeLocker struct{}

func (fakeLocker) WithProfessionalLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeCatalog struct {
	services map[uuid.UUID]*catalog.Service
}

func (c *fakeCatalog) GetServiceByID(_ context.Context, id uuid.UUID) (*catalog.Service, error) {
	s, ok := c.services[id]
	if !ok {
		return nil, catalog.ErrServiceNotFound
	}
	return s, nil
}

type fakeHours struct {
	records map[time.Weekday]*workinghours.Record
}

func (h *fakeHours) GetActive(_ context.Context, _, _ uuid.UUID, day time.Weekday) (*workinghours.Record, error) {
	r, ok := h.records[day]
	if !ok {
		return nil, workinghours.ErrNotConfigured
	}
	return r, nil
}

type fakeDirectory struct {
	mu          sync.Mutex
	known       map[uuid.UUID]*clients.Client
	completions []float64
}

func (d *fakeDirectory) GetClientByID(_ context.Context, id uuid.UUID) (*clients.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.known[id]
	if !ok {
		return nil, clients.ErrClientNotFound
	}
	return c, nil
}

func (d *fakeDirectory) RecordCompletion(_ context.Context, _ uuid.UUID, spent float64, _ time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completions = append(d.completions, spent)
	return nil
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []string
}

func (d *fakeDispatcher) Send(_ context.Context, _, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, text)
	return nil
}

type reminderJob struct {
	At     time.Time
	Status reminder.JobStatus
}

// fakeReminders models the due-table's keyed-row semantics: one row per key,
// insert leaves a pending row untouched and revives a resolved one, cancel
// is a soft status flip.
type fakeReminders struct {
	mu   sync.Mutex
	jobs map[string]*reminderJob
}

func newFakeReminders() *fakeReminders {
	return &fakeReminders{jobs: make(map[string]*reminderJob)}
}

func (f *fakeReminders) ScheduleAt(_ context.Context, at time.Time, _ uuid.UUID, _, _, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[key]; ok {
		if j.Status == reminder.JobPending {
			return nil
		}
		j.At = at
		j.Status = reminder.JobPending
		return nil
	}
	f.jobs[key] = &reminderJob{At: at, Status: reminder.JobPending}
	return nil
}

func (f *fakeReminders) Cancel(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[key]; ok && j.Status == reminder.JobPending {
		j.Status = reminder.JobCancelled
	}
	return nil
}

func (f *fakeReminders) job(key string) (reminderJob, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[key]
	if !ok {
		return reminderJob{}, false
	}
	return *j, true
}

type promotedSlot struct {
	ProfessionalID uuid.UUID
	FreedAt        time.Time
}

type fakePromoter struct {
	mu    sync.Mutex
	calls []promotedSlot
}

func (p *fakePromoter) PromoteForSlot(_ context.Context, _, professionalID uuid.UUID, freedAt time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, promotedSlot{ProfessionalID: professionalID, FreedAt: freedAt})
	return nil
}

// Test fixture

type fixture struct {
	svc        *Service
	repo       *fakeRepo
	clk        *clock.Fixed
	reminders  *fakeReminders
	dispatcher *fakeDispatcher
	directory  *fakeDirectory
	promoter   *fakePromoter
	hours      *fakeHours

	businessID     uuid.UUID
	clientID       uuid.UUID
	professionalID uuid.UUID
	serviceID      uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.NewFixed(time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC))
	repo := newFakeRepo(clk)

	f := &fixture{
		repo:           repo,
		clk:            clk,
		reminders:      newFakeReminders(),
		dispatcher:     &fakeDispatcher{},
		promoter:       &fakePromoter{},
		businessID:     uuid.New(),
		clientID:       uuid.New(),
		professionalID: uuid.New(),
		serviceID:      uuid.New(),
	}

	f.directory = &fakeDirectory{known: map[uuid.UUID]*clients.Client{
		f.clientID: {ID: f.clientID, Name: "Dana", Phone: "+15550001111"},
	}}

	cat := &fakeCatalog{services: map[uuid.UUID]*catalog.Service{
		f.serviceID: {ID: f.serviceID, BusinessID: f.businessID, Name: "Haircut", DurationMinutes: 60, Price: 45, IsActive: true},
	}}

	f.hours = &fakeHours{records: map[time.Weekday]*workinghours.Record{}}

	f.svc = NewService(Deps{
		Repo:       repo,
		Locker:     fakeLocker{},
		Catalog:    cat,
		Hours:      f.hours,
		Clients:    f.directory,
		Stats:      f.directory,
		Dispatcher: f.dispatcher,
		Reminders:  f.reminders,
		Events:     eventlog.Noop{},
		Promoter:   f.promoter,
		Clock:      clk,
	})

	return f
}

func (f *fixture) book(t *testing.T, start time.Time) *Appointment {
	t.Helper()
	appt, err := f.svc.Create(context.Background(), CreateParams{
		BusinessID:     f.businessID,
		ClientID:       f.clientID,
		ProfessionalID: f.professionalID,
		ServiceID:      f.serviceID,
		StartTime:      start,
	})
	require.NoError(t, err)
	return appt
}

func TestCreateRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)

	f.book(t, start)

	// Partial overlap with the existing 10:00-11:00 booking.
	_, err := f.svc.Create(context.Background(), CreateParams{
		BusinessID:     f.businessID,
		ClientID:       f.clientID,
		ProfessionalID: f.professionalID,
		ServiceID:      f.serviceID,
		StartTime:      start.Add(30 * time.Minute),
	})
	require.ErrorIs(t, err, ErrTimeConflict)

	// Back-to-back is not a conflict: windows are half-open.
	_, err = f.svc.Create(context.Background(), CreateParams{
		BusinessID:     f.businessID,
		ClientID:       f.clientID,
		ProfessionalID: f.professionalID,
		ServiceID:      f.serviceID,
		StartTime:      start.Add(time.Hour),
	})
	require.NoError(t, err)
}

func TestCreateAllowsSameWindowDifferentProfessional(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)

	f.book(t, start)

	_, err := f.svc.Create(context.Background(), CreateParams{
		BusinessID:     f.businessID,
		ClientID:       f.clientID,
		ProfessionalID: uuid.New(),
		ServiceID:      f.serviceID,
		StartTime:      start,
	})
	require.NoError(t, err)
}

func TestCreateArmsReminderAtLead(t *testing.T) {
	f := newFixture(t)
	start := f.clk.Now().Add(48 * time.Hour)

	appt := f.book(t, start)

	job, ok := f.reminders.job(reminder.Key(appt.ID))
	require.True(t, ok)
	require.Equal(t, reminder.JobPending, job.Status)
	require.Equal(t, start.Add(-24*time.Hour), job.At)
}

func TestCreateSkipsReminderInsideLead(t *testing.T) {
	f := newFixture(t)

	// 12 hours out: the T-24h instant is already in the past.
	appt := f.book(t, f.clk.Now().Add(12*time.Hour))

	_, ok := f.reminders.job(reminder.Key(appt.ID))
	require.False(t, ok)
}

func TestCancelRetractsReminderAndPromotes(t *testing.T) {
	f := newFixture(t)
	start := f.clk.Now().Add(48 * time.Hour)
	appt := f.book(t, start)

	cancelled, err := f.svc.Cancel(context.Background(), appt.ID, "client called in")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancellationReason)

	job, ok := f.reminders.job(reminder.Key(appt.ID))
	require.True(t, ok)
	require.Equal(t, reminder.JobCancelled, job.Status)

	require.Len(t, f.promoter.calls, 1)
	require.Equal(t, f.professionalID, f.promoter.calls[0].ProfessionalID)
	require.True(t, f.promoter.calls[0].FreedAt.Equal(start))
}

func TestCancelTwiceFails(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.clk.Now().Add(48*time.Hour))

	_, err := f.svc.Cancel(context.Background(), appt.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), appt.ID, "")
	require.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestConfirmIsIdempotent(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.clk.Now().Add(48*time.Hour))

	first, err := f.svc.Confirm(context.Background(), appt.ID)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, first.Status)
	require.NotNil(t, first.ConfirmedAt)

	second, err := f.svc.Confirm(context.Background(), appt.ID)
	require.NoError(t, err)
	require.Equal(t, first.ConfirmedAt, second.ConfirmedAt)
}

func TestCompleteRecordsClientStats(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.clk.Now().Add(48*time.Hour))

	done, err := f.svc.Complete(context.Background(), appt.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)

	require.Equal(t, []float64{45}, f.directory.completions)
}

func TestNoShowFromTerminalFails(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.clk.Now().Add(48*time.Hour))

	_, err := f.svc.Complete(context.Background(), appt.ID)
	require.NoError(t, err)

	_, err = f.svc.MarkNoShow(context.Background(), appt.ID)
	require.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestUpdateRevalidatesConflict(t *testing.T) {
	f := newFixture(t)
	busyStart := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)
	f.book(t, busyStart)

	moveable := f.book(t, busyStart.Add(2*time.Hour))

	newStart := busyStart.Add(30 * time.Minute)
	_, err := f.svc.Update(context.Background(), moveable.ID, UpdateParams{StartTime: &newStart})
	require.ErrorIs(t, err, ErrTimeConflict)

	// The appointment keeps its original window after the failed move.
	unchanged, err := f.svc.GetByID(context.Background(), moveable.ID)
	require.NoError(t, err)
	require.True(t, unchanged.StartTime.Equal(busyStart.Add(2*time.Hour)))
}

func TestUpdateRearmsReminderOnNewStart(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.clk.Now().Add(48*time.Hour))

	job, ok := f.reminders.job(reminder.Key(appt.ID))
	require.True(t, ok)
	require.Equal(t, reminder.JobPending, job.Status)

	newStart := f.clk.Now().Add(72 * time.Hour)
	updated, err := f.svc.Update(context.Background(), appt.ID, UpdateParams{StartTime: &newStart})
	require.NoError(t, err)
	require.True(t, updated.StartTime.Equal(newStart))

	// The reschedule retracts the old job and must leave a live one behind:
	// the keyed insert has to revive the cancelled row, not silently no-op.
	job, ok = f.reminders.job(reminder.Key(appt.ID))
	require.True(t, ok)
	require.Equal(t, reminder.JobPending, job.Status)
	require.Equal(t, newStart.Add(-24*time.Hour), job.At)
}

func TestUpdateTerminalFails(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.clk.Now().Add(48*time.Hour))

	_, err := f.svc.Cancel(context.Background(), appt.ID, "")
	require.NoError(t, err)

	newStart := f.clk.Now().Add(72 * time.Hour)
	_, err = f.svc.Update(context.Background(), appt.ID, UpdateParams{StartTime: &newStart})
	require.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestCreateUnknownServiceFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), CreateParams{
		BusinessID:     f.businessID,
		ClientID:       f.clientID,
		ProfessionalID: f.professionalID,
		ServiceID:      uuid.New(),
		StartTime:      f.clk.Now().Add(48 * time.Hour),
	})
	require.ErrorIs(t, err, catalog.ErrServiceNotFound)
}
