package waitlist

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/salonflow/scheduling/internal/clients"
	"github.com/salonflow/scheduling/internal/clock"
	"github.com/salonflow/scheduling/internal/eventlog"
	"github.com/salonflow/scheduling/internal/schedule"
)

// fakeRepo mirrors the store's compare-and-swap semantics: transitions match
// the current status and report ErrEntryNotFound on a miss.
type fakeRepo struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*Entry
	seq   int
	clock clock.Clock

	// afterFind runs between FindCandidate and the caller's next repo call,
	// to simulate a racing promoter.
	afterFind func(id uuid.UUID)
}

func newFakeRepo(clk clock.Clock) *fakeRepo {
	return &fakeRepo{rows: make(map[uuid.UUID]*Entry), clock: clk}
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeRepo) Create(_ context.Context, e *Entry) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	cp.ID = uuid.New()
	cp.Status = StatusWaiting
	r.seq++
	// Distinct creation instants keep FIFO ordering observable.
	cp.CreatedAt = r.clock.Now().Add(time.Duration(r.seq) * time.Millisecond)
	cp.UpdatedAt = cp.CreatedAt
	r.rows[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeRepo) CountWaitingForClient(_ context.Context, businessID, clientID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.rows {
		if e.BusinessID == businessID && e.ClientID == clientID && e.Status == StatusWaiting {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) HasWaitingDuplicate(_ context.Context, businessID, clientID, serviceID uuid.UUID, date time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.rows {
		if e.BusinessID == businessID && e.ClientID == clientID && e.ServiceID == serviceID &&
			e.Status == StatusWaiting && e.DesiredDate.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) FindCandidate(_ context.Context, businessID uuid.UUID, date time.Time, period schedule.Period, professionalID *uuid.UUID) (*Entry, error) {
	r.mu.Lock()
	var matches []*Entry
	for _, e := range r.rows {
		if e.BusinessID != businessID || e.Status != StatusWaiting || !e.DesiredDate.Equal(date) {
			continue
		}
		periodOK := period == schedule.PeriodAny || e.DesiredPeriod == schedule.PeriodAny || e.DesiredPeriod == period
		professionalOK := professionalID == nil || e.ProfessionalID == nil || *e.ProfessionalID == *professionalID
		if periodOK && professionalOK {
			matches = append(matches, e)
		}
	}
	if len(matches) == 0 {
		r.mu.Unlock()
		return nil, ErrEntryNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority < matches[j].Priority
		}
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})
	cp := *matches[0]
	r.mu.Unlock()

	if r.afterFind != nil {
		r.afterFind(cp.ID)
	}
	return &cp, nil
}

func (r *fakeRepo) MarkNotified(_ context.Context, id uuid.UUID, notifiedAt, expiresAt time.Time) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok || e.Status != StatusWaiting {
		return nil, ErrEntryNotFound
	}
	e.Status = StatusNotified
	e.NotifiedAt = &notifiedAt
	e.ExpiresAt = &expiresAt
	cp := *e
	return &cp, nil
}

func (r *fakeRepo) MarkExpired(_ context.Context, id uuid.UUID) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok || e.Status != StatusNotified {
		return nil, ErrEntryNotFound
	}
	e.Status = StatusExpired
	cp := *e
	return &cp, nil
}

func (r *fakeRepo) MarkCancelled(_ context.Context, id uuid.UUID) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok || (e.Status != StatusWaiting && e.Status != StatusNotified) {
		return nil, ErrEntryNotFound
	}
	e.Status = StatusCancelled
	cp := *e
	return &cp, nil
}

func (r *fakeRepo) MarkConverted(_ context.Context, id uuid.UUID, appointmentID uuid.UUID) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok || (e.Status != StatusWaiting && e.Status != StatusNotified) {
		return nil, ErrEntryNotFound
	}
	e.Status = StatusConverted
	e.ConvertedAppointmentID = &appointmentID
	cp := *e
	return &cp, nil
}

func (r *fakeRepo) FindExpiredNotified(_ context.Context, now time.Time) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.rows {
		if e.Status == StatusNotified && e.ExpiresAt != nil && e.ExpiresAt.Before(now) {
			out = append(out, *e)
		}
	}
	return out, nil
}

type fakeDirectory struct {
	known map[uuid.UUID]*clients.Client
}

func (d *fakeDirectory) GetClientByID(_ context.Context, id uuid.UUID) (*clients.Client, error) {
	c, ok := d.known[id]
	if !ok {
		return nil, clients.ErrClientNotFound
	}
	return c, nil
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

type fixture struct {
	svc        *Service
	repo       *fakeRepo
	clk        *clock.Fixed
	dispatcher *fakeDispatcher
	directory  *fakeDirectory

	businessID uuid.UUID
	serviceID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.NewFixed(time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC))
	repo := newFakeRepo(clk)

	f := &fixture{
		repo:       repo,
		clk:        clk,
		dispatcher: &fakeDispatcher{},
		directory:  &fakeDirectory{known: map[uuid.UUID]*clients.Client{}},
		businessID: uuid.New(),
		serviceID:  uuid.New(),
	}

	f.svc = NewService(Deps{
		Repo:       repo,
		Clients:    f.directory,
		Dispatcher: f.dispatcher,
		Events:     eventlog.Noop{},
		Clock:      clk,
		HoldTTL:    30 * time.Minute,
	})

	return f
}

func (f *fixture) newClient() uuid.UUID {
	id := uuid.New()
	f.directory.known[id] = &clients.Client{ID: id, Name: "Alex", Phone: "+15550002222"}
	return id
}

func (f *fixture) join(t *testing.T, clientID uuid.UUID, date time.Time, period schedule.Period, priority int, professionalID *uuid.UUID) *Entry {
	t.Helper()
	entry, err := f.svc.Add(context.Background(), AddParams{
		BusinessID:     f.businessID,
		ClientID:       clientID,
		ServiceID:      f.serviceID,
		ProfessionalID: professionalID,
		DesiredDate:    date,
		DesiredPeriod:  period,
		Priority:       priority,
	})
	require.NoError(t, err)
	return entry
}

var desiredDate = time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)

func TestAddEnforcesClientCap(t *testing.T) {
	f := newFixture(t)
	clientID := f.newClient()

	for i := 0; i < MaxWaitingPerClient; i++ {
		f.join(t, clientID, desiredDate.AddDate(0, 0, i), schedule.PeriodAny, 0, nil)
	}

	_, err := f.svc.Add(context.Background(), AddParams{
		BusinessID:  f.businessID,
		ClientID:    clientID,
		ServiceID:   f.serviceID,
		DesiredDate: desiredDate.AddDate(0, 0, MaxWaitingPerClient),
	})
	require.ErrorIs(t, err, ErrWaitlistFull)
}

func TestAddCapFreesWhenEntryResolves(t *testing.T) {
	f := newFixture(t)
	clientID := f.newClient()

	entries := make([]*Entry, 0, MaxWaitingPerClient)
	for i := 0; i < MaxWaitingPerClient; i++ {
		entries = append(entries, f.join(t, clientID, desiredDate.AddDate(0, 0, i), schedule.PeriodAny, 0, nil))
	}

	_, err := f.svc.Remove(context.Background(), entries[0].ID)
	require.NoError(t, err)

	// A resolved entry no longer counts toward the cap.
	f.join(t, clientID, desiredDate.AddDate(0, 0, MaxWaitingPerClient), schedule.PeriodAny, 0, nil)
}

func TestAddRejectsDuplicate(t *testing.T) {
	f := newFixture(t)
	clientID := f.newClient()

	f.join(t, clientID, desiredDate, schedule.PeriodMorning, 0, nil)

	_, err := f.svc.Add(context.Background(), AddParams{
		BusinessID:    f.businessID,
		ClientID:      clientID,
		ServiceID:     f.serviceID,
		DesiredDate:   desiredDate,
		DesiredPeriod: schedule.PeriodAfternoon,
	})
	require.ErrorIs(t, err, ErrDuplicateEntry)
}

func TestAddUnknownClient(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Add(context.Background(), AddParams{
		BusinessID:  f.businessID,
		ClientID:    uuid.New(),
		ServiceID:   f.serviceID,
		DesiredDate: desiredDate,
	})
	require.ErrorIs(t, err, clients.ErrClientNotFound)
}

func TestAddInvalidPeriod(t *testing.T) {
	f := newFixture(t)
	clientID := f.newClient()

	_, err := f.svc.Add(context.Background(), AddParams{
		BusinessID:    f.businessID,
		ClientID:      clientID,
		ServiceID:     f.serviceID,
		DesiredDate:   desiredDate,
		DesiredPeriod: schedule.Period("midnight"),
	})
	require.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestPromoteForSlotPicksByPriorityThenFIFO(t *testing.T) {
	f := newFixture(t)
	professionalID := uuid.New()
	freedAt := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)

	low := f.join(t, f.newClient(), desiredDate, schedule.PeriodMorning, 2, nil)
	high := f.join(t, f.newClient(), desiredDate, schedule.PeriodAny, 1, nil)

	require.NoError(t, f.svc.PromoteForSlot(context.Background(), f.businessID, professionalID, freedAt))

	got, err := f.repo.GetByID(context.Background(), high.ID)
	require.NoError(t, err)
	require.Equal(t, StatusNotified, got.Status)
	require.NotNil(t, got.ExpiresAt)
	require.True(t, got.ExpiresAt.Equal(f.clk.Now().Add(30*time.Minute)))

	untouched, err := f.repo.GetByID(context.Background(), low.ID)
	require.NoError(t, err)
	require.Equal(t, StatusWaiting, untouched.Status)

	require.Len(t, f.dispatcher.sent, 1)
}

func TestPromoteForSlotMatchesPeriod(t *testing.T) {
	f := newFixture(t)
	professionalID := uuid.New()

	evening := f.join(t, f.newClient(), desiredDate, schedule.PeriodEvening, 0, nil)

	// A morning slot frees up: the evening-only entry must not be notified.
	freedAt := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.svc.PromoteForSlot(context.Background(), f.businessID, professionalID, freedAt))

	got, err := f.repo.GetByID(context.Background(), evening.ID)
	require.NoError(t, err)
	require.Equal(t, StatusWaiting, got.Status)
	require.Empty(t, f.dispatcher.sent)
}

func TestPromoteForSlotMatchesProfessionalPreference(t *testing.T) {
	f := newFixture(t)
	wantedID := uuid.New()
	otherID := uuid.New()
	freedAt := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)

	picky := f.join(t, f.newClient(), desiredDate, schedule.PeriodAny, 0, &wantedID)

	require.NoError(t, f.svc.PromoteForSlot(context.Background(), f.businessID, otherID, freedAt))

	got, err := f.repo.GetByID(context.Background(), picky.ID)
	require.NoError(t, err)
	require.Equal(t, StatusWaiting, got.Status)

	require.NoError(t, f.svc.PromoteForSlot(context.Background(), f.businessID, wantedID, freedAt))

	got, err = f.repo.GetByID(context.Background(), picky.ID)
	require.NoError(t, err)
	require.Equal(t, StatusNotified, got.Status)
}

func TestPromoteForSlotNoCandidateIsNoop(t *testing.T) {
	f := newFixture(t)

	err := f.svc.PromoteForSlot(context.Background(), f.businessID, uuid.New(),
		time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Empty(t, f.dispatcher.sent)
}

func TestPromoteForSlotSkipsRacedEntry(t *testing.T) {
	f := newFixture(t)
	freedAt := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)

	first := f.join(t, f.newClient(), desiredDate, schedule.PeriodAny, 0, nil)
	second := f.join(t, f.newClient(), desiredDate, schedule.PeriodAny, 1, nil)

	// A racing promoter claims the first candidate right after we read it.
	f.repo.afterFind = func(id uuid.UUID) {
		f.repo.afterFind = nil
		now := f.clk.Now()
		_, err := f.repo.MarkNotified(context.Background(), id, now, now.Add(time.Minute))
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.PromoteForSlot(context.Background(), f.businessID, uuid.New(), freedAt))

	// The loser moved on to the next candidate instead of failing.
	got, err := f.repo.GetByID(context.Background(), second.ID)
	require.NoError(t, err)
	require.Equal(t, StatusNotified, got.Status)

	raced, err := f.repo.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusNotified, raced.Status)
}

func TestExpireNotifiedCascadesOneHop(t *testing.T) {
	f := newFixture(t)
	professionalID := uuid.New()
	freedAt := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)

	first := f.join(t, f.newClient(), desiredDate, schedule.PeriodAny, 0, nil)
	second := f.join(t, f.newClient(), desiredDate, schedule.PeriodAny, 1, nil)
	third := f.join(t, f.newClient(), desiredDate, schedule.PeriodAny, 2, nil)

	require.NoError(t, f.svc.PromoteForSlot(context.Background(), f.businessID, professionalID, freedAt))

	f.clk.Advance(31 * time.Minute)
	require.NoError(t, f.svc.ExpireNotified(context.Background()))

	got, err := f.repo.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, got.Status)

	got, err = f.repo.GetByID(context.Background(), second.ID)
	require.NoError(t, err)
	require.Equal(t, StatusNotified, got.Status)

	// One hop per sweep: the third entry waits for the next expiry.
	got, err = f.repo.GetByID(context.Background(), third.ID)
	require.NoError(t, err)
	require.Equal(t, StatusWaiting, got.Status)
}

func TestExpireNotifiedSkipsFreshHolds(t *testing.T) {
	f := newFixture(t)
	freedAt := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)

	entry := f.join(t, f.newClient(), desiredDate, schedule.PeriodAny, 0, nil)
	require.NoError(t, f.svc.PromoteForSlot(context.Background(), f.businessID, uuid.New(), freedAt))

	f.clk.Advance(10 * time.Minute)
	require.NoError(t, f.svc.ExpireNotified(context.Background()))

	got, err := f.repo.GetByID(context.Background(), entry.ID)
	require.NoError(t, err)
	require.Equal(t, StatusNotified, got.Status)
}

func TestRemoveResolvedEntryFails(t *testing.T) {
	f := newFixture(t)
	entry := f.join(t, f.newClient(), desiredDate, schedule.PeriodAny, 0, nil)

	_, err := f.svc.Remove(context.Background(), entry.ID)
	require.NoError(t, err)

	_, err = f.svc.Remove(context.Background(), entry.ID)
	require.ErrorIs(t, err, ErrEntryResolved)
}

func TestConvertStampsAppointment(t *testing.T) {
	f := newFixture(t)
	entry := f.join(t, f.newClient(), desiredDate, schedule.PeriodAny, 0, nil)

	require.NoError(t, f.svc.PromoteForSlot(context.Background(), f.businessID, uuid.New(),
		time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)))

	appointmentID := uuid.New()
	converted, err := f.svc.Convert(context.Background(), entry.ID, appointmentID)
	require.NoError(t, err)
	require.Equal(t, StatusConverted, converted.Status)
	require.NotNil(t, converted.ConvertedAppointmentID)
	require.Equal(t, appointmentID, *converted.ConvertedAppointmentID)

	// Conversion is one-way.
	_, err = f.svc.Convert(context.Background(), entry.ID, uuid.New())
	require.ErrorIs(t, err, ErrEntryResolved)
}
