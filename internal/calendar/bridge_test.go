package calendar

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caresync/scheduling/internal/db"
	"github.com/caresync/scheduling/internal/directory"
	"github.com/caresync/scheduling/internal/errs"
	"github.com/caresync/scheduling/internal/slot"
	"github.com/caresync/scheduling/internal/timeutil"
)

type fakeProvider struct {
	mu       sync.Mutex
	events   []Event
	inserted []EventSpec

	listErr   error
	insertErr error
	nextID    int
}

func (p *fakeProvider) ListEvents(_ context.Context, _ string, _, _ time.Time) ([]Event, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	return p.events, nil
}

func (p *fakeProvider) InsertEvent(_ context.Context, _ string, spec EventSpec) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.insertErr != nil {
		return "", p.insertErr
	}
	p.inserted = append(p.inserted, spec)
	p.nextID++
	return fmt.Sprintf("ev-%d", p.nextID), nil
}

type memStore struct {
	mu    sync.Mutex
	slots map[uuid.UUID]slot.TimeSlot

	insertErr error
}

func newMemStore() *memStore {
	return &memStore{slots: map[uuid.UUID]slot.TimeSlot{}}
}

func (m *memStore) With(db.Querier) slot.Store { return m }

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*slot.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, slot.ErrSlotNotFound
	}
	return &s, nil
}

func (m *memStore) ListByDoctor(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]slot.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []slot.TimeSlot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && !s.Date.Before(timeutil.TruncateToDay(from)) && !s.Date.After(timeutil.TruncateToDay(to)) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) ListByDoctorDay(_ context.Context, doctorID uuid.UUID, day time.Time) ([]slot.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day = timeutil.TruncateToDay(day)
	var out []slot.TimeSlot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.Date.Equal(day) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) Insert(_ context.Context, s *slot.TimeSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.slots[s.ID] = *s
	return nil
}

func (m *memStore) Update(_ context.Context, s *slot.TimeSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[s.ID] = *s
	return nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, id)
	return nil
}

func (m *memStore) DeleteUnbookedForDay(context.Context, uuid.UUID, time.Time) (int64, error) {
	return 0, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to slot.Status) (*slot.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok || s.Status != from {
		return nil, slot.ErrStatusChanged
	}
	s.Status = to
	m.slots[id] = s
	return &s, nil
}

func (m *memStore) SetExternalEventID(_ context.Context, id uuid.UUID, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return slot.ErrSlotNotFound
	}
	s.ExternalEventID = &eventID
	m.slots[id] = s
	return nil
}

type memRunner struct {
	store *memStore
}

func (r memRunner) InTx(_ context.Context, fn func(q db.Querier) error) error {
	r.store.mu.Lock()
	snap := make(map[uuid.UUID]slot.TimeSlot, len(r.store.slots))
	for k, v := range r.store.slots {
		snap[k] = v
	}
	r.store.mu.Unlock()

	if err := fn(nil); err != nil {
		r.store.mu.Lock()
		r.store.slots = snap
		r.store.mu.Unlock()
		return err
	}
	return nil
}

type fakeDirectory struct {
	doctors map[uuid.UUID]directory.Doctor
}

func (d fakeDirectory) FindDoctorByID(_ context.Context, id uuid.UUID) (*directory.Doctor, error) {
	doc, ok := d.doctors[id]
	if !ok {
		return nil, directory.ErrDoctorNotFound
	}
	return &doc, nil
}

func (d fakeDirectory) FindPatientByID(context.Context, uuid.UUID) (*directory.Patient, error) {
	return nil, directory.ErrPatientNotFound
}

func (d fakeDirectory) FindUserByID(context.Context, uuid.UUID) (*directory.User, error) {
	return nil, directory.ErrUserNotFound
}

type fixture struct {
	bridge   *Bridge
	provider *fakeProvider
	store    *memStore
	doctorID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	provider := &fakeProvider{}
	store := newMemStore()
	doctorID := uuid.New()
	cred := "refresh-token"
	dir := fakeDirectory{doctors: map[uuid.UUID]directory.Doctor{
		doctorID: {ID: doctorID, UserID: uuid.New(), Name: "Derek Shepherd", CalendarCredential: &cred},
	}}

	return &fixture{
		bridge:   NewBridge(provider, memRunner{store: store}, store, dir, nil, nil, nil),
		provider: provider,
		store:    store,
		doctorID: doctorID,
	}
}

var (
	syncDay  = time.Date(2026, 9, 21, 0, 0, 0, 0, time.UTC)
	syncFrom = syncDay
	syncTo   = syncDay.AddDate(0, 0, 7)
)

func remoteEvent(id, summary string, startHour, startMin, durMin int) Event {
	start := syncDay.Add(time.Duration(startHour)*time.Hour + time.Duration(startMin)*time.Minute)
	end := start.Add(time.Duration(durMin) * time.Minute)
	return Event{ID: id, Summary: summary, Start: &start, End: &end}
}

func (f *fixture) seedSlot(t *testing.T, start, end string, status slot.Status, eventID string) slot.TimeSlot {
	t.Helper()
	s := slot.TimeSlot{
		ID:        uuid.New(),
		DoctorID:  f.doctorID,
		Date:      syncDay,
		StartTime: start,
		EndTime:   end,
		Status:    status,
	}
	if eventID != "" {
		s.ExternalEventID = &eventID
	}
	require.NoError(t, f.store.Insert(context.Background(), &s))
	return s
}

func TestImport(t *testing.T) {
	ctx := context.Background()

	t.Run("creates slots from well formed events", func(t *testing.T) {
		f := newFixture(t)
		f.provider.events = []Event{
			remoteEvent("ev-a", "Available", 9, 0, 30),
			remoteEvent("ev-b", "Available", 10, 0, 30),
		}

		res, err := f.bridge.Import(ctx, f.doctorID, "", syncFrom, syncTo, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Imported)
		assert.Zero(t, res.Skipped)

		day, err := f.store.ListByDoctorDay(ctx, f.doctorID, syncDay)
		require.NoError(t, err)
		require.Len(t, day, 2)
		for _, s := range day {
			assert.Equal(t, slot.StatusAvailable, s.Status)
			require.NotNil(t, s.ExternalEventID)
		}
	})

	t.Run("skips events with missing or inverted timestamps", func(t *testing.T) {
		f := newFixture(t)
		start := syncDay.Add(9 * time.Hour)
		overnight := remoteEvent("ev-overnight", "On call", 23, 0, 120)
		f.provider.events = []Event{
			{ID: "ev-nostart", Summary: "???", End: &start},
			{ID: "ev-noend", Summary: "???", Start: &start},
			overnight,
		}

		res, err := f.bridge.Import(ctx, f.doctorID, "", syncFrom, syncTo, uuid.Nil)
		require.NoError(t, err)
		assert.Zero(t, res.Imported)
		assert.Equal(t, 3, res.Skipped)
		require.Len(t, res.Details, 3)
		assert.Contains(t, res.Details[0].Reason, "missing start or end")
		assert.Contains(t, res.Details[2].Reason, "spans multiple calendar days")
	})

	t.Run("skips events overlapping existing slots", func(t *testing.T) {
		f := newFixture(t)
		f.seedSlot(t, "09:00", "10:00", slot.StatusBooked, "")
		f.provider.events = []Event{remoteEvent("ev-a", "Available", 9, 30, 30)}

		res, err := f.bridge.Import(ctx, f.doctorID, "", syncFrom, syncTo, uuid.Nil)
		require.NoError(t, err)
		assert.Zero(t, res.Imported)
		assert.Equal(t, 1, res.Skipped)
		assert.Contains(t, res.Details[0].Reason, "overlaps existing slot")
	})

	t.Run("already imported events are skipped not duplicated", func(t *testing.T) {
		f := newFixture(t)
		f.provider.events = []Event{remoteEvent("ev-a", "Available", 9, 0, 30)}

		res, err := f.bridge.Import(ctx, f.doctorID, "", syncFrom, syncTo, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Imported)

		res, err = f.bridge.Import(ctx, f.doctorID, "", syncFrom, syncTo, uuid.Nil)
		require.NoError(t, err)
		assert.Zero(t, res.Imported)
		assert.Equal(t, 1, res.Skipped)
		assert.Equal(t, "already imported", res.Details[0].Reason)
	})

	t.Run("provider failure surfaces as external error", func(t *testing.T) {
		f := newFixture(t)
		f.provider.listErr = fmt.Errorf("503 from upstream")

		_, err := f.bridge.Import(ctx, f.doctorID, "", syncFrom, syncTo, uuid.Nil)
		require.Error(t, err)
		assert.Equal(t, errs.KindExternal, errs.KindOf(err))
	})

	t.Run("doctor without credential is rejected", func(t *testing.T) {
		f := newFixture(t)
		doc := f.bridge.dir.(fakeDirectory).doctors[f.doctorID]
		doc.CalendarCredential = nil
		f.bridge.dir.(fakeDirectory).doctors[f.doctorID] = doc

		_, err := f.bridge.Import(ctx, f.doctorID, "", syncFrom, syncTo, uuid.Nil)
		require.Error(t, err)
		assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	})
}

func TestExport(t *testing.T) {
	ctx := context.Background()

	t.Run("pushes untagged slots and tags them", func(t *testing.T) {
		f := newFixture(t)
		fresh := f.seedSlot(t, "09:00", "09:30", slot.StatusAvailable, "")
		f.seedSlot(t, "10:00", "10:30", slot.StatusAvailable, "ev-existing")

		res, err := f.bridge.Export(ctx, f.doctorID, "", syncFrom, syncTo, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Exported)
		assert.Equal(t, 1, res.Skipped)

		require.Len(t, f.provider.inserted, 1)
		spec := f.provider.inserted[0]
		assert.Equal(t, "Available - Dr. Derek Shepherd", spec.Summary)
		assert.True(t, spec.Transparent)
		assert.True(t, spec.NoReminders)
		assert.Equal(t, syncDay.Add(9*time.Hour), spec.Start)

		tagged, err := f.store.GetByID(ctx, fresh.ID)
		require.NoError(t, err)
		require.NotNil(t, tagged.ExternalEventID)
		assert.Equal(t, "ev-1", *tagged.ExternalEventID)
	})

	t.Run("one failing slot does not abort the batch", func(t *testing.T) {
		f := newFixture(t)
		f.seedSlot(t, "09:00", "09:30", slot.StatusAvailable, "")
		f.seedSlot(t, "10:00", "10:30", slot.StatusAvailable, "")
		f.provider.insertErr = fmt.Errorf("quota exceeded")

		res, err := f.bridge.Export(ctx, f.doctorID, "", syncFrom, syncTo, uuid.Nil)
		require.NoError(t, err)
		assert.Zero(t, res.Exported)
		assert.Equal(t, 2, res.Errors)
	})
}

func TestSync(t *testing.T) {
	ctx := context.Background()

	t.Run("pushes local, pulls remote, reconciles mapped pairs", func(t *testing.T) {
		f := newFixture(t)
		linked := f.seedSlot(t, "09:00", "09:30", slot.StatusAvailable, "ev-linked")
		untagged := f.seedSlot(t, "10:00", "10:30", slot.StatusAvailable, "")
		f.provider.events = []Event{
			remoteEvent("ev-linked", "Available - Dr. Derek Shepherd", 9, 0, 30),
			remoteEvent("ev-remote", "Available - Dr. Derek Shepherd", 11, 0, 30),
			remoteEvent("ev-lunch", "Lunch with Meredith", 12, 0, 60),
		}

		res, err := f.bridge.Sync(ctx, f.doctorID, "", syncFrom, syncTo, uuid.Nil)
		require.NoError(t, err)

		// One push, one pull. The lunch event carries no availability marker.
		assert.Equal(t, 2, res.Created)
		assert.Zero(t, res.Updated)
		assert.Zero(t, res.Deleted)
		assert.Zero(t, res.Errors)

		pushed, err := f.store.GetByID(ctx, untagged.ID)
		require.NoError(t, err)
		require.NotNil(t, pushed.ExternalEventID)

		day, err := f.store.ListByDoctorDay(ctx, f.doctorID, syncDay)
		require.NoError(t, err)
		assert.Len(t, day, 3)

		// The linked pair was left alone.
		kept, err := f.store.GetByID(ctx, linked.ID)
		require.NoError(t, err)
		assert.Equal(t, "ev-linked", *kept.ExternalEventID)
	})

	t.Run("remote drift is not detected", func(t *testing.T) {
		f := newFixture(t)
		f.seedSlot(t, "09:00", "09:30", slot.StatusAvailable, "ev-linked")
		// The remote event moved to 15:00; presence reconciliation cannot see it.
		f.provider.events = []Event{
			remoteEvent("ev-linked", "Available - Dr. Derek Shepherd", 15, 0, 30),
		}

		res, err := f.bridge.Sync(ctx, f.doctorID, "", syncFrom, syncTo, uuid.Nil)
		require.NoError(t, err)
		assert.Zero(t, res.Created)
		assert.Zero(t, res.Updated)
		assert.Zero(t, res.Errors)
	})

	t.Run("pulled events skip collisions including each other", func(t *testing.T) {
		f := newFixture(t)
		f.seedSlot(t, "09:00", "09:30", slot.StatusBooked, "")
		f.provider.events = []Event{
			remoteEvent("ev-a", "Available", 9, 15, 30),
			remoteEvent("ev-b", "Available", 11, 0, 30),
			remoteEvent("ev-c", "Available", 11, 15, 30),
		}

		res, err := f.bridge.Sync(ctx, f.doctorID, "", syncFrom, syncTo, uuid.Nil)
		require.NoError(t, err)
		// The untagged booked slot gets pushed, ev-a collides with it, and
		// ev-c collides with the freshly pulled ev-b.
		assert.Equal(t, 2, res.Created)

		var skipped int
		for _, d := range res.Details {
			if d.Action == "skipped" && d.Reason == "overlaps existing slot" {
				skipped++
			}
		}
		assert.Equal(t, 2, skipped)
	})

	t.Run("local writes are atomic", func(t *testing.T) {
		f := newFixture(t)
		untagged := f.seedSlot(t, "10:00", "10:30", slot.StatusAvailable, "")
		f.provider.events = []Event{
			remoteEvent("ev-remote", "Available", 11, 0, 30),
		}
		f.store.insertErr = fmt.Errorf("disk full")

		_, err := f.bridge.Sync(ctx, f.doctorID, "", syncFrom, syncTo, uuid.Nil)
		require.Error(t, err)

		// The tag write rolled back together with the failed insert.
		s, err := f.store.GetByID(ctx, untagged.ID)
		require.NoError(t, err)
		assert.Nil(t, s.ExternalEventID)
	})
}
