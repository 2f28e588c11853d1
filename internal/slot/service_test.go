package slot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caresync/scheduling/internal/db"
	"github.com/caresync/scheduling/internal/directory"
	"github.com/caresync/scheduling/internal/errs"
	"github.com/caresync/scheduling/internal/timeutil"
)

// memStore is an in-memory Store used by the service tests. With returns the
// store itself; the paired memRunner provides rollback by snapshotting.
type memStore struct {
	mu    sync.Mutex
	slots map[uuid.UUID]TimeSlot

	insertErr error
}

func newMemStore() *memStore {
	return &memStore{slots: map[uuid.UUID]TimeSlot{}}
}

func (m *memStore) With(db.Querier) Store { return m }

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (m *memStore) ListByDoctor(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TimeSlot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && !s.Date.Before(timeutil.TruncateToDay(from)) && !s.Date.After(timeutil.TruncateToDay(to)) {
			out = append(out, s)
		}
	}
	sortSlots(out)
	return out, nil
}

func (m *memStore) ListByDoctorDay(_ context.Context, doctorID uuid.UUID, day time.Time) ([]TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day = timeutil.TruncateToDay(day)
	var out []TimeSlot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.Date.Equal(day) {
			out = append(out, s)
		}
	}
	sortSlots(out)
	return out, nil
}

func (m *memStore) Insert(_ context.Context, s *TimeSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, existing := range m.slots {
		if existing.DoctorID == s.DoctorID && existing.Date.Equal(s.Date) && existing.StartTime == s.StartTime {
			return ErrDuplicateSlot
		}
	}
	m.slots[s.ID] = *s
	return nil
}

func (m *memStore) Update(_ context.Context, s *TimeSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[s.ID]; !ok {
		return ErrSlotNotFound
	}
	m.slots[s.ID] = *s
	return nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[id]; !ok {
		return ErrSlotNotFound
	}
	delete(m.slots, id)
	return nil
}

func (m *memStore) DeleteUnbookedForDay(_ context.Context, doctorID uuid.UUID, day time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day = timeutil.TruncateToDay(day)
	var n int64
	for id, s := range m.slots {
		if s.DoctorID == doctorID && s.Date.Equal(day) && s.Status != StatusBooked {
			delete(m.slots, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok || s.Status != from {
		return nil, ErrStatusChanged
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
		return ErrSlotNotFound
	}
	s.ExternalEventID = &eventID
	m.slots[id] = s
	return nil
}

func (m *memStore) snapshot() map[uuid.UUID]TimeSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[uuid.UUID]TimeSlot, len(m.slots))
	for k, v := range m.slots {
		cp[k] = v
	}
	return cp
}

func (m *memStore) restore(snap map[uuid.UUID]TimeSlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots = snap
}

func sortSlots(slots []TimeSlot) {
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].Date.Equal(slots[j].Date) {
			return slots[i].Date.Before(slots[j].Date)
		}
		return slots[i].StartTime < slots[j].StartTime
	})
}

// memRunner mimics transactional semantics over memStore: when fn fails, the
// store is restored to its pre-transaction state.
type memRunner struct {
	store *memStore
}

func (r memRunner) InTx(_ context.Context, fn func(q db.Querier) error) error {
	snap := r.store.snapshot()
	if err := fn(nil); err != nil {
		r.store.restore(snap)
		return err
	}
	return nil
}

type fakeDirectory struct {
	doctors  map[uuid.UUID]directory.Doctor
	patients map[uuid.UUID]directory.Patient
}

func (d fakeDirectory) FindDoctorByID(_ context.Context, id uuid.UUID) (*directory.Doctor, error) {
	doc, ok := d.doctors[id]
	if !ok {
		return nil, directory.ErrDoctorNotFound
	}
	return &doc, nil
}

func (d fakeDirectory) FindPatientByID(_ context.Context, id uuid.UUID) (*directory.Patient, error) {
	p, ok := d.patients[id]
	if !ok {
		return nil, directory.ErrPatientNotFound
	}
	return &p, nil
}

func (d fakeDirectory) FindUserByID(_ context.Context, id uuid.UUID) (*directory.User, error) {
	return nil, directory.ErrUserNotFound
}

type fixture struct {
	svc      *Service
	store    *memStore
	doctorID uuid.UUID
}

func newFixture(t *testing.T, windows *string) *fixture {
	t.Helper()
	store := newMemStore()
	doctorID := uuid.New()
	dir := fakeDirectory{doctors: map[uuid.UUID]directory.Doctor{
		doctorID: {ID: doctorID, UserID: uuid.New(), Name: "Meredith Grey", SlotWindows: windows},
	}}

	svc, err := NewService(memRunner{store: store}, store, dir, nil, nil, nil, ServiceConfig{
		DefaultWindows:  "09:00-12:00,13:00-17:00",
		SlotDurationMin: 30,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, store: store, doctorID: doctorID}
}

func (f *fixture) seed(t *testing.T, day time.Time, start, end string, status Status) TimeSlot {
	t.Helper()
	s := TimeSlot{
		ID:        uuid.New(),
		DoctorID:  f.doctorID,
		Date:      timeutil.TruncateToDay(day),
		StartTime: start,
		EndTime:   end,
		Status:    status,
	}
	require.NoError(t, f.store.Insert(context.Background(), &s))
	return s
}

var testDay = time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)

func TestCreateSlot(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an available slot", func(t *testing.T) {
		f := newFixture(t, nil)
		created, err := f.svc.CreateSlot(ctx, CreateSlotInput{
			DoctorID:  f.doctorID,
			Date:      testDay,
			StartTime: "09:00",
			EndTime:   "09:30",
		}, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, StatusAvailable, created.Status)

		stored, err := f.store.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "09:00", stored.StartTime)
	})

	t.Run("rejects overlap and names the colliding slot", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seed(t, testDay, "10:00", "10:30", StatusAvailable)

		_, err := f.svc.CreateSlot(ctx, CreateSlotInput{
			DoctorID:  f.doctorID,
			Date:      testDay,
			StartTime: "10:15",
			EndTime:   "10:45",
		}, uuid.Nil)
		require.Error(t, err)
		assert.Equal(t, errs.KindConflict, errs.KindOf(err))
		assert.Contains(t, err.Error(), "10:00-10:30")
	})

	t.Run("rejects overlap with a blocked slot too", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seed(t, testDay, "10:00", "11:00", StatusBlocked)

		_, err := f.svc.CreateSlot(ctx, CreateSlotInput{
			DoctorID:  f.doctorID,
			Date:      testDay,
			StartTime: "10:30",
			EndTime:   "11:00",
		}, uuid.Nil)
		require.Error(t, err)
		assert.Equal(t, errs.KindConflict, errs.KindOf(err))
	})

	t.Run("touching endpoints do not collide", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seed(t, testDay, "10:00", "10:30", StatusBooked)

		_, err := f.svc.CreateSlot(ctx, CreateSlotInput{
			DoctorID:  f.doctorID,
			Date:      testDay,
			StartTime: "10:30",
			EndTime:   "11:00",
		}, uuid.Nil)
		require.NoError(t, err)
	})

	t.Run("invalid interval", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.svc.CreateSlot(ctx, CreateSlotInput{
			DoctorID:  f.doctorID,
			Date:      testDay,
			StartTime: "11:00",
			EndTime:   "10:00",
		}, uuid.Nil)
		require.Error(t, err)
		assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	})

	t.Run("unknown doctor", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.svc.CreateSlot(ctx, CreateSlotInput{
			DoctorID:  uuid.New(),
			Date:      testDay,
			StartTime: "09:00",
			EndTime:   "09:30",
		}, uuid.Nil)
		require.Error(t, err)
		assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
	})
}

func TestUpdateSlot(t *testing.T) {
	ctx := context.Background()

	t.Run("booked timing is immutable", func(t *testing.T) {
		f := newFixture(t, nil)
		s := f.seed(t, testDay, "10:00", "10:30", StatusBooked)

		start := "11:00"
		_, err := f.svc.UpdateSlot(ctx, s.ID, UpdateSlotInput{StartTime: &start}, uuid.Nil)
		require.Error(t, err)
		assert.Equal(t, errs.KindConflict, errs.KindOf(err))

		stored, err := f.store.GetByID(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, "10:00", stored.StartTime)
	})

	t.Run("booked status cannot be set directly", func(t *testing.T) {
		f := newFixture(t, nil)
		s := f.seed(t, testDay, "10:00", "10:30", StatusAvailable)

		booked := StatusBooked
		_, err := f.svc.UpdateSlot(ctx, s.ID, UpdateSlotInput{Status: &booked}, uuid.Nil)
		require.Error(t, err)
		assert.Equal(t, errs.KindConflict, errs.KindOf(err))
	})

	t.Run("available to blocked and back", func(t *testing.T) {
		f := newFixture(t, nil)
		s := f.seed(t, testDay, "10:00", "10:30", StatusAvailable)

		blocked := StatusBlocked
		updated, err := f.svc.UpdateSlot(ctx, s.ID, UpdateSlotInput{Status: &blocked}, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, StatusBlocked, updated.Status)

		available := StatusAvailable
		updated, err = f.svc.UpdateSlot(ctx, s.ID, UpdateSlotInput{Status: &available}, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, StatusAvailable, updated.Status)
	})

	t.Run("retiming re-checks overlap but not against itself", func(t *testing.T) {
		f := newFixture(t, nil)
		s := f.seed(t, testDay, "10:00", "11:00", StatusAvailable)
		f.seed(t, testDay, "14:00", "15:00", StatusAvailable)

		// Shrinking inside its own old interval is fine.
		end := "10:30"
		updated, err := f.svc.UpdateSlot(ctx, s.ID, UpdateSlotInput{EndTime: &end}, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, "10:30", updated.EndTime)

		// Moving onto the other slot is not.
		start, end2 := "14:30", "15:30"
		_, err = f.svc.UpdateSlot(ctx, s.ID, UpdateSlotInput{StartTime: &start, EndTime: &end2}, uuid.Nil)
		require.Error(t, err)
		assert.Equal(t, errs.KindConflict, errs.KindOf(err))
	})
}

func TestDeleteSlot(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes available slot", func(t *testing.T) {
		f := newFixture(t, nil)
		s := f.seed(t, testDay, "10:00", "10:30", StatusAvailable)

		require.NoError(t, f.svc.DeleteSlot(ctx, s.ID, uuid.Nil))
		_, err := f.store.GetByID(ctx, s.ID)
		assert.ErrorIs(t, err, ErrSlotNotFound)
	})

	t.Run("refuses booked slot", func(t *testing.T) {
		f := newFixture(t, nil)
		s := f.seed(t, testDay, "10:00", "10:30", StatusBooked)

		err := f.svc.DeleteSlot(ctx, s.ID, uuid.Nil)
		require.Error(t, err)
		assert.Equal(t, errs.KindConflict, errs.KindOf(err))
	})

	t.Run("not found", func(t *testing.T) {
		f := newFixture(t, nil)
		err := f.svc.DeleteSlot(ctx, uuid.New(), uuid.Nil)
		assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
	})
}

func TestGenerateSlots(t *testing.T) {
	ctx := context.Background()

	t.Run("generates a full week from default windows", func(t *testing.T) {
		f := newFixture(t, nil)
		to := testDay.AddDate(0, 0, 6)

		generated, err := f.svc.GenerateSlots(ctx, f.doctorID, testDay, to, uuid.Nil)
		require.NoError(t, err)
		// 14 per day (6 morning + 8 afternoon) over 7 days.
		assert.Len(t, generated, 98)
	})

	t.Run("doctor windows override defaults", func(t *testing.T) {
		windows := "08:00-10:00"
		f := newFixture(t, &windows)

		generated, err := f.svc.GenerateSlots(ctx, f.doctorID, testDay, testDay, uuid.Nil)
		require.NoError(t, err)
		require.Len(t, generated, 4)
		assert.Equal(t, "08:00", generated[0].StartTime)
	})

	t.Run("booked slots survive and shadow candidates", func(t *testing.T) {
		f := newFixture(t, nil)
		booked := f.seed(t, testDay, "09:15", "09:45", StatusBooked)
		stale := f.seed(t, testDay, "13:00", "13:30", StatusAvailable)

		generated, err := f.svc.GenerateSlots(ctx, f.doctorID, testDay, testDay, uuid.Nil)
		require.NoError(t, err)

		kept, err := f.store.GetByID(ctx, booked.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusBooked, kept.Status)

		// The stale available slot was cleared and replaced by a fresh one.
		_, err = f.store.GetByID(ctx, stale.ID)
		assert.ErrorIs(t, err, ErrSlotNotFound)

		for _, s := range generated {
			assert.False(t, s.OverlapsInterval(555, 585), "generated %s-%s overlaps booked slot", s.StartTime, s.EndTime)
		}
		// 09:00 and 09:30 candidates are shadowed by the booked 09:15-09:45.
		assert.Len(t, generated, 12)
	})

	t.Run("run is atomic", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seed(t, testDay, "13:00", "13:30", StatusAvailable)
		f.store.insertErr = fmt.Errorf("disk full")

		_, err := f.svc.GenerateSlots(ctx, f.doctorID, testDay, testDay.AddDate(0, 0, 2), uuid.Nil)
		require.Error(t, err)

		// The cleared pre-existing slot came back with the rollback.
		day, err := f.store.ListByDoctorDay(ctx, f.doctorID, testDay)
		require.NoError(t, err)
		require.Len(t, day, 1)
		assert.Equal(t, "13:00", day[0].StartTime)
	})

	t.Run("reversed range rejected", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.svc.GenerateSlots(ctx, f.doctorID, testDay, testDay.AddDate(0, 0, -1), uuid.Nil)
		require.Error(t, err)
		assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	})
}

func TestListAvailableSlots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seed(t, testDay, "09:00", "09:30", StatusAvailable)
	f.seed(t, testDay, "09:30", "10:00", StatusBooked)
	f.seed(t, testDay, "10:00", "10:30", StatusBlocked)

	from, to := testDay, testDay.AddDate(0, 0, 1)
	all, err := f.svc.ListSlots(ctx, f.doctorID, &from, &to)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	available, err := f.svc.ListAvailableSlots(ctx, f.doctorID, &from, &to)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "09:00", available[0].StartTime)
}
