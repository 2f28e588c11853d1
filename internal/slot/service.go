package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/caresync/scheduling/internal/audit"
	"github.com/caresync/scheduling/internal/db"
	"github.com/caresync/scheduling/internal/directory"
	"github.com/caresync/scheduling/internal/errs"
	"github.com/caresync/scheduling/internal/observability/metrics"
	"github.com/caresync/scheduling/internal/timeutil"
	"github.com/caresync/scheduling/pkg/logging"
)

const defaultListRange = 7 * 24 * time.Hour

// Service is the availability API: slot listing, manual slot CRUD with overlap
// guards, and schedule-driven generation.
type Service struct {
	runner  db.TxRunner
	store   Store
	dir     directory.Directory
	auditor audit.Recorder
	logger  *logging.Logger
	metrics *metrics.SchedulingMetrics

	defaultWindows []Window
	durationMin    int

	now func() time.Time
}

// ServiceConfig carries the generation defaults used when a doctor has no
// windows of their own.
type ServiceConfig struct {
	DefaultWindows  string // e.g. "09:00-12:00,13:00-17:00"
	SlotDurationMin int
}

func NewService(runner db.TxRunner, store Store, dir directory.Directory, auditor audit.Recorder, logger *logging.Logger, m *metrics.SchedulingMetrics, cfg ServiceConfig) (*Service, error) {
	windows, err := ParseWindows(cfg.DefaultWindows)
	if err != nil {
		return nil, fmt.Errorf("parse default windows: %w", err)
	}
	if cfg.SlotDurationMin <= 0 {
		return nil, fmt.Errorf("slot duration must be positive, got %d", cfg.SlotDurationMin)
	}
	if logger == nil {
		logger = logging.Default()
	}
	if auditor == nil {
		auditor = audit.NopRecorder{}
	}
	return &Service{
		runner:         runner,
		store:          store,
		dir:            dir,
		auditor:        auditor,
		logger:         logger,
		metrics:        m,
		defaultWindows: windows,
		durationMin:    cfg.SlotDurationMin,
		now:            time.Now,
	}, nil
}

// ListSlots returns every slot of the doctor in [from, to] regardless of
// status, ordered by date then start time. A nil bound defaults the range to
// the next seven days.
func (s *Service) ListSlots(ctx context.Context, doctorID uuid.UUID, from, to *time.Time) ([]TimeSlot, error) {
	if _, err := s.findDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	start, end := s.resolveRange(from, to)
	slots, err := s.store.ListByDoctor(ctx, doctorID, start, end)
	if err != nil {
		return nil, errs.Internal(err, "list slots")
	}
	return slots, nil
}

// ListAvailableSlots is ListSlots filtered to bookable slots.
func (s *Service) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, from, to *time.Time) ([]TimeSlot, error) {
	slots, err := s.ListSlots(ctx, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	available := slots[:0]
	for _, sl := range slots {
		if sl.Status == StatusAvailable {
			available = append(available, sl)
		}
	}
	return available, nil
}

// GetSlot fetches one slot by id.
func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	sl, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, errs.NotFound("slot %s not found", id)
		}
		return nil, errs.Internal(err, "load slot")
	}
	return sl, nil
}

// CreateSlotInput is the argument set for manual slot creation.
type CreateSlotInput struct {
	DoctorID  uuid.UUID
	Date      time.Time
	StartTime string
	EndTime   string
	Status    Status // defaults to available
}

// CreateSlot inserts one manually-defined slot. Manual creation is
// conservative: a collision with any existing slot of that doctor/day,
// whatever its status, rejects the insert.
func (s *Service) CreateSlot(ctx context.Context, in CreateSlotInput, actorID uuid.UUID) (*TimeSlot, error) {
	if in.Status == "" {
		in.Status = StatusAvailable
	}
	startMin, endMin, err := validateInterval(in.StartTime, in.EndTime)
	if err != nil {
		return nil, err
	}
	if !ValidStatus(in.Status) {
		return nil, errs.Validation("unknown slot status %q", in.Status)
	}
	if in.Date.IsZero() {
		return nil, errs.Validation("date is required")
	}
	if _, err := s.findDoctor(ctx, in.DoctorID); err != nil {
		return nil, err
	}

	created := &TimeSlot{
		ID:        uuid.New(),
		DoctorID:  in.DoctorID,
		Date:      timeutil.TruncateToDay(in.Date),
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Status:    in.Status,
	}

	// The overlap check re-runs inside the same transaction as the insert so
	// a concurrent writer cannot slip between check and write; the unique
	// index on (doctor_id, date, start_time) backstops identical starts.
	err = s.runner.InTx(ctx, func(q db.Querier) error {
		store := s.store.With(q)
		existing, err := store.ListByDoctorDay(ctx, in.DoctorID, created.Date)
		if err != nil {
			return errs.Internal(err, "list day slots")
		}
		if hit := findCollision(existing, startMin, endMin, uuid.Nil); hit != nil {
			s.metrics.ObserveSlotConflict()
			return overlapConflict(hit)
		}
		if err := store.Insert(ctx, created); err != nil {
			if errors.Is(err, ErrDuplicateSlot) {
				s.metrics.ObserveSlotConflict()
				return errs.Conflict("a slot starting at %s on %s already exists", created.StartTime, created.Date.Format("2006-01-02"))
			}
			return errs.Internal(err, "insert slot")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, actorID, "slot.create", "time_slot", created.ID, map[string]any{
		"doctor_id": in.DoctorID,
		"date":      created.Date.Format("2006-01-02"),
		"start":     created.StartTime,
		"end":       created.EndTime,
	})
	return created, nil
}

// UpdateSlotInput patches a slot; nil fields are left unchanged.
type UpdateSlotInput struct {
	Date      *time.Time
	StartTime *string
	EndTime   *string
	Status    *Status
}

// UpdateSlot applies a patch. The time and date of a booked slot are
// immutable, and the booked status itself can only be entered or left through
// the appointment lifecycle.
func (s *Service) UpdateSlot(ctx context.Context, slotID uuid.UUID, patch UpdateSlotInput, actorID uuid.UUID) (*TimeSlot, error) {
	var updated *TimeSlot

	err := s.runner.InTx(ctx, func(q db.Querier) error {
		store := s.store.With(q)
		current, err := store.GetByID(ctx, slotID)
		if err != nil {
			if errors.Is(err, ErrSlotNotFound) {
				return errs.NotFound("slot %s not found", slotID)
			}
			return errs.Internal(err, "load slot")
		}

		next := *current
		timingChanged := false
		if patch.Date != nil && !timeutil.SameDay(*patch.Date, current.Date) {
			next.Date = timeutil.TruncateToDay(*patch.Date)
			timingChanged = true
		}
		if patch.StartTime != nil && *patch.StartTime != current.StartTime {
			next.StartTime = *patch.StartTime
			timingChanged = true
		}
		if patch.EndTime != nil && *patch.EndTime != current.EndTime {
			next.EndTime = *patch.EndTime
			timingChanged = true
		}

		if timingChanged && current.Status == StatusBooked {
			s.metrics.ObserveSlotConflict()
			return errs.Conflict("slot %s is booked; its date and time cannot change", slotID)
		}

		if patch.Status != nil && *patch.Status != current.Status {
			if !ValidStatus(*patch.Status) {
				return errs.Validation("unknown slot status %q", *patch.Status)
			}
			if *patch.Status == StatusBooked || current.Status == StatusBooked {
				return errs.Conflict("booked status is managed by the appointment lifecycle")
			}
			next.Status = *patch.Status
		}

		if timingChanged {
			startMin, endMin, err := validateInterval(next.StartTime, next.EndTime)
			if err != nil {
				return err
			}
			existing, err := store.ListByDoctorDay(ctx, current.DoctorID, next.Date)
			if err != nil {
				return errs.Internal(err, "list day slots")
			}
			if hit := findCollision(existing, startMin, endMin, current.ID); hit != nil {
				s.metrics.ObserveSlotConflict()
				return overlapConflict(hit)
			}
		}

		if err := store.Update(ctx, &next); err != nil {
			if errors.Is(err, ErrDuplicateSlot) {
				s.metrics.ObserveSlotConflict()
				return errs.Conflict("a slot starting at %s on %s already exists", next.StartTime, next.Date.Format("2006-01-02"))
			}
			return errs.Internal(err, "update slot")
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, actorID, "slot.update", "time_slot", slotID, map[string]any{
		"date":   updated.Date.Format("2006-01-02"),
		"start":  updated.StartTime,
		"end":    updated.EndTime,
		"status": updated.Status,
	})
	return updated, nil
}

// DeleteSlot removes a slot unless it is booked.
func (s *Service) DeleteSlot(ctx context.Context, slotID uuid.UUID, actorID uuid.UUID) error {
	err := s.runner.InTx(ctx, func(q db.Querier) error {
		store := s.store.With(q)
		current, err := store.GetByID(ctx, slotID)
		if err != nil {
			if errors.Is(err, ErrSlotNotFound) {
				return errs.NotFound("slot %s not found", slotID)
			}
			return errs.Internal(err, "load slot")
		}
		if current.Status == StatusBooked {
			s.metrics.ObserveSlotConflict()
			return errs.Conflict("slot %s is booked; cancel the appointment first", slotID)
		}
		if err := store.Delete(ctx, slotID); err != nil {
			return errs.Internal(err, "delete slot")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.auditor.Record(ctx, actorID, "slot.delete", "time_slot", slotID, nil)
	return nil
}

// GenerateSlots regenerates the doctor's schedule for each day of [from, to]:
// non-booked slots of the day are cleared, then fresh slots are cut from the
// doctor's windows, skipping intervals that overlap booked slots. The whole
// run commits or rolls back as one unit.
func (s *Service) GenerateSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time, actorID uuid.UUID) ([]TimeSlot, error) {
	doctor, err := s.findDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if from.IsZero() || to.IsZero() {
		return nil, errs.Validation("start and end dates are required")
	}
	if timeutil.TruncateToDay(to).Before(timeutil.TruncateToDay(from)) {
		return nil, errs.Validation("end date %s is before start date %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	windows := s.defaultWindows
	if doctor.SlotWindows != nil && *doctor.SlotWindows != "" {
		windows, err = ParseWindows(*doctor.SlotWindows)
		if err != nil {
			return nil, errs.Validation("doctor %s has an invalid window spec: %v", doctorID, err)
		}
	}

	var generated []TimeSlot
	err = s.runner.InTx(ctx, func(q db.Querier) error {
		store := s.store.With(q)
		for _, day := range DaysBetween(from, to) {
			if _, err := store.DeleteUnbookedForDay(ctx, doctorID, day); err != nil {
				return errs.Internal(err, "clear day %s", day.Format("2006-01-02"))
			}
			// Only booked slots remain after the clear; generation is
			// permissive on purpose and blocks solely on those.
			remaining, err := store.ListByDoctorDay(ctx, doctorID, day)
			if err != nil {
				return errs.Internal(err, "list day %s", day.Format("2006-01-02"))
			}
			for _, fresh := range BuildDaySlots(doctorID, day, windows, s.durationMin, remaining) {
				fresh := fresh
				if err := store.Insert(ctx, &fresh); err != nil {
					return errs.Internal(err, "insert generated slot %s %s", day.Format("2006-01-02"), fresh.StartTime)
				}
				generated = append(generated, fresh)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, actorID, "slot.generate", "doctor", doctorID, map[string]any{
		"from":  timeutil.TruncateToDay(from).Format("2006-01-02"),
		"to":    timeutil.TruncateToDay(to).Format("2006-01-02"),
		"count": len(generated),
	})
	s.logger.Info("generated slots", "doctor_id", doctorID, "count", len(generated))
	return generated, nil
}

func (s *Service) findDoctor(ctx context.Context, doctorID uuid.UUID) (*directory.Doctor, error) {
	if doctorID == uuid.Nil {
		return nil, errs.Validation("doctor id is required")
	}
	doctor, err := s.dir.FindDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, directory.ErrDoctorNotFound) {
			return nil, errs.NotFound("doctor %s not found", doctorID)
		}
		return nil, errs.Internal(err, "load doctor")
	}
	return doctor, nil
}

func (s *Service) resolveRange(from, to *time.Time) (time.Time, time.Time) {
	start := s.now()
	if from != nil {
		start = *from
	}
	end := start.Add(defaultListRange)
	if to != nil {
		end = *to
	}
	return start, end
}

func validateInterval(startTime, endTime string) (int, int, error) {
	if startTime == "" || endTime == "" {
		return 0, 0, errs.Validation("start and end times are required")
	}
	startMin, err := timeutil.ToMinutes(startTime)
	if err != nil {
		return 0, 0, errs.Validation("invalid start time: %v", err)
	}
	endMin, err := timeutil.ToMinutes(endTime)
	if err != nil {
		return 0, 0, errs.Validation("invalid end time: %v", err)
	}
	if endMin <= startMin {
		return 0, 0, errs.Validation("end time %s must be after start time %s", endTime, startTime)
	}
	return startMin, endMin, nil
}

// findCollision returns the first slot intersecting [startMin, endMin),
// ignoring excludeID.
func findCollision(slots []TimeSlot, startMin, endMin int, excludeID uuid.UUID) *TimeSlot {
	for i := range slots {
		if slots[i].ID == excludeID {
			continue
		}
		if slots[i].OverlapsInterval(startMin, endMin) {
			return &slots[i]
		}
	}
	return nil
}

func overlapConflict(hit *TimeSlot) error {
	return errs.Conflict("requested interval overlaps existing slot %s-%s on %s",
		hit.StartTime, hit.EndTime, hit.Date.Format("2006-01-02"))
}
