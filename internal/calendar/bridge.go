package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/caresync/scheduling/internal/audit"
	"github.com/caresync/scheduling/internal/db"
	"github.com/caresync/scheduling/internal/directory"
	"github.com/caresync/scheduling/internal/errs"
	"github.com/caresync/scheduling/internal/observability/metrics"
	"github.com/caresync/scheduling/internal/slot"
	"github.com/caresync/scheduling/internal/timeutil"
	"github.com/caresync/scheduling/pkg/logging"
)

// availabilityMarker is how the bridge recognizes its own events among
// everything else on the doctor's calendar. Export writes summaries of the
// form "Available - Dr. <name>"; sync imports only remote events whose summary
// carries the marker.
const availabilityMarker = "available"

// Bridge drives import/export/sync between the local slot store and an
// external calendar provider.
type Bridge struct {
	provider Provider
	runner   db.TxRunner
	slots    slot.Store
	dir      directory.Directory
	auditor  audit.Recorder
	logger   *logging.Logger
	metrics  *metrics.SchedulingMetrics
}

func NewBridge(provider Provider, runner db.TxRunner, slots slot.Store, dir directory.Directory, auditor audit.Recorder, logger *logging.Logger, m *metrics.SchedulingMetrics) *Bridge {
	if logger == nil {
		logger = logging.Default()
	}
	if auditor == nil {
		auditor = audit.NopRecorder{}
	}
	return &Bridge{
		provider: provider,
		runner:   runner,
		slots:    slots,
		dir:      dir,
		auditor:  auditor,
		logger:   logger,
		metrics:  m,
	}
}

// Import pulls remote events in [from, to] and creates a local slot for each
// event that has both timestamps, stays within one calendar day, and does not
// overlap any existing slot of that doctor/day (same conservative policy as
// manual slot creation). Per-event problems are recorded and skipped; they do
// not abort the batch.
func (b *Bridge) Import(ctx context.Context, doctorID uuid.UUID, credential string, from, to time.Time, actorID uuid.UUID) (*ImportResult, error) {
	doctor, cred, err := b.resolveDoctor(ctx, doctorID, credential)
	if err != nil {
		return nil, err
	}

	events, err := b.provider.ListEvents(ctx, cred, from, to)
	if err != nil {
		return nil, errs.External(err, "list calendar events for doctor %s", doctor.ID)
	}

	result := &ImportResult{}
	for _, ev := range events {
		day, startTime, endTime, reason := eventInterval(ev)
		if reason != "" {
			result.Skipped++
			result.Details = append(result.Details, Detail{EventID: ev.ID, Action: "skipped", Reason: reason})
			b.metrics.ObserveCalendarOp("import", "skipped")
			continue
		}

		detail := b.importOne(ctx, doctorID, ev.ID, day, startTime, endTime)
		result.Details = append(result.Details, detail)
		switch detail.Action {
		case "imported":
			result.Imported++
			b.metrics.ObserveCalendarOp("import", "imported")
		case "skipped":
			result.Skipped++
			b.metrics.ObserveCalendarOp("import", "skipped")
		default:
			result.Errors++
			b.metrics.ObserveCalendarOp("import", "error")
		}
	}

	b.auditor.Record(ctx, actorID, "calendar.import", "doctor", doctorID, map[string]any{
		"imported": result.Imported,
		"skipped":  result.Skipped,
		"errors":   result.Errors,
	})
	return result, nil
}

// importOne creates one local slot from a remote event inside its own
// transaction, so a failure poisons only this event.
func (b *Bridge) importOne(ctx context.Context, doctorID uuid.UUID, eventID string, day time.Time, startTime, endTime string) Detail {
	startMin, _ := timeutil.ToMinutes(startTime)
	endMin, _ := timeutil.ToMinutes(endTime)

	created := &slot.TimeSlot{
		ID:              uuid.New(),
		DoctorID:        doctorID,
		Date:            day,
		StartTime:       startTime,
		EndTime:         endTime,
		Status:          slot.StatusAvailable,
		ExternalEventID: &eventID,
	}

	err := b.runner.InTx(ctx, func(q db.Querier) error {
		store := b.slots.With(q)
		existing, err := store.ListByDoctorDay(ctx, doctorID, day)
		if err != nil {
			return err
		}
		for i := range existing {
			if existing[i].ExternalEventID != nil && *existing[i].ExternalEventID == eventID {
				return errAlreadyLinked
			}
		}
		for i := range existing {
			if existing[i].OverlapsInterval(startMin, endMin) {
				return fmt.Errorf("%w %s-%s", errOverlap, existing[i].StartTime, existing[i].EndTime)
			}
		}
		return store.Insert(ctx, created)
	})
	if err != nil {
		if errors.Is(err, errAlreadyLinked) {
			return Detail{EventID: eventID, Action: "skipped", Reason: "already imported"}
		}
		if errors.Is(err, errOverlap) || errors.Is(err, slot.ErrDuplicateSlot) {
			return Detail{EventID: eventID, Action: "skipped", Reason: err.Error()}
		}
		return Detail{EventID: eventID, Action: "error", Reason: err.Error()}
	}
	return Detail{EventID: eventID, SlotID: created.ID.String(), Action: "imported"}
}

var (
	errAlreadyLinked = errors.New("event already linked to a slot")
	errOverlap       = errors.New("overlaps existing slot")
)

// Export pushes every local slot in [from, to] that has no remote tag to the
// calendar as a transparent availability event, tagging the slot with the
// returned event id. A failure on one slot is logged into its detail and does
// not abort the batch.
func (b *Bridge) Export(ctx context.Context, doctorID uuid.UUID, credential string, from, to time.Time, actorID uuid.UUID) (*ExportResult, error) {
	doctor, cred, err := b.resolveDoctor(ctx, doctorID, credential)
	if err != nil {
		return nil, err
	}

	slots, err := b.slots.ListByDoctor(ctx, doctorID, from, to)
	if err != nil {
		return nil, errs.Internal(err, "list slots for export")
	}

	result := &ExportResult{}
	for i := range slots {
		sl := &slots[i]
		if sl.ExternalEventID != nil && *sl.ExternalEventID != "" {
			result.Skipped++
			result.Details = append(result.Details, Detail{SlotID: sl.ID.String(), Action: "skipped", Reason: "already exported"})
			b.metrics.ObserveCalendarOp("export", "skipped")
			continue
		}

		remoteID, err := b.provider.InsertEvent(ctx, cred, availabilityEvent(doctor, sl))
		if err != nil {
			result.Errors++
			result.Details = append(result.Details, Detail{SlotID: sl.ID.String(), Action: "error", Reason: err.Error()})
			b.metrics.ObserveCalendarOp("export", "error")
			continue
		}
		if err := b.slots.SetExternalEventID(ctx, sl.ID, remoteID); err != nil {
			result.Errors++
			result.Details = append(result.Details, Detail{SlotID: sl.ID.String(), EventID: remoteID, Action: "error", Reason: fmt.Sprintf("tag slot: %v", err)})
			b.metrics.ObserveCalendarOp("export", "error")
			continue
		}
		result.Exported++
		result.Details = append(result.Details, Detail{SlotID: sl.ID.String(), EventID: remoteID, Action: "exported"})
		b.metrics.ObserveCalendarOp("export", "exported")
	}

	b.auditor.Record(ctx, actorID, "calendar.export", "doctor", doctorID, map[string]any{
		"exported": result.Exported,
		"skipped":  result.Skipped,
		"errors":   result.Errors,
	})
	return result, nil
}

// Sync reconciles both directions. A local slot whose tag matches a remote
// event is considered reconciled by presence alone: no field-level diffing is
// performed, so a remote event whose time changed or that was deleted is never
// detected; Updated and Deleted therefore stay zero. Untagged local slots are pushed
// out; leftover remote events carrying the availability marker are pulled in.
// All local writes commit in one transaction.
func (b *Bridge) Sync(ctx context.Context, doctorID uuid.UUID, credential string, from, to time.Time, actorID uuid.UUID) (*SyncResult, error) {
	doctor, cred, err := b.resolveDoctor(ctx, doctorID, credential)
	if err != nil {
		return nil, err
	}

	remote, err := b.provider.ListEvents(ctx, cred, from, to)
	if err != nil {
		return nil, errs.External(err, "list calendar events for doctor %s", doctor.ID)
	}
	remoteByID := make(map[string]Event, len(remote))
	for _, ev := range remote {
		remoteByID[ev.ID] = ev
	}

	local, err := b.slots.ListByDoctor(ctx, doctorID, from, to)
	if err != nil {
		return nil, errs.Internal(err, "list slots for sync")
	}

	result := &SyncResult{}

	// Outbound pass: push untagged slots, mark mapped pairs reconciled.
	type pendingTag struct {
		slotID  uuid.UUID
		eventID string
	}
	var tags []pendingTag
	for i := range local {
		sl := &local[i]
		if sl.ExternalEventID != nil && *sl.ExternalEventID != "" {
			if _, ok := remoteByID[*sl.ExternalEventID]; ok {
				delete(remoteByID, *sl.ExternalEventID)
				result.Details = append(result.Details, Detail{SlotID: sl.ID.String(), EventID: *sl.ExternalEventID, Action: "skipped", Reason: "already linked"})
			}
			continue
		}
		remoteID, err := b.provider.InsertEvent(ctx, cred, availabilityEvent(doctor, sl))
		if err != nil {
			result.Errors++
			result.Details = append(result.Details, Detail{SlotID: sl.ID.String(), Action: "error", Reason: err.Error()})
			b.metrics.ObserveCalendarOp("sync", "error")
			continue
		}
		tags = append(tags, pendingTag{slotID: sl.ID, eventID: remoteID})
		result.Created++
		result.Details = append(result.Details, Detail{SlotID: sl.ID.String(), EventID: remoteID, Action: "created", Reason: "pushed to calendar"})
		b.metrics.ObserveCalendarOp("sync", "created")
	}

	// Inbound pass: adopt leftover remote availability events.
	var newSlots []*slot.TimeSlot
	for _, ev := range remoteByID {
		if !strings.Contains(strings.ToLower(ev.Summary), availabilityMarker) {
			continue
		}
		day, startTime, endTime, reason := eventInterval(ev)
		if reason != "" {
			result.Details = append(result.Details, Detail{EventID: ev.ID, Action: "skipped", Reason: reason})
			continue
		}
		startMin, _ := timeutil.ToMinutes(startTime)
		endMin, _ := timeutil.ToMinutes(endTime)
		if syncCollides(local, newSlots, day, startMin, endMin) {
			result.Details = append(result.Details, Detail{EventID: ev.ID, Action: "skipped", Reason: "overlaps existing slot"})
			continue
		}
		eventID := ev.ID
		created := &slot.TimeSlot{
			ID:              uuid.New(),
			DoctorID:        doctorID,
			Date:            day,
			StartTime:       startTime,
			EndTime:         endTime,
			Status:          slot.StatusAvailable,
			ExternalEventID: &eventID,
		}
		newSlots = append(newSlots, created)
		result.Created++
		result.Details = append(result.Details, Detail{EventID: ev.ID, SlotID: created.ID.String(), Action: "created", Reason: "pulled from calendar"})
		b.metrics.ObserveCalendarOp("sync", "created")
	}

	// All local writes land in one transaction: a failure persists nothing.
	err = b.runner.InTx(ctx, func(q db.Querier) error {
		store := b.slots.With(q)
		for _, t := range tags {
			if err := store.SetExternalEventID(ctx, t.slotID, t.eventID); err != nil {
				return fmt.Errorf("tag slot %s: %w", t.slotID, err)
			}
		}
		for _, sl := range newSlots {
			if err := store.Insert(ctx, sl); err != nil {
				return fmt.Errorf("insert synced slot %s %s: %w", sl.Date.Format("2006-01-02"), sl.StartTime, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.Internal(err, "persist sync results")
	}

	b.auditor.Record(ctx, actorID, "calendar.sync", "doctor", doctorID, map[string]any{
		"created": result.Created,
		"updated": result.Updated,
		"deleted": result.Deleted,
		"errors":  result.Errors,
	})
	b.logger.Info("calendar sync complete", "doctor_id", doctorID, "created", result.Created, "errors", result.Errors)
	return result, nil
}

func (b *Bridge) resolveDoctor(ctx context.Context, doctorID uuid.UUID, credential string) (*directory.Doctor, string, error) {
	if doctorID == uuid.Nil {
		return nil, "", errs.Validation("doctor id is required")
	}
	doctor, err := b.dir.FindDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, directory.ErrDoctorNotFound) {
			return nil, "", errs.NotFound("doctor %s not found", doctorID)
		}
		return nil, "", errs.Internal(err, "load doctor")
	}
	cred := credential
	if cred == "" && doctor.CalendarCredential != nil {
		cred = *doctor.CalendarCredential
	}
	if cred == "" {
		return nil, "", errs.Validation("doctor %s has no calendar credential", doctorID)
	}
	return doctor, cred, nil
}

// eventInterval derives the local-day interval from a remote event, returning
// a skip reason for events missing timestamps or spanning calendar days.
func eventInterval(ev Event) (day time.Time, startTime, endTime, reason string) {
	if ev.Start == nil || ev.End == nil {
		return time.Time{}, "", "", "missing start or end timestamp"
	}
	start := ev.Start.UTC()
	end := ev.End.UTC()
	if !timeutil.SameDay(start, end) {
		return time.Time{}, "", "", "event spans multiple calendar days"
	}
	if !end.After(start) {
		return time.Time{}, "", "", "end is not after start"
	}
	day = timeutil.TruncateToDay(start)
	startTime = timeutil.FromMinutes(start.Hour()*60 + start.Minute())
	endTime = timeutil.FromMinutes(end.Hour()*60 + end.Minute())
	return day, startTime, endTime, ""
}

func syncCollides(local []slot.TimeSlot, added []*slot.TimeSlot, day time.Time, startMin, endMin int) bool {
	for i := range local {
		if timeutil.SameDay(local[i].Date, day) && local[i].OverlapsInterval(startMin, endMin) {
			return true
		}
	}
	for _, sl := range added {
		if timeutil.SameDay(sl.Date, day) && sl.OverlapsInterval(startMin, endMin) {
			return true
		}
	}
	return false
}

func availabilityEvent(doctor *directory.Doctor, sl *slot.TimeSlot) EventSpec {
	startMin, _ := timeutil.ToMinutes(sl.StartTime)
	endMin, _ := timeutil.ToMinutes(sl.EndTime)
	return EventSpec{
		Summary:     fmt.Sprintf("Available - Dr. %s", doctor.Name),
		Description: fmt.Sprintf("CareSync availability slot (%s)", sl.Status),
		Start:       sl.Date.Add(time.Duration(startMin) * time.Minute),
		End:         sl.Date.Add(time.Duration(endMin) * time.Minute),
		Transparent: true,
		ColorID:     "8",
		NoReminders: true,
	}
}
