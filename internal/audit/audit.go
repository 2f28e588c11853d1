// Package audit provides the append-only action log behind every mutating
// scheduling operation.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/caresync/scheduling/internal/db"
	"github.com/caresync/scheduling/pkg/logging"
)

// Recorder appends audit entries. Record is fire-and-forget: it must never
// influence the outcome of the operation being audited, so failures are logged
// and swallowed.
type Recorder interface {
	Record(ctx context.Context, actorID uuid.UUID, action, resource string, resourceID uuid.UUID, details map[string]any)
}

// Entry mirrors one row of the audit_log table.
type Entry struct {
	ID         uuid.UUID
	ActorID    uuid.UUID
	Action     string
	Resource   string
	ResourceID uuid.UUID
	Details    json.RawMessage
	CreatedAt  time.Time
}

type PgRecorder struct {
	q      db.Querier
	logger *logging.Logger
}

func NewPgRecorder(q db.Querier, logger *logging.Logger) *PgRecorder {
	if logger == nil {
		logger = logging.Default()
	}
	return &PgRecorder{q: q, logger: logger}
}

func (r *PgRecorder) Record(ctx context.Context, actorID uuid.UUID, action, resource string, resourceID uuid.UUID, details map[string]any) {
	payload, err := json.Marshal(details)
	if err != nil {
		r.logger.Error("audit: marshal details", "error", err, "action", action)
		payload = nil
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO audit_log (id, actor_id, action, resource, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, uuid.New(), actorID, action, resource, resourceID, payload)
	if err != nil {
		r.logger.Error("audit: insert entry", "error", err, "action", action, "resource", resource, "resource_id", resourceID)
	}
}

// NopRecorder discards entries. Used in tests and tools.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, uuid.UUID, string, string, uuid.UUID, map[string]any) {}
