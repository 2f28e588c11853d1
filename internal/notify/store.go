package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/caresync/scheduling/internal/db"
)

// InApp is a notification shown in the application, persisted so it survives
// until the user reads it.
type InApp struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Title         string
	Message       string
	RelatedEntity string // "appointment", "time_slot"
	RelatedID     uuid.UUID
	Read          bool
	CreatedAt     time.Time
}

// Store persists in-app notifications. With rebinds the store to a transaction
// so notification rows commit or roll back together with the operation that
// produced them.
type Store interface {
	With(q db.Querier) Store
	Insert(ctx context.Context, n *InApp) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]InApp, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
}

type PgStore struct {
	q db.Querier
}

func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{q: q}
}

func (s *PgStore) With(q db.Querier) Store {
	return &PgStore{q: q}
}

func (s *PgStore) Insert(ctx context.Context, n *InApp) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO notifications (id, user_id, title, message, related_entity, related_id, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, now())
	`, n.ID, n.UserID, n.Title, n.Message, n.RelatedEntity, n.RelatedID)
	return err
}

func (s *PgStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]InApp, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.Query(ctx, `
		SELECT id, user_id, title, message, related_entity, related_id, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []InApp
	for rows.Next() {
		var n InApp
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.RelatedEntity, &n.RelatedID, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (s *PgStore) MarkRead(ctx context.Context, id uuid.UUID) error {
	_, err := s.q.Exec(ctx, `
		UPDATE notifications SET read = true WHERE id = $1
	`, id)
	return err
}
