package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

// NotificationStore keeps an audit trail of every delivery attempt.
type NotificationStore struct {
	pool *pgxpool.Pool
}

// NewNotificationStore creates a NotificationStore.
func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

// LogDelivery records the outcome for n. deliveryErr is nil on success.
func (s *NotificationStore) LogDelivery(ctx context.Context, n domain.Notification, deliveryErr error) error {
	const query = `
		INSERT INTO notification_log (id, kind, symbol, title, body, delivered, error, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	var errText *string
	if deliveryErr != nil {
		s := deliveryErr.Error()
		errText = &s
	}
	if _, err := s.pool.Exec(ctx, query,
		n.ID, string(n.Kind), n.Symbol, n.Title, n.Text, deliveryErr == nil, errText, n.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: log notification %s: %w", n.ID, err)
	}
	return nil
}
