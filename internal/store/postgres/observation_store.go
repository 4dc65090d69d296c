package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

// ObservationStore implements domain.RecordStore using PostgreSQL.
type ObservationStore struct {
	pool *pgxpool.Pool
}

// NewObservationStore creates a new ObservationStore backed by the given
// connection pool.
func NewObservationStore(pool *pgxpool.Pool) *ObservationStore {
	return &ObservationStore{pool: pool}
}

const observationSelectCols = `symbol, price, volume, change_percent, observed_at`

func scanObservationRows(rows pgx.Rows) ([]domain.Observation, error) {
	var out []domain.Observation
	for rows.Next() {
		var o domain.Observation
		if err := rows.Scan(&o.Symbol, &o.Price, &o.Volume, &o.ChangePercent, &o.ObservedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Append inserts one observation.
func (s *ObservationStore) Append(ctx context.Context, obs domain.Observation) error {
	const query = `
		INSERT INTO observations (symbol, price, volume, change_percent, observed_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.pool.Exec(ctx, query,
		obs.Symbol, obs.Price, obs.Volume, obs.ChangePercent, obs.ObservedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert observation %s: %w", obs.Symbol, err)
	}
	return nil
}

// Latest returns the most recent observation for symbol.
func (s *ObservationStore) Latest(ctx context.Context, symbol string) (domain.Observation, error) {
	query := `SELECT ` + observationSelectCols + `
		FROM observations WHERE symbol = $1
		ORDER BY observed_at DESC LIMIT 1`

	var o domain.Observation
	err := s.pool.QueryRow(ctx, query, symbol).Scan(&o.Symbol, &o.Price, &o.Volume, &o.ChangePercent, &o.ObservedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Observation{}, fmt.Errorf("postgres: latest %s: %w", symbol, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Observation{}, fmt.Errorf("postgres: latest %s: %w", symbol, err)
	}
	return o, nil
}

// History returns up to limit observations for symbol at or after since,
// newest first.
func (s *ObservationStore) History(ctx context.Context, symbol string, since time.Time, limit int) ([]domain.Observation, error) {
	if limit <= 0 || limit > 5000 {
		limit = 500
	}
	query := `SELECT ` + observationSelectCols + `
		FROM observations WHERE symbol = $1 AND observed_at >= $2
		ORDER BY observed_at DESC LIMIT $3`

	rows, err := s.pool.Query(ctx, query, symbol, since, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: history %s: %w", symbol, err)
	}
	defer rows.Close()

	out, err := scanObservationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan history %s: %w", symbol, err)
	}
	return out, nil
}
