package postgres

import (
	"context"
	"fmt"
	"time"

	"seisvault/internal/domain"
	"seisvault/internal/storage"
)

// ArrivalStore implements storage.ArrivalStore using PostgreSQL.
type ArrivalStore struct {
	pool *Pool
}

// NewArrivalStore creates a new ArrivalStore.
func NewArrivalStore(pool *Pool) *ArrivalStore {
	return &ArrivalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ArrivalStore = (*ArrivalStore)(nil)

// Put stores a prediction, replacing any existing entry for the same key.
func (s *ArrivalStore) Put(ctx context.Context, a *domain.ArrivalPrediction) error {
	if a == nil || a.EventID == "" || a.Network == "" || a.Station == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO arrival_prediction (
			event_id, network, station, distance_deg, distance_km, p_arrival, s_arrival, model
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id, network, station) DO UPDATE SET
			distance_deg = EXCLUDED.distance_deg,
			distance_km = EXCLUDED.distance_km,
			p_arrival = EXCLUDED.p_arrival,
			s_arrival = EXCLUDED.s_arrival,
			model = EXCLUDED.model
	`

	var sArrival *time.Time
	if !a.SArrival.IsZero() {
		sArrival = &a.SArrival
	}

	_, err := s.pool.Exec(ctx, query,
		a.EventID,
		a.Network,
		a.Station,
		a.DistanceDeg,
		a.DistanceKm,
		a.PArrival,
		sArrival,
		a.Model,
	)
	if err != nil {
		return fmt.Errorf("upsert arrival prediction: %w", err)
	}
	return nil
}

// Get retrieves a cached prediction. Returns ErrNotFound if absent.
func (s *ArrivalStore) Get(ctx context.Context, eventID, network, station string) (*domain.ArrivalPrediction, error) {
	query := `
		SELECT event_id, network, station, distance_deg, distance_km, p_arrival, s_arrival, model
		FROM arrival_prediction
		WHERE event_id = $1 AND network = $2 AND station = $3
	`

	var a domain.ArrivalPrediction
	var sArrival *time.Time

	err := s.pool.QueryRow(ctx, query, eventID, network, station).Scan(
		&a.EventID,
		&a.Network,
		&a.Station,
		&a.DistanceDeg,
		&a.DistanceKm,
		&a.PArrival,
		&sArrival,
		&a.Model,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get arrival prediction: %w", err)
	}

	a.PArrival = a.PArrival.UTC()
	if sArrival != nil {
		a.SArrival = sArrival.UTC()
	}
	return &a, nil
}
