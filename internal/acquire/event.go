package acquire

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"seisvault/internal/domain"
	"seisvault/internal/storage"
)

// ArrivalPredictor estimates when seismic phases from an event reach a
// station.
type ArrivalPredictor interface {
	Predict(event domain.EventAnchor, network, station string, lat, lon float64) domain.ArrivalPrediction
}

// Uniform phase velocities, in km/s. Crude but sufficient for sizing
// acquisition windows around an event.
const (
	pVelocityKmS = 8.0
	sVelocityKmS = 4.5

	earthRadiusKm = 6371.0
)

// UniformVelocityPredictor computes arrivals from great-circle distance
// and constant phase velocities.
type UniformVelocityPredictor struct{}

func (UniformVelocityPredictor) Predict(event domain.EventAnchor, network, station string, lat, lon float64) domain.ArrivalPrediction {
	distKm := haversineKm(event.Latitude, event.Longitude, lat, lon)
	// Include the depth leg for deep events
	travelKm := math.Sqrt(distKm*distKm + event.DepthKm*event.DepthKm)

	return domain.ArrivalPrediction{
		EventID:     event.EventID,
		Network:     network,
		Station:     station,
		DistanceDeg: distKm / (earthRadiusKm * math.Pi / 180),
		DistanceKm:  distKm,
		PArrival:    event.Time.Add(time.Duration(travelKm / pVelocityKmS * float64(time.Second))),
		SArrival:    event.Time.Add(time.Duration(travelKm / sVelocityKmS * float64(time.Second))),
		Model:       "uniform",
	}
}

// haversineKm returns the great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const deg = math.Pi / 180

	dLat := (lat2 - lat1) * deg
	dLon := (lon2 - lon1) * deg

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*deg)*math.Cos(lat2*deg)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// cachedPredictor memoizes predictions in an ArrivalStore so repeated
// runs over the same catalog skip the recomputation and keep a record
// of what was predicted.
type cachedPredictor struct {
	inner  ArrivalPredictor
	store  storage.ArrivalStore
	logger *log.Logger
}

func newCachedPredictor(inner ArrivalPredictor, store storage.ArrivalStore, logger *log.Logger) *cachedPredictor {
	return &cachedPredictor{inner: inner, store: store, logger: logger}
}

func (c *cachedPredictor) predict(ctx context.Context, event domain.EventAnchor, network, station string, lat, lon float64) (domain.ArrivalPrediction, error) {
	if c.store != nil {
		cached, err := c.store.Get(ctx, event.EventID, network, station)
		if err == nil {
			return *cached, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return domain.ArrivalPrediction{}, fmt.Errorf("arrival cache read: %w", err)
		}
	}

	pred := c.inner.Predict(event, network, station, lat, lon)

	if c.store != nil {
		if err := c.store.Put(ctx, &pred); err != nil {
			c.logger.Printf("WARNING: arrival cache write for %s %s.%s failed: %v",
				event.EventID, network, station, err)
		}
	}
	return pred, nil
}
