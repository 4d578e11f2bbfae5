package domain

import "time"

// EventAnchor is one cataloged earthquake origin used to anchor
// per-station acquisition windows.
type EventAnchor struct {
	EventID   string
	Time      time.Time
	Latitude  float64
	Longitude float64
	DepthKm   float64
	Magnitude float64
}

// ArrivalPrediction is a cached phase arrival estimate for one
// event/station pair.
type ArrivalPrediction struct {
	EventID     string
	Network     string
	Station     string
	DistanceDeg float64
	DistanceKm  float64
	PArrival    time.Time
	SArrival    time.Time
	Model       string
}
