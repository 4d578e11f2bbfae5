package domain

import "time"

// ChannelEntry is one channel epoch from a station service inventory.
type ChannelEntry struct {
	Network    string
	Station    string
	Location   string
	Channel    string
	Latitude   float64
	Longitude  float64
	Elevation  float64
	SampleRate float64
	EpochStart time.Time
	EpochEnd   time.Time // zero when the epoch is still open
}

// Key returns the stream key of the entry.
func (e ChannelEntry) Key() StreamKey {
	return StreamKey{Network: e.Network, Station: e.Station, Location: e.Location, Channel: e.Channel}
}

// Epoch returns the operating interval of the entry, with an open end
// clamped to now.
func (e ChannelEntry) Epoch(now time.Time) TimeSpan {
	end := e.EpochEnd
	if end.IsZero() {
		end = now
	}
	return TimeSpan{Start: e.EpochStart, End: end}
}

// ChannelCandidate is one selected stream variant for a station, ranked
// by the configured channel and location preferences. Lower rank wins.
type ChannelCandidate struct {
	Location   string
	Channel    string
	SampleRate float64
	Rank       int
}
