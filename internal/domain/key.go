// Package domain contains the core types shared across the acquisition
// engine: stream identities, time spans, sample chunks and inventory
// entries. Types here carry no behavior beyond pure value logic.
package domain

import (
	"fmt"
	"strings"
)

// StreamKey identifies a single archived stream: one
// network/station/location/channel combination. An empty Location is a
// valid location code ("--" on the wire), not an unset field.
type StreamKey struct {
	Network  string
	Station  string
	Location string
	Channel  string
}

// String renders the key in NET.STA.LOC.CHA form, e.g. "IU.ANMO..BHZ".
func (k StreamKey) String() string {
	return k.Network + "." + k.Station + "." + k.Location + "." + k.Channel
}

// StationCode returns the NET.STA prefix of the key.
func (k StreamKey) StationCode() string {
	return k.Network + "." + k.Station
}

// BandInstrument returns the first two letters of the channel code (band
// and instrument, e.g. "BH" for "BHZ"). Channels shorter than two
// characters return the channel unchanged.
func (k StreamKey) BandInstrument() string {
	if len(k.Channel) < 2 {
		return k.Channel
	}
	return k.Channel[:2]
}

// Validate checks that the mandatory fields are present.
func (k StreamKey) Validate() error {
	if k.Network == "" || k.Station == "" || k.Channel == "" {
		return fmt.Errorf("stream key %q: network, station and channel are required", k.String())
	}
	return nil
}

// ParseStreamKey parses a NET.STA.LOC.CHA string. The location part may
// be empty.
func ParseStreamKey(s string) (StreamKey, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return StreamKey{}, fmt.Errorf("parse stream key %q: want NET.STA.LOC.CHA", s)
	}
	k := StreamKey{Network: parts[0], Station: parts[1], Location: parts[2], Channel: parts[3]}
	if err := k.Validate(); err != nil {
		return StreamKey{}, err
	}
	return k, nil
}
