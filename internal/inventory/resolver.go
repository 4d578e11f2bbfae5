// Package inventory selects which concrete streams to acquire for each
// station, given the channel epochs a station service reports. Stations
// usually carry several instrument types and location codes at once;
// the resolver picks one preferred (band+instrument, location) pair per
// station and keeps every orientation of that pair.
package inventory

import (
	"sort"

	"seisvault/internal/domain"
)

// Preferred band+instrument codes, best first.
var DefaultChannelPref = []string{"CH", "HH", "BH", "EH", "HN", "EN", "SH", "LH"}

// Preferred location codes, best first. The empty code is common and
// ranks highest.
var DefaultLocationPref = []string{"", "10", "00", "20"}

// Resolver picks streams by channel and location preference.
type Resolver struct {
	channelPref  []string
	locationPref []string
}

// NewResolver creates a Resolver. Nil preference lists fall back to the
// defaults.
func NewResolver(channelPref, locationPref []string) *Resolver {
	if channelPref == nil {
		channelPref = DefaultChannelPref
	}
	if locationPref == nil {
		locationPref = DefaultLocationPref
	}
	return &Resolver{channelPref: channelPref, locationPref: locationPref}
}

// Resolution maps station codes (NET.STA) to their selected stream
// variants. Stations with no usable channel end up in Unresolved.
type Resolution struct {
	Selected   map[string][]domain.ChannelCandidate
	Unresolved []string
}

type groupKey struct {
	band     string
	location string
}

// Resolve partitions entries by station, groups each station's channels
// by band+instrument and location, and selects the best group per the
// configured preferences. Channels whose band+instrument code is not in
// the preference list are ignored; location codes not in the list rank
// after every listed one. Ties break toward the higher sample rate.
func (r *Resolver) Resolve(entries []domain.ChannelEntry) Resolution {
	byStation := make(map[string][]domain.ChannelEntry)
	for _, e := range entries {
		if len(e.Channel) < 3 {
			continue
		}
		code := e.Network + "." + e.Station
		byStation[code] = append(byStation[code], e)
	}

	res := Resolution{Selected: make(map[string][]domain.ChannelCandidate)}
	for code, chans := range byStation {
		cands := r.resolveStation(chans)
		if len(cands) == 0 {
			res.Unresolved = append(res.Unresolved, code)
			continue
		}
		res.Selected[code] = cands
	}
	sort.Strings(res.Unresolved)
	return res
}

func (r *Resolver) resolveStation(chans []domain.ChannelEntry) []domain.ChannelCandidate {
	groups := make(map[groupKey][]domain.ChannelEntry)
	for _, e := range chans {
		band := e.Channel[:2]
		if r.channelRank(band) < 0 {
			continue
		}
		gk := groupKey{band: band, location: e.Location}
		groups[gk] = append(groups[gk], e)
	}
	if len(groups) == 0 {
		return nil
	}

	var best groupKey
	bestRank := -1
	bestRate := -1.0
	for gk, members := range groups {
		rank := r.rank(gk.band, gk.location)
		rate := maxRate(members)
		if bestRank < 0 || rank < bestRank || (rank == bestRank && rate > bestRate) {
			best, bestRank, bestRate = gk, rank, rate
		}
	}

	members := groups[best]
	sort.Slice(members, func(i, j int) bool {
		return members[i].Channel < members[j].Channel
	})

	seen := make(map[string]bool)
	var out []domain.ChannelCandidate
	for _, e := range members {
		if seen[e.Channel] {
			continue
		}
		seen[e.Channel] = true
		out = append(out, domain.ChannelCandidate{
			Location:   e.Location,
			Channel:    e.Channel,
			SampleRate: e.SampleRate,
			Rank:       bestRank,
		})
	}
	return out
}

// rank orders (band, location) pairs: channel preference is primary,
// location preference secondary. Lower is better.
func (r *Resolver) rank(band, location string) int {
	ci := r.channelRank(band)
	li := r.locationRank(location)
	return ci*(len(r.locationPref)+1) + li
}

func (r *Resolver) channelRank(band string) int {
	for i, p := range r.channelPref {
		if p == band {
			return i
		}
	}
	return -1
}

func (r *Resolver) locationRank(location string) int {
	for i, p := range r.locationPref {
		if p == location {
			return i
		}
	}
	return len(r.locationPref)
}

func maxRate(entries []domain.ChannelEntry) float64 {
	rate := -1.0
	for _, e := range entries {
		if e.SampleRate > rate {
			rate = e.SampleRate
		}
	}
	return rate
}
