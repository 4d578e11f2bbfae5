package fdsn

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"seisvault/internal/domain"
)

// Accepted timestamp layouts in FDSN text responses. Services disagree
// on fractional seconds and trailing Z.
var textTimeLayouts = []string{
	"2006-01-02T15:04:05.999999Z",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
}

func parseTextTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range textTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// parseStationText decodes a channel-level station response in FDSN
// text format:
//
//	#Network|Station|Location|Channel|Latitude|Longitude|Elevation|Depth|Azimuth|Dip|SensorDescription|Scale|ScaleFreq|ScaleUnits|SampleRate|StartTime|EndTime
func parseStationText(body string) ([]domain.ChannelEntry, error) {
	var entries []domain.ChannelEntry

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "|")
		if len(fields) < 16 {
			return nil, &FetchError{Kind: KindMalformed, Message: fmt.Sprintf("short station row: %q", line)}
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		entry := domain.ChannelEntry{
			Network:  fields[0],
			Station:  fields[1],
			Location: fields[2],
			Channel:  fields[3],
		}

		var err error
		if entry.Latitude, err = strconv.ParseFloat(fields[4], 64); err != nil {
			return nil, &FetchError{Kind: KindMalformed, Message: fmt.Sprintf("bad latitude %q", fields[4]), Err: err}
		}
		if entry.Longitude, err = strconv.ParseFloat(fields[5], 64); err != nil {
			return nil, &FetchError{Kind: KindMalformed, Message: fmt.Sprintf("bad longitude %q", fields[5]), Err: err}
		}
		if fields[6] != "" {
			if entry.Elevation, err = strconv.ParseFloat(fields[6], 64); err != nil {
				return nil, &FetchError{Kind: KindMalformed, Message: fmt.Sprintf("bad elevation %q", fields[6]), Err: err}
			}
		}
		if entry.SampleRate, err = strconv.ParseFloat(fields[14], 64); err != nil {
			return nil, &FetchError{Kind: KindMalformed, Message: fmt.Sprintf("bad sample rate %q", fields[14]), Err: err}
		}
		if entry.EpochStart, err = parseTextTime(fields[15]); err != nil {
			return nil, &FetchError{Kind: KindMalformed, Message: "bad epoch start", Err: err}
		}
		// An empty end time means the epoch is still open
		if len(fields) > 16 && fields[16] != "" {
			if entry.EpochEnd, err = parseTextTime(fields[16]); err != nil {
				return nil, &FetchError{Kind: KindMalformed, Message: "bad epoch end", Err: err}
			}
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// parseEventText decodes an event response in FDSN text format:
//
//	#EventID|Time|Latitude|Longitude|Depth/km|Author|Catalog|Contributor|ContributorID|MagType|Magnitude|MagAuthor|EventLocationName
func parseEventText(body string) ([]domain.EventAnchor, error) {
	var events []domain.EventAnchor

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "|")
		if len(fields) < 11 {
			return nil, &FetchError{Kind: KindMalformed, Message: fmt.Sprintf("short event row: %q", line)}
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		ev := domain.EventAnchor{EventID: fields[0]}

		var err error
		if ev.Time, err = parseTextTime(fields[1]); err != nil {
			return nil, &FetchError{Kind: KindMalformed, Message: "bad event time", Err: err}
		}
		if ev.Latitude, err = strconv.ParseFloat(fields[2], 64); err != nil {
			return nil, &FetchError{Kind: KindMalformed, Message: fmt.Sprintf("bad latitude %q", fields[2]), Err: err}
		}
		if ev.Longitude, err = strconv.ParseFloat(fields[3], 64); err != nil {
			return nil, &FetchError{Kind: KindMalformed, Message: fmt.Sprintf("bad longitude %q", fields[3]), Err: err}
		}
		if fields[4] != "" {
			if ev.DepthKm, err = strconv.ParseFloat(fields[4], 64); err != nil {
				return nil, &FetchError{Kind: KindMalformed, Message: fmt.Sprintf("bad depth %q", fields[4]), Err: err}
			}
		}
		if fields[10] != "" {
			if ev.Magnitude, err = strconv.ParseFloat(fields[10], 64); err != nil {
				return nil, &FetchError{Kind: KindMalformed, Message: fmt.Sprintf("bad magnitude %q", fields[10]), Err: err}
			}
		}

		events = append(events, ev)
	}

	return events, nil
}
