package fdsn

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"seisvault/internal/domain"
)

// slistTimeLayout is the timestamp format used in TIMESERIES headers.
const slistTimeLayout = "2006-01-02T15:04:05.000000"

// parseSLIST decodes an ASCII sample list response into one chunk per
// TIMESERIES block. A mid-window outage at the datacenter shows up as
// several blocks, so callers get the true covered spans rather than one
// optimistic envelope.
//
// Each block starts with a header line:
//
//	TIMESERIES IU_ANMO_00_BHZ_D, 1200 samples, 20 sps, 2024-03-01T12:00:00.000000, SLIST, FLOAT, COUNTS
//
// followed by whitespace-separated sample values, several per line.
func parseSLIST(r io.Reader) ([]*domain.SeriesChunk, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var chunks []*domain.SeriesChunk
	var cur *domain.SeriesChunk
	var want int

	flush := func() error {
		if cur == nil {
			return nil
		}
		if len(cur.Samples) != want {
			return &FetchError{
				Kind:    KindMalformed,
				Message: fmt.Sprintf("block %s: expected %d samples, got %d", cur.Key, want, len(cur.Samples)),
			}
		}
		if !cur.Empty() {
			chunks = append(chunks, cur)
		}
		cur = nil
		return nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "TIMESERIES") {
			if err := flush(); err != nil {
				return nil, err
			}
			chunk, n, err := parseSLISTHeader(line)
			if err != nil {
				return nil, err
			}
			cur, want = chunk, n
			continue
		}

		if cur == nil {
			return nil, &FetchError{Kind: KindMalformed, Message: "sample data before TIMESERIES header"}
		}
		for _, field := range strings.Fields(line) {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, &FetchError{Kind: KindMalformed, Message: fmt.Sprintf("bad sample value %q", field), Err: err}
			}
			cur.Samples = append(cur.Samples, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &FetchError{Kind: KindTransport, Message: "read response body", Err: err}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return chunks, nil
}

// parseSLISTHeader decodes one TIMESERIES header line into an empty
// chunk plus the announced sample count.
func parseSLISTHeader(line string) (*domain.SeriesChunk, int, error) {
	malformed := func(msg string, err error) (*domain.SeriesChunk, int, error) {
		return nil, 0, &FetchError{Kind: KindMalformed, Message: msg, Err: err}
	}

	fields := strings.Split(line, ",")
	if len(fields) < 5 {
		return malformed(fmt.Sprintf("short TIMESERIES header: %q", line), nil)
	}

	// "TIMESERIES IU_ANMO_00_BHZ_D"
	head := strings.Fields(fields[0])
	if len(head) != 2 {
		return malformed(fmt.Sprintf("bad TIMESERIES id: %q", fields[0]), nil)
	}
	idParts := strings.Split(head[1], "_")
	if len(idParts) < 4 {
		return malformed(fmt.Sprintf("bad stream id: %q", head[1]), nil)
	}
	key := domain.StreamKey{
		Network:  idParts[0],
		Station:  idParts[1],
		Location: idParts[2],
		Channel:  idParts[3],
	}
	if err := key.Validate(); err != nil {
		return malformed(fmt.Sprintf("bad stream id: %q", head[1]), err)
	}

	countStr := strings.TrimSuffix(strings.TrimSpace(fields[1]), " samples")
	count, err := strconv.Atoi(countStr)
	if err != nil || count < 0 {
		return malformed(fmt.Sprintf("bad sample count: %q", fields[1]), err)
	}

	rateStr := strings.TrimSuffix(strings.TrimSpace(fields[2]), " sps")
	rate, err := strconv.ParseFloat(rateStr, 64)
	if err != nil || rate <= 0 {
		return malformed(fmt.Sprintf("bad sample rate: %q", fields[2]), err)
	}

	start, err := time.Parse(slistTimeLayout, strings.TrimSpace(fields[3]))
	if err != nil {
		return malformed(fmt.Sprintf("bad start time: %q", fields[3]), err)
	}

	return &domain.SeriesChunk{
		Key:        key,
		Start:      start.UTC(),
		SampleRate: rate,
		Samples:    make([]float64, 0, count),
	}, count, nil
}
