package fdsn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seisvault/internal/domain"
)

var testStream = domain.StreamKey{Network: "IU", Station: "ANMO", Location: "00", Channel: "BHZ"}

func testWindow(t *testing.T) domain.TimeSpan {
	t.Helper()
	start, err := time.Parse(time.RFC3339, "2024-03-01T12:00:00Z")
	require.NoError(t, err)
	return domain.Span(start.UTC(), start.Add(time.Minute).UTC())
}

const slistBody = `TIMESERIES IU_ANMO_00_BHZ_D, 6 samples, 2 sps, 2024-03-01T12:00:00.000000, SLIST, FLOAT, COUNTS
1.0 2.0 3.0
4.0 5.0 6.0
TIMESERIES IU_ANMO_00_BHZ_D, 4 samples, 2 sps, 2024-03-01T12:00:30.000000, SLIST, FLOAT, COUNTS
7.0 8.0
9.0 10.0
`

func TestClient_FetchWaveform(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fdsnws/dataselect/1/query", r.URL.Path)
		assert.Equal(t, "IU", r.URL.Query().Get("network"))
		assert.Equal(t, "00", r.URL.Query().Get("location"))
		assert.Equal(t, "2024-03-01T12:00:00.000000", r.URL.Query().Get("starttime"))
		w.Write([]byte(slistBody))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	chunks, err := client.FetchWaveform(context.Background(), testStream, testWindow(t))
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Equal(t, testStream, chunks[0].Key)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, chunks[0].Samples)
	assert.Equal(t, 2.0, chunks[0].SampleRate)
	assert.Equal(t, []float64{7, 8, 9, 10}, chunks[1].Samples)
	// Second block starts after the outage in the middle of the window
	assert.Equal(t, 30*time.Second, chunks[1].Start.Sub(chunks[0].Start))
}

func TestClient_FetchWaveform_EmptyLocationSentAsDashes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "--", r.URL.Query().Get("location"))
		w.Write([]byte("TIMESERIES XX_STA01__HHZ_D, 2 samples, 1 sps, 2024-03-01T12:00:00.000000, SLIST, FLOAT, COUNTS\n1.0 2.0\n"))
	}))
	defer server.Close()

	key := domain.StreamKey{Network: "XX", Station: "STA01", Location: "", Channel: "HHZ"}
	client := NewClient(server.URL)
	chunks, err := client.FetchWaveform(context.Background(), key, testWindow(t))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, key, chunks[0].Key)
}

func TestClient_FetchWaveform_RestrictedUsesQueryauth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fdsnws/dataselect/1/queryauth", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok, "expected basic auth")
		assert.Equal(t, "alice", user)
		assert.Equal(t, "s3cret", pass)
		w.Write([]byte(slistBody))
	}))
	defer server.Close()

	creds := NewCredentialResolver([]domain.Credential{
		{Scope: "IU", Username: "alice", Password: "s3cret"},
	})
	client := NewClient(server.URL, WithCredentials(creds))

	_, err := client.FetchWaveform(context.Background(), testStream, testWindow(t))
	require.NoError(t, err)
}

func TestClient_FetchWaveform_NoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.FetchWaveform(context.Background(), testStream, testWindow(t))

	assert.True(t, IsNoData(err), "expected NoData, got %v", err)
	assert.False(t, IsRetryable(err))
}

func TestClient_FetchWaveform_RetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(slistBody))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetryDelay(time.Millisecond), WithMaxDelay(5*time.Millisecond))
	chunks, err := client.FetchWaveform(context.Background(), testStream, testWindow(t))

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, chunks, 2)
}

func TestClient_FetchWaveform_AuthNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetryDelay(time.Millisecond))
	_, err := client.FetchWaveform(context.Background(), testStream, testWindow(t))

	assert.True(t, IsAuth(err), "expected auth error, got %v", err)
	assert.Equal(t, 1, attempts, "auth failures must not be retried")
}

func TestClient_FetchWaveform_MaxRetriesExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithMaxRetries(2), WithRetryDelay(time.Millisecond), WithMaxDelay(2*time.Millisecond))
	_, err := client.FetchWaveform(context.Background(), testStream, testWindow(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestClient_FetchStationInventory(t *testing.T) {
	body := `#Network|Station|Location|Channel|Latitude|Longitude|Elevation|Depth|Azimuth|Dip|SensorDescription|Scale|ScaleFreq|ScaleUnits|SampleRate|StartTime|EndTime
IU|ANMO|00|BHZ|34.9459|-106.4572|1850.0|100.0|0.0|-90.0|Geotech KS-54000|3.2e9|0.02|M/S|40.0|2018-07-09T20:45:00|
IU|ANMO|00|BHN|34.9459|-106.4572|1850.0|100.0|0.0|0.0|Geotech KS-54000|3.2e9|0.02|M/S|40.0|2018-07-09T20:45:00|2023-01-01T00:00:00
`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fdsnws/station/1/query", r.URL.Path)
		assert.Equal(t, "channel", r.URL.Query().Get("level"))
		assert.Equal(t, "IU", r.URL.Query().Get("network"))
		w.Write([]byte(body))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	entries, err := client.FetchStationInventory(context.Background(), StationQuery{Networks: []string{"IU"}})
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "BHZ", entries[0].Channel)
	assert.InDelta(t, 34.9459, entries[0].Latitude, 0.0001)
	assert.Equal(t, 40.0, entries[0].SampleRate)
	assert.True(t, entries[0].EpochEnd.IsZero(), "open epoch should have zero end")
	assert.False(t, entries[1].EpochEnd.IsZero())
}

func TestClient_FetchStationInventory_RadiusQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "35.5", r.URL.Query().Get("latitude"))
		assert.Equal(t, "5", r.URL.Query().Get("maxradius"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.FetchStationInventory(context.Background(), StationQuery{
		Latitude: 35.5, Longitude: -106, MaxRadius: 5,
	})
	assert.True(t, IsNoData(err))
}

func TestClient_FetchEventCatalog(t *testing.T) {
	body := `#EventID|Time|Latitude|Longitude|Depth/km|Author|Catalog|Contributor|ContributorID|MagType|Magnitude|MagAuthor|EventLocationName
us7000abcd|2024-03-01T06:12:45.120000|38.42|142.83|29.5|us|us|us|us7000abcd|mww|7.1|us|Off the coast
us7000wxyz|2024-03-02T11:03:02|-17.95|-178.41|540.0|us|us|us|us7000wxyz|mb|5.6|us|Fiji region
`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fdsnws/event/1/query", r.URL.Path)
		assert.Equal(t, "5.5", r.URL.Query().Get("minmagnitude"))
		w.Write([]byte(body))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	events, err := client.FetchEventCatalog(context.Background(), EventQuery{MinMagnitude: 5.5})
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "us7000abcd", events[0].EventID)
	assert.InDelta(t, 7.1, events[0].Magnitude, 0.0001)
	assert.InDelta(t, 29.5, events[0].DepthKm, 0.0001)
	assert.Equal(t, "2024-03-02T11:03:02Z", events[1].Time.Format(time.RFC3339))
}

func TestParseSLIST_SampleCountMismatch(t *testing.T) {
	body := "TIMESERIES IU_ANMO_00_BHZ_D, 5 samples, 2 sps, 2024-03-01T12:00:00.000000, SLIST, FLOAT, COUNTS\n1.0 2.0\n"
	_, err := parseSLIST(strings.NewReader(body))

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindMalformed, fe.Kind)
}

func TestCredentialResolver_StationScopeWins(t *testing.T) {
	creds := NewCredentialResolver([]domain.Credential{
		{Scope: "IU", Username: "netuser", Password: "a"},
		{Scope: "IU.ANMO", Username: "stauser", Password: "b"},
	})

	c, ok := creds.Resolve(testStream)
	require.True(t, ok)
	assert.Equal(t, "stauser", c.Username)

	c, ok = creds.Resolve(domain.StreamKey{Network: "IU", Station: "COLA", Location: "00", Channel: "BHZ"})
	require.True(t, ok)
	assert.Equal(t, "netuser", c.Username)

	_, ok = creds.Resolve(domain.StreamKey{Network: "GE", Station: "WLF", Location: "", Channel: "HHZ"})
	assert.False(t, ok)
}
