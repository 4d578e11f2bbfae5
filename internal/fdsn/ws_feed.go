package fdsn

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"seisvault/internal/domain"
	"seisvault/internal/observability"
)

// FeedConfig configures the live waveform feed.
type FeedConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultFeedConfig returns default feed configuration.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Feed is a live waveform stream over WebSocket. A datacenter pushes
// record-sized chunks for the subscribed stream patterns; the feed
// reconnects and resubscribes on its own when the connection drops.
type Feed struct {
	endpoint string
	config   FeedConfig
	logger   *log.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	// patterns to restore after reconnect
	patterns   []string
	patternsMu sync.RWMutex

	out chan *domain.SeriesChunk

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
	reconnects   atomic.Uint64
}

// NewFeed connects to the feed endpoint. Pass nil config for defaults.
func NewFeed(ctx context.Context, endpoint string, config *FeedConfig, logger *log.Logger) (*Feed, error) {
	cfg := DefaultFeedConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	f := &Feed{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		out:      make(chan *domain.SeriesChunk, 1024),
		done:     make(chan struct{}),
	}

	if err := f.connect(ctx); err != nil {
		return nil, err
	}

	f.wg.Add(1)
	go f.readLoop()

	f.wg.Add(1)
	go f.pingLoop()

	return f, nil
}

// connect establishes the WebSocket connection.
func (f *Feed) connect(ctx context.Context) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	f.conn = conn
	return nil
}

// Subscribe registers stream patterns (NET.STA.LOC.CHA, with * and ?
// wildcards) and returns the chunk channel. The channel is closed on
// Close. Calling Subscribe again adds patterns to the existing set.
func (f *Feed) Subscribe(ctx context.Context, patterns []string) (<-chan *domain.SeriesChunk, error) {
	if f.closed.Load() {
		return nil, fmt.Errorf("feed closed")
	}

	if err := f.writeSubscribe(patterns); err != nil {
		return nil, err
	}

	f.patternsMu.Lock()
	f.patterns = append(f.patterns, patterns...)
	f.patternsMu.Unlock()

	return f.out, nil
}

// Reconnects reports how many times the feed has reconnected.
func (f *Feed) Reconnects() uint64 {
	return f.reconnects.Load()
}

// Close shuts the feed down and closes the chunk channel.
func (f *Feed) Close() error {
	if f.closed.Swap(true) {
		return nil // Already closed
	}

	close(f.done)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
	}
	f.connMu.Unlock()

	f.wg.Wait()
	close(f.out)
	return nil
}

func (f *Feed) writeSubscribe(patterns []string) error {
	req := feedRequest{Action: "subscribe", Streams: patterns}

	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("not connected")
	}

	f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	if err := f.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// readLoop reads frames and forwards decoded chunks.
func (f *Feed) readLoop() {
	defer f.wg.Done()

	reconnectDelay := f.config.ReconnectDelay

	for !f.closed.Load() {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn == nil {
			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.closed.Load() {
				return
			}

			if !f.reconnecting.Swap(true) {
				go f.reconnect(reconnectDelay)
			}

			// Exponential backoff
			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > f.config.MaxReconnectDelay {
				reconnectDelay = f.config.MaxReconnectDelay
			}

			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = f.config.ReconnectDelay

		f.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (f *Feed) reconnect(delay time.Duration) {
	defer f.reconnecting.Store(false)

	if f.closed.Load() {
		return
	}

	select {
	case <-f.done:
		return
	case <-time.After(delay):
	}

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := f.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}
	f.reconnects.Add(1)
	observability.DefaultMetrics.FeedReconnects.Inc()

	f.patternsMu.RLock()
	patterns := append([]string(nil), f.patterns...)
	f.patternsMu.RUnlock()

	if len(patterns) > 0 {
		if err := f.writeSubscribe(patterns); err != nil {
			f.logger.Printf("WARNING: feed resubscribe failed: %v", err)
		}
	}
}

// handleMessage decodes one frame and forwards the chunk.
func (f *Feed) handleMessage(message []byte) {
	var frame feedFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		f.logger.Printf("WARNING: feed frame decode failed: %v", err)
		return
	}
	if frame.Stream == "" {
		// Subscription acks and heartbeats carry no stream
		return
	}

	key, err := domain.ParseStreamKey(frame.Stream)
	if err != nil {
		f.logger.Printf("WARNING: feed frame with bad stream %q: %v", frame.Stream, err)
		return
	}
	if frame.Rate <= 0 || len(frame.Samples) == 0 {
		return
	}

	chunk := &domain.SeriesChunk{
		Key:        key,
		Start:      time.Unix(0, frame.StartNano).UTC(),
		SampleRate: frame.Rate,
		Samples:    frame.Samples,
	}

	// Block until the consumer drains - never drop records
	select {
	case f.out <- chunk:
		observability.RecordFeedRecord()
	case <-f.done:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (f *Feed) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
				if err := f.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			f.connMu.Unlock()
		}
	}
}

// Feed wire types

type feedRequest struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

type feedFrame struct {
	Stream    string    `json:"stream"`
	StartNano int64     `json:"start"`
	Rate      float64   `json:"rate"`
	Samples   []float64 `json:"samples"`
}
