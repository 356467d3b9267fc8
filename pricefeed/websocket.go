package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cosmossdk.io/math"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	initialReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
	readTimeout           = 90 * time.Second
)

type subscribeRequest struct {
	Op    string   `json:"op"`
	Pairs []string `json:"pairs"`
}

type tickMessage struct {
	Pair      string `json:"pair"`
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// WebsocketFeed subscribes to the oracle's push feed and caches the latest
// tick per pair. Reads are lock-cheap and never block on the network; a
// disconnected feed simply stops refreshing and existing ticks age into
// staleness.
type WebsocketFeed struct {
	url    string
	pairs  []string
	logger zerolog.Logger

	mu     sync.RWMutex
	latest map[string]Tick
}

var _ Source = (*WebsocketFeed)(nil)

func NewWebsocketFeed(url string, pairs []string, logger zerolog.Logger) *WebsocketFeed {
	return &WebsocketFeed{
		url:    url,
		pairs:  pairs,
		logger: logger.With().Str("component", "pricefeed").Logger(),
		latest: make(map[string]Tick),
	}
}

// CurrentPrice returns the most recent tick for a pair. The caller is
// responsible for checking Tick.Stale before acting on it.
func (f *WebsocketFeed) CurrentPrice(pair string) (Tick, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	tick, ok := f.latest[pair]
	if !ok {
		return Tick{}, fmt.Errorf("%w: %s", ErrNoPrice, pair)
	}
	return tick, nil
}

// Run connects, subscribes, and consumes ticks until ctx is cancelled,
// reconnecting with capped exponential backoff on any failure.
func (f *WebsocketFeed) Run(ctx context.Context) {
	delay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			return
		}

		err := f.consume(ctx)
		if err != nil && ctx.Err() == nil {
			f.logger.Error().Err(err).Dur("reconnectDelay", delay).Msg("feed disconnected")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *WebsocketFeed) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// drop the connection when ctx is cancelled to unblock ReadMessage
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(subscribeRequest{Op: "subscribe", Pairs: f.pairs}); err != nil {
		return err
	}

	f.logger.Info().Strs("pairs", f.pairs).Msg("subscribed to price feed")

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg tickMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			f.logger.Warn().Err(err).Msg("dropping malformed tick")
			continue
		}

		price, err := math.LegacyNewDecFromStr(msg.Price)
		if err != nil || !price.IsPositive() {
			f.logger.Warn().Str("pair", msg.Pair).Str("price", msg.Price).Msg("dropping invalid price")
			continue
		}

		f.store(Tick{
			Pair:  msg.Pair,
			Price: price,
			AsOf:  time.UnixMilli(msg.Timestamp),
		})
	}
}

func (f *WebsocketFeed) store(tick Tick) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// feeds can replay on reconnect; never let an older tick overwrite a
	// newer one
	if prev, ok := f.latest[tick.Pair]; ok && prev.AsOf.After(tick.AsOf) {
		return
	}
	f.latest[tick.Pair] = tick
}
