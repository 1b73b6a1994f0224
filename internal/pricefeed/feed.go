// Package pricefeed serves current prices to evaluators. It consumes the
// exchange's websocket stream into a short-lived cache and falls back to
// the REST ticker when the stream is silent or stale.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/nugraha/cakra/internal/clients/indodax"
)

const reconnectDelay = 5 * time.Second

// Feed is the price source evaluators query. Safe for concurrent use.
type Feed struct {
	wsURL      string
	rest       *indodax.PublicClient
	staleAfter time.Duration
	log        zerolog.Logger

	mu     sync.RWMutex
	prices map[string]pricePoint
	now    func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

type pricePoint struct {
	price     float64
	updatedAt time.Time
}

// New creates a Feed. wsURL may be empty, in which case every lookup goes
// straight to REST.
func New(wsURL string, rest *indodax.PublicClient, staleAfter time.Duration, log zerolog.Logger) *Feed {
	return &Feed{
		wsURL:      wsURL,
		rest:       rest,
		staleAfter: staleAfter,
		log:        log.With().Str("component", "pricefeed").Logger(),
		prices:     make(map[string]pricePoint),
		now:        time.Now,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the websocket consumer. No-op without a websocket URL.
func (f *Feed) Start() {
	if f.wsURL == "" {
		close(f.done)
		return
	}
	go f.run()
}

// Stop shuts the consumer down and waits for it to exit.
func (f *Feed) Stop() {
	f.stopOnce.Do(func() { close(f.stopChan) })
	<-f.done
}

// Price returns the current price for a pair. Cached websocket prices are
// served while fresh; otherwise it falls back to the REST ticker.
func (f *Feed) Price(ctx context.Context, pair string) (float64, error) {
	f.mu.RLock()
	point, ok := f.prices[pair]
	f.mu.RUnlock()

	if ok && f.now().Sub(point.updatedAt) < f.staleAfter {
		return point.price, nil
	}

	price, err := f.rest.LastPrice(ctx, pair)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve price for %s: %w", pair, err)
	}
	return price, nil
}

func (f *Feed) run() {
	defer close(f.done)

	for {
		select {
		case <-f.stopChan:
			return
		default:
		}

		if err := f.consume(); err != nil {
			f.log.Warn().Err(err).Msg("Price stream disconnected, reconnecting")
		}

		select {
		case <-f.stopChan:
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// consume holds one websocket session open and feeds the cache until the
// connection drops or Stop is called.
func (f *Feed) consume() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-f.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	dialCtx, dialCancel := context.WithTimeout(ctx, 30*time.Second)
	conn, _, err := websocket.Dial(dialCtx, f.wsURL, nil)
	dialCancel()
	if err != nil {
		return fmt.Errorf("failed to dial price stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")

	f.log.Info().Msg("Price stream connected")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("price stream read failed: %w", err)
		}
		f.handleFrame(data)
	}
}

// handleFrame parses one socket.io-style frame. Event frames carry a "42"
// prefix followed by a JSON array of [event, payload].
func (f *Feed) handleFrame(data []byte) {
	text := string(data)
	if !strings.HasPrefix(text, "42") {
		return
	}

	var frame []json.RawMessage
	if err := json.Unmarshal([]byte(text[2:]), &frame); err != nil || len(frame) < 2 {
		return
	}

	var event string
	if err := json.Unmarshal(frame[0], &event); err != nil {
		return
	}
	if event != "market:summary" && event != "market:update" {
		return
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(frame[1], &payload); err != nil {
		return
	}

	for pair, raw := range payload {
		price, ok := parsePrice(raw)
		if !ok {
			continue
		}
		f.mu.Lock()
		f.prices[pair] = pricePoint{price: price, updatedAt: f.now()}
		f.mu.Unlock()
	}
}

// parsePrice accepts the stream's two payload shapes: a bare number (or
// numeric string) and an object with a "last" field.
func parsePrice(raw json.RawMessage) (float64, bool) {
	var direct float64
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct, direct > 0
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		v, err := strconv.ParseFloat(asString, 64)
		return v, err == nil && v > 0
	}

	var obj struct {
		Last json.Number `json:"last"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Last != "" {
		v, err := obj.Last.Float64()
		return v, err == nil && v > 0
	}

	return 0, false
}
