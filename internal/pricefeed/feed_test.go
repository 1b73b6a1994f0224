package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugraha/cakra/internal/clients/indodax"
)

func newRestBackedFeed(t *testing.T, calls *int32) *Feed {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		w.Write([]byte(`{"ticker":{"last":"500000"}}`))
	}))
	t.Cleanup(server.Close)

	rest := indodax.NewPublicClient(server.URL, 5*time.Second, 0, zerolog.Nop())
	return New("", rest, 5*time.Second, zerolog.Nop())
}

func TestPriceFallsBackToRest(t *testing.T) {
	var calls int32
	feed := newRestBackedFeed(t, &calls)

	price, err := feed.Price(context.Background(), "btc_idr")
	require.NoError(t, err)
	assert.Equal(t, 500000.0, price)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPriceServesFreshStreamValue(t *testing.T) {
	var calls int32
	feed := newRestBackedFeed(t, &calls)

	feed.handleFrame([]byte(`42["market:update",{"btc_idr":"1620000000"}]`))

	price, err := feed.Price(context.Background(), "btc_idr")
	require.NoError(t, err)
	assert.Equal(t, 1620000000.0, price)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "fresh stream price should not hit REST")
}

func TestPriceIgnoresStaleStreamValue(t *testing.T) {
	var calls int32
	feed := newRestBackedFeed(t, &calls)

	current := time.Now()
	feed.now = func() time.Time { return current }

	feed.handleFrame([]byte(`42["market:summary",{"btc_idr":1000}]`))
	current = current.Add(time.Minute)

	price, err := feed.Price(context.Background(), "btc_idr")
	require.NoError(t, err)
	assert.Equal(t, 500000.0, price, "stale stream price should fall back to REST")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHandleFrameIgnoresMalformedFrames(t *testing.T) {
	var calls int32
	feed := newRestBackedFeed(t, &calls)

	feed.handleFrame([]byte(`3`))
	feed.handleFrame([]byte(`42{"not":"an array"}`))
	feed.handleFrame([]byte(`42["other:event",{"btc_idr":1}]`))
	feed.handleFrame([]byte(`42["market:update",{"btc_idr":"not-a-number"}]`))

	feed.mu.RLock()
	defer feed.mu.RUnlock()
	assert.Empty(t, feed.prices)
}

func TestHandleFrameParsesObjectPayload(t *testing.T) {
	var calls int32
	feed := newRestBackedFeed(t, &calls)

	feed.handleFrame([]byte(`42["market:summary",{"eth_idr":{"last":"52000000"}}]`))

	price, err := feed.Price(context.Background(), "eth_idr")
	require.NoError(t, err)
	assert.Equal(t, 52000000.0, price)
}
