package indodax

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	readRetries      = 3
	readRetryBackoff = 250 * time.Millisecond
)

// Credentials is a user's exchange key pair. Instances live only for the
// duration of a single call and must never be logged.
type Credentials struct {
	Key    string
	Secret string
}

// CredentialSource supplies credentials per call. Implementations decrypt
// on demand; nothing caches plaintext between calls.
type CredentialSource interface {
	Credentials(ctx context.Context, userID int64) (Credentials, error)
}

// NonceSource allocates the strictly increasing per-user nonce each signed
// request must carry.
type NonceSource interface {
	Next(ctx context.Context, userID int64) (int64, error)
}

// PrivateClient performs signed trade-API calls. Each request body is a
// urlencoded form signed with HMAC-SHA512 of the user's secret.
type PrivateClient struct {
	tradeURL    string
	httpClient  *http.Client
	credentials CredentialSource
	nonces      NonceSource
	log         zerolog.Logger
}

// NewPrivateClient creates a signed trade-API client.
func NewPrivateClient(tradeURL string, timeout time.Duration, creds CredentialSource, nonces NonceSource, log zerolog.Logger) *PrivateClient {
	return &PrivateClient{
		tradeURL:    tradeURL,
		httpClient:  &http.Client{Timeout: timeout},
		credentials: creds,
		nonces:      nonces,
		log:         log.With().Str("component", "indodax-private").Logger(),
	}
}

// sign computes the hex HMAC-SHA512 of the urlencoded body.
func sign(secret, body string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

type apiEnvelope struct {
	Success int             `json:"success"`
	Error   string          `json:"error"`
	Return  json.RawMessage `json:"return"`
}

// call performs one signed request. Credentials are fetched fresh, used,
// and dropped. Mutating methods must pass retryable=false; only reads may
// be retried because a timed-out mutation can still have executed.
func (c *PrivateClient) call(ctx context.Context, userID int64, method string, params url.Values, retryable bool) (json.RawMessage, error) {
	creds, err := c.credentials.Credentials(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials for user %d: %w", userID, err)
	}

	attempts := 1
	if retryable {
		attempts = readRetries
	}

	var lastErr error
	backoff := readRetryBackoff
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		raw, err := c.doSigned(ctx, userID, method, params, creds)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		// Exchange rejections are definitive; never retry them.
		if IsExchangeError(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *PrivateClient) doSigned(ctx context.Context, userID int64, method string, params url.Values, creds Credentials) (json.RawMessage, error) {
	nonce, err := c.nonces.Next(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate nonce: %w", err)
	}

	form := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			form.Add(k, v)
		}
	}
	form.Set("method", method)
	form.Set("nonce", strconv.FormatInt(nonce, 10))

	body := form.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tradeURL, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Key", creds.Key)
	req.Header.Set("Sign", sign(creds.Secret, body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trade api %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read trade api response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trade api %s returned status %d", method, resp.StatusCode)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode trade api response: %w", err)
	}

	if envelope.Success != 1 {
		return nil, &ExchangeError{Method: method, Message: envelope.Error}
	}

	return envelope.Return, nil
}

type tradeReturn struct {
	OrderID flexString `json:"order_id"`
	Receive flexFloat  `json:"receive_btc"`
	Spent   flexFloat  `json:"spend_rp"`
	Remain  flexFloat  `json:"remain_rp"`
}

// Trade places an order. orderType is buy or sell; price is zero for
// market-style orders priced at the current ticker. Never retried.
func (c *PrivateClient) Trade(ctx context.Context, userID int64, pair, orderType string, price, amount float64) (TradeResult, error) {
	params := url.Values{}
	params.Set("pair", pair)
	params.Set("type", orderType)
	if price > 0 {
		params.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
	}
	// Buy orders spend quote currency, sell orders spend base currency.
	if orderType == "buy" {
		params.Set("idr", strconv.FormatFloat(amount, 'f', -1, 64))
	} else {
		asset := strings.SplitN(pair, "_", 2)[0]
		params.Set(asset, strconv.FormatFloat(amount, 'f', -1, 64))
	}

	raw, err := c.call(ctx, userID, "trade", params, false)
	if err != nil {
		return TradeResult{}, err
	}

	var ret tradeReturn
	if err := json.Unmarshal(raw, &ret); err != nil {
		return TradeResult{}, fmt.Errorf("failed to decode trade result: %w", err)
	}

	return TradeResult{
		OrderID: string(ret.OrderID),
		Receive: float64(ret.Receive),
		Spent:   float64(ret.Spent),
		Remain:  float64(ret.Remain),
	}, nil
}

// CancelOrder cancels a resting order. Never retried.
func (c *PrivateClient) CancelOrder(ctx context.Context, userID int64, pair, orderID, orderType string) error {
	params := url.Values{}
	params.Set("pair", pair)
	params.Set("order_id", orderID)
	params.Set("type", orderType)

	_, err := c.call(ctx, userID, "cancelOrder", params, false)
	return err
}

type openOrdersReturn struct {
	Orders []struct {
		OrderID   flexString `json:"order_id"`
		Type      string     `json:"type"`
		Price     flexFloat  `json:"price"`
		Remaining flexFloat  `json:"remain_idr"`
		SubmitAt  flexFloat  `json:"submit_time"`
	} `json:"orders"`
}

// OpenOrders lists the user's live resting orders for a pair. Read-only,
// so transient failures are retried.
func (c *PrivateClient) OpenOrders(ctx context.Context, userID int64, pair string) ([]OpenOrder, error) {
	params := url.Values{}
	params.Set("pair", pair)

	raw, err := c.call(ctx, userID, "openOrders", params, true)
	if err != nil {
		return nil, err
	}

	var ret openOrdersReturn
	if err := json.Unmarshal(raw, &ret); err != nil {
		return nil, fmt.Errorf("failed to decode open orders: %w", err)
	}

	orders := make([]OpenOrder, 0, len(ret.Orders))
	for _, o := range ret.Orders {
		orders = append(orders, OpenOrder{
			OrderID:   string(o.OrderID),
			Pair:      pair,
			Type:      o.Type,
			Price:     float64(o.Price),
			Remaining: float64(o.Remaining),
			SubmitAt:  int64(o.SubmitAt),
		})
	}
	return orders, nil
}

type infoReturn struct {
	Balance map[string]flexFloat `json:"balance"`
}

// Balances returns the user's available balances. Read-only, retried.
func (c *PrivateClient) Balances(ctx context.Context, userID int64) (Balance, error) {
	raw, err := c.call(ctx, userID, "getInfo", url.Values{}, true)
	if err != nil {
		return nil, err
	}

	var ret infoReturn
	if err := json.Unmarshal(raw, &ret); err != nil {
		return nil, fmt.Errorf("failed to decode balances: %w", err)
	}

	balance := make(Balance, len(ret.Balance))
	for asset, amount := range ret.Balance {
		balance[asset] = float64(amount)
	}
	return balance, nil
}
