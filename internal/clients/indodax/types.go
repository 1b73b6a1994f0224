// Package indodax implements the exchange gateway: the unauthenticated
// market-data API and the HMAC-signed trade API.
package indodax

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Ticker is the public market snapshot for one pair.
type Ticker struct {
	Pair string
	Last float64
	High float64
	Low  float64
	Buy  float64
	Sell float64
}

// Balance maps asset code to available amount.
type Balance map[string]float64

// OpenOrder is one live resting order as reported by the exchange.
type OpenOrder struct {
	OrderID   string
	Pair      string
	Type      string // buy | sell
	Price     float64
	Remaining float64
	SubmitAt  int64
}

// TradeResult is the exchange's acknowledgement of an order placement.
type TradeResult struct {
	OrderID string
	Receive float64
	Spent   float64
	Remain  float64
}

// ExchangeError is a rejection the exchange itself returned: the request
// reached the exchange and was understood, but refused. Distinct from
// transport errors, which mean exchange health is unknown.
type ExchangeError struct {
	Method  string
	Message string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange rejected %s: %s", e.Method, e.Message)
}

// IsExchangeError reports whether err is a rejection from the exchange
// rather than a transport failure.
func IsExchangeError(err error) bool {
	var ee *ExchangeError
	return errors.As(err, &ee)
}

// flexString tolerates identifiers returned either as JSON strings or
// bare numbers.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(data)
	return nil
}

// flexFloat tolerates the exchange's habit of returning numbers as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid numeric string %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}
