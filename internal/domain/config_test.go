package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDCAConfigValidation(t *testing.T) {
	valid := DCAConfig{Amount: 100000, Interval: IntervalDaily, ExecutionTime: "09:30"}
	require.NoError(t, valid.Validate())

	hour, minute, err := valid.ExecutionClock()
	require.NoError(t, err)
	assert.Equal(t, 9, hour)
	assert.Equal(t, 30, minute)

	cases := []DCAConfig{
		{Amount: 0, Interval: IntervalDaily, ExecutionTime: "09:30"},
		{Amount: 100, Interval: "fortnightly", ExecutionTime: "09:30"},
		{Amount: 100, Interval: IntervalDaily, ExecutionTime: "25:00"},
		{Amount: 100, Interval: IntervalDaily, ExecutionTime: "nine"},
	}
	for _, c := range cases {
		assert.Error(t, c.Validate(), "%+v should be invalid", c)
	}

	badRuns := -1
	c := DCAConfig{Amount: 100, Interval: IntervalDaily, ExecutionTime: "09:30", MaxRuns: &badRuns}
	assert.Error(t, c.Validate())
}

func TestGridConfigValidation(t *testing.T) {
	valid := GridConfig{LowerPrice: 100, UpperPrice: 200, GridCount: 4, OrderSize: 10}
	require.NoError(t, valid.Validate())
	assert.Equal(t, DefaultPriceTolerance, valid.Tolerance())

	widened := valid
	widened.PriceTolerance = 5
	assert.Equal(t, 5.0, widened.Tolerance())

	cases := []GridConfig{
		{LowerPrice: 100, UpperPrice: 200, GridCount: 1, OrderSize: 10},
		{LowerPrice: 0, UpperPrice: 200, GridCount: 4, OrderSize: 10},
		{LowerPrice: 200, UpperPrice: 100, GridCount: 4, OrderSize: 10},
		{LowerPrice: 100, UpperPrice: 200, GridCount: 4, OrderSize: 0},
	}
	for _, c := range cases {
		assert.Error(t, c.Validate(), "%+v should be invalid", c)
	}
}

func TestTPSLConfigValidation(t *testing.T) {
	valid := TPSLConfig{EntryPrice: 10000, TakeProfitPct: 10, StopLossPct: 5, Amount: 0.5}
	require.NoError(t, valid.Validate())
	assert.Equal(t, 11000.0, valid.TakeProfitPrice())
	assert.Equal(t, 9500.0, valid.StopLossPrice())

	onlyTP := TPSLConfig{EntryPrice: 10000, TakeProfitPct: 10, Amount: 0.5}
	assert.NoError(t, onlyTP.Validate(), "one-sided configuration is allowed")

	cases := []TPSLConfig{
		{EntryPrice: 0, TakeProfitPct: 10, Amount: 0.5},
		{EntryPrice: 10000, TakeProfitPct: 10, Amount: 0},
		{EntryPrice: 10000, TakeProfitPct: -1, StopLossPct: 5, Amount: 0.5},
		{EntryPrice: 10000, Amount: 0.5},
	}
	for _, c := range cases {
		assert.Error(t, c.Validate(), "%+v should be invalid", c)
	}
}

func TestValidateConfigDispatch(t *testing.T) {
	assert.NoError(t, ValidateConfig(KindDCA,
		[]byte(`{"amount":100000,"interval":"hourly","execution_time":"00:00"}`)))
	assert.Error(t, ValidateConfig(KindDCA, []byte(`{not json`)))
	assert.Error(t, ValidateConfig(KindGrid,
		[]byte(`{"amount":100000,"interval":"hourly","execution_time":"00:00"}`)),
		"a dca config is not a valid grid config")
	assert.Error(t, ValidateConfig("martingale", []byte(`{}`)))
}
