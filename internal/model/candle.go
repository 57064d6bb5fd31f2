package model

import (
	"encoding/json"
	"math"
	"time"
)

// Candle is one time-bucketed OHLC summary as shown on the chart.
// Time is the display time in epoch seconds: the source instant plus the
// configured display offset.
type Candle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// DisplayTime returns the candle's bucket time as a UTC time.Time.
func (c *Candle) DisplayTime() time.Time {
	return time.Unix(c.Time, 0).UTC()
}

// Finite reports whether all four prices are real numbers.
func (c *Candle) Finite() bool {
	for _, v := range [4]float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes non-finite prices as null so a partial candle still
// serializes.
func (c Candle) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Time  int64    `json:"time"`
		Open  *float64 `json:"open"`
		High  *float64 `json:"high"`
		Low   *float64 `json:"low"`
		Close *float64 `json:"close"`
	}{c.Time, FiniteOrNil(c.Open), FiniteOrNil(c.High), FiniteOrNil(c.Low), FiniteOrNil(c.Close)})
}

// FiniteOrNil returns a pointer to v, or nil when v is NaN or infinite.
func FiniteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
