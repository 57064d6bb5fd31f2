package simfeed

import (
	"math"
	"math/rand"

	"github.com/shopspring/decimal"
)

// TickSynthesizer fills a bar with intra-bar prices along a Brownian
// bridge: the path starts at Open, ends at Close and is clamped to
// [Low, High].
type TickSynthesizer struct {
	rnd *rand.Rand
}

// NewTickSynthesizer returns a synthesizer seeded with seed.
func NewTickSynthesizer(seed int64) *TickSynthesizer {
	return &TickSynthesizer{rnd: rand.New(rand.NewSource(seed))}
}

// Ticks returns n prices for b, rounded to two decimals. n below 2 yields
// just the close.
//
// B(t) = Open + W(t) - (t/T)(W(T) - (Close - Open)), W a unit-variance
// random walk with W(0) = 0.
func (s *TickSynthesizer) Ticks(b Bar, n int) []float64 {
	if n < 2 {
		return []float64{round2(b.Close)}
	}
	w := make([]float64, n)
	for i := 1; i < n; i++ {
		w[i] = w[i-1] + s.rnd.NormFloat64()
	}
	last := float64(n - 1)
	drift := w[n-1] - (b.Close - b.Open)

	out := make([]float64, n)
	for i := range out {
		p := b.Open + w[i] - float64(i)/last*drift
		out[i] = round2(math.Max(b.Low, math.Min(b.High, p)))
	}
	out[0] = round2(b.Open)
	out[n-1] = round2(b.Close)
	return out
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
