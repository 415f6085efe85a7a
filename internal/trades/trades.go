// Package trades implements the per-interval OHLCVA + VWAP accumulator
// that runs alongside the order book on each grid tick.
package trades

import (
	"github.com/jiale0402/futures-ob-replay/internal/book"
	"github.com/shopspring/decimal"
)

// Handler accumulates trade prints for the current interval and rolls them
// up into OHLCVA + VWAP on demand. Prices and quantities are rounded to 5
// decimals on ingestion, matching the source's rounding-then-clearing
// semantics.
type Handler struct {
	prices  []float64
	volumes []float64

	prevClose float64
	vwap      float64
}

// New creates an empty Handler. prevClose starts missing: the first
// get_ohlcva call on an empty interval will itself return a missing close,
// per the "first tick has no prior data" invariant.
func New() *Handler {
	return &Handler{
		prevClose: book.Missing,
		vwap:      book.Missing,
	}
}

func round5(v float64) float64 {
	d := decimal.NewFromFloat(v).Round(5)
	f, _ := d.Float64()
	return f
}

// HandleTrade appends a rounded (price, qty) pair to the interval buffer.
// A missing price is ignored.
func (h *Handler) HandleTrade(price, qty float64) {
	if book.IsMissing(price) {
		return
	}
	h.prices = append(h.prices, round5(price))
	h.volumes = append(h.volumes, round5(qty))
}

// VWAP returns the volume-weighted average price of the most recently
// closed non-empty interval. It is exposed separately from GetOHLCVA
// because features read it independently of the OHLCVA tuple.
func (h *Handler) VWAP() float64 {
	return h.vwap
}

// GetOHLCVA rolls up and clears the interval buffer, returning
// (open, high, low, close, volume, amount). On an empty interval it
// returns the carried prevClose for open/high/low/close and zero for
// volume/amount, leaving vwap untouched. Exactly one call is expected per
// grid tick.
func (h *Handler) GetOHLCVA() (open, high, low, close, volume, amount float64) {
	if len(h.prices) == 0 {
		return h.prevClose, h.prevClose, h.prevClose, h.prevClose, 0, 0
	}

	open = h.prices[0]
	close = h.prices[len(h.prices)-1]
	high = h.prices[0]
	low = h.prices[0]
	for _, p := range h.prices {
		if p > high {
			high = p
		}
		if p < low {
			low = p
		}
	}

	for i := range h.prices {
		volume += h.volumes[i]
		amount += h.prices[i] * h.volumes[i]
	}

	if volume > 0 {
		h.vwap = amount / volume
	}

	h.prevClose = close
	h.prices = h.prices[:0]
	h.volumes = h.volumes[:0]
	return open, high, low, close, volume, amount
}
