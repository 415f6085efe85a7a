package trades

import (
	"testing"

	"github.com/jiale0402/futures-ob-replay/internal/book"
)

// S5: empty interval carries prevClose; a populated interval rolls up
// correctly including vwap.
func TestScenarioS5(t *testing.T) {
	h := New()

	o, hi, lo, c, v, a := h.GetOHLCVA()
	if !book.IsMissing(o) || !book.IsMissing(hi) || !book.IsMissing(lo) || !book.IsMissing(c) || v != 0 || a != 0 {
		t.Fatalf("first empty tick = (%v,%v,%v,%v,%v,%v), want all missing, 0, 0", o, hi, lo, c, v, a)
	}

	h.HandleTrade(100.0, 1)
	o, hi, lo, c, v, a = h.GetOHLCVA()
	if o != 100 || hi != 100 || lo != 100 || c != 100 || v != 1 || a != 100 {
		t.Fatalf("got (%v,%v,%v,%v,%v,%v), want (100,100,100,100,1,100)", o, hi, lo, c, v, a)
	}

	// Empty interval following a close of 100.0.
	o, hi, lo, c, v, a = h.GetOHLCVA()
	if o != 100 || hi != 100 || lo != 100 || c != 100 || v != 0 || a != 0 {
		t.Fatalf("empty interval after close=100 = (%v,%v,%v,%v,%v,%v), want (100,100,100,100,0,0)", o, hi, lo, c, v, a)
	}

	h.HandleTrade(101, 1)
	h.HandleTrade(102, 2)
	h.HandleTrade(100, 1)
	o, hi, lo, c, v, a = h.GetOHLCVA()
	if o != 101 || hi != 102 || lo != 100 || c != 100 || v != 4 || a != 405 {
		t.Fatalf("got (%v,%v,%v,%v,%v,%v), want (101,102,100,100,4,405)", o, hi, lo, c, v, a)
	}
	if h.VWAP() != 101.25 {
		t.Fatalf("vwap = %v, want 101.25", h.VWAP())
	}
}

func TestHandleTradeIgnoresMissingPrice(t *testing.T) {
	h := New()
	h.HandleTrade(book.Missing, 5)
	_, _, _, _, v, a := h.GetOHLCVA()
	if v != 0 || a != 0 {
		t.Fatalf("missing-price trade should be ignored, got volume=%v amount=%v", v, a)
	}
}

func TestHighLowInvariant(t *testing.T) {
	h := New()
	h.HandleTrade(10, 1)
	h.HandleTrade(20, 1)
	h.HandleTrade(5, 1)
	h.HandleTrade(15, 1)
	o, hi, lo, c, _, _ := h.GetOHLCVA()
	if hi < o || hi < c || hi < lo || lo > o || lo > c {
		t.Fatalf("OHLC invariant violated: open=%v high=%v low=%v close=%v", o, hi, lo, c)
	}
}
