// Package consistency implements ConsistencyChecker: verification of
// applied LocalOrderBook state against the limits of a just-applied full
// OverlapRefresh, and daily accuracy reporting.
package consistency

import (
	"math"

	"github.com/jiale0402/futures-ob-replay/internal/book"
	"github.com/jiale0402/futures-ob-replay/internal/decoder"
)

// Tolerance is the maximum allowed absolute difference between a book
// value and its corresponding limit before the pair is marked
// inconsistent.
const Tolerance = 1e-3

// Mismatch records the detail of the first inconsistency found on a side,
// if any, for diagnostics/audit purposes.
type Mismatch struct {
	Side       string // "bid" or "ask"
	Level      int
	BookPrice  float64
	BookVolume float64
	LimitPrice float64
	LimitVol   float64
}

// Result is the outcome of a single consistency check.
type Result struct {
	Consistent bool
	Mismatches []Mismatch
}

// Checker accumulates per-day consistency check outcomes to report an
// overall accuracy.
type Checker struct {
	total      int
	consistent int
}

// New creates an empty Checker.
func New() *Checker {
	return &Checker{}
}

// Check compares b's ladders against the OverlapRefresh limits in result,
// scanning each side independently to its own limits length (open
// question (c): canonicalized away from the source's min(len(bid),
// len(ask)) variant). It stops scanning a side at its first mismatch.
func (c *Checker) Check(b *book.Book, result *decoder.OverlapResult) Result {
	var mismatches []Mismatch

	if m, ok := scanSide("bid", b.BidPrice, b.BidVolume, result.BidLimits); !ok {
		mismatches = append(mismatches, m)
	}
	if m, ok := scanSide("ask", b.AskPrice, b.AskVolume, result.AskLimits); !ok {
		mismatches = append(mismatches, m)
	}

	res := Result{Consistent: len(mismatches) == 0, Mismatches: mismatches}
	c.total++
	if res.Consistent {
		c.consistent++
	}
	return res
}

func scanSide(side string, price, volume func(int) float64, limits []decoder.LimitPair) (Mismatch, bool) {
	for i, lp := range limits {
		if math.Abs(price(i)-lp.Price) > Tolerance || math.Abs(volume(i)-lp.Qty) > Tolerance {
			return Mismatch{
				Side:       side,
				Level:      i,
				BookPrice:  price(i),
				BookVolume: volume(i),
				LimitPrice: lp.Price,
				LimitVol:   lp.Qty,
			}, false
		}
	}
	return Mismatch{}, true
}

// Accuracy returns the fraction of consistent checks over total checks
// performed so far. It reports missing if no checks occurred.
func (c *Checker) Accuracy() float64 {
	if c.total == 0 {
		return book.Missing
	}
	return float64(c.consistent) / float64(c.total)
}

// Counts returns the raw (consistent, total) tallies, for logging.
func (c *Checker) Counts() (consistent, total int) {
	return c.consistent, c.total
}
