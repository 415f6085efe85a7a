// Package decoder classifies a raw L2 update row into OverlapRefresh,
// DeltaRefresh, or MaxVisibleDepth and dispatches the decoded primitive to
// a book.Book.
package decoder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jiale0402/futures-ob-replay/internal/book"
)

// DeltaAction is the tagged variant replacing the source's DeltaAction
// string-compare chain.
type DeltaAction int

// Delta action codes, in the order DeltaRefresh_DeltaAction enumerates
// them.
const (
	AllClear DeltaAction = iota
	BidClear
	AskClear
	BidInsert
	AskInsert
	BidRemove
	AskRemove
	BidChangeQty
	AskChangeQty
	BidRemoveAndAppend
	AskRemoveAndAppend
)

// ParseDeltaAction maps a stringified-float DeltaRefresh_DeltaAction code
// onto its tagged variant.
func ParseDeltaAction(code float64) (DeltaAction, error) {
	i := int(code)
	if float64(i) != code || i < int(AllClear) || i > int(AskRemoveAndAppend) {
		return 0, fmt.Errorf("decoder: unknown DeltaAction code %v", code)
	}
	return DeltaAction(i), nil
}

// LimitPair is one (price, qty) entry from an OverlapRefresh limits string.
type LimitPair struct {
	Price float64
	Qty   float64
}

// ParseLimits reconstructs the JSON-ish OverlapRefresh limits string
// "[p0,q0][p1,q1]..." by inserting commas between adjacent brackets and
// wrapping the result before parsing.
func ParseLimits(raw string) ([]LimitPair, error) {
	if raw == "" {
		return nil, nil
	}
	fixed := strings.ReplaceAll(raw, "][", "],[")
	wrapped := "[" + fixed + "]"

	var pairs [][]float64
	if err := json.Unmarshal([]byte(wrapped), &pairs); err != nil {
		return nil, fmt.Errorf("decoder: unparseable limits string %q: %w", raw, err)
	}
	out := make([]LimitPair, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("decoder: limits entry %d has %d fields, want 2", i, len(p))
		}
		out[i] = LimitPair{Price: p[0], Qty: p[1]}
	}
	return out, nil
}

// DecodeIndicator decodes a signed OverlapRefresh change indicator into
// (is_full, start_level).
func DecodeIndicator(ind int64) (isFull bool, startLevel int) {
	if ind < 0 {
		return true, int(-ind - 1)
	}
	return false, int(ind)
}

// Row is one raw L2 update message with its nullable columns. Exactly one
// of the Overlap*/Delta*/MaxVisibleDepth groups is expected to be
// populated per the dispatch priority in Apply.
type Row struct {
	OverlapBidIndicator *int64
	OverlapAskIndicator *int64
	OverlapBidLimits    string
	OverlapAskLimits    string

	DeltaActionCode *float64
	DeltaLevel      *int
	DeltaPrice      *float64
	DeltaQty        *float64

	MaxVisibleDepth *int
}

// OverlapResult reports the limits an OverlapRefresh applied, so the
// caller can feed ConsistencyChecker when both sides arrived as a full
// refresh in the same message.
type OverlapResult struct {
	BidLimits []LimitPair
	AskLimits []LimitPair
	BidFull   bool
	AskFull   bool
}

// BothFull reports whether both sides of this OverlapRefresh were full
// refreshes, the trigger condition for a consistency check.
func (r *OverlapResult) BothFull() bool {
	return r != nil && r.BidFull && r.AskFull && r.BidLimits != nil && r.AskLimits != nil
}

// Apply classifies row and dispatches it against b. It returns a non-nil
// OverlapResult only when row was an OverlapRefresh.
func Apply(b *book.Book, row Row) (*OverlapResult, error) {
	switch {
	case row.OverlapBidIndicator != nil || row.OverlapAskIndicator != nil:
		return applyOverlapRefresh(b, row)
	case row.DeltaActionCode != nil:
		return nil, applyDeltaRefresh(b, row)
	case row.MaxVisibleDepth != nil:
		b.MaxVisibleDepth(*row.MaxVisibleDepth)
		return nil, nil
	default:
		return nil, nil
	}
}

func applyOverlapRefresh(b *book.Book, row Row) (*OverlapResult, error) {
	result := &OverlapResult{}

	if row.OverlapBidIndicator != nil {
		isFull, startLevel := DecodeIndicator(*row.OverlapBidIndicator)
		limits, err := ParseLimits(row.OverlapBidLimits)
		if err != nil {
			return nil, err
		}
		if b.BidBestMissing() {
			startLevel = 0
		}
		for i, lp := range limits {
			if err := b.BidOverwriteLevel(lp.Price, lp.Qty, startLevel+i); err != nil {
				return nil, err
			}
		}
		if isFull {
			b.BidClearFromLevel(startLevel + len(limits))
		}
		result.BidLimits = limits
		result.BidFull = isFull
	}

	if row.OverlapAskIndicator != nil {
		isFull, startLevel := DecodeIndicator(*row.OverlapAskIndicator)
		limits, err := ParseLimits(row.OverlapAskLimits)
		if err != nil {
			return nil, err
		}
		if b.AskBestMissing() {
			startLevel = 0
		}
		for i, lp := range limits {
			if err := b.AskOverwriteLevel(lp.Price, lp.Qty, startLevel+i); err != nil {
				return nil, err
			}
		}
		if isFull {
			b.AskClearFromLevel(startLevel + len(limits))
		}
		result.AskLimits = limits
		result.AskFull = isFull
	}

	return result, nil
}

func applyDeltaRefresh(b *book.Book, row Row) error {
	action, err := ParseDeltaAction(*row.DeltaActionCode)
	if err != nil {
		return err
	}

	if action == AllClear {
		level := 0
		if row.DeltaLevel != nil {
			level = *row.DeltaLevel
		}
		b.AllClearFromLevel(level)
		return nil
	}

	if row.DeltaLevel == nil {
		return fmt.Errorf("decoder: DeltaRefresh action %d missing level", action)
	}
	level := *row.DeltaLevel

	needsPrice := action == BidInsert || action == AskInsert || action == BidRemoveAndAppend || action == AskRemoveAndAppend
	if needsPrice && row.DeltaPrice == nil {
		return fmt.Errorf("decoder: DeltaRefresh action %d requires a non-null price", action)
	}

	var price, qty float64
	if row.DeltaPrice != nil {
		price = *row.DeltaPrice
	}
	if row.DeltaQty != nil {
		qty = *row.DeltaQty
	}

	switch action {
	case BidClear:
		b.BidClearFromLevel(level)
	case AskClear:
		b.AskClearFromLevel(level)
	case BidInsert:
		return b.BidInsertAtLevel(level, price, qty)
	case AskInsert:
		return b.AskInsertAtLevel(level, price, qty)
	case BidRemove:
		return b.BidRemoveLevel(level)
	case AskRemove:
		return b.AskRemoveLevel(level)
	case BidChangeQty:
		return b.BidChangeQtyAtLevel(level, qty)
	case AskChangeQty:
		return b.AskChangeQtyAtLevel(level, qty)
	case BidRemoveAndAppend:
		return b.BidRemoveLevelAndAppend(level, price, qty)
	case AskRemoveAndAppend:
		return b.AskRemoveLevelAndAppend(level, price, qty)
	default:
		return fmt.Errorf("decoder: unhandled DeltaAction %d", action)
	}
	return nil
}
