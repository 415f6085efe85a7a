// Package book implements the incremental limit-order-book state machine:
// fixed-capacity bid/ask price and volume ladders that apply one update
// primitive at a time.
package book

import (
	"fmt"
	"math"
)

// Missing is the sentinel value for an empty ladder slot. All ladder slots
// and feature outputs share this single representation; CSV emission is
// responsible for serializing it to "" or "NaN" as configured.
var Missing = math.NaN()

// IsMissing reports whether v is the missing-value sentinel.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// DefaultCapacity is the initial ladder length used when a Book is created
// without an explicit capacity.
const DefaultCapacity = 15

// Book is a fixed-capacity bid/ask ladder for one (instrument, layer) pair.
// Index 0 is the best price on each side. All four sequences always share
// the same length.
type Book struct {
	bidPrices  []float64
	bidVolumes []float64
	askPrices  []float64
	askVolumes []float64
}

// New creates a Book with capacity slots on each side, all initialized to
// the missing sentinel.
func New(capacity int) *Book {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Book{
		bidPrices:  make([]float64, capacity),
		bidVolumes: make([]float64, capacity),
		askPrices:  make([]float64, capacity),
		askVolumes: make([]float64, capacity),
	}
	for i := 0; i < capacity; i++ {
		b.bidPrices[i] = Missing
		b.bidVolumes[i] = Missing
		b.askPrices[i] = Missing
		b.askVolumes[i] = Missing
	}
	return b
}

// Len returns the current ladder length (identical on all four sequences).
func (b *Book) Len() int {
	return len(b.bidPrices)
}

// BidPrice returns the bid price at level, or Missing if level is beyond
// the ladder.
func (b *Book) BidPrice(level int) float64 {
	if level < 0 || level >= len(b.bidPrices) {
		return Missing
	}
	return b.bidPrices[level]
}

// BidVolume returns the bid volume at level.
func (b *Book) BidVolume(level int) float64 {
	if level < 0 || level >= len(b.bidVolumes) {
		return Missing
	}
	return b.bidVolumes[level]
}

// AskPrice returns the ask price at level.
func (b *Book) AskPrice(level int) float64 {
	if level < 0 || level >= len(b.askPrices) {
		return Missing
	}
	return b.askPrices[level]
}

// AskVolume returns the ask volume at level.
func (b *Book) AskVolume(level int) float64 {
	if level < 0 || level >= len(b.askVolumes) {
		return Missing
	}
	return b.askVolumes[level]
}

// BidBestMissing reports whether the best bid slot is currently missing.
// Used by OverlapRefresh handling to force start_level = 0.
func (b *Book) BidBestMissing() bool {
	return len(b.bidPrices) == 0 || IsMissing(b.bidPrices[0])
}

// AskBestMissing reports whether the best ask slot is currently missing.
func (b *Book) AskBestMissing() bool {
	return len(b.askPrices) == 0 || IsMissing(b.askPrices[0])
}

// ErrLevelOutOfRange is returned when an operation targets a ladder index
// outside the permitted range for that operation.
type ErrLevelOutOfRange struct {
	Op    string
	Level int
	Len   int
}

func (e *ErrLevelOutOfRange) Error() string {
	return fmt.Sprintf("book: %s level %d out of range (len=%d)", e.Op, e.Level, e.Len)
}

func changeQtyAtLevel(op string, volumes []float64, level int, qty float64) error {
	if level < 0 || level >= len(volumes) {
		return &ErrLevelOutOfRange{Op: op, Level: level, Len: len(volumes)}
	}
	volumes[level] = qty
	return nil
}

// BidChangeQtyAtLevel overwrites the volume at level, leaving price intact.
func (b *Book) BidChangeQtyAtLevel(level int, qty float64) error {
	return changeQtyAtLevel("BidChangeQtyAtLevel", b.bidVolumes, level, qty)
}

// AskChangeQtyAtLevel overwrites the volume at level, leaving price intact.
func (b *Book) AskChangeQtyAtLevel(level int, qty float64) error {
	return changeQtyAtLevel("AskChangeQtyAtLevel", b.askVolumes, level, qty)
}

func removeLevel(op string, prices, volumes []float64, level int) error {
	n := len(prices)
	if level < 0 || level >= n {
		return &ErrLevelOutOfRange{Op: op, Level: level, Len: n}
	}
	for i := level; i < n-1; i++ {
		prices[i] = prices[i+1]
		volumes[i] = volumes[i+1]
	}
	prices[n-1] = Missing
	volumes[n-1] = Missing
	return nil
}

// BidRemoveLevel deletes the entry at level, shifts subsequent entries up,
// and appends a missing sentinel at the tail. Length is preserved.
func (b *Book) BidRemoveLevel(level int) error {
	return removeLevel("BidRemoveLevel", b.bidPrices, b.bidVolumes, level)
}

// AskRemoveLevel deletes the entry at level, shifts subsequent entries up,
// and appends a missing sentinel at the tail. Length is preserved.
func (b *Book) AskRemoveLevel(level int) error {
	return removeLevel("AskRemoveLevel", b.askPrices, b.askVolumes, level)
}

func removeLevelAndAppend(op string, prices, volumes []float64, level int, price, qty float64) error {
	n := len(prices)
	if level < 0 || level >= n {
		return &ErrLevelOutOfRange{Op: op, Level: level, Len: n}
	}
	for i := level; i < n-1; i++ {
		prices[i] = prices[i+1]
		volumes[i] = volumes[i+1]
	}
	prices[n-1] = price
	volumes[n-1] = qty
	return nil
}

// BidRemoveLevelAndAppend deletes the entry at level and appends (price, qty)
// at the tail instead of a missing sentinel. Length is preserved.
func (b *Book) BidRemoveLevelAndAppend(level int, price, qty float64) error {
	return removeLevelAndAppend("BidRemoveLevelAndAppend", b.bidPrices, b.bidVolumes, level, price, qty)
}

// AskRemoveLevelAndAppend deletes the entry at level and appends (price, qty)
// at the tail instead of a missing sentinel. Length is preserved.
func (b *Book) AskRemoveLevelAndAppend(level int, price, qty float64) error {
	return removeLevelAndAppend("AskRemoveLevelAndAppend", b.askPrices, b.askVolumes, level, price, qty)
}

// insertAtLevel inserts (price, qty) at level, shifting the tail down and
// dropping the last entry. level == len(prices) is the documented
// overwrite-of-tail-with-drop case: the shift-and-drop cancels out and the
// ladder is left unchanged, since the only entry that would be written is
// immediately the one dropped.
func insertAtLevel(op string, prices, volumes []float64, level int, price, qty float64) error {
	n := len(prices)
	if level < 0 || level > n {
		return &ErrLevelOutOfRange{Op: op, Level: level, Len: n}
	}
	if level == n {
		return nil
	}
	for i := n - 1; i > level; i-- {
		prices[i] = prices[i-1]
		volumes[i] = volumes[i-1]
	}
	prices[level] = price
	volumes[level] = qty
	return nil
}

// BidInsertAtLevel inserts (price, qty) at level, shifting the tail down and
// dropping the last entry. Length is preserved.
func (b *Book) BidInsertAtLevel(level int, price, qty float64) error {
	return insertAtLevel("BidInsertAtLevel", b.bidPrices, b.bidVolumes, level, price, qty)
}

// AskInsertAtLevel inserts (price, qty) at level, shifting the tail down and
// dropping the last entry. Length is preserved.
func (b *Book) AskInsertAtLevel(level int, price, qty float64) error {
	return insertAtLevel("AskInsertAtLevel", b.askPrices, b.askVolumes, level, price, qty)
}

func clearFromLevel(prices, volumes []float64, level int) {
	if level >= len(prices) {
		return
	}
	if level < 0 {
		level = 0
	}
	for i := level; i < len(prices); i++ {
		prices[i] = Missing
		volumes[i] = Missing
	}
}

// BidClearFromLevel sets all bid entries from level to the end to the
// missing sentinel. No-op if level is at or beyond the ladder length.
func (b *Book) BidClearFromLevel(level int) {
	clearFromLevel(b.bidPrices, b.bidVolumes, level)
}

// AskClearFromLevel sets all ask entries from level to the end to the
// missing sentinel. No-op if level is at or beyond the ladder length.
func (b *Book) AskClearFromLevel(level int) {
	clearFromLevel(b.askPrices, b.askVolumes, level)
}

// AllClearFromLevel clears both sides from level to the end.
func (b *Book) AllClearFromLevel(level int) {
	b.BidClearFromLevel(level)
	b.AskClearFromLevel(level)
}

func overwriteLevel(op string, prices, volumes []float64, price, qty float64, level int) error {
	if level < 0 || level >= len(prices) {
		return &ErrLevelOutOfRange{Op: op, Level: level, Len: len(prices)}
	}
	prices[level] = price
	volumes[level] = qty
	return nil
}

// BidOverwriteLevel writes (price, qty) at level without shifting.
func (b *Book) BidOverwriteLevel(price, qty float64, level int) error {
	return overwriteLevel("BidOverwriteLevel", b.bidPrices, b.bidVolumes, price, qty, level)
}

// AskOverwriteLevel writes (price, qty) at level without shifting.
func (b *Book) AskOverwriteLevel(price, qty float64, level int) error {
	return overwriteLevel("AskOverwriteLevel", b.askPrices, b.askVolumes, price, qty, level)
}

func resize(values []float64, depth int) []float64 {
	n := len(values)
	if depth == n {
		return values
	}
	if depth < n {
		out := make([]float64, depth)
		copy(out, values[:depth])
		return out
	}
	out := make([]float64, depth)
	copy(out, values)
	for i := n; i < depth; i++ {
		out[i] = Missing
	}
	return out
}

// MaxVisibleDepth truncates all four sequences to depth if depth is smaller
// than the current length, or extends them with the missing sentinel if
// depth is larger.
func (b *Book) MaxVisibleDepth(depth int) {
	b.bidPrices = resize(b.bidPrices, depth)
	b.bidVolumes = resize(b.bidVolumes, depth)
	b.askPrices = resize(b.askPrices, depth)
	b.askVolumes = resize(b.askVolumes, depth)
}

// TakeSnapshot returns the four sequences truncated or padded to levels,
// concatenated as [bid_prices | bid_volumes | ask_prices | ask_volumes].
func (b *Book) TakeSnapshot(levels int) []float64 {
	out := make([]float64, 0, 4*levels)
	out = append(out, padOrTruncate(b.bidPrices, levels)...)
	out = append(out, padOrTruncate(b.bidVolumes, levels)...)
	out = append(out, padOrTruncate(b.askPrices, levels)...)
	out = append(out, padOrTruncate(b.askVolumes, levels)...)
	return out
}

func padOrTruncate(values []float64, levels int) []float64 {
	out := make([]float64, levels)
	for i := 0; i < levels; i++ {
		if i < len(values) {
			out[i] = values[i]
		} else {
			out[i] = Missing
		}
	}
	return out
}
