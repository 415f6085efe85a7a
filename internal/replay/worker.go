// Package replay implements ReplayWorker: the per-(instrument, day) loop
// that walks aligned L1/L2 grid ticks, drives the book and trade
// accumulator, evaluates features, and emits one CSV row per tick.
package replay

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jiale0402/futures-ob-replay/internal/book"
	"github.com/jiale0402/futures-ob-replay/internal/consistency"
	"github.com/jiale0402/futures-ob-replay/internal/decoder"
	"github.com/jiale0402/futures-ob-replay/internal/features"
	"github.com/jiale0402/futures-ob-replay/internal/tabular"
	"github.com/jiale0402/futures-ob-replay/internal/trades"
)

// SnapshotLevels is K in the spec: the number of bid/ask levels emitted
// per layer per tick.
const SnapshotLevels = 10

// MissingSerialization controls how the missing sentinel is written to
// CSV output.
type MissingSerialization string

const (
	MissingAsEmpty MissingSerialization = ""
	MissingAsNaN   MissingSerialization = "NaN"
)

// Worker replays one instrument's aligned rows for one day.
type Worker struct {
	Instrument string
	Layers     []int // per-instrument layer ids, in emission order
	Books      map[int]*book.Book
	Trades     *trades.Handler
	Features   []features.Evaluator
	Checker    *consistency.Checker
	Missing    MissingSerialization

	prevData []float64
}

// NewWorker constructs a Worker around the given per-layer books; it does
// not create books itself — the coordinator owns book lifecycle across days
// and passes the same Books map back in on day N+1.
func NewWorker(instrument string, layers []int, books map[int]*book.Book, tradesHandler *trades.Handler, featureReg []features.Evaluator, carryOver []float64) *Worker {
	return &Worker{
		Instrument: instrument,
		Layers:     layers,
		Books:      books,
		Trades:     tradesHandler,
		Features:   featureReg,
		Checker:    consistency.New(),
		Missing:    MissingAsEmpty,
		prevData:   carryOver,
	}
}

// Run walks the aligned l2 and l1 interval slices (already time-uniform
// and upsampled by the coordinator) and appends one row per tick to out.
// It returns the final row (the next day's carry-over) and the day's
// consistency accuracy.
func (w *Worker) Run(l2 []tabular.Interval, l1 []tabular.Interval, out *csv.Writer) ([]float64, float64, error) {
	if len(l2) != len(l1) {
		return nil, 0, fmt.Errorf("replay: %s: L2/L1 row counts disagree (%d vs %d)", w.Instrument, len(l2), len(l1))
	}

	for tick := range l2 {
		l2Tick := l2[tick]
		l1Tick := l1[tick]
		if !l2Tick.Timestamp.Equal(l1Tick.Timestamp) {
			return nil, 0, fmt.Errorf("replay: %s: tick %d timestamps disagree (L2=%s L1=%s)",
				w.Instrument, tick, l2Tick.Timestamp, l1Tick.Timestamp)
		}

		if err := w.applyUpdates(l2Tick.Rows); err != nil {
			return nil, 0, err
		}
		w.applyTrades(l1Tick.Rows)

		data, err := w.assembleRow()
		if err != nil {
			return nil, 0, err
		}

		if err := w.writeRow(out, w.emittedRow(data), l2Tick.Timestamp); err != nil {
			return nil, 0, err
		}
		w.prevData = data
	}

	return w.prevData, w.Checker.Accuracy(), nil
}

func (w *Worker) applyUpdates(rows []tabular.RawRow) error {
	for _, r := range rows {
		layerID, hasLayer := r.FieldInt("LayerId")
		if !hasLayer {
			continue
		}
		b, ok := w.Books[layerID]
		if !ok {
			continue
		}

		row := rawRowToDecoderRow(r)
		result, err := decoder.Apply(b, row)
		if err != nil {
			return fmt.Errorf("replay: %s layer %d: %w", w.Instrument, layerID, err)
		}
		if result.BothFull() {
			w.Checker.Check(b, result)
		}
	}
	return nil
}

func rawRowToDecoderRow(r tabular.RawRow) decoder.Row {
	row := decoder.Row{}
	if v, ok := r.FieldInt64("OverlapRefresh_BidChangeIndicator"); ok {
		row.OverlapBidIndicator = &v
	}
	if v, ok := r.FieldInt64("OverlapRefresh_AskChangeIndicator"); ok {
		row.OverlapAskIndicator = &v
	}
	row.OverlapBidLimits, _ = r.FieldString("OverlapRefresh_BidLimits")
	row.OverlapAskLimits, _ = r.FieldString("OverlapRefresh_AskLimits")

	if v, ok := r.FieldFloat64("DeltaRefresh_DeltaAction"); ok {
		row.DeltaActionCode = &v
	}
	if v, ok := r.FieldInt("DeltaRefresh_Level"); ok {
		row.DeltaLevel = &v
	}
	if v, ok := r.FieldFloat64("DeltaRefresh_Price"); ok {
		row.DeltaPrice = &v
	}
	if v, ok := r.FieldFloat64("DeltaRefresh_CumulatedUnits"); ok {
		row.DeltaQty = &v
	}
	if v, ok := r.FieldInt("MaxVisibleDepth_MaxVisibleDepth"); ok {
		row.MaxVisibleDepth = &v
	}
	return row
}

func (w *Worker) applyTrades(rows []tabular.RawRow) {
	for _, r := range rows {
		price, hasPrice := r.FieldFloat64("TradeEvent_LastPrice")
		qty, _ := r.FieldFloat64("TradeEvent_LastTradeQuantity")
		if !hasPrice {
			continue
		}
		w.Trades.HandleTrade(price, qty)
	}
}

// assembleRow concatenates every layer's snapshot, the tick's OHLCVA, and
// the evaluated features, in that fixed order.
func (w *Worker) assembleRow() ([]float64, error) {
	data := make([]float64, 0, len(w.Layers)*4*SnapshotLevels+6+len(w.Features))
	for _, layerID := range w.Layers {
		b, ok := w.Books[layerID]
		if !ok {
			return nil, fmt.Errorf("replay: %s: no book for layer %d", w.Instrument, layerID)
		}
		data = append(data, b.TakeSnapshot(SnapshotLevels)...)
	}

	open, high, low, close, volume, amount := w.Trades.GetOHLCVA()
	data = append(data, open, high, low, close, volume, amount)

	featureValues := features.Eval(w.Features, data, w.prevData, w.Trades.VWAP())
	data = append(data, featureValues...)

	return data, nil
}

// emittedRow builds the CSV row's value slice from the worker's full
// internal state: the layer/OHLCVA prefix unchanged, plus only the
// feature values whose Evaluator has Emit() true. The full data (with
// every feature value, emitted or not) is kept separately as prevData so
// feature formulas that read `data[:40]` and stateful features like
// RealizedVol keep seeing every tick.
func (w *Worker) emittedRow(data []float64) []float64 {
	base := len(data) - len(w.Features)
	row := make([]float64, 0, base+len(features.Names(w.Features)))
	row = append(row, data[:base]...)
	row = append(row, features.EmittedValues(w.Features, data[base:])...)
	return row
}

func (w *Worker) writeRow(out *csv.Writer, data []float64, ts time.Time) error {
	record := make([]string, 0, len(data)+1)
	for _, v := range data {
		record = append(record, w.formatValue(v))
	}
	record = append(record, strconv.FormatInt(ts.UnixMicro(), 10))
	return out.Write(record)
}

func (w *Worker) formatValue(v float64) string {
	if book.IsMissing(v) {
		return string(w.Missing)
	}
	return strconv.FormatFloat(v, 'f', 5, 64)
}

// Header builds the fixed CSV header: per-layer ladder columns for each
// layer in layers, then OHLCVA, then feature names (only those with
// Emit() true), then a trailing timestamp column.
func Header(layers []int, featureReg []features.Evaluator) []string {
	var header []string
	for _, l := range layers {
		for _, side := range []string{"bid_price", "bid_qty", "ask_price", "ask_qty"} {
			for i := 0; i < SnapshotLevels; i++ {
				header = append(header, fmt.Sprintf("layer_%d_%s_%d", l, side, i))
			}
		}
	}
	header = append(header, "open", "high", "low", "close", "volume", "amount")
	header = append(header, features.Names(featureReg)...)
	header = append(header, "timestamp")
	return header
}

// NewCSVWriter opens path and writes the header row.
func NewCSVWriter(path string, layers []int, featureReg []features.Evaluator) (*csv.Writer, *os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("replay: create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(Header(layers, featureReg)); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("replay: write header %s: %w", path, err)
	}
	return w, f, nil
}
