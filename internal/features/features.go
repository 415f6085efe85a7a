// Package features implements the microstructure feature evaluator that
// runs at each grid tick, plus a small registry so the coordinator can hand
// workers a fixed, ordered list of features to emit. The required features
// (oir, mpb, voi) are stateless; the supplemental RealizedVol keeps its own
// mid-price history between ticks.
package features

import (
	"github.com/jiale0402/futures-ob-replay/internal/book"
	"github.com/montanaflynn/stats"
)

// Levels is the number of weighted price levels the required features read
// from a layer-0 snapshot.
const Levels = 5

// Weights are the per-level weights applied in oir/voi, nearest level first.
var Weights = [Levels]float64{1.0, 0.8, 0.6, 0.4, 0.2}

// SumWeights is the sum of Weights.
const SumWeights = 3.0

// CumulativeWeights is the running sum of Weights, used by voi.
var CumulativeWeights = cumsum(Weights)

func cumsum(w [Levels]float64) [Levels]float64 {
	var out [Levels]float64
	var running float64
	for i, v := range w {
		running += v
		out[i] = running
	}
	return out
}

func bidPrice(data []float64, i int) float64  { return data[i] }
func bidVolume(data []float64, i int) float64 { return data[10+i] }
func askPrice(data []float64, i int) float64  { return data[20+i] }
func askVolume(data []float64, i int) float64 { return data[30+i] }

// Evaluator is a named feature evaluated from (current tick's
// snapshot+OHLCVA, previous tick's same, current VWAP), in declaration
// order. The required features are pure functions of these inputs;
// RealizedVol also depends on the ticks it saw before. Emit controls whether the value is written to the output CSV or
// only computed for downstream consumers.
type Evaluator interface {
	Name() string
	Emit() bool
	Eval(data, prev []float64, vwap float64) float64
}

type funcFeature struct {
	name string
	emit bool
	fn   func(data, prev []float64, vwap float64) float64
}

func (f *funcFeature) Name() string { return f.name }
func (f *funcFeature) Emit() bool   { return f.emit }
func (f *funcFeature) Eval(data, prev []float64, vwap float64) float64 {
	return f.fn(data, prev, vwap)
}

// oir is the order-imbalance-ratio feature.
func oir(data, prev []float64, _ float64) float64 {
	if prev == nil {
		return book.Missing
	}
	var vb, va float64
	for i := 0; i < Levels; i++ {
		vb += bidVolume(data, i) * Weights[i]
		va += askVolume(data, i) * Weights[i]
	}
	vb /= SumWeights
	va /= SumWeights
	return (vb - va) / (vb + va)
}

// mpb is the mid-price-basis feature.
func mpb(data, prev []float64, vwap float64) float64 {
	if prev == nil {
		return book.Missing
	}
	midp := (bidPrice(data, 0) + askPrice(data, 0)) / 2
	prevMidp := (bidPrice(prev, 0) + askPrice(prev, 0)) / 2
	return vwap - (midp+prevMidp)/2
}

// voi is the volume-order-imbalance feature.
func voi(data, prev []float64, _ float64) float64 {
	if prev == nil {
		return book.Missing
	}

	var deltaBid, deltaAsk [Levels]float64
	for i := 0; i < Levels; i++ {
		b, pb := bidPrice(data, i), bidPrice(prev, i)
		switch {
		case b > pb:
			deltaBid[i] = bidVolume(data, i)
		case b < pb:
			deltaBid[i] = 0
		default:
			deltaBid[i] = bidVolume(data, i) - bidVolume(prev, i)
		}

		a, pa := askPrice(data, i), askPrice(prev, i)
		switch {
		case a > pa:
			deltaAsk[i] = 0
		case a < pa:
			deltaAsk[i] = askVolume(data, i)
		default:
			deltaAsk[i] = askVolume(data, i) - askVolume(prev, i)
		}

		deltaBid[i] *= Weights[i]
		deltaAsk[i] *= Weights[i]
	}

	cBid := cumsum(deltaBid)
	cAsk := cumsum(deltaAsk)

	var sum float64
	for i := 0; i < Levels; i++ {
		sum += (cBid[i] - cAsk[i]) / CumulativeWeights[i]
	}
	return sum
}

// RealizedVol is a supplemental feature not required by the core set: the
// sample standard deviation of the last window mid-prices, using
// montanaflynn/stats in place of a hand-rolled accumulator. It is disabled
// for CSV emission by default (mirrors the original's mask flag), but is
// still computed on every tick so other consumers of the registry can read
// it.
type RealizedVol struct {
	window  int
	history []float64
	emit    bool
}

// NewRealizedVol constructs the supplemental volatility feature with the
// given look-back window.
func NewRealizedVol(window int, emit bool) *RealizedVol {
	if window <= 1 {
		window = 20
	}
	return &RealizedVol{window: window, emit: emit}
}

func (r *RealizedVol) Name() string { return "realized_vol" }
func (r *RealizedVol) Emit() bool   { return r.emit }

func (r *RealizedVol) Eval(data, prev []float64, _ float64) float64 {
	mid := (bidPrice(data, 0) + askPrice(data, 0)) / 2
	if book.IsMissing(mid) {
		return book.Missing
	}
	r.history = append(r.history, mid)
	if len(r.history) > r.window {
		r.history = r.history[len(r.history)-r.window:]
	}
	if len(r.history) < 2 {
		return book.Missing
	}
	sd, err := stats.StandardDeviationSample(r.history)
	if err != nil {
		return book.Missing
	}
	return sd
}

// Registry is the fixed, ordered list of evaluators the coordinator hands
// to every worker. Order is significant: oir, mpb, voi, then any
// supplemental features.
func Registry(includeRealizedVol bool, realizedVolWindow int) []Evaluator {
	reg := []Evaluator{
		&funcFeature{name: "oir", emit: true, fn: oir},
		&funcFeature{name: "mpb", emit: true, fn: mpb},
		&funcFeature{name: "voi", emit: true, fn: voi},
	}
	if includeRealizedVol {
		reg = append(reg, NewRealizedVol(realizedVolWindow, false))
	}
	return reg
}

// Names returns the names of features with Emit() true, in registry order.
func Names(reg []Evaluator) []string {
	var out []string
	for _, f := range reg {
		if f.Emit() {
			out = append(out, f.Name())
		}
	}
	return out
}

// Eval evaluates every feature in reg, in order, returning one value per
// feature (regardless of Emit), so downstream consumers (e.g. RealizedVol
// built on earlier ticks) stay fed even when a feature is not emitted.
func Eval(reg []Evaluator, data, prev []float64, vwap float64) []float64 {
	out := make([]float64, len(reg))
	for i, f := range reg {
		out[i] = f.Eval(data, prev, vwap)
	}
	return out
}

// EmittedValues filters values (as returned by Eval, one per reg entry in
// the same order) down to only those whose Evaluator has Emit() true,
// matching the column order Names/Header produce.
func EmittedValues(reg []Evaluator, values []float64) []float64 {
	out := make([]float64, 0, len(reg))
	for i, f := range reg {
		if f.Emit() {
			out = append(out, values[i])
		}
	}
	return out
}
