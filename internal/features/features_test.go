package features

import (
	"math"
	"testing"

	"github.com/jiale0402/futures-ob-replay/internal/book"
)

func makeData(bidVol, askVol [5]float64) []float64 {
	data := make([]float64, 40)
	for i := 0; i < 10; i++ {
		data[i] = book.Missing
		data[20+i] = book.Missing
	}
	for i := 0; i < 5; i++ {
		data[10+i] = bidVol[i]
		data[30+i] = askVol[i]
	}
	return data
}

// S6: oir with the worked example from the spec.
func TestScenarioS6(t *testing.T) {
	data := makeData([5]float64{10, 8, 6, 4, 2}, [5]float64{2, 4, 6, 8, 10})
	prev := makeData([5]float64{0, 0, 0, 0, 0}, [5]float64{0, 0, 0, 0, 0})

	got := oir(data, prev, 0)
	want := 0.2222
	if math.Abs(got-want) > 1e-3 {
		t.Fatalf("oir = %v, want ~%v", got, want)
	}
}

func TestFeaturesMissingOnFirstTick(t *testing.T) {
	data := makeData([5]float64{1, 1, 1, 1, 1}, [5]float64{1, 1, 1, 1, 1})

	if got := oir(data, nil, 0); !book.IsMissing(got) {
		t.Errorf("oir with nil prev = %v, want missing", got)
	}
	if got := mpb(data, nil, 0); !book.IsMissing(got) {
		t.Errorf("mpb with nil prev = %v, want missing", got)
	}
	if got := voi(data, nil, 0); !book.IsMissing(got) {
		t.Errorf("voi with nil prev = %v, want missing", got)
	}
}

func TestRegistryOrderAndNames(t *testing.T) {
	reg := Registry(true, 5)
	names := []string{}
	for _, f := range reg {
		names = append(names, f.Name())
	}
	want := []string{"oir", "mpb", "voi", "realized_vol"}
	for i, w := range want {
		if names[i] != w {
			t.Fatalf("registry[%d] = %s, want %s", i, names[i], w)
		}
	}

	emitted := Names(reg)
	if len(emitted) != 3 {
		t.Fatalf("expected 3 emitted features (realized_vol withheld), got %v", emitted)
	}
}

func TestEmittedValuesWithholdsNonEmitFeatures(t *testing.T) {
	reg := Registry(true, 5) // oir, mpb, voi, realized_vol (not emitted)
	values := []float64{1, 2, 3, 4}

	emitted := EmittedValues(reg, values)
	want := []float64{1, 2, 3}
	if len(emitted) != len(want) {
		t.Fatalf("EmittedValues = %v, want %v", emitted, want)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Fatalf("EmittedValues[%d] = %v, want %v", i, emitted[i], want[i])
		}
	}
}

func TestMpb(t *testing.T) {
	data := make([]float64, 40)
	prev := make([]float64, 40)
	data[0], data[20] = 100, 102 // bid0, ask0 -> midp 101
	prev[0], prev[20] = 98, 100  // prev midp 99
	vwap := 100.5

	got := mpb(data, prev, vwap)
	want := vwap - (101.0+99.0)/2
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("mpb = %v, want %v", got, want)
	}
}
