package replay

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"testing"
	"time"

	"github.com/jiale0402/futures-ob-replay/internal/book"
	"github.com/jiale0402/futures-ob-replay/internal/features"
	"github.com/jiale0402/futures-ob-replay/internal/tabular"
	"github.com/jiale0402/futures-ob-replay/internal/trades"
)

func TestWorkerRunTwoTicksRowCountAndSpacing(t *testing.T) {
	books := map[int]*book.Book{0: book.New(5)}
	w := NewWorker("BTC-USD", []int{0}, books, trades.New(), features.Registry(false, 0), nil)

	base := time.Unix(0, 0).UTC()
	freq := time.Second

	l2 := []tabular.Interval{
		{Timestamp: base},
		{Timestamp: base.Add(freq)},
	}
	l1 := []tabular.Interval{
		{Timestamp: base},
		{Timestamp: base.Add(freq)},
	}

	var buf bytes.Buffer
	out := csv.NewWriter(&buf)
	prev, acc, err := w.Run(l2, l1, out)
	if err != nil {
		t.Fatal(err)
	}
	out.Flush()
	if prev == nil {
		t.Fatal("expected non-nil carry-over row")
	}
	if !book.IsMissing(acc) {
		t.Errorf("accuracy with zero checks = %v, want missing", acc)
	}

	r := csv.NewReader(&buf)
	records, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("wrote %d rows, want 2", len(records))
	}
	ts0, err := strconv.ParseInt(records[0][len(records[0])-1], 10, 64)
	if err != nil {
		t.Fatal(err)
	}
	ts1, err := strconv.ParseInt(records[1][len(records[1])-1], 10, 64)
	if err != nil {
		t.Fatal(err)
	}
	if ts1-ts0 != freq.Microseconds() {
		t.Errorf("timestamp spacing = %dus, want %dus", ts1-ts0, freq.Microseconds())
	}
}

func TestWorkerMismatchedTimestampsIsFatal(t *testing.T) {
	books := map[int]*book.Book{0: book.New(5)}
	w := NewWorker("BTC-USD", []int{0}, books, trades.New(), features.Registry(false, 0), nil)

	base := time.Unix(0, 0).UTC()
	l2 := []tabular.Interval{{Timestamp: base}}
	l1 := []tabular.Interval{{Timestamp: base.Add(time.Second)}}

	var buf bytes.Buffer
	out := csv.NewWriter(&buf)
	if _, _, err := w.Run(l2, l1, out); err == nil {
		t.Fatal("expected error for mismatched tick timestamps")
	}
}
