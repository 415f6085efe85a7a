package tabular

import (
	"testing"
	"time"
)

// GroupByDynamicUpsample must label each interval with its upper boundary
// (matching the original replayer's `_upper_boundary` projection), not the
// lower edge the bucket scan walks from.
func TestGroupByDynamicUpsampleLabelsUpperBoundary(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	freq := time.Second
	end := start.Add(2 * freq)

	intervals := GroupByDynamicUpsample(nil, start, end, freq)

	want := []time.Time{
		start.Add(freq),
		start.Add(2 * freq),
		start.Add(3 * freq),
	}
	if len(intervals) != len(want) {
		t.Fatalf("got %d intervals, want %d", len(intervals), len(want))
	}
	for i, w := range want {
		if !intervals[i].Timestamp.Equal(w) {
			t.Errorf("interval[%d].Timestamp = %s, want %s", i, intervals[i].Timestamp, w)
		}
	}
}

func TestGroupByDynamicUpsampleBucketsIntoLowerEdge(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	freq := time.Second
	end := start.Add(1 * freq)

	row := RawRow{Timestamp: start.Add(500 * time.Millisecond)}
	intervals := GroupByDynamicUpsample([]RawRow{row}, start, end, freq)

	if len(intervals[0].Rows) != 1 {
		t.Fatalf("expected the row bucketed into the first interval, got %d intervals with rows", len(intervals[0].Rows))
	}
	if !intervals[0].Timestamp.Equal(start.Add(freq)) {
		t.Errorf("interval[0].Timestamp = %s, want %s (upper boundary)", intervals[0].Timestamp, start.Add(freq))
	}
}
