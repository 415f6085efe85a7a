package decoder

import (
	"testing"

	"github.com/jiale0402/futures-ob-replay/internal/book"
)

func i64(v int64) *int64     { return &v }
func ip(v int) *int          { return &v }
func fp(v float64) *float64  { return &v }

func TestParseLimits(t *testing.T) {
	got, err := ParseLimits("[100.0,5][99.0,3]")
	if err != nil {
		t.Fatal(err)
	}
	want := []LimitPair{{100.0, 5}, {99.0, 3}}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("limits[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDecodeIndicator(t *testing.T) {
	isFull, start := DecodeIndicator(-1)
	if !isFull || start != 0 {
		t.Fatalf("ind=-1 -> (%v,%v), want (true,0)", isFull, start)
	}
	isFull, start = DecodeIndicator(3)
	if isFull || start != 3 {
		t.Fatalf("ind=3 -> (%v,%v), want (false,3)", isFull, start)
	}
}

// S1 via the decoder's OverlapRefresh path.
func TestScenarioS1ViaDecoder(t *testing.T) {
	b := book.New(5)
	row := Row{
		OverlapBidIndicator: i64(-1),
		OverlapBidLimits:    "[100.0,5][99.0,3]",
		OverlapAskIndicator: i64(-1),
		OverlapAskLimits:    "[101.0,4][102.0,6]",
	}
	result, err := Apply(b, row)
	if err != nil {
		t.Fatal(err)
	}
	if !result.BothFull() {
		t.Fatal("expected BothFull() true")
	}
	if b.BidPrice(0) != 100.0 || b.BidVolume(0) != 5 {
		t.Errorf("best bid = (%v,%v)", b.BidPrice(0), b.BidVolume(0))
	}
	if b.AskPrice(0) != 101.0 || b.AskVolume(0) != 4 {
		t.Errorf("best ask = (%v,%v)", b.AskPrice(0), b.AskVolume(0))
	}
}

// S2 via the decoder's DeltaRefresh path: action 3 = BidInsert.
func TestScenarioS2ViaDecoder(t *testing.T) {
	b := book.New(5)
	b.BidOverwriteLevel(100.0, 5, 0)
	b.BidOverwriteLevel(99.0, 3, 1)

	row := Row{
		DeltaActionCode: fp(3),
		DeltaLevel:      ip(0),
		DeltaPrice:      fp(100.5),
		DeltaQty:        fp(2),
	}
	if _, err := Apply(b, row); err != nil {
		t.Fatal(err)
	}
	if b.BidPrice(0) != 100.5 || b.BidVolume(0) != 2 {
		t.Errorf("bid[0] = (%v,%v), want (100.5,2)", b.BidPrice(0), b.BidVolume(0))
	}
}

func TestOverlapForcesStartLevelZeroWhenBestMissing(t *testing.T) {
	b := book.New(5)
	row := Row{
		OverlapBidIndicator: i64(2), // partial refresh starting at level 2
		OverlapBidLimits:    "[50.0,1]",
	}
	if _, err := Apply(b, row); err != nil {
		t.Fatal(err)
	}
	// best bid was missing, so start_level is forced to 0 regardless of
	// the indicator's encoded value.
	if b.BidPrice(0) != 50.0 {
		t.Errorf("bid[0] = %v, want 50.0 (start level forced to 0)", b.BidPrice(0))
	}
}

func TestInsertMissingPriceIsError(t *testing.T) {
	b := book.New(5)
	row := Row{
		DeltaActionCode: fp(3),
		DeltaLevel:      ip(0),
	}
	if _, err := Apply(b, row); err == nil {
		t.Error("expected error for Insert without price")
	}
}

func TestMaxVisibleDepthRow(t *testing.T) {
	b := book.New(5)
	row := Row{MaxVisibleDepth: ip(10)}
	if _, err := Apply(b, row); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", b.Len())
	}
}
