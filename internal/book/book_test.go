package book

import "testing"

func lengthsEqual(t *testing.T, b *Book) {
	t.Helper()
	n := b.Len()
	if len(b.bidPrices) != n || len(b.bidVolumes) != n || len(b.askPrices) != n || len(b.askVolumes) != n {
		t.Fatalf("ladder lengths diverged: bidP=%d bidV=%d askP=%d askV=%d", len(b.bidPrices), len(b.bidVolumes), len(b.askPrices), len(b.askVolumes))
	}
}

// S1: a full OverlapRefresh on both sides.
func TestScenarioS1(t *testing.T) {
	b := New(5)
	if err := b.BidOverwriteLevel(100.0, 5, 0); err != nil {
		t.Fatal(err)
	}
	if err := b.BidOverwriteLevel(99.0, 3, 1); err != nil {
		t.Fatal(err)
	}
	if err := b.AskOverwriteLevel(101.0, 4, 0); err != nil {
		t.Fatal(err)
	}
	if err := b.AskOverwriteLevel(102.0, 6, 1); err != nil {
		t.Fatal(err)
	}
	if b.BidPrice(0) != 100.0 || b.BidVolume(0) != 5 {
		t.Fatalf("best bid = (%v, %v), want (100, 5)", b.BidPrice(0), b.BidVolume(0))
	}
	if b.AskPrice(0) != 101.0 || b.AskVolume(0) != 4 {
		t.Fatalf("best ask = (%v, %v), want (101, 4)", b.AskPrice(0), b.AskVolume(0))
	}
	lengthsEqual(t, b)
}

// S2: BidInsertAtLevel(0, 100.5, 2) after S1.
func TestScenarioS2(t *testing.T) {
	b := New(5)
	b.BidOverwriteLevel(100.0, 5, 0)
	b.BidOverwriteLevel(99.0, 3, 1)

	if err := b.BidInsertAtLevel(0, 100.5, 2); err != nil {
		t.Fatal(err)
	}
	wantPrices := []float64{100.5, 100.0, 99.0}
	wantVolumes := []float64{2, 5, 3}
	for i, want := range wantPrices {
		if b.BidPrice(i) != want {
			t.Errorf("bid_prices[%d] = %v, want %v", i, b.BidPrice(i), want)
		}
	}
	for i, want := range wantVolumes {
		if b.BidVolume(i) != want {
			t.Errorf("bid_volumes[%d] = %v, want %v", i, b.BidVolume(i), want)
		}
	}
	lengthsEqual(t, b)
}

// S3: BidRemoveLevel(1) after S2.
func TestScenarioS3(t *testing.T) {
	b := New(5)
	b.BidOverwriteLevel(100.0, 5, 0)
	b.BidOverwriteLevel(99.0, 3, 1)
	b.BidInsertAtLevel(0, 100.5, 2)

	if err := b.BidRemoveLevel(1); err != nil {
		t.Fatal(err)
	}
	if b.BidPrice(0) != 100.5 || b.BidVolume(0) != 2 {
		t.Errorf("bid[0] = (%v,%v), want (100.5,2)", b.BidPrice(0), b.BidVolume(0))
	}
	if b.BidPrice(1) != 99.0 || b.BidVolume(1) != 3 {
		t.Errorf("bid[1] = (%v,%v), want (99.0,3)", b.BidPrice(1), b.BidVolume(1))
	}
	if !IsMissing(b.BidPrice(2)) || !IsMissing(b.BidVolume(2)) {
		t.Errorf("bid[2] = (%v,%v), want missing", b.BidPrice(2), b.BidVolume(2))
	}
	lengthsEqual(t, b)
}

// S4: BidChangeQtyAtLevel(0, 9) after S3.
func TestScenarioS4(t *testing.T) {
	b := New(5)
	b.BidOverwriteLevel(100.0, 5, 0)
	b.BidOverwriteLevel(99.0, 3, 1)
	b.BidInsertAtLevel(0, 100.5, 2)
	b.BidRemoveLevel(1)

	if err := b.BidChangeQtyAtLevel(0, 9); err != nil {
		t.Fatal(err)
	}
	if b.BidVolume(0) != 9 {
		t.Errorf("bid_volumes[0] = %v, want 9", b.BidVolume(0))
	}
	if b.BidPrice(0) != 100.5 {
		t.Errorf("bid_prices[0] = %v, want unchanged 100.5", b.BidPrice(0))
	}
}

func TestInsertAtLengthIsNoOp(t *testing.T) {
	b := New(3)
	b.BidOverwriteLevel(1, 1, 0)
	b.BidOverwriteLevel(2, 2, 1)
	b.BidOverwriteLevel(3, 3, 2)
	before := b.TakeSnapshot(3)

	if err := b.BidInsertAtLevel(3, 99, 99); err != nil {
		t.Fatal(err)
	}
	after := b.TakeSnapshot(3)
	for i := range before {
		if before[i] != after[i] && !(IsMissing(before[i]) && IsMissing(after[i])) {
			t.Errorf("insert-at-length mutated slot %d: %v -> %v", i, before[i], after[i])
		}
	}
}

func TestRemoveAndAppend(t *testing.T) {
	b := New(3)
	b.BidOverwriteLevel(1, 1, 0)
	b.BidOverwriteLevel(2, 2, 1)
	b.BidOverwriteLevel(3, 3, 2)

	if err := b.BidRemoveLevelAndAppend(0, 9, 9); err != nil {
		t.Fatal(err)
	}
	want := []float64{2, 3, 9}
	for i, w := range want {
		if b.BidPrice(i) != w {
			t.Errorf("bid_prices[%d] = %v, want %v", i, b.BidPrice(i), w)
		}
	}
	lengthsEqual(t, b)
}

func TestClearFromLevelNoOpBeyondLength(t *testing.T) {
	b := New(3)
	b.BidOverwriteLevel(1, 1, 0)
	b.BidClearFromLevel(10)
	if b.BidPrice(0) != 1 {
		t.Errorf("clear beyond length mutated ladder: bid[0] = %v", b.BidPrice(0))
	}
}

func TestMaxVisibleDepthGrowShrink(t *testing.T) {
	b := New(3)
	b.BidOverwriteLevel(1, 1, 0)
	b.MaxVisibleDepth(5)
	lengthsEqual(t, b)
	if b.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", b.Len())
	}
	if !IsMissing(b.BidPrice(4)) {
		t.Errorf("extended slot should be missing, got %v", b.BidPrice(4))
	}

	b.MaxVisibleDepth(2)
	lengthsEqual(t, b)
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
}

func TestOutOfRangeLevelIsError(t *testing.T) {
	b := New(3)
	if err := b.BidChangeQtyAtLevel(3, 1); err == nil {
		t.Error("expected error for out-of-range ChangeQtyAtLevel")
	}
	if err := b.BidRemoveLevel(3); err == nil {
		t.Error("expected error for out-of-range RemoveLevel")
	}
	if err := b.BidInsertAtLevel(4, 1, 1); err == nil {
		t.Error("expected error for insert level past len+0 boundary")
	}
}

func TestTakeSnapshotPadsMissing(t *testing.T) {
	b := New(2)
	b.BidOverwriteLevel(1, 1, 0)
	snap := b.TakeSnapshot(10)
	if len(snap) != 40 {
		t.Fatalf("len(snapshot) = %d, want 40", len(snap))
	}
	if snap[0] != 1 {
		t.Errorf("snap[0] = %v, want 1", snap[0])
	}
	if !IsMissing(snap[5]) {
		t.Errorf("snap[5] should be missing, got %v", snap[5])
	}
}
