package consistency

import (
	"testing"

	"github.com/jiale0402/futures-ob-replay/internal/book"
	"github.com/jiale0402/futures-ob-replay/internal/decoder"
)

// Invariant 3 / S1: after a full OverlapRefresh, checking against the same
// limits reports consistent.
func TestConsistentAfterMatchingOverlapRefresh(t *testing.T) {
	b := book.New(5)
	row := decoder.Row{}
	bidInd := int64(-1)
	askInd := int64(-1)
	row.OverlapBidIndicator = &bidInd
	row.OverlapBidLimits = "[100.0,5][99.0,3]"
	row.OverlapAskIndicator = &askInd
	row.OverlapAskLimits = "[101.0,4][102.0,6]"

	result, err := decoder.Apply(b, row)
	if err != nil {
		t.Fatal(err)
	}

	checker := New()
	res := checker.Check(b, result)
	if !res.Consistent {
		t.Fatalf("expected consistent check, got mismatches: %+v", res.Mismatches)
	}
	if acc := checker.Accuracy(); acc != 1.0 {
		t.Fatalf("accuracy = %v, want 1.0", acc)
	}
}

func TestInconsistentReportsFirstMismatch(t *testing.T) {
	b := book.New(5)
	b.BidOverwriteLevel(100.0, 5, 0)
	b.AskOverwriteLevel(101.0, 4, 0)

	result := &decoder.OverlapResult{
		BidLimits: []decoder.LimitPair{{Price: 99.0, Qty: 5}},
		AskLimits: []decoder.LimitPair{{Price: 101.0, Qty: 4}},
		BidFull:   true,
		AskFull:   true,
	}

	checker := New()
	res := checker.Check(b, result)
	if res.Consistent {
		t.Fatal("expected inconsistent check")
	}
	if len(res.Mismatches) != 1 || res.Mismatches[0].Side != "bid" {
		t.Fatalf("mismatches = %+v, want one bid mismatch", res.Mismatches)
	}
}

func TestAccuracyMissingWithNoChecks(t *testing.T) {
	checker := New()
	if !book.IsMissing(checker.Accuracy()) {
		t.Fatalf("accuracy with zero checks = %v, want missing", checker.Accuracy())
	}
}
