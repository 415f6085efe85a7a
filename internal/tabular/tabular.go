// Package tabular is the minimal CSV/gzip decode and group-by-dynamic +
// upsample layer the core replay pipeline depends on. The wider
// specification treats a full columnar/group-by-dynamic engine as an
// external collaborator; no such library exists anywhere in the retrieval
// pack (confirmed by search — see DESIGN.md), so this package implements
// just enough of it on encoding/csv + compress/gzip to drive the
// coordinator end to end.
package tabular

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BlankCode is the server-side sentinel instrument code used for
// synthetic boundary rows.
const BlankCode = "blank"

// RawRow is one decoded CSV row keyed by column name. Cells are kept as
// strings; typed accessors below parse on demand, matching the "assume a
// columnar reader that can decode gzipped CSV into typed columns" framing
// — here the typing happens at the point of use instead of up front.
type RawRow struct {
	Code      string
	Timestamp time.Time
	Fields    map[string]string
}

// DecodeGzipCSV reads a gzip-compressed CSV file into header-indexed rows.
func DecodeGzipCSV(path string) ([]RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tabular: open %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("tabular: gzip %s: %w", path, err)
	}
	defer gz.Close()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("tabular: read header %s: %w", path, err)
	}

	var rows []RawRow
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				fields[col] = rec[i]
			}
		}
		rows = append(rows, RawRow{Code: fields["Code"], Fields: fields})
	}
	return rows, nil
}

// field returns the named column value, empty string if absent or blank.
func (r RawRow) field(name string) string {
	return strings.TrimSpace(r.Fields[name])
}

// FieldString returns a raw string column, ok=false if empty.
func (r RawRow) FieldString(name string) (string, bool) {
	v := r.field(name)
	return v, v != ""
}

// FieldInt64 parses an integer column, ok=false if empty or unparseable.
func (r RawRow) FieldInt64(name string) (int64, bool) {
	v := r.field(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FieldFloat64 parses a float column, ok=false if empty or unparseable.
func (r RawRow) FieldFloat64(name string) (float64, bool) {
	v := r.field(name)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// FieldInt parses an integer column as int.
func (r RawRow) FieldInt(name string) (int, bool) {
	n, ok := r.FieldInt64(name)
	return int(n), ok
}

// parseMicrosTimestamp casts a decimal-microseconds timestamp string
// (portion before the first '.') into a time.Time.
func parseMicrosTimestamp(raw string) (time.Time, bool) {
	raw = strings.SplitN(raw, ".", 2)[0]
	if raw == "" {
		return time.Time{}, false
	}
	micros, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMicro(micros).UTC(), true
}

// NormalizeL2Timestamps computes each row's timestamp as
// coalesce(DeltaRefresh_ServerTimestamp, OverlapRefresh_ServerTimestamp),
// then backward-fills gaps left by MaxVisibleDepth rows (the only rows
// permitted a null timestamp, since they never touch a book). Rows are
// left in their original order.
func NormalizeL2Timestamps(rows []RawRow) {
	for i := range rows {
		raw, ok := rows[i].FieldString("DeltaRefresh_ServerTimestamp")
		if !ok {
			raw, ok = rows[i].FieldString("OverlapRefresh_ServerTimestamp")
		}
		if ok {
			if ts, valid := parseMicrosTimestamp(raw); valid {
				rows[i].Timestamp = ts
			}
		}
	}
	backfill(rows)
}

// NormalizeL1Timestamps casts each row's ServerTimestamp column to a
// datetime in microseconds.
func NormalizeL1Timestamps(rows []RawRow) {
	for i := range rows {
		raw, ok := rows[i].FieldString("ServerTimestamp")
		if ok {
			if ts, valid := parseMicrosTimestamp(raw); valid {
				rows[i].Timestamp = ts
			}
		}
	}
	backfill(rows)
}

// backfill propagates the next valid timestamp backwards into any rows
// whose Timestamp is still the zero value.
func backfill(rows []RawRow) {
	var next time.Time
	for i := len(rows) - 1; i >= 0; i-- {
		if !rows[i].Timestamp.IsZero() {
			next = rows[i].Timestamp
		} else if !next.IsZero() {
			rows[i].Timestamp = next
		}
	}
}

// InsertSentinel builds a blank-code row stamped at ts, guaranteeing the
// grid has a defined endpoint.
func InsertSentinel(ts time.Time) RawRow {
	return RawRow{Code: BlankCode, Timestamp: ts, Fields: map[string]string{"Code": BlankCode}}
}

// PartitionByCode splits rows by Code into per-instrument sub-slices,
// preserving relative order, restricted to the given universe (plus the
// blank sentinel code, which every instrument's sub-slice also receives
// at its boundary timestamps).
func PartitionByCode(rows []RawRow, universe map[string]bool) map[string][]RawRow {
	partitions := make(map[string][]RawRow, len(universe))
	var blanks []RawRow
	for _, r := range rows {
		if r.Code == BlankCode {
			blanks = append(blanks, r)
			continue
		}
		if universe[r.Code] {
			partitions[r.Code] = append(partitions[r.Code], r)
		}
	}
	for code := range universe {
		merged := append(append([]RawRow{}, partitions[code]...), blanks...)
		sort.SliceStable(merged, func(i, j int) bool { return merged[i].Timestamp.Before(merged[j].Timestamp) })
		partitions[code] = merged
	}
	return partitions
}

// Interval is one tick of the uniform sampling grid: all message rows
// whose timestamp fell in [left, left+freq), represented by the upper
// boundary timestamp.
type Interval struct {
	Timestamp time.Time
	Rows      []RawRow
}

// GroupByDynamicUpsample buckets rows into closed-left [start, end) grid
// intervals of width freq, then upsamples so every grid point in range
// is present (with a nil Rows slice if no message fell in it).
func GroupByDynamicUpsample(rows []RawRow, start, end time.Time, freq time.Duration) []Interval {
	n := int(end.Sub(start)/freq) + 1
	intervals := make([]Interval, n)
	for i := range intervals {
		intervals[i].Timestamp = start.Add(time.Duration(i+1) * freq)
	}

	for _, r := range rows {
		if r.Timestamp.Before(start) {
			continue
		}
		idx := int(r.Timestamp.Sub(start) / freq)
		if idx < 0 || idx >= n {
			continue
		}
		intervals[idx].Rows = append(intervals[idx].Rows, r)
	}
	return intervals
}
