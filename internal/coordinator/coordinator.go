// Package coordinator implements ReplayCoordinator: date discovery,
// per-day table loading and normalization, instrument partitioning, and
// bounded per-instrument worker scheduling with carry-over rotation.
package coordinator

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jiale0402/futures-ob-replay/internal/book"
	"github.com/jiale0402/futures-ob-replay/internal/config"
	"github.com/jiale0402/futures-ob-replay/internal/features"
	"github.com/jiale0402/futures-ob-replay/internal/logctx"
	"github.com/jiale0402/futures-ob-replay/internal/replay"
	"github.com/jiale0402/futures-ob-replay/internal/tabular"
	"github.com/jiale0402/futures-ob-replay/internal/trades"
)

var l2FilenamePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})_(.+)_L2\.csv\.gz$`)

// DayResultSink receives per-instrument-day outcomes as the coordinator
// finishes each day; telemetry/audit/dashboard wiring happens through
// whatever Sink implementation main.go supplies. A nil Sink is valid.
type DayResultSink interface {
	RecordDayResult(instrument, date string, rows int, accuracy float64, failed bool)
}

// Coordinator discovers dates, drives per-day loading and normalization,
// and dispatches a bounded pool of ReplayWorkers per day.
type Coordinator struct {
	cfg   config.ReplayConfig
	dates []time.Time

	universeMu sync.Mutex
	universe   map[string]bool
	books      map[string]map[int]*book.Book
	tradeH     map[string]*trades.Handler
	carryOver  map[string][]float64
	outFiles   map[string]*os.File
	outWriters map[string]*csv.Writer
	// featureRegs holds one Evaluator registry per instrument, never shared
	// across instruments: RealizedVol carries mutable per-tick history, and
	// dispatch runs instruments concurrently, so a shared registry would be
	// a data race and would contaminate one instrument's volatility window
	// with another's mid-prices.
	featureRegs map[string][]features.Evaluator

	Sink DayResultSink
}

// New validates the source directory, enumerates available dates at or
// after cfg.StartDate, and creates the destination directory.
func New(cfg config.ReplayConfig) (*Coordinator, error) {
	if _, err := os.Stat(cfg.SourceDir); err != nil {
		return nil, fmt.Errorf("coordinator: source dir %s: %w", cfg.SourceDir, err)
	}
	if err := os.MkdirAll(cfg.DestinationDir, 0o755); err != nil {
		return nil, fmt.Errorf("coordinator: create dest dir: %w", err)
	}

	dates, err := discoverDates(cfg.SourceDir, cfg.ExchangeID, cfg.StartDate)
	if err != nil {
		return nil, err
	}

	universe := map[string]bool{}
	for _, code := range cfg.Universe {
		universe[code] = true
	}

	return &Coordinator{
		cfg:         cfg,
		dates:       dates,
		universe:    universe,
		books:       map[string]map[int]*book.Book{},
		tradeH:      map[string]*trades.Handler{},
		carryOver:   map[string][]float64{},
		outFiles:    map[string]*os.File{},
		outWriters:  map[string]*csv.Writer{},
		featureRegs: map[string][]features.Evaluator{},
	}, nil
}

func discoverDates(sourceDir, exchangeID string, start time.Time) ([]time.Time, error) {
	l2Dir := filepath.Join(sourceDir, "l2_data")
	entries, err := os.ReadDir(l2Dir)
	if err != nil {
		return nil, fmt.Errorf("coordinator: list %s: %w", l2Dir, err)
	}

	var dates []time.Time
	for _, e := range entries {
		m := l2FilenamePattern.FindStringSubmatch(e.Name())
		if m == nil || m[2] != exchangeID {
			continue
		}
		d, err := time.Parse("2006-01-02", m[1])
		if err != nil {
			continue
		}
		if !start.IsZero() && d.Before(start) {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// Dates returns the discovered replay dates, for callers that want to
// report progress before starting.
func (c *Coordinator) Dates() []time.Time {
	return c.dates
}

// Run replays every discovered date in order.
func (c *Coordinator) Run(ctx context.Context) error {
	if len(c.dates) == 0 {
		return fmt.Errorf("coordinator: no dates to replay (end of stream)")
	}
	for _, date := range c.dates {
		if err := ctx.Err(); err != nil {
			log.Printf("%sstopping before %s: %v%s", logctx.Yellow, date.Format("2006-01-02"), err, logctx.Reset)
			return nil
		}
		if err := c.runDay(ctx, date); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) l2Path(date time.Time) string {
	return filepath.Join(c.cfg.SourceDir, "l2_data", fmt.Sprintf("%s_%s_L2.csv.gz", date.Format("2006-01-02"), c.cfg.ExchangeID))
}

func (c *Coordinator) l1Path(date time.Time) string {
	return filepath.Join(c.cfg.SourceDir, "l1_data", fmt.Sprintf("%s_%s_L1-Trades.csv.gz", date.Format("2006-01-02"), c.cfg.ExchangeID))
}

// SetUniverseOverride replaces the instrument universe for subsequent days,
// implementing subscription.UniverseReceiver. It takes effect at the next
// day boundary, not mid-day.
func (c *Coordinator) SetUniverseOverride(codes []string) {
	c.universeMu.Lock()
	defer c.universeMu.Unlock()
	next := map[string]bool{}
	for _, code := range codes {
		next[code] = true
	}
	c.universe = next
}

func (c *Coordinator) runDay(ctx context.Context, date time.Time) error {
	c.universeMu.Lock()
	defer c.universeMu.Unlock()

	dateStr := date.Format("2006-01-02")

	l2Rows, err := tabular.DecodeGzipCSV(c.l2Path(date))
	if err != nil {
		return fmt.Errorf("coordinator: %s: load L2: %w", dateStr, err)
	}
	l1Rows, err := tabular.DecodeGzipCSV(c.l1Path(date))
	if err != nil {
		return fmt.Errorf("coordinator: %s: load L1: %w", dateStr, err)
	}

	tabular.NormalizeL2Timestamps(l2Rows)
	tabular.NormalizeL1Timestamps(l1Rows)

	if len(c.universe) == 0 {
		c.inferUniverse(l2Rows)
	}
	if err := c.ensureAllocations(date); err != nil {
		return err
	}

	dayStart := date.Add(c.cfg.SessionStartOffset)
	dayEnd := dayStart.Add(24*time.Hour - c.cfg.Frequency/100)

	l2Rows = append(l2Rows, tabular.InsertSentinel(dayStart), tabular.InsertSentinel(dayEnd))
	l1Rows = append(l1Rows, tabular.InsertSentinel(dayStart), tabular.InsertSentinel(dayEnd))
	sort.SliceStable(l2Rows, func(i, j int) bool { return l2Rows[i].Timestamp.Before(l2Rows[j].Timestamp) })
	sort.SliceStable(l1Rows, func(i, j int) bool { return l1Rows[i].Timestamp.Before(l1Rows[j].Timestamp) })

	if err := assertBoundary("L2", l2Rows, dayStart, dayEnd); err != nil {
		return fmt.Errorf("coordinator: %s: %w", dateStr, err)
	}
	if err := assertBoundary("L1", l1Rows, dayStart, dayEnd); err != nil {
		return fmt.Errorf("coordinator: %s: %w", dateStr, err)
	}

	l2Partitions := tabular.PartitionByCode(l2Rows, c.universe)
	l1Partitions := tabular.PartitionByCode(l1Rows, c.universe)

	l2Grid := map[string][]tabular.Interval{}
	l1Grid := map[string][]tabular.Interval{}
	for code := range c.universe {
		l2Grid[code] = tabular.GroupByDynamicUpsample(l2Partitions[code], dayStart, dayEnd, c.cfg.Frequency)
		l1Grid[code] = tabular.GroupByDynamicUpsample(l1Partitions[code], dayStart, dayEnd, c.cfg.Frequency)
		if len(l2Grid[code]) != len(l1Grid[code]) {
			return fmt.Errorf("coordinator: %s: %s: L2/L1 partition row counts disagree (%d vs %d)",
				dateStr, code, len(l2Grid[code]), len(l1Grid[code]))
		}
	}

	return c.dispatch(ctx, dateStr, l2Grid, l1Grid)
}

func (c *Coordinator) inferUniverse(l2Rows []tabular.RawRow) {
	for _, r := range l2Rows {
		if r.Code == "" || r.Code == tabular.BlankCode {
			continue
		}
		c.universe[r.Code] = true
	}
}

func (c *Coordinator) ensureAllocations(date time.Time) error {
	for code := range c.universe {
		if _, ok := c.books[code]; ok {
			continue
		}
		layerBooks := make(map[int]*book.Book, len(c.cfg.Layers))
		for _, l := range c.cfg.Layers {
			layerBooks[l] = book.New(book.DefaultCapacity)
		}
		c.books[code] = layerBooks
		c.tradeH[code] = trades.New()
		c.carryOver[code] = nil
		c.featureRegs[code] = features.Registry(c.cfg.IncludeRealizedVol, c.cfg.RealizedVolWindow)

		path := filepath.Join(c.cfg.DestinationDir, code+".csv")
		out, f, err := replay.NewCSVWriter(path, c.cfg.Layers, c.featureRegs[code])
		if err != nil {
			return err
		}
		c.outFiles[code] = f
		c.outWriters[code] = out
	}
	return nil
}

// Close flushes and closes every instrument's output file. Callers should
// defer this after a successful Run.
func (c *Coordinator) Close() error {
	var firstErr error
	for code, out := range c.outWriters {
		out.Flush()
		if err := out.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := c.outFiles[code].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func assertBoundary(label string, rows []tabular.RawRow, start, end time.Time) error {
	if len(rows) == 0 {
		return nil
	}
	min, max := rows[0].Timestamp, rows[0].Timestamp
	for _, r := range rows {
		if r.Timestamp.Before(min) {
			min = r.Timestamp
		}
		if r.Timestamp.After(max) {
			max = r.Timestamp
		}
	}
	if !min.Equal(start) {
		return fmt.Errorf("%s min timestamp %s != day_start %s", label, min, start)
	}
	if !max.Equal(end) {
		return fmt.Errorf("%s max timestamp %s != day_end %s", label, max, end)
	}
	return nil
}

// instrumentResult is one instrument's outcome for the day, collected
// under mu before being handed to the sink/logs.
type instrumentResult struct {
	code       string
	rows       int
	accuracy   float64
	carryOver  []float64
	failed     bool
	err        error
}

func (c *Coordinator) dispatch(ctx context.Context, dateStr string, l2Grid, l1Grid map[string][]tabular.Interval) error {
	sem := semaphore.NewWeighted(int64(maxInt(c.cfg.MaxWorkers, 1)))
	g, _ := errgroup.WithContext(ctx)

	var mu sync.Mutex
	results := make([]instrumentResult, 0, len(c.universe))

	for code := range c.universe {
		code := code
		if err := sem.Acquire(context.Background(), 1); err != nil {
			return fmt.Errorf("coordinator: %s: acquire worker slot: %w", dateStr, err)
		}

		g.Go(func() error {
			defer sem.Release(1)

			res := c.runInstrument(code, dateStr, l2Grid[code], l1Grid[code])

			mu.Lock()
			results = append(results, res)
			mu.Unlock()

			// Never propagate: a failed instrument must not abort the
			// day for its siblings.
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for _, res := range results {
		if res.failed {
			log.Printf("%sreplay worker failed: %s %s: %v%s", logctx.Red, dateStr, res.code, res.err, logctx.Reset)
		} else {
			c.carryOver[res.code] = res.carryOver
			color := logctx.Green
			if !book.IsMissing(res.accuracy) && res.accuracy < 0.999 {
				color = logctx.Yellow
			}
			log.Printf("%sreplay %s %s: rows=%d accuracy=%v%s", color, dateStr, res.code, res.rows, res.accuracy, logctx.Reset)
		}
		if c.Sink != nil {
			c.Sink.RecordDayResult(res.code, dateStr, res.rows, res.accuracy, res.failed)
		}
	}

	return nil
}

func (c *Coordinator) runInstrument(code, dateStr string, l2, l1 []tabular.Interval) instrumentResult {
	w := replay.NewWorker(code, c.cfg.Layers, c.books[code], c.tradeH[code], c.featureRegs[code], c.carryOver[code])

	out := c.outWriters[code]
	prevData, accuracy, err := w.Run(l2, l1, out)
	out.Flush()
	if err != nil {
		return instrumentResult{code: code, failed: true, err: err}
	}

	return instrumentResult{code: code, rows: len(l2), accuracy: accuracy, carryOver: prevData}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
