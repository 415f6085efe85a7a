// Command replay runs the offline order-book/trade replay pipeline end to
// end: it discovers available (date, instrument) partitions under a source
// directory, replays each day's L2 book updates and L1 trades through the
// feature pipeline, and appends one CSV row per grid tick per instrument.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jiale0402/futures-ob-replay/internal/audit"
	"github.com/jiale0402/futures-ob-replay/internal/config"
	"github.com/jiale0402/futures-ob-replay/internal/coordinator"
	httpsrv "github.com/jiale0402/futures-ob-replay/internal/http"
	"github.com/jiale0402/futures-ob-replay/internal/logctx"
	"github.com/jiale0402/futures-ob-replay/internal/metrics"
	"github.com/jiale0402/futures-ob-replay/internal/subscription"
	"github.com/jiale0402/futures-ob-replay/internal/telemetry"
	"github.com/jiale0402/futures-ob-replay/internal/wshub"
)

// sink fans a day's outcome out to every optional diagnostics backend that
// was successfully connected at startup.
type sink struct {
	telemetry *telemetry.Client
	audit     *audit.Client
	hub       *wshub.Hub
	metrics   *metrics.ReplayMetrics
}

func (s *sink) RecordDayResult(instrument, date string, rows int, accuracy float64, failed bool) {
	s.metrics.RecordDayResult(instrument, date, rows, accuracy, 0, 0, failed)

	if s.telemetry != nil {
		if err := s.telemetry.RecordDayResult(instrument, date, rows, accuracy, failed); err != nil {
			log.Printf("%stelemetry record failed: %v%s", logctx.Yellow, err, logctx.Reset)
		}
	}
	if s.audit != nil {
		if err := s.audit.InsertDaySummary(audit.DaySummary{
			Instrument: instrument, Date: date, Rows: rows, Accuracy: accuracy, Failed: failed,
		}); err != nil {
			log.Printf("%saudit archive failed: %v%s", logctx.Yellow, err, logctx.Reset)
		}
	}
	if s.hub != nil {
		s.hub.BroadcastProgress(instrument, map[string]interface{}{
			"date": date, "rows": rows, "accuracy": accuracy, "failed": failed,
		})
	}
}

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	log.Printf("futures order-book replay starting: source=%s exchange=%s dest=%s",
		cfg.Replay.SourceDir, cfg.Replay.ExchangeID, cfg.Replay.DestinationDir)

	coord, err := coordinator.New(cfg.Replay)
	if err != nil {
		log.Fatalf("coordinator: %v", err)
	}
	log.Printf("discovered %d replay dates", len(coord.Dates()))

	replayMetrics := metrics.Default()
	s := &sink{metrics: replayMetrics}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(replayMetrics.Registry(), promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		log.Printf("metrics server listening on %s", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("%smetrics server error: %v%s", logctx.Yellow, err, logctx.Reset)
		}
	}()
	defer metricsServer.Close()

	if tc, err := telemetry.NewClient(cfg.Redis.Addr, cfg.Redis.Password); err != nil {
		log.Printf("%stelemetry sink unavailable, continuing without it: %v%s", logctx.Yellow, err, logctx.Reset)
		httpsrv.SetTelemetryHealthy(false)
	} else {
		s.telemetry = tc
		defer tc.Close()

		subMgr := subscription.NewManager(coord, tc, "replay:universe:override", 30*time.Second)
		if err := subMgr.Start(); err != nil {
			log.Printf("%suniverse override poller failed to start: %v%s", logctx.Yellow, err, logctx.Reset)
		} else {
			defer subMgr.Stop()
		}
	}

	if ac, err := audit.NewClient(cfg.Mongo.URI, cfg.Mongo.Database); err != nil {
		log.Printf("%saudit archive unavailable, continuing without it: %v%s", logctx.Yellow, err, logctx.Reset)
	} else {
		s.audit = ac
		defer ac.Close()
	}

	hub := wshub.NewHub()
	go hub.Run()
	s.hub = hub

	dashboardMux := http.NewServeMux()
	dashboardMux.HandleFunc("/ws", hub.ServeWs)
	dashboardServer := &http.Server{Addr: cfg.Dashboard.Addr, Handler: dashboardMux}
	go func() {
		log.Printf("dashboard server listening on %s", cfg.Dashboard.Addr)
		if err := dashboardServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("%sdashboard server error: %v%s", logctx.Yellow, err, logctx.Reset)
		}
	}()
	defer dashboardServer.Close()

	coord.Sink = s

	httpDone := make(chan struct{})
	httpStop := make(chan struct{})
	go httpsrv.StartHTTPServer(cfg.Health.Addr, httpDone, httpStop)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("received shutdown signal, finishing current day before exit...")
		cancel()
	}()

	runErr := coord.Run(ctx)
	httpsrv.SetCoordinatorHealthy(runErr == nil)

	if err := coord.Close(); err != nil {
		log.Printf("%serror closing output writers: %v%s", logctx.Red, err, logctx.Reset)
	}

	close(httpStop)
	<-httpDone

	if runErr != nil {
		log.Fatalf("replay run ended: %v", runErr)
	}
	log.Println("replay complete")
}
