// sentinel: site-safety monitor server.
// Runs the monitoring loop (simulated crew or upstream ingest), keeps the
// incident log, and serves the dashboard API and live feed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/sentinel/internal/config"
	"github.com/teslashibe/sentinel/internal/log"
	"github.com/teslashibe/sentinel/pkg/agent"
	"github.com/teslashibe/sentinel/pkg/compliance"
	"github.com/teslashibe/sentinel/pkg/events"
	"github.com/teslashibe/sentinel/pkg/hub"
	"github.com/teslashibe/sentinel/pkg/incident"
	"github.com/teslashibe/sentinel/pkg/ingest"
	"github.com/teslashibe/sentinel/pkg/metrics"
	"github.com/teslashibe/sentinel/pkg/monitor"
	"github.com/teslashibe/sentinel/pkg/scenario"
	"github.com/teslashibe/sentinel/pkg/storage/sqlite"
	"github.com/teslashibe/sentinel/pkg/timeline"
	"github.com/teslashibe/sentinel/pkg/web"
)

var (
	version   = "0.1.0"
	staticDir = flag.String("static", "", "Directory of dashboard assets to serve at /")
	paused    = flag.Bool("paused", false, "Start with analysis stopped")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("sentinel exited", "error", err)
		os.Exit(1)
	}
	log.Info("goodbye")
}

func run(ctx context.Context, cfg config.Config) error {
	log.Info("starting sentinel", "version", version, "source", cfg.Source, "port", cfg.Port)

	m := metrics.New()

	storeOpts := []incident.Option{
		incident.WithCap(cfg.IncidentCap),
		incident.WithLogger(log.Component("incident")),
	}
	if cfg.DatabasePath != "" {
		db, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()
		storeOpts = append(storeOpts, incident.WithRepository(sqlite.NewIncidentRepository(db)))
		log.Info("incident persistence enabled", "path", cfg.DatabasePath)
	}
	store := incident.NewStore(storeOpts...)
	if err := store.Load(ctx); err != nil {
		return err
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log.Component("events"))
		if err != nil {
			return err
		}
		publisher = kp
		log.Info("incident stream enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	defer publisher.Close()

	mon := monitor.New(monitor.Config{
		Evaluator: compliance.NewEvaluator(compliance.NewSeededConfidence(cfg.Seed)),
		Incidents: store,
		Timeline:  timeline.NewLog(cfg.TimelineCap),
		Publisher: publisher,
		Recorder:  m,
		Logger:    log.Component("monitor"),
	})

	feedHub := hub.New("feed", log.L())
	feedHub.OnClientCount(m.SetFeedClients)
	go feedHub.Run(ctx)

	runnerOpts := []agent.Option{
		agent.WithRecorder(m),
		agent.WithLogger(log.L()),
	}
	if cfg.Source == config.SourceSimulation {
		runnerOpts = append(runnerOpts, agent.WithGenerator(scenario.NewRandomWalk(cfg.Seed)))
	}
	runner := agent.NewRunner(mon, feedHub, runnerOpts...)
	if *paused {
		runner.Stop()
	}

	deps := web.Deps{
		Monitor: mon,
		Feed:    feedHub,
		Control: runner,
		Metrics: m.Handler(),
	}
	if cfg.Source == config.SourceIngest {
		in := ingest.NewHub(mon, m, log.L())
		in.OnApplied(func(_ string, _ monitor.Summary, elapsed time.Duration) {
			runner.Observed(elapsed)
			runner.Publish()
		})
		deps.Ingest = in
	}

	srv := web.NewServer(web.Config{
		Port:      cfg.Port,
		StaticDir: *staticDir,
		Logger:    log.L(),
	}, deps)

	go func() {
		if err := runner.Run(ctx, cfg.TickInterval); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("runner stopped", "error", err)
		}
	}()

	return srv.Run(ctx)
}
