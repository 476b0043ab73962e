// analyze: submits a recorded video for offline analysis, waits for the
// per-frame detections, then replays them through the monitor to produce
// the incident log for the recording.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/teslashibe/sentinel/internal/config"
	"github.com/teslashibe/sentinel/internal/log"
	"github.com/teslashibe/sentinel/pkg/analysis"
	"github.com/teslashibe/sentinel/pkg/compliance"
	"github.com/teslashibe/sentinel/pkg/metrics"
	"github.com/teslashibe/sentinel/pkg/monitor"
	"github.com/teslashibe/sentinel/pkg/playback"
	"github.com/teslashibe/sentinel/pkg/site"
)

var (
	file = flag.String("file", "", "Video file to upload (required)")
	rate = flag.Float64("rate", 8, "Replay speed as a multiple of real time")
)

func main() {
	flag.Parse()
	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: analyze -file <video>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error("analysis failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	m := metrics.New()
	opts := []analysis.Option{
		analysis.WithBaseURL(cfg.AnalysisURL),
		analysis.WithInterval(cfg.PollInterval),
		analysis.WithMaxAttempts(cfg.PollMaxAttempts),
		analysis.WithObserver(m),
		analysis.WithLogger(log.Component("analysis")),
	}
	poller := analysis.NewPoller(analysis.NewHTTPBackend(opts...), opts...)
	poller.OnChange(func(t analysis.Task) {
		log.Info("task", "id", t.ID, "status", t.State, "progress", t.Progress)
	})

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := poller.Submit(ctx, analysis.Upload{Filename: filepath.Base(*file), Body: f}); err != nil {
		return err
	}
	if err := poller.Run(ctx); err != nil {
		if analysis.IsTerminalFailure(err) {
			return fmt.Errorf("server could not process %s: %w", *file, err)
		}
		return err
	}

	result := poller.Task().Result
	if result == nil {
		return errors.New("task completed without a result")
	}
	log.Info("analysis complete",
		"frames", result.Metadata.TotalFrames,
		"duration", result.Metadata.Duration,
		"fps", result.Metadata.FPS)

	return replay(ctx, result, m)
}

// replay drives the monitor from the detections at the chosen speed.
func replay(ctx context.Context, result *analysis.Result, m *metrics.Metrics) error {
	sync, err := playback.NewSynchronizer(result.Frames)
	if err != nil {
		return err
	}
	if sync.Len() == 0 {
		log.Warn("no frames to replay")
		return nil
	}

	mon := monitor.New(monitor.Config{
		Evaluator: compliance.NewEvaluator(compliance.NewSeededConfidence(1)),
		Recorder:  m,
		Logger:    log.Component("monitor"),
	})
	sink := playback.SinkFunc(func(ctx context.Context, workers []site.WorkerSnapshot) error {
		_, err := mon.Update(ctx, workers)
		return err
	})
	player := playback.NewPlayer(sync, playback.NewClock(*rate), sink, log.Component("playback"))

	wall := time.Duration(sync.Duration()/(*rate)*float64(time.Second)) + time.Second
	playCtx, cancel := context.WithTimeout(ctx, wall)
	defer cancel()
	if err := player.Run(playCtx, playback.DefaultTickInterval); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	incidents := mon.Incidents().List()
	fmt.Printf("\n%d incident(s) in %s\n", len(incidents), *file)
	for _, inc := range incidents {
		fmt.Printf("  %s  %-8s %-15s %-6s %.2f  %s\n",
			inc.Timestamp.Format(time.TimeOnly), inc.WorkerID, inc.Type, inc.Severity, inc.Confidence, inc.Details)
	}
	return nil
}
