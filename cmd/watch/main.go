// watch: follows a sentinel live feed from the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/sentinel/internal/config"
	"github.com/teslashibe/sentinel/internal/log"
	"github.com/teslashibe/sentinel/pkg/feed"
)

var url = flag.String("url", "", "Feed websocket URL (default FEED_URL)")

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)
	if *url == "" {
		*url = cfg.FeedURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := feed.NewConsumer()
	var lastIncident string
	consumer.OnUpdate(func(v feed.View) {
		if !v.Connected {
			log.Warn("feed offline, showing last state", "error", v.LastError, "workers", len(v.Workers))
			return
		}
		log.Info("feed",
			"status", v.Stats.SystemStatus,
			"workers", v.Stats.ActiveWorkers,
			"incidents", len(v.Incidents),
			"cpu", v.Stats.CPU,
			"latency_ms", v.Stats.Latency)
		if len(v.Incidents) > 0 && v.Incidents[0].ID != lastIncident {
			inc := v.Incidents[0]
			lastIncident = inc.ID
			log.Warn("incident", "worker", inc.WorkerID, "type", inc.Type, "severity", inc.Severity, "details", inc.Details)
		}
	})

	client := feed.NewClient(*url, consumer, feed.WithClientLogger(log.L()))
	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("watch stopped", "error", err)
		os.Exit(1)
	}
}
