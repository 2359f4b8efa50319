// Command chakram-replay re-runs a recorded session through the controller
// with a dry-run sink, to evaluate a configuration offline.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sync/errgroup"

	"github.com/chakramx/chakram/internal/event"
	"github.com/chakramx/chakram/internal/trace"
)

func main() {
	var (
		tracePath  = flag.String("trace", "traces/chakram.db", "trace database")
		sessionID  = flag.String("session", "", "session to replay (default newest)")
		configPath = flag.String("config", "", "config file to replay with (default the recorded one)")
		list       = flag.Bool("list", false, "list recorded sessions and exit")
		purge      = flag.Bool("purge", false, "delete every recorded session and exit")
		verbose    = flag.Bool("v", false, "log every injected action")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := trace.Open(ctx, *tracePath)
	if err != nil {
		log.Fatalf("Error opening trace: %s", err.Error())
	}
	defer store.Close()

	if *purge {
		if err := store.Purge(ctx); err != nil {
			log.Fatalf("Error purging trace: %s", err.Error())
		}
		logger.Warn("Trace purged", slog.String("path", *tracePath))
		return
	}

	if *list {
		sessions, err := store.Sessions(ctx)
		if err != nil {
			log.Fatalf("Error listing sessions: %s", err.Error())
		}
		if err := printSessions(os.Stdout, sessions); err != nil {
			log.Fatalf("Error writing sessions: %s", err.Error())
		}
		return
	}

	session, err := pickSession(ctx, store, *sessionID)
	if err != nil {
		log.Fatalf("Error selecting session: %s", err.Error())
	}
	cfg, err := sessionConfig(session, *configPath)
	if err != nil {
		log.Fatalf("Error loading configuration: %s", err.Error())
	}

	// Controller events are drained and logged so the queue never fills up.
	listenCtx, cancel := context.WithCancel(ctx)
	g, listenCtx := errgroup.WithContext(listenCtx)
	listener := event.NewListener(logger)
	listener.Register(func(_ context.Context, e event.Event) error {
		logger.Debug(e.Message(), slog.String("event", e.Kind()), slog.Time("at", e.OccurredAt()))
		return nil
	})
	g.Go(func() error {
		return listener.Listen(listenCtx)
	})

	sum, err := replay(ctx, logger, store, session, cfg)
	cancel()
	if waitErr := g.Wait(); waitErr != nil {
		logger.Warn("event listener stopped", slog.Any("error", waitErr))
	}
	if err != nil {
		log.Fatalf("Error replaying session: %s", err.Error())
	}
	printSummary(os.Stdout, sum)
}
