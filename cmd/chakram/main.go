package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	sloggger "github.com/chakramx/chakram/cmd/chakram/log"
	"github.com/chakramx/chakram/internal/config"
	"github.com/chakramx/chakram/internal/controller"
	"github.com/chakramx/chakram/internal/event"
	"github.com/chakramx/chakram/internal/server"
	"github.com/chakramx/chakram/internal/trace"
	"github.com/chakramx/chakram/internal/utils"
)

var (
	buildID   string
	buildTime string
)

const (
	configDir   = "config"
	templateDir = "config/template"
)

// wrapWithRecover wraps a function with panic recovery logic
func wrapWithRecover(logger *slog.Logger, f func() error) func() error {
	return func() error {
		defer func() {
			if r := recover(); r != nil {
				stackTrace := debug.Stack()
				errMsg := fmt.Sprintf("panic recovered: %v\nStacktrace: %s", r, stackTrace)
				logger.Error(errMsg)
				sloggger.FlushLog()
			}
		}()
		return f()
	}
}

func main() {
	cfgPath := filepath.Join(configDir, config.FileName)

	// First run after the desktop editor: carry its settings over.
	imported := false
	if home, err := os.UserHomeDir(); err == nil {
		imported, err = config.MigrateLegacy(cfgPath, config.LegacyPath(home))
		if err != nil {
			utils.ShowDialog("Error importing legacy configuration", err.Error())
			log.Fatalf("Error importing legacy configuration: %s", err.Error())
		}
	}

	copied, err := config.EnsureConfigDir(configDir, templateDir)
	if err != nil {
		utils.ShowDialog("Error preparing configuration", err.Error())
		log.Fatalf("Error preparing configuration: %s", err.Error())
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		utils.ShowDialog("Error loading configuration", err.Error())
		log.Fatalf("Error loading configuration: %s", err.Error())
	}

	logger, err := sloggger.NewLogger(cfg.Debug.Log, cfg.LogSaveDirectory, "")
	if err != nil {
		log.Fatalf("Error starting logger: %s", err.Error())
	}
	defer sloggger.FlushAndClose()

	logger.Info("Chakram starting",
		slog.String("version", config.Version),
		slog.String("build", buildID),
		slog.String("buildTime", buildTime),
		slog.Bool("newConfig", copied),
		slog.Bool("legacyImported", imported))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fatal error detected, Chakram will close with the following error: %v\n Stacktrace: %s", r, debug.Stack())
			logger.Error(err.Error())
			sloggger.FlushAndClose()
			utils.ShowDialog("Chakram error :(", fmt.Sprintf("Chakram will close due to an unexpected error, please check the latest log file for more info!\n %s", err.Error()))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	devs, err := openDevices(logger, cfg)
	if err != nil {
		utils.ShowDialog("Error opening input devices", err.Error())
		logger.Error("Error opening input devices", slog.Any("error", err))
		return
	}

	defer func() {
		if err := devs.Close(); err != nil {
			logger.Warn("error closing input source", slog.Any("error", err))
		}
	}()

	eventListener := event.NewListener(logger)
	opts := devs.options()

	var store *trace.Store
	var recorder *trace.Recorder
	if cfg.Trace.Enabled {
		rec, s, err := startTrace(ctx, logger, cfg)
		if err != nil {
			logger.Error("Trace recording disabled", slog.Any("error", err))
		} else {
			store, recorder = s, rec
			opts.Tracer = recorder
			eventListener.Register(recorder.HandleEvent)
			g.Go(wrapWithRecover(logger, func() error {
				return recorder.Run(ctx)
			}))
		}
	}

	ctrl, err := controller.New(logger, cfg, opts)
	if err != nil {
		logger.Error("Error creating controller", slog.Any("error", err))
		return
	}

	if cfg.Telemetry.Enabled {
		srv := server.New(logger, ctrl, func() (*config.Config, error) {
			return config.Load(cfgPath)
		}, utils.Seconds(cfg.Telemetry.PushInterval))
		eventListener.Register(srv.HandleEvent)
		server.LaunchStatsview(logger, cfg.Telemetry.Statsview)

		g.Go(wrapWithRecover(logger, func() error {
			return srv.Listen(ctx, cfg.Telemetry.Port)
		}))
	}

	g.Go(wrapWithRecover(logger, func() error {
		defer cancel()
		return ctrl.Run(ctx)
	}))

	g.Go(wrapWithRecover(logger, func() error {
		defer cancel()
		return eventListener.Listen(ctx)
	}))

	g.Go(wrapWithRecover(logger, func() error {
		<-ctx.Done()
		logger.Info("Chakram shutting down...")
		return nil
	}))

	err = g.Wait()
	// Run releases held keys on its way out; this covers a panic that skipped it.
	if n := ctrl.ReleaseAll(); n > 0 {
		logger.Warn("Released keys left held after shutdown", slog.Int("keys", n))
	}
	if recorder != nil {
		logger.Info("Trace session closed",
			slog.Int64("written", recorder.Written()),
			slog.Int64("dropped", recorder.Dropped()))
	}
	if store != nil {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("error closing trace store", slog.Any("error", closeErr))
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Error running Chakram", slog.Any("error", err))
		return
	}

	sloggger.FlushAndClose()
}

func startTrace(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*trace.Recorder, *trace.Store, error) {
	store, err := trace.Open(ctx, cfg.Trace.Path)
	if err != nil {
		return nil, nil, err
	}
	snapshot, err := yaml.Marshal(cfg)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("error encoding config for trace: %w", err)
	}
	session, err := store.BeginSession(ctx, time.Now(), string(snapshot))
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	logger.Info("Recording trace",
		slog.String("path", cfg.Trace.Path),
		slog.String("session", session.ID.String()))
	return trace.NewRecorder(logger, store, session, cfg.Trace.QueueSize, cfg.Trace.BatchSize), store, nil
}
