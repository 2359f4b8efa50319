//go:build statsview

package server

import (
	"log/slog"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
)

// LaunchStatsview serves runtime charts on addr under /debug/statsview.
func LaunchStatsview(logger *slog.Logger, addr string) {
	if addr == "" {
		return
	}
	go func() {
		viewer.SetConfiguration(viewer.WithAddr(addr))
		mgr := statsview.New()
		mgr.Start()
	}()
	logger.Info("Stats server available", slog.String("url", "http://"+addr+"/debug/statsview"))
}
