//go:build !statsview

package server

import "log/slog"

func LaunchStatsview(logger *slog.Logger, addr string) {
	if addr != "" {
		logger.Warn("statsview requested but this build has no statsview support", slog.String("addr", addr))
	}
}
