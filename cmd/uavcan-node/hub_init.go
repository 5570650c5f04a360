package main

import (
	"log/slog"

	"github.com/kstaniek/go-uavcan-node/internal/hub"
)

// initMonitorHub builds the fanout hub the bus monitor's TCP server
// broadcasts raw frames through; it carries no UAVCAN semantics of its own.
func initMonitorHub(cfg *appConfig, l *slog.Logger) *hub.Hub {
	h := hub.New()
	h.OutBufSize = cfg.hubBuffer
	switch cfg.hubPolicy {
	case "drop":
		h.Policy = hub.PolicyDrop
	case "kick":
		h.Policy = hub.PolicyKick
	default:
		l.Warn("unknown_hub_policy", "policy", cfg.hubPolicy, "used", "drop")
		h.Policy = hub.PolicyDrop
	}
	policyStr := map[hub.BackpressurePolicy]string{hub.PolicyDrop: "drop", hub.PolicyKick: "kick"}[h.Policy]
	l.Info("build_info", "version", version, "commit", commit, "date", date)
	l.Info("monitor_hub_config", "policy", policyStr, "buffer", h.OutBufSize)
	return h
}
