package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kstaniek/go-uavcan-node/internal/hub"
	"github.com/kstaniek/go-uavcan-node/internal/node"
)

// initBackend selects the CAN backend, starts its RX loop and returns a
// CANDriver plus cleanup. It returns an error instead of exiting the
// process to allow graceful handling by the caller.
func initBackend(ctx context.Context, cfg *appConfig, nd *node.Node, h *hub.Hub, l *slog.Logger, wg *sync.WaitGroup) (node.CANDriver, func(), error) {
	switch cfg.backend {
	case "serial":
		return initSerialBackend(ctx, cfg, nd, h, l, wg)
	case "socketcan":
		return initSocketCANBackend(ctx, cfg, nd, h, l, wg)
	default:
		return nil, func() {}, fmt.Errorf("unknown backend %q (use serial|socketcan)", cfg.backend)
	}
}
