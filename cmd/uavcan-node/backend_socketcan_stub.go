//go:build !linux

package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kstaniek/go-uavcan-node/internal/hub"
	"github.com/kstaniek/go-uavcan-node/internal/node"
)

// initSocketCANBackend is unavailable outside Linux; SocketCAN is a
// Linux-kernel facility with no portable equivalent.
func initSocketCANBackend(ctx context.Context, cfg *appConfig, nd *node.Node, h *hub.Hub, l *slog.Logger, wg *sync.WaitGroup) (node.CANDriver, func(), error) {
	return nil, func() {}, errors.New("socketcan backend not available on this platform")
}
