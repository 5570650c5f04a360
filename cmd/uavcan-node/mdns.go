package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
)

// startMDNS registers the bus monitor's TCP endpoint via mDNS and returns a
// cleanup function. Safe to call even if disabled (no-op). The node itself
// is not addressable over IP; only the diagnostic monitor port is advertised.
const mdnsServiceType = "_uavcan-monitor._tcp"

func startMDNS(ctx context.Context, cfg *appConfig, port int) (func(), error) {
	if !cfg.mdnsEnable {
		return func() {}, nil
	}
	instance := cfg.mdnsName
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("uavcan-node-%s", host)
	}
	meta := []string{
		"backend=" + cfg.backend,
		"node-id=" + strconv.Itoa(cfg.nodeID),
		"version=" + version,
		"commit=" + commit,
	}
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", port, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}
