package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/kstaniek/go-uavcan-node/internal/cnl"
	"github.com/kstaniek/go-uavcan-node/internal/dsdl"
	"github.com/kstaniek/go-uavcan-node/internal/metrics"
	"github.com/kstaniek/go-uavcan-node/internal/node"
	"github.com/kstaniek/go-uavcan-node/internal/server"
	"github.com/kstaniek/go-uavcan-node/internal/transfer"
)

// Helper implementations moved to dedicated files: version.go, config.go,
// logger.go, hub_init.go, metrics_logger.go, backend.go, dtypes.go.

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("uavcan-node %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	types := node.NewTypeTable()
	types.RegisterMessage(nodeStatusType)
	types.RegisterService(getNodeInfoType)

	nd := node.New(node.Config{
		NodeID:         uint8(cfg.nodeID),
		Types:          types,
		NodeStatusType: nodeStatusType,
		Handlers: []node.Registration{
			node.Message(nodeStatusType, onPeerNodeStatus(l)),
			node.Service(getNodeInfoType, onGetNodeInfo(l)),
		},
	})
	nd.SetStatusCode(uint64(cfg.statusCode))

	h := initMonitorHub(cfg, l)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	driver, cleanup, berr := initBackend(ctx, cfg, nd, h, l, &wg)
	if berr != nil {
		l.Error("backend_init_error", "error", berr)
		return
	}
	nd.SetDriver(driver)

	wg.Add(1)
	go func() { defer wg.Done(); nd.RunHeartbeat(ctx) }()
	wg.Add(1)
	go func() { defer wg.Done(); nd.RunTransferPurge(ctx, cfg.purgeInterval, cfg.transferTimeout) }()

	var srv *server.Server
	if cfg.monitorAddr != "" {
		srv = server.NewServer(
			server.WithHub(h),
			server.WithCodec(&cnl.Codec{}),
			server.WithLogger(l),
			server.WithMaxClients(cfg.maxClients),
			server.WithHandshakeTimeout(cfg.handshakeTO),
			server.WithReadDeadline(cfg.clientReadTO),
		)
		srv.SetListenAddr(cfg.monitorAddr)
		go func() {
			if err := srv.Serve(ctx); err != nil {
				l.Error("tcp_server_error", "error", err)
				cancel()
			}
		}()

		// Start mDNS advertisement once listener is ready.
		go func() {
			if !cfg.mdnsEnable {
				return
			}
			select {
			case <-srv.Ready():
			case <-ctx.Done():
				return
			}
			addr := srv.Addr()
			var portNum int
			if _, p, err := net.SplitHostPort(addr); err == nil {
				if pn, perr := strconv.Atoi(p); perr == nil {
					portNum = pn
				}
			}
			if portNum == 0 {
				lastColon := strings.LastIndex(addr, ":")
				if lastColon >= 0 {
					if pn, perr := strconv.Atoi(addr[lastColon+1:]); perr == nil {
						portNum = pn
					}
				}
			}
			cleanupMDNS, err := startMDNS(ctx, cfg, portNum)
			if err != nil {
				l.Warn("mdns_start_failed", "error", err)
				return
			}
			l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", portNum)
			go func() { <-ctx.Done(); cleanupMDNS() }()
		}()
	}

	metrics.SetReadinessFunc(func() bool {
		if srv == nil {
			return ctx.Err() == nil
		}
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	cleanup()
	if srv != nil {
		_ = srv.Shutdown(context.Background())
	}
	wg.Wait()
}

// onPeerNodeStatus logs a peer's heartbeat; Node already maintains the
// per-peer cache queried through Node.NodeStatus.
func onPeerNodeStatus(l *slog.Logger) func(*dsdl.CompoundValue, *transfer.Transfer, *node.Node) {
	return func(msg *dsdl.CompoundValue, tr *transfer.Transfer, n *node.Node) {
		status, _ := msg.Uint("status_code")
		uptime, _ := msg.Uint("uptime_sec")
		l.Debug("peer_node_status", "source", tr.SourceNodeID, "uptime_sec", uptime, "status_code", status)
	}
}

// onGetNodeInfo answers uavcan.protocol.GetNodeInfo requests with software
// version 1.0 and a nested NodeStatus whose fields are all zero; the name
// field is left empty.
func onGetNodeInfo(l *slog.Logger) func(h *node.ServiceHandler) {
	return func(h *node.ServiceHandler) {
		resp := h.Response
		if resp == nil {
			return
		}
		if err := resp.SetUint("software_version_major", 1); err != nil {
			l.Warn("get_node_info_field_error", "field", "software_version_major", "error", err)
		}
		if err := resp.SetUint("software_version_minor", 0); err != nil {
			l.Warn("get_node_info_field_error", "field", "software_version_minor", "error", err)
		}
		status, err := resp.Compound("status")
		if err != nil {
			l.Warn("get_node_info_field_error", "field", "status", "error", err)
			return
		}
		_ = status.SetUint("uptime_sec", 0)
		_ = status.SetUint("status_code", 0)
		_ = status.SetUint("vendor_specific_status_code", 0)
	}
}
