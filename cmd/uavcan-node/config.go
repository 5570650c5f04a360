package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	nodeID     int
	statusCode int

	backend      string
	serialDev    string
	baud         int
	serialReadTO time.Duration
	canIf        string

	monitorAddr string

	logFormat       string
	logLevel        string
	metricsAddr     string
	hubBuffer       int
	hubPolicy       string
	logMetricsEvery time.Duration
	maxClients      int
	handshakeTO     time.Duration
	clientReadTO    time.Duration
	mdnsEnable      bool
	mdnsName        string

	transferTimeout time.Duration
	purgeInterval   time.Duration
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	nodeID := flag.Int("node-id", 0, "This node's UAVCAN node ID, 1-127 (0 = anonymous)")
	statusCode := flag.Int("status-code", 0, "status_code reported in the NodeStatus heartbeat")
	backend := flag.String("backend", "socketcan", "CAN backend: serial|socketcan")
	serialDev := flag.String("serial", "/dev/ttyUSB0", "Serial device path")
	baud := flag.Int("baud", 115200, "Serial baud rate")
	serialReadTO := flag.Duration("serial-read-timeout", 50*time.Millisecond, "Serial read timeout")
	canIf := flag.String("can-if", "can0", "SocketCAN interface (when --backend=socketcan)")
	monitorAddr := flag.String("monitor-addr", "", "Bus monitor TCP listen address (e.g., :20000); empty disables")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	hubBuf := flag.Int("hub-buffer", 512, "Per-monitor-client buffer (frames)")
	hubPolicy := flag.String("hub-policy", "drop", "Monitor backpressure policy: drop|kick")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters")
	maxClients := flag.Int("max-clients", 0, "Maximum simultaneous monitor clients (0 = unlimited)")
	handshakeTO := flag.Duration("handshake-timeout", 3*time.Second, "Monitor client handshake timeout")
	clientReadTO := flag.Duration("client-read-timeout", 60*time.Second, "Per-monitor-connection read deadline")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS advertisement of the bus monitor endpoint")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default uavcan-node-<hostname>)")
	transferTimeout := flag.Duration("transfer-timeout", time.Second, "Reassembly timeout for an in-flight multi-frame transfer")
	purgeInterval := flag.Duration("transfer-purge-interval", 200*time.Millisecond, "How often stale in-flight transfers are purged")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.nodeID = *nodeID
	cfg.statusCode = *statusCode
	cfg.backend = *backend
	cfg.serialDev = *serialDev
	cfg.baud = *baud
	cfg.serialReadTO = *serialReadTO
	cfg.canIf = *canIf
	cfg.monitorAddr = *monitorAddr
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.hubBuffer = *hubBuf
	cfg.hubPolicy = *hubPolicy
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.maxClients = *maxClients
	cfg.handshakeTO = *handshakeTO
	cfg.clientReadTO = *clientReadTO
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.transferTimeout = *transferTimeout
	cfg.purgeInterval = *purgeInterval

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or listeners, only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.nodeID < 0 || c.nodeID > 127 {
		return fmt.Errorf("node-id must be 0-127 (got %d)", c.nodeID)
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.backend {
	case "serial", "socketcan":
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	switch c.hubPolicy {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid hub-policy: %s", c.hubPolicy)
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("hub-buffer must be > 0 (got %d)", c.hubBuffer)
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	if c.handshakeTO <= 0 {
		return fmt.Errorf("handshake-timeout must be > 0")
	}
	if c.clientReadTO <= 0 {
		return fmt.Errorf("client-read-timeout must be > 0")
	}
	if c.maxClients < 0 {
		return fmt.Errorf("max-clients must be >= 0")
	}
	if c.transferTimeout <= 0 {
		return fmt.Errorf("transfer-timeout must be > 0")
	}
	if c.purgeInterval <= 0 {
		return fmt.Errorf("transfer-purge-interval must be > 0")
	}
	return nil
}

// applyEnvOverrides maps UAVCAN_NODE_* environment variables to config
// fields unless a corresponding flag was explicitly set (flag wins).
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	noteErr := func(name string, err error) {
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	if _, ok := set["node-id"]; !ok {
		if v, ok := get("UAVCAN_NODE_ID"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.nodeID = n
			} else {
				noteErr("UAVCAN_NODE_ID", err)
			}
		}
	}
	if _, ok := set["status-code"]; !ok {
		if v, ok := get("UAVCAN_NODE_STATUS_CODE"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.statusCode = n
			} else {
				noteErr("UAVCAN_NODE_STATUS_CODE", err)
			}
		}
	}
	if _, ok := set["backend"]; !ok {
		if v, ok := get("UAVCAN_NODE_BACKEND"); ok && v != "" {
			c.backend = v
		}
	}
	if _, ok := set["serial"]; !ok {
		if v, ok := get("UAVCAN_NODE_SERIAL"); ok && v != "" {
			c.serialDev = v
		}
	}
	if _, ok := set["baud"]; !ok {
		if v, ok := get("UAVCAN_NODE_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.baud = n
			} else if err != nil {
				noteErr("UAVCAN_NODE_BAUD", err)
			}
		}
	}
	if _, ok := set["serial-read-timeout"]; !ok {
		if v, ok := get("UAVCAN_NODE_SERIAL_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.serialReadTO = d
			} else if err != nil {
				noteErr("UAVCAN_NODE_SERIAL_READ_TIMEOUT", err)
			}
		}
	}
	if _, ok := set["can-if"]; !ok {
		if v, ok := get("UAVCAN_NODE_IF"); ok && v != "" {
			c.canIf = v
		}
	}
	if _, ok := set["monitor-addr"]; !ok {
		if v, ok := get("UAVCAN_NODE_MONITOR_ADDR"); ok {
			c.monitorAddr = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("UAVCAN_NODE_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("UAVCAN_NODE_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("UAVCAN_NODE_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["hub-buffer"]; !ok {
		if v, ok := get("UAVCAN_NODE_HUB_BUFFER"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.hubBuffer = n
			} else if err != nil {
				noteErr("UAVCAN_NODE_HUB_BUFFER", err)
			}
		}
	}
	if _, ok := set["hub-policy"]; !ok {
		if v, ok := get("UAVCAN_NODE_HUB_POLICY"); ok && v != "" {
			c.hubPolicy = v
		}
	}
	if _, ok := set["max-clients"]; !ok {
		if v, ok := get("UAVCAN_NODE_MAX_CLIENTS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				c.maxClients = n
			} else if err != nil {
				noteErr("UAVCAN_NODE_MAX_CLIENTS", err)
			}
		}
	}
	if _, ok := set["handshake-timeout"]; !ok {
		if v, ok := get("UAVCAN_NODE_HANDSHAKE_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.handshakeTO = d
			} else if err != nil {
				noteErr("UAVCAN_NODE_HANDSHAKE_TIMEOUT", err)
			}
		}
	}
	if _, ok := set["client-read-timeout"]; !ok {
		if v, ok := get("UAVCAN_NODE_CLIENT_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.clientReadTO = d
			} else if err != nil {
				noteErr("UAVCAN_NODE_CLIENT_READ_TIMEOUT", err)
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("UAVCAN_NODE_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("UAVCAN_NODE_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("UAVCAN_NODE_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil {
				noteErr("UAVCAN_NODE_LOG_METRICS_INTERVAL", err)
			}
		}
	}
	if _, ok := set["transfer-timeout"]; !ok {
		if v, ok := get("UAVCAN_NODE_TRANSFER_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.transferTimeout = d
			} else if err != nil {
				noteErr("UAVCAN_NODE_TRANSFER_TIMEOUT", err)
			}
		}
	}
	if _, ok := set["transfer-purge-interval"]; !ok {
		if v, ok := get("UAVCAN_NODE_TRANSFER_PURGE_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.purgeInterval = d
			} else if err != nil {
				noteErr("UAVCAN_NODE_TRANSFER_PURGE_INTERVAL", err)
			}
		}
	}
	return firstErr
}
