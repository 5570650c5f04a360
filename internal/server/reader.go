package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/go-uavcan-node/internal/can"
	"github.com/kstaniek/go-uavcan-node/internal/hub"
	"github.com/kstaniek/go-uavcan-node/internal/metrics"
)

// acceptInbound forwards a frame a monitor client sent us to s.Send, when
// the server was wired with one. The bus monitor leaves Send nil: a
// UAVCAN node accepts frames only from its own CAN driver, never from an
// arbitrary TCP peer, so inbound client data is decoded (to keep the
// connection's framing honest) and then discarded.
func (s *Server) acceptInbound(fr can.Frame, logger *slog.Logger) {
	if s.frameFilter != nil && !s.frameFilter(&fr) {
		return
	}
	metrics.IncTCPRx()
	if s.Send == nil {
		return
	}
	if err := s.Send(fr); err != nil {
		s.totalBackendErrors.Add(1)
		logger.Error("backend_tx_error", "error", err, "can_id", fmt.Sprintf("0x%X", fr.CANID))
	}
}

func (s *Server) startReader(ctxDone <-chan struct{}, conn net.Conn, cl *hub.Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = conn.Close() }()
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))
			var count int
			if mfd, ok := s.Codec.(interface {
				DecodeN(io.Reader, int, func(can.Frame)) (int, error)
			}); ok {
				var err error
				count, err = mfd.DecodeN(conn, 16, func(fr can.Frame) { s.acceptInbound(fr, logger) })
				if err != nil {
					if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
						return
					}
					if ne, ok := err.(net.Error); ok && ne.Timeout() {
						continue
					}
					wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
					metrics.IncError(mapErrToMetric(wrap))
					s.setError(wrap)
					return
				}
			} else {
				fr, err := s.Codec.Decode(conn)
				if err != nil {
					if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
						return
					}
					if ne, ok := err.(net.Error); ok && ne.Timeout() {
						continue
					}
					wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
					metrics.IncError(mapErrToMetric(wrap))
					s.setError(wrap)
					return
				}
				s.acceptInbound(fr, logger)
				count = 1
			}
			if count == 0 {
				time.Sleep(100 * time.Microsecond)
			}
			select {
			case <-ctxDone:
				return
			default:
			}
		}
	}()
}
