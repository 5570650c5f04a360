package transfer

import (
	"sync"
	"time"

	"github.com/kstaniek/go-uavcan-node/internal/frame"
)

// DefaultTimeout is the 1-second default staleness window recommended by
// §4.6 for RemoveInactiveTransfers.
const DefaultTimeout = 1 * time.Second

type pending struct {
	frames   []*frame.Frame
	lastSeen time.Time
}

// Manager buffers in-flight, not-yet-complete transfers keyed by
// transfer-key and times out stale partials. It is not safe to share
// across goroutines beyond the locking Manager itself provides; Node
// drives it from its single dispatch loop.
type Manager struct {
	mu     sync.Mutex
	active map[frame.Key]*pending
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{active: make(map[frame.Key]*pending)}
}

// ReceiveFrame appends f to its transfer's accumulated frame list. It
// returns the completed list (and removes the entry) when f is the
// terminating frame of its transfer; otherwise it returns nil.
func (m *Manager) ReceiveFrame(f *frame.Frame) []*frame.Frame {
	key := f.TransferKey()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.active[key]
	if !ok {
		e = &pending{}
		m.active[key] = e
	}
	e.frames = append(e.frames, f)
	e.lastSeen = time.Now()

	if f.LastFrame {
		frames := e.frames
		delete(m.active, key)
		return frames
	}
	return nil
}

// RemoveInactiveTransfers drops any buffered transfer whose most recently
// received frame is older than timeout. Callers invoke this periodically;
// the core does not run its own timer.
func (m *Manager) RemoveInactiveTransfers(timeout time.Duration) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, e := range m.active {
		if now.Sub(e.lastSeen) > timeout {
			delete(m.active, key)
		}
	}
}

// Active reports how many transfers are currently buffered, for metrics.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}
