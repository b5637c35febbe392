package manager

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/homekasa/kasad/internal/kasa/device"
	"github.com/homekasa/kasad/internal/kasa/protocol"
)

// Transport is the sending half of the UDP transport this package
// depends on, satisfied by *transport.Transport. Reads reach the
// manager through HandleDatagram, wired by the caller via
// transport.SetHandler — Manager does not own the socket.
type Transport interface {
	SendTo(payload []byte, addr *net.UDPAddr) error
}

// Timings bundles the discovery and command cadence constants. All
// six are independent of one another; zero fields take the defaults
// noted below, which match the cadence Kasa devices are polled at in
// practice.
type Timings struct {
	TickInterval           time.Duration // default 1s
	BroadcastSweepInterval time.Duration // default 60s
	ProbeInterval          time.Duration // default 5s
	ProbeStaleAfter        time.Duration // default 35s
	SilenceAfter           time.Duration // default 100s
	CommandTimeout         time.Duration // default 5s
}

func (t Timings) withDefaults() Timings {
	if t.TickInterval == 0 {
		t.TickInterval = time.Second
	}
	if t.BroadcastSweepInterval == 0 {
		t.BroadcastSweepInterval = 60 * time.Second
	}
	if t.ProbeInterval == 0 {
		t.ProbeInterval = 5 * time.Second
	}
	if t.ProbeStaleAfter == 0 {
		t.ProbeStaleAfter = 35 * time.Second
	}
	if t.SilenceAfter == 0 {
		t.SilenceAfter = 100 * time.Second
	}
	if t.CommandTimeout == 0 {
		t.CommandTimeout = 5 * time.Second
	}
	return t
}

// Options configures a new Manager.
type Options struct {
	Table     *device.Table
	Transport Transport
	Logger    Logger
	Timings   Timings

	// OnEvent, if set, receives every event the manager emits, in
	// addition to the log line it always writes.
	OnEvent func(Event)

	// Clock stands in for time.Now in tests; nil means time.Now.
	Clock func() time.Time
}

// Manager owns the device table and drives discovery, sensing, and
// the per-device command cycle. One mutex guards the table: Manager is
// the only component that locks, and every other package in this
// module reaches the table only through Manager's exported methods.
//
// Thread Safety: all methods are safe for concurrent use.
type Manager struct {
	table     *device.Table
	transport Transport
	logger    Logger
	onEvent   func(Event)
	clock     func() time.Time
	timings   Timings

	mu               sync.Mutex
	broadcastTargets []device.BroadcastTarget
	nextBroadcastAt  time.Time
	nextProbeAt      time.Time

	deviceListChanged atomic.Bool

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a Manager ready to accept datagrams and serve commands.
// Call Run to start the periodic tick.
func New(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Manager{
		table:     opts.Table,
		transport: opts.Transport,
		logger:    logger,
		onEvent:   opts.OnEvent,
		clock:     clock,
		timings:   opts.Timings.withDefaults(),
		done:      make(chan struct{}),
	}
}

// Run starts the tick loop (TickInterval, 1s by default) on its own
// goroutine. Stop to shut it down.
func (m *Manager) Run(ctx context.Context) {
	m.wg.Add(1)
	go m.tickLoop(ctx)
}

// Stop ends the tick loop. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
	})
}

func (m *Manager) tickLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.timings.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Tick runs one pass of the periodic loop: broadcast sweep (gated to
// BroadcastSweepInterval), silence detection, directed per-device
// probes (gated to ProbeInterval), and the retry/timeout/pulse-expiry
// sweep. The broadcast sweep and the directed probe run on independent
// timers; the command sweep runs every tick since its cadence falls
// naturally out of the pending and deadline windows rather than a
// separate gate.
func (m *Manager) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()

	if m.nextBroadcastAt.IsZero() || !now.Before(m.nextBroadcastAt) {
		m.broadcastSweepLocked()
		m.nextBroadcastAt = now.Add(m.timings.BroadcastSweepInterval)
	}

	m.silenceSweepLocked(now)

	if m.nextProbeAt.IsZero() || !now.Before(m.nextProbeAt) {
		m.probeSweepLocked(now)
		m.nextProbeAt = now.Add(m.timings.ProbeInterval)
	}

	m.commandSweepLocked(now)
}

// HandleDatagram decodes and dispatches one inbound UDP payload. Wire
// this to transport.Transport.SetHandler.
func (m *Manager) HandleDatagram(payload []byte, addr *net.UDPAddr) {
	plain := protocol.Decode(payload)

	if info, err := protocol.ParseSysinfo(plain); err == nil {
		m.handleSysinfo(addr, info)
		return
	}

	ok, err := protocol.ParseSetRelayAck(plain)
	if err != nil {
		m.logger.Warn("dropping malformed reply", "addr", addr.String(), "error", err)
		return
	}
	if ok {
		m.handleSetRelayAck(addr)
		return
	}

	m.logger.Warn("dropping unrecognized reply", "addr", addr.String())
}

// Count returns the number of allocated control points.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Count()
}

// Snapshot returns a copy of every device record, in table order, for
// read-only consumers such as the configuration bridge.
func (m *Manager) Snapshot() []device.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]device.Record, 0, m.table.Count())
	m.table.Each(func(_ int, rec *device.Record) {
		out = append(out, *rec)
	})
	return out
}

// ConsumeDeviceListChanged reports whether discovery has mutated the
// device set since the last call, clearing the flag. The configuration
// bridge polls this to decide when a re-save is due.
func (m *Manager) ConsumeDeviceListChanged() bool {
	return m.deviceListChanged.Swap(false)
}

// SetBroadcastTargets replaces the broadcast-target list, as rebuilt
// by the configuration bridge on each load or refresh.
func (m *Manager) SetBroadcastTargets(targets []device.BroadcastTarget) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcastTargets = targets
}

// BroadcastTargets returns the current broadcast-target list.
func (m *Manager) BroadcastTargets() []device.BroadcastTarget {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]device.BroadcastTarget, len(m.broadcastTargets))
	copy(out, m.broadcastTargets)
	return out
}

// EnsureDevice looks up seed's (DeviceID, ChildID) and, if absent,
// appends it — used by the configuration bridge to adopt devices from
// the persisted document. Unlike discovery's auto-add, this never
// raises DeviceListChanged: the device came from configuration, not
// autodetection.
func (m *Manager) EnsureDevice(seed device.Record) (idx int, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx, ok := m.table.FindByID(seed.DeviceID, seed.ChildID); ok {
		return idx, false
	}
	idx, err := m.table.Add(seed)
	if err != nil {
		m.logger.Warn("dropping device from configuration", "device_id", seed.DeviceID, "child_id", seed.ChildID, "error", err)
		return 0, false
	}
	return idx, true
}

// ResetLiveness zeroes Detected/Pending/Deadline on every record,
// ahead of a configuration refresh.
func (m *Manager) ResetLiveness() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table.ResetLiveness()
}
