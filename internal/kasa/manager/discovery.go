package manager

import (
	"net"
	"time"

	"github.com/homekasa/kasad/internal/kasa/device"
	"github.com/homekasa/kasad/internal/kasa/protocol"
)

// broadcastSweepLocked sends a sense message to every configured
// broadcast target, including the implicit INADDR_BROADCAST. m.mu
// must be held.
func (m *Manager) broadcastSweepLocked() {
	payload, err := protocol.Sense()
	if err == nil {
		payload, err = protocol.Encode(payload)
	}
	if err != nil {
		m.logger.Error("composing broadcast sense failed", "error", err)
		return
	}
	for _, tgt := range m.broadcastTargets {
		if tgt.Addr == nil {
			continue
		}
		_ = m.transport.SendTo(payload, tgt.Addr)
	}
}

// probeSweepLocked directed-senses any device whose lastSense is
// stale. m.mu must be held.
func (m *Manager) probeSweepLocked(now time.Time) {
	m.table.Each(func(_ int, rec *device.Record) {
		if rec.Addr == nil {
			return
		}
		if !rec.LastSense.IsZero() && rec.LastSense.After(now.Add(-m.timings.ProbeStaleAfter)) {
			return
		}
		m.sendSenseLocked(rec)
		rec.LastSense = now
	})
}

// silenceSweepLocked transitions devices quiet for SilenceAfter or
// longer to silent. m.mu must be held.
func (m *Manager) silenceSweepLocked(now time.Time) {
	m.table.Each(func(_ int, rec *device.Record) {
		if rec.Detected.IsZero() {
			return
		}
		if rec.Detected.After(now.Add(-m.timings.SilenceAfter)) {
			return
		}
		m.emit("SILENT", rec.Name, "")
		m.resetLocked(rec, false)
		rec.Detected = time.Time{}
	})
}

func (m *Manager) sendSenseLocked(rec *device.Record) {
	if rec.Addr == nil {
		return
	}
	payload, err := protocol.Sense()
	if err == nil {
		payload, err = protocol.Encode(payload)
	}
	if err != nil {
		m.logger.Error("composing directed sense failed", "error", err)
		return
	}
	_ = m.transport.SendTo(payload, rec.Addr)
}

// handleSysinfo ingests a decoded get_sysinfo reply, one control point
// per child outlet when a children array is present.
func (m *Manager) handleSysinfo(addr *net.UDPAddr, info *protocol.Sysinfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()

	if len(info.Children) > 0 {
		for _, c := range info.Children {
			m.ingestLocked(addr, now, info.DeviceID, c.ID, c.Alias, info.Model, c.State)
		}
		return
	}
	m.ingestLocked(addr, now, info.DeviceID, "", info.Alias, info.Model, info.RelayState)
}

func (m *Manager) ingestLocked(addr *net.UDPAddr, now time.Time, deviceID, childID, alias, model string, status bool) {
	idx, ok := m.table.FindByID(deviceID, childID)
	isNew := false
	if !ok {
		newIdx, err := m.table.Add(device.Record{
			Name:     alias,
			DeviceID: deviceID,
			ChildID:  childID,
			Model:    model,
		})
		if err != nil {
			m.logger.Warn("dropping newly seen device", "device_id", deviceID, "child_id", childID, "error", err)
			return
		}
		idx = newIdx
		isNew = true
	}

	rec, err := m.table.At(idx)
	if err != nil {
		return
	}

	rec.Addr = addr
	if rec.Model == "" {
		rec.Model = model
	}

	if isNew {
		// A newly sighted child outlet gets DISCOVERED only: Detected is
		// pre-set so statusUpdateLocked sees a non-silent record and does
		// not also fire DETECTED. A single-outlet device falls through
		// still silent and gets both.
		if childID != "" {
			rec.Detected = now
		}
		m.deviceListChanged.Store(true)
		m.emit("DISCOVERED", rec.Name, rec.Key().DeviceID+rec.Key().ChildID)
	}

	m.statusUpdateLocked(rec, status, now)
}

// handleSetRelayAck correlates a set-relay acknowledgement by sender
// address and issues an immediate directed sense. The ack alone
// carries neither child identity nor final state, so confirmation
// waits for the sysinfo reply that sense provokes.
func (m *Manager) handleSetRelayAck(addr *net.UDPAddr) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.table.FindByAddress(addr)
	if !ok {
		return
	}
	rec, err := m.table.At(idx)
	if err != nil {
		return
	}

	m.sendSenseLocked(rec)
	rec.LastSense = m.clock()
}
