package manager

import (
	"fmt"
	"time"

	"github.com/homekasa/kasad/internal/kasa/device"
	"github.com/homekasa/kasad/internal/kasa/protocol"
)

// Set drives idx toward state. pulse > 0 arms a deadline after which
// the device is driven back to off; pulse == 0 clears any existing
// deadline; pulse < 0 is rejected.
func (m *Manager) Set(idx int, state bool, pulse time.Duration, cause string) error {
	if pulse < 0 {
		return ErrInvalidPulse
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.table.At(idx)
	if err != nil {
		return err
	}
	m.setLocked(rec, state, pulse, cause)
	return nil
}

func (m *Manager) setLocked(rec *device.Record, state bool, pulse time.Duration, cause string) {
	now := m.clock()

	rec.Commanded = state
	rec.Pending = now.Add(m.timings.CommandTimeout)
	if pulse > 0 {
		rec.Deadline = now.Add(pulse)
	} else {
		rec.Deadline = time.Time{}
	}

	if !rec.Silent() {
		m.transmitSetLocked(rec, state)
	}

	detail := fmt.Sprintf("state=%v cause=%s", state, cause)
	if pulse > 0 {
		detail = fmt.Sprintf("%s pulse=%s", detail, pulse)
	}
	m.emit("SET", rec.Name, detail)
}

func (m *Manager) transmitSetLocked(rec *device.Record, state bool) {
	var payload []byte
	var err error
	if rec.ChildID == "" {
		payload, err = protocol.SetRelay(state)
	} else {
		payload, err = protocol.SetRelayChild(rec.DeviceID, rec.ChildID, state)
	}
	if err == nil {
		payload, err = protocol.Encode(payload)
	}
	if err != nil {
		m.logger.Error("composing set-relay command failed", "error", err)
		return
	}
	if rec.Addr == nil {
		return
	}
	_ = m.transport.SendTo(payload, rec.Addr)
}

// commandSweepLocked runs the per-device command tick: pulse expiry
// first, then status-mismatch reconciliation (retry or timeout). When
// both apply in the same tick, pulse expiry's new commanded value is
// what the mismatch check re-transmits.
func (m *Manager) commandSweepLocked(now time.Time) {
	m.table.Each(func(_ int, rec *device.Record) {
		if !rec.Deadline.IsZero() && !now.Before(rec.Deadline) {
			m.emit("RESET_END_OF_PULSE", rec.Name, "")
			rec.Commanded = false
			rec.Pending = now.Add(m.timings.CommandTimeout)
			rec.Deadline = time.Time{}
		}

		if rec.Status == rec.Commanded {
			return
		}

		if !rec.Pending.IsZero() && now.Before(rec.Pending) {
			if !rec.Silent() {
				m.emit("RETRY", rec.Name, fmt.Sprintf("state=%v", rec.Commanded))
				m.transmitSetLocked(rec, rec.Commanded)
			}
			return
		}

		if !rec.Pending.IsZero() {
			m.emit("TIMEOUT", rec.Name, "")
		}
		m.resetLocked(rec, rec.Status)
	})
}

// statusUpdateLocked applies a freshly observed relay state to rec. A
// mismatch against the record resolves to CONFIRMED when it completes
// an outstanding command, CHANGED when somebody else flipped the
// device.
func (m *Manager) statusUpdateLocked(rec *device.Record, newStatus bool, now time.Time) {
	if rec.Silent() {
		m.emit("DETECTED", rec.Name, addrString(rec))
	}

	if newStatus != rec.Status {
		if !rec.Pending.IsZero() && newStatus == rec.Commanded {
			m.emit("CONFIRMED", rec.Name, fmt.Sprintf("state=%v", newStatus))
			rec.Pending = time.Time{}
		} else {
			m.emit("CHANGED", rec.Name, fmt.Sprintf("from=%v to=%v", rec.Status, newStatus))
			rec.Commanded = newStatus
			rec.Pending = time.Time{}
		}
		rec.Status = newStatus
	}

	rec.Detected = now
}

func addrString(rec *device.Record) string {
	if rec.Addr == nil {
		return ""
	}
	return rec.Addr.String()
}

// resetLocked abandons the current command cycle, realigning commanded
// and status to to.
func (m *Manager) resetLocked(rec *device.Record, to bool) {
	rec.Commanded = to
	rec.Status = to
	rec.Pending = time.Time{}
	rec.Deadline = time.Time{}
}
