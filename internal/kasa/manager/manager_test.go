package manager

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/homekasa/kasad/internal/kasa/device"
	"github.com/homekasa/kasad/internal/kasa/protocol"
)

// fakeTransport records every outbound datagram instead of touching a
// real socket — the same role a loopback UDP pair plays in
// transport_test.go, but without the network round trip.
type fakeTransport struct {
	mu   sync.Mutex
	sent []sentDatagram
}

type sentDatagram struct {
	payload []byte
	addr    *net.UDPAddr
}

func (f *fakeTransport) SendTo(payload []byte, addr *net.UDPAddr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentDatagram{payload: payload, addr: addr})
	return nil
}

func (f *fakeTransport) last() (sentDatagram, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentDatagram{}, false
	}
	return f.sent[len(f.sent)-1], true
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeClock gives tests control over "now" without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(tr *fakeTransport, clk *fakeClock) (*Manager, *[]Event) {
	var events []Event
	var mu sync.Mutex
	m := New(Options{
		Table:     device.NewTable(0),
		Transport: tr,
		Clock:     clk.Now,
		OnEvent: func(e Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	})
	return m, &events
}

func hasEvent(events []Event, action, subject string) bool {
	for _, e := range events {
		if e.Action == action && e.Subject == subject {
			return true
		}
	}
	return false
}

func sysinfoDatagram(t *testing.T, deviceID, model, alias string, relayState int) []byte {
	t.Helper()
	raw := []byte(`{"system":{"get_sysinfo":{"deviceId":"` + deviceID + `","model":"` + model + `","alias":"` + alias + `","relay_state":` + itoa(relayState) + `}}}`)
	enc, err := protocol.Encode(raw)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return enc
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	return "1"
}

func setRelayAckDatagram(t *testing.T) []byte {
	t.Helper()
	enc, err := protocol.Encode([]byte(`{"system":{"set_relay_state":{"err_code":0}}}`))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return enc
}

// TestDiscovery_SingleOutlet walks a single-outlet device from first
// sighting through a commanded turn-on and its confirmation.
func TestDiscovery_SingleOutlet(t *testing.T) {
	tr := &fakeTransport{}
	clk := newFakeClock(time.Unix(0, 0))
	m, events := newTestManager(tr, clk)

	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.10"), Port: 9999}
	m.HandleDatagram(sysinfoDatagram(t, "AAA", "HS100", "Lamp", 0), addr)

	if m.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", m.Count())
	}
	if !hasEvent(*events, "DISCOVERED", "Lamp") {
		t.Error("expected DISCOVERED event for Lamp")
	}
	if !hasEvent(*events, "DETECTED", "Lamp") {
		t.Error("expected DETECTED alongside DISCOVERED for a single-outlet device")
	}
	if !m.ConsumeDeviceListChanged() {
		t.Error("DeviceListChanged should be set after autodiscovery")
	}

	status, _ := m.Status(0)
	commanded, _ := m.Commanded(0)
	if status || commanded {
		t.Errorf("status=%v commanded=%v, want both false", status, commanded)
	}

	if err := m.Set(0, true, 0, "dashboard"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	sent, ok := tr.last()
	if !ok {
		t.Fatal("expected a set-relay command to be transmitted")
	}
	plain := protocol.Decode(sent.payload)
	if string(plain) != `{"system":{"set_relay_state":{"state":1}}}` {
		t.Errorf("wire payload = %s, want the single-outlet set-relay shape", plain)
	}
	if sent.addr.String() != addr.String() {
		t.Errorf("sent to %s, want %s", sent.addr, addr)
	}

	commanded, _ = m.Commanded(0)
	if !commanded {
		t.Error("commanded should be true after Set")
	}

	// The ack triggers a directed sense; the subsequent sysinfo with
	// relay_state:1 should confirm.
	m.HandleDatagram(setRelayAckDatagram(t), addr)
	m.HandleDatagram(sysinfoDatagram(t, "AAA", "HS100", "Lamp", 1), addr)

	if !hasEvent(*events, "CONFIRMED", "Lamp") {
		t.Error("expected CONFIRMED event")
	}
	if hasEvent(*events, "CHANGED", "Lamp") {
		t.Error("a confirmed command should not also emit CHANGED")
	}
}

// TestDiscovery_MultiOutlet checks that a children array yields one
// control point per outlet and that child commands carry the
// concatenated deviceId+childId selector.
func TestDiscovery_MultiOutlet(t *testing.T) {
	tr := &fakeTransport{}
	clk := newFakeClock(time.Unix(0, 0))
	m, events := newTestManager(tr, clk)

	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.11"), Port: 9999}
	raw := []byte(`{"system":{"get_sysinfo":{"deviceId":"BBB","model":"HS300","children":[` +
		`{"id":"00","alias":"Left","state":0},{"id":"01","alias":"Right","state":1}]}}}`)
	enc, err := protocol.Encode(raw)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	m.HandleDatagram(enc, addr)

	if m.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", m.Count())
	}
	if !hasEvent(*events, "DISCOVERED", "Left") || !hasEvent(*events, "DISCOVERED", "Right") {
		t.Error("expected DISCOVERED for each child outlet")
	}
	if hasEvent(*events, "DETECTED", "Left") || hasEvent(*events, "DETECTED", "Right") {
		t.Error("a newly sighted child outlet should not also emit DETECTED")
	}

	rightIdx := -1
	for i, rec := range m.Snapshot() {
		if rec.Name == "Right" {
			rightIdx = i
		}
	}
	if rightIdx < 0 {
		t.Fatal("could not find Right control point")
	}

	if err := m.Set(rightIdx, false, 0, "dashboard"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	sent, ok := tr.last()
	if !ok {
		t.Fatal("expected a set-relay command to be transmitted")
	}
	plain := protocol.Decode(sent.payload)
	want := `{"context":{"child_ids":["BBB01"]},"system":{"set_relay_state":{"state":0}}}`
	if string(plain) != want {
		t.Errorf("wire payload = %s, want %s", plain, want)
	}
}

// TestPulseExpiry checks that a pulsed activation resets to off at its
// deadline.
func TestPulseExpiry(t *testing.T) {
	tr := &fakeTransport{}
	clk := newFakeClock(time.Unix(0, 0))
	m, events := newTestManager(tr, clk)

	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.10"), Port: 9999}
	m.HandleDatagram(sysinfoDatagram(t, "AAA", "HS100", "Lamp", 1), addr)

	if err := m.Set(0, true, 10*time.Second, "dashboard"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Advance exactly to the pulse deadline: expiry fires once now
	// reaches it, and the command sweep runs on every Tick.
	clk.Advance(10 * time.Second)
	m.Tick()

	if !hasEvent(*events, "RESET_END_OF_PULSE", "Lamp") {
		t.Error("expected RESET_END_OF_PULSE at pulse deadline")
	}
	commanded, _ := m.Commanded(0)
	if commanded {
		t.Error("commanded should be false once the pulse resets")
	}
	deadline, _ := m.Deadline(0)
	if !deadline.IsZero() {
		t.Error("deadline should be cleared once the pulse resets")
	}

	// The pulse-end off command should have gone out as the
	// immediately-following RETRY transmission (status is still on).
	if !hasEvent(*events, "RETRY", "Lamp") {
		t.Error("expected the pulse-end off command to retransmit in the same tick")
	}
}

// TestSilenceAndRecovery checks the silent transition after 100s of
// quiet and the DETECTED (not DISCOVERED) recovery path.
func TestSilenceAndRecovery(t *testing.T) {
	tr := &fakeTransport{}
	clk := newFakeClock(time.Unix(0, 0))
	m, events := newTestManager(tr, clk)

	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.10"), Port: 9999}
	m.HandleDatagram(sysinfoDatagram(t, "AAA", "HS100", "Lamp", 0), addr)

	clk.Advance(101 * time.Second)
	m.Tick()

	if !hasEvent(*events, "SILENT", "Lamp") {
		t.Error("expected SILENT after 100s of quiet")
	}
	failure, _ := m.Failure(0)
	if failure != "silent" {
		t.Errorf("Failure() = %q, want silent", failure)
	}

	clk.Advance(50 * time.Second)
	m.HandleDatagram(sysinfoDatagram(t, "AAA", "HS100", "Lamp", 0), addr)

	detectedCount, discoveredCount := 0, 0
	for _, e := range *events {
		switch e.Action {
		case "DETECTED":
			detectedCount++
		case "DISCOVERED":
			discoveredCount++
		}
	}
	if detectedCount != 2 {
		t.Errorf("DETECTED fired %d times, want 2 (first sighting and recovery)", detectedCount)
	}
	if discoveredCount != 1 {
		t.Errorf("DISCOVERED fired %d times, want exactly 1 (only at first sighting)", discoveredCount)
	}
	failure, _ = m.Failure(0)
	if failure != "" {
		t.Errorf("Failure() = %q, want empty after recovery", failure)
	}
}

// TestThirdPartyChange checks that an uncommanded state flip is
// adopted as the new commanded state rather than fought.
func TestThirdPartyChange(t *testing.T) {
	tr := &fakeTransport{}
	clk := newFakeClock(time.Unix(0, 0))
	m, events := newTestManager(tr, clk)

	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.10"), Port: 9999}
	m.HandleDatagram(sysinfoDatagram(t, "AAA", "HS100", "Lamp", 0), addr)
	sentBefore := tr.count()

	m.HandleDatagram(sysinfoDatagram(t, "AAA", "HS100", "Lamp", 1), addr)

	if !hasEvent(*events, "CHANGED", "Lamp") {
		t.Error("expected CHANGED for a third-party state flip")
	}
	if hasEvent(*events, "CONFIRMED", "Lamp") {
		t.Error("an uncommanded change should not emit CONFIRMED")
	}
	commanded, _ := m.Commanded(0)
	if !commanded {
		t.Error("commanded should follow the third-party change")
	}
	if tr.count() != sentBefore {
		t.Error("a third-party change should not cause a retransmission")
	}
}

// TestCommandTimeout checks the retry-then-abandon path for a device
// that never acknowledges a command.
func TestCommandTimeout(t *testing.T) {
	tr := &fakeTransport{}
	clk := newFakeClock(time.Unix(0, 0))
	m, events := newTestManager(tr, clk)

	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.10"), Port: 9999}
	m.HandleDatagram(sysinfoDatagram(t, "AAA", "HS100", "Lamp", 0), addr)

	if err := m.Set(0, true, 0, "dashboard"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	clk.Advance(4 * time.Second)
	m.Tick()
	if !hasEvent(*events, "RETRY", "Lamp") {
		t.Error("expected RETRY while pending is still in the future")
	}

	clk.Advance(1 * time.Second)
	m.Tick()
	if !hasEvent(*events, "TIMEOUT", "Lamp") {
		t.Error("expected TIMEOUT once pending has fully elapsed without a reply")
	}
	commanded, _ := m.Commanded(0)
	status, _ := m.Status(0)
	if commanded != status {
		t.Errorf("commanded (%v) should realign to observed status (%v) on timeout", commanded, status)
	}
	if commanded {
		t.Error("the device never replied on, so the realigned state should be off")
	}
}

func TestSet_NegativePulseRejected(t *testing.T) {
	tr := &fakeTransport{}
	clk := newFakeClock(time.Unix(0, 0))
	m, _ := newTestManager(tr, clk)

	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.10"), Port: 9999}
	m.HandleDatagram(sysinfoDatagram(t, "AAA", "HS100", "Lamp", 0), addr)

	if err := m.Set(0, true, -1*time.Second, "dashboard"); err != ErrInvalidPulse {
		t.Errorf("Set with negative pulse = %v, want ErrInvalidPulse", err)
	}
}

func TestEnsureDevice_DoesNotRaiseDeviceListChanged(t *testing.T) {
	tr := &fakeTransport{}
	clk := newFakeClock(time.Unix(0, 0))
	m, _ := newTestManager(tr, clk)

	idx, created := m.EnsureDevice(device.Record{Name: "Lamp", DeviceID: "AAA"})
	if !created || idx != 0 {
		t.Fatalf("EnsureDevice = (%d,%v), want (0,true)", idx, created)
	}
	if m.ConsumeDeviceListChanged() {
		t.Error("configuration-sourced devices should not raise DeviceListChanged")
	}

	idx2, created2 := m.EnsureDevice(device.Record{Name: "Lamp", DeviceID: "AAA"})
	if created2 || idx2 != idx {
		t.Errorf("re-ensuring the same device = (%d,%v), want (%d,false)", idx2, created2, idx)
	}
}

func TestMalformedReply_DroppedWithoutPanic(t *testing.T) {
	tr := &fakeTransport{}
	clk := newFakeClock(time.Unix(0, 0))
	m, _ := newTestManager(tr, clk)

	enc, err := protocol.Encode([]byte(`not even json`))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.10"), Port: 9999}
	m.HandleDatagram(enc, addr)

	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0 after a malformed reply", m.Count())
	}
}
