package kasaconf

import (
	"context"
	"encoding/json"
	"net"

	"github.com/homekasa/kasad/internal/kasa/device"
)

// Logger is the minimal structured-logging interface this package
// depends on, satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Persister is the depot that loads and stores the persisted JSON
// document. The bridge never touches storage directly.
type Persister interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, doc []byte) error
}

// Manager is the subset of *manager.Manager the configuration bridge
// needs, declared locally so this package's tests can supply a fake.
type Manager interface {
	ResetLiveness()
	EnsureDevice(seed device.Record) (idx int, created bool)
	SetBroadcastTargets(targets []device.BroadcastTarget)
	BroadcastTargets() []device.BroadcastTarget
	Snapshot() []device.Record
	ConsumeDeviceListChanged() bool
}

// Resolve looks up a broadcast-target host or IP. The default is DNS
// resolution via net; tests substitute a deterministic stand-in.
type Resolve func(host string) (net.IP, error)

// DefaultResolve resolves host via the system resolver, accepting
// both hostnames and dotted-quad IPv4 literals.
func DefaultResolve(host string) (net.IP, error) {
	addr, err := net.ResolveIPAddr("ip4", host)
	if err != nil {
		return nil, err
	}
	return addr.IP, nil
}

// Options configures a new Bridge.
type Options struct {
	Persister  Persister
	Manager    Manager
	DevicePort int
	Logger     Logger
	Resolve    Resolve

	// OnEvent, if set, receives the bridge's events (currently just
	// NETWORK_ADDED) in addition to the log line always written.
	OnEvent func(action, subject, detail string)
}

// Bridge reconciles the persisted JSON document with the live device
// table and saves the live configuration back whenever autodiscovery
// has made it diverge from what was last persisted.
type Bridge struct {
	persister  Persister
	mgr        Manager
	devicePort int
	logger     Logger
	resolve    Resolve
	onEvent    func(action, subject, detail string)
}

// New creates a configuration bridge.
func New(opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	resolve := opts.Resolve
	if resolve == nil {
		resolve = DefaultResolve
	}

	return &Bridge{
		persister:  opts.Persister,
		mgr:        opts.Manager,
		devicePort: opts.DevicePort,
		logger:     logger,
		resolve:    resolve,
		onEvent:    opts.OnEvent,
	}
}

// Refresh loads the document from the persister and applies it.
func (b *Bridge) Refresh(ctx context.Context) error {
	raw, err := b.persister.Load(ctx)
	if err != nil {
		return err
	}
	return b.Apply(raw)
}

// Apply parses raw and reconciles it against the live device table. A
// parse failure leaves the live table untouched and is reported as
// ConfigInvalid.
func (b *Bridge) Apply(raw []byte) error {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &ConfigInvalid{Err: err}
	}

	// Every existing record will need to be re-learned.
	b.mgr.ResetLiveness()

	// Adopt configured devices; duplicates (including repeats within
	// the document itself) are skipped by EnsureDevice finding the
	// record already present.
	for _, d := range doc.Devices() {
		if d.ID == "" {
			continue
		}
		b.mgr.EnsureDevice(device.Record{
			Name:        d.Name,
			DeviceID:    d.ID,
			ChildID:     d.Child,
			Model:       d.Model,
			Description: d.Description,
		})
	}

	// Rebuild the broadcast-target list.
	b.mgr.SetBroadcastTargets(b.buildBroadcastTargets(doc.Net()))

	return nil
}

func (b *Bridge) buildBroadcastTargets(nets []string) []device.BroadcastTarget {
	out := make([]device.BroadcastTarget, 0, len(nets)+1)
	out = append(out, device.BroadcastTarget{
		Addr: &net.UDPAddr{IP: net.IPv4bcast, Port: b.devicePort},
	})

	for _, key := range nets {
		ip, err := b.resolve(key)
		if err != nil {
			b.logger.Warn("skipping unresolved broadcast target", "host", key, "error", err)
			continue
		}
		out = append(out, device.BroadcastTarget{
			ConfigKey: key,
			Addr:      &net.UDPAddr{IP: ip, Port: b.devicePort},
		})
		b.emit("NETWORK_ADDED", key, ip.String())
	}

	return out
}

func (b *Bridge) emit(action, subject, detail string) {
	b.logger.Info("kasa event", "category", "network", "action", action, "subject", subject, "detail", detail)
	if b.onEvent != nil {
		b.onEvent(action, subject, detail)
	}
}

// LiveDocument serialises the current table and broadcast-target list
// back into the persisted document shape — used both by
// CheckAndSave and by the GET /kasa/config HTTP handler.
func (b *Bridge) LiveDocument() Document {
	snap := b.mgr.Snapshot()
	devices := make([]DeviceEntry, 0, len(snap))
	for _, rec := range snap {
		devices = append(devices, DeviceEntry{
			Name:        rec.Name,
			ID:          rec.DeviceID,
			Child:       rec.ChildID,
			Model:       rec.Model,
			Description: rec.Description,
		})
	}

	targets := b.mgr.BroadcastTargets()
	nets := make([]string, 0, len(targets))
	for _, t := range targets {
		if t.ConfigKey == "" {
			continue // the implicit INADDR_BROADCAST entry is not persisted
		}
		nets = append(nets, t.ConfigKey)
	}

	return Document{Kasa: kasaSection{Devices: devices, Net: nets}}
}

// LiveJSON marshals LiveDocument.
func (b *Bridge) LiveJSON() ([]byte, error) {
	return json.Marshal(b.LiveDocument())
}

// SaveRaw asks the persister to store raw directly, bypassing the
// DeviceListChanged gate — used by the HTTP layer's POST /kasa/config,
// which always persists the document it was just handed.
func (b *Bridge) SaveRaw(ctx context.Context, raw []byte) error {
	return b.persister.Save(ctx, raw)
}

// CheckAndSave consumes the DeviceListChanged flag and, if it was
// set, serialises the live configuration and asks the persister to
// save it. It reports whether a save was performed.
func (b *Bridge) CheckAndSave(ctx context.Context) (bool, error) {
	if !b.mgr.ConsumeDeviceListChanged() {
		return false, nil
	}

	raw, err := b.LiveJSON()
	if err != nil {
		return false, err
	}
	if err := b.persister.Save(ctx, raw); err != nil {
		return false, err
	}
	return true, nil
}
