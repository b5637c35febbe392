package device

import (
	"net"
	"time"
)

// Key identifies a control point. ChildID is empty for a single-outlet
// device; the pair must be unique across the table, including the
// presence/absence of ChildID itself.
type Key struct {
	DeviceID string
	ChildID  string
}

// Record is one controllable outlet. A multi-plug unit contributes one
// record per child outlet, all sharing a DeviceID.
//
// Zero time.Time values stand in for the protocol's "0" timestamp
// sentinel: Detected.IsZero() means silent, Pending.IsZero() means no
// outstanding command, Deadline.IsZero() means no pulse.
type Record struct {
	Name        string
	DeviceID    string
	ChildID     string
	Model       string
	Description string
	Addr        *net.UDPAddr

	Detected  time.Time
	LastSense time.Time

	Status    bool
	Commanded bool
	Pending   time.Time
	Deadline  time.Time
}

// Key returns the record's (DeviceID, ChildID) identity.
func (r *Record) Key() Key {
	return Key{DeviceID: r.DeviceID, ChildID: r.ChildID}
}

// Silent reports whether the record has never been detected, or has
// gone quiet long enough that the manager reset it to silent.
func (r *Record) Silent() bool {
	return r.Detected.IsZero()
}

// BroadcastTarget is one network the service senses on. ConfigKey is
// the text the configuration document named (hostname or IP); it is
// empty for the implicit INADDR_BROADCAST entry that always occupies
// index 0.
type BroadcastTarget struct {
	ConfigKey string
	Addr      *net.UDPAddr
}
