package device

import (
	"net"
	"time"
)

// Table is an append-mostly, insertion-ordered set of device records
// keyed by (DeviceID, ChildID). Indices are stable for the life of the
// process: records are never removed mid-run.
//
// Table is not safe for concurrent use on its own. The single mutex
// guarding it belongs to manager.Manager; Table is a plain data
// structure Manager serialises access to.
type Table struct {
	records  []*Record
	index    map[Key]int
	capacity int // 0 means unbounded
}

// NewTable creates an empty table. capacity, if non-zero, bounds the
// number of records Add will accept before returning ErrTableFull.
func NewTable(capacity int) *Table {
	return &Table{
		index:    make(map[Key]int),
		capacity: capacity,
	}
}

// Count returns the number of allocated records. Valid indices are
// [0, Count()).
func (t *Table) Count() int {
	return len(t.records)
}

// FindByID looks up a record by its exact (deviceID, childID) pair.
// childID must match exactly, including absence (""): a single-outlet
// record and a would-be child sharing the same deviceID are distinct
// identities.
func (t *Table) FindByID(deviceID, childID string) (int, bool) {
	idx, ok := t.index[Key{DeviceID: deviceID, ChildID: childID}]
	return idx, ok
}

// FindByAddress returns the first record whose last-known address
// matches addr. This is used only to correlate set-relay
// acknowledgements, which carry no device identity of their own.
func (t *Table) FindByAddress(addr *net.UDPAddr) (int, bool) {
	if addr == nil {
		return 0, false
	}
	for i, r := range t.records {
		if r.Addr != nil && udpAddrEqual(r.Addr, addr) {
			return i, true
		}
	}
	return 0, false
}

func udpAddrEqual(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}

// Add appends a new record, seeded from seed, and returns its index.
// The (DeviceID, ChildID) pair must not already exist.
func (t *Table) Add(seed Record) (int, error) {
	key := Key{DeviceID: seed.DeviceID, ChildID: seed.ChildID}
	if _, exists := t.index[key]; exists {
		return 0, ErrDuplicate
	}
	if t.capacity > 0 && len(t.records) >= t.capacity {
		return 0, ErrTableFull
	}

	rec := seed
	idx := len(t.records)
	t.records = append(t.records, &rec)
	t.index[key] = idx
	return idx, nil
}

// At returns the record at idx.
func (t *Table) At(idx int) (*Record, error) {
	if idx < 0 || idx >= len(t.records) {
		return nil, ErrOutOfRange
	}
	return t.records[idx], nil
}

// Each invokes fn for every record in insertion order. fn must not
// add to the table (that would invalidate the iteration); it may
// mutate the record in place.
func (t *Table) Each(fn func(idx int, rec *Record)) {
	for i, r := range t.records {
		fn(i, r)
	}
}

// ResetLiveness zeroes Detected, Pending, and Deadline on every
// record, ahead of a configuration refresh: every device will need to
// be re-learned by discovery.
func (t *Table) ResetLiveness() {
	for _, r := range t.records {
		r.Detected = time.Time{}
		r.Pending = time.Time{}
		r.Deadline = time.Time{}
	}
}
