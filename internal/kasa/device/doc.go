// Package device holds the in-memory set of control-point records,
// keyed by (deviceId, childId), plus the broadcast-target type. It has no protocol or networking
// knowledge — callers (internal/kasa/manager) read and mutate records
// through the small accessor set this package exposes.
package device
