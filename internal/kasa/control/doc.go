// Package control is the control-point facade the HTTP layer calls.
// It is a thin name-resolving wrapper
// over manager.Manager — every read or write ultimately reaches the
// single mutex Manager owns.
package control
