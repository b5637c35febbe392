// Package manager unifies discovery/sensing and the per-device
// command/confirm/retry/timeout cycle in one component. Manager owns
// the device table and the periodic tick that drives both discovery
// and command retry logic; it is the one place the single-mutex
// concurrency model is enforced.
package manager
