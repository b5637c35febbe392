// Package protocol implements the Kasa UDP wire format: the autokey XOR
// obfuscation described in the softScheck write-up of the TP-Link
// smart-plug protocol, and the subset of the JSON command/response
// vocabulary this service needs (sysinfo sensing, relay set, and their
// replies). It has no knowledge of sockets, device tables, or timing —
// that belongs to internal/kasa/transport and internal/kasa/manager.
package protocol
