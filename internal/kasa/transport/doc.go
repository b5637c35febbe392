// Package transport provides the non-blocking, broadcast-capable UDP
// socket the Kasa protocol rides on. It knows nothing about the Kasa
// wire format or device table; it hands received datagrams, paired
// with the sender's address, to a single registered callback. Socket
// creation failure is the one error in this package callers should
// treat as fatal — everything after that (send errors, read errors)
// is logged and non-blocking.
package transport
