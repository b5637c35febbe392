// Package api implements the HTTP control surface: the four endpoints
// through which an orchestrator or browser dashboard reads device
// status and issues commands, without any knowledge of the Kasa wire
// protocol. The surface is plain request/response — no auth, CORS, or
// push layer; those belong to whatever fronts this service.
package api
