package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/homekasa/kasad/internal/kasa/control"
	"github.com/homekasa/kasad/internal/kasa/kasaconf"
)

// statusEntry is one named row of /kasa/status's control.status map.
type statusEntry struct {
	State   string `json:"state"`
	Command string `json:"command"`
	Pulse   *int64 `json:"pulse,omitempty"`
	Gear    string `json:"gear"`
}

type controlPayload struct {
	Status map[string]statusEntry `json:"status"`
}

type statusResponse struct {
	Host      string         `json:"host"`
	Proxy     string         `json:"proxy"`
	Timestamp int64          `json:"timestamp"`
	Control   controlPayload `json:"control"`
}

// gear identifies the kind of control point this service exposes —
// always "light" for a Kasa plug/switch, matching the shape other
// control-point families in the wider home-automation system use.
const gear = "light"

func onOffString(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func (s *Server) buildStatusResponse(points []control.Point) statusResponse {
	status := make(map[string]statusEntry, len(points))
	for _, pt := range points {
		state := onOffString(pt.State)
		if pt.Failure != "" {
			state = pt.Failure
		}

		entry := statusEntry{
			State:   state,
			Command: onOffString(pt.Commanded),
			Gear:    gear,
		}
		if !pt.Deadline.IsZero() {
			deadline := pt.Deadline.Unix()
			entry.Pulse = &deadline
		}
		status[pt.Name] = entry
	}

	return statusResponse{
		Host:      s.host,
		Proxy:     s.proxy,
		Timestamp: s.now().Unix(),
		Control:   controlPayload{Status: status},
	}
}

// handleStatus implements GET /kasa/status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	points, err := s.control.List()
	if err != nil {
		writeInternalError(w, "failed to list control points")
		return
	}
	writeJSON(w, http.StatusOK, s.buildStatusResponse(points))
}

// handleSet implements GET /kasa/set?point=<name|all>&state=<on|off|1|0>&pulse=<seconds>&cause=<text>.
func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	point := q.Get("point")
	if point == "" {
		writeNotFound(w, "point is required")
		return
	}

	state, ok := parseState(q.Get("state"))
	if !ok {
		writeBadRequest(w, "state must be one of on, off, 1, 0")
		return
	}

	pulse, err := parsePulse(q.Get("pulse"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	cause := q.Get("cause")

	if err := s.control.Set(point, state, pulse, cause); err != nil {
		if errors.Is(err, control.ErrUnknownPoint) {
			writeNotFound(w, "unknown point")
			return
		}
		writeInternalError(w, "failed to apply command")
		return
	}

	points, err := s.control.List()
	if err != nil {
		writeInternalError(w, "failed to list control points")
		return
	}
	writeJSON(w, http.StatusOK, s.buildStatusResponse(points))
}

func parseState(raw string) (state bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "1":
		return true, true
	case "off", "0":
		return false, true
	default:
		return false, false
	}
}

func parsePulse(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errInvalidPulse
	}
	if seconds < 0 {
		return 0, errInvalidPulse
	}
	return time.Duration(seconds) * time.Second, nil
}

var errInvalidPulse = errors.New("pulse must be a non-negative number of seconds")

// handleGetConfig implements GET /kasa/config.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	raw, err := s.conf.LiveJSON()
	if err != nil {
		writeInternalError(w, "failed to serialise configuration")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// handlePostConfig implements POST /kasa/config: the body replaces
// the live configuration document, triggering a refresh and an
// unconditional persist.
func (s *Server) handlePostConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}

	if err := s.conf.Apply(body); err != nil {
		var invalid *kasaconf.ConfigInvalid
		if errors.As(err, &invalid) {
			writeBadRequest(w, invalid.Error())
			return
		}
		writeInternalError(w, "failed to apply configuration")
		return
	}

	if err := s.conf.SaveRaw(r.Context(), body); err != nil {
		writeInternalError(w, "failed to persist configuration")
		return
	}

	raw, err := s.conf.LiveJSON()
	if err != nil {
		writeInternalError(w, "failed to serialise configuration")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
