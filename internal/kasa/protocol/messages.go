package protocol

import (
	"encoding/json"
	"fmt"
)

// MalformedReply indicates a datagram that decoded to bytes that are
// not the expected Kasa JSON shape, or that are missing a field the
// caller required. The caller should log and drop it.
type MalformedReply struct {
	Reason string
	Err    error
}

func (e *MalformedReply) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: malformed reply: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol: malformed reply: %s", e.Reason)
}

func (e *MalformedReply) Unwrap() error { return e.Err }

// relayState holds the command parameters for set_relay_state: State
// is 1 for on, 0 for off. It is only used to compose requests.
type relayState struct {
	State int `json:"state"`
}

// senseRequest is {"system":{"get_sysinfo":{}}}.
type senseRequest struct {
	System struct {
		GetSysinfo struct{} `json:"get_sysinfo"`
	} `json:"system"`
}

// setRelayRequest is {"system":{"set_relay_state":{"state":0|1}}}.
type setRelayRequest struct {
	System struct {
		SetRelayState relayState `json:"set_relay_state"`
	} `json:"system"`
}

// setRelayChildRequest adds the context.child_ids selector used to
// address one outlet of a multi-plug device. The deviceId and childId
// are concatenated with no separator — this is protocol-defined, not
// an implementation choice, and must be preserved bit-exactly.
type setRelayChildRequest struct {
	Context struct {
		ChildIDs []string `json:"child_ids"`
	} `json:"context"`
	System struct {
		SetRelayState relayState `json:"set_relay_state"`
	} `json:"system"`
}

func stateInt(on bool) int {
	if on {
		return 1
	}
	return 0
}

// Sense composes a get_sysinfo probe.
func Sense() ([]byte, error) {
	return json.Marshal(senseRequest{})
}

// SetRelay composes a set_relay_state command for a single-outlet device.
func SetRelay(on bool) ([]byte, error) {
	var req setRelayRequest
	req.System.SetRelayState.State = stateInt(on)
	return json.Marshal(req)
}

// SetRelayChild composes a set_relay_state command scoped to one child
// outlet of a multi-plug device. deviceID and childID are concatenated
// with no separator per the Kasa wire format.
func SetRelayChild(deviceID, childID string, on bool) ([]byte, error) {
	var req setRelayChildRequest
	req.Context.ChildIDs = []string{deviceID + childID}
	req.System.SetRelayState.State = stateInt(on)
	return json.Marshal(req)
}

// Child is one outlet entry in a multi-plug sysinfo reply.
type Child struct {
	ID    string
	Alias string
	State bool
}

// Sysinfo is the information this service needs out of a get_sysinfo
// reply. Fields the protocol sends but the device manager never reads
// (on_time, rssi, firmware ids, ...) are intentionally not modelled.
type Sysinfo struct {
	DeviceID   string
	Model      string
	Alias      string
	RelayState bool // meaningful only when Children is empty
	Children   []Child
}

// sysinfoReplyWire mirrors the documented get_sysinfo reply shape.
type sysinfoReplyWire struct {
	System struct {
		GetSysinfo struct {
			DeviceID   *string `json:"deviceId"`
			Model      string  `json:"model"`
			Alias      string  `json:"alias"`
			RelayState int     `json:"relay_state"`
			Children   []struct {
				ID    string `json:"id"`
				Alias string `json:"alias"`
				State int    `json:"state"`
			} `json:"children"`
		} `json:"get_sysinfo"`
	} `json:"system"`
}

// ParseSysinfo decodes a get_sysinfo reply. deviceId is the only
// required field; any other field that is absent is left at its zero
// value. A field present with the wrong JSON type fails the whole
// reply as MalformedReply.
func ParseSysinfo(plain []byte) (*Sysinfo, error) {
	var wire sysinfoReplyWire
	if err := json.Unmarshal(plain, &wire); err != nil {
		return nil, &MalformedReply{Reason: "invalid JSON", Err: err}
	}
	info := wire.System.GetSysinfo
	if info.DeviceID == nil || *info.DeviceID == "" {
		return nil, &MalformedReply{Reason: "sysinfo missing deviceId"}
	}

	out := &Sysinfo{
		DeviceID:   *info.DeviceID,
		Model:      info.Model,
		Alias:      info.Alias,
		RelayState: info.RelayState != 0,
	}
	for _, c := range info.Children {
		out.Children = append(out.Children, Child{ID: c.ID, Alias: c.Alias, State: c.State != 0})
	}
	return out, nil
}

// setRelayReplyWire mirrors the documented set_relay_state ack shape.
type setRelayReplyWire struct {
	System struct {
		SetRelayState struct {
			ErrCode *int `json:"err_code"`
		} `json:"set_relay_state"`
	} `json:"system"`
}

// ParseSetRelayAck decodes a set_relay_state acknowledgement and
// reports whether err_code was present and zero (success). A reply
// that isn't a set-relay ack at all (e.g. a sysinfo reply landing on
// the same socket) returns ok=false, err=nil so callers can fall
// through to other parsers without treating it as malformed.
func ParseSetRelayAck(plain []byte) (ok bool, err error) {
	var wire setRelayReplyWire
	if uerr := json.Unmarshal(plain, &wire); uerr != nil {
		return false, &MalformedReply{Reason: "invalid JSON", Err: uerr}
	}
	code := wire.System.SetRelayState.ErrCode
	if code == nil {
		return false, nil
	}
	return *code == 0, nil
}
