package hfp

// CallState is the derived, human-meaningful call/callsetup state
// (spec §4.4 "Call/callsetup derivation table").
type CallState int

const (
	CallIdle CallState = iota
	CallConnecting        // outbound, callsetup ∈ {2,3}, no established call
	CallEstablished
	CallWaiting // inbound ringing, callsetup == 1, no established call
	CallEstablishedWaiting
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "Idle"
	case CallConnecting:
		return "Connecting"
	case CallEstablished:
		return "Established"
	case CallWaiting:
		return "Waiting"
	case CallEstablishedWaiting:
		return "Established+Waiting"
	default:
		return "Unknown"
	}
}

// DeriveCallState implements spec §4.4's derivation table from the raw
// call/callsetup indicator values.
func DeriveCallState(call, callsetup int) CallState {
	established := call != 0
	connecting := callsetup == 2 || callsetup == 3
	waiting := callsetup == 1

	switch {
	case established && waiting:
		return CallEstablishedWaiting
	case established:
		return CallEstablished
	case waiting:
		return CallWaiting
	case connecting:
		return CallConnecting
	default:
		return CallIdle
	}
}
