package hfp

// Transport is the RFCOMM session substrate surface the protocol
// state machine needs (spec §4.1). Concrete implementations live in
// internal/rfcomm (socket substrate) fronted by internal/bluez
// (BlueZ D-Bus binding for SDP lookup and Profile1 accept/connect).
type Transport interface {
	// Write sends raw bytes (an AT command line, CR-terminated) over
	// the RFCOMM socket. The caller (the AT queue) is the sole writer
	// (spec §5 "Shared-resource policy").
	Write(data []byte) error

	// Disconnect tears down the RFCOMM socket. voluntary distinguishes
	// a caller-requested hangup from a fault-triggered one, for the
	// SCO teardown-notification suppression rule (spec §4.6).
	Disconnect(voluntary bool)
}

// ScoChild is the narrow surface the session needs from an attached
// SCO endpoint: just enough to enforce "SCO child may exist only
// while Connected" (spec §3) by tearing it down on disconnect.
type ScoChild interface {
	Close()
}
