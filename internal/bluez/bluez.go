// Package bluez binds the HFP session substrate to BlueZ over D-Bus.
// It is a direct generalization of the teacher's connmgr package: the
// same Profile1/ProfileManager1/ObjectManager/Properties surface, but
// registered under the Hands-Free service class instead of SPP.
// Accepted carries a slot for an SDP-learned AG feature bitmap, but
// the D-Bus manager never fills it (AGFeaturesOK is always false).
package bluez

import (
	"context"
)

// Hands-Free Profile UUIDs (Bluetooth SIG assigned numbers).
const (
	HandsfreeUnitUUID    = "0000111e-0000-1000-8000-00805f9b34fb"
	AudioGatewayUUID     = "0000111f-0000-1000-8000-00805f9b34fb"
	HandsfreeServiceName = "gonohands"
)

// RemoteDevice is the minimum information needed to attach an inbound
// or discovered connection to a device.Handle.
type RemoteDevice struct {
	Path    string // BlueZ Device1 object path
	Address string // "AA:BB:CC:DD:EE:FF"
	Name    string
	Alias   string
	Class   uint32
}

// Accepted is delivered once per inbound or outbound RFCOMM channel:
// the raw file descriptor (owned by the caller) plus whatever AG
// feature bitmap SDP could resolve ahead of the handshake.
type Accepted struct {
	FD           int
	Remote       RemoteDevice
	AGFeatures   uint32
	AGFeaturesOK bool
}

// Manager is the BlueZ-facing surface the hfpd service wires into
// internal/rfcomm. One Manager serves the single HF listening profile
// for the whole process (spec §5 "The HCI is considered exclusively
// owned by the process").
type Manager interface {
	// StartListening registers the HF-role server profile (spec §4.1
	// "a single listening RFCOMM socket for the HF service class").
	StartListening(ctx context.Context) error

	// Accept blocks until one inbound connection arrives or ctx ends.
	Accept(ctx context.Context) (Accepted, error)

	// Connect dials dev's Hands-Free Audio Gateway. It performs no SDP
	// lookup of the peer's SupportedFeatures attribute, so the
	// returned AGFeaturesOK is false.
	Connect(ctx context.Context, dev RemoteDevice) (Accepted, error)

	// ScanHandsFree discovers nearby devices advertising the Audio
	// Gateway role, for a CLI "pick a phone to pair with" flow.
	ScanHandsFree(ctx context.Context) ([]RemoteDevice, error)

	// Close releases every D-Bus registration and closes the
	// connection (idempotent, concurrency-safe, per the teacher).
	Close() error
}
