// Package hci is the BT hub / HCI gateway (spec §6.5, §5): it owns the
// device registry, verifies and resets the controller's SCO
// configuration at service start, and recognizes local/remote device
// class bytes.
package hci

import (
	"github.com/nohands-go/gonohands/internal/device"
	"github.com/nohands-go/gonohands/internal/herr"
	"github.com/nohands-go/gonohands/internal/sco"
)

// Controller is the subset of the local HCI adapter the hub needs:
// reading/resetting SCO MTU, buffer count, and voice setting, and
// exclusively claiming the SCO listening socket.
type Controller interface {
	ScoMTU() (mtu, bufferCount, voiceSetting int, err error)
	ResetScoConfig(mtu, bufferCount, voiceSetting int) error
	ClaimScoListener() error
	ReleaseScoListener()
}

// Hub owns the device registry and the local controller for the
// lifetime of the service (spec §5 "The HCI is configured at service
// start and is considered exclusively owned by the process while the
// service is running").
type Hub struct {
	Registry   *device.Registry
	controller Controller
}

// New verifies the controller's SCO configuration, attempting a reset
// on failure, and claims exclusive ownership of the SCO listening
// socket. It fails service start with ServiceConflict if another
// process already holds it (spec §4.6, §5).
func New(controller Controller) (*Hub, error) {
	mtu, bufferCount, voiceSetting, err := controller.ScoMTU()
	if err != nil {
		return nil, herr.New(herr.BadScoConfig, "hci", "failed to read SCO configuration", err)
	}
	if verr := sco.VerifyHCIConfig(mtu, bufferCount, voiceSetting); verr != nil {
		if rerr := controller.ResetScoConfig(sco.MinMTU, sco.MinPacketBuffers, sco.VoiceSetting16BitLinear); rerr != nil {
			return nil, herr.New(herr.BadScoConfig, "hci", "SCO misconfigured and reset failed", rerr)
		}
		mtu, bufferCount, voiceSetting, err = controller.ScoMTU()
		if err != nil {
			return nil, herr.New(herr.BadScoConfig, "hci", "failed to re-read SCO configuration after reset", err)
		}
		if verr := sco.VerifyHCIConfig(mtu, bufferCount, voiceSetting); verr != nil {
			return nil, verr
		}
	}

	if err := controller.ClaimScoListener(); err != nil {
		return nil, herr.New(herr.ServiceConflict, "hci", "SCO listening socket already held", err)
	}

	return &Hub{Registry: device.NewRegistry(), controller: controller}, nil
}

// Close releases the exclusive SCO listener claim.
func (h *Hub) Close() {
	h.controller.ReleaseScoListener()
}

// RecognizeLocalClass reports whether the local adapter's class marks
// it as a hands-free unit (spec §6.5).
func RecognizeLocalClass(class device.Class) bool {
	return class.IsHandsFree()
}

// DeviceFor returns the registry handle for addr, creating it lazily,
// and caches name/class if provided (empty name / zero class leave
// the cached values untouched).
func (h *Hub) DeviceFor(addr device.Addr, name string, class device.Class) *device.Handle {
	handle := h.Registry.GetOrCreate(addr)
	if name != "" {
		handle.SetName(name)
	}
	if class != 0 {
		handle.SetClass(class)
	}
	return handle
}
