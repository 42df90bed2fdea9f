// Package device models the Bluetooth device arena: devices are
// identified by a 48-bit address, reference-counted, and created
// lazily on first reference (spec §3 "Device", §9 "arena-allocated
// entities indexed by a stable handle").
package device

import (
	"fmt"
	"sync"
)

// Addr is a 48-bit Bluetooth device address, most-significant octet first.
type Addr [6]byte

// ParseAddr parses a colon-separated address such as "AA:BB:CC:DD:EE:FF".
func ParseAddr(s string) (Addr, error) {
	var a Addr
	n, err := fmt.Sscanf(s, "%02x:%02x:%02x:%02x:%02x:%02x",
		&a[0], &a[1], &a[2], &a[3], &a[4], &a[5])
	if err != nil || n != 6 {
		return Addr{}, fmt.Errorf("device: malformed address %q", s)
	}
	return a, nil
}

func (a Addr) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Class is the 24-bit Class of Device field (spec §6.5).
type Class uint32

// IsHandsFree reports whether the class marks the local adapter as a
// hands-free unit: (class & 0x1ffc) == 0x408 (spec §6.5).
func (c Class) IsHandsFree() bool {
	return uint32(c)&0x1ffc == 0x408
}

// SessionOwner is implemented by the HFP session attached to a device.
// It is a weak back-reference: the registry never owns it (spec §9:
// "use weak handles for parent→child back-references").
type SessionOwner interface {
	// Attached reports whether the session is still bound to its
	// device. The handle consults it before accepting a new session
	// and before destroying a device whose refcount has reached zero;
	// sessions that have already detached return false.
	Attached() bool
}

// Handle is a reference-counted entity in the registry.
type Handle struct {
	Addr Addr

	mu      sync.Mutex
	refs    int
	name    string
	class   Class
	session SessionOwner
	reg     *Registry
}

// Name returns the cached friendly name, if any.
func (h *Handle) Name() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.name
}

// SetName updates the cached friendly name.
func (h *Handle) SetName(name string) {
	h.mu.Lock()
	h.name = name
	h.mu.Unlock()
}

// Class returns the cached device class.
func (h *Handle) Class() Class {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.class
}

// SetClass updates the cached device class.
func (h *Handle) SetClass(c Class) {
	h.mu.Lock()
	h.class = c
	h.mu.Unlock()
}

// Session returns the attached session owner, or nil.
func (h *Handle) Session() SessionOwner {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session
}

// AttachSession binds a session to this device. At most one session
// may be attached at a time (spec §3: "zero-or-one HFP session").
func (h *Handle) AttachSession(s SessionOwner) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session != nil && h.session.Attached() {
		return fmt.Errorf("device: %s already has an attached session", h.Addr)
	}
	h.session = s
	return nil
}

// DetachSession clears the attached session and, if the refcount is
// already zero, destroys the handle (spec §3: "destroyed when refcount
// reaches zero AND no session is attached").
func (h *Handle) DetachSession() {
	h.mu.Lock()
	h.session = nil
	refs := h.refs
	reg := h.reg
	addr := h.Addr
	h.mu.Unlock()
	if refs <= 0 {
		reg.destroy(addr)
	}
}

// Ref increments the reference count and returns the handle for chaining.
func (h *Handle) Ref() *Handle {
	h.mu.Lock()
	h.refs++
	h.mu.Unlock()
	return h
}

// Unref decrements the reference count, destroying the device from the
// registry once it reaches zero and no session is attached.
func (h *Handle) Unref() {
	h.mu.Lock()
	h.refs--
	refs := h.refs
	hasSession := h.session != nil && h.session.Attached()
	reg := h.reg
	addr := h.Addr
	h.mu.Unlock()
	if refs <= 0 && !hasSession {
		reg.destroy(addr)
	}
}

// Registry is the arena of known devices, owned by the BT hub
// (spec §9: "the BT hub owns the arena and provides lookup by
// Bluetooth address").
type Registry struct {
	mu      sync.Mutex
	devices map[Addr]*Handle
}

// NewRegistry creates an empty device arena.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[Addr]*Handle)}
}

// Lookup returns the existing handle for addr, without creating one.
func (r *Registry) Lookup(addr Addr) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.devices[addr]
	return h, ok
}

// GetOrCreate returns the handle for addr, creating it lazily on first
// reference (spec §3) and incrementing its refcount.
func (r *Registry) GetOrCreate(addr Addr) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.devices[addr]
	if !ok {
		h = &Handle{Addr: addr, reg: r}
		r.devices[addr] = h
	}
	h.refs++
	return h
}

// Len reports the number of live devices, for diagnostics/tests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

func (r *Registry) destroy(addr Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.devices[addr]
	if !ok {
		return
	}
	h.mu.Lock()
	refs := h.refs
	hasSession := h.session != nil && h.session.Attached()
	h.mu.Unlock()
	if refs <= 0 && !hasSession {
		delete(r.devices, addr)
	}
}
