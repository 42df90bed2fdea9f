//go:build linux

package bluez

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	dbus "github.com/godbus/dbus/v5"

	"github.com/nohands-go/gonohands/internal/herr"
	"github.com/nohands-go/gonohands/internal/sdp"
)

const (
	bluezService         = "org.bluez"
	profileInterfaceName = "org.bluez.Profile1"
	profileManagerIface  = "org.bluez.ProfileManager1"
	deviceIface          = "org.bluez.Device1"
	adapterIface         = "org.bluez.Adapter1"
	objManagerIface      = "org.freedesktop.DBus.ObjectManager"
	propsIface           = "org.freedesktop.DBus.Properties"
)

var pathCounter uint64

// New creates a BlueZ-backed Manager. localFeatures is embedded in the
// registered SDP record's SupportedFeatures attribute (spec §6.2).
func New(localFeatures uint32) Manager {
	return &manager{localFeatures: localFeatures}
}

type manager struct {
	mu     sync.Mutex
	closed bool
	bus    *dbus.Conn

	localFeatures uint32

	serverExported bool
	srvProf        *profile
	serverPath     dbus.ObjectPath

	cliProf    *profile
	clientPath dbus.ObjectPath

	cleanup []func()
}

type profile struct {
	ch chan Accepted
}

func (p *profile) Release() *dbus.Error                               { return nil }
func (p *profile) Cancel() *dbus.Error                                { return nil }
func (p *profile) RequestDisconnection(_ dbus.ObjectPath) *dbus.Error { return nil }

func (p *profile) NewConnection(dev dbus.ObjectPath, fd dbus.UnixFD, props map[string]dbus.Variant) *dbus.Error {
	acc := Accepted{
		FD: int(fd),
		Remote: RemoteDevice{
			Path:    string(dev),
			Address: macFromPath(dev),
		},
	}
	select {
	case p.ch <- acc:
		return nil
	default:
		_ = os.NewFile(uintptr(acc.FD), "rfcomm").Close()
		return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []interface{}{"no receiver"}}
	}
}

func (m *manager) ensureBusLocked() error {
	if m.bus != nil {
		return nil
	}
	c, err := dbus.SystemBus()
	if err != nil {
		return herr.New(herr.SyscallError, "bluez", "connect system bus", err)
	}
	m.bus = c
	m.cleanup = append(m.cleanup, func() { m.bus.Close() })
	return nil
}

func (m *manager) StartListening(ctx context.Context) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return herr.New(herr.NotConnected, "bluez", "manager closed", nil)
	}
	if m.serverExported {
		return herr.New(herr.AlreadyOpen, "bluez", "already listening", nil)
	}
	if err := m.ensureBusLocked(); err != nil {
		return err
	}

	m.srvProf = &profile{ch: make(chan Accepted, 1)}
	id := atomic.AddUint64(&pathCounter, 1)
	m.serverPath = dbus.ObjectPath("/org/gonohands/bluez/server/p" + strconv.FormatUint(id, 10))
	if err := m.bus.Export(m.srvProf, m.serverPath, profileInterfaceName); err != nil {
		return herr.New(herr.SyscallError, "bluez", "export server profile", err)
	}

	record := sdp.HandsFreeRecord(m.localFeatures)
	optsMap := map[string]dbus.Variant{
		"Name":          dbus.MakeVariant(HandsfreeServiceName),
		"Role":          dbus.MakeVariant("server"),
		"ServiceRecord": dbus.MakeVariant(string(record)),
	}
	pm := m.bus.Object(bluezService, dbus.ObjectPath("/org/bluez"))
	if call := pm.Call(profileManagerIface+".RegisterProfile", 0, m.serverPath, HandsfreeUnitUUID, optsMap); call.Err != nil {
		return herr.New(herr.ServiceConflict, "bluez", "RegisterProfile(server)", call.Err)
	}
	m.cleanup = append(m.cleanup, func() {
		_ = pm.Call(profileManagerIface+".UnregisterProfile", 0, m.serverPath).Err
		_ = m.bus.Export(nil, m.serverPath, profileInterfaceName)
	})
	m.serverExported = true
	return nil
}

func (m *manager) Accept(ctx context.Context) (Accepted, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Accepted{}, herr.New(herr.NotConnected, "bluez", "manager closed", nil)
	}
	if !m.serverExported {
		m.mu.Unlock()
		return Accepted{}, herr.New(herr.NotConnected, "bluez", "not listening", nil)
	}
	ch := m.srvProf.ch
	bus := m.bus
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return Accepted{}, ctx.Err()
	case acc := <-ch:
		acc.AGFeatures, acc.AGFeaturesOK = lookupCachedFeatures(bus, dbus.ObjectPath(acc.Remote.Path))
		return acc, nil
	}
}

func (m *manager) Connect(ctx context.Context, dev RemoteDevice) (Accepted, error) {
	if dev.Path == "" {
		return Accepted{}, herr.New(herr.BadParameter, "bluez", "device path required", nil)
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Accepted{}, herr.New(herr.NotConnected, "bluez", "manager closed", nil)
	}
	if err := m.ensureBusLocked(); err != nil {
		m.mu.Unlock()
		return Accepted{}, err
	}
	if m.cliProf == nil {
		m.cliProf = &profile{ch: make(chan Accepted, 1)}
		id := atomic.AddUint64(&pathCounter, 1)
		m.clientPath = dbus.ObjectPath("/org/gonohands/bluez/client/p" + strconv.FormatUint(id, 10))
		if err := m.bus.Export(m.cliProf, m.clientPath, profileInterfaceName); err != nil {
			m.mu.Unlock()
			return Accepted{}, herr.New(herr.SyscallError, "bluez", "export client profile", err)
		}
		pm := m.bus.Object(bluezService, dbus.ObjectPath("/org/bluez"))
		optsMap := map[string]dbus.Variant{"Role": dbus.MakeVariant("client")}
		if call := pm.Call(profileManagerIface+".RegisterProfile", 0, m.clientPath, HandsfreeUnitUUID, optsMap); call.Err != nil {
			m.mu.Unlock()
			return Accepted{}, herr.New(herr.ServiceConflict, "bluez", "RegisterProfile(client)", call.Err)
		}
		m.cleanup = append(m.cleanup, func() {
			_ = pm.Call(profileManagerIface+".UnregisterProfile", 0, m.clientPath).Err
			_ = m.bus.Export(nil, m.clientPath, profileInterfaceName)
		})
	}
	ch := m.cliProf.ch
	bus := m.bus
	m.mu.Unlock()

	devPath := dbus.ObjectPath(dev.Path)
	devObj := bus.Object(bluezService, devPath)
	agFeatures, agOK := lookupCachedFeatures(bus, devPath)

	var pairedVar dbus.Variant
	if call := devObj.Call(propsIface+".Get", 0, deviceIface, "Paired"); call.Err == nil {
		if err := call.Store(&pairedVar); err == nil {
			if b, ok := pairedVar.Value().(bool); ok && !b {
				if err := devObj.Call(deviceIface+".Pair", 0).Err; err != nil {
					return Accepted{}, herr.New(herr.SyscallError, "bluez", "Pair", err)
				}
			}
		}
	}
	if call := devObj.Call(deviceIface+".ConnectProfile", 0, HandsfreeUnitUUID); call.Err != nil {
		return Accepted{}, herr.New(herr.SyscallError, "bluez", "ConnectProfile", call.Err)
	}

	select {
	case <-ctx.Done():
		return Accepted{}, ctx.Err()
	case acc := <-ch:
		acc.Remote = dev
		acc.AGFeatures, acc.AGFeaturesOK = agFeatures, agOK
		return acc, nil
	}
}

func (m *manager) ScanHandsFree(ctx context.Context) ([]RemoteDevice, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, herr.New(herr.NotConnected, "bluez", "manager closed", nil)
	}
	if err := m.ensureBusLocked(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	bus := m.bus
	m.mu.Unlock()

	adapters, err := listAdapters(bus)
	if err != nil {
		return nil, err
	}
	for _, ap := range adapters {
		_ = bus.Object(bluezService, ap).Call(adapterIface+".StartDiscovery", 0).Err
		defer func(p dbus.ObjectPath) { _ = bus.Object(bluezService, p).Call(adapterIface+".StopDiscovery", 0).Err }(ap)
	}

	devMap, err := snapshotAGDevices(bus)
	if err != nil {
		return nil, err
	}

	sigCh := make(chan *dbus.Signal, 16)
	bus.Signal(sigCh)
	defer bus.RemoveSignal(sigCh)
	if err := bus.AddMatchSignal(
		dbus.WithMatchInterface(objManagerIface),
		dbus.WithMatchMember("InterfacesAdded"),
	); err != nil {
		return nil, herr.New(herr.SyscallError, "bluez", "AddMatchSignal", err)
	}
	defer func() {
		_ = bus.RemoveMatchSignal(
			dbus.WithMatchInterface(objManagerIface),
			dbus.WithMatchMember("InterfacesAdded"),
		)
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case sig := <-sigCh:
			if sig == nil || len(sig.Body) < 2 {
				continue
			}
			path, _ := sig.Body[0].(dbus.ObjectPath)
			ifaces, _ := sig.Body[1].(map[string]map[string]dbus.Variant)
			if ifaces == nil {
				continue
			}
			if dev, ok := deviceFromIfaces(path, ifaces); ok {
				devMap[dev.Path] = dev
			}
		}
	}

	out := make([]RemoteDevice, 0, len(devMap))
	for _, d := range devMap {
		out = append(out, d)
	}
	return out, nil
}

func (m *manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cleanup := m.cleanup
	m.cleanup = nil
	m.mu.Unlock()

	for i := len(cleanup) - 1; i >= 0; i-- {
		if cleanup[i] != nil {
			cleanup[i]()
		}
	}
	return nil
}

// lookupCachedFeatures checks whether the peer's Device1 UUIDs list
// the Audio Gateway role. It does not read the SupportedFeatures
// attribute of any SDP record: it always returns (0, false), so no
// SDP-learned feature bitmap ever reaches the handshake.
func lookupCachedFeatures(bus *dbus.Conn, devPath dbus.ObjectPath) (uint32, bool) {
	if bus == nil || devPath == "" {
		return 0, false
	}
	obj := bus.Object(bluezService, devPath)
	var uuidsVar dbus.Variant
	if call := obj.Call(propsIface+".Get", 0, deviceIface, "UUIDs"); call.Err != nil {
		return 0, false
	} else if err := call.Store(&uuidsVar); err != nil {
		return 0, false
	}
	uuids, _ := uuidsVar.Value().([]string)
	if !containsUUID(uuids, AudioGatewayUUID) {
		return 0, false
	}
	// BlueZ does not expose raw SDP attributes over Device1 directly;
	// ServiceData-derived features are not published by stock BlueZ
	// for RFCOMM profiles, so the best we can do without a dedicated
	// SDP client is report "advertises the AG role, feature bitmap
	// unknown" — the handshake treats that the same as "no cache".
	return 0, false
}

func listAdapters(bus *dbus.Conn) ([]dbus.ObjectPath, error) {
	obj := bus.Object(bluezService, dbus.ObjectPath("/"))
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if call := obj.Call(objManagerIface+".GetManagedObjects", 0); call.Err != nil {
		return nil, herr.New(herr.SyscallError, "bluez", "GetManagedObjects", call.Err)
	} else if err := call.Store(&objs); err != nil {
		return nil, herr.New(herr.SyscallError, "bluez", "decode GetManagedObjects", err)
	}
	var out []dbus.ObjectPath
	for path, ifaces := range objs {
		if _, ok := ifaces[adapterIface]; ok {
			out = append(out, path)
		}
	}
	return out, nil
}

func snapshotAGDevices(bus *dbus.Conn) (map[string]RemoteDevice, error) {
	obj := bus.Object(bluezService, dbus.ObjectPath("/"))
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if call := obj.Call(objManagerIface+".GetManagedObjects", 0); call.Err != nil {
		return nil, herr.New(herr.SyscallError, "bluez", "GetManagedObjects", call.Err)
	} else if err := call.Store(&objs); err != nil {
		return nil, herr.New(herr.SyscallError, "bluez", "decode GetManagedObjects", err)
	}
	out := make(map[string]RemoteDevice)
	for path, ifaces := range objs {
		if dev, ok := deviceFromIfaces(path, ifaces); ok {
			out[dev.Path] = dev
		}
	}
	return out, nil
}

func deviceFromIfaces(path dbus.ObjectPath, ifaces map[string]map[string]dbus.Variant) (RemoteDevice, bool) {
	props, ok := ifaces[deviceIface]
	if !ok {
		return RemoteDevice{}, false
	}
	vUUIDs, ok := props["UUIDs"]
	if !ok {
		return RemoteDevice{}, false
	}
	uu, _ := vUUIDs.Value().([]string)
	if !containsUUID(uu, AudioGatewayUUID) {
		return RemoteDevice{}, false
	}
	var addr, name, alias string
	var class uint32
	if v, ok := props["Address"]; ok {
		addr, _ = v.Value().(string)
	}
	if v, ok := props["Name"]; ok {
		name, _ = v.Value().(string)
	}
	if v, ok := props["Alias"]; ok {
		alias, _ = v.Value().(string)
	}
	if v, ok := props["Class"]; ok {
		if c, ok := v.Value().(uint32); ok {
			class = c
		}
	}
	if addr == "" {
		addr = macFromPath(path)
	}
	return RemoteDevice{Path: string(path), Address: addr, Name: name, Alias: alias, Class: class}, true
}

func containsUUID(list []string, target string) bool {
	for _, s := range list {
		if strings.EqualFold(s, target) {
			return true
		}
	}
	return false
}

func macFromPath(p dbus.ObjectPath) string {
	s := string(p)
	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return ""
	}
	mac := s[idx+5:]
	return strings.ReplaceAll(mac, "_", ":")
}
