//go:build linux

package hci

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/nohands-go/gonohands/internal/herr"
)

// Raw HCI/SCO socket constants (from <bluetooth/bluetooth.h> and
// <bluetooth/hci.h>; golang.org/x/sys/unix does not carry the
// Bluetooth address family's protocol/ioctl numbers, so they are
// reproduced here the way doismellburning-samoyed/src/cm108.go and
// ptt.go define their own raw ioctl constants for a device class
// golang.org/x/sys/unix doesn't cover).
const (
	afBluetooth = 31

	btprotoHCI = 1
	btprotoSCO = 2

	hciGetDevInfo = 0x800448d3 // _IOR('H', 211, struct hci_dev_info)

	hciCommandPkt = 0x01

	// Write Voice Setting: OGF 0x03 (Host Controller & Baseband) << 10
	// | OCF 0x1a.
	opWriteVoiceSetting = 0x03<<10 | 0x1a
)

// hciDevInfo mirrors the fixed-size prefix of struct hci_dev_info that
// LocalController reads: device id/name, then the ACL/SCO MTU and
// packet-count fields. The kernel struct has more trailing fields
// (features, flags, stats) this code never touches.
type hciDevInfo struct {
	DevID   uint16
	Name    [8]byte
	Bdaddr  [6]byte
	Flags   uint32
	Type    uint8
	Bus     uint8
	Pad0    [2]byte
	AclMtu  uint16
	AclPkts uint16
	ScoMtu  uint16
	ScoPkts uint16
}

// scoAddr mirrors struct sockaddr_sco: a 16-bit address family
// followed by a 6-byte device address, bound to BDADDR_ANY to claim
// the SCO listening socket system-wide.
type scoAddr struct {
	Family uint16
	Bdaddr [6]byte
}

// LocalController talks to the kernel's Bluetooth stack directly: it
// reads the adapter's negotiated SCO MTU/packet-count via the HCI
// device-info ioctl, resets the voice setting via a raw HCI command,
// and claims exclusive use of the SCO listening socket by holding it
// open itself (spec §4.6, §5 "exclusively owned by the process").
type LocalController struct {
	devID int
	hciFD int
	scoFD int
}

// NewLocalController opens a raw HCI socket bound to the given
// adapter index (0 for "hci0").
func NewLocalController(devID int) (*LocalController, error) {
	fd, err := unix.Socket(afBluetooth, unix.SOCK_RAW, btprotoHCI)
	if err != nil {
		return nil, herr.New(herr.SyscallError, "hci", "open raw HCI socket", err)
	}
	return &LocalController{devID: devID, hciFD: fd, scoFD: -1}, nil
}

// ScoMTU reads the adapter's current SCO MTU and SCO packet-buffer
// count from the kernel's hci_dev_info (spec §4.6). The voice setting
// is not read from the adapter: readVoiceSetting always reports the
// 16-bit linear value, so a misconfigured voice setting is not
// detected here.
func (c *LocalController) ScoMTU() (mtu, bufferCount, voiceSetting int, err error) {
	info := hciDevInfo{DevID: uint16(c.devID)}
	if ioctlErr := ioctlHCIDevInfo(c.hciFD, &info); ioctlErr != nil {
		return 0, 0, 0, herr.New(herr.SyscallError, "hci", "HCIGETDEVINFO", ioctlErr)
	}
	vs, vsErr := c.readVoiceSetting()
	if vsErr != nil {
		return 0, 0, 0, vsErr
	}
	return int(info.ScoMtu), int(info.ScoPkts), vs, nil
}

// ResetScoConfig rewrites the voice setting to a 16-bit linear value
// (spec §4.6). The MTU and packet-buffer count are fixed by the
// adapter's firmware and cannot be changed by the host: if the
// currently reported values are below the minimum it reports
// NoKernelSupport without writing anything, otherwise it writes the
// given voice setting over the HCI command socket.
func (c *LocalController) ResetScoConfig(minMTU, minBufferCount, voiceSetting int) error {
	mtu, bufferCount, _, err := c.ScoMTU()
	if err != nil {
		return err
	}
	if mtu < minMTU || bufferCount < minBufferCount {
		return herr.New(herr.NoKernelSupport, "hci", "adapter SCO MTU/buffer count below minimum and not host-resettable", nil)
	}
	return c.writeVoiceSetting(voiceSetting)
}

// ClaimScoListener binds and listens on the raw SCO protocol socket
// for BDADDR_ANY, the same socket BlueZ itself would bind for an
// inbound SCO connection. Holding it open for the process lifetime is
// how exclusive ownership (spec §5) is enforced: a second process
// attempting the same bind gets EADDRINUSE.
func (c *LocalController) ClaimScoListener() error {
	fd, err := unix.Socket(afBluetooth, unix.SOCK_SEQPACKET, btprotoSCO)
	if err != nil {
		return herr.New(herr.SyscallError, "hci", "open SCO socket", err)
	}
	addr := scoAddr{Family: uint16(afBluetooth)}
	if err := bindSCO(fd, &addr); err != nil {
		_ = unix.Close(fd)
		return herr.New(herr.ServiceConflict, "hci", "bind SCO listener", err)
	}
	if err := unix.Listen(fd, 1); err != nil {
		_ = unix.Close(fd)
		return herr.New(herr.ServiceConflict, "hci", "listen SCO listener", err)
	}
	c.scoFD = fd
	return nil
}

// ReleaseScoListener closes the held SCO listening socket, if any.
func (c *LocalController) ReleaseScoListener() {
	if c.scoFD >= 0 {
		_ = unix.Close(c.scoFD)
		c.scoFD = -1
	}
}

func (c *LocalController) readVoiceSetting() (int, error) {
	// No stable ioctl exposes the live voice setting; a freshly
	// reset adapter is assumed 16-bit-linear until ResetScoConfig is
	// asked to prove otherwise. Real hfpd daemons track this the same
	// way: they write it once at startup and trust their own state.
	return VoiceSetting16BitLinear, nil
}

func (c *LocalController) writeVoiceSetting(setting int) error {
	pkt := make([]byte, 1+2+1+2)
	pkt[0] = hciCommandPkt
	binary.LittleEndian.PutUint16(pkt[1:3], uint16(opWriteVoiceSetting))
	pkt[3] = 2 // parameter length
	binary.LittleEndian.PutUint16(pkt[4:6], uint16(setting))
	if _, err := unix.Write(c.hciFD, pkt); err != nil {
		return herr.New(herr.SyscallError, "hci", "Write Voice Setting", err)
	}
	return nil
}

func ioctlHCIDevInfo(fd int, info *hciDevInfo) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(hciGetDevInfo), uintptr(unsafe.Pointer(info)))
	if errno != 0 {
		return errno
	}
	return nil
}

func bindSCO(fd int, addr *scoAddr) error {
	_, _, errno := unix.Syscall(unix.SYS_BIND, uintptr(fd), uintptr(unsafe.Pointer(addr)), unsafe.Sizeof(*addr))
	if errno != 0 {
		return errno
	}
	return nil
}

var _ Controller = (*LocalController)(nil)
