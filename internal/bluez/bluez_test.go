package bluez

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
)

func TestContainsUUIDIsCaseInsensitive(t *testing.T) {
	list := []string{"0000111E-0000-1000-8000-00805F9B34FB"}
	assert.True(t, containsUUID(list, HandsfreeUnitUUID))
	assert.False(t, containsUUID(list, AudioGatewayUUID))
}

func TestMacFromPathExtractsAndReformatsAddress(t *testing.T) {
	p := dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF")
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", macFromPath(p))
}

func TestMacFromPathEmptyOnNoDevSegment(t *testing.T) {
	assert.Equal(t, "", macFromPath(dbus.ObjectPath("/org/bluez/hci0")))
}

func TestDeviceFromIfacesRequiresAudioGatewayUUID(t *testing.T) {
	ifaces := map[string]map[string]dbus.Variant{
		deviceIface: {
			"UUIDs":   dbus.MakeVariant([]string{HandsfreeUnitUUID}),
			"Address": dbus.MakeVariant("11:22:33:44:55:66"),
		},
	}
	_, ok := deviceFromIfaces("/org/bluez/hci0/dev_11_22_33_44_55_66", ifaces)
	assert.False(t, ok, "a device advertising only the HF role is not an Audio Gateway")
}

func TestDeviceFromIfacesExtractsFields(t *testing.T) {
	ifaces := map[string]map[string]dbus.Variant{
		deviceIface: {
			"UUIDs":   dbus.MakeVariant([]string{AudioGatewayUUID}),
			"Address": dbus.MakeVariant("11:22:33:44:55:66"),
			"Name":    dbus.MakeVariant("Test Phone"),
			"Alias":   dbus.MakeVariant("Phone"),
			"Class":   dbus.MakeVariant(uint32(0x200408)),
		},
	}
	dev, ok := deviceFromIfaces("/org/bluez/hci0/dev_11_22_33_44_55_66", ifaces)
	assert.True(t, ok)
	assert.Equal(t, "11:22:33:44:55:66", dev.Address)
	assert.Equal(t, "Test Phone", dev.Name)
	assert.Equal(t, "Phone", dev.Alias)
	assert.Equal(t, uint32(0x200408), dev.Class)
}

func TestDeviceFromIfacesFallsBackToPathDerivedAddress(t *testing.T) {
	ifaces := map[string]map[string]dbus.Variant{
		deviceIface: {
			"UUIDs": dbus.MakeVariant([]string{AudioGatewayUUID}),
		},
	}
	dev, ok := deviceFromIfaces("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF", ifaces)
	assert.True(t, ok)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", dev.Address)
}

func TestDeviceFromIfacesSkipsObjectsWithoutDeviceInterface(t *testing.T) {
	ifaces := map[string]map[string]dbus.Variant{
		adapterIface: {"Address": dbus.MakeVariant("11:22:33:44:55:66")},
	}
	_, ok := deviceFromIfaces("/org/bluez/hci0", ifaces)
	assert.False(t, ok)
}
