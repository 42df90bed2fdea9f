package hci

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nohands-go/gonohands/internal/device"
	"github.com/nohands-go/gonohands/internal/herr"
	"github.com/nohands-go/gonohands/internal/sco"
)

type fakeController struct {
	mtu, bufferCount, voiceSetting int
	scoErr                         error
	resetErr                       error
	claimErr                       error
	resetCalled                    bool
	released                       bool
}

func (c *fakeController) ScoMTU() (int, int, int, error) {
	return c.mtu, c.bufferCount, c.voiceSetting, c.scoErr
}

func (c *fakeController) ResetScoConfig(mtu, bufferCount, voiceSetting int) error {
	c.resetCalled = true
	if c.resetErr != nil {
		return c.resetErr
	}
	c.mtu, c.bufferCount, c.voiceSetting = mtu, bufferCount, voiceSetting
	return nil
}

func (c *fakeController) ClaimScoListener() error { return c.claimErr }
func (c *fakeController) ReleaseScoListener()     { c.released = true }

func goodController() *fakeController {
	return &fakeController{mtu: sco.MinMTU, bufferCount: sco.MinPacketBuffers, voiceSetting: sco.VoiceSetting16BitLinear}
}

func TestNewSucceedsWithValidConfig(t *testing.T) {
	c := goodController()
	h, err := New(c)
	require.NoError(t, err)
	assert.False(t, c.resetCalled)
	assert.NotNil(t, h.Registry)
}

func TestNewResetsMisconfiguredControllerThenSucceeds(t *testing.T) {
	c := &fakeController{mtu: 16, bufferCount: 2, voiceSetting: 0}
	_, err := New(c)
	require.NoError(t, err)
	assert.True(t, c.resetCalled)
}

func TestNewFailsWhenResetCannotFixConfig(t *testing.T) {
	c := &fakeController{mtu: 16, bufferCount: 2, voiceSetting: 0, resetErr: errors.New("reset not supported")}
	_, err := New(c)
	assert.Error(t, err)
}

func TestNewFailsWithServiceConflictWhenListenerAlreadyHeld(t *testing.T) {
	c := goodController()
	c.claimErr = errors.New("already bound")
	_, err := New(c)
	require.Error(t, err)
	assert.True(t, herr.HasKind(err, herr.ServiceConflict))
}

func TestCloseReleasesListener(t *testing.T) {
	c := goodController()
	h, err := New(c)
	require.NoError(t, err)
	h.Close()
	assert.True(t, c.released)
}

func TestDeviceForCreatesAndCachesNameAndClass(t *testing.T) {
	c := goodController()
	h, err := New(c)
	require.NoError(t, err)

	addr, err := device.ParseAddr("AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)

	handle := h.DeviceFor(addr, "phone", device.Class(0x408))
	assert.Equal(t, "phone", handle.Name())
	assert.True(t, RecognizeLocalClass(handle.Class()))
}

func TestDeviceForLeavesCachedValuesOnEmptyUpdate(t *testing.T) {
	c := goodController()
	h, err := New(c)
	require.NoError(t, err)

	addr, err := device.ParseAddr("11:22:33:44:55:66")
	require.NoError(t, err)

	h.DeviceFor(addr, "phone", device.Class(0x408))
	handle := h.DeviceFor(addr, "", 0)
	assert.Equal(t, "phone", handle.Name())
}
