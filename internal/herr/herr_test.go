package herr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasKindMatchesWrappedError(t *testing.T) {
	cause := errors.New("boom")
	err := New(CommandAborted, "atcmd", "queue drained", cause)
	assert.True(t, HasKind(err, CommandAborted))
	assert.False(t, HasKind(err, CommandRejected))
}

func TestKindOfReturnsFalseForPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestUnwrapExposesUnderlyingCause(t *testing.T) {
	cause := errors.New("ECONNRESET")
	err := Wrap(SyscallError, "rfcomm", cause)
	assert.True(t, errors.Is(err, cause))
}

func TestErrorsIsMatchesOnKindAlone(t *testing.T) {
	a := New(WatchdogTimeout, "pump", "stalled", nil)
	b := New(WatchdogTimeout, "pump", "different reason", errors.New("x"))
	assert.True(t, errors.Is(a, b))
}

func TestErrorMessageIncludesScopeKindReasonAndCause(t *testing.T) {
	cause := errors.New("underlying")
	err := New(BadPumpConfig, "pump", "no clocked endpoint", cause)
	assert.Equal(t, "pump: BadPumpConfig: no clocked endpoint: underlying", err.Error())
}

func TestKindStringCoversEveryDeclaredKind(t *testing.T) {
	kinds := []Kind{
		NotConnected, ProtocolViolation, SyscallError, UserDisconnect,
		BadScoConfig, ServiceConflict, NoKernelSupport,
		CommandRejected, CommandAborted, BadParameter,
		DuplexMismatch, FormatMismatch, NoClock, BadPumpConfig,
		DataExhausted, SoundcardFailed, WatchdogTimeout, AlreadyOpen, NoMem,
	}
	for _, k := range kinds {
		assert.NotEqual(t, "Unknown", k.String())
	}
}
