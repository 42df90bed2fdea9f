package hfp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePhoneNumberBoundary(t *testing.T) {
	assert.NoError(t, ValidatePhoneNumber(strings.Repeat("1", 31)))
	assert.Error(t, ValidatePhoneNumber(strings.Repeat("1", 32)))
	assert.NoError(t, ValidatePhoneNumber("+1555#*w"))
	assert.Error(t, ValidatePhoneNumber(""))
	assert.Error(t, ValidatePhoneNumber("555-1234"))
}

func TestSendDTMFRejectsNonDTMFChar(t *testing.T) {
	s, _, _ := newHandshakenSession(t)
	_, err := s.SendDTMF('x')
	assert.Error(t, err)
	_, err = s.SendDTMF('5')
	assert.NoError(t, err)
}

func TestSubscriberNumberDeliversParsedIdentity(t *testing.T) {
	s, tr, _ := newHandshakenSession(t)
	f, result, err := s.SubscriberNumber()
	require.NoError(t, err)
	require.Contains(t, tr.lastWritten(), "AT+CNUM")

	s.HandleRfcommData([]byte("\r\n+CNUM: \"\",\"5551234\",129,,4\r\n"))
	s.HandleRfcommData([]byte("\r\nOK\r\n"))
	<-f.Done()

	select {
	case cli := <-result:
		assert.Equal(t, "5551234", cli.Number)
	default:
		t.Fatal("expected a parsed subscriber number")
	}
}

func TestGainCommandsValidateRange(t *testing.T) {
	s, _, _ := newHandshakenSession(t)
	_, err := s.SetSpeakerGain(16)
	assert.Error(t, err)
	_, err = s.SetSpeakerGain(15)
	assert.NoError(t, err)
	_, err = s.SetMicGain(-1)
	assert.Error(t, err)
}
