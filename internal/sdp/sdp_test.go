package sdp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandsFreeRecordRoundTripsSupportedFeatures(t *testing.T) {
	record := HandsFreeRecord(15)
	features, ok := FeaturesFromRecord(record)
	require.True(t, ok)
	assert.EqualValues(t, 15, features)
}

func TestHandsFreeRecordIsNonEmpty(t *testing.T) {
	record := HandsFreeRecord(0)
	assert.NotEmpty(t, record)
	assert.Equal(t, byte(deSeq8), record[0])
}
