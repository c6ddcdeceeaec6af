package compress

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeChunkPayloadRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x00}, 1<<20) // highly compressible

	payload, flags, err := EncodeChunkPayload(raw)
	require.NoError(t, err)
	assert.NotZero(t, flags, "zero-byte chunk should compress well under threshold")
	assert.Less(t, len(payload), 10*1024)

	got, err := DecodeChunkPayload(payload, flags)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestEncodeChunkPayloadSkipsIncompressibleData(t *testing.T) {
	raw := make([]byte, 64*1024)
	_, err := rand.Read(raw)
	require.NoError(t, err)

	payload, flags, err := EncodeChunkPayload(raw)
	require.NoError(t, err)
	assert.Zero(t, flags)
	assert.Equal(t, raw, payload)

	got, err := DecodeChunkPayload(payload, flags)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}
