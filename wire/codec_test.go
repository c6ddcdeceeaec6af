package wire

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()

	framed, err := Encode(msg)
	require.NoError(t, err)

	got, err := Decode(bytes.NewReader(framed))
	require.NoError(t, err)

	return got
}

func TestHelloRoundTrip(t *testing.T) {
	var nonce [16]byte
	_, err := rand.Read(nonce[:])
	require.NoError(t, err)

	want := Hello{ProtocolVersion: ProtocolVersion, Flags: FlagCompressionSupported, SessionNonce: nonce}
	got := roundTrip(t, want)

	assert.Equal(t, want, got)
}

func TestManifestRoundTrip(t *testing.T) {
	want := Manifest{Entries: []ManifestEntry{
		{Path: "a/b.txt", Size: 10, ModTimeUnixMilli: 1234567890},
		{Path: "a/c/d.txt", Size: 0, ModTimeUnixMilli: 42, Digest: Digest{1, 2, 3}},
	}}

	got := roundTrip(t, want)
	assert.Equal(t, want, got)
}

func TestResumeQueryReplyRoundTrip(t *testing.T) {
	q := ResumeQuery{EntryIndex: 7}
	assert.Equal(t, q, roundTrip(t, q))

	rep := ResumeReply{EntryIndex: 7, HaveBytes: 4096, HaveDigest: Digest{9}}
	assert.Equal(t, rep, roundTrip(t, rep))
}

func TestFileBeginEndRoundTrip(t *testing.T) {
	fb := FileBegin{EntryIndex: 3, StartOffset: 1024}
	assert.Equal(t, fb, roundTrip(t, fb))

	fe := FileEnd{EntryIndex: 3, Digest: Digest{0xFF}}
	assert.Equal(t, fe, roundTrip(t, fe))
}

func TestChunkRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 4096)
	c := Chunk{EntryIndex: 1, Offset: 512, Flags: ChunkFlagCompressed, Payload: payload}

	got := roundTrip(t, c).(Chunk)
	assert.Equal(t, c.EntryIndex, got.EntryIndex)
	assert.Equal(t, c.Offset, got.Offset)
	assert.Equal(t, c.Flags, got.Flags)
	assert.Equal(t, c.Payload, got.Payload)
	assert.True(t, got.Compressed())
}

func TestSessionEndRoundTrip(t *testing.T) {
	assert.Equal(t, SessionEnd{}, roundTrip(t, SessionEnd{}))
}

func TestErrorRoundTrip(t *testing.T) {
	e := Error{Code: ErrCodePathTraversal, Message: "path escapes save_dir"}
	assert.Equal(t, e, roundTrip(t, e))
}

func TestDecodeUnknownTag(t *testing.T) {
	frame, err := Encode(Hello{ProtocolVersion: ProtocolVersion})
	require.NoError(t, err)

	// Corrupt the tag byte (offset 4, right after the length prefix) to an
	// unrecognized value.
	frame[4] = 0x42

	got, err := Decode(bytes.NewReader(frame))
	require.NoError(t, err)

	unknown, ok := got.(Unknown)
	require.True(t, ok)
	assert.Equal(t, uint8(0x42), unknown.Tag)
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	var lenBuf [4]byte
	lenBuf[0] = 0xFF
	lenBuf[1] = 0xFF
	lenBuf[2] = 0xFF
	lenBuf[3] = 0x7F // far beyond MaxFrameLength

	_, err := Decode(bytes.NewReader(lenBuf[:]))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDecodeNeverReadsPastAdvertisedLength(t *testing.T) {
	msg := FileBegin{EntryIndex: 1, StartOffset: 2}
	frame, err := Encode(msg)
	require.NoError(t, err)

	trailing := append(frame, []byte("trailing garbage that must not be consumed")...)

	r := bytes.NewReader(trailing)
	got, err := Decode(r)
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	// Everything after the frame must remain unread.
	remaining := make([]byte, r.Len())
	_, err = r.Read(remaining)
	require.NoError(t, err)
	assert.Equal(t, "trailing garbage that must not be consumed", string(remaining))
}

func TestDecodeTruncatedFrame(t *testing.T) {
	msg := Chunk{EntryIndex: 1, Offset: 0, Payload: []byte("hello world")}
	frame, err := Encode(msg)
	require.NoError(t, err)

	truncated := frame[:len(frame)-4]
	_, err = Decode(bytes.NewReader(truncated))
	assert.Error(t, err)
}

func TestEncodeRejectsOverlongPath(t *testing.T) {
	longPath := string(make([]byte, MaxPathLength+1))
	_, err := Encode(Manifest{Entries: []ManifestEntry{{Path: longPath}}})
	assert.ErrorIs(t, err, ErrStringTooLong)
}
