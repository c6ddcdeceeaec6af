// Package compress implements gobyte's optional per-chunk LZ4 compression
// and the receiver's streaming archive-extraction pipelines, per spec §4.4.
package compress

import (
	"encoding/binary"
	"errors"

	"github.com/pierrec/lz4/v4"

	"github.com/toolza/gobyte/wire"
)

// skipThreshold is the spec's 97% rule: if the compressed output is at
// least this fraction of the input, send the raw payload instead and clear
// the compression flag — compression is never mandatory for correctness.
const skipThreshold = 0.97

// ErrShortPayload is returned when a CHUNK marked compressed is too small
// to contain the decompressed-length prefix.
var ErrShortPayload = errors.New("compress: compressed payload missing length prefix")

// EncodeChunkPayload decides, per spec §4.4, whether to LZ4-compress raw
// before it goes on the wire. LZ4's block format carries no length header
// of its own, so when compression wins, the returned payload is prefixed
// with a little-endian u32 giving the decompressed length the receiver
// must allocate before calling UncompressBlock; DecodeChunkPayload is the
// inverse. The CHUNK frame's flags bit communicates which form the payload
// is in.
func EncodeChunkPayload(raw []byte) (payload []byte, flags uint8, err error) {
	bound := lz4.CompressBlockBound(len(raw))
	buf := make([]byte, 4+bound)

	var compressor lz4.Compressor
	n, err := compressor.CompressBlock(raw, buf[4:])
	if err != nil {
		return nil, 0, err
	}

	if n == 0 || float64(n) >= skipThreshold*float64(len(raw)) {
		// Incompressible, or not worth the wire savings: send raw.
		return raw, 0, nil
	}

	binary.LittleEndian.PutUint32(buf[:4], uint32(len(raw)))
	return buf[:4+n], wire.ChunkFlagCompressed, nil
}

// DecodeChunkPayload reverses EncodeChunkPayload using the CHUNK frame's
// flags to tell raw and compressed payloads apart.
func DecodeChunkPayload(payload []byte, flags uint8) ([]byte, error) {
	if flags&wire.ChunkFlagCompressed == 0 {
		return payload, nil
	}

	if len(payload) < 4 {
		return nil, ErrShortPayload
	}

	originalLen := binary.LittleEndian.Uint32(payload[:4])
	out := make([]byte, originalLen)

	n, err := lz4.UncompressBlock(payload[4:], out)
	if err != nil {
		return nil, err
	}

	return out[:n], nil
}
