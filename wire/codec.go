package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Encode serializes a Message into a length-prefixed frame: a little-endian
// u32 length followed by that many bytes of payload (tag byte + fields).
func Encode(msg Message) ([]byte, error) {
	var body bytes.Buffer

	tag, err := writeBody(&body, msg)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}

	payload := body.Bytes()
	if len(payload)+1 > MaxFrameLength {
		return nil, ErrFrameTooLarge
	}

	frame := make([]byte, 4+1+len(payload))
	binary.LittleEndian.PutUint32(frame[:4], uint32(len(payload)+1))
	frame[4] = tag
	copy(frame[5:], payload)

	return frame, nil
}

func writeBody(w *bytes.Buffer, msg Message) (uint8, error) {
	switch m := msg.(type) {
	case Hello:
		if err := binary.Write(w, binary.LittleEndian, m.ProtocolVersion); err != nil {
			return 0, err
		}
		if err := binary.Write(w, binary.LittleEndian, m.Flags); err != nil {
			return 0, err
		}
		if _, err := w.Write(m.SessionNonce[:]); err != nil {
			return 0, err
		}
		return TagHello, nil

	case Manifest:
		if err := binary.Write(w, binary.LittleEndian, uint32(len(m.Entries))); err != nil {
			return 0, err
		}
		for _, e := range m.Entries {
			if len(e.Path) > MaxPathLength {
				return 0, ErrStringTooLong
			}
			if err := binary.Write(w, binary.LittleEndian, uint16(len(e.Path))); err != nil {
				return 0, err
			}
			if _, err := w.WriteString(e.Path); err != nil {
				return 0, err
			}
			if err := binary.Write(w, binary.LittleEndian, e.Size); err != nil {
				return 0, err
			}
			if err := binary.Write(w, binary.LittleEndian, e.ModTimeUnixMilli); err != nil {
				return 0, err
			}
			if _, err := w.Write(e.Digest[:]); err != nil {
				return 0, err
			}
		}
		return TagManifest, nil

	case ResumeQuery:
		if err := binary.Write(w, binary.LittleEndian, m.EntryIndex); err != nil {
			return 0, err
		}
		return TagResumeQuery, nil

	case ResumeReply:
		if err := binary.Write(w, binary.LittleEndian, m.EntryIndex); err != nil {
			return 0, err
		}
		if err := binary.Write(w, binary.LittleEndian, m.HaveBytes); err != nil {
			return 0, err
		}
		if _, err := w.Write(m.HaveDigest[:]); err != nil {
			return 0, err
		}
		return TagResumeReply, nil

	case FileBegin:
		if err := binary.Write(w, binary.LittleEndian, m.EntryIndex); err != nil {
			return 0, err
		}
		if err := binary.Write(w, binary.LittleEndian, m.StartOffset); err != nil {
			return 0, err
		}
		return TagFileBegin, nil

	case Chunk:
		if err := binary.Write(w, binary.LittleEndian, m.EntryIndex); err != nil {
			return 0, err
		}
		if err := binary.Write(w, binary.LittleEndian, m.Offset); err != nil {
			return 0, err
		}
		if err := binary.Write(w, binary.LittleEndian, m.Flags); err != nil {
			return 0, err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(m.Payload))); err != nil {
			return 0, err
		}
		if _, err := w.Write(m.Payload); err != nil {
			return 0, err
		}
		return TagChunk, nil

	case FileEnd:
		if err := binary.Write(w, binary.LittleEndian, m.EntryIndex); err != nil {
			return 0, err
		}
		if _, err := w.Write(m.Digest[:]); err != nil {
			return 0, err
		}
		return TagFileEnd, nil

	case SessionEnd:
		return TagSessionEnd, nil

	case Error:
		if err := binary.Write(w, binary.LittleEndian, m.Code); err != nil {
			return 0, err
		}
		if _, err := w.WriteString(m.Message); err != nil {
			return 0, err
		}
		return TagError, nil

	default:
		return 0, fmt.Errorf("wire: unsupported message type %T", msg)
	}
}

// Decode reads exactly one frame from r: a 4-byte little-endian length
// prefix followed by that many payload bytes. It never reads past the
// length the prefix advertises. An unrecognized tag decodes into Unknown
// rather than failing, so the receiver engine can respond with its own
// ERROR frame per the protocol's tolerance requirement.
func Decode(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length == 0 {
		return nil, ErrEmptyPayload
	}
	if length > MaxFrameLength {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("wire: %w: %w", ErrTruncatedFrame, err)
	}

	tag := payload[0]
	body := bytes.NewReader(payload[1:])

	return decodeBody(tag, body, len(payload)-1)
}

func decodeBody(tag uint8, r *bytes.Reader, bodyLen int) (Message, error) {
	switch tag {
	case TagHello:
		var m Hello
		if err := binary.Read(r, binary.LittleEndian, &m.ProtocolVersion); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &m.Flags); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, m.SessionNonce[:]); err != nil {
			return nil, err
		}
		return m, nil

	case TagManifest:
		var count uint32
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return nil, err
		}
		entries := make([]ManifestEntry, 0, count)
		for i := uint32(0); i < count; i++ {
			var pathLen uint16
			if err := binary.Read(r, binary.LittleEndian, &pathLen); err != nil {
				return nil, err
			}
			if int(pathLen) > MaxPathLength {
				return nil, ErrStringTooLong
			}
			pathBuf := make([]byte, pathLen)
			if _, err := io.ReadFull(r, pathBuf); err != nil {
				return nil, err
			}
			var e ManifestEntry
			e.Path = string(pathBuf)
			if err := binary.Read(r, binary.LittleEndian, &e.Size); err != nil {
				return nil, err
			}
			if err := binary.Read(r, binary.LittleEndian, &e.ModTimeUnixMilli); err != nil {
				return nil, err
			}
			if _, err := io.ReadFull(r, e.Digest[:]); err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
		return Manifest{Entries: entries}, nil

	case TagResumeQuery:
		var m ResumeQuery
		if err := binary.Read(r, binary.LittleEndian, &m.EntryIndex); err != nil {
			return nil, err
		}
		return m, nil

	case TagResumeReply:
		var m ResumeReply
		if err := binary.Read(r, binary.LittleEndian, &m.EntryIndex); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &m.HaveBytes); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, m.HaveDigest[:]); err != nil {
			return nil, err
		}
		return m, nil

	case TagFileBegin:
		var m FileBegin
		if err := binary.Read(r, binary.LittleEndian, &m.EntryIndex); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &m.StartOffset); err != nil {
			return nil, err
		}
		return m, nil

	case TagChunk:
		var m Chunk
		if err := binary.Read(r, binary.LittleEndian, &m.EntryIndex); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &m.Offset); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &m.Flags); err != nil {
			return nil, err
		}
		var payloadLen uint32
		if err := binary.Read(r, binary.LittleEndian, &payloadLen); err != nil {
			return nil, err
		}
		if int(payloadLen) > r.Len() {
			return nil, ErrTruncatedFrame
		}
		m.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
		return m, nil

	case TagFileEnd:
		var m FileEnd
		if err := binary.Read(r, binary.LittleEndian, &m.EntryIndex); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, m.Digest[:]); err != nil {
			return nil, err
		}
		return m, nil

	case TagSessionEnd:
		return SessionEnd{}, nil

	case TagError:
		var m Error
		if err := binary.Read(r, binary.LittleEndian, &m.Code); err != nil {
			return nil, err
		}
		msgBuf := make([]byte, r.Len())
		if _, err := io.ReadFull(r, msgBuf); err != nil {
			return nil, err
		}
		m.Message = string(msgBuf)
		return m, nil

	default:
		rest := make([]byte, r.Len())
		io.ReadFull(r, rest)
		return Unknown{Tag: tag, Payload: rest}, nil
	}
}
