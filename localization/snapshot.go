package localization

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"sailguide/protocol"
)

// SnapshotSize is the encoded snapshot length including its CRC.
const SnapshotSize = snapshotBodySize + 2

const snapshotBodySize = 1 + 4*4

// ErrInvalidSnapshot is returned for a short or corrupted record
var ErrInvalidSnapshot = errors.New("invalid localization snapshot")

// Snapshot is the persisted part of a Localization.
type Snapshot struct {
	State         State
	PulseCount    int32
	EndPosMM      int32
	CenterPosMM   int32
	StartPosAbsMM int32
}

// Encode returns the little-endian record followed by its CRC16.
func (s Snapshot) Encode() []byte {
	b := make([]byte, SnapshotSize)
	b[0] = uint8(s.State)
	binary.LittleEndian.PutUint32(b[1:], uint32(s.PulseCount))
	binary.LittleEndian.PutUint32(b[5:], uint32(s.EndPosMM))
	binary.LittleEndian.PutUint32(b[9:], uint32(s.CenterPosMM))
	binary.LittleEndian.PutUint32(b[13:], uint32(s.StartPosAbsMM))
	binary.LittleEndian.PutUint16(b[snapshotBodySize:], protocol.CRC16(b[:snapshotBodySize]))
	return b
}

// DecodeSnapshot parses a record written by Encode.
func DecodeSnapshot(b []byte) (Snapshot, error) {
	if len(b) < SnapshotSize {
		return Snapshot{}, errors.Wrapf(ErrInvalidSnapshot, "short record: %d bytes", len(b))
	}
	crc := binary.LittleEndian.Uint16(b[snapshotBodySize:])
	if want := protocol.CRC16(b[:snapshotBodySize]); crc != want {
		return Snapshot{}, errors.Wrapf(ErrInvalidSnapshot, "crc 0x%04x, want 0x%04x", crc, want)
	}
	s := Snapshot{
		State:         State(b[0]),
		PulseCount:    int32(binary.LittleEndian.Uint32(b[1:])),
		EndPosMM:      int32(binary.LittleEndian.Uint32(b[5:])),
		CenterPosMM:   int32(binary.LittleEndian.Uint32(b[9:])),
		StartPosAbsMM: int32(binary.LittleEndian.Uint32(b[13:])),
	}
	if !s.State.Valid() {
		return Snapshot{}, errors.Wrapf(ErrInvalidSnapshot, "unknown state %d", b[0])
	}
	return s, nil
}
