// Package protocol implements the framed serial link between the guide
// firmware and a host console.
//
// A frame is: length, sequence, VLQ-encoded payload, CRC16 (big endian) and a
// trailing sync byte. The device acknowledges every frame with an empty frame
// carrying the next expected sequence.
package protocol

// Version is the link protocol revision reported by get_status
const Version = 1

// Frame layout
const (
	MessageMax         = 256 // Output scratch size, room for several frames
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F
)

// nextSeq advances a sequence number within the 0x10-0x1F window.
func nextSeq(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}

// EncodeFrameTo appends a complete frame around payload to out.
func EncodeFrameTo(out OutputBuffer, seq uint8, payload func(output OutputBuffer)) {
	cursor := out.CurPosition()

	// Header: length placeholder and sequence
	out.Output([]byte{0, seq})
	if payload != nil {
		payload(out)
	}

	changed := len(out.DataSince(cursor))
	out.Update(cursor, uint8(changed+MessageTrailerSize))

	crc := CRC16(out.DataSince(cursor))
	out.Output([]byte{
		uint8((crc & 0xFF00) >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})
}

// frameStatus is the result of scanning the head of a buffer for a frame.
type frameStatus uint8

const (
	frameOK frameStatus = iota
	frameIncomplete
	frameBad
)

// checkFrame validates the frame at the head of data.
func checkFrame(data []byte) (int, frameStatus) {
	if len(data) < MessageLengthMin {
		return 0, frameIncomplete
	}
	msgLen := int(data[MessagePositionLen])
	if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
		return 0, frameBad
	}
	if data[MessagePositionSeq]&^MessageSeqMask != MessageDest {
		return 0, frameBad
	}
	if len(data) < msgLen {
		return 0, frameIncomplete
	}
	if data[msgLen-MessageTrailerSync] != MessageValueSync {
		return 0, frameBad
	}
	frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
		uint16(data[msgLen-MessageTrailerCRC+1])
	if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
		return 0, frameBad
	}
	return msgLen, frameOK
}
