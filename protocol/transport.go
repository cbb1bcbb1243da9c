package protocol

import (
	"bytes"

	"go.uber.org/atomic"
)

// CommandHandler runs one decoded command. data holds the rest of the frame
// and the handler consumes its own arguments from it.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the device end of the link. Receive is called from the main
// loop with whatever bytes have arrived. Every complete frame is answered
// with an ACK carrying the next expected sequence; in-sequence frames are
// also handed to the command handler. A host that restarts at MessageDest is
// accepted without a reset command.
type Transport struct {
	synced  atomic.Bool
	nextSeq atomic.Uint32 // 0x10-0x1F

	output    OutputBuffer
	handler   CommandHandler
	onFailure func(cmdID uint16, err error)
	onReset   func()
}

// NewTransport returns a transport expecting the first host sequence.
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{output: output, handler: handler}
	t.synced.Store(true)
	t.nextSeq.Store(MessageDest)
	return t
}

// Receive consumes complete frames from input. A trailing partial frame is
// left in place for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()
	for len(data) > 0 {
		if !t.synced.Load() {
			data = t.resync(data)
			continue
		}
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		n, status := checkFrame(data)
		if status == frameIncomplete {
			break
		}
		if status == frameBad {
			t.synced.Store(false)
			continue
		}
		t.accept(data[MessagePositionSeq], data[MessageHeaderSize:n-MessageTrailerSize])
		data = data[n:]
	}
	if used := input.Available() - len(data); used > 0 {
		input.Pop(used)
	}
}

// resync drops bytes up to and including the next sync byte. Finding one
// answers with a NAK so the host retransmits.
func (t *Transport) resync(data []byte) []byte {
	i := bytes.IndexByte(data, MessageValueSync)
	if i < 0 {
		return nil
	}
	t.synced.Store(true)
	t.ack()
	return data[i+1:]
}

func (t *Transport) accept(seq uint8, payload []byte) {
	want := uint8(t.nextSeq.Load())
	if seq == MessageDest && want != MessageDest {
		want = MessageDest
		t.nextSeq.Store(MessageDest)
		if t.onReset != nil {
			t.onReset()
		}
	}
	if seq == want {
		t.nextSeq.Store(uint32(nextSeq(seq)))
		t.dispatch(payload)
	}
	t.ack()
}

// dispatch runs every command in payload. A handler error stops the frame
// but leaves the link in sync; a malformed ID does not.
func (t *Transport) dispatch(payload []byte) {
	for len(payload) > 0 && t.handler != nil {
		id, err := DecodeVLQUint(&payload)
		if err != nil {
			t.synced.Store(false)
			return
		}
		if err := t.handler(uint16(id), &payload); err != nil {
			if t.onFailure != nil {
				t.onFailure(uint16(id), err)
			}
			return
		}
	}
}

func (t *Transport) ack() {
	EncodeFrameTo(t.output, uint8(t.nextSeq.Load()), nil)
}

// SendResponse queues a frame holding msgID followed by whatever args writes.
func (t *Transport) SendResponse(msgID uint16, args func(output OutputBuffer)) {
	EncodeFrameTo(t.output, uint8(t.nextSeq.Load()), func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(msgID))
		if args != nil {
			args(output)
		}
	})
}

// Reset forgets the host sequence, as after a reconnect.
func (t *Transport) Reset() {
	t.synced.Store(true)
	t.nextSeq.Store(MessageDest)
	if t.onReset != nil {
		t.onReset()
	}
}

// SetResetCallback registers fn to run whenever the host sequence restarts.
func (t *Transport) SetResetCallback(fn func()) { t.onReset = fn }

// SetErrorCallback registers fn to run when a command handler fails.
func (t *Transport) SetErrorCallback(fn func(cmdID uint16, err error)) { t.onFailure = fn }
