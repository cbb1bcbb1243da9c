package protocol

import (
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
)

func hostFrame(seq uint8, cmdID uint16, args ...int32) []byte {
	out := NewScratchOutput()
	EncodeFrameTo(out, seq, func(o OutputBuffer) {
		EncodeVLQUint(o, uint32(cmdID))
		for _, a := range args {
			EncodeVLQInt(o, a)
		}
	})
	return append([]byte(nil), out.Result()...)
}

type received struct {
	cmdID uint16
	arg   int32
}

func newDevice(t *testing.T) (*Transport, *ScratchOutput, *[]received) {
	t.Helper()
	var got []received
	out := NewScratchOutput()
	tr := NewTransport(out, func(cmdID uint16, data *[]byte) error {
		arg, err := DecodeVLQInt(data)
		if err != nil {
			return err
		}
		got = append(got, received{cmdID, arg})
		return nil
	})
	return tr, out, &got
}

func TestTransportDispatchAndAck(t *testing.T) {
	tr, out, got := newDevice(t)

	tr.Receive(NewSliceInputBuffer(hostFrame(MessageDest, 5, -42)))

	test.That(t, *got, test.ShouldResemble, []received{{5, -42}})
	n, status := checkFrame(out.Result())
	test.That(t, status, test.ShouldEqual, frameOK)
	test.That(t, n, test.ShouldEqual, MessageLengthMin)
	test.That(t, out.Result()[MessagePositionSeq], test.ShouldEqual, uint8(MessageDest+1))
}

func TestTransportSequence(t *testing.T) {
	t.Run("repeated sequence is acked but not dispatched", func(t *testing.T) {
		tr, out, got := newDevice(t)
		frame := hostFrame(MessageDest, 1, 7)
		tr.Receive(NewSliceInputBuffer(frame))
		out.Reset()
		tr.Receive(NewSliceInputBuffer(frame))

		test.That(t, len(*got), test.ShouldEqual, 1)
		test.That(t, out.Result()[MessagePositionSeq], test.ShouldEqual, uint8(MessageDest+1))
	})

	t.Run("sequence wraps within window", func(t *testing.T) {
		test.That(t, nextSeq(0x1F), test.ShouldEqual, uint8(0x10))
		test.That(t, nextSeq(0x13), test.ShouldEqual, uint8(0x14))
	})

	t.Run("host restart resets sequence", func(t *testing.T) {
		tr, _, got := newDevice(t)
		resets := 0
		tr.SetResetCallback(func() { resets++ })

		tr.Receive(NewSliceInputBuffer(hostFrame(MessageDest, 1, 1)))
		tr.Receive(NewSliceInputBuffer(hostFrame(MessageDest, 2, 2)))

		test.That(t, resets, test.ShouldEqual, 1)
		test.That(t, *got, test.ShouldResemble, []received{{1, 1}, {2, 2}})
	})
}

func TestTransportCorruptFrame(t *testing.T) {
	tr, out, got := newDevice(t)
	frame := hostFrame(MessageDest, 3, 9)
	frame[MessageHeaderSize] ^= 0xFF

	tr.Receive(NewSliceInputBuffer(frame))

	test.That(t, *got, test.ShouldBeEmpty)
	// NAK: empty frame still expecting the first sequence
	_, status := checkFrame(out.Result())
	test.That(t, status, test.ShouldEqual, frameOK)
	test.That(t, out.Result()[MessagePositionSeq], test.ShouldEqual, uint8(MessageDest))

	out.Reset()
	tr.Receive(NewSliceInputBuffer(hostFrame(MessageDest, 3, 9)))
	test.That(t, *got, test.ShouldResemble, []received{{3, 9}})
}

func TestTransportPartialInput(t *testing.T) {
	tr, _, got := newDevice(t)
	frame := hostFrame(MessageDest, 4, 100)
	fifo := NewFifoBuffer(64)

	fifo.Write(frame[:3])
	tr.Receive(fifo)
	test.That(t, *got, test.ShouldBeEmpty)
	test.That(t, fifo.Available(), test.ShouldEqual, 3)

	fifo.Write(frame[3:])
	tr.Receive(fifo)
	test.That(t, *got, test.ShouldResemble, []received{{4, 100}})
	test.That(t, fifo.IsEmpty(), test.ShouldBeTrue)
}

func TestTransportHandlerError(t *testing.T) {
	out := NewScratchOutput()
	var failed uint16
	tr := NewTransport(out, func(cmdID uint16, data *[]byte) error {
		return ErrBufferTooSmall
	})
	tr.SetErrorCallback(func(cmdID uint16, err error) { failed = cmdID })

	tr.Receive(NewSliceInputBuffer(hostFrame(MessageDest, 8)))

	test.That(t, failed, test.ShouldEqual, uint16(8))
	test.That(t, out.Result()[MessagePositionSeq], test.ShouldEqual, uint8(MessageDest+1))
}

func TestHostTransportRoundTrip(t *testing.T) {
	hostConn, deviceConn := net.Pipe()

	out := NewScratchOutput()
	var dev *Transport
	dev = NewTransport(out, func(cmdID uint16, data *[]byte) error {
		v, err := DecodeVLQInt(data)
		if err != nil {
			return err
		}
		dev.SendResponse(cmdID+100, func(o OutputBuffer) {
			EncodeVLQInt(o, v*2)
		})
		return nil
	})

	go func() {
		fifo := NewFifoBuffer(256)
		buf := make([]byte, 64)
		for {
			n, err := deviceConn.Read(buf)
			if err != nil {
				return
			}
			fifo.Write(buf[:n])
			dev.Receive(fifo)
			if res := out.Result(); len(res) > 0 {
				if _, err := deviceConn.Write(append([]byte(nil), res...)); err != nil {
					return
				}
				out.Reset()
			}
		}
	}()

	host := NewHostTransport(hostConn, clock.New())
	defer func() {
		test.That(t, host.Close(), test.ShouldBeNil)
		deviceConn.Close()
	}()

	for i := int32(1); i <= 3; i++ {
		err := host.SendCommand(7, func(o OutputBuffer) { EncodeVLQInt(o, i) }, time.Second)
		test.That(t, err, test.ShouldBeNil)

		msg, err := host.ReceiveResponse(time.Second)
		test.That(t, err, test.ShouldBeNil)
		payload := msg.Payload
		id, err := DecodeVLQUint(&payload)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, id, test.ShouldEqual, uint32(107))
		v, err := DecodeVLQInt(&payload)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, v, test.ShouldEqual, i*2)
	}
}

func TestHostTransportTimeout(t *testing.T) {
	hostConn, deviceConn := net.Pipe()
	defer deviceConn.Close()
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := deviceConn.Read(buf); err != nil {
				return
			}
		}
	}()

	mock := clock.NewMock()
	host := NewHostTransport(hostConn, mock)
	defer host.Close()

	done := make(chan error, 1)
	go func() {
		_, err := host.ReceiveResponse(time.Second)
		done <- err
	}()

	// Keep advancing until the waiter has registered its timer
	for {
		mock.Add(time.Second)
		select {
		case err := <-done:
			test.That(t, err, test.ShouldEqual, ErrTimeout)
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}
