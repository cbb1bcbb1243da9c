package protocol

import (
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// ErrTimeout is returned when the device does not answer in time
var ErrTimeout = errors.New("timed out waiting for device")

// ErrClosed is returned once the transport has been closed
var ErrClosed = errors.New("transport closed")

// Message is a parsed frame received from the device
type Message struct {
	Sequence uint8
	Payload  []byte // Frame data without header/trailer
}

// HostTransport is the console end of the link: it sends commands, waits for
// the device ACK and collects response frames.
type HostTransport struct {
	port  io.ReadWriteCloser
	clock clock.Clock

	currentSeq atomic.Uint32

	inputBuffer  *FifoBuffer
	ackChan      chan *Message
	responseChan chan *Message

	writeMutex sync.Mutex

	closed   atomic.Bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewHostTransport creates a host-side transport and starts its reader
func NewHostTransport(port io.ReadWriteCloser, clk clock.Clock) *HostTransport {
	t := &HostTransport{
		port:         port,
		clock:        clk,
		inputBuffer:  NewFifoBuffer(512),
		ackChan:      make(chan *Message, 1),
		responseChan: make(chan *Message, 16),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	t.currentSeq.Store(MessageDest)

	go t.readLoop()
	return t
}

// SendCommand sends a command and waits for its ACK
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	if t.closed.Load() {
		return ErrClosed
	}

	msg, err := t.buildCommandMessage(cmdID, args)
	if err != nil {
		return errors.Wrap(err, "failed to build command")
	}

	// Drop a stale ACK left over from an earlier timed out exchange
	select {
	case <-t.ackChan:
	default:
	}

	t.writeMutex.Lock()
	_, err = t.port.Write(msg)
	t.writeMutex.Unlock()
	if err != nil {
		return errors.Wrap(err, "failed to write message")
	}

	ack, err := t.wait(t.ackChan, timeout)
	if err != nil {
		return errors.Wrapf(err, "no ACK for command %d", cmdID)
	}
	t.currentSeq.Store(uint32(ack.Sequence))
	return nil
}

// ReceiveResponse waits for the next response frame
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	return t.wait(t.responseChan, timeout)
}

func (t *HostTransport) wait(ch <-chan *Message, timeout time.Duration) (*Message, error) {
	timer := t.clock.Timer(timeout)
	defer timer.Stop()

	select {
	case msg := <-ch:
		return msg, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-t.doneChan:
		return nil, ErrClosed
	}
}

func (t *HostTransport) buildCommandMessage(cmdID uint16, args func(output OutputBuffer)) ([]byte, error) {
	scratch := NewScratchOutput()
	EncodeFrameTo(scratch, uint8(t.currentSeq.Load()), func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})

	msg := scratch.Result()
	if len(msg) > MessageLengthMax {
		return nil, errors.Errorf("message too long: %d bytes (max %d)", len(msg), MessageLengthMax)
	}
	return msg, nil
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buf := make([]byte, 128)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if n > 0 {
			t.inputBuffer.Write(buf[:n])
			t.processInput()
		}
		if err != nil {
			if errors.Is(err, io.EOF) || t.closed.Load() {
				return
			}
		}
	}
}

func (t *HostTransport) processInput() {
	for {
		data := t.inputBuffer.Data()
		if len(data) == 0 {
			return
		}
		if data[0] == MessageValueSync {
			t.inputBuffer.Pop(1)
			continue
		}

		msgLen, status := checkFrame(data)
		switch status {
		case frameIncomplete:
			return
		case frameBad:
			// Drop one byte and rescan
			t.inputBuffer.Pop(1)
			continue
		}

		msg := &Message{
			Sequence: data[MessagePositionSeq],
			Payload:  append([]byte(nil), data[MessageHeaderSize:msgLen-MessageTrailerSize]...),
		}
		t.inputBuffer.Pop(msgLen)

		if len(msg.Payload) == 0 {
			select {
			case t.ackChan <- msg:
			default:
			}
			continue
		}
		select {
		case t.responseChan <- msg:
		default:
			// Nobody is reading responses; drop the oldest
			<-t.responseChan
			t.responseChan <- msg
		}
	}
}

// Close stops the reader and closes the port
func (t *HostTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	close(t.stopChan)
	err := t.port.Close()
	<-t.doneChan
	return err
}
