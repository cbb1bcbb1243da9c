package protocol

// InputBuffer is the receive side of a transport: a window of unparsed bytes
// that shrinks from the front as frames are consumed.
type InputBuffer interface {
	Data() []byte
	Available() int
	Pop(n int)
}

// OutputBuffer is the transmit side. Frames are encoded in place, so the
// encoder needs to patch the length byte after the payload is written.
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	Update(pos int, val byte)
	DataSince(pos int) []byte
}

// SliceInputBuffer is an InputBuffer over a caller-owned slice.
type SliceInputBuffer struct {
	data []byte
}

// NewSliceInputBuffer wraps data without copying it.
func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

// Data implements InputBuffer.
func (s *SliceInputBuffer) Data() []byte { return s.data }

// Available implements InputBuffer.
func (s *SliceInputBuffer) Available() int { return len(s.data) }

// Pop implements InputBuffer. Popping past the end empties the buffer.
func (s *SliceInputBuffer) Pop(n int) {
	s.data = s.data[min(n, len(s.data)):]
}

// ScratchOutput collects outgoing frames in a fixed array until the caller
// writes them out and calls Reset. Output past the end is truncated.
type ScratchOutput struct {
	buf [MessageMax]byte
	pos int
}

// NewScratchOutput returns an empty output buffer.
func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

// Output implements OutputBuffer.
func (s *ScratchOutput) Output(data []byte) {
	s.pos += copy(s.buf[s.pos:], data)
}

// CurPosition implements OutputBuffer.
func (s *ScratchOutput) CurPosition() int { return s.pos }

// Update implements OutputBuffer.
func (s *ScratchOutput) Update(pos int, val byte) {
	if pos < s.pos {
		s.buf[pos] = val
	}
}

// DataSince implements OutputBuffer.
func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns everything written since the last Reset.
func (s *ScratchOutput) Result() []byte { return s.buf[:s.pos] }

// Reset discards the written data.
func (s *ScratchOutput) Reset() { s.pos = 0 }

// FifoBuffer is a byte queue between a serial reader and a transport. Unread
// bytes are kept contiguous, so Data never copies: a write that does not
// fit behind the unread bytes first moves them to the front.
type FifoBuffer struct {
	buf        []byte
	start, end int
}

// NewFifoBuffer returns a queue holding at most capacity bytes.
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write queues as much of data as fits and returns how much that was.
func (f *FifoBuffer) Write(data []byte) int {
	if len(data) > len(f.buf)-f.end && f.start > 0 {
		f.end = copy(f.buf, f.buf[f.start:f.end])
		f.start = 0
	}
	n := copy(f.buf[f.end:], data)
	f.end += n
	return n
}

// Read moves up to len(data) queued bytes into data.
func (f *FifoBuffer) Read(data []byte) int {
	n := copy(data, f.buf[f.start:f.end])
	f.Pop(n)
	return n
}

// Available implements InputBuffer.
func (f *FifoBuffer) Available() int { return f.end - f.start }

// Free returns how many more bytes Write accepts.
func (f *FifoBuffer) Free() int { return len(f.buf) - f.Available() }

// Data implements InputBuffer. The slice is valid until the next Write.
func (f *FifoBuffer) Data() []byte { return f.buf[f.start:f.end] }

// Pop implements InputBuffer.
func (f *FifoBuffer) Pop(n int) {
	f.start += min(n, f.Available())
	if f.start == f.end {
		f.Reset()
	}
}

// IsEmpty reports whether nothing is queued.
func (f *FifoBuffer) IsEmpty() bool { return f.start == f.end }

// Reset drops everything queued.
func (f *FifoBuffer) Reset() { f.start, f.end = 0, 0 }
