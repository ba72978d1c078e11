package protocol

// InputBuffer is a queue of received bytes the transport parses frames from.
type InputBuffer interface {
	// Data returns the unread bytes as one contiguous slice
	Data() []byte
	Available() int
	// Pop discards n bytes from the front
	Pop(n int)
}

// OutputBuffer collects outgoing frame bytes. Frames are built in place:
// the length byte is patched through Update once the payload is known.
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	Update(pos int, val byte)
	DataSince(pos int) []byte
}

// SliceInputBuffer reads from a fixed byte slice
type SliceInputBuffer struct {
	data []byte
}

func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte   { return s.data }
func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	s.data = s.data[min(n, len(s.data)):]
}

// ScratchOutput is a fixed-size OutputBuffer. Writes past MessageMax are
// truncated.
type ScratchOutput struct {
	buf [MessageMax]byte
	pos int
}

func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	s.pos += copy(s.buf[s.pos:], data)
}

func (s *ScratchOutput) CurPosition() int {
	return s.pos
}

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos >= 0 && pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos < 0 || pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns everything written since the last Reset
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

func (s *ScratchOutput) Reset() {
	s.pos = 0
}

// FifoBuffer is a bounded byte queue for serial input. Unread bytes always
// sit contiguously at the front of the backing array, so Data never copies;
// the array is compacted when a write would not fit behind them.
type FifoBuffer struct {
	buf   []byte
	start int
	end   int
}

func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write queues as much of data as fits and returns the count queued.
func (f *FifoBuffer) Write(data []byte) int {
	if len(f.buf)-f.end < len(data) && f.start > 0 {
		f.compact()
	}
	n := copy(f.buf[f.end:], data)
	f.end += n
	return n
}

// Read dequeues up to len(data) bytes.
func (f *FifoBuffer) Read(data []byte) int {
	n := copy(data, f.buf[f.start:f.end])
	f.Pop(n)
	return n
}

func (f *FifoBuffer) compact() {
	n := copy(f.buf, f.buf[f.start:f.end])
	f.start = 0
	f.end = n
}

func (f *FifoBuffer) Available() int {
	return f.end - f.start
}

// Free is the room left for Write
func (f *FifoBuffer) Free() int {
	return len(f.buf) - f.Available()
}

// Data returns the unread bytes. The slice is only valid until the next
// Write.
func (f *FifoBuffer) Data() []byte {
	return f.buf[f.start:f.end]
}

func (f *FifoBuffer) Pop(n int) {
	f.start += min(n, f.Available())
	if f.start == f.end {
		f.start, f.end = 0, 0
	}
}

func (f *FifoBuffer) IsEmpty() bool {
	return f.start == f.end
}

func (f *FifoBuffer) Reset() {
	f.start, f.end = 0, 0
}
