package transmission

import "github.com/valyala/bytebufferpool"

// Reservoir is a FIFO of bytes received from a transport but not yet handed
// to a caller. Bytes leave in the order they were appended, exactly once.
//
// A Reservoir is not safe for concurrent use; Conn guards it with its read
// lock.
type Reservoir interface {
	// Append adds p to the tail. p is copied.
	Append(p []byte)
	// Len returns the number of buffered bytes.
	Len() int
	// Peek returns up to n leading bytes without consuming them. The result
	// aliases internal storage and is valid until the next mutation.
	Peek(n int) []byte
	// Consume removes and returns up to n leading bytes. The result is a copy.
	Consume(n int) []byte
	// Reset discards all buffered bytes.
	Reset()
}

// queueReservoir tracks a read offset into a pooled buffer so consuming is
// O(1). The consumed prefix is reclaimed on append once it dominates the
// buffer, or immediately when the buffer drains.
type queueReservoir struct {
	buf *bytebufferpool.ByteBuffer
	off int
}

// NewQueueReservoir returns the default Reservoir, backed by a buffer from
// bytebufferpool.
func NewQueueReservoir() Reservoir {
	return &queueReservoir{}
}

func (q *queueReservoir) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	if q.buf == nil {
		q.buf = bytebufferpool.Get()
	}
	if q.off > 0 && q.off >= q.Len() {
		n := copy(q.buf.B, q.buf.B[q.off:])
		q.buf.B = q.buf.B[:n]
		q.off = 0
	}
	_, _ = q.buf.Write(p)
}

func (q *queueReservoir) Len() int {
	if q.buf == nil {
		return 0
	}
	return len(q.buf.B) - q.off
}

func (q *queueReservoir) Peek(n int) []byte {
	if n > q.Len() {
		n = q.Len()
	}
	if n <= 0 {
		return nil
	}
	return q.buf.B[q.off : q.off+n]
}

func (q *queueReservoir) Consume(n int) []byte {
	head := q.Peek(n)
	if head == nil {
		return nil
	}
	out := make([]byte, len(head))
	copy(out, head)

	q.off += len(out)
	if q.off == len(q.buf.B) {
		q.buf.Reset()
		q.off = 0
	}
	return out
}

func (q *queueReservoir) Reset() {
	if q.buf != nil {
		bytebufferpool.Put(q.buf)
		q.buf = nil
	}
	q.off = 0
}

// sliceReservoir shifts the remaining bytes down on every consume.
type sliceReservoir struct {
	data []byte
}

// NewSliceReservoir returns a Reservoir backed by a plain growable slice.
// Consuming costs O(n) in the remaining bytes.
func NewSliceReservoir() Reservoir {
	return &sliceReservoir{}
}

func (s *sliceReservoir) Append(p []byte) { s.data = append(s.data, p...) }

func (s *sliceReservoir) Len() int { return len(s.data) }

func (s *sliceReservoir) Peek(n int) []byte {
	if n > len(s.data) {
		n = len(s.data)
	}
	if n <= 0 {
		return nil
	}
	return s.data[:n]
}

func (s *sliceReservoir) Consume(n int) []byte {
	head := s.Peek(n)
	if head == nil {
		return nil
	}
	out := make([]byte, len(head))
	copy(out, head)
	s.data = s.data[:copy(s.data, s.data[len(out):])]
	return out
}

func (s *sliceReservoir) Reset() { s.data = nil }
