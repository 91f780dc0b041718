// Package transmission provides a buffered, framed connection on top of a
// minimal byte transport. It accumulates partial network reads so callers can
// ask for an exact or bounded number of bytes, serializes concurrent readers
// and writers, and implements length-prefixed message framing.
package transmission

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"
)

// Default configuration values.
const (
	// defaultMaxFrameSize is the default maximum payload of a single frame (1MB).
	defaultMaxFrameSize = 1024 * 1024
)

// Conn is a connection over a Transport.
//
// At most one read-family call (Read, ReadUpTo, ReadWithLengthPrefix) and at
// most one write-family call (Write, WriteString, WriteWithLengthPrefix) run
// at a time; a read and a write may run concurrently. Bytes are delivered in
// the order the transport produced them.
type Conn struct {
	id        int
	transport Transport
	logger    Logger
	metrics   *Metrics

	opts options

	lifecycleMu sync.Mutex
	readMu      sync.Mutex
	writeMu     sync.Mutex

	// reservoir is guarded by readMu.
	reservoir Reservoir
	closed    atomic.Bool
}

// NewConn creates a connection identified by id over the given transport.
// It returns ErrInvalidTransport if t is nil.
func NewConn(id int, t Transport, opt ...Option) (*Conn, error) {
	if t == nil {
		return nil, ErrInvalidTransport
	}

	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	return &Conn{
		id:        id,
		transport: t,
		logger:    opts.logger,
		metrics:   opts.metrics,
		opts:      opts,
		reservoir: opts.reservoir,
	}, nil
}

// checkOptions sets default values for connection options.
func checkOptions(opts *options) {
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.reservoir == nil {
		opts.reservoir = NewQueueReservoir()
	}

	if opts.maxFrameSize <= 0 {
		opts.maxFrameSize = defaultMaxFrameSize
	}

	if opts.readTimeout < 0 {
		opts.readTimeout = 0
	}

	if opts.writeTimeout < 0 {
		opts.writeTimeout = 0
	}
}

// ID returns the connection identifier.
func (c *Conn) ID() int {
	return c.id
}

// Transport returns the transport the connection was created with.
func (c *Conn) Transport() Transport {
	return c.transport
}

// Read returns exactly size bytes. It reads from the transport as many times
// as needed, and fails without returning a partial payload if the transport
// is exhausted or fails first. Bytes received during a failed call stay
// buffered for the next one.
func (c *Conn) Read(size int) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if err := c.checkReadable("read", size); err != nil {
		return nil, err
	}
	return c.unsafeRead("read", size)
}

// ReadUpTo returns between 1 and maxSize bytes. Buffered bytes are returned
// without touching the transport; otherwise a single transport read is made.
// A short delivery is returned as is; ReadUpTo does not loop to reach maxSize.
// If that read yields bytes together with an error, the bytes are returned
// and the error is only logged.
func (c *Conn) ReadUpTo(maxSize int) ([]byte, error) {
	const op = "read up to"

	c.readMu.Lock()
	defer c.readMu.Unlock()

	if err := c.checkReadable(op, maxSize); err != nil {
		return nil, err
	}
	if maxSize <= 0 {
		return nil, c.failRead(op, ErrInvalidSize, maxSize, nil)
	}

	if c.reservoir.Len() == 0 {
		data, err := c.transport.NetworkRead(maxSize, c.opts.readTimeout)
		c.metrics.networkRead()
		c.reservoir.Append(data)

		if c.reservoir.Len() == 0 {
			if err != nil {
				return nil, c.failRead(op, ErrTransport, maxSize, err)
			}
			return nil, c.failRead(op, ErrExhausted, maxSize, nil)
		}
		if err != nil {
			c.logger.Debug("read up to truncated by transport error",
				"conn", c.id, "requested", maxSize, "buffered", c.reservoir.Len(), "error", err)
		}
	}

	result := c.reservoir.Consume(maxSize)
	c.metrics.read(len(result))
	return result, nil
}

// Buffered returns the number of bytes received but not yet read.
func (c *Conn) Buffered() int {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	return c.reservoir.Len()
}

// unsafeRead is Read without taking readMu. Callers must hold it.
func (c *Conn) unsafeRead(op string, size int) ([]byte, error) {
	if size <= 0 {
		return nil, c.failRead(op, ErrInvalidSize, size, nil)
	}
	if err := c.fill(op, size); err != nil {
		return nil, err
	}

	result := c.reservoir.Consume(size)
	c.metrics.read(len(result))
	return result, nil
}

// fill reads from the transport until the reservoir holds at least size
// bytes. A zero-length read or a transport error stops it. Callers must
// hold readMu.
func (c *Conn) fill(op string, size int) error {
	for c.reservoir.Len() < size {
		data, err := c.transport.NetworkRead(size-c.reservoir.Len(), c.opts.readTimeout)
		c.metrics.networkRead()
		c.reservoir.Append(data)

		if c.reservoir.Len() >= size {
			break
		}
		if err != nil {
			return c.failRead(op, ErrTransport, size, err)
		}
		if len(data) == 0 {
			if c.reservoir.Len() == 0 {
				return c.failRead(op, ErrExhausted, size, nil)
			}
			return c.failRead(op, ErrInsufficientData, size, nil)
		}
	}
	return nil
}

// checkReadable fails read-family calls on a closed connection and drops
// whatever is still buffered. Callers must hold readMu.
func (c *Conn) checkReadable(op string, size int) error {
	if !c.closed.Load() {
		return nil
	}
	c.reservoir.Reset()
	return c.failRead(op, ErrConnectionClosed, size, nil)
}

// Write hands data to the transport in a single call. The transport either
// accepts all of it or the write fails.
func (c *Conn) Write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.unsafeWrite("write", data)
}

// WriteString writes the bytes of s.
func (c *Conn) WriteString(s string) error {
	return c.Write([]byte(s))
}

// unsafeWrite is Write without taking writeMu. Callers must hold it.
func (c *Conn) unsafeWrite(op string, data []byte) error {
	if c.closed.Load() {
		return c.failWrite(op, ErrConnectionClosed, len(data), nil)
	}
	if err := c.transport.NetworkWrite(data, c.opts.writeTimeout); err != nil {
		return c.failWrite(op, ErrTransport, len(data), err)
	}
	c.metrics.written(len(data))
	return nil
}

// WriteWithLengthPrefix writes data as one frame: its length as a prefixBits
// wide big-endian unsigned integer followed by the data. The frame is written
// while holding the write lock once, so concurrent writes cannot interleave
// with it.
func (c *Conn) WriteWithLengthPrefix(data []byte, prefixBits int) error {
	const op = "write frame"

	if _, err := prefixSize(prefixBits); err != nil {
		return c.failWrite(op, err, len(data), nil)
	}
	if len(data) > c.opts.maxFrameSize {
		return c.failWrite(op, errors.Wrapf(ErrFrameTooLarge, "limit %d", c.opts.maxFrameSize), len(data), nil)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	frame, err := AppendFrame(buf.B[:0], data, prefixBits)
	if err != nil {
		return c.failWrite(op, err, len(data), nil)
	}
	buf.B = frame

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.unsafeWrite(op, buf.B); err != nil {
		return err
	}
	c.metrics.frameWritten()
	return nil
}

// ReadWithLengthPrefix reads one frame written by WriteWithLengthPrefix with
// the same prefixBits. A zero-length frame yields an empty, non-nil payload.
//
// Nothing is consumed until the whole frame is buffered, so a failed call can
// be retried. A frame whose declared length exceeds the maximum frame size is
// left in place and every later call fails the same way.
func (c *Conn) ReadWithLengthPrefix(prefixBits int) ([]byte, error) {
	const op = "read frame"

	c.readMu.Lock()
	defer c.readMu.Unlock()

	if err := c.checkReadable(op, 0); err != nil {
		return nil, err
	}

	headerSize, err := prefixSize(prefixBits)
	if err != nil {
		return nil, c.failRead(op, err, 0, nil)
	}
	if err := c.fill(op, headerSize); err != nil {
		return nil, err
	}

	length, err := FrameLength(c.reservoir.Peek(headerSize))
	if err != nil {
		return nil, c.failRead(op, err, headerSize, nil)
	}
	if length > uint64(c.opts.maxFrameSize) {
		return nil, c.failRead(op, errors.Wrapf(ErrFrameTooLarge, "declared %d, limit %d", length, c.opts.maxFrameSize), headerSize, nil)
	}
	if err := c.fill(op, headerSize+int(length)); err != nil {
		return nil, err
	}

	if _, err := c.unsafeRead(op, headerSize); err != nil {
		return nil, err
	}

	payload := []byte{}
	if length > 0 {
		if payload, err = c.unsafeRead(op, int(length)); err != nil {
			return nil, err
		}
	}
	c.metrics.frameRead()
	return payload, nil
}

// Close marks the connection closed and closes the transport if it
// implements io.Closer. Calls blocked in the transport are released by the
// transport's own close semantics. Safe to call multiple times.
func (c *Conn) Close() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.closed.Swap(true) {
		return nil // already closed
	}

	c.logger.Debug("closing connection", "conn", c.id)

	if closer, ok := c.transport.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// failRead builds, logs and counts a read-family failure. Callers must hold
// readMu.
func (c *Conn) failRead(op string, kind error, requested int, err error) error {
	return c.fail(op, kind, requested, c.reservoir.Len(), err)
}

// failWrite builds, logs and counts a write-family failure.
func (c *Conn) failWrite(op string, kind error, requested int, err error) error {
	return c.fail(op, kind, requested, 0, err)
}

func (c *Conn) fail(op string, kind error, requested, buffered int, err error) error {
	opErr := &OpError{
		Op:        op,
		ID:        c.id,
		Kind:      kind,
		Requested: requested,
		Buffered:  buffered,
		Err:       err,
	}

	args := []any{"conn", c.id, "requested", requested, "buffered", buffered, "kind", kind}
	if err != nil {
		args = append(args, "error", err)
	}
	c.logger.Debug(op+" failed", args...)
	c.metrics.failure(opErr)

	return opErr
}
