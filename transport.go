package transmission

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Transport is the pair of I/O primitives a Conn buffers and frames on top of.
// Opening, addressing and tearing down the underlying channel is up to the
// implementation. A Transport that also implements io.Closer is closed by
// Conn.Close.
type Transport interface {
	// NetworkRead returns bytes that have arrived, at most size of them for
	// stream transports. Returning fewer bytes than requested is normal.
	// A zero-length result or a non-nil error ends the current read attempt;
	// bytes returned together with an error are kept by the caller.
	// A zero timeout means no deadline.
	NetworkRead(size int, timeout time.Duration) ([]byte, error)
	// NetworkWrite delivers the whole of data or returns an error.
	// A zero timeout means no deadline.
	NetworkWrite(data []byte, timeout time.Duration) error
}

// maxChunkSize bounds the buffer allocated for a single stream read, so a
// large request does not allocate more than the network can deliver at once.
const maxChunkSize = 64 * 1024

// maxDatagramSize is the largest UDP payload.
const maxDatagramSize = 64 * 1024

// deadline converts a timeout into an absolute deadline; zero clears it.
func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// StreamTransport reads and writes a byte stream such as a TCP or unix
// socket, or one end of net.Pipe.
type StreamTransport struct {
	conn net.Conn
}

// NewStreamTransport wraps a stream oriented net.Conn.
func NewStreamTransport(conn net.Conn) *StreamTransport {
	return &StreamTransport{conn: conn}
}

// NetworkRead implements Transport. io.EOF is reported as a zero-length read.
func (s *StreamTransport) NetworkRead(size int, timeout time.Duration) ([]byte, error) {
	if size > maxChunkSize {
		size = maxChunkSize
	}
	if err := s.conn.SetReadDeadline(deadline(timeout)); err != nil {
		return nil, errors.Wrap(err, "set read deadline")
	}

	buf := make([]byte, size)
	n, err := s.conn.Read(buf)
	if err == io.EOF {
		err = nil
	}
	if err != nil {
		return buf[:n], errors.Wrap(err, "stream read")
	}
	return buf[:n], nil
}

// NetworkWrite implements Transport.
func (s *StreamTransport) NetworkWrite(data []byte, timeout time.Duration) error {
	if err := s.conn.SetWriteDeadline(deadline(timeout)); err != nil {
		return errors.Wrap(err, "set write deadline")
	}
	if _, err := s.conn.Write(data); err != nil {
		return errors.Wrap(err, "stream write")
	}
	return nil
}

// Close closes the underlying connection.
func (s *StreamTransport) Close() error {
	return s.conn.Close()
}

// LocalAddr returns the local network address.
func (s *StreamTransport) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// RemoteAddr returns the remote network address.
func (s *StreamTransport) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// PacketTransport carries the byte stream over datagrams. Each NetworkRead
// returns one whole datagram regardless of the requested size; the surplus
// stays buffered in the Conn's reservoir. Datagram loss and reordering are
// not compensated.
type PacketTransport struct {
	conn net.PacketConn

	remote net.Addr // fixed destination, nil to reply to the latest sender

	mu      sync.Mutex
	learned net.Addr
}

// NewPacketTransport wraps a net.PacketConn. Writes go to remote; when remote
// is nil they go to the sender of the most recent datagram.
func NewPacketTransport(conn net.PacketConn, remote net.Addr) *PacketTransport {
	return &PacketTransport{conn: conn, remote: remote}
}

// NetworkRead implements Transport.
func (p *PacketTransport) NetworkRead(_ int, timeout time.Duration) ([]byte, error) {
	if err := p.conn.SetReadDeadline(deadline(timeout)); err != nil {
		return nil, errors.Wrap(err, "set read deadline")
	}

	buf := make([]byte, maxDatagramSize)
	n, from, err := p.conn.ReadFrom(buf)
	if err != nil {
		return nil, errors.Wrap(err, "packet read")
	}

	if p.remote == nil {
		p.mu.Lock()
		p.learned = from
		p.mu.Unlock()
	}

	return buf[:n], nil
}

// NetworkWrite implements Transport. The payload is sent as one datagram.
func (p *PacketTransport) NetworkWrite(data []byte, timeout time.Duration) error {
	remote := p.remote
	if remote == nil {
		p.mu.Lock()
		remote = p.learned
		p.mu.Unlock()
	}

	if remote == nil {
		return errors.New("packet write: no remote address")
	}
	if len(data) > maxDatagramSize {
		return errors.Errorf("packet write: %d bytes exceed datagram size", len(data))
	}
	if err := p.conn.SetWriteDeadline(deadline(timeout)); err != nil {
		return errors.Wrap(err, "set write deadline")
	}
	if _, err := p.conn.WriteTo(data, remote); err != nil {
		return errors.Wrap(err, "packet write")
	}
	return nil
}

// Close closes the underlying packet connection.
func (p *PacketTransport) Close() error {
	return p.conn.Close()
}

// Pipe returns two connected in-memory connections with identifiers 1 and 2.
// Writes on one end block until the other end reads them.
func Pipe(opt ...Option) (*Conn, *Conn) {
	a, b := net.Pipe()
	left, _ := NewConn(1, NewStreamTransport(a), opt...)
	right, _ := NewConn(2, NewStreamTransport(b), opt...)
	return left, right
}
