package transmission

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestTCPPair creates a connected pair of TCP connections for testing
func createTestTCPPair(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()

	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer listener.Close()

	// Connect client in goroutine
	clientChan := make(chan *net.TCPConn, 1)
	errChan := make(chan error, 1)
	go func() {
		conn, err := net.DialTCP("tcp", nil, listener.Addr().(*net.TCPAddr))
		if err != nil {
			errChan <- err
			return
		}
		clientChan <- conn
	}()

	// Accept server side
	serverConn, err := listener.AcceptTCP()
	if err != nil {
		t.Fatalf("failed to accept: %v", err)
	}

	select {
	case clientConn := <-clientChan:
		return serverConn, clientConn
	case err := <-errChan:
		serverConn.Close()
		t.Fatalf("client dial failed: %v", err)
		return nil, nil
	case <-time.After(5 * time.Second):
		serverConn.Close()
		t.Fatal("timeout waiting for client connection")
		return nil, nil
	}
}

func TestStreamTransport_ReadWrite(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	server := NewStreamTransport(serverConn)
	client := NewStreamTransport(clientConn)
	defer server.Close()
	defer client.Close()

	require.NoError(t, client.NetworkWrite([]byte("hello"), time.Second))

	var got []byte
	for len(got) < 5 {
		data, err := server.NetworkRead(5-len(got), time.Second)
		require.NoError(t, err)
		require.NotEmpty(t, data)
		got = append(got, data...)
	}
	assert.Equal(t, "hello", string(got))
	assert.Equal(t, clientConn.LocalAddr().String(), server.RemoteAddr().String())
	assert.Equal(t, serverConn.LocalAddr().String(), server.LocalAddr().String())
}

func TestStreamTransport_EOFIsZeroLengthRead(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	server := NewStreamTransport(serverConn)
	defer server.Close()

	require.NoError(t, clientConn.Close())

	data, err := server.NetworkRead(4, time.Second)
	assert.NoError(t, err)
	assert.Empty(t, data)
}

func TestStreamTransport_ReadTimeout(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	server := NewStreamTransport(serverConn)
	defer server.Close()
	defer clientConn.Close()

	start := time.Now()
	data, err := server.NetworkRead(4, 20*time.Millisecond)
	assert.Empty(t, data)
	require.Error(t, err)

	var netErr net.Error
	require.True(t, errors.As(err, &netErr))
	assert.True(t, netErr.Timeout())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestStreamTransport_ConnOverTCP(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)

	server, err := NewConn(1, NewStreamTransport(serverConn), ReadTimeoutOption(5*time.Second))
	require.NoError(t, err)
	client, err := NewConn(2, NewStreamTransport(clientConn), WriteTimeoutOption(5*time.Second))
	require.NoError(t, err)
	defer server.Close()
	defer client.Close()

	require.NoError(t, client.WriteString("HI"))
	require.NoError(t, client.WriteString("THERE"))
	require.NoError(t, client.Close())

	got, err := server.Read(7)
	require.NoError(t, err)
	assert.Equal(t, "HITHERE", string(got))

	_, err = server.Read(1)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestStreamTransport_WriteAfterClose(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()

	client := NewStreamTransport(clientConn)
	require.NoError(t, client.Close())

	assert.Error(t, client.NetworkWrite([]byte("x"), 0))
}

func createTestUDPPair(t *testing.T) (net.PacketConn, net.PacketConn) {
	t.Helper()

	a, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	b, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	return a, b
}

func TestPacketTransport_ReadWrite(t *testing.T) {
	pa, pb := createTestUDPPair(t)
	a := NewPacketTransport(pa, pb.LocalAddr())
	b := NewPacketTransport(pb, nil)
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.NetworkWrite([]byte("hello"), time.Second))

	// A datagram is returned whole even when less was asked for.
	data, err := b.NetworkRead(2, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	// b learned its peer from the datagram.
	require.NoError(t, b.NetworkWrite([]byte("back"), time.Second))
	data, err = a.NetworkRead(16, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "back", string(data))
}

func TestPacketTransport_RepliesToLatestSender(t *testing.T) {
	pa, pb := createTestUDPPair(t)
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	a := NewPacketTransport(pa, pb.LocalAddr())
	b := NewPacketTransport(pb, nil)
	c := NewPacketTransport(pc, pb.LocalAddr())
	defer a.Close()
	defer b.Close()
	defer c.Close()

	require.NoError(t, a.NetworkWrite([]byte("from a"), time.Second))
	data, err := b.NetworkRead(16, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "from a", string(data))

	require.NoError(t, c.NetworkWrite([]byte("from c"), time.Second))
	data, err = b.NetworkRead(16, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "from c", string(data))

	require.NoError(t, b.NetworkWrite([]byte("reply"), time.Second))

	data, err = c.NetworkRead(16, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "reply", string(data))

	data, err = a.NetworkRead(16, 50*time.Millisecond)
	assert.Empty(t, data)
	assert.Error(t, err)
}

func TestPacketTransport_FixedRemoteIgnoresSenders(t *testing.T) {
	pa, pb := createTestUDPPair(t)
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	a := NewPacketTransport(pa, pb.LocalAddr())
	b := NewPacketTransport(pb, pa.LocalAddr())
	c := NewPacketTransport(pc, pb.LocalAddr())
	defer a.Close()
	defer b.Close()
	defer c.Close()

	require.NoError(t, c.NetworkWrite([]byte("from c"), time.Second))
	_, err = b.NetworkRead(16, time.Second)
	require.NoError(t, err)

	require.NoError(t, b.NetworkWrite([]byte("reply"), time.Second))

	data, err := a.NetworkRead(16, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "reply", string(data))

	data, err = c.NetworkRead(16, 50*time.Millisecond)
	assert.Empty(t, data)
	assert.Error(t, err)
}

func TestPacketTransport_WriteWithoutRemote(t *testing.T) {
	pa, pb := createTestUDPPair(t)
	defer pb.Close()

	a := NewPacketTransport(pa, nil)
	defer a.Close()

	assert.Error(t, a.NetworkWrite([]byte("x"), time.Second))
}

func TestPacketTransport_ConnKeepsSurplus(t *testing.T) {
	pa, pb := createTestUDPPair(t)

	sender, err := NewConn(1, NewPacketTransport(pa, pb.LocalAddr()))
	require.NoError(t, err)
	receiver, err := NewConn(2, NewPacketTransport(pb, nil), ReadTimeoutOption(time.Second))
	require.NoError(t, err)
	defer sender.Close()
	defer receiver.Close()

	require.NoError(t, sender.WriteWithLengthPrefix([]byte("hello"), Prefix16))

	got, err := receiver.Read(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 5}, got)
	assert.Equal(t, 5, receiver.Buffered())

	got, err = receiver.ReadUpTo(16)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestPacketTransport_ReadTimeout(t *testing.T) {
	pa, pb := createTestUDPPair(t)
	defer pb.Close()

	conn, err := NewConn(1, NewPacketTransport(pa, nil), ReadTimeoutOption(20*time.Millisecond))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Read(1)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestPipe(t *testing.T) {
	left, right := Pipe()
	defer left.Close()
	defer right.Close()

	assert.Equal(t, 1, left.ID())
	assert.Equal(t, 2, right.ID())

	go func() {
		_ = left.WriteString("ping")
	}()

	got, err := right.Read(4)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(got))
}
