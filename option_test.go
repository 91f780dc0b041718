package transmission

import (
	"testing"
	"time"
)

func TestLoggerOption(t *testing.T) {
	logger := &mockLogger{}
	opt := LoggerOption(logger)

	var opts options
	opt(&opts)

	if opts.logger != logger {
		t.Error("logger not set correctly")
	}
}

func TestReadTimeoutOption(t *testing.T) {
	timeout := time.Second * 5
	opt := ReadTimeoutOption(timeout)

	var opts options
	opt(&opts)

	if opts.readTimeout != timeout {
		t.Errorf("readTimeout = %v, want %v", opts.readTimeout, timeout)
	}
}

func TestWriteTimeoutOption(t *testing.T) {
	timeout := time.Minute
	opt := WriteTimeoutOption(timeout)

	var opts options
	opt(&opts)

	if opts.writeTimeout != timeout {
		t.Errorf("writeTimeout = %v, want %v", opts.writeTimeout, timeout)
	}
}

func TestMaxFrameSizeOption(t *testing.T) {
	opt := MaxFrameSizeOption(4096)

	var opts options
	opt(&opts)

	if opts.maxFrameSize != 4096 {
		t.Errorf("maxFrameSize = %d, want 4096", opts.maxFrameSize)
	}
}

func TestReservoirOption(t *testing.T) {
	r := NewSliceReservoir()
	opt := ReservoirOption(r)

	var opts options
	opt(&opts)

	if opts.reservoir != r {
		t.Error("reservoir not set correctly")
	}
}

func TestMetricsOption(t *testing.T) {
	m := NewMetrics("option_test", nil)
	opt := MetricsOption(m)

	var opts options
	opt(&opts)

	if opts.metrics != m {
		t.Error("metrics not set correctly")
	}
}

func TestMultipleOptions(t *testing.T) {
	logger := &mockLogger{}
	r := NewSliceReservoir()

	opts := []Option{
		LoggerOption(logger),
		ReadTimeoutOption(time.Second),
		WriteTimeoutOption(2 * time.Second),
		MaxFrameSizeOption(2048),
		ReservoirOption(r),
	}

	conn, err := NewConn(1, newScripted(), opts...)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if conn.logger != logger {
		t.Error("logger not set")
	}
	if conn.reservoir != r {
		t.Error("reservoir not set")
	}
	if conn.opts.readTimeout != time.Second {
		t.Errorf("readTimeout = %v, want 1s", conn.opts.readTimeout)
	}
	if conn.opts.writeTimeout != 2*time.Second {
		t.Errorf("writeTimeout = %v, want 2s", conn.opts.writeTimeout)
	}
	if conn.opts.maxFrameSize != 2048 {
		t.Errorf("maxFrameSize = %d, want 2048", conn.opts.maxFrameSize)
	}
}

// timeoutRecorder records the timeouts a Conn hands to its transport.
type timeoutRecorder struct {
	*scriptedTransport
	readTimeouts  []time.Duration
	writeTimeouts []time.Duration
}

func (r *timeoutRecorder) NetworkRead(size int, timeout time.Duration) ([]byte, error) {
	r.readTimeouts = append(r.readTimeouts, timeout)
	return r.scriptedTransport.NetworkRead(size, timeout)
}

func (r *timeoutRecorder) NetworkWrite(data []byte, timeout time.Duration) error {
	r.writeTimeouts = append(r.writeTimeouts, timeout)
	return r.scriptedTransport.NetworkWrite(data, timeout)
}

func TestTimeoutsReachEveryTransportCall(t *testing.T) {
	tr := &timeoutRecorder{scriptedTransport: newScripted("\x00", "\x03", "abc", "xy")}
	conn, err := NewConn(1, tr, ReadTimeoutOption(time.Second), WriteTimeoutOption(time.Minute))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if _, err := conn.ReadWithLengthPrefix(Prefix16); err != nil {
		t.Fatalf("ReadWithLengthPrefix failed: %v", err)
	}
	if _, err := conn.ReadUpTo(8); err != nil {
		t.Fatalf("ReadUpTo failed: %v", err)
	}
	if err := conn.Write([]byte("x")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := conn.WriteWithLengthPrefix([]byte("x"), Prefix8); err != nil {
		t.Fatalf("WriteWithLengthPrefix failed: %v", err)
	}

	if len(tr.readTimeouts) != 4 {
		t.Fatalf("read calls = %d, want 4", len(tr.readTimeouts))
	}
	for _, d := range tr.readTimeouts {
		if d != time.Second {
			t.Errorf("read timeout = %v, want 1s", d)
		}
	}
	if len(tr.writeTimeouts) != 2 {
		t.Fatalf("write calls = %d, want 2", len(tr.writeTimeouts))
	}
	for _, d := range tr.writeTimeouts {
		if d != time.Minute {
			t.Errorf("write timeout = %v, want 1m", d)
		}
	}
}
