package avr

import (
	"io"
	"sync"
)

// fakeTransport is a scripted in-memory transport for tests: inbound bytes
// are fed through a channel, outbound writes are recorded as strings.
type fakeTransport struct {
	mu     sync.Mutex
	open   bool
	closed bool
	writes []string

	inbox chan byte
	// eofWhenEmpty makes ReadByte return io.EOF instead of blocking once the
	// inbox is drained, mimicking a transport read timeout.
	eofWhenEmpty bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{open: true, inbox: make(chan byte, 4096)}
}

func (t *fakeTransport) feed(s string) {
	for _, b := range []byte(s) {
		t.inbox <- b
	}
}

func (t *fakeTransport) ReadByte() (byte, error) {
	if t.eofWhenEmpty {
		select {
		case b, ok := <-t.inbox:
			if !ok {
				return 0, io.EOF
			}
			return b, nil
		default:
			return 0, io.EOF
		}
	}
	b, ok := <-t.inbox
	if !ok {
		return 0, io.EOF
	}
	return b, nil
}

func (t *fakeTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return 0, ErrClosed
	}
	t.writes = append(t.writes, string(p))
	return len(p), nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.open = false
	t.closed = true
	close(t.inbox)
	return nil
}

func (t *fakeTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *fakeTransport) written() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.writes))
	copy(out, t.writes)
	return out
}
