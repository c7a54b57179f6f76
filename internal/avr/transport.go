package avr

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

// ErrClosed is returned by transport operations after Close.
var ErrClosed = errors.New("avr: transport closed")

// Transport is the byte stream the protocol engine speaks over. One transport
// is shared by every zone controller on the same physical device: the
// background listener owns the read side, zone commands go out the write side.
type Transport interface {
	// ReadByte blocks until one byte arrives. It returns io.EOF when the
	// stream ends or a read timeout elapses with no data.
	ReadByte() (byte, error)
	Write(p []byte) (n int, err error)
	Close() error
	// IsOpen reports whether the transport can still accept writes.
	IsOpen() bool
}

// Options configures the serial connection to the receiver.
type Options struct {
	Path        string
	BaudRate    int           // default 9600 (RS232 rate for Onkyo receivers)
	ReadTimeout time.Duration // default 10s; expiry surfaces as io.EOF with no data
}

// SerialTransport wraps a serial port for the protocol engine. Writes from
// concurrent zone controllers serialize through an explicit mutex rather than
// relying on the underlying port being write-safe.
type SerialTransport struct {
	path string
	port serial.Port

	writeMu sync.Mutex

	mu   sync.Mutex
	open bool

	readBuf [1]byte // read side is single-goroutine (the listener)
}

// OpenSerial opens the serial port at opts.Path.
func OpenSerial(opts Options) (*SerialTransport, error) {
	if opts.BaudRate == 0 {
		opts.BaudRate = 9600
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 10 * time.Second
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(opts.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("avr: failed to open %s: %w", opts.Path, err)
	}
	if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("avr: failed to set read timeout on %s: %w", opts.Path, err)
	}

	log.Printf("[avr] opened %s at %d baud", opts.Path, opts.BaudRate)
	return &SerialTransport{path: opts.Path, port: port, open: true}, nil
}

func (s *SerialTransport) ReadByte() (byte, error) {
	n, err := s.port.Read(s.readBuf[:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		// Read timeout with nothing buffered, treated as end of data.
		return 0, io.EOF
	}
	return s.readBuf[0], nil
}

func (s *SerialTransport) Write(p []byte) (int, error) {
	s.mu.Lock()
	open := s.open
	s.mu.Unlock()
	if !open {
		return 0, ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.port.Write(p)
}

// Close closes the port. A blocked ReadByte returns with an error, which is
// how the background listener gets unstuck during teardown.
func (s *SerialTransport) Close() error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	s.open = false
	s.mu.Unlock()

	release(s)
	return s.port.Close()
}

func (s *SerialTransport) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Path returns the device path this transport was opened on.
func (s *SerialTransport) Path() string { return s.path }

// The shared-transport registry keys open ports by device path so that every
// driver configured against the same physical receiver reuses one handle.
var (
	registryMu sync.Mutex
	registry   = make(map[string]*SerialTransport)
)

// Shared returns the process-wide transport for opts.Path, opening the port
// on first use.
func Shared(opts Options) (*SerialTransport, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if t, ok := registry[opts.Path]; ok && t.IsOpen() {
		return t, nil
	}
	t, err := OpenSerial(opts)
	if err != nil {
		return nil, err
	}
	registry[opts.Path] = t
	return t, nil
}

func release(t *SerialTransport) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if registry[t.path] == t {
		delete(registry, t.path)
	}
}
