package avr

import (
	"io"
	"strings"
	"sync"
)

// DemoTransport simulates a receiver for development and tests. Outbound
// commands mutate a small in-memory device state and are acknowledged with
// the status frame a real receiver would send; queries answer from the same
// state. Everything arrives through the normal inbound byte stream, so the
// whole pipeline (frame reader, decoder, bus, zones) runs unmodified.
type DemoTransport struct {
	vocab ZoneMap

	mu    sync.Mutex
	open  bool
	state map[string]map[Property]string // zone -> prop -> raw 2-char value

	inbox chan byte
}

// NewDemoTransport creates a simulated receiver for the given vocabulary.
// Initial state: standby, volume 0x22, VIDEO3 input, unmuted.
func NewDemoTransport(vocab ZoneMap) *DemoTransport {
	t := &DemoTransport{
		vocab: vocab,
		open:  true,
		state: make(map[string]map[Property]string),
		inbox: make(chan byte, 4096),
	}
	for zone := range vocab {
		t.state[zone] = map[Property]string{
			PropPower:  "00",
			PropVolume: "22",
			PropSource: "02",
			PropMute:   "00",
		}
	}
	return t
}

func (t *DemoTransport) ReadByte() (byte, error) {
	b, ok := <-t.inbox
	if !ok {
		return 0, io.EOF
	}
	return b, nil
}

// Write accepts an outbound `!1<body>\r` command, applies it to the
// simulated state and queues the receiver's status reply.
func (t *DemoTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return 0, ErrClosed
	}

	body := strings.TrimSuffix(strings.TrimPrefix(string(p), "!1"), "\r")

	for zone, cfg := range t.vocab {
		for prop, query := range cfg.Queries {
			if body == query {
				if code, ok := t.vocab[zone].Commands[prop]; ok {
					t.reply(code, t.state[zone][prop])
				}
				return len(p), nil
			}
		}
	}

	if len(body) >= 3 {
		code, value := body[:3], body[3:]
		for zone, cfg := range t.vocab {
			for prop, c := range cfg.Commands {
				if c == code && len(value) == 2 {
					t.state[zone][prop] = value
					t.reply(code, value)
					return len(p), nil
				}
			}
		}
	}

	// Unknown commands are swallowed, like a real device would.
	return len(p), nil
}

func (t *DemoTransport) reply(code, value string) {
	frame := append([]byte("!1"+code+value), frameSentinel)
	for _, b := range frame {
		select {
		case t.inbox <- b:
		default:
			return // inbox full, drop the frame
		}
	}
}

func (t *DemoTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return nil
	}
	t.open = false
	close(t.inbox)
	return nil
}

func (t *DemoTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}
