package avr

import (
	"log"
	"sync"
	"time"
)

// emptyFrameBackoff throttles the read loop when the transport keeps
// returning nothing, so a disconnected device does not spin a core.
const emptyFrameBackoff = 50 * time.Millisecond

// Listener owns the background read loop: frame -> decode -> publish,
// running on its own goroutine until Stop is called. Decode failures never
// terminate the loop; the protocol is best-effort and partial frames are
// expected.
type Listener struct {
	frames  *frameReader
	decoder *Decoder
	bus     *Bus

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  bool
}

// NewListener wires a listener over a transport. Call Start to begin reading.
func NewListener(t Transport, decoder *Decoder, bus *Bus) *Listener {
	return &Listener{
		frames:  &frameReader{t: t},
		decoder: decoder,
		bus:     bus,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the read loop on a dedicated goroutine.
func (l *Listener) Start() {
	if l.started {
		return
	}
	l.started = true
	log.Printf("[listener] starting background reader")
	go l.run()
}

func (l *Listener) run() {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		default:
		}

		frame := l.frames.ReadFrame()
		if len(frame) == 0 {
			select {
			case <-l.stop:
				return
			case <-time.After(emptyFrameBackoff):
			}
			continue
		}

		if ev, ok := l.decoder.Decode(frame); ok {
			l.bus.Publish(ev)
		}
	}
}

// Stop signals the loop to exit and waits for it to finish. Close the
// transport first so a blocked read returns.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	if l.started {
		<-l.done
	}
}
