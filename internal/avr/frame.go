package avr

// frameSentinel (^Z) terminates every inbound protocol message.
const frameSentinel = 0x1A

// frameReader turns the raw transport byte stream into delimited frames.
type frameReader struct {
	t Transport
}

// ReadFrame accumulates bytes until the sentinel arrives or the transport
// reports end-of-stream/no-data, whichever comes first. The sentinel is
// included in the returned frame. A read timeout mid-message returns the
// partial frame; a failure before any byte arrives returns an empty one.
//
// No maximum frame length is enforced; the protocol's framing contract is
// that the device always sends the sentinel.
func (r *frameReader) ReadFrame() []byte {
	var frame []byte
	for {
		b, err := r.t.ReadByte()
		if err != nil {
			return frame
		}
		frame = append(frame, b)
		if b == frameSentinel {
			return frame
		}
	}
}
