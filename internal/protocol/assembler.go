package protocol

// MaxLineLen caps the bytes buffered while waiting for a terminator.
const MaxLineLen = 64

// Event is one assembler output: either a completed command line or an
// overflow signal.
type Event struct {
	Line     string
	Overflow bool
}

// Assembler buffers raw bytes as they arrive and extracts newline-terminated
// command lines. Case is preserved; '\r' is accepted as a terminator so both
// LF and CRLF clients work. If MaxLineLen bytes accumulate without a
// terminator the buffered content is discarded immediately and an overflow
// event is emitted without waiting for the terminator.
type Assembler struct {
	buf []byte
}

func NewAssembler() *Assembler {
	return &Assembler{buf: make([]byte, 0, MaxLineLen)}
}

// Feed consumes a chunk of input and returns the events it completed.
// Empty lines (immediate terminator) produce no event.
func (a *Assembler) Feed(data []byte) []Event {
	var events []Event

	for _, b := range data {
		if b == '\n' || b == '\r' {
			if len(a.buf) > 0 {
				events = append(events, Event{Line: string(a.buf)})
				a.buf = a.buf[:0]
			}
			continue
		}

		if len(a.buf) == MaxLineLen {
			// the overflowing byte is dropped with the rest
			a.buf = a.buf[:0]
			events = append(events, Event{Overflow: true})
			continue
		}
		a.buf = append(a.buf, b)
	}

	return events
}

// Buffered reports how many bytes await a terminator.
func (a *Assembler) Buffered() int { return len(a.buf) }
