package gows

// Kind distinguishes the two WebSocket message types the core hands to
// applications. Control frames (ping/pong/close) never reach this level —
// they are handled inside the receive pipeline.
type Kind int

const (
	// Binary carries an opaque byte payload.
	Binary Kind = iota
	// Text carries a UTF-8 payload, already decoded into runes.
	Text
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// Message is what the application observes from Conn.Messages. Exactly one
// of Bytes/Runes is meaningful, selected by Kind. Both views borrow pooled
// buffers owned by the receive pipeline and are valid only for the
// iteration step that produced them — do not retain Bytes or Runes (or any
// slice of them) past the body of the range loop that received the
// message; copy what you need instead.
type Message struct {
	Kind  Kind
	Bytes []byte // valid when Kind == Binary
	Runes []rune // valid when Kind == Text
}

// Text returns the message's text content as a freshly allocated string.
// It panics if Kind != Text. Allocating here is deliberate: the caller is
// asking to extend the data's lifetime past the current iteration step.
func (m Message) Text() string {
	if m.Kind != Text {
		panic("gows: Text() called on a non-text Message")
	}
	return string(m.Runes)
}
