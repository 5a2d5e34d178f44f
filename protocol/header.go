package protocol

import (
	"fmt"

	amqperrors "github.com/maxpert/amqp-peer/errors"
)

// HeaderSize is the length of the protocol header exchanged before any frame.
const HeaderSize = 8

// Protocol ids carried in byte 4 of the header
const (
	ProtocolIDAMQP uint8 = 0
	ProtocolIDSASL uint8 = 3
)

// Header is the 8 byte protocol header: "AMQP", protocol id, major, minor,
// revision. It is a value and never changes once built.
type Header [HeaderSize]byte

var (
	AMQPHeader = Header{'A', 'M', 'Q', 'P', ProtocolIDAMQP, 1, 0, 0}
	SASLHeader = Header{'A', 'M', 'Q', 'P', ProtocolIDSASL, 1, 0, 0}
)

// ParseHeader validates buf as a protocol header. Checks run in byte order
// and the error names the first byte that did not match.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, amqperrors.NewFramingError("header",
			fmt.Sprintf("protocol header must be %d bytes, got %d", HeaderSize, len(buf)))
	}

	var h Header
	copy(h[:], buf)

	for i, want := range []byte("AMQP") {
		if h[i] != want {
			return Header{}, headerMismatch(i, fmt.Sprintf("%q", want), h[i])
		}
	}
	if h[4] != ProtocolIDAMQP && h[4] != ProtocolIDSASL {
		return Header{}, headerMismatch(4, fmt.Sprintf("%d or %d", ProtocolIDAMQP, ProtocolIDSASL), h[4])
	}
	if h[5] != 1 {
		return Header{}, headerMismatch(5, "1", h[5])
	}
	if h[6] != 0 {
		return Header{}, headerMismatch(6, "0", h[6])
	}
	if h[7] != 0 {
		return Header{}, headerMismatch(7, "0", h[7])
	}
	return h, nil
}

// NewHeaderNoValidation builds a header from up to 8 bytes without checking
// them, so tests can send deliberately broken headers. Short input is zero
// padded; input longer than 8 bytes is rejected.
func NewHeaderNoValidation(buf []byte) (Header, error) {
	if len(buf) > HeaderSize {
		return Header{}, amqperrors.NewFramingError("header",
			fmt.Sprintf("protocol header cannot hold %d bytes", len(buf)))
	}
	var h Header
	copy(h[:], buf)
	return h, nil
}

func headerMismatch(index int, expected string, got byte) error {
	return amqperrors.NewFramingError("header",
		fmt.Sprintf("invalid protocol header byte %d: expected %s, got %d", index, expected, got))
}

// ProtocolID returns byte 4 of the header.
func (h Header) ProtocolID() uint8 { return h[4] }

// IsSASL reports whether this is the SASL variant of the header.
func (h Header) IsSASL() bool { return h[4] == ProtocolIDSASL }

// Bytes returns a copy of the 8 header bytes.
func (h Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	copy(b, h[:])
	return b
}

func (h Header) String() string {
	return fmt.Sprintf("AMQPHeader{%q, id=%d, version=%d.%d.%d}", string(h[:4]), h[4], h[5], h[6], h[7])
}
