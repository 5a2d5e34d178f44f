package protocol

import (
	"encoding/binary"
	"fmt"

	amqperrors "github.com/maxpert/amqp-peer/errors"
)

// FrameHandler receives what a FrameDecoder parses. Exactly one method is
// called per header or frame, on the goroutine that called Ingest.
type FrameHandler interface {
	HandleHeader(h Header)
	HandleAMQP(channel uint16, p Performative, payload []byte)
	HandleSASL(channel uint16, p SaslPerformative)
	HandleHeartbeat(channel uint16)
}

// DecodeStage is the position of a FrameDecoder in the inbound stream.
type DecodeStage uint8

const (
	StageHeaderParsing DecodeStage = iota
	StageFrameSizeParsing
	StageFrameBuffering
	StageFrameBodyParsing
	StageError
)

func (s DecodeStage) String() string {
	switch s {
	case StageHeaderParsing:
		return "HeaderParsing"
	case StageFrameSizeParsing:
		return "FrameSizeParsing"
	case StageFrameBuffering:
		return "FrameBuffering"
	case StageFrameBodyParsing:
		return "FrameBodyParsing"
	case StageError:
		return "Error"
	}
	return fmt.Sprintf("DecodeStage(%d)", uint8(s))
}

// FrameDecoder turns an inbound byte stream into header and frame events.
// Input may arrive in chunks of any size. It is not safe for concurrent use,
// and after the first error it refuses all further input.
type FrameDecoder struct {
	handler      FrameHandler
	maxFrameSize uint32

	stage   DecodeStage
	scratch []byte // partial header or size field
	body    []byte // frame bytes after the size field
	want    int    // length of body once complete
	err     error
}

// NewFrameDecoder returns a decoder that starts by expecting a protocol
// header. maxInboundFrameSize bounds the frame length minus its size field;
// 0 means no bound.
func NewFrameDecoder(handler FrameHandler, maxInboundFrameSize uint32) *FrameDecoder {
	return &FrameDecoder{
		handler:      handler,
		maxFrameSize: maxInboundFrameSize,
		stage:        StageHeaderParsing,
		scratch:      make([]byte, 0, HeaderSize),
	}
}

// Stage reports where the decoder is in the stream.
func (d *FrameDecoder) Stage() DecodeStage {
	return d.stage
}

// Failed returns the error that stopped the decoder, if any.
func (d *FrameDecoder) Failed() error {
	return d.err
}

// SetMaxFrameSize changes the inbound bound, e.g. once Open is negotiated.
func (d *FrameDecoder) SetMaxFrameSize(max uint32) {
	d.maxFrameSize = max
}

// ExpectHeader makes the next bytes parse as a protocol header. A SASL
// exchange ends this way: after the outcome both sides start over with the
// AMQP header. Calling it from a handler applies to the rest of the chunk.
func (d *FrameDecoder) ExpectHeader() {
	if d.stage == StageError {
		return
	}
	d.stage = StageHeaderParsing
	d.scratch = d.scratch[:0]
	d.body = nil
}

// Ingest consumes a chunk of the inbound stream, calling the handler for
// every header and frame it completes. A DecodeError moves the decoder to its
// terminal stage; it and every later call return that error.
func (d *FrameDecoder) Ingest(chunk []byte) error {
	if d.err != nil {
		return d.err
	}

	for len(chunk) > 0 || d.stage == StageFrameBodyParsing {
		switch d.stage {
		case StageHeaderParsing:
			chunk = d.fill(chunk, HeaderSize)
			if len(d.scratch) < HeaderSize {
				return nil
			}
			h, err := ParseHeader(d.scratch)
			if err != nil {
				return d.fail(err)
			}
			d.scratch = d.scratch[:0]
			d.stage = StageFrameSizeParsing
			d.handler.HandleHeader(h)

		case StageFrameSizeParsing:
			chunk = d.fill(chunk, 4)
			if len(d.scratch) < 4 {
				return nil
			}
			size := binary.BigEndian.Uint32(d.scratch)
			d.scratch = d.scratch[:0]
			if size < FrameHeaderSize {
				return d.fail(amqperrors.NewFramingError(StageFrameSizeParsing.String(),
					fmt.Sprintf("frame size %d is smaller than the %d byte frame header", size, FrameHeaderSize)))
			}
			if d.maxFrameSize > 0 && size-4 > d.maxFrameSize {
				return d.fail(amqperrors.NewFramingError(StageFrameSizeParsing.String(),
					fmt.Sprintf("frame size %d exceeds max frame size %d", size, d.maxFrameSize)))
			}
			d.want = int(size - 4)
			if len(chunk) >= d.want {
				d.body = chunk[:d.want]
				chunk = chunk[d.want:]
				d.stage = StageFrameBodyParsing
			} else {
				d.body = make([]byte, 0, d.want)
				d.body = append(d.body, chunk...)
				chunk = nil
				d.stage = StageFrameBuffering
			}

		case StageFrameBuffering:
			n := d.want - len(d.body)
			if n > len(chunk) {
				n = len(chunk)
			}
			d.body = append(d.body, chunk[:n]...)
			chunk = chunk[n:]
			if len(d.body) == d.want {
				d.stage = StageFrameBodyParsing
			}

		case StageFrameBodyParsing:
			body := d.body
			d.body = nil
			d.stage = StageFrameSizeParsing
			if err := d.dispatch(body); err != nil {
				return d.fail(err)
			}

		default:
			return d.err
		}
	}
	return nil
}

// fill moves bytes from chunk into scratch until it holds n bytes.
func (d *FrameDecoder) fill(chunk []byte, n int) []byte {
	take := n - len(d.scratch)
	if take > len(chunk) {
		take = len(chunk)
	}
	d.scratch = append(d.scratch, chunk[:take]...)
	return chunk[take:]
}

func (d *FrameDecoder) fail(err error) error {
	d.err = err
	d.stage = StageError
	d.scratch = nil
	d.body = nil
	return err
}

// dispatch parses doff, type and channel, then the performative and payload.
// body starts at the doff byte.
func (d *FrameDecoder) dispatch(body []byte) error {
	stage := StageFrameBodyParsing.String()

	doff := body[0]
	frameType := body[1]
	channel := binary.BigEndian.Uint16(body[2:4])

	if doff < 2 {
		return amqperrors.NewFramingError(stage, fmt.Sprintf("data offset %d is below the minimum of 2", doff))
	}
	offset := int(doff)*4 - 4
	if offset > len(body) {
		return amqperrors.NewFramingError(stage,
			fmt.Sprintf("data offset %d points past the end of a %d byte frame", doff, len(body)+4))
	}
	if frameType != FrameTypeAMQP && frameType != FrameTypeSASL {
		return amqperrors.NewFramingError(stage, fmt.Sprintf("unknown frame type %d", frameType))
	}

	rest := body[offset:]
	if len(rest) == 0 {
		d.handler.HandleHeartbeat(channel)
		return nil
	}

	dec := &decoder{data: rest}
	v, err := dec.readValue()
	if err != nil {
		e := amqperrors.NewDecodeError(fmt.Sprintf("frame on channel %d", channel), err)
		e.Stage = stage
		return e
	}

	switch frameType {
	case FrameTypeAMQP:
		p, ok := v.(Performative)
		if !ok {
			return amqperrors.NewFramingError(stage, fmt.Sprintf("AMQP frame body is %s, not a performative", describe(v)))
		}
		var payload []byte
		if dec.remaining() > 0 {
			payload = append([]byte(nil), rest[dec.pos:]...)
		}
		d.handler.HandleAMQP(channel, p, payload)
	case FrameTypeSASL:
		p, ok := v.(SaslPerformative)
		if !ok {
			return amqperrors.NewFramingError(stage, fmt.Sprintf("SASL frame body is %s, not a SASL performative", describe(v)))
		}
		if dec.remaining() > 0 {
			return amqperrors.NewFramingError(stage, fmt.Sprintf("SASL frame has %d trailing bytes", dec.remaining()))
		}
		d.handler.HandleSASL(channel, p)
	}
	return nil
}

func describe(v interface{}) string {
	if dv, ok := v.(Described); ok {
		return dv.TypeName()
	}
	return fmt.Sprintf("%T", v)
}
