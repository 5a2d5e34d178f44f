package protocol

import (
	"bytes"
	"encoding/binary"
)

// Frame types (byte 5 of the frame header)
const (
	FrameTypeAMQP uint8 = 0
	FrameTypeSASL uint8 = 1
)

// FrameHeaderSize is the fixed part of every frame: size, doff, type, channel.
const FrameHeaderSize = 8

// PayloadTooLargeFunc is given the performative when it and the payload will
// not fit one frame. It may change the performative, typically setting
// more=true on a Transfer, before it is encoded a second time.
type PayloadTooLargeFunc func(p Performative)

// EncodeAMQP writes one AMQP frame holding p followed by as much of payload
// as fits within maxFrameSize (0 means unbounded). It returns the frame and
// the number of payload bytes it carries; the caller sends the rest in
// follow-on frames. onPayloadTooLarge, if given, runs at most once.
func EncodeAMQP(p Performative, channel uint16, payload []byte, maxFrameSize uint32, onPayloadTooLarge PayloadTooLargeFunc) ([]byte, int, error) {
	buf := new(bytes.Buffer)
	writeFrameHeader(buf, FrameTypeAMQP, channel)

	if err := writeValue(buf, p); err != nil {
		return nil, 0, err
	}
	performativeSize := buf.Len()

	if onPayloadTooLarge != nil && maxFrameSize > 0 && performativeSize+len(payload) > int(maxFrameSize) {
		onPayloadTooLarge(p)
		buf.Truncate(FrameHeaderSize)
		if err := writeValue(buf, p); err != nil {
			return nil, 0, err
		}
		performativeSize = buf.Len()
	}

	n := len(payload)
	if maxFrameSize > 0 {
		room := int(maxFrameSize) - performativeSize
		if room < 0 {
			room = 0
		}
		if n > room {
			n = room
		}
	}
	buf.Write(payload[:n])

	return patchFrameSize(buf.Bytes()), n, nil
}

// EncodeSASL writes one SASL frame. SASL frames never carry a payload.
func EncodeSASL(p SaslPerformative, channel uint16) ([]byte, error) {
	buf := new(bytes.Buffer)
	writeFrameHeader(buf, FrameTypeSASL, channel)
	if err := writeValue(buf, p); err != nil {
		return nil, err
	}
	return patchFrameSize(buf.Bytes()), nil
}

// EncodeHeartbeat writes an empty AMQP frame.
func EncodeHeartbeat(channel uint16) []byte {
	buf := new(bytes.Buffer)
	writeFrameHeader(buf, FrameTypeAMQP, channel)
	return patchFrameSize(buf.Bytes())
}

func writeFrameHeader(buf *bytes.Buffer, frameType uint8, channel uint16) {
	buf.Write([]byte{0, 0, 0, 0}) // size, patched once the body is known
	buf.WriteByte(2)              // doff: no extended header
	buf.WriteByte(frameType)
	writeUint16(buf, channel)
}

func patchFrameSize(frame []byte) []byte {
	binary.BigEndian.PutUint32(frame[:4], uint32(len(frame)))
	return frame
}
