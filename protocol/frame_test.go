package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amqperrors "github.com/maxpert/amqp-peer/errors"
)

type frameEvent struct {
	kind         string
	channel      uint16
	header       Header
	performative Described
	payload      []byte
}

// captureHandler records every decoder callback in order.
type captureHandler struct {
	events []frameEvent
	onSASL func(SaslPerformative)
}

func (c *captureHandler) HandleHeader(h Header) {
	c.events = append(c.events, frameEvent{kind: "header", header: h})
}

func (c *captureHandler) HandleAMQP(channel uint16, p Performative, payload []byte) {
	c.events = append(c.events, frameEvent{kind: "amqp", channel: channel, performative: p, payload: payload})
}

func (c *captureHandler) HandleSASL(channel uint16, p SaslPerformative) {
	c.events = append(c.events, frameEvent{kind: "sasl", channel: channel, performative: p})
	if c.onSASL != nil {
		c.onSASL(p)
	}
}

func (c *captureHandler) HandleHeartbeat(channel uint16) {
	c.events = append(c.events, frameEvent{kind: "heartbeat", channel: channel})
}

func mustAMQPFrame(t testing.TB, p Performative, channel uint16, payload []byte) []byte {
	t.Helper()
	frame, n, err := EncodeAMQP(p, channel, payload, 0, nil)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	return frame
}

// sampleStream is a header followed by three pipelined frames.
func sampleStream(t testing.TB) []byte {
	stream := AMQPHeader.Bytes()
	stream = append(stream, mustAMQPFrame(t, NewOpen().SetContainerID("peer").SetMaxFrameSize(4096), 0, nil)...)
	stream = append(stream, mustAMQPFrame(t, NewBegin().SetNextOutgoingID(0), 3, nil)...)
	stream = append(stream, EncodeHeartbeat(0)...)
	stream = append(stream, mustAMQPFrame(t, NewTransfer().SetHandle(1).SetDeliveryID(0), 3, []byte("hello"))...)
	return stream
}

func assertSampleEvents(t *testing.T, events []frameEvent) {
	t.Helper()
	require.Len(t, events, 5)

	assert.Equal(t, "header", events[0].kind)
	assert.Equal(t, AMQPHeader, events[0].header)

	require.Equal(t, "amqp", events[1].kind)
	open, ok := events[1].performative.(*Open)
	require.True(t, ok)
	assert.Equal(t, "peer", open.ContainerID())
	assert.Equal(t, uint32(4096), open.MaxFrameSize())

	require.Equal(t, "amqp", events[2].kind)
	assert.Equal(t, uint16(3), events[2].channel)
	_, ok = events[2].performative.(*Begin)
	assert.True(t, ok)

	assert.Equal(t, "heartbeat", events[3].kind)

	require.Equal(t, "amqp", events[4].kind)
	tr, ok := events[4].performative.(*Transfer)
	require.True(t, ok)
	assert.Equal(t, uint32(1), tr.Handle())
	assert.Equal(t, []byte("hello"), events[4].payload)
}

func TestFrameDecoder_WholeStream(t *testing.T) {
	h := &captureHandler{}
	d := NewFrameDecoder(h, 0)

	require.NoError(t, d.Ingest(sampleStream(t)))
	assertSampleEvents(t, h.events)
	assert.Equal(t, StageFrameSizeParsing, d.Stage())
}

func TestFrameDecoder_OneByteAtATime(t *testing.T) {
	h := &captureHandler{}
	d := NewFrameDecoder(h, 0)

	for _, b := range sampleStream(t) {
		require.NoError(t, d.Ingest([]byte{b}))
	}
	assertSampleEvents(t, h.events)
}

func TestFrameDecoder_ArbitraryChunks(t *testing.T) {
	stream := sampleStream(t)
	for _, size := range []int{2, 3, 7, 9, 13, 64} {
		h := &captureHandler{}
		d := NewFrameDecoder(h, 0)
		for start := 0; start < len(stream); start += size {
			end := start + size
			if end > len(stream) {
				end = len(stream)
			}
			require.NoError(t, d.Ingest(stream[start:end]))
		}
		assertSampleEvents(t, h.events)
	}
}

func TestFrameDecoder_PayloadIsCopied(t *testing.T) {
	h := &captureHandler{}
	d := NewFrameDecoder(h, 0)

	stream := sampleStream(t)
	require.NoError(t, d.Ingest(stream))
	for i := range stream {
		stream[i] = 0
	}
	assert.Equal(t, []byte("hello"), h.events[4].payload)
}

func TestFrameDecoder_FrameTooShort(t *testing.T) {
	h := &captureHandler{}
	d := NewFrameDecoder(h, 0)

	stream := append(AMQPHeader.Bytes(), 0, 0, 0, 7, 2, 0, 0)
	err := d.Ingest(stream)
	require.Error(t, err)
	assert.True(t, amqperrors.IsDecodeError(err))
	assert.Equal(t, StageError, d.Stage())

	// the decoder is finished: valid input is refused with the same error
	again := d.Ingest(EncodeHeartbeat(0))
	assert.Equal(t, err, again)
	assert.Equal(t, err, d.Failed())
	assert.Len(t, h.events, 1)
}

func TestFrameDecoder_FrameTooLarge(t *testing.T) {
	h := &captureHandler{}
	d := NewFrameDecoder(h, 512)

	big := mustAMQPFrame(t, NewTransfer().SetHandle(0), 0, make([]byte, 1024))
	err := d.Ingest(append(AMQPHeader.Bytes(), big...))
	require.Error(t, err)
	assert.True(t, amqperrors.IsDecodeError(err))
	assert.Contains(t, err.Error(), "exceeds max frame size 512")
	assert.Equal(t, StageError, d.Stage())

	// a frame of exactly max+4 bytes is accepted
	h = &captureHandler{}
	d = NewFrameDecoder(h, 512)
	exact, n, err := EncodeAMQP(NewTransfer().SetHandle(0), 0, make([]byte, 1024), 516, nil)
	require.NoError(t, err)
	require.Len(t, exact, 516)
	require.NoError(t, d.Ingest(append(AMQPHeader.Bytes(), exact...)))
	assert.Len(t, h.events[1].payload, n)
}

func TestFrameDecoder_BadHeader(t *testing.T) {
	d := NewFrameDecoder(&captureHandler{}, 0)
	err := d.Ingest([]byte{'A', 'M', 'Q', 'P', 0, 0, 9, 1})
	require.Error(t, err)
	assert.True(t, amqperrors.IsDecodeError(err))
	assert.Equal(t, StageError, d.Stage())
}

func TestFrameDecoder_MalformedFrames(t *testing.T) {
	withSize := func(frame []byte) []byte {
		binary.BigEndian.PutUint32(frame[:4], uint32(len(frame)))
		return frame
	}

	saslWithTrailer, err := EncodeSASL(NewSaslOutcome(SASLCodeOK), 0)
	require.NoError(t, err)
	saslWithTrailer = withSize(append(saslWithTrailer, 0xff, 0xff))

	saslInAMQPFrame, err := EncodeSASL(NewSaslOutcome(SASLCodeOK), 0)
	require.NoError(t, err)
	saslInAMQPFrame[5] = FrameTypeAMQP

	openInSASLFrame := mustAMQPFrame(t, NewOpen(), 0, nil)
	openInSASLFrame[5] = FrameTypeSASL

	badDoff := EncodeHeartbeat(0)
	badDoff[4] = 1

	doffPastEnd := EncodeHeartbeat(0)
	doffPastEnd[4] = 8

	unknownType := EncodeHeartbeat(0)
	unknownType[5] = 7

	garbageBody := withSize(append(EncodeHeartbeat(0), 0x0f))

	tests := []struct {
		name  string
		frame []byte
	}{
		{"sasl frame with trailing bytes", saslWithTrailer},
		{"sasl performative in amqp frame", saslInAMQPFrame},
		{"amqp performative in sasl frame", openInSASLFrame},
		{"doff below 2", badDoff},
		{"doff past end", doffPastEnd},
		{"unknown frame type", unknownType},
		{"unknown type code in body", garbageBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewFrameDecoder(&captureHandler{}, 0)
			err := d.Ingest(append(AMQPHeader.Bytes(), tt.frame...))
			require.Error(t, err)
			assert.True(t, amqperrors.IsDecodeError(err), "got %T", err)
			assert.Equal(t, StageError, d.Stage())
		})
	}
}

func TestFrameDecoder_ExtendedHeaderIsSkipped(t *testing.T) {
	frame := mustAMQPFrame(t, NewEnd(), 5, nil)
	// doff 3 with four bytes of extended header
	extended := append([]byte{}, frame[:8]...)
	extended = append(extended, 0xaa, 0xbb, 0xcc, 0xdd)
	extended = append(extended, frame[8:]...)
	extended[4] = 3
	binary.BigEndian.PutUint32(extended[:4], uint32(len(extended)))

	h := &captureHandler{}
	d := NewFrameDecoder(h, 0)
	require.NoError(t, d.Ingest(append(AMQPHeader.Bytes(), extended...)))
	require.Len(t, h.events, 2)
	_, ok := h.events[1].performative.(*End)
	assert.True(t, ok)
	assert.Equal(t, uint16(5), h.events[1].channel)
	assert.Empty(t, h.events[1].payload)
}

func TestFrameDecoder_SASLThenAMQPHeader(t *testing.T) {
	h := &captureHandler{}
	d := NewFrameDecoder(h, 0)
	h.onSASL = func(p SaslPerformative) {
		if _, ok := p.(*SaslOutcome); ok {
			d.ExpectHeader()
		}
	}

	mechs, err := EncodeSASL(NewSaslMechanisms("ANONYMOUS"), 0)
	require.NoError(t, err)
	outcome, err := EncodeSASL(NewSaslOutcome(SASLCodeOK), 0)
	require.NoError(t, err)

	stream := SASLHeader.Bytes()
	stream = append(stream, mechs...)
	stream = append(stream, outcome...)
	stream = append(stream, AMQPHeader.Bytes()...)
	stream = append(stream, mustAMQPFrame(t, NewOpen(), 0, nil)...)

	require.NoError(t, d.Ingest(stream))
	kinds := make([]string, 0, len(h.events))
	for _, e := range h.events {
		kinds = append(kinds, e.kind)
	}
	assert.Equal(t, []string{"header", "sasl", "sasl", "header", "amqp"}, kinds)
	assert.True(t, h.events[0].header.IsSASL())
	assert.False(t, h.events[3].header.IsSASL())
	assert.Equal(t, []Symbol{"ANONYMOUS"}, h.events[1].performative.(*SaslMechanisms).Mechanisms())
}

func TestEncodeAMQP_PayloadTooLarge(t *testing.T) {
	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i)
	}

	calls := 0
	tr := NewTransfer().SetHandle(0).SetDeliveryID(1)
	frame, n, err := EncodeAMQP(tr, 2, payload, 512, func(p Performative) {
		calls++
		p.(*Transfer).SetMore(true)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Len(t, frame, 512)
	assert.Equal(t, uint32(512), binary.BigEndian.Uint32(frame[:4]))
	assert.True(t, n > 0 && n < len(payload))

	h := &captureHandler{}
	d := NewFrameDecoder(h, 0)
	require.NoError(t, d.Ingest(append(AMQPHeader.Bytes(), frame...)))
	got := h.events[1].performative.(*Transfer)
	assert.True(t, got.More())
	assert.Equal(t, payload[:n], h.events[1].payload)
}

func TestEncodeAMQP_TruncatesWithoutCallback(t *testing.T) {
	frame, n, err := EncodeAMQP(NewTransfer().SetHandle(0), 0, make([]byte, 100), 64, nil)
	require.NoError(t, err)
	assert.Len(t, frame, 64)

	perf, _, err := EncodeAMQP(NewTransfer().SetHandle(0), 0, nil, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 64-len(perf), n)
}

func TestEncodeAMQP_CallbackSkippedWhenItFits(t *testing.T) {
	called := false
	_, n, err := EncodeAMQP(NewTransfer().SetHandle(0), 0, []byte("small"), 512, func(Performative) { called = true })
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, 5, n)
}

func TestEncodeAMQP_MissingFieldDoesNotPoison(t *testing.T) {
	_, _, err := EncodeAMQP(NewTransfer(), 0, nil, 0, nil)
	require.Error(t, err)
	assert.True(t, amqperrors.IsEncodeError(err))

	_, _, err = EncodeAMQP(NewTransfer().SetHandle(0), 0, nil, 0, nil)
	assert.NoError(t, err)
}

func TestEncodeHeartbeat(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 0, 8, 2, 0, 0, 9}, EncodeHeartbeat(9))
}
