package driver

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	amqperrors "github.com/maxpert/amqp-peer/errors"
	"github.com/maxpert/amqp-peer/interfaces"
	"github.com/maxpert/amqp-peer/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// wire collects what a driver writes and decodes it back.
type wire struct {
	mutex  sync.Mutex
	frames [][]byte
}

func (w *wire) write(b []byte) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.frames = append(w.frames, append([]byte(nil), b...))
}

func (w *wire) raw() [][]byte {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return append([][]byte(nil), w.frames...)
}

type decoded struct {
	channel uint16
	perf    protocol.Performative
	sasl    protocol.SaslPerformative
	payload []byte
	header  *protocol.Header
}

type collector struct{ out []decoded }

func (c *collector) HandleHeader(h protocol.Header) { c.out = append(c.out, decoded{header: &h}) }
func (c *collector) HandleAMQP(ch uint16, p protocol.Performative, payload []byte) {
	c.out = append(c.out, decoded{channel: ch, perf: p, payload: payload})
}
func (c *collector) HandleSASL(ch uint16, p protocol.SaslPerformative) {
	c.out = append(c.out, decoded{channel: ch, sasl: p})
}
func (c *collector) HandleHeartbeat(ch uint16) { c.out = append(c.out, decoded{channel: ch}) }

// decode parses everything written so far. The stream must start with a
// protocol header.
func (w *wire) decode(t *testing.T) []decoded {
	t.Helper()
	c := &collector{}
	dec := protocol.NewFrameDecoder(c, 0)
	for _, frame := range w.raw() {
		require.NoError(t, dec.Ingest(frame))
	}
	return c.out
}

func frame(t *testing.T, channel uint16, p protocol.Performative, payload []byte) []byte {
	t.Helper()
	b, n, err := protocol.EncodeAMQP(p, channel, payload, 0, nil)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	return b
}

func saslFrame(t *testing.T, p protocol.SaslPerformative) []byte {
	t.Helper()
	b, err := protocol.EncodeSASL(p, 0)
	require.NoError(t, err)
	return b
}

func stream(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func newDriver(t *testing.T, cfg interfaces.PeerConfig, opts ...Option) (*Driver, *wire) {
	t.Helper()
	d := New(cfg, opts...)
	w := &wire{}
	d.OnOutput(w.write)
	return d, w
}

func remoteFlow(handle uint32) *protocol.Flow {
	return protocol.NewFlow().
		SetIncomingWindow(100).
		SetNextOutgoingID(1).
		SetOutgoingWindow(100).
		SetHandle(handle).
		SetLinkCredit(10)
}

func TestDriver_RemoteInitiatedHandshake(t *testing.T) {
	d, w := newDriver(t, interfaces.PeerConfig{ContainerID: "peer"})

	var events []Event
	d.OnEvent(func(ev Event) { events = append(events, ev) })

	err := d.Ingest(stream(
		protocol.AMQPHeader.Bytes(),
		frame(t, 0, protocol.NewOpen().SetContainerID("client"), nil),
		frame(t, 0, newBegin(), nil),
		frame(t, 0, attach("orders", 0, protocol.RoleSender).SetInitialDeliveryCount(0), nil),
	))
	require.NoError(t, err)

	require.Len(t, events, 4)
	assert.Equal(t, HeaderEvent, events[0].Kind)
	assert.False(t, events[0].Header.IsSASL())
	assert.IsType(t, &protocol.Open{}, events[1].Performative)
	require.NotNil(t, events[2].Session)
	require.NotNil(t, events[3].Link)
	assert.Same(t, events[2].Session, events[3].Session)

	require.NoError(t, d.SendHeader(protocol.AMQPHeader))
	require.NoError(t, d.Send(protocol.NewOpen().SetContainerID("peer"), nil))
	require.NoError(t, d.Send(protocol.NewBegin(), nil))
	require.NoError(t, d.Send(protocol.NewAttach(), nil))

	out := w.decode(t)
	require.Len(t, out, 4)
	require.NotNil(t, out[0].header)

	begin, ok := out[2].perf.(*protocol.Begin)
	require.True(t, ok)
	assert.True(t, begin.Has(protocol.BeginRemoteChannel))
	assert.Equal(t, uint16(0), begin.RemoteChannel())
	assert.Equal(t, uint32(1), begin.NextOutgoingID())

	reply, ok := out[3].perf.(*protocol.Attach)
	require.True(t, ok)
	assert.Equal(t, "orders", reply.Name())
	assert.Equal(t, protocol.RoleReceiver, reply.Role())
	assert.Equal(t, uint32(0), reply.Handle())

	link := events[3].Link
	assert.True(t, link.IsLocallyAttached())
	assert.True(t, link.IsRemotelyAttached())
	assert.Len(t, d.Sessions(), 1)
	assert.NoError(t, d.Failure())
}

func TestDriver_LocallyInitiatedSessionIsAnswered(t *testing.T) {
	d, _ := newDriver(t, interfaces.PeerConfig{})

	require.NoError(t, d.SendNow(0, protocol.NewOpen(), nil))
	require.NoError(t, d.Send(newBegin(), nil))
	require.NoError(t, d.Send(attach("out", 0, protocol.RoleSender), nil))

	local := d.Registry().LastLocallyOpened()
	require.NotNil(t, local)

	require.NoError(t, d.Ingest(stream(
		protocol.AMQPHeader.Bytes(),
		frame(t, 0, protocol.NewOpen(), nil),
		frame(t, 6, newBegin().SetRemoteChannel(0), nil),
		frame(t, 6, attach("out", 2, protocol.RoleReceiver), nil),
	)))

	var remote *SessionTracker
	d.Inspect(func(r *ChannelRegistry) { remote = r.SessionFromRemoteChannel(6) })
	assert.Same(t, local, remote)

	link := local.LinkByName("out", protocol.RoleSender)
	require.NotNil(t, link)
	assert.True(t, link.IsRemotelyAttached())
}

func TestDriver_FlowOnUnknownHandleFails(t *testing.T) {
	d, _ := newDriver(t, interfaces.PeerConfig{})

	var failures []error
	d.OnFailure(func(err error) { failures = append(failures, err) })

	err := d.Ingest(stream(
		protocol.AMQPHeader.Bytes(),
		frame(t, 0, protocol.NewOpen(), nil),
		frame(t, 0, newBegin(), nil),
		frame(t, 0, remoteFlow(3), nil),
	))
	require.Error(t, err)
	assert.True(t, amqperrors.IsProtocolViolation(err))
	assert.Equal(t, amqperrors.UnattachedHandle, amqperrors.ConditionOf(err))
	assert.Equal(t, err, d.Failure())

	// the failure sticks and is reported once
	assert.Equal(t, err, d.Ingest(frame(t, 0, protocol.NewEnd(), nil)))
	assert.Equal(t, err, d.SendNow(0, protocol.NewEnd(), nil))
	assert.Equal(t, err, d.SendHeartbeat())
	assert.Len(t, failures, 1)
}

func TestDriver_FrameOnUnknownChannelFails(t *testing.T) {
	d, _ := newDriver(t, interfaces.PeerConfig{})

	err := d.Ingest(stream(
		protocol.AMQPHeader.Bytes(),
		frame(t, 0, protocol.NewOpen(), nil),
		frame(t, 2, attach("x", 0, protocol.RoleSender), nil),
	))
	require.Error(t, err)
	assert.Equal(t, amqperrors.NotFound, amqperrors.ConditionOf(err))
}

func TestDriver_EndOnUnknownChannelTolerated(t *testing.T) {
	d, _ := newDriver(t, interfaces.PeerConfig{})

	var events []Event
	d.OnEvent(func(ev Event) { events = append(events, ev) })

	require.NoError(t, d.Ingest(stream(
		protocol.AMQPHeader.Bytes(),
		frame(t, 0, protocol.NewOpen(), nil),
		frame(t, 4, protocol.NewEnd(), nil),
	)))
	require.Len(t, events, 3)
	assert.Nil(t, events[2].Session)
}

func TestDriver_ChannelMaxEnforced(t *testing.T) {
	d, _ := newDriver(t, interfaces.PeerConfig{ChannelMax: 1})

	err := d.Ingest(stream(
		protocol.AMQPHeader.Bytes(),
		frame(t, 0, protocol.NewOpen(), nil),
		frame(t, 2, newBegin(), nil),
	))
	require.Error(t, err)
	assert.True(t, amqperrors.IsProtocolViolation(err))
}

func TestDriver_DecodeErrorIsFatal(t *testing.T) {
	d, _ := newDriver(t, interfaces.PeerConfig{MaxInboundFrameSize: 512})

	var failures []error
	d.OnFailure(func(err error) { failures = append(failures, err) })

	err := d.Ingest(stream(protocol.AMQPHeader.Bytes(), []byte{0x00, 0x00, 0x00, 0x04}))
	require.Error(t, err)
	assert.True(t, amqperrors.IsDecodeError(err))

	err = d.Ingest(frame(t, 0, protocol.NewOpen(), nil))
	assert.True(t, amqperrors.IsDecodeError(err))
	assert.Len(t, failures, 1)
}

func TestDriver_BadHeaderIsFatal(t *testing.T) {
	d, _ := newDriver(t, interfaces.PeerConfig{})

	err := d.Ingest([]byte{'A', 'M', 'Q', 'P', 0, 0, 9, 1})
	require.Error(t, err)
	assert.True(t, amqperrors.IsDecodeError(err))
}

func TestDriver_SendTransferSplitsPayload(t *testing.T) {
	d, w := newDriver(t, interfaces.PeerConfig{MaxOutboundFrameSize: 100})
	require.NoError(t, d.SendHeader(protocol.AMQPHeader))
	require.NoError(t, d.Send(protocol.NewOpen(), nil))
	require.NoError(t, d.Send(protocol.NewBegin(), nil))
	require.NoError(t, d.Send(protocol.NewAttach().SetRole(protocol.RoleSender), nil))

	payload := bytes.Repeat([]byte("0123456789"), 25)
	require.NoError(t, d.SendTransfer(0, protocol.NewTransfer(), payload))

	var transfers []decoded
	for _, f := range w.decode(t) {
		if _, ok := f.perf.(*protocol.Transfer); ok {
			transfers = append(transfers, f)
		}
	}
	require.GreaterOrEqual(t, len(transfers), 3)

	var joined []byte
	for i, f := range transfers {
		tr := f.perf.(*protocol.Transfer)
		last := i == len(transfers)-1
		assert.Equal(t, !last, tr.More(), "frame %d", i)
		assert.Equal(t, i == 0, tr.Has(protocol.TransferDeliveryID), "frame %d", i)
		joined = append(joined, f.payload...)
	}
	assert.Equal(t, payload, joined)

	first := transfers[0].perf.(*protocol.Transfer)
	assert.Equal(t, uint32(1), first.DeliveryID())
	assert.Equal(t, []byte{0, 0, 0, 1}, first.DeliveryTag())

	for _, raw := range w.raw() {
		assert.LessOrEqual(t, len(raw), 100)
	}

	link := d.Registry().LastLocallyOpened().LastLocallyOpenedLink()
	assert.Equal(t, uint32(1), link.DeliveryCount())
	assert.Equal(t, len(transfers), link.LocalTransfers())
}

func TestDriver_SendTransferHeaderOverFrameLimit(t *testing.T) {
	d, w := newDriver(t, interfaces.PeerConfig{MaxOutboundFrameSize: 40})
	require.NoError(t, d.SendHeader(protocol.AMQPHeader))
	require.NoError(t, d.Send(protocol.NewOpen(), nil))
	require.NoError(t, d.Send(protocol.NewBegin(), nil))
	require.NoError(t, d.Send(protocol.NewAttach().SetRole(protocol.RoleSender), nil))
	tag := bytes.Repeat([]byte{7}, 32)

	// a payload that cannot fit is an encode error and leaves the transfer untouched
	withPayload := protocol.NewTransfer().SetDeliveryTag(tag)
	sent := len(w.raw())
	err := d.SendTransfer(0, withPayload, []byte("x"))
	require.Error(t, err)
	assert.True(t, amqperrors.IsEncodeError(err))
	assert.Contains(t, err.Error(), "max frame size 40 leaves no room for transfer payload")
	assert.False(t, withPayload.Has(protocol.TransferMore))
	assert.Len(t, w.raw(), sent)
	assert.NoError(t, d.Failure())

	// with nothing to split the oversized header still goes out
	empty := protocol.NewTransfer().SetDeliveryTag(tag)
	require.NoError(t, d.SendTransfer(0, empty, nil))
	assert.Len(t, w.raw(), sent+1)
	assert.False(t, empty.Has(protocol.TransferMore))
}

func TestDriver_RemoteOpenLowersFrameSize(t *testing.T) {
	d, _ := newDriver(t, interfaces.PeerConfig{MaxOutboundFrameSize: 4096})

	require.NoError(t, d.Ingest(stream(
		protocol.AMQPHeader.Bytes(),
		frame(t, 0, protocol.NewOpen().SetMaxFrameSize(512), nil),
	)))
	assert.Equal(t, uint32(512), d.MaxFrameSize())
}

func TestDriver_SetNullBypassesAutoFill(t *testing.T) {
	d, w := newDriver(t, interfaces.PeerConfig{})
	require.NoError(t, d.SendHeader(protocol.AMQPHeader))
	require.NoError(t, d.Send(protocol.NewOpen(), nil))
	require.NoError(t, d.Send(protocol.NewBegin(), nil))

	a := protocol.NewAttach().SetName("raw").SetRole(protocol.RoleSender)
	a.SetNull(protocol.AttachHandle)
	require.NoError(t, d.Send(a, nil))

	raw := w.raw()
	sent := raw[len(raw)-1]
	// frame header, descriptor, list8 header, name, then the handle slot
	handleAt := 8 + 3 + 3 + 2 + len("raw")
	assert.Equal(t, byte(0x40), sent[handleAt])

	// a null handle is rejected when decoded
	_, _, err := protocol.DecodeValue(sent[8:])
	require.Error(t, err)
	assert.True(t, amqperrors.IsDecodeError(err))
}

func TestDriver_RemoteAttachWithNullHandleFails(t *testing.T) {
	d, _ := newDriver(t, interfaces.PeerConfig{})

	require.NoError(t, d.Ingest(stream(
		protocol.AMQPHeader.Bytes(),
		frame(t, 0, protocol.NewOpen(), nil),
		frame(t, 0, newBegin(), nil),
	)))

	a := protocol.NewAttach().SetName("x").SetRole(protocol.RoleSender)
	a.SetNull(protocol.AttachHandle)
	err := d.Ingest(frame(t, 0, a, nil))
	require.Error(t, err)
	assert.True(t, amqperrors.IsDecodeError(err))
	assert.Contains(t, err.Error(), "Attach.handle is mandatory and cannot be null")
	assert.Equal(t, err, d.Failure())

	var link *LinkTracker
	d.Inspect(func(r *ChannelRegistry) { link = r.SessionFromRemoteChannel(0).LinkFromRemoteHandle(0) })
	assert.Nil(t, link)
}

func TestDriver_EncodeErrorDoesNotFail(t *testing.T) {
	d, _ := newDriver(t, interfaces.PeerConfig{})

	err := d.SendNow(0, protocol.NewAttach(), nil)
	require.Error(t, err)
	assert.True(t, amqperrors.IsEncodeError(err))
	assert.NoError(t, d.Failure())
	assert.NoError(t, d.SendNow(0, protocol.NewOpen(), nil))
}

func TestDriver_SASLOutcomeExpectsNewHeader(t *testing.T) {
	d, w := newDriver(t, interfaces.PeerConfig{})

	require.NoError(t, d.Ingest(protocol.SASLHeader.Bytes()))
	require.NoError(t, d.SendHeader(protocol.SASLHeader))
	require.NoError(t, d.SendSASL(protocol.NewSaslMechanisms("PLAIN", "ANONYMOUS")))
	require.NoError(t, d.Ingest(saslFrame(t, protocol.NewSaslInit("ANONYMOUS"))))
	require.NoError(t, d.SendSASL(protocol.NewSaslOutcome(protocol.SASLCodeOK)))

	require.NoError(t, d.Ingest(stream(
		protocol.AMQPHeader.Bytes(),
		frame(t, 0, protocol.NewOpen(), nil),
	)))

	headers := d.RemoteHeaders()
	require.Len(t, headers, 2)
	assert.True(t, headers[0].IsSASL())
	assert.False(t, headers[1].IsSASL())
	assert.NotNil(t, d.RemoteOpen())

	out := w.decode(t)
	require.Len(t, out, 3)
	mechanisms, ok := out[1].sasl.(*protocol.SaslMechanisms)
	require.True(t, ok)
	assert.Equal(t, []protocol.Symbol{"PLAIN", "ANONYMOUS"}, mechanisms.Mechanisms())
}

func TestDriver_EventCallbackMaySend(t *testing.T) {
	d, w := newDriver(t, interfaces.PeerConfig{})

	d.OnEvent(func(ev Event) {
		switch ev.Performative.(type) {
		case *protocol.Open:
			assert.NoError(t, d.Send(protocol.NewOpen(), nil))
		case *protocol.Begin:
			assert.NoError(t, d.Send(protocol.NewBegin(), nil))
		}
	})
	require.NoError(t, d.SendHeader(protocol.AMQPHeader))
	require.NoError(t, d.Ingest(stream(
		protocol.AMQPHeader.Bytes(),
		frame(t, 0, protocol.NewOpen(), nil),
		frame(t, 0, newBegin(), nil),
	)))

	out := w.decode(t)
	require.Len(t, out, 3)
	assert.IsType(t, &protocol.Begin{}, out[2].perf)
	assert.True(t, d.Sessions()[0].IsLocallyBegun())
}

func TestDriver_OutputBackloggedUntilSinkSet(t *testing.T) {
	d := New(interfaces.PeerConfig{})
	require.NoError(t, d.SendHeader(protocol.AMQPHeader))
	require.NoError(t, d.SendHeartbeat())

	w := &wire{}
	d.OnOutput(w.write)

	raw := w.raw()
	require.Len(t, raw, 2)
	assert.Equal(t, protocol.AMQPHeader.Bytes(), raw[0])
	assert.Equal(t, protocol.EncodeHeartbeat(0), raw[1])
}

func TestDriver_ScheduledSendsRunOnAdvance(t *testing.T) {
	d, w := newDriver(t, interfaces.PeerConfig{})
	require.NoError(t, d.SendHeader(protocol.AMQPHeader))

	var order []string
	d.Schedule(10*time.Millisecond, func() error {
		order = append(order, "close")
		return d.SendNow(0, protocol.NewClose(), nil)
	})
	d.SendAfter(5*time.Millisecond, 0, protocol.NewOpen(), nil)
	d.Schedule(5*time.Millisecond, func() error {
		order = append(order, "after open")
		return nil
	})

	require.NoError(t, d.Advance(4*time.Millisecond))
	assert.Len(t, w.raw(), 1)

	require.NoError(t, d.Advance(6*time.Millisecond))
	assert.Equal(t, []string{"after open", "close"}, order)
	assert.Equal(t, 10*time.Millisecond, d.Now())

	out := w.decode(t)
	require.Len(t, out, 3)
	assert.IsType(t, &protocol.Open{}, out[1].perf)
	assert.IsType(t, &protocol.Close{}, out[2].perf)
	assert.NotNil(t, d.LocalClose())
}

func TestDriver_ConcurrentIngestAndSend(t *testing.T) {
	d, w := newDriver(t, interfaces.PeerConfig{})
	require.NoError(t, d.SendHeader(protocol.AMQPHeader))
	require.NoError(t, d.Ingest(stream(
		protocol.AMQPHeader.Bytes(),
		frame(t, 0, protocol.NewOpen(), nil),
	)))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			assert.NoError(t, d.Ingest(protocol.EncodeHeartbeat(0)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			assert.NoError(t, d.SendHeartbeat())
		}
	}()
	wg.Wait()

	assert.Len(t, w.raw(), 51)
}

func TestDriver_EventCallbackInspectsWhileClockSends(t *testing.T) {
	d, _ := newDriver(t, interfaces.PeerConfig{})
	require.NoError(t, d.Ingest(stream(
		protocol.AMQPHeader.Bytes(),
		frame(t, 0, protocol.NewOpen(), nil),
	)))
	require.NoError(t, d.SendHeader(protocol.AMQPHeader))
	require.NoError(t, d.SendNow(0, protocol.NewOpen(), nil))

	const sessions = 50
	var answered int
	d.OnEvent(func(ev Event) {
		d.Inspect(func(*ChannelRegistry) {
			if ev.Session != nil && ev.Session.LocalBegin() != nil {
				answered++
			}
		})
	})
	for i := 0; i < sessions; i++ {
		reply := protocol.NewBegin().SetNextOutgoingID(1).SetRemoteChannel(uint16(i))
		d.SendAfter(time.Duration(i)*time.Millisecond, uint16(i), reply, nil)
	}

	done := make(chan error, 1)
	go func() {
		for i := 0; i < sessions; i++ {
			if err := d.Advance(time.Millisecond); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	for i := 0; i < sessions; i++ {
		require.NoError(t, d.Ingest(frame(t, uint16(i), newBegin(), nil)))
	}
	require.NoError(t, <-done)

	assert.NoError(t, d.Failure())
	assert.LessOrEqual(t, answered, sessions)
	d.Inspect(func(r *ChannelRegistry) {
		for i := 0; i < sessions; i++ {
			assert.NotNil(t, r.SessionFromRemoteChannel(uint16(i)), "remote channel %d", i)
		}
	})
}
