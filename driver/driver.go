package driver

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	amqperrors "github.com/maxpert/amqp-peer/errors"
	"github.com/maxpert/amqp-peer/interfaces"
	"github.com/maxpert/amqp-peer/protocol"
)

// Direction tells whether a frame was read from or written to the remote peer.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "out"
	}
	return "in"
}

// EventKind classifies an inbound Event.
type EventKind int

const (
	HeaderEvent EventKind = iota
	SASLEvent
	FrameEvent
	HeartbeatEvent
)

// Event describes one unit read from the remote peer, together with the
// trackers it touched. Session and Link are nil when the frame does not
// belong to one. The trackers stay owned by the driver: callbacks read them
// inside Inspect, since scheduled actions may change them concurrently.
type Event struct {
	Kind         EventKind
	Channel      uint16
	Header       protocol.Header
	SASL         protocol.SaslPerformative
	Performative protocol.Performative
	Payload      []byte
	Session      *SessionTracker
	Link         *LinkTracker
}

// Option configures a Driver.
type Option func(*Driver)

func WithLogger(logger *zap.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

func WithMetrics(metrics MetricsCollector) Option {
	return func(d *Driver) { d.metrics = metrics }
}

func WithRecorder(recorder *Recorder) Option {
	return func(d *Driver) { d.recorder = recorder }
}

// Driver is the protocol engine for one connection. It decodes inbound
// bytes, keeps the session and link trackers current, encodes outbound
// performatives and hands the resulting bytes to the output sink.
//
// Every method is safe for concurrent use. Tracker mutation and each
// encode-then-emit sequence run under one lock; event and failure callbacks
// run after it is released, so they may call back into the driver.
type Driver struct {
	mutex sync.Mutex

	config    interfaces.PeerConfig
	logger    *zap.Logger
	metrics   MetricsCollector
	recorder  *Recorder
	decoder   *protocol.FrameDecoder
	registry  *ChannelRegistry
	scheduler *Scheduler

	maxFrameSize uint32 // outbound, 0 means unbounded
	linkNames    uint64

	localOpen   *protocol.Open
	remoteOpen  *protocol.Open
	localClose  *protocol.Close
	remoteClose *protocol.Close

	remoteHeaders []protocol.Header

	output    func([]byte)
	onFailure func(error)
	onEvent   func(Event)
	backlog   [][]byte
	pending   []Event

	failure    error
	unreported bool
}

// New returns a driver configured from cfg. Zero values in cfg select the
// protocol defaults: unbounded frame sizes, channel-max 65535 and
// handle-max 4294967295.
func New(cfg interfaces.PeerConfig, opts ...Option) *Driver {
	channelMax := cfg.ChannelMax
	if channelMax == 0 {
		channelMax = math.MaxUint16
	}
	handleMax := cfg.HandleMax
	if handleMax == 0 {
		handleMax = math.MaxUint32
	}

	d := &Driver{
		config:       cfg,
		logger:       zap.NewNop(),
		metrics:      NoOpMetricsCollector{},
		registry:     NewChannelRegistry(channelMax, handleMax),
		scheduler:    NewScheduler(),
		maxFrameSize: cfg.MaxOutboundFrameSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.decoder = protocol.NewFrameDecoder(inbound{d}, cfg.MaxInboundFrameSize)
	return d
}

// OnOutput sets the sink for encoded bytes. Frames produced before a sink
// was set are delivered to it immediately, in order.
func (d *Driver) OnOutput(fn func([]byte)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.output = fn
	if fn == nil {
		return
	}
	for _, frame := range d.backlog {
		fn(frame)
	}
	d.backlog = nil
}

// OnFailure sets the callback told about the first fatal error.
func (d *Driver) OnFailure(fn func(error)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.onFailure = fn
}

// OnEvent sets the callback told about every inbound header and frame.
func (d *Driver) OnEvent(fn func(Event)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.onEvent = fn
}

// Failure returns the error that stopped the driver, if any.
func (d *Driver) Failure() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.failure
}

// Sessions returns the sessions currently tracked.
func (d *Driver) Sessions() []*SessionTracker {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.registry.Sessions()
}

// Inspect runs fn with the channel registry while holding the driver lock.
// fn must not call back into the driver.
func (d *Driver) Inspect(fn func(*ChannelRegistry)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	fn(d.registry)
}

// Registry returns the channel registry without locking. It is meant for
// single goroutine tests; concurrent callers should use Inspect.
func (d *Driver) Registry() *ChannelRegistry { return d.registry }

func (d *Driver) LocalOpen() *protocol.Open {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.localOpen
}

func (d *Driver) RemoteOpen() *protocol.Open {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.remoteOpen
}

func (d *Driver) LocalClose() *protocol.Close {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.localClose
}

func (d *Driver) RemoteClose() *protocol.Close {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.remoteClose
}

// RemoteHeaders returns the protocol headers received so far, oldest first.
func (d *Driver) RemoteHeaders() []protocol.Header {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]protocol.Header(nil), d.remoteHeaders...)
}

// MaxFrameSize returns the outbound frame limit currently in force.
func (d *Driver) MaxFrameSize() uint32 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.maxFrameSize
}

// Ingest feeds bytes read from the transport. It returns the driver's
// failure, which stays set once raised.
func (d *Driver) Ingest(chunk []byte) error {
	d.mutex.Lock()
	defer d.unlockAndDispatch()

	if d.failure != nil {
		return d.failure
	}
	d.metrics.RecordBytesIn(len(chunk))
	if err := d.decoder.Ingest(chunk); err != nil {
		d.fail(err)
	}
	return d.failure
}

// SendHeader writes a protocol header.
func (d *Driver) SendHeader(h protocol.Header) error {
	d.mutex.Lock()
	defer d.unlockAndDispatch()

	if d.failure != nil {
		return d.failure
	}
	d.emit(0, "Header", h.Bytes())
	return nil
}

// SendSASL writes a SASL frame on channel 0. Sending an outcome makes the
// decoder expect a fresh protocol header.
func (d *Driver) SendSASL(p protocol.SaslPerformative) error {
	d.mutex.Lock()
	defer d.unlockAndDispatch()

	if d.failure != nil {
		return d.failure
	}
	frame, err := protocol.EncodeSASL(p, 0)
	if err != nil {
		return err
	}
	d.emit(0, p.TypeName(), frame)
	if _, ok := p.(*protocol.SaslOutcome); ok {
		d.decoder.ExpectHeader()
	}
	return nil
}

// SendHeartbeat writes an empty frame on channel 0.
func (d *Driver) SendHeartbeat() error {
	d.mutex.Lock()
	defer d.unlockAndDispatch()

	if d.failure != nil {
		return d.failure
	}
	d.emit(0, "Heartbeat", protocol.EncodeHeartbeat(0))
	return nil
}

// SendNow encodes p on channel and writes it. Unset Begin, Attach, Flow and
// Transfer fields are filled from tracker state first; a field forced to
// null is left alone. A Transfer larger than the frame limit is split.
func (d *Driver) SendNow(channel uint16, p protocol.Performative, payload []byte) error {
	d.mutex.Lock()
	defer d.unlockAndDispatch()

	if d.failure != nil {
		return d.failure
	}
	return d.send(channel, p, payload)
}

// Send is SendNow on the channel the tracker state suggests: 0 for Open and
// Close, the reserved reply channel or a free one for Begin, and the most
// recently begun session's channel for everything else.
func (d *Driver) Send(p protocol.Performative, payload []byte) error {
	d.mutex.Lock()
	defer d.unlockAndDispatch()

	if d.failure != nil {
		return d.failure
	}
	channel, err := d.pickChannel(p)
	if err != nil {
		return err
	}
	return d.send(channel, p, payload)
}

// SendTransfer writes t followed by payload, split over as many frames as
// the outbound frame limit needs. t is modified: it gets more=true when the
// payload does not fit its frame.
func (d *Driver) SendTransfer(channel uint16, t *protocol.Transfer, payload []byte) error {
	return d.SendNow(channel, t, payload)
}

// SendAfter queues p for channel to be sent once delay has passed on the
// virtual clock.
func (d *Driver) SendAfter(delay time.Duration, channel uint16, p protocol.Performative, payload []byte) {
	d.Schedule(delay, func() error {
		return d.SendNow(channel, p, payload)
	})
}

// Schedule queues action on the driver's virtual clock.
func (d *Driver) Schedule(delay time.Duration, action Action) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.scheduler.Schedule(delay, action)
}

// Now returns the driver's virtual time.
func (d *Driver) Now() time.Duration {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.scheduler.Now()
}

// Advance moves the virtual clock forward by elapsed and runs every action
// that became due, in order. Actions run without the lock held.
func (d *Driver) Advance(elapsed time.Duration) error {
	d.mutex.Lock()
	until := d.scheduler.Now() + elapsed
	d.mutex.Unlock()

	for {
		d.mutex.Lock()
		action := d.scheduler.next(until)
		d.mutex.Unlock()
		if action == nil {
			break
		}
		if err := action(); err != nil {
			return err
		}
	}

	d.mutex.Lock()
	d.scheduler.settle(until)
	d.mutex.Unlock()
	return nil
}

// unlockAndDispatch releases the lock, then delivers queued events and a
// failure not yet reported.
func (d *Driver) unlockAndDispatch() {
	events := d.pending
	d.pending = nil
	var failure error
	if d.unreported {
		failure = d.failure
		d.unreported = false
	}
	onEvent, onFailure := d.onEvent, d.onFailure
	d.mutex.Unlock()

	if onEvent != nil {
		for _, ev := range events {
			onEvent(ev)
		}
	}
	if failure != nil && onFailure != nil {
		onFailure(failure)
	}
}

func (d *Driver) fail(err error) {
	if d.failure != nil {
		return
	}
	d.failure = err
	d.unreported = true

	switch {
	case amqperrors.IsDecodeError(err):
		d.metrics.RecordDecodeError()
	case amqperrors.IsProtocolViolation(err):
		d.metrics.RecordProtocolViolation(string(amqperrors.ConditionOf(err)))
	}
	d.logger.Error("Peer failed", zap.Error(err))
}

func (d *Driver) emit(channel uint16, name string, frame []byte) {
	d.metrics.RecordFrameOut(name)
	d.metrics.RecordBytesOut(len(frame))
	d.record(Outbound, channel, name, frame)
	d.logger.Debug("Frame sent",
		zap.Uint16("channel", channel),
		zap.String("performative", name),
		zap.Int("size", len(frame)))

	if d.output == nil {
		d.backlog = append(d.backlog, frame)
		return
	}
	d.output(frame)
}

func (d *Driver) record(direction Direction, channel uint16, name string, frame []byte) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.Record(direction, channel, name, frame); err != nil {
		d.logger.Warn("Failed to record frame", zap.Error(err))
	}
}

func (d *Driver) send(channel uint16, p protocol.Performative, payload []byte) error {
	if err := d.complete(channel, p); err != nil {
		return err
	}
	if t, ok := p.(*protocol.Transfer); ok {
		return d.sendTransfer(channel, t, payload)
	}

	frame, _, err := protocol.EncodeAMQP(p, channel, payload, d.maxFrameSize, nil)
	if err != nil {
		return err
	}
	d.trackLocal(channel, p)
	d.emit(channel, p.TypeName(), frame)
	return nil
}

func (d *Driver) sendTransfer(channel uint16, t *protocol.Transfer, payload []byte) error {
	more, hadMore := t.More(), t.Has(protocol.TransferMore)
	frame := t
	rest := payload
	for {
		truncated := false
		var split protocol.PayloadTooLargeFunc
		if len(rest) > 0 {
			split = func(p protocol.Performative) {
				truncated = true
				p.(*protocol.Transfer).SetMore(true)
			}
		}
		buf, n, err := protocol.EncodeAMQP(frame, channel, rest, d.maxFrameSize, split)
		if err == nil && truncated && n == 0 {
			err = amqperrors.NewEncodeError(frame.TypeName(),
				fmt.Sprintf("max frame size %d leaves no room for transfer payload", d.maxFrameSize), nil)
		}
		if err != nil {
			if frame == t {
				if hadMore {
					t.SetMore(more)
				} else {
					t.Clear(protocol.TransferMore)
				}
			}
			return err
		}

		d.trackLocal(channel, frame)
		d.emit(channel, frame.TypeName(), buf)

		rest = rest[n:]
		if len(rest) == 0 {
			return nil
		}
		frame = protocol.NewTransfer().SetHandle(t.Handle())
		if more {
			frame.SetMore(true)
		}
	}
}

func (d *Driver) pickChannel(p protocol.Performative) (uint16, error) {
	switch perf := p.(type) {
	case *protocol.Open, *protocol.Close:
		return 0, nil
	case *protocol.Begin:
		var session *SessionTracker
		if perf.Has(protocol.BeginRemoteChannel) && !perf.IsNull(protocol.BeginRemoteChannel) {
			session = d.registry.SessionFromRemoteChannel(perf.RemoteChannel())
		} else {
			session = d.replyCandidate()
		}
		if session != nil {
			if ch, ok := session.LocalChannel(); ok {
				return ch, nil
			}
		}
		return d.registry.FindFreeLocalChannel()
	}

	session := d.registry.LastLocallyOpened()
	if session == nil {
		session = d.registry.LastRemotelyOpened()
	}
	if session == nil {
		return 0, nil
	}
	ch, _ := session.LocalChannel()
	return ch, nil
}

// replyCandidate is the remotely begun session still waiting for our Begin.
func (d *Driver) replyCandidate() *SessionTracker {
	session := d.registry.LastRemotelyOpened()
	if session == nil || session.LocalBegin() != nil {
		return nil
	}
	return session
}

func (d *Driver) complete(channel uint16, p protocol.Performative) error {
	switch perf := p.(type) {
	case *protocol.Begin:
		d.completeBegin(perf)
	case *protocol.Attach:
		return d.completeAttach(channel, perf)
	case *protocol.Flow:
		d.completeFlow(channel, perf)
	case *protocol.Transfer:
		d.completeTransfer(channel, perf)
	}
	return nil
}

func (d *Driver) completeBegin(b *protocol.Begin) {
	if !b.Has(protocol.BeginRemoteChannel) {
		if session := d.replyCandidate(); session != nil {
			ch, _ := session.RemoteChannel()
			b.SetRemoteChannel(ch)
		}
	}
	if !b.Has(protocol.BeginNextOutgoingID) {
		b.SetNextOutgoingID(1)
	}
}

func (d *Driver) completeAttach(channel uint16, a *protocol.Attach) error {
	session := d.registry.SessionFromLocalChannel(channel)
	if session == nil {
		return nil
	}

	// a remote Attach we have not answered yet
	reply := session.LastRemotelyOpenedLink()
	if reply != nil && reply.LocalAttach() != nil {
		reply = nil
	}

	if !a.Has(protocol.AttachName) {
		if reply != nil {
			a.SetName(reply.Name())
		} else {
			d.linkNames++
			a.SetName(fmt.Sprintf("%s-link-%d", d.containerID(), d.linkNames))
		}
	}
	if !a.Has(protocol.AttachRole) && reply != nil {
		a.SetRole(reply.Role())
	}
	if !a.Has(protocol.AttachHandle) {
		handle, err := session.FindFreeLocalHandle()
		if err != nil {
			return err
		}
		a.SetHandle(handle)
	}
	if reply != nil {
		remote := reply.RemoteAttach()
		if !a.Has(protocol.AttachSource) && remote.Has(protocol.AttachSource) {
			a.SetSource(remote.Source())
		}
		if !a.Has(protocol.AttachTarget) && remote.Has(protocol.AttachTarget) {
			a.SetTarget(remote.Target())
		}
	}
	if a.Has(protocol.AttachRole) && a.Role() == protocol.RoleSender && !a.Has(protocol.AttachInitialDeliveryCount) {
		a.SetInitialDeliveryCount(0)
	}
	return nil
}

func (d *Driver) completeFlow(channel uint16, f *protocol.Flow) {
	session := d.registry.SessionFromLocalChannel(channel)
	if session == nil {
		return
	}

	incoming, outgoing := protocol.DefaultWindowSize, protocol.DefaultWindowSize
	if begin := session.LocalBegin(); begin != nil {
		incoming, outgoing = begin.IncomingWindow(), begin.OutgoingWindow()
	}

	if !f.Has(protocol.FlowNextIncomingID) && session.RemoteBegin() != nil {
		f.SetNextIncomingID(session.NextIncomingID())
	}
	if !f.Has(protocol.FlowIncomingWindow) {
		f.SetIncomingWindow(incoming)
	}
	if !f.Has(protocol.FlowNextOutgoingID) {
		f.SetNextOutgoingID(session.NextOutgoingID())
	}
	if !f.Has(protocol.FlowOutgoingWindow) {
		f.SetOutgoingWindow(outgoing)
	}
	if f.Has(protocol.FlowHandle) && !f.Has(protocol.FlowDeliveryCount) {
		if link := session.LinkFromLocalHandle(f.Handle()); link != nil {
			f.SetDeliveryCount(link.DeliveryCount())
		}
	}
}

func (d *Driver) completeTransfer(channel uint16, t *protocol.Transfer) {
	session := d.registry.SessionFromLocalChannel(channel)
	if session == nil {
		return
	}
	if !t.Has(protocol.TransferHandle) {
		if link := session.LastLocallyOpenedLink(); link != nil {
			handle, _ := link.LocalHandle()
			t.SetHandle(handle)
		}
	}
	// continuation frames of a delivery carry no id or tag
	if link := session.LinkFromLocalHandle(t.Handle()); link != nil && link.localPartial {
		return
	}
	if !t.Has(protocol.TransferDeliveryID) {
		t.SetDeliveryID(session.NextOutgoingID())
	}
	if !t.Has(protocol.TransferDeliveryTag) {
		tag := make([]byte, 4)
		binary.BigEndian.PutUint32(tag, t.DeliveryID())
		t.SetDeliveryTag(tag)
	}
	if !t.Has(protocol.TransferMessageFormat) {
		t.SetMessageFormat(0)
	}
}

func (d *Driver) containerID() string {
	if d.config.ContainerID != "" {
		return d.config.ContainerID
	}
	return "amqp-peer"
}

// trackLocal updates the trackers for a frame this peer sent. Nothing here
// is refused: a test may send what a conforming peer would not.
func (d *Driver) trackLocal(channel uint16, p protocol.Performative) {
	switch perf := p.(type) {
	case *protocol.Open:
		d.localOpen = perf
		if perf.Has(protocol.OpenChannelMax) {
			d.registry.SetChannelMax(perf.ChannelMax())
		}
		if perf.Has(protocol.OpenMaxFrameSize) {
			d.decoder.SetMaxFrameSize(perf.MaxFrameSize())
		}
		return
	case *protocol.Close:
		d.localClose = perf
		return
	case *protocol.Begin:
		d.registry.HandleLocalBegin(perf, channel)
		return
	case *protocol.End:
		d.registry.HandleLocalEnd(perf, channel)
		return
	}

	session := d.registry.SessionFromLocalChannel(channel)
	if session == nil {
		return
	}
	switch perf := p.(type) {
	case *protocol.Attach:
		session.HandleLocalAttach(perf)
	case *protocol.Detach:
		session.HandleLocalDetach(perf)
	case *protocol.Flow:
		session.HandleLocalFlow(perf)
	case *protocol.Transfer:
		session.HandleLocalTransfer(perf)
	case *protocol.Disposition:
		session.HandleLocalDisposition(perf)
	}
}

// inbound adapts the driver to the decoder's FrameHandler. It runs with the
// driver lock held.
type inbound struct{ d *Driver }

func (h inbound) HandleHeader(header protocol.Header) {
	d := h.d
	if d.failure != nil {
		return
	}
	d.remoteHeaders = append(d.remoteHeaders, header)
	d.metrics.RecordFrameIn("Header")
	d.record(Inbound, 0, "Header", header.Bytes())
	d.logger.Debug("Header received", zap.Stringer("header", header))
	d.pending = append(d.pending, Event{Kind: HeaderEvent, Header: header})
}

func (h inbound) HandleSASL(channel uint16, p protocol.SaslPerformative) {
	d := h.d
	if d.failure != nil {
		return
	}
	name := p.TypeName()
	d.metrics.RecordFrameIn(name)
	if d.recorder != nil {
		if frame, err := protocol.EncodeSASL(p, channel); err == nil {
			d.record(Inbound, channel, name, frame)
		}
	}
	d.logger.Debug("Frame received", zap.Uint16("channel", channel), zap.String("performative", name))
	if _, ok := p.(*protocol.SaslOutcome); ok {
		d.decoder.ExpectHeader()
	}
	d.pending = append(d.pending, Event{Kind: SASLEvent, Channel: channel, SASL: p})
}

func (h inbound) HandleHeartbeat(channel uint16) {
	d := h.d
	if d.failure != nil {
		return
	}
	d.metrics.RecordFrameIn("Heartbeat")
	d.record(Inbound, channel, "Heartbeat", protocol.EncodeHeartbeat(channel))
	d.pending = append(d.pending, Event{Kind: HeartbeatEvent, Channel: channel})
}

func (h inbound) HandleAMQP(channel uint16, p protocol.Performative, payload []byte) {
	d := h.d
	if d.failure != nil {
		return
	}
	name := p.TypeName()
	d.metrics.RecordFrameIn(name)
	if d.recorder != nil {
		if frame, _, err := protocol.EncodeAMQP(p, channel, payload, 0, nil); err == nil {
			d.record(Inbound, channel, name, frame)
		}
	}
	d.logger.Debug("Frame received",
		zap.Uint16("channel", channel),
		zap.String("performative", name),
		zap.Int("payload", len(payload)))

	ev := Event{Kind: FrameEvent, Channel: channel, Performative: p, Payload: payload}
	if err := d.trackRemote(&ev); err != nil {
		d.fail(err)
		return
	}
	d.pending = append(d.pending, ev)
}

// trackRemote updates the trackers for a frame the remote peer sent and
// fills in the event's session and link. Violations are returned, never
// corrected.
func (d *Driver) trackRemote(ev *Event) error {
	var err error
	switch perf := ev.Performative.(type) {
	case *protocol.Open:
		d.remoteOpen = perf
		if perf.Has(protocol.OpenMaxFrameSize) {
			if m := perf.MaxFrameSize(); d.maxFrameSize == 0 || m < d.maxFrameSize {
				d.maxFrameSize = m
			}
		}
		if perf.Has(protocol.OpenChannelMax) {
			d.registry.SetRemoteChannelMax(perf.ChannelMax())
		}
		return nil
	case *protocol.Close:
		d.remoteClose = perf
		return nil
	case *protocol.Begin:
		ev.Session, err = d.registry.HandleRemoteBegin(perf, ev.Channel)
		if err == nil {
			d.metrics.RecordSessionOpened()
		}
		return err
	case *protocol.End:
		ev.Session = d.registry.HandleRemoteEnd(perf, ev.Channel)
		if ev.Session != nil {
			d.metrics.RecordSessionClosed()
		}
		return nil
	}

	session := d.registry.SessionFromRemoteChannel(ev.Channel)
	if session == nil {
		return amqperrors.NewUnknownChannel(ev.Channel)
	}
	ev.Session = session

	switch perf := ev.Performative.(type) {
	case *protocol.Attach:
		ev.Link, err = session.HandleRemoteAttach(perf)
		if err == nil {
			d.metrics.RecordLinkAttached()
		}
	case *protocol.Detach:
		ev.Link, err = session.HandleRemoteDetach(perf)
		if err == nil {
			d.metrics.RecordLinkDetached()
		}
	case *protocol.Flow:
		ev.Link, err = session.HandleRemoteFlow(perf)
	case *protocol.Transfer:
		ev.Link, err = session.HandleRemoteTransfer(perf)
	case *protocol.Disposition:
		session.HandleRemoteDisposition(perf)
	}
	return err
}
