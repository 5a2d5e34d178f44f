package server

import (
	"time"

	"go.uber.org/zap"

	"github.com/maxpert/amqp-peer/driver"
	"github.com/maxpert/amqp-peer/interfaces"
	"github.com/maxpert/amqp-peer/protocol"
)

// defaultLinkCredit is granted to every link the remote peer attaches as
// sender.
const defaultLinkCredit = 100

// responder plays the broker side of a connection: it answers protocol
// headers and SASL always, and with AutoRespond also mirrors Open, Begin,
// Attach, Detach, End and Close, grants credit and settles deliveries.
type responder struct {
	conn *Connection
	peer interfaces.PeerConfig
	log  *zap.Logger

	sasl          bool
	authenticated bool
}

func newResponder(c *Connection, peer interfaces.PeerConfig) *responder {
	return &responder{
		conn: c,
		peer: peer,
		log:  c.log,
		sasl: c.server.mechanisms != nil,
	}
}

// preferredHeader is the header this server would like a client to send
func (r *responder) preferredHeader() protocol.Header {
	if r.sasl && !r.authenticated {
		return protocol.SASLHeader
	}
	return protocol.AMQPHeader
}

func (r *responder) handle(ev driver.Event) {
	var err error
	switch ev.Kind {
	case driver.HeaderEvent:
		err = r.onHeader(ev.Header)
	case driver.SASLEvent:
		err = r.onSASL(ev.SASL)
	case driver.FrameEvent:
		if r.peer.AutoRespond {
			err = r.onFrame(ev)
		}
	}
	if err != nil {
		r.log.Warn("Automatic reply failed", zap.Error(err))
	}
}

func (r *responder) onHeader(h protocol.Header) error {
	d := r.conn.Driver
	want := r.preferredHeader()
	if h != want {
		// answer with the header we support, then hang up
		r.log.Info("Unsupported protocol header",
			zap.Stringer("got", h), zap.Stringer("want", want))
		err := d.SendHeader(want)
		r.conn.Close()
		return err
	}
	if err := d.SendHeader(h); err != nil {
		return err
	}
	if !h.IsSASL() {
		return nil
	}

	return d.SendSASL(protocol.NewSaslMechanisms(r.conn.server.mechanisms.Symbols()...))
}

func (r *responder) onSASL(p protocol.SaslPerformative) error {
	d := r.conn.Driver
	switch perf := p.(type) {
	case *protocol.SaslInit:
		mechanism := string(perf.Mechanism())
		user, err := r.authenticate(mechanism, perf.InitialResponse())
		if metrics := r.conn.server.metrics; metrics != nil {
			metrics.RecordSASLOutcome(mechanism, err == nil)
		}
		if err != nil {
			r.log.Info("SASL authentication failed", zap.String("mechanism", mechanism), zap.Error(err))
			sendErr := d.SendSASL(protocol.NewSaslOutcome(protocol.SASLCodeAuth))
			r.conn.Close()
			return sendErr
		}
		r.authenticated = true
		r.conn.setUser(user)
		r.log.Info("SASL authentication succeeded",
			zap.String("mechanism", mechanism), zap.String("username", user.Username))
		return d.SendSASL(protocol.NewSaslOutcome(protocol.SASLCodeOK))

	case *protocol.SaslResponse:
		// no mechanism offered here issues challenges
		err := d.SendSASL(protocol.NewSaslOutcome(protocol.SASLCodeAuth))
		r.conn.Close()
		return err
	}
	return nil
}

func (r *responder) authenticate(mechanism string, response []byte) (*interfaces.User, error) {
	mech, err := r.conn.server.mechanisms.Get(mechanism)
	if err != nil {
		return nil, err
	}
	return mech.Authenticate(response, r.conn.server.authenticator)
}

func (r *responder) onFrame(ev driver.Event) error {
	d := r.conn.Driver
	switch perf := ev.Performative.(type) {
	case *protocol.Open:
		if d.LocalOpen() != nil {
			return nil
		}
		return d.SendNow(0, r.open(), nil)

	case *protocol.Begin:
		var (
			remoteChannel uint16
			answer        bool
		)
		d.Inspect(func(*driver.ChannelRegistry) {
			if ev.Session != nil && ev.Session.LocalBegin() == nil {
				remoteChannel, _ = ev.Session.RemoteChannel()
				answer = true
			}
		})
		if !answer {
			return nil
		}
		begin := protocol.NewBegin().SetRemoteChannel(remoteChannel)
		if r.peer.HandleMax != 0 {
			begin.SetHandleMax(r.peer.HandleMax)
		}
		return d.Send(begin, nil)

	case *protocol.Attach:
		return r.onAttach(ev.Session, ev.Link, perf)

	case *protocol.Transfer:
		return r.onTransfer(ev.Session, ev.Link, perf)

	case *protocol.Detach:
		var (
			channel uint16
			handle  uint32
			answer  bool
		)
		d.Inspect(func(*driver.ChannelRegistry) {
			if ev.Link != nil && ev.Link.IsLocallyAttached() {
				channel, _ = ev.Session.LocalChannel()
				handle, _ = ev.Link.LocalHandle()
				answer = true
			}
		})
		if !answer {
			return nil
		}
		return d.SendNow(channel, protocol.NewDetach().SetHandle(handle).SetClosed(perf.Closed()), nil)

	case *protocol.End:
		var (
			channel uint16
			answer  bool
		)
		d.Inspect(func(*driver.ChannelRegistry) {
			if ev.Session != nil && ev.Session.IsLocallyBegun() {
				channel, _ = ev.Session.LocalChannel()
				answer = true
			}
		})
		if !answer {
			return nil
		}
		return d.SendNow(channel, protocol.NewEnd(), nil)

	case *protocol.Close:
		var err error
		if d.LocalClose() == nil {
			err = d.SendNow(0, protocol.NewClose(), nil)
		}
		r.conn.Close()
		return err
	}
	return nil
}

func (r *responder) open() *protocol.Open {
	open := protocol.NewOpen().SetContainerID(r.peer.ContainerID)
	if r.peer.MaxInboundFrameSize != 0 {
		open.SetMaxFrameSize(r.peer.MaxInboundFrameSize)
	}
	if r.peer.ChannelMax != 0 {
		open.SetChannelMax(r.peer.ChannelMax)
	}
	if r.peer.IdleTimeout > 0 {
		open.SetIdleTimeout(uint32(r.peer.IdleTimeout / time.Millisecond))
	}
	return open
}

// onAttach mirrors a remote Attach with the complementary role and the same
// terminus, then grants credit when this side receives.
func (r *responder) onAttach(session *driver.SessionTracker, link *driver.LinkTracker, remote *protocol.Attach) error {
	d := r.conn.Driver
	var (
		channel  uint16
		attach   *protocol.Attach
		receiver bool
	)
	d.Inspect(func(*driver.ChannelRegistry) {
		if link == nil || link.LocalAttach() != nil {
			return
		}
		channel, _ = session.LocalChannel()
		attach = protocol.NewAttach().SetName(link.Name()).SetRole(link.Role())
		receiver = link.IsReceiver()
	})
	if attach == nil {
		return nil
	}

	if remote.Has(protocol.AttachSource) {
		attach.SetSource(remote.Source())
	}
	if remote.Has(protocol.AttachTarget) {
		attach.SetTarget(remote.Target())
	}
	if err := d.SendNow(channel, attach, nil); err != nil {
		return err
	}

	if !receiver {
		return nil
	}
	return r.grantCredit(channel, link)
}

func (r *responder) grantCredit(channel uint16, link *driver.LinkTracker) error {
	var handle uint32
	r.conn.Driver.Inspect(func(*driver.ChannelRegistry) { handle, _ = link.LocalHandle() })
	flow := protocol.NewFlow().SetHandle(handle).SetLinkCredit(defaultLinkCredit)
	return r.conn.Driver.SendNow(channel, flow, nil)
}

// onTransfer settles each complete unsettled delivery as accepted and tops
// up credit once it runs out.
func (r *responder) onTransfer(session *driver.SessionTracker, link *driver.LinkTracker, transfer *protocol.Transfer) error {
	if link == nil || transfer.More() || transfer.Aborted() {
		return nil
	}
	d := r.conn.Driver
	var (
		channel     uint16
		id          uint32
		hasID       bool
		receiver    bool
		needsCredit bool
	)
	d.Inspect(func(*driver.ChannelRegistry) {
		receiver = link.IsReceiver()
		channel, _ = session.LocalChannel()
		id, hasID = link.LastDeliveryID()
		needsCredit = link.LinkCredit() == 0 && link.IsLocallyAttached()
	})
	if !receiver {
		return nil
	}

	if !transfer.Settled() && hasID {
		disposition := protocol.NewDisposition().
			SetRole(protocol.RoleReceiver).
			SetFirst(id).
			SetSettled(true).
			SetState(protocol.NewAccepted())
		if err := d.SendNow(channel, disposition, nil); err != nil {
			return err
		}
	}
	if needsCredit {
		return r.grantCredit(channel, link)
	}
	return nil
}
