package driver

import (
	"math"

	"github.com/RoaringBitmap/roaring"

	amqperrors "github.com/maxpert/amqp-peer/errors"
	"github.com/maxpert/amqp-peer/protocol"
)

// SessionTracker holds both sides of one session and the links attached to
// it. Links are indexed three ways: by the handle each side chose, and by
// (name, role) so an Attach from one side finds the link the other side
// started.
type SessionTracker struct {
	registry *ChannelRegistry

	localChannel     uint16
	remoteChannel    uint16
	hasLocalChannel  bool
	hasRemoteChannel bool

	localBegin  *protocol.Begin
	remoteBegin *protocol.Begin
	localEnd    *protocol.End
	remoteEnd   *protocol.End

	nextIncomingID uint32
	nextOutgoingID uint32

	lastLocalFlow  *protocol.Flow
	lastRemoteFlow *protocol.Flow

	lastLocalDisposition  *protocol.Disposition
	lastRemoteDisposition *protocol.Disposition

	localHandles  map[uint32]*LinkTracker
	remoteHandles map[uint32]*LinkTracker
	usedHandles   *roaring.Bitmap // local handles in use
	links         map[linkKey]*LinkTracker

	lastLocalLink   *LinkTracker
	lastRemoteLink  *LinkTracker
	lastCoordinator *LinkTracker
}

func newSessionTracker(registry *ChannelRegistry) *SessionTracker {
	return &SessionTracker{
		registry:      registry,
		localHandles:  make(map[uint32]*LinkTracker),
		remoteHandles: make(map[uint32]*LinkTracker),
		usedHandles:   roaring.New(),
		links:         make(map[linkKey]*LinkTracker),
	}
}

// LocalChannel returns the channel this peer uses for the session.
func (s *SessionTracker) LocalChannel() (uint16, bool) { return s.localChannel, s.hasLocalChannel }

// RemoteChannel returns the channel the remote peer uses for the session.
func (s *SessionTracker) RemoteChannel() (uint16, bool) { return s.remoteChannel, s.hasRemoteChannel }

func (s *SessionTracker) LocalBegin() *protocol.Begin  { return s.localBegin }
func (s *SessionTracker) RemoteBegin() *protocol.Begin { return s.remoteBegin }
func (s *SessionTracker) LocalEnd() *protocol.End      { return s.localEnd }
func (s *SessionTracker) RemoteEnd() *protocol.End     { return s.remoteEnd }

func (s *SessionTracker) NextIncomingID() uint32 { return s.nextIncomingID }
func (s *SessionTracker) NextOutgoingID() uint32 { return s.nextOutgoingID }

func (s *SessionTracker) LastLocalFlow() *protocol.Flow  { return s.lastLocalFlow }
func (s *SessionTracker) LastRemoteFlow() *protocol.Flow { return s.lastRemoteFlow }

func (s *SessionTracker) LastLocalDisposition() *protocol.Disposition { return s.lastLocalDisposition }
func (s *SessionTracker) LastRemoteDisposition() *protocol.Disposition {
	return s.lastRemoteDisposition
}

func (s *SessionTracker) LastLocallyOpenedLink() *LinkTracker  { return s.lastLocalLink }
func (s *SessionTracker) LastRemotelyOpenedLink() *LinkTracker { return s.lastRemoteLink }
func (s *SessionTracker) LastOpenedCoordinator() *LinkTracker  { return s.lastCoordinator }

func (s *SessionTracker) LinkFromLocalHandle(handle uint32) *LinkTracker {
	return s.localHandles[handle]
}

func (s *SessionTracker) LinkFromRemoteHandle(handle uint32) *LinkTracker {
	return s.remoteHandles[handle]
}

// LinkByName returns the link with the given name on which this peer plays
// role.
func (s *SessionTracker) LinkByName(name string, role protocol.Role) *LinkTracker {
	return s.links[linkKey{name: name, role: role}]
}

// Links returns every link still tracked on the session.
func (s *SessionTracker) Links() []*LinkTracker {
	out := make([]*LinkTracker, 0, len(s.links))
	seen := make(map[*LinkTracker]bool, len(s.links))
	add := func(l *LinkTracker) {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	for _, l := range s.localHandles {
		add(l)
	}
	for _, l := range s.remoteHandles {
		add(l)
	}
	for _, l := range s.links {
		add(l)
	}
	return out
}

// IsLocallyBegun and IsRemotelyBegun report whether that side's Begin was
// seen and its End was not.
func (s *SessionTracker) IsLocallyBegun() bool  { return s.localBegin != nil && s.localEnd == nil }
func (s *SessionTracker) IsRemotelyBegun() bool { return s.remoteBegin != nil && s.remoteEnd == nil }

// localHandleMax bounds handles this peer picks: the remote Begin's
// handle-max when known, else our own.
func (s *SessionTracker) localHandleMax() uint32 {
	if s.remoteBegin != nil && s.remoteBegin.Has(protocol.BeginHandleMax) {
		return s.remoteBegin.HandleMax()
	}
	return s.remoteHandleMax()
}

// remoteHandleMax bounds handles the remote peer may use: the handle-max of
// our Begin, or the registry default.
func (s *SessionTracker) remoteHandleMax() uint32 {
	if s.localBegin != nil && s.localBegin.Has(protocol.BeginHandleMax) {
		return s.localBegin.HandleMax()
	}
	if s.registry != nil {
		return s.registry.handleMax
	}
	return math.MaxUint32
}

// FindFreeLocalHandle returns the lowest handle not used by a locally
// attached link.
func (s *SessionTracker) FindFreeLocalHandle() (uint32, error) {
	max := uint64(s.localHandleMax())
	for h := uint64(0); h <= max; h++ {
		if !s.usedHandles.Contains(uint32(h)) {
			return uint32(h), nil
		}
	}
	ch, _ := s.LocalChannel()
	return 0, amqperrors.NewProtocolViolation(amqperrors.ResourceLimitExceeded,
		"no free local handle below handle-max", ch)
}

// HandleRemoteAttach records an Attach received from the remote peer. It
// completes a link this peer attached under the same name with the
// complementary role, or starts a new one.
func (s *SessionTracker) HandleRemoteAttach(attach *protocol.Attach) (*LinkTracker, error) {
	handle := attach.Handle()
	if _, inUse := s.remoteHandles[handle]; inUse {
		return nil, amqperrors.NewHandleInUse(s.remoteChannel, handle)
	}
	if max := s.remoteHandleMax(); handle > max {
		return nil, amqperrors.NewHandleMaxExceeded(s.remoteChannel, handle, max)
	}

	key := linkKey{name: attach.Name(), role: attach.Role().Complement()}
	link, ok := s.links[key]
	if !ok || link.remoteAttach != nil {
		link = newLinkTracker(s, key.name, key.role, attach)
		s.links[key] = link
	}
	link.handleRemoteAttach(attach)
	s.remoteHandles[handle] = link
	s.lastRemoteLink = link
	s.noteCoordinator(link)
	return link, nil
}

// HandleLocalAttach records an Attach this peer sent. Handle reuse is not
// refused: sending it is how a test provokes the remote peer.
func (s *SessionTracker) HandleLocalAttach(attach *protocol.Attach) *LinkTracker {
	handle := attach.Handle()
	key := linkKey{name: attach.Name(), role: attach.Role()}
	link, ok := s.links[key]
	if !ok || link.localAttach != nil {
		link = newLinkTracker(s, key.name, key.role, attach)
		s.links[key] = link
	}
	link.handleLocalAttach(attach)
	s.localHandles[handle] = link
	s.usedHandles.Add(handle)
	s.lastLocalLink = link
	s.noteCoordinator(link)
	return link
}

func (s *SessionTracker) noteCoordinator(link *LinkTracker) {
	if !link.IsCoordinator() {
		return
	}
	s.lastCoordinator = link
	if s.registry != nil {
		s.registry.lastCoordinator = link
	}
}

// HandleRemoteDetach records a Detach from the remote peer. The handle must
// belong to a remotely attached link.
func (s *SessionTracker) HandleRemoteDetach(detach *protocol.Detach) (*LinkTracker, error) {
	if !detach.Has(protocol.DetachHandle) {
		return nil, amqperrors.NewProtocolViolation(amqperrors.InvalidField, "Detach without handle", s.remoteChannel)
	}
	handle := detach.Handle()
	link, ok := s.remoteHandles[handle]
	if !ok {
		return nil, amqperrors.NewUnattachedHandle(s.remoteChannel, handle, "Detach")
	}
	link.remoteDetach = detach
	delete(s.remoteHandles, handle)
	s.forgetIfDone(link)
	return link, nil
}

// HandleLocalDetach records a Detach this peer sent. A handle that matches
// no link is allowed and yields a nil tracker.
func (s *SessionTracker) HandleLocalDetach(detach *protocol.Detach) *LinkTracker {
	handle := detach.Handle()
	link, ok := s.localHandles[handle]
	if !ok {
		return nil
	}
	link.localDetach = detach
	delete(s.localHandles, handle)
	s.usedHandles.Remove(handle)
	s.forgetIfDone(link)
	return link
}

func (s *SessionTracker) forgetIfDone(link *LinkTracker) {
	if !link.detachedBothWays() {
		return
	}
	key := linkKey{name: link.name, role: link.role}
	if s.links[key] == link {
		delete(s.links, key)
	}
}

// HandleRemoteFlow records a Flow from the remote peer. A link level Flow
// must name a remotely attached handle.
func (s *SessionTracker) HandleRemoteFlow(flow *protocol.Flow) (*LinkTracker, error) {
	s.lastRemoteFlow = flow
	if !flow.Has(protocol.FlowHandle) {
		return nil, nil
	}
	link, ok := s.remoteHandles[flow.Handle()]
	if !ok {
		return nil, amqperrors.NewUnattachedHandle(s.remoteChannel, flow.Handle(), "Flow")
	}
	link.handleRemoteFlow(flow)
	return link, nil
}

// HandleLocalFlow records a Flow this peer sent. Unknown handles are allowed.
func (s *SessionTracker) HandleLocalFlow(flow *protocol.Flow) *LinkTracker {
	s.lastLocalFlow = flow
	if !flow.Has(protocol.FlowHandle) {
		return nil
	}
	link := s.localHandles[flow.Handle()]
	if link != nil {
		link.handleLocalFlow(flow)
	}
	return link
}

// HandleRemoteTransfer records a Transfer from the remote peer. The handle
// must belong to a remotely attached link.
func (s *SessionTracker) HandleRemoteTransfer(transfer *protocol.Transfer) (*LinkTracker, error) {
	link, ok := s.remoteHandles[transfer.Handle()]
	if !ok {
		return nil, amqperrors.NewUnattachedHandle(s.remoteChannel, transfer.Handle(), "Transfer")
	}
	if transfer.Has(protocol.TransferDeliveryID) {
		s.nextIncomingID = transfer.DeliveryID() + 1
	}
	link.handleTransfer(transfer, false)
	return link, nil
}

// HandleLocalTransfer records a Transfer this peer sent.
func (s *SessionTracker) HandleLocalTransfer(transfer *protocol.Transfer) *LinkTracker {
	if transfer.Has(protocol.TransferDeliveryID) {
		s.nextOutgoingID = transfer.DeliveryID() + 1
	}
	link := s.localHandles[transfer.Handle()]
	if link != nil {
		link.handleTransfer(transfer, true)
	}
	return link
}

func (s *SessionTracker) HandleRemoteDisposition(d *protocol.Disposition) {
	s.lastRemoteDisposition = d
}

func (s *SessionTracker) HandleLocalDisposition(d *protocol.Disposition) {
	s.lastLocalDisposition = d
}
