package driver

import (
	"math"

	"github.com/RoaringBitmap/roaring"

	amqperrors "github.com/maxpert/amqp-peer/errors"
	"github.com/maxpert/amqp-peer/protocol"
)

// ChannelRegistry maps local and remote channel numbers to sessions. A
// session appears when either side's Begin names an unseen channel and is
// dropped once both sides have sent End; until then a one-sided End leaves it
// tracked.
type ChannelRegistry struct {
	local      map[uint16]*SessionTracker
	remote     map[uint16]*SessionTracker
	usedLocal  *roaring.Bitmap
	sessions   []*SessionTracker
	channelMax uint16 // highest channel the remote peer may use
	peerMax    uint16 // highest channel this peer may use
	handleMax  uint32

	lastLocal       *SessionTracker
	lastRemote      *SessionTracker
	lastCoordinator *LinkTracker
}

// NewChannelRegistry returns a registry enforcing channelMax on inbound
// Begins and defaulting session handle-max to handleMax.
func NewChannelRegistry(channelMax uint16, handleMax uint32) *ChannelRegistry {
	return &ChannelRegistry{
		local:      make(map[uint16]*SessionTracker),
		remote:     make(map[uint16]*SessionTracker),
		usedLocal:  roaring.New(),
		channelMax: channelMax,
		peerMax:    math.MaxUint16,
		handleMax:  handleMax,
	}
}

// SetChannelMax records the channel-max this peer advertised in Open.
func (r *ChannelRegistry) SetChannelMax(max uint16) { r.channelMax = max }

// SetRemoteChannelMax records the channel-max the remote Open advertised.
func (r *ChannelRegistry) SetRemoteChannelMax(max uint16) { r.peerMax = max }

func (r *ChannelRegistry) ChannelMax() uint16 { return r.channelMax }

// FindFreeLocalChannel returns the lowest channel this peer is not using,
// bounded by the negotiated channel-max.
func (r *ChannelRegistry) FindFreeLocalChannel() (uint16, error) {
	max := r.channelMax
	if r.peerMax < max {
		max = r.peerMax
	}
	for ch := uint32(0); ch <= uint32(max); ch++ {
		if !r.usedLocal.Contains(ch) {
			return uint16(ch), nil
		}
	}
	return 0, amqperrors.NewProtocolViolation(amqperrors.ResourceLimitExceeded,
		"no free local channel below channel-max", max)
}

// HandleRemoteBegin records a Begin received on remoteChannel. A Begin with
// remote-channel set answers one this peer sent on that channel; any other
// Begin starts a session and reserves a local channel for the reply. A
// session is answered at most once.
func (r *ChannelRegistry) HandleRemoteBegin(begin *protocol.Begin, remoteChannel uint16) (*SessionTracker, error) {
	if _, exists := r.remote[remoteChannel]; exists {
		return nil, amqperrors.NewDuplicateBegin(remoteChannel)
	}
	if remoteChannel > r.channelMax {
		return nil, amqperrors.NewChannelMaxExceeded(remoteChannel, r.channelMax)
	}

	var session *SessionTracker
	if begin.Has(protocol.BeginRemoteChannel) {
		session = r.local[begin.RemoteChannel()]
		if session == nil {
			return nil, amqperrors.NewUnknownChannel(begin.RemoteChannel())
		}
		if session.hasRemoteChannel {
			return nil, amqperrors.NewBeginAlreadyAnswered(remoteChannel, begin.RemoteChannel(), session.remoteChannel)
		}
	} else {
		ch, err := r.FindFreeLocalChannel()
		if err != nil {
			return nil, err
		}
		session = r.track(newSessionTracker(r))
		r.assignLocal(session, ch)
	}

	session.remoteChannel = remoteChannel
	session.hasRemoteChannel = true
	session.remoteBegin = begin
	session.nextIncomingID = begin.NextOutgoingID()
	r.remote[remoteChannel] = session
	r.lastRemote = session
	return session, nil
}

// HandleLocalBegin records a Begin this peer sent on localChannel. When its
// remote-channel names a session the remote peer began, that session is
// reused. Nothing is refused: a test may send a Begin a real peer would not.
func (r *ChannelRegistry) HandleLocalBegin(begin *protocol.Begin, localChannel uint16) *SessionTracker {
	var session *SessionTracker
	if begin.Has(protocol.BeginRemoteChannel) && !begin.IsNull(protocol.BeginRemoteChannel) {
		session = r.remote[begin.RemoteChannel()]
	}
	if session == nil {
		session = r.local[localChannel]
		if session != nil && session.localBegin != nil {
			session = nil
		}
	}
	if session == nil {
		session = r.track(newSessionTracker(r))
	}

	if session.hasLocalChannel && session.localChannel != localChannel {
		r.releaseLocal(session)
	}
	r.assignLocal(session, localChannel)
	session.localBegin = begin
	session.nextOutgoingID = begin.NextOutgoingID()
	r.lastLocal = session
	return session
}

// HandleRemoteEnd records an End received on remoteChannel. An End on a
// channel with no remote session is tolerated and returns nil.
func (r *ChannelRegistry) HandleRemoteEnd(end *protocol.End, remoteChannel uint16) *SessionTracker {
	session := r.remote[remoteChannel]
	if session == nil {
		return nil
	}
	session.remoteEnd = end
	delete(r.remote, remoteChannel)
	r.forgetIfEnded(session)
	return session
}

// HandleLocalEnd records an End this peer sent on localChannel and frees the
// channel for reuse.
func (r *ChannelRegistry) HandleLocalEnd(end *protocol.End, localChannel uint16) *SessionTracker {
	session := r.local[localChannel]
	if session == nil {
		return nil
	}
	session.localEnd = end
	r.releaseLocal(session)
	r.forgetIfEnded(session)
	return session
}

func (r *ChannelRegistry) SessionFromLocalChannel(ch uint16) *SessionTracker  { return r.local[ch] }
func (r *ChannelRegistry) SessionFromRemoteChannel(ch uint16) *SessionTracker { return r.remote[ch] }

func (r *ChannelRegistry) LastLocallyOpened() *SessionTracker  { return r.lastLocal }
func (r *ChannelRegistry) LastRemotelyOpened() *SessionTracker { return r.lastRemote }
func (r *ChannelRegistry) LastOpenedCoordinator() *LinkTracker { return r.lastCoordinator }

// Sessions returns the sessions not yet ended by both sides, oldest first.
func (r *ChannelRegistry) Sessions() []*SessionTracker {
	out := make([]*SessionTracker, len(r.sessions))
	copy(out, r.sessions)
	return out
}

func (r *ChannelRegistry) track(s *SessionTracker) *SessionTracker {
	r.sessions = append(r.sessions, s)
	return s
}

func (r *ChannelRegistry) assignLocal(s *SessionTracker, ch uint16) {
	s.localChannel = ch
	s.hasLocalChannel = true
	r.local[ch] = s
	r.usedLocal.Add(uint32(ch))
}

func (r *ChannelRegistry) releaseLocal(s *SessionTracker) {
	if !s.hasLocalChannel {
		return
	}
	if r.local[s.localChannel] == s {
		delete(r.local, s.localChannel)
		r.usedLocal.Remove(uint32(s.localChannel))
	}
}

func (r *ChannelRegistry) forgetIfEnded(s *SessionTracker) {
	localDone := s.localBegin == nil || s.localEnd != nil
	remoteDone := s.remoteBegin == nil || s.remoteEnd != nil
	if !localDone || !remoteDone {
		return
	}
	// a reserved reply channel is not needed any more
	r.releaseLocal(s)
	for i, tracked := range r.sessions {
		if tracked == s {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			break
		}
	}
	if r.lastLocal == s {
		r.lastLocal = nil
	}
	if r.lastRemote == s {
		r.lastRemote = nil
	}
}
