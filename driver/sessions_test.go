package driver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amqperrors "github.com/maxpert/amqp-peer/errors"
	"github.com/maxpert/amqp-peer/protocol"
)

func newBegin() *protocol.Begin {
	return protocol.NewBegin().SetNextOutgoingID(1)
}

func TestFindFreeLocalChannel_ExhaustsSpace(t *testing.T) {
	r := NewChannelRegistry(2, math.MaxUint32)

	for i := 0; i <= 2; i++ {
		ch, err := r.FindFreeLocalChannel()
		require.NoError(t, err)
		assert.Equal(t, uint16(i), ch)
		r.HandleLocalBegin(newBegin(), ch)
	}

	_, err := r.FindFreeLocalChannel()
	require.Error(t, err)
	assert.True(t, amqperrors.IsProtocolViolation(err))
	assert.Equal(t, amqperrors.ResourceLimitExceeded, amqperrors.ConditionOf(err))
}

func TestFindFreeLocalChannel_HonoursRemoteChannelMax(t *testing.T) {
	r := NewChannelRegistry(math.MaxUint16, math.MaxUint32)
	r.SetRemoteChannelMax(0)

	ch, err := r.FindFreeLocalChannel()
	require.NoError(t, err)
	r.HandleLocalBegin(newBegin(), ch)

	_, err = r.FindFreeLocalChannel()
	assert.Error(t, err)
}

func TestFindFreeLocalChannel_ReusesEndedChannel(t *testing.T) {
	r := NewChannelRegistry(math.MaxUint16, math.MaxUint32)
	r.HandleLocalBegin(newBegin(), 0)
	r.HandleLocalBegin(newBegin(), 1)

	r.HandleLocalEnd(protocol.NewEnd(), 0)

	ch, err := r.FindFreeLocalChannel()
	require.NoError(t, err)
	assert.Equal(t, uint16(0), ch)
}

func TestLocalBeginAnsweredByRemoteBegin(t *testing.T) {
	r := NewChannelRegistry(math.MaxUint16, math.MaxUint32)

	local := r.HandleLocalBegin(newBegin(), 3)
	remote, err := r.HandleRemoteBegin(protocol.NewBegin().SetRemoteChannel(3).SetNextOutgoingID(7), 5)
	require.NoError(t, err)

	assert.Same(t, local, remote)
	assert.Same(t, local, r.SessionFromRemoteChannel(5))
	assert.Same(t, local, r.SessionFromLocalChannel(3))
	assert.Same(t, local, r.LastLocallyOpened())
	assert.Same(t, local, r.LastRemotelyOpened())
	assert.Len(t, r.Sessions(), 1)

	ch, ok := local.RemoteChannel()
	assert.True(t, ok)
	assert.Equal(t, uint16(5), ch)
	assert.Equal(t, uint32(7), local.NextIncomingID())
	assert.Equal(t, uint32(1), local.NextOutgoingID())
	assert.True(t, local.IsLocallyBegun())
	assert.True(t, local.IsRemotelyBegun())
}

func TestRemoteBeginAnsweredByLocalBegin(t *testing.T) {
	r := NewChannelRegistry(math.MaxUint16, math.MaxUint32)

	remote, err := r.HandleRemoteBegin(newBegin(), 4)
	require.NoError(t, err)

	// a local channel is reserved for the reply
	reserved, ok := remote.LocalChannel()
	require.True(t, ok)
	assert.Equal(t, uint16(0), reserved)

	next, err := r.FindFreeLocalChannel()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), next)

	local := r.HandleLocalBegin(newBegin().SetRemoteChannel(4), 2)
	assert.Same(t, remote, local)

	ch, _ := local.LocalChannel()
	assert.Equal(t, uint16(2), ch)
	assert.Nil(t, r.SessionFromLocalChannel(0), "reservation moves to the channel actually used")
	assert.Same(t, local, r.SessionFromLocalChannel(2))
}

func TestHandleRemoteBegin_Violations(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(r *ChannelRegistry)
		begin     *protocol.Begin
		channel   uint16
		condition amqperrors.Condition
	}{
		{
			name: "duplicate begin",
			setup: func(r *ChannelRegistry) {
				_, err := r.HandleRemoteBegin(newBegin(), 1)
				require.NoError(t, err)
			},
			begin:     newBegin(),
			channel:   1,
			condition: amqperrors.NotAllowed,
		},
		{
			name:      "channel above channel-max",
			setup:     func(r *ChannelRegistry) { r.SetChannelMax(4) },
			begin:     newBegin(),
			channel:   5,
			condition: amqperrors.FramingError,
		},
		{
			name: "second reply to an answered session",
			setup: func(r *ChannelRegistry) {
				r.HandleLocalBegin(newBegin(), 0)
				_, err := r.HandleRemoteBegin(newBegin().SetRemoteChannel(0), 1)
				require.NoError(t, err)
			},
			begin:     newBegin().SetRemoteChannel(0),
			channel:   2,
			condition: amqperrors.NotAllowed,
		},
		{
			name:      "reply to unknown local channel",
			setup:     func(r *ChannelRegistry) {},
			begin:     newBegin().SetRemoteChannel(9),
			channel:   0,
			condition: amqperrors.NotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewChannelRegistry(math.MaxUint16, math.MaxUint32)
			tt.setup(r)

			session, err := r.HandleRemoteBegin(tt.begin, tt.channel)
			require.Error(t, err)
			assert.Nil(t, session)
			assert.True(t, amqperrors.IsProtocolViolation(err))
			assert.Equal(t, tt.condition, amqperrors.ConditionOf(err))
		})
	}
}

func TestHandleRemoteBegin_SecondReplyKeepsFirstMapping(t *testing.T) {
	r := NewChannelRegistry(math.MaxUint16, math.MaxUint32)
	session := r.HandleLocalBegin(newBegin(), 0)
	_, err := r.HandleRemoteBegin(newBegin().SetRemoteChannel(0), 1)
	require.NoError(t, err)

	_, err = r.HandleRemoteBegin(newBegin().SetRemoteChannel(0), 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already answered on channel 1")

	ch, _ := session.RemoteChannel()
	assert.Equal(t, uint16(1), ch)
	assert.Same(t, session, r.SessionFromRemoteChannel(1))
	assert.Nil(t, r.SessionFromRemoteChannel(2))
}

func TestEnd_SessionKeptUntilBothSidesEnd(t *testing.T) {
	r := NewChannelRegistry(math.MaxUint16, math.MaxUint32)
	session := r.HandleLocalBegin(newBegin(), 0)
	_, err := r.HandleRemoteBegin(newBegin().SetRemoteChannel(0), 0)
	require.NoError(t, err)

	assert.Same(t, session, r.HandleRemoteEnd(protocol.NewEnd(), 0))
	assert.Nil(t, r.SessionFromRemoteChannel(0))
	assert.Len(t, r.Sessions(), 1)
	assert.NotNil(t, session.RemoteEnd())
	assert.False(t, session.IsRemotelyBegun())

	assert.Same(t, session, r.HandleLocalEnd(protocol.NewEnd(), 0))
	assert.Empty(t, r.Sessions())
	assert.Nil(t, r.SessionFromLocalChannel(0))
}

func TestEnd_AsymmetricStatesTolerated(t *testing.T) {
	r := NewChannelRegistry(math.MaxUint16, math.MaxUint32)

	assert.Nil(t, r.HandleRemoteEnd(protocol.NewEnd(), 7))
	assert.Nil(t, r.HandleLocalEnd(protocol.NewEnd(), 7))

	// a locally begun session that is never answered can still be ended
	session := r.HandleLocalBegin(newBegin(), 1)
	assert.Same(t, session, r.HandleLocalEnd(protocol.NewEnd(), 1))
	assert.Empty(t, r.Sessions())
}
