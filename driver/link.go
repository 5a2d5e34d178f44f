package driver

import (
	"fmt"

	"github.com/maxpert/amqp-peer/protocol"
)

// LinkKind is the part this peer plays on a link.
type LinkKind int

const (
	LinkSender LinkKind = iota
	LinkReceiver
	LinkCoordinator
)

func (k LinkKind) String() string {
	switch k {
	case LinkSender:
		return "Sender"
	case LinkReceiver:
		return "Receiver"
	case LinkCoordinator:
		return "Coordinator"
	}
	return fmt.Sprintf("LinkKind(%d)", int(k))
}

// linkKey identifies a link within a session: its name and the role this
// peer plays on it.
type linkKey struct {
	name string
	role protocol.Role
}

// LinkTracker holds both sides of one link: the Attach and Detach each side
// sent, the handles they chose, and the flow state seen so far. Either side
// may be missing; a one-sided link is a valid state.
type LinkTracker struct {
	session *SessionTracker
	name    string
	role    protocol.Role // this peer's role
	kind    LinkKind

	localAttach  *protocol.Attach
	remoteAttach *protocol.Attach
	localDetach  *protocol.Detach
	remoteDetach *protocol.Detach

	localHandle  uint32
	remoteHandle uint32

	deliveryCount  uint32
	linkCredit     uint32
	lastLocalFlow  *protocol.Flow
	lastRemoteFlow *protocol.Flow

	localTransfers  int
	remoteTransfers int
	lastDeliveryID  uint32
	hasDeliveryID   bool
	localPartial    bool // this peer's last Transfer had more=true
}

func newLinkTracker(session *SessionTracker, name string, role protocol.Role, attach *protocol.Attach) *LinkTracker {
	l := &LinkTracker{
		session: session,
		name:    name,
		role:    role,
		kind:    LinkReceiver,
	}
	if role == protocol.RoleSender {
		l.kind = LinkSender
	}
	if _, ok := attach.Coordinator(); ok {
		l.kind = LinkCoordinator
	}
	return l
}

func (l *LinkTracker) Session() *SessionTracker { return l.session }
func (l *LinkTracker) Name() string             { return l.name }
func (l *LinkTracker) Kind() LinkKind           { return l.kind }

// Role returns the role this peer plays on the link.
func (l *LinkTracker) Role() protocol.Role { return l.role }

func (l *LinkTracker) IsSender() bool      { return l.role == protocol.RoleSender }
func (l *LinkTracker) IsReceiver() bool    { return l.role == protocol.RoleReceiver }
func (l *LinkTracker) IsCoordinator() bool { return l.kind == LinkCoordinator }

func (l *LinkTracker) LocalAttach() *protocol.Attach  { return l.localAttach }
func (l *LinkTracker) RemoteAttach() *protocol.Attach { return l.remoteAttach }
func (l *LinkTracker) LocalDetach() *protocol.Detach  { return l.localDetach }
func (l *LinkTracker) RemoteDetach() *protocol.Detach { return l.remoteDetach }

// LocalHandle returns the handle this peer attached with.
func (l *LinkTracker) LocalHandle() (uint32, bool) { return l.localHandle, l.localAttach != nil }

// RemoteHandle returns the handle the remote peer attached with.
func (l *LinkTracker) RemoteHandle() (uint32, bool) { return l.remoteHandle, l.remoteAttach != nil }

func (l *LinkTracker) IsLocallyAttached() bool { return l.localAttach != nil && l.localDetach == nil }
func (l *LinkTracker) IsRemotelyAttached() bool {
	return l.remoteAttach != nil && l.remoteDetach == nil
}

func (l *LinkTracker) DeliveryCount() uint32          { return l.deliveryCount }
func (l *LinkTracker) LinkCredit() uint32             { return l.linkCredit }
func (l *LinkTracker) LastLocalFlow() *protocol.Flow  { return l.lastLocalFlow }
func (l *LinkTracker) LastRemoteFlow() *protocol.Flow { return l.lastRemoteFlow }
func (l *LinkTracker) LocalTransfers() int            { return l.localTransfers }
func (l *LinkTracker) RemoteTransfers() int           { return l.remoteTransfers }

// LastDeliveryID returns the delivery id of the most recent transfer on the
// link in either direction.
func (l *LinkTracker) LastDeliveryID() (uint32, bool) { return l.lastDeliveryID, l.hasDeliveryID }

// detachedBothWays reports whether the link no longer needs tracking: both
// sides detached, or one side detached a link the other never attached.
func (l *LinkTracker) detachedBothWays() bool {
	localDone := l.localAttach == nil || l.localDetach != nil
	remoteDone := l.remoteAttach == nil || l.remoteDetach != nil
	return localDone && remoteDone
}

func (l *LinkTracker) handleLocalAttach(attach *protocol.Attach) {
	l.localAttach = attach
	l.localHandle = attach.Handle()
	if l.IsSender() && attach.Has(protocol.AttachInitialDeliveryCount) {
		l.deliveryCount = attach.InitialDeliveryCount()
	}
}

func (l *LinkTracker) handleRemoteAttach(attach *protocol.Attach) {
	l.remoteAttach = attach
	l.remoteHandle = attach.Handle()
	if l.IsReceiver() && attach.Has(protocol.AttachInitialDeliveryCount) {
		l.deliveryCount = attach.InitialDeliveryCount()
	}
}

// handleLocalFlow records a Flow this peer sent. As receiver it grants credit.
func (l *LinkTracker) handleLocalFlow(flow *protocol.Flow) {
	l.lastLocalFlow = flow
	if l.IsReceiver() && flow.Has(protocol.FlowLinkCredit) {
		l.linkCredit = flow.LinkCredit()
	}
}

// handleRemoteFlow records a Flow from the remote peer. As sender the
// credit is recomputed against our own delivery count.
func (l *LinkTracker) handleRemoteFlow(flow *protocol.Flow) {
	l.lastRemoteFlow = flow
	if !l.IsSender() || !flow.Has(protocol.FlowLinkCredit) {
		return
	}
	if flow.Has(protocol.FlowDeliveryCount) {
		l.linkCredit = flow.DeliveryCount() + flow.LinkCredit() - l.deliveryCount
	} else {
		l.linkCredit = flow.LinkCredit()
	}
}

func (l *LinkTracker) handleTransfer(transfer *protocol.Transfer, local bool) {
	if local {
		l.localTransfers++
		l.localPartial = transfer.More() && !transfer.Aborted()
	} else {
		l.remoteTransfers++
	}
	if transfer.Has(protocol.TransferDeliveryID) {
		l.lastDeliveryID = transfer.DeliveryID()
		l.hasDeliveryID = true
	}
	// a delivery is counted once its last frame passes
	if transfer.More() || transfer.Aborted() {
		return
	}
	l.deliveryCount++
	if l.linkCredit > 0 {
		l.linkCredit--
	}
}

func (l *LinkTracker) String() string {
	return fmt.Sprintf("%s link %q (local attached: %t, remote attached: %t)",
		l.kind, l.name, l.IsLocallyAttached(), l.IsRemotelyAttached())
}
