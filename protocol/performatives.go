package protocol

import (
	"math"
)

// Performative is one of the nine AMQP frame bodies. The set is closed:
// *Open, *Begin, *Attach, *Flow, *Transfer, *Disposition, *Detach, *End, *Close.
type Performative interface {
	Described
	isPerformative()
}

// DefaultWindowSize is the incoming and outgoing window a new Begin carries
// until told otherwise.
const DefaultWindowSize uint32 = math.MaxInt32

/*
<type name="open" class="composite" source="list" provides="frame">
    <descriptor name="amqp:open:list" code="0x00000000:0x00000010"/>
</type>
*/

// Open field indexes
const (
	OpenContainerID = iota
	OpenHostname
	OpenMaxFrameSize
	OpenChannelMax
	OpenIdleTimeout
	OpenOutgoingLocales
	OpenIncomingLocales
	OpenOfferedCapabilities
	OpenDesiredCapabilities
	OpenProperties
)

var openSchema = newSchema("Open", "amqp:open:list", DescriptorOpen,
	func(c composite) Described { return &Open{c} },
	mandatory("container-id", kindString),
	optional("hostname", kindString),
	optional("max-frame-size", kindUint),
	optional("channel-max", kindUshort),
	optional("idle-time-out", kindUint),
	optional("outgoing-locales", kindSymbols),
	optional("incoming-locales", kindSymbols),
	optional("offered-capabilities", kindSymbols),
	optional("desired-capabilities", kindSymbols),
	optional("properties", kindFields),
)

// Open negotiates connection parameters.
type Open struct{ composite }

// NewOpen returns an Open whose container-id is the empty string.
func NewOpen() *Open {
	o := &Open{newComposite(openSchema)}
	o.set(OpenContainerID, "")
	return o
}

func (*Open) isPerformative() {}

func (o *Open) Clone() *Open { return &Open{o.clone()} }

func (o *Open) ContainerID() string  { return o.stringAt(OpenContainerID) }
func (o *Open) Hostname() string     { return o.stringAt(OpenHostname) }
func (o *Open) MaxFrameSize() uint32 { return o.uint32At(OpenMaxFrameSize) }
func (o *Open) ChannelMax() uint16   { return o.uint16At(OpenChannelMax) }
func (o *Open) IdleTimeout() uint32  { return o.uint32At(OpenIdleTimeout) }
func (o *Open) OutgoingLocales() []Symbol {
	return o.symbolsAt(OpenOutgoingLocales)
}
func (o *Open) IncomingLocales() []Symbol {
	return o.symbolsAt(OpenIncomingLocales)
}
func (o *Open) OfferedCapabilities() []Symbol {
	return o.symbolsAt(OpenOfferedCapabilities)
}
func (o *Open) DesiredCapabilities() []Symbol {
	return o.symbolsAt(OpenDesiredCapabilities)
}
func (o *Open) Properties() map[Symbol]interface{} {
	return o.fieldsAt(OpenProperties)
}

func (o *Open) SetContainerID(v string) *Open  { o.set(OpenContainerID, v); return o }
func (o *Open) SetHostname(v string) *Open     { o.set(OpenHostname, v); return o }
func (o *Open) SetMaxFrameSize(v uint32) *Open { o.set(OpenMaxFrameSize, v); return o }
func (o *Open) SetChannelMax(v uint16) *Open   { o.set(OpenChannelMax, v); return o }

// SetIdleTimeout sets idle-time-out in milliseconds.
func (o *Open) SetIdleTimeout(v uint32) *Open { o.set(OpenIdleTimeout, v); return o }
func (o *Open) SetOutgoingLocales(v ...Symbol) *Open {
	o.set(OpenOutgoingLocales, v)
	return o
}
func (o *Open) SetIncomingLocales(v ...Symbol) *Open {
	o.set(OpenIncomingLocales, v)
	return o
}
func (o *Open) SetOfferedCapabilities(v ...Symbol) *Open {
	o.set(OpenOfferedCapabilities, v)
	return o
}
func (o *Open) SetDesiredCapabilities(v ...Symbol) *Open {
	o.set(OpenDesiredCapabilities, v)
	return o
}
func (o *Open) SetProperties(v map[Symbol]interface{}) *Open {
	o.set(OpenProperties, v)
	return o
}

// Begin field indexes
const (
	BeginRemoteChannel = iota
	BeginNextOutgoingID
	BeginIncomingWindow
	BeginOutgoingWindow
	BeginHandleMax
	BeginOfferedCapabilities
	BeginDesiredCapabilities
	BeginProperties
)

var beginSchema = newSchema("Begin", "amqp:begin:list", DescriptorBegin,
	func(c composite) Described { return &Begin{c} },
	optional("remote-channel", kindUshort),
	mandatory("next-outgoing-id", kindUint),
	mandatory("incoming-window", kindUint),
	mandatory("outgoing-window", kindUint),
	optional("handle-max", kindUint),
	optional("offered-capabilities", kindSymbols),
	optional("desired-capabilities", kindSymbols),
	optional("properties", kindFields),
)

// Begin starts a session on a channel. A Begin with remote-channel set
// answers a Begin the other side sent on that channel.
type Begin struct{ composite }

// NewBegin returns a Begin with both windows set to DefaultWindowSize.
func NewBegin() *Begin {
	b := &Begin{newComposite(beginSchema)}
	b.set(BeginIncomingWindow, DefaultWindowSize)
	b.set(BeginOutgoingWindow, DefaultWindowSize)
	return b
}

func (*Begin) isPerformative() {}

func (b *Begin) Clone() *Begin { return &Begin{b.clone()} }

func (b *Begin) RemoteChannel() uint16  { return b.uint16At(BeginRemoteChannel) }
func (b *Begin) NextOutgoingID() uint32 { return b.uint32At(BeginNextOutgoingID) }
func (b *Begin) IncomingWindow() uint32 { return b.uint32At(BeginIncomingWindow) }
func (b *Begin) OutgoingWindow() uint32 { return b.uint32At(BeginOutgoingWindow) }
func (b *Begin) HandleMax() uint32      { return b.uint32At(BeginHandleMax) }
func (b *Begin) OfferedCapabilities() []Symbol {
	return b.symbolsAt(BeginOfferedCapabilities)
}
func (b *Begin) DesiredCapabilities() []Symbol {
	return b.symbolsAt(BeginDesiredCapabilities)
}
func (b *Begin) Properties() map[Symbol]interface{} {
	return b.fieldsAt(BeginProperties)
}

func (b *Begin) SetRemoteChannel(v uint16) *Begin  { b.set(BeginRemoteChannel, v); return b }
func (b *Begin) SetNextOutgoingID(v uint32) *Begin { b.set(BeginNextOutgoingID, v); return b }
func (b *Begin) SetIncomingWindow(v uint32) *Begin { b.set(BeginIncomingWindow, v); return b }
func (b *Begin) SetOutgoingWindow(v uint32) *Begin { b.set(BeginOutgoingWindow, v); return b }
func (b *Begin) SetHandleMax(v uint32) *Begin      { b.set(BeginHandleMax, v); return b }
func (b *Begin) SetOfferedCapabilities(v ...Symbol) *Begin {
	b.set(BeginOfferedCapabilities, v)
	return b
}
func (b *Begin) SetDesiredCapabilities(v ...Symbol) *Begin {
	b.set(BeginDesiredCapabilities, v)
	return b
}
func (b *Begin) SetProperties(v map[Symbol]interface{}) *Begin {
	b.set(BeginProperties, v)
	return b
}

// Attach field indexes
const (
	AttachName = iota
	AttachHandle
	AttachRole
	AttachSndSettleMode
	AttachRcvSettleMode
	AttachSource
	AttachTarget
	AttachUnsettled
	AttachIncompleteUnsettled
	AttachInitialDeliveryCount
	AttachMaxMessageSize
	AttachOfferedCapabilities
	AttachDesiredCapabilities
	AttachProperties
)

var attachSchema = newSchema("Attach", "amqp:attach:list", DescriptorAttach,
	func(c composite) Described { return &Attach{c} },
	mandatory("name", kindString),
	mandatory("handle", kindUint),
	mandatory("role", kindRole),
	optional("snd-settle-mode", kindUbyte),
	optional("rcv-settle-mode", kindUbyte),
	optional("source", kindSource),
	optional("target", kindTarget),
	optional("unsettled", kindMap),
	optional("incomplete-unsettled", kindBool),
	optional("initial-delivery-count", kindUint),
	optional("max-message-size", kindUlong),
	optional("offered-capabilities", kindSymbols),
	optional("desired-capabilities", kindSymbols),
	optional("properties", kindFields),
)

// Attach attaches a link endpoint to a session.
type Attach struct{ composite }

func NewAttach() *Attach {
	return &Attach{newComposite(attachSchema)}
}

func (*Attach) isPerformative() {}

func (a *Attach) Clone() *Attach { return &Attach{a.clone()} }

func (a *Attach) Name() string                 { return a.stringAt(AttachName) }
func (a *Attach) Handle() uint32               { return a.uint32At(AttachHandle) }
func (a *Attach) Role() Role                   { return a.roleAt(AttachRole) }
func (a *Attach) SndSettleMode() uint8         { return a.uint8At(AttachSndSettleMode) }
func (a *Attach) RcvSettleMode() uint8         { return a.uint8At(AttachRcvSettleMode) }
func (a *Attach) IncompleteUnsettled() bool    { return a.boolAt(AttachIncompleteUnsettled) }
func (a *Attach) InitialDeliveryCount() uint32 { return a.uint32At(AttachInitialDeliveryCount) }
func (a *Attach) MaxMessageSize() uint64       { return a.uint64At(AttachMaxMessageSize) }

func (a *Attach) Source() *Source {
	v, _ := a.values[AttachSource].(*Source)
	return v
}

// Target returns the target terminus: a *Target, a *Coordinator, or an
// undecoded *DescribedType.
func (a *Attach) Target() TargetTerminus {
	v, _ := a.values[AttachTarget].(TargetTerminus)
	return v
}

// Coordinator returns the target when it is a transaction coordinator.
func (a *Attach) Coordinator() (*Coordinator, bool) {
	v, ok := a.values[AttachTarget].(*Coordinator)
	return v, ok
}

func (a *Attach) Unsettled() map[interface{}]interface{} {
	v, _ := a.values[AttachUnsettled].(map[interface{}]interface{})
	return v
}
func (a *Attach) OfferedCapabilities() []Symbol {
	return a.symbolsAt(AttachOfferedCapabilities)
}
func (a *Attach) DesiredCapabilities() []Symbol {
	return a.symbolsAt(AttachDesiredCapabilities)
}
func (a *Attach) Properties() map[Symbol]interface{} {
	return a.fieldsAt(AttachProperties)
}

func (a *Attach) SetName(v string) *Attach           { a.set(AttachName, v); return a }
func (a *Attach) SetHandle(v uint32) *Attach         { a.set(AttachHandle, v); return a }
func (a *Attach) SetRole(v Role) *Attach             { a.set(AttachRole, v); return a }
func (a *Attach) SetSndSettleMode(v uint8) *Attach   { a.set(AttachSndSettleMode, v); return a }
func (a *Attach) SetRcvSettleMode(v uint8) *Attach   { a.set(AttachRcvSettleMode, v); return a }
func (a *Attach) SetSource(v *Source) *Attach        { a.set(AttachSource, v); return a }
func (a *Attach) SetTarget(v TargetTerminus) *Attach { a.set(AttachTarget, v); return a }
func (a *Attach) SetUnsettled(v map[interface{}]interface{}) *Attach {
	a.set(AttachUnsettled, v)
	return a
}
func (a *Attach) SetIncompleteUnsettled(v bool) *Attach {
	a.set(AttachIncompleteUnsettled, v)
	return a
}
func (a *Attach) SetInitialDeliveryCount(v uint32) *Attach {
	a.set(AttachInitialDeliveryCount, v)
	return a
}
func (a *Attach) SetMaxMessageSize(v uint64) *Attach {
	a.set(AttachMaxMessageSize, v)
	return a
}
func (a *Attach) SetOfferedCapabilities(v ...Symbol) *Attach {
	a.set(AttachOfferedCapabilities, v)
	return a
}
func (a *Attach) SetDesiredCapabilities(v ...Symbol) *Attach {
	a.set(AttachDesiredCapabilities, v)
	return a
}
func (a *Attach) SetProperties(v map[Symbol]interface{}) *Attach {
	a.set(AttachProperties, v)
	return a
}

// Flow field indexes
const (
	FlowNextIncomingID = iota
	FlowIncomingWindow
	FlowNextOutgoingID
	FlowOutgoingWindow
	FlowHandle
	FlowDeliveryCount
	FlowLinkCredit
	FlowAvailable
	FlowDrain
	FlowEcho
	FlowProperties
)

var flowSchema = newSchema("Flow", "amqp:flow:list", DescriptorFlow,
	func(c composite) Described { return &Flow{c} },
	optional("next-incoming-id", kindUint),
	mandatory("incoming-window", kindUint),
	mandatory("next-outgoing-id", kindUint),
	mandatory("outgoing-window", kindUint),
	optional("handle", kindUint),
	optional("delivery-count", kindUint),
	optional("link-credit", kindUint),
	optional("available", kindUint),
	optional("drain", kindBool),
	optional("echo", kindBool),
	optional("properties", kindFields),
)

// Flow updates session and, when handle is set, link flow state. A Flow
// without a handle is session level.
type Flow struct{ composite }

func NewFlow() *Flow {
	return &Flow{newComposite(flowSchema)}
}

func (*Flow) isPerformative() {}

func (f *Flow) Clone() *Flow { return &Flow{f.clone()} }

func (f *Flow) NextIncomingID() uint32 { return f.uint32At(FlowNextIncomingID) }
func (f *Flow) IncomingWindow() uint32 { return f.uint32At(FlowIncomingWindow) }
func (f *Flow) NextOutgoingID() uint32 { return f.uint32At(FlowNextOutgoingID) }
func (f *Flow) OutgoingWindow() uint32 { return f.uint32At(FlowOutgoingWindow) }
func (f *Flow) Handle() uint32         { return f.uint32At(FlowHandle) }
func (f *Flow) DeliveryCount() uint32  { return f.uint32At(FlowDeliveryCount) }
func (f *Flow) LinkCredit() uint32     { return f.uint32At(FlowLinkCredit) }
func (f *Flow) Available() uint32      { return f.uint32At(FlowAvailable) }
func (f *Flow) Drain() bool            { return f.boolAt(FlowDrain) }
func (f *Flow) Echo() bool             { return f.boolAt(FlowEcho) }
func (f *Flow) Properties() map[Symbol]interface{} {
	return f.fieldsAt(FlowProperties)
}

func (f *Flow) SetNextIncomingID(v uint32) *Flow { f.set(FlowNextIncomingID, v); return f }
func (f *Flow) SetIncomingWindow(v uint32) *Flow { f.set(FlowIncomingWindow, v); return f }
func (f *Flow) SetNextOutgoingID(v uint32) *Flow { f.set(FlowNextOutgoingID, v); return f }
func (f *Flow) SetOutgoingWindow(v uint32) *Flow { f.set(FlowOutgoingWindow, v); return f }
func (f *Flow) SetHandle(v uint32) *Flow         { f.set(FlowHandle, v); return f }
func (f *Flow) SetDeliveryCount(v uint32) *Flow  { f.set(FlowDeliveryCount, v); return f }
func (f *Flow) SetLinkCredit(v uint32) *Flow     { f.set(FlowLinkCredit, v); return f }
func (f *Flow) SetAvailable(v uint32) *Flow      { f.set(FlowAvailable, v); return f }
func (f *Flow) SetDrain(v bool) *Flow            { f.set(FlowDrain, v); return f }
func (f *Flow) SetEcho(v bool) *Flow             { f.set(FlowEcho, v); return f }
func (f *Flow) SetProperties(v map[Symbol]interface{}) *Flow {
	f.set(FlowProperties, v)
	return f
}

// Transfer field indexes
const (
	TransferHandle = iota
	TransferDeliveryID
	TransferDeliveryTag
	TransferMessageFormat
	TransferSettled
	TransferMore
	TransferRcvSettleMode
	TransferState
	TransferResume
	TransferAborted
	TransferBatchable
)

var transferSchema = newSchema("Transfer", "amqp:transfer:list", DescriptorTransfer,
	func(c composite) Described { return &Transfer{c} },
	mandatory("handle", kindUint),
	optional("delivery-id", kindUint),
	optional("delivery-tag", kindBinary),
	optional("message-format", kindUint),
	optional("settled", kindBool),
	optional("more", kindBool),
	optional("rcv-settle-mode", kindUbyte),
	optional("state", kindDeliveryState),
	optional("resume", kindBool),
	optional("aborted", kindBool),
	optional("batchable", kindBool),
)

// Transfer carries (part of) a message on a link. The message bytes travel
// as the frame payload after the performative.
type Transfer struct{ composite }

func NewTransfer() *Transfer {
	return &Transfer{newComposite(transferSchema)}
}

func (*Transfer) isPerformative() {}

func (t *Transfer) Clone() *Transfer { return &Transfer{t.clone()} }

func (t *Transfer) Handle() uint32        { return t.uint32At(TransferHandle) }
func (t *Transfer) DeliveryID() uint32    { return t.uint32At(TransferDeliveryID) }
func (t *Transfer) DeliveryTag() []byte   { return t.binaryAt(TransferDeliveryTag) }
func (t *Transfer) MessageFormat() uint32 { return t.uint32At(TransferMessageFormat) }
func (t *Transfer) Settled() bool         { return t.boolAt(TransferSettled) }
func (t *Transfer) More() bool            { return t.boolAt(TransferMore) }
func (t *Transfer) RcvSettleMode() uint8  { return t.uint8At(TransferRcvSettleMode) }
func (t *Transfer) State() DeliveryState  { return t.deliveryStateAt(TransferState) }
func (t *Transfer) Resume() bool          { return t.boolAt(TransferResume) }
func (t *Transfer) Aborted() bool         { return t.boolAt(TransferAborted) }
func (t *Transfer) Batchable() bool       { return t.boolAt(TransferBatchable) }

func (t *Transfer) SetHandle(v uint32) *Transfer        { t.set(TransferHandle, v); return t }
func (t *Transfer) SetDeliveryID(v uint32) *Transfer    { t.set(TransferDeliveryID, v); return t }
func (t *Transfer) SetDeliveryTag(v []byte) *Transfer   { t.set(TransferDeliveryTag, v); return t }
func (t *Transfer) SetMessageFormat(v uint32) *Transfer { t.set(TransferMessageFormat, v); return t }
func (t *Transfer) SetSettled(v bool) *Transfer         { t.set(TransferSettled, v); return t }
func (t *Transfer) SetMore(v bool) *Transfer            { t.set(TransferMore, v); return t }
func (t *Transfer) SetRcvSettleMode(v uint8) *Transfer  { t.set(TransferRcvSettleMode, v); return t }
func (t *Transfer) SetState(v DeliveryState) *Transfer  { t.set(TransferState, v); return t }
func (t *Transfer) SetResume(v bool) *Transfer          { t.set(TransferResume, v); return t }
func (t *Transfer) SetAborted(v bool) *Transfer         { t.set(TransferAborted, v); return t }
func (t *Transfer) SetBatchable(v bool) *Transfer       { t.set(TransferBatchable, v); return t }

// Disposition field indexes
const (
	DispositionRole = iota
	DispositionFirst
	DispositionLast
	DispositionSettled
	DispositionState
	DispositionBatchable
)

var dispositionSchema = newSchema("Disposition", "amqp:disposition:list", DescriptorDisposition,
	func(c composite) Described { return &Disposition{c} },
	mandatory("role", kindRole),
	mandatory("first", kindUint),
	optional("last", kindUint),
	optional("settled", kindBool),
	optional("state", kindDeliveryState),
	optional("batchable", kindBool),
)

// Disposition informs the peer of delivery state changes for a range of
// delivery ids.
type Disposition struct{ composite }

func NewDisposition() *Disposition {
	return &Disposition{newComposite(dispositionSchema)}
}

func (*Disposition) isPerformative() {}

func (d *Disposition) Clone() *Disposition { return &Disposition{d.clone()} }

func (d *Disposition) Role() Role           { return d.roleAt(DispositionRole) }
func (d *Disposition) First() uint32        { return d.uint32At(DispositionFirst) }
func (d *Disposition) Last() uint32         { return d.uint32At(DispositionLast) }
func (d *Disposition) Settled() bool        { return d.boolAt(DispositionSettled) }
func (d *Disposition) State() DeliveryState { return d.deliveryStateAt(DispositionState) }
func (d *Disposition) Batchable() bool      { return d.boolAt(DispositionBatchable) }

func (d *Disposition) SetRole(v Role) *Disposition    { d.set(DispositionRole, v); return d }
func (d *Disposition) SetFirst(v uint32) *Disposition { d.set(DispositionFirst, v); return d }
func (d *Disposition) SetLast(v uint32) *Disposition  { d.set(DispositionLast, v); return d }
func (d *Disposition) SetSettled(v bool) *Disposition { d.set(DispositionSettled, v); return d }
func (d *Disposition) SetState(v DeliveryState) *Disposition {
	d.set(DispositionState, v)
	return d
}
func (d *Disposition) SetBatchable(v bool) *Disposition { d.set(DispositionBatchable, v); return d }

// Detach field indexes
const (
	DetachHandle = iota
	DetachClosed
	DetachError
)

var detachSchema = newSchema("Detach", "amqp:detach:list", DescriptorDetach,
	func(c composite) Described { return &Detach{c} },
	optional("handle", kindUint),
	optional("closed", kindBool),
	optional("error", kindError),
)

// Detach detaches a link endpoint from a session.
type Detach struct{ composite }

func NewDetach() *Detach {
	return &Detach{newComposite(detachSchema)}
}

func (*Detach) isPerformative() {}

func (d *Detach) Clone() *Detach { return &Detach{d.clone()} }

func (d *Detach) Handle() uint32         { return d.uint32At(DetachHandle) }
func (d *Detach) Closed() bool           { return d.boolAt(DetachClosed) }
func (d *Detach) Error() *ErrorCondition { return d.errorAt(DetachError) }

func (d *Detach) SetHandle(v uint32) *Detach { d.set(DetachHandle, v); return d }
func (d *Detach) SetClosed(v bool) *Detach   { d.set(DetachClosed, v); return d }
func (d *Detach) SetError(v *ErrorCondition) *Detach {
	d.set(DetachError, v)
	return d
}

// End and Close share a single optional error field.
const (
	EndError   = 0
	CloseError = 0
)

var endSchema = newSchema("End", "amqp:end:list", DescriptorEnd,
	func(c composite) Described { return &End{c} },
	optional("error", kindError),
)

// End ends a session.
type End struct{ composite }

func NewEnd() *End {
	return &End{newComposite(endSchema)}
}

func (*End) isPerformative() {}

func (e *End) Clone() *End { return &End{e.clone()} }

func (e *End) Error() *ErrorCondition { return e.errorAt(EndError) }

func (e *End) SetError(v *ErrorCondition) *End { e.set(EndError, v); return e }

var closeSchema = newSchema("Close", "amqp:close:list", DescriptorClose,
	func(c composite) Described { return &Close{c} },
	optional("error", kindError),
)

// Close closes the connection.
type Close struct{ composite }

func NewClose() *Close {
	return &Close{newComposite(closeSchema)}
}

func (*Close) isPerformative() {}

func (c *Close) Clone() *Close { return &Close{c.clone()} }

func (c *Close) Error() *ErrorCondition { return c.errorAt(CloseError) }

func (c *Close) SetError(v *ErrorCondition) *Close { c.set(CloseError, v); return c }
