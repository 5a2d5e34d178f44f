package protocol

// ErrorCondition field indexes
const (
	ErrorConditionCondition = iota
	ErrorConditionDescription
	ErrorConditionInfo
)

var errorSchema = newSchema("Error", "amqp:error:list", DescriptorError,
	func(c composite) Described { return &ErrorCondition{c} },
	mandatory("condition", kindSymbol),
	optional("description", kindString),
	optional("info", kindFields),
)

// ErrorCondition is the error carried by Detach, End, Close and Rejected.
type ErrorCondition struct{ composite }

// NewErrorCondition returns an error with the given condition symbol, e.g.
// "amqp:not-found".
func NewErrorCondition(condition Symbol, description string) *ErrorCondition {
	e := &ErrorCondition{newComposite(errorSchema)}
	e.set(ErrorConditionCondition, condition)
	if description != "" {
		e.set(ErrorConditionDescription, description)
	}
	return e
}

func (e *ErrorCondition) Condition() Symbol   { return e.symbolAt(ErrorConditionCondition) }
func (e *ErrorCondition) Description() string { return e.stringAt(ErrorConditionDescription) }
func (e *ErrorCondition) Info() map[Symbol]interface{} {
	return e.fieldsAt(ErrorConditionInfo)
}

func (e *ErrorCondition) SetInfo(v map[Symbol]interface{}) *ErrorCondition {
	e.set(ErrorConditionInfo, v)
	return e
}

// Source field indexes
const (
	SourceAddress = iota
	SourceDurable
	SourceExpiryPolicy
	SourceTimeout
	SourceDynamic
	SourceDynamicNodeProperties
	SourceDistributionMode
	SourceFilter
	SourceDefaultOutcome
	SourceOutcomes
	SourceCapabilities
)

var sourceSchema = newSchema("Source", "amqp:source:list", DescriptorSource,
	func(c composite) Described { return &Source{c} },
	optional("address", kindAny),
	optional("durable", kindUint),
	optional("expiry-policy", kindSymbol),
	optional("timeout", kindUint),
	optional("dynamic", kindBool),
	optional("dynamic-node-properties", kindFields),
	optional("distribution-mode", kindSymbol),
	optional("filter", kindFields),
	optional("default-outcome", kindAny),
	optional("outcomes", kindSymbols),
	optional("capabilities", kindSymbols),
)

// Source is the source terminus of a link.
type Source struct{ composite }

func NewSource() *Source {
	return &Source{newComposite(sourceSchema)}
}

func (s *Source) Clone() *Source { return &Source{s.clone()} }

// Address returns the address when it was sent as a string.
func (s *Source) Address() string          { return s.stringAt(SourceAddress) }
func (s *Source) Durable() uint32          { return s.uint32At(SourceDurable) }
func (s *Source) ExpiryPolicy() Symbol     { return s.symbolAt(SourceExpiryPolicy) }
func (s *Source) Timeout() uint32          { return s.uint32At(SourceTimeout) }
func (s *Source) Dynamic() bool            { return s.boolAt(SourceDynamic) }
func (s *Source) DistributionMode() Symbol { return s.symbolAt(SourceDistributionMode) }
func (s *Source) Filter() map[Symbol]interface{} {
	return s.fieldsAt(SourceFilter)
}
func (s *Source) Outcomes() []Symbol     { return s.symbolsAt(SourceOutcomes) }
func (s *Source) Capabilities() []Symbol { return s.symbolsAt(SourceCapabilities) }

func (s *Source) SetAddress(v string) *Source      { s.set(SourceAddress, v); return s }
func (s *Source) SetDurable(v uint32) *Source      { s.set(SourceDurable, v); return s }
func (s *Source) SetExpiryPolicy(v Symbol) *Source { s.set(SourceExpiryPolicy, v); return s }
func (s *Source) SetTimeout(v uint32) *Source      { s.set(SourceTimeout, v); return s }
func (s *Source) SetDynamic(v bool) *Source        { s.set(SourceDynamic, v); return s }
func (s *Source) SetDistributionMode(v Symbol) *Source {
	s.set(SourceDistributionMode, v)
	return s
}
func (s *Source) SetFilter(v map[Symbol]interface{}) *Source {
	s.set(SourceFilter, v)
	return s
}
func (s *Source) SetDefaultOutcome(v Described) *Source {
	s.set(SourceDefaultOutcome, v)
	return s
}
func (s *Source) SetOutcomes(v ...Symbol) *Source     { s.set(SourceOutcomes, v); return s }
func (s *Source) SetCapabilities(v ...Symbol) *Source { s.set(SourceCapabilities, v); return s }

// TargetTerminus is the target of an Attach: a *Target, a *Coordinator, or a
// *DescribedType when the descriptor is not known.
type TargetTerminus interface {
	isTarget()
}

// Target field indexes
const (
	TargetAddress = iota
	TargetDurable
	TargetExpiryPolicy
	TargetTimeout
	TargetDynamic
	TargetDynamicNodeProperties
	TargetCapabilities
)

var targetSchema = newSchema("Target", "amqp:target:list", DescriptorTarget,
	func(c composite) Described { return &Target{c} },
	optional("address", kindAny),
	optional("durable", kindUint),
	optional("expiry-policy", kindSymbol),
	optional("timeout", kindUint),
	optional("dynamic", kindBool),
	optional("dynamic-node-properties", kindFields),
	optional("capabilities", kindSymbols),
)

// Target is the target terminus of a link.
type Target struct{ composite }

func NewTarget() *Target {
	return &Target{newComposite(targetSchema)}
}

func (*Target) isTarget() {}

func (t *Target) Clone() *Target { return &Target{t.clone()} }

func (t *Target) Address() string        { return t.stringAt(TargetAddress) }
func (t *Target) Durable() uint32        { return t.uint32At(TargetDurable) }
func (t *Target) ExpiryPolicy() Symbol   { return t.symbolAt(TargetExpiryPolicy) }
func (t *Target) Timeout() uint32        { return t.uint32At(TargetTimeout) }
func (t *Target) Dynamic() bool          { return t.boolAt(TargetDynamic) }
func (t *Target) Capabilities() []Symbol { return t.symbolsAt(TargetCapabilities) }

func (t *Target) SetAddress(v string) *Target      { t.set(TargetAddress, v); return t }
func (t *Target) SetDurable(v uint32) *Target      { t.set(TargetDurable, v); return t }
func (t *Target) SetExpiryPolicy(v Symbol) *Target { t.set(TargetExpiryPolicy, v); return t }
func (t *Target) SetTimeout(v uint32) *Target      { t.set(TargetTimeout, v); return t }
func (t *Target) SetDynamic(v bool) *Target        { t.set(TargetDynamic, v); return t }
func (t *Target) SetCapabilities(v ...Symbol) *Target {
	t.set(TargetCapabilities, v)
	return t
}

// Coordinator field indexes
const (
	CoordinatorCapabilities = iota
)

var coordinatorSchema = newSchema("Coordinator", "amqp:coordinator:list", DescriptorCoordinator,
	func(c composite) Described { return &Coordinator{c} },
	optional("capabilities", kindSymbols),
)

// Coordinator is the target of a link to a transaction coordinator.
type Coordinator struct{ composite }

func NewCoordinator() *Coordinator {
	return &Coordinator{newComposite(coordinatorSchema)}
}

func (*Coordinator) isTarget() {}

func (c *Coordinator) Clone() *Coordinator { return &Coordinator{c.clone()} }

func (c *Coordinator) Capabilities() []Symbol { return c.symbolsAt(CoordinatorCapabilities) }

func (c *Coordinator) SetCapabilities(v ...Symbol) *Coordinator {
	c.set(CoordinatorCapabilities, v)
	return c
}

// Declare field indexes
const (
	DeclareGlobalID = iota
)

var declareSchema = newSchema("Declare", "amqp:declare:list", DescriptorDeclare,
	func(c composite) Described { return &Declare{c} },
	optional("global-id", kindAny),
)

// Declare is the message body sent to a coordinator to start a transaction.
type Declare struct{ composite }

func NewDeclare() *Declare {
	return &Declare{newComposite(declareSchema)}
}

func (d *Declare) GlobalID() interface{} { return d.values[DeclareGlobalID] }

func (d *Declare) SetGlobalID(v interface{}) *Declare { d.set(DeclareGlobalID, v); return d }

// Discharge field indexes
const (
	DischargeTxnID = iota
	DischargeFail
)

var dischargeSchema = newSchema("Discharge", "amqp:discharge:list", DescriptorDischarge,
	func(c composite) Described { return &Discharge{c} },
	mandatory("txn-id", kindBinary),
	optional("fail", kindBool),
)

// Discharge is the message body sent to a coordinator to end a transaction.
type Discharge struct{ composite }

func NewDischarge(txnID []byte) *Discharge {
	d := &Discharge{newComposite(dischargeSchema)}
	d.set(DischargeTxnID, txnID)
	return d
}

func (d *Discharge) TxnID() []byte { return d.binaryAt(DischargeTxnID) }
func (d *Discharge) Fail() bool    { return d.boolAt(DischargeFail) }

func (d *Discharge) SetFail(v bool) *Discharge { d.set(DischargeFail, v); return d }
