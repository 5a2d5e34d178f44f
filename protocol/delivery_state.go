package protocol

// DeliveryState is the state carried by Transfer and Disposition. Outcomes
// (Accepted, Rejected, Released, Modified) are terminal; Received and
// TransactionalState are not.
type DeliveryState interface {
	isDeliveryState()
}

// Received field indexes
const (
	ReceivedSectionNumber = iota
	ReceivedSectionOffset
)

var receivedSchema = newSchema("Received", "amqp:received:list", DescriptorReceived,
	func(c composite) Described { return &Received{c} },
	mandatory("section-number", kindUint),
	mandatory("section-offset", kindUlong),
)

type Received struct{ composite }

func NewReceived(sectionNumber uint32, sectionOffset uint64) *Received {
	r := &Received{newComposite(receivedSchema)}
	r.set(ReceivedSectionNumber, sectionNumber)
	r.set(ReceivedSectionOffset, sectionOffset)
	return r
}

func (*Received) isDeliveryState() {}

func (r *Received) SectionNumber() uint32 { return r.uint32At(ReceivedSectionNumber) }
func (r *Received) SectionOffset() uint64 { return r.uint64At(ReceivedSectionOffset) }

var acceptedSchema = newSchema("Accepted", "amqp:accepted:list", DescriptorAccepted,
	func(c composite) Described { return &Accepted{c} },
)

type Accepted struct{ composite }

func NewAccepted() *Accepted {
	return &Accepted{newComposite(acceptedSchema)}
}

func (*Accepted) isDeliveryState() {}

// Rejected field indexes
const (
	RejectedError = iota
)

var rejectedSchema = newSchema("Rejected", "amqp:rejected:list", DescriptorRejected,
	func(c composite) Described { return &Rejected{c} },
	optional("error", kindError),
)

type Rejected struct{ composite }

func NewRejected(err *ErrorCondition) *Rejected {
	r := &Rejected{newComposite(rejectedSchema)}
	if err != nil {
		r.set(RejectedError, err)
	}
	return r
}

func (*Rejected) isDeliveryState() {}

func (r *Rejected) Error() *ErrorCondition { return r.errorAt(RejectedError) }

var releasedSchema = newSchema("Released", "amqp:released:list", DescriptorReleased,
	func(c composite) Described { return &Released{c} },
)

type Released struct{ composite }

func NewReleased() *Released {
	return &Released{newComposite(releasedSchema)}
}

func (*Released) isDeliveryState() {}

// Modified field indexes
const (
	ModifiedDeliveryFailed = iota
	ModifiedUndeliverableHere
	ModifiedMessageAnnotations
)

var modifiedSchema = newSchema("Modified", "amqp:modified:list", DescriptorModified,
	func(c composite) Described { return &Modified{c} },
	optional("delivery-failed", kindBool),
	optional("undeliverable-here", kindBool),
	optional("message-annotations", kindFields),
)

type Modified struct{ composite }

func NewModified() *Modified {
	return &Modified{newComposite(modifiedSchema)}
}

func (*Modified) isDeliveryState() {}

func (m *Modified) DeliveryFailed() bool    { return m.boolAt(ModifiedDeliveryFailed) }
func (m *Modified) UndeliverableHere() bool { return m.boolAt(ModifiedUndeliverableHere) }
func (m *Modified) MessageAnnotations() map[Symbol]interface{} {
	return m.fieldsAt(ModifiedMessageAnnotations)
}

func (m *Modified) SetDeliveryFailed(v bool) *Modified {
	m.set(ModifiedDeliveryFailed, v)
	return m
}
func (m *Modified) SetUndeliverableHere(v bool) *Modified {
	m.set(ModifiedUndeliverableHere, v)
	return m
}
func (m *Modified) SetMessageAnnotations(v map[Symbol]interface{}) *Modified {
	m.set(ModifiedMessageAnnotations, v)
	return m
}

// Declared field indexes
const (
	DeclaredTxnID = iota
)

var declaredSchema = newSchema("Declared", "amqp:declared:list", DescriptorDeclared,
	func(c composite) Described { return &Declared{c} },
	mandatory("txn-id", kindBinary),
)

// Declared is the coordinator's answer to a Declare.
type Declared struct{ composite }

func NewDeclared(txnID []byte) *Declared {
	d := &Declared{newComposite(declaredSchema)}
	d.set(DeclaredTxnID, txnID)
	return d
}

func (*Declared) isDeliveryState() {}

func (d *Declared) TxnID() []byte { return d.binaryAt(DeclaredTxnID) }

// TransactionalState field indexes
const (
	TransactionalStateTxnID = iota
	TransactionalStateOutcome
)

var transactionalStateSchema = newSchema("TransactionalState", "amqp:transactional-state:list", DescriptorTransactionalState,
	func(c composite) Described { return &TransactionalState{c} },
	mandatory("txn-id", kindBinary),
	optional("outcome", kindDeliveryState),
)

// TransactionalState marks a delivery as part of a transaction.
type TransactionalState struct{ composite }

func NewTransactionalState(txnID []byte) *TransactionalState {
	s := &TransactionalState{newComposite(transactionalStateSchema)}
	s.set(TransactionalStateTxnID, txnID)
	return s
}

func (*TransactionalState) isDeliveryState() {}

func (s *TransactionalState) TxnID() []byte { return s.binaryAt(TransactionalStateTxnID) }
func (s *TransactionalState) Outcome() DeliveryState {
	return s.deliveryStateAt(TransactionalStateOutcome)
}

func (s *TransactionalState) SetOutcome(v DeliveryState) *TransactionalState {
	s.set(TransactionalStateOutcome, v)
	return s
}
