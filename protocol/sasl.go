package protocol

// SaslPerformative is one of the five SASL frame bodies: *SaslMechanisms,
// *SaslInit, *SaslChallenge, *SaslResponse, *SaslOutcome.
type SaslPerformative interface {
	Described
	isSaslPerformative()
}

// SaslMechanisms field indexes
const (
	SaslMechanismsMechanisms = iota
)

var saslMechanismsSchema = newSchema("SaslMechanisms", "amqp:sasl-mechanisms:list", DescriptorSASLMechanisms,
	func(c composite) Described { return &SaslMechanisms{c} },
	mandatory("sasl-server-mechanisms", kindSymbols),
)

// SaslMechanisms advertises the mechanisms the server accepts.
type SaslMechanisms struct{ composite }

func NewSaslMechanisms(mechanisms ...Symbol) *SaslMechanisms {
	m := &SaslMechanisms{newComposite(saslMechanismsSchema)}
	m.set(SaslMechanismsMechanisms, mechanisms)
	return m
}

func (*SaslMechanisms) isSaslPerformative() {}

func (m *SaslMechanisms) Mechanisms() []Symbol { return m.symbolsAt(SaslMechanismsMechanisms) }

// SaslInit field indexes
const (
	SaslInitMechanism = iota
	SaslInitInitialResponse
	SaslInitHostname
)

var saslInitSchema = newSchema("SaslInit", "amqp:sasl-init:list", DescriptorSASLInit,
	func(c composite) Described { return &SaslInit{c} },
	mandatory("mechanism", kindSymbol),
	optional("initial-response", kindBinary),
	optional("hostname", kindString),
)

// SaslInit selects a mechanism and carries the client's first response.
type SaslInit struct{ composite }

func NewSaslInit(mechanism Symbol) *SaslInit {
	i := &SaslInit{newComposite(saslInitSchema)}
	i.set(SaslInitMechanism, mechanism)
	return i
}

func (*SaslInit) isSaslPerformative() {}

func (i *SaslInit) Mechanism() Symbol       { return i.symbolAt(SaslInitMechanism) }
func (i *SaslInit) InitialResponse() []byte { return i.binaryAt(SaslInitInitialResponse) }
func (i *SaslInit) Hostname() string        { return i.stringAt(SaslInitHostname) }

func (i *SaslInit) SetInitialResponse(v []byte) *SaslInit {
	i.set(SaslInitInitialResponse, v)
	return i
}
func (i *SaslInit) SetHostname(v string) *SaslInit { i.set(SaslInitHostname, v); return i }

// SaslChallenge field indexes
const (
	SaslChallengeChallenge = iota
)

var saslChallengeSchema = newSchema("SaslChallenge", "amqp:sasl-challenge:list", DescriptorSASLChallenge,
	func(c composite) Described { return &SaslChallenge{c} },
	mandatory("challenge", kindBinary),
)

type SaslChallenge struct{ composite }

func NewSaslChallenge(challenge []byte) *SaslChallenge {
	c := &SaslChallenge{newComposite(saslChallengeSchema)}
	c.set(SaslChallengeChallenge, challenge)
	return c
}

func (*SaslChallenge) isSaslPerformative() {}

func (c *SaslChallenge) Challenge() []byte { return c.binaryAt(SaslChallengeChallenge) }

// SaslResponse field indexes
const (
	SaslResponseResponse = iota
)

var saslResponseSchema = newSchema("SaslResponse", "amqp:sasl-response:list", DescriptorSASLResponse,
	func(c composite) Described { return &SaslResponse{c} },
	mandatory("response", kindBinary),
)

type SaslResponse struct{ composite }

func NewSaslResponse(response []byte) *SaslResponse {
	r := &SaslResponse{newComposite(saslResponseSchema)}
	r.set(SaslResponseResponse, response)
	return r
}

func (*SaslResponse) isSaslPerformative() {}

func (r *SaslResponse) Response() []byte { return r.binaryAt(SaslResponseResponse) }

// SaslOutcome field indexes
const (
	SaslOutcomeCode = iota
	SaslOutcomeAdditionalData
)

var saslOutcomeSchema = newSchema("SaslOutcome", "amqp:sasl-outcome:list", DescriptorSASLOutcome,
	func(c composite) Described { return &SaslOutcome{c} },
	mandatory("code", kindUbyte),
	optional("additional-data", kindBinary),
)

// SaslOutcome ends the SASL exchange. After it both sides expect a fresh
// protocol header.
type SaslOutcome struct{ composite }

func NewSaslOutcome(code uint8) *SaslOutcome {
	o := &SaslOutcome{newComposite(saslOutcomeSchema)}
	o.set(SaslOutcomeCode, code)
	return o
}

func (*SaslOutcome) isSaslPerformative() {}

func (o *SaslOutcome) Code() uint8            { return o.uint8At(SaslOutcomeCode) }
func (o *SaslOutcome) AdditionalData() []byte { return o.binaryAt(SaslOutcomeAdditionalData) }

func (o *SaslOutcome) SetAdditionalData(v []byte) *SaslOutcome {
	o.set(SaslOutcomeAdditionalData, v)
	return o
}
