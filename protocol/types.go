package protocol

import (
	"fmt"
)

// amqpType is a one byte AMQP 1.0 format code.
type amqpType uint8

// Primitive format codes (amqp-core-types-v1.0 section 1.6)
const (
	typeCodeDescribed amqpType = 0x00
	typeCodeNull      amqpType = 0x40

	// Bool
	typeCodeBool      amqpType = 0x56
	typeCodeBoolTrue  amqpType = 0x41
	typeCodeBoolFalse amqpType = 0x42

	// Unsigned
	typeCodeUbyte      amqpType = 0x50
	typeCodeUshort     amqpType = 0x60
	typeCodeUint       amqpType = 0x70
	typeCodeSmallUint  amqpType = 0x52
	typeCodeUint0      amqpType = 0x43
	typeCodeUlong      amqpType = 0x80
	typeCodeSmallUlong amqpType = 0x53
	typeCodeUlong0     amqpType = 0x44

	// Signed
	typeCodeByte      amqpType = 0x51
	typeCodeShort     amqpType = 0x61
	typeCodeInt       amqpType = 0x71
	typeCodeSmallint  amqpType = 0x54
	typeCodeLong      amqpType = 0x81
	typeCodeSmalllong amqpType = 0x55

	// Floating point
	typeCodeFloat  amqpType = 0x72
	typeCodeDouble amqpType = 0x82

	// Decimals
	typeCodeDecimal32  amqpType = 0x74
	typeCodeDecimal64  amqpType = 0x84
	typeCodeDecimal128 amqpType = 0x94

	// Other
	typeCodeChar      amqpType = 0x73
	typeCodeTimestamp amqpType = 0x83
	typeCodeUUID      amqpType = 0x98

	// Variable length
	typeCodeVbin8  amqpType = 0xa0
	typeCodeVbin32 amqpType = 0xb0
	typeCodeStr8   amqpType = 0xa1
	typeCodeStr32  amqpType = 0xb1
	typeCodeSym8   amqpType = 0xa3
	typeCodeSym32  amqpType = 0xb3

	// Compound
	typeCodeList0   amqpType = 0x45
	typeCodeList8   amqpType = 0xc0
	typeCodeList32  amqpType = 0xd0
	typeCodeMap8    amqpType = 0xc1
	typeCodeMap32   amqpType = 0xd1
	typeCodeArray8  amqpType = 0xe0
	typeCodeArray32 amqpType = 0xf0
)

// Descriptor codes of the described types this package understands.
const (
	DescriptorOpen        uint64 = 0x10
	DescriptorBegin       uint64 = 0x11
	DescriptorAttach      uint64 = 0x12
	DescriptorFlow        uint64 = 0x13
	DescriptorTransfer    uint64 = 0x14
	DescriptorDisposition uint64 = 0x15
	DescriptorDetach      uint64 = 0x16
	DescriptorEnd         uint64 = 0x17
	DescriptorClose       uint64 = 0x18

	DescriptorError uint64 = 0x1d

	DescriptorReceived uint64 = 0x23
	DescriptorAccepted uint64 = 0x24
	DescriptorRejected uint64 = 0x25
	DescriptorReleased uint64 = 0x26
	DescriptorModified uint64 = 0x27

	DescriptorSource uint64 = 0x28
	DescriptorTarget uint64 = 0x29

	DescriptorCoordinator        uint64 = 0x30
	DescriptorDeclare            uint64 = 0x31
	DescriptorDischarge          uint64 = 0x32
	DescriptorDeclared           uint64 = 0x33
	DescriptorTransactionalState uint64 = 0x34

	DescriptorSASLMechanisms uint64 = 0x40
	DescriptorSASLInit       uint64 = 0x41
	DescriptorSASLChallenge  uint64 = 0x42
	DescriptorSASLResponse   uint64 = 0x43
	DescriptorSASLOutcome    uint64 = 0x44
)

// Symbol is an AMQP symbol: a short ASCII name, distinct from a string on the wire.
type Symbol string

// UUID is an RFC-4122 UUID in network byte order.
type UUID [16]byte

func (u UUID) String() string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", u[0:4], u[4:6], u[6:8], u[8:10], u[10:16])
}

// Char is a single UTF-32 character.
type Char rune

// Decimal values are carried as raw IEEE 754-2008 BID bytes.
type (
	Decimal32  [4]byte
	Decimal64  [8]byte
	Decimal128 [16]byte
)

// Role identifies which end of a link an Attach or Disposition describes.
type Role bool

const (
	RoleSender   Role = false
	RoleReceiver Role = true
)

func (r Role) String() string {
	if r {
		return "Receiver"
	}
	return "Sender"
}

// Complement returns the role the other end of the link plays.
func (r Role) Complement() Role {
	return !r
}

// SenderSettleMode values for Attach.snd-settle-mode
const (
	SenderSettleModeUnsettled uint8 = 0
	SenderSettleModeSettled   uint8 = 1
	SenderSettleModeMixed     uint8 = 2
)

// ReceiverSettleMode values for Attach.rcv-settle-mode and Transfer.rcv-settle-mode
const (
	ReceiverSettleModeFirst  uint8 = 0
	ReceiverSettleModeSecond uint8 = 1
)

// SASL outcome codes
const (
	SASLCodeOK      uint8 = 0
	SASLCodeAuth    uint8 = 1
	SASLCodeSys     uint8 = 2
	SASLCodeSysPerm uint8 = 3
	SASLCodeSysTemp uint8 = 4
)

// DescribedType carries a described value whose descriptor this package does
// not model. It re-encodes exactly as decoded.
type DescribedType struct {
	Descriptor interface{} // uint64 or Symbol
	Value      interface{}
}

func (d *DescribedType) String() string {
	return fmt.Sprintf("DescribedType{Descriptor: %v, Value: %v}", d.Descriptor, d.Value)
}

// unknown described values are tolerated wherever a terminus or a delivery
// state is expected so that odd peers can still be inspected.
func (*DescribedType) isTarget()        {}
func (*DescribedType) isDeliveryState() {}
