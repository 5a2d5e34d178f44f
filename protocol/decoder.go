package protocol

import (
	"encoding/binary"
	"math"
	"time"

	amqperrors "github.com/maxpert/amqp-peer/errors"
)

// DecodeValue reads one AMQP encoded value from b. It returns the value and
// the number of bytes consumed. Described types with a known descriptor come
// back as their concrete type (*Begin, *Accepted, ...).
func DecodeValue(b []byte) (interface{}, int, error) {
	d := &decoder{data: b}
	v, err := d.readValue()
	if err != nil {
		return nil, 0, err
	}
	return v, d.pos, nil
}

// decoder walks an in-memory buffer. Every read is bounds checked; running
// off the end is a DecodeError, never a panic.
type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) remaining() int {
	return len(d.data) - d.pos
}

func (d *decoder) readByte() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, amqperrors.NewDecodeErrorf("unexpected end of data at offset %d", d.pos)
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) next(n int) ([]byte, error) {
	if n < 0 || n > d.remaining() {
		return nil, amqperrors.NewDecodeErrorf("need %d bytes at offset %d, have %d", n, d.pos, d.remaining())
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) readUint16() (uint16, error) {
	b, err := d.next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *decoder) readUint32() (uint32, error) {
	b, err := d.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *decoder) readUint64() (uint64, error) {
	b, err := d.next(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *decoder) readValue() (interface{}, error) {
	code, err := d.readByte()
	if err != nil {
		return nil, err
	}
	if amqpType(code) == typeCodeDescribed {
		return d.readDescribed()
	}
	return d.readOfType(amqpType(code))
}

func (d *decoder) readDescribed() (interface{}, error) {
	descriptor, err := d.readValue()
	if err != nil {
		return nil, err
	}

	var s *schema
	switch t := descriptor.(type) {
	case uint64:
		s = schemasByCode[t]
	case Symbol:
		s = schemasBySymbol[t]
	default:
		return nil, amqperrors.NewDecodeErrorf("invalid descriptor of type %T", descriptor)
	}

	if s == nil {
		value, err := d.readValue()
		if err != nil {
			return nil, err
		}
		return &DescribedType{Descriptor: descriptor, Value: value}, nil
	}
	return d.readComposite(s)
}

// readComposite decodes the list body of a known described type, enforcing
// its declared shape: enough slots to reach the last mandatory field, no
// null in a mandatory slot and no more slots than fields.
func (d *decoder) readComposite(s *schema) (Described, error) {
	code, err := d.readByte()
	if err != nil {
		return nil, err
	}
	count, size, err := d.readListHeader(amqpType(code))
	if err != nil {
		return nil, amqperrors.NewDecodeError(s.name+" body", err)
	}
	if count < s.minFields {
		return nil, amqperrors.NewDecodeErrorf("%s has %d list entries, mandatory field %q needs at least %d",
			s.name, count, s.fieldName(s.minFields-1), s.minFields)
	}
	if count > len(s.fields) {
		return nil, amqperrors.NewDecodeErrorf("%s has %d list entries, at most %d are defined",
			s.name, count, len(s.fields))
	}

	v := s.blank()
	c := v.base()
	start := d.pos
	for i := 0; i < count; i++ {
		item, err := d.readValue()
		if err != nil {
			return nil, amqperrors.NewDecodeError(s.name+"."+s.fieldName(i), err)
		}
		if item == nil && s.fields[i].mandatory {
			return nil, amqperrors.NewDecodeErrorf("%s.%s is mandatory and cannot be null", s.name, s.fields[i].name)
		}
		if err := c.decodeField(i, item); err != nil {
			return nil, err
		}
	}
	if d.pos-start != size {
		return nil, amqperrors.NewDecodeErrorf("%s list size %d does not match encoded content of %d bytes",
			s.name, size, d.pos-start)
	}
	return v, nil
}

// readListHeader returns the element count and the byte size of the
// elements that follow the header.
func (d *decoder) readListHeader(code amqpType) (count int, size int, err error) {
	switch code {
	case typeCodeList0:
		return 0, 0, nil
	case typeCodeList8:
		sz, err := d.readByte()
		if err != nil {
			return 0, 0, err
		}
		n, err := d.readByte()
		if err != nil {
			return 0, 0, err
		}
		if sz < 1 {
			return 0, 0, amqperrors.NewDecodeErrorf("list8 size %d too small", sz)
		}
		count, size = int(n), int(sz)-1
	case typeCodeList32:
		sz, err := d.readUint32()
		if err != nil {
			return 0, 0, err
		}
		n, err := d.readUint32()
		if err != nil {
			return 0, 0, err
		}
		if sz < 4 {
			return 0, 0, amqperrors.NewDecodeErrorf("list32 size %d too small", sz)
		}
		if uint64(n) > uint64(math.MaxInt32) || uint64(sz) > uint64(math.MaxInt32) {
			return 0, 0, amqperrors.NewDecodeErrorf("list32 header out of range")
		}
		count, size = int(n), int(sz)-4
	default:
		return 0, 0, amqperrors.NewDecodeErrorf("type code %#02x is not a list", byte(code))
	}
	if size > d.remaining() {
		return 0, 0, amqperrors.NewDecodeErrorf("list size %d exceeds remaining %d bytes", size, d.remaining())
	}
	if count > size {
		return 0, 0, amqperrors.NewDecodeErrorf("list claims %d entries in %d bytes", count, size)
	}
	return count, size, nil
}

func (d *decoder) readOfType(code amqpType) (interface{}, error) {
	switch code {
	case typeCodeNull:
		return nil, nil

	// bool
	case typeCodeBool:
		b, err := d.readByte()
		return b != 0, err
	case typeCodeBoolTrue:
		return true, nil
	case typeCodeBoolFalse:
		return false, nil

	// unsigned
	case typeCodeUbyte:
		return d.readByte()
	case typeCodeUshort:
		return d.readUint16()
	case typeCodeUint:
		return d.readUint32()
	case typeCodeSmallUint:
		b, err := d.readByte()
		return uint32(b), err
	case typeCodeUint0:
		return uint32(0), nil
	case typeCodeUlong:
		return d.readUint64()
	case typeCodeSmallUlong:
		b, err := d.readByte()
		return uint64(b), err
	case typeCodeUlong0:
		return uint64(0), nil

	// signed
	case typeCodeByte:
		b, err := d.readByte()
		return int8(b), err
	case typeCodeShort:
		n, err := d.readUint16()
		return int16(n), err
	case typeCodeInt:
		n, err := d.readUint32()
		return int32(n), err
	case typeCodeSmallint:
		b, err := d.readByte()
		return int32(int8(b)), err
	case typeCodeLong:
		n, err := d.readUint64()
		return int64(n), err
	case typeCodeSmalllong:
		b, err := d.readByte()
		return int64(int8(b)), err

	// floating point and decimals
	case typeCodeFloat:
		n, err := d.readUint32()
		return math.Float32frombits(n), err
	case typeCodeDouble:
		n, err := d.readUint64()
		return math.Float64frombits(n), err
	case typeCodeDecimal32:
		var v Decimal32
		b, err := d.next(len(v))
		copy(v[:], b)
		return v, err
	case typeCodeDecimal64:
		var v Decimal64
		b, err := d.next(len(v))
		copy(v[:], b)
		return v, err
	case typeCodeDecimal128:
		var v Decimal128
		b, err := d.next(len(v))
		copy(v[:], b)
		return v, err

	// other fixed width
	case typeCodeChar:
		n, err := d.readUint32()
		return Char(n), err
	case typeCodeTimestamp:
		n, err := d.readUint64()
		return time.UnixMilli(int64(n)).UTC(), err
	case typeCodeUUID:
		var v UUID
		b, err := d.next(len(v))
		copy(v[:], b)
		return v, err

	// variable width
	case typeCodeVbin8, typeCodeVbin32:
		b, err := d.readVariable(code)
		if err != nil {
			return nil, err
		}
		return append([]byte{}, b...), nil
	case typeCodeStr8, typeCodeStr32:
		b, err := d.readVariable(code)
		return string(b), err
	case typeCodeSym8, typeCodeSym32:
		b, err := d.readVariable(code)
		return Symbol(b), err

	// compound
	case typeCodeList0, typeCodeList8, typeCodeList32:
		return d.readList(code)
	case typeCodeMap8, typeCodeMap32:
		return d.readMap(code)
	case typeCodeArray8, typeCodeArray32:
		return d.readArray(code)
	}
	return nil, amqperrors.NewDecodeErrorf("unknown type code %#02x", byte(code))
}

func (d *decoder) readVariable(code amqpType) ([]byte, error) {
	var n int
	switch code {
	case typeCodeVbin8, typeCodeStr8, typeCodeSym8:
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		n = int(b)
	default:
		l, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		if uint64(l) > uint64(d.remaining()) {
			return nil, amqperrors.NewDecodeErrorf("length %d is larger than the remaining %d bytes", l, d.remaining())
		}
		n = int(l)
	}
	return d.next(n)
}

func (d *decoder) readList(code amqpType) ([]interface{}, error) {
	count, size, err := d.readListHeader(code)
	if err != nil {
		return nil, err
	}
	items := make([]interface{}, 0, count)
	start := d.pos
	for i := 0; i < count; i++ {
		v, err := d.readValue()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	if d.pos-start != size {
		return nil, amqperrors.NewDecodeErrorf("list size %d does not match encoded content of %d bytes", size, d.pos-start)
	}
	return items, nil
}

func (d *decoder) readMap(code amqpType) (map[interface{}]interface{}, error) {
	var count, size int
	if code == typeCodeMap8 {
		sz, err := d.readByte()
		if err != nil {
			return nil, err
		}
		n, err := d.readByte()
		if err != nil {
			return nil, err
		}
		if sz < 1 {
			return nil, amqperrors.NewDecodeErrorf("map8 size %d too small", sz)
		}
		count, size = int(n), int(sz)-1
	} else {
		sz, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		if sz < 4 || uint64(sz) > uint64(math.MaxInt32) || uint64(n) > uint64(math.MaxInt32) {
			return nil, amqperrors.NewDecodeErrorf("map32 header out of range")
		}
		count, size = int(n), int(sz)-4
	}
	if count%2 != 0 {
		return nil, amqperrors.NewDecodeErrorf("map has odd element count %d", count)
	}
	if size > d.remaining() || count > size {
		return nil, amqperrors.NewDecodeErrorf("map size %d with %d elements does not fit %d bytes", size, count, d.remaining())
	}

	m := make(map[interface{}]interface{}, count/2)
	start := d.pos
	for i := 0; i < count; i += 2 {
		key, err := d.readValue()
		if err != nil {
			return nil, err
		}
		if !hashable(key) {
			return nil, amqperrors.NewDecodeErrorf("map key of type %T is not supported", key)
		}
		value, err := d.readValue()
		if err != nil {
			return nil, err
		}
		m[key] = value
	}
	if d.pos-start != size {
		return nil, amqperrors.NewDecodeErrorf("map size %d does not match encoded content of %d bytes", size, d.pos-start)
	}
	return m, nil
}

// readArray decodes an array. Symbol arrays come back as []Symbol, anything
// else as []interface{}.
func (d *decoder) readArray(code amqpType) (interface{}, error) {
	var count, size int
	if code == typeCodeArray8 {
		sz, err := d.readByte()
		if err != nil {
			return nil, err
		}
		n, err := d.readByte()
		if err != nil {
			return nil, err
		}
		if sz < 2 {
			return nil, amqperrors.NewDecodeErrorf("array8 size %d too small", sz)
		}
		count, size = int(n), int(sz)-1
	} else {
		sz, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		if sz < 5 || uint64(sz) > uint64(math.MaxInt32) || uint64(n) > uint64(math.MaxInt32) {
			return nil, amqperrors.NewDecodeErrorf("array32 header out of range")
		}
		count, size = int(n), int(sz)-4
	}
	if size > d.remaining() {
		return nil, amqperrors.NewDecodeErrorf("array size %d exceeds remaining %d bytes", size, d.remaining())
	}
	if count > size {
		return nil, amqperrors.NewDecodeErrorf("array claims %d elements in %d bytes", count, size)
	}

	start := d.pos
	elem, err := d.readByte()
	if err != nil {
		return nil, err
	}
	if amqpType(elem) == typeCodeDescribed {
		return nil, amqperrors.NewDecodeErrorf("described array elements are not supported")
	}

	var result interface{}
	if amqpType(elem) == typeCodeSym8 || amqpType(elem) == typeCodeSym32 {
		symbols := make([]Symbol, 0, count)
		for i := 0; i < count; i++ {
			b, err := d.readVariable(amqpType(elem))
			if err != nil {
				return nil, err
			}
			symbols = append(symbols, Symbol(b))
		}
		result = symbols
	} else {
		items := make([]interface{}, 0, count)
		for i := 0; i < count; i++ {
			v, err := d.readOfType(amqpType(elem))
			if err != nil {
				return nil, err
			}
			items = append(items, v)
			if d.pos-start > size {
				break
			}
		}
		result = items
	}
	if d.pos-start != size {
		return nil, amqperrors.NewDecodeErrorf("array size %d does not match encoded content of %d bytes", size, d.pos-start)
	}
	return result, nil
}

func hashable(v interface{}) bool {
	switch v.(type) {
	case []byte, []interface{}, []Symbol, map[interface{}]interface{}:
		return false
	}
	return true
}
