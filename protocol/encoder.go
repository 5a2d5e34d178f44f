package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	amqperrors "github.com/maxpert/amqp-peer/errors"
)

// Encode writes a described value using the AMQP 1.0 type encoding. A value
// missing a mandatory field fails with an *errors.EncodeError.
func Encode(v Described) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := writeValue(buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeValue writes any supported Go value using the AMQP 1.0 type encoding.
func EncodeValue(v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := writeValue(buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteByte(byte(typeCodeNull))
	case Described:
		return writeComposite(buf, t.base())
	case *DescribedType:
		buf.WriteByte(byte(typeCodeDescribed))
		if err := writeValue(buf, t.Descriptor); err != nil {
			return err
		}
		return writeValue(buf, t.Value)
	case bool:
		writeBool(buf, t)
	case Role:
		writeBool(buf, bool(t))
	case uint8:
		buf.WriteByte(byte(typeCodeUbyte))
		buf.WriteByte(t)
	case uint16:
		buf.WriteByte(byte(typeCodeUshort))
		writeUint16(buf, t)
	case uint32:
		writeUint(buf, t)
	case uint64:
		writeUlong(buf, t)
	case uint:
		writeUlong(buf, uint64(t))
	case int8:
		buf.WriteByte(byte(typeCodeByte))
		buf.WriteByte(byte(t))
	case int16:
		buf.WriteByte(byte(typeCodeShort))
		writeUint16(buf, uint16(t))
	case int32:
		writeInt(buf, t)
	case int64:
		writeLong(buf, t)
	case int:
		writeLong(buf, int64(t))
	case float32:
		buf.WriteByte(byte(typeCodeFloat))
		writeUint32(buf, math.Float32bits(t))
	case float64:
		buf.WriteByte(byte(typeCodeDouble))
		writeUint64(buf, math.Float64bits(t))
	case Char:
		buf.WriteByte(byte(typeCodeChar))
		writeUint32(buf, uint32(t))
	case time.Time:
		buf.WriteByte(byte(typeCodeTimestamp))
		writeUint64(buf, uint64(t.UnixMilli()))
	case UUID:
		buf.WriteByte(byte(typeCodeUUID))
		buf.Write(t[:])
	case Decimal32:
		buf.WriteByte(byte(typeCodeDecimal32))
		buf.Write(t[:])
	case Decimal64:
		buf.WriteByte(byte(typeCodeDecimal64))
		buf.Write(t[:])
	case Decimal128:
		buf.WriteByte(byte(typeCodeDecimal128))
		buf.Write(t[:])
	case []byte:
		writeVariable(buf, typeCodeVbin8, typeCodeVbin32, t)
	case string:
		writeVariable(buf, typeCodeStr8, typeCodeStr32, []byte(t))
	case Symbol:
		writeVariable(buf, typeCodeSym8, typeCodeSym32, []byte(t))
	case []Symbol:
		writeSymbolArray(buf, t)
	case []interface{}:
		return writeList(buf, t)
	case map[Symbol]interface{}:
		keys := make([]interface{}, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		return writeMap(buf, keys, func(k interface{}) interface{} { return t[k.(Symbol)] })
	case map[string]interface{}:
		keys := make([]interface{}, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		return writeMap(buf, keys, func(k interface{}) interface{} { return t[k.(string)] })
	case map[interface{}]interface{}:
		keys := make([]interface{}, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		return writeMap(buf, keys, func(k interface{}) interface{} { return t[k] })
	default:
		return amqperrors.NewEncodeError(fmt.Sprintf("%T", v), fmt.Sprintf("cannot encode value of type %T", v), nil)
	}
	return nil
}

// writeComposite writes the descriptor and a list holding every slot up to
// the highest present field. Absent slots in between become nulls.
func writeComposite(buf *bytes.Buffer, c *composite) error {
	if err := c.validate(); err != nil {
		return err
	}

	writeDescriptor(buf, c.schema.code)

	count := c.ElementCount()
	if count == 0 {
		buf.WriteByte(byte(typeCodeList0))
		return nil
	}

	body := getBuffer()
	defer putBuffer(body)

	for i := 0; i < count; i++ {
		if !c.Has(i) {
			body.WriteByte(byte(typeCodeNull))
			continue
		}
		if err := writeValue(body, c.values[i]); err != nil {
			return err
		}
	}

	writeListHeader(buf, count, body.Len())
	buf.Write(body.Bytes())
	return nil
}

func writeDescriptor(buf *bytes.Buffer, code uint64) {
	buf.WriteByte(byte(typeCodeDescribed))
	writeUlong(buf, code)
}

func writeListHeader(buf *bytes.Buffer, count, size int) {
	if count < 256 && size+1 < 256 {
		buf.WriteByte(byte(typeCodeList8))
		buf.WriteByte(byte(size + 1))
		buf.WriteByte(byte(count))
		return
	}
	buf.WriteByte(byte(typeCodeList32))
	writeUint32(buf, uint32(size+4))
	writeUint32(buf, uint32(count))
}

func writeList(buf *bytes.Buffer, items []interface{}) error {
	if len(items) == 0 {
		buf.WriteByte(byte(typeCodeList0))
		return nil
	}

	body := getBuffer()
	defer putBuffer(body)

	for _, item := range items {
		if err := writeValue(body, item); err != nil {
			return err
		}
	}

	writeListHeader(buf, len(items), body.Len())
	buf.Write(body.Bytes())
	return nil
}

// writeMap writes keys in a stable order so encodings are reproducible.
func writeMap(buf *bytes.Buffer, keys []interface{}, value func(interface{}) interface{}) error {
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
	})

	body := getBuffer()
	defer putBuffer(body)

	for _, k := range keys {
		if err := writeValue(body, k); err != nil {
			return err
		}
		if err := writeValue(body, value(k)); err != nil {
			return err
		}
	}

	count := len(keys) * 2
	size := body.Len()
	if count < 256 && size+1 < 256 {
		buf.WriteByte(byte(typeCodeMap8))
		buf.WriteByte(byte(size + 1))
		buf.WriteByte(byte(count))
	} else {
		buf.WriteByte(byte(typeCodeMap32))
		writeUint32(buf, uint32(size+4))
		writeUint32(buf, uint32(count))
	}
	buf.Write(body.Bytes())
	return nil
}

// writeSymbolArray writes a symbol array, widening every element to sym32 as
// soon as one symbol does not fit sym8.
func writeSymbolArray(buf *bytes.Buffer, symbols []Symbol) {
	elemType := typeCodeSym8
	for _, s := range symbols {
		if len(s) > math.MaxUint8 {
			elemType = typeCodeSym32
			break
		}
	}

	body := getBuffer()
	defer putBuffer(body)

	for _, s := range symbols {
		if elemType == typeCodeSym8 {
			body.WriteByte(byte(len(s)))
		} else {
			writeUint32(body, uint32(len(s)))
		}
		body.WriteString(string(s))
	}

	// size counts the count field, the element constructor and the elements
	size := body.Len() + 1
	if len(symbols) < 256 && size+1 < 256 {
		buf.WriteByte(byte(typeCodeArray8))
		buf.WriteByte(byte(size + 1))
		buf.WriteByte(byte(len(symbols)))
	} else {
		buf.WriteByte(byte(typeCodeArray32))
		writeUint32(buf, uint32(size+4))
		writeUint32(buf, uint32(len(symbols)))
	}
	buf.WriteByte(byte(elemType))
	buf.Write(body.Bytes())
}

func writeVariable(buf *bytes.Buffer, code8, code32 amqpType, data []byte) {
	if len(data) <= math.MaxUint8 {
		buf.WriteByte(byte(code8))
		buf.WriteByte(byte(len(data)))
	} else {
		buf.WriteByte(byte(code32))
		writeUint32(buf, uint32(len(data)))
	}
	buf.Write(data)
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(byte(typeCodeBoolTrue))
	} else {
		buf.WriteByte(byte(typeCodeBoolFalse))
	}
}

func writeUint(buf *bytes.Buffer, n uint32) {
	switch {
	case n == 0:
		buf.WriteByte(byte(typeCodeUint0))
	case n <= math.MaxUint8:
		buf.WriteByte(byte(typeCodeSmallUint))
		buf.WriteByte(byte(n))
	default:
		buf.WriteByte(byte(typeCodeUint))
		writeUint32(buf, n)
	}
}

func writeUlong(buf *bytes.Buffer, n uint64) {
	switch {
	case n == 0:
		buf.WriteByte(byte(typeCodeUlong0))
	case n <= math.MaxUint8:
		buf.WriteByte(byte(typeCodeSmallUlong))
		buf.WriteByte(byte(n))
	default:
		buf.WriteByte(byte(typeCodeUlong))
		writeUint64(buf, n)
	}
}

func writeInt(buf *bytes.Buffer, n int32) {
	if n >= math.MinInt8 && n <= math.MaxInt8 {
		buf.WriteByte(byte(typeCodeSmallint))
		buf.WriteByte(byte(int8(n)))
		return
	}
	buf.WriteByte(byte(typeCodeInt))
	writeUint32(buf, uint32(n))
}

func writeLong(buf *bytes.Buffer, n int64) {
	if n >= math.MinInt8 && n <= math.MaxInt8 {
		buf.WriteByte(byte(typeCodeSmalllong))
		buf.WriteByte(byte(int8(n)))
		return
	}
	buf.WriteByte(byte(typeCodeLong))
	writeUint64(buf, uint64(n))
}

func writeUint16(buf *bytes.Buffer, n uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], n)
	buf.Write(tmp[:])
}

func writeUint32(buf *bytes.Buffer, n uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], n)
	buf.Write(tmp[:])
}

func writeUint64(buf *bytes.Buffer, n uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], n)
	buf.Write(tmp[:])
}
