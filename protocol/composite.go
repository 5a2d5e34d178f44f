package protocol

import (
	"fmt"
	"math"
	"math/bits"
	"reflect"
	"strings"

	amqperrors "github.com/maxpert/amqp-peer/errors"
)

// Described is implemented by every composite type in this package:
// performatives, SASL frames, termini, error conditions and delivery states.
// The set is closed; new kinds are added by declaring a schema here.
type Described interface {
	Descriptor() uint64
	TypeName() string
	ElementCount() int
	Has(index int) bool
	base() *composite
}

type fieldKind uint8

const (
	kindAny fieldKind = iota
	kindBool
	kindUbyte
	kindUshort
	kindUint
	kindUlong
	kindString
	kindSymbol
	kindSymbols
	kindFields
	kindMap
	kindBinary
	kindRole
	kindError
	kindSource
	kindTarget
	kindDeliveryState
)

type fieldDef struct {
	name      string
	kind      fieldKind
	mandatory bool
}

func optional(name string, kind fieldKind) fieldDef {
	return fieldDef{name: name, kind: kind}
}

func mandatory(name string, kind fieldKind) fieldDef {
	return fieldDef{name: name, kind: kind, mandatory: true}
}

// schema is the declared, ordered field layout of one described list type.
type schema struct {
	name      string
	symbol    Symbol
	code      uint64
	fields    []fieldDef
	minFields int // one past the last mandatory field
	wrap      func(composite) Described
}

var (
	schemasByCode   = map[uint64]*schema{}
	schemasBySymbol = map[Symbol]*schema{}
)

func newSchema(name string, symbol Symbol, code uint64, wrap func(composite) Described, fields ...fieldDef) *schema {
	s := &schema{
		name:   name,
		symbol: symbol,
		code:   code,
		fields: fields,
		wrap:   wrap,
	}
	for i, f := range fields {
		if f.mandatory {
			s.minFields = i + 1
		}
	}
	if len(fields) > 64 {
		panic(fmt.Sprintf("protocol: %s declares %d fields", name, len(fields)))
	}
	schemasByCode[code] = s
	schemasBySymbol[symbol] = s
	return s
}

// blank returns a value with no field present, used as a decode target.
func (s *schema) blank() Described {
	return s.wrap(newComposite(s))
}

func (s *schema) fieldName(i int) string {
	if i < 0 || i >= len(s.fields) {
		return fmt.Sprintf("field-%d", i)
	}
	return s.fields[i].name
}

// composite stores the values of a described list in declaration order
// together with a presence mask. The wire element count is derived from the
// highest present index; absent fields below it are written as null.
type composite struct {
	schema  *schema
	values  []interface{}
	present uint64
}

func newComposite(s *schema) composite {
	return composite{schema: s, values: make([]interface{}, len(s.fields))}
}

func (c *composite) base() *composite {
	return c
}

// Descriptor returns the numeric descriptor code of the type.
func (c *composite) Descriptor() uint64 {
	return c.schema.code
}

// TypeName returns the type name, e.g. "Begin".
func (c *composite) TypeName() string {
	return c.schema.name
}

// Has reports whether the field at index was explicitly assigned (or
// defaulted at construction, or forced to null).
func (c *composite) Has(index int) bool {
	if index < 0 || index >= len(c.values) {
		return false
	}
	return c.present&(1<<uint(index)) != 0
}

// IsNull reports whether the field is present but carries no value, which
// only happens after SetNull.
func (c *composite) IsNull(index int) bool {
	return c.Has(index) && c.values[index] == nil
}

// Clear unmarks the field and resets its value.
func (c *composite) Clear(index int) {
	if index < 0 || index >= len(c.values) {
		return
	}
	c.values[index] = nil
	c.present &^= 1 << uint(index)
}

// SetNull marks the field present while encoding it as null. Mandatory field
// checks treat it as set, which lets tests emit deliberately broken frames.
func (c *composite) SetNull(index int) {
	c.set(index, nil)
}

// ElementCount is one plus the index of the highest present field.
func (c *composite) ElementCount() int {
	return bits.Len64(c.present)
}

// Equal compares two described values field by field. Only present fields
// take part; nested collections compare by value.
func (c *composite) Equal(other Described) bool {
	if other == nil {
		return false
	}
	o := other.base()
	if c.schema != o.schema || c.present != o.present {
		return false
	}
	for i := range c.values {
		if !c.Has(i) {
			continue
		}
		if !valuesEqual(c.values[i], o.values[i]) {
			return false
		}
	}
	return true
}

func (c *composite) String() string {
	var sb strings.Builder
	sb.WriteString(c.schema.name)
	sb.WriteByte('{')
	first := true
	for i, f := range c.schema.fields {
		if !c.Has(i) {
			continue
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&sb, "%s: %v", f.name, formatValue(c.values[i]))
	}
	sb.WriteByte('}')
	return sb.String()
}

func (c *composite) set(index int, v interface{}) {
	c.values[index] = v
	c.present |= 1 << uint(index)
}

func (c *composite) clone() composite {
	cp := composite{
		schema:  c.schema,
		values:  make([]interface{}, len(c.values)),
		present: c.present,
	}
	for i, v := range c.values {
		cp.values[i] = deepCopy(v)
	}
	return cp
}

// validate returns an EncodeError naming the first absent mandatory field.
func (c *composite) validate() error {
	for i, f := range c.schema.fields {
		if f.mandatory && !c.Has(i) {
			return amqperrors.NewMissingField(c.schema.name, f.name)
		}
	}
	return nil
}

// decodeField stores a decoded slot. Null slots leave the field absent.
func (c *composite) decodeField(index int, v interface{}) error {
	if v == nil {
		return nil
	}
	f := c.schema.fields[index]
	cv, ok := coerce(f.kind, v)
	if !ok {
		return amqperrors.NewDecodeErrorf("%s.%s: unexpected value of type %T", c.schema.name, f.name, v)
	}
	c.set(index, cv)
	return nil
}

// Typed accessors. Absent or null fields read as the zero value.

func (c *composite) uint8At(i int) uint8 {
	v, _ := c.values[i].(uint8)
	return v
}

func (c *composite) uint16At(i int) uint16 {
	v, _ := c.values[i].(uint16)
	return v
}

func (c *composite) uint32At(i int) uint32 {
	v, _ := c.values[i].(uint32)
	return v
}

func (c *composite) uint64At(i int) uint64 {
	v, _ := c.values[i].(uint64)
	return v
}

func (c *composite) boolAt(i int) bool {
	v, _ := c.values[i].(bool)
	return v
}

func (c *composite) stringAt(i int) string {
	v, _ := c.values[i].(string)
	return v
}

func (c *composite) symbolAt(i int) Symbol {
	v, _ := c.values[i].(Symbol)
	return v
}

func (c *composite) symbolsAt(i int) []Symbol {
	v, _ := c.values[i].([]Symbol)
	return v
}

func (c *composite) fieldsAt(i int) map[Symbol]interface{} {
	v, _ := c.values[i].(map[Symbol]interface{})
	return v
}

func (c *composite) binaryAt(i int) []byte {
	v, _ := c.values[i].([]byte)
	return v
}

func (c *composite) roleAt(i int) Role {
	v, _ := c.values[i].(Role)
	return v
}

func (c *composite) errorAt(i int) *ErrorCondition {
	v, _ := c.values[i].(*ErrorCondition)
	return v
}

func (c *composite) deliveryStateAt(i int) DeliveryState {
	v, _ := c.values[i].(DeliveryState)
	return v
}

// coerce converts a generically decoded value to the canonical Go type of a
// field kind. Unsigned integers may arrive in any width that fits.
func coerce(kind fieldKind, v interface{}) (interface{}, bool) {
	switch kind {
	case kindAny:
		return v, true
	case kindBool:
		b, ok := v.(bool)
		return b, ok
	case kindUbyte:
		n, ok := asUnsigned(v)
		return uint8(n), ok && n <= math.MaxUint8
	case kindUshort:
		n, ok := asUnsigned(v)
		return uint16(n), ok && n <= math.MaxUint16
	case kindUint:
		n, ok := asUnsigned(v)
		return uint32(n), ok && n <= math.MaxUint32
	case kindUlong:
		n, ok := asUnsigned(v)
		return n, ok
	case kindString:
		s, ok := v.(string)
		return s, ok
	case kindSymbol:
		switch t := v.(type) {
		case Symbol:
			return t, true
		case string:
			return Symbol(t), true
		}
	case kindSymbols:
		switch t := v.(type) {
		case Symbol:
			return []Symbol{t}, true
		case []Symbol:
			return t, true
		}
	case kindFields:
		switch t := v.(type) {
		case map[Symbol]interface{}:
			return t, true
		case map[interface{}]interface{}:
			out := make(map[Symbol]interface{}, len(t))
			for k, val := range t {
				sym, ok := k.(Symbol)
				if !ok {
					return nil, false
				}
				out[sym] = val
			}
			return out, true
		}
	case kindMap:
		m, ok := v.(map[interface{}]interface{})
		return m, ok
	case kindBinary:
		b, ok := v.([]byte)
		return b, ok
	case kindRole:
		b, ok := v.(bool)
		return Role(b), ok
	case kindError:
		e, ok := v.(*ErrorCondition)
		return e, ok
	case kindSource:
		s, ok := v.(*Source)
		return s, ok
	case kindTarget:
		t, ok := v.(TargetTerminus)
		return t, ok
	case kindDeliveryState:
		s, ok := v.(DeliveryState)
		return s, ok
	}
	return nil, false
}

func asUnsigned(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	}
	return 0, false
}

func valuesEqual(a, b interface{}) bool {
	if da, ok := a.(Described); ok {
		db, ok := b.(Described)
		return ok && da.base().Equal(db)
	}
	return reflect.DeepEqual(a, b)
}

func deepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		return append([]byte(nil), t...)
	case []Symbol:
		return append([]Symbol(nil), t...)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	case map[Symbol]interface{}:
		out := make(map[Symbol]interface{}, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[interface{}]interface{}, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case *DescribedType:
		return &DescribedType{Descriptor: t.Descriptor, Value: deepCopy(t.Value)}
	case Described:
		c := t.base()
		return c.schema.wrap(c.clone())
	}
	return v
}

func formatValue(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return "null"
	case []byte:
		return fmt.Sprintf("%x", t)
	}
	return v
}
