// Package object holds the COS object tree: leaf values, dictionaries
// and streams parsed from byte ranges, with identity and reference
// semantics, change tracking, and byte serialization for incremental
// updates.
package object

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/markpdf/cos/security"
)

// ObjectID identifies an indirect object.
type ObjectID struct {
	Num uint32
	Gen uint16
}

// String renders the reference form "N G R".
func (id ObjectID) String() string { return fmt.Sprintf("%d %d R", id.Num, id.Gen) }

// Header renders the definition header "N G obj".
func (id ObjectID) Header() string { return fmt.Sprintf("%d %d obj", id.Num, id.Gen) }

// Object is the base of all COS values.
type Object interface {
	Type() string
	WriteTo(buf *bytes.Buffer, crypt *security.CryptInfo) error
}

// ErrMissingRef reports a child that must be indirect but carries no
// reference. It aborts the emission of the containing object.
var ErrMissingRef = errors.New("object: child requires an indirect reference")

// ToBytes serializes any object. CryptInfo is consulted by stream
// payload emitters; every other type passes it through untouched.
func ToBytes(o Object, crypt *security.CryptInfo) ([]byte, error) {
	var buf bytes.Buffer
	if o == nil {
		buf.WriteString("null")
		return buf.Bytes(), nil
	}
	if err := o.WriteTo(&buf, crypt); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Null is the PDF null object.
type Null struct{}

func (Null) Type() string { return "null" }
func (Null) WriteTo(buf *bytes.Buffer, _ *security.CryptInfo) error {
	buf.WriteString("null")
	return nil
}

// Bool is a PDF boolean.
type Bool struct{ V bool }

func (Bool) Type() string { return "boolean" }
func (b Bool) WriteTo(buf *bytes.Buffer, _ *security.CryptInfo) error {
	if b.V {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}
	return nil
}

// Number is a PDF numeric value. COS does not distinguish integer from
// real; integral values serialize without a fraction.
type Number struct{ V float64 }

func (Number) Type() string { return "number" }

func (n Number) Int() int64 { return int64(n.V) }

func (n Number) WriteTo(buf *bytes.Buffer, _ *security.CryptInfo) error {
	buf.WriteString(FormatNumber(n.V))
	return nil
}

// FormatNumber renders a number the way PDF expects: no exponent, no
// trailing fraction for integral values.
func FormatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Name is a PDF name; the value is stored without the leading slash.
type Name struct{ V string }

func (Name) Type() string { return "name" }
func (n Name) WriteTo(buf *bytes.Buffer, _ *security.CryptInfo) error {
	buf.WriteByte('/')
	buf.WriteString(n.V)
	return nil
}

// StringLit is a literal string. Raw holds the bytes between the
// parentheses exactly as stored, escapes included, so re-emission is
// byte-exact.
type StringLit struct{ Raw []byte }

func (StringLit) Type() string { return "string" }
func (s StringLit) WriteTo(buf *bytes.Buffer, _ *security.CryptInfo) error {
	buf.WriteByte('(')
	buf.Write(s.Raw)
	buf.WriteByte(')')
	return nil
}

// Decoded resolves escape sequences and line continuations.
func (s StringLit) Decoded() []byte {
	out := make([]byte, 0, len(s.Raw))
	for i := 0; i < len(s.Raw); i++ {
		c := s.Raw[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(s.Raw) {
			break
		}
		e := s.Raw[i]
		switch {
		case e == 'n':
			out = append(out, '\n')
		case e == 'r':
			out = append(out, '\r')
		case e == 't':
			out = append(out, '\t')
		case e == 'b':
			out = append(out, '\b')
		case e == 'f':
			out = append(out, '\f')
		case e == '(' || e == ')' || e == '\\':
			out = append(out, e)
		case e == '\r':
			if i+1 < len(s.Raw) && s.Raw[i+1] == '\n' {
				i++
			}
		case e == '\n':
			// line continuation
		case e >= '0' && e <= '7':
			v := int(e - '0')
			for k := 0; k < 2 && i+1 < len(s.Raw); k++ {
				d := s.Raw[i+1]
				if d < '0' || d > '7' {
					break
				}
				v = v<<3 + int(d-'0')
				i++
			}
			out = append(out, byte(v))
		default:
			out = append(out, e)
		}
	}
	return out
}

// HexStr is a hexadecimal string. Raw holds the characters between the
// angle brackets as stored.
type HexStr struct{ Raw []byte }

func (HexStr) Type() string { return "hexstring" }
func (h HexStr) WriteTo(buf *bytes.Buffer, _ *security.CryptInfo) error {
	buf.WriteByte('<')
	buf.Write(h.Raw)
	buf.WriteByte('>')
	return nil
}

// Decoded pairs the hex digits, skipping whitespace; an odd count is
// padded with zero.
func (h HexStr) Decoded() []byte {
	nibbles := make([]byte, 0, len(h.Raw))
	for _, c := range h.Raw {
		switch {
		case c >= '0' && c <= '9':
			nibbles = append(nibbles, c-'0')
		case c >= 'a' && c <= 'f':
			nibbles = append(nibbles, c-'a'+10)
		case c >= 'A' && c <= 'F':
			nibbles = append(nibbles, c-'A'+10)
		}
	}
	if len(nibbles)%2 == 1 {
		nibbles = append(nibbles, 0)
	}
	out := make([]byte, 0, len(nibbles)/2)
	for i := 0; i < len(nibbles); i += 2 {
		out = append(out, nibbles[i]<<4|nibbles[i+1])
	}
	return out
}

// Array is a PDF array.
type Array struct{ Items []Object }

func (*Array) Type() string { return "array" }

func (a *Array) Len() int { return len(a.Items) }

func (a *Array) Append(items ...Object) { a.Items = append(a.Items, items...) }

func (a *Array) WriteTo(buf *bytes.Buffer, crypt *security.CryptInfo) error {
	buf.WriteByte('[')
	for i, it := range a.Items {
		if i > 0 {
			buf.WriteByte(' ')
		}
		if err := writeChild(buf, it, crypt); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// Ref is an indirect object reference.
type Ref struct{ ID ObjectID }

func (Ref) Type() string { return "ref" }
func (r Ref) WriteTo(buf *bytes.Buffer, _ *security.CryptInfo) error {
	buf.WriteString(r.ID.String())
	return nil
}

// writeChild emits a value in a container position: a dict or stream
// carrying its own reference is emitted as "N G R", everything else
// inline.
func writeChild(buf *bytes.Buffer, o Object, crypt *security.CryptInfo) error {
	if o == nil {
		buf.WriteString("null")
		return nil
	}
	switch v := o.(type) {
	case *Dict:
		if v.ref != nil {
			buf.WriteString(v.ref.String())
			return nil
		}
	case *Stream:
		if v.ref != nil {
			buf.WriteString(v.ref.String())
			return nil
		}
	}
	return o.WriteTo(buf, crypt)
}

// WriteIndirect emits the full "N G obj … endobj" definition of an
// object under the given id.
func WriteIndirect(buf *bytes.Buffer, id ObjectID, o Object, crypt *security.CryptInfo) error {
	buf.WriteString(id.Header())
	buf.WriteByte('\n')
	if o == nil {
		buf.WriteString("null")
	} else if err := o.WriteTo(buf, crypt); err != nil {
		return err
	}
	buf.WriteString("\nendobj\n")
	return nil
}
