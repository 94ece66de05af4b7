package object

import (
	"bytes"

	"github.com/markpdf/cos/security"
)

// Dict is an insertion-ordered PDF dictionary. Keys are stored without
// the leading slash. Mutations go through setters that raise the edited
// flag and notify the attached observer channel; the struct never
// exposes raw field assignment.
type Dict struct {
	keys  []string
	props map[string]Object

	ref    *ObjectID
	parent *ObjectID
	edited bool
	events chan<- ObjectID
}

func NewDict() *Dict {
	return &Dict{props: make(map[string]Object)}
}

func (d *Dict) Type() string { return "dict" }

// Ref returns the indirect identity of this dict, when it has one.
func (d *Dict) Ref() *ObjectID { return d.ref }

// SetRef binds the dict to an indirect object id. Assigning identity is
// bookkeeping, not an edit.
func (d *Dict) SetRef(id ObjectID) { d.ref = &id }

// Parent returns the non-owning handle to the parent dict's id.
func (d *Dict) Parent() *ObjectID { return d.parent }

func (d *Dict) SetParent(id *ObjectID) { d.parent = id }

// Edited reports whether the dict was mutated after parsing.
func (d *Dict) Edited() bool { return d.edited }

// ClearEdited lowers the dirty flag, typically after the dict has been
// re-serialized.
func (d *Dict) ClearEdited() { d.edited = false }

// Observe attaches the owner's notification channel. Sends never block;
// the edited flag stays authoritative when the owner is not draining.
func (d *Dict) Observe(ch chan<- ObjectID) { d.events = ch }

// MarkEdited raises the dirty flag and notifies the observer.
func (d *Dict) MarkEdited() {
	d.edited = true
	if d.events == nil {
		return
	}
	var id ObjectID
	if d.ref != nil {
		id = *d.ref
	}
	select {
	case d.events <- id:
	default:
	}
}

func (d *Dict) Len() int { return len(d.keys) }

// Keys returns the key list in insertion order.
func (d *Dict) Keys() []string {
	return append([]string(nil), d.keys...)
}

func (d *Dict) Get(key string) (Object, bool) {
	o, ok := d.props[key]
	return o, ok
}

func (d *Dict) Has(key string) bool {
	_, ok := d.props[key]
	return ok
}

// Set replaces the value under key and marks the dict edited. New keys
// append to the insertion order.
func (d *Dict) Set(key string, value Object) {
	d.put(key, value)
	d.MarkEdited()
}

// put stores without touching the dirty flag; used while parsing.
func (d *Dict) put(key string, value Object) {
	if d.props == nil {
		d.props = make(map[string]Object)
	}
	if _, ok := d.props[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.props[key] = value
}

// Delete removes key and marks the dict edited.
func (d *Dict) Delete(key string) {
	if _, ok := d.props[key]; !ok {
		return
	}
	delete(d.props, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	d.MarkEdited()
}

// Typed accessors. Each reports false when the key is absent or the
// value has a different shape.

func (d *Dict) NameValue(key string) (string, bool) {
	if n, ok := d.props[key].(Name); ok {
		return n.V, true
	}
	return "", false
}

func (d *Dict) NumberValue(key string) (float64, bool) {
	if n, ok := d.props[key].(Number); ok {
		return n.V, true
	}
	return 0, false
}

func (d *Dict) IntValue(key string) (int64, bool) {
	if n, ok := d.props[key].(Number); ok {
		return int64(n.V), true
	}
	return 0, false
}

func (d *Dict) BoolValue(key string) (bool, bool) {
	if b, ok := d.props[key].(Bool); ok {
		return b.V, true
	}
	return false, false
}

func (d *Dict) ArrayValue(key string) (*Array, bool) {
	if a, ok := d.props[key].(*Array); ok {
		return a, true
	}
	return nil, false
}

func (d *Dict) DictValue(key string) (*Dict, bool) {
	if v, ok := d.props[key].(*Dict); ok {
		return v, true
	}
	return nil, false
}

func (d *Dict) RefValue(key string) (ObjectID, bool) {
	if r, ok := d.props[key].(Ref); ok {
		return r.ID, true
	}
	return ObjectID{}, false
}

// StringValue returns the decoded bytes of a literal or hex string.
func (d *Dict) StringValue(key string) ([]byte, bool) {
	switch s := d.props[key].(type) {
	case StringLit:
		return s.Decoded(), true
	case HexStr:
		return s.Decoded(), true
	}
	return nil, false
}

func (d *Dict) WriteTo(buf *bytes.Buffer, crypt *security.CryptInfo) error {
	buf.WriteString("<<")
	for _, k := range d.keys {
		buf.WriteByte('/')
		buf.WriteString(k)
		buf.WriteByte(' ')
		if err := writeChild(buf, d.props[k], crypt); err != nil {
			return err
		}
	}
	buf.WriteString(">>")
	return nil
}
