// Package resources implements the page resource dictionary: raw
// name-to-reference sub-maps plus lazily resolved, typed children for
// graphics states, fonts and XObjects. Resolved maps key their entries
// with the category prefix so raw names never collide across
// categories; the prefix is stripped again on emission.
package resources

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/markpdf/cos/bytescan"
	"github.com/markpdf/cos/object"
	"github.com/markpdf/cos/observability"
	"github.com/markpdf/cos/security"
	"github.com/markpdf/cos/xref"
)

// Category prefixes used as resolved-map key prefixes. Iterators expose
// keys in this form; emission strips the prefix to recover the PDF name.
const (
	PrefixExtGState = "/ExtGState"
	PrefixFont      = "/Font"
	PrefixXObject   = "/XObject"
)

var subtypeForm = []byte("/Form")

// ResourceDict owns the raw sub-maps of a /Resources dictionary and the
// resolved typed children derived from them.
type ResourceDict struct {
	object.Dict // unknown properties, identity, change tracking

	extGState  *object.Dict
	colorSpace *object.Dict
	pattern    *object.Dict
	shading    *object.Dict
	xobject    *object.Dict
	font       *object.Dict
	properties *object.Dict
	procSet    []string

	gstates  orderedEntries[*GraphicsStateDict]
	fonts    orderedEntries[*FontDict]
	xobjects orderedEntries[object.Object]

	log observability.Logger
}

// orderedEntries is an insertion-ordered resolved map.
type orderedEntries[T any] struct {
	keys []string
	vals map[string]T
}

func (m *orderedEntries[T]) reset() {
	m.keys = nil
	m.vals = make(map[string]T)
}

func (m *orderedEntries[T]) put(key string, v T) {
	if m.vals == nil {
		m.vals = make(map[string]T)
	}
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
}

func (m *orderedEntries[T]) get(key string) (T, bool) {
	v, ok := m.vals[key]
	return v, ok
}

func (m *orderedEntries[T]) each(fn func(key string, v T)) {
	for _, k := range m.keys {
		fn(k, m.vals[k])
	}
}

// Parse materializes the resource dictionary described by info and,
// when a resolver is carried, fills the resolved maps. Returns nil on
// parse failure; the cause is logged once.
func Parse(info *xref.ParseInfo, log observability.Logger) *ResourceDict {
	if log == nil {
		log = observability.NopLogger{}
	}
	if info == nil || info.Bounds == nil || !info.Bounds.HasContent {
		return nil
	}
	c := object.NewCtx(info.Parser, info.Resolve, log)
	rd := parseInterior(c, info.Bounds.ContentStart, info.Bounds.ContentEnd, log)
	if rd == nil {
		return nil
	}
	rd.SetRef(object.ObjectID{Num: info.Num, Gen: info.Gen})
	if info.Resolve != nil {
		rd.FillMaps(info.Resolve)
	}
	return rd
}

// ParseAt materializes an inline resource dictionary whose "<<" sits at
// i, filling resolved maps when resolve is non-nil.
func ParseAt(c *object.Ctx, i int, resolve xref.Index, log observability.Logger) *ResourceDict {
	if log == nil {
		log = observability.NopLogger{}
	}
	b := c.Lx.DictBoundsAt(i)
	if b == nil {
		log.Warn("resource dict bounds not found", observability.Int("offset", i))
		return nil
	}
	if !b.HasContent {
		return newResourceDict(log)
	}
	rd := parseInterior(c, b.ContentStart, b.ContentEnd, log)
	if rd != nil && resolve != nil {
		rd.FillMaps(resolve)
	}
	return rd
}

func newResourceDict(log observability.Logger) *ResourceDict {
	rd := &ResourceDict{log: log}
	rd.gstates.reset()
	rd.fonts.reset()
	rd.xobjects.reset()
	return rd
}

func parseInterior(c *object.Ctx, cs, ce int, log observability.Logger) *ResourceDict {
	rd := newResourceDict(log)
	tmp := c.ParseDictInterior(cs, ce)
	if tmp == nil {
		return nil
	}
	for _, key := range tmp.Keys() {
		val, _ := tmp.Get(key)
		switch key {
		case "ExtGState":
			rd.extGState = subMap(c, val)
		case "ColorSpace":
			rd.colorSpace = subMap(c, val)
		case "Pattern":
			rd.pattern = subMap(c, val)
		case "Shading":
			rd.shading = subMap(c, val)
		case "XObject":
			rd.xobject = subMap(c, val)
		case "Font":
			rd.font = subMap(c, val)
		case "Properties":
			rd.properties = subMap(c, val)
		case "ProcSet":
			if arr, ok := val.(*object.Array); ok {
				for _, it := range arr.Items {
					if n, ok := it.(object.Name); ok {
						rd.procSet = append(rd.procSet, n.V)
					}
				}
			}
		default:
			rd.setExtra(key, val)
		}
	}
	return rd
}

// subMap normalizes a category value to a dict, following one indirect
// hop when the sub-map itself is a reference.
func subMap(c *object.Ctx, val object.Object) *object.Dict {
	switch v := val.(type) {
	case *object.Dict:
		return v
	case object.Ref:
		if c.Resolve == nil {
			return nil
		}
		info := c.Resolve.Resolve(v.ID.Num)
		if info == nil {
			return nil
		}
		obj, err := object.ParseIndirect(info)
		if err != nil {
			return nil
		}
		if d, ok := obj.(*object.Dict); ok {
			return d
		}
	}
	return nil
}

// setExtra stores an unknown property on the embedded dict without
// raising the dirty flag semantics of an edit.
func (rd *ResourceDict) setExtra(key string, val object.Object) {
	edited := rd.Edited()
	rd.Set(key, val)
	if !edited {
		rd.ClearEdited()
	}
}

// FillMaps clears the resolved maps and repopulates them from the raw
// sub-maps through the resolver. Dangling references are dropped with a
// warning; siblings survive.
func (rd *ResourceDict) FillMaps(resolve xref.Index) {
	rd.gstates.reset()
	rd.fonts.reset()
	rd.xobjects.reset()

	if rd.extGState != nil {
		for _, name := range rd.extGState.Keys() {
			val, _ := rd.extGState.Get(name)
			switch v := val.(type) {
			case object.Ref:
				info := resolve.Resolve(v.ID.Num)
				if info == nil {
					rd.dropEntry("ExtGState", name)
					continue
				}
				gs := ParseGraphicsState(info, rd.log)
				if gs == nil {
					continue
				}
				rd.gstates.put(PrefixExtGState+name, gs)
			case *object.Dict:
				// Inline graphics states are legal here.
				rd.gstates.put(PrefixExtGState+name, graphicsStateFromDict(v))
			}
		}
	}

	if rd.font != nil {
		for _, name := range rd.font.Keys() {
			ref, ok := rd.font.RefValue(name)
			if !ok {
				continue
			}
			info := resolve.Resolve(ref.Num)
			if info == nil {
				rd.dropEntry("Font", name)
				continue
			}
			f := ParseFont(info, rd.log)
			if f == nil {
				continue
			}
			rd.fonts.put(PrefixFont+name, f)
		}
	}

	if rd.xobject != nil {
		for _, name := range rd.xobject.Keys() {
			ref, ok := rd.xobject.RefValue(name)
			if !ok {
				continue
			}
			info := resolve.Resolve(ref.Num)
			if info == nil {
				rd.dropEntry("XObject", name)
				continue
			}
			var child object.Object
			if isFormXObject(info) {
				child = ParseXForm(info, rd.log)
			} else {
				child = ParseImage(info, rd.log)
			}
			if child == nil {
				continue
			}
			rd.xobjects.put(PrefixXObject+name, child)
		}
	}
}

func (rd *ResourceDict) dropEntry(category, name string) {
	rd.log.Warn("dangling resource reference dropped",
		observability.String("category", category),
		observability.String("name", name))
}

// isFormXObject discriminates form from image by a closed /Form match
// inside the child's byte range.
func isFormXObject(info *xref.ParseInfo) bool {
	b := info.Parser.FindSubarrayIndex(subtypeForm, bytescan.SearchOptions{
		Dir:        bytescan.Forward,
		MinIndex:   info.Bounds.Start,
		MaxIndex:   info.Bounds.End,
		ClosedOnly: true,
	})
	return b != nil
}

// GetGraphicsState looks up a resolved graphics state by its raw name.
func (rd *ResourceDict) GetGraphicsState(name string) (*GraphicsStateDict, bool) {
	return rd.gstates.get(prefixed(PrefixExtGState, name))
}

// GetFont looks up a resolved font by its raw name.
func (rd *ResourceDict) GetFont(name string) (*FontDict, bool) {
	return rd.fonts.get(prefixed(PrefixFont, name))
}

// GetXObject looks up a resolved XObject by its raw name. The result is
// an *XFormStream or *ImageStream.
func (rd *ResourceDict) GetXObject(name string) (object.Object, bool) {
	return rd.xobjects.get(prefixed(PrefixXObject, name))
}

// SetGraphicsState inserts under the prefixed key and marks the dict
// edited.
func (rd *ResourceDict) SetGraphicsState(name string, gs *GraphicsStateDict) {
	rd.gstates.put(prefixed(PrefixExtGState, name), gs)
	rd.MarkEdited()
}

func (rd *ResourceDict) SetFont(name string, f *FontDict) {
	rd.fonts.put(prefixed(PrefixFont, name), f)
	rd.MarkEdited()
}

func (rd *ResourceDict) SetXObject(name string, x object.Object) {
	rd.xobjects.put(prefixed(PrefixXObject, name), x)
	rd.MarkEdited()
}

// EachGraphicsState visits resolved graphics states in insertion order;
// keys carry the category prefix.
func (rd *ResourceDict) EachGraphicsState(fn func(key string, gs *GraphicsStateDict)) {
	rd.gstates.each(fn)
}

func (rd *ResourceDict) EachFont(fn func(key string, f *FontDict)) {
	rd.fonts.each(fn)
}

func (rd *ResourceDict) EachXObject(fn func(key string, x object.Object)) {
	rd.xobjects.each(fn)
}

// ProcSet returns the procedure-set names.
func (rd *ResourceDict) ProcSet() []string {
	return append([]string(nil), rd.procSet...)
}

func prefixed(prefix, name string) string {
	if strings.HasPrefix(name, prefix) {
		return name
	}
	return prefix + name
}

// WriteTo serializes the resource dictionary in strict category order:
// ExtGState, XObject, ColorSpace, Pattern, Shading, Font, Properties,
// ProcSet, then unknown properties. Resolved-map entries are emitted
// under their raw names; an XObject child without an indirect reference
// aborts the emission.
func (rd *ResourceDict) WriteTo(buf *bytes.Buffer, crypt *security.CryptInfo) error {
	buf.WriteString("<<")

	if len(rd.gstates.keys) > 0 {
		buf.WriteString("/ExtGState <<")
		var werr error
		rd.gstates.each(func(key string, gs *GraphicsStateDict) {
			if werr != nil {
				return
			}
			buf.WriteByte('/')
			buf.WriteString(strings.TrimPrefix(key, PrefixExtGState))
			buf.WriteByte(' ')
			werr = gs.WriteTo(buf, crypt)
		})
		if werr != nil {
			return werr
		}
		buf.WriteString(">>")
	} else if err := rd.writeRawMap(buf, "ExtGState", rd.extGState, crypt); err != nil {
		return err
	}

	if len(rd.xobjects.keys) > 0 {
		buf.WriteString("/XObject <<")
		var werr error
		rd.xobjects.each(func(key string, x object.Object) {
			if werr != nil {
				return
			}
			ref := xobjectRef(x)
			if ref == nil {
				werr = fmt.Errorf("%w: XObject %s", object.ErrMissingRef, key)
				return
			}
			buf.WriteByte('/')
			buf.WriteString(strings.TrimPrefix(key, PrefixXObject))
			buf.WriteByte(' ')
			buf.WriteString(ref.String())
		})
		if werr != nil {
			return werr
		}
		buf.WriteString(">>")
	} else if err := rd.writeRawMap(buf, "XObject", rd.xobject, crypt); err != nil {
		return err
	}

	for _, raw := range []struct {
		name string
		dict *object.Dict
	}{
		{"ColorSpace", rd.colorSpace},
		{"Pattern", rd.pattern},
		{"Shading", rd.shading},
		{"Font", rd.font},
		{"Properties", rd.properties},
	} {
		if err := rd.writeRawMap(buf, raw.name, raw.dict, crypt); err != nil {
			return err
		}
	}

	if len(rd.procSet) > 0 {
		buf.WriteString("/ProcSet [")
		for i, n := range rd.procSet {
			if i > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteByte('/')
			buf.WriteString(n)
		}
		buf.WriteByte(']')
	}

	for _, k := range rd.Dict.Keys() {
		v, _ := rd.Dict.Get(k)
		buf.WriteByte('/')
		buf.WriteString(k)
		buf.WriteByte(' ')
		b, err := object.ToBytes(v, crypt)
		if err != nil {
			return err
		}
		buf.Write(b)
	}

	buf.WriteString(">>")
	return nil
}

func (rd *ResourceDict) writeRawMap(buf *bytes.Buffer, name string, d *object.Dict, crypt *security.CryptInfo) error {
	if d == nil || d.Len() == 0 {
		return nil
	}
	buf.WriteByte('/')
	buf.WriteString(name)
	buf.WriteByte(' ')
	return d.WriteTo(buf, crypt)
}

func xobjectRef(x object.Object) *object.ObjectID {
	switch v := x.(type) {
	case *XFormStream:
		return v.Ref()
	case *ImageStream:
		return v.Ref()
	case *object.Stream:
		return v.Ref()
	case *object.Dict:
		return v.Ref()
	}
	return nil
}
