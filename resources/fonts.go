package resources

import (
	"bytes"

	"github.com/markpdf/cos/object"
	"github.com/markpdf/cos/observability"
	"github.com/markpdf/cos/security"
	"github.com/markpdf/cos/xref"
)

// FontDict is a typed /Font child. It stops at the dictionary level;
// glyph data stays untouched behind the descriptor reference.
type FontDict struct {
	object.Dict

	TypeName   string
	Subtype    string
	BaseFont   string
	Encoding   string
	FirstChar  *int64
	LastChar   *int64
	Widths     []float64
	Descriptor *object.ObjectID
}

// ParseFont materializes a font dict from an indirect object. A missing
// /Subtype is a parse failure: the result is nil and the cause logged
// once.
func ParseFont(info *xref.ParseInfo, log observability.Logger) *FontDict {
	if log == nil {
		log = observability.NopLogger{}
	}
	obj, err := object.ParseIndirect(info)
	if err != nil {
		log.Warn("font parse failed", observability.Error("err", err))
		return nil
	}
	d, ok := obj.(*object.Dict)
	if !ok {
		log.Warn("font is not a dict", observability.Uint32("object", info.Num))
		return nil
	}
	f := &FontDict{}
	for _, key := range d.Keys() {
		val, _ := d.Get(key)
		switch key {
		case "Type":
			if n, ok := val.(object.Name); ok {
				f.TypeName = n.V
			}
		case "Subtype":
			if n, ok := val.(object.Name); ok {
				f.Subtype = n.V
			}
		case "BaseFont":
			if n, ok := val.(object.Name); ok {
				f.BaseFont = n.V
			}
		case "Encoding":
			if n, ok := val.(object.Name); ok {
				f.Encoding = n.V
			} else {
				f.Dict.Set(key, val)
				f.ClearEdited()
			}
		case "FirstChar":
			f.FirstChar = intOf(val)
		case "LastChar":
			f.LastChar = intOf(val)
		case "Widths":
			if arr, ok := val.(*object.Array); ok {
				for _, it := range arr.Items {
					if n, ok := it.(object.Number); ok {
						f.Widths = append(f.Widths, n.V)
					}
				}
			}
		case "FontDescriptor":
			if r, ok := val.(object.Ref); ok {
				id := r.ID
				f.Descriptor = &id
			}
		default:
			f.Dict.Set(key, val)
			f.ClearEdited()
		}
	}
	if f.Subtype == "" {
		log.Warn("font missing /Subtype", observability.Uint32("object", info.Num))
		return nil
	}
	f.SetRef(object.ObjectID{Num: info.Num, Gen: info.Gen})
	return f
}

// WriteTo emits the recognized fields in declaration order, then the
// rest.
func (f *FontDict) WriteTo(buf *bytes.Buffer, crypt *security.CryptInfo) error {
	buf.WriteString("<<")
	writeName(buf, "Type", f.TypeName)
	writeName(buf, "Subtype", f.Subtype)
	writeName(buf, "BaseFont", f.BaseFont)
	writeName(buf, "Encoding", f.Encoding)
	writeInt(buf, "FirstChar", f.FirstChar)
	writeInt(buf, "LastChar", f.LastChar)
	if len(f.Widths) > 0 {
		buf.WriteString("/Widths [")
		for i, w := range f.Widths {
			if i > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(object.FormatNumber(w))
		}
		buf.WriteString("] ")
	}
	if f.Descriptor != nil {
		buf.WriteString("/FontDescriptor ")
		buf.WriteString(f.Descriptor.String())
		buf.WriteByte(' ')
	}
	for _, k := range f.Dict.Keys() {
		v, _ := f.Dict.Get(k)
		buf.WriteByte('/')
		buf.WriteString(k)
		buf.WriteByte(' ')
		b, err := object.ToBytes(v, crypt)
		if err != nil {
			return err
		}
		buf.Write(b)
		buf.WriteByte(' ')
	}
	buf.WriteString(">>")
	return nil
}

func writeName(buf *bytes.Buffer, key, v string) {
	if v == "" {
		return
	}
	buf.WriteByte('/')
	buf.WriteString(key)
	buf.WriteString(" /")
	buf.WriteString(v)
	buf.WriteByte(' ')
}
