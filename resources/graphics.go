package resources

import (
	"bytes"

	"github.com/markpdf/cos/object"
	"github.com/markpdf/cos/observability"
	"github.com/markpdf/cos/security"
	"github.com/markpdf/cos/xref"
)

// GraphicsStateDict is a typed /ExtGState child. Recognized parameters
// live in declared fields; everything else rides in the embedded dict
// and re-emits after them.
type GraphicsStateDict struct {
	object.Dict

	TypeName  string
	LineWidth *float64
	LineCap   *int64
	LineJoin  *int64
	MiterLim  *float64
	BlendMode string
	StrokeCA  *float64
	FillCA    *float64
	AIS       *bool
}

// ParseGraphicsState materializes a graphics state from an indirect
// object. Returns nil when the object is not a dictionary.
func ParseGraphicsState(info *xref.ParseInfo, log observability.Logger) *GraphicsStateDict {
	if log == nil {
		log = observability.NopLogger{}
	}
	obj, err := object.ParseIndirect(info)
	if err != nil {
		log.Warn("graphics state parse failed", observability.Error("err", err))
		return nil
	}
	d, ok := obj.(*object.Dict)
	if !ok {
		log.Warn("graphics state is not a dict", observability.Uint32("object", info.Num))
		return nil
	}
	gs := graphicsStateFromDict(d)
	gs.SetRef(object.ObjectID{Num: info.Num, Gen: info.Gen})
	return gs
}

func graphicsStateFromDict(d *object.Dict) *GraphicsStateDict {
	gs := &GraphicsStateDict{}
	for _, key := range d.Keys() {
		val, _ := d.Get(key)
		switch key {
		case "Type":
			if n, ok := val.(object.Name); ok {
				gs.TypeName = n.V
			}
		case "LW":
			gs.LineWidth = floatOf(val)
		case "LC":
			gs.LineCap = intOf(val)
		case "LJ":
			gs.LineJoin = intOf(val)
		case "ML":
			gs.MiterLim = floatOf(val)
		case "BM":
			if n, ok := val.(object.Name); ok {
				gs.BlendMode = n.V
			}
		case "CA":
			gs.StrokeCA = floatOf(val)
		case "ca":
			gs.FillCA = floatOf(val)
		case "AIS":
			if b, ok := val.(object.Bool); ok {
				v := b.V
				gs.AIS = &v
			}
		default:
			gs.Dict.Set(key, val)
			gs.ClearEdited()
		}
	}
	if r := d.Ref(); r != nil {
		gs.SetRef(*r)
	}
	return gs
}

func floatOf(o object.Object) *float64 {
	if n, ok := o.(object.Number); ok {
		v := n.V
		return &v
	}
	return nil
}

func intOf(o object.Object) *int64 {
	if n, ok := o.(object.Number); ok {
		v := int64(n.V)
		return &v
	}
	return nil
}

// WriteTo emits the recognized parameters in declaration order, then
// the unrecognized ones.
func (gs *GraphicsStateDict) WriteTo(buf *bytes.Buffer, crypt *security.CryptInfo) error {
	buf.WriteString("<<")
	if gs.TypeName != "" {
		buf.WriteString("/Type /")
		buf.WriteString(gs.TypeName)
		buf.WriteByte(' ')
	}
	writeNum(buf, "LW", gs.LineWidth)
	writeInt(buf, "LC", gs.LineCap)
	writeInt(buf, "LJ", gs.LineJoin)
	writeNum(buf, "ML", gs.MiterLim)
	if gs.BlendMode != "" {
		buf.WriteString("/BM /")
		buf.WriteString(gs.BlendMode)
		buf.WriteByte(' ')
	}
	writeNum(buf, "CA", gs.StrokeCA)
	writeNum(buf, "ca", gs.FillCA)
	if gs.AIS != nil {
		buf.WriteString("/AIS ")
		if *gs.AIS {
			buf.WriteString("true ")
		} else {
			buf.WriteString("false ")
		}
	}
	for _, k := range gs.Dict.Keys() {
		v, _ := gs.Dict.Get(k)
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

func writeNum(buf *bytes.Buffer, key string, v *float64) {
	if v == nil {
		return
	}
	buf.WriteByte('/')
	buf.WriteString(key)
	buf.WriteByte(' ')
	buf.WriteString(object.FormatNumber(*v))
	buf.WriteByte(' ')
}

func writeInt(buf *bytes.Buffer, key string, v *int64) {
	if v == nil {
		return
	}
	buf.WriteByte('/')
	buf.WriteString(key)
	buf.WriteByte(' ')
	buf.WriteString(object.FormatNumber(float64(*v)))
	buf.WriteByte(' ')
}

// SetStrokeAlpha replaces /CA and marks the state edited.
func (gs *GraphicsStateDict) SetStrokeAlpha(v float64) {
	gs.StrokeCA = &v
	gs.MarkEdited()
}

// SetFillAlpha replaces /ca and marks the state edited.
func (gs *GraphicsStateDict) SetFillAlpha(v float64) {
	gs.FillCA = &v
	gs.MarkEdited()
}
