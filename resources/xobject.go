package resources

import (
	"context"

	"github.com/markpdf/cos/object"
	"github.com/markpdf/cos/observability"
	"github.com/markpdf/cos/xref"
)

// XFormStream is a form XObject: a reusable nested content stream with
// its own coordinate frame and resources.
type XFormStream struct {
	*object.Stream

	BBox      []float64
	Matrix    []float64
	Resources *ResourceDict
}

// ImageStream is an image XObject. Decoding is the host's business: the
// optional Render callback defers pixel production to it and is never
// awaited by the core.
type ImageStream struct {
	*object.Stream

	Width            int64
	Height           int64
	BitsPerComponent int64
	ColorSpaceName   string
	ImageMask        bool

	Render func(ctx context.Context) ([]byte, error)
}

// ParseXForm materializes a form XObject. Returns nil when the object
// is not a stream.
func ParseXForm(info *xref.ParseInfo, log observability.Logger) *XFormStream {
	if log == nil {
		log = observability.NopLogger{}
	}
	s := streamOf(info, log)
	if s == nil {
		return nil
	}
	x := &XFormStream{Stream: s}
	if arr, ok := s.ArrayValue("BBox"); ok {
		x.BBox = numberSlice(arr)
	}
	if arr, ok := s.ArrayValue("Matrix"); ok {
		x.Matrix = numberSlice(arr)
	}
	if res, ok := s.DictValue("Resources"); ok {
		nested := newResourceDict(log)
		copyRawMaps(nested, res)
		x.Resources = nested
	}
	return x
}

// ParseImage materializes an image XObject. Returns nil when the object
// is not a stream.
func ParseImage(info *xref.ParseInfo, log observability.Logger) *ImageStream {
	if log == nil {
		log = observability.NopLogger{}
	}
	s := streamOf(info, log)
	if s == nil {
		return nil
	}
	img := &ImageStream{Stream: s}
	img.Width, _ = s.IntValue("Width")
	img.Height, _ = s.IntValue("Height")
	img.BitsPerComponent, _ = s.IntValue("BitsPerComponent")
	if n, ok := s.NameValue("ColorSpace"); ok {
		img.ColorSpaceName = n
	}
	img.ImageMask, _ = s.BoolValue("ImageMask")
	return img
}

func streamOf(info *xref.ParseInfo, log observability.Logger) *object.Stream {
	obj, err := object.ParseIndirect(info)
	if err != nil {
		log.Warn("xobject parse failed", observability.Error("err", err))
		return nil
	}
	s, ok := obj.(*object.Stream)
	if !ok {
		log.Warn("xobject is not a stream", observability.Uint32("object", info.Num))
		return nil
	}
	return s
}

func numberSlice(arr *object.Array) []float64 {
	out := make([]float64, 0, len(arr.Items))
	for _, it := range arr.Items {
		if n, ok := it.(object.Number); ok {
			out = append(out, n.V)
		}
	}
	return out
}

// copyRawMaps lifts the category sub-maps of an inline resources dict
// into a nested ResourceDict without resolving them; a form's resources
// resolve on demand.
func copyRawMaps(rd *ResourceDict, d *object.Dict) {
	for _, key := range d.Keys() {
		val, _ := d.Get(key)
		sub, _ := val.(*object.Dict)
		switch key {
		case "ExtGState":
			rd.extGState = sub
		case "ColorSpace":
			rd.colorSpace = sub
		case "Pattern":
			rd.pattern = sub
		case "Shading":
			rd.shading = sub
		case "XObject":
			rd.xobject = sub
		case "Font":
			rd.font = sub
		case "Properties":
			rd.properties = sub
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
}
