package object

import (
	"errors"
	"fmt"

	"github.com/markpdf/cos/bytescan"
	"github.com/markpdf/cos/lexer"
	"github.com/markpdf/cos/observability"
	"github.com/markpdf/cos/recovery"
	"github.com/markpdf/cos/values"
	"github.com/markpdf/cos/xref"
)

// ErrParseFailure is the top-level marker for a value that could not be
// decoded. Entry points log it once and return nil, so partially valid
// documents still open.
var ErrParseFailure = errors.New("object: parse failure")

// Ctx bundles the readers a parse runs against. It holds no cursor;
// positions are explicit.
type Ctx struct {
	R       *bytescan.Reader
	Lx      *lexer.Lexer
	Vp      *values.Parser
	Resolve xref.Index
	Log     observability.Logger
	Rec     recovery.Strategy
}

// NewCtx builds a parse context over r. Resolve may be nil when no
// indirect materialization is wanted.
func NewCtx(r *bytescan.Reader, resolve xref.Index, log observability.Logger) *Ctx {
	if log == nil {
		log = observability.NopLogger{}
	}
	lx := lexer.New(r)
	return &Ctx{
		R:       r,
		Lx:      lx,
		Vp:      values.New(lx),
		Resolve: resolve,
		Log:     log,
		Rec:     recovery.Lenient(),
	}
}

// ParseValueAt decodes the value at i and returns it with the inclusive
// index of its last byte. Returns (nil, -1) when nothing parses.
func (c *Ctx) ParseValueAt(i int) (Object, int) {
	i = c.Lx.SkipEmptyBytes(i)
	if i == -1 {
		return nil, -1
	}
	switch c.Lx.ValueTypeAt(i, false) {
	case lexer.Name:
		n := c.Vp.ParseNameAt(i, false, false)
		if n == nil {
			return nil, -1
		}
		return Name{V: n.Value}, n.End
	case lexer.Reference:
		return c.parseRefAt(i)
	case lexer.Number:
		n := c.Vp.ParseNumberAt(i, true, false)
		if n == nil {
			return nil, -1
		}
		return Number{V: n.Value}, n.End
	case lexer.Boolean:
		b := c.Vp.ParseBoolAt(i, false)
		if b == nil {
			return nil, -1
		}
		return Bool{V: b.Value}, b.End
	case lexer.StringLiteral:
		b := c.Lx.LiteralBoundsAt(i)
		if b == nil {
			return nil, -1
		}
		var raw []byte
		if b.HasContent {
			raw = c.R.Range(b.ContentStart, b.ContentEnd)
		}
		return StringLit{Raw: raw}, b.End
	case lexer.HexString:
		b := c.Lx.HexBoundsAt(i)
		if b == nil {
			return nil, -1
		}
		var raw []byte
		if b.HasContent {
			raw = c.R.Range(b.ContentStart, b.ContentEnd)
		}
		return HexStr{Raw: raw}, b.End
	case lexer.Array:
		return c.parseArrayAt(i)
	case lexer.Dictionary:
		d, end := c.ParseDictAt(i)
		if d == nil {
			return nil, -1
		}
		return d, end
	default:
		// "null" and other keywords.
		if s := c.Vp.ParseStringAt(i, false); s != nil && string(s.Value) == "null" {
			return Null{}, s.End
		}
		return nil, -1
	}
}

// parseRefAt decodes "N G R" starting at the first digit.
func (c *Ctx) parseRefAt(i int) (Object, int) {
	num := c.Vp.ParseNumberAt(i, false, false)
	if num == nil {
		return nil, -1
	}
	gen := c.Vp.ParseNumberAt(num.End+1, false, true)
	if gen == nil {
		return nil, -1
	}
	at := c.Lx.SkipEmptyBytes(gen.End + 1)
	if at == -1 || c.R.ByteAt(at) != 'R' {
		return nil, -1
	}
	return Ref{ID: ObjectID{Num: uint32(num.Value), Gen: uint16(gen.Value)}}, at
}

func (c *Ctx) parseArrayAt(i int) (Object, int) {
	b := c.Lx.ArrayBoundsAt(i)
	if b == nil {
		return nil, -1
	}
	arr := &Array{}
	if !b.HasContent {
		return arr, b.End
	}
	at := b.ContentStart
	for at != -1 && at <= b.ContentEnd {
		item, end := c.ParseValueAt(at)
		if item == nil || end > b.ContentEnd {
			break
		}
		arr.Items = append(arr.Items, item)
		at = end + 1
	}
	return arr, b.End
}

// ParseDictAt decodes the dictionary whose "<<" sits at i.
func (c *Ctx) ParseDictAt(i int) (*Dict, int) {
	b := c.Lx.DictBoundsAt(i)
	if b == nil {
		return nil, -1
	}
	d := NewDict()
	if b.HasContent {
		c.parseProps(d, b.ContentStart, b.ContentEnd)
	}
	return d, b.End
}

// ParseDictInterior decodes dict properties from a bare interior range,
// as handed out for narrowed indirect-object content.
func (c *Ctx) ParseDictInterior(cs, ce int) *Dict {
	d := NewDict()
	c.parseProps(d, cs, ce)
	return d
}

// parseProps walks the interior, reading "/Key value" pairs. Entries
// whose value fails to parse are dropped one by one under the lenient
// strategy; the strict strategy surfaces the failure as an empty dict.
func (c *Ctx) parseProps(d *Dict, cs, ce int) {
	at := cs
	for at != -1 && at <= ce {
		at = c.Lx.SkipToNextName(at, ce)
		if at == -1 {
			return
		}
		key := c.Vp.ParseNameAt(at, false, false)
		if key == nil {
			return
		}
		val, end := c.ParseValueAt(key.End + 1)
		if val == nil || end > ce {
			err := fmt.Errorf("%w: value of /%s", ErrParseFailure, key.Value)
			if c.Rec != nil && c.Rec.OnError(err, recovery.Location{ByteOffset: at, Component: "object"}) == recovery.ActionFail {
				d.keys, d.props = nil, make(map[string]Object)
				return
			}
			c.Log.Warn("dict property dropped", observability.String("key", key.Value))
			at = key.End + 1
			continue
		}
		d.put(key.Value, val)
		at = end + 1
	}
}

// RawValueAt captures the byte range of the value at i without decoding
// it, for properties that must round-trip verbatim.
func (c *Ctx) RawValueAt(i int) (start, end int) {
	i = c.Lx.SkipEmptyBytes(i)
	if i == -1 {
		return -1, -1
	}
	switch c.Lx.ValueTypeAt(i, false) {
	case lexer.Dictionary:
		if b := c.Lx.DictBoundsAt(i); b != nil {
			return i, b.End
		}
	case lexer.Array:
		if b := c.Lx.ArrayBoundsAt(i); b != nil {
			return i, b.End
		}
	case lexer.StringLiteral:
		if b := c.Lx.LiteralBoundsAt(i); b != nil {
			return i, b.End
		}
	case lexer.HexString:
		if b := c.Lx.HexBoundsAt(i); b != nil {
			return i, b.End
		}
	case lexer.Reference:
		if end := c.Lx.ReferenceEndAt(i); end != -1 {
			return i, end
		}
	case lexer.Name, lexer.Number, lexer.Boolean:
		if s := c.Vp.ParseStringAt(i+boolOrNameOffset(c, i), false); s != nil {
			return i, s.End
		}
	}
	return -1, -1
}

func boolOrNameOffset(c *Ctx, i int) int {
	if c.R.ByteAt(i) == '/' {
		return 1
	}
	return 0
}

// ParseIndirect materializes the object described by info: a bare
// value, a dictionary, or a stream. Streams resolve /Length through the
// index (scanning for endstream when it dangles) and decrypt the
// payload with the carried credentials.
func ParseIndirect(info *xref.ParseInfo) (Object, error) {
	if info == nil || info.Bounds == nil {
		return nil, ErrParseFailure
	}
	c := NewCtx(info.Parser, info.Resolve, nil)
	b := info.Bounds
	if !b.HasContent {
		return Null{}, nil
	}
	cs, ce := b.ContentStart, b.ContentEnd

	if c.R.ByteAt(cs) == '<' && c.R.ByteAt(cs+1) == '<' {
		db := c.Lx.DictBoundsAt(cs)
		if db == nil {
			return nil, ErrParseFailure
		}
		d, _ := c.ParseDictAt(cs)
		if d == nil {
			return nil, ErrParseFailure
		}
		d.SetRef(ObjectID{Num: info.Num, Gen: info.Gen})
		length := resolveStreamLength(d, info.Resolve)
		pb := c.Lx.StreamPayloadBounds(db.End, b.End, length)
		if pb == nil && length >= 0 {
			pb = c.Lx.StreamPayloadBounds(db.End, b.End, -1)
		}
		if pb == nil {
			return d, nil
		}
		data := c.R.Range(pb.Start, pb.End)
		if info.Crypt != nil {
			data = info.Crypt.DecryptBytes(info.Num, info.Gen, data)
		}
		s := NewStream(d, data)
		return s, nil
	}

	if interiorIsDict(c.R, cs) {
		d := c.ParseDictInterior(cs, ce)
		d.SetRef(ObjectID{Num: info.Num, Gen: info.Gen})
		return d, nil
	}

	v, _ := c.ParseValueAt(cs)
	if v == nil {
		return nil, ErrParseFailure
	}
	if d, ok := v.(*Dict); ok {
		d.SetRef(ObjectID{Num: info.Num, Gen: info.Gen})
	}
	return v, nil
}

// interiorIsDict reports whether the content range was narrowed out of
// a "<< … >>" frame, which is detectable from the bytes preceding it.
func interiorIsDict(r *bytescan.Reader, cs int) bool {
	at := r.FindNonSpaceIndex(bytescan.Backward, cs-1)
	return at > 0 && r.ByteAt(at) == '<' && r.ByteAt(at-1) == '<'
}

// resolveStreamLength reads /Length, following one indirect hop.
// Returns -1 when the length is unknown.
func resolveStreamLength(d *Dict, resolve xref.Index) int {
	if v, ok := d.IntValue("Length"); ok {
		return int(v)
	}
	ref, ok := d.RefValue("Length")
	if !ok || resolve == nil {
		return -1
	}
	info := resolve.Resolve(ref.Num)
	if info == nil || info.Bounds == nil || !info.Bounds.HasContent {
		return -1
	}
	c := NewCtx(info.Parser, nil, nil)
	n := c.Vp.ParseNumberAt(info.Bounds.ContentStart, false, true)
	if n == nil {
		return -1
	}
	return int(n.Value)
}
