package resources

import (
	"fmt"
	"strings"
	"testing"

	"github.com/markpdf/cos/bytescan"
	"github.com/markpdf/cos/lexer"
	"github.com/markpdf/cos/object"
	"github.com/markpdf/cos/observability"
	"github.com/markpdf/cos/xref"
)

// fakeResolver serves indirect objects from standalone buffers, one per
// object number.
type fakeResolver struct {
	infos map[uint32]*xref.ParseInfo
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{infos: make(map[uint32]*xref.ParseInfo)}
}

func (f *fakeResolver) add(t *testing.T, num uint32, body string) {
	t.Helper()
	data := fmt.Sprintf("%d 0 obj %s endobj", num, body)
	r, err := bytescan.NewReader([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lx := lexer.New(r)
	b := lx.IndirectObjectBoundsAt(0)
	if b == nil {
		t.Fatalf("object %d: bounds not found in %q", num, data)
	}
	f.infos[num] = &xref.ParseInfo{Parser: r, Bounds: b, Resolve: f, Num: num}
}

func (f *fakeResolver) Resolve(id uint32) *xref.ParseInfo { return f.infos[id] }

func parseResources(t *testing.T, src string, resolve xref.Index) *ResourceDict {
	t.Helper()
	r, err := bytescan.NewReader([]byte(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := object.NewCtx(r, resolve, nil)
	rd := ParseAt(c, 0, resolve, nil)
	if rd == nil {
		t.Fatalf("resource dict did not parse: %q", src)
	}
	return rd
}

func TestFillMaps_GraphicsState(t *testing.T) {
	res := newFakeResolver()
	res.add(t, 5, "<</Type /ExtGState /CA 0.5>>")
	rd := parseResources(t, "<</ExtGState <</GS1 5 0 R>>>>", res)

	gs, ok := rd.GetGraphicsState("GS1")
	if !ok {
		t.Fatal("GS1 not resolved")
	}
	if gs.StrokeCA == nil || *gs.StrokeCA != 0.5 {
		t.Fatalf("CA: got %+v", gs.StrokeCA)
	}
	// The resolved key carries the category prefix.
	var keys []string
	rd.EachGraphicsState(func(key string, _ *GraphicsStateDict) {
		keys = append(keys, key)
	})
	if len(keys) != 1 || keys[0] != "/ExtGStateGS1" {
		t.Fatalf("keys: %v", keys)
	}
}

func TestFillMaps_RoundTrip(t *testing.T) {
	res := newFakeResolver()
	res.add(t, 5, "<</Type /ExtGState /CA 0.5>>")
	rd := parseResources(t, "<</ExtGState <</GS1 5 0 R>>>>", res)

	out, err := object.ToBytes(rd, nil)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	rd2 := parseResources(t, string(out), res)
	gs, ok := rd2.GetGraphicsState("GS1")
	if !ok {
		t.Fatalf("reparse lost GS1: %s", out)
	}
	if gs.StrokeCA == nil || *gs.StrokeCA != 0.5 {
		t.Fatalf("reparse CA: got %+v", gs.StrokeCA)
	}
}

func TestFillMaps_InlineGraphicsState(t *testing.T) {
	rd := parseResources(t, "<</ExtGState <</GS2 <</ca 0.25>>>>>>", newFakeResolver())
	gs, ok := rd.GetGraphicsState("GS2")
	if !ok {
		t.Fatal("inline GS2 not consumed")
	}
	if gs.FillCA == nil || *gs.FillCA != 0.25 {
		t.Fatalf("ca: got %+v", gs.FillCA)
	}
}

func TestFillMaps_DanglingRefDropped(t *testing.T) {
	res := newFakeResolver()
	res.add(t, 5, "<</Type /ExtGState /CA 0.5>>")
	rd := parseResources(t, "<</ExtGState <</GS1 5 0 R /Gone 9 0 R>>>>", res)
	if _, ok := rd.GetGraphicsState("Gone"); ok {
		t.Fatal("dangling entry survived")
	}
	// The sibling survives.
	if _, ok := rd.GetGraphicsState("GS1"); !ok {
		t.Fatal("sibling dropped with the dangling entry")
	}
}

func TestFillMaps_XObjectDiscrimination(t *testing.T) {
	res := newFakeResolver()
	res.add(t, 7, "<</Type /XObject /Subtype /Form /BBox [0 0 100 50] /Length 2>>\nstream\nq\nendstream")
	res.add(t, 8, "<</Type /XObject /Subtype /Image /Width 2 /Height 3 /Length 1>>\nstream\nx\nendstream")
	rd := parseResources(t, "<</XObject <</Fm 7 0 R /Im 8 0 R>>>>", res)

	x, ok := rd.GetXObject("Fm")
	if !ok {
		t.Fatal("form not resolved")
	}
	form, ok := x.(*XFormStream)
	if !ok {
		t.Fatalf("Fm: got %T, want *XFormStream", x)
	}
	if len(form.BBox) != 4 || form.BBox[2] != 100 {
		t.Fatalf("BBox: got %v", form.BBox)
	}

	x, ok = rd.GetXObject("Im")
	if !ok {
		t.Fatal("image not resolved")
	}
	img, ok := x.(*ImageStream)
	if !ok {
		t.Fatalf("Im: got %T, want *ImageStream", x)
	}
	if img.Width != 2 || img.Height != 3 {
		t.Fatalf("dims: got %dx%d", img.Width, img.Height)
	}
}

func TestFillMaps_Fonts(t *testing.T) {
	res := newFakeResolver()
	res.add(t, 4, "<</Type /Font /Subtype /Type1 /BaseFont /Helvetica>>")
	rd := parseResources(t, "<</Font <</F1 4 0 R>>>>", res)
	f, ok := rd.GetFont("F1")
	if !ok {
		t.Fatal("F1 not resolved")
	}
	if f.BaseFont != "Helvetica" || f.Subtype != "Type1" {
		t.Fatalf("font: got %+v", f)
	}
}

func TestWriteTo_CategoryOrder(t *testing.T) {
	res := newFakeResolver()
	res.add(t, 4, "<</Type /Font /Subtype /Type1 /BaseFont /Helvetica>>")
	res.add(t, 5, "<</Type /ExtGState /CA 0.5>>")
	src := "<</ProcSet [/PDF /Text] /Font <</F1 4 0 R>> /ExtGState <</GS1 5 0 R>>>>"
	rd := parseResources(t, src, res)
	out, err := object.ToBytes(rd, nil)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	s := string(out)
	gsAt := strings.Index(s, "/ExtGState")
	fontAt := strings.Index(s, "/Font")
	procAt := strings.Index(s, "/ProcSet")
	if gsAt == -1 || fontAt == -1 || procAt == -1 {
		t.Fatalf("missing categories in %s", s)
	}
	if !(gsAt < fontAt && fontAt < procAt) {
		t.Fatalf("category order wrong: %s", s)
	}
}

func TestWriteTo_XObjectWithoutRefFails(t *testing.T) {
	rd := newResourceDict(observability.NopLogger{})
	rd.SetXObject("Im1", object.NewStream(object.NewDict(), nil))
	if _, err := object.ToBytes(rd, nil); err == nil {
		t.Fatal("expected serialization failure for ref-less XObject")
	}
}

func TestSetters_MarkEdited(t *testing.T) {
	rd := parseResources(t, "<<>>", newFakeResolver())
	if rd.Edited() {
		t.Fatal("fresh dict marked edited")
	}
	gs := &GraphicsStateDict{}
	rd.SetGraphicsState("GS9", gs)
	if !rd.Edited() {
		t.Fatal("setter did not mark edited")
	}
	if _, ok := rd.GetGraphicsState("GS9"); !ok {
		t.Fatal("setter insert lost")
	}
}
