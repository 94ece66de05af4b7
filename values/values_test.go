package values

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/markpdf/cos/bytescan"
	"github.com/markpdf/cos/lexer"
)

func newParser(t *testing.T, data string) *Parser {
	t.Helper()
	r, err := bytescan.NewReader([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return New(lexer.New(r))
}

func TestParseNumberAt_Lenient(t *testing.T) {
	accept := map[string]float64{
		"0":       0,
		"-0":      0,
		"0.":      0,
		".0":      0,
		"-.5":     -0.5,
		"123.456": 123.456,
		"5":       5,
		"5.":      5,
		"5.0":     5,
	}
	for in, want := range accept {
		p := newParser(t, in)
		got := p.ParseNumberAt(0, true, false)
		if got == nil {
			t.Errorf("%q: unexpected nil", in)
			continue
		}
		if got.Value != want {
			t.Errorf("%q: got %v, want %v", in, got.Value, want)
		}
		if got.End != len(in)-1 {
			t.Errorf("%q: end %d, want %d", in, got.End, len(in)-1)
		}
	}
	for _, in := range []string{".", "-", "-.", "abc"} {
		p := newParser(t, in)
		if got := p.ParseNumberAt(0, true, false); got != nil {
			t.Errorf("%q: expected nil, got %+v", in, got)
		}
	}
}

func TestParseNumberAt_IntegerMode(t *testing.T) {
	p := newParser(t, "12.5")
	got := p.ParseNumberAt(0, false, false)
	if got == nil || got.Value != 12 || got.End != 1 {
		t.Fatalf("got %+v", got)
	}
}

func TestParseNumberAt_SkipEmpty(t *testing.T) {
	p := newParser(t, "  % n\n 42")
	got := p.ParseNumberAt(0, false, true)
	if got == nil || got.Value != 42 {
		t.Fatalf("got %+v", got)
	}
}

func TestParseNameAt(t *testing.T) {
	p := newParser(t, "/Catalog ")
	got := p.ParseNameAt(0, false, false)
	if got == nil || got.Value != "Catalog" || got.Start != 0 || got.End != 7 {
		t.Fatalf("got %+v", got)
	}
	got = p.ParseNameAt(0, true, false)
	if got == nil || got.Value != "/Catalog" {
		t.Fatalf("with slash: got %+v", got)
	}
}

func TestParseNameAt_EmptyBody(t *testing.T) {
	p := newParser(t, "/ /X")
	if got := p.ParseNameAt(0, false, false); got != nil {
		t.Fatalf("expected nil for empty name, got %+v", got)
	}
}

func TestParseBoolAt(t *testing.T) {
	p := newParser(t, "true ")
	got := p.ParseBoolAt(0, false)
	if got == nil || got.Value != true {
		t.Fatalf("got %+v", got)
	}
	p = newParser(t, " false>>")
	got = p.ParseBoolAt(0, true)
	if got == nil || got.Value != false {
		t.Fatalf("got %+v", got)
	}
	// "truex" is not a closed match.
	p = newParser(t, "truex ")
	if got := p.ParseBoolAt(0, false); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestParseNumberArrayAt(t *testing.T) {
	p := newParser(t, "[0 0 612.5 792]")
	got := p.ParseNumberArrayAt(0, true, false)
	if got == nil {
		t.Fatal("unexpected nil")
	}
	want := []float64{0, 0, 612.5, 792}
	if diff := cmp.Diff(want, got.Values); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestParseNumberArrayAt_StopsAtUnparsable(t *testing.T) {
	p := newParser(t, "[1 2 /Name 3]")
	got := p.ParseNumberArrayAt(0, true, false)
	if got == nil {
		t.Fatal("unexpected nil")
	}
	want := []float64{1, 2}
	if diff := cmp.Diff(want, got.Values); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestParseNameArrayAt(t *testing.T) {
	p := newParser(t, "[/PDF /Text /ImageB]")
	got := p.ParseNameArrayAt(0, false, false)
	if got == nil {
		t.Fatal("unexpected nil")
	}
	want := []string{"PDF", "Text", "ImageB"}
	if diff := cmp.Diff(want, got.Values); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDictPropertyByName(t *testing.T) {
	data := "<</Length 42 /Type /Catalog /Subtype /Form>>"
	p := newParser(t, data)
	lx := lexer.New(p.r)
	b := lx.DictBoundsAt(0)
	if b == nil {
		t.Fatal("dict bounds not found")
	}
	got := p.ParseDictPropertyByName("/Type", b)
	if got == nil || got.Value != "/Catalog" {
		t.Fatalf("Type: got %+v", got)
	}
	got = p.ParseDictPropertyByName("/Subtype", b)
	if got == nil || got.Value != "/Form" {
		t.Fatalf("Subtype: got %+v", got)
	}
}

func TestParseDictPropertyByName_DepthOne(t *testing.T) {
	// /Type of the nested dict must not satisfy a lookup on the outer
	// bounds, and a literal containing the needle must stay invisible.
	data := "<</S (/Type /Fake) /Inner <</Type /Nested>> /Type /Real>>"
	p := newParser(t, data)
	lx := lexer.New(p.r)
	b := lx.DictBoundsAt(0)
	if b == nil {
		t.Fatal("dict bounds not found")
	}
	got := p.ParseDictPropertyByName("/Type", b)
	if got == nil || got.Value != "/Real" {
		t.Fatalf("got %+v", got)
	}
}

func TestParseDictPropertyByName_PrefixKeys(t *testing.T) {
	// /Subtype must not match a bare /Type lookup ... and /Type must
	// not match as a prefix of /TypeX.
	data := "<</TypeX /Wrong /Subtype /AlsoWrong>>"
	p := newParser(t, data)
	lx := lexer.New(p.r)
	b := lx.DictBoundsAt(0)
	if got := p.ParseDictPropertyByName("/Type", b); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}
