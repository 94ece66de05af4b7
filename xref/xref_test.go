package xref

import (
	"fmt"
	"strings"
	"testing"

	"github.com/markpdf/cos/bytescan"
	"github.com/markpdf/cos/lexer"
)

// buildFile assembles a minimal PDF with a classic xref table, keeping
// entry offsets honest.
func buildFile(t *testing.T, bodies ...string) (string, []int) {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("%PDF-1.7\n")
	offsets := make([]int, 0, len(bodies))
	for i, body := range bodies {
		offsets = append(offsets, sb.Len())
		fmt.Fprintf(&sb, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xrefAt := sb.Len()
	fmt.Fprintf(&sb, "xref\n0 %d\n", len(bodies)+1)
	sb.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&sb, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&sb, "trailer\n<</Size %d /Root 1 0 R>>\nstartxref\n%d\n%%%%EOF\n", len(bodies)+1, xrefAt)
	return sb.String(), offsets
}

func newLexer(t *testing.T, data string) *lexer.Lexer {
	t.Helper()
	r, err := bytescan.NewReader([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return lexer.New(r)
}

func TestFindStartXref(t *testing.T) {
	data, _ := buildFile(t, "<</Type /Catalog>>")
	lx := newLexer(t, data)
	at := FindStartXref(lx)
	if at == -1 {
		t.Fatal("startxref not found")
	}
	if !strings.HasPrefix(data[at:], "xref") {
		t.Fatalf("offset %d does not point at xref keyword", at)
	}
}

func TestParseTableAt(t *testing.T) {
	data, offsets := buildFile(t, "<</Type /Catalog>>", "42")
	lx := newLexer(t, data)
	at := FindStartXref(lx)
	table, err := ParseTableAt(lx, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.Entries) != 3 {
		t.Fatalf("entry count: got %d", len(table.Entries))
	}
	if e := table.Entries[0]; e.InUse {
		t.Fatal("free head entry marked in use")
	}
	for i, off := range offsets {
		e, ok := table.Entries[uint32(i+1)]
		if !ok || !e.InUse || e.Offset != off {
			t.Fatalf("entry %d: got %+v, want offset %d", i+1, e, off)
		}
	}
	if table.TrailerBounds == nil {
		t.Fatal("trailer bounds missing")
	}
	if table.Prev != -1 {
		t.Fatalf("prev: got %d", table.Prev)
	}
}

func TestBuildIndex_Resolve(t *testing.T) {
	data, _ := buildFile(t, "<</Type /Catalog /Pages 2 0 R>>", "<</Type /Pages /Count 0>>")
	lx := newLexer(t, data)
	ix, err := BuildIndex(lx, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info := ix.Resolve(1)
	if info == nil {
		t.Fatal("object 1 unresolvable")
	}
	if info.Num != 1 || info.Gen != 0 {
		t.Fatalf("id: got %d %d", info.Num, info.Gen)
	}
	got := string(info.Parser.Range(info.Bounds.ContentStart, info.Bounds.ContentEnd))
	if got != "/Type /Catalog /Pages 2 0 R" {
		t.Fatalf("content: got %q", got)
	}
	if info.Resolve == nil {
		t.Fatal("resolve not carried")
	}
}

func TestResolve_Dangling(t *testing.T) {
	data, _ := buildFile(t, "<</Type /Catalog>>")
	lx := newLexer(t, data)
	ix, err := BuildIndex(lx, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info := ix.Resolve(99); info != nil {
		t.Fatalf("expected nil for unknown object, got %+v", info)
	}
	if info := ix.Resolve(0); info != nil {
		t.Fatalf("expected nil for free entry, got %+v", info)
	}
}

func TestBuildIndex_PrevChain(t *testing.T) {
	// An incremental update redefines object 1 and chains back with
	// /Prev; the newer table must win.
	base, _ := buildFile(t, "<</Type /Catalog>>", "42")
	var sb strings.Builder
	sb.WriteString(base)
	newDef := sb.Len()
	sb.WriteString("1 0 obj\n<</Type /Catalog /Version /1.7>>\nendobj\n")
	lx0 := newLexer(t, base)
	prevOffset := FindStartXref(lx0)
	newXref := sb.Len()
	fmt.Fprintf(&sb, "xref\n1 1\n%010d 00000 n \n", newDef)
	fmt.Fprintf(&sb, "trailer\n<</Size 3 /Root 1 0 R /Prev %d>>\nstartxref\n%d\n%%%%EOF\n", prevOffset, newXref)

	lx := newLexer(t, sb.String())
	ix, err := BuildIndex(lx, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info := ix.Resolve(1)
	if info == nil {
		t.Fatal("object 1 unresolvable")
	}
	got := string(info.Parser.Range(info.Bounds.ContentStart, info.Bounds.ContentEnd))
	if !strings.Contains(got, "Version") {
		t.Fatalf("stale definition won: %q", got)
	}
	// Object 2 comes from the previous table.
	if ix.Resolve(2) == nil {
		t.Fatal("object 2 lost across /Prev chain")
	}
}

func TestScanIndex(t *testing.T) {
	data := "%PDF-1.4\n3 0 obj\n<</A 1>>\nendobj\n7 0 obj\n42\nendobj\n"
	lx := newLexer(t, data)
	ix := ScanIndex(lx, Config{})
	for _, num := range []uint32{3, 7} {
		if ix.Resolve(num) == nil {
			t.Fatalf("object %d not found by scan", num)
		}
	}
	if got := ix.Objects(); len(got) != 2 {
		t.Fatalf("objects: got %v", got)
	}
}
