package bytescan

import (
	"testing"
)

func newReader(t *testing.T, data string) *Reader {
	t.Helper()
	r, err := NewReader([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

func TestNewReader_EmptyBuffer(t *testing.T) {
	if _, err := NewReader(nil); err == nil {
		t.Fatal("expected error for empty buffer")
	}
}

func TestCharClasses(t *testing.T) {
	for _, c := range []byte{0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20} {
		if !IsWhitespace(c) {
			t.Errorf("expected whitespace: %#x", c)
		}
		if IsRegular(c) {
			t.Errorf("whitespace classified regular: %#x", c)
		}
	}
	for _, c := range []byte("%()/<>[]{}") {
		if !IsDelimiter(c) {
			t.Errorf("expected delimiter: %q", c)
		}
		if IsRegular(c) {
			t.Errorf("delimiter classified regular: %q", c)
		}
	}
	for _, c := range []byte("aZ09+-._") {
		if !IsRegular(c) {
			t.Errorf("expected regular: %q", c)
		}
	}
}

func TestIsOutside(t *testing.T) {
	r := newReader(t, "abc")
	if r.IsOutside(0) || r.IsOutside(2) {
		t.Fatal("inside indices reported outside")
	}
	if !r.IsOutside(-1) || !r.IsOutside(3) {
		t.Fatal("outside indices reported inside")
	}
	if r.Max() != 2 {
		t.Fatalf("unexpected max: %d", r.Max())
	}
}

func TestFindCharIndex(t *testing.T) {
	r := newReader(t, "abcabc")
	if got := r.FindCharIndex('b', Forward, 0); got != 1 {
		t.Fatalf("forward: got %d", got)
	}
	if got := r.FindCharIndex('b', Forward, 2); got != 4 {
		t.Fatalf("forward from 2: got %d", got)
	}
	if got := r.FindCharIndex('b', Backward, 5); got != 4 {
		t.Fatalf("backward: got %d", got)
	}
	if got := r.FindCharIndex('x', Forward, 0); got != -1 {
		t.Fatalf("miss: got %d", got)
	}
}

func TestFindClassIndexes(t *testing.T) {
	r := newReader(t, "ab <</K")
	if got := r.FindSpaceIndex(Forward, 0); got != 2 {
		t.Fatalf("space: got %d", got)
	}
	if got := r.FindNonSpaceIndex(Forward, 2); got != 3 {
		t.Fatalf("non-space: got %d", got)
	}
	if got := r.FindDelimiterIndex(Forward, 0); got != 3 {
		t.Fatalf("delimiter: got %d", got)
	}
	if got := r.FindRegularIndex(Forward, 2); got != 6 {
		t.Fatalf("regular: got %d", got)
	}
	if got := r.FindIrregularIndex(Forward, 0); got != 2 {
		t.Fatalf("irregular: got %d", got)
	}
	if got := r.FindNonDelimiterIndex(Forward, 3); got != 6 {
		t.Fatalf("non-delimiter: got %d", got)
	}
}

func TestFindNewLineIndex_CRLF(t *testing.T) {
	r := newReader(t, "ab\r\ncd")
	// Forward lands on the LF of the pair.
	if got := r.FindNewLineIndex(Forward, 0); got != 3 {
		t.Fatalf("forward: got %d", got)
	}
	// Backward lands on the CR.
	if got := r.FindNewLineIndex(Backward, 5); got != 2 {
		t.Fatalf("backward: got %d", got)
	}
}

func TestFindNewLineIndex_BareLF(t *testing.T) {
	r := newReader(t, "ab\ncd")
	if got := r.FindNewLineIndex(Forward, 0); got != 2 {
		t.Fatalf("forward: got %d", got)
	}
	if got := r.FindNewLineIndex(Backward, 4); got != 2 {
		t.Fatalf("backward: got %d", got)
	}
}

func TestFindSubarrayIndex(t *testing.T) {
	r := newReader(t, "obj endobj")
	b := r.FindSubarrayIndex([]byte("obj"), Search(Forward))
	if b == nil || b.Start != 0 || b.End != 2 {
		t.Fatalf("forward: got %+v", b)
	}
	b = r.FindSubarrayIndex([]byte("obj"), Search(Backward))
	if b == nil || b.Start != 7 || b.End != 9 {
		t.Fatalf("backward: got %+v", b)
	}
	if r.FindSubarrayIndex([]byte("xyz"), Search(Forward)) != nil {
		t.Fatal("expected miss")
	}
}

func TestFindSubarrayIndex_ClosedOnly(t *testing.T) {
	// The first "stream" is a prefix of "streams" and must be skipped.
	r := newReader(t, "streams stream\n")
	opts := Search(Forward)
	opts.ClosedOnly = true
	b := r.FindSubarrayIndex([]byte("stream"), opts)
	if b == nil || b.Start != 8 {
		t.Fatalf("closed match: got %+v", b)
	}
	// Invariant: a closed match is never followed by a regular byte.
	if b.End+1 <= r.Max() && IsRegular(r.ByteAt(b.End+1)) {
		t.Fatal("closed match followed by regular byte")
	}
}

func TestFindSubarrayIndex_ClosedOnlyBackward(t *testing.T) {
	r := newReader(t, "endobj xendobj")
	opts := Search(Backward)
	opts.ClosedOnly = true
	// The trailing "endobj" in "xendobj" is preceded by a regular byte.
	b := r.FindSubarrayIndex([]byte("endobj"), opts)
	if b == nil || b.Start != 0 {
		t.Fatalf("backward closed match: got %+v", b)
	}
}

func TestFindSubarrayIndex_Clipped(t *testing.T) {
	r := newReader(t, "aa bb aa")
	opts := Search(Forward)
	opts.MinIndex = 1
	opts.MaxIndex = 5
	b := r.FindSubarrayIndex([]byte("aa"), opts)
	if b != nil {
		t.Fatalf("expected miss inside window, got %+v", b)
	}
	opts.MaxIndex = 7
	b = r.FindSubarrayIndex([]byte("aa"), opts)
	if b == nil || b.Start != 6 {
		t.Fatalf("window match: got %+v", b)
	}
}

func TestSubView(t *testing.T) {
	r := newReader(t, "0123456789")
	sub, err := r.Sub(2, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Max() != 3 || sub.ByteAt(0) != '2' {
		t.Fatalf("unexpected sub-view: max=%d first=%q", sub.Max(), sub.ByteAt(0))
	}
	if _, err := r.Sub(5, 2); err == nil {
		t.Fatal("expected error for inverted range")
	}
}
