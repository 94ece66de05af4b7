// Package lexer classifies COS values at byte positions and computes the
// bounds of composite values (dictionaries, arrays, strings, indirect
// objects, xref sections) over a bytescan.Reader.
package lexer

import (
	"github.com/markpdf/cos/bytescan"
)

// Kind tags the value recognized at a position.
type Kind int

const (
	Unknown Kind = iota
	Name
	Number
	StringLiteral
	HexString
	Array
	Dictionary
	Stream
	Boolean
	Reference
	Comment
)

func (k Kind) String() string {
	switch k {
	case Name:
		return "name"
	case Number:
		return "number"
	case StringLiteral:
		return "string"
	case HexString:
		return "hexstring"
	case Array:
		return "array"
	case Dictionary:
		return "dict"
	case Stream:
		return "stream"
	case Boolean:
		return "boolean"
	case Reference:
		return "ref"
	case Comment:
		return "comment"
	default:
		return "unknown"
	}
}

var (
	kwObj       = []byte("obj")
	kwEndobj    = []byte("endobj")
	kwStream    = []byte("stream")
	kwTrue      = []byte("true")
	kwFalse     = []byte("false")
	kwXref      = []byte("xref")
	kwTrailer   = []byte("trailer")
	kwEndstream = []byte("endstream")
)

// Lexer reads COS structure from a reader. It holds no position of its
// own; every method takes explicit indices.
type Lexer struct {
	r *bytescan.Reader
}

func New(r *bytescan.Reader) *Lexer { return &Lexer{r: r} }

// Reader exposes the underlying byte reader.
func (l *Lexer) Reader() *bytescan.Reader { return l.r }

// ValueTypeAt classifies the value starting at i. With skipEmpty the
// position is first advanced past whitespace and full-line comments.
func (l *Lexer) ValueTypeAt(i int, skipEmpty bool) Kind {
	if skipEmpty {
		i = l.SkipEmptyBytes(i)
	}
	if l.r.IsOutside(i) {
		return Unknown
	}
	c := l.r.ByteAt(i)
	switch {
	case c == '/':
		if bytescan.IsRegular(l.r.ByteAt(i + 1)) && !l.r.IsOutside(i+1) {
			return Name
		}
		return Unknown
	case c == '[':
		return Array
	case c == '(':
		return StringLiteral
	case c == '%':
		return Comment
	case c == '<':
		if l.r.ByteAt(i+1) == '<' {
			return Dictionary
		}
		return HexString
	case bytescan.IsDigit(c):
		return l.classifyNumeric(i)
	case c == '.' || c == '-':
		if bytescan.IsDigit(l.r.ByteAt(i + 1)) {
			return Number
		}
		return Unknown
	case c == 's':
		if l.keywordAt(kwStream, i) {
			return Stream
		}
		return Unknown
	case c == 't':
		if l.keywordAt(kwTrue, i) {
			return Boolean
		}
		return Unknown
	case c == 'f':
		if l.keywordAt(kwFalse, i) {
			return Boolean
		}
		return Unknown
	default:
		return Unknown
	}
}

// classifyNumeric separates plain numbers from indirect references.
// The token runs to the next delimiter; a trailing R whose follower is
// non-regular marks a reference (e.g. "12 0 R").
func (l *Lexer) classifyNumeric(i int) Kind {
	end := l.r.FindDelimiterIndex(bytescan.Forward, i)
	if end == -1 {
		end = l.r.Max() + 1
	}
	if end <= i {
		return Number
	}
	at := l.r.FindCharIndex('R', bytescan.Backward, end-1)
	if at < i {
		return Number
	}
	if l.r.IsOutside(at+1) || !bytescan.IsRegular(l.r.ByteAt(at+1)) {
		return Reference
	}
	return Number
}

// keywordAt reports whether word occupies [i, i+len-1] with a
// non-regular follower.
func (l *Lexer) keywordAt(word []byte, i int) bool {
	for j, w := range word {
		if l.r.ByteAt(i+j) != w || l.r.IsOutside(i+j) {
			return false
		}
	}
	follower := i + len(word)
	return l.r.IsOutside(follower) || !bytescan.IsRegular(l.r.ByteAt(follower))
}

// ReferenceEndAt returns the index of the R terminating the reference
// token starting at i, or -1 when the token is not a reference.
func (l *Lexer) ReferenceEndAt(i int) int {
	end := l.r.FindDelimiterIndex(bytescan.Forward, i)
	if end == -1 {
		end = l.r.Max() + 1
	}
	at := l.r.FindCharIndex('R', bytescan.Backward, end-1)
	if at < i {
		return -1
	}
	return at
}

// SkipEmptyBytes advances past whitespace and full-line %-comments.
// Returns -1 when the buffer is exhausted.
func (l *Lexer) SkipEmptyBytes(i int) int {
	i = l.r.FindNonSpaceIndex(bytescan.Forward, i)
	if i == -1 {
		return -1
	}
	if l.r.ByteAt(i) != '%' {
		return i
	}
	nl := l.r.FindNewLineIndex(bytescan.Forward, i)
	if nl == -1 {
		return -1
	}
	return l.SkipEmptyBytes(nl + 1)
}

// SkipToNextName walks forward from start, stepping over complete
// values, and returns the index of the next name token, or -1 when none
// occurs by maxIndex.
func (l *Lexer) SkipToNextName(start, maxIndex int) int {
	if maxIndex < 0 || maxIndex > l.r.Max() {
		maxIndex = l.r.Max()
	}
	i := start
	for i >= 0 && i <= maxIndex {
		switch l.ValueTypeAt(i, false) {
		case Name:
			return i
		case Dictionary:
			b := l.DictBoundsAt(i)
			if b == nil {
				return -1
			}
			i = b.End + 1
		case Array:
			b := l.ArrayBoundsAt(i)
			if b == nil {
				return -1
			}
			i = b.End + 1
		case StringLiteral:
			b := l.LiteralBoundsAt(i)
			if b == nil {
				return -1
			}
			i = b.End + 1
		case HexString:
			b := l.HexBoundsAt(i)
			if b == nil {
				return -1
			}
			i = b.End + 1
		case Reference:
			i = l.ReferenceEndAt(i) + 1
		case Number:
			next := l.r.FindIrregularIndex(bytescan.Forward, i)
			if next == -1 {
				return -1
			}
			i = next
		case Boolean:
			if l.r.ByteAt(i) == 't' {
				i += len(kwTrue)
			} else {
				i += len(kwFalse)
			}
		case Comment:
			nl := l.r.FindNewLineIndex(bytescan.Forward, i)
			if nl == -1 {
				return -1
			}
			i = nl + 1
		default:
			i++
		}
	}
	return -1
}
