package lexer

import (
	"github.com/markpdf/cos/bytescan"
)

// DictBoundsAt computes the bounds of the dictionary starting at start,
// which must point at "<<". Dict delimiters inside string literals are
// ignored, escaped parentheses do not toggle literals, hex strings are
// stepped over to their closing ">", and pair matching is non-overlapping
// ("<<<" holds one open pair plus a pending bracket).
// Returns nil when the dictionary never closes.
func (l *Lexer) DictBoundsAt(start int) *bytescan.Bounds {
	r := l.r
	if r.ByteAt(start) != '<' || r.ByteAt(start+1) != '<' || r.IsOutside(start+1) {
		return nil
	}
	depth := 1
	litDepth := 0
	escaped := false
	var pending byte // latched half of a <</>> pair; reset after each match
	for i := start + 2; i <= r.Max(); i++ {
		c := r.ByteAt(i)
		if litDepth > 0 {
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '(':
				litDepth++
			case ')':
				litDepth--
			}
			continue
		}
		switch c {
		case '(':
			litDepth = 1
			pending = 0
		case '<':
			if pending == '<' {
				depth++
				pending = 0
			} else {
				pending = '<'
			}
		case '>':
			if pending == '>' {
				depth--
				pending = 0
				if depth == 0 {
					return dictBounds(r, start, i)
				}
			} else {
				pending = '>'
			}
		default:
			if pending == '<' {
				// A lone "<" opens a hex string; its closing ">" is
				// never half of a ">>" pair.
				if end := r.FindCharIndex('>', bytescan.Forward, i); end != -1 {
					i = end
				}
			}
			pending = 0
		}
	}
	return nil
}

func dictBounds(r *bytescan.Reader, start, end int) *bytescan.Bounds {
	b := &bytescan.Bounds{Start: start, End: end}
	cs := r.FindNonSpaceIndex(bytescan.Forward, start+2)
	ce := r.FindNonSpaceIndex(bytescan.Backward, end-2)
	if cs == -1 || ce == -1 || cs > end-2 || ce < start+2 || cs > ce {
		return b
	}
	b.ContentStart, b.ContentEnd, b.HasContent = cs, ce, true
	return b
}

// ArrayBoundsAt computes the bounds of the array starting at start,
// which must point at "[". Brackets are depth-counted with no literal
// awareness. Returns nil when the depth never returns to zero.
func (l *Lexer) ArrayBoundsAt(start int) *bytescan.Bounds {
	r := l.r
	if r.ByteAt(start) != '[' {
		return nil
	}
	depth := 0
	for i := start; i <= r.Max(); i++ {
		switch r.ByteAt(i) {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return contentTrimmed(r, start, i, 1, 1)
			}
		}
	}
	return nil
}

// HexBoundsAt computes the bounds of the hex string starting at start,
// which must point at "<" not followed by another "<". Ends at the first
// following ">".
func (l *Lexer) HexBoundsAt(start int) *bytescan.Bounds {
	r := l.r
	if r.ByteAt(start) != '<' || r.ByteAt(start+1) == '<' {
		return nil
	}
	end := r.FindCharIndex('>', bytescan.Forward, start+1)
	if end == -1 {
		return nil
	}
	return contentTrimmed(r, start, end, 1, 1)
}

// LiteralBoundsAt computes the bounds of the string literal starting at
// start, which must point at "(". Tracks escapes and nested parentheses.
// Content is the raw interior, never trimmed.
func (l *Lexer) LiteralBoundsAt(start int) *bytescan.Bounds {
	r := l.r
	if r.ByteAt(start) != '(' {
		return nil
	}
	escaped := false
	opened := 0
	for i := start + 1; i <= r.Max(); i++ {
		c := r.ByteAt(i)
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '(':
			opened++
		case ')':
			if opened == 0 {
				b := &bytescan.Bounds{Start: start, End: i}
				if i > start+1 {
					b.ContentStart, b.ContentEnd, b.HasContent = start+1, i-1, true
				}
				return b
			}
			opened--
		}
	}
	return nil
}

// IndirectObjectBoundsAt computes the bounds of the indirect object
// definition containing the "N G obj … endobj" frame at or after start.
// Content trims surrounding whitespace; when the content is a bare
// dictionary the content bounds are additionally narrowed past the
// "<<" and ">>" pairs so the caller receives the dict interior.
func (l *Lexer) IndirectObjectBoundsAt(start int) *bytescan.Bounds {
	r := l.r
	objKw := r.FindSubarrayIndex(kwObj, bytescan.SearchOptions{
		Dir: bytescan.Forward, MinIndex: start, MaxIndex: -1, ClosedOnly: true,
	})
	if objKw == nil {
		return nil
	}
	endKw := r.FindSubarrayIndex(kwEndobj, bytescan.SearchOptions{
		Dir: bytescan.Forward, MinIndex: objKw.End + 1, MaxIndex: -1, ClosedOnly: true,
	})
	if endKw == nil {
		return nil
	}
	b := &bytescan.Bounds{Start: start, End: endKw.End}
	cs := r.FindNonSpaceIndex(bytescan.Forward, objKw.End+1)
	ce := r.FindNonSpaceIndex(bytescan.Backward, endKw.Start-1)
	if cs == -1 || ce == -1 || cs >= endKw.Start || ce <= objKw.End || cs > ce {
		return b
	}
	if r.ByteAt(cs) == '<' && r.ByteAt(cs+1) == '<' && r.ByteAt(ce) == '>' && r.ByteAt(ce-1) == '>' {
		cs += 2
		ce -= 2
		cs = r.FindNonSpaceIndex(bytescan.Forward, cs)
		ce = r.FindNonSpaceIndex(bytescan.Backward, ce)
		if cs == -1 || ce == -1 || cs > ce {
			return b
		}
	}
	b.ContentStart, b.ContentEnd, b.HasContent = cs, ce, true
	return b
}

// XrefBoundsAt computes the bounds of the classic cross-reference table
// at or after start, spanning the "xref" keyword through the "trailer"
// keyword. Empty tables return nil.
func (l *Lexer) XrefBoundsAt(start int) *bytescan.Bounds {
	r := l.r
	open := r.FindSubarrayIndex(kwXref, bytescan.SearchOptions{
		Dir: bytescan.Forward, MinIndex: start, MaxIndex: -1, ClosedOnly: true,
	})
	if open == nil {
		return nil
	}
	close := r.FindSubarrayIndex(kwTrailer, bytescan.SearchOptions{
		Dir: bytescan.Forward, MinIndex: open.End + 1, MaxIndex: -1, ClosedOnly: true,
	})
	if close == nil {
		return nil
	}
	b := &bytescan.Bounds{Start: open.Start, End: close.End}
	cs := r.FindNonSpaceIndex(bytescan.Forward, open.End+1)
	ce := r.FindNonSpaceIndex(bytescan.Backward, close.Start-1)
	if cs == -1 || ce == -1 || cs >= close.Start || ce <= open.End || cs > ce {
		return nil
	}
	b.ContentStart, b.ContentEnd, b.HasContent = cs, ce, true
	return b
}

// StreamPayloadBounds locates the stream payload between a stream
// dictionary's end and maxIndex. The payload starts after the EOL that
// terminates the "stream" keyword. With length >= 0 the payload is
// exactly that many bytes; otherwise it runs to the closed "endstream"
// match, with the EOL before the keyword trimmed. A negative maxIndex
// means the buffer maximum.
func (l *Lexer) StreamPayloadBounds(dictEnd, maxIndex, length int) *bytescan.Bounds {
	r := l.r
	kw := r.FindSubarrayIndex(kwStream, bytescan.SearchOptions{
		Dir: bytescan.Forward, MinIndex: dictEnd + 1, MaxIndex: maxIndex, ClosedOnly: true,
	})
	if kw == nil {
		return nil
	}
	dataStart := kw.End + 1
	if r.ByteAt(dataStart) == '\r' {
		dataStart++
	}
	if r.ByteAt(dataStart) == '\n' {
		dataStart++
	}
	if length >= 0 {
		dataEnd := dataStart + length - 1
		if length == 0 {
			return &bytescan.Bounds{Start: dataStart, End: dataStart - 1}
		}
		if r.IsOutside(dataEnd) {
			return nil
		}
		return &bytescan.Bounds{Start: dataStart, End: dataEnd}
	}
	end := r.FindSubarrayIndex(kwEndstream, bytescan.SearchOptions{
		Dir: bytescan.Forward, MinIndex: dataStart, MaxIndex: maxIndex, ClosedOnly: true,
	})
	if end == nil {
		return nil
	}
	dataEnd := end.Start - 1
	if dataEnd >= dataStart && r.ByteAt(dataEnd) == '\n' {
		dataEnd--
	}
	if dataEnd >= dataStart && r.ByteAt(dataEnd) == '\r' {
		dataEnd--
	}
	return &bytescan.Bounds{Start: dataStart, End: dataEnd}
}

// contentTrimmed builds bounds for [start, end] whose content trims
// whitespace inside the delimiters, which occupy open/close bytes.
func contentTrimmed(r *bytescan.Reader, start, end, open, close int) *bytescan.Bounds {
	b := &bytescan.Bounds{Start: start, End: end}
	lo := start + open
	hi := end - close
	if lo > hi {
		return b
	}
	cs := r.FindNonSpaceIndex(bytescan.Forward, lo)
	ce := r.FindNonSpaceIndex(bytescan.Backward, hi)
	if cs == -1 || ce == -1 || cs > hi || ce < lo || cs > ce {
		return b
	}
	b.ContentStart, b.ContentEnd, b.HasContent = cs, ce, true
	return b
}
