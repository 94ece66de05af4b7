// Package values decodes typed leaf values (numbers, names, booleans and
// homogeneous arrays of those) at byte positions, built atop the lexer.
package values

import (
	"strconv"

	"github.com/markpdf/cos/bytescan"
	"github.com/markpdf/cos/lexer"
)

// Parser decodes leaf values from a reader. Like the lexer it is
// positionless; every call takes explicit indices.
type Parser struct {
	r  *bytescan.Reader
	lx *lexer.Lexer
}

func New(lx *lexer.Lexer) *Parser {
	return &Parser{r: lx.Reader(), lx: lx}
}

// NumberResult carries a parsed number and the inclusive token range.
type NumberResult struct {
	Value float64
	Start int
	End   int
}

// NameResult carries a parsed name and the inclusive token range. The
// value includes the leading slash only when requested.
type NameResult struct {
	Value string
	Start int
	End   int
}

// StringResult carries a run of regular bytes.
type StringResult struct {
	Value []byte
	Start int
	End   int
}

// BoolResult carries a parsed boolean keyword.
type BoolResult struct {
	Value bool
	Start int
	End   int
}

// NumberArrayResult carries the leaves of a homogeneous number array.
type NumberArrayResult struct {
	Values []float64
	Start  int
	End    int
}

// NameArrayResult carries the leaves of a homogeneous name array.
type NameArrayResult struct {
	Values []string
	Start  int
	End    int
}

// ParseNumberAt decodes a number token at i. The rule is lenient: an
// optional leading minus, an optional leading dot (read as "0."), then
// digits with at most one dot when float is allowed. Bare ".", "-" and
// "-." fail.
func (p *Parser) ParseNumberAt(i int, float, skipEmpty bool) *NumberResult {
	if skipEmpty {
		i = p.lx.SkipEmptyBytes(i)
	}
	if p.r.IsOutside(i) {
		return nil
	}
	start := i
	var lit []byte
	if p.r.ByteAt(i) == '-' {
		lit = append(lit, '-')
		i++
	}
	if p.r.ByteAt(i) == '.' && !p.r.IsOutside(i) {
		if !float {
			return nil
		}
		lit = append(lit, '0', '.')
		i++
	}
	digits := 0
	dots := 0
	for ; !p.r.IsOutside(i); i++ {
		c := p.r.ByteAt(i)
		if bytescan.IsDigit(c) {
			lit = append(lit, c)
			digits++
			continue
		}
		if c == '.' && float && dots == 0 && len(lit) > 0 && lit[len(lit)-1] != '.' {
			lit = append(lit, c)
			dots++
			continue
		}
		break
	}
	if digits == 0 {
		return nil
	}
	if lit[len(lit)-1] == '.' {
		lit = append(lit, '0')
	}
	v, err := strconv.ParseFloat(string(lit), 64)
	if err != nil {
		return nil
	}
	return &NumberResult{Value: v, Start: start, End: i - 1}
}

// ParseNameAt decodes the name starting at i, which must point at "/".
// The body is the following run of regular bytes; an empty body fails.
func (p *Parser) ParseNameAt(i int, includeSlash, skipEmpty bool) *NameResult {
	if skipEmpty {
		i = p.lx.SkipEmptyBytes(i)
	}
	if p.r.IsOutside(i) || p.r.ByteAt(i) != '/' {
		return nil
	}
	body := p.ParseStringAt(i+1, false)
	if body == nil {
		return nil
	}
	val := string(body.Value)
	if includeSlash {
		val = "/" + val
	}
	return &NameResult{Value: val, Start: i, End: body.End}
}

// ParseStringAt decodes the run of regular bytes starting exactly at i.
// Intended for internal keyword and name-body reads.
func (p *Parser) ParseStringAt(i int, skipEmpty bool) *StringResult {
	if skipEmpty {
		i = p.lx.SkipEmptyBytes(i)
	}
	if p.r.IsOutside(i) || !bytescan.IsRegular(p.r.ByteAt(i)) {
		return nil
	}
	end := p.r.FindIrregularIndex(bytescan.Forward, i)
	if end == -1 {
		end = p.r.Max() + 1
	}
	return &StringResult{Value: p.r.Range(i, end-1), Start: i, End: end - 1}
}

// ParseBoolAt decodes a boolean at i by attempting "true" then "false"
// as closed matches within the sub-range bounded by the next delimiter.
func (p *Parser) ParseBoolAt(i int, skipEmpty bool) *BoolResult {
	if skipEmpty {
		i = p.lx.SkipEmptyBytes(i)
	}
	if p.r.IsOutside(i) {
		return nil
	}
	max := p.r.FindDelimiterIndex(bytescan.Forward, i)
	if max == -1 {
		max = p.r.Max()
	} else {
		max--
	}
	for _, kw := range []struct {
		word  []byte
		value bool
	}{
		{[]byte("true"), true},
		{[]byte("false"), false},
	} {
		b := p.r.FindSubarrayIndex(kw.word, bytescan.SearchOptions{
			Dir: bytescan.Forward, MinIndex: i, MaxIndex: max, ClosedOnly: true,
		})
		if b != nil {
			return &BoolResult{Value: kw.value, Start: b.Start, End: b.End}
		}
	}
	return nil
}

// ParseNumberArrayAt decodes a homogeneous number array at i. Parsing of
// leaves stops at the first unparsable byte inside the brackets.
func (p *Parser) ParseNumberArrayAt(i int, float, skipEmpty bool) *NumberArrayResult {
	if skipEmpty {
		i = p.lx.SkipEmptyBytes(i)
	}
	b := p.lx.ArrayBoundsAt(i)
	if b == nil {
		return nil
	}
	out := &NumberArrayResult{Values: []float64{}, Start: b.Start, End: b.End}
	if !b.HasContent {
		return out
	}
	for at := b.ContentStart; at <= b.ContentEnd; {
		n := p.ParseNumberAt(at, float, true)
		if n == nil || n.End > b.ContentEnd {
			break
		}
		out.Values = append(out.Values, n.Value)
		at = n.End + 1
	}
	return out
}

// ParseNameArrayAt decodes a homogeneous name array at i.
func (p *Parser) ParseNameArrayAt(i int, includeSlash, skipEmpty bool) *NameArrayResult {
	if skipEmpty {
		i = p.lx.SkipEmptyBytes(i)
	}
	b := p.lx.ArrayBoundsAt(i)
	if b == nil {
		return nil
	}
	out := &NameArrayResult{Values: []string{}, Start: b.Start, End: b.End}
	if !b.HasContent {
		return out
	}
	for at := b.ContentStart; at <= b.ContentEnd; {
		n := p.ParseNameAt(at, includeSlash, true)
		if n == nil || n.End > b.ContentEnd {
			break
		}
		out.Values = append(out.Values, n.Value)
		at = n.End + 1
	}
	return out
}

// ParseDictPropertyByName finds the property with the given slash-
// prefixed name inside dict content bounds and parses its value as a
// name. Matches are accepted only at nesting depth one, outside string
// literals, and only when the byte following the property name is
// non-regular. Used to fetch /Type and /Subtype.
func (p *Parser) ParseDictPropertyByName(name string, bounds *bytescan.Bounds) *NameResult {
	if bounds == nil || !bounds.HasContent || name == "" {
		return nil
	}
	needle := []byte(name)
	depth := 1
	litDepth := 0
	escaped := false
	var pending byte
	for i := bounds.ContentStart; i <= bounds.ContentEnd; i++ {
		c := p.r.ByteAt(i)
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
			continue
		case '<':
			if pending == '<' {
				depth++
				pending = 0
			} else {
				pending = '<'
			}
			continue
		case '>':
			if pending == '>' {
				depth--
				pending = 0
			} else {
				pending = '>'
			}
			continue
		}
		pending = 0
		if depth != 1 || c != needle[0] {
			continue
		}
		if !p.matchAt(needle, i, bounds.ContentEnd) {
			continue
		}
		val := p.ParseNameAt(i+len(needle), true, true)
		if val == nil || val.Start > bounds.ContentEnd {
			return nil
		}
		return val
	}
	return nil
}

// matchAt reports a closed match of needle at i within [i, max].
func (p *Parser) matchAt(needle []byte, i, max int) bool {
	if i+len(needle)-1 > max {
		return false
	}
	for j, w := range needle {
		if p.r.ByteAt(i+j) != w {
			return false
		}
	}
	follower := i + len(needle)
	return p.r.IsOutside(follower) || !bytescan.IsRegular(p.r.ByteAt(follower))
}
