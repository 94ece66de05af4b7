// Package xref parses classic cross-reference tables and maps indirect
// object identifiers to the byte ranges holding their definitions.
package xref

import (
	"errors"
	"fmt"
	"sort"

	"github.com/markpdf/cos/bytescan"
	"github.com/markpdf/cos/lexer"
	"github.com/markpdf/cos/observability"
	"github.com/markpdf/cos/security"
	"github.com/markpdf/cos/values"
)

// ParseInfo positions a consumer at an indirect object's definition.
// Bounds carries the whole "N G obj … endobj" frame; its content range
// is the object's payload (the dict interior when dict-shaped). Resolve
// lets sub-parses materialize nested references.
type ParseInfo struct {
	Parser  *bytescan.Reader
	Bounds  *bytescan.Bounds
	Resolve Index
	Crypt   *security.CryptInfo

	Num uint32
	Gen uint16
}

// Index resolves an indirect object id. A nil return means the
// reference is dangling; callers drop the entry and continue.
type Index interface {
	Resolve(id uint32) *ParseInfo
}

// Entry is one cross-reference table row.
type Entry struct {
	Offset int
	Gen    uint16
	InUse  bool
}

// Table is a single parsed xref section plus its trailer.
type Table struct {
	Entries       map[uint32]Entry
	TrailerBounds *bytescan.Bounds
	Prev          int // byte offset of the previous section, -1 when none
	End           int // index of the last byte consumed (trailer dict end)
}

var (
	kwStartxref = []byte("startxref")

	ErrNoStartXref = errors.New("xref: startxref not found")
)

// FindStartXref locates the last startxref keyword and returns the
// table offset it points at, or -1.
func FindStartXref(lx *lexer.Lexer) int {
	r := lx.Reader()
	kw := r.FindSubarrayIndex(kwStartxref, bytescan.SearchOptions{
		Dir: bytescan.Backward, MinIndex: 0, MaxIndex: -1, ClosedOnly: true,
	})
	if kw == nil {
		return -1
	}
	vp := values.New(lx)
	n := vp.ParseNumberAt(kw.End+1, false, true)
	if n == nil {
		return -1
	}
	return int(n.Value)
}

// ParseTableAt parses the classic xref section at offset: subsection
// headers "start count" followed by 20-byte entries, then the trailer
// dictionary. Free entries are recorded as not in use.
func ParseTableAt(lx *lexer.Lexer, offset int) (*Table, error) {
	r := lx.Reader()
	if r.IsOutside(offset) {
		return nil, fmt.Errorf("xref: offset %d out of range", offset)
	}
	b := lx.XrefBoundsAt(offset)
	if b == nil {
		return nil, errors.New("xref: table not found at offset")
	}
	vp := values.New(lx)
	t := &Table{Entries: make(map[uint32]Entry), Prev: -1}

	at := b.ContentStart
	for at != -1 && at <= b.ContentEnd {
		first := vp.ParseNumberAt(at, false, true)
		if first == nil || first.End > b.ContentEnd {
			break
		}
		count := vp.ParseNumberAt(first.End+1, false, true)
		if count == nil || count.End > b.ContentEnd {
			return nil, errors.New("xref: truncated subsection header")
		}
		at = count.End + 1
		startNum := uint32(first.Value)
		for k := 0; k < int(count.Value); k++ {
			off := vp.ParseNumberAt(at, false, true)
			if off == nil {
				return nil, errors.New("xref: truncated entry")
			}
			gen := vp.ParseNumberAt(off.End+1, false, true)
			if gen == nil {
				return nil, errors.New("xref: truncated entry")
			}
			flagAt := lx.SkipEmptyBytes(gen.End + 1)
			if flagAt == -1 {
				return nil, errors.New("xref: truncated entry")
			}
			flag := r.ByteAt(flagAt)
			if flag != 'n' && flag != 'f' {
				return nil, fmt.Errorf("xref: invalid entry flag %q", flag)
			}
			num := startNum + uint32(k)
			if _, seen := t.Entries[num]; !seen {
				t.Entries[num] = Entry{
					Offset: int(off.Value),
					Gen:    uint16(gen.Value),
					InUse:  flag == 'n',
				}
			}
			at = flagAt + 1
		}
	}
	t.End = b.End

	td := lx.SkipEmptyBytes(b.End + 1)
	if td != -1 {
		if tb := lx.DictBoundsAt(td); tb != nil {
			t.TrailerBounds = tb
			t.End = tb.End
			if prev := numberProperty(lx, vp, tb, "Prev"); prev != nil {
				t.Prev = int(prev.Value)
			}
		}
	}
	return t, nil
}

// numberProperty walks dict content for a top-level name key and parses
// the number that follows it.
func numberProperty(lx *lexer.Lexer, vp *values.Parser, b *bytescan.Bounds, key string) *values.NumberResult {
	if !b.HasContent {
		return nil
	}
	at := b.ContentStart
	for at != -1 && at <= b.ContentEnd {
		at = lx.SkipToNextName(at, b.ContentEnd)
		if at == -1 {
			return nil
		}
		name := vp.ParseNameAt(at, false, false)
		if name == nil {
			return nil
		}
		if name.Value == key {
			return vp.ParseNumberAt(name.End+1, false, true)
		}
		// Step over the value belonging to this key.
		at = name.End + 1
		next := lx.SkipToNextName(at, b.ContentEnd)
		if next == at {
			at++
		} else {
			at = next
		}
		if at == -1 {
			return nil
		}
	}
	return nil
}

// FileIndex is the document-wide object index built from the xref chain
// (or a damage scan). It implements Index.
type FileIndex struct {
	r       *bytescan.Reader
	lx      *lexer.Lexer
	entries map[uint32]Entry
	trailer *bytescan.Bounds
	crypt   *security.CryptInfo
	log     observability.Logger
}

// Config controls index construction.
type Config struct {
	MaxChainDepth int // limit on /Prev hops; 0 means 32
	Logger        observability.Logger
}

// BuildIndex walks the startxref chain and merges every section, newest
// first: entries already present are never overridden by older tables.
func BuildIndex(lx *lexer.Lexer, cfg Config) (*FileIndex, error) {
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	maxDepth := cfg.MaxChainDepth
	if maxDepth == 0 {
		maxDepth = 32
	}
	start := FindStartXref(lx)
	if start == -1 {
		return nil, ErrNoStartXref
	}
	ix := &FileIndex{
		r:       lx.Reader(),
		lx:      lx,
		entries: make(map[uint32]Entry),
		log:     log,
	}
	visited := make(map[int]bool)
	offset := start
	for depth := 0; offset >= 0 && depth < maxDepth; depth++ {
		if visited[offset] {
			break
		}
		visited[offset] = true
		t, err := ParseTableAt(lx, offset)
		if err != nil {
			return nil, err
		}
		for num, e := range t.Entries {
			if _, seen := ix.entries[num]; !seen {
				ix.entries[num] = e
			}
		}
		if ix.trailer == nil {
			ix.trailer = t.TrailerBounds
		}
		offset = t.Prev
	}
	return ix, nil
}

// ScanIndex rebuilds an index by scanning the whole buffer for
// "N G obj" headers. Used when the table chain is damaged.
func ScanIndex(lx *lexer.Lexer, cfg Config) *FileIndex {
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	r := lx.Reader()
	vp := values.New(lx)
	ix := &FileIndex{
		r:       r,
		lx:      lx,
		entries: make(map[uint32]Entry),
		log:     log,
	}
	at := 0
	for at <= r.Max() {
		kw := r.FindSubarrayIndex([]byte("obj"), bytescan.SearchOptions{
			Dir: bytescan.Forward, MinIndex: at, MaxIndex: -1, ClosedOnly: true,
		})
		if kw == nil {
			break
		}
		at = kw.End + 1
		gen := numberBefore(r, vp, kw.Start-1)
		if gen == nil {
			continue
		}
		num := numberBefore(r, vp, gen.Start-1)
		if num == nil {
			continue
		}
		// Later definitions of the same object win (incremental updates
		// append toward the end of the file).
		ix.entries[uint32(num.Value)] = Entry{
			Offset: num.Start,
			Gen:    uint16(gen.Value),
			InUse:  true,
		}
	}
	return ix
}

// numberBefore parses the whitespace-separated number token ending just
// before position i.
func numberBefore(r *bytescan.Reader, vp *values.Parser, i int) *values.NumberResult {
	end := r.FindNonSpaceIndex(bytescan.Backward, i)
	if end == -1 || !bytescan.IsDigit(r.ByteAt(end)) {
		return nil
	}
	start := end
	for start > 0 && bytescan.IsDigit(r.ByteAt(start-1)) {
		start--
	}
	return vp.ParseNumberAt(start, false, false)
}

// SetCrypt attaches the document's crypt credentials; every ParseInfo
// handed out afterwards carries them.
func (ix *FileIndex) SetCrypt(ci *security.CryptInfo) { ix.crypt = ci }

// TrailerBounds returns the newest trailer dictionary bounds.
func (ix *FileIndex) TrailerBounds() *bytescan.Bounds { return ix.trailer }

// Objects lists known in-use object numbers in ascending order.
func (ix *FileIndex) Objects() []uint32 {
	out := make([]uint32, 0, len(ix.entries))
	for num, e := range ix.entries {
		if e.InUse {
			out = append(out, num)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Lookup exposes the raw entry for an object number.
func (ix *FileIndex) Lookup(id uint32) (Entry, bool) {
	e, ok := ix.entries[id]
	return e, ok
}

// Resolve returns the parse info for an in-use object, or nil when the
// reference is dangling or its definition is damaged.
func (ix *FileIndex) Resolve(id uint32) *ParseInfo {
	e, ok := ix.entries[id]
	if !ok || !e.InUse || ix.r.IsOutside(e.Offset) {
		return nil
	}
	vp := values.New(ix.lx)
	head := vp.ParseNumberAt(e.Offset, false, true)
	if head == nil || uint32(head.Value) != id {
		ix.log.Warn("xref: object header mismatch", observability.Uint32("object", id))
		return nil
	}
	b := ix.lx.IndirectObjectBoundsAt(e.Offset)
	if b == nil {
		ix.log.Warn("xref: object definition not found", observability.Uint32("object", id))
		return nil
	}
	return &ParseInfo{
		Parser:  ix.r,
		Bounds:  b,
		Resolve: ix,
		Crypt:   ix.crypt,
		Num:     id,
		Gen:     e.Gen,
	}
}
