// Package document is the data facade over a parsed PDF: it owns the
// object table built from the xref chain, navigates the page tree, and
// writes edits back as incremental updates.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/markpdf/cos/bytescan"
	"github.com/markpdf/cos/lexer"
	"github.com/markpdf/cos/object"
	"github.com/markpdf/cos/observability"
	"github.com/markpdf/cos/recovery"
	"github.com/markpdf/cos/resources"
	"github.com/markpdf/cos/security"
	"github.com/markpdf/cos/xref"
)

var (
	ErrInvalidHeader = errors.New("document: missing %PDF header")
	ErrNoCatalog     = errors.New("document: catalog not found")
	ErrPageRange     = errors.New("document: page index out of range")
)

// Options controls opening.
type Options struct {
	Password string
	Logger   observability.Logger
	Recovery recovery.Strategy
}

// Document owns a parsed tree. It is the central object table that
// parent back-references resolve through: children refer to parents by
// ObjectID, never by pointer.
type Document struct {
	buf     []byte
	r       *bytescan.Reader
	lx      *lexer.Lexer
	index   *xref.FileIndex
	trailer *object.Dict
	catalog *object.Dict
	pages   []object.ObjectID
	version string

	objects map[object.ObjectID]object.Object
	dirty   map[object.ObjectID]object.Object
	events  chan object.ObjectID
	nextNum uint32

	handler security.Handler
	crypt   *security.CryptInfo
	log     observability.Logger
}

// Open parses the file skeleton: header, xref chain, trailer,
// encryption, catalog and page tree. The buffer must stay immutable for
// the document's lifetime.
func Open(buf []byte, opts Options) (*Document, error) {
	log := opts.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	r, err := bytescan.NewReader(buf)
	if err != nil {
		return nil, ErrInvalidHeader
	}
	if !bytes.HasPrefix(buf, []byte("%PDF-")) {
		return nil, ErrInvalidHeader
	}
	lx := lexer.New(r)

	d := &Document{
		buf:     buf,
		r:       r,
		lx:      lx,
		version: headerVersion(buf),
		objects: make(map[object.ObjectID]object.Object),
		dirty:   make(map[object.ObjectID]object.Object),
		events:  make(chan object.ObjectID, 64),
		handler: security.NoopHandler(),
		log:     log,
	}

	index, err := xref.BuildIndex(lx, xref.Config{Logger: log})
	if err != nil {
		if opts.Recovery != nil && opts.Recovery.OnError(err, recovery.Location{Component: "document"}) == recovery.ActionFail {
			return nil, fmt.Errorf("document: %w", err)
		}
		log.Warn("xref chain unusable, scanning for objects", observability.Error("err", err))
		index = xref.ScanIndex(lx, xref.Config{Logger: log})
	}
	d.index = index

	if tb := index.TrailerBounds(); tb != nil {
		c := object.NewCtx(r, index, log)
		d.trailer, _ = c.ParseDictAt(tb.Start)
	}

	if err := d.setupEncryption(opts.Password); err != nil {
		return nil, err
	}

	for _, num := range index.Objects() {
		if num == 0 {
			continue
		}
		if num >= d.nextNum {
			d.nextNum = num + 1
		}
	}
	if d.nextNum == 0 {
		d.nextNum = 1
	}

	d.loadCatalog()
	return d, nil
}

func headerVersion(buf []byte) string {
	line := buf
	if idx := bytes.IndexAny(buf, "\r\n"); idx >= 0 {
		line = buf[:idx]
	}
	s := string(line)
	if strings.HasPrefix(s, "%PDF-") {
		return strings.TrimSpace(s[5:])
	}
	return ""
}

func (d *Document) setupEncryption(password string) error {
	if d.trailer == nil {
		return nil
	}
	encRef, isRef := d.trailer.RefValue("Encrypt")
	encDict, isInline := d.trailer.DictValue("Encrypt")
	if !isRef && !isInline {
		return nil
	}
	if isRef {
		info := d.index.Resolve(encRef.Num)
		if info == nil {
			return errors.New("document: encrypt dictionary unresolvable")
		}
		obj, err := object.ParseIndirect(info)
		if err != nil {
			return fmt.Errorf("document: encrypt dictionary: %w", err)
		}
		var ok bool
		if encDict, ok = obj.(*object.Dict); !ok {
			return errors.New("document: encrypt entry is not a dict")
		}
	}

	b := &security.HandlerBuilder{}
	if f, ok := encDict.NameValue("Filter"); ok {
		b.WithFilter(f)
	}
	v, _ := encDict.IntValue("V")
	rev, _ := encDict.IntValue("R")
	b.WithVersion(int(v), int(rev))
	if n, ok := encDict.IntValue("Length"); ok {
		b.WithLength(int(n))
	}
	if o, ok := encDict.StringValue("O"); ok {
		b.WithOwnerEntry(o)
	}
	if u, ok := encDict.StringValue("U"); ok {
		b.WithUserEntry(u)
	}
	if p, ok := encDict.IntValue("P"); ok {
		b.WithPermissions(int32(p))
	}
	if m, ok := encDict.BoolValue("EncryptMetadata"); ok {
		b.WithEncryptMetadata(m)
	}
	if ids, ok := d.trailer.ArrayValue("ID"); ok && ids.Len() > 0 {
		switch s := ids.Items[0].(type) {
		case object.StringLit:
			b.WithFileID(s.Decoded())
		case object.HexStr:
			b.WithFileID(s.Decoded())
		}
	}
	handler, err := b.Build()
	if err != nil {
		return fmt.Errorf("document: %w", err)
	}
	if err := handler.Authenticate(password); err != nil {
		return fmt.Errorf("document: %w", err)
	}
	d.handler = handler
	d.crypt = handler.Info()
	d.index.SetCrypt(d.crypt)
	return nil
}

func (d *Document) loadCatalog() {
	if d.trailer == nil {
		return
	}
	rootRef, ok := d.trailer.RefValue("Root")
	if !ok {
		return
	}
	if cat, ok := d.dictObject(rootRef.Num); ok {
		d.catalog = cat
		d.collectPages(cat, nil, make(map[uint32]bool))
	}
}

// collectPages walks the page tree depth first. The visited set guards
// against reference cycles in damaged files.
func (d *Document) collectPages(node *object.Dict, parent *object.ObjectID, visited map[uint32]bool) {
	pagesRef, ok := node.RefValue("Pages")
	if ok {
		if pages, found := d.dictObject(pagesRef.Num); found && !visited[pagesRef.Num] {
			visited[pagesRef.Num] = true
			d.collectPages(pages, refOf(pages), visited)
		}
		return
	}
	kids, ok := node.ArrayValue("Kids")
	if !ok {
		return
	}
	for _, kid := range kids.Items {
		r, ok := kid.(object.Ref)
		if !ok || visited[r.ID.Num] {
			continue
		}
		visited[r.ID.Num] = true
		child, found := d.dictObject(r.ID.Num)
		if !found {
			d.log.Warn("page tree kid unresolvable", observability.Uint32("object", r.ID.Num))
			continue
		}
		child.SetParent(parent)
		if t, _ := child.NameValue("Type"); t == "Pages" {
			d.collectPages(child, refOf(child), visited)
			continue
		}
		d.pages = append(d.pages, r.ID)
	}
}

func refOf(dict *object.Dict) *object.ObjectID { return dict.Ref() }

// Object materializes the indirect object with the given number,
// caching the result and wiring change observation.
func (d *Document) Object(num uint32) (object.Object, bool) {
	info := d.index.Resolve(num)
	if info == nil {
		return nil, false
	}
	id := object.ObjectID{Num: info.Num, Gen: info.Gen}
	if obj, ok := d.objects[id]; ok {
		return obj, true
	}
	obj, err := object.ParseIndirect(info)
	if err != nil {
		d.log.Warn("object parse failed", observability.Uint32("object", num), observability.Error("err", err))
		return nil, false
	}
	switch v := obj.(type) {
	case *object.Dict:
		v.Observe(d.events)
	case *object.Stream:
		v.Observe(d.events)
	}
	d.objects[id] = obj
	return obj, true
}

func (d *Document) dictObject(num uint32) (*object.Dict, bool) {
	obj, ok := d.Object(num)
	if !ok {
		return nil, false
	}
	if s, ok := obj.(*object.Stream); ok {
		return &s.Dict, true
	}
	dict, ok := obj.(*object.Dict)
	return dict, ok
}

// Version reports the header version, e.g. "1.7".
func (d *Document) Version() string { return d.version }

// Encrypted reports whether the file carries an /Encrypt dictionary.
func (d *Document) Encrypted() bool { return d.handler.IsEncrypted() }

// Trailer returns the newest trailer dictionary.
func (d *Document) Trailer() *object.Dict { return d.trailer }

// Catalog returns the document catalog.
func (d *Document) Catalog() *object.Dict { return d.catalog }

// Index exposes the object index for collaborators that resolve
// references themselves.
func (d *Document) Index() xref.Index { return d.index }

func (d *Document) PageCount() int { return len(d.pages) }

// Page returns the page dictionary at index i.
func (d *Document) Page(i int) (*object.Dict, error) {
	if i < 0 || i >= len(d.pages) {
		return nil, ErrPageRange
	}
	page, ok := d.dictObject(d.pages[i].Num)
	if !ok {
		return nil, ErrNoCatalog
	}
	return page, nil
}

// Resources resolves a page's resource dictionary, following an
// indirect /Resources entry when present.
func (d *Document) Resources(page *object.Dict) *resources.ResourceDict {
	if ref, ok := page.RefValue("Resources"); ok {
		info := d.index.Resolve(ref.Num)
		if info == nil {
			return nil
		}
		return resources.Parse(info, d.log)
	}
	if _, ok := page.DictValue("Resources"); !ok {
		return nil
	}
	// Inline resources: re-lex from the page's byte range so the
	// resource dict keeps positional identity.
	pageRef := page.Ref()
	if pageRef == nil {
		return nil
	}
	info := d.index.Resolve(pageRef.Num)
	if info == nil || !info.Bounds.HasContent {
		return nil
	}
	c := object.NewCtx(info.Parser, d.index, d.log)
	at := findDictKey(c, info.Bounds, "Resources")
	if at == -1 {
		return nil
	}
	return resources.ParseAt(c, at, d.index, d.log)
}

// findDictKey locates the value position of a top-level key inside an
// indirect dict's interior.
func findDictKey(c *object.Ctx, b *bytescan.Bounds, key string) int {
	at := b.ContentStart
	for at != -1 && at <= b.ContentEnd {
		at = c.Lx.SkipToNextName(at, b.ContentEnd)
		if at == -1 {
			return -1
		}
		name := c.Vp.ParseNameAt(at, false, false)
		if name == nil {
			return -1
		}
		start, end := c.RawValueAt(name.End + 1)
		if start == -1 {
			return -1
		}
		if name.Value == key {
			return start
		}
		at = end + 1
	}
	return -1
}

// allocateID hands out the next free object number.
func (d *Document) allocateID() object.ObjectID {
	id := object.ObjectID{Num: d.nextNum}
	d.nextNum++
	return id
}

// Register adds a new object to the table under a fresh id and queues
// it for the next incremental write.
func (d *Document) Register(obj object.Object) object.ObjectID {
	id := d.allocateID()
	switch v := obj.(type) {
	case *object.Dict:
		v.SetRef(id)
		v.Observe(d.events)
	case *object.Stream:
		v.SetRef(id)
		v.Observe(d.events)
	}
	d.objects[id] = obj
	d.dirty[id] = obj
	return id
}

// AppendAnnotationToPage registers annot as an indirect object and
// links it into the page's /Annots array, creating the array when
// missing. The page, or an indirect /Annots array, is queued for
// rewrite.
func (d *Document) AppendAnnotationToPage(pageIndex int, annot *object.Dict) (object.ObjectID, error) {
	page, err := d.Page(pageIndex)
	if err != nil {
		return object.ObjectID{}, err
	}
	id := d.Register(annot)
	annot.SetParent(page.Ref())

	if annots, ok := page.ArrayValue("Annots"); ok {
		annots.Append(object.Ref{ID: id})
		page.MarkEdited()
	} else if annotsRef, ok := page.RefValue("Annots"); ok {
		obj, found := d.Object(annotsRef.Num)
		arr, isArr := obj.(*object.Array)
		if !found || !isArr {
			return object.ObjectID{}, fmt.Errorf("document: /Annots of page %d is not an array", pageIndex)
		}
		arr.Append(object.Ref{ID: id})
		d.dirty[object.ObjectID{Num: annotsRef.Num, Gen: annotsRef.Gen}] = arr
	} else {
		arr := &object.Array{}
		arr.Append(object.Ref{ID: id})
		page.Set("Annots", arr)
	}

	if page.Edited() {
		if pr := page.Ref(); pr != nil {
			d.dirty[*pr] = page
		}
	}
	return id, nil
}

// drainEvents folds queued change notifications into the dirty set.
func (d *Document) drainEvents() {
	for {
		select {
		case id := <-d.events:
			if obj, ok := d.objects[id]; ok && id.Num != 0 {
				d.dirty[id] = obj
			}
		default:
			return
		}
	}
}

// markEditedObjects sweeps the cache for raised dirty flags. The flag
// is authoritative; the channel is only a fast path.
func (d *Document) markEditedObjects() {
	for id, obj := range d.objects {
		switch v := obj.(type) {
		case *object.Dict:
			if v.Edited() {
				d.dirty[id] = obj
			}
		case *object.Stream:
			if v.Edited() {
				d.dirty[id] = obj
			}
		}
	}
}

// SaveIncremental writes the original bytes untouched, then every
// edited or new object, a cross-reference section covering exactly
// those, and a trailer chaining to the previous table. Serialization
// failures abort the write.
func (d *Document) SaveIncremental(w io.Writer) error {
	d.drainEvents()
	d.markEditedObjects()

	var out bytes.Buffer
	out.Write(d.buf)
	if d.buf[len(d.buf)-1] != '\n' && d.buf[len(d.buf)-1] != '\r' {
		out.WriteByte('\n')
	}

	ids := make([]object.ObjectID, 0, len(d.dirty))
	for id := range d.dirty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Num < ids[j].Num })

	offsets := make(map[object.ObjectID]int, len(ids))
	for _, id := range ids {
		offsets[id] = out.Len()
		if err := object.WriteIndirect(&out, id, d.dirty[id], d.crypt); err != nil {
			return fmt.Errorf("document: serialize %s: %w", id, err)
		}
	}

	xrefOffset := out.Len()
	out.WriteString("xref\n")
	for s := 0; s < len(ids); {
		e := s
		for e+1 < len(ids) && ids[e+1].Num == ids[e].Num+1 {
			e++
		}
		fmt.Fprintf(&out, "%d %d\n", ids[s].Num, e-s+1)
		for _, id := range ids[s : e+1] {
			fmt.Fprintf(&out, "%010d %05d n \n", offsets[id], id.Gen)
		}
		s = e + 1
	}

	out.WriteString("trailer\n")
	if err := d.writeTrailer(&out); err != nil {
		return err
	}
	fmt.Fprintf(&out, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	if _, err := w.Write(out.Bytes()); err != nil {
		return fmt.Errorf("document: %w", err)
	}
	for _, id := range ids {
		switch v := d.dirty[id].(type) {
		case *object.Dict:
			v.ClearEdited()
		case *object.Stream:
			v.ClearEdited()
		}
	}
	d.dirty = make(map[object.ObjectID]object.Object)
	return nil
}

// writeTrailer copies the original trailer, updating /Size and /Prev.
func (d *Document) writeTrailer(out *bytes.Buffer) error {
	t := object.NewDict()
	t.Set("Size", object.Number{V: float64(d.nextNum)})
	if d.trailer != nil {
		for _, k := range d.trailer.Keys() {
			if k == "Size" || k == "Prev" {
				continue
			}
			v, _ := d.trailer.Get(k)
			t.Set(k, v)
		}
	}
	if prev := xref.FindStartXref(d.lx); prev >= 0 {
		t.Set("Prev", object.Number{V: float64(prev)})
	}
	return t.WriteTo(out, nil)
}
