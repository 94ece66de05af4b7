package object

import (
	"bytes"

	"github.com/markpdf/cos/filters"
	"github.com/markpdf/cos/security"
)

// FilterSpec is one link of a stream's filter chain.
type FilterSpec struct {
	Name  string
	Parms *Dict
}

// Stream is a dictionary with a byte payload. Data holds the payload as
// plaintext: loaders decrypt on parse and write re-encrypts through the
// crypt hook.
type Stream struct {
	Dict
	Data    []byte
	Filters []FilterSpec
}

func NewStream(dict *Dict, data []byte) *Stream {
	s := &Stream{Data: data}
	if dict != nil {
		s.Dict = *dict
	}
	s.Filters = filterChain(&s.Dict)
	return s
}

func (s *Stream) Type() string { return "stream" }

// SetData replaces the payload and marks the stream edited.
func (s *Stream) SetData(data []byte) {
	s.Data = data
	s.MarkEdited()
}

// DecodedData runs the payload through the filter chain.
func (s *Stream) DecodedData() ([]byte, error) {
	if len(s.Filters) == 0 {
		return s.Data, nil
	}
	names := make([]string, len(s.Filters))
	parms := make([]filters.Params, len(s.Filters))
	for i, f := range s.Filters {
		names[i] = f.Name
		parms[i] = filterParams(f.Parms)
	}
	return filters.DefaultPipeline().Decode(s.Data, names, parms)
}

// filterChain reads /Filter and /DecodeParms into specs.
func filterChain(d *Dict) []FilterSpec {
	fObj, ok := d.Get("Filter")
	if !ok {
		return nil
	}
	var specs []FilterSpec
	switch v := fObj.(type) {
	case Name:
		specs = []FilterSpec{{Name: v.V}}
	case *Array:
		for _, it := range v.Items {
			if n, ok := it.(Name); ok {
				specs = append(specs, FilterSpec{Name: n.V})
			}
		}
	}
	if len(specs) == 0 {
		return nil
	}
	if dp, ok := d.Get("DecodeParms"); ok {
		switch p := dp.(type) {
		case *Dict:
			specs[0].Parms = p
		case *Array:
			for i, it := range p.Items {
				if i >= len(specs) {
					break
				}
				if dd, ok := it.(*Dict); ok {
					specs[i].Parms = dd
				}
			}
		}
	}
	return specs
}

func filterParams(d *Dict) filters.Params {
	p := filters.DefaultParams()
	if d == nil {
		return p
	}
	if v, ok := d.IntValue("Predictor"); ok {
		p.Predictor = int(v)
	}
	if v, ok := d.IntValue("Colors"); ok {
		p.Colors = int(v)
	}
	if v, ok := d.IntValue("BitsPerComponent"); ok {
		p.BitsPerComponent = int(v)
	}
	if v, ok := d.IntValue("Columns"); ok {
		p.Columns = int(v)
	}
	if v, ok := d.IntValue("EarlyChange"); ok {
		p.EarlyChange = int(v)
	}
	if v, ok := d.IntValue("K"); ok {
		p.K = int(v)
	}
	if v, ok := d.IntValue("Rows"); ok {
		p.Rows = int(v)
	}
	if v, ok := d.BoolValue("BlackIs1"); ok {
		p.BlackIs1 = v
	}
	return p
}

// WriteTo emits the stream frame. The payload is encrypted through the
// crypt hook when the stream carries an indirect reference, and /Length
// always reflects the emitted payload.
func (s *Stream) WriteTo(buf *bytes.Buffer, crypt *security.CryptInfo) error {
	payload := s.Data
	if crypt != nil && s.ref != nil {
		payload = crypt.EncryptBytes(s.ref.Num, s.ref.Gen, payload)
	}

	buf.WriteString("<<")
	wroteLength := false
	for _, k := range s.keys {
		buf.WriteByte('/')
		buf.WriteString(k)
		buf.WriteByte(' ')
		if k == "Length" {
			buf.WriteString(FormatNumber(float64(len(payload))))
			wroteLength = true
			continue
		}
		if err := writeChild(buf, s.props[k], crypt); err != nil {
			return err
		}
	}
	if !wroteLength {
		buf.WriteString("/Length ")
		buf.WriteString(FormatNumber(float64(len(payload))))
	}
	buf.WriteString(">>")

	buf.WriteString("stream\n")
	buf.Write(payload)
	buf.WriteString("\nendstream")
	return nil
}
