// Package filters decodes PDF stream filter chains: Flate, LZW,
// ASCIIHex, ASCII85, RunLength and CCITTFax, with predictor support.
package filters

import (
	"bytes"
	"compress/lzw"
	"compress/zlib"
	"encoding/ascii85"
	"errors"
	"fmt"
	"io"

	"golang.org/x/image/ccitt"
)

// Params carries the DecodeParms entries a decoder may consult.
type Params struct {
	Predictor        int
	Colors           int
	BitsPerComponent int
	Columns          int
	EarlyChange      int

	// CCITTFaxDecode.
	K        int
	Rows     int
	BlackIs1 bool
}

// DefaultParams returns the PDF defaults.
func DefaultParams() Params {
	return Params{
		Predictor:        1,
		Colors:           1,
		BitsPerComponent: 8,
		Columns:          1728,
		EarlyChange:      1,
	}
}

// Decoder decodes one filter.
type Decoder interface {
	Name() string
	Decode(data []byte, parms Params) ([]byte, error)
}

// Limits caps decode output.
type Limits struct {
	MaxDecompressedSize int64
}

// Pipeline applies a filter chain in order.
type Pipeline struct {
	decoders map[string]Decoder
	limits   Limits
}

func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	m := make(map[string]Decoder, len(decoders))
	for _, d := range decoders {
		m[d.Name()] = d
	}
	return &Pipeline{decoders: m, limits: limits}
}

// DefaultPipeline returns a pipeline with every supported decoder and
// no size cap.
func DefaultPipeline() *Pipeline {
	return NewPipeline([]Decoder{
		NewFlateDecoder(),
		NewLZWDecoder(),
		NewASCIIHexDecoder(),
		NewASCII85Decoder(),
		NewRunLengthDecoder(),
		NewCCITTDecoder(),
	}, Limits{})
}

// Decode runs data through the named filters. Parms may be shorter than
// names; missing entries use the defaults.
func (p *Pipeline) Decode(data []byte, names []string, parms []Params) ([]byte, error) {
	out := data
	for i, name := range names {
		pr := DefaultParams()
		if i < len(parms) {
			pr = parms[i]
		}
		dec, ok := p.decoders[name]
		if !ok {
			return nil, fmt.Errorf("filters: unsupported filter %s", name)
		}
		var err error
		out, err = dec.Decode(out, pr)
		if err != nil {
			return nil, fmt.Errorf("filters: %s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, errors.New("filters: decompressed size limit exceeded")
		}
	}
	return out, nil
}

type flateDecoder struct{}

func NewFlateDecoder() Decoder { return flateDecoder{} }

func (flateDecoder) Name() string { return "FlateDecode" }

func (flateDecoder) Decode(data []byte, parms Params) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return applyPredictor(out, parms)
}

type lzwDecoder struct{}

func NewLZWDecoder() Decoder { return lzwDecoder{} }

func (lzwDecoder) Name() string { return "LZWDecode" }

func (lzwDecoder) Decode(data []byte, parms Params) ([]byte, error) {
	lr := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
	defer lr.Close()
	out, err := io.ReadAll(lr)
	if err != nil && len(out) == 0 {
		return nil, err
	}
	return applyPredictor(out, parms)
}

type asciiHexDecoder struct{}

func NewASCIIHexDecoder() Decoder { return asciiHexDecoder{} }

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }

func (asciiHexDecoder) Decode(data []byte, _ Params) ([]byte, error) {
	nibbles := make([]byte, 0, len(data))
	for _, c := range data {
		switch {
		case c >= '0' && c <= '9':
			nibbles = append(nibbles, c-'0')
		case c >= 'a' && c <= 'f':
			nibbles = append(nibbles, c-'a'+10)
		case c >= 'A' && c <= 'F':
			nibbles = append(nibbles, c-'A'+10)
		case c == '>':
			goto done
		case c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20:
			// whitespace between digits
		default:
			return nil, fmt.Errorf("invalid hex digit %q", c)
		}
	}
done:
	if len(nibbles)%2 == 1 {
		nibbles = append(nibbles, 0)
	}
	out := make([]byte, 0, len(nibbles)/2)
	for i := 0; i < len(nibbles); i += 2 {
		out = append(out, nibbles[i]<<4|nibbles[i+1])
	}
	return out, nil
}

type ascii85Decoder struct{}

func NewASCII85Decoder() Decoder { return ascii85Decoder{} }

func (ascii85Decoder) Name() string { return "ASCII85Decode" }

func (ascii85Decoder) Decode(data []byte, _ Params) ([]byte, error) {
	// Strip whitespace and the ~> terminator; encoding/ascii85 handles
	// neither.
	clean := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		c := data[i]
		if c == '~' {
			break
		}
		if c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20 {
			continue
		}
		clean = append(clean, c)
	}
	out, err := io.ReadAll(ascii85.NewDecoder(bytes.NewReader(clean)))
	if err != nil {
		return nil, err
	}
	return out, nil
}

type runLengthDecoder struct{}

func NewRunLengthDecoder() Decoder { return runLengthDecoder{} }

func (runLengthDecoder) Name() string { return "RunLengthDecode" }

func (runLengthDecoder) Decode(data []byte, _ Params) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(data); {
		n := int(data[i])
		i++
		switch {
		case n == 128:
			return out.Bytes(), nil
		case n < 128:
			if i+n+1 > len(data) {
				return nil, errors.New("truncated literal run")
			}
			out.Write(data[i : i+n+1])
			i += n + 1
		default:
			if i >= len(data) {
				return nil, errors.New("truncated repeat run")
			}
			for k := 0; k < 257-n; k++ {
				out.WriteByte(data[i])
			}
			i++
		}
	}
	return out.Bytes(), nil
}

type ccittDecoder struct{}

func NewCCITTDecoder() Decoder { return ccittDecoder{} }

func (ccittDecoder) Name() string { return "CCITTFaxDecode" }

func (ccittDecoder) Decode(data []byte, parms Params) ([]byte, error) {
	subFormat := ccitt.Group3
	if parms.K < 0 {
		subFormat = ccitt.Group4
	}
	cols := parms.Columns
	if cols == 0 {
		cols = 1728
	}
	rows := parms.Rows
	if rows == 0 {
		// Unknown height: decode generously and trim to what arrives.
		rows = 1 << 20
	}
	opts := &ccitt.Options{Invert: !parms.BlackIs1, Align: false}
	r := ccitt.NewReader(bytes.NewReader(data), ccitt.MSB, subFormat, cols, rows, opts)
	out, err := io.ReadAll(r)
	if err != nil && len(out) == 0 {
		return nil, err
	}
	return out, nil
}

// applyPredictor undoes the PNG and TIFF predictors of FlateDecode and
// LZWDecode output.
func applyPredictor(data []byte, parms Params) ([]byte, error) {
	switch {
	case parms.Predictor <= 1:
		return data, nil
	case parms.Predictor == 2:
		return applyTIFFPredictor(data, parms)
	case parms.Predictor >= 10:
		return applyPNGPredictor(data, parms)
	default:
		return nil, fmt.Errorf("unsupported predictor %d", parms.Predictor)
	}
}

func bytesPerPixel(parms Params) int {
	bpp := parms.Colors * parms.BitsPerComponent / 8
	if bpp < 1 {
		bpp = 1
	}
	return bpp
}

func rowLength(parms Params) int {
	n := parms.Columns * parms.Colors * parms.BitsPerComponent / 8
	if n < 1 {
		n = 1
	}
	return n
}

func applyTIFFPredictor(data []byte, parms Params) ([]byte, error) {
	if parms.BitsPerComponent != 8 {
		return nil, errors.New("TIFF predictor requires 8 bits per component")
	}
	rowLen := rowLength(parms)
	bpp := bytesPerPixel(parms)
	for row := 0; row+rowLen <= len(data); row += rowLen {
		for i := bpp; i < rowLen; i++ {
			data[row+i] += data[row+i-bpp]
		}
	}
	return data, nil
}

func applyPNGPredictor(data []byte, parms Params) ([]byte, error) {
	rowLen := rowLength(parms)
	bpp := bytesPerPixel(parms)
	stride := rowLen + 1
	if len(data)%stride != 0 {
		return nil, errors.New("PNG predictor data not a whole number of rows")
	}
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		tag := data[r*stride]
		copy(cur, data[r*stride+1:(r+1)*stride])
		switch tag {
		case 0: // none
		case 1: // sub
			for i := bpp; i < rowLen; i++ {
				cur[i] += cur[i-bpp]
			}
		case 2: // up
			for i := 0; i < rowLen; i++ {
				cur[i] += prev[i]
			}
		case 3: // average
			for i := 0; i < rowLen; i++ {
				left := 0
				if i >= bpp {
					left = int(cur[i-bpp])
				}
				cur[i] += byte((left + int(prev[i])) / 2)
			}
		case 4: // paeth
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= bpp {
					left = cur[i-bpp]
					upLeft = prev[i-bpp]
				}
				cur[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, fmt.Errorf("invalid PNG predictor tag %d", tag)
		}
		out = append(out, cur...)
		copy(prev, cur)
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
