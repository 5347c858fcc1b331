package fingerprint

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"time"

	"github.com/fxamacker/cbor/v2"
	jsoniter "github.com/json-iterator/go"
)

// Format selects the structured encoding inside the base64 envelope.
type Format int

const (
	// FormatJSON is the layout existing enrollment clients write.
	FormatJSON Format = iota
	// FormatCBOR is a compact binary layout with the same fields.
	FormatCBOR
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatCBOR:
		return "cbor"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat maps a configuration value to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "json":
		return FormatJSON, nil
	case "cbor":
		return FormatCBOR, nil
	}
	return 0, fmt.Errorf("unknown template format %q", s)
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.EncOptions{
		Time: cbor.TimeRFC3339Nano,
		Sort: cbor.SortCanonical,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	cborDec, err = cbor.DecOptions{
		MaxArrayElements: 1 << 16,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

type wireMinutia struct {
	X           int     `json:"x" cbor:"x"`
	Y           int     `json:"y" cbor:"y"`
	Orientation float64 `json:"orientation" cbor:"orientation"`
	Type        string  `json:"type" cbor:"type"`
}

// wireTemplate is the on-wire layout. image_shape is [height, width].
type wireTemplate struct {
	Version       string        `json:"version" cbor:"version"`
	Quality       *float64      `json:"quality" cbor:"quality"`
	ImageShape    []int         `json:"image_shape" cbor:"image_shape"`
	Minutiae      []wireMinutia `json:"minutiae" cbor:"minutiae"`
	MinutiaeCount *int          `json:"minutiae_count" cbor:"minutiae_count"`
	CreatedAt     *time.Time    `json:"created_at" cbor:"created_at"`
}

// Codec turns templates into opaque transport payloads and back.
// The zero value encodes JSON.
type Codec struct {
	Format Format
}

// DefaultCodec is the codec used by the package level Encode.
var DefaultCodec = Codec{Format: FormatJSON}

// Decode parses raw with format sniffing. See Codec.Decode.
func Decode(raw []byte) (*Template, error) {
	return DefaultCodec.Decode(raw)
}

// Encode serializes t with DefaultCodec.
func Encode(t *Template) ([]byte, error) {
	return DefaultCodec.Encode(t)
}

// Decode parses a base64 payload holding either JSON or CBOR; the format is
// detected from the first non-space byte, independent of c.Format.
// Orientations are wrapped into [0, 2π) and timestamps converted to UTC.
func (c Codec) Decode(raw []byte) (*Template, error) {
	payload, err := unwrapBase64(raw)
	if err != nil {
		return nil, malformed(err, "invalid base64 envelope")
	}
	trimmed := bytes.TrimLeft(payload, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, malformed(nil, "empty payload")
	}

	var w wireTemplate
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return nil, malformed(err, "invalid json")
		}
	} else if err := cborDec.Unmarshal(trimmed, &w); err != nil {
		return nil, malformed(err, "invalid cbor")
	}
	return fromWire(&w)
}

// Encode validates t and serializes it in c.Format inside a base64 envelope.
func (c Codec) Encode(t *Template) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	w := toWire(t)

	var (
		payload []byte
		err     error
	)
	switch c.Format {
	case FormatJSON:
		payload, err = json.Marshal(w)
	case FormatCBOR:
		payload, err = cborEnc.Marshal(w)
	default:
		return nil, fmt.Errorf("encode template: unsupported format %s", c.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode template: %w", err)
	}

	out := make([]byte, base64.StdEncoding.EncodedLen(len(payload)))
	base64.StdEncoding.Encode(out, payload)
	return out, nil
}

func unwrapBase64(raw []byte) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	out := make([]byte, base64.StdEncoding.DecodedLen(len(raw)))
	n, err := base64.StdEncoding.Decode(out, raw)
	if err == nil {
		return out[:n], nil
	}
	// Some clients strip padding.
	out = make([]byte, base64.RawStdEncoding.DecodedLen(len(raw)))
	n, rawErr := base64.RawStdEncoding.Decode(out, raw)
	if rawErr != nil {
		return nil, err
	}
	return out[:n], nil
}

func fromWire(w *wireTemplate) (*Template, error) {
	if !supportedVersion(w.Version) {
		return nil, malformed(nil, "unsupported version %q", w.Version)
	}
	if w.Quality == nil {
		return nil, malformed(nil, "missing quality")
	}
	if w.MinutiaeCount == nil {
		return nil, malformed(nil, "missing minutiae_count")
	}
	if len(w.ImageShape) < 2 {
		return nil, malformed(nil, "image_shape needs [height, width], got %v", w.ImageShape)
	}
	if *w.MinutiaeCount != len(w.Minutiae) {
		return nil, violated("minutiae_count %d but %d minutiae", *w.MinutiaeCount, len(w.Minutiae))
	}

	t := &Template{
		Version:  w.Version,
		Shape:    ImageShape{Width: w.ImageShape[1], Height: w.ImageShape[0]},
		Quality:  *w.Quality,
		Minutiae: make([]Minutia, len(w.Minutiae)),
	}
	if w.CreatedAt != nil {
		t.CreatedAt = w.CreatedAt.UTC()
	}
	for i, m := range w.Minutiae {
		typ, err := ParseMinutiaType(m.Type)
		if err != nil {
			return nil, malformed(err, "minutia %d", i)
		}
		t.Minutiae[i] = Minutia{
			X:           m.X,
			Y:           m.Y,
			Orientation: NormalizeAngle(m.Orientation),
			Type:        typ,
		}
		if math.IsNaN(m.Orientation) || math.IsInf(m.Orientation, 0) {
			return nil, violated("minutia %d has non-finite orientation", i)
		}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func toWire(t *Template) *wireTemplate {
	quality := t.Quality
	count := len(t.Minutiae)
	w := &wireTemplate{
		Version:       t.Version,
		Quality:       &quality,
		ImageShape:    []int{t.Shape.Height, t.Shape.Width},
		Minutiae:      make([]wireMinutia, len(t.Minutiae)),
		MinutiaeCount: &count,
	}
	if !t.CreatedAt.IsZero() {
		created := t.CreatedAt
		w.CreatedAt = &created
	}
	for i, m := range t.Minutiae {
		w.Minutiae[i] = wireMinutia{
			X:           m.X,
			Y:           m.Y,
			Orientation: m.Orientation,
			Type:        m.Type.String(),
		}
	}
	return w
}
