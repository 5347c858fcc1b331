package extract

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"strings"

	// Registered decoders. The standard library covers gif, jpeg and png.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/jtejido/go-wsq"
	_ "github.com/spakin/netpbm"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// wsqMagic is the WSQ start of image marker.
const wsqMagic = "\xff\xa0"

func init() {
	image.RegisterFormat("wsq", wsqMagic, wsq.Decode, decodeWSQConfig)
}

// decodeWSQConfig reads the whole image; the codec has no header-only path.
func decodeWSQConfig(r io.Reader) (image.Config, error) {
	img, err := wsq.Decode(r)
	if err != nil {
		return image.Config{}, err
	}
	b := img.Bounds()
	return image.Config{ColorModel: color.GrayModel, Width: b.Dx(), Height: b.Dy()}, nil
}

var (
	ErrInvalidImage     = errors.New("invalid image")
	ErrUnsupportedMedia = errors.New("unsupported image type")
)

// mediaTypes lists the data URL media types accepted by ParseDataURL.
var mediaTypes = map[string]string{
	"image/png":                "png",
	"image/jpeg":               "jpeg",
	"image/jpg":                "jpeg",
	"image/gif":                "gif",
	"image/bmp":                "bmp",
	"image/x-ms-bmp":           "bmp",
	"image/tiff":               "tiff",
	"image/wsq":                "wsq",
	"image/x-wsq":              "wsq",
	"image/x-portable-graymap": "pgm",
	"image/x-portable-bitmap":  "pbm",
	"image/x-portable-anymap":  "pnm",
	"application/octet-stream": "",
}

// ParseDataURL decodes a base64 image, optionally wrapped in a data URL
// ("data:image/png;base64,..."). The returned hint is the format named by the
// media type, or empty when there was none.
func ParseDataURL(s string) (data []byte, hint string, err error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		meta, payload, ok := strings.Cut(s, ",")
		if !ok {
			return nil, "", fmt.Errorf("%w: malformed data url", ErrInvalidImage)
		}
		media := strings.TrimPrefix(meta, "data:")
		media, _, _ = strings.Cut(media, ";")
		var known bool
		if hint, known = mediaTypes[strings.ToLower(media)]; !known {
			return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, media)
		}
		s = payload
	}
	data, err = base64.StdEncoding.DecodeString(s)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(s); err != nil {
			return nil, "", fmt.Errorf("%w: base64: %v", ErrInvalidImage, err)
		}
	}
	return data, hint, nil
}

// DecodeImage decodes any registered format and converts it to grayscale.
func DecodeImage(data []byte) (*image.Gray, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return toGray(img), format, nil
}

func LoadImage(path string) (*image.Gray, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, _, err := DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// toGray copies img into a grayscale image whose bounds start at the origin.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}
