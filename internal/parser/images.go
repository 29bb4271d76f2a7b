package parser

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/ledongthuc/pdf"

	"pdf-rag/internal/models"
)

const (
	mimePNG  = "image/png"
	mimeJPEG = "image/jpeg"
)

var errJPEGNotFound = errors.New("jpeg stream not found")

// decodeImage turns an image XObject into bytes a vision model accepts. JPEG
// streams are passed through untouched, raw and Flate samples are re-encoded
// as PNG.
func decodeImage(v pdf.Value, data []byte) (img models.ImageData, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("decode image: %v", rec)
		}
	}()

	w, h := int(v.Key("Width").Int64()), int(v.Key("Height").Int64())
	if w <= 0 || h <= 0 {
		return models.ImageData{}, fmt.Errorf("invalid image size %dx%d", w, h)
	}

	filters := imageFilters(v)
	switch {
	case len(filters) == 1 && filters[0] == "DCTDecode":
		raw, err := findJPEG(data, v.Key("Length").Int64(), w, h)
		if err != nil {
			return models.ImageData{}, err
		}
		return models.ImageData{MimeType: mimeJPEG, Bytes: raw}, nil
	case readableFilters(filters):
		samples, err := io.ReadAll(v.Reader())
		if err != nil {
			return models.ImageData{}, fmt.Errorf("read image samples: %w", err)
		}
		comps, err := colorComponents(v)
		if err != nil {
			return models.ImageData{}, err
		}
		bpc := int(v.Key("BitsPerComponent").Int64())
		if v.Key("ImageMask").Bool() {
			bpc = 1
		}
		im, err := samplesToImage(samples, w, h, bpc, comps)
		if err != nil {
			return models.ImageData{}, err
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, im); err != nil {
			return models.ImageData{}, fmt.Errorf("encode png: %w", err)
		}
		return models.ImageData{MimeType: mimePNG, Bytes: buf.Bytes()}, nil
	default:
		return models.ImageData{}, fmt.Errorf("unsupported image filter %v", filters)
	}
}

func imageFilters(v pdf.Value) []string {
	f := v.Key("Filter")
	switch f.Kind() {
	case pdf.Name:
		return []string{f.Name()}
	case pdf.Array:
		names := make([]string, 0, f.Len())
		for i := 0; i < f.Len(); i++ {
			names = append(names, f.Index(i).Name())
		}
		return names
	}
	return nil
}

// readableFilters reports whether the pdf package can decode the stream.
func readableFilters(filters []string) bool {
	for _, f := range filters {
		if f != "FlateDecode" && f != "ASCII85Decode" {
			return false
		}
	}
	return true
}

func colorComponents(v pdf.Value) (int, error) {
	if v.Key("ImageMask").Bool() {
		return 1, nil
	}
	cs := v.Key("ColorSpace")
	name := cs.Name()
	if cs.Kind() == pdf.Array {
		name = cs.Index(0).Name()
	}
	switch name {
	case "DeviceGray", "CalGray":
		return 1, nil
	case "DeviceRGB", "CalRGB":
		return 3, nil
	case "DeviceCMYK":
		return 4, nil
	case "ICCBased":
		if n := int(cs.Index(1).Key("N").Int64()); n == 1 || n == 3 || n == 4 {
			return n, nil
		}
	}
	return 0, fmt.Errorf("unsupported color space %q", name)
}

func samplesToImage(samples []byte, w, h, bpc, comps int) (image.Image, error) {
	rect := image.Rect(0, 0, w, h)
	switch {
	case bpc == 8:
		if len(samples) < w*h*comps {
			return nil, fmt.Errorf("short image data: %d bytes for %dx%dx%d", len(samples), w, h, comps)
		}
		switch comps {
		case 1:
			return &image.Gray{Pix: samples[:w*h], Stride: w, Rect: rect}, nil
		case 3:
			im := image.NewRGBA(rect)
			for i := 0; i < w*h; i++ {
				copy(im.Pix[i*4:i*4+3], samples[i*3:i*3+3])
				im.Pix[i*4+3] = 0xff
			}
			return im, nil
		case 4:
			return &image.CMYK{Pix: samples[:w*h*4], Stride: w * 4, Rect: rect}, nil
		}
	case bpc == 1 && comps == 1:
		stride := (w + 7) / 8
		if len(samples) < stride*h {
			return nil, fmt.Errorf("short image data: %d bytes for %dx%d bitmap", len(samples), w, h)
		}
		im := image.NewGray(rect)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if samples[y*stride+x/8]&(0x80>>(x%8)) != 0 {
					im.SetGray(x, y, color.Gray{Y: 0xff})
				}
			}
		}
		return im, nil
	}
	return nil, fmt.Errorf("unsupported sample layout: %d bits, %d components", bpc, comps)
}

// findJPEG locates the bytes of a DCTDecode stream in the raw file. The pdf
// package cannot hand out undecoded streams, so the stream is matched by its
// length and by the dimensions in its JPEG header.
func findJPEG(data []byte, length int64, w, h int) ([]byte, error) {
	if length < 2 {
		return nil, errJPEGNotFound
	}
	marker := []byte("stream")
	for off := 0; off < len(data); {
		i := bytes.Index(data[off:], marker)
		if i < 0 {
			break
		}
		p := off + i + len(marker)
		off = p
		if p < len(data) && data[p] == '\r' {
			p++
		}
		if p < len(data) && data[p] == '\n' {
			p++
		}
		end := p + int(length)
		if end > len(data) || data[p] != 0xff || data[p+1] != 0xd8 {
			continue
		}
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(data[p:end]))
		if err != nil || cfg.Width != w || cfg.Height != h {
			continue
		}
		return data[p:end], nil
	}
	return nil, errJPEGNotFound
}
