// Package testutil builds small but well-formed PDF documents for tests.
package testutil

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type ImageEncoding int

const (
	ImageRaw ImageEncoding = iota
	ImageFlate
	ImageJPEG
)

// GrayImage is an 8-bit DeviceGray image XObject.
type GrayImage struct {
	Width    int
	Height   int
	Pix      []byte
	Encoding ImageEncoding
}

// NewGrayImage returns a w x h image filled with a diagonal gradient.
func NewGrayImage(w, h int, enc ImageEncoding) *GrayImage {
	pix := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pix[y*w+x] = byte((x + y) * 255 / max(1, w+h-2))
		}
	}
	return &GrayImage{Width: w, Height: h, Pix: pix, Encoding: enc}
}

type Page struct {
	Lines  []string
	Images []*GrayImage
}

type PDF struct {
	Pages     []Page
	Encrypted bool
}

// Bytes renders the document with a classic xref table.
func (d PDF) Bytes() []byte {
	var objs []string
	add := func(body string) int {
		objs = append(objs, body)
		return len(objs)
	}

	catalog := add("")
	pages := add("")
	font := add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	var kids []string
	for _, p := range d.Pages {
		var xobjects []string
		var content strings.Builder
		if len(p.Lines) > 0 {
			content.WriteString("BT\n/F1 12 Tf\n14 TL\n72 720 Td\n")
			for i, line := range p.Lines {
				if i > 0 {
					content.WriteString("T*\n")
				}
				fmt.Fprintf(&content, "(%s) Tj\n", escapeString(line))
			}
			content.WriteString("ET\n")
		}
		for i, img := range p.Images {
			id := add(imageObject(img))
			name := fmt.Sprintf("Im%d", i+1)
			xobjects = append(xobjects, fmt.Sprintf("/%s %d 0 R", name, id))
			fmt.Fprintf(&content, "q\n%d 0 0 %d 72 %d cm\n/%s Do\nQ\n", img.Width, img.Height, 400-i*10, name)
		}

		contents := add(streamObject("", []byte(content.String())))
		resources := fmt.Sprintf("/Font << /F1 %d 0 R >>", font)
		if len(xobjects) > 0 {
			resources += fmt.Sprintf(" /XObject << %s >>", strings.Join(xobjects, " "))
		}
		page := add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Resources << %s >> /Contents %d 0 R >>",
			pages, resources, contents))
		kids = append(kids, fmt.Sprintf("%d 0 R", page))
	}

	objs[catalog-1] = fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pages)
	objs[pages-1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids))

	var encrypt int
	if d.Encrypted {
		encrypt = add("<< /Filter /Custom /V 1 /R 2 /Length 40 >>")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	trailer := fmt.Sprintf("/Size %d /Root %d 0 R", len(objs)+1, catalog)
	if encrypt > 0 {
		trailer += fmt.Sprintf(" /Encrypt %d 0 R /ID [<00112233445566778899aabbccddeeff> <00112233445566778899aabbccddeeff>]", encrypt)
	}
	fmt.Fprintf(&buf, "trailer\n<< %s >>\nstartxref\n%d\n%%%%EOF\n", trailer, xref)
	return buf.Bytes()
}

// WritePDF writes the document under dir and returns its path.
func WritePDF(t testing.TB, dir, name string, d PDF) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, d.Bytes(), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}

func imageObject(img *GrayImage) string {
	dict := fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8",
		img.Width, img.Height)
	data := img.Pix
	switch img.Encoding {
	case ImageFlate:
		var b bytes.Buffer
		zw := zlib.NewWriter(&b)
		zw.Write(img.Pix)
		zw.Close()
		data = b.Bytes()
		dict += " /Filter /FlateDecode"
	case ImageJPEG:
		gray := &image.Gray{Pix: img.Pix, Stride: img.Width, Rect: image.Rect(0, 0, img.Width, img.Height)}
		var b bytes.Buffer
		if err := jpeg.Encode(&b, gray, &jpeg.Options{Quality: 90}); err != nil {
			panic(err)
		}
		data = b.Bytes()
		dict += " /Filter /DCTDecode"
	}
	return streamObject(dict, data)
}

func streamObject(dict string, data []byte) string {
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}

func escapeString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
