package models

import (
	"fmt"
	"regexp"
	"strings"
)

var sentinelRe = regexp.MustCompile(SentinelRegex)

// Page is the text extracted from a single page of a document, plus the
// images placed on it.
type Page struct {
	PageNum int     `json:"page_num"`
	Text    string  `json:"text"`
	Images  []Image `json:"-"`
}

// IsSentinel reports whether the page text is an extraction failure marker.
func (p Page) IsSentinel() bool {
	return sentinelRe.MatchString(strings.TrimSpace(p.Text))
}

func EmptyPageText(pageNum int) string {
	return fmt.Sprintf(EmptyPageFormat, pageNum)
}

func ErrorPageText(pageNum int) string {
	return fmt.Sprintf(ErrorPageFormat, pageNum)
}

// ImageData is an encoded image ready to be sent to a recognition engine.
type ImageData struct {
	MimeType string
	Bytes    []byte
}

// Image is an image embedded in a page. Its bytes are decoded on Open so
// pages that never reach OCR do not pay for decoding.
type Image struct {
	Name string
	open func() (ImageData, error)
}

func NewImage(name string, open func() (ImageData, error)) Image {
	return Image{Name: name, open: open}
}

func (i Image) Open() (ImageData, error) {
	if i.open == nil {
		return ImageData{}, fmt.Errorf("image %s has no data source", i.Name)
	}
	return i.open()
}

// PromptResponse is what the CLI prints for a question.
type PromptResponse struct {
	Query   string
	Source  string
	Content string
}
