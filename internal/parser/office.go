package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"pdf-rag/internal/models"
)

var slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// DOCX has no page boundaries, the whole body becomes page 1.
func parseDOCX(filePath string) ([]models.Page, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open docx: %w", err)
	}
	defer r.Close()

	content := extractTextFromXML(r.Editable().GetContent(), "w")
	return []models.Page{newPage(1, content)}, nil
}

// One page per slide, in slide order.
func parsePPTX(filePath string) ([]models.Page, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pptx: %w", err)
	}
	defer f.Close()

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		m := slideNameRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: n, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	pages := make([]models.Page, 0, len(slides))
	for i, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			pages = append(pages, models.Page{PageNum: i + 1, Text: models.ErrorPageText(i + 1)})
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			pages = append(pages, models.Page{PageNum: i + 1, Text: models.ErrorPageText(i + 1)})
			continue
		}
		pages = append(pages, newPage(i+1, extractTextFromXML(string(data), "a")))
	}
	return pages, nil
}

// One page per sheet, rows as tab separated lines.
func parseXLSX(filePath string) ([]models.Page, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}

	var pages []models.Page
	for i, sheet := range f.Sheets {
		var rows [][]string
		for _, row := range sheet.Rows {
			if row == nil {
				continue
			}
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		pages = append(pages, newPage(i+1, sheetText(sheet.Name, rows)))
	}
	return pages, nil
}

func parseExcelize(filePath string) ([]models.Page, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var pages []models.Page
	for i, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			pages = append(pages, models.Page{PageNum: i + 1, Text: models.ErrorPageText(i + 1)})
			continue
		}
		pages = append(pages, newPage(i+1, sheetText(sheetName, rows)))
	}
	return pages, nil
}

func sheetText(name string, rows [][]string) string {
	var b strings.Builder
	for _, row := range rows {
		line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return ""
	}
	return fmt.Sprintf("## Sheet: %s\n%s", name, b.String())
}

// Markdown is reduced to its text content: markup is dropped, block
// elements end with a newline.
func parseMarkdown(filePath string) ([]models.Page, error) {
	src, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	content, err := markdownToText(src)
	if err != nil {
		return nil, err
	}
	return []models.Page{newPage(1, content)}, nil
}

func markdownToText(src []byte) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(src))

	var buf bytes.Buffer
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
				buf.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk markdown: %w", err)
	}
	return buf.String(), nil
}

func parseText(filePath string) ([]models.Page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []models.Page{newPage(1, string(data))}, nil
}

// extractTextFromXML pulls the text runs (<ns:t>) out of an OOXML part and
// ends every paragraph (</ns:p>) with a newline.
func extractTextFromXML(xmlContent, ns string) string {
	runOpen, runClose := "<"+ns+":t", "</"+ns+":t>"
	paraClose := "</" + ns + ":p>"

	var b strings.Builder
	rest := xmlContent
	for {
		run := strings.Index(rest, runOpen)
		para := strings.Index(rest, paraClose)
		if para >= 0 && (run < 0 || para < run) {
			b.WriteString("\n")
			rest = rest[para+len(paraClose):]
			continue
		}
		if run < 0 {
			break
		}
		rest = rest[run+len(runOpen):]
		// <w:t> or <w:t xml:space="preserve">, but not <w:tab/> or <w:tbl>
		if rest == "" || (rest[0] != '>' && rest[0] != ' ') {
			continue
		}
		gt := strings.IndexByte(rest, '>')
		if gt < 0 {
			break
		}
		if gt > 0 && rest[gt-1] == '/' {
			rest = rest[gt+1:]
			continue
		}
		rest = rest[gt+1:]
		end := strings.Index(rest, runClose)
		if end < 0 {
			break
		}
		b.WriteString(html.UnescapeString(rest[:end]))
		rest = rest[end+len(runClose):]
	}
	return b.String()
}
