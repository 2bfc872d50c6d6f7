package knowledge

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

const readErrorPlaceholder = "[Error reading file]"

type format struct {
	parse  func([]byte) (string, error)
	failed string
	empty  string
	skip   string
}

var mediaExtensions = map[string]bool{
	".mp4": true, ".mp3": true, ".wav": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".pptx": true, ".ppt": true,
}

func formatFor(name string) format {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".md", ".txt":
		return format{parse: parseText, failed: readErrorPlaceholder}
	case ".pdf":
		return format{parse: parsePDF, failed: "[Error parsing PDF file]", empty: "[Unable to extract text from PDF]"}
	case ".docx", ".doc":
		return format{parse: parseDOCX, failed: "[Error parsing DOCX file]", empty: "[Unable to extract text from DOCX]"}
	case ".xlsx", ".xls":
		return format{parse: parseXLSX, failed: "[Error parsing XLSX file]", empty: "[Empty spreadsheet]"}
	}
	if mediaExtensions[ext] {
		return format{skip: fmt.Sprintf("[Media file: %s - content not extracted]", name)}
	}
	return format{skip: fmt.Sprintf("[Unsupported file format: %s]", ext)}
}

func parseText(data []byte) (string, error) {
	return string(data), nil
}

func parsePDF(data []byte) (text string, err error) {
	// The pdf reader panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

// parseDOCX pulls run text out of word/document.xml, one line per paragraph.
func parseDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errors.New("docx: word/document.xml missing")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	var b strings.Builder
	dec := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func parseXLSX(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		fmt.Fprintf(&b, "\n## Sheet: %s\n", sheet)
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}
