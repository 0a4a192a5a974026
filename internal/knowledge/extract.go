package knowledge

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"
)

// ExtractText pulls indexable text out of file bytes based on the declared
// filename. DOCX archives are unpacked properly; everything else falls back
// to printable-run extraction, which is lossy for PDF but keeps real words.
func ExtractText(name string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".docx":
		return extractDocx(data)
	default:
		return extractPrintable(data), nil
	}
}

// extractDocx reads word/document.xml from the DOCX zip archive and collects
// its character data, inserting line breaks at paragraph ends.
func extractDocx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		defer rc.Close()
		return extractXMLText(rc)
	}
	return "", fmt.Errorf("docx archive has no word/document.xml")
}

func extractXMLText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var sb strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			if t.Name.Local == "p" {
				sb.WriteString("\n")
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// extractPrintable keeps runs of printable characters of at least four runes,
// dropping binary noise.
func extractPrintable(data []byte) string {
	const minRun = 4

	var sb strings.Builder
	var run []rune
	flush := func() {
		if len(run) >= minRun {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(strings.TrimSpace(string(run)))
		}
		run = run[:0]
	}

	for _, r := range string(data) {
		if r == ' ' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsPunct(r) {
			run = append(run, r)
		} else {
			flush()
		}
	}
	flush()
	return sb.String()
}
