package reader

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDF extracts page text from a PDF entry's blob via pdfcpu's
// content-stream parser, for archives that embed PDFs alongside
// HTML articles. Adapted from docpipe/pdf.go: the same
// page-by-page content-stream walk, reshaped to operate on an
// in-memory ZIM blob rather than an on-disk file and dropping the
// title/section/quality bookkeeping a document-ingestion pipeline needs for
// ingestion but Zimi's read-only reader does not.
func extractPDF(data []byte) (string, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return "", fmt.Errorf("pdfcpu read: %w", err)
	}

	var allText strings.Builder
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		pageText := extractPageText(ctx, pageNr)
		if pageText == "" {
			continue
		}
		if allText.Len() > 0 {
			allText.WriteByte('\n')
		}
		allText.WriteString(pageText)
	}

	if allText.Len() == 0 {
		return "", fmt.Errorf("no text content found in PDF")
	}
	return allText.String(), nil
}

func extractPageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return extractTextFromStream(data)
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

func extractTextFromStream(data []byte) string {
	var sb strings.Builder

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				if text := decodePDFString(m[1]); text != "" {
					sb.WriteByte('\n')
					sb.WriteString(text)
				}
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		case bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}

	return cleanPDFText(sb.String())
}

func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\':
			sb.WriteByte('\\')
		case '(':
			sb.WriteByte('(')
		case ')':
			sb.WriteByte(')')
		default:
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')
				for j := 0; j < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; j++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				sb.WriteByte(byte(val))
			} else {
				sb.WriteByte(raw[i])
			}
		}
	}
	return sb.String()
}

func cleanPDFText(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
