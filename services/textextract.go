package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

// ExtractedText is the per-page text of a document in page order
type ExtractedText struct {
	Pages []string
}

// Text joins every page with a newline
func (e *ExtractedText) Text() string {
	return strings.Join(e.Pages, "\n")
}

// FirstPage returns the text of page 1, or "" for an empty document
func (e *ExtractedText) FirstPage() string {
	if len(e.Pages) == 0 {
		return ""
	}
	return e.Pages[0]
}

// TextExtractor turns a document byte stream into text
type TextExtractor interface {
	Extract(ctx context.Context, document []byte) (*ExtractedText, error)
}

// PDFTextExtractor reads PDF content streams with pdfcpu
type PDFTextExtractor struct {
	log zerolog.Logger
}

// NewPDFTextExtractor creates a pdfcpu-backed extractor
func NewPDFTextExtractor(log zerolog.Logger) *PDFTextExtractor {
	return &PDFTextExtractor{log: log.With().Str("component", "pdf_extractor").Logger()}
}

// Extract returns one entry per page. Pages without extractable text yield
// "". Only a stream that cannot be parsed at all is an error.
func (p *PDFTextExtractor) Extract(ctx context.Context, document []byte) (out *ExtractedText, err error) {
	defer func() {
		// pdfcpu can panic on some malformed cross-reference tables
		if r := recover(); r != nil {
			out = nil
			err = newDocketError(ErrUnreadableDocument, "document", "cannot parse PDF: %v", r)
		}
	}()

	if len(document) == 0 {
		return nil, newDocketError(ErrUnreadableDocument, "document", "empty document")
	}

	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(document), model.NewDefaultConfiguration())
	if err != nil {
		return nil, newDocketError(ErrUnreadableDocument, "document", "cannot parse PDF: %v", err)
	}

	pages := make([]string, pdfCtx.PageCount)
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages[pageNr-1] = p.pageText(pdfCtx, pageNr)
	}

	p.log.Debug().Int("pages", len(pages)).Int("bytes", len(document)).Msg("pdf text extracted")
	return &ExtractedText{Pages: pages}, nil
}

func (p *PDFTextExtractor) pageText(pdfCtx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
	if err != nil || r == nil {
		p.log.Debug().Err(err).Int("page", pageNr).Msg("page has no readable content")
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return ""
	}
	return textFromContentStream(data)
}

// textFromContentStream interprets the text-showing operators of a page
// content stream. Positioning operators that move down become line breaks.
func textFromContentStream(data []byte) string {
	var sb strings.Builder
	var operands []contentToken

	lineBreak := func() {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
	}

	sc := contentScanner{data: data}
	for {
		tok, ok := sc.next()
		if !ok {
			break
		}
		if tok.kind != tokOperator {
			operands = append(operands, tok)
			continue
		}

		switch tok.text {
		case "Tj":
			writeStrings(&sb, operands)
		case "'", `"`:
			lineBreak()
			writeStrings(&sb, operands)
		case "TJ":
			writeStrings(&sb, operands)
		case "T*", "ET", "Tm":
			lineBreak()
		case "Td", "TD":
			if len(operands) >= 2 {
				if ty, err := strconv.ParseFloat(operands[len(operands)-1].text, 64); err == nil && ty != 0 {
					lineBreak()
				} else {
					sb.WriteByte(' ')
				}
			}
		}
		operands = operands[:0]
	}

	return cleanExtractedText(sb.String())
}

// writeStrings emits string operands; a large negative TJ adjustment is a word gap
func writeStrings(sb *strings.Builder, operands []contentToken) {
	for _, op := range operands {
		switch op.kind {
		case tokString:
			sb.WriteString(decodeTextString(op.raw))
		case tokNumber:
			if v, err := strconv.ParseFloat(op.text, 64); err == nil && v < -200 {
				sb.WriteByte(' ')
			}
		}
	}
}

// decodeTextString maps PDF string bytes to UTF-8. Strings with a UTF-16 BOM
// are decoded as such; everything else is treated as WinAnsi.
func decodeTextString(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		out, err := xunicode.UTF16(xunicode.BigEndian, xunicode.ExpectBOM).NewDecoder().Bytes(raw)
		if err == nil {
			return string(out)
		}
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// cleanExtractedText collapses spaces within lines and drops blank lines
func cleanExtractedText(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return ' '
			}
			if !unicode.IsPrint(r) {
				return -1
			}
			return r
		}, line)
		line = collapseWhitespace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

type tokenKind int

const (
	tokOperator tokenKind = iota
	tokString
	tokNumber
	tokOther
)

type contentToken struct {
	kind tokenKind
	text string
	raw  []byte
}

// contentScanner is a minimal tokenizer for PDF content streams
type contentScanner struct {
	data []byte
	pos  int
}

func isPDFDelimiter(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func isPDFSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func (s *contentScanner) next() (contentToken, bool) {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		switch {
		case isPDFSpace(c), c == '[', c == ']':
			s.pos++
		case c == '%':
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
		case c == '(':
			return contentToken{kind: tokString, raw: s.literalString()}, true
		case c == '<':
			if s.pos+1 < len(s.data) && s.data[s.pos+1] == '<' {
				s.pos += 2
				return contentToken{kind: tokOther, text: "<<"}, true
			}
			return contentToken{kind: tokString, raw: s.hexString()}, true
		case c == '>':
			s.pos++
		case c == '/':
			start := s.pos
			s.pos++
			for s.pos < len(s.data) && !isPDFSpace(s.data[s.pos]) && !isPDFDelimiter(s.data[s.pos]) {
				s.pos++
			}
			return contentToken{kind: tokOther, text: string(s.data[start:s.pos])}, true
		default:
			start := s.pos
			for s.pos < len(s.data) && !isPDFSpace(s.data[s.pos]) && !isPDFDelimiter(s.data[s.pos]) {
				s.pos++
			}
			if s.pos == start {
				s.pos++
				continue
			}
			word := string(s.data[start:s.pos])
			if _, err := strconv.ParseFloat(word, 64); err == nil {
				return contentToken{kind: tokNumber, text: word}, true
			}
			return contentToken{kind: tokOperator, text: word}, true
		}
	}
	return contentToken{}, false
}

// literalString reads a balanced (...) string, resolving escapes
func (s *contentScanner) literalString() []byte {
	var out []byte
	depth := 0
	s.pos++ // opening paren
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= len(s.data) {
				return out
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b', 'f':
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for i := 0; i < 2 && s.pos < len(s.data) && s.data[s.pos] >= '0' && s.data[s.pos] <= '7'; i++ {
						val = val*8 + int(s.data[s.pos]-'0')
						s.pos++
					}
					out = append(out, byte(val))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			if depth == 0 {
				return out
			}
			depth--
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out
}

// hexString reads a <...> string
func (s *contentScanner) hexString() []byte {
	s.pos++ // opening angle
	var digits []byte
	for s.pos < len(s.data) && s.data[s.pos] != '>' {
		if c := s.data[s.pos]; !isPDFSpace(c) {
			digits = append(digits, c)
		}
		s.pos++
	}
	s.pos++ // closing angle
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			return nil
		}
		out = append(out, byte(v))
	}
	return out
}

func (e *ExtractedText) String() string {
	return fmt.Sprintf("%d page(s), %d chars", len(e.Pages), len(e.Text()))
}
