package document

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"

	"invoicecheck/internal/domain"
)

var (
	utf8BOM    = []byte{0xef, 0xbb, 0xbf}
	utf16LEBOM = []byte{0xff, 0xfe}
	utf16BEBOM = []byte{0xfe, 0xff}

	// '<?' in UTF-16 without a byte order mark
	utf16LEDecl = []byte{0x3c, 0x00, 0x3f, 0x00}
	utf16BEDecl = []byte{0x00, 0x3c, 0x00, 0x3f}

	xmlEncodingRe = regexp.MustCompile(`^\s*<\?xml[^?]*encoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)
)

// decoded is the UTF-8 form of the input together with the encoding it was
// read from.
type decoded struct {
	data     []byte
	encoding string
}

// decodeInput converts raw bytes to UTF-8. Precedence is byte order mark,
// then the charset parameter of the declared content type, then the XML
// declaration. Any disagreement between them is an error; nothing is
// silently substituted.
func decodeInput(raw []byte, contentType string) (*decoded, error) {
	bomEnc := ""
	switch {
	case bytes.HasPrefix(raw, utf8BOM):
		bomEnc = "UTF-8"
		raw = raw[len(utf8BOM):]
	case bytes.HasPrefix(raw, utf16LEBOM):
		bomEnc = "UTF-16LE"
		raw = raw[len(utf16LEBOM):]
	case bytes.HasPrefix(raw, utf16BEBOM):
		bomEnc = "UTF-16BE"
		raw = raw[len(utf16BEBOM):]
	case bytes.HasPrefix(raw, utf16LEDecl):
		bomEnc = "UTF-16LE"
	case bytes.HasPrefix(raw, utf16BEDecl):
		bomEnc = "UTF-16BE"
	}

	charsetParam, err := contentTypeCharset(contentType)
	if err != nil {
		return nil, err
	}

	if bomEnc == "UTF-16LE" || bomEnc == "UTF-16BE" {
		return decodeUTF16(raw, bomEnc, charsetParam)
	}

	declared := declaredEncoding(raw)
	if declared != "" && isUTF16Label(declared) {
		return nil, &ParseError{
			Location: domain.Location{Line: 1, Column: 1},
			Reason:   fmt.Sprintf("declared encoding %q but the byte stream is not UTF-16", declared),
			Err:      domain.ErrEncodingMismatch,
		}
	}
	if bomEnc == "UTF-8" {
		if declared != "" && !isUTF8Label(declared) {
			return nil, mismatch("UTF-8 byte order mark", declared)
		}
		if charsetParam != "" && !isUTF8Label(charsetParam) {
			return nil, mismatch("UTF-8 byte order mark", charsetParam)
		}
	}
	if charsetParam != "" && declared != "" && !sameEncoding(charsetParam, declared) {
		return nil, mismatch("content type charset "+charsetParam, declared)
	}

	effective := "UTF-8"
	switch {
	case charsetParam != "":
		effective = charsetParam
	case declared != "":
		effective = declared
	}

	if isUTF8Label(effective) || isASCIILabel(effective) {
		if err := checkUTF8(raw, isASCIILabel(effective)); err != nil {
			return nil, err
		}
		return &decoded{data: raw, encoding: canonicalLabel(effective)}, nil
	}

	enc, err := lookupEncoding(effective)
	if err != nil {
		return nil, err
	}
	return transcode(raw, enc, canonicalLabel(effective))
}

func decodeUTF16(raw []byte, bomEnc, charsetParam string) (*decoded, error) {
	if charsetParam != "" && !isUTF16Label(charsetParam) {
		return nil, mismatch(bomEnc+" byte stream", charsetParam)
	}
	endian, order := unicode.LittleEndian, binary.ByteOrder(binary.LittleEndian)
	if bomEnc == "UTF-16BE" {
		endian, order = unicode.BigEndian, binary.BigEndian
	}
	enc := unicode.UTF16(endian, unicode.IgnoreBOM)
	if bad := invalidUTF16(raw, order); bad >= 0 {
		// raw[:bad] is well formed, so its decoding locates the fault.
		prefix, _ := enc.NewDecoder().Bytes(raw[:bad])
		return nil, &ParseError{
			Location: newLineIndex(prefix).location(len(prefix)),
			Reason:   fmt.Sprintf("%s code unit at byte %d is not valid UTF-16", bomEnc, bad),
			Err:      domain.ErrEncodingMismatch,
		}
	}
	data, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, &ParseError{
			Location: domain.Location{Line: 1, Column: 1},
			Reason:   fmt.Sprintf("cannot decode input as UTF-16: %v", err),
			Err:      domain.ErrEncodingMismatch,
		}
	}
	out := &decoded{data: data, encoding: "UTF-16"}
	if declared := declaredEncoding(out.data); declared != "" && !isUTF16Label(declared) {
		return nil, mismatch(bomEnc+" byte stream", declared)
	}
	return out, nil
}

func transcode(raw []byte, enc encoding.Encoding, label string) (*decoded, error) {
	data, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, &ParseError{
			Location: domain.Location{Line: 1, Column: 1},
			Reason:   fmt.Sprintf("cannot decode input as %s: %v", label, err),
			Err:      domain.ErrEncodingMismatch,
		}
	}
	// Decoders replace undecodable bytes with U+FFFD. Only replacement
	// characters beyond those the source itself encodes are faults.
	if n := bytes.Count(data, replacementChar); n > 0 && n > encodedReplacements(raw, enc) {
		idx := bytes.Index(data, replacementChar)
		return nil, &ParseError{
			Location: newLineIndex(data).location(idx),
			Reason:   fmt.Sprintf("byte sequence is not valid %s", label),
			Err:      domain.ErrEncodingMismatch,
		}
	}
	return &decoded{data: data, encoding: label}, nil
}

var replacementChar = []byte(string(utf8.RuneError))

// encodedReplacements counts how often U+FFFD is legitimately spelled out in
// raw. Encodings that cannot represent it contribute none.
func encodedReplacements(raw []byte, enc encoding.Encoding) int {
	form, err := enc.NewEncoder().Bytes(replacementChar)
	if err != nil || len(form) == 0 {
		return 0
	}
	return bytes.Count(raw, form)
}

// invalidUTF16 returns the byte offset of the first code unit that is not part
// of a well formed UTF-16 sequence, or -1. A dangling odd byte counts as one.
func invalidUTF16(raw []byte, order binary.ByteOrder) int {
	even := len(raw) &^ 1
	for i := 0; i < even; i += 2 {
		u := order.Uint16(raw[i:])
		switch {
		case u >= 0xd800 && u <= 0xdbff:
			if i+4 > even {
				return i
			}
			if next := order.Uint16(raw[i+2:]); next < 0xdc00 || next > 0xdfff {
				return i
			}
			i += 2
		case u >= 0xdc00 && u <= 0xdfff:
			return i
		}
	}
	if even != len(raw) {
		return even
	}
	return -1
}

func checkUTF8(data []byte, asciiOnly bool) error {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if (r == utf8.RuneError && size <= 1) || (asciiOnly && r >= utf8.RuneSelf) {
			label := "UTF-8"
			if asciiOnly {
				label = "US-ASCII"
			}
			return &ParseError{
				Location: newLineIndex(data).location(i),
				Reason:   fmt.Sprintf("byte 0x%02x is not valid %s", data[i], label),
				Err:      domain.ErrEncodingMismatch,
			}
		}
		i += size
	}
	return nil
}

func declaredEncoding(data []byte) string {
	head := data
	if len(head) > 256 {
		head = head[:256]
	}
	if m := xmlEncodingRe.FindSubmatch(head); len(m) > 1 {
		return string(m[1])
	}
	return ""
}

func contentTypeCharset(contentType string) (string, error) {
	if strings.TrimSpace(contentType) == "" {
		return "", nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// A malformed content type carries no usable charset.
		return "", nil
	}
	return strings.TrimSpace(params["charset"]), nil
}

func lookupEncoding(label string) (encoding.Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil || enc == nil {
		return nil, &ParseError{
			Location: domain.Location{Line: 1, Column: 1},
			Reason:   fmt.Sprintf("unsupported encoding %q", label),
			Err:      domain.ErrUnsupportedEncoding,
		}
	}
	return enc, nil
}

func mismatch(source, declared string) *ParseError {
	return &ParseError{
		Location: domain.Location{Line: 1, Column: 1},
		Reason:   fmt.Sprintf("%s conflicts with declared encoding %q", source, declared),
		Err:      domain.ErrEncodingMismatch,
	}
}

func sameEncoding(a, b string) bool {
	if strings.EqualFold(a, b) {
		return true
	}
	if isUTF8Label(a) && isUTF8Label(b) {
		return true
	}
	ea, errA := ianaindex.IANA.Encoding(a)
	eb, errB := ianaindex.IANA.Encoding(b)
	if errA != nil || errB != nil || ea == nil || eb == nil {
		return false
	}
	na, _ := ianaindex.IANA.Name(ea)
	nb, _ := ianaindex.IANA.Name(eb)
	return na != "" && na == nb
}

func canonicalLabel(label string) string {
	switch {
	case isUTF8Label(label):
		return "UTF-8"
	case isASCIILabel(label):
		return "US-ASCII"
	}
	if enc, err := ianaindex.IANA.Encoding(label); err == nil && enc != nil {
		if name, err := ianaindex.MIME.Name(enc); err == nil {
			return name
		}
		if name, err := ianaindex.IANA.Name(enc); err == nil {
			return name
		}
	}
	return strings.ToUpper(label)
}

func isUTF8Label(s string) bool {
	return strings.EqualFold(s, "utf-8") || strings.EqualFold(s, "utf8")
}

func isASCIILabel(s string) bool {
	return strings.EqualFold(s, "us-ascii") || strings.EqualFold(s, "ascii")
}

func isUTF16Label(s string) bool {
	return strings.HasPrefix(strings.ToUpper(s), "UTF-16")
}
