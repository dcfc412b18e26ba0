package textenc

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

var (
	// ErrUnknownCharset is returned when an explicit charset label has no decoder.
	ErrUnknownCharset = errors.New("unknown charset")
	// ErrBinary is returned by callers that require text and received binary data.
	ErrBinary = errors.New("content is not text")
)

// fallbackCharset is used when detection gives no usable answer.
const fallbackCharset = "windows-1252"

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// IsText reports whether data looks like text. Empty input counts as text.
func IsText(data []byte) bool {
	if len(data) == 0 {
		return true
	}

	mtype := mimetype.Detect(data)
	switch mtype.String() {
	case "application/json", "application/xml", "application/javascript":
		return true
	}
	for t := mtype; t != nil; t = t.Parent() {
		if t.Is("text/plain") || strings.HasPrefix(t.String(), "text/") {
			return true
		}
	}
	return false
}

// CharsetFromContentType extracts the charset parameter of a Content-Type
// header value, or "" when absent or unparsable.
func CharsetFromContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["charset"])
}

// ToUTF8 converts data to a UTF-8 string. A byte order mark wins, then the
// explicit label, then the bytes themselves if they are valid UTF-8, and
// finally a charset guessed by statistical detection.
func ToUTF8(data []byte, label string) (string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return string(data[len(bomUTF8):]), nil
	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		return decode(unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), data)
	}

	if label != "" {
		enc, name := charset.Lookup(label)
		if enc == nil {
			return "", fmt.Errorf("%w: %q", ErrUnknownCharset, label)
		}
		if name != "utf-8" {
			return decode(enc, data)
		}
	}

	if utf8.Valid(data) {
		return string(data), nil
	}

	return decode(detect(data), data)
}

// DetectCharset returns the lower-cased name of the most likely charset of data.
func DetectCharset(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return fallbackCharset
	}
	return strings.ToLower(result.Charset)
}

func detect(data []byte) encoding.Encoding {
	if enc, name := charset.Lookup(DetectCharset(data)); enc != nil && name != "utf-8" {
		return enc
	}
	enc, _ := charset.Lookup(fallbackCharset)
	return enc
}

func decode(enc encoding.Encoding, data []byte) (string, error) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode text: %w", err)
	}
	return string(out), nil
}
