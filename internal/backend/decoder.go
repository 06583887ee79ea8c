package backend

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// Decoder turns raw stream chunks into text fragments. Every chunk is decoded
// on its own: a multi-byte character split across two chunks comes out as
// replacement characters rather than being stitched back together.
type Decoder struct{}

// Decode strips a leading BOM and replaces invalid UTF-8 with U+FFFD.
func (Decoder) Decode(chunk []byte) string {
	if len(chunk) == 0 {
		return ""
	}
	out, err := unicode.UTF8BOM.NewDecoder().Bytes(chunk)
	if err != nil {
		return strings.ToValidUTF8(string(chunk), "�")
	}
	return string(out)
}
