package fetcher

import (
	"bytes"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/traditionalchinese"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Encoding names reported by Decode.
const (
	EncodingUTF8  = "utf-8"
	EncodingCP950 = "cp950"
)

// Decode converts a feed body to a UTF-8 string. Bodies that are not valid
// UTF-8 are decoded as CP950 (Big5); if that leaves undecodable bytes the body
// is rejected. A leading UTF-8 byte order mark is dropped.
func Decode(raw []byte) (string, string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return string(raw), EncodingUTF8, nil
	}

	out, err := traditionalchinese.Big5.NewDecoder().Bytes(raw)
	if err != nil {
		return "", "", eris.Wrap(err, "decode cp950")
	}
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", "", eris.New("body is neither valid UTF-8 nor CP950")
	}
	return string(out), EncodingCP950, nil
}
