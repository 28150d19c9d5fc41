package activity

import (
	"encoding/base64"
	"unicode/utf8"

	"github.com/torocatala/dino/errors"
)

// Display names and message bodies are transported base64-encoded so that
// arbitrary unicode survives every hop of the transport unmangled. The
// transform is pure and reversible at the boundary.

// B64Encode encodes a string for transport.
func B64Encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// B64Decode decodes a transported string. Returns an error when the input is
// not valid base64 or does not decode to valid UTF-8.
func B64Decode(s string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", errors.WrapInvalid(err, "Activity", "B64Decode", "decode base64")
	}
	if !utf8.Valid(decoded) {
		return "", errors.WrapInvalid(errors.ErrInvalidData, "Activity", "B64Decode", "decode utf8")
	}
	return string(decoded), nil
}

// IsBase64 reports whether a string is decodable transport text.
func IsBase64(s string) bool {
	_, err := B64Decode(s)
	return err == nil
}
