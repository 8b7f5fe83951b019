// Package fixedstring implements the LEG application protocol's 33-byte
// null-terminated ASCII string field, used for the embedded host name in
// login-response and redirect payloads.
package fixedstring

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"braces.dev/errtrace"
)

// Size is the fixed field width in bytes.
const Size = 33

// Read decodes the string from the first Size bytes of b. It errors if
// no null terminator is found within those bytes, or if the bytes before
// the terminator are not valid UTF-8.
func Read(b []byte) (string, error) {
	if len(b) < Size {
		return "", errtrace.Wrap(fmt.Errorf("fixedstring: need %d bytes, got %d", Size, len(b)))
	}
	field := b[:Size]
	i := bytes.IndexByte(field, 0)
	if i == -1 {
		return "", errtrace.Wrap(fmt.Errorf("fixedstring: no null terminator"))
	}
	s := field[:i]
	if !utf8.Valid(s) {
		return "", errtrace.Wrap(fmt.Errorf("fixedstring: not valid utf8"))
	}
	return string(s), nil
}

// Write encodes s into dst[:Size], zero-padding after the string. It
// errors if s is longer than 32 bytes. dst must have length >= Size.
func Write(dst []byte, s string) error {
	if len(dst) < Size {
		return errtrace.Wrap(fmt.Errorf("fixedstring: dst too short, need %d bytes, got %d", Size, len(dst)))
	}
	if len(s) > Size-1 {
		return errtrace.Wrap(fmt.Errorf("fixedstring: str too long (%d bytes, max %d)", len(s), Size-1))
	}
	n := copy(dst[:Size], s)
	for i := n; i < Size; i++ {
		dst[i] = 0
	}
	return nil
}
