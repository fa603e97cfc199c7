package packet

import "strings"

// Text is a protocol string as handed to the serializer. It is either
// absent (the zero value) or a byte span, however the caller supplied it.
//
// CString and Span are the two ways to build one; both settle on the same
// span form immediately, so the serializer only ever asks Present and Len.
type Text struct {
	b       []byte
	present bool
}

// CString builds a Text from null-terminated text: everything from the
// first NUL onward is dropped.
func CString(s string) Text {
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return Text{b: []byte(s), present: true}
}

// Span builds a Text from an explicit byte span. A nil span is absent; an
// empty non-nil span is a present, zero-length string.
func Span(b []byte) Text {
	return Text{b: b, present: b != nil}
}

// Present reports whether the Text carries a value.
func (t Text) Present() bool {
	return t.present
}

// Len returns the number of bytes the Text occupies on the wire, excluding
// its length prefix.
func (t Text) Len() int {
	return len(t.b)
}

// Bytes returns the underlying span. The caller must not modify it.
func (t Text) Bytes() []byte {
	return t.b
}

// String returns the text as a Go string.
func (t Text) String() string {
	return string(t.b)
}

// encodedLen is the wire size including the 16-bit length prefix.
func (t Text) encodedLen() int {
	return 2 + len(t.b)
}
