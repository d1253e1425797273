package log

import (
	"bytes"
	"strconv"
	"unicode/utf8"
)

// JSON encoding for log lines. Only the handful of shapes the module
// actually logs is supported; anything richer goes through LogEvent.Any.

func appendBeginMarker(buf *bytes.Buffer) {
	buf.WriteByte('{')
}

func appendEndMarker(buf *bytes.Buffer) {
	buf.WriteByte('}')
}

func appendLineBreak(buf *bytes.Buffer) {
	buf.WriteByte('\n')
}

// appendKey writes the separating comma when the object already has a field,
// then the quoted key and a colon.
func appendKey(buf *bytes.Buffer, key string) {
	if buf.Len() >= 1 && buf.Bytes()[buf.Len()-1] != '{' {
		buf.WriteByte(',')
	}
	appendString(buf, key)
	buf.WriteByte(':')
}

func appendNil(buf *bytes.Buffer) {
	buf.WriteString("null")
}

func appendInt64(buf *bytes.Buffer, v int64) {
	buf.WriteString(strconv.FormatInt(v, 10))
}

func appendUint64(buf *bytes.Buffer, v uint64) {
	buf.WriteString(strconv.FormatUint(v, 10))
}

const hexDigits = "0123456789abcdef"

// noEscape marks the bytes that can be copied into a JSON string untouched.
// Bytes above 0x7e take the slow path so multibyte sequences get validated.
var noEscape [256]bool

func init() {
	for i := 0x20; i <= 0x7e; i++ {
		noEscape[i] = i != '\\' && i != '"'
	}
}

// appendString writes s as a quoted JSON string. The fast path copies the
// whole string when no byte needs escaping.
func appendString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if !noEscape[s[i]] {
			appendEscaped(buf, s)
			buf.WriteByte('"')
			return
		}
	}
	buf.WriteString(s)
	buf.WriteByte('"')
}

// appendEscaped writes s with JSON escapes. Runs of clean bytes are copied
// in one Write; invalid UTF-8 is replaced with U+FFFD.
func appendEscaped(buf *bytes.Buffer, s string) {
	start := 0
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(s[i:])
			if r == utf8.RuneError && size == 1 {
				if start < i {
					buf.WriteString(s[start:i])
				}
				buf.WriteString(`\ufffd`)
				start = i + 1
				continue
			}
			i += size - 1
			continue
		}
		if noEscape[b] {
			continue
		}
		if start < i {
			buf.WriteString(s[start:i])
		}
		switch b {
		case '"', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(b)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			buf.WriteString(`\u00`)
			buf.WriteByte(hexDigits[b>>4])
			buf.WriteByte(hexDigits[b&0xf])
		}
		start = i + 1
	}
	if start < len(s) {
		buf.WriteString(s[start:])
	}
}
