package linereader

import "math"

// returned by Next when the buffer is exhausted
const EOF = -1

// cursor over a byte buffer yielding one line at a time.
// CR, LF and CRLF all terminate a line. Lines alias the buffer.
type Reader struct {
	buf  []byte
	line []byte
	ll   int
}

func New(buf []byte) *Reader {
	return &Reader{buf: buf, ll: EOF}
}

// advances to the next line and returns its length, or EOF
func (r *Reader) Next() int {
	if r.ll != EOF {
		r.buf = r.buf[r.ll:]
		if len(r.buf) > 0 && r.buf[0] == '\r' {
			r.buf = r.buf[1:]
		}
		if len(r.buf) > 0 && r.buf[0] == '\n' {
			r.buf = r.buf[1:]
		}
	}

	if len(r.buf) == 0 {
		r.ll = EOF
		r.line = nil
		return EOF
	}

	i := 0
	for i < len(r.buf) && r.buf[i] != '\n' && r.buf[i] != '\r' {
		i++
	}
	r.ll = i
	r.line = r.buf[:i]
	return i
}

// current line, nil after EOF
func (r *Reader) Line() []byte {
	return r.line
}

// remaining bytes including the current line
func (r *Reader) Rest() []byte {
	return r.buf
}

// parses an unsigned decimal. Any non-digit byte fails.
func ParseUint(b []byte) (int, bool) {
	if len(b) == 0 {
		return 0, false
	}
	v := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		d := int(c - '0')
		if v > (math.MaxInt-d)/10 {
			return 0, false
		}
		v = v*10 + d
	}
	return v, true
}

// parses an unsigned hexadecimal number without prefix
func ParseHex(b []byte) (int64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	var v int64
	for _, c := range b {
		d, ok := hexDigit(c)
		if !ok || v > math.MaxInt64>>4 {
			return 0, false
		}
		v = v<<4 | int64(d)
	}
	return v, true
}

// scans a decimal prefix, returning the value and the bytes consumed.
// The value saturates at math.MaxInt.
func ScanUint(b []byte) (int, int) {
	v, n := 0, 0
	for n < len(b) && b[n] >= '0' && b[n] <= '9' {
		d := int(b[n] - '0')
		if v > (math.MaxInt-d)/10 {
			v = math.MaxInt
		} else {
			v = v*10 + d
		}
		n++
	}
	return v, n
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// reports whether c is a hexadecimal digit
func IsHex(c byte) bool {
	_, ok := hexDigit(c)
	return ok
}

// value of a single hex digit, 0 for anything else
func HexValue(c byte) int {
	d, _ := hexDigit(c)
	return int(d)
}
