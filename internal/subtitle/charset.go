package subtitle

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/mgpai22/subtrack/internal/logging"
)

const defaultCharset = "windows-1252"

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// returns buf as UTF-8 without a byte order mark.
// UTF-16 with a BOM is decoded, invalid UTF-8 is reinterpreted with the
// fallback charset and as ISO-8859-1 when that fails.
func toUTF8(buf []byte, charset string, logger *logging.Logger) []byte {
	logger = logging.OrNop(logger)

	if len(buf) > 2 && (buf[0] == 0xff && buf[1] == 0xfe || buf[0] == 0xfe && buf[1] == 0xff) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(buf)
		if err == nil {
			return out
		}
		logger.Debugw("UTF-16 decode failed", "error", err)
	}

	if bytes.HasPrefix(buf, utf8BOM) {
		return buf[len(utf8BOM):]
	}

	if utf8.Valid(buf) {
		return buf
	}

	if charset == "" {
		charset = defaultCharset
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		logger.Warnw("Unknown charset, using ISO-8859-1", "charset", charset)
		enc = charmap.ISO8859_1
	}

	out, err := decodeWith(enc, buf)
	if err != nil {
		logger.Debugw("Charset decode failed, using ISO-8859-1", "charset", charset, "error", err)
		out, _ = decodeWith(charmap.ISO8859_1, buf)
	}
	logger.Infow("Input is not valid UTF-8, converted", "charset", charset)
	return out
}

func decodeWith(enc encoding.Encoding, buf []byte) ([]byte, error) {
	return enc.NewDecoder().Bytes(buf)
}
