package subtitle

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"time"
)

const ttmlNamespace = "http://www.w3.org/2006/10/ttaf1"

// the ttaf1 draft namespace and the one of the TTML recommendation
var ttmlNamespaces = [][]byte{
	[]byte(ttmlNamespace),
	[]byte("http://www.w3.org/ns/ttml"),
}

func isTTML(buf []byte) bool {
	if len(buf) < 30 || !bytes.HasPrefix(buf, []byte("<?xml")) {
		return false
	}
	for _, ns := range ttmlNamespaces {
		if bytes.Contains(buf, ns) {
			return true
		}
	}
	return false
}

func isTimedText(buf []byte) bool {
	return len(buf) >= 30 && bytes.HasPrefix(buf, []byte("<?xml")) &&
		bytes.Contains(buf, []byte("<transcript>"))
}

type ttmlDocument struct {
	XMLName xml.Name `xml:"tt"`
	Body    struct {
		Divs []struct {
			Items []ttmlParagraph `xml:",any"`
		} `xml:"div"`
	} `xml:"body"`
}

type ttmlParagraph struct {
	XMLName xml.Name
	Begin   string `xml:"begin,attr"`
	End     string `xml:"end,attr"`
	Inner   string `xml:",innerxml"`
}

// parses a TTML time expression: "<number>h|m|s|ms" or a clock time
// "HH:MM:SS(.fraction)"
func ParseTTMLTime(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if strings.Count(s, ":") == 2 {
		return parseClockTime(s)
	}

	unit := len(s)
	for unit > 0 && (s[unit-1] < '0' || s[unit-1] > '9') && s[unit-1] != '.' {
		unit--
	}
	v, err := strconv.ParseFloat(s[:unit], 64)
	if err != nil {
		return 0, false
	}

	var scale float64
	switch s[unit:] {
	case "h":
		scale = float64(time.Hour)
	case "m":
		scale = float64(time.Minute)
	case "s":
		scale = float64(time.Second)
	case "ms":
		scale = float64(time.Millisecond)
	default:
		return 0, false
	}
	return time.Duration(v * scale), true
}

func parseClockTime(s string) (time.Duration, bool) {
	parts := strings.SplitN(s, ":", 3)
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec*float64(time.Second)), true
}

// character data of an element, <br/> becomes a newline
func ttmlText(inner string) string {
	dec := xml.NewDecoder(strings.NewReader(inner))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			if t.Name.Local == "br" {
				sb.WriteByte('\n')
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

// decodes a TTML document into cues; offset is added to every time so
// samples from segmented containers land on the media timeline
func ParseTTML(buf []byte, offset time.Duration, opts Options) (*Track, error) {
	var doc ttmlDocument
	if err := xml.Unmarshal(buf, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid TTML: %v", ErrLoad, err)
	}

	logger := opts.logger()
	track := &Track{Format: FormatTTML}
	for _, div := range doc.Body.Divs {
		for _, p := range div.Items {
			text := ttmlText(p.Inner)
			begin, ok1 := ParseTTMLTime(p.Begin)
			end, ok2 := ParseTTMLTime(p.End)
			if !ok1 || !ok2 || text == "" {
				logger.Debugw("Skipping TTML paragraph", "element", p.XMLName.Local, "begin", p.Begin, "end", p.End)
				continue
			}
			track.add(renderCleartext(text, begin+offset, end+offset, 0, opts))
		}
	}
	return track, nil
}

type timedTextDocument struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Body  string `xml:",chardata"`
	} `xml:"text"`
}

func parseTimedText(buf []byte, opts Options) (*Track, error) {
	var doc timedTextDocument
	dec := xml.NewDecoder(bytes.NewReader(buf))
	if err := decodeElement(dec, "transcript", &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid timed text: %v", ErrLoad, err)
	}

	track := &Track{Format: FormatTimedText}
	for _, t := range doc.Texts {
		if t.Start == "" || t.Dur == "" {
			continue
		}
		start, err1 := strconv.ParseFloat(t.Start, 64)
		dur, err2 := strconv.ParseFloat(t.Dur, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		begin := time.Duration(start * float64(time.Second))
		end := begin + time.Duration(dur*float64(time.Second))
		track.add(renderCleartext(html.UnescapeString(t.Body), begin, end, 0, opts))
	}
	return track, nil
}

// decodes the first element named local into v
func decodeElement(dec *xml.Decoder, local string, v any) error {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return fmt.Errorf("no <%s> element", local)
		}
		if err != nil {
			return err
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == local {
			return dec.DecodeElement(v, &se)
		}
	}
}
