package teletext

import "strings"

// spacing attributes 0-7 select these foreground colors
var colors = [8]string{
	"#000000", "#ff0000", "#00ff00", "#ffff00", "#0000ff", "#ff00ff", "#00ffff", "#ffffff",
}

const (
	white    = 7
	endBox   = 0x0a
	startBox = 0x0b
)

// Render turns the page into marked-up text, one line per boxed row, with
// <font color> spans for colored runs. Rows without a start box marker
// are not part of the subtitle. The result is empty for a blank page.
func Render(p *Page) string {
	var lines []string
	for row := 1; row < rows; row++ {
		if line, ok := renderRow(&p.Text[row]); ok {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func renderRow(cells *[cols]rune) (string, bool) {
	start := -1
	for col := cols - 1; col >= 0; col-- {
		if cells[col] == startBox {
			start = col
			break
		}
	}
	if start < 0 {
		return "", false
	}

	// trim leading and trailing blanks inside the box
	stop := -1
	for col := start + 1; col < cols; col++ {
		if cells[col] > ' ' {
			if stop < 0 {
				start = col
			}
			stop = col
		}
		if cells[col] == endBox {
			break
		}
	}
	if stop < 0 {
		return "", false
	}

	var b strings.Builder
	fg := white
	open := false
	for col := 0; col <= stop; col++ {
		v := cells[col]

		if col < start {
			if v <= white {
				fg = int(v)
			}
			continue
		}

		if col == start && fg != white {
			b.WriteString(`<font color="` + colors[fg] + `">`)
			open = true
		}

		switch {
		case v <= white:
			if open {
				b.WriteString("</font>")
				open = false
			}
			b.WriteByte(' ')
			if v > 0 && v < white {
				b.WriteString(`<font color="` + colors[v] + `">`)
				open = true
			}
		case v < ' ':
			// other spacing attributes display as blanks
			b.WriteByte(' ')
		case v == '<':
			b.WriteString("&lt;")
		case v == '>':
			b.WriteString("&gt;")
		case v == '&':
			b.WriteString("&amp;")
		default:
			b.WriteRune(v)
		}
	}
	if open {
		b.WriteString("</font>")
	}
	return b.String(), true
}
