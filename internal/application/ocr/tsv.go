package ocr

import (
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
)

// Line is one recognized text line with its bounding box.
type Line struct {
	Text string
	Box  image.Rectangle
}

// ParseTSV groups tesseract TSV word rows into lines, in order of first appearance.
func ParseTSV(tsv string) []Line {
	rows := strings.Split(strings.TrimSpace(strings.ReplaceAll(tsv, "\r\n", "\n")), "\n")
	if len(rows) < 2 {
		return nil
	}
	var lines []Line
	index := make(map[string]int)
	for _, row := range rows[1:] {
		cols := strings.Split(row, "\t")
		if len(cols) < 12 {
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		left, _ := strconv.Atoi(cols[6])
		top, _ := strconv.Atoi(cols[7])
		width, _ := strconv.Atoi(cols[8])
		height, _ := strconv.Atoi(cols[9])
		box := image.Rect(left, top, left+width, top+height)

		key := fmt.Sprintf("%s-%s-%s", cols[2], cols[3], cols[4])
		i, ok := index[key]
		if !ok {
			index[key] = len(lines)
			lines = append(lines, Line{Text: strings.ToUpper(text), Box: box})
			continue
		}
		lines[i].Text += " " + strings.ToUpper(text)
		lines[i].Box = lines[i].Box.Union(box)
	}
	return lines
}

// NumberRegion locates the area just below an "ID NO" / "ID NUMBER" label.
// The region starts 5px under the label, spans to the right edge and is 2.5 label heights tall.
func NumberRegion(lines []Line, bounds image.Rectangle) (image.Rectangle, bool) {
	for _, l := range lines {
		if !strings.Contains(l.Text, "ID") {
			continue
		}
		if !strings.Contains(l.Text, "NO") && !strings.Contains(l.Text, "NUM") {
			continue
		}
		x := max(bounds.Min.X, l.Box.Min.X)
		y := min(bounds.Max.Y-1, l.Box.Max.Y+5)
		w := bounds.Max.X - x
		h := min(int(math.Round(float64(l.Box.Dy())*2.5)), bounds.Max.Y-y)
		if w > 50 && h > 20 {
			return image.Rect(x, y, x+w, y+h), true
		}
	}
	return image.Rectangle{}, false
}
