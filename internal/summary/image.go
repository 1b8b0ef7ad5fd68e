// Package summary renders delivery ledger rows as a PNG table for operators.
package summary

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fogleman/gg"

	"civicnotify/internal/complaint"
	"civicnotify/internal/compose"
)

// Layout in pixels, drawn at 2x so the table stays legible on a phone.
const (
	margin        = 40.0
	padX, padY    = 20.0, 16.0
	rowMin        = 76.0
	colMin        = 110.0
	titlePadding  = 110
	headerHeight  = 88
	footerPadding = 80
	corner        = 16.0

	bodyPt  = 26.0
	titlePt = 40.0
	notePt  = 24.0

	errorColWidth = 440.0
	errorRunes    = 120
)

type theme struct {
	canvas, ink, muted, rule color.Color
	header, headerInk        color.Color
	stripes                  [2]color.Color
	outcome                  map[complaint.Outcome]color.Color
}

func rgb(r, g, b uint8) color.Color { return color.RGBA{R: r, G: g, B: b, A: 255} }

var light = theme{
	canvas:    rgb(245, 247, 250),
	ink:       rgb(30, 41, 59),
	muted:     rgb(100, 116, 139),
	rule:      rgb(203, 213, 225),
	header:    rgb(37, 99, 235),
	headerInk: rgb(255, 255, 255),
	stripes:   [2]color.Color{rgb(255, 255, 255), rgb(241, 245, 249)},
	outcome: map[complaint.Outcome]color.Color{
		complaint.OutcomeSent:         rgb(22, 163, 74),
		complaint.OutcomePending:      rgb(202, 138, 4),
		complaint.OutcomeFailed:       rgb(220, 38, 38),
		complaint.OutcomeGatewayError: rgb(190, 24, 93),
	},
}

type column struct {
	header string
	cell   func(a *complaint.DispatchAttempt) string
	limit  float64 // 0 means auto
	tinted bool    // coloured by outcome
}

var columns = []column{
	{header: "Complaint", cell: func(a *complaint.DispatchAttempt) string { return a.ComplaintID }},
	{header: "Role", cell: func(a *complaint.DispatchAttempt) string { return string(a.Role) }},
	{header: "Recipient", cell: func(a *complaint.DispatchAttempt) string { return a.Address }},
	{header: "Outcome", cell: func(a *complaint.DispatchAttempt) string { return string(a.Outcome) }, tinted: true},
	{header: "Attempts", cell: func(a *complaint.DispatchAttempt) string { return strconv.Itoa(a.Attempts) }},
	{header: "Last Attempt", cell: func(a *complaint.DispatchAttempt) string {
		if a.LastAttemptAt.IsZero() {
			return "-"
		}
		return a.LastAttemptAt.Local().Format("02 Jan 15:04")
	}},
	{header: "Error", limit: errorColWidth, cell: func(a *complaint.DispatchAttempt) string {
		return compose.Truncate(strings.ReplaceAll(a.LastError, "\n", " "), errorRunes)
	}},
}

// findFont returns the first installed DejaVu (or Arial on Windows) face,
// or "" to fall back on gg's built-in face.
func findFont(bold bool) string {
	var candidates []string
	if runtime.GOOS == "windows" {
		dir := os.Getenv("WINDIR")
		if dir == "" {
			dir = `C:\Windows`
		}
		name := "arial.ttf"
		if bold {
			name = "arialbd.ttf"
		}
		candidates = []string{dir + `\Fonts\` + name}
	} else {
		name := "DejaVuSans.ttf"
		if bold {
			name = "DejaVuSans-Bold.ttf"
		}
		for _, dir := range []string{"/usr/share/fonts/truetype/dejavu/", "/usr/share/fonts/TTF/", "/usr/share/fonts/dejavu/"} {
			candidates = append(candidates, dir+name)
		}
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

type fonts struct {
	bold, regular string
}

func (f fonts) use(dc *gg.Context, bold bool, size float64) {
	path := f.regular
	if bold {
		path = f.bold
	}
	if path != "" {
		_ = dc.LoadFontFace(path, size)
	}
}

// wrapText breaks text on spaces so that each line fits within width.
func wrapText(dc *gg.Context, text string, width float64) []string {
	text = strings.TrimSpace(text)
	if w, _ := dc.MeasureString(text); width <= 0 || w <= width {
		return []string{text}
	}

	words := strings.Fields(text)
	lines := []string{words[0]}
	for _, word := range words[1:] {
		last := &lines[len(lines)-1]
		if w, _ := dc.MeasureString(*last + " " + word); w > width {
			lines = append(lines, word)
		} else {
			*last += " " + word
		}
	}
	return lines
}

// table is a measured ledger table ready to draw.
type table struct {
	rows    []complaint.DispatchAttempt
	widths  []float64
	heights []float64
	width   float64
	height  float64 // header plus rows
	fonts   fonts
}

func measure(rows []complaint.DispatchAttempt, f fonts) *table {
	dc := gg.NewContext(1, 1)
	t := &table{rows: rows, fonts: f, widths: make([]float64, len(columns))}

	f.use(dc, true, bodyPt)
	for i, col := range columns {
		w, _ := dc.MeasureString(col.header)
		t.widths[i] = max(w+padX*2+4, colMin)
	}

	f.use(dc, false, bodyPt)
	for r := range rows {
		for i, col := range columns {
			w, _ := dc.MeasureString(col.cell(&rows[r]))
			t.widths[i] = max(t.widths[i], w+padX*2+4)
		}
	}
	for i, col := range columns {
		if col.limit > 0 {
			t.widths[i] = min(t.widths[i], col.limit)
		}
		t.width += t.widths[i]
	}

	_, lineH := dc.MeasureString("Ay")
	t.height = headerHeight
	for r := range rows {
		lines := 1
		for i, col := range columns {
			lines = max(lines, len(wrapText(dc, col.cell(&rows[r]), t.widths[i]-padX*2)))
		}
		h := max(float64(lines)*(lineH+4)+padY*2, rowMin)
		t.heights = append(t.heights, h)
		t.height += h
	}
	return t
}

func (t *table) drawHeader(dc *gg.Context, x, y float64) {
	dc.SetColor(light.header)
	dc.DrawRoundedRectangle(x, y, t.width, headerHeight, corner)
	dc.Fill()

	t.fonts.use(dc, true, bodyPt)
	dc.SetColor(light.headerInk)
	for i, col := range columns {
		dc.DrawStringAnchored(col.header, x+t.widths[i]/2, y+headerHeight/2, 0.5, 0.5)
		x += t.widths[i]
	}
}

func (t *table) drawRows(dc *gg.Context, x, y float64) {
	t.fonts.use(dc, false, bodyPt)
	_, lineH := dc.MeasureString("Ay")
	step := lineH + 4

	for r := range t.rows {
		h := t.heights[r]
		dc.SetColor(light.stripes[r%2])
		dc.DrawRectangle(x, y, t.width, h)
		dc.Fill()

		dc.SetColor(light.rule)
		dc.SetLineWidth(0.5)
		dc.DrawLine(x, y+h, x+t.width, y+h)
		dc.Stroke()

		cx := x
		for i, col := range columns {
			dc.SetColor(light.ink)
			if c, ok := light.outcome[t.rows[r].Outcome]; ok && col.tinted {
				dc.SetColor(c)
			}
			lines := wrapText(dc, col.cell(&t.rows[r]), t.widths[i]-padX*2)
			top := y + (h-float64(len(lines))*step)/2 + lineH
			for n, line := range lines {
				dc.DrawString(line, cx+padX, top+float64(n)*step)
			}
			cx += t.widths[i]
		}
		y += h
	}
}

func (t *table) drawGrid(dc *gg.Context, x, y float64) {
	dc.SetColor(light.rule)
	dc.SetLineWidth(1)
	dc.DrawRoundedRectangle(x, y, t.width, t.height, corner)
	dc.Stroke()

	dc.SetLineWidth(0.5)
	for _, w := range t.widths[:len(t.widths)-1] {
		x += w
		dc.DrawLine(x, y+headerHeight, x, y+t.height)
		dc.Stroke()
	}
}

// RenderDeliveries renders ledger rows as a table image and returns PNG
// bytes. Rows are drawn oldest attempt first. title heads the image; at is
// the timestamp printed beside it.
func RenderDeliveries(title string, rows []complaint.DispatchAttempt, at time.Time) ([]byte, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no deliveries to render")
	}

	rows = append([]complaint.DispatchAttempt(nil), rows...)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].LastAttemptAt.Before(rows[j].LastAttemptAt)
	})

	f := fonts{bold: findFont(true), regular: findFont(false)}
	t := measure(rows, f)

	w := t.width + margin*2
	h := titlePadding + t.height + footerPadding
	dc := gg.NewContext(int(w), int(h))
	dc.SetColor(light.canvas)
	dc.Clear()

	f.use(dc, true, titlePt)
	dc.SetColor(light.ink)
	dc.DrawStringAnchored(fmt.Sprintf("%s  |  %s", title, at.Format("02 Jan 2006, 03:04 PM")), w/2, titlePadding/2+2, 0.5, 0.5)

	t.drawHeader(dc, margin, titlePadding)
	t.drawRows(dc, margin, titlePadding+headerHeight)
	t.drawGrid(dc, margin, titlePadding)

	f.use(dc, false, notePt)
	dc.SetColor(light.muted)
	dc.DrawStringAnchored(footer(rows), w/2, h-30, 0.5, 0.5)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// footer summarises outcome counts, e.g. "Total: 5  |  sent 3  |  failed 2".
func footer(rows []complaint.DispatchAttempt) string {
	counts := map[complaint.Outcome]int{}
	for _, r := range rows {
		counts[r.Outcome]++
	}
	parts := []string{fmt.Sprintf("Total: %d", len(rows))}
	for _, o := range []complaint.Outcome{complaint.OutcomeSent, complaint.OutcomePending, complaint.OutcomeFailed, complaint.OutcomeGatewayError} {
		if counts[o] > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", o, counts[o]))
		}
	}
	return strings.Join(parts, "  |  ")
}
