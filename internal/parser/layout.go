package parser

import (
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	defaultFontSize      = 10.0
	defaultLineTolerance = 0.5 // font sizes
	defaultCellGap       = 1.5 // font sizes
	defaultWordGap       = 0.2 // font sizes
)

// LayoutOptions controls how positioned glyphs are assembled into lines and
// cells. All distances are multiples of the glyph font size.
type LayoutOptions struct {
	LineTolerance float64 `yaml:"line_tolerance"`
	CellGap       float64 `yaml:"cell_gap"`
	WordGap       float64 `yaml:"word_gap"`
}

func (o LayoutOptions) withDefaults() LayoutOptions {
	if o.LineTolerance <= 0 {
		o.LineTolerance = defaultLineTolerance
	}
	if o.CellGap <= 0 {
		o.CellGap = defaultCellGap
	}
	if o.WordGap <= 0 {
		o.WordGap = defaultWordGap
	}
	return o
}

type cell struct {
	x0, x1 float64
	text   string
}

type line struct {
	y     float64
	cells []cell
}

func (l line) String() string {
	parts := make([]string, 0, len(l.cells))
	for _, c := range l.cells {
		parts = append(parts, c.text)
	}
	return strings.Join(parts, " ")
}

func fontSize(t pdf.Text) float64 {
	if t.FontSize > 0 {
		return t.FontSize
	}
	return defaultFontSize
}

// layoutLines groups glyphs into lines top to bottom and splits every line into
// cells wherever the horizontal gap between glyphs exceeds opts.CellGap.
func layoutLines(glyphs []pdf.Text, opts LayoutOptions) []line {
	opts = opts.withDefaults()

	visible := make([]pdf.Text, 0, len(glyphs))
	for _, g := range glyphs {
		if g.S == "" || g.S == "\n" || g.S == "\r" {
			continue
		}
		visible = append(visible, g)
	}
	if len(visible) == 0 {
		return nil
	}

	// stable: glyphs sharing a position keep content stream order
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].Y > visible[j].Y
	})

	var rows [][]pdf.Text
	var rowY float64
	for _, g := range visible {
		n := len(rows)
		if n == 0 || math.Abs(rowY-g.Y) > fontSize(g)*opts.LineTolerance {
			rows = append(rows, []pdf.Text{g})
			rowY = g.Y
			continue
		}
		rows[n-1] = append(rows[n-1], g)
	}

	lines := make([]line, 0, len(rows))
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool {
			return row[i].X < row[j].X
		})
		cells := splitCells(row, opts)
		if len(cells) == 0 {
			continue
		}
		lines = append(lines, line{y: row[0].Y, cells: cells})
	}
	return lines
}

func splitCells(row []pdf.Text, opts LayoutOptions) []cell {
	var (
		cells   []cell
		current *cell
		b       strings.Builder
	)
	flush := func() {
		if current == nil {
			return
		}
		current.text = strings.TrimSpace(b.String())
		if current.text != "" {
			cells = append(cells, *current)
		}
		current = nil
		b.Reset()
	}

	for _, g := range row {
		size := fontSize(g)
		if current != nil {
			gap := g.X - current.x1
			if gap > size*opts.CellGap {
				flush()
			} else if gap > size*opts.WordGap && !strings.HasSuffix(b.String(), " ") && g.S != " " {
				b.WriteByte(' ')
			}
		}
		if current == nil {
			current = &cell{x0: g.X, x1: g.X}
		}
		b.WriteString(g.S)
		current.x1 = math.Max(current.x1, g.X+g.W)
	}
	flush()
	return cells
}

// pageFromLines builds the page text (one line per row, cells separated by a
// space) and the candidate tables: maximal runs of consecutive lines with two
// or more cells.
func pageFromLines(lines []line) Page {
	var (
		page  Page
		text  = make([]string, 0, len(lines))
		table [][]string
	)
	closeTable := func() {
		if len(table) > 0 {
			page.Tables = append(page.Tables, table)
			table = nil
		}
	}

	for _, l := range lines {
		text = append(text, l.String())
		if len(l.cells) < 2 {
			closeTable()
			continue
		}
		row := make([]string, 0, len(l.cells))
		for _, c := range l.cells {
			row = append(row, c.text)
		}
		table = append(table, row)
	}
	closeTable()

	page.Text = strings.Join(text, "\n")
	return page
}
