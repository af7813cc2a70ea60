package tui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sakif/schoolquest/internal/runner"
)

// Default canvas size in terminal cells.
const (
	CanvasCols = 80
	CanvasRows = 14
)

const (
	glyphEmpty    = ' '
	glyphGround   = '='
	glyphObstacle = '#'
)

var avatarGlyph = map[string]rune{"fox": 'F', "owl": 'O', "robot": 'R'}

type cell struct {
	glyph rune
	style *lipgloss.Style
}

// Canvas is the simulation rasterised onto a grid of terminal cells. The
// last row is the ground; world coordinates are scaled so Config.Width
// spans the columns and Config.GroundY the rows above the ground.
type Canvas struct {
	cols, rows int
	cells      [][]cell
}

// Draw rasterises the current frame of sim.
func Draw(sim *runner.Sim, cols, rows int, st *Styles) *Canvas {
	c := &Canvas{cols: cols, rows: rows, cells: make([][]cell, rows)}
	for y := range c.cells {
		c.cells[y] = make([]cell, cols)
		for x := range c.cells[y] {
			c.cells[y][x].glyph = glyphEmpty
		}
	}

	cfg := sim.Config()
	sx := cfg.Width / float64(cols)
	sy := cfg.GroundY / float64(rows-1)

	for x := range cols {
		c.set(x, rows-1, glyphGround, &st.Ground)
	}
	for _, o := range sim.Obstacles() {
		c.fill(sim.ObstacleRect(o), sx, sy, glyphObstacle, &st.Obstacle)
	}
	for _, l := range sim.Letters() {
		if l.Collected {
			continue
		}
		sym := runner.Alphabet[l.Symbol]
		style := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(sym.Color))
		c.set(int(l.X/sx), int(l.Y/sy), []rune(sym.Glyph)[0], &style)
	}

	g, ok := avatarGlyph[sim.Avatar()]
	if !ok {
		g = '@'
	}
	c.fill(sim.PlayerRect(), sx, sy, g, &st.Player)
	return c
}

// fill covers every cell the box touches, but never the ground row.
func (c *Canvas) fill(r runner.Rect, sx, sy float64, g rune, style *lipgloss.Style) {
	x0, x1 := int(math.Floor(r.X/sx)), int(math.Ceil((r.X+r.W)/sx))
	y0, y1 := int(math.Floor(r.Y/sy)), int(math.Ceil((r.Y+r.H)/sy))
	for y := y0; y < y1 && y < c.rows-1; y++ {
		for x := x0; x < x1; x++ {
			c.set(x, y, g, style)
		}
	}
}

func (c *Canvas) set(x, y int, g rune, style *lipgloss.Style) {
	if x < 0 || y < 0 || x >= c.cols || y >= c.rows {
		return
	}
	c.cells[y][x] = cell{glyph: g, style: style}
}

// Plain returns the canvas without colours, one string per row.
func (c *Canvas) Plain() []string {
	out := make([]string, c.rows)
	for y, row := range c.cells {
		var b strings.Builder
		for _, cl := range row {
			b.WriteRune(cl.glyph)
		}
		out[y] = b.String()
	}
	return out
}

// Render returns the coloured canvas.
func (c *Canvas) Render() string {
	var b strings.Builder
	for y, row := range c.cells {
		if y > 0 {
			b.WriteByte('\n')
		}
		for _, cl := range row {
			if cl.style == nil {
				b.WriteRune(cl.glyph)
				continue
			}
			b.WriteString(cl.style.Render(string(cl.glyph)))
		}
	}
	return b.String()
}
