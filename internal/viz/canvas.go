package viz

import (
	"math"
	"strings"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const blank = 0x2800

// Canvas is a grid of Braille cells; each cell holds 2x4 sub-pixels.
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// PixelSize returns the canvas size in sub-pixels.
func (c *Canvas) PixelSize() (int, int) { return c.Width * 2, c.Height * 4 }

// Set turns on the sub-pixel at (x, y). Out of range points are ignored.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}

	col := x / 2
	row := y / 4
	if col >= c.Width || row >= c.Height {
		return
	}

	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = blank
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// PlotPath scales the points to fill the canvas and joins them with lines.
// Non-finite points break the path.
func (c *Canvas) PlotPath(xs, ys []float64) {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	if n == 0 {
		return
	}

	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		if !finite(xs[i]) || !finite(ys[i]) {
			continue
		}
		minX, maxX = math.Min(minX, xs[i]), math.Max(maxX, xs[i])
		minY, maxY = math.Min(minY, ys[i]), math.Max(maxY, ys[i])
	}
	if math.IsInf(minX, 1) {
		return
	}
	spanX, spanY := maxX-minX, maxY-minY
	if spanX == 0 {
		spanX = 1
	}
	if spanY == 0 {
		spanY = 1
	}

	pw, ph := c.PixelSize()
	toPixel := func(x, y float64) (int, int) {
		px := int((x - minX) / spanX * float64(pw-1))
		py := int((1 - (y-minY)/spanY) * float64(ph-1))
		return px, py
	}

	havePrev := false
	var prevX, prevY int
	for i := 0; i < n; i++ {
		if !finite(xs[i]) || !finite(ys[i]) {
			havePrev = false
			continue
		}
		px, py := toPixel(xs[i], ys[i])
		if havePrev {
			c.DrawLine(prevX, prevY, px, py)
		} else {
			c.Set(px, py)
		}
		prevX, prevY, havePrev = px, py, true
	}
}

// Blit draws a channel-major frame (C, H, W), lighting every sub-pixel
// whose mean channel intensity exceeds threshold. The frame is stretched
// to the canvas.
func (c *Canvas) Blit(frame []float64, channels, height, width int, threshold float64) {
	if len(frame) != channels*height*width || channels < 1 {
		return
	}
	plane := height * width
	pw, ph := c.PixelSize()

	for y := 0; y < ph; y++ {
		row := y * height / ph
		for x := 0; x < pw; x++ {
			col := x * width / pw
			sum := 0.0
			for ch := 0; ch < channels; ch++ {
				sum += frame[ch*plane+row*width+col]
			}
			if sum/float64(channels) > threshold {
				c.Set(x, y)
			}
		}
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
