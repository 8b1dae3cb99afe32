// Package export renders trajectories and training curves to SVG and
// rollouts to animated GIF.
package export

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Point is one sample of a 2-D curve.
type Point struct {
	X, Y float64
}

// Series is a named curve drawn in one colour.
type Series struct {
	Name   string
	Color  string
	Points []Point
}

var seriesColors = []string{"#00ff88", "#ff6b6b", "#4dabf7", "#ffd43b"}

type bounds struct {
	minX, maxX, minY, maxY float64
}

func computeBounds(series []Series) (bounds, bool) {
	b := bounds{math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1)}
	found := false
	for _, s := range series {
		for _, p := range s.Points {
			if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
				continue
			}
			found = true
			b.minX, b.maxX = math.Min(b.minX, p.X), math.Max(b.maxX, p.X)
			b.minY, b.maxY = math.Min(b.minY, p.Y), math.Max(b.maxY, p.Y)
		}
	}
	if !found {
		return b, false
	}

	rangeX := b.maxX - b.minX
	rangeY := b.maxY - b.minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	b.minX -= rangeX * 0.1
	b.maxX += rangeX * 0.1
	b.minY -= rangeY * 0.1
	b.maxY += rangeY * 0.1
	return b, true
}

// CurvesSVG draws each series as a polyline in a shared, padded window.
// Series with fewer than two points are skipped.
func CurvesSVG(series []Series, width, height int, title string) string {
	b, ok := computeBounds(series)
	if !ok {
		return ""
	}
	rangeX := b.maxX - b.minX
	rangeY := b.maxY - b.minY

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))
	if title != "" {
		sb.WriteString(fmt.Sprintf(`<text x="8" y="16" fill="#cccccc" font-family="monospace" font-size="12">%s</text>
`, escape(title)))
	}

	for k, s := range series {
		if len(s.Points) < 2 {
			continue
		}
		color := s.Color
		if color == "" {
			color = seriesColors[k%len(seriesColors)]
		}

		sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="`, color))
		pen := "M"
		for _, p := range s.Points {
			if math.IsNaN(p.X) || math.IsNaN(p.Y) {
				pen = "M"
				continue
			}
			x := (p.X - b.minX) / rangeX * float64(width)
			y := float64(height) - (p.Y-b.minY)/rangeY*float64(height)
			sb.WriteString(fmt.Sprintf("%s%.1f,%.1f ", pen, x, y))
			pen = "L"
		}
		sb.WriteString("\"/>\n")

		if s.Name != "" {
			sb.WriteString(fmt.Sprintf(`<text x="8" y="%d" fill="%s" font-family="monospace" font-size="11">%s</text>
`, 32+14*k, color, escape(s.Name)))
		}
	}

	sb.WriteString("</svg>")
	return sb.String()
}

// PhasePortraitSVG plots (q_dim, p_dim) for each rollout.
func PhasePortraitSVG(qs, ps [][][]float64, dim, width, height int) string {
	series := make([]Series, 0, len(qs))
	for n := range qs {
		pts := make([]Point, 0, len(qs[n]))
		for t := range qs[n] {
			if dim >= len(qs[n][t]) {
				continue
			}
			pts = append(pts, Point{X: qs[n][t][dim], Y: ps[n][t][dim]})
		}
		series = append(series, Series{Name: fmt.Sprintf("rollout %d", n), Points: pts})
	}
	return CurvesSVG(series, width, height, fmt.Sprintf("phase portrait (q%d, p%d)", dim, dim))
}

// LossSVG plots loss curves against iteration.
func LossSVG(iterations []int, curves map[string][]float64, width, height int) string {
	names := make([]string, 0, len(curves))
	for name := range curves {
		names = append(names, name)
	}
	sort.Strings(names)

	series := make([]Series, 0, len(names))
	for _, name := range names {
		values := curves[name]
		pts := make([]Point, 0, len(values))
		for i, v := range values {
			if i < len(iterations) {
				pts = append(pts, Point{X: float64(iterations[i]), Y: v})
			}
		}
		series = append(series, Series{Name: name, Points: pts})
	}
	return CurvesSVG(series, width, height, "loss")
}

func escape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
