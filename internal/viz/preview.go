package viz

import "github.com/charmbracelet/lipgloss"

// FrameString renders one channel-major frame on a cols x rows Braille
// canvas.
func FrameString(frame []float64, channels, height, width, cols, rows int) string {
	c := NewCanvas(cols, rows)
	c.Blit(frame, channels, height, width, 0.3)
	return c.String()
}

// PhaseString plots a (q, p) path on a cols x rows Braille canvas.
func PhaseString(q, p []float64, cols, rows int) string {
	c := NewCanvas(cols, rows)
	c.PlotPath(q, p)
	return c.String()
}

// Panel frames content under a title.
func Panel(title, content string) string {
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), content))
}

// Row joins panels side by side.
func Row(panels ...string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, panels...)
}
