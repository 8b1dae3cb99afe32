package physics

import (
	"fmt"
	"math"
)

// palette assigns each object a colour; objects beyond the palette wrap.
var palette = [][3]float64{
	{1.0, 0.35, 0.25},
	{0.25, 0.6, 1.0},
	{0.4, 0.9, 0.4},
	{1.0, 0.85, 0.2},
}

// Renderer draws objects as gaussian blobs on a black square canvas.
type Renderer struct {
	Height, Width int
	Channels      int
	// Radius is the blob standard deviation in world units.
	Radius float64
}

func NewRenderer(height, width, channels int) (*Renderer, error) {
	if height < 1 || width < 1 {
		return nil, fmt.Errorf("frame size must be positive, got %dx%d", height, width)
	}
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("channels must be 1 or 3, got %d", channels)
	}
	return &Renderer{Height: height, Width: width, Channels: channels, Radius: 0.12}, nil
}

// FrameSize is the number of values in one rendered frame.
func (r *Renderer) FrameSize() int { return r.Channels * r.Height * r.Width }

// Render writes one channel-major frame (C, H, W) into dst, which must hold
// FrameSize values. Pixel values are clamped to [0, 1].
func (r *Renderer) Render(dst []float64, objects []Point, extent float64) {
	for i := range dst {
		dst[i] = 0
	}
	plane := r.Height * r.Width
	radius := r.Radius * extent
	inv := 1 / (2 * radius * radius)

	for k, obj := range objects {
		colour := palette[k%len(palette)]
		for row := 0; row < r.Height; row++ {
			// row 0 is the top of the window
			y := extent - (float64(row)+0.5)*2*extent/float64(r.Height)
			for col := 0; col < r.Width; col++ {
				x := -extent + (float64(col)+0.5)*2*extent/float64(r.Width)
				dx, dy := x-obj.X, y-obj.Y
				v := math.Exp(-(dx*dx + dy*dy) * inv)

				idx := row*r.Width + col
				if r.Channels == 1 {
					dst[idx] += v
					continue
				}
				for c := 0; c < 3; c++ {
					dst[c*plane+idx] += v * colour[c]
				}
			}
		}
	}

	for i, v := range dst {
		if v > 1 {
			dst[i] = 1
		}
	}
}
