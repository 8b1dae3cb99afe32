package export

import (
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"io"
	"math"

	"gorgonia.org/tensor"
)

var grayPalette = func() color.Palette {
	p := make(color.Palette, 256)
	for i := range p {
		p[i] = color.Gray{Y: uint8(i)}
	}
	return p
}()

func toByte(v float64) uint8 {
	if math.IsNaN(v) {
		return 0
	}
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

// FrameImage converts one channel-major frame (C, H, W) with values in
// [0, 1] to a paletted image, each pixel scaled to a scale x scale block.
func FrameImage(frame []float64, channels, height, width, scale int) (*image.Paletted, error) {
	if len(frame) != channels*height*width {
		return nil, fmt.Errorf("frame has %d values, want %d", len(frame), channels*height*width)
	}
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("channels must be 1 or 3, got %d", channels)
	}
	if scale < 1 {
		scale = 1
	}

	pal := grayPalette
	if channels == 3 {
		pal = palette.WebSafe
	}
	img := image.NewPaletted(image.Rect(0, 0, width*scale, height*scale), pal)
	plane := height * width

	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			idx := row*width + col
			var c color.Color
			if channels == 1 {
				c = color.Gray{Y: toByte(frame[idx])}
			} else {
				c = color.RGBA{
					R: toByte(frame[idx]),
					G: toByte(frame[plane+idx]),
					B: toByte(frame[2*plane+idx]),
					A: 255,
				}
			}
			ci := uint8(pal.Index(c))
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.SetColorIndex(col*scale+dx, row*scale+dy, ci)
				}
			}
		}
	}
	return img, nil
}

// RolloutFrames extracts the frames of batch element n from a rollout
// tensor (N, C*T, H, W).
func RolloutFrames(rollout *tensor.Dense, n, channels int) ([][]float64, error) {
	shape := rollout.Shape()
	if len(shape) != 4 || channels < 1 || shape[1]%channels != 0 {
		return nil, fmt.Errorf("rollout shape %v does not hold %d-channel frames", shape, channels)
	}
	if n < 0 || n >= shape[0] {
		return nil, fmt.Errorf("batch index %d out of range [0, %d)", n, shape[0])
	}
	data, ok := rollout.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("rollout dtype %v, want float64", rollout.Dtype())
	}

	steps := shape[1] / channels
	frameSize := channels * shape[2] * shape[3]
	base := n * steps * frameSize

	frames := make([][]float64, steps)
	for t := range frames {
		frames[t] = data[base+t*frameSize : base+(t+1)*frameSize]
	}
	return frames, nil
}

// RolloutGIF writes batch element n of the rollout as a looping animation.
// delay is per frame in hundredths of a second.
func RolloutGIF(w io.Writer, rollout *tensor.Dense, n, channels, scale, delay int) error {
	frames, err := RolloutFrames(rollout, n, channels)
	if err != nil {
		return err
	}
	shape := rollout.Shape()

	anim := &gif.GIF{}
	for t, f := range frames {
		img, err := FrameImage(f, channels, shape[2], shape[3], scale)
		if err != nil {
			return fmt.Errorf("frame %d: %w", t, err)
		}
		anim.Image = append(anim.Image, img)
		anim.Delay = append(anim.Delay, delay)
	}
	return gif.EncodeAll(w, anim)
}
