// Package preview renders a PNG quick-look of a converted volume: the middle
// axial slice, windowed to its own range, with the series name drawn on top.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/mrsinham/remindconv/internal/volume"
)

// MaxSize is the largest side of a preview, in pixels.
const MaxSize = 256

// Render returns the preview image of v labelled with label.
func Render(v *volume.Volume, label string) (*image.RGBA, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("render preview: %w", err)
	}
	width, height, z := v.Dims[0], v.Dims[1], v.Dims[2]/2
	slice := v.Slice(z)

	lo, hi := slice[0], slice[0]
	for _, d := range slice {
		lo = min(lo, d)
		hi = max(hi, d)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	src := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gray := uint8((v.At(x, y, z) - lo) / span * 255)
			src.SetGray(x, y, color.Gray{Y: gray})
		}
	}

	// Scale to physical aspect, longest side MaxSize.
	physW := float64(width) * v.Spacing[0]
	physH := float64(height) * v.Spacing[1]
	if physW <= 0 || physH <= 0 {
		physW, physH = float64(width), float64(height)
	}
	outW, outH := MaxSize, MaxSize
	if physW > physH {
		outH = max(1, int(float64(MaxSize)*physH/physW))
	} else {
		outW = max(1, int(float64(MaxSize)*physW/physH))
	}
	img := image.NewRGBA(image.Rect(0, 0, outW, outH))
	draw.BiLinear.Scale(img, img.Bounds(), src, src.Bounds(), draw.Src, nil)

	if label != "" {
		drawLabel(img, label)
	}
	return img, nil
}

// Write renders the preview of v and saves it as a PNG at path.
func Write(path string, v *volume.Volume, label string) error {
	img, err := Render(v, label)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	defer func() { _ = f.Close() }()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return f.Close()
}

// drawLabel draws text in the top-left corner, white with a black outline.
func drawLabel(img *image.RGBA, text string) {
	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, text).Ceil()
	textHeight := 13
	if textWidth == 0 {
		return
	}

	textImg := image.NewAlpha(image.Rect(0, 0, textWidth, textHeight))
	drawer := &font.Drawer{
		Dst:  textImg,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.Point26_6{Y: fixed.I(11)},
	}
	drawer.DrawString(text)

	// Shrink long labels to the image width.
	scaled := image.Image(textImg)
	if textWidth > img.Bounds().Dx()-4 {
		w := max(1, img.Bounds().Dx()-4)
		h := max(1, textHeight*w/textWidth)
		dst := image.NewAlpha(image.Rect(0, 0, w, h))
		draw.BiLinear.Scale(dst, dst.Bounds(), textImg, textImg.Bounds(), draw.Src, nil)
		scaled = dst
	}

	const margin = 2
	b := scaled.Bounds()
	black := image.NewUniform(color.Black)
	for _, d := range []image.Point{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		r := b.Add(image.Pt(margin, margin)).Add(d)
		draw.DrawMask(img, r, black, image.Point{}, scaled, b.Min, draw.Over)
	}
	draw.DrawMask(img, b.Add(image.Pt(margin, margin)), image.White, image.Point{}, scaled, b.Min, draw.Over)
}
