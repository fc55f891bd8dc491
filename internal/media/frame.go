package media

import (
	"image"
	"image/color"
)

// ToImage copies the frame into a standard RGBA image, e.g. for thumbnail
// staging or artifact rendering.
func (f Frame) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			base := (y*f.Width + x) * 3
			img.SetRGBA(x, y, color.RGBA{
				R: f.Pix[base],
				G: f.Pix[base+1],
				B: f.Pix[base+2],
				A: 255,
			})
		}
	}
	return img
}
