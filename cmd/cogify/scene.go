// SPDX-License-Identifier: MIT

package main

import (
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"

	"github.com/geotiled/cogsink"
)

// stripRows is the height of one submitted write. Strip boundaries
// stay on even rows through every halving of the overview chain, so
// concurrent strips never feed half a 2x2 neighborhood.
const stripRows = 256

// paintScene renders the synthetic test raster: a diagonal gradient
// with a ring of disks, enough structure that every overview level
// looks different from its neighbors.
func paintScene(size int) image.Image {
	dc := gg.NewContext(size, size)

	grad := gg.NewLinearGradient(0, 0, float64(size), float64(size))
	grad.AddColorStop(0, color.Gray{Y: 13})
	grad.AddColorStop(1, color.Gray{Y: 217})
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, float64(size), float64(size))
	dc.Fill()

	center := float64(size) / 2
	ring := float64(size) / 3
	dc.SetRGB(1, 1, 1)
	for i := 0; i < 12; i++ {
		angle := gg.Radians(float64(i) * 30)
		x := center + ring*math.Cos(angle)
		y := center + ring*math.Sin(angle)
		dc.DrawCircle(x, y, float64(size)/24)
		dc.Fill()
	}

	return dc.Image()
}

// lumaStrip converts the rows [y0, y1) of an image to a single-band
// 16-bit block, using the red channel of the grayscale scene.
func lumaStrip(img image.Image, y0, y1 int) cogsink.Block {
	bounds := img.Bounds()
	width := bounds.Dx()
	vals := make([]uint16, (y1-y0)*width)
	for y := y0; y < y1; y++ {
		for x := 0; x < width; x++ {
			r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			vals[(y-y0)*width+x] = uint16(r)
		}
	}
	return cogsink.MakeBlock(y1-y0, width, vals)
}
