package main

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	"seqgen/internal/sequence"
)

// 128 bits laid out as a 16x8 grid of square cells, generation order
// left to right, top to bottom.
const (
	gridCols = 16
	gridRows = sequence.Bits / gridCols

	defaultCell = 16
	maxCell     = 64
)

var (
	colorOne  = color.RGBA{R: 0x1f, G: 0x2a, B: 0x44, A: 255}
	colorZero = color.RGBA{R: 0xf4, G: 0xf1, B: 0xea, A: 255}
	colorGrid = color.RGBA{R: 0xc8, G: 0xc3, B: 0xb8, A: 255}
)

func renderBits(seq sequence.BitSequence, cell int) *image.RGBA {
	if cell <= 0 {
		cell = defaultCell
	}
	if cell < 2 {
		cell = 2
	}
	if cell > maxCell {
		cell = maxCell
	}
	img := image.NewRGBA(image.Rect(0, 0, gridCols*cell+1, gridRows*cell+1))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: colorGrid}, image.Point{}, draw.Src)

	for i := 0; i < sequence.Bits; i++ {
		col := colorZero
		if seq.Bit(i) == 1 {
			col = colorOne
		}
		x0 := (i%gridCols)*cell + 1
		y0 := (i/gridCols)*cell + 1
		r := image.Rect(x0, y0, x0+cell-1, y0+cell-1)
		draw.Draw(img, r, &image.Uniform{C: col}, image.Point{}, draw.Src)
	}
	return img
}

func writePNG(w io.Writer, seq sequence.BitSequence, cell int) error {
	return png.Encode(w, renderBits(seq, cell))
}
