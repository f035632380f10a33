package matte

import (
	"fmt"
	"image"
	"image/color"
)

// Background 估计出的背景色，各通道取值 [0,255]
type Background struct {
	R, G, B float64
}

// NRGBA 取整后的背景色
func (b Background) NRGBA() color.NRGBA {
	return color.NRGBA{R: clamp8(b.R), G: clamp8(b.G), B: clamp8(b.B), A: 255}
}

// Hex #rrggbb
func (b Background) Hex() string {
	c := b.NRGBA()
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// SamplePoints 生成边缘采样点
// 上下两行按 step = W/density 取点，左右两列按 step = H/density 取点，step 最小为 1
// 顺序固定：上、下、左、右
func SamplePoints(bounds image.Rectangle, density int) []image.Point {
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil
	}
	if density < 1 {
		density = 1
	}
	stepX := max(1, w/density)
	stepY := max(1, h/density)

	points := make([]image.Point, 0, 2*(w/stepX+1)+2*(h/stepY+1))
	for _, y := range []int{bounds.Min.Y, bounds.Max.Y - 1} {
		for x := 0; x < w; x += stepX {
			points = append(points, image.Pt(bounds.Min.X+x, y))
		}
	}
	for _, x := range []int{bounds.Min.X, bounds.Max.X - 1} {
		for y := 0; y < h; y += stepY {
			points = append(points, image.Pt(x, bounds.Min.Y+y))
		}
	}
	return points
}

// Estimate 用边缘采样点的 RGB 均值估计背景色
func Estimate(img image.Image, density int) Background {
	points := SamplePoints(img.Bounds(), density)
	if len(points) == 0 {
		return Background{}
	}

	var sumR, sumG, sumB float64
	for _, p := range points {
		c := color.NRGBAModel.Convert(img.At(p.X, p.Y)).(color.NRGBA)
		sumR += float64(c.R)
		sumG += float64(c.G)
		sumB += float64(c.B)
	}
	n := float64(len(points))
	return Background{R: sumR / n, G: sumG / n, B: sumB / n}
}
