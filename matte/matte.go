package matte

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"
)

// Distance RGB 空间的欧氏距离
func Distance(r, g, b uint8, bg Background) float64 {
	dr := float64(r) - bg.R
	dg := float64(g) - bg.G
	db := float64(b) - bg.B
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// Alpha 计算单个像素抠图后的 alpha
//
//	d < T                 → 0（背景）
//	T <= d < band*T       → 线性过渡 0..255（软边）
//	其他                  → 保持原 alpha
//	亮度 > cutoff 且 d < brightnessBand*T → 强制 0（近白色背景碎片）
func Alpha(c color.NRGBA, bg Background, o Options) uint8 {
	d := Distance(c.R, c.G, c.B, bg)
	t := o.Threshold

	alpha := c.A
	switch {
	case d < t:
		alpha = 0
	case d < o.BandMultiplier*t:
		width := (o.BandMultiplier - 1) * t
		alpha = clamp8((d - t) / width * 255)
	}

	brightness := (float64(c.R) + float64(c.G) + float64(c.B)) / 3
	if brightness > o.BrightnessCutoff && d < o.BrightnessBand*t {
		alpha = 0
	}
	return alpha
}

// Cut 按背景色生成新的 NRGBA 图，RGB 不变，只改 alpha；不修改 img
func Cut(ctx context.Context, img image.Image, bg Background, o Options) (*image.NRGBA, error) {
	dst := cloneNRGBA(img)
	b := dst.Bounds()
	w := b.Dx()

	for y := 0; y < b.Dy(); y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			c := color.NRGBA{R: row[i], G: row[i+1], B: row[i+2], A: row[i+3]}
			row[i+3] = Alpha(c, bg, o)
		}
	}
	return dst, nil
}

// Remove 估计背景并抠图；宽或高为 0 时原样返回
func Remove(img image.Image, o Options) image.Image {
	out, _ := RemoveContext(context.Background(), img, o)
	return out
}

// RemoveContext 同 Remove，ctx 取消时中止并返回 ctx.Err()
func RemoveContext(ctx context.Context, img image.Image, o Options) (image.Image, error) {
	if img.Bounds().Empty() {
		return img, nil
	}
	bg := Estimate(img, o.SampleDensity)
	out, err := Cut(ctx, img, bg, o)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HasUsefulAlpha 检查 alpha 通道是否真的包含透明信息
// 只要存在非 255（非完全不透明），就认为“已有抠图”
func HasUsefulAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}

// cloneNRGBA 总是分配新的缓冲区
func cloneNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(b)
	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+b.Dx()*4], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return dst
	}
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

func clamp8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}
