package overlay

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"
	"strings"
)

// MaxBaseSize 底图最长边
const MaxBaseSize = 1024

// BlendMode 叠加方式
type BlendMode string

const (
	// BlendMultiply 正片叠底，白色部分不遮挡人台
	BlendMultiply BlendMode = "multiply"
	BlendNormal   BlendMode = "normal"
)

var (
	ErrNoBase       = errors.New("base image is required")
	ErrUnknownBlend = errors.New("unknown blend mode")
)

func ParseBlendMode(s string) (BlendMode, error) {
	switch BlendMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", BlendMultiply:
		return BlendMultiply, nil
	case BlendNormal:
		return BlendNormal, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBlend, s)
}

// Item 一件已穿戴的单品
type Item struct {
	Slot  Slot
	Image image.Image
	// ScaleDelta 用户调整的缩放增量
	ScaleDelta float64
}

// Compose 把单品按位置叠加到底图（人台或用户照片）上
// 单品先裁掉透明边，再按 Width*scale*底图宽度 等比缩放，以 (CenterX, CenterY) 为中心放置，按 Z 从小到大绘制
func Compose(base image.Image, items []Item, layout Layout, mode BlendMode) (*image.NRGBA, error) {
	if base == nil || base.Bounds().Empty() {
		return nil, ErrNoBase
	}
	if layout == nil {
		layout = DefaultLayout()
	}
	blend, err := blendFunc(mode)
	if err != nil {
		return nil, err
	}

	// 底图复制一份，不修改调用方的图
	canvas := resizeWithinMax(toNRGBA(base), MaxBaseSize)
	if canvas == base {
		canvas = clone(canvas)
	}
	cw, ch := canvas.Bounds().Dx(), canvas.Bounds().Dy()

	ordered := make([]Item, len(items))
	copy(ordered, items)
	for _, it := range ordered {
		if _, ok := layout[it.Slot]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSlot, it.Slot)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return layout[ordered[i].Slot].Z < layout[ordered[j].Slot].Z
	})

	for _, it := range ordered {
		if it.Image == nil || it.Image.Bounds().Empty() {
			continue
		}
		p := layout[it.Slot]

		garment, err := trim(toNRGBA(it.Image))
		if err != nil {
			slog.Debug("skip fully transparent item", "slot", it.Slot)
			continue
		}

		width := int(math.Round(p.Width * EffectiveScale(p, it.ScaleDelta) * float64(cw)))
		if width < 1 {
			continue
		}
		layer := scaleToWidth(garment, width)
		lw, lh := layer.Bounds().Dx(), layer.Bounds().Dy()

		x := int(math.Round(p.CenterX*float64(cw))) - lw/2
		y := int(math.Round(p.CenterY*float64(ch))) - lh/2
		composite(canvas, layer, x, y, blend)
	}
	return canvas, nil
}

func blendMultiply(s, d float64) float64 { return s * d }
func blendNormal(s, _ float64) float64   { return s }

func blendFunc(mode BlendMode) (func(s, d float64) float64, error) {
	switch mode {
	case "", BlendMultiply:
		return blendMultiply, nil
	case BlendNormal:
		return blendNormal, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBlend, mode)
}

// composite 把 src 以 (xoff, yoff) 为左上角叠加到 dst，dst 原地修改
func composite(dst, src *image.NRGBA, xoff, yoff int, blend func(s, d float64) float64) {
	db := dst.Bounds()
	sb := src.Bounds()

	startX := max(db.Min.X, xoff)
	startY := max(db.Min.Y, yoff)
	endX := min(db.Max.X, xoff+sb.Dx())
	endY := min(db.Max.Y, yoff+sb.Dy())
	if startX >= endX || startY >= endY {
		return
	}

	for y := startY; y < endY; y++ {
		for x := startX; x < endX; x++ {
			si := src.PixOffset(sb.Min.X+x-xoff, sb.Min.Y+y-yoff)
			di := dst.PixOffset(x, y)

			sa := float64(src.Pix[si+3]) / 255
			if sa == 0 {
				continue
			}
			da := float64(dst.Pix[di+3]) / 255
			for c := 0; c < 3; c++ {
				s := float64(src.Pix[si+c]) / 255
				d := float64(dst.Pix[di+c]) / 255
				out := (1-sa)*d + sa*blend(s, d)
				dst.Pix[di+c] = uint8(math.Round(clamp01(out) * 255))
			}
			dst.Pix[di+3] = uint8(math.Round(clamp01(sa+da*(1-sa)) * 255))
		}
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
