package rembg

import (
	"context"
	"image"
	"log/slog"

	"github.com/chaos-io/fitroom/matte"
)

// MatteRemBG 边缘采样估计背景色 + 距离阈值抠图
// 只适合纯色背景的商品图，不是通用抠图
type MatteRemBG struct {
	Options matte.Options
}

func NewMatteRemBG(opts matte.Options) *MatteRemBG {
	return &MatteRemBG{Options: opts}
}

func (m *MatteRemBG) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	out, _, err := m.RemoveEstimated(ctx, img)
	return out, err
}

// RemoveEstimated 只估计一次背景色，抠图和返回值共用
func (m *MatteRemBG) RemoveEstimated(ctx context.Context, img image.Image) (image.Image, matte.Background, error) {
	if img.Bounds().Empty() {
		return img, matte.Background{}, nil
	}

	bg := matte.Estimate(img, m.Options.SampleDensity)
	slog.Debug("estimated background", "color", bg.NRGBA(), "size", img.Bounds().Size())

	out, err := matte.Cut(ctx, img, bg, m.Options)
	if err != nil {
		return nil, bg, err
	}
	return out, bg, nil
}
