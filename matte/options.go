package matte

import (
	"errors"
	"fmt"
)

var ErrInvalidOptions = errors.New("invalid matte options")

// Options 抠图参数
type Options struct {
	// Threshold RGB 空间的欧氏距离阈值，小于它视为背景
	Threshold float64 `yaml:"threshold" json:"threshold"`
	// BandMultiplier 软过渡带上限 = BandMultiplier * Threshold
	BandMultiplier float64 `yaml:"band_multiplier" json:"band_multiplier"`
	// BrightnessCutoff 亮度 (r+g+b)/3 超过该值的像素可被强制透明
	BrightnessCutoff float64 `yaml:"brightness_cutoff" json:"brightness_cutoff"`
	// BrightnessBand 亮度强制透明只在 d < BrightnessBand * Threshold 时生效
	BrightnessBand float64 `yaml:"brightness_band" json:"brightness_band"`
	// SampleDensity 每条边的采样点数
	SampleDensity int `yaml:"sample_density" json:"sample_density"`
}

// DefaultOptions 默认参数，适合纯色背景的商品图
func DefaultOptions() Options {
	return Options{
		Threshold:        35,
		BandMultiplier:   1.5,
		BrightnessCutoff: 235,
		BrightnessBand:   2.0,
		SampleDensity:    10,
	}
}

func (o Options) Validate() error {
	switch {
	case o.Threshold <= 0:
		return fmt.Errorf("%w: threshold must be > 0, got %v", ErrInvalidOptions, o.Threshold)
	case o.BandMultiplier < 1:
		return fmt.Errorf("%w: band multiplier must be >= 1, got %v", ErrInvalidOptions, o.BandMultiplier)
	case o.BrightnessBand < 0:
		return fmt.Errorf("%w: brightness band must be >= 0, got %v", ErrInvalidOptions, o.BrightnessBand)
	case o.BrightnessCutoff < 0 || o.BrightnessCutoff > 255:
		return fmt.Errorf("%w: brightness cutoff must be in [0,255], got %v", ErrInvalidOptions, o.BrightnessCutoff)
	case o.SampleDensity < 1:
		return fmt.Errorf("%w: sample density must be >= 1, got %d", ErrInvalidOptions, o.SampleDensity)
	}
	return nil
}
