package rembg

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/chaos-io/fitroom/matte"
)

const (
	NameMatte = "matte"
	NameNone  = "none"
)

var ErrUnknownRemover = errors.New("unknown background remover")

type Remover interface {
	Remove(ctx context.Context, img image.Image) (image.Image, error)
}

// Estimator 去背景的同时返回所用的背景色估计
type Estimator interface {
	RemoveEstimated(ctx context.Context, img image.Image) (image.Image, matte.Background, error)
}

// NewRemover 按名称创建背景去除器
func NewRemover(name string, opts matte.Options) (Remover, error) {
	switch name {
	case NameMatte, "":
		if err := opts.Validate(); err != nil {
			return nil, err
		}
		return NewMatteRemBG(opts), nil
	case NameNone:
		return NewDefaultRemBG(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRemover, name)
	}
}

// DefaultRemBG 不做处理，原样返回
type DefaultRemBG struct{}

func NewDefaultRemBG() *DefaultRemBG {
	return &DefaultRemBG{}
}

func (d *DefaultRemBG) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	return img, nil
}
