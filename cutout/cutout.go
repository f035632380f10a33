package cutout

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/chaos-io/fitroom/codec"
	"github.com/chaos-io/fitroom/matte"
	"github.com/chaos-io/fitroom/rembg"
	"github.com/chaos-io/fitroom/source"
)

// Status 处理结果
type Status string

const (
	StatusProcessed     Status = "processed"
	StatusSkippedOrigin Status = "skipped-origin"
	StatusSkippedAlpha  Status = "skipped-alpha"
	StatusDecodeFailed  Status = "decode-failed"
	StatusDegenerate    Status = "degenerate"
	StatusTooLarge      Status = "too-large"
	StatusRemoveFailed  Status = "remove-failed"
	StatusCancelled     Status = "cancelled"
)

var ErrTooLarge = codec.ErrTooLarge

// Result 处理结果。除 StatusProcessed 外，Data 都是输入的原始字节
type Result struct {
	Data        []byte
	ContentType string
	Status      Status
	Origin      source.Origin
	// Err 失败原因，仅用于日志；不会阻断调用方
	Err        error
	Background *matte.Background
	Image      image.Image
}

func (r Result) Processed() bool {
	return r.Status == StatusProcessed
}

type Processor struct {
	Guard *source.Guard
	RemBG rembg.Remover
	// MaxPixels 超过则不处理，0 表示不限制
	MaxPixels int
}

func NewProcessor(guard *source.Guard, remover rembg.Remover) *Processor {
	return &Processor{
		Guard:     guard,
		RemBG:     remover,
		MaxPixels: 4096 * 4096,
	}
}

// Process 把商品图的纯色背景变成透明
//
//	来源不合适（外站 / 已抠图） → 原样返回
//	解码失败                   → 原样返回
//	已有透明通道               → 原样返回
//	其余                       → 去背景，输出 PNG
//
// 这是装饰性功能，任何失败都退化成“不抠图”，只有 ctx 取消会体现在 Status 上
func (p *Processor) Process(ctx context.Context, ref source.Ref, data []byte) Result {
	origin := p.Guard.Classify(ref)
	res := Result{
		Data:        data,
		ContentType: codec.SniffContentType(data),
		Origin:      origin,
	}

	if !origin.Eligible() {
		res.Status = StatusSkippedOrigin
		return res
	}

	img, _, err := codec.DecodeLimit(data, p.MaxPixels)
	if errors.Is(err, codec.ErrTooLarge) {
		res.Status, res.Err = StatusTooLarge, err
		return res
	}
	if err != nil {
		slog.Warn("decode image failed, keep original", "ref", ref.URL, "error", err)
		res.Status, res.Err = StatusDecodeFailed, err
		return res
	}
	return p.process(ctx, res, img)
}

// ProcessImage 已解码的图片走同样的流程；跳过时 Image 为输入本身
func (p *Processor) ProcessImage(ctx context.Context, ref source.Ref, img image.Image) Result {
	origin := p.Guard.Classify(ref)
	res := Result{Origin: origin, Image: img}
	if !origin.Eligible() {
		res.Status = StatusSkippedOrigin
		return res
	}
	return p.process(ctx, res, img)
}

func (p *Processor) process(ctx context.Context, res Result, img image.Image) Result {
	res.Image = img

	b := img.Bounds()
	if b.Empty() {
		res.Status = StatusDegenerate
		return res
	}
	if matte.HasUsefulAlpha(img) {
		res.Status = StatusSkippedAlpha
		return res
	}
	if p.MaxPixels > 0 && b.Dx()*b.Dy() > p.MaxPixels {
		res.Status = StatusTooLarge
		res.Err = fmt.Errorf("%w: %dx%d", ErrTooLarge, b.Dx(), b.Dy())
		return res
	}

	out, bg, err := p.remove(ctx, img)
	res.Background = bg
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Status, res.Err = StatusCancelled, ctxErr
			return res
		}
		slog.Warn("remove background failed, keep original", "error", err)
		res.Status, res.Err = StatusRemoveFailed, err
		return res
	}

	if res.Data == nil {
		res.Image = out
		res.Status = StatusProcessed
		return res
	}

	encoded, err := codec.EncodePNG(out)
	if err != nil {
		slog.Warn("encode cut-out failed, keep original", "error", err)
		res.Status, res.Err = StatusRemoveFailed, err
		return res
	}
	res.Data = encoded
	res.ContentType = codec.ContentTypePNG
	res.Image = out
	res.Status = StatusProcessed
	return res
}

// remove 去背景；remover 支持时同时拿到背景色估计，不重复计算
func (p *Processor) remove(ctx context.Context, img image.Image) (image.Image, *matte.Background, error) {
	est, ok := p.RemBG.(rembg.Estimator)
	if !ok {
		out, err := p.RemBG.Remove(ctx, img)
		return out, nil, err
	}
	out, bg, err := est.RemoveEstimated(ctx, img)
	if err != nil {
		return nil, nil, err
	}
	return out, &bg, nil
}
