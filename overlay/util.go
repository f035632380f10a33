package overlay

import (
	"errors"
	"image"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

var errNoForeground = errors.New("未检测到前景区域")

// toNRGBA 转为原点在 (0,0) 的 NRGBA
func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Bounds().Min == (image.Point{}) {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func clone(img *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(img.Bounds())
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	return dst
}

// resizeWithinMax 缩放（最长边 <= maxSize）
func resizeWithinMax(img *image.NRGBA, maxSize int) *image.NRGBA {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	longest := max(w, h)

	if longest <= maxSize {
		return img
	}

	scale := float64(maxSize) / float64(longest)
	newW := max(1, int(float64(w)*scale))
	newH := max(1, int(float64(h)*scale))

	resized := resize.Resize(uint(newW), uint(newH), img, resize.Lanczos3)
	return toNRGBA(resized)
}

// alphaBBox 从 alpha 通道计算主体 bounding box
// 把 alpha > threshold * 255 的像素当作“主体”
func alphaBBox(img *image.NRGBA, threshold float64) (image.Rectangle, error) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	th := uint8(threshold * 255)

	minX, minY := w, h
	maxX, maxY := 0, 0
	found := false

	for y := 0; y < h; y++ {
		row := y * img.Stride
		for x := 0; x < w; x++ {
			if img.Pix[row+x*4+3] > th {
				found = true
				minX = min(minX, x)
				minY = min(minY, y)
				maxX = max(maxX, x)
				maxY = max(maxY, y)
			}
		}
	}

	if !found {
		return image.Rectangle{}, errNoForeground
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), nil
}

// trim 裁掉四周的透明区域
func trim(img *image.NRGBA) (*image.NRGBA, error) {
	bbox, err := alphaBBox(img, 0)
	if err != nil {
		return nil, err
	}
	if bbox == img.Bounds() {
		return img, nil
	}
	return img.SubImage(bbox).(*image.NRGBA), nil
}

// scaleToWidth 等比缩放到指定宽度
func scaleToWidth(img *image.NRGBA, width int) *image.NRGBA {
	b := img.Bounds()
	height := max(1, int(float64(b.Dy())*float64(width)/float64(b.Dx())+0.5))
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
