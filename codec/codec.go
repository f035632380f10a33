package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const ContentTypePNG = "image/png"

var (
	ErrDecode     = errors.New("decode image")
	ErrTooLarge   = errors.New("image exceeds pixel budget")
	ErrNotDataURI = errors.New("not a data uri")
)

// Decode 解码图片，按 EXIF 方向自动旋转（手机拍的照片）
// 旋转后的图即为后续处理的原图，宽高可能与存储的像素阵列互换
func Decode(data []byte) (image.Image, string, error) {
	return DecodeLimit(data, 0)
}

// DecodeLimit 同 Decode，先读文件头，宽*高超过 maxPixels 时不解码像素，返回 ErrTooLarge
// maxPixels <= 0 表示不限制
func DecodeLimit(data []byte, maxPixels int) (image.Image, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, format, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, format, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, format, nil
}

// EncodePNG 编码为 PNG，保留 alpha
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// SniffContentType 根据内容判断 MIME
func SniffContentType(data []byte) string {
	return http.DetectContentType(data)
}

// IsDataURI 判断是否为 data: 开头
func IsDataURI(s string) bool {
	return len(s) >= 5 && strings.EqualFold(s[:5], "data:")
}

// ParseDataURI 解析 data:[<mime>][;base64],<data>
func ParseDataURI(s string) (string, []byte, error) {
	if !IsDataURI(s) {
		return "", nil, ErrNotDataURI
	}
	meta, payload, ok := strings.Cut(s[5:], ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing comma", ErrNotDataURI)
	}

	mime := "text/plain"
	isBase64 := false
	for i, part := range strings.Split(meta, ";") {
		switch {
		case i == 0 && part != "":
			mime = part
		case strings.EqualFold(part, "base64"):
			isBase64 = true
		}
	}

	if !isBase64 {
		return mime, []byte(payload), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode base64 payload: %w", err)
	}
	return mime, data, nil
}

// DataURI 编码为 base64 data uri
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
