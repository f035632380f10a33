package cmd

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/fitroom/codec"
	"github.com/chaos-io/fitroom/cutout"
	"github.com/chaos-io/fitroom/matte"
	"github.com/chaos-io/fitroom/rembg"
	"github.com/chaos-io/fitroom/source"
)

func garmentPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			c := color.NRGBA{R: 250, G: 250, B: 250, A: 255}
			if x >= 10 && x < 30 && y >= 10 && y < 30 {
				c = color.NRGBA{R: 20, G: 20, B: 90, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	data, err := codec.EncodePNG(img)
	require.NoError(t, err)
	return data
}

func newTestProcessor(t *testing.T) *cutout.Processor {
	t.Helper()
	remover, err := rembg.NewRemover(rembg.NameMatte, matte.DefaultOptions())
	require.NoError(t, err)
	return cutout.NewProcessor(source.DefaultGuard(), remover)
}

func TestMatteFiles(t *testing.T) {
	t.Parallel()

	in := t.TempDir()
	out := t.TempDir()

	shirt := filepath.Join(in, "shirt.png")
	require.NoError(t, os.WriteFile(shirt, garmentPNG(t), 0o644))
	broken := filepath.Join(in, "broken.jpg")
	require.NoError(t, os.WriteFile(broken, []byte("not an image"), 0o644))

	var log bytes.Buffer
	err := matteFiles(context.Background(), newTestProcessor(t), []string{shirt, broken}, out, 2, false, &log)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(out, "shirt_matte.png"))
	require.NoError(t, err)
	img, _, err := codec.Decode(data)
	require.NoError(t, err)
	assert.True(t, matte.HasUsefulAlpha(img))

	copied, err := os.ReadFile(filepath.Join(out, "broken_matte.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("not an image"), copied)

	assert.Contains(t, log.String(), string(cutout.StatusProcessed))
	assert.Contains(t, log.String(), string(cutout.StatusDecodeFailed))
}

func TestMatteFiles_Matted(t *testing.T) {
	t.Parallel()

	in := t.TempDir()
	out := t.TempDir()
	raw := garmentPNG(t)
	shirt := filepath.Join(in, "shirt.png")
	require.NoError(t, os.WriteFile(shirt, raw, 0o644))

	var log bytes.Buffer
	err := matteFiles(context.Background(), newTestProcessor(t), []string{shirt}, out, 1, true, &log)
	require.NoError(t, err)

	copied, err := os.ReadFile(filepath.Join(out, "shirt_matte.png"))
	require.NoError(t, err)
	assert.Equal(t, raw, copied)
	assert.Contains(t, log.String(), string(cutout.StatusSkippedOrigin))
}

func TestMatteFiles_MissingInput(t *testing.T) {
	t.Parallel()

	err := matteFiles(context.Background(), newTestProcessor(t), []string{filepath.Join(t.TempDir(), "nope.png")}, t.TempDir(), 1, false, &bytes.Buffer{})
	require.Error(t, err)

	exitCodeError := &ExitCodeError{}
	require.ErrorAs(t, err, &exitCodeError)
	assert.Equal(t, ExitCodeInvalidInput, exitCodeError.ExitCode())
}

func TestOutputPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		res  cutout.Result
		want string
	}{
		{name: "处理成功改为 png", in: "/a/dress.jpg", res: cutout.Result{Status: cutout.StatusProcessed}, want: "out/dress_matte.png"},
		{name: "跳过保留扩展名", in: "/a/dress.jpg", res: cutout.Result{Status: cutout.StatusSkippedAlpha}, want: "out/dress_matte.jpg"},
		{name: "无扩展名", in: "bag", res: cutout.Result{Status: cutout.StatusDecodeFailed}, want: "out/bag_matte"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, filepath.FromSlash(tt.want), outputPath("out", tt.in, tt.res))
		})
	}
}
