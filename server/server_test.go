package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/fitroom/codec"
	"github.com/chaos-io/fitroom/config"
	"github.com/chaos-io/fitroom/cutout"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	blue  = color.NRGBA{R: 10, G: 60, B: 160, A: 255}
	gray  = color.NRGBA{R: 128, G: 128, B: 128, A: 255}
)

func shirt() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			c := white
			if x >= 10 && x < 30 && y >= 10 && y < 30 {
				c = blue
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func mannequin() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 100, 200))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = gray.R, gray.G, gray.B, gray.A
	}
	return img
}

func mustPNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	data, err := codec.EncodePNG(img)
	require.NoError(t, err)
	return data
}

type fixture struct {
	srv      *Server
	root     string
	storeDir string
	shirtPNG []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "static"), 0o755))
	shirtPNG := mustPNG(t, shirt())
	require.NoError(t, os.WriteFile(filepath.Join(root, "static", "shirt.png"), shirtPNG, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "static", "mannequin.png"), mustPNG(t, mannequin()), 0o644))

	cfg := config.Default()
	cfg.Source.StaticRoot = root
	cfg.Store.Dir = t.TempDir()

	srv, err := New(cfg)
	require.NoError(t, err)
	return &fixture{srv: srv, root: root, storeDir: cfg.Store.Dir, shirtPNG: shirtPNG}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func multipartRequest(t *testing.T, target string, data []byte, fields map[string]string) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if data != nil {
		part, err := writer.CreateFormFile("image", "upload.png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, target string, v any) *http.Request {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeAlpha(t *testing.T, data []byte, x, y int) uint32 {
	t.Helper()
	img, _, err := codec.Decode(data)
	require.NoError(t, err)
	_, _, _, a := img.At(x, y).RGBA()
	return a
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(headerRequestID))
}

func TestPostMatte(t *testing.T) {
	t.Parallel()

	corrupt := []byte("this is not an image")
	tests := []struct {
		name       string
		target     string
		data       []byte
		fields     map[string]string
		wantCode   int
		wantStatus cutout.Status
		wantSame   bool
	}{
		{name: "上传后去背景", target: "/api/v1/matte", wantCode: http.StatusOK, wantStatus: cutout.StatusProcessed},
		{name: "带本地来源", target: "/api/v1/matte", fields: map[string]string{"source": "/static/shirt.png"}, wantCode: http.StatusOK, wantStatus: cutout.StatusProcessed},
		{name: "外站来源原样返回", target: "/api/v1/matte", fields: map[string]string{"source": "https://cdn.example.com/shirt.png"}, wantCode: http.StatusOK, wantStatus: cutout.StatusSkippedOrigin, wantSame: true},
		{name: "已抠图原样返回", target: "/api/v1/matte", fields: map[string]string{"matted": "true"}, wantCode: http.StatusOK, wantStatus: cutout.StatusSkippedOrigin, wantSame: true},
		{name: "解码失败原样返回", target: "/api/v1/matte", data: corrupt, wantCode: http.StatusOK, wantStatus: cutout.StatusDecodeFailed, wantSame: true},
		{name: "参数错误", target: "/api/v1/matte?threshold=-1", wantCode: http.StatusBadRequest},
		{name: "band 小于 1", target: "/api/v1/matte?band=0.5", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			data := tt.data
			if data == nil {
				data = f.shirtPNG
			}
			w := f.do(multipartRequest(t, tt.target, data, tt.fields))
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}

			assert.Equal(t, string(tt.wantStatus), w.Header().Get(headerMatteStatus))
			if tt.wantSame {
				assert.Equal(t, data, w.Body.Bytes())
				return
			}
			assert.Equal(t, codec.ContentTypePNG, w.Header().Get("Content-Type"))
			assert.Equal(t, "#ffffff", w.Header().Get(headerMatteBackground))
			assert.Zero(t, decodeAlpha(t, w.Body.Bytes(), 0, 0))
			assert.Equal(t, uint32(0xffff), decodeAlpha(t, w.Body.Bytes(), 20, 20))
		})
	}
}

func TestPostMatte_MissingFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := f.do(multipartRequest(t, "/api/v1/matte", nil, map[string]string{"source": "/static/a.png"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostMatte_Store(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := f.do(multipartRequest(t, "/api/v1/matte?store=true", f.shirtPNG, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ID     string `json:"id"`
		URL    string `json:"url"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "/renders/"+resp.ID, resp.URL)
	assert.Equal(t, string(cutout.StatusProcessed), resp.Status)
	assert.FileExists(t, filepath.Join(f.storeDir, resp.ID+".png"))

	w = f.do(httptest.NewRequest(http.MethodGet, resp.URL, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, decodeAlpha(t, w.Body.Bytes(), 0, 0))

	w = f.do(httptest.NewRequest(http.MethodGet, "/renders/not-a-ksuid", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetMatte(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/matte?src=/static/shirt.png", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(cutout.StatusProcessed), w.Header().Get(headerMatteStatus))
	assert.Zero(t, decodeAlpha(t, w.Body.Bytes(), 0, 0))

	external := "https://cdn.example.com/shirt.png"
	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/matte?src="+external, nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, external, w.Header().Get("Location"))
	assert.Equal(t, "external", w.Header().Get(headerMatteOrigin))

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/matte?src=/static/missing.png", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/static/missing.png", w.Header().Get("Location"))

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/matte", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMatte_UnprocessedRedirects(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "static", "notes.png"), []byte("secret notes"), 0o644))
	translucent := shirt()
	translucent.SetNRGBA(0, 0, color.NRGBA{A: 0})
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "static", "cut.png"), mustPNG(t, translucent), 0o644))

	tests := []struct {
		name       string
		src        string
		wantStatus cutout.Status
	}{
		{name: "无法解码不回传内容", src: "/static/notes.png", wantStatus: cutout.StatusDecodeFailed},
		{name: "已有透明通道", src: "/static/cut.png", wantStatus: cutout.StatusSkippedAlpha},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/matte?src="+tt.src, nil))
			assert.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, tt.src, w.Header().Get("Location"))
			assert.Equal(t, string(tt.wantStatus), w.Header().Get(headerMatteStatus))
			assert.NotContains(t, w.Body.String(), "secret notes")
		})
	}
}

func TestPostMatteData(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	input := codec.DataURI("image/png", f.shirtPNG)

	w := f.do(jsonRequest(t, "/api/v1/matte/data", map[string]any{"src": input, "threshold": 30}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp matteDataResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(cutout.StatusProcessed), resp.Status)
	assert.Equal(t, "inline", resp.Origin)
	assert.Equal(t, "#ffffff", resp.Background)
	assert.True(t, strings.HasPrefix(resp.Image, "data:image/png;base64,"))

	_, data, err := codec.ParseDataURI(resp.Image)
	require.NoError(t, err)
	assert.Zero(t, decodeAlpha(t, data, 0, 0))

	external := "https://cdn.example.com/shirt.png"
	w = f.do(jsonRequest(t, "/api/v1/matte/data", map[string]any{"src": external}))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, external, resp.Image)
	assert.Equal(t, string(cutout.StatusSkippedOrigin), resp.Status)

	w = f.do(jsonRequest(t, "/api/v1/matte/data", map[string]any{}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostOverlay(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := f.do(jsonRequest(t, "/api/v1/overlay", map[string]any{
		"base": "/static/mannequin.png",
		"items": []map[string]any{
			{"slot": "top", "src": "/static/shirt.png"},
			{"slot": "shoes", "src": "https://cdn.example.com/shoes.png"},
		},
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, codec.ContentTypePNG, w.Header().Get("Content-Type"))

	img, _, err := codec.Decode(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 200), img.Bounds())

	// top 中心 (50, 72) 被衬衫覆盖，正片叠底后比底图暗
	r, _, _, _ := img.At(50, 72).RGBA()
	assert.Less(t, r>>8, uint32(gray.R))
	// 衬衫的白底被抠掉，四周保持底图颜色
	r, _, _, _ = img.At(2, 2).RGBA()
	assert.InDelta(t, gray.R, r>>8, 1)
}

func TestPostOverlay_Errors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := f.do(jsonRequest(t, "/api/v1/overlay", map[string]any{
		"base":  "/static/mannequin.png",
		"items": []map[string]any{{"slot": "hat", "src": "/static/shirt.png"}},
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(jsonRequest(t, "/api/v1/overlay", map[string]any{"base": "https://cdn.example.com/me.jpg"}))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(jsonRequest(t, "/api/v1/overlay", map[string]any{"base": "/static/mannequin.png", "blend": "screen"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
