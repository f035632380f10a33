package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"
	"golang.org/x/sync/errgroup"

	"github.com/chaos-io/fitroom/codec"
	"github.com/chaos-io/fitroom/cutout"
	"github.com/chaos-io/fitroom/matte"
	"github.com/chaos-io/fitroom/overlay"
	"github.com/chaos-io/fitroom/source"
	"github.com/chaos-io/fitroom/util"
)

const (
	headerMatteStatus     = "X-Matte-Status"
	headerMatteOrigin     = "X-Matte-Origin"
	headerMatteBackground = "X-Matte-Background"
)

// matteParams 抠图参数，未填写的使用配置里的默认值
type matteParams struct {
	Threshold        *float64 `form:"threshold" json:"threshold" binding:"omitempty,gt=0"`
	Band             *float64 `form:"band" json:"band" binding:"omitempty,gte=1"`
	BrightnessCutoff *float64 `form:"brightness_cutoff" json:"brightness_cutoff" binding:"omitempty,gte=0,lte=255"`
	BrightnessBand   *float64 `form:"brightness_band" json:"brightness_band" binding:"omitempty,gte=0"`
	Density          *int     `form:"density" json:"density" binding:"omitempty,gte=1,lte=1000"`
}

func (p matteParams) apply(o matte.Options) matte.Options {
	if p.Threshold != nil {
		o.Threshold = *p.Threshold
	}
	if p.Band != nil {
		o.BandMultiplier = *p.Band
	}
	if p.BrightnessCutoff != nil {
		o.BrightnessCutoff = *p.BrightnessCutoff
	}
	if p.BrightnessBand != nil {
		o.BrightnessBand = *p.BrightnessBand
	}
	if p.Density != nil {
		o.SampleDensity = *p.Density
	}
	return o
}

type matteQuery struct {
	matteParams
	Src    string `form:"src"`
	Matted bool   `form:"matted"`
	Store  bool   `form:"store"`
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func writeMatteHeaders(c *gin.Context, res cutout.Result) {
	c.Header(headerMatteStatus, string(res.Status))
	c.Header(headerMatteOrigin, res.Origin.String())
	if res.Background != nil {
		c.Header(headerMatteBackground, res.Background.Hex())
	}
	if res.Err != nil {
		_ = c.Error(res.Err)
	}
}

// respond 输出处理结果；store=true 且处理成功时保存并返回地址
func (s *Server) respond(c *gin.Context, res cutout.Result, store bool) {
	if res.Status == cutout.StatusCancelled {
		c.AbortWithStatus(http.StatusRequestTimeout)
		return
	}
	writeMatteHeaders(c, res)

	if store && res.Processed() {
		id, err := s.store(res.Data)
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store render failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "url": "/renders/" + id, "status": res.Status})
		return
	}
	c.Data(http.StatusOK, res.ContentType, res.Data)
}

func (s *Server) store(data []byte) (string, error) {
	id := ksuid.New().String()
	if err := util.WriteFile(filepath.Join(s.cfg.Store.Dir, id+".png"), data); err != nil {
		return "", fmt.Errorf("store render: %w", err)
	}
	return id, nil
}

// postMatte multipart 上传：image 文件，source 原始引用，matted 是否已抠图
func (s *Server) postMatte(c *gin.Context) {
	var q matteQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	p, err := s.processor(q.apply(s.cfg.Matte.Options))
	if err != nil {
		badRequest(c, err)
		return
	}

	fh, err := c.FormFile("image")
	if err != nil {
		badRequest(c, fmt.Errorf("image file is required: %w", err))
		return
	}
	if fh.Size > s.cfg.Server.MaxUploadBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer func() {
		_ = f.Close()
	}()
	data, err := io.ReadAll(f)
	if err != nil {
		badRequest(c, err)
		return
	}

	matted, _ := strconv.ParseBool(c.PostForm("matted"))
	ref := source.Ref{URL: c.PostForm("source"), Matted: matted || q.Matted}

	res := p.Process(c.Request.Context(), ref, data)
	s.respond(c, res, q.Store)
}

// getMatte 处理本地图片；外站或已抠图的引用直接重定向到原地址
func (s *Server) getMatte(c *gin.Context) {
	var q matteQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	if q.Src == "" {
		badRequest(c, errors.New("src is required"))
		return
	}
	p, err := s.processor(q.apply(s.cfg.Matte.Options))
	if err != nil {
		badRequest(c, err)
		return
	}

	ref := source.Ref{URL: q.Src, Matted: q.Matted}
	origin := s.guard.Classify(ref)
	if !origin.Eligible() {
		c.Header(headerMatteStatus, string(cutout.StatusSkippedOrigin))
		c.Header(headerMatteOrigin, origin.String())
		c.Redirect(http.StatusFound, q.Src)
		return
	}

	data, err := s.loader.Load(c.Request.Context(), ref)
	if err != nil {
		slog.Warn("load source failed, redirect to original", "src", q.Src, "error", err)
		_ = c.Error(err)
		c.Header(headerMatteStatus, string(cutout.StatusDecodeFailed))
		c.Redirect(http.StatusFound, q.Src)
		return
	}

	res := p.Process(c.Request.Context(), ref, data)
	if !res.Processed() && res.Status != cutout.StatusCancelled {
		// 未处理时不回传读取到的字节，交给调用方按原地址访问
		writeMatteHeaders(c, res)
		c.Redirect(http.StatusFound, q.Src)
		return
	}
	s.respond(c, res, q.Store)
}

type matteDataRequest struct {
	matteParams
	Src    string `json:"src" binding:"required"`
	Matted bool   `json:"matted"`
}

type matteDataResponse struct {
	Image      string `json:"image"`
	Status     string `json:"status"`
	Origin     string `json:"origin"`
	Background string `json:"background,omitempty"`
}

// postMatteData 输入输出都是引用：data uri 进，data uri 出；跳过时原样返回输入
func (s *Server) postMatteData(c *gin.Context) {
	var req matteDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := s.processor(req.apply(s.cfg.Matte.Options))
	if err != nil {
		badRequest(c, err)
		return
	}

	ref := source.Ref{URL: req.Src, Matted: req.Matted}
	origin := s.guard.Classify(ref)
	resp := matteDataResponse{Image: req.Src, Status: string(cutout.StatusSkippedOrigin), Origin: origin.String()}
	if !origin.Eligible() {
		c.JSON(http.StatusOK, resp)
		return
	}

	data, err := s.loader.Load(c.Request.Context(), ref)
	if err != nil {
		_ = c.Error(err)
		resp.Status = string(cutout.StatusDecodeFailed)
		c.JSON(http.StatusOK, resp)
		return
	}

	res := p.Process(c.Request.Context(), ref, data)
	if res.Status == cutout.StatusCancelled {
		c.AbortWithStatus(http.StatusRequestTimeout)
		return
	}
	writeMatteHeaders(c, res)
	resp.Status = string(res.Status)
	if res.Background != nil {
		resp.Background = res.Background.Hex()
	}
	if res.Processed() {
		resp.Image = codec.DataURI(res.ContentType, res.Data)
	}
	c.JSON(http.StatusOK, resp)
}

type overlayItem struct {
	Slot       string  `json:"slot" binding:"required"`
	Src        string  `json:"src" binding:"required"`
	ScaleDelta float64 `json:"scale_delta" binding:"gte=-3,lte=3"`
	Matted     bool    `json:"matted"`
}

type overlayRequest struct {
	matteParams
	Base  string        `json:"base" binding:"required"`
	Items []overlayItem `json:"items" binding:"max=16,dive"`
	Blend string        `json:"blend"`
}

// postOverlay 把单品抠图后叠加到人台或用户照片上，输出 PNG
func (s *Server) postOverlay(c *gin.Context) {
	var req overlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	mode, err := overlay.ParseBlendMode(req.Blend)
	if err != nil {
		badRequest(c, err)
		return
	}
	slots := make([]overlay.Slot, len(req.Items))
	for i, it := range req.Items {
		if slots[i], err = overlay.ParseSlot(it.Slot); err != nil {
			badRequest(c, err)
			return
		}
	}
	p, err := s.processor(req.apply(s.cfg.Matte.Options))
	if err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	base, err := s.loadImage(ctx, source.Ref{URL: req.Base})
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "base image unavailable"})
		return
	}

	items := make([]overlay.Item, len(req.Items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, it := range req.Items {
		i, it := i, it
		g.Go(func() error {
			ref := source.Ref{URL: it.Src, Matted: it.Matted}
			img, err := s.loadImage(gctx, ref)
			if err != nil {
				// 单品加载失败只跳过该单品
				slog.Warn("skip overlay item", "slot", it.Slot, "src", it.Src, "error", err)
				return nil
			}
			res := p.ProcessImage(gctx, ref, img)
			if res.Status == cutout.StatusCancelled {
				return res.Err
			}
			items[i] = overlay.Item{Slot: slots[i], Image: res.Image, ScaleDelta: it.ScaleDelta}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.AbortWithStatus(http.StatusRequestTimeout)
		return
	}

	out, err := overlay.Compose(base, compact(items), s.cfg.Overlay, mode)
	if err != nil {
		badRequest(c, err)
		return
	}
	data, err := codec.EncodePNG(out)
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, codec.ContentTypePNG, data)
}

// loadImage 读取并解码本地/内联图片；外站图片不在服务端拉取
func (s *Server) loadImage(ctx context.Context, ref source.Ref) (image.Image, error) {
	data, err := s.loader.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	img, _, err := codec.Decode(data)
	return img, err
}

func compact(items []overlay.Item) []overlay.Item {
	out := items[:0]
	for _, it := range items {
		if it.Image != nil {
			out = append(out, it)
		}
	}
	return out
}

func (s *Server) getRender(c *gin.Context) {
	id, err := ksuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	c.File(filepath.Join(s.cfg.Store.Dir, id.String()+".png"))
}
