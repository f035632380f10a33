package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/fitroom/config"
	"github.com/chaos-io/fitroom/cutout"
	"github.com/chaos-io/fitroom/matte"
	"github.com/chaos-io/fitroom/rembg"
	"github.com/chaos-io/fitroom/source"
)

type Server struct {
	cfg    *config.Config
	guard  *source.Guard
	loader *source.Loader
	engine *gin.Engine
}

func New(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := rembg.NewRemover(cfg.Matte.Remover, cfg.Matte.Options); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		guard:  cfg.Guard(),
		loader: cfg.Loader(),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), accessLog())
	engine.MaxMultipartMemory = cfg.Server.MaxUploadBytes
	s.routes(engine)
	s.engine = engine
	return s, nil
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/renders/:id", s.getRender)

	v1 := r.Group("/api/v1")
	v1.POST("/matte", s.postMatte)
	v1.GET("/matte", s.getMatte)
	v1.POST("/matte/data", s.postMatteData)
	v1.POST("/overlay", s.postOverlay)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// processor 每个请求按参数生成，没有共享的可变状态
func (s *Server) processor(opts matte.Options) (*cutout.Processor, error) {
	remover, err := rembg.NewRemover(s.cfg.Matte.Remover, opts)
	if err != nil {
		return nil, err
	}
	p := cutout.NewProcessor(s.guard, remover)
	p.MaxPixels = s.cfg.Matte.MaxPixels
	return p, nil
}

// Run 启动 HTTP 服务，ctx 结束时优雅退出
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
