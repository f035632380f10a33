package janitor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor 定时清理过期的抠图结果
// 抠图结果只在展示时需要，不做持久化
type Janitor struct {
	Dir string
	TTL time.Duration

	cron *cron.Cron
}

func New(dir string, ttl time.Duration) *Janitor {
	return &Janitor{Dir: dir, TTL: ttl}
}

// Sweep 删除 Dir 下修改时间早于 now-TTL 的 png 文件，返回删除数量
func (j *Janitor) Sweep(now time.Time) (int, error) {
	entries, err := os.ReadDir(j.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read dir %s: %w", j.Dir, err)
	}

	deadline := now.Add(-j.TTL)
	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(deadline) {
			continue
		}
		if err := os.Remove(filepath.Join(j.Dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Start 按 cron 表达式定时清理，例如 "@every 10m"
func (j *Janitor) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		n, err := j.Sweep(time.Now())
		if err != nil {
			slog.Warn("sweep renders", "dir", j.Dir, "error", err)
		}
		if n > 0 {
			slog.Info("swept expired renders", "dir", j.Dir, "removed", n)
		}
	})
	if err != nil {
		return fmt.Errorf("parse sweep schedule %q: %w", schedule, err)
	}
	j.cron = c
	c.Start()
	return nil
}

// Stop 停止定时任务，等待正在执行的清理结束
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}
