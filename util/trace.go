package util

import (
	"log/slog"
	"time"
)

// Trace 记录耗时，用法：defer util.Trace("matte")()
func Trace(name string) func() {
	start := time.Now()
	return func() {
		slog.Debug("trace", "name", name, "elapsed", time.Since(start))
	}
}
