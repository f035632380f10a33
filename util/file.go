package util

import (
	"os"
	"path/filepath"
)

// WriteFile 写文件，目录不存在时创建
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
