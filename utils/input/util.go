package input

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/tsinghua-fib-lab/scenario-player/parser"
)

// preCheckCache 预检查缓存目录
// 功能：验证输入缓存目录的有效性，决定是否启用缓存功能
// 参数：cacheDir-缓存目录路径
// 返回：true表示启用缓存，false表示禁用缓存
func preCheckCache(cacheDir string) bool {
	if cacheDir == "" {
		log.Info("disable input cache")
		return false
	}
	if stat, err := os.Stat(cacheDir); err == nil && stat.IsDir() {
		// 文件夹存在
		log.Infof("enable input cache at %s", cacheDir)
		return true
	}
	log.Errorf("disable input cache because invalid dir %s (not exist or file)", cacheDir)
	return false
}

// readCache 读取缓存目录中的全部文档，按文件名排序
// 返回：文档，缓存是否存在且非空
func readCache(dir string) ([]parser.File, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		return nil, false
	}
	files := make([]parser.File, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			log.Warnf("ignore unreadable cache file %s: %v", e.Name(), err)
			continue
		}
		files = append(files, parser.File{Name: e.Name(), Data: data})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	log.Infof("load %d documents from cache %s", len(files), dir)
	return files, len(files) > 0
}

// writeCache 将下载的文档写入缓存目录，失败只记录日志
func writeCache(dir string, files []parser.File) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Errorf("create cache dir %s: %v", dir, err)
		return
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, filepath.Base(f.Name)), f.Data, 0o644); err != nil {
			log.Errorf("write cache %s: %v", f.Name, err)
		}
	}
}
