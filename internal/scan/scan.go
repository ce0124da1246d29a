package scan

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/av1q/internal/domain"
)

// DefaultSegmentExt 是 segmenter 写出的分段容器扩展名。
const DefaultSegmentExt = ".mkv"

// ScanSegments 列出 dir 下扩展名为 ext 的分段文件（不递归）。
//
// 规则（硬约束）：
// - 扩展名比较不区分大小写；ext 为空时使用 DefaultSegmentExt
// - 输出按 Stem 字典序排序（同 Stem 按完整文件名），不依赖 ReadDir 的返回顺序
// - 只做 stat，不读文件内容
//
// dir 不存在时返回空结果且不报错：是否"零文件即失败"由上层决定。
func ScanSegments(dir, ext string) ([]domain.SegmentFile, error) {
	dir = filepath.Clean(dir)
	ext = normalizeExt(ext)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.SegmentFile{}, nil
		}
		return nil, err
	}

	files := make([]domain.SegmentFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.ToLower(filepath.Ext(name)) != ext {
			continue
		}

		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			continue
		}

		abs, err := filepath.Abs(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		files = append(files, domain.SegmentFile{
			AbsPath: abs,
			Name:    name,
			Stem:    strings.TrimSuffix(name, filepath.Ext(name)),
			Ext:     ext,
			Size:    info.Size(),
		})
	}

	// 强制稳定输出：index 分配依赖该顺序，必须跨平台/文件系统可复现。
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Stem != files[j].Stem {
			return files[i].Stem < files[j].Stem
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return DefaultSegmentExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
