package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/John-Robertt/av1q/internal/domain"
	"github.com/John-Robertt/av1q/internal/scan"
)

// Segmenter 把输入切成分段文件并写到 <root>/split/（必需的副作用）。
type Segmenter interface {
	Segment(ctx context.Context, input, root string, splits []int) error
}

// Builder 从分段文件构造并排好序的队列。
//
// 约束：
// - index 分配只由 stem 字典序决定，与文件系统枚举顺序无关
// - 零个分段文件：返回 structural_failure，绝不返回空队列
// - 全程单 goroutine；构造与排序都在任何并发编码开始之前完成
type Builder struct {
	Root       string
	SegmentExt string
	Segmenter  Segmenter
	Factory    *Factory

	// OnSegmented 在分段与扫描结束后调用一次（可选）。
	OnSegmented func(files []domain.SegmentFile)
	// OnChunk 在每个 chunk 构造完成后调用（可选，用于进度输出）。
	OnChunk func(done, total int, c domain.Chunk)
}

// SplitDir 返回分段目录 <root>/split。
func (b *Builder) SplitDir() string {
	return filepath.Join(b.Root, "split")
}

// Build 清空 split → 分段 → 枚举 → 逐个构造 → 按 size 降序调度。
// 只用于新建队列；resume 路径从不调用它，因此不会动已有分段。
func (b *Builder) Build(ctx context.Context, input string, splits []int) ([]domain.Chunk, error) {
	if b.Segmenter == nil || b.Factory == nil {
		return nil, errors.New("builder 未配置 segmenter/factory")
	}

	// 上一次运行留下的分段会被扫描进来，必须先清掉。
	if err := os.RemoveAll(b.SplitDir()); err != nil {
		return nil, fmt.Errorf("清理旧分段目录失败：%w", err)
	}

	if err := b.Segmenter.Segment(ctx, input, b.Root, splits); err != nil {
		return nil, fmt.Errorf("分段失败：%w", err)
	}

	files, err := scan.ScanSegments(b.SplitDir(), b.SegmentExt)
	if err != nil {
		return nil, fmt.Errorf("枚举分段文件失败：%w", err)
	}
	if len(files) == 0 {
		return nil, domain.Structural(b.SplitDir(), errors.New("未找到任何分段文件，分段可能没有生效"))
	}
	if b.OnSegmented != nil {
		b.OnSegmented(files)
	}

	chunks := make([]domain.Chunk, 0, len(files))
	for i, f := range files {
		c, err := b.Factory.BuildOne(ctx, i, f)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
		if b.OnChunk != nil {
			b.OnChunk(i+1, len(files), c)
		}
	}

	return ScheduleLargestFirst(chunks), nil
}
