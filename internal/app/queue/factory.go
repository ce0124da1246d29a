package queue

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/John-Robertt/av1q/internal/domain"
	"github.com/John-Robertt/av1q/internal/encoder"
)

// DefaultPixFormat 是抽取命令默认的目标像素格式。
const DefaultPixFormat = "yuv420p10le"

// Prober 同步返回分段文件的帧数。
type Prober interface {
	Frames(ctx context.Context, path string) (int, error)
}

// Factory 为单个分段文件构造 Chunk（size/frames/extension/command/pass 命令）。
type Factory struct {
	Root      string
	PixFormat string
	Encoder   encoder.Encoder
	Options   encoder.Options
	Prober    Prober
}

// BuildOne 构造 index 对应的 chunk。帧数探测失败会原样向上传递：整次构建必须失败。
func (f *Factory) BuildOne(ctx context.Context, index int, seg domain.SegmentFile) (domain.Chunk, error) {
	if f.Encoder == nil || f.Prober == nil {
		return domain.Chunk{}, fmt.Errorf("factory 未配置 encoder/prober")
	}

	// size 总以构造时的磁盘大小为准，不信任 seg.Size（0 字节分段也是合法值）。
	fi, err := os.Stat(seg.AbsPath)
	if err != nil {
		return domain.Chunk{}, fmt.Errorf("读取分段大小失败：%w", err)
	}
	size := fi.Size()

	frames, err := f.Prober.Frames(ctx, seg.AbsPath)
	if err != nil {
		return domain.Chunk{}, fmt.Errorf("探测帧数失败 %q：%w", seg.AbsPath, err)
	}

	c := domain.Chunk{
		Index:     index,
		Name:      domain.ChunkName(index),
		Command:   ExtractCommand(seg.AbsPath, f.PixFormat),
		Extension: f.Encoder.Extension(),
		Size:      size,
		Frames:    frames,
		Root:      f.Root,
	}
	if err := encoder.Generate(&c, f.Encoder, f.Options); err != nil {
		return domain.Chunk{}, err
	}
	return c, nil
}

// ExtractCommand 返回把分段解码为 y4m 管道的命令模板（本核心不执行它）。
func ExtractCommand(path, pixFormat string) string {
	pixFormat = strings.TrimSpace(pixFormat)
	if pixFormat == "" {
		pixFormat = DefaultPixFormat
	}
	return fmt.Sprintf("ffmpeg -y -hide_banner -loglevel error -i %s -strict -1 -pix_fmt %s -bufsize 50000K -f yuv4mpegpipe -", path, pixFormat)
}
