// Package media 通过 ffmpeg/ffprobe 子进程实现分段与帧数探测。
//
// 这两个动作对队列核心而言是外部协作者：同步调用，失败即整次准备阶段失败；
// 这里不做超时与重试，ctx 只用于让上层中止子进程。
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/av1q/internal/infra/logx"
)

// 通过可替换的函数指针，让测试不依赖本机安装的 ffmpeg。
var execCommand = exec.CommandContext

// SplitDir 是分段文件所在的子目录名（<root>/split）。
const SplitDir = "split"

// FFmpegSegmenter 把输入按帧号切成 <root>/split/%05d.mkv。
type FFmpegSegmenter struct {
	Bin string // 默认 "ffmpeg"
}

// Segment 在 splits 为空时写出单个 00000.mkv；否则用 -f segment 按帧号切分。
// 文件名补零，保证 stem 字典序与分段顺序一致。
func (s FFmpegSegmenter) Segment(ctx context.Context, input, root string, splits []int) error {
	dir := filepath.Join(root, SplitDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	args := []string{"-hide_banner", "-y", "-i", input, "-map", "0:v:0", "-an", "-c", "copy", "-avoid_negative_ts", "1"}
	if len(splits) == 0 {
		args = append(args, filepath.Join(dir, "00000.mkv"))
	} else {
		frames := make([]string, 0, len(splits))
		for _, f := range splits {
			frames = append(frames, strconv.Itoa(f))
		}
		args = append(args, "-f", "segment", "-segment_frames", strings.Join(frames, ","), filepath.Join(dir, "%05d.mkv"))
	}

	bin := s.Bin
	if bin == "" {
		bin = "ffmpeg"
	}
	return runLogged(ctx, bin, args)
}

func runLogged(ctx context.Context, bin string, args []string) error {
	cmd := execCommand(ctx, bin, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("获取 %s stderr 失败：%w", bin, err)
	}

	log := logx.FromCtx(ctx)
	log.Debug().Str("bin", bin).Strs("args", args).Msg("exec")

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("启动 %s 失败：%w", bin, err)
	}
	last := logx.NewLineWriter(log, map[string]string{"proc": filepath.Base(bin)}, zerolog.DebugLevel).Pipe(stderr)
	if err := cmd.Wait(); err != nil {
		if last != "" {
			return fmt.Errorf("%s 执行失败：%w：%s", bin, err, last)
		}
		return fmt.Errorf("%s 执行失败：%w", bin, err)
	}
	return nil
}

// FFprobe 用 -count_packets 统计视频流帧数（对 stream copy 出来的分段足够准确，且无需解码）。
type FFprobe struct {
	Bin string // 默认 "ffprobe"
}

type probeOutput struct {
	Streams []struct {
		NbReadPackets string `json:"nb_read_packets"`
		NbFrames      string `json:"nb_frames"`
	} `json:"streams"`
}

func (p FFprobe) Frames(ctx context.Context, path string) (int, error) {
	bin := p.Bin
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := execCommand(ctx, bin,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=nb_read_packets,nb_frames",
		"-of", "json",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe 执行失败 %s：%w：%s", path, err, strings.TrimSpace(stderr.String()))
	}
	return parseFrames(stdout.Bytes())
}

func parseFrames(b []byte) (int, error) {
	var out probeOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return 0, fmt.Errorf("ffprobe 输出无法解析：%w", err)
	}
	if len(out.Streams) == 0 {
		return 0, fmt.Errorf("ffprobe 未找到视频流")
	}
	st := out.Streams[0]
	raw := st.NbReadPackets
	if raw == "" || raw == "N/A" {
		raw = st.NbFrames
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("ffprobe 帧数非法：%q", raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("ffprobe 帧数非法：%d", n)
	}
	return n, nil
}
