package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/av1q/internal/app/run"
	"github.com/John-Robertt/av1q/internal/config"
	"github.com/John-Robertt/av1q/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的简洁进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr，不污染 stdout 的契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：分段/探测长时间没有新事件时，定期输出一行当前阶段
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	stage string
	built int
	total int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig, runID string) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "new"
	p.stage = "分段"
	if eff.Resume {
		mode = "resume"
		p.stage = "加载"
	}

	fmt.Fprintf(p.w, "[%s] av1q queue (%s) run=%s\n", now.Format("15:04:05"), mode, runID)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  temp: %s\n", eff.Temp)
	if eff.Input != "" {
		fmt.Fprintf(p.w, "  input: %s\n", eff.Input)
	}
	fmt.Fprintf(p.w, "  encoder: %s%s -> .%s\n", eff.Encoder, formatPasses(eff.Passes), eff.Extension)
	if !eff.Resume {
		fmt.Fprintf(p.w, "  split_frames: %s\n", formatSplits(eff.SplitFrames))
	}
	fmt.Fprintf(p.w, "  done_store: %s\n", formatDoneStore(eff.DoneStore))
	if eff.StrictResume {
		fmt.Fprintln(p.w, "  strict_resume: on")
	}
	if eff.ConfigPath != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigPath)
	}
	fmt.Fprintln(p.w, "输出:")
	fmt.Fprintf(p.w, "  split: %s\n", filepath.Join(eff.Temp, "split"))
	fmt.Fprintf(p.w, "  queue: %s\n", filepath.Join(eff.Temp, "chunks.json"))
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	if !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "segment":
		p.total = intField(fields, "files")
		p.stage = "构造"
		fmt.Fprintf(p.w, "分段: files=%d (%s)\n", p.total, formatShortDuration(dur))
	case "build":
		p.stage = "保存"
		fmt.Fprintf(p.w, "构造: chunks=%d (%s)\n", intField(fields, "chunks"), formatShortDuration(dur))
	case "save":
		p.stage = ""
		fmt.Fprintf(p.w, "保存: chunks=%d (%s)\n", intField(fields, "chunks"), formatShortDuration(dur))
	case "load":
		p.stage = "读取完成记录"
		fmt.Fprintf(p.w, "加载: chunks=%d version=%d (%s)\n",
			intField(fields, "chunks"), intField(fields, "version"), formatShortDuration(dur))
	case "done":
		p.stage = "过滤"
		fmt.Fprintf(p.w, "完成记录: done=%d (%s)\n", intField(fields, "done"), formatShortDuration(dur))
	case "filter":
		p.stage = ""
		fmt.Fprintf(p.w, "过滤: pending=%d skipped=%d (%s)\n",
			intField(fields, "pending"), intField(fields, "skipped"), formatShortDuration(dur))
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnChunkBuilt(done, total int, c domain.Chunk) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.built = done
	p.total = total
	fmt.Fprintf(p.w, "[%d/%d] %s size=%s frames=%d passes=%d\n",
		done, total, c.Name, formatBytes(c.Size), c.Frames, len(c.PassCommands))
	p.lastPrinted = time.Now()
}

// Close 停止 keepalive ticker；可重复调用。
func (p *progressUI) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}
	stop := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.stage != "" && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintln(p.w, p.keepaliveLineLocked())
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (p *progressUI) keepaliveLineLocked() string {
	elapsed := formatElapsed(time.Since(p.startedAt))
	if p.total > 0 {
		return fmt.Sprintf("进度: %s built=%d/%d elapsed=%s", p.stage, p.built, p.total, elapsed)
	}
	return fmt.Sprintf("进度: %s elapsed=%s", p.stage, elapsed)
}

func formatPasses(n int) string {
	if n <= 0 {
		return " (默认 passes)"
	}
	return fmt.Sprintf(" (passes=%d)", n)
}

func formatSplits(xs []int) string {
	if len(xs) == 0 {
		return "[] (不切分)"
	}
	parts := make([]string, 0, len(xs))
	for _, x := range xs {
		parts = append(parts, fmt.Sprint(x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func formatDoneStore(ds config.DoneStoreConfig) string {
	if ds.Kind == config.DoneStoreRedis {
		return fmt.Sprintf("redis (%s, key=%s)", ds.RedisAddr, ds.RedisKey)
	}
	return "file (done.json)"
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}
