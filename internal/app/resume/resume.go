package resume

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/John-Robertt/av1q/internal/domain"
	"github.com/John-Robertt/av1q/internal/infra/chunkstore"
	"github.com/John-Robertt/av1q/internal/infra/donestore"
	"github.com/John-Robertt/av1q/internal/infra/logx"
)

// QueueBuilder 构造全新队列（分段 + 构造 + 调度）。
type QueueBuilder interface {
	Build(ctx context.Context, input string, splits []int) ([]domain.Chunk, error)
}

// Store 是队列文档的持久化接口，chunkstore.Store 满足它。
type Store interface {
	Save(h chunkstore.Header, queue []domain.Chunk) error
	Load() (chunkstore.Document, error)
}

// Coordinator 每次会话的唯一入口：决定"构造并保存新队列"还是"加载已保存队列并过滤已完成项"。
//
// 约束（硬性）：
// - resume 绝不重新分段/重新构造：已保存文档是唯一事实来源
// - 非 resume 是文档被（重新）创建的唯一时机
type Coordinator struct {
	Builder QueueBuilder
	Store   Store
	Done    donestore.Reader

	// Header 提供写文档时的元数据（run id、encoder 名字）。
	RunID   string
	Encoder string

	// StrictResume=true 时，输入指纹与文档不一致视为 persistence_failure；
	// 默认 false：只告警，仍信任文档。
	StrictResume bool

	now func() time.Time
}

// Outcome 是 Obtain 的结果。
type Outcome struct {
	// Queue 是本次需要编码的有序队列（resume 时已过滤）。
	Queue []domain.Chunk
	// Loaded 是文档中的完整队列（非 resume 时与 Queue 相同）。
	Loaded []domain.Chunk
	// Done 是 resume 时读到的完成记录（非 resume 时为 nil）。
	Done domain.DoneSet

	Resumed       bool
	SourceChanged bool
	// Phases 记录各阶段耗时，供上层输出。
	Phases []Phase
}

type Phase struct {
	Name   string
	Fields map[string]any
	Dur    time.Duration
}

// Obtain 返回本次会话的有序队列。
func (c *Coordinator) Obtain(ctx context.Context, input string, resuming bool, splits []int) (Outcome, error) {
	if resuming {
		return c.resume(ctx, input)
	}
	return c.fresh(ctx, input, splits)
}

func (c *Coordinator) fresh(ctx context.Context, input string, splits []int) (Outcome, error) {
	log := logx.FromCtx(ctx)
	var out Outcome

	started := time.Now()
	q, err := c.Builder.Build(ctx, input, splits)
	if err != nil {
		return Outcome{}, err
	}
	out.Phases = append(out.Phases, Phase{Name: "build", Fields: map[string]any{"chunks": len(q)}, Dur: time.Since(started)})

	started = time.Now()
	h := chunkstore.Header{
		RunID:     c.RunID,
		CreatedAt: c.clock(),
		Encoder:   c.Encoder,
		Source:    Fingerprint(input),
	}
	if err := c.Store.Save(h, q); err != nil {
		return Outcome{}, err
	}
	out.Phases = append(out.Phases, Phase{Name: "save", Fields: map[string]any{"chunks": len(q)}, Dur: time.Since(started)})
	log.Info().Int("chunks", len(q)).Msg("queue built and saved")

	out.Queue = q
	out.Loaded = q
	return out, nil
}

func (c *Coordinator) resume(ctx context.Context, input string) (Outcome, error) {
	log := logx.FromCtx(ctx)
	out := Outcome{Resumed: true}

	started := time.Now()
	doc, err := c.Store.Load()
	if err != nil {
		return Outcome{}, err
	}
	out.Phases = append(out.Phases, Phase{Name: "load", Fields: map[string]any{"chunks": len(doc.Chunks), "version": doc.Version}, Dur: time.Since(started)})

	if changed, reason := CheckSource(doc.Source, input); changed {
		if c.StrictResume {
			return Outcome{}, domain.Persistence(input, fmt.Errorf("输入已变化（%s），拒绝信任已保存队列", reason))
		}
		out.SourceChanged = true
		log.Warn().Str("input", input).Str("reason", reason).Msg("input changed since queue was saved; trusting saved queue")
	}

	started = time.Now()
	done, err := c.Done.ReadDone(ctx)
	if err != nil {
		return Outcome{}, domain.Persistence("", fmt.Errorf("读取完成记录失败：%w", err))
	}
	out.Phases = append(out.Phases, Phase{Name: "done", Fields: map[string]any{"done": len(done)}, Dur: time.Since(started)})

	started = time.Now()
	pending := Pending(doc.Chunks, done)
	out.Phases = append(out.Phases, Phase{Name: "filter", Fields: map[string]any{"pending": len(pending), "skipped": len(doc.Chunks) - len(pending)}, Dur: time.Since(started)})
	log.Info().Int("loaded", len(doc.Chunks)).Int("pending", len(pending)).Msg("queue resumed")

	out.Queue = pending
	out.Loaded = doc.Chunks
	out.Done = done
	return out, nil
}

// Pending 返回 q 中名字不在 done 里的子序列，保持原相对顺序。
// 全部已完成时返回空（非 nil）切片：表示"无事可做"，不是错误。
func Pending(q []domain.Chunk, done domain.DoneSet) []domain.Chunk {
	out := make([]domain.Chunk, 0, len(q))
	for i := range q {
		if done.Contains(q[i].Name) {
			continue
		}
		out = append(out, q[i])
	}
	return out
}

// Fingerprint 记录输入文件的 abs path + size + mtime；input 为空或无法 stat 时返回 nil。
func Fingerprint(input string) *chunkstore.Source {
	if input == "" {
		return nil
	}
	abs, err := filepath.Abs(input)
	if err != nil {
		return nil
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil
	}
	return &chunkstore.Source{Path: abs, Size: fi.Size(), ModUnix: fi.ModTime().Unix()}
}

// CheckSource 只在"文档有指纹且本次给了 input"时比较；任一缺失都视为无法判断（不变化）。
func CheckSource(saved *chunkstore.Source, input string) (bool, string) {
	if saved == nil || input == "" {
		return false, ""
	}
	cur := Fingerprint(input)
	switch {
	case cur == nil:
		return true, "输入文件不可读"
	case cur.Path != saved.Path:
		return true, fmt.Sprintf("路径 %q != %q", cur.Path, saved.Path)
	case cur.Size != saved.Size:
		return true, fmt.Sprintf("大小 %d != %d", cur.Size, saved.Size)
	case cur.ModUnix != saved.ModUnix:
		return true, "修改时间不同"
	}
	return false, ""
}

func (c *Coordinator) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now().UTC()
}
