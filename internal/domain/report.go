package domain

import (
	"encoding/json"
	"time"
)

const (
	ErrCodeConfigNotFound    = "config_not_found"
	ErrCodeConfigInvalid     = "config_invalid"
	ErrCodeConfigMissingTemp = "config_missing_temp"
	ErrCodeInternal          = "internal_error"
	ErrCodeCanceled          = "canceled"
)

// QueueReport 是对外稳定输出（stdout JSON）的结构。
type QueueReport struct {
	Root    string `json:"root"`
	RunID   string `json:"run_id"`
	Resumed bool   `json:"resumed"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary QueueSummary  `json:"summary"`
	Chunks  []ChunkResult `json:"chunks"`

	// SourceChanged 仅在 resume 且输入指纹与文档记录不一致时为 true。
	SourceChanged bool `json:"source_changed,omitempty"`

	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

type QueueSummary struct {
	Total   int   `json:"total"`   // 文档中的 chunk 总数
	Pending int   `json:"pending"` // 本次需要编码的 chunk 数
	Done    int   `json:"done"`    // 已完成（被过滤掉）的 chunk 数
	Bytes   int64 `json:"bytes"`   // pending 的字节总数
	Frames  int   `json:"frames"`  // pending 的帧总数
}

type ChunkResult struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	Frames    int    `json:"frames"`
	Extension string `json:"extension"`
	Passes    int    `json:"passes"`
}

// ChunkResults 按队列顺序把 chunk 映射为报告条目。
func ChunkResults(q []Chunk) []ChunkResult {
	out := make([]ChunkResult, 0, len(q))
	for i := range q {
		c := q[i]
		out = append(out, ChunkResult{
			Index:     c.Index,
			Name:      c.Name,
			Size:      c.Size,
			Frames:    c.Frames,
			Extension: c.Extension,
			Passes:    len(c.PassCommands),
		})
	}
	return out
}

// Finalize 做两件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) summary 的 pending/bytes/frames 由 chunks 计算得出；done = total - pending
//
// 注意：chunks 的顺序就是编码顺序，这里绝不重排。
func (r *QueueReport) Finalize(total int) {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Chunks == nil {
		r.Chunks = []ChunkResult{}
	}

	s := QueueSummary{Total: total, Pending: len(r.Chunks)}
	for _, c := range r.Chunks {
		s.Bytes += c.Size
		s.Frames += c.Frames
	}
	if total >= s.Pending {
		s.Done = total - s.Pending
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性；当前只是透传 encoding/json 的默认行为。
func (r QueueReport) MarshalJSON() ([]byte, error) {
	type Alias QueueReport
	return json.Marshal(Alias(r))
}
