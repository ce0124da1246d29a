package run

import (
	"time"

	"github.com/John-Robertt/av1q/internal/config"
	"github.com/John-Robertt/av1q/internal/domain"
)

// Observer 把"阶段/构造进度"从核心流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 事件目前都来自调用 Execute 的 goroutine；实现仍应并发安全（CLI 可能另起 ticker）。
type Observer interface {
	// OnStart 在 Execute 开始时调用（尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig, runID string)
	// OnPhaseDone 在阶段结束时调用：segment|build|save|load|done|filter。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnChunkBuilt 在每个 chunk 构造完成后调用（仅非 resume 路径）。
	OnChunkBuilt(done, total int, c domain.Chunk)
}

// Aborter 是终止协作方：Execute 遇到致命错误时恰好调用一次。
// 进程是否退出、以什么退出码退出，由实现（CLI）决定。
type Aborter interface {
	Abort(err error)
}

// AbortFunc 让普通函数满足 Aborter。
type AbortFunc func(err error)

func (f AbortFunc) Abort(err error) { f(err) }

type nopObserver struct{}

func (nopObserver) OnStart(config.EffectiveConfig, string)            {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration) {}
func (nopObserver) OnChunkBuilt(int, int, domain.Chunk)               {}
