package queue

import (
	"sort"

	"github.com/John-Robertt/av1q/internal/domain"
)

// ScheduleLargestFirst 返回按 size 降序排列的新队列（size 相同按 index 升序）。
//
// size 近似编码代价：大的先开工，worker pool 从队首依次取用时尾部等待最短。
// 纯函数：不修改入参，返回值与入参不共享 PassCommands。
func ScheduleLargestFirst(q []domain.Chunk) []domain.Chunk {
	out := make([]domain.Chunk, 0, len(q))
	for i := range q {
		out = append(out, q[i].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Size != out[j].Size {
			return out[i].Size > out[j].Size
		}
		return out[i].Index < out[j].Index
	})
	return out
}
