package domain

import (
	"fmt"
	"path/filepath"
)

// Chunk 是一个可独立编码的分段（队列与持久化文档中的最小单元）。
//
// 不变量（实现必须遵守）：
// - Name 由 Index 派生（ChunkName），同一队列内唯一，是 resume 匹配的唯一键
// - 队列中的先后顺序就是编码顺序；Chunk 本身不携带 "order" 字段
// - Command/PassCommands 对本核心是不透明字符串：只存储，不执行
type Chunk struct {
	Index        int
	Name         string
	Command      string
	Extension    string
	Size         int64
	Frames       int
	PassCommands []string

	// Root 是 chunk 所属的存储根目录（temp）。不落盘；load 时重新绑定到当前运行的 root。
	Root string
}

// ChunkName 把 index 格式化为 5 位补零的名字（00000、00001…）。
func ChunkName(index int) string {
	return fmt.Sprintf("%05d", index)
}

// OutputPath 返回该 chunk 编码产物的路径：<root>/encode/<name>.<ext>。
func (c Chunk) OutputPath() string {
	return filepath.Join(c.Root, "encode", c.Name+"."+c.Extension)
}

// StatsPath 返回多 pass 编码时首遍统计文件的前缀路径：<root>/split/<name>_fpf。
func (c Chunk) StatsPath() string {
	return filepath.Join(c.Root, "split", c.Name+"_fpf")
}

// Clone 返回深拷贝（PassCommands 不与原值共享底层数组）。
func (c Chunk) Clone() Chunk {
	c.PassCommands = append([]string(nil), c.PassCommands...)
	return c
}

// Names 按队列顺序返回所有 chunk 名字。
func Names(q []Chunk) []string {
	out := make([]string, 0, len(q))
	for i := range q {
		out = append(out, q[i].Name)
	}
	return out
}
