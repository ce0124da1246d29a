package domain

// SegmentFile 描述 segmenter 写出的一个分段文件（只做 stat，不读内容）。
//
// 不变量：
// - AbsPath 必须是 clean + absolute
// - Stem 是不含扩展名的文件名，决定 index 分配顺序
type SegmentFile struct {
	AbsPath string
	Name    string // 带扩展名
	Stem    string
	Ext     string // ".mkv"
	Size    int64
}
