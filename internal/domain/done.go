package domain

// DoneEntry 是已完成 chunk 的元数据（来自外部的完成记录存储）。
type DoneEntry struct {
	Frames int
}

// DoneSet 以 chunk 名字为键的已完成集合。本核心只读，不写。
type DoneSet map[string]DoneEntry

func (d DoneSet) Contains(name string) bool {
	if d == nil {
		return false
	}
	_, ok := d[name]
	return ok
}
