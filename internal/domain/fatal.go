package domain

import (
	"errors"
	"fmt"
)

const (
	// KindStructural 表示分段阶段没有产出任何可用文件。
	KindStructural = "structural_failure"
	// KindPersistence 表示队列文档缺失/不可读/校验失败，或无法写入（也包括 resume 时完成记录不可读）。
	KindPersistence = "persistence_failure"
)

// FatalError 是准备阶段的致命错误（带 kind）。
//
// 约束：
// - 两类错误都不重试：瞬时失败由"重新运行 + resume"恢复
// - 本核心只返回 FatalError，是否终止进程由最上层决定
type FatalError struct {
	Kind string
	Path string
	Err  error
}

func (e *FatalError) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s：%q：%v", e.Kind, e.Path, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s：%v", e.Kind, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s：%q", e.Kind, e.Path)
	default:
		return e.Kind
	}
}

func (e *FatalError) Unwrap() error { return e.Err }

// Structural 构造一个 structural_failure。
func Structural(path string, err error) error {
	return &FatalError{Kind: KindStructural, Path: path, Err: err}
}

// Persistence 构造一个 persistence_failure。
func Persistence(path string, err error) error {
	return &FatalError{Kind: KindPersistence, Path: path, Err: err}
}

// FatalKind 从 error 中提取 kind；若不是 *FatalError 则返回空串。
func FatalKind(err error) string {
	var e *FatalError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsStructural(err error) bool  { return FatalKind(err) == KindStructural }
func IsPersistence(err error) bool { return FatalKind(err) == KindPersistence }
