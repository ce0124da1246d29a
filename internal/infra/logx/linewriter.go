package logx

import (
	"bufio"
	"io"

	"github.com/rs/zerolog"
)

// LineWriter 把子进程的输出流逐行转成 zerolog 事件。
type LineWriter struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func NewLineWriter(base zerolog.Logger, fields map[string]string, level zerolog.Level) *LineWriter {
	w := base.With()
	for k, v := range fields {
		w = w.Str(k, v)
	}
	return &LineWriter{logger: w.Logger(), level: level}
}

// Pipe 读到 EOF 为止；返回读到的最后一行，便于调用方把它拼进错误信息。
func (lw *LineWriter) Pipe(r io.Reader) string {
	var last string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line != "" {
			last = line
		}
		lw.logger.WithLevel(lw.level).Msg(line)
	}
	return last
}
