package logx

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 来自配置文件 log 段，未设置的字段由环境变量（AV1Q_LOG_*）补齐。
type Config struct {
	Level          string // debug|info|warn|error
	Format         string // json|console
	FilePath       string // "" = 不写文件
	FileMaxSizeMB  int
	FileMaxBackups int
	FileMaxAgeDays int
	FileCompress   bool
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		v = strings.ToLower(v)
		return v == "1" || v == "true" || v == "yes"
	}
	return def
}

// FromEnv 从环境变量构造默认配置。
func FromEnv() Config {
	return Config{
		Level:          strings.ToLower(getenv("AV1Q_LOG_LEVEL", "info")),
		Format:         strings.ToLower(getenv("AV1Q_LOG_FORMAT", "console")),
		FilePath:       getenv("AV1Q_LOG_FILE", ""),
		FileMaxSizeMB:  getenvInt("AV1Q_LOG_FILE_MAX_SIZE", 50),
		FileMaxBackups: getenvInt("AV1Q_LOG_FILE_MAX_BACKUPS", 3),
		FileMaxAgeDays: getenvInt("AV1Q_LOG_FILE_MAX_AGE", 7),
		FileCompress:   getenvBool("AV1Q_LOG_FILE_COMPRESS", true),
	}
}

// Merge 用 o 中非空字段覆盖 c。
func (c Config) Merge(o Config) Config {
	if o.Level != "" {
		c.Level = strings.ToLower(o.Level)
	}
	if o.Format != "" {
		c.Format = strings.ToLower(o.Format)
	}
	if o.FilePath != "" {
		c.FilePath = o.FilePath
	}
	return c
}

// Setup 配置 zerolog 全局 log.Logger 并返回该实例。
//
// 日志固定写 stderr（+ 可选滚动文件）：stdout 只留给 QueueReport JSON。
func Setup(c Config, stderr io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(c.Level)
	if err != nil || c.Level == "" {
		lvl = zerolog.InfoLevel
	}

	var writers []io.Writer
	if stderr != nil {
		if c.Format == "json" {
			writers = append(writers, stderr)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{Out: stderr, TimeFormat: "15:04:05"})
		}
	}
	if c.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   c.FilePath,
			MaxSize:    c.FileMaxSizeMB,
			MaxBackups: c.FileMaxBackups,
			MaxAge:     c.FileMaxAgeDays,
			Compress:   c.FileCompress,
		})
	}

	var out io.Writer = io.Discard
	if len(writers) > 0 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(out).Level(lvl).With().
		Timestamp().
		Str("svc", "av1q").
		Logger()

	log.Logger = logger
	return logger
}

type ctxKey string

const ctxKeyRunID ctxKey = "run_id"

// WithRunID 把 run id 放进 ctx，供 FromCtx 附加到日志字段。
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ctxKeyRunID, runID)
}

// RunID 取出 ctx 中的 run id（没有则为空串）。
func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(ctxKeyRunID).(string)
	return s
}

// FromCtx 给全局 logger 附加标准字段（若存在）。
func FromCtx(ctx context.Context) zerolog.Logger {
	l := log.Logger
	if id := RunID(ctx); id != "" {
		l = l.With().Str("run_id", id).Logger()
	}
	return l
}
