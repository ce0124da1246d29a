package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/John-Robertt/av1q/internal/app/run"
	"github.com/John-Robertt/av1q/internal/config"
	"github.com/John-Robertt/av1q/internal/domain"
	"github.com/John-Robertt/av1q/internal/encoder"
	"github.com/John-Robertt/av1q/internal/infra/logx"
)

func main() {
	// .env 可选：不存在时静默忽略。
	_ = godotenv.Load()
	logx.Setup(logx.FromEnv(), os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	c := &cli{stdout: os.Stdout, stderr: os.Stderr}
	code := c.main(ctx, os.Args[1:])
	stop()
	if code != 0 {
		os.Exit(code)
	}
}

// cli 持有输出流与可注入的协作方，便于在进程内测试。
type cli struct {
	stdout io.Writer
	stderr io.Writer
	cwd    string // 空 = os.Getwd()
	deps   run.Deps

	// interactive 非 nil 时覆盖 TTY 探测。
	interactive *bool
}

func (c *cli) main(ctx context.Context, args []string) int {
	if len(args) == 0 || isHelp(args[0]) {
		c.printUsage()
		return 0
	}

	switch args[0] {
	case "queue":
		return c.queueCmd(ctx, args[1:])
	case "show":
		return c.showCmd(ctx, args[1:])
	default:
		fmt.Fprintf(c.stderr, "未知命令：%q\n\n", args[0])
		c.printUsage()
		return 2
	}
}

// exitAborter 是 run.Aborter 的 CLI 实现：记录致命错误并决定退出码。
// 报告仍要先输出，所以这里不直接退出进程。
type exitAborter struct {
	w    io.Writer
	code int
	err  error
}

func (a *exitAborter) Abort(err error) {
	a.err = err
	a.code = 1
	fmt.Fprintf(a.w, "致命错误：%v\n", err)
	switch {
	case domain.IsStructural(err):
		fmt.Fprintln(a.w, "提示：没有产生任何分段，检查 --input 与 --split 是否有效")
	case domain.IsPersistence(err):
		fmt.Fprintln(a.w, "提示：检查存储根目录与 chunks.json；文档损坏时可去掉 --resume 重新构造队列")
	}
}

func (c *cli) queueCmd(ctx context.Context, args []string) int {
	for _, a := range args {
		if isHelp(a) {
			c.printQueueUsage()
			return 0
		}
	}

	qa, err := parseQueueArgs(args)
	if err != nil {
		fmt.Fprintf(c.stderr, "参数错误：%v\n\n", err)
		c.printQueueUsage()
		return 2
	}

	eff, code, ok := c.loadConfig(config.CLIArgs{
		Temp:       qa.Temp,
		Input:      qa.Input,
		Encoder:    qa.Encoder,
		EncoderSet: qa.EncoderSet,
		Splits:     qa.Splits,
		SplitsSet:  qa.SplitsSet,
		Resume:     qa.Resume,
		ResumeSet:  qa.ResumeSet,
	}, qa.Temp)
	if !ok {
		return code
	}

	var obs run.Observer
	interactive := c.isInteractive()
	if interactive {
		ui := newProgressUI(c.stderr)
		defer ui.Close()
		obs = ui
	}

	ab := &exitAborter{w: c.stderr}
	rr, _ := run.Execute(ctx, eff, c.deps, obs, ab)
	c.emitReport(rr, interactive)
	if interactive && ab.err == nil {
		fmt.Fprintf(c.stderr, "queue: %s\n", filepath.Join(eff.Temp, "chunks.json"))
	}
	return ab.code
}

func (c *cli) showCmd(ctx context.Context, args []string) int {
	for _, a := range args {
		if isHelp(a) {
			c.printShowUsage()
			return 0
		}
	}

	sa, err := parseShowArgs(args)
	if err != nil {
		fmt.Fprintf(c.stderr, "参数错误：%v\n\n", err)
		c.printShowUsage()
		return 2
	}

	// show 只读已保存文档：按 resume 语义装配配置（不要求 input）。
	eff, code, ok := c.loadConfig(config.CLIArgs{
		Temp:      sa.Temp,
		Input:     sa.Input,
		Resume:    true,
		ResumeSet: true,
	}, sa.Temp)
	if !ok {
		return code
	}

	rr, err := run.Show(ctx, eff, c.deps)
	if err != nil {
		now := time.Now().UTC()
		code := domain.FatalKind(err)
		if code == "" {
			code = domain.ErrCodeInternal
		}
		rr = domain.QueueReport{Root: eff.Temp, Resumed: true, StartedAt: now, FinishedAt: now,
			ErrorCode: code, ErrorMsg: err.Error()}
		rr.Finalize(0)
		c.emitReport(rr, c.isInteractive())
		return 1
	}
	c.emitReport(rr, c.isInteractive())
	return 0
}

// loadConfig 读取配置并按其中的 log 段重新配置日志；失败时输出配置错误报告。
func (c *cli) loadConfig(args config.CLIArgs, temp string) (config.EffectiveConfig, int, bool) {
	cwd := c.cwd
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(c.stderr, "读取当前目录失败：%v\n", err)
			return config.EffectiveConfig{}, 1, false
		}
		cwd = wd
	}

	reg := encoder.Default()
	if c.deps.Registry != nil {
		reg = *c.deps.Registry
	}
	eff, err := config.LoadEffective(cwd, args, reg)
	if err != nil {
		c.emitReport(reportForConfigError(cwd, temp, err), c.isInteractive())
		return config.EffectiveConfig{}, 1, false
	}

	if eff.Log != (config.LogConfig{}) {
		logx.Setup(logx.FromEnv().Merge(logx.Config{
			Level:    eff.Log.Level,
			Format:   eff.Log.Format,
			FilePath: eff.Log.File,
		}), c.stderr)
	}
	log.Debug().Str("config", eff.ConfigPath).Str("temp", eff.Temp).Msg("config loaded")
	return eff, 0, true
}

type queueArgs struct {
	Temp  string
	Input string

	Encoder    string
	EncoderSet bool

	Splits    []int
	SplitsSet bool

	Resume    bool
	ResumeSet bool
}

func parseQueueArgs(args []string) (queueArgs, error) {
	qa := queueArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--input" || a == "--encoder" || a == "--split":
			if i+1 >= len(args) {
				return queueArgs{}, fmt.Errorf("%s 需要一个值", a)
			}
			i++
			if err := qa.setValue(strings.TrimPrefix(a, "--"), args[i]); err != nil {
				return queueArgs{}, err
			}
		case strings.HasPrefix(a, "--input="), strings.HasPrefix(a, "--encoder="), strings.HasPrefix(a, "--split="):
			k, v, _ := strings.Cut(strings.TrimPrefix(a, "--"), "=")
			if err := qa.setValue(k, v); err != nil {
				return queueArgs{}, err
			}
		case a == "--resume":
			qa.Resume = true
			qa.ResumeSet = true
		case strings.HasPrefix(a, "--resume="):
			v := strings.TrimPrefix(a, "--resume=")
			switch v {
			case "true":
				qa.Resume = true
			case "false":
				qa.Resume = false
			default:
				return queueArgs{}, fmt.Errorf("--resume 只能是 true 或 false，实际是 %q", v)
			}
			qa.ResumeSet = true
		case strings.HasPrefix(a, "-"):
			return queueArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if qa.Temp != "" {
				return queueArgs{}, fmt.Errorf("重复的 temp：%q 与 %q", qa.Temp, a)
			}
			qa.Temp = a
		}
	}
	return qa, nil
}

func (qa *queueArgs) setValue(key, v string) error {
	switch key {
	case "input":
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("--input 不能为空")
		}
		qa.Input = v
	case "encoder":
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("--encoder 不能为空")
		}
		qa.Encoder = v
		qa.EncoderSet = true
	case "split":
		splits, err := parseSplits(v)
		if err != nil {
			return err
		}
		qa.Splits = splits
		qa.SplitsSet = true
	}
	return nil
}

// parseSplits 解析 "240,480"；空串表示"不切分"。
func parseSplits(v string) ([]int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return []int{}, nil
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("--split 只能是逗号分隔的帧号，%q 不是整数", p)
		}
		out = append(out, n)
	}
	return out, nil
}

type showArgs struct {
	Temp  string
	Input string
}

func parseShowArgs(args []string) (showArgs, error) {
	sa := showArgs{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--input":
			if i+1 >= len(args) {
				return showArgs{}, fmt.Errorf("--input 需要一个值")
			}
			i++
			sa.Input = args[i]
		case strings.HasPrefix(a, "--input="):
			sa.Input = strings.TrimPrefix(a, "--input=")
		case strings.HasPrefix(a, "-"):
			return showArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if sa.Temp != "" {
				return showArgs{}, fmt.Errorf("重复的 temp：%q 与 %q", sa.Temp, a)
			}
			sa.Temp = a
		}
	}
	return sa, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func (c *cli) printUsage() {
	fmt.Fprint(c.stdout, `用法：
  av1q queue [temp] --input FILE [--encoder NAME] [--split 240,480] [--resume[=true|false]]
  av1q show  [temp] [--input FILE]

命令：
  queue  构造（或 resume 加载）chunk 队列并写入 <temp>/chunks.json
  show   只读查看已保存队列与待编码部分

使用 "av1q queue --help" 查看详细说明。
`)
}

func (c *cli) printQueueUsage() {
	fmt.Fprintf(c.stdout, `用法：
  av1q queue [temp] --input FILE [--encoder NAME] [--split 240,480] [--resume[=true|false]]

参数：
  --input    源视频（非 resume 时必填）
  --encoder  编码器：%s（默认 %s）
  --split    分段起始帧号，逗号分隔；省略则读配置文件
  --resume   加载 <temp>/chunks.json 并跳过已完成 chunk；支持 --resume=false 覆盖配置
  -h, --help 显示帮助
`, strings.Join(encoder.Default().Names(), "|"), config.DefaultEncoder)
}

func (c *cli) printShowUsage() {
	fmt.Fprint(c.stdout, `用法：
  av1q show [temp] [--input FILE]

参数：
  --input    给出时与文档记录的输入指纹比对（source_changed）
  -h, --help 显示帮助
`)
}

func (c *cli) emitReport(rr domain.QueueReport, interactive bool) {
	summary := fmt.Sprintf("完成：total=%d pending=%d done=%d frames=%d",
		rr.Summary.Total, rr.Summary.Pending, rr.Summary.Done, rr.Summary.Frames)

	if interactive {
		fmt.Fprintln(c.stdout, summary)
		if rr.ErrorCode != "" {
			fmt.Fprintf(c.stderr, "%s: %s\n", rr.ErrorCode, rr.ErrorMsg)
		}
		if rr.SourceChanged {
			fmt.Fprintln(c.stderr, "注意：输入文件自队列保存后已变化，仍按已保存队列继续")
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 QueueReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(c.stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(c.stderr, summary)
}

func reportForConfigError(cwd, temp string, err error) domain.QueueReport {
	now := time.Now().UTC()
	root := cwd
	if strings.TrimSpace(temp) != "" {
		root = temp
		if !filepath.IsAbs(root) {
			root = filepath.Join(cwd, root)
		}
	}
	code := config.Code(err)
	if code == "" {
		code = domain.ErrCodeConfigInvalid
	}
	rr := domain.QueueReport{
		Root:       filepath.Clean(root),
		StartedAt:  now,
		FinishedAt: now,
		ErrorCode:  code,
		ErrorMsg:   err.Error(),
	}
	rr.Finalize(0)
	return rr
}

func (c *cli) isInteractive() bool {
	if c.interactive != nil {
		return *c.interactive
	}
	f, ok := c.stdout.(*os.File)
	return ok && isTTY(f)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
