package encoder

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/av1q/internal/domain"
)

// Encoder 把"编码器差异"限制在 encoder 包内部；队列构建只依赖统一接口。
//
// 约束：
// - Extension/Compose 必须是纯函数：相同输入 => 相同输出
// - Compose 产出的命令对队列核心是不透明字符串，这里也不执行
type Encoder interface {
	Name() string
	Extension() string
	DefaultPasses() int
	MaxPasses() int
	DefaultParams() string
	// Compose 生成第 pass 遍（1-based，共 passes 遍）的命令模板。
	Compose(c domain.Chunk, pass, passes int, params string) string
}

// nullOutput 是非末遍的丢弃输出目标。
const nullOutput = "/dev/null"

// builtin 描述一个内置编码器；各遍命令由 compose 拼出。
type builtin struct {
	name          string
	ext           string
	defaultPasses int
	defaultParams string
	compose       func(c domain.Chunk, pass, passes int, params string) []string
}

func (s builtin) Name() string          { return s.name }
func (s builtin) Extension() string     { return s.ext }
func (s builtin) DefaultPasses() int    { return s.defaultPasses }
func (s builtin) MaxPasses() int        { return 2 }
func (s builtin) DefaultParams() string { return s.defaultParams }

func (s builtin) Compose(c domain.Chunk, pass, passes int, params string) string {
	return joinArgs(s.compose(c, pass, passes, params))
}

// output 返回第 pass 遍的输出目标：只有最后一遍写出真正的产物。
func output(c domain.Chunk, pass, passes int) string {
	if pass < passes {
		return nullOutput
	}
	return c.OutputPath()
}

func joinArgs(args []string) string {
	out := args[:0]
	for _, a := range args {
		if strings.TrimSpace(a) != "" {
			out = append(out, a)
		}
	}
	return strings.Join(out, " ")
}

// Builtins 返回全部内置编码器（顺序固定）。
func Builtins() []Encoder {
	return []Encoder{aom, rav1e, svtAV1, vpx, x264, x265}
}

var aom = builtin{
	name:          "aom",
	ext:           "ivf",
	defaultPasses: 2,
	defaultParams: "--threads=8 -b 10 --cpu-used=6 --end-usage=q --cq-level=30 --tile-columns=2 --tile-rows=1",
	compose: func(c domain.Chunk, pass, passes int, params string) []string {
		if passes == 1 {
			return []string{"aomenc", "--passes=1", params, "-o", c.OutputPath(), "-"}
		}
		return []string{"aomenc", "--passes=2", fmt.Sprintf("--pass=%d", pass), params,
			"--fpf=" + c.StatsPath() + ".log", "-o", output(c, pass, passes), "-"}
	},
}

var rav1e = builtin{
	name:          "rav1e",
	ext:           "ivf",
	defaultPasses: 1,
	defaultParams: "--speed 6 --quantizer 100 --tiles 8",
	compose: func(c domain.Chunk, pass, passes int, params string) []string {
		if passes == 1 {
			return []string{"rav1e", "-", params, "--output", c.OutputPath()}
		}
		flag := "--first-pass"
		if pass == passes {
			flag = "--second-pass"
		}
		return []string{"rav1e", "-", flag, c.StatsPath() + ".stat", params, "--output", output(c, pass, passes)}
	},
}

var svtAV1 = builtin{
	name:          "svt_av1",
	ext:           "ivf",
	defaultPasses: 1,
	defaultParams: "--preset 6 --crf 30",
	compose: func(c domain.Chunk, pass, passes int, params string) []string {
		if passes == 1 {
			return []string{"SvtAv1EncApp", "-i", "stdin", "--progress", "2", params, "-b", c.OutputPath()}
		}
		return []string{"SvtAv1EncApp", "-i", "stdin", "--progress", "2", "--pass", fmt.Sprint(pass),
			"--stats", c.StatsPath() + ".stat", params, "-b", output(c, pass, passes)}
	},
}

var vpx = builtin{
	name:          "vpx",
	ext:           "ivf",
	defaultPasses: 2,
	defaultParams: "--codec=vp9 -b 10 --profile=2 --threads=4 --cpu-used=2 --end-usage=q --cq-level=30 --row-mt=1",
	compose: func(c domain.Chunk, pass, passes int, params string) []string {
		if passes == 1 {
			return []string{"vpxenc", "--passes=1", params, "--ivf", "-o", c.OutputPath(), "-"}
		}
		return []string{"vpxenc", "--passes=2", fmt.Sprintf("--pass=%d", pass), params,
			"--fpf=" + c.StatsPath() + ".log", "--ivf", "-o", output(c, pass, passes), "-"}
	},
}

var x264 = builtin{
	name:          "x264",
	ext:           "mkv",
	defaultPasses: 1,
	defaultParams: "--preset slow --crf 25",
	compose: func(c domain.Chunk, pass, passes int, params string) []string {
		base := []string{"x264", "--stitchable", "--log-level", "error", "--demuxer", "y4m"}
		if passes == 1 {
			return append(base, params, "-", "-o", c.OutputPath())
		}
		return append(base, "--pass", fmt.Sprint(pass), "--stats", c.StatsPath()+".log",
			params, "-", "-o", output(c, pass, passes))
	},
}

var x265 = builtin{
	name:          "x265",
	ext:           "mkv",
	defaultPasses: 1,
	defaultParams: "-p slow --crf 25 -D 10",
	compose: func(c domain.Chunk, pass, passes int, params string) []string {
		base := []string{"x265", "--y4m", "--frames", fmt.Sprint(c.Frames)}
		if passes == 1 {
			return append(base, params, "-", "-o", c.OutputPath())
		}
		return append(base, "--pass", fmt.Sprint(pass), "--stats", c.StatsPath()+".log",
			params, "-", "-o", output(c, pass, passes))
	},
}
