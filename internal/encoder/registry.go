package encoder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/John-Robertt/av1q/internal/domain"
)

// Registry 是编码器的只读注册表（按 name 索引）。
// 编码器数量极小，用 map 做 O(1) 查找即可。
type Registry struct {
	byName map[string]Encoder
}

func NewRegistry(encoders ...Encoder) (Registry, error) {
	byName := make(map[string]Encoder, len(encoders))
	for _, e := range encoders {
		if e == nil {
			return Registry{}, fmt.Errorf("encoder 不能为空")
		}
		name := normalizeName(e.Name())
		if name == "" {
			return Registry{}, fmt.Errorf("encoder.Name 不能为空")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 encoder：%q", name)
		}
		byName[name] = e
	}
	return Registry{byName: byName}, nil
}

// Default 返回只包含内置编码器的注册表。
func Default() Registry {
	r, err := NewRegistry(Builtins()...)
	if err != nil {
		panic(err) // 内置表重复属于编程错误
	}
	return r
}

func (r Registry) Get(name string) (Encoder, bool) {
	if r.byName == nil {
		return nil, false
	}
	e, ok := r.byName[normalizeName(name)]
	return e, ok
}

// Names 返回已注册的编码器名字（字典序）。
func (r Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ExtensionFor 按编码器名字解析输出扩展名。
func (r Registry) ExtensionFor(name string) (string, error) {
	e, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("未知 encoder：%q（可选：%s）", name, strings.Join(r.Names(), "|"))
	}
	return e.Extension(), nil
}

// Options 是生成 pass 命令所需的配置。零值表示使用编码器默认值。
type Options struct {
	Passes int
	Params string
}

// Resolve 把零值字段替换为编码器默认值，并校验遍数范围。
func Resolve(e Encoder, o Options) (Options, error) {
	if o.Passes == 0 {
		o.Passes = e.DefaultPasses()
	}
	if o.Passes < 1 || o.Passes > e.MaxPasses() {
		return Options{}, fmt.Errorf("%s 的 passes 只能是 1..%d，实际是 %d", e.Name(), e.MaxPasses(), o.Passes)
	}
	if strings.TrimSpace(o.Params) == "" {
		o.Params = e.DefaultParams()
	}
	return o, nil
}

// Generate 为 chunk 生成 1..N 条 pass 命令并挂到 c.PassCommands（覆盖原值）。
func Generate(c *domain.Chunk, e Encoder, o Options) error {
	o, err := Resolve(e, o)
	if err != nil {
		return err
	}
	cmds := make([]string, 0, o.Passes)
	for pass := 1; pass <= o.Passes; pass++ {
		cmds = append(cmds, e.Compose(*c, pass, o.Passes, o.Params))
	}
	c.PassCommands = cmds
	return nil
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "-", "_")
}
