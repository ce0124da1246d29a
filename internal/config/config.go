package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/av1q/internal/encoder"
	"github.com/John-Robertt/av1q/internal/infra/donestore"
)

const (
	// ErrCodeNotFound 表示未给出 temp 且 cwd 下没有任何配置文件。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingTemp 表示未给出 temp 且配置文件缺少 temp 字段。
	ErrCodeMissingTemp = "config_missing_temp"
)

const (
	// DefaultEncoder 是 CLI 与配置文件都未指定时使用的编码器。
	DefaultEncoder = "aom"
	// DefaultRedisAddr 是 done_store.kind=redis 且未给地址时的默认值。
	DefaultRedisAddr = "127.0.0.1:6379"

	DoneStoreFile  = "file"
	DoneStoreRedis = "redis"

	envRedisAddr = "AV1Q_REDIS_ADDR"
)

// FileNames 是 cwd 下按顺序尝试的配置文件名（先找到者生效）。
var FileNames = []string{"av1q.yaml", "av1q.yml", "av1q.json"}

// CLIArgs 保留"是否显式指定"的信息：--resume=false 必须能覆盖 resume: true。
type CLIArgs struct {
	Temp  string
	Input string

	Encoder    string
	EncoderSet bool

	Splits    []int
	SplitsSet bool

	Resume    bool
	ResumeSet bool
}

// FileConfig 对应 av1q.yaml / av1q.json 的解析结构。
type FileConfig struct {
	Temp         string           `json:"temp" yaml:"temp"`
	Input        string           `json:"input" yaml:"input"`
	Encoder      string           `json:"encoder" yaml:"encoder"`
	Passes       int              `json:"passes" yaml:"passes"`
	VideoParams  string           `json:"video_params" yaml:"video_params"`
	PixFormat    string           `json:"pix_format" yaml:"pix_format"`
	SplitFrames  []int            `json:"split_frames" yaml:"split_frames"`
	SegmentExt   string           `json:"segment_ext" yaml:"segment_ext"`
	Resume       *bool            `json:"resume" yaml:"resume"`
	StrictResume bool             `json:"strict_resume" yaml:"strict_resume"`
	DoneStore    *DoneStoreConfig `json:"done_store" yaml:"done_store"`
	Log          *LogConfig       `json:"log" yaml:"log"`
}

type DoneStoreConfig struct {
	Kind      string `json:"kind" yaml:"kind"`
	RedisAddr string `json:"redis_addr" yaml:"redis_addr"`
	RedisKey  string `json:"redis_key" yaml:"redis_key"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	File   string `json:"file" yaml:"file"`
}

// EffectiveConfig 是合并并规范化后的最终配置，下游直接消费，不再做默认/优先级判断。
type EffectiveConfig struct {
	Temp  string
	Input string

	Encoder     string
	Extension   string // 编码输出扩展名，由 encoder 决定
	Passes      int    // 0 = 编码器默认
	VideoParams string
	PixFormat   string
	SplitFrames []int
	SegmentExt  string

	Resume       bool
	StrictResume bool

	DoneStore DoneStoreConfig
	Log       LogConfig

	// ConfigPath 是实际读取的配置文件（没有则为空）。
	ConfigPath string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingTemp:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 temp", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：依次尝试 <cwd>/av1q.yaml、av1q.yml、av1q.json。
// - CLI 提供 temp：配置文件可选
// - CLI 未提供 temp：配置文件必选，且其中必须包含 temp
//
// 覆盖优先级：temp/input/encoder/resume/split_frames 为 CLI > config > 默认；其余字段仅由 config 控制。
// reg 用于校验 encoder 名字与 passes 范围。
func LoadEffective(cwd string, cli CLIArgs, reg encoder.Registry) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	fc, cfgPath, exists, err := discover(cwdAbs)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	temp := strings.TrimSpace(cli.Temp)
	if temp == "" {
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: filepath.Join(cwdAbs, FileNames[0]), Err: os.ErrNotExist}
		}
		temp = strings.TrimSpace(fc.Temp)
		if temp == "" {
			return EffectiveConfig{}, &Error{Code: ErrCodeMissingTemp, Path: cfgPath}
		}
	}
	if !exists {
		cfgPath = ""
	}

	eff, err := merge(cwdAbs, absCleanFrom(cwdAbs, temp), cli, fc, reg)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	eff.ConfigPath = cfgPath
	return eff, nil
}

func merge(cwdAbs, temp string, cli CLIArgs, fc FileConfig, reg encoder.Registry) (EffectiveConfig, error) {
	name := DefaultEncoder
	if cli.EncoderSet {
		name = cli.Encoder
	} else if strings.TrimSpace(fc.Encoder) != "" {
		name = fc.Encoder
	}
	ext, err := reg.ExtensionFor(name)
	if err != nil {
		return EffectiveConfig{}, err
	}
	enc, _ := reg.Get(name)
	if _, err := encoder.Resolve(enc, encoder.Options{Passes: fc.Passes, Params: fc.VideoParams}); err != nil {
		return EffectiveConfig{}, err
	}

	resume := false
	if cli.ResumeSet {
		resume = cli.Resume
	} else if fc.Resume != nil {
		resume = *fc.Resume
	}

	input := strings.TrimSpace(cli.Input)
	if input == "" {
		input = strings.TrimSpace(fc.Input)
	}
	if input != "" {
		input = absCleanFrom(cwdAbs, input)
	}
	if input == "" && !resume {
		return EffectiveConfig{}, fmt.Errorf("非 resume 运行必须提供 input")
	}

	splits := fc.SplitFrames
	if cli.SplitsSet {
		splits = cli.Splits
	}
	splits, err = NormalizeSplits(splits)
	if err != nil {
		return EffectiveConfig{}, err
	}

	ds, err := normalizeDoneStore(fc.DoneStore)
	if err != nil {
		return EffectiveConfig{}, err
	}

	var lc LogConfig
	if fc.Log != nil {
		lc = *fc.Log
		if lc.File != "" {
			lc.File = absCleanFrom(cwdAbs, lc.File)
		}
	}

	return EffectiveConfig{
		Temp:         temp,
		Input:        input,
		Encoder:      enc.Name(),
		Extension:    ext,
		Passes:       fc.Passes,
		VideoParams:  strings.TrimSpace(fc.VideoParams),
		PixFormat:    strings.TrimSpace(fc.PixFormat),
		SplitFrames:  splits,
		SegmentExt:   strings.TrimSpace(fc.SegmentExt),
		Resume:       resume,
		StrictResume: fc.StrictResume,
		DoneStore:    ds,
		Log:          lc,
	}, nil
}

// NormalizeSplits 校验分段帧号全部为正，并返回升序去重后的副本。
func NormalizeSplits(in []int) ([]int, error) {
	out := make([]int, 0, len(in))
	for _, f := range in {
		if f <= 0 {
			return nil, fmt.Errorf("split_frames 必须为正整数，实际包含 %d", f)
		}
		out = append(out, f)
	}
	sort.Ints(out)
	uniq := out[:0]
	for i, f := range out {
		if i > 0 && f == out[i-1] {
			continue
		}
		uniq = append(uniq, f)
	}
	return uniq, nil
}

func normalizeDoneStore(in *DoneStoreConfig) (DoneStoreConfig, error) {
	ds := DoneStoreConfig{Kind: DoneStoreFile}
	if in != nil {
		ds = *in
	}
	ds.Kind = strings.ToLower(strings.TrimSpace(ds.Kind))
	switch ds.Kind {
	case "", DoneStoreFile:
		return DoneStoreConfig{Kind: DoneStoreFile}, nil
	case DoneStoreRedis:
		if strings.TrimSpace(ds.RedisAddr) == "" {
			ds.RedisAddr = os.Getenv(envRedisAddr)
		}
		if strings.TrimSpace(ds.RedisAddr) == "" {
			ds.RedisAddr = DefaultRedisAddr
		}
		if strings.TrimSpace(ds.RedisKey) == "" {
			ds.RedisKey = donestore.DefaultRedisKey
		}
		return ds, nil
	default:
		return DoneStoreConfig{}, fmt.Errorf("done_store.kind 只能是 file 或 redis，实际是 %q", ds.Kind)
	}
}

// discover 返回第一个存在的配置文件；都不存在时 exists=false 且 err=nil。
func discover(cwdAbs string) (fc FileConfig, path string, exists bool, err error) {
	for _, name := range FileNames {
		path = filepath.Join(cwdAbs, name)
		fc, exists, err = readFileConfig(path)
		if err != nil || exists {
			return fc, path, exists, err
		}
	}
	return FileConfig{}, "", false, nil
}

// readFileConfig 按扩展名选择 YAML 或 JSON 解析。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(b, &fc)
	} else {
		err = yaml.Unmarshal(b, &fc)
	}
	if err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
