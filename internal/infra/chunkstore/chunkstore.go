package chunkstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/av1q/internal/domain"
	"github.com/John-Robertt/av1q/internal/infra/fsx"
)

// FileName 是队列文档在存储根目录下的固定文件名。
const FileName = "chunks.json"

// SchemaVersion 是当前写出的文档版本。0 表示旧版"裸数组"文档（只读兼容）。
const SchemaVersion = 1

// Store 提供 <root>/chunks.json 的读写。
//
// 约束：
// - 该文档是跨进程重启时 chunk 存在性与顺序的唯一事实来源
// - Save 无条件整体覆盖；Load 对缺失/损坏/不合 schema 一律返回 persistence_failure
type Store struct {
	Root string
}

func New(root string) Store {
	return Store{Root: filepath.Clean(strings.TrimSpace(root))}
}

// Path 返回队列文档的绝对路径。
func (s Store) Path() string {
	return filepath.Join(s.Root, FileName)
}

// Exists 报告队列文档是否存在（不校验内容）。
func (s Store) Exists() bool {
	fi, err := os.Stat(s.Path())
	return err == nil && fi.Mode().IsRegular()
}

// Source 是写文档时输入文件的指纹（用于 resume 时检测输入是否变化）。
type Source struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	ModUnix int64  `json:"mod_unix"`
}

// Header 是文档中除 chunks 以外的元数据。
type Header struct {
	RunID     string
	CreatedAt time.Time
	Encoder   string
	Source    *Source
}

// Document 是 Load 的结果：元数据 + 已重新绑定 Root 的有序队列。
type Document struct {
	Version int
	Header
	Chunks []domain.Chunk
}

type fileDoc struct {
	Version   int           `json:"version"`
	RunID     string        `json:"run_id"`
	CreatedAt time.Time     `json:"created_at"`
	Encoder   string        `json:"encoder"`
	Source    *Source       `json:"source,omitempty"`
	Chunks    []chunkRecord `json:"chunks"`
}

type chunkRecord struct {
	Index        int      `json:"index"`
	Name         string   `json:"name"`
	Command      string   `json:"command"`
	Extension    string   `json:"extension"`
	Size         int64    `json:"size"`
	FrameCount   int      `json:"frame_count"`
	PassCommands []string `json:"pass_commands"`
}

// legacyRecord 对应旧版裸数组文档的元素。
type legacyRecord struct {
	Index     *int     `json:"index"`
	Command   string   `json:"ffmpeg_gen_cmd"`
	Extension string   `json:"output_ext"`
	Size      int64    `json:"size"`
	Frames    int      `json:"frames"`
	PassCmds  []string `json:"pass_cmds"`
}

// Save 把有序队列写入 <root>/chunks.json（原子替换）。
// root 必须已存在且是目录；任何 I/O 错误都返回 persistence_failure，不重试。
func (s Store) Save(h Header, queue []domain.Chunk) error {
	path := s.Path()
	if err := fsx.RequireDir(s.Root); err != nil {
		return domain.Persistence(s.Root, fmt.Errorf("存储根目录不可用：%w", err))
	}

	doc := fileDoc{
		Version:   SchemaVersion,
		RunID:     h.RunID,
		CreatedAt: h.CreatedAt.UTC(),
		Encoder:   h.Encoder,
		Source:    h.Source,
		Chunks:    make([]chunkRecord, 0, len(queue)),
	}
	for i := range queue {
		c := queue[i]
		doc.Chunks = append(doc.Chunks, chunkRecord{
			Index:        c.Index,
			Name:         c.Name,
			Command:      c.Command,
			Extension:    c.Extension,
			Size:         c.Size,
			FrameCount:   c.Frames,
			PassCommands: append([]string{}, c.PassCommands...),
		})
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return domain.Persistence(path, err)
	}
	b = append(b, '\n')
	if err := fsx.WriteFileAtomic(s.Root, FileName, b); err != nil {
		switch {
		case fsx.IsPathTypeConflict(err):
			return domain.Persistence(path, fmt.Errorf("%w（请移除占位的目录后重试）", err))
		case fsx.IsCrossDevice(err):
			return domain.Persistence(path, fmt.Errorf("%w（存储根目录不能跨挂载点）", err))
		}
		return domain.Persistence(path, err)
	}
	return nil
}

// Load 读取并校验队列文档，并把每个 chunk 的 Root 重新绑定到 s.Root。
func (s Store) Load() (Document, error) {
	path := s.Path()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, domain.Persistence(path, fmt.Errorf("队列文档不存在，无法 resume：%w", err))
		}
		return Document{}, domain.Persistence(path, err)
	}

	doc, err := decode(b)
	if err != nil {
		return Document{}, domain.Persistence(path, err)
	}
	if err := validate(doc.Chunks); err != nil {
		return Document{}, domain.Persistence(path, err)
	}
	for i := range doc.Chunks {
		doc.Chunks[i].Root = s.Root
	}
	return doc, nil
}

func decode(b []byte) (Document, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return Document{}, errors.New("队列文档为空")
	}

	if trimmed[0] == '[' {
		return decodeLegacy(trimmed)
	}

	var fd fileDoc
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(&fd); err != nil {
		return Document{}, fmt.Errorf("队列文档无法解析：%w", err)
	}
	// 文档必须恰好是一个 JSON 值；截断重写或拼接写入都会在末尾留下多余内容。
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Document{}, errors.New("队列文档末尾有多余内容")
	}
	if fd.Version != SchemaVersion {
		return Document{}, fmt.Errorf("不支持的文档版本：%d（期望 %d）", fd.Version, SchemaVersion)
	}

	doc := Document{
		Version: fd.Version,
		Header: Header{
			RunID:     fd.RunID,
			CreatedAt: fd.CreatedAt.UTC(),
			Encoder:   fd.Encoder,
			Source:    fd.Source,
		},
		Chunks: make([]domain.Chunk, 0, len(fd.Chunks)),
	}
	for _, r := range fd.Chunks {
		doc.Chunks = append(doc.Chunks, domain.Chunk{
			Index:        r.Index,
			Name:         r.Name,
			Command:      r.Command,
			Extension:    r.Extension,
			Size:         r.Size,
			Frames:       r.FrameCount,
			PassCommands: r.PassCommands,
		})
	}
	return doc, nil
}

func decodeLegacy(b []byte) (Document, error) {
	var recs []legacyRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		return Document{}, fmt.Errorf("旧版队列文档无法解析：%w", err)
	}
	doc := Document{Version: 0, Chunks: make([]domain.Chunk, 0, len(recs))}
	for i, r := range recs {
		if r.Index == nil {
			return Document{}, fmt.Errorf("旧版队列文档第 %d 项缺少 index", i)
		}
		doc.Chunks = append(doc.Chunks, domain.Chunk{
			Index:        *r.Index,
			Name:         domain.ChunkName(*r.Index),
			Command:      r.Command,
			Extension:    r.Extension,
			Size:         r.Size,
			Frames:       r.Frames,
			PassCommands: r.PassCmds,
		})
	}
	return doc, nil
}

func validate(q []domain.Chunk) error {
	if len(q) == 0 {
		return errors.New("队列文档不包含任何 chunk")
	}
	names := make(map[string]struct{}, len(q))
	indices := make(map[int]struct{}, len(q))
	for pos, c := range q {
		switch {
		case strings.TrimSpace(c.Name) == "":
			return fmt.Errorf("第 %d 项 name 为空", pos)
		case c.Index < 0:
			return fmt.Errorf("chunk %q 的 index 非法：%d", c.Name, c.Index)
		case c.Size < 0:
			return fmt.Errorf("chunk %q 的 size 非法：%d", c.Name, c.Size)
		case c.Frames < 0:
			return fmt.Errorf("chunk %q 的 frame_count 非法：%d", c.Name, c.Frames)
		case strings.TrimSpace(c.Command) == "":
			return fmt.Errorf("chunk %q 缺少 command", c.Name)
		case strings.TrimSpace(c.Extension) == "":
			return fmt.Errorf("chunk %q 缺少 extension", c.Name)
		case len(c.PassCommands) == 0:
			return fmt.Errorf("chunk %q 缺少 pass_commands", c.Name)
		}
		if _, ok := names[c.Name]; ok {
			return fmt.Errorf("重复的 chunk name：%q", c.Name)
		}
		if _, ok := indices[c.Index]; ok {
			return fmt.Errorf("重复的 chunk index：%d", c.Index)
		}
		names[c.Name] = struct{}{}
		indices[c.Index] = struct{}{}
	}
	return nil
}
