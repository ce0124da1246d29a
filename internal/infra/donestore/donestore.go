// Package donestore 读取外部维护的"已完成 chunk"记录。
//
// 完成记录由 worker 侧写入；本包只提供只读视图，供 resume 过滤使用。
package donestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/John-Robertt/av1q/internal/domain"
)

// Reader 每次调用都重新读取一次完成记录（不缓存）。
type Reader interface {
	ReadDone(ctx context.Context) (domain.DoneSet, error)
}

// FileName 是文件型完成记录在存储根目录下的文件名。
const FileName = "done.json"

// File 读取 <root>/done.json。
//
// 文档形如：{"frames": 1200, "done": {"00000": 240, "00003": 96}, "audio_done": false}
// 只消费 done；其他字段由写入方维护，这里忽略。
type File struct {
	Root string
}

type doneDoc struct {
	Frames    int            `json:"frames"`
	Done      map[string]int `json:"done"`
	AudioDone bool           `json:"audio_done"`
}

func (f File) Path() string { return filepath.Join(f.Root, FileName) }

// ReadDone 在文件不存在时返回空集合（尚无任何 chunk 完成）；内容损坏则返回错误。
func (f File) ReadDone(ctx context.Context) (domain.DoneSet, error) {
	b, err := os.ReadFile(f.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return domain.DoneSet{}, nil
		}
		return nil, err
	}
	var d doneDoc
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("完成记录无法解析：%q：%w", f.Path(), err)
	}
	set := make(domain.DoneSet, len(d.Done))
	for name, frames := range d.Done {
		set[name] = domain.DoneEntry{Frames: frames}
	}
	return set, nil
}

// DefaultRedisKey 是 Redis 完成记录 hash 的默认键。
const DefaultRedisKey = "av1q:done"

// hashGetter 是 Redis 读取所需的最小接口；*redis.Client 与 *redis.ClusterClient 都满足。
type hashGetter interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// Redis 从一个 hash（field=chunk name，value=帧数）读取完成记录。
type Redis struct {
	Client hashGetter
	Key    string
}

// NewRedis 用 addr 建立客户端；key 为空时使用 DefaultRedisKey。
func NewRedis(addr, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{Client: redis.NewClient(&redis.Options{Addr: addr}), Key: key}
}

func (r *Redis) ReadDone(ctx context.Context) (domain.DoneSet, error) {
	m, err := r.Client.HGetAll(ctx, r.Key).Result()
	if err != nil {
		return nil, fmt.Errorf("读取 redis 完成记录失败（key=%s）：%w", r.Key, err)
	}
	set := make(domain.DoneSet, len(m))
	for name, v := range m {
		frames, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("redis 完成记录 %s[%s] 不是整数：%q", r.Key, name, v)
		}
		set[name] = domain.DoneEntry{Frames: frames}
	}
	return set, nil
}

// Close 关闭底层客户端（若支持）。
func (r *Redis) Close() error {
	if c, ok := r.Client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
