package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/av1q/internal/domain"
	"github.com/John-Robertt/av1q/internal/encoder"
)

// fileSegmenter 按 sizes 写出 <root>/split/%05d.mkv（以及一些应被忽略的文件）。
type fileSegmenter struct {
	sizes []int
	calls int
	err   error
}

func (s *fileSegmenter) Segment(ctx context.Context, input, root string, splits []int) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	dir := filepath.Join(root, "split")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i, n := range s.sizes {
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("%05d.mkv", i)), make([]byte, n), 0o644); err != nil {
			return err
		}
	}
	return os.WriteFile(filepath.Join(dir, "keyframes.log"), []byte("x"), 0o644)
}

type sizeProber struct {
	failOn string
}

func (p sizeProber) Frames(ctx context.Context, path string) (int, error) {
	if p.failOn != "" && filepath.Base(path) == p.failOn {
		return 0, errors.New("probe failed")
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return int(fi.Size()) / 10, nil
}

func newBuilder(t *testing.T, seg Segmenter, p Prober) *Builder {
	t.Helper()
	root := t.TempDir()
	enc, ok := encoder.Default().Get("aom")
	require.True(t, ok)
	return &Builder{
		Root:      root,
		Segmenter: seg,
		Factory: &Factory{
			Root:      root,
			PixFormat: "yuv420p",
			Encoder:   enc,
			Prober:    p,
		},
	}
}

func TestBuilder_Build_IndicesAndLargestFirst(t *testing.T) {
	seg := &fileSegmenter{sizes: []int{100, 300, 200, 300, 50}}
	b := newBuilder(t, seg, sizeProber{})

	var progress []int
	b.OnChunk = func(done, total int, c domain.Chunk) {
		assert.Equal(t, 5, total)
		progress = append(progress, done)
	}

	q, err := b.Build(context.Background(), "/in.mkv", []int{10, 20, 30, 40})
	require.NoError(t, err)
	require.Len(t, q, 5)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, progress)

	// index 恰好覆盖 0..n-1。
	seen := map[int]bool{}
	for _, c := range q {
		seen[c.Index] = true
		assert.Equal(t, domain.ChunkName(c.Index), c.Name)
	}
	assert.Len(t, seen, 5)

	// size 非增，相同 size 按 index 升序。
	for i := 1; i < len(q); i++ {
		assert.GreaterOrEqual(t, q[i-1].Size, q[i].Size)
	}
	assert.Equal(t, []string{"00001", "00003", "00002", "00000", "00004"}, domain.Names(q))
}

func TestBuilder_Build_ChunkFields(t *testing.T) {
	seg := &fileSegmenter{sizes: []int{120}}
	b := newBuilder(t, seg, sizeProber{})

	q, err := b.Build(context.Background(), "/in.mkv", nil)
	require.NoError(t, err)
	require.Len(t, q, 1)

	c := q[0]
	path := filepath.Join(b.Root, "split", "00000.mkv")
	assert.Equal(t, int64(120), c.Size)
	assert.Equal(t, 12, c.Frames)
	assert.Equal(t, "ivf", c.Extension)
	assert.Equal(t, b.Root, c.Root)
	assert.Equal(t, ExtractCommand(path, "yuv420p"), c.Command)
	assert.Contains(t, c.Command, "-pix_fmt yuv420p ")
	assert.Len(t, c.PassCommands, 2)
}

func TestFactory_BuildOne_SizeComesFromDisk(t *testing.T) {
	b := newBuilder(t, nil, sizeProber{})
	require.NoError(t, os.MkdirAll(b.SplitDir(), 0o755))

	empty := filepath.Join(b.SplitDir(), "00000.mkv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	c, err := b.Factory.BuildOne(context.Background(), 0, domain.SegmentFile{Name: "00000.mkv", Stem: "00000", AbsPath: empty})
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.Size)

	// 扫描之后文件又被改写：以构造时的磁盘大小为准。
	grown := filepath.Join(b.SplitDir(), "00001.mkv")
	require.NoError(t, os.WriteFile(grown, make([]byte, 70), 0o644))
	c, err = b.Factory.BuildOne(context.Background(), 1, domain.SegmentFile{Name: "00001.mkv", Stem: "00001", AbsPath: grown, Size: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(70), c.Size)

	_, err = b.Factory.BuildOne(context.Background(), 2, domain.SegmentFile{AbsPath: filepath.Join(b.SplitDir(), "gone.mkv")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBuilder_Build_ZeroFilesIsStructural(t *testing.T) {
	seg := &fileSegmenter{}
	b := newBuilder(t, seg, sizeProber{})

	q, err := b.Build(context.Background(), "/in.mkv", []int{10})
	assert.Nil(t, q)
	assert.True(t, domain.IsStructural(err), "err=%v", err)
	assert.Equal(t, 1, seg.calls)
}

func TestBuilder_Build_ClearsStaleSplitFiles(t *testing.T) {
	seg := &fileSegmenter{sizes: []int{10, 20, 30}}
	b := newBuilder(t, seg, sizeProber{})

	// 上一次运行切得更细，留下了更大的 00003/00004。
	require.NoError(t, os.MkdirAll(b.SplitDir(), 0o755))
	for _, name := range []string{"00003.mkv", "00004.mkv", "00001_fpf.log"} {
		require.NoError(t, os.WriteFile(filepath.Join(b.SplitDir(), name), make([]byte, 999), 0o644))
	}

	q, err := b.Build(context.Background(), "/in.mkv", []int{10, 20})
	require.NoError(t, err)
	require.Len(t, q, 3)
	assert.Equal(t, []string{"00002", "00001", "00000"}, domain.Names(q))
	for _, c := range q {
		assert.NotEqual(t, int64(999), c.Size, "旧分段混入了新队列：%s", c.Name)
	}

	for _, name := range []string{"00003.mkv", "00004.mkv", "00001_fpf.log"} {
		_, err := os.Stat(filepath.Join(b.SplitDir(), name))
		assert.True(t, os.IsNotExist(err), "%s 应已被清理", name)
	}
}

func TestBuilder_Build_SegmenterErrorPropagates(t *testing.T) {
	b := newBuilder(t, &fileSegmenter{err: errors.New("ffmpeg missing")}, sizeProber{})
	_, err := b.Build(context.Background(), "/in.mkv", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg missing")
}

func TestBuilder_Build_ProbeFailureAbortsWholeBuild(t *testing.T) {
	b := newBuilder(t, &fileSegmenter{sizes: []int{10, 20, 30}}, sizeProber{failOn: "00001.mkv"})

	q, err := b.Build(context.Background(), "/in.mkv", nil)
	assert.Nil(t, q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "00001.mkv")
}

func TestScheduleLargestFirst_PureAndStable(t *testing.T) {
	in := []domain.Chunk{
		{Index: 0, Name: "00000", Size: 10, PassCommands: []string{"a"}},
		{Index: 1, Name: "00001", Size: 30},
		{Index: 2, Name: "00002", Size: 10},
		{Index: 3, Name: "00003", Size: 30},
	}
	before := append([]domain.Chunk(nil), in...)

	out := ScheduleLargestFirst(in)
	assert.Equal(t, []string{"00001", "00003", "00000", "00002"}, domain.Names(out))
	assert.Equal(t, before, in, "入参不应被修改")

	out[2].PassCommands[0] = "changed"
	assert.Equal(t, "a", in[0].PassCommands[0])

	assert.Empty(t, ScheduleLargestFirst(nil))
}

func TestExtractCommand_DefaultPixFormat(t *testing.T) {
	got := ExtractCommand("/t/split/00000.mkv", "")
	assert.Equal(t, "ffmpeg -y -hide_banner -loglevel error -i /t/split/00000.mkv -strict -1 -pix_fmt yuv420p10le -bufsize 50000K -f yuv4mpegpipe -", got)
}
