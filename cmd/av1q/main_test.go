package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/av1q/internal/app/run"
	"github.com/John-Robertt/av1q/internal/domain"
)

type fakeSegmenter struct {
	sizes []int
	calls int
}

func (s *fakeSegmenter) Segment(ctx context.Context, input, root string, splits []int) error {
	s.calls++
	dir := filepath.Join(root, "split")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i, n := range s.sizes {
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("%05d.mkv", i)), make([]byte, n), 0o644); err != nil {
			return err
		}
	}
	return nil
}

type constProber struct{}

func (constProber) Frames(ctx context.Context, path string) (int, error) { return 48, nil }

func newTestCLI(t *testing.T, seg *fakeSegmenter) (*cli, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	no := false
	return &cli{
		stdout:      &stdout,
		stderr:      &stderr,
		cwd:         t.TempDir(),
		deps:        run.Deps{Segmenter: seg, Prober: constProber{}},
		interactive: &no,
	}, &stdout, &stderr
}

// decodeSingle 断言 stdout 恰好是一个 QueueReport JSON。
func decodeSingle(t *testing.T, stdout *bytes.Buffer) domain.QueueReport {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(stdout.Bytes()))
	var rr domain.QueueReport
	require.NoError(t, dec.Decode(&rr), "stdout=%q", stdout.String())
	assert.False(t, dec.More(), "stdout 只能包含一个 JSON：%q", stdout.String())
	return rr
}

func TestCLI_Queue_NoTTY_StdoutOnlyReportJSON(t *testing.T) {
	c, stdout, _ := newTestCLI(t, &fakeSegmenter{sizes: []int{100, 200}})
	root := filepath.Join(t.TempDir(), "work")
	require.NoError(t, os.MkdirAll(root, 0o755))

	code := c.main(context.Background(), []string{"queue", root, "--input", "/src/in.mkv", "--encoder=rav1e", "--split", "24"})
	require.Equal(t, 0, code)

	rr := decodeSingle(t, stdout)
	assert.Equal(t, root, rr.Root)
	assert.Empty(t, rr.ErrorCode)
	assert.Equal(t, 2, rr.Summary.Pending)
	assert.Equal(t, "00001", rr.Chunks[0].Name)
	assert.Equal(t, "ivf", rr.Chunks[0].Extension)

	_, err := os.Stat(filepath.Join(root, "chunks.json"))
	assert.NoError(t, err)
}

func TestCLI_Queue_ThenResumeThenShow(t *testing.T) {
	seg := &fakeSegmenter{sizes: []int{10, 20, 30}}
	c, stdout, _ := newTestCLI(t, seg)
	root := t.TempDir()

	require.Equal(t, 0, c.main(context.Background(), []string{"queue", root, "--input=/src/in.mkv"}))
	require.NoError(t, os.WriteFile(filepath.Join(root, "done.json"), []byte(`{"done":{"00002":48}}`), 0o644))

	stdout.Reset()
	require.Equal(t, 0, c.main(context.Background(), []string{"queue", root, "--resume"}))
	rr := decodeSingle(t, stdout)
	assert.True(t, rr.Resumed)
	assert.Equal(t, 1, seg.calls)
	assert.Equal(t, domain.QueueSummary{Total: 3, Pending: 2, Done: 1, Bytes: 30, Frames: 96}, rr.Summary)

	stdout.Reset()
	require.Equal(t, 0, c.main(context.Background(), []string{"show", root}))
	shown := decodeSingle(t, stdout)
	assert.Equal(t, rr.Summary, shown.Summary)
	assert.Equal(t, rr.Chunks, shown.Chunks)
}

func TestCLI_Queue_ZeroSegmentsExitsOne(t *testing.T) {
	c, stdout, stderr := newTestCLI(t, &fakeSegmenter{})
	code := c.main(context.Background(), []string{"queue", t.TempDir(), "--input", "/src/in.mkv"})
	assert.Equal(t, 1, code)

	rr := decodeSingle(t, stdout)
	assert.Equal(t, domain.KindStructural, rr.ErrorCode)
	assert.Contains(t, stderr.String(), "致命错误")
	assert.Contains(t, stderr.String(), "检查 --input 与 --split")
}

func TestCLI_Queue_ResumeWithoutDocumentHintsRebuild(t *testing.T) {
	seg := &fakeSegmenter{sizes: []int{1}}
	c, stdout, stderr := newTestCLI(t, seg)
	code := c.main(context.Background(), []string{"queue", t.TempDir(), "--resume"})
	assert.Equal(t, 1, code)
	assert.Equal(t, 0, seg.calls)

	rr := decodeSingle(t, stdout)
	assert.Equal(t, domain.KindPersistence, rr.ErrorCode)
	assert.Contains(t, stderr.String(), "去掉 --resume 重新构造队列")
}

func TestCLI_Queue_ConfigNotFound(t *testing.T) {
	c, stdout, _ := newTestCLI(t, &fakeSegmenter{})
	code := c.main(context.Background(), []string{"queue", "--input", "/src/in.mkv"})
	assert.Equal(t, 1, code)

	rr := decodeSingle(t, stdout)
	assert.Equal(t, domain.ErrCodeConfigNotFound, rr.ErrorCode)
	assert.Equal(t, c.cwd, rr.Root)
}

func TestCLI_Queue_ConfigFileSuppliesTemp(t *testing.T) {
	c, stdout, _ := newTestCLI(t, &fakeSegmenter{sizes: []int{1}})
	require.NoError(t, os.WriteFile(filepath.Join(c.cwd, "av1q.yaml"), []byte("temp: work\ninput: in.mkv\nencoder: x264\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(c.cwd, "work"), 0o755))

	require.Equal(t, 0, c.main(context.Background(), []string{"queue"}))
	rr := decodeSingle(t, stdout)
	assert.Equal(t, filepath.Join(c.cwd, "work"), rr.Root)
	assert.Equal(t, "mkv", rr.Chunks[0].Extension)
}

func TestCLI_UsageErrors(t *testing.T) {
	cases := [][]string{
		{"bogus"},
		{"queue", "--resume=maybe"},
		{"queue", "--split", "a,b"},
		{"queue", "--input"},
		{"queue", "a", "b"},
		{"queue", "--nope"},
		{"show", "--resume"},
	}
	for _, args := range cases {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			c, stdout, _ := newTestCLI(t, &fakeSegmenter{})
			assert.Equal(t, 2, c.main(context.Background(), args))
			assert.NotContains(t, stdout.String(), `"error_code"`)
		})
	}
}

func TestCLI_Help(t *testing.T) {
	c, stdout, _ := newTestCLI(t, &fakeSegmenter{})
	assert.Equal(t, 0, c.main(context.Background(), nil))
	assert.Contains(t, stdout.String(), "av1q queue")

	stdout.Reset()
	assert.Equal(t, 0, c.main(context.Background(), []string{"queue", "--help"}))
	assert.Contains(t, stdout.String(), "svt_av1")
}

func TestParseQueueArgs(t *testing.T) {
	qa, err := parseQueueArgs([]string{"tmp", "--input", "a.mkv", "--encoder", "aom", "--split=10, 20", "--resume=false"})
	require.NoError(t, err)
	assert.Equal(t, queueArgs{
		Temp: "tmp", Input: "a.mkv",
		Encoder: "aom", EncoderSet: true,
		Splits: []int{10, 20}, SplitsSet: true,
		Resume: false, ResumeSet: true,
	}, qa)

	qa, err = parseQueueArgs([]string{"--split="})
	require.NoError(t, err)
	assert.True(t, qa.SplitsSet)
	assert.Empty(t, qa.Splits)
}
