package encoder

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/av1q/internal/domain"
)

func TestRegistry_ExtensionFor(t *testing.T) {
	r := Default()

	cases := map[string]string{
		"aom":     "ivf",
		"rav1e":   "ivf",
		"svt-av1": "ivf",
		"VPX":     "ivf",
		"x264":    "mkv",
		"x265":    "mkv",
	}
	for name, want := range cases {
		got, err := r.ExtensionFor(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := r.ExtensionFor("nope")
	assert.Error(t, err)
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(aom, aom)
	assert.Error(t, err)

	_, err = NewRegistry(nil)
	assert.Error(t, err)
}

func TestGenerate_DefaultPasses(t *testing.T) {
	c := domain.Chunk{Index: 1, Name: "00001", Extension: "ivf", Root: "/t"}

	require.NoError(t, Generate(&c, aom, Options{}))
	require.Len(t, c.PassCommands, 2)

	// 首遍丢弃输出，末遍写出 <root>/encode/<name>.<ext>。
	assert.Contains(t, c.PassCommands[0], "--pass=1")
	assert.Contains(t, c.PassCommands[0], "-o /dev/null")
	assert.Contains(t, c.PassCommands[1], "--pass=2")
	assert.Contains(t, c.PassCommands[1], filepath.Join("/t", "encode", "00001.ivf"))
	assert.Contains(t, c.PassCommands[1], "--fpf="+filepath.Join("/t", "split", "00001_fpf")+".log")
}

func TestGenerate_SinglePassAndCustomParams(t *testing.T) {
	c := domain.Chunk{Index: 0, Name: "00000", Extension: "ivf", Root: "/t"}

	require.NoError(t, Generate(&c, svtAV1, Options{Passes: 1, Params: "--preset 8"}))
	require.Len(t, c.PassCommands, 1)
	assert.True(t, strings.HasPrefix(c.PassCommands[0], "SvtAv1EncApp "))
	assert.Contains(t, c.PassCommands[0], "--preset 8")
	assert.NotContains(t, c.PassCommands[0], "--crf 30")
}

func TestGenerate_RejectsTooManyPasses(t *testing.T) {
	c := domain.Chunk{Name: "00000"}
	err := Generate(&c, rav1e, Options{Passes: 3})
	assert.Error(t, err)
	assert.Empty(t, c.PassCommands)
}

func TestCompose_X265CarriesFrameCount(t *testing.T) {
	c := domain.Chunk{Name: "00000", Extension: "mkv", Frames: 240, Root: "/t"}
	got := x265.Compose(c, 1, 1, "--crf 20")
	assert.Contains(t, got, "--frames 240")
	assert.NotContains(t, got, "  ")
}
