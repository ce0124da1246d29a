package domain

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkName_ZeroPadded(t *testing.T) {
	assert.Equal(t, "00000", ChunkName(0))
	assert.Equal(t, "00042", ChunkName(42))
	assert.Equal(t, "123456", ChunkName(123456))
}

func TestChunk_DerivedPathsFollowRoot(t *testing.T) {
	c := Chunk{Index: 3, Name: "00003", Extension: "ivf", Root: "/tmp/run"}

	assert.Equal(t, filepath.Join("/tmp/run", "encode", "00003.ivf"), c.OutputPath())
	assert.Equal(t, filepath.Join("/tmp/run", "split", "00003_fpf"), c.StatsPath())

	c.Root = "/other"
	assert.Equal(t, filepath.Join("/other", "encode", "00003.ivf"), c.OutputPath())
}

func TestChunk_CloneDoesNotSharePassCommands(t *testing.T) {
	a := Chunk{PassCommands: []string{"p1"}}
	b := a.Clone()
	b.PassCommands[0] = "changed"
	assert.Equal(t, "p1", a.PassCommands[0])
}

func TestDoneSet_Contains(t *testing.T) {
	var nilSet DoneSet
	assert.False(t, nilSet.Contains("00000"))

	d := DoneSet{"00001": {Frames: 10}}
	assert.True(t, d.Contains("00001"))
	assert.False(t, d.Contains("00002"))
}

func TestFatalKind_UnwrapsAndExtracts(t *testing.T) {
	err := Persistence("/t/chunks.json", os.ErrNotExist)
	assert.Equal(t, KindPersistence, FatalKind(err))
	assert.True(t, IsPersistence(err))
	assert.False(t, IsStructural(err))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	wrapped := errors.Join(errors.New("ctx"), Structural("/t/split", nil))
	assert.True(t, IsStructural(wrapped))

	assert.Equal(t, "", FatalKind(errors.New("plain")))
}
