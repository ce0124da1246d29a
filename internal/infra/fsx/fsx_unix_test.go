//go:build unix

package fsx

import (
	"os"
	"syscall"
	"testing"
)

func TestWriteFileAtomic_CrossDeviceEXDEV(t *testing.T) {
	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	defer func() { renameFunc = old }()

	err := WriteFileAtomic(t.TempDir(), "chunks.json", []byte("x"))
	if !IsCrossDevice(err) {
		t.Fatalf("期望 CrossDeviceError，实际：%T %v", err, err)
	}
	if err := Rename("/a", "/b"); !IsCrossDevice(err) {
		t.Fatalf("期望 CrossDeviceError，实际：%T %v", err, err)
	}
}
