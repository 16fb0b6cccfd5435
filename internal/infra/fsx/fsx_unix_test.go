//go:build unix

package fsx

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestRename_CrossDeviceEXDEV(t *testing.T) {
	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	defer func() { renameFunc = old }()

	err := Rename("/a", "/b")
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if !IsCrossDevice(err) {
		t.Fatalf("期望 CrossDeviceError，实际：%T %v", err, err)
	}
}

func TestMoveFile_EXDEVFallsBackToCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "live", "dst.txt")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	// 只让第一次 rename（src->dst）报 EXDEV；CopyFile 内部的临时文件 rename 正常放行。
	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		if oldpath == src {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
		}
		return os.Rename(oldpath, newpath)
	}
	defer func() { renameFunc = old }()

	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("期望源文件已删除，实际 err=%v", err)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("读取目标失败：%v", err)
	}
	if string(b) != "payload" {
		t.Fatalf("期望 payload，实际 %q", b)
	}
}
