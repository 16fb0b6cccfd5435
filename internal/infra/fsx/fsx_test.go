package fsx

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCopyFile_OverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "sub", "dst.bin")

	if err := os.WriteFile(src, []byte("new"), 0o600); err != nil {
		t.Fatalf("写入源文件失败：%v", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(dst, []byte("old"), 0o644); err != nil {
		t.Fatalf("写入旧目标失败：%v", err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("读取目标失败：%v", err)
	}
	if string(b) != "new" {
		t.Fatalf("期望内容 new，实际 %q", b)
	}
	// 源文件必须原样保留（copy 不是 move）。
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("源文件不应消失：%v", err)
	}
}

func TestCopyFile_SrcIsDir(t *testing.T) {
	dir := t.TempDir()
	err := CopyFile(dir, filepath.Join(dir, "x"))
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%T %v", err, err)
	}
}

func TestMoveFile_SameDevice(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a", "f.txt")
	dst := filepath.Join(dir, "b", "f.txt")

	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("期望源文件消失，实际 err=%v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("期望目标存在：%v", err)
	}
}

func TestWriteFileAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	if err := WriteFileAtomicReplace(dir, "log.txt", []byte("v1\n")); err != nil {
		t.Fatalf("首次写入失败：%v", err)
	}
	if err := WriteFileAtomicReplace(dir, "log.txt", []byte("v2\n")); err != nil {
		t.Fatalf("覆盖写入失败：%v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "log.txt"))
	if err != nil {
		t.Fatalf("读取失败：%v", err)
	}
	if string(b) != "v2\n" {
		t.Fatalf("期望 v2，实际 %q", b)
	}

	// 临时文件不能残留。
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("期望仅 1 个文件，实际 %d", len(entries))
	}
}

func TestCopyTree(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	for _, p := range []string{"a/x.txt", "a/b/y.txt", "z.txt"} {
		full := filepath.Join(src, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("创建目录失败：%v", err)
		}
		if err := os.WriteFile(full, []byte(p), 0o644); err != nil {
			t.Fatalf("写入失败：%v", err)
		}
	}

	dst := filepath.Join(dir, "dst")
	if err := CopyTree(src, dst); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	for _, p := range []string{"a/x.txt", "a/b/y.txt", "z.txt"} {
		b, err := os.ReadFile(filepath.Join(dst, p))
		if err != nil {
			t.Fatalf("读取 %s 失败：%v", p, err)
		}
		if string(b) != p {
			t.Fatalf("期望内容 %q，实际 %q", p, b)
		}
	}
}

func TestRemoveEmptyParents(t *testing.T) {
	root := t.TempDir()
	leaf := filepath.Join(root, "a", "b", "c", "f.txt")
	if err := os.MkdirAll(filepath.Dir(leaf), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	// 留一个兄弟文件在 a/ 下：a 不应被删除。
	if err := os.WriteFile(filepath.Join(root, "a", "keep.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	RemoveEmptyParents(leaf, root)

	if _, err := os.Stat(filepath.Join(root, "a", "b")); !os.IsNotExist(err) {
		t.Fatalf("期望 a/b 已删除，实际 err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "a")); err != nil {
		t.Fatalf("a 不应被删除：%v", err)
	}
}
