package zipx

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("创建 zip 失败：%v", err)
	}
	zw := zip.NewWriter(f)
	for name, body := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("写入条目失败：%v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("写入条目内容失败：%v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("关闭 zip 失败：%v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("关闭文件失败：%v", err)
	}
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "mod.zip")
	writeZip(t, src, map[string]string{
		"0100ABCD0100ABCD/romfs/data.bin": "data",
		"readme.txt":                      "hi",
	})

	dst := filepath.Join(dir, "out")
	got, err := Extract(src, dst)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 2 {
		t.Fatalf("期望 2 个条目，实际 %d：%v", len(got), got)
	}
	b, err := os.ReadFile(filepath.Join(dst, "0100ABCD0100ABCD", "romfs", "data.bin"))
	if err != nil {
		t.Fatalf("读取解压文件失败：%v", err)
	}
	if string(b) != "data" {
		t.Fatalf("期望 data，实际 %q", b)
	}
}

func TestExtract_RejectsZipSlip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "evil.zip")
	writeZip(t, src, map[string]string{
		"../escape.txt": "x",
	})

	dst := filepath.Join(dir, "out")
	_, err := Extract(src, dst)
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	var ue *UnsafeEntryError
	if !errors.As(err, &ue) {
		t.Fatalf("期望 UnsafeEntryError，实际：%T %v", err, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.txt")); !os.IsNotExist(err) {
		t.Fatalf("逃逸文件不应被写出，实际 err=%v", err)
	}
}

func TestExtract_CorruptZip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.zip")
	if err := os.WriteFile(src, []byte("not a zip"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	if _, err := Extract(src, filepath.Join(dir, "out")); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}
