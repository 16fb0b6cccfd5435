package zipx

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// UnsafeEntryError 表示 zip 内出现试图逃逸目标目录的条目（zip-slip）。
type UnsafeEntryError struct {
	Name string
}

func (e *UnsafeEntryError) Error() string {
	return fmt.Sprintf("zip 条目路径不安全（拒绝解压）：%q", e.Name)
}

// Extract 把 src 解压到 dstDir（不存在则创建），返回解压出的相对路径列表。
//
// 约束：
// - 条目路径必须落在 dstDir 之内；含 ".." 或绝对路径的条目直接失败
// - 符号链接条目跳过（mod 内容只应包含目录与普通文件）
// - 条目保序：与 zip central directory 顺序一致，便于测试与排查
func Extract(src, dstDir string) ([]string, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	dstDir = filepath.Clean(dstDir)
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return nil, err
	}

	extracted := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		rel, err := safeRel(f.Name)
		if err != nil {
			return extracted, err
		}
		if rel == "" {
			continue
		}
		target := filepath.Join(dstDir, rel)

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return extracted, err
			}
			continue
		}
		if f.FileInfo().Mode()&os.ModeSymlink != 0 {
			continue
		}

		if err := extractFile(f, target); err != nil {
			return extracted, fmt.Errorf("解压 %q 失败：%w", f.Name, err)
		}
		extracted = append(extracted, rel)
	}
	return extracted, nil
}

func safeRel(name string) (string, error) {
	// zip 条目统一用 '/'；先按 slash 清洗再转平台分隔符。
	name = strings.TrimPrefix(name, "./")
	if name == "" {
		return "", nil
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return "", &UnsafeEntryError{Name: name}
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." {
		return "", nil
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", &UnsafeEntryError{Name: name}
	}
	return clean, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.FileInfo().Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
