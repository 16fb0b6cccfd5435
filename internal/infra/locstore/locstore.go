package locstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/NXMM/internal/infra/fsx"
)

// Store 提供 <root>/cache/locations/ 下 location log 的读写。
//
// location log 是一个 mod 的“已写入路径清单”：启用时记录，禁用时按它回退。
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - apply：允许写（ReadOnly=false）
// - log 文件的存在与否是“mod 已启用”的唯一判据
type Store struct {
	Root     string // 包根目录（包含 contents/、cache/ 等）
	ReadOnly bool
}

var ErrReadOnly = errors.New("locstore: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// LogPath 返回 mod 的 location log 绝对路径。
func (s Store) LogPath(mod string) (string, error) {
	name, err := cleanModName(mod)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, "cache", "locations", name+".log"), nil
}

// Read 读取 mod 的 location log。
// 返回值 exists 表示该 log 是否存在（不存在不算错误，表示 mod 未启用）。
func (s Store) Read(mod string) (paths []string, exists bool, err error) {
	path, err := s.LogPath(mod)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return ParseLog(b), true, nil
}

// Write 原子写入 mod 的 location log（覆盖旧内容）。
func (s Store) Write(mod string, paths []string) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	name, err := cleanModName(mod)
	if err != nil {
		return err
	}
	dir := filepath.Join(s.Root, "cache", "locations")
	return fsx.WriteFileAtomicReplace(dir, name+".log", FormatLog(paths))
}

// Remove 删除 mod 的 location log（不存在不算错误）。
func (s Store) Remove(mod string) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	path, err := s.LogPath(mod)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List 返回当前存在 log 的 mod 文件名列表（即全部已启用 mod；字典序）。
func (s Store) List() ([]string, error) {
	dir := filepath.Join(s.Root, "cache", "locations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".log"))
	}
	sort.Strings(names)
	return names, nil
}

// Claims 汇总 exclude 之外所有已启用 mod 的路径引用计数。
// disable 用它实现“共享文件引用计数删除”：计数>0 的路径不许动。
func (s Store) Claims(exclude string) (map[string]int, error) {
	mods, err := s.List()
	if err != nil {
		return nil, err
	}
	excludeName, err := cleanModName(exclude)
	if err != nil {
		excludeName = ""
	}

	counts := make(map[string]int, 64)
	for _, m := range mods {
		if m == excludeName {
			continue
		}
		paths, _, err := s.Read(m)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			counts[p]++
		}
	}
	return counts, nil
}

// ParseLog 解析 log 内容：每行一个绝对路径，忽略空行与 # 注释行。
func ParseLog(b []byte) []string {
	lines := strings.Split(string(b), "\n")
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.HasPrefix(ln, "#") {
			continue
		}
		out = append(out, ln)
	}
	return out
}

// FormatLog 序列化 log：保序、每行一个路径、末尾换行。
func FormatLog(paths []string) []byte {
	var sb strings.Builder
	for _, p := range paths {
		sb.WriteString(p)
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// mod 目录名里允许空格、括号等；这里只拦“会破坏文件路径”的字符。
var badNameChars = strings.NewReplacer("/", "", "\\", "", "\x00", "")

func cleanModName(mod string) (string, error) {
	mod = strings.TrimSpace(mod)
	if mod == "" {
		return "", fmt.Errorf("mod 名称不能为空")
	}
	cleaned := badNameChars.Replace(mod)
	if cleaned != mod || cleaned == "." || cleaned == ".." {
		return "", fmt.Errorf("非法 mod 名称：%q", mod)
	}
	return cleaned, nil
}
