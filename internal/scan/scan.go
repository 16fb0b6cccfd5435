package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/NXMM/internal/domain"
	"github.com/John-Robertt/NXMM/internal/infra/locstore"
)

// ScanMods 枚举 <root>/contents/ 下的 mod 目录，并应用目录排除规则。
//
// 规则（硬约束）：
// - mod 以 contents/ 的一级子目录为单位；普通文件忽略
// - 隐藏目录（.开头）永久排除
// - excludeDirs：来自配置文件，均视为相对 contents/ 的一级目录名
// - Enabled 的唯一判据是 location log 是否存在（见 locstore）
//
// 注意：扫描阶段只做 ReadDir 与一次 log 存在性检查，不读文件内容。
func ScanMods(root string, excludeDirs []string, store locstore.Store) ([]domain.Mod, error) {
	contentsDir := filepath.Join(filepath.Clean(root), "contents")
	excluded := buildExcluded(excludeDirs)

	entries, err := os.ReadDir(contentsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	mods := make([]domain.Mod, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if _, ok := excluded[name]; ok {
			continue
		}

		m := domain.ParseModName(name)
		m.AbsPath = filepath.Join(contentsDir, name)
		m.TitleID = findTitleID(m.AbsPath)

		_, exists, err := store.Read(name)
		if err != nil {
			return nil, err
		}
		m.Enabled = exists

		mods = append(mods, m)
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(mods, func(i, j int) bool { return mods[i].Name < mods[j].Name })
	return mods, nil
}

// ListFiles 返回 mod staging 树内全部普通文件的相对路径（字典序）。
// enable/disable 都以它为准，保证两个方向看到同一份清单。
func ListFiles(modDir string) ([]string, error) {
	files := make([]string, 0, 32)
	err := filepath.WalkDir(modDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(modDir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// findTitleID 在 mod 树内寻找第一个 16 位 hex 目录名（广度不限，字典序优先）。
func findTitleID(modDir string) string {
	found := ""
	_ = filepath.WalkDir(modDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if domain.TitleIDRE.MatchString(d.Name()) {
			if found == "" || d.Name() < found {
				found = d.Name()
			}
			return filepath.SkipDir
		}
		return nil
	})
	return strings.ToUpper(found)
}

func buildExcluded(excludeDirs []string) map[string]struct{} {
	excluded := make(map[string]struct{}, len(excludeDirs))
	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		// 只认一级目录名；带路径分隔符的配置项按其首段处理。
		if i := strings.IndexByte(x, filepath.Separator); i >= 0 {
			x = x[:i]
		}
		if x != "" {
			excluded[x] = struct{}{}
		}
	}
	return excluded
}
