// Package search 负责 mod 名称的模式筛选。
//
// 模式来自命令行或 search_patterns.txt，每行一条；匹配采用
// 子串包含语义，大小写敏感性由配置决定。
package search

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/John-Robertt/NXMM/internal/domain"
)

// PatternsName 是根目录下可选的模式文件名。
const PatternsName = "search_patterns.txt"

// LoadPatterns 读取模式文件并返回非空行。
// 文件不存在时返回 (nil, false, nil)，调用方可回退到命令行模式。
// 以 # 开头的行视为注释。
func LoadPatterns(path string) ([]string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("打开模式文件：%w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, false, fmt.Errorf("读取模式文件：%w", err)
	}
	return out, true, nil
}

// Filter 返回名称匹配任一模式的 mod，保持输入顺序。
// 模式列表为空时返回全部 mod。
func Filter(mods []domain.Mod, patterns []string, caseSensitive bool) []domain.Mod {
	if len(patterns) == 0 {
		return mods
	}
	var out []domain.Mod
	for _, m := range mods {
		for _, p := range patterns {
			if m.Matches(p, caseSensitive) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}
