package domain

import (
	"regexp"
	"strings"
)

// Mod 表示 contents/ 下的一个 mod 条目（以目录为单位）。
//
// 目录名约定：<Game> - <ModName> [<Author>] v<Version>
// 其中 [Author] 与 vVersion 可选；解析失败时仅填充 Name/AbsPath。
type Mod struct {
	// Name 是目录名（mod 的唯一主键；location log 以它命名）。
	Name string
	// AbsPath 是 staging 目录的绝对路径（contents/<Name>）。
	AbsPath string

	Game    string
	Title   string
	Author  string
	Version string

	// TitleID 是 staging 树内发现的 16 位 hex 目录名（可能为空）。
	TitleID string

	// Enabled 表示该 mod 当前是否处于启用态。
	// 判定唯一依据：cache/locations/<Name>.log 是否存在（见 locstore）。
	Enabled bool
}

var (
	authorRE  = regexp.MustCompile(`\[([^\[\]]+)\]`)
	versionRE = regexp.MustCompile(`\bv([0-9][0-9A-Za-z._-]*)$`)
	// TitleIDRE 匹配 16 位 hex 的 Title ID 目录名。
	TitleIDRE = regexp.MustCompile(`^[0-9A-Fa-f]{16}$`)
)

// ParseModName 从目录名中提取 Game/Title/Author/Version 元信息。
//
// 约束：要么解析出确定的字段，要么让字段留空；宁可留空，也不允许猜错。
func ParseModName(name string) Mod {
	m := Mod{Name: name}

	s := strings.TrimSpace(name)
	if s == "" {
		return m
	}

	if mm := versionRE.FindStringSubmatch(s); mm != nil {
		m.Version = mm[1]
		s = strings.TrimSpace(strings.TrimSuffix(s, mm[0]))
	}
	if mm := authorRE.FindStringSubmatch(s); mm != nil {
		m.Author = strings.TrimSpace(mm[1])
		s = strings.TrimSpace(strings.Replace(s, mm[0], "", 1))
	}

	// Game 与 ModName 用 " - " 分隔；只切第一刀（ModName 自身可含 '-'）。
	if i := strings.Index(s, " - "); i >= 0 {
		m.Game = strings.TrimSpace(s[:i])
		m.Title = strings.TrimSpace(s[i+len(" - "):])
	} else {
		m.Game = s
	}
	return m
}

// Matches 判断 mod 目录名是否包含 pattern 子串（大小写规则由 caseSensitive 决定）。
func (m Mod) Matches(pattern string, caseSensitive bool) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	if caseSensitive {
		return strings.Contains(m.Name, pattern)
	}
	return strings.Contains(strings.ToLower(m.Name), strings.ToLower(pattern))
}
