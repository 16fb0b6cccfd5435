package repo

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Sanitize 规范化游戏名：NFKD 分解后丢弃非 ASCII（重音符号随之消失）、
// 去掉各种引号、把 " - " 合并为单个空格、压缩连续空白。
func Sanitize(name string) string {
	decomposed := norm.NFKD.String(name)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if r > 127 {
			continue
		}
		switch r {
		case '\'', '`', '"':
			continue
		}
		b.WriteRune(r)
	}
	s := strings.ReplaceAll(b.String(), " - ", " ")
	return strings.Join(strings.Fields(s), " ")
}

// 罗马数字（到 3999），大小写不敏感。
var romanRE = regexp.MustCompile(`^(?i)M{0,4}(CM|CD|D?C{0,3})(XC|XL|L?X{0,3})(IX|IV|V?I{0,3})$`)

func isRoman(w string) bool {
	return w != "" && romanRE.MatchString(w)
}

// 保持全大写的缩写词。
var acronyms = map[string]struct{}{
	"HD": {}, "2D": {}, "3D": {}, "4K": {}, "2K": {}, "VR": {}, "AI": {},
	"API": {}, "USB": {}, "CPU": {}, "GPU": {}, "DVD": {}, "CD": {},
	"RPG": {}, "FPS": {}, "MMO": {}, "MMORPG": {}, "LAN": {}, "GUI": {}, "NPC": {},
	"FX": {}, "FFVII": {}, "FFVIII": {}, "FFIX": {}, "FFX": {}, "FFXII": {},
}

// 夹在中间时保持小写的虚词。
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "as": {}, "at": {}, "but": {}, "by": {},
	"for": {}, "from": {}, "in": {}, "nor": {}, "of": {}, "on": {}, "or": {},
	"so": {}, "the": {}, "to": {}, "with": {}, "yet": {},
}

// TitleCase 做游戏标题式大小写：
//   - 缩写词与罗马数字全大写（含 & + | 连接的复合罗马数字）
//   - 连字符两侧分别大写（yooka-laylee → Yooka-Laylee）
//   - 中间的虚词小写；首尾词总是大写
//   - 副标题分隔符（: ~ – —）之后强制大写到下一个分隔符为止
func TitleCase(name string) string {
	words := strings.Fields(name)
	out := make([]string, len(words))

	force := false
	for i, w := range words {
		lower := strings.ToLower(w)
		first := i == 0
		last := i == len(words)-1

		if !force && !first && !last {
			if _, ok := stopwords[lower]; ok {
				out[i] = lower
				continue
			}
		}
		out[i] = capSpecial(w)

		// 分隔符出现在词内或词尾时，后续词进入强制大写模式。
		force = strings.ContainsAny(w, ":~–—") || strings.HasSuffix(w, "-")
	}
	return strings.Join(out, " ")
}

func capSpecial(w string) string {
	upper := strings.ToUpper(w)
	if _, ok := acronyms[upper]; ok {
		return upper
	}
	if isRoman(w) {
		return upper
	}
	// I&ii → I&II 之类的复合罗马数字。
	for _, sep := range []string{"&", "+", "|"} {
		if strings.Contains(w, sep) {
			parts := strings.Split(w, sep)
			all := true
			for _, p := range parts {
				if !isRoman(p) {
					all = false
					break
				}
			}
			if all {
				return upper
			}
		}
	}
	return capHyphenated(w)
}

// capHyphenated 给连字符两侧各自首字母大写；两侧若是缩写/罗马数字则全大写。
func capHyphenated(w string) string {
	parts := strings.Split(w, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		up := strings.ToUpper(p)
		if _, ok := acronyms[up]; ok || isRoman(p) {
			parts[i] = up
			continue
		}
		r := []rune(p)
		parts[i] = strings.ToUpper(string(r[0])) + strings.ToLower(string(r[1:]))
	}
	return strings.Join(parts, "-")
}
