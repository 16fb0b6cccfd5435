package tmpl

import (
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// Context 是一次占位符展开的输入：当前 glob 匹配 + 包根目录。
//
// 约束（与宿主解释器一致）：未知占位符、缺失的 INI 键、越界的 split 下标
// 一律展开为空串，绝不报错——指令层面用“路径不存在”兜底，比模板报错可解释。
type Context struct {
	// FileSource 是当前 glob 匹配的绝对路径；无 glob 的指令下为空。
	FileSource string

	// Root 是包根目录；ini_file() 的相对路径以它为基准。
	Root string
}

// Resolve 展开 s 中的全部 {…} 占位符（单趟、由内向外）。
//
// 支持：
//   {file_source}              当前匹配的绝对路径
//   {file_name}                当前匹配的文件名
//   {folder_name}              当前匹配所在目录名
//   {ini_file(path,section,key)}  INI 取值
//   {split(text,delim,index)}  分隔取段（index 从 0 起）
func Resolve(s string, ctx Context) string {
	var sb strings.Builder
	i := 0
	for i < len(s) {
		c := s[i]
		if c != '{' {
			sb.WriteByte(c)
			i++
			continue
		}

		end := matchBrace(s, i)
		if end < 0 {
			// 未闭合：按字面量原样输出，避免吞内容。
			sb.WriteString(s[i:])
			break
		}

		inner := s[i+1 : end]
		// 先展开嵌套占位符，再求值当前表达式。
		sb.WriteString(eval(Resolve(inner, ctx), ctx))
		i = end + 1
	}
	return sb.String()
}

// matchBrace 返回与 s[open]（必为 '{'）配对的 '}' 下标；找不到返回 -1。
func matchBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func eval(expr string, ctx Context) string {
	expr = strings.TrimSpace(expr)

	switch expr {
	case "file_source":
		return ctx.FileSource
	case "file_name":
		if ctx.FileSource == "" {
			return ""
		}
		return filepath.Base(ctx.FileSource)
	case "folder_name":
		if ctx.FileSource == "" {
			return ""
		}
		return filepath.Base(filepath.Dir(ctx.FileSource))
	}

	if name, args, ok := splitCall(expr); ok {
		switch name {
		case "ini_file":
			return evalINIFile(args, ctx)
		case "split":
			return evalSplit(args)
		}
	}

	// 未知占位符 => 空串。
	return ""
}

// splitCall 把 "name(a,b,c)" 拆为 name 与参数表；非调用形态返回 ok=false。
func splitCall(expr string) (name string, args []string, ok bool) {
	open := strings.IndexByte(expr, '(')
	if open <= 0 || !strings.HasSuffix(expr, ")") {
		return "", nil, false
	}
	name = strings.TrimSpace(expr[:open])
	body := expr[open+1 : len(expr)-1]

	parts := strings.Split(body, ",")
	args = make([]string, 0, len(parts))
	for _, p := range parts {
		args = append(args, strings.TrimSpace(p))
	}
	return name, args, true
}

func evalINIFile(args []string, ctx Context) string {
	if len(args) != 3 {
		return ""
	}
	path, section, key := args[0], args[1], args[2]
	if path == "" || key == "" {
		return ""
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(ctx.Root, path)
	}

	f, err := ini.Load(path)
	if err != nil {
		return ""
	}
	sec := f.Section(section)
	if !sec.HasKey(key) {
		return ""
	}
	return sec.Key(key).String()
}

func evalSplit(args []string) string {
	if len(args) != 3 {
		return ""
	}
	text, delim := args[0], args[1]
	idx, err := strconv.Atoi(args[2])
	if err != nil || idx < 0 || delim == "" {
		return ""
	}
	parts := strings.Split(text, delim)
	if idx >= len(parts) {
		return ""
	}
	// 参数在调用形态里已被去除首尾空白，分段结果同样去除，
	// 这样 {split(Game - HD Pack,-,0)} 得到的是 "Game" 而不是 "Game "。
	return strings.TrimSpace(parts[idx])
}
