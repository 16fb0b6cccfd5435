package pkgfile

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/John-Robertt/NXMM/internal/domain"
)

// Package 是一个已解析的 package.ini（section 保序）。
//
// 注意：指令行（move 'a' 'b'）不是 key=value 结构，普通 INI 库会把行序、
// 重复行和引号语义全部搞坏，所以这里用专用解析器；config.ini 那种真正的
// key-value 文件仍然交给 ini 库（见 internal/config）。
type Package struct {
	Path     string
	Sections []Section
}

// Section 是 package.ini 的一个区段：一串保序指令 + 区段级元数据。
type Section struct {
	Name string

	// Meta 来自区段头下方、首条指令之前的 ;key=value 行。
	Meta map[string]string

	Directives []domain.Directive
}

// Error 是解析阶段的结构化错误（带行号定位）。
type Error struct {
	Path string
	Line int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d：%s", e.Path, e.Line, e.Msg)
}

// Load 读取并解析 package.ini。
func Load(path string) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pkg := &Package{Path: path, Sections: make([]Section, 0, 8)}

	var cur *Section
	// pendingMeta 收集紧挨在下一条指令上方的 ;key=value 行。
	pendingMeta := map[string]string{}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		// 区段头。
		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, &Error{Path: path, Line: lineNo, Msg: fmt.Sprintf("区段头未闭合：%q", line)}
			}
			name := strings.TrimSpace(line[1 : len(line)-1])
			if name == "" {
				return nil, &Error{Path: path, Line: lineNo, Msg: "区段名不能为空"}
			}
			pkg.Sections = append(pkg.Sections, Section{Name: name, Meta: map[string]string{}})
			cur = &pkg.Sections[len(pkg.Sections)-1]
			pendingMeta = map[string]string{}
			continue
		}

		// ;key=value 是元数据；其余 ;/# 开头的行是注释。
		if strings.HasPrefix(line, ";") {
			body := strings.TrimSpace(strings.TrimPrefix(line, ";"))
			if k, v, ok := strings.Cut(body, "="); ok && !strings.ContainsAny(strings.TrimSpace(k), " \t") {
				key := strings.TrimSpace(k)
				val := strings.TrimSpace(v)
				if cur != nil && len(cur.Directives) == 0 {
					// 首条指令之前的元数据归属区段本身。
					cur.Meta[key] = val
				} else {
					pendingMeta[key] = val
				}
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		if cur == nil {
			return nil, &Error{Path: path, Line: lineNo, Msg: fmt.Sprintf("区段外出现指令：%q", line)}
		}

		d, err := parseDirective(line, lineNo)
		if err != nil {
			var pe *Error
			if errors.As(err, &pe) {
				pe.Path = path
				return nil, pe
			}
			return nil, err
		}
		if len(pendingMeta) > 0 {
			d.Meta = pendingMeta
			pendingMeta = map[string]string{}
		}
		cur.Directives = append(cur.Directives, d)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return pkg, nil
}

// Section 按名称查找区段。
func (p *Package) Section(name string) (*Section, bool) {
	for i := range p.Sections {
		if p.Sections[i].Name == name {
			return &p.Sections[i], true
		}
	}
	return nil, false
}

// SectionNames 返回全部区段名（保序），供 CLI 展示可用入口。
func (p *Package) SectionNames() []string {
	out := make([]string, 0, len(p.Sections))
	for i := range p.Sections {
		out = append(out, p.Sections[i].Name)
	}
	return out
}

// parseDirective 解析一条指令行：op + 若干参数。
// 参数支持单引号/双引号包裹（允许内含空格），不支持引号内转义。
func parseDirective(line string, lineNo int) (domain.Directive, error) {
	fields, err := splitArgs(line)
	if err != nil {
		return domain.Directive{}, &Error{Line: lineNo, Msg: err.Error()}
	}
	if len(fields) == 0 {
		return domain.Directive{}, &Error{Line: lineNo, Msg: "空指令"}
	}

	op := domain.Op(strings.ToLower(fields[0]))
	if !domain.KnownOp(op) {
		return domain.Directive{}, &Error{Line: lineNo, Msg: fmt.Sprintf("未知指令：%q", fields[0])}
	}

	d := domain.Directive{Op: op, Args: fields[1:], Line: lineNo}
	if err := checkArity(d); err != nil {
		return domain.Directive{}, &Error{Line: lineNo, Msg: err.Error()}
	}
	return d, nil
}

func checkArity(d domain.Directive) error {
	want := map[domain.Op]int{
		domain.OpMkdir:    1,
		domain.OpDelete:   1,
		domain.OpMove:     2,
		domain.OpCopy:     2,
		domain.OpUnzip:    2,
		domain.OpDownload: 2,
		domain.OpConvert:  2,
		domain.OpCompare:  3,
	}[d.Op]
	if len(d.Args) != want {
		return fmt.Errorf("%s 需要 %d 个参数，实际 %d 个", d.Op, want, len(d.Args))
	}
	return nil
}

func splitArgs(line string) ([]string, error) {
	out := make([]string, 0, 4)
	var buf strings.Builder
	inQuote := byte(0)
	flushed := true

	flush := func() {
		if !flushed {
			out = append(out, buf.String())
			buf.Reset()
			flushed = true
		}
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			} else {
				buf.WriteByte(c)
			}
		case c == '\'' || c == '"':
			inQuote = c
			flushed = false // 空引号也算一个参数
		case c == ' ' || c == '\t':
			flush()
		default:
			buf.WriteByte(c)
			flushed = false
		}
	}
	if inQuote != 0 {
		return nil, fmt.Errorf("引号未闭合：%q", line)
	}
	flush()
	return out, nil
}
