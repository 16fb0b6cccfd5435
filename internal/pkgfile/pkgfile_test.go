package pkgfile

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/John-Robertt/NXMM/internal/domain"
)

func writePkg(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "package.ini")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入 package.ini 失败：%v", err)
	}
	return path
}

func TestLoad_SectionsAndDirectives(t *testing.T) {
	path := writePkg(t, `
[Enable HD Pack]
;mode=toggle
mkdir '/atmosphere/contents'
move 'contents/*/exefs.ips' '/atmosphere/exefs_patches/'

# 普通注释
[Update Repo]
download 'https://example.com/main.zip' 'repos/main.zip'
unzip 'repos/main.zip' 'repos/main'
`)

	pkg, err := Load(path)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got := pkg.SectionNames(); !reflect.DeepEqual(got, []string{"Enable HD Pack", "Update Repo"}) {
		t.Fatalf("区段名不符：%v", got)
	}

	sec, ok := pkg.Section("Enable HD Pack")
	if !ok {
		t.Fatalf("期望找到区段")
	}
	if sec.Meta["mode"] != "toggle" {
		t.Fatalf("期望区段 meta mode=toggle，实际 %v", sec.Meta)
	}
	if len(sec.Directives) != 2 {
		t.Fatalf("期望 2 条指令，实际 %d", len(sec.Directives))
	}
	if sec.Directives[0].Op != domain.OpMkdir {
		t.Fatalf("期望 mkdir，实际 %s", sec.Directives[0].Op)
	}
	mv := sec.Directives[1]
	if mv.Op != domain.OpMove {
		t.Fatalf("期望 move，实际 %s", mv.Op)
	}
	want := []string{"contents/*/exefs.ips", "/atmosphere/exefs_patches/"}
	if !reflect.DeepEqual(mv.Args, want) {
		t.Fatalf("期望参数 %v，实际 %v", want, mv.Args)
	}
}

func TestLoad_DirectiveMetaAttachesToNext(t *testing.T) {
	path := writePkg(t, `
[s]
mkdir 'a'
;mode=overwrite
copy 'a' 'b'
`)
	pkg, err := Load(path)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	sec := pkg.Sections[0]
	if sec.Directives[0].Meta != nil {
		t.Fatalf("mkdir 不应有 meta：%v", sec.Directives[0].Meta)
	}
	if sec.Directives[1].Meta["mode"] != "overwrite" {
		t.Fatalf("期望 copy 带 mode=overwrite，实际 %v", sec.Directives[1].Meta)
	}
}

func TestLoad_QuotingWithSpaces(t *testing.T) {
	path := writePkg(t, `
[s]
move 'contents/Game - HD Pack/a.bin' "live/Game - HD Pack/a.bin"
`)
	pkg, err := Load(path)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	d := pkg.Sections[0].Directives[0]
	if d.Args[0] != "contents/Game - HD Pack/a.bin" {
		t.Fatalf("单引号参数解析错误：%q", d.Args[0])
	}
	if d.Args[1] != "live/Game - HD Pack/a.bin" {
		t.Fatalf("双引号参数解析错误：%q", d.Args[1])
	}
}

func TestLoad_UnknownOpWithLine(t *testing.T) {
	path := writePkg(t, "[s]\nfrobnicate 'x'\n")
	_, err := Load(path)
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("期望 *Error，实际：%T %v", err, err)
	}
	if pe.Line != 2 {
		t.Fatalf("期望行号 2，实际 %d", pe.Line)
	}
}

func TestLoad_ArityChecked(t *testing.T) {
	path := writePkg(t, "[s]\nmove 'only-one'\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}

func TestLoad_DirectiveOutsideSection(t *testing.T) {
	path := writePkg(t, "mkdir 'a'\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}

func TestLoad_UnclosedQuote(t *testing.T) {
	path := writePkg(t, "[s]\nmkdir 'oops\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}
