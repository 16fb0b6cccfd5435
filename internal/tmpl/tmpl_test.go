package tmpl

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolve_FilePlaceholders(t *testing.T) {
	ctx := Context{FileSource: "/root/contents/Game - HD Pack/exefs.ips"}

	cases := []struct {
		in   string
		want string
	}{
		{"{file_source}", "/root/contents/Game - HD Pack/exefs.ips"},
		{"{file_name}", "exefs.ips"},
		{"{folder_name}", "Game - HD Pack"},
		{"/live/{folder_name}/{file_name}", "/live/Game - HD Pack/exefs.ips"},
		{"no placeholders", "no placeholders"},
	}
	for _, c := range cases {
		if got := Resolve(c.in, ctx); got != c.want {
			t.Fatalf("Resolve(%q)：期望 %q，实际 %q", c.in, c.want, got)
		}
	}
}

func TestResolve_EmptyContextYieldsEmpty(t *testing.T) {
	if got := Resolve("{file_name}", Context{}); got != "" {
		t.Fatalf("期望空串，实际 %q", got)
	}
}

func TestResolve_UnknownPlaceholderIsEmpty(t *testing.T) {
	if got := Resolve("a{bogus}b", Context{}); got != "ab" {
		t.Fatalf("期望 ab，实际 %q", got)
	}
}

func TestResolve_Split(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"{split(Game - HD Pack, - ,0)}", "Game"},
		{"{split(Game - HD Pack, - ,1)}", "HD Pack"},
		{"{split(a_b_c,_,2)}", "c"},
		{"{split(a_b_c,_,9)}", ""},
		{"{split(a_b_c,_,-1)}", ""},
	}
	for _, c := range cases {
		if got := Resolve(c.in, Context{}); got != c.want {
			t.Fatalf("Resolve(%q)：期望 %q，实际 %q", c.in, c.want, got)
		}
	}
}

func TestResolve_Nested(t *testing.T) {
	ctx := Context{FileSource: "/x/Game_1.0.0/file.bin"}
	if got := Resolve("{split({folder_name},_,1)}", ctx); got != "1.0.0" {
		t.Fatalf("期望 1.0.0，实际 %q", got)
	}
}

func TestResolve_INIFile(t *testing.T) {
	root := t.TempDir()
	iniBody := "[meta]\ntitle_id = 0100ABCD0100ABCD\n"
	if err := os.WriteFile(filepath.Join(root, "info.ini"), []byte(iniBody), 0o644); err != nil {
		t.Fatalf("写入 info.ini 失败：%v", err)
	}

	ctx := Context{Root: root}
	if got := Resolve("{ini_file(info.ini,meta,title_id)}", ctx); got != "0100ABCD0100ABCD" {
		t.Fatalf("期望 title_id，实际 %q", got)
	}
	// 缺失的 key/section/文件一律空串。
	if got := Resolve("{ini_file(info.ini,meta,nope)}", ctx); got != "" {
		t.Fatalf("缺失 key 应为空串，实际 %q", got)
	}
	if got := Resolve("{ini_file(info.ini,other,title_id)}", ctx); got != "" {
		t.Fatalf("缺失 section 应为空串，实际 %q", got)
	}
	if got := Resolve("{ini_file(missing.ini,meta,title_id)}", ctx); got != "" {
		t.Fatalf("缺失文件应为空串，实际 %q", got)
	}
}

func TestResolve_UnclosedBraceIsLiteral(t *testing.T) {
	if got := Resolve("a{file_name", Context{FileSource: "/x/y"}); got != "a{file_name" {
		t.Fatalf("期望字面量透传，实际 %q", got)
	}
}
