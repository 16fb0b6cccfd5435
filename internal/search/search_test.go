package search

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/John-Robertt/NXMM/internal/domain"
)

func names(mods []domain.Mod) []string {
	var out []string
	for _, m := range mods {
		out = append(out, m.Name)
	}
	return out
}

func TestLoadPatterns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, PatternsName)
	content := "# 注释行\n\n  60fps  \nHD Pack\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	got, ok, err := LoadPatterns(path)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !ok {
		t.Fatalf("期望文件存在")
	}
	want := []string{"60fps", "HD Pack"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("期望 %v，实际 %v", want, got)
	}
}

func TestLoadPatterns_Missing(t *testing.T) {
	got, ok, err := LoadPatterns(filepath.Join(t.TempDir(), PatternsName))
	if err != nil {
		t.Fatalf("缺失文件不应报错：%v", err)
	}
	if ok || got != nil {
		t.Fatalf("期望 (nil, false)，实际 (%v, %v)", got, ok)
	}
}

func TestFilter(t *testing.T) {
	mods := []domain.Mod{
		{Name: "Mario - 60fps"},
		{Name: "Zelda - HD Pack [cucholix]"},
		{Name: "Metroid - Cheats"},
	}

	got := Filter(mods, []string{"60FPS"}, false)
	if want := []string{"Mario - 60fps"}; !reflect.DeepEqual(names(got), want) {
		t.Fatalf("大小写不敏感匹配失败：%v", names(got))
	}

	got = Filter(mods, []string{"60FPS"}, true)
	if len(got) != 0 {
		t.Fatalf("大小写敏感时不应匹配：%v", names(got))
	}

	got = Filter(mods, []string{"HD", "Cheats"}, true)
	if want := []string{"Zelda - HD Pack [cucholix]", "Metroid - Cheats"}; !reflect.DeepEqual(names(got), want) {
		t.Fatalf("多模式匹配失败：%v", names(got))
	}

	got = Filter(mods, nil, true)
	if len(got) != len(mods) {
		t.Fatalf("空模式应返回全部：%v", names(got))
	}
}
