package main

import (
	"testing"
)

func TestParseArgs_FlagsAndPositional(t *testing.T) {
	ca, pos, err := parseArgs([]string{"/pkg", "--section", "install", "--apply"}, 1)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(pos) != 1 || pos[0] != "/pkg" {
		t.Fatalf("裸参数不符：%v", pos)
	}
	if ca.Section != "install" || !ca.Apply || !ca.ApplySet {
		t.Fatalf("解析结果不符：%+v", ca)
	}
}

func TestParseArgs_ApplyFalseOverride(t *testing.T) {
	ca, _, err := parseArgs([]string{"--apply=false"}, 0)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if ca.Apply || !ca.ApplySet {
		t.Fatalf("--apply=false 应置 ApplySet 且 Apply=false：%+v", ca)
	}
}

func TestParseArgs_EqualsForm(t *testing.T) {
	ca, _, err := parseArgs([]string{"--pattern=60fps", "--mod=Mario - 60fps"}, 0)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if ca.Pattern != "60fps" || ca.Mod != "Mario - 60fps" {
		t.Fatalf("解析结果不符：%+v", ca)
	}
}

func TestParseArgs_Errors(t *testing.T) {
	if _, _, err := parseArgs([]string{"--section"}, 0); err == nil {
		t.Fatalf("缺值应报错")
	}
	if _, _, err := parseArgs([]string{"--apply=maybe"}, 0); err == nil {
		t.Fatalf("非法 apply 值应报错")
	}
	if _, _, err := parseArgs([]string{"--bogus"}, 0); err == nil {
		t.Fatalf("未知参数应报错")
	}
	if _, _, err := parseArgs([]string{"a", "b"}, 1); err == nil {
		t.Fatalf("多余裸参数应报错")
	}
}
