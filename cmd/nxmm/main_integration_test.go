package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/NXMM/internal/domain"
)

func TestCLI_NoTTY_StdoutOnlyRunReportJSON(t *testing.T) {
	// 这个测试锁定对外契约：stdout 非 TTY 时只能输出一个 RunReport JSON（进度/配置必须走 stderr 或直接禁用）。
	root := t.TempDir()

	src := filepath.Join(root, "src", "a.bin")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
	pkg := "[install]\nmkdir 'out'\nmove 'src/a.bin' 'out/'\n"
	if err := os.WriteFile(filepath.Join(root, "package.ini"), []byte(pkg), 0o644); err != nil {
		t.Fatalf("写入 package.ini 失败：%v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("读取 cwd 失败：%v", err)
	}
	repoRoot := filepath.Clean(filepath.Join(wd, "..", ".."))

	cmd := exec.Command("go", "run", "./cmd/nxmm", "run", root, "--section", "install")
	cmd.Dir = repoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("命令执行失败：%v\nstderr=%s\nstdout=%s", err, stderr.String(), stdout.String())
	}

	// stdout 必须是单个 JSON。
	var rr domain.RunReport
	if err := json.Unmarshal(stdout.Bytes(), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, stdout.String())
	}
	if !rr.DryRun {
		t.Fatalf("默认应为 dry-run：%+v", rr)
	}
	// 进度/配置不应出现在 stdout。
	if strings.Contains(stdout.String(), "配置（生效）") || strings.Contains(stdout.String(), "进度:") {
		t.Fatalf("stdout 不应包含进度/配置输出：%q", stdout.String())
	}

	// stderr 至少应包含最终摘要行。
	if !strings.Contains(stderr.String(), "完成：processed=") {
		t.Fatalf("stderr 缺少完成摘要：%q", stderr.String())
	}

	// dry-run：不应落盘 report.json，源文件原地不动。
	if _, err := os.Stat(filepath.Join(root, "cache", "report.json")); !os.IsNotExist(err) {
		t.Fatalf("dry-run 不应写 report.json")
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("dry-run 不应移动源文件：%v", err)
	}
}
