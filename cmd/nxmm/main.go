package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/NXMM/internal/config"
	"github.com/John-Robertt/NXMM/internal/domain"
	"github.com/John-Robertt/NXMM/internal/engine"
	"github.com/John-Robertt/NXMM/internal/infra/fsx"
	"github.com/John-Robertt/NXMM/internal/infra/httpx"
	"github.com/John-Robertt/NXMM/internal/patch"
	"github.com/John-Robertt/NXMM/internal/repo"
	"github.com/John-Robertt/NXMM/internal/scan"
	"github.com/John-Robertt/NXMM/internal/search"
	"github.com/John-Robertt/NXMM/internal/tracker"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	var code int
	switch args[0] {
	case "run":
		code = runCmd(args[1:])
	case "enable", "disable", "toggle":
		code = stateCmd(args[0], args[1:])
	case "install":
		code = installCmd(args[1:])
	case "convert":
		code = convertCmd(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		code = 2
	}
	if code != 0 {
		os.Exit(code)
	}
}

type cliArgs struct {
	Root     string
	Apply    bool
	ApplySet bool

	Section  string // run
	Mod      string // enable/disable/toggle
	Pattern  string
	Patterns bool
	Author   string // install
	URL      string // install（首个裸参数）
	Src      string // convert
	DstDir   string
}

// parseArgs 解析一个子命令的参数；裸参数按出现顺序返回，落点由各命令自己决定。
func parseArgs(args []string, maxPositional int) (cliArgs, []string, error) {
	ca := cliArgs{}
	var pos []string

	stringFlag := func(name string, dst *string, a string, i *int) (bool, error) {
		if a == "--"+name {
			if *i+1 >= len(args) {
				return false, fmt.Errorf("--%s 需要一个值", name)
			}
			*i++
			*dst = args[*i]
			return true, nil
		}
		if v, ok := strings.CutPrefix(a, "--"+name+"="); ok {
			*dst = v
			return true, nil
		}
		return false, nil
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--apply":
			ca.Apply = true
			ca.ApplySet = true
		case strings.HasPrefix(a, "--apply="):
			v := strings.TrimPrefix(a, "--apply=")
			switch v {
			case "true":
				ca.Apply = true
			case "false":
				ca.Apply = false
			default:
				return cliArgs{}, nil, fmt.Errorf("--apply 只能是 true 或 false，实际是 %q", v)
			}
			ca.ApplySet = true
		case a == "--patterns":
			ca.Patterns = true
		default:
			handled := false
			for _, f := range []struct {
				name string
				dst  *string
			}{
				{"section", &ca.Section},
				{"mod", &ca.Mod},
				{"pattern", &ca.Pattern},
				{"author", &ca.Author},
			} {
				ok, err := stringFlag(f.name, f.dst, a, &i)
				if err != nil {
					return cliArgs{}, nil, err
				}
				if ok {
					handled = true
					break
				}
			}
			if handled {
				continue
			}
			if strings.HasPrefix(a, "-") {
				return cliArgs{}, nil, fmt.Errorf("未知参数 %q", a)
			}
			if len(pos) >= maxPositional {
				return cliArgs{}, nil, fmt.Errorf("多余的参数：%q", a)
			}
			pos = append(pos, a)
		}
	}
	return ca, pos, nil
}

func loadConfig(ca cliArgs) (config.EffectiveConfig, domain.RunReport, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return config.EffectiveConfig{}, domain.RunReport{}, false
	}

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Root:     ca.Root,
		Apply:    ca.Apply,
		ApplySet: ca.ApplySet,
	})
	if err != nil {
		cwdAbs, _ := filepath.Abs(cwd)
		return config.EffectiveConfig{}, reportForConfigError(cwdAbs, ca, err), false
	}
	return eff, domain.RunReport{}, true
}

func runCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage()
			return 0
		}
	}
	ca, pos, err := parseArgs(args, 1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}
	if len(pos) > 0 {
		ca.Root = pos[0]
	}

	eff, errReport, ok := loadConfig(ca)
	if !ok {
		emitReport(errReport)
		return 1
	}

	progressW, interactive := pickProgressWriter()
	var obs engine.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	section := ca.Section
	pkgPath := filepath.Join(eff.Root, "package.ini")
	rr := engine.Execute(context.Background(), eff, pkgPath, section, obs)
	return finishRoot(eff, rr)
}

func stateCmd(verb string, args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printStateUsage(verb)
			return 0
		}
	}
	ca, pos, err := parseArgs(args, 1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printStateUsage(verb)
		return 2
	}
	if len(pos) > 0 {
		ca.Root = pos[0]
	}
	if ca.Mod == "" && ca.Pattern == "" && !ca.Patterns {
		fmt.Fprintf(os.Stderr, "参数错误：%s 需要 --mod、--pattern 或 --patterns 选择目标 mod\n\n", verb)
		printStateUsage(verb)
		return 2
	}

	eff, errReport, ok := loadConfig(ca)
	if !ok {
		emitReport(errReport)
		return 1
	}

	tr := tracker.New(eff.Root, eff.LiveRoot, eff.Apply)
	mods, err := scan.ScanMods(eff.Root, eff.ExcludeDirs, tr.Store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "扫描 contents/ 失败：%v\n", err)
		return 1
	}

	selected, err := selectMods(eff, ca, mods)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	rr := domain.RunReport{
		Path:      eff.Root,
		DryRun:    !eff.Apply,
		StartedAt: time.Now().UTC(),
		Items:     make([]domain.ItemResult, 0, len(selected)),
	}
	if len(selected) == 0 {
		rr.Items = append(rr.Items, domain.ItemResult{
			Name:      verb,
			Status:    domain.StatusFailed,
			ErrorCode: domain.ErrCodeNoMatch,
			ErrorMsg:  "没有匹配的 mod",
			Files:     []domain.FileResult{},
		})
	}
	for _, m := range selected {
		var res domain.ItemResult
		switch verb {
		case "enable":
			res = tr.Enable(m)
		case "disable":
			res = tr.Disable(m)
		default:
			res = tr.Toggle(m)
		}
		rr.Items = append(rr.Items, res)

		// apply 且迁移成功：把选择持久化进 config.ini 的 [enabled]。
		if eff.Apply && res.Status == domain.StatusProcessed {
			on := res.Op == "enable"
			if err := config.SetEnabled(eff.Root, m.Name, on); err != nil {
				fmt.Fprintf(os.Stderr, "更新 config.ini 失败（%s）：%v\n", m.Name, err)
			}
		}
	}
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return finishRoot(eff, rr)
}

// selectMods 依据 --mod（精确名）、--pattern（子串）或 --patterns
// （search_patterns.txt）选出目标 mod。
func selectMods(eff config.EffectiveConfig, ca cliArgs, mods []domain.Mod) ([]domain.Mod, error) {
	if ca.Mod != "" {
		for _, m := range mods {
			if m.Name == ca.Mod {
				return []domain.Mod{m}, nil
			}
		}
		return nil, fmt.Errorf("找不到 mod：%q（contents/ 下无此目录）", ca.Mod)
	}
	if ca.Pattern != "" {
		return search.Filter(mods, []string{ca.Pattern}, eff.CaseSensitive), nil
	}
	path := filepath.Join(eff.Root, search.PatternsName)
	patterns, found, err := search.LoadPatterns(path)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("模式文件不存在：%s", path)
	}
	return search.Filter(mods, patterns, eff.CaseSensitive), nil
}

func installCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printInstallUsage()
			return 0
		}
	}
	ca, pos, err := parseArgs(args, 2)
	if err == nil && len(pos) == 0 {
		err = fmt.Errorf("install 需要一个 URL")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printInstallUsage()
		return 2
	}
	ca.URL = pos[0]
	if len(pos) > 1 {
		ca.Root = pos[1]
	}

	eff, errReport, ok := loadConfig(ca)
	if !ok {
		emitReport(errReport)
		return 1
	}

	client, err := httpx.NewClient(eff.ProxyURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "proxy_url 无效：%v\n", err)
		return 1
	}

	rr := repo.Install(context.Background(), eff, ca.URL, ca.Author, client)
	return finishRoot(eff, rr)
}

func convertCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printConvertUsage()
			return 0
		}
	}
	ca, pos, err := parseArgs(args, 2)
	if err == nil && len(pos) == 0 {
		err = fmt.Errorf("convert 需要一个 pchtxt 路径")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printConvertUsage()
		return 2
	}
	ca.Src = pos[0]
	if len(pos) > 1 {
		ca.DstDir = pos[1]
	}
	dstDir := ca.DstDir
	if dstDir == "" {
		dstDir = filepath.Dir(ca.Src)
	}

	out, err := patch.ConvertFile(ca.Src, dstDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "转换失败：%v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "已写入：%s\n", out)
	if !isTTY(os.Stdout) {
		fmt.Fprintln(os.Stdout, out)
	}
	return 0
}

// finishRoot 收尾一个作用于包根的命令：apply 时落盘 report.json，
// 再按 TTY 契约输出报告。
func finishRoot(eff config.EffectiveConfig, rr domain.RunReport) int {
	if eff.Apply {
		if err := writeReportFile(eff.Root, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 report.json 失败：%v\n", err)
			emitReport(rr)
			return 1
		}
	}
	emitReport(rr)
	if rr.Summary.Failed == 0 {
		return 0
	}
	return 1
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  nxmm run [root] [--section NAME] [--apply[=true|false]]
  nxmm enable|disable|toggle [root] (--mod NAME | --pattern SUBSTR | --patterns) [--apply]
  nxmm install URL [root] [--author NAME] [--apply]
  nxmm convert SRC.pchtxt [dstdir]

命令：
  run      执行 package.ini 中的一个 section（默认 dry-run）
  enable   把 mod 从 staging 搬进 live root 并记录 location log
  disable  按 location log 搬回（共享路径引用计数）
  toggle   依据 log 是否存在决定启用/停用
  install  下载贡献者仓库归档并整理成 contents/、pchtxts/ 布局
  convert  把 pchtxt 转成 IPS32 补丁

使用 "nxmm <命令> --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  nxmm run [root] [--section NAME] [--apply[=true|false]]

参数：
  --section   要执行的 package.ini 区段（未指定则执行第一个区段）
  --apply     真正执行写入/下载/移动（默认 dry-run）；--apply=false 可覆盖配置
  -h, --help  显示帮助
`)
}

func printStateUsage(verb string) {
	fmt.Fprintf(os.Stdout, `用法：
  nxmm %s [root] (--mod NAME | --pattern SUBSTR | --patterns) [--apply]

参数：
  --mod       按目录名精确选择一个 mod
  --pattern   按名称子串选择（大小写敏感性由 config.ini 的 case_sensitive 决定）
  --patterns  使用 <root>/search_patterns.txt 里的模式
  --apply     真正移动文件（默认 dry-run）
  -h, --help  显示帮助
`, verb)
}

func printInstallUsage() {
	fmt.Fprint(os.Stdout, `用法：
  nxmm install URL [root] [--author NAME] [--apply]

参数：
  --author    作者目录名（未指定则从 URL 推断）
  --apply     真正下载并整理（默认 dry-run 只报告计划）
  -h, --help  显示帮助
`)
}

func printConvertUsage() {
	fmt.Fprint(os.Stdout, `用法：
  nxmm convert SRC.pchtxt [dstdir]

输出文件名取 pchtxt 的 @nsobid 头：<nsobid>.ips（默认写到 SRC 同目录）。
`)
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintf(os.Stdout, "完成：processed=%d skipped=%d failed=%d\n",
			rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed,
		)
		if rr.Summary.Failed > 0 {
			for _, it := range rr.Items {
				if it.Status != domain.StatusFailed {
					continue
				}
				key := it.Name
				if key == "" {
					key = "<unknown>"
				}
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintf(os.Stderr, "完成：processed=%d skipped=%d failed=%d\n",
		rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed,
	)
}

func reportForConfigError(cwdAbs string, ca cliArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Path:       cwdAbs,
		DryRun:     !(ca.ApplySet && ca.Apply),
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
			Files:     []domain.FileResult{},
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(root string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Join(root, "cache"), "report.json", b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}
