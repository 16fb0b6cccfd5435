// Package engine 顺序执行 package.ini 中某个 section 的指令序列。
//
// 执行模型（刻意保持简单）：
// - 单线程、逐条阻塞执行；section 内指令是顺序语义（mkdir 先于 move）。
// - 单个文件失败只影响该文件/该条指令的状态，不中断后续指令。
// - dry-run 只做解析、展开与校验，不落盘、不下载、不移动。
package engine

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/John-Robertt/NXMM/internal/config"
	"github.com/John-Robertt/NXMM/internal/domain"
	"github.com/John-Robertt/NXMM/internal/infra/httpx"
	"github.com/John-Robertt/NXMM/internal/pkgfile"
)

// Execute 执行 pkgPath 中名为 section 的指令序列，返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为 item 级失败（单条失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig, pkgPath, section string, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		Path:      eff.Root,
		DryRun:    !eff.Apply,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 32),
	}

	client, err := httpx.NewClient(eff.ProxyURL)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeConfigInvalid, fmt.Sprintf("proxy_url 无效：%v", err)))
		return finish(rr)
	}

	loadStarted := time.Now()
	pkg, err := pkgfile.Load(pkgPath)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeBadDirective, fmt.Sprintf("解析 package.ini 失败：%v", err)))
		return finish(rr)
	}
	if section == "" {
		if len(pkg.Sections) == 0 {
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeNoMatch, "package.ini 中没有任何 section"))
			return finish(rr)
		}
		section = pkg.Sections[0].Name
	}
	sec, ok := pkg.Section(section)
	if !ok {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeNoMatch,
			fmt.Sprintf("package.ini 中不存在 section %q；可用：%v", section, pkg.SectionNames())))
		return finish(rr)
	}
	loadDur := time.Since(loadStarted)

	if obs != nil {
		obs.OnPhaseDone("load", map[string]any{
			"sections":   len(pkg.Sections),
			"directives": len(sec.Directives),
		}, loadDur)
		obs.OnPhaseDone("exec", map[string]any{
			"section":     sec.Name,
			"total_items": len(sec.Directives),
		}, 0)
	}

	ex := executor{eff: eff, client: client}
	for i, d := range sec.Directives {
		oneStarted := time.Now()
		res := ex.run(ctx, d)
		rr.Items = append(rr.Items, res)
		if obs != nil {
			obs.OnItemDone(i+1, len(sec.Directives), res.Name, res, time.Since(oneStarted))
		}
	}

	return finish(rr)
}

func finish(rr domain.RunReport) domain.RunReport {
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
		Files:     []domain.FileResult{},
	}
}

type executor struct {
	eff    config.EffectiveConfig
	client *http.Client
}

// run 执行单条指令。返回的 ItemResult.Name 为 "op:行号"，用于对照 package.ini 定位。
func (ex executor) run(ctx context.Context, d domain.Directive) domain.ItemResult {
	item := domain.ItemResult{
		Name:   fmt.Sprintf("%s:%d", d.Op, d.Line),
		Op:     string(d.Op),
		Status: domain.StatusProcessed, // 失败时覆盖
		Files:  []domain.FileResult{},
	}

	switch d.Op {
	case domain.OpMkdir, domain.OpDownload, domain.OpCompare:
		// 无 glob 源：整条指令一次展开、一次执行。
		ex.runSingle(ctx, d, &item)
	case domain.OpMove, domain.OpCopy, domain.OpDelete, domain.OpUnzip, domain.OpConvert:
		ex.runPerMatch(ctx, d, &item)
	default:
		// Load 阶段已拒绝未知 op；此处兜底。
		item.Status = domain.StatusFailed
		item.ErrorCode = domain.ErrCodeBadDirective
		item.ErrorMsg = fmt.Sprintf("未知指令：%s", d.Op)
	}

	return item
}

// runPerMatch 处理“首参可为 glob”的指令：先展开源路径，再逐个匹配执行。
func (ex executor) runPerMatch(ctx context.Context, d domain.Directive, item *domain.ItemResult) {
	matches, err := ex.expandSource(d.Args[0])
	if err != nil {
		item.Status = domain.StatusFailed
		item.ErrorCode = domain.ErrCodeBadDirective
		item.ErrorMsg = fmt.Sprintf("展开源路径失败：%v", err)
		return
	}
	if len(matches) == 0 {
		// glob 零匹配 => 零操作。字面路径不存在同样落到这里，由具体 op 报错更可读，
		// 所以字面路径始终保留一个“匹配”。
		item.Status = domain.StatusSkipped
		item.ErrorCode = domain.ErrCodeNoMatch
		item.ErrorMsg = fmt.Sprintf("无匹配：%s", d.Args[0])
		return
	}

	var failCode, failMsg string
	for _, src := range matches {
		fr, code, msg := ex.runOne(ctx, d, src)
		item.Files = append(item.Files, fr)
		if code != "" && failCode == "" {
			failCode, failMsg = code, msg
		}
	}
	if failCode != "" {
		item.Status = domain.StatusFailed
		item.ErrorCode = failCode
		item.ErrorMsg = failMsg
	}
}

func (ex executor) runSingle(ctx context.Context, d domain.Directive, item *domain.ItemResult) {
	fr, code, msg := ex.runOne(ctx, d, "")
	item.Files = append(item.Files, fr)
	if code != "" {
		item.Status = domain.StatusFailed
		item.ErrorCode = code
		item.ErrorMsg = msg
	}
}

// expandSource 展开首参：先做一次空上下文模板解析（ini_file/split 不依赖匹配），
// 再按是否含 glob 元字符决定走 doublestar 还是按字面路径。
// 返回的路径都是绝对路径且排序稳定。
func (ex executor) expandSource(raw string) ([]string, error) {
	resolved := ex.resolve(raw, "")
	abs := ex.abs(resolved)
	if !hasGlobMeta(abs) {
		return []string{abs}, nil
	}
	matches, err := globPaths(abs)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
