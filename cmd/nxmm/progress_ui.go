package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/NXMM/internal/config"
	"github.com/John-Robertt/NXMM/internal/domain"
	"github.com/John-Robertt/NXMM/internal/engine"
)

var _ engine.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：engine 层只发事件，CLI 决定如何展示
// - keepalive：长时间无条目完成时也会定期输出一行，降低等待焦虑
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total int
	done  int
	ok    int
	fail  int
	skip  int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (不写入/不下载/不移动)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] NXMM (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  root: %s\n", eff.Root)
	fmt.Fprintf(p.w, "  live_root: %s\n", eff.LiveRoot)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  case_sensitive: %s\n", onOff(eff.CaseSensitive))
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintf(p.w, "  exclude_dirs: %s\n", formatStringListJSON(eff.ExcludeDirs))
	if eff.Apply {
		fmt.Fprintf(p.w, "  report: %s\n", filepath.Join(eff.Root, "cache", "report.json"))
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	p.mu.Unlock()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "load":
		fmt.Fprintf(p.w, "解析: sections=%d directives=%d (%s)\n",
			intField(fields, "sections"), intField(fields, "directives"), formatShortDuration(dur),
		)
	case "exec":
		p.total = intField(fields, "total_items")
		fmt.Fprintf(p.w, "执行: section=%s total_items=%d\n\n", strField(fields, "section"), p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, name string, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total

	status := "OK"
	switch res.Status {
	case domain.StatusProcessed:
		p.ok++
	case domain.StatusFailed:
		p.fail++
		status = "FAIL"
	case domain.StatusSkipped:
		p.skip++
		status = "SKIP"
	}

	switch res.Status {
	case domain.StatusFailed:
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s: %s (%s)\n",
			idx, total, name, status, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	case domain.StatusSkipped:
		note := strings.TrimSpace(res.ErrorMsg)
		if note == "" {
			note = "无需处理"
		}
		fmt.Fprintf(p.w, "[%d/%d] %s %s (%s) (%s)\n",
			idx, total, name, status, note, formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "[%d/%d] %s %s files=%d (%s)\n",
			idx, total, name, status, len(res.Files), formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) OnProgress(done, total, ok, fail, skip int, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d skip=%d elapsed=%s\n",
		done, total, ok, fail, skip, formatElapsed(elapsed),
	)
	p.lastPrinted = time.Now()
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				// 已完成：安全退出（OnItemDone 会 close stopCh，但这里也做兜底）。
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}

				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					elapsed := time.Since(p.startedAt)
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d skip=%d elapsed=%s\n",
						p.done, p.total, p.ok, p.fail, p.skip, formatElapsed(elapsed),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-p.stopCh:
				return
			}
		}
	}()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}

func strField(fields map[string]any, key string) string {
	if fields == nil {
		return ""
	}
	if s, ok := fields[key].(string); ok {
		return s
	}
	return ""
}
