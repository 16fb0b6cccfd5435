package engine

import (
	"time"

	"github.com/John-Robertt/NXMM/internal/config"
	"github.com/John-Robertt/NXMM/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - engine 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：进度事件可能由上层 ticker 触发。
type Observer interface {
	// OnStart 在 Execute 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束/就绪时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在某条指令或某个 mod 处理完成时调用（用于每条结果的一行输出）。
	OnItemDone(idx, total int, name string, res domain.ItemResult, dur time.Duration)
	// OnProgress 用于 keepalive（通常由 CLI 自己 ticker 触发；engine 层不强制调用）。
	OnProgress(done, total, ok, fail, skip int, elapsed time.Duration)
}
