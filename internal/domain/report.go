package domain

import (
	"encoding/json"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

const (
	FileStatusPlanned    = "planned"
	FileStatusDone       = "done"
	FileStatusShared     = "shared"
	FileStatusRolledBack = "rolled_back"
	FileStatusFailed     = "failed"
)

const (
	ErrCodeBadDirective   = "bad_directive"
	ErrCodeIOFailed       = "io_failed"
	ErrCodeMoveFailed     = "move_failed"
	ErrCodeFetchFailed    = "fetch_failed"
	ErrCodeZipFailed      = "zip_failed"
	ErrCodeConvertFailed  = "convert_failed"
	ErrCodeTargetConflict = "target_conflict"
	ErrCodeConfigNotFound = "config_not_found"
	ErrCodeConfigInvalid  = "config_invalid"
	ErrCodeNoMatch        = "no_match"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	Path   string `json:"path"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// ItemResult 对应一条指令或一次 mod 状态迁移。
type ItemResult struct {
	// Name 是定位锚点：指令形如 "move:12"（op:行号），状态迁移则是 mod 目录名。
	Name string `json:"name"`
	Op   string `json:"op"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Files []FileResult `json:"files"`
}

type FileResult struct {
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	Status string `json:"status"`
}

// Finalize 做两件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) summary 由 items 计算得出
//
// 注意：items 不排序。section 内指令是顺序语义（mkdir 先于 move），
// 报告必须按执行顺序呈现，否则无法对照 package.ini 排查。
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传 encoding/json 的默认行为。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
