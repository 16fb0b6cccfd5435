package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/John-Robertt/NXMM/internal/domain"
	"github.com/John-Robertt/NXMM/internal/infra/fsx"
	"github.com/John-Robertt/NXMM/internal/infra/httpx"
	"github.com/John-Robertt/NXMM/internal/infra/locstore"
	"github.com/John-Robertt/NXMM/internal/infra/zipx"
	"github.com/John-Robertt/NXMM/internal/patch"
	"github.com/John-Robertt/NXMM/internal/tmpl"
)

// runOne 对单个匹配执行一条指令。src 为展开后的绝对源路径；
// 无源指令（mkdir/download/compare）传空串。
// 返回文件结果与 item 级错误码/错误信息（成功时为空）。
func (ex executor) runOne(ctx context.Context, d domain.Directive, src string) (domain.FileResult, string, string) {
	switch d.Op {
	case domain.OpMkdir:
		return ex.opMkdir(d)
	case domain.OpMove:
		return ex.opMove(d, src)
	case domain.OpCopy:
		return ex.opCopy(d, src)
	case domain.OpDelete:
		return ex.opDelete(src)
	case domain.OpUnzip:
		return ex.opUnzip(d, src)
	case domain.OpDownload:
		return ex.opDownload(ctx, d)
	case domain.OpCompare:
		return ex.opCompare(d)
	case domain.OpConvert:
		return ex.opConvert(d, src)
	}
	return domain.FileResult{Status: domain.FileStatusFailed}, domain.ErrCodeBadDirective, fmt.Sprintf("未知指令：%s", d.Op)
}

func (ex executor) opMkdir(d domain.Directive) (domain.FileResult, string, string) {
	dst := ex.abs(ex.resolve(d.Args[0], ""))
	fr := domain.FileResult{Dst: ex.rel(dst), Status: domain.FileStatusPlanned}
	if !ex.eff.Apply {
		return fr, "", ""
	}
	if err := ensureDir(dst); err != nil {
		fr.Status = domain.FileStatusFailed
		if fsx.IsPathTypeConflict(err) {
			return fr, domain.ErrCodeTargetConflict, err.Error()
		}
		return fr, domain.ErrCodeIOFailed, err.Error()
	}
	fr.Status = domain.FileStatusDone
	return fr, "", ""
}

func (ex executor) opMove(d domain.Directive, src string) (domain.FileResult, string, string) {
	dst := ex.dstFor(d, src)
	fr := domain.FileResult{Src: ex.rel(src), Dst: ex.rel(dst), Status: domain.FileStatusPlanned}
	if !ex.eff.Apply {
		return fr, "", ""
	}
	if skipExisting(d, dst) {
		fr.Status = domain.FileStatusDone
		return fr, "", ""
	}
	if err := fsx.MoveFile(src, dst); err != nil {
		fr.Status = domain.FileStatusFailed
		if fsx.IsPathTypeConflict(err) {
			return fr, domain.ErrCodeTargetConflict, err.Error()
		}
		return fr, domain.ErrCodeMoveFailed, err.Error()
	}
	fr.Status = domain.FileStatusDone
	return fr, "", ""
}

func (ex executor) opCopy(d domain.Directive, src string) (domain.FileResult, string, string) {
	dst := ex.dstFor(d, src)
	fr := domain.FileResult{Src: ex.rel(src), Dst: ex.rel(dst), Status: domain.FileStatusPlanned}
	if !ex.eff.Apply {
		return fr, "", ""
	}
	if skipExisting(d, dst) {
		fr.Status = domain.FileStatusDone
		return fr, "", ""
	}

	fi, err := os.Lstat(src)
	if err != nil {
		fr.Status = domain.FileStatusFailed
		return fr, domain.ErrCodeIOFailed, err.Error()
	}
	if fi.IsDir() {
		err = fsx.CopyTree(src, dst)
	} else {
		err = fsx.CopyFile(src, dst)
	}
	if err != nil {
		fr.Status = domain.FileStatusFailed
		if fsx.IsPathTypeConflict(err) {
			return fr, domain.ErrCodeTargetConflict, err.Error()
		}
		return fr, domain.ErrCodeIOFailed, err.Error()
	}
	fr.Status = domain.FileStatusDone
	return fr, "", ""
}

func (ex executor) opDelete(src string) (domain.FileResult, string, string) {
	fr := domain.FileResult{Src: ex.rel(src), Status: domain.FileStatusPlanned}
	if !ex.eff.Apply {
		return fr, "", ""
	}
	if err := os.RemoveAll(src); err != nil {
		fr.Status = domain.FileStatusFailed
		return fr, domain.ErrCodeIOFailed, err.Error()
	}
	fr.Status = domain.FileStatusDone
	return fr, "", ""
}

func (ex executor) opUnzip(d domain.Directive, src string) (domain.FileResult, string, string) {
	dst := ex.abs(ex.resolve(d.Args[1], src))
	fr := domain.FileResult{Src: ex.rel(src), Dst: ex.rel(dst), Status: domain.FileStatusPlanned}
	if !ex.eff.Apply {
		return fr, "", ""
	}
	if _, err := zipx.Extract(src, dst); err != nil {
		fr.Status = domain.FileStatusFailed
		return fr, domain.ErrCodeZipFailed, err.Error()
	}
	fr.Status = domain.FileStatusDone
	return fr, "", ""
}

func (ex executor) opDownload(ctx context.Context, d domain.Directive) (domain.FileResult, string, string) {
	rawURL := ex.resolve(d.Args[0], "")
	dst := ex.abs(ex.resolve(d.Args[1], ""))
	fr := domain.FileResult{Src: rawURL, Dst: ex.rel(dst), Status: domain.FileStatusPlanned}
	if !ex.eff.Apply {
		return fr, "", ""
	}
	if skipExisting(d, dst) {
		fr.Status = domain.FileStatusDone
		return fr, "", ""
	}
	if err := httpx.DownloadFile(ctx, ex.client, rawURL, dst); err != nil {
		fr.Status = domain.FileStatusFailed
		return fr, domain.ErrCodeFetchFailed, err.Error()
	}
	fr.Status = domain.FileStatusDone
	return fr, "", ""
}

// opCompare 求两份 location log 的有序交集（按第一份的顺序），写入第三个参数。
// 产物本身也是 log 格式，便于直接喂给 delete/compare 继续处理。
func (ex executor) opCompare(d domain.Directive) (domain.FileResult, string, string) {
	pathA := ex.abs(ex.resolve(d.Args[0], ""))
	pathB := ex.abs(ex.resolve(d.Args[1], ""))
	out := ex.abs(ex.resolve(d.Args[2], ""))
	fr := domain.FileResult{Src: ex.rel(pathA), Dst: ex.rel(out), Status: domain.FileStatusPlanned}

	a, err := os.ReadFile(pathA)
	if err != nil {
		fr.Status = domain.FileStatusFailed
		return fr, domain.ErrCodeIOFailed, err.Error()
	}
	b, err := os.ReadFile(pathB)
	if err != nil {
		fr.Status = domain.FileStatusFailed
		return fr, domain.ErrCodeIOFailed, err.Error()
	}

	inB := make(map[string]struct{})
	for _, p := range locstore.ParseLog(b) {
		inB[p] = struct{}{}
	}
	var dup []string
	for _, p := range locstore.ParseLog(a) {
		if _, ok := inB[p]; ok {
			dup = append(dup, p)
		}
	}

	if !ex.eff.Apply {
		return fr, "", ""
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		fr.Status = domain.FileStatusFailed
		return fr, domain.ErrCodeIOFailed, err.Error()
	}
	if err := fsx.WriteFileAtomicReplace(filepath.Dir(out), filepath.Base(out), locstore.FormatLog(dup)); err != nil {
		fr.Status = domain.FileStatusFailed
		return fr, domain.ErrCodeIOFailed, err.Error()
	}
	fr.Status = domain.FileStatusDone
	return fr, "", ""
}

func (ex executor) opConvert(d domain.Directive, src string) (domain.FileResult, string, string) {
	dstDir := ex.abs(ex.resolve(d.Args[1], src))
	fr := domain.FileResult{Src: ex.rel(src), Dst: ex.rel(dstDir), Status: domain.FileStatusPlanned}
	if !ex.eff.Apply {
		return fr, "", ""
	}
	written, err := patch.ConvertFile(src, dstDir)
	if err != nil {
		fr.Status = domain.FileStatusFailed
		return fr, domain.ErrCodeConvertFailed, err.Error()
	}
	fr.Dst = ex.rel(written)
	fr.Status = domain.FileStatusDone
	return fr, "", ""
}

// dstFor 解析 move/copy 的目标：尾随 / 表示目录形式，追加源文件名。
func (ex executor) dstFor(d domain.Directive, src string) string {
	raw := d.Args[1]
	dst := ex.abs(ex.resolve(raw, src))
	if strings.HasSuffix(raw, "/") {
		dst = filepath.Join(dst, filepath.Base(src))
	}
	return dst
}

// skipExisting 支持指令元数据 ;mode=skip：目标已存在时视为满足，不再覆盖。
func skipExisting(d domain.Directive, dst string) bool {
	if d.Meta["mode"] != "skip" {
		return false
	}
	_, err := os.Lstat(dst)
	return err == nil
}

func (ex executor) resolve(raw, src string) string {
	return tmpl.Resolve(raw, tmpl.Context{FileSource: src, Root: ex.eff.Root})
}

func (ex executor) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(ex.eff.Root, p)
}

// rel 尽量输出相对于包根的路径；根外路径（比如 live root 下的目标）保持绝对。
func (ex executor) rel(p string) string {
	if p == "" {
		return ""
	}
	r, err := filepath.Rel(ex.eff.Root, p)
	if err != nil || strings.HasPrefix(r, "..") {
		return p
	}
	return r
}

func hasGlobMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

func globPaths(pattern string) ([]string, error) {
	return doublestar.FilepathGlob(pattern)
}

func ensureDir(dir string) error {
	fi, err := os.Stat(dir)
	if err == nil {
		if fi.IsDir() {
			return nil
		}
		return &fsx.PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
	}
	if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
