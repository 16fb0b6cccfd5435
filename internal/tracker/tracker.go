// Package tracker 负责 mod 的启用/停用状态迁移。
//
// 状态模型：cache/locations/<mod>.log 的存在与否是“已启用”的唯一事实来源。
// 启用 = 把 staging（contents/<mod>/）下的文件搬到 live root 并记录绝对路径；
// 停用 = 按 log 倒序搬回。多个 mod 可能声明同一 live 路径：启用时该路径已被
// 占用则保留 staging 副本、只记录声明；停用时只有最后一个声明者才真正删除/搬回
// （引用计数式删除）。
package tracker

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/NXMM/internal/domain"
	"github.com/John-Robertt/NXMM/internal/infra/fsx"
	"github.com/John-Robertt/NXMM/internal/infra/locstore"
	"github.com/John-Robertt/NXMM/internal/scan"
)

type Tracker struct {
	Root     string
	LiveRoot string
	Apply    bool
	Store    locstore.Store
}

func New(root, liveRoot string, apply bool) Tracker {
	return Tracker{
		Root:     root,
		LiveRoot: liveRoot,
		Apply:    apply,
		Store:    locstore.New(root, !apply),
	}
}

// Enable 把 mod 的 staging 文件搬进 live root。
// 中途失败时倒序回滚已搬文件，不写 log（保持“未启用”状态不变）。
func (t Tracker) Enable(mod domain.Mod) domain.ItemResult {
	item := domain.ItemResult{
		Name:   mod.Name,
		Op:     "enable",
		Status: domain.StatusProcessed,
		Files:  []domain.FileResult{},
	}

	if _, exists, err := t.Store.Read(mod.Name); err != nil {
		return failed(item, domain.ErrCodeIOFailed, fmt.Sprintf("读取 location log 失败：%v", err))
	} else if exists {
		item.Status = domain.StatusSkipped
		item.ErrorMsg = "已启用"
		return item
	}

	rels, err := scan.ListFiles(mod.AbsPath)
	if err != nil {
		return failed(item, domain.ErrCodeIOFailed, fmt.Sprintf("枚举 staging 文件失败：%v", err))
	}
	if len(rels) == 0 {
		item.Status = domain.StatusSkipped
		item.ErrorMsg = "staging 为空"
		return item
	}

	claims, err := t.Store.Claims(mod.Name)
	if err != nil {
		return failed(item, domain.ErrCodeIOFailed, fmt.Sprintf("读取其他 mod 的 log 失败：%v", err))
	}

	logPaths := make([]string, 0, len(rels))
	var moved []movedPair

	for _, rel := range rels {
		staging := filepath.Join(mod.AbsPath, rel)
		live := filepath.Join(t.LiveRoot, rel)
		fr := domain.FileResult{Src: t.rel(staging), Dst: live, Status: domain.FileStatusPlanned}

		shared := claims[live] > 0
		if !t.Apply {
			if shared {
				fr.Status = domain.FileStatusShared
			}
			item.Files = append(item.Files, fr)
			logPaths = append(logPaths, live)
			continue
		}

		if shared {
			// 路径已被其他 mod 占用：保留 staging 副本，只记录声明。
			fr.Status = domain.FileStatusShared
			item.Files = append(item.Files, fr)
			logPaths = append(logPaths, live)
			continue
		}

		if err := fsx.MoveFile(staging, live); err != nil {
			fr.Status = domain.FileStatusFailed
			item.Files = append(item.Files, fr)
			t.rollbackEnable(&item, moved)
			code := domain.ErrCodeMoveFailed
			if fsx.IsPathTypeConflict(err) {
				code = domain.ErrCodeTargetConflict
			}
			return failed(item, code, err.Error())
		}
		moved = append(moved, movedPair{src: staging, live: live})
		fr.Status = domain.FileStatusDone
		item.Files = append(item.Files, fr)
		logPaths = append(logPaths, live)
	}

	if !t.Apply {
		return item
	}

	if err := t.Store.Write(mod.Name, logPaths); err != nil {
		t.rollbackEnable(&item, moved)
		return failed(item, domain.ErrCodeIOFailed, fmt.Sprintf("写入 location log 失败：%v", err))
	}
	return item
}

type movedPair struct{ src, live string }

// rollbackEnable 倒序把已搬进 live 的文件移回 staging（栈语义）。
// 回滚成功的文件标记 rolled_back；回滚失败保持 done 以免误导（文件仍在 live）。
func (t Tracker) rollbackEnable(item *domain.ItemResult, moved []movedPair) {
	for i := len(moved) - 1; i >= 0; i-- {
		if err := fsx.MoveFile(moved[i].live, moved[i].src); err != nil {
			continue
		}
		fsx.RemoveEmptyParents(moved[i].live, t.LiveRoot)
		for j := range item.Files {
			if item.Files[j].Dst == moved[i].live && item.Files[j].Status == domain.FileStatusDone {
				item.Files[j].Status = domain.FileStatusRolledBack
			}
		}
	}
}

// Disable 按 log 倒序把文件搬回 staging；仍被其他 mod 声明的路径只撤销本 mod
// 的声明。全部成功才删除 log；有失败则把失败路径留在 log 里（mod 仍部分启用，
// 可修复后重试）。
func (t Tracker) Disable(mod domain.Mod) domain.ItemResult {
	item := domain.ItemResult{
		Name:   mod.Name,
		Op:     "disable",
		Status: domain.StatusProcessed,
		Files:  []domain.FileResult{},
	}

	paths, exists, err := t.Store.Read(mod.Name)
	if err != nil {
		return failed(item, domain.ErrCodeIOFailed, fmt.Sprintf("读取 location log 失败：%v", err))
	}
	if !exists {
		item.Status = domain.StatusSkipped
		item.ErrorMsg = "未启用"
		return item
	}

	claims, err := t.Store.Claims(mod.Name)
	if err != nil {
		return failed(item, domain.ErrCodeIOFailed, fmt.Sprintf("读取其他 mod 的 log 失败：%v", err))
	}

	var remaining []string
	var firstErr string
	for i := len(paths) - 1; i >= 0; i-- {
		live := paths[i]
		rel, err := filepath.Rel(t.LiveRoot, live)
		if err != nil || strings.HasPrefix(rel, "..") {
			// log 里出现 live root 之外的路径：不动文件，只撤销记录。
			item.Files = append(item.Files, domain.FileResult{Src: live, Status: domain.FileStatusFailed})
			if firstErr == "" {
				firstErr = fmt.Sprintf("log 中的路径不在 live root 下：%s", live)
			}
			continue
		}
		staging := filepath.Join(mod.AbsPath, rel)
		fr := domain.FileResult{Src: live, Dst: t.rel(staging), Status: domain.FileStatusPlanned}

		if claims[live] > 0 {
			// 其他 mod 仍声明该路径：只撤销本 mod 的声明，live 文件保留。
			fr.Status = domain.FileStatusShared
			item.Files = append(item.Files, fr)
			continue
		}

		if !t.Apply {
			item.Files = append(item.Files, fr)
			continue
		}

		if err := fsx.MoveFile(live, staging); err != nil {
			fr.Status = domain.FileStatusFailed
			item.Files = append(item.Files, fr)
			remaining = append(remaining, live)
			if firstErr == "" {
				firstErr = err.Error()
			}
			continue
		}
		fsx.RemoveEmptyParents(live, t.LiveRoot)
		fr.Status = domain.FileStatusDone
		item.Files = append(item.Files, fr)
	}

	if !t.Apply {
		return item
	}

	if len(remaining) > 0 {
		// remaining 是倒序收集的，翻回原始顺序再写。
		for l, r := 0, len(remaining)-1; l < r; l, r = l+1, r-1 {
			remaining[l], remaining[r] = remaining[r], remaining[l]
		}
		if err := t.Store.Write(mod.Name, remaining); err != nil && firstErr == "" {
			firstErr = fmt.Sprintf("更新 location log 失败：%v", err)
		}
		return failed(item, domain.ErrCodeMoveFailed, firstErr)
	}
	if firstErr != "" {
		// 只有记录级问题（根外路径）：log 照常移除，但条目标记失败便于排查。
		if err := t.Store.Remove(mod.Name); err != nil {
			firstErr = fmt.Sprintf("删除 location log 失败：%v", err)
		}
		return failed(item, domain.ErrCodeIOFailed, firstErr)
	}
	if err := t.Store.Remove(mod.Name); err != nil {
		return failed(item, domain.ErrCodeIOFailed, fmt.Sprintf("删除 location log 失败：%v", err))
	}
	return item
}

// Toggle 依据 log 是否存在决定启用还是停用。
func (t Tracker) Toggle(mod domain.Mod) domain.ItemResult {
	_, exists, err := t.Store.Read(mod.Name)
	if err != nil {
		item := domain.ItemResult{Name: mod.Name, Op: "toggle", Files: []domain.FileResult{}}
		return failed(item, domain.ErrCodeIOFailed, fmt.Sprintf("读取 location log 失败：%v", err))
	}
	if exists {
		return t.Disable(mod)
	}
	return t.Enable(mod)
}

func (t Tracker) rel(p string) string {
	r, err := filepath.Rel(t.Root, p)
	if err != nil || strings.HasPrefix(r, "..") {
		return p
	}
	return r
}

func failed(item domain.ItemResult, code, msg string) domain.ItemResult {
	item.Status = domain.StatusFailed
	item.ErrorCode = code
	item.ErrorMsg = msg
	return item
}
