// Package repo 把贡献者仓库（GitHub 归档 zip）安装成本地 staging 布局：
//
//	contents/<Game> - Graphics Pack/<version>/<titleid>/…   （TitleID 目录整棵拷入）
//	pchtxts/<Game> - Graphics Mods/<version>.pchtxt         （补丁文本按版本归档）
//
// 游戏名取自 TitleID 目录/补丁文件所在目录名，经 Sanitize + TitleCase 规范化。
package repo

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/NXMM/internal/config"
	"github.com/John-Robertt/NXMM/internal/domain"
	"github.com/John-Robertt/NXMM/internal/infra/fsx"
	"github.com/John-Robertt/NXMM/internal/infra/httpx"
	"github.com/John-Robertt/NXMM/internal/infra/zipx"
)

const (
	packSuffix = "Graphics Pack"
	modsSuffix = "Graphics Mods"
)

// Install 下载并安装一个仓库归档。author 为空时从 URL 推断
// （github.com/<author>/<repo>/…）。dry-run 只报告将要执行的下载，不碰网络。
func Install(ctx context.Context, eff config.EffectiveConfig, rawURL, author string, client *http.Client) domain.RunReport {
	rr := domain.RunReport{
		Path:      eff.Root,
		DryRun:    !eff.Apply,
		StartedAt: time.Now().UTC(),
		Items:     make([]domain.ItemResult, 0, 8),
	}

	author, repoName, err := resolveNames(rawURL, author)
	if err != nil {
		rr.Items = append(rr.Items, failedItem("install", domain.ErrCodeConfigInvalid, err.Error()))
		return finish(rr)
	}

	repoDir := filepath.Join(eff.Root, "repos", author)
	zipPath := filepath.Join(repoDir, repoName+".zip")
	extractDir := filepath.Join(repoDir, repoName)

	dl := domain.ItemResult{
		Name:   "download:" + repoName,
		Op:     string(domain.OpDownload),
		Status: domain.StatusProcessed,
		Files:  []domain.FileResult{{Src: rawURL, Dst: rel(eff.Root, zipPath), Status: domain.FileStatusPlanned}},
	}
	if !eff.Apply {
		rr.Items = append(rr.Items, dl)
		return finish(rr)
	}

	if err := httpx.DownloadFile(ctx, client, rawURL, zipPath); err != nil {
		dl.Status = domain.StatusFailed
		dl.ErrorCode = domain.ErrCodeFetchFailed
		dl.ErrorMsg = err.Error()
		dl.Files[0].Status = domain.FileStatusFailed
		rr.Items = append(rr.Items, dl)
		return finish(rr)
	}
	dl.Files[0].Status = domain.FileStatusDone
	rr.Items = append(rr.Items, dl)

	uz := domain.ItemResult{
		Name:   "unzip:" + repoName,
		Op:     string(domain.OpUnzip),
		Status: domain.StatusProcessed,
		Files:  []domain.FileResult{{Src: rel(eff.Root, zipPath), Dst: rel(eff.Root, extractDir), Status: domain.FileStatusDone}},
	}
	if _, err := zipx.Extract(zipPath, extractDir); err != nil {
		uz.Status = domain.StatusFailed
		uz.ErrorCode = domain.ErrCodeZipFailed
		uz.ErrorMsg = err.Error()
		uz.Files[0].Status = domain.FileStatusFailed
		rr.Items = append(rr.Items, uz)
		return finish(rr)
	}
	rr.Items = append(rr.Items, uz)

	rr.Items = append(rr.Items, layoutContents(eff.Root, extractDir)...)
	rr.Items = append(rr.Items, layoutPchtxts(eff.Root, extractDir)...)
	return finish(rr)
}

// layoutContents 把提取树里的 TitleID 目录拷成 contents/ 布局。
func layoutContents(root, extractDir string) []domain.ItemResult {
	var items []domain.ItemResult

	_ = filepath.WalkDir(extractDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if !domain.TitleIDRE.MatchString(d.Name()) {
			return nil
		}

		titleID := strings.ToUpper(d.Name())
		game, version := gameAndVersion(extractDir, filepath.Dir(path))
		dst := filepath.Join(root, "contents", game+" - "+packSuffix, version, titleID)

		it := domain.ItemResult{
			Name:   game + " - " + packSuffix,
			Op:     string(domain.OpCopy),
			Status: domain.StatusProcessed,
			Files:  []domain.FileResult{{Src: rel(root, path), Dst: rel(root, dst), Status: domain.FileStatusDone}},
		}
		if e := fsx.CopyTree(path, dst); e != nil {
			it.Status = domain.StatusFailed
			it.ErrorCode = domain.ErrCodeIOFailed
			it.ErrorMsg = e.Error()
			it.Files[0].Status = domain.FileStatusFailed
		}
		items = append(items, it)
		return fs.SkipDir
	})
	return items
}

// layoutPchtxts 把提取树里的 .pchtxt 按 <版本>.pchtxt 归档到 pchtxts/。
func layoutPchtxts(root, extractDir string) []domain.ItemResult {
	var items []domain.ItemResult

	_ = filepath.WalkDir(extractDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".pchtxt") {
			return nil
		}

		version := strings.TrimSpace(strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())))
		game := gameName(filepath.Base(filepath.Dir(path)))
		dst := filepath.Join(root, "pchtxts", game+" - "+modsSuffix, version+".pchtxt")

		it := domain.ItemResult{
			Name:   game + " - " + modsSuffix,
			Op:     string(domain.OpCopy),
			Status: domain.StatusProcessed,
			Files:  []domain.FileResult{{Src: rel(root, path), Dst: rel(root, dst), Status: domain.FileStatusDone}},
		}
		if e := fsx.CopyFile(path, dst); e != nil {
			it.Status = domain.StatusFailed
			it.ErrorCode = domain.ErrCodeIOFailed
			it.ErrorMsg = e.Error()
			it.Files[0].Status = domain.FileStatusFailed
		}
		items = append(items, it)
		return nil
	})
	return items
}

// gameAndVersion 从 TitleID 目录的父链推断游戏名与版本：
// 紧邻的父目录视为版本号（形如 1.2.0），否则用 "main" 兜底，
// 游戏名取版本目录再上一级（或父目录本身）。
func gameAndVersion(extractDir, parent string) (game, version string) {
	parentName := filepath.Base(parent)
	grand := filepath.Dir(parent)

	if looksLikeVersion(parentName) && strings.HasPrefix(grand, extractDir) && grand != extractDir {
		return gameName(filepath.Base(grand)), parentName
	}
	return gameName(parentName), "main"
}

// looksLikeVersion 认定 "1.2.0" 或 "v1.2" 这类目录名为版本号。
func looksLikeVersion(s string) bool {
	if strings.HasPrefix(s, "v") || strings.HasPrefix(s, "V") {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

// gameName 规范化目录名：去掉末尾的 "Graphics"（贡献者仓库的惯用后缀），
// 再做标题式大小写。
func gameName(dir string) string {
	s := Sanitize(dir)
	s = strings.TrimSpace(strings.TrimSuffix(s, "Graphics"))
	return TitleCase(s)
}

func resolveNames(rawURL, author string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("URL 无效：%q", rawURL)
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if author == "" {
		if len(segs) < 1 || segs[0] == "" {
			return "", "", fmt.Errorf("无法从 URL 推断作者，请用 --author 指定：%q", rawURL)
		}
		author = segs[0]
	}
	repoName := "repo"
	if len(segs) >= 2 && segs[1] != "" {
		repoName = segs[1]
	}
	return author, repoName, nil
}

func rel(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil || strings.HasPrefix(r, "..") {
		return p
	}
	return r
}

func failedItem(name, code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Name:      name,
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
		Files:     []domain.FileResult{},
	}
}

func finish(rr domain.RunReport) domain.RunReport {
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}
