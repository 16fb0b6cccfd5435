package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/John-Robertt/NXMM/internal/infra/fsx"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 config.ini。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// ConfigName 是包根目录下的配置文件名（固定约定）。
	ConfigName = "config.ini"
	// DefaultLiveRoot 是真实系统路径的默认挂载点。
	DefaultLiveRoot = "/atmosphere"
	// sectionMain 是主配置区段名。
	sectionMain = "nxmm"
	// sectionEnabled 持久化已启用 mod 的选择。
	sectionEnabled = "enabled"
)

// CLIArgs 只包含 CLI 暴露的入口（root/apply），并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 config.ini 的 apply=true。
type CLIArgs struct {
	Root string

	Apply    bool
	ApplySet bool
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// Root 是包根目录（config.ini、contents/、cache/ 所在地）。
	Root string

	// LiveRoot 是“真实系统”挂载点；mod 启用后的文件归宿。
	// 测试与桌面环境把它指向任意目录即可。
	LiveRoot string

	Apply bool

	// CaseSensitive 控制 search pattern 的匹配大小写规则。
	CaseSensitive bool

	ExcludeDirs []string

	// ProxyURL 非空时，全部下载走该代理。
	ProxyURL string

	// Enabled 是 config.ini 里持久化的启用选择（目录名 -> true）。
	// 真正的启用判据是 location log；这份数据用于宿主重启后的展示与对账。
	Enabled map[string]bool
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取 config.ini，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 root：尝试读取 <root>/config.ini（可选；缺失则全默认值）
// 2) CLI 未提供 root：必须读取 <cwd>/config.ini（必选——它标记 cwd 是一个包根）
//
// 覆盖优先级（固定）：
// - apply：CLI --apply/--apply=false > config > 默认 false
// - 其他字段：仅由 config.ini 控制（CLI 不暴露）
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	root := cwdAbs
	required := true
	if strings.TrimSpace(cli.Root) != "" {
		root = absCleanFrom(cwdAbs, cli.Root)
		required = false
	}

	cfgPath := filepath.Join(root, ConfigName)
	f, exists, err := loadFile(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists && required {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}

	return merge(root, cli, f, cfgPath)
}

func merge(root string, cli CLIArgs, f *ini.File, cfgPath string) (EffectiveConfig, error) {
	eff := EffectiveConfig{
		Root:     root,
		LiveRoot: DefaultLiveRoot,
		Enabled:  map[string]bool{},
	}

	if f != nil {
		sec := f.Section(sectionMain)

		if v := strings.TrimSpace(sec.Key("live_root").String()); v != "" {
			eff.LiveRoot = absCleanFrom(root, v)
		}

		// 注意：Section.Key 会自动创建缺失的键，所以必须先用 HasKey 判断存在性。
		if sec.HasKey("apply") {
			apply, err := sec.Key("apply").Bool()
			if err != nil {
				return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("apply 只能是 true 或 false，实际是 %q", sec.Key("apply").String())}
			}
			eff.Apply = apply
		}

		if sec.HasKey("case_sensitive") {
			cs, err := sec.Key("case_sensitive").Bool()
			if err != nil {
				return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("case_sensitive 只能是 true 或 false，实际是 %q", sec.Key("case_sensitive").String())}
			}
			eff.CaseSensitive = cs
		}

		for _, x := range sec.Key("exclude_dirs").Strings(",") {
			x = strings.TrimSpace(x)
			if x != "" {
				eff.ExcludeDirs = append(eff.ExcludeDirs, x)
			}
		}

		proxyURL := strings.TrimSpace(sec.Key("proxy_url").String())
		if proxyURL != "" {
			u, err := url.Parse(proxyURL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("proxy_url 无效：%q", proxyURL)}
			}
			eff.ProxyURL = proxyURL
		}

		for _, k := range f.Section(sectionEnabled).Keys() {
			if on, err := k.Bool(); err == nil && on {
				eff.Enabled[k.Name()] = true
			}
		}
	}

	// apply：CLI > config > 默认 false。
	if cli.ApplySet {
		eff.Apply = cli.Apply
	}

	return eff, nil
}

// SetEnabled 更新 config.ini 的 [enabled] 区段并原子写回。
// 文件不存在会被创建（仅 apply 路径会走到这里）。
func SetEnabled(root, mod string, on bool) error {
	cfgPath := filepath.Join(root, ConfigName)
	f, _, err := loadFile(cfgPath)
	if err != nil {
		return err
	}
	if f == nil {
		f = ini.Empty()
	}

	sec := f.Section(sectionEnabled)
	if on {
		sec.Key(mod).SetValue("true")
	} else {
		sec.DeleteKey(mod)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(root, ConfigName, buf.Bytes())
}

func loadFile(path string) (*ini.File, bool, error) {
	f, err := ini.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return f, true, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
